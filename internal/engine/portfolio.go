package engine

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/alejandrodnm/tradesim/internal/domain"
	"github.com/alejandrodnm/tradesim/internal/ports"
	"github.com/google/uuid"
)

// intent is one row of the intents book. The target is reset to nil after
// every ProcessIntents pass; the working order survives across bars until
// it is canceled or replaced away.
type intent struct {
	target *float64
	order  *domain.Order
}

// Portfolio takes orders and intents from the attached strategies and
// turns them into staged orders. Intent orders carry the portfolio as
// originator.
type Portfolio struct {
	uuid          string
	id            string
	om            *OrderManager
	pm            *PositionManager
	md            ports.MarketData
	liveFrequency string

	strategyIDs []string // insertion order
	strategies  map[string]Strategy
	intents     map[domain.PositionKey]*intent
}

// NewPortfolio creates a portfolio bound to an order manager and a
// position manager.
func NewPortfolio(id string, om *OrderManager, pm *PositionManager) *Portfolio {
	p := &Portfolio{
		uuid:       uuid.NewString(),
		id:         id,
		om:         om,
		pm:         pm,
		strategies: make(map[string]Strategy),
		intents:    make(map[domain.PositionKey]*intent),
	}
	slog.Info("portfolio initialized", "id", id, "uuid", p.uuid)
	return p
}

func (p *Portfolio) ID() string                        { return p.id }
func (p *Portfolio) UUID() string                      { return p.uuid }
func (p *Portfolio) OrderManager() *OrderManager       { return p.om }
func (p *Portfolio) PositionManager() *PositionManager { return p.pm }

// SetupMarketData connects the market data facade used to price intent
// orders at the given live frequency.
func (p *Portfolio) SetupMarketData(md ports.MarketData, liveFrequency string) {
	slog.Info("portfolio market data setup", "id", p.id, "live_frequency", liveFrequency)
	p.md = md
	p.liveFrequency = liveFrequency
}

// StrategyIDs returns the attached strategy ids in attachment order.
func (p *Portfolio) StrategyIDs() []string {
	return append([]string{}, p.strategyIDs...)
}

// AddStrategy attaches a strategy to the portfolio and stamps the
// back-reference on the strategy.
func (p *Portfolio) AddStrategy(s Strategy) {
	if _, ok := p.strategies[s.ID()]; !ok {
		p.strategyIDs = append(p.strategyIDs, s.ID())
	}
	p.strategies[s.ID()] = s
	s.attachPortfolio(p)
}

// SetIntent sets the target for a (strategyId, productType, symbol).
func (p *Portfolio) SetIntent(strategyID, productType, symbol string, target float64) error {
	if _, ok := p.strategies[strategyID]; !ok {
		return fmt.Errorf("engine.Portfolio.SetIntent: strategy %s: %w", strategyID, domain.ErrNotRegistered)
	}
	slog.Info("setting intent", "strategy_id", strategyID, "product_type", productType,
		"symbol", symbol, "target", target)
	key := domain.PositionKey{StrategyID: strategyID, ProductType: productType, Symbol: symbol}
	row, ok := p.intents[key]
	if !ok {
		row = &intent{}
		p.intents[key] = row
	}
	row.target = &target
	return nil
}

// GetIntent returns the target and working order for a (strategyId,
// productType, symbol). ok is false when the row does not exist.
func (p *Portfolio) GetIntent(strategyID, productType, symbol string) (target *float64, order *domain.Order, ok bool) {
	row, ok := p.intents[domain.PositionKey{StrategyID: strategyID, ProductType: productType, Symbol: symbol}]
	if !ok {
		return nil, nil, false
	}
	return row.target, row.order, true
}

// newOrder creates an intent order in the OrderManager. Positive
// tradeToDo buys, negative sells; the price is the last valid close at
// the live frequency.
func (p *Portfolio) newOrder(strategyID, productType, symbol string, tradeToDo float64) (*domain.Order, error) {
	s, ok := p.strategies[strategyID]
	if !ok {
		return nil, fmt.Errorf("engine.Portfolio.newOrder: strategy %s: %w", strategyID, domain.ErrNotRegistered)
	}
	if !s.Symbols()[productType][symbol] {
		return nil, fmt.Errorf("engine.Portfolio.newOrder: strategy %s (%s, %s): %w",
			strategyID, productType, symbol, domain.ErrNotRegistered)
	}

	quantity := math.Abs(tradeToDo)
	side := domain.Sell
	if tradeToDo > 0 {
		side = domain.Buy
	}
	bar, err := p.md.LastValidBar(productType, symbol, p.liveFrequency)
	if err != nil {
		return nil, fmt.Errorf("engine.Portfolio.newOrder: %w", err)
	}
	price := *bar.Close

	slog.Info("creating order from intent", "symbol", symbol, "side", side,
		"quantity", quantity, "price", price)
	o, err := domain.NewOrder(p.uuid, "portfolio."+p.id, s.UUID(), strategyID, productType, symbol,
		side, quantity, domain.OrderTypeLimit, domain.Details{"price": price})
	if err != nil {
		return nil, fmt.Errorf("engine.Portfolio.newOrder: %w", err)
	}
	if err := p.om.NewOrder(o); err != nil {
		return nil, fmt.Errorf("engine.Portfolio.newOrder: %w", err)
	}
	return o, nil
}

// cancelOrder lodges a cancel request for an intent order. Requests on
// closed orders are ignored with a log entry.
func (p *Portfolio) cancelOrder(o *domain.Order) error {
	slog.Info("cancelling intent order", "uuid", o.UUID())
	if o.Closed() {
		slog.Info("cancel request on closed order ignored", "uuid", o.UUID())
		return nil
	}
	return p.om.ChangeState(o, domain.StateCancelRequested)
}

// modifyOrder re-prices and re-sizes a working intent order for the new
// trade to do. A closed order cannot be replaced; a fresh order is
// created instead and returned.
func (p *Portfolio) modifyOrder(o *domain.Order, tradeToDo float64) (*domain.Order, error) {
	if o.Closed() {
		slog.Info("replace request on closed order ignored", "uuid", o.UUID())
		return p.newOrder(o.StrategyID(), o.ProductType(), o.Symbol(), tradeToDo)
	}
	quantity := math.Abs(tradeToDo) + o.FillQuantity()
	bar, err := p.md.LastValidBar(o.ProductType(), o.Symbol(), p.liveFrequency)
	if err != nil {
		return nil, fmt.Errorf("engine.Portfolio.modifyOrder: %w", err)
	}
	price := *bar.Close
	slog.Info("modifying intent order", "uuid", o.UUID(), "price", price, "quantity", quantity)
	if err := p.om.ReplaceOrder(o, &quantity, domain.Details{"price": price}); err != nil {
		return nil, err
	}
	return o, nil
}

// processIntent applies the intent decision table to one row: compare the
// target against the current position, then create, modify or cancel the
// working order accordingly.
func (p *Portfolio) processIntent(key domain.PositionKey, row *intent) error {
	slog.Info("processing intent", "strategy_id", key.StrategyID,
		"product_type", key.ProductType, "symbol", key.Symbol)

	if row.target == nil {
		if row.order != nil {
			if err := p.cancelOrder(row.order); err != nil {
				return err
			}
			row.order = nil
		}
		return nil
	}

	actual := 0.0
	if pos := p.pm.Position(key); pos != nil {
		actual = pos.CurrentPosition
	}
	ttd := *row.target - actual

	if row.order == nil {
		if ttd != 0 {
			o, err := p.newOrder(key.StrategyID, key.ProductType, key.Symbol, ttd)
			if err != nil {
				return err
			}
			row.order = o
		}
		return nil
	}

	if ttd == 0 {
		if err := p.cancelOrder(row.order); err != nil {
			return err
		}
		row.order = nil
		return nil
	}

	sameDirection := (ttd > 0 && row.order.Side() == domain.Buy) ||
		(ttd < 0 && row.order.Side() == domain.Sell)
	if sameDirection {
		o, err := p.modifyOrder(row.order, ttd)
		if err != nil {
			return err
		}
		row.order = o
		return nil
	}

	// Wrong direction for the trade to do: cancel and start over.
	if err := p.cancelOrder(row.order); err != nil {
		return err
	}
	o, err := p.newOrder(key.StrategyID, key.ProductType, key.Symbol, ttd)
	if err != nil {
		return err
	}
	row.order = o
	return nil
}

// ProcessIntents processes every intent row in key order and then resets
// all targets, so a strategy must re-declare its intent every bar to keep
// it alive.
func (p *Portfolio) ProcessIntents() error {
	slog.Info("processing intents", "portfolio", p.id)
	keys := make([]domain.PositionKey, 0, len(p.intents))
	for key := range p.intents {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	for _, key := range keys {
		if err := p.processIntent(key, p.intents[key]); err != nil {
			return err
		}
	}
	for _, row := range p.intents {
		row.target = nil
	}
	return nil
}

// ProcessOrders first turns intents into orders, then stages every
// CREATED order of the attached strategies, including the intent orders
// just created.
func (p *Portfolio) ProcessOrders() error {
	if err := p.ProcessIntents(); err != nil {
		return err
	}
	for _, id := range p.strategyIDs {
		s := p.strategies[id]
		slog.Info("processing orders for strategy", "strategy_id", id)
		orders := p.om.OrdersList(Filter{
			StrategyUUIDs: []string{s.UUID()},
			States:        []domain.State{domain.StateCreated},
		})
		for _, o := range orders {
			if err := p.om.AddPortfolio(o, p); err != nil {
				return err
			}
			if err := p.om.ChangeState(o, domain.StateStaged); err != nil {
				return err
			}
		}
	}
	return nil
}
