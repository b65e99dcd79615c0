package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/tradesim/internal/domain"
	"github.com/alejandrodnm/tradesim/internal/ports"
	"github.com/google/uuid"
)

// Strategy is the user extension point. Concrete strategies embed *Base,
// which provides the identity, the ecosystem access helpers and no-op
// defaults for every callback; implementations override only the
// callbacks they need.
type Strategy interface {
	ID() string
	UUID() string
	Symbols() map[string]map[string]bool

	OnInitialize() error
	OnStart() error
	OnStop(bartime time.Time) error
	OnBeginOfDay(bartime time.Time) error
	OnEndOfDay(bartime time.Time) error
	OnMarketOpen(bartime time.Time) error
	OnMarketClose(bartime time.Time) error
	OnBar(bartime time.Time) error
	OnFills(bartime time.Time, fills []*domain.Order) error
	OnCancels(bartime time.Time, cancels []*domain.Order) error

	attachPortfolio(p *Portfolio)
	markStarted() error
}

// Deps bridges a strategy to the rest of the ecosystem.
type Deps struct {
	OrderManager    *OrderManager
	PositionManager *PositionManager
	MarketData      ports.MarketData
}

// Base carries the strategy identity, the ecosystem references and the
// symbol registrations. It provides no-op defaults for all callbacks.
type Base struct {
	id   string
	uuid string

	om        *OrderManager
	pm        *PositionManager
	md        ports.MarketData
	portfolio *Portfolio

	started      bool
	symbolTuples []domain.SymbolTuple
	symbols      map[string]map[string]bool
	productTypes map[string]bool
	frequencies  map[string]bool
	parameters   map[string]any
}

// NewBase creates the embedded strategy base.
func NewBase(id string, deps Deps) *Base {
	b := &Base{
		id:           id,
		uuid:         uuid.NewString(),
		om:           deps.OrderManager,
		pm:           deps.PositionManager,
		md:           deps.MarketData,
		symbols:      make(map[string]map[string]bool),
		productTypes: make(map[string]bool),
		frequencies:  make(map[string]bool),
	}
	slog.Info("strategy initialized", "strategy_id", id, "uuid", b.uuid)
	return b
}

func (b *Base) ID() string                        { return b.id }
func (b *Base) UUID() string                      { return b.uuid }
func (b *Base) Symbols() map[string]map[string]bool { return b.symbols }
func (b *Base) Portfolio() *Portfolio             { return b.portfolio }
func (b *Base) MarketData() ports.MarketData      { return b.md }
func (b *Base) PositionManager() *PositionManager { return b.pm }
func (b *Base) OrderManager() *OrderManager       { return b.om }

func (b *Base) attachPortfolio(p *Portfolio) {
	slog.Info("attaching strategy to portfolio", "strategy_id", b.id, "portfolio", p.ID())
	b.portfolio = p
}

// markStarted flips the strategy into the running state. Symbols and
// parameters are frozen from here on.
func (b *Base) markStarted() error {
	if b.om == nil {
		return fmt.Errorf("engine.Base.markStarted: strategy %s is not attached to an OrderManager", b.id)
	}
	if b.portfolio == nil {
		return fmt.Errorf("engine.Base.markStarted: strategy %s is not attached to a Portfolio", b.id)
	}
	b.started = true
	return nil
}

// AddSymbol registers a (productType, symbol, frequency) with the
// strategy and the market data facade. Not allowed after start.
func (b *Base) AddSymbol(productType, symbol, frequency string) error {
	if b.started {
		return fmt.Errorf("engine.Base.AddSymbol: strategy %s already started", b.id)
	}
	slog.Info("adding symbol to strategy", "strategy_id", b.id,
		"product_type", productType, "symbol", symbol, "frequency", frequency)
	b.md.AddSymbols(productType, []string{symbol}, frequency)
	b.symbolTuples = append(b.symbolTuples, domain.SymbolTuple{ProductType: productType, Symbol: symbol, Frequency: frequency})
	b.productTypes[productType] = true
	b.frequencies[frequency] = true
	if b.symbols[productType] == nil {
		b.symbols[productType] = make(map[string]bool)
	}
	b.symbols[productType][symbol] = true
	return nil
}

// AddSymbols registers a list of symbol tuples.
func (b *Base) AddSymbols(tuples []domain.SymbolTuple) error {
	for _, t := range tuples {
		if err := b.AddSymbol(t.ProductType, t.Symbol, t.Frequency); err != nil {
			return err
		}
	}
	return nil
}

// SymbolTuples returns the registered symbol tuples.
func (b *Base) SymbolTuples() []domain.SymbolTuple { return b.symbolTuples }

// ProductTypes returns the registered product types.
func (b *Base) ProductTypes() []string {
	out := make([]string, 0, len(b.productTypes))
	for pt := range b.productTypes {
		out = append(out, pt)
	}
	return out
}

// Frequencies returns the registered frequencies.
func (b *Base) Frequencies() []string {
	out := make([]string, 0, len(b.frequencies))
	for f := range b.frequencies {
		out = append(out, f)
	}
	return out
}

// SetParameters sets the strategy parameters. Not allowed after start.
func (b *Base) SetParameters(parameters map[string]any) error {
	if b.started {
		return fmt.Errorf("engine.Base.SetParameters: strategy %s already started", b.id)
	}
	b.parameters = parameters
	return nil
}

// Parameters returns the strategy parameters.
func (b *Base) Parameters() map[string]any { return b.parameters }

// Order creates a new order in the OrderManager that the Portfolio will
// stage on the next ProcessOrders pass. Returns the order uuid.
func (b *Base) Order(productType, symbol string, side domain.Side, quantity float64, orderType domain.OrderType, price float64) (string, error) {
	if !b.symbols[productType][symbol] {
		return "", fmt.Errorf("engine.Base.Order: strategy %s (%s, %s): %w", b.id, productType, symbol, domain.ErrNotRegistered)
	}
	o, err := domain.NewOrder(b.uuid, "strategy."+b.id, b.uuid, b.id, productType, symbol,
		side, quantity, orderType, domain.Details{"price": price})
	if err != nil {
		return "", fmt.Errorf("engine.Base.Order: %w", err)
	}
	if err := b.om.NewOrder(o); err != nil {
		return "", fmt.Errorf("engine.Base.Order: %w", err)
	}
	return o.UUID(), nil
}

// GetOrder returns the order for a uuid.
func (b *Base) GetOrder(orderUUID string) (*domain.Order, error) {
	return b.om.Order(orderUUID)
}

// CancelOrder lodges a cancel request. A cancel on a closed order is
// ignored with a log entry.
func (b *Base) CancelOrder(o *domain.Order) error {
	if o.Closed() {
		slog.Info("cancel request on closed order ignored", "uuid", o.UUID())
		return nil
	}
	return b.om.ChangeState(o, domain.StateCancelRequested)
}

// ReplaceOrder lodges a replace request. A replace on a closed order is
// ignored with a log entry.
func (b *Base) ReplaceOrder(o *domain.Order, quantity *float64, details domain.Details) error {
	if o.Closed() {
		slog.Info("replace request on closed order ignored", "uuid", o.UUID())
		return nil
	}
	return b.om.ReplaceOrder(o, quantity, details)
}

// OrdersList returns this strategy's orders matching the filter.
func (b *Base) OrdersList(f Filter) []*domain.Order {
	f.OriginatorUUIDs = []string{b.uuid}
	return b.om.OrdersList(f)
}

// SetIntent declares the desired target position for (productType,
// symbol) in the attached portfolio.
func (b *Base) SetIntent(productType, symbol string, target float64) error {
	return b.portfolio.SetIntent(b.id, productType, symbol, target)
}

// GetIntent returns the current intent target, nil if absent.
func (b *Base) GetIntent(productType, symbol string) *float64 {
	target, _, ok := b.portfolio.GetIntent(b.id, productType, symbol)
	if !ok {
		return nil
	}
	return target
}

// Position returns the current position for (productType, symbol), zero
// when there is no row.
func (b *Base) Position(productType, symbol string) float64 {
	pos := b.pm.Position(domain.PositionKey{StrategyID: b.id, ProductType: productType, Symbol: symbol})
	if pos == nil {
		return 0
	}
	return pos.CurrentPosition
}

// PositionRow returns the full position row, nil when there is none.
func (b *Base) PositionRow(productType, symbol string) *domain.Position {
	return b.pm.Position(domain.PositionKey{StrategyID: b.id, ProductType: productType, Symbol: symbol})
}

// No-op callback defaults; concrete strategies override what they need.

func (b *Base) OnInitialize() error                  { return nil }
func (b *Base) OnStart() error                       { return nil }
func (b *Base) OnStop(time.Time) error               { return nil }
func (b *Base) OnBeginOfDay(time.Time) error         { return nil }
func (b *Base) OnEndOfDay(time.Time) error           { return nil }
func (b *Base) OnMarketOpen(time.Time) error         { return nil }
func (b *Base) OnMarketClose(time.Time) error        { return nil }
func (b *Base) OnBar(time.Time) error                { return nil }
func (b *Base) OnFills(time.Time, []*domain.Order) error   { return nil }
func (b *Base) OnCancels(time.Time, []*domain.Order) error { return nil }
