package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alejandrodnm/tradesim/internal/domain"
	"github.com/alejandrodnm/tradesim/internal/ports"
	"github.com/google/uuid"
)

// PositionManager books fills into trades, maintains the position book
// and runs the PnL and end-of-day processes.
type PositionManager struct {
	uuid  string
	id    string
	om    *OrderManager
	store ports.Store

	md            ports.MarketData
	calendar      ports.Calendar
	liveFrequency string

	positionKeys []domain.PositionKey // insertion order
	positions    map[domain.PositionKey]*domain.Position
	newTrades    []domain.Trade
	tradeID      int64

	metricIDs []string // registration order
	metrics   map[string]ports.Metric
}

// NewPositionManager creates a position manager persisting under the
// given source id.
func NewPositionManager(id string, om *OrderManager, store ports.Store) *PositionManager {
	pm := &PositionManager{
		uuid:      uuid.NewString(),
		id:        id,
		om:        om,
		store:     store,
		positions: make(map[domain.PositionKey]*domain.Position),
		metrics:   make(map[string]ports.Metric),
	}
	slog.Info("position manager initialized", "id", id, "uuid", pm.uuid)
	return pm
}

func (pm *PositionManager) ID() string                  { return pm.id }
func (pm *PositionManager) UUID() string                { return pm.uuid }
func (pm *PositionManager) OrderManager() *OrderManager { return pm.om }

// SetupMarketData connects the market data facade and the business-day
// calendar used for prior close lookups and live pricing.
func (pm *PositionManager) SetupMarketData(md ports.MarketData, calendar ports.Calendar, liveFrequency string) {
	slog.Info("position manager market data setup", "id", pm.id, "live_frequency", liveFrequency)
	pm.md = md
	pm.calendar = calendar
	pm.liveFrequency = liveFrequency
}

// NewTrades returns the trades booked since initialization.
func (pm *PositionManager) NewTrades() []domain.Trade {
	return append([]domain.Trade{}, pm.newTrades...)
}

// Position returns the position row for a key, nil when there is none.
func (pm *PositionManager) Position(key domain.PositionKey) *domain.Position {
	return pm.positions[key]
}

// Positions returns the position rows sorted by key.
func (pm *PositionManager) Positions() []*domain.Position {
	keys := pm.sortedKeys()
	out := make([]*domain.Position, len(keys))
	for i, key := range keys {
		out[i] = pm.positions[key]
	}
	return out
}

// PositionsSnapshot returns the flattened position book sorted by key.
func (pm *PositionManager) PositionsSnapshot() []domain.PositionSnapshot {
	positions := pm.Positions()
	out := make([]domain.PositionSnapshot, len(positions))
	for i, p := range positions {
		out[i] = p.Snapshot()
	}
	return out
}

func (pm *PositionManager) sortedKeys() []domain.PositionKey {
	keys := append([]domain.PositionKey{}, pm.positionKeys...)
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

// initializeRow creates the row for a key if it does not already exist.
// Safe to call unconditionally.
func (pm *PositionManager) initializeRow(key domain.PositionKey) *domain.Position {
	if p, ok := pm.positions[key]; ok {
		return p
	}
	slog.Info("creating new position row", "strategy_id", key.StrategyID,
		"product_type", key.ProductType, "symbol", key.Symbol)
	p := &domain.Position{Key: key}
	pm.positionKeys = append(pm.positionKeys, key)
	pm.positions[key] = p
	return p
}

func (pm *PositionManager) newTradeID() int64 {
	pm.tradeID++
	return pm.tradeID
}

// EnterTrade books a trade into the new-trades log and the position book.
// PnL is not recalculated here.
func (pm *PositionManager) EnterTrade(originatorID, strategyID string, bartime time.Time,
	productType, symbol string, side domain.Side, quantity, price, commission float64,
	orderUUID string, fillID int64) error {
	if side != domain.Buy && side != domain.Sell {
		return fmt.Errorf("engine.PositionManager.EnterTrade: %q: %w", side, domain.ErrInvalidSide)
	}
	if bartime.IsZero() {
		return fmt.Errorf("engine.PositionManager.EnterTrade: %w", domain.ErrInvalidTimestamp)
	}

	trade := domain.Trade{
		ID:           pm.newTradeID(),
		Timestamp:    time.Now().UTC(),
		OriginatorID: originatorID,
		StrategyID:   strategyID,
		Bartime:      bartime.UTC(),
		ProductType:  productType,
		Symbol:       symbol,
		Side:         side,
		Quantity:     quantity,
		Price:        price,
		Commission:   commission,
		OrderUUID:    orderUUID,
		FillID:       fillID,
	}
	slog.Info("entering trade", "trade_id", trade.ID, "strategy_id", strategyID,
		"symbol", symbol, "side", side, "quantity", quantity, "price", price)
	pm.newTrades = append(pm.newTrades, trade)

	key := domain.PositionKey{StrategyID: strategyID, ProductType: productType, Symbol: symbol}
	pm.initializeRow(key).ApplyTrade(trade)
	return nil
}

// EnterTradeFromOrder books every unbooked fill of a FILLED or
// PARTIALLY_FILLED order, marks the order booked, and closes it when
// fully filled.
func (pm *PositionManager) EnterTradeFromOrder(o *domain.Order) error {
	if o.State() != domain.StateFilled && o.State() != domain.StatePartiallyFilled {
		return fmt.Errorf("engine.PositionManager.EnterTradeFromOrder: order %s state %s is not filled", o.UUID(), o.State())
	}

	for _, fill := range o.UnbookedFills() {
		err := pm.EnterTrade(o.OriginatorID(), o.StrategyID(), fill.Bartime,
			o.ProductType(), o.Symbol(), o.Side(), fill.Quantity, fill.Price,
			fill.Commission, o.UUID(), fill.ID)
		if err != nil {
			return err
		}
		if err := o.SetFillBooked(fill.ID); err != nil {
			return err
		}
	}
	pm.om.SetBooked(o, true)
	if o.State() == domain.StateFilled {
		return pm.om.CloseOrder(o)
	}
	return nil
}

// BookFills books every order with unbooked fills and returns the booked
// orders grouped by originator id.
func (pm *PositionManager) BookFills() (map[string][]*domain.Order, error) {
	slog.Info("booking order fills")
	booked := make(map[string][]*domain.Order)
	for _, o := range pm.om.ToBeBookedList() {
		if err := pm.EnterTradeFromOrder(o); err != nil {
			return nil, err
		}
		booked[o.OriginatorID()] = append(booked[o.OriginatorID()], o)
	}
	return booked, nil
}

// UpdatePnL runs the full pnl process: prior closes for new rows, live
// prices for all rows, then the pnl columns.
func (pm *PositionManager) UpdatePnL() error {
	if len(pm.positionKeys) == 0 {
		return nil
	}
	if err := pm.InitializePriorClose(); err != nil {
		return err
	}
	if err := pm.UpdateCurrentPrices(); err != nil {
		return err
	}
	pm.CalculatePnL()
	return nil
}

// InitializePriorClose fills in the prior close price for rows that do
// not have one yet. The daily history is loaded on demand because a new
// position can show up after the runner updated the bar.
func (pm *PositionManager) InitializePriorClose() error {
	for _, key := range pm.sortedKeys() {
		p := pm.positions[key]
		if p.PriorClosePrice != nil {
			continue
		}

		pm.md.AddSymbols(key.ProductType, []string{key.Symbol}, domain.Freq1D)
		pm.md.AddSymbols(key.ProductType, []string{key.Symbol}, pm.liveFrequency)
		if err := pm.md.Update(key.ProductType, pm.liveFrequency, key.Symbol); err != nil {
			return fmt.Errorf("engine.PositionManager.InitializePriorClose: %w", err)
		}

		priorDate := pm.calendar.PriorBusinessDay(key.ProductType, pm.md.Bartime(), 1)
		if err := pm.md.LoadHistory(key.ProductType, domain.Freq1D, []string{key.Symbol}, priorDate); err != nil {
			return fmt.Errorf("engine.PositionManager.InitializePriorClose: %w", err)
		}
		bar, err := pm.md.Bar(key.ProductType, key.Symbol, domain.Freq1D, priorDate)
		if err != nil {
			return fmt.Errorf("engine.PositionManager.InitializePriorClose: %w", err)
		}
		slog.Info("setting prior close", "product_type", key.ProductType,
			"symbol", key.Symbol, "price", bar.Close)
		p.PriorClosePrice = bar.Close
	}
	return nil
}

// UpdateCurrentPrices refreshes the current price of every row from the
// last valid bar at the live frequency.
func (pm *PositionManager) UpdateCurrentPrices() error {
	slog.Info("updating current prices", "frequency", pm.liveFrequency)
	for _, key := range pm.positionKeys {
		bar, err := pm.md.LastValidBar(key.ProductType, key.Symbol, pm.liveFrequency)
		if err != nil {
			return fmt.Errorf("engine.PositionManager.UpdateCurrentPrices: %w", err)
		}
		pm.positions[key].CurrentPrice = bar.Close
	}
	return nil
}

// InsertTodayClose sets the current price of every row to today's daily
// close. Meant for the end-of-day process after the daily bar is loaded.
func (pm *PositionManager) InsertTodayClose() error {
	slog.Info("inserting today's closing price into current prices")
	for _, key := range pm.positionKeys {
		bar, err := pm.md.CurrentBar(key.ProductType, key.Symbol, domain.Freq1D)
		if err != nil {
			return fmt.Errorf("engine.PositionManager.InsertTodayClose: %w", err)
		}
		pm.positions[key].CurrentPrice = bar.Close
	}
	return nil
}

// CalculatePnL recomputes the pnl columns of every row.
func (pm *PositionManager) CalculatePnL() {
	slog.Info("calculating pnl")
	for _, p := range pm.positions {
		p.CalculatePnL()
	}
}

// AddEODMetric registers a metric for the end-of-day process. Metrics run
// in registration order, so register dependencies first.
func (pm *PositionManager) AddEODMetric(id string, metric ports.Metric) {
	if _, ok := pm.metrics[id]; !ok {
		pm.metricIDs = append(pm.metricIDs, id)
	}
	pm.metrics[id] = metric
}

// CalculateEODMetrics runs the registered metrics in registration order.
func (pm *PositionManager) CalculateEODMetrics(ts time.Time) error {
	for _, id := range pm.metricIDs {
		if err := pm.metrics[id].Calculate(ts); err != nil {
			return fmt.Errorf("engine.PositionManager.CalculateEODMetrics: %s: %w", id, err)
		}
	}
	return nil
}

// SavePositions persists the long-form position rows.
func (pm *PositionManager) SavePositions(ctx context.Context, ts time.Time) error {
	slog.Info("saving positions", "id", pm.id, "datetime", ts)
	records := make([]domain.PositionRecord, 0, len(pm.positionKeys))
	for _, key := range pm.sortedKeys() {
		records = append(records, domain.PositionRecord{
			Strategy:    key.StrategyID,
			ProductType: key.ProductType,
			Symbol:      key.Symbol,
			Datetime:    ts,
			Position:    pm.positions[key].CurrentPosition,
		})
	}
	if err := pm.store.InsertPositions(ctx, pm.id, records); err != nil {
		return fmt.Errorf("engine.PositionManager.SavePositions: %w", err)
	}
	return nil
}

// LoadPositions overwrites the position book with the stored rows for a
// datetime. Zero start positions are skipped.
func (pm *PositionManager) LoadPositions(ctx context.Context, ts *time.Time) error {
	slog.Info("loading positions", "id", pm.id)
	pm.positionKeys = nil
	pm.positions = make(map[domain.PositionKey]*domain.Position)

	records, err := pm.store.GetPositions(ctx, pm.id, ts)
	if err != nil {
		return fmt.Errorf("engine.PositionManager.LoadPositions: %w", err)
	}
	for _, rec := range records {
		if rec.Position == 0 {
			continue
		}
		key := domain.PositionKey{StrategyID: rec.Strategy, ProductType: rec.ProductType, Symbol: rec.Symbol}
		slog.Info("inserting stored position", "strategy_id", key.StrategyID,
			"product_type", key.ProductType, "symbol", key.Symbol, "position", rec.Position)
		p := pm.initializeRow(key)
		p.StartPosition = rec.Position
		p.CurrentPosition = rec.Position
	}
	return nil
}

// SavePositionsSnapshot persists the full position book projection.
func (pm *PositionManager) SavePositionsSnapshot(ctx context.Context, ts time.Time) error {
	slog.Info("saving positions snapshot", "id", pm.id, "datetime", ts)
	if err := pm.store.InsertPositionsSnapshot(ctx, pm.id, ts, pm.PositionsSnapshot()); err != nil {
		return fmt.Errorf("engine.PositionManager.SavePositionsSnapshot: %w", err)
	}
	return nil
}

// BeginOfDay rehydrates the position book from the latest stored rows and
// initializes prior closes.
func (pm *PositionManager) BeginOfDay(ctx context.Context) error {
	slog.Info("position manager begin of day", "id", pm.id)
	maxTS, err := pm.store.MaxDatetime(ctx, pm.id)
	if err != nil {
		return fmt.Errorf("engine.PositionManager.BeginOfDay: %w", err)
	}
	if err := pm.LoadPositions(ctx, maxTS); err != nil {
		return err
	}
	return pm.InitializePriorClose()
}

// EndOfDay marks positions at the daily close, recalculates pnl, runs the
// metrics and persists.
func (pm *PositionManager) EndOfDay(ctx context.Context) error {
	slog.Info("position manager end of day", "id", pm.id)
	ts := pm.md.Bartime()
	if len(pm.positionKeys) > 0 {
		if err := pm.InsertTodayClose(); err != nil {
			return err
		}
		pm.CalculatePnL()
		if err := pm.CalculateEODMetrics(ts); err != nil {
			return err
		}
		if err := pm.SavePositions(ctx, ts); err != nil {
			return err
		}
	}
	return pm.SavePositionsSnapshot(ctx, ts)
}

// Stop runs the stop process: refresh pnl, persist positions and the
// snapshot, run the metrics.
func (pm *PositionManager) Stop(ctx context.Context) error {
	slog.Info("position manager stop", "id", pm.id)
	if err := pm.UpdatePnL(); err != nil {
		return err
	}
	ts := pm.md.Bartime()
	if len(pm.positionKeys) > 0 {
		if err := pm.SavePositions(ctx, ts); err != nil {
			return err
		}
	}
	if err := pm.SavePositionsSnapshot(ctx, ts); err != nil {
		return err
	}
	return pm.CalculateEODMetrics(ts)
}
