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

// Filter selects orders from the OrderManager registry. Empty slices mean
// "any value"; within one field the listed values are ORed, across fields
// the conditions are ANDed.
type Filter struct {
	States          []domain.State
	OriginatorIDs   []string
	OriginatorUUIDs []string
	StrategyIDs     []string
	StrategyUUIDs   []string
	PortfolioIDs    []string
	ProductTypes    []string
	Symbols         []string
	Booked          *bool
	Closed          *bool
}

func (f Filter) matches(o *domain.Order) bool {
	return matchString(f.States, o.State()) &&
		matchString(f.OriginatorIDs, o.OriginatorID()) &&
		matchString(f.OriginatorUUIDs, o.OriginatorUUID()) &&
		matchString(f.StrategyIDs, o.StrategyID()) &&
		matchString(f.StrategyUUIDs, o.StrategyUUID()) &&
		matchString(f.PortfolioIDs, o.PortfolioID()) &&
		matchString(f.ProductTypes, o.ProductType()) &&
		matchString(f.Symbols, o.Symbol()) &&
		(f.Booked == nil || *f.Booked == o.Booked()) &&
		(f.Closed == nil || *f.Closed == o.Closed())
}

func matchString[T comparable](values []T, v T) bool {
	if len(values) == 0 {
		return true
	}
	for _, want := range values {
		if want == v {
			return true
		}
	}
	return false
}

// OrderManager is the single source of truth for orders. All state,
// booked, closed and portfolio mutations go through it so the registry
// stays consistent with the Order objects.
type OrderManager struct {
	uuid        string
	id          string
	store       ports.Store
	orderIDs    []string // insertion order
	orders      map[string]*domain.Order
	marketState map[string]bool
}

// NewOrderManager creates an order manager persisting under the given
// source id.
func NewOrderManager(id string, store ports.Store) *OrderManager {
	om := &OrderManager{
		uuid:        uuid.NewString(),
		id:          id,
		store:       store,
		orders:      make(map[string]*domain.Order),
		marketState: make(map[string]bool),
	}
	slog.Info("order manager initialized", "id", id, "uuid", om.uuid)
	return om
}

func (m *OrderManager) ID() string   { return m.id }
func (m *OrderManager) UUID() string { return m.uuid }

// NewOrder registers an order with the manager.
func (m *OrderManager) NewOrder(o *domain.Order) error {
	if _, ok := m.orders[o.UUID()]; ok {
		return fmt.Errorf("engine.OrderManager.NewOrder: %s: %w", o.UUID(), domain.ErrDuplicateOrder)
	}
	m.orderIDs = append(m.orderIDs, o.UUID())
	m.orders[o.UUID()] = o
	return nil
}

// ChangeState moves an order to a new state through the state machine.
// A no-op when the target equals the current state.
func (m *OrderManager) ChangeState(o *domain.Order, state domain.State) error {
	if o.State() == state {
		return nil
	}
	if err := o.SetState(state); err != nil {
		return fmt.Errorf("engine.OrderManager.ChangeState: %w", err)
	}
	return nil
}

// CloseOrder flips the closed flag on an order already in a closed state.
func (m *OrderManager) CloseOrder(o *domain.Order) error {
	if !o.State().IsClosed() {
		return fmt.Errorf("engine.OrderManager.CloseOrder: order %s state %s: %w", o.UUID(), o.State(), domain.ErrNotClosedState)
	}
	if err := o.MarkClosed(); err != nil {
		return fmt.Errorf("engine.OrderManager.CloseOrder: %w", err)
	}
	return nil
}

// ReplaceOrder lodges a replace request: appends to the order's replaces
// log and transitions to REPLACE_REQUESTED. A nil quantity means the
// quantity is unchanged. The transition is validated before anything on
// the order changes; a replace on a closed order is a logged no-op.
func (m *OrderManager) ReplaceOrder(o *domain.Order, quantity *float64, details domain.Details) error {
	if o.Closed() || o.State().IsClosed() {
		slog.Info("replace request on closed order ignored", "uuid", o.UUID(), "state", o.State())
		return nil
	}
	if !domain.CanTransition(o.State(), domain.StateReplaceRequested) {
		return fmt.Errorf("engine.OrderManager.ReplaceOrder: order %s %s -> %s: %w",
			o.UUID(), o.State(), domain.StateReplaceRequested, domain.ErrIllegalTransition)
	}
	o.ApplyReplace(quantity, details)
	if err := m.ChangeState(o, domain.StateReplaceRequested); err != nil {
		return fmt.Errorf("engine.OrderManager.ReplaceOrder: %w", err)
	}
	return nil
}

// SetBooked flips the booked flag of an order.
func (m *OrderManager) SetBooked(o *domain.Order, booked bool) {
	o.SetBooked(booked)
}

// AddPortfolio stamps the portfolio on an order. Write-once.
func (m *OrderManager) AddPortfolio(o *domain.Order, p *Portfolio) error {
	if err := o.SetPortfolio(p.UUID(), p.ID()); err != nil {
		return fmt.Errorf("engine.OrderManager.AddPortfolio: %w", err)
	}
	return nil
}

// Order returns the order for a uuid.
func (m *OrderManager) Order(orderUUID string) (*domain.Order, error) {
	o, ok := m.orders[orderUUID]
	if !ok {
		return nil, fmt.Errorf("engine.OrderManager.Order: %s: %w", orderUUID, domain.ErrUnknownOrder)
	}
	return o, nil
}

// OrdersList returns the filtered orders in registry insertion order.
func (m *OrderManager) OrdersList(f Filter) []*domain.Order {
	var out []*domain.Order
	for _, id := range m.orderIDs {
		if o := m.orders[id]; f.matches(o) {
			out = append(out, o)
		}
	}
	return out
}

// OrdersSnapshot returns the flattened projection of the filtered orders
// ordered by create timestamp.
func (m *OrderManager) OrdersSnapshot(f Filter) []domain.OrderSnapshot {
	orders := m.OrdersList(f)
	snaps := make([]domain.OrderSnapshot, len(orders))
	for i, o := range orders {
		snaps[i] = o.Snapshot()
	}
	sort.SliceStable(snaps, func(i, j int) bool {
		return snaps[i].CreateTimestamp.Before(snaps[j].CreateTimestamp)
	})
	return snaps
}

// OpenOrdersSnapshot pre-applies the open state group to the filter.
func (m *OrderManager) OpenOrdersSnapshot(f Filter) []domain.OrderSnapshot {
	if len(f.States) == 0 {
		f.States = domain.OpenStates()
	}
	return m.OrdersSnapshot(f)
}

// ClosedOrdersSnapshot pre-applies the closed state group to the filter.
func (m *OrderManager) ClosedOrdersSnapshot(f Filter) []domain.OrderSnapshot {
	if len(f.States) == 0 {
		f.States = domain.ClosedStates()
	}
	return m.OrdersSnapshot(f)
}

// ToBeBookedList returns orders with fills the PositionManager has not
// yet booked.
func (m *OrderManager) ToBeBookedList() []*domain.Order {
	booked := false
	return m.OrdersList(Filter{
		States: []domain.State{domain.StateFilled, domain.StatePartiallyFilled},
		Booked: &booked,
	})
}

// CancelsToProcess returns CANCELED orders not yet marked closed; the
// event processor delivers these to strategies and then closes them.
func (m *OrderManager) CancelsToProcess() []*domain.Order {
	closed := false
	return m.OrdersList(Filter{
		States: []domain.State{domain.StateCanceled},
		Closed: &closed,
	})
}

// MarketState returns the open/closed state of the market for a product
// type. Reading a product type that was never set is an error.
func (m *OrderManager) MarketState(productType string) (bool, error) {
	state, ok := m.marketState[productType]
	if !ok {
		return false, fmt.Errorf("engine.OrderManager.MarketState: %s: %w", productType, domain.ErrUnknownMarket)
	}
	return state, nil
}

// SetMarketState sets the open/closed state for a product type.
func (m *OrderManager) SetMarketState(productType string, open bool) {
	slog.Info("changing market state", "product_type", productType, "open", open)
	m.marketState[productType] = open
}

// Stop persists the orders snapshot. The registry is kept.
func (m *OrderManager) Stop(ctx context.Context, ts time.Time) error {
	slog.Info("order manager stop", "id", m.id)
	return m.saveOrders(ctx, ts)
}

// EndOfDay persists the orders snapshot and clears the registry for the
// next day.
func (m *OrderManager) EndOfDay(ctx context.Context, ts time.Time) error {
	slog.Info("order manager end of day", "id", m.id)
	if err := m.saveOrders(ctx, ts); err != nil {
		return err
	}
	m.orderIDs = nil
	m.orders = make(map[string]*domain.Order)
	return nil
}

func (m *OrderManager) saveOrders(ctx context.Context, ts time.Time) error {
	if err := m.store.InsertOrders(ctx, m.id, ts, m.OrdersSnapshot(Filter{})); err != nil {
		return fmt.Errorf("engine.OrderManager.saveOrders: %w", err)
	}
	return nil
}
