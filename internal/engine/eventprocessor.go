package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/tradesim/internal/domain"
	"github.com/alejandrodnm/tradesim/internal/ports"
)

// stuckStates are the states an order must never be left in after a bar
// has been fully processed; finding one means a component dropped an
// order on the floor.
var stuckStates = []domain.State{
	domain.StateCreated, domain.StateStaged, domain.StateRiskAccepted,
}

// EventProcessor drives the engine objects through the event loop:
// market open, bars, market close and the day boundary processes.
type EventProcessor struct {
	strategies []Strategy
	portfolios []*Portfolio
	risk       *Risk
	om         *OrderManager
	pm         *PositionManager
	broker     ports.Broker
	md         ports.MarketData

	// nil when running live; in simulation the exchange matching loop is
	// driven from here.
	exchange ports.Exchange
}

// NewEventProcessor wires the engine objects together. Pass a nil
// exchange when running live.
func NewEventProcessor(strategies []Strategy, portfolios []*Portfolio, risk *Risk,
	om *OrderManager, pm *PositionManager, broker ports.Broker, md ports.MarketData,
	exchange ports.Exchange) *EventProcessor {
	slog.Info("initializing event processor")
	return &EventProcessor{
		strategies: strategies,
		portfolios: portfolios,
		risk:       risk,
		om:         om,
		pm:         pm,
		broker:     broker,
		md:         md,
		exchange:   exchange,
	}
}

// ProcessCancels delivers CANCELED not-yet-closed orders to the
// originating strategies and then closes them. Cancels originated by a
// portfolio have no strategy callback and are just closed.
func (ep *EventProcessor) ProcessCancels() error {
	slog.Info("processing cancels")
	orders := ep.om.CancelsToProcess()

	byOriginator := make(map[string][]*domain.Order)
	for _, o := range orders {
		byOriginator[o.OriginatorID()] = append(byOriginator[o.OriginatorID()], o)
	}
	for _, s := range ep.strategies {
		originatorID := "strategy." + s.ID()
		if cancels, ok := byOriginator[originatorID]; ok {
			slog.Info("calling on cancels", "strategy_id", s.ID())
			if err := s.OnCancels(ep.md.Bartime(), cancels); err != nil {
				return fmt.Errorf("engine.EventProcessor.ProcessCancels: %w", err)
			}
		}
	}
	for _, o := range orders {
		if err := ep.om.CloseOrder(o); err != nil {
			return fmt.Errorf("engine.EventProcessor.ProcessCancels: %w", err)
		}
	}
	return nil
}

// ProcessFills books the unbooked fills into positions and delivers the
// booked orders to the originating strategies.
func (ep *EventProcessor) ProcessFills() error {
	slog.Info("processing fills")
	booked, err := ep.pm.BookFills()
	if err != nil {
		return fmt.Errorf("engine.EventProcessor.ProcessFills: %w", err)
	}
	for _, s := range ep.strategies {
		originatorID := "strategy." + s.ID()
		if fills, ok := booked[originatorID]; ok {
			slog.Info("calling on fills", "strategy_id", s.ID())
			if err := s.OnFills(ep.md.Bartime(), fills); err != nil {
				return fmt.Errorf("engine.EventProcessor.ProcessFills: %w", err)
			}
		}
	}
	return nil
}

// CheckStuckOrders halts the loop when an order sits in a state that
// should have been drained by the end of the bar.
func (ep *EventProcessor) CheckStuckOrders() error {
	slog.Info("checking for stuck orders")
	for _, state := range stuckStates {
		if orders := ep.om.OrdersList(Filter{States: []domain.State{state}}); len(orders) > 0 {
			return fmt.Errorf("engine.EventProcessor.CheckStuckOrders: %d order(s) in %s: %w",
				len(orders), state, domain.ErrStuckOrder)
		}
	}
	return nil
}

// ProcessBar runs the full per-bar pipeline for the current bartime:
// update data, run the exchange, reconcile broker state, deliver cancels
// and fills, call the strategies, stage and risk-check the new orders and
// send them to market.
func (ep *EventProcessor) ProcessBar(productTypes []string, frequency string) error {
	bartime := ep.md.Bartime()
	slog.Info("processing bar", "bartime", bartime, "product_types", productTypes, "frequency", frequency)
	for _, pt := range productTypes {
		if err := ep.md.Update(pt, frequency); err != nil {
			return fmt.Errorf("engine.EventProcessor.ProcessBar: %w", err)
		}
	}

	// Strategies may read PnL during on bar.
	if err := ep.pm.UpdatePnL(); err != nil {
		return err
	}

	if ep.exchange != nil {
		slog.Info("running exchange matching")
		if err := ep.exchange.ProcessOrders(ep.md); err != nil {
			return fmt.Errorf("engine.EventProcessor.ProcessBar: %w", err)
		}
	}

	if err := ep.broker.UpdateOrderStates(); err != nil {
		return fmt.Errorf("engine.EventProcessor.ProcessBar: %w", err)
	}

	if err := ep.ProcessCancels(); err != nil {
		return err
	}

	if err := ep.ProcessFills(); err != nil {
		return err
	}
	if err := ep.pm.UpdatePnL(); err != nil {
		return err
	}

	for _, s := range ep.strategies {
		if err := s.OnBar(bartime); err != nil {
			return fmt.Errorf("engine.EventProcessor.ProcessBar: strategy %s: %w", s.ID(), err)
		}
	}

	for _, p := range ep.portfolios {
		if err := p.ProcessOrders(); err != nil {
			return err
		}
		if err := ep.risk.ProcessPortfolioOrders(p); err != nil {
			return err
		}
	}

	if err := ep.broker.SendOrders(); err != nil {
		return fmt.Errorf("engine.EventProcessor.ProcessBar: %w", err)
	}

	return ep.CheckStuckOrders()
}

// MarketOpen opens the market state for the product types and calls the
// strategy market open callbacks.
func (ep *EventProcessor) MarketOpen(productTypes []string) error {
	slog.Info("running market open process")
	for _, pt := range productTypes {
		ep.om.SetMarketState(pt, true)
	}
	for _, s := range ep.strategies {
		if err := s.OnMarketOpen(ep.md.Bartime()); err != nil {
			return fmt.Errorf("engine.EventProcessor.MarketOpen: strategy %s: %w", s.ID(), err)
		}
	}
	return nil
}

// MarketClose closes the market state, cancels the residual open orders
// on the exchange, reconciles and delivers the cancels, then calls the
// strategy market close callbacks. Any order still open afterwards is an
// error.
func (ep *EventProcessor) MarketClose(productTypes []string) error {
	slog.Info("running market close process")
	for _, pt := range productTypes {
		ep.om.SetMarketState(pt, false)
	}

	if ep.exchange != nil {
		if err := ep.exchange.MarketClose(ep.md.Bartime()); err != nil {
			return fmt.Errorf("engine.EventProcessor.MarketClose: %w", err)
		}
	}

	if err := ep.broker.UpdateOrderStates(); err != nil {
		return fmt.Errorf("engine.EventProcessor.MarketClose: %w", err)
	}

	if err := ep.ProcessCancels(); err != nil {
		return err
	}

	// Market state is closed so no callback can create live orders.
	for _, s := range ep.strategies {
		if err := s.OnMarketClose(ep.md.Bartime()); err != nil {
			return fmt.Errorf("engine.EventProcessor.MarketClose: strategy %s: %w", s.ID(), err)
		}
	}

	if open := ep.om.OrdersList(Filter{States: domain.OpenStates()}); len(open) > 0 {
		return fmt.Errorf("engine.EventProcessor.MarketClose: %d order(s): %w",
			len(open), domain.ErrResidualOpenOrders)
	}
	return nil
}

// BeginOfDay rehydrates positions and calls the strategy begin of day
// callbacks.
func (ep *EventProcessor) BeginOfDay(ctx context.Context) error {
	slog.Info("running begin of day process")
	if err := ep.pm.BeginOfDay(ctx); err != nil {
		return err
	}
	for _, s := range ep.strategies {
		if err := s.OnBeginOfDay(ep.md.Bartime()); err != nil {
			return fmt.Errorf("engine.EventProcessor.BeginOfDay: strategy %s: %w", s.ID(), err)
		}
	}
	return nil
}

// EndOfDay extends the daily bars, runs the strategy end of day
// callbacks and the position and order manager end of day processes.
func (ep *EventProcessor) EndOfDay(ctx context.Context, productTypes []string) error {
	slog.Info("running end of day process")
	for _, pt := range productTypes {
		if err := ep.md.Extend(pt, domain.Freq1D); err != nil {
			return fmt.Errorf("engine.EventProcessor.EndOfDay: %w", err)
		}
	}

	for _, s := range ep.strategies {
		if err := s.OnEndOfDay(ep.md.Bartime()); err != nil {
			return fmt.Errorf("engine.EventProcessor.EndOfDay: strategy %s: %w", s.ID(), err)
		}
	}

	if err := ep.pm.EndOfDay(ctx); err != nil {
		return err
	}
	return ep.om.EndOfDay(ctx, ep.md.Bartime())
}

// Start runs the strategy initialize callbacks while symbols and
// parameters are still mutable, then marks the strategies started and
// runs their start callbacks.
func (ep *EventProcessor) Start() error {
	slog.Info("running start process")
	for _, s := range ep.strategies {
		if err := s.OnInitialize(); err != nil {
			return fmt.Errorf("engine.EventProcessor.Start: strategy %s: %w", s.ID(), err)
		}
	}
	for _, s := range ep.strategies {
		if err := s.markStarted(); err != nil {
			return err
		}
		if err := s.OnStart(); err != nil {
			return fmt.Errorf("engine.EventProcessor.Start: strategy %s: %w", s.ID(), err)
		}
	}
	return nil
}

// Stop runs the strategy stop callbacks and the position and order
// manager stop processes.
func (ep *EventProcessor) Stop(ctx context.Context) error {
	slog.Info("running stop process")
	for _, s := range ep.strategies {
		if err := s.OnStop(ep.md.Bartime()); err != nil {
			return fmt.Errorf("engine.EventProcessor.Stop: strategy %s: %w", s.ID(), err)
		}
	}
	if err := ep.pm.Stop(ctx); err != nil {
		return err
	}
	return ep.om.Stop(ctx, ep.md.Bartime())
}
