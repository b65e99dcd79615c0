package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/tradesim/internal/ports"
	"golang.org/x/time/rate"
)

// SimRunner is the outermost object of a simulation. It owns the engine
// objects, accepts strategies and portfolios, and drives the event
// processor over a sequence of bartimes.
type SimRunner struct {
	id string

	store ports.Store
	om    *OrderManager
	risk  *Risk
	pm    *PositionManager

	md            ports.MarketData
	calendar      ports.Calendar
	liveFrequency string

	broker   ports.Broker
	exchange ports.Exchange

	strategyIDs  []string
	strategies   map[string]Strategy
	portfolioIDs []string
	portfolios   map[string]*Portfolio

	looper *EventProcessor

	// Optional pacing of the bar loop, nil runs at full speed.
	Limiter *rate.Limiter
}

// NewSimRunner creates a simulation runner with its order manager, risk
// and position manager. The broker and exchange are attached separately
// because they need the order manager reference.
func NewSimRunner(id string, store ports.Store, maxOrderQuantity float64) *SimRunner {
	if id == "" {
		id = "simulation"
	}
	r := &SimRunner{
		id:         id,
		store:      store,
		strategies: make(map[string]Strategy),
		portfolios: make(map[string]*Portfolio),
	}
	r.om = NewOrderManager(id, store)
	r.risk = NewRisk(r.om, maxOrderQuantity)
	r.pm = NewPositionManager(id, r.om, store)
	slog.Info("sim runner initialized", "id", id)
	return r
}

func (r *SimRunner) ID() string                        { return r.id }
func (r *SimRunner) OrderManager() *OrderManager       { return r.om }
func (r *SimRunner) Risk() *Risk                       { return r.risk }
func (r *SimRunner) PositionManager() *PositionManager { return r.pm }
func (r *SimRunner) MarketData() ports.MarketData      { return r.md }

// SetupMarketData connects the market data facade and calendar to the
// runner and the position manager.
func (r *SimRunner) SetupMarketData(md ports.MarketData, calendar ports.Calendar, liveFrequency string) {
	slog.Info("runner market data setup", "id", r.id, "live_frequency", liveFrequency)
	r.md = md
	r.calendar = calendar
	r.liveFrequency = liveFrequency
	r.pm.SetupMarketData(md, calendar, liveFrequency)
}

// SetupExchange attaches the simulated exchange and the broker in front
// of it.
func (r *SimRunner) SetupExchange(exchange ports.Exchange, broker ports.Broker) {
	r.exchange = exchange
	r.broker = broker
}

// AddEODMetric registers an end of day metric with the position manager.
// Metrics run in registration order, so register dependencies first.
func (r *SimRunner) AddEODMetric(id string, metric ports.Metric) {
	r.pm.AddEODMetric(id, metric)
}

// AddPortfolio adds a portfolio to the runner. Adding an existing id is
// a no-op.
func (r *SimRunner) AddPortfolio(portfolioID string) *Portfolio {
	if p, ok := r.portfolios[portfolioID]; ok {
		return p
	}
	p := NewPortfolio(portfolioID, r.om, r.pm)
	p.SetupMarketData(r.md, r.liveFrequency)
	r.portfolioIDs = append(r.portfolioIDs, portfolioID)
	r.portfolios[portfolioID] = p
	return p
}

// Portfolio returns an attached portfolio by id, nil if absent.
func (r *SimRunner) Portfolio(portfolioID string) *Portfolio {
	return r.portfolios[portfolioID]
}

// AddStrategy attaches a strategy to the runner and the given portfolio.
// Market data must be set up first.
func (r *SimRunner) AddStrategy(s Strategy, portfolioID string) error {
	if r.md == nil {
		return fmt.Errorf("engine.SimRunner.AddStrategy: market data must be set up before adding strategies")
	}
	slog.Info("adding strategy", "strategy_id", s.ID(), "portfolio", portfolioID)
	if _, ok := r.strategies[s.ID()]; !ok {
		r.strategyIDs = append(r.strategyIDs, s.ID())
	}
	r.strategies[s.ID()] = s
	r.AddPortfolio(portfolioID).AddStrategy(s)
	return nil
}

// Strategy returns an attached strategy by id, nil if absent.
func (r *SimRunner) Strategy(strategyID string) Strategy {
	return r.strategies[strategyID]
}

// ProductTypes returns the union of product types registered by the
// attached strategies, in first-registration order.
func (r *SimRunner) ProductTypes() []string {
	var out []string
	seen := make(map[string]bool)
	for _, id := range r.strategyIDs {
		for pt := range r.strategies[id].Symbols() {
			if !seen[pt] {
				seen[pt] = true
				out = append(out, pt)
			}
		}
	}
	return out
}

func (r *SimRunner) orderedStrategies() []Strategy {
	out := make([]Strategy, len(r.strategyIDs))
	for i, id := range r.strategyIDs {
		out[i] = r.strategies[id]
	}
	return out
}

func (r *SimRunner) orderedPortfolios() []*Portfolio {
	out := make([]*Portfolio, len(r.portfolioIDs))
	for i, id := range r.portfolioIDs {
		out[i] = r.portfolios[id]
	}
	return out
}

// Run drives the event loop over the bartimes. Day boundaries trigger
// the market close, end of day, begin of day and market open sequences;
// the stop process runs after the last bar.
func (r *SimRunner) Run(ctx context.Context, bartimes []time.Time) error {
	if len(bartimes) == 0 {
		return fmt.Errorf("engine.SimRunner.Run: no bartimes to run")
	}

	r.looper = NewEventProcessor(r.orderedStrategies(), r.orderedPortfolios(),
		r.risk, r.om, r.pm, r.broker, r.md, r.exchange)

	if err := r.looper.Start(); err != nil {
		return err
	}

	productTypes := r.ProductTypes()
	slog.Info("beginning run", "start", bartimes[0], "end", bartimes[len(bartimes)-1])

	var priorBar time.Time
	for _, bartime := range bartimes {
		if r.Limiter != nil {
			if err := r.Limiter.Wait(ctx); err != nil {
				return fmt.Errorf("engine.SimRunner.Run: %w", err)
			}
		} else if err := ctx.Err(); err != nil {
			return fmt.Errorf("engine.SimRunner.Run: %w", err)
		}

		slog.Info("running bar", "bartime", bartime)
		switch {
		case priorBar.IsZero():
			if err := r.md.SetBartime(bartime); err != nil {
				return fmt.Errorf("engine.SimRunner.Run: %w", err)
			}
			if err := r.looper.BeginOfDay(ctx); err != nil {
				return err
			}
			if err := r.looper.MarketOpen(productTypes); err != nil {
				return err
			}
		case newDay(priorBar, bartime):
			if err := r.looper.MarketClose(productTypes); err != nil {
				return err
			}
			if err := r.looper.EndOfDay(ctx, productTypes); err != nil {
				return err
			}
			if err := r.md.SetBartime(bartime); err != nil {
				return fmt.Errorf("engine.SimRunner.Run: %w", err)
			}
			if err := r.looper.BeginOfDay(ctx); err != nil {
				return err
			}
			if err := r.looper.MarketOpen(productTypes); err != nil {
				return err
			}
		default:
			if err := r.md.SetBartime(bartime); err != nil {
				return fmt.Errorf("engine.SimRunner.Run: %w", err)
			}
		}

		if err := r.looper.ProcessBar(productTypes, r.liveFrequency); err != nil {
			return err
		}
		priorBar = bartime
	}

	return r.looper.Stop(ctx)
}

func newDay(prior, current time.Time) bool {
	py, pm, pd := prior.UTC().Date()
	cy, cm, cd := current.UTC().Date()
	return time.Date(cy, cm, cd, 0, 0, 0, 0, time.UTC).After(time.Date(py, pm, pd, 0, 0, 0, 0, time.UTC))
}

// Bartimes builds the bar sequence for a date range: every day from
// start through end excluding weekends, bars from open through close
// inclusive at the given step. Offsets are from midnight UTC.
func Bartimes(start, end time.Time, open, close, step time.Duration) []time.Time {
	var out []time.Time
	sy, sm, sd := start.UTC().Date()
	ey, em, ed := end.UTC().Date()
	day := time.Date(sy, sm, sd, 0, 0, 0, 0, time.UTC)
	last := time.Date(ey, em, ed, 0, 0, 0, 0, time.UTC)
	for !day.After(last) {
		if wd := day.Weekday(); wd != time.Saturday && wd != time.Sunday {
			for offset := open; offset <= close; offset += step {
				out = append(out, day.Add(offset))
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	return out
}
