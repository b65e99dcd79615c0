package strategy

import (
	"time"

	"github.com/alejandrodnm/tradesim/internal/engine"
)

// MeanReversion is an intent-driven strategy: it declares a target
// position against the portfolio instead of working its own orders. The
// target is long when price is below the moving average and flat
// otherwise; the portfolio turns the target into orders.
type MeanReversion struct {
	*engine.Base
}

// NewMeanReversion builds the strategy. Parameters: window (default 5)
// and target (default 50).
func NewMeanReversion(id string, deps engine.Deps) engine.Strategy {
	return &MeanReversion{Base: engine.NewBase(id, deps)}
}

func (s *MeanReversion) window() int {
	return intParam(s.Parameters(), "window", 5)
}

func (s *MeanReversion) target() float64 {
	return floatParam(s.Parameters(), "target", 50)
}

func (s *MeanReversion) OnBar(bartime time.Time) error {
	for _, t := range s.SymbolTuples() {
		bars, err := s.MarketData().Bars(t.ProductType, t.Symbol, t.Frequency,
			time.Time{}, bartime)
		if err != nil {
			return err
		}
		valid := validBars(bars)
		if len(valid) < s.window() {
			continue
		}

		window := valid[len(valid)-s.window():]
		sum := 0.0
		for _, b := range window {
			sum += *b.Close
		}
		mean := sum / float64(len(window))
		last := *valid[len(valid)-1].Close

		target := 0.0
		if last < mean {
			target = s.target()
		}
		if err := s.SetIntent(t.ProductType, t.Symbol, target); err != nil {
			return err
		}
	}
	return nil
}
