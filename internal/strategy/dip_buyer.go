package strategy

import (
	"time"

	"github.com/alejandrodnm/tradesim/internal/domain"
	"github.com/alejandrodnm/tradesim/internal/engine"
)

// DipBuyer is a direct-order strategy: it buys when the bar closes down
// from the prior close and sells when it closes up, working LIMIT orders
// at the last close. Open orders from prior bars are canceled before a
// new one is placed.
type DipBuyer struct {
	*engine.Base
}

// NewDipBuyer builds the strategy. Parameters: quantity (default 25).
func NewDipBuyer(id string, deps engine.Deps) engine.Strategy {
	return &DipBuyer{Base: engine.NewBase(id, deps)}
}

func (s *DipBuyer) quantity() float64 {
	return floatParam(s.Parameters(), "quantity", 25)
}

func (s *DipBuyer) OnBar(bartime time.Time) error {
	for _, t := range s.SymbolTuples() {
		open := s.OrdersList(engine.Filter{
			States:       domain.OpenStates(),
			ProductTypes: []string{t.ProductType},
			Symbols:      []string{t.Symbol},
		})
		for _, o := range open {
			if err := s.CancelOrder(o); err != nil {
				return err
			}
		}

		bars, err := s.MarketData().Bars(t.ProductType, t.Symbol, t.Frequency,
			time.Time{}, bartime)
		if err != nil {
			return err
		}
		valid := validBars(bars)
		if len(valid) < 2 {
			continue
		}
		last, prior := valid[len(valid)-1], valid[len(valid)-2]

		side := domain.Sell
		if *last.Close < *prior.Close {
			side = domain.Buy
		}
		if _, err := s.Order(t.ProductType, t.Symbol, side, s.quantity(),
			domain.OrderTypeLimit, *last.Close); err != nil {
			return err
		}
	}
	return nil
}

func validBars(bars []domain.Bar) []domain.Bar {
	var out []domain.Bar
	for _, b := range bars {
		if b.Valid() {
			out = append(out, b)
		}
	}
	return out
}
