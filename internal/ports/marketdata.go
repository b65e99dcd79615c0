package ports

import (
	"time"

	"github.com/alejandrodnm/tradesim/internal/domain"
)

// MarketData is the facade over market data the engine consumes. The
// engine never reaches below it; ingestion (CSV, databases, live feeds)
// lives behind implementations of this interface.
//
// Bartime is the monotonic logical clock of the engine. SetBartime must
// reject assignments that do not advance it.
type MarketData interface {
	AddSymbols(productType string, symbols []string, frequency string)
	Update(productType, frequency string, symbols ...string) error
	Extend(productType, frequency string, symbols ...string) error
	LoadHistory(productType, frequency string, symbols []string, start time.Time) error

	Bar(productType, symbol, frequency string, ts time.Time) (domain.Bar, error)
	Bars(productType, symbol, frequency string, start, end time.Time) ([]domain.Bar, error)
	CurrentBar(productType, symbol, frequency string) (domain.Bar, error)
	LastValidBar(productType, symbol, frequency string) (domain.Bar, error)
	View(productType, symbol, frequency string) ([]domain.Bar, error)

	Bartime() time.Time
	SetBartime(ts time.Time) error
}
