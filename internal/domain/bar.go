package domain

import "time"

// Frequencies in standard form.
const (
	Freq1Min = "1min"
	Freq1D   = "1D"
)

// Bar is a single time-bucket of market data for one
// (productType, symbol, frequency). Any numeric field may be absent.
type Bar struct {
	Datetime time.Time
	Open     *float64
	High     *float64
	Low      *float64
	Close    *float64
	Volume   *float64
}

// Valid reports whether the bar has a close price.
func (b Bar) Valid() bool {
	return b.Close != nil
}

// SymbolTuple identifies a market data series.
type SymbolTuple struct {
	ProductType string
	Symbol      string
	Frequency   string
}

// Float returns a pointer to v. Convenience for building bars with
// nullable fields.
func Float(v float64) *float64 {
	return &v
}
