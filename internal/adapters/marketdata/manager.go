// Package marketdata implements the market data facade over pluggable
// bar feeds.
package marketdata

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/tradesim/internal/domain"
)

// Feed supplies raw bars for a symbol between two datetimes inclusive.
type Feed interface {
	Bars(productType, symbol, frequency string, start, end time.Time) ([]domain.Bar, error)
}

// Manager implements ports.MarketData. It keeps one in-memory series per
// registered (productType, symbol, frequency) and fills it from the feed
// as the bartime advances. Bars are appended in datetime order; a bar
// the feed does not have is stored empty so the series has no gaps.
type Manager struct {
	feed    Feed
	bartime time.Time

	tuples []domain.SymbolTuple // registration order
	series map[domain.SymbolTuple][]domain.Bar
}

// NewManager creates a market data manager over a feed.
func NewManager(feed Feed) *Manager {
	return &Manager{
		feed:   feed,
		series: make(map[domain.SymbolTuple][]domain.Bar),
	}
}

// AddSymbols registers symbols at a frequency. Re-adding is a no-op.
func (m *Manager) AddSymbols(productType string, symbols []string, frequency string) {
	for _, symbol := range symbols {
		t := domain.SymbolTuple{ProductType: productType, Symbol: symbol, Frequency: frequency}
		if _, ok := m.series[t]; ok {
			continue
		}
		slog.Info("registering symbol", "product_type", productType, "symbol", symbol, "frequency", frequency)
		m.tuples = append(m.tuples, t)
		m.series[t] = nil
	}
}

// Symbols returns the registered symbols for a product type and
// frequency, in registration order.
func (m *Manager) Symbols(productType, frequency string) []string {
	var out []string
	for _, t := range m.tuples {
		if t.ProductType == productType && t.Frequency == frequency {
			out = append(out, t.Symbol)
		}
	}
	return out
}

// barKey is the series datetime a frequency uses for the current bartime.
// Daily bars key on the date at midnight UTC.
func barKey(frequency string, ts time.Time) time.Time {
	if frequency == domain.Freq1D {
		y, mo, d := ts.UTC().Date()
		return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
	}
	return ts
}

// appendBar appends the bar for ts to the series if it is not already
// there. Missing feed data is stored as an empty bar.
func (m *Manager) appendBar(t domain.SymbolTuple, ts time.Time) error {
	series := m.series[t]
	if n := len(series); n > 0 && !series[n-1].Datetime.Before(ts) {
		return nil
	}

	bars, err := m.feed.Bars(t.ProductType, t.Symbol, t.Frequency, ts, ts)
	if err != nil {
		return fmt.Errorf("marketdata.Manager.appendBar: %w", err)
	}
	if len(bars) == 0 {
		m.series[t] = append(series, domain.Bar{Datetime: ts})
		return nil
	}
	m.series[t] = append(series, bars[0])
	return nil
}

// Update pulls the bar for the current bartime into the series of the
// given symbols. An empty symbol list updates every registered symbol of
// the product type at the frequency.
func (m *Manager) Update(productType, frequency string, symbols ...string) error {
	if len(symbols) == 0 {
		symbols = m.Symbols(productType, frequency)
	}
	ts := barKey(frequency, m.bartime)
	for _, symbol := range symbols {
		t := domain.SymbolTuple{ProductType: productType, Symbol: symbol, Frequency: frequency}
		if _, ok := m.series[t]; !ok {
			return fmt.Errorf("marketdata.Manager.Update: (%s, %s, %s): %w",
				productType, symbol, frequency, domain.ErrNotRegistered)
		}
		if err := m.appendBar(t, ts); err != nil {
			return err
		}
	}
	return nil
}

// Extend pulls the bar for the current bartime's date into the series.
// Used at end of day to extend the daily series with today's bar.
func (m *Manager) Extend(productType, frequency string, symbols ...string) error {
	return m.Update(productType, frequency, symbols...)
}

// LoadHistory loads bars from start through the current bartime and
// prepends any the series does not yet have.
func (m *Manager) LoadHistory(productType, frequency string, symbols []string, start time.Time) error {
	end := barKey(frequency, m.bartime)
	for _, symbol := range symbols {
		t := domain.SymbolTuple{ProductType: productType, Symbol: symbol, Frequency: frequency}
		if _, ok := m.series[t]; !ok {
			return fmt.Errorf("marketdata.Manager.LoadHistory: (%s, %s, %s): %w",
				productType, symbol, frequency, domain.ErrNotRegistered)
		}

		bars, err := m.feed.Bars(productType, symbol, frequency, start, end)
		if err != nil {
			return fmt.Errorf("marketdata.Manager.LoadHistory: %w", err)
		}

		existing := make(map[time.Time]bool, len(m.series[t]))
		for _, bar := range m.series[t] {
			existing[bar.Datetime] = true
		}
		var merged []domain.Bar
		for _, bar := range bars {
			if !existing[bar.Datetime] {
				merged = append(merged, bar)
			}
		}
		if len(merged) > 0 {
			m.series[t] = mergeSorted(merged, m.series[t])
		}
	}
	return nil
}

func mergeSorted(a, b []domain.Bar) []domain.Bar {
	out := make([]domain.Bar, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i].Datetime.Before(b[j].Datetime) {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}

// Bar returns the bar at an exact datetime.
func (m *Manager) Bar(productType, symbol, frequency string, ts time.Time) (domain.Bar, error) {
	t := domain.SymbolTuple{ProductType: productType, Symbol: symbol, Frequency: frequency}
	for _, bar := range m.series[t] {
		if bar.Datetime.Equal(ts) {
			return bar, nil
		}
	}
	return domain.Bar{}, fmt.Errorf("marketdata.Manager.Bar: no bar for (%s, %s, %s) at %s",
		productType, symbol, frequency, ts)
}

// Bars returns the bars between start and end inclusive.
func (m *Manager) Bars(productType, symbol, frequency string, start, end time.Time) ([]domain.Bar, error) {
	t := domain.SymbolTuple{ProductType: productType, Symbol: symbol, Frequency: frequency}
	if _, ok := m.series[t]; !ok {
		return nil, fmt.Errorf("marketdata.Manager.Bars: (%s, %s, %s): %w",
			productType, symbol, frequency, domain.ErrNotRegistered)
	}
	var out []domain.Bar
	for _, bar := range m.series[t] {
		if !bar.Datetime.Before(start) && !bar.Datetime.After(end) {
			out = append(out, bar)
		}
	}
	return out, nil
}

// CurrentBar returns the bar at the current bartime.
func (m *Manager) CurrentBar(productType, symbol, frequency string) (domain.Bar, error) {
	return m.Bar(productType, symbol, frequency, barKey(frequency, m.bartime))
}

// LastValidBar returns the most recent bar at or before the current
// bartime that has a close.
func (m *Manager) LastValidBar(productType, symbol, frequency string) (domain.Bar, error) {
	t := domain.SymbolTuple{ProductType: productType, Symbol: symbol, Frequency: frequency}
	series, ok := m.series[t]
	if !ok {
		return domain.Bar{}, fmt.Errorf("marketdata.Manager.LastValidBar: (%s, %s, %s): %w",
			productType, symbol, frequency, domain.ErrNotRegistered)
	}
	key := barKey(frequency, m.bartime)
	for i := len(series) - 1; i >= 0; i-- {
		if series[i].Datetime.After(key) {
			continue
		}
		if series[i].Valid() {
			return series[i], nil
		}
	}
	return domain.Bar{}, fmt.Errorf("marketdata.Manager.LastValidBar: no valid bar for (%s, %s, %s)",
		productType, symbol, frequency)
}

// View returns the full series for a symbol.
func (m *Manager) View(productType, symbol, frequency string) ([]domain.Bar, error) {
	t := domain.SymbolTuple{ProductType: productType, Symbol: symbol, Frequency: frequency}
	series, ok := m.series[t]
	if !ok {
		return nil, fmt.Errorf("marketdata.Manager.View: (%s, %s, %s): %w",
			productType, symbol, frequency, domain.ErrNotRegistered)
	}
	return append([]domain.Bar{}, series...), nil
}

// Bartime returns the engine's logical clock.
func (m *Manager) Bartime() time.Time { return m.bartime }

// SetBartime advances the logical clock. Moving backwards is an error.
func (m *Manager) SetBartime(ts time.Time) error {
	if !m.bartime.IsZero() && !ts.After(m.bartime) {
		return fmt.Errorf("marketdata.Manager.SetBartime: %s does not advance %s: %w",
			ts, m.bartime, domain.ErrInvalidTimestamp)
	}
	m.bartime = ts
	return nil
}
