// Package metric implements end of day metrics for the position manager.
package metric

import (
	"log/slog"
	"time"

	"github.com/alejandrodnm/tradesim/internal/engine"
)

// NetPnL records the total net pnl of the position book at each end of
// day calculation.
type NetPnL struct {
	pm     *engine.PositionManager
	dates  []time.Time
	values map[time.Time]float64
}

// NewNetPnL creates the metric over a position manager.
func NewNetPnL(pm *engine.PositionManager) *NetPnL {
	return &NetPnL{pm: pm, values: make(map[time.Time]float64)}
}

// Calculate sums the net pnl across all position rows and records it for
// the timestamp.
func (m *NetPnL) Calculate(ts time.Time) error {
	total := 0.0
	for _, p := range m.pm.Positions() {
		total += p.NetPnL
	}
	slog.Info("net pnl metric", "datetime", ts, "net_pnl", total)
	if _, ok := m.values[ts]; !ok {
		m.dates = append(m.dates, ts)
	}
	m.values[ts] = total
	return nil
}

// Value returns the recorded net pnl for a timestamp.
func (m *NetPnL) Value(ts time.Time) (float64, bool) {
	v, ok := m.values[ts]
	return v, ok
}

// Series returns the recorded timestamps in calculation order.
func (m *NetPnL) Series() []time.Time {
	return append([]time.Time{}, m.dates...)
}
