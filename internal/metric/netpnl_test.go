package metric

import (
	"context"
	"testing"
	"time"

	"github.com/alejandrodnm/tradesim/internal/domain"
	"github.com/alejandrodnm/tradesim/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopStore struct{}

func (nopStore) InsertOrders(context.Context, string, time.Time, []domain.OrderSnapshot) error {
	return nil
}

func (nopStore) InsertPositionsSnapshot(context.Context, string, time.Time, []domain.PositionSnapshot) error {
	return nil
}

func (nopStore) InsertPositions(context.Context, string, []domain.PositionRecord) error { return nil }

func (nopStore) GetPositions(context.Context, string, *time.Time) ([]domain.PositionRecord, error) {
	return nil, nil
}

func (nopStore) MaxDatetime(context.Context, string) (*time.Time, error) { return nil, nil }

func newTestPositionManager(t *testing.T) *engine.PositionManager {
	t.Helper()
	om := engine.NewOrderManager("test", nopStore{})
	return engine.NewPositionManager("test", om, nopStore{})
}

func TestNetPnLSumsAcrossPositions(t *testing.T) {
	pm := newTestPositionManager(t)
	bartime := time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC)
	require.NoError(t, pm.EnterTrade("strategy.s1", "s1", bartime,
		"stock", "AAPL", domain.Buy, 10, 100, -0.1, "o1", 1))
	require.NoError(t, pm.EnterTrade("strategy.s2", "s2", bartime,
		"stock", "MSFT", domain.Sell, 5, 200, -0.05, "o2", 2))

	positions := pm.Positions()
	require.Len(t, positions, 2)
	positions[0].NetPnL = 12.5
	positions[1].NetPnL = -2.5

	m := NewNetPnL(pm)
	ts := time.Date(2024, 1, 2, 21, 0, 0, 0, time.UTC)
	require.NoError(t, m.Calculate(ts))

	got, ok := m.Value(ts)
	require.True(t, ok)
	assert.InDelta(t, 10.0, got, 1e-9)
	assert.Equal(t, []time.Time{ts}, m.Series())
}

func TestNetPnLRecalculationOverwrites(t *testing.T) {
	pm := newTestPositionManager(t)
	bartime := time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC)
	require.NoError(t, pm.EnterTrade("strategy.s1", "s1", bartime,
		"stock", "AAPL", domain.Buy, 10, 100, 0, "o1", 1))

	m := NewNetPnL(pm)
	ts := time.Date(2024, 1, 2, 21, 0, 0, 0, time.UTC)
	require.NoError(t, m.Calculate(ts))

	pm.Positions()[0].NetPnL = 7
	require.NoError(t, m.Calculate(ts))

	got, ok := m.Value(ts)
	require.True(t, ok)
	assert.Equal(t, 7.0, got)
	assert.Len(t, m.Series(), 1)
}

func TestNetPnLEmptyBook(t *testing.T) {
	m := NewNetPnL(newTestPositionManager(t))
	ts := time.Date(2024, 1, 2, 21, 0, 0, 0, time.UTC)
	require.NoError(t, m.Calculate(ts))
	got, ok := m.Value(ts)
	require.True(t, ok)
	assert.Zero(t, got)
}
