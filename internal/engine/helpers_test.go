package engine

import (
	"context"
	"testing"
	"time"

	"github.com/alejandrodnm/tradesim/internal/domain"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory ports.Store for tests.
type fakeStore struct {
	orders    []domain.OrderSnapshot
	snapshots []domain.PositionSnapshot
	positions []domain.PositionRecord
}

func (s *fakeStore) InsertOrders(_ context.Context, _ string, _ time.Time, orders []domain.OrderSnapshot) error {
	s.orders = append(s.orders, orders...)
	return nil
}

func (s *fakeStore) InsertPositionsSnapshot(_ context.Context, _ string, _ time.Time, positions []domain.PositionSnapshot) error {
	s.snapshots = append(s.snapshots, positions...)
	return nil
}

func (s *fakeStore) InsertPositions(_ context.Context, _ string, positions []domain.PositionRecord) error {
	s.positions = append(s.positions, positions...)
	return nil
}

func (s *fakeStore) GetPositions(_ context.Context, _ string, ts *time.Time) ([]domain.PositionRecord, error) {
	if ts == nil {
		return append([]domain.PositionRecord{}, s.positions...), nil
	}
	var out []domain.PositionRecord
	for _, rec := range s.positions {
		if rec.Datetime.Equal(*ts) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *fakeStore) MaxDatetime(_ context.Context, _ string) (*time.Time, error) {
	var max *time.Time
	for i := range s.positions {
		if max == nil || s.positions[i].Datetime.After(*max) {
			ts := s.positions[i].Datetime
			max = &ts
		}
	}
	return max, nil
}

// fakeCalendar treats every day as a business day.
type fakeCalendar struct{}

func (fakeCalendar) PriorBusinessDay(_ string, ts time.Time, n int) time.Time {
	y, mo, d := ts.UTC().AddDate(0, 0, -n).Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}

func newManagedOrder(t *testing.T, om *OrderManager, strategyID, symbol string, side domain.Side, quantity, price float64) *domain.Order {
	t.Helper()
	o, err := domain.NewOrder("orig-uuid-"+strategyID, "strategy."+strategyID, "strat-uuid-"+strategyID,
		strategyID, "stock", symbol, side, quantity, domain.OrderTypeLimit, domain.Details{"price": price})
	require.NoError(t, err)
	require.NoError(t, om.NewOrder(o))
	return o
}

func advanceTo(t *testing.T, om *OrderManager, o *domain.Order, states ...domain.State) {
	t.Helper()
	for _, s := range states {
		require.NoError(t, om.ChangeState(o, s))
	}
}
