package engine

import (
	"context"
	"testing"
	"time"

	"github.com/alejandrodnm/tradesim/internal/adapters/marketdata"
	"github.com/alejandrodnm/tradesim/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pmFixture struct {
	store *fakeStore
	om    *OrderManager
	pm    *PositionManager
	md    *marketdata.Manager
	feed  *marketdata.StaticFeed
}

// newPMFixture wires a position manager with one day of data: the prior
// daily close at 98 and a live bar closing at 100.
func newPMFixture(t *testing.T) *pmFixture {
	t.Helper()
	store := &fakeStore{}
	om := NewOrderManager("test", store)
	pm := NewPositionManager("test", om, store)

	feed := marketdata.NewStaticFeed()
	bartime := time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC)
	priorDay := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	feed.AddBars("stock", "AAPL", domain.Freq1D, domain.Bar{
		Datetime: priorDay,
		Close:    domain.Float(98),
	})
	feed.AddBars("stock", "AAPL", domain.Freq1Min, domain.Bar{
		Datetime: bartime,
		Low:      domain.Float(99),
		High:     domain.Float(101),
		Close:    domain.Float(100),
		Volume:   domain.Float(1000),
	})
	md := marketdata.NewManager(feed)
	pm.SetupMarketData(md, fakeCalendar{}, domain.Freq1Min)
	require.NoError(t, md.SetBartime(bartime))
	return &pmFixture{store: store, om: om, pm: pm, md: md, feed: feed}
}

func TestEnterTradeBuildsPositionRow(t *testing.T) {
	f := newPMFixture(t)
	bartime := f.md.Bartime()

	require.NoError(t, f.pm.EnterTrade("strategy.s1", "s1", bartime, "stock", "AAPL",
		domain.Buy, 10, 100, -0.1, "order-uuid", 1))
	require.NoError(t, f.pm.EnterTrade("strategy.s1", "s1", bartime, "stock", "AAPL",
		domain.Sell, 4, 101, -0.04, "order-uuid", 2))

	trades := f.pm.NewTrades()
	require.Len(t, trades, 2)
	assert.Equal(t, int64(1), trades[0].ID)
	assert.Equal(t, int64(2), trades[1].ID)

	p := f.pm.Position(domain.PositionKey{StrategyID: "s1", ProductType: "stock", Symbol: "AAPL"})
	require.NotNil(t, p)
	assert.Equal(t, 6.0, p.CurrentPosition)
	assert.InDelta(t, -0.14, p.Commission, 1e-9)
}

func TestEnterTradeValidation(t *testing.T) {
	f := newPMFixture(t)
	bartime := f.md.Bartime()

	err := f.pm.EnterTrade("o", "s1", bartime, "stock", "AAPL", domain.Side("hold"), 1, 1, 0, "u", 1)
	assert.ErrorIs(t, err, domain.ErrInvalidSide)

	err = f.pm.EnterTrade("o", "s1", time.Time{}, "stock", "AAPL", domain.Buy, 1, 1, 0, "u", 1)
	assert.ErrorIs(t, err, domain.ErrInvalidTimestamp)
}

func TestEnterTradeFromOrderBooksUnbookedFills(t *testing.T) {
	f := newPMFixture(t)
	bartime := f.md.Bartime()

	o := newManagedOrder(t, f.om, "s1", "AAPL", domain.Buy, 10, 100)
	advanceTo(t, f.om, o, domain.StateStaged, domain.StateRiskAccepted, domain.StateSent,
		domain.StateLive, domain.StatePartiallyFilled)
	require.NoError(t, o.AddFill(1, bartime, bartime, 4, 100, -0.04))

	require.NoError(t, f.pm.EnterTradeFromOrder(o))
	assert.True(t, o.Booked())
	assert.Empty(t, o.UnbookedFills())
	assert.False(t, o.Closed())

	// A second pass books only the new fill.
	require.NoError(t, o.AddFill(2, bartime, bartime, 6, 99, -0.06))
	advanceTo(t, f.om, o, domain.StateFilled)
	require.NoError(t, f.pm.EnterTradeFromOrder(o))
	assert.True(t, o.Closed())
	assert.Len(t, f.pm.NewTrades(), 2)

	p := f.pm.Position(domain.PositionKey{StrategyID: "s1", ProductType: "stock", Symbol: "AAPL"})
	require.NotNil(t, p)
	assert.Equal(t, 10.0, p.CurrentPosition)
}

func TestEnterTradeFromOrderRejectsUnfilledStates(t *testing.T) {
	f := newPMFixture(t)
	o := newManagedOrder(t, f.om, "s1", "AAPL", domain.Buy, 10, 100)
	assert.Error(t, f.pm.EnterTradeFromOrder(o))
}

func TestBookFillsGroupsByOriginator(t *testing.T) {
	f := newPMFixture(t)
	bartime := f.md.Bartime()

	o := newManagedOrder(t, f.om, "s1", "AAPL", domain.Buy, 10, 100)
	advanceTo(t, f.om, o, domain.StateStaged, domain.StateRiskAccepted, domain.StateSent,
		domain.StateLive, domain.StatePartiallyFilled)
	require.NoError(t, o.AddFill(1, bartime, bartime, 4, 100, -0.04))

	booked, err := f.pm.BookFills()
	require.NoError(t, err)
	require.Len(t, booked["strategy.s1"], 1)
	assert.Same(t, o, booked["strategy.s1"][0])

	// Nothing left to book on the next pass.
	booked, err = f.pm.BookFills()
	require.NoError(t, err)
	assert.Empty(t, booked)
}

func TestUpdatePnL(t *testing.T) {
	f := newPMFixture(t)
	bartime := f.md.Bartime()
	require.NoError(t, f.pm.EnterTrade("strategy.s1", "s1", bartime, "stock", "AAPL",
		domain.Buy, 10, 99, -0.1, "u", 1))

	require.NoError(t, f.pm.UpdatePnL())

	p := f.pm.Position(domain.PositionKey{StrategyID: "s1", ProductType: "stock", Symbol: "AAPL"})
	require.NotNil(t, p.PriorClosePrice)
	assert.Equal(t, 98.0, *p.PriorClosePrice)
	require.NotNil(t, p.CurrentPrice)
	assert.Equal(t, 100.0, *p.CurrentPrice)

	// buyPnL = 10 * (98 - 99) = -10; positionPnL = 10 * (100 - 98) = 20
	assert.InDelta(t, -10.0, p.TradePnL, 1e-9)
	assert.InDelta(t, 20.0, p.PositionPnL, 1e-9)
	assert.InDelta(t, 10.0, p.GrossPnL, 1e-9)
	assert.InDelta(t, 9.9, p.NetPnL, 1e-9)
}

func TestUpdatePnLWithEmptyBookIsNoOp(t *testing.T) {
	f := newPMFixture(t)
	require.NoError(t, f.pm.UpdatePnL())
	assert.Empty(t, f.pm.Positions())
}

func TestSaveAndLoadPositions(t *testing.T) {
	f := newPMFixture(t)
	bartime := f.md.Bartime()
	require.NoError(t, f.pm.EnterTrade("strategy.s1", "s1", bartime, "stock", "AAPL",
		domain.Buy, 10, 100, 0, "u", 1))
	require.NoError(t, f.pm.EnterTrade("strategy.s1", "s1", bartime, "stock", "MSFT",
		domain.Buy, 5, 200, 0, "u", 2))
	require.NoError(t, f.pm.EnterTrade("strategy.s1", "s1", bartime, "stock", "MSFT",
		domain.Sell, 5, 201, 0, "u", 3))

	ctx := context.Background()
	require.NoError(t, f.pm.SavePositions(ctx, bartime))
	require.Len(t, f.store.positions, 2)

	require.NoError(t, f.pm.LoadPositions(ctx, &bartime))

	// The flat MSFT row is skipped on load; AAPL is rehydrated as the
	// start position.
	positions := f.pm.Positions()
	require.Len(t, positions, 1)
	assert.Equal(t, "AAPL", positions[0].Key.Symbol)
	assert.Equal(t, 10.0, positions[0].StartPosition)
	assert.Equal(t, 10.0, positions[0].CurrentPosition)
	assert.Equal(t, 0.0, positions[0].NetQuantity)
}

func TestEndOfDayMarksAtDailyClose(t *testing.T) {
	f := newPMFixture(t)
	bartime := f.md.Bartime()
	today := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	f.feed.AddBars("stock", "AAPL", domain.Freq1D, domain.Bar{
		Datetime: today,
		Close:    domain.Float(102),
	})

	require.NoError(t, f.pm.EnterTrade("strategy.s1", "s1", bartime, "stock", "AAPL",
		domain.Buy, 10, 99, 0, "u", 1))
	require.NoError(t, f.pm.UpdatePnL())
	require.NoError(t, f.md.Extend("stock", domain.Freq1D))

	require.NoError(t, f.pm.EndOfDay(context.Background()))

	p := f.pm.Position(domain.PositionKey{StrategyID: "s1", ProductType: "stock", Symbol: "AAPL"})
	require.NotNil(t, p.CurrentPrice)
	assert.Equal(t, 102.0, *p.CurrentPrice)
	assert.Len(t, f.store.positions, 1)
	assert.Len(t, f.store.snapshots, 1)
}

type countingMetric struct {
	calls []time.Time
}

func (m *countingMetric) Calculate(ts time.Time) error {
	m.calls = append(m.calls, ts)
	return nil
}

func TestEODMetricsRunInRegistrationOrder(t *testing.T) {
	f := newPMFixture(t)
	var order []string
	first := metricFunc(func(time.Time) error { order = append(order, "first"); return nil })
	second := metricFunc(func(time.Time) error { order = append(order, "second"); return nil })
	f.pm.AddEODMetric("first", first)
	f.pm.AddEODMetric("second", second)

	require.NoError(t, f.pm.CalculateEODMetrics(f.md.Bartime()))
	assert.Equal(t, []string{"first", "second"}, order)
}

type metricFunc func(ts time.Time) error

func (f metricFunc) Calculate(ts time.Time) error { return f(ts) }

func TestStopPersistsState(t *testing.T) {
	f := newPMFixture(t)
	bartime := f.md.Bartime()
	m := &countingMetric{}
	f.pm.AddEODMetric("count", m)
	require.NoError(t, f.pm.EnterTrade("strategy.s1", "s1", bartime, "stock", "AAPL",
		domain.Buy, 10, 99, 0, "u", 1))

	require.NoError(t, f.pm.Stop(context.Background()))
	assert.Len(t, f.store.positions, 1)
	assert.Len(t, f.store.snapshots, 1)
	assert.Equal(t, []time.Time{bartime}, m.calls)
}

func TestBeginOfDayRehydratesFromLatestSave(t *testing.T) {
	f := newPMFixture(t)
	bartime := f.md.Bartime()
	require.NoError(t, f.pm.EnterTrade("strategy.s1", "s1", bartime, "stock", "AAPL",
		domain.Buy, 10, 99, 0, "u", 1))
	require.NoError(t, f.pm.SavePositions(context.Background(), bartime))

	fresh := NewPositionManager("test", f.om, f.store)
	fresh.SetupMarketData(f.md, fakeCalendar{}, domain.Freq1Min)
	require.NoError(t, fresh.BeginOfDay(context.Background()))

	positions := fresh.Positions()
	require.Len(t, positions, 1)
	assert.Equal(t, 10.0, positions[0].StartPosition)
	require.NotNil(t, positions[0].PriorClosePrice)
	assert.Equal(t, 98.0, *positions[0].PriorClosePrice)
}
