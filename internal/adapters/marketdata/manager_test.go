package marketdata

import (
	"testing"
	"time"

	"github.com/alejandrodnm/tradesim/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bar(ts time.Time, open, high, low, close, volume float64) domain.Bar {
	return domain.Bar{
		Datetime: ts,
		Open:     domain.Float(open),
		High:     domain.Float(high),
		Low:      domain.Float(low),
		Close:    domain.Float(close),
		Volume:   domain.Float(volume),
	}
}

func TestAddSymbolsIsIdempotent(t *testing.T) {
	m := NewManager(NewStaticFeed())
	m.AddSymbols("stock", []string{"AAPL", "MSFT"}, domain.Freq1Min)
	m.AddSymbols("stock", []string{"AAPL"}, domain.Freq1Min)

	assert.Equal(t, []string{"AAPL", "MSFT"}, m.Symbols("stock", domain.Freq1Min))
	assert.Empty(t, m.Symbols("stock", domain.Freq1D))
}

func TestUpdateAppendsCurrentBar(t *testing.T) {
	ts := time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC)
	feed := NewStaticFeed()
	feed.AddBars("stock", "AAPL", domain.Freq1Min, bar(ts, 99, 101, 98, 100, 1000))

	m := NewManager(feed)
	m.AddSymbols("stock", []string{"AAPL"}, domain.Freq1Min)
	require.NoError(t, m.SetBartime(ts))
	require.NoError(t, m.Update("stock", domain.Freq1Min))

	got, err := m.CurrentBar("stock", "AAPL", domain.Freq1Min)
	require.NoError(t, err)
	require.NotNil(t, got.Close)
	assert.Equal(t, 100.0, *got.Close)
}

func TestUpdateFillsGapsWithEmptyBars(t *testing.T) {
	ts := time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC)
	m := NewManager(NewStaticFeed())
	m.AddSymbols("stock", []string{"AAPL"}, domain.Freq1Min)
	require.NoError(t, m.SetBartime(ts))
	require.NoError(t, m.Update("stock", domain.Freq1Min))

	got, err := m.CurrentBar("stock", "AAPL", domain.Freq1Min)
	require.NoError(t, err)
	assert.Equal(t, ts, got.Datetime)
	assert.False(t, got.Valid())
}

func TestUpdateUnregisteredSymbolErrors(t *testing.T) {
	m := NewManager(NewStaticFeed())
	require.NoError(t, m.SetBartime(time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC)))
	err := m.Update("stock", domain.Freq1Min, "AAPL")
	assert.ErrorIs(t, err, domain.ErrNotRegistered)
}

func TestUpdateDoesNotDuplicateBars(t *testing.T) {
	ts := time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC)
	feed := NewStaticFeed()
	feed.AddBars("stock", "AAPL", domain.Freq1Min, bar(ts, 99, 101, 98, 100, 1000))

	m := NewManager(feed)
	m.AddSymbols("stock", []string{"AAPL"}, domain.Freq1Min)
	require.NoError(t, m.SetBartime(ts))
	require.NoError(t, m.Update("stock", domain.Freq1Min))
	require.NoError(t, m.Update("stock", domain.Freq1Min))

	series, err := m.View("stock", "AAPL", domain.Freq1Min)
	require.NoError(t, err)
	assert.Len(t, series, 1)
}

func TestDailyBarsKeyOnMidnight(t *testing.T) {
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	feed := NewStaticFeed()
	feed.AddBars("stock", "AAPL", domain.Freq1D, bar(day, 99, 101, 98, 100, 10000))

	m := NewManager(feed)
	m.AddSymbols("stock", []string{"AAPL"}, domain.Freq1D)
	require.NoError(t, m.SetBartime(day.Add(14*time.Hour+30*time.Minute)))
	require.NoError(t, m.Update("stock", domain.Freq1D))

	got, err := m.CurrentBar("stock", "AAPL", domain.Freq1D)
	require.NoError(t, err)
	assert.Equal(t, day, got.Datetime)
}

func TestSetBartimeMustAdvance(t *testing.T) {
	m := NewManager(NewStaticFeed())
	ts := time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC)
	require.NoError(t, m.SetBartime(ts))
	assert.Equal(t, ts, m.Bartime())

	assert.ErrorIs(t, m.SetBartime(ts), domain.ErrInvalidTimestamp)
	assert.ErrorIs(t, m.SetBartime(ts.Add(-time.Minute)), domain.ErrInvalidTimestamp)
	assert.NoError(t, m.SetBartime(ts.Add(time.Minute)))
}

func TestLastValidBarScansBackwards(t *testing.T) {
	t1 := time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)
	feed := NewStaticFeed()
	feed.AddBars("stock", "AAPL", domain.Freq1Min, bar(t1, 99, 101, 98, 100, 1000))

	m := NewManager(feed)
	m.AddSymbols("stock", []string{"AAPL"}, domain.Freq1Min)
	require.NoError(t, m.SetBartime(t1))
	require.NoError(t, m.Update("stock", domain.Freq1Min))
	require.NoError(t, m.SetBartime(t2))
	require.NoError(t, m.Update("stock", domain.Freq1Min))

	// The bar at t2 is empty so the scan falls back to t1.
	got, err := m.LastValidBar("stock", "AAPL", domain.Freq1Min)
	require.NoError(t, err)
	assert.Equal(t, t1, got.Datetime)
}

func TestLastValidBarNoValidBars(t *testing.T) {
	m := NewManager(NewStaticFeed())
	m.AddSymbols("stock", []string{"AAPL"}, domain.Freq1Min)
	require.NoError(t, m.SetBartime(time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC)))
	require.NoError(t, m.Update("stock", domain.Freq1Min))

	_, err := m.LastValidBar("stock", "AAPL", domain.Freq1Min)
	assert.Error(t, err)
}

func TestLoadHistoryMergesWithoutDuplicates(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.AddDate(0, 0, 1)
	feed := NewStaticFeed()
	feed.AddBars("stock", "AAPL", domain.Freq1D,
		bar(t0, 97, 99, 96, 98, 10000),
		bar(t1, 99, 101, 98, 100, 10000))

	m := NewManager(feed)
	m.AddSymbols("stock", []string{"AAPL"}, domain.Freq1D)
	require.NoError(t, m.SetBartime(t1.Add(14*time.Hour)))
	require.NoError(t, m.Update("stock", domain.Freq1D))

	require.NoError(t, m.LoadHistory("stock", domain.Freq1D, []string{"AAPL"}, t0))

	series, err := m.View("stock", "AAPL", domain.Freq1D)
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, t0, series[0].Datetime)
	assert.Equal(t, t1, series[1].Datetime)
}

func TestBarsRange(t *testing.T) {
	t1 := time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)
	t3 := t2.Add(time.Minute)
	feed := NewStaticFeed()
	feed.AddBars("stock", "AAPL", domain.Freq1Min,
		bar(t1, 99, 101, 98, 100, 1000),
		bar(t2, 100, 102, 99, 101, 1000),
		bar(t3, 101, 103, 100, 102, 1000))

	m := NewManager(feed)
	m.AddSymbols("stock", []string{"AAPL"}, domain.Freq1Min)
	for _, ts := range []time.Time{t1, t2, t3} {
		require.NoError(t, m.SetBartime(ts))
		require.NoError(t, m.Update("stock", domain.Freq1Min))
	}

	got, err := m.Bars("stock", "AAPL", domain.Freq1Min, t1, t2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, t1, got[0].Datetime)
	assert.Equal(t, t2, got[1].Datetime)

	_, err = m.Bars("stock", "MSFT", domain.Freq1Min, t1, t2)
	assert.ErrorIs(t, err, domain.ErrNotRegistered)
}
