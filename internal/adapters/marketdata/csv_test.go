package marketdata

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alejandrodnm/tradesim/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, dir, productType, frequency, symbol, content string) {
	t.Helper()
	path := filepath.Join(dir, productType, frequency)
	require.NoError(t, os.MkdirAll(path, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(path, symbol+".csv"), []byte(content), 0o644))
}

func TestCSVFeedBars(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "stock", domain.Freq1Min, "AAPL",
		"datetime,open,high,low,close,volume\n"+
			"2024-01-02 14:30:00,99,101,98,100,1000\n"+
			"2024-01-02 14:31:00,100,102,99,101,1200\n")

	feed := NewCSVFeed(dir)
	start := time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC)
	bars, err := feed.Bars("stock", "AAPL", domain.Freq1Min, start, start)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, start, bars[0].Datetime)
	require.NotNil(t, bars[0].Close)
	assert.Equal(t, 100.0, *bars[0].Close)
	require.NotNil(t, bars[0].Volume)
	assert.Equal(t, 1000.0, *bars[0].Volume)
}

func TestCSVFeedMissingFileYieldsNoBars(t *testing.T) {
	feed := NewCSVFeed(t.TempDir())
	bars, err := feed.Bars("stock", "MSFT", domain.Freq1Min,
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, bars)
}

func TestCSVFeedMissingColumnErrors(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "stock", domain.Freq1Min, "AAPL",
		"datetime,open,high,low,close\n2024-01-02 14:30:00,99,101,98,100\n")

	feed := NewCSVFeed(dir)
	_, err := feed.Bars("stock", "AAPL", domain.Freq1Min, time.Time{}, time.Now())
	assert.ErrorContains(t, err, "missing column")
}

func TestCSVFeedDatetimeFormats(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "stock", domain.Freq1D, "AAPL",
		"datetime,open,high,low,close,volume\n"+
			"2024-01-02,99,101,98,100,1000\n"+
			"2024-01-03T00:00:00Z,100,102,99,101,1200\n")

	feed := NewCSVFeed(dir)
	bars, err := feed.Bars("stock", "AAPL", domain.Freq1D,
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), bars[0].Datetime)
	assert.Equal(t, time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), bars[1].Datetime)
}

func TestCSVFeedEmptyFieldsAreMissing(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "stock", domain.Freq1Min, "AAPL",
		"datetime,open,high,low,close,volume\n"+
			"2024-01-02 14:30:00,,,,,\n")

	feed := NewCSVFeed(dir)
	ts := time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC)
	bars, err := feed.Bars("stock", "AAPL", domain.Freq1Min, ts, ts)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Nil(t, bars[0].Close)
	assert.False(t, bars[0].Valid())
}

func TestCSVFeedBadDatetimeErrors(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "stock", domain.Freq1Min, "AAPL",
		"datetime,open,high,low,close,volume\nnot-a-date,99,101,98,100,1000\n")

	feed := NewCSVFeed(dir)
	_, err := feed.Bars("stock", "AAPL", domain.Freq1Min, time.Time{}, time.Now())
	assert.ErrorContains(t, err, "unparseable datetime")
}

func TestStaticFeedRange(t *testing.T) {
	feed := NewStaticFeed()
	t1 := time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)
	feed.AddBars("stock", "AAPL", domain.Freq1Min,
		bar(t1, 99, 101, 98, 100, 1000),
		bar(t2, 100, 102, 99, 101, 1000))

	got, err := feed.Bars("stock", "AAPL", domain.Freq1Min, t2, t2)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, t2, got[0].Datetime)
}
