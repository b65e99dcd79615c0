package marketdata

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/alejandrodnm/tradesim/internal/domain"
)

// CSVFeed serves bars from csv files laid out as
// <dir>/<productType>/<frequency>/<symbol>.csv with the header
// datetime,open,high,low,close,volume. Files are parsed once and cached.
type CSVFeed struct {
	dir   string
	cache map[domain.SymbolTuple][]domain.Bar
}

// NewCSVFeed creates a feed over a data directory.
func NewCSVFeed(dir string) *CSVFeed {
	return &CSVFeed{
		dir:   dir,
		cache: make(map[domain.SymbolTuple][]domain.Bar),
	}
}

// Bars returns the bars for a symbol between start and end inclusive.
// A symbol with no file yields no bars, not an error, so sparse data
// directories behave like symbols with missing bars.
func (f *CSVFeed) Bars(productType, symbol, frequency string, start, end time.Time) ([]domain.Bar, error) {
	t := domain.SymbolTuple{ProductType: productType, Symbol: symbol, Frequency: frequency}
	series, ok := f.cache[t]
	if !ok {
		var err error
		series, err = f.load(t)
		if err != nil {
			return nil, err
		}
		f.cache[t] = series
	}

	var out []domain.Bar
	for _, bar := range series {
		if !bar.Datetime.Before(start) && !bar.Datetime.After(end) {
			out = append(out, bar)
		}
	}
	return out, nil
}

func (f *CSVFeed) load(t domain.SymbolTuple) ([]domain.Bar, error) {
	path := filepath.Join(f.dir, t.ProductType, t.Frequency, t.Symbol+".csv")
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("marketdata.CSVFeed.load: %w", err)
	}
	defer file.Close()

	r := csv.NewReader(file)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("marketdata.CSVFeed.load: %s: read header: %w", path, err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	for _, name := range []string{"datetime", "open", "high", "low", "close", "volume"} {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("marketdata.CSVFeed.load: %s: missing column %q", path, name)
		}
	}

	var bars []domain.Bar
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("marketdata.CSVFeed.load: %s: %w", path, err)
		}

		dt, err := parseDatetime(record[col["datetime"]])
		if err != nil {
			return nil, fmt.Errorf("marketdata.CSVFeed.load: %s: %w", path, err)
		}
		bar := domain.Bar{Datetime: dt}
		if bar.Open, err = parseFloat(record[col["open"]]); err != nil {
			return nil, fmt.Errorf("marketdata.CSVFeed.load: %s: open: %w", path, err)
		}
		if bar.High, err = parseFloat(record[col["high"]]); err != nil {
			return nil, fmt.Errorf("marketdata.CSVFeed.load: %s: high: %w", path, err)
		}
		if bar.Low, err = parseFloat(record[col["low"]]); err != nil {
			return nil, fmt.Errorf("marketdata.CSVFeed.load: %s: low: %w", path, err)
		}
		if bar.Close, err = parseFloat(record[col["close"]]); err != nil {
			return nil, fmt.Errorf("marketdata.CSVFeed.load: %s: close: %w", path, err)
		}
		if bar.Volume, err = parseFloat(record[col["volume"]]); err != nil {
			return nil, fmt.Errorf("marketdata.CSVFeed.load: %s: volume: %w", path, err)
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func parseDatetime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable datetime %q", s)
}

// parseFloat returns nil for empty fields so missing values survive the
// round trip as missing.
func parseFloat(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// StaticFeed serves bars from memory. Meant for tests and examples.
type StaticFeed struct {
	bars map[domain.SymbolTuple][]domain.Bar
}

// NewStaticFeed creates an empty in-memory feed.
func NewStaticFeed() *StaticFeed {
	return &StaticFeed{bars: make(map[domain.SymbolTuple][]domain.Bar)}
}

// AddBars appends bars to a symbol's series. Bars must be added in
// datetime order.
func (f *StaticFeed) AddBars(productType, symbol, frequency string, bars ...domain.Bar) {
	t := domain.SymbolTuple{ProductType: productType, Symbol: symbol, Frequency: frequency}
	f.bars[t] = append(f.bars[t], bars...)
}

// Bars returns the bars for a symbol between start and end inclusive.
func (f *StaticFeed) Bars(productType, symbol, frequency string, start, end time.Time) ([]domain.Bar, error) {
	t := domain.SymbolTuple{ProductType: productType, Symbol: symbol, Frequency: frequency}
	var out []domain.Bar
	for _, bar := range f.bars[t] {
		if !bar.Datetime.Before(start) && !bar.Datetime.After(end) {
			out = append(out, bar)
		}
	}
	return out, nil
}
