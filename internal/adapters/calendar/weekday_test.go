package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPriorBusinessDaySkipsWeekend(t *testing.T) {
	// 2024-01-08 is a Monday.
	monday := time.Date(2024, 1, 8, 14, 30, 0, 0, time.UTC)
	c := NewWeekday()

	got := c.PriorBusinessDay("stock", monday, 1)
	assert.Equal(t, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), got)
}

func TestPriorBusinessDayMidweek(t *testing.T) {
	wednesday := time.Date(2024, 1, 3, 21, 0, 0, 0, time.UTC)
	c := NewWeekday()

	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		c.PriorBusinessDay("stock", wednesday, 1))
	assert.Equal(t, time.Date(2023, 12, 29, 0, 0, 0, 0, time.UTC),
		c.PriorBusinessDay("stock", wednesday, 3))
}

func TestPriorBusinessDaySkipsHolidays(t *testing.T) {
	newYears := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewWeekday(newYears)

	got := c.PriorBusinessDay("stock", time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC), 1)
	// Jan 1 is a holiday, Dec 30/31 a weekend.
	assert.Equal(t, time.Date(2023, 12, 29, 0, 0, 0, 0, time.UTC), got)
}

func TestPriorBusinessDayResultIsMidnightUTC(t *testing.T) {
	c := NewWeekday()
	got := c.PriorBusinessDay("stock", time.Date(2024, 1, 3, 23, 59, 59, 0, time.UTC), 1)
	assert.Equal(t, time.UTC, got.Location())
	assert.Zero(t, got.Hour())
	assert.Zero(t, got.Minute())
}
