// Package calendar provides business-day calendars.
package calendar

import "time"

// Weekday is a calendar where every Monday through Friday that is not a
// configured holiday is a business day, for every product type.
type Weekday struct {
	holidays map[string]bool // yyyy-mm-dd
}

// NewWeekday creates a weekday calendar with an optional holiday list.
func NewWeekday(holidays ...time.Time) *Weekday {
	c := &Weekday{holidays: make(map[string]bool, len(holidays))}
	for _, h := range holidays {
		c.holidays[h.UTC().Format("2006-01-02")] = true
	}
	return c
}

func (c *Weekday) isBusinessDay(day time.Time) bool {
	if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	return !c.holidays[day.Format("2006-01-02")]
}

// PriorBusinessDay returns the n-th business day before ts, at midnight
// UTC.
func (c *Weekday) PriorBusinessDay(productType string, ts time.Time, n int) time.Time {
	y, m, d := ts.UTC().Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	for n > 0 {
		day = day.AddDate(0, 0, -1)
		if c.isBusinessDay(day) {
			n--
		}
	}
	return day
}
