package ports

import "time"

// Calendar answers business-day questions. Holiday logic is opaque to the
// engine; the position manager only needs the prior business day to look
// up the prior close.
type Calendar interface {
	PriorBusinessDay(productType string, ts time.Time, n int) time.Time
}

// Metric is the end-of-day metric hook invoked by the PositionManager in
// registration order.
type Metric interface {
	Calculate(ts time.Time) error
}
