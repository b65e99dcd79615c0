package domain

import "time"

// Trade is a booked execution derived from an order fill. Trades are
// append-only in the PositionManager's new-trades log.
type Trade struct {
	ID           int64
	Timestamp    time.Time
	OriginatorID string
	StrategyID   string
	Bartime      time.Time
	ProductType  string
	Symbol       string
	Side         Side
	Quantity     float64
	Price        float64
	Commission   float64
	OrderUUID    string
	FillID       int64
}
