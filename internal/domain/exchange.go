package domain

import "time"

// ExchangeFill is a fill record on the exchange side.
type ExchangeFill struct {
	ID        int64
	Timestamp time.Time
	Quantity  float64
	Price     float64
}

// ExchangeReplace is one replace request lodged against an exchange order.
type ExchangeReplace struct {
	Quantity float64
	Details  Details
}

// ExchangeOrder is the exchange-internal mirror of an Order. It is owned
// by the exchange; brokers read it but must not mutate it.
type ExchangeOrder struct {
	OrderID     int64
	ProductType string
	Symbol      string
	Side        Side
	Quantity    float64
	OrderType   OrderType
	Details     Details
	State       State

	FillQuantity      float64
	FillPrice         float64
	Fills             []ExchangeFill
	Replaces          []ExchangeReplace
	CloseBarTimestamp time.Time
}

// Price is the current LIMIT price of the exchange order.
func (o *ExchangeOrder) Price() float64 { return o.Details["price"] }

// Remaining is the unfilled quantity.
func (o *ExchangeOrder) Remaining() float64 { return o.Quantity - o.FillQuantity }
