package ports

import (
	"time"

	"github.com/alejandrodnm/tradesim/internal/domain"
)

// Exchange is the venue-side contract. The paper exchange implements it
// for simulation; a live venue adapter would implement it over a real
// transport.
type Exchange interface {
	ReceiveOrder(productType, symbol string, side domain.Side, quantity float64, orderType domain.OrderType, details domain.Details) (int64, error)
	ReceiveCancel(orderID int64) error
	ReceiveReplace(orderID int64, quantity float64, details domain.Details) error

	// Order returns the exchange-internal order, open or closed. Callers
	// must treat the result as read-only.
	Order(orderID int64) (*domain.ExchangeOrder, error)

	// ProcessOrders runs the matching loop over the open orders against
	// the current bar. Simulation only.
	ProcessOrders(md MarketData) error

	// MarketClose cancels every open order with the given timestamp.
	MarketClose(ts time.Time) error
}

// Broker moves orders between the OrderManager and an Exchange and
// reconciles exchange state back into the Order objects.
type Broker interface {
	SendOrders() error
	UpdateOrderStates() error
}
