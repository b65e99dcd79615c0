package domain

import "errors"

// Error kinds for the engine. Fatal ones (stuck orders, illegal transitions,
// residual open orders) indicate an engine invariant violation and are
// surfaced to the runner unchanged.
var (
	ErrIllegalTransition    = errors.New("illegal state transition")
	ErrDuplicateOrder       = errors.New("duplicate order")
	ErrUnknownOrder         = errors.New("unknown order")
	ErrUnknownMarket        = errors.New("market state not set for product type")
	ErrNotRegistered        = errors.New("symbol not registered with strategy")
	ErrUnsupportedOrderType = errors.New("unsupported order type")
	ErrStuckOrder           = errors.New("stuck order")
	ErrStuckReplace         = errors.New("replace requested on order that never reached the exchange")
	ErrResidualOpenOrders   = errors.New("open orders remain after market close")
	ErrInvalidTimestamp     = errors.New("timestamp is zero or missing time zone")
	ErrUnsupported          = errors.New("unsupported")
	ErrNotClosedState       = errors.New("order state is not a closed state")
	ErrAlreadySet           = errors.New("write-once field already set")
	ErrInvalidSide          = errors.New("side must be buy, sell, b or s")
)
