// Package paper implements the simulated exchange and broker used by the
// sim runner.
package paper

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/alejandrodnm/tradesim/internal/domain"
	"github.com/alejandrodnm/tradesim/internal/ports"
	"github.com/google/uuid"
)

// DefaultFillMultiplier caps a single fill at this fraction of the bar
// volume.
const DefaultFillMultiplier = 0.5

// Exchange is a simulated venue matching LIMIT orders against bars. Open
// and closed orders are kept in arrival order.
type Exchange struct {
	uuid           string
	liveFrequency  string
	fillMultiplier float64

	openIDs      []int64
	openOrders   map[int64]*domain.ExchangeOrder
	closedIDs    []int64
	closedOrders map[int64]*domain.ExchangeOrder

	orderID int64
	fillID  int64
}

// NewExchange creates a paper exchange. A fillMultiplier <= 0 falls back
// to the default.
func NewExchange(liveFrequency string, fillMultiplier float64) *Exchange {
	if fillMultiplier <= 0 {
		fillMultiplier = DefaultFillMultiplier
	}
	seed := idSeed()
	e := &Exchange{
		uuid:           uuid.NewString(),
		liveFrequency:  liveFrequency,
		fillMultiplier: fillMultiplier,
		openOrders:     make(map[int64]*domain.ExchangeOrder),
		closedOrders:   make(map[int64]*domain.ExchangeOrder),
		orderID:        seed + 1,
		fillID:         seed + 1,
	}
	slog.Info("paper exchange initialized", "uuid", e.uuid,
		"live_frequency", liveFrequency, "fill_multiplier", fillMultiplier)
	return e
}

// idSeed derives the id counter seed from the wall clock so ids from
// different runs do not collide in shared stores.
func idSeed() int64 {
	seed, _ := strconv.ParseInt(time.Now().Format("060102150405"), 10, 64)
	return seed * 1_000_000
}

func (e *Exchange) UUID() string { return e.uuid }

// SetLiveFrequency sets the bar frequency used by the matching loop.
func (e *Exchange) SetLiveFrequency(frequency string) { e.liveFrequency = frequency }

// NextFillID returns the id the next fill will get.
func (e *Exchange) NextFillID() int64 { return e.fillID }

// ReceiveOrder accepts an order and books it LIVE. Returns the exchange
// order id.
func (e *Exchange) ReceiveOrder(productType, symbol string, side domain.Side, quantity float64,
	orderType domain.OrderType, details domain.Details) (int64, error) {
	if orderType != domain.OrderTypeLimit {
		return 0, fmt.Errorf("paper.Exchange.ReceiveOrder: %q: %w", orderType, domain.ErrUnsupportedOrderType)
	}

	o := &domain.ExchangeOrder{
		OrderID:     e.orderID,
		ProductType: productType,
		Symbol:      symbol,
		Side:        side,
		Quantity:    quantity,
		OrderType:   orderType,
		Details:     details,
		State:       domain.StateLive,
		Replaces:    []domain.ExchangeReplace{{Quantity: quantity, Details: details}},
	}
	e.orderID++
	e.openIDs = append(e.openIDs, o.OrderID)
	e.openOrders[o.OrderID] = o
	slog.Info("order received", "exchange_order_id", o.OrderID, "symbol", symbol,
		"side", side, "quantity", quantity)
	return o.OrderID, nil
}

// ReceiveCancel accepts a cancel request. Requests against closed orders
// are silently dropped, matching live venue behavior.
func (e *Exchange) ReceiveCancel(orderID int64) error {
	slog.Info("cancel request received", "exchange_order_id", orderID)
	if _, ok := e.openOrders[orderID]; !ok {
		if _, ok := e.closedOrders[orderID]; !ok {
			return fmt.Errorf("paper.Exchange.ReceiveCancel: %d: %w", orderID, domain.ErrUnknownOrder)
		}
		return nil
	}
	e.openOrders[orderID].State = domain.StateCancelSent
	return nil
}

// ReceiveReplace accepts a replace request. Requests against closed
// orders are silently dropped.
func (e *Exchange) ReceiveReplace(orderID int64, quantity float64, details domain.Details) error {
	slog.Info("replace request received", "exchange_order_id", orderID,
		"quantity", quantity, "details", details)
	if _, ok := e.openOrders[orderID]; !ok {
		if _, ok := e.closedOrders[orderID]; !ok {
			return fmt.Errorf("paper.Exchange.ReceiveReplace: %d: %w", orderID, domain.ErrUnknownOrder)
		}
		return nil
	}
	o := e.openOrders[orderID]
	o.State = domain.StateReplaceSent
	o.Replaces = append(o.Replaces, domain.ExchangeReplace{Quantity: quantity, Details: details})
	return nil
}

// fillQuantity returns the whole-unit fill size for the order against the
// bar: the remaining quantity capped by the bar volume times the fill
// multiplier.
func (e *Exchange) fillQuantity(o *domain.ExchangeOrder, bar domain.Bar) float64 {
	volume := 0.0
	if bar.Volume != nil {
		volume = *bar.Volume
	}
	return math.Floor(math.Min(o.Remaining(), volume*e.fillMultiplier))
}

func (e *Exchange) close(o *domain.ExchangeOrder, state domain.State, ts time.Time) {
	o.State = state
	o.CloseBarTimestamp = ts
	for i, id := range e.openIDs {
		if id == o.OrderID {
			e.openIDs = append(e.openIDs[:i], e.openIDs[i+1:]...)
			break
		}
	}
	delete(e.openOrders, o.OrderID)
	e.closedIDs = append(e.closedIDs, o.OrderID)
	e.closedOrders[o.OrderID] = o
}

// fillOrder records a fill at the current limit price and moves the order
// to PARTIALLY_FILLED or FILLED.
func (e *Exchange) fillOrder(o *domain.ExchangeOrder, quantity float64, ts time.Time) error {
	if ts.IsZero() {
		return fmt.Errorf("paper.Exchange.fillOrder: %w", domain.ErrInvalidTimestamp)
	}

	fill := domain.ExchangeFill{ID: e.fillID, Timestamp: ts, Quantity: quantity, Price: o.Price()}
	e.fillID++
	o.Fills = append(o.Fills, fill)

	if o.FillQuantity > 0 {
		o.FillPrice = (o.FillPrice*o.FillQuantity + o.Price()*quantity) / (o.FillQuantity + quantity)
	} else {
		o.FillPrice = o.Price()
	}
	o.FillQuantity += quantity

	if o.FillQuantity >= o.Quantity {
		e.close(o, domain.StateFilled, ts)
	} else {
		o.State = domain.StatePartiallyFilled
	}
	slog.Info("order fill", "exchange_order_id", o.OrderID, "quantity", quantity, "price", fill.Price)
	return nil
}

func (e *Exchange) cancelOrder(o *domain.ExchangeOrder, ts time.Time) {
	e.close(o, domain.StateCanceled, ts)
	slog.Info("order canceled", "exchange_order_id", o.OrderID)
}

// replaceOrder applies the latest replace request. When the new quantity
// is already covered by the filled quantity the order goes to FILLED,
// otherwise back to LIVE.
func (e *Exchange) replaceOrder(o *domain.ExchangeOrder, ts time.Time) {
	latest := o.Replaces[len(o.Replaces)-1]
	o.Quantity = latest.Quantity
	for k, v := range latest.Details {
		o.Details[k] = v
	}

	if o.FillQuantity > 0 && o.FillQuantity >= o.Quantity {
		e.close(o, domain.StateFilled, ts)
	} else {
		o.State = domain.StateLive
	}
	slog.Info("order replaced", "exchange_order_id", o.OrderID)
}

// processOrder runs the matching engine for one order: pending cancels
// and replaces are applied first, then LIMIT matching against the current
// bar. Buys fill when the bar low trades through the limit, sells when
// the bar high does. Zero-size fills are skipped.
func (e *Exchange) processOrder(o *domain.ExchangeOrder, md ports.MarketData) error {
	bar, err := md.CurrentBar(o.ProductType, o.Symbol, e.liveFrequency)
	if err != nil {
		return fmt.Errorf("paper.Exchange.processOrder: %w", err)
	}
	bartime := md.Bartime()

	switch o.State {
	case domain.StateCancelSent:
		e.cancelOrder(o, bartime)
	case domain.StateReplaceSent:
		e.replaceOrder(o, bartime)
	}

	if o.State != domain.StateLive && o.State != domain.StatePartiallyFilled {
		return nil
	}
	if o.OrderType != domain.OrderTypeLimit {
		return fmt.Errorf("paper.Exchange.processOrder: %q: %w", o.OrderType, domain.ErrUnsupportedOrderType)
	}

	crossed := false
	switch o.Side {
	case domain.Buy:
		if bar.Low == nil {
			slog.Info("bar low is missing, buy order not processed", "exchange_order_id", o.OrderID)
			return nil
		}
		crossed = *bar.Low < o.Price()
	case domain.Sell:
		if bar.High == nil {
			slog.Info("bar high is missing, sell order not processed", "exchange_order_id", o.OrderID)
			return nil
		}
		crossed = *bar.High > o.Price()
	}
	if !crossed {
		return nil
	}

	quantity := e.fillQuantity(o, bar)
	if quantity <= 0 {
		slog.Info("no volume for fill, order not processed", "exchange_order_id", o.OrderID)
		return nil
	}
	return e.fillOrder(o, quantity, bartime)
}

// ProcessOrders runs the matching engine over all open orders in arrival
// order.
func (e *Exchange) ProcessOrders(md ports.MarketData) error {
	slog.Info("exchange processing orders")
	for _, id := range append([]int64{}, e.openIDs...) {
		if o, ok := e.openOrders[id]; ok {
			if err := e.processOrder(o, md); err != nil {
				return err
			}
		}
	}
	return nil
}

// Order returns the exchange order for an id, open or closed. Callers
// must treat the result as read-only.
func (e *Exchange) Order(orderID int64) (*domain.ExchangeOrder, error) {
	if o, ok := e.openOrders[orderID]; ok {
		return o, nil
	}
	if o, ok := e.closedOrders[orderID]; ok {
		return o, nil
	}
	return nil, fmt.Errorf("paper.Exchange.Order: %d: %w", orderID, domain.ErrUnknownOrder)
}

// OpenOrders returns the open orders in arrival order.
func (e *Exchange) OpenOrders() []*domain.ExchangeOrder {
	out := make([]*domain.ExchangeOrder, len(e.openIDs))
	for i, id := range e.openIDs {
		out[i] = e.openOrders[id]
	}
	return out
}

// ClosedOrders returns the closed orders in close order.
func (e *Exchange) ClosedOrders() []*domain.ExchangeOrder {
	out := make([]*domain.ExchangeOrder, len(e.closedIDs))
	for i, id := range e.closedIDs {
		out[i] = e.closedOrders[id]
	}
	return out
}

// MarketClose cancels every open order with the given timestamp.
func (e *Exchange) MarketClose(ts time.Time) error {
	slog.Info("canceling open orders in the exchange")
	for _, o := range e.OpenOrders() {
		e.cancelOrder(o, ts)
	}
	return nil
}
