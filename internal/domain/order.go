package domain

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Side of an order.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// ParseSide accepts buy, sell, b or s in any case.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(s) {
	case "buy", "b":
		return Buy, nil
	case "sell", "s":
		return Sell, nil
	default:
		return "", fmt.Errorf("domain.ParseSide: %q: %w", s, ErrInvalidSide)
	}
}

// OrderType of an order. Only LIMIT is supported.
type OrderType string

const OrderTypeLimit OrderType = "LIMIT"

// Details carries the order-type specific parameters. For LIMIT the only
// key is "price".
type Details map[string]float64

// Fill is a single execution against an order, keyed by the
// exchange-provided fill id.
type Fill struct {
	ID         int64
	Timestamp  time.Time
	Bartime    time.Time
	Quantity   float64
	Price      float64
	Commission float64
	Booked     bool
}

// Replace is one entry in the append-only replaces log.
type Replace struct {
	Quantity float64
	Details  Details
}

// StateChange is one entry in the append-only state history.
type StateChange struct {
	Timestamp time.Time
	State     State
}

// Order holds all information about an order. Identity fields are set at
// construction and never change; the state, fills and replaces logs are
// append-only. All mutations outside of construction must go through the
// OrderManager so its registry stays in sync.
type Order struct {
	uuid            string
	createTimestamp time.Time
	originatorUUID  string
	originatorID    string
	strategyUUID    string
	strategyID      string
	productType     string
	symbol          string
	side            Side
	quantity        float64
	orderType       OrderType
	details         Details

	state    State
	stateLog []StateChange
	closed   bool
	replaces []Replace

	portfolioUUID   string
	portfolioID     string
	brokerOrderID   int64
	exchangeOrderID int64

	fillIDs      []int64
	fills        map[int64]*Fill
	fillPrice    float64
	fillQuantity float64
	commission   float64
	booked       bool
}

// NewOrder creates an order in the CREATED state.
func NewOrder(originatorUUID, originatorID, strategyUUID, strategyID, productType, symbol string,
	side Side, quantity float64, orderType OrderType, details Details) (*Order, error) {
	if side != Buy && side != Sell {
		return nil, fmt.Errorf("domain.NewOrder: %q: %w", side, ErrInvalidSide)
	}
	if orderType != OrderTypeLimit {
		return nil, fmt.Errorf("domain.NewOrder: %q: %w", orderType, ErrUnsupportedOrderType)
	}
	if _, ok := details["price"]; !ok {
		return nil, fmt.Errorf("domain.NewOrder: LIMIT order requires a price detail")
	}

	o := &Order{
		uuid:            uuid.NewString(),
		createTimestamp: time.Now().UTC(),
		originatorUUID:  originatorUUID,
		originatorID:    originatorID,
		strategyUUID:    strategyUUID,
		strategyID:      strategyID,
		productType:     productType,
		symbol:          symbol,
		side:            side,
		quantity:        quantity,
		orderType:       orderType,
		details:         cloneDetails(details),
		fills:           make(map[int64]*Fill),
	}
	o.state = StateCreated
	o.stateLog = append(o.stateLog, StateChange{Timestamp: time.Now().UTC(), State: StateCreated})
	o.replaces = append(o.replaces, Replace{Quantity: quantity, Details: cloneDetails(details)})
	return o, nil
}

func cloneDetails(d Details) Details {
	out := make(Details, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

func (o *Order) UUID() string               { return o.uuid }
func (o *Order) CreateTimestamp() time.Time { return o.createTimestamp }
func (o *Order) OriginatorUUID() string     { return o.originatorUUID }
func (o *Order) OriginatorID() string       { return o.originatorID }
func (o *Order) StrategyUUID() string       { return o.strategyUUID }
func (o *Order) StrategyID() string         { return o.strategyID }
func (o *Order) ProductType() string        { return o.productType }
func (o *Order) Symbol() string             { return o.symbol }
func (o *Order) Side() Side                 { return o.side }
func (o *Order) Quantity() float64          { return o.quantity }
func (o *Order) Type() OrderType            { return o.orderType }
func (o *Order) State() State               { return o.state }
func (o *Order) Closed() bool               { return o.closed }
func (o *Order) Booked() bool               { return o.booked }
func (o *Order) PortfolioUUID() string      { return o.portfolioUUID }
func (o *Order) PortfolioID() string        { return o.portfolioID }
func (o *Order) BrokerOrderID() int64       { return o.brokerOrderID }
func (o *Order) ExchangeOrderID() int64     { return o.exchangeOrderID }
func (o *Order) Commission() float64        { return o.commission }

// Details returns a copy of the order-type specific parameters.
func (o *Order) Details() Details { return cloneDetails(o.details) }

// Price is the LIMIT price of the order.
func (o *Order) Price() float64 { return o.details["price"] }

// FillQuantity is the total quantity executed so far, zero if no fills.
func (o *Order) FillQuantity() float64 { return o.fillQuantity }

// FillPrice is the volume weighted average fill price, zero if no fills.
func (o *Order) FillPrice() float64 { return o.fillPrice }

// HasFills reports whether any fill has been recorded.
func (o *Order) HasFills() bool { return len(o.fillIDs) > 0 }

// StateLog returns a copy of the state history.
func (o *Order) StateLog() []StateChange {
	return append([]StateChange{}, o.stateLog...)
}

// Replaces returns a copy of the replaces log. The first entry is the
// original quantity and details.
func (o *Order) Replaces() []Replace {
	out := make([]Replace, len(o.replaces))
	for i, r := range o.replaces {
		out[i] = Replace{Quantity: r.Quantity, Details: cloneDetails(r.Details)}
	}
	return out
}

// Fills returns the fills in the order they were added.
func (o *Order) Fills() []Fill {
	out := make([]Fill, 0, len(o.fillIDs))
	for _, id := range o.fillIDs {
		out = append(out, *o.fills[id])
	}
	return out
}

// UnbookedFills returns the fills not yet booked into positions, in the
// order they were added.
func (o *Order) UnbookedFills() []Fill {
	var out []Fill
	for _, id := range o.fillIDs {
		if !o.fills[id].Booked {
			out = append(out, *o.fills[id])
		}
	}
	return out
}

// HasFill reports whether the exchange fill id is already recorded.
func (o *Order) HasFill(id int64) bool {
	_, ok := o.fills[id]
	return ok
}

// AddFill records a fill. Timestamps are converted to UTC; zero timestamps
// are rejected. The fill aggregate (VWAP price, total quantity, total
// commission) is updated.
func (o *Order) AddFill(id int64, timestamp, bartime time.Time, quantity, price, commission float64) error {
	if timestamp.IsZero() || bartime.IsZero() {
		return fmt.Errorf("domain.Order.AddFill: %w", ErrInvalidTimestamp)
	}
	if o.HasFill(id) {
		return fmt.Errorf("domain.Order.AddFill: fill id %d already recorded", id)
	}

	o.log("add fill", "fill_id", id, "fill_quantity", quantity, "fill_price", price, "commission", commission)
	o.fills[id] = &Fill{
		ID:         id,
		Timestamp:  timestamp.UTC(),
		Bartime:    bartime.UTC(),
		Quantity:   quantity,
		Price:      price,
		Commission: commission,
	}
	o.fillIDs = append(o.fillIDs, id)

	if o.fillQuantity > 0 {
		o.fillPrice = (o.fillPrice*o.fillQuantity + price*quantity) / (o.fillQuantity + quantity)
	} else {
		o.fillPrice = price
	}
	o.fillQuantity += quantity
	o.commission += commission
	return nil
}

// SetFillBooked marks a single fill as booked into positions.
func (o *Order) SetFillBooked(id int64) error {
	fill, ok := o.fills[id]
	if !ok {
		return fmt.Errorf("domain.Order.SetFillBooked: fill id %d not recorded on order %s", id, o.uuid)
	}
	fill.Booked = true
	return nil
}

// SetState validates the transition against the state machine and appends
// to the state history. It is the single entry point for state mutation.
// Callers other than the OrderManager must not call this directly; going
// around the OrderManager desynchronizes its registry.
func (o *Order) SetState(state State) error {
	if o.state.IsClosed() {
		return fmt.Errorf("domain.Order.SetState: order %s is in closed state %s: %w", o.uuid, o.state, ErrIllegalTransition)
	}
	if !state.Valid() {
		return fmt.Errorf("domain.Order.SetState: %q is not a valid state", state)
	}
	if !CanTransition(o.state, state) {
		return fmt.Errorf("domain.Order.SetState: %s -> %s: %w", o.state, state, ErrIllegalTransition)
	}
	o.state = state
	o.stateLog = append(o.stateLog, StateChange{Timestamp: time.Now().UTC(), State: state})
	o.log("new state")
	return nil
}

// MarkClosed flips the closed flag. Once closed an order never reopens.
// Only the OrderManager should call this, via CloseOrder.
func (o *Order) MarkClosed() error {
	if o.closed {
		return fmt.Errorf("domain.Order.MarkClosed: order %s: %w", o.uuid, ErrIllegalTransition)
	}
	o.closed = true
	return nil
}

// SetBooked flips the booked flag. Only the OrderManager should call this.
func (o *Order) SetBooked(b bool) { o.booked = b }

// SetPortfolio stamps the owning portfolio. Write-once; only the
// OrderManager should call this, via AddPortfolio.
func (o *Order) SetPortfolio(portfolioUUID, portfolioID string) error {
	if o.portfolioUUID != "" || o.portfolioID != "" {
		return fmt.Errorf("domain.Order.SetPortfolio: order %s: %w", o.uuid, ErrAlreadySet)
	}
	o.portfolioUUID = portfolioUUID
	o.portfolioID = portfolioID
	return nil
}

// SetBrokerOrderID stamps the broker id. Write-once.
func (o *Order) SetBrokerOrderID(id int64) error {
	if o.brokerOrderID != 0 {
		return fmt.Errorf("domain.Order.SetBrokerOrderID: order %s: %w", o.uuid, ErrAlreadySet)
	}
	o.brokerOrderID = id
	return nil
}

// SetExchangeOrderID stamps the exchange id. Write-once.
func (o *Order) SetExchangeOrderID(id int64) error {
	if o.exchangeOrderID != 0 {
		return fmt.Errorf("domain.Order.SetExchangeOrderID: order %s: %w", o.uuid, ErrAlreadySet)
	}
	o.exchangeOrderID = id
	return nil
}

// ApplyReplace appends to the replaces log and applies the new terms. A
// nil quantity means unchanged; details not supplied are unchanged. Only
// the OrderManager should call this, via ReplaceOrder.
func (o *Order) ApplyReplace(quantity *float64, details Details) {
	newQuantity := o.quantity
	if quantity != nil {
		newQuantity = *quantity
	}
	o.replaces = append(o.replaces, Replace{Quantity: newQuantity, Details: cloneDetails(details)})
	o.quantity = newQuantity
	for k, v := range details {
		o.details[k] = v
	}
	o.log("replace", "replace_quantity", newQuantity, "replace_details", details)
}

func (o *Order) log(msg string, args ...any) {
	base := []any{
		"uuid", o.uuid, "state", o.state, "originator_id", o.originatorID,
		"strategy_id", o.strategyID, "symbol", o.symbol, "side", o.side,
		"quantity", o.quantity, "type", o.orderType,
	}
	slog.Debug("order: "+msg, append(base, args...)...)
}

func (o *Order) String() string {
	return fmt.Sprintf("Order(%s %s %s %.0f %s state=%s)", o.uuid, o.side, o.symbol, o.quantity, o.orderType, o.state)
}
