package paper

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/tradesim/internal/domain"
	"github.com/alejandrodnm/tradesim/internal/engine"
	"github.com/alejandrodnm/tradesim/internal/ports"
	"github.com/google/uuid"
)

// DefaultStockFeePerShare is the signed commission per share for stock
// fills.
const DefaultStockFeePerShare = -0.01

// Broker moves orders between the OrderManager and a paper Exchange and
// reconciles exchange state back into the Order objects.
type Broker struct {
	uuid     string
	id       string
	om       *engine.OrderManager
	exchange ports.Exchange

	stockFeePerShare float64
	orderID          int64
}

// NewBroker creates a paper broker in front of an exchange. A zero
// stockFeePerShare falls back to the default; commissions are signed so
// fees are negative.
func NewBroker(id string, om *engine.OrderManager, exchange ports.Exchange, stockFeePerShare float64) *Broker {
	if stockFeePerShare == 0 {
		stockFeePerShare = DefaultStockFeePerShare
	}
	b := &Broker{
		uuid:             uuid.NewString(),
		id:               id,
		om:               om,
		exchange:         exchange,
		stockFeePerShare: stockFeePerShare,
		orderID:          idSeed() + 100,
	}
	slog.Info("paper broker initialized", "id", id, "uuid", b.uuid)
	return b
}

func (b *Broker) ID() string   { return b.id }
func (b *Broker) UUID() string { return b.uuid }

func (b *Broker) nextOrderID() int64 {
	id := b.orderID
	b.orderID++
	return id
}

// sendOrder stamps the broker id, moves the order to SENT and hands it to
// the exchange.
func (b *Broker) sendOrder(o *domain.Order) error {
	if o.State() != domain.StateRiskAccepted {
		return fmt.Errorf("paper.Broker.sendOrder: order %s state %s is not RISK_ACCEPTED", o.UUID(), o.State())
	}

	if err := o.SetBrokerOrderID(b.nextOrderID()); err != nil {
		return fmt.Errorf("paper.Broker.sendOrder: %w", err)
	}
	slog.Info("sending order to exchange", "uuid", o.UUID(), "broker_order_id", o.BrokerOrderID())
	if err := b.om.ChangeState(o, domain.StateSent); err != nil {
		return err
	}

	exchangeID, err := b.exchange.ReceiveOrder(o.ProductType(), o.Symbol(), o.Side(),
		o.Quantity(), o.Type(), o.Details())
	if err != nil {
		return fmt.Errorf("paper.Broker.sendOrder: %w", err)
	}
	if err := o.SetExchangeOrderID(exchangeID); err != nil {
		return fmt.Errorf("paper.Broker.sendOrder: %w", err)
	}
	return nil
}

// sendRiskAccepted sends every RISK_ACCEPTED order to the exchange.
func (b *Broker) sendRiskAccepted() error {
	for _, o := range b.om.OrdersList(engine.Filter{States: []domain.State{domain.StateRiskAccepted}}) {
		if err := b.sendOrder(o); err != nil {
			return err
		}
	}
	return nil
}

// sendCancelRequested forwards CANCEL_REQUESTED orders to the exchange.
// Orders that never reached the exchange are canceled locally.
func (b *Broker) sendCancelRequested() error {
	for _, o := range b.om.OrdersList(engine.Filter{States: []domain.State{domain.StateCancelRequested}}) {
		if o.ExchangeOrderID() == 0 {
			if err := b.om.ChangeState(o, domain.StateCanceled); err != nil {
				return err
			}
			continue
		}
		slog.Info("sending cancel request to exchange", "uuid", o.UUID())
		if err := b.om.ChangeState(o, domain.StateCancelSent); err != nil {
			return err
		}
		if err := b.exchange.ReceiveCancel(o.ExchangeOrderID()); err != nil {
			return fmt.Errorf("paper.Broker.sendCancelRequested: %w", err)
		}
	}
	return nil
}

// sendReplaceRequested forwards REPLACE_REQUESTED orders to the
// exchange. A replace on an order that never reached the exchange is an
// error.
func (b *Broker) sendReplaceRequested() error {
	for _, o := range b.om.OrdersList(engine.Filter{States: []domain.State{domain.StateReplaceRequested}}) {
		if o.ExchangeOrderID() == 0 {
			return fmt.Errorf("paper.Broker.sendReplaceRequested: order %s: %w", o.UUID(), domain.ErrStuckReplace)
		}
		slog.Info("sending replace request to exchange", "uuid", o.UUID())
		if err := b.om.ChangeState(o, domain.StateReplaceSent); err != nil {
			return err
		}
		if err := b.exchange.ReceiveReplace(o.ExchangeOrderID(), o.Quantity(), o.Details()); err != nil {
			return fmt.Errorf("paper.Broker.sendReplaceRequested: %w", err)
		}
	}
	return nil
}

// SendOrders forwards the pending cancels, replaces and new orders to the
// exchange, in that order.
func (b *Broker) SendOrders() error {
	slog.Info("broker sending orders to exchange")
	if err := b.sendCancelRequested(); err != nil {
		return err
	}
	if err := b.sendReplaceRequested(); err != nil {
		return err
	}
	return b.sendRiskAccepted()
}

// commission calculates the signed commission for a fill. Only stock is
// supported.
func (b *Broker) commission(o *domain.Order, fill domain.ExchangeFill) (float64, error) {
	if o.ProductType() != "stock" {
		return 0, fmt.Errorf("paper.Broker.commission: product type %q: %w", o.ProductType(), domain.ErrUnsupported)
	}
	return fill.Quantity * b.stockFeePerShare, nil
}

// processFills copies the new exchange fills into the order. When there
// is nothing new to book and the order is FILLED, the order is closed.
// This captures replaces whose new quantity is below the filled quantity.
func (b *Broker) processFills(o *domain.Order, xo *domain.ExchangeOrder) error {
	newFills := false
	for _, fill := range xo.Fills {
		if o.HasFill(fill.ID) {
			continue
		}
		commission, err := b.commission(o, fill)
		if err != nil {
			return err
		}
		if err := o.AddFill(fill.ID, time.Now().UTC(), fill.Timestamp, fill.Quantity, fill.Price, commission); err != nil {
			return fmt.Errorf("paper.Broker.processFills: %w", err)
		}
		b.om.SetBooked(o, false)
		newFills = true
	}

	if !newFills && o.State() == domain.StateFilled {
		return b.om.CloseOrder(o)
	}
	return nil
}

// updateOrderState pulls the exchange state for one order and reconciles
// the Order object.
func (b *Broker) updateOrderState(o *domain.Order) error {
	xo, err := b.exchange.Order(o.ExchangeOrderID())
	if err != nil {
		return fmt.Errorf("paper.Broker.updateOrderState: %w", err)
	}
	if xo.State != o.State() {
		if err := b.om.ChangeState(o, xo.State); err != nil {
			return err
		}
	}
	if xo.State == domain.StatePartiallyFilled || xo.State == domain.StateFilled {
		return b.processFills(o, xo)
	}
	return nil
}

// UpdateOrderStates reconciles every order that is on the exchange.
func (b *Broker) UpdateOrderStates() error {
	slog.Info("broker updating order states from exchange")
	orders := b.om.OrdersList(engine.Filter{States: []domain.State{
		domain.StateSent, domain.StateLive, domain.StateCancelSent,
		domain.StateReplaceSent, domain.StatePartiallyFilled,
	}})
	for _, o := range orders {
		if err := b.updateOrderState(o); err != nil {
			return err
		}
	}
	return nil
}
