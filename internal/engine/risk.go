package engine

import (
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/tradesim/internal/domain"
	"github.com/google/uuid"
)

// DefaultMaxOrderQuantity is the quantity ceiling applied when no limit
// is configured.
const DefaultMaxOrderQuantity = 100.0

// Risk is a stateless validator that admits STAGED and REPLACE_REQUESTED
// orders using the market open state and a quantity ceiling. Rejections
// are not errors; they are regular state transitions.
type Risk struct {
	uuid        string
	om          *OrderManager
	maxQuantity float64
}

// NewRisk creates a risk validator. A maxQuantity <= 0 falls back to
// DefaultMaxOrderQuantity.
func NewRisk(om *OrderManager, maxQuantity float64) *Risk {
	if maxQuantity <= 0 {
		maxQuantity = DefaultMaxOrderQuantity
	}
	r := &Risk{uuid: uuid.NewString(), om: om, maxQuantity: maxQuantity}
	slog.Info("risk initialized", "uuid", r.uuid, "max_quantity", maxQuantity)
	return r
}

// checkOrder returns RISK_ACCEPTED or RISK_REJECTED for the order. An
// unset market state for the order's product type is an error.
func (r *Risk) checkOrder(o *domain.Order) (domain.State, error) {
	open, err := r.om.MarketState(o.ProductType())
	if err != nil {
		return "", fmt.Errorf("engine.Risk.checkOrder: %w", err)
	}
	if !open {
		return domain.StateRiskRejected, nil
	}
	if o.Quantity() <= r.maxQuantity {
		return domain.StateRiskAccepted, nil
	}
	return domain.StateRiskRejected, nil
}

// reverseReplacement lodges a new replace restoring the quantity and
// details of the previous accepted replace record, so the broker re-syncs
// the exchange to the last good terms.
func (r *Risk) reverseReplacement(o *domain.Order) error {
	replaces := o.Replaces()
	prior := replaces[len(replaces)-2]
	return r.om.ReplaceOrder(o, &prior.Quantity, prior.Details)
}

// ProcessOrder risk-checks one order. STAGED orders move to RISK_ACCEPTED
// or RISK_REJECTED (and close on rejection). REPLACE_REQUESTED orders are
// left alone on pass so the broker picks them up; on fail they move to
// REPLACE_REJECTED and the replacement is reversed.
func (r *Risk) ProcessOrder(o *domain.Order) error {
	status, err := r.checkOrder(o)
	if err != nil {
		return err
	}

	if o.State() == domain.StateReplaceRequested {
		if status == domain.StateRiskRejected {
			if err := r.om.ChangeState(o, domain.StateReplaceRejected); err != nil {
				return err
			}
			return r.reverseReplacement(o)
		}
		return nil
	}

	if err := r.om.ChangeState(o, status); err != nil {
		return err
	}
	if status == domain.StateRiskRejected {
		return r.om.CloseOrder(o)
	}
	return nil
}

// ProcessPortfolioOrders risk-checks the STAGED and REPLACE_REQUESTED
// orders of a portfolio. Idempotent per bar and per order.
func (r *Risk) ProcessPortfolioOrders(p *Portfolio) error {
	slog.Debug("risk processing portfolio orders", "portfolio", p.ID())
	orders := r.om.OrdersList(Filter{
		PortfolioIDs: []string{p.ID()},
		States:       []domain.State{domain.StateStaged, domain.StateReplaceRequested},
	})
	for _, o := range orders {
		if err := r.ProcessOrder(o); err != nil {
			return err
		}
	}
	return nil
}
