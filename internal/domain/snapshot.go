package domain

import "time"

// OrderSnapshot is the flattened projection of an Order used for
// persistence and reporting. StateTimes holds the timestamp of the first
// entry into each state the order has visited.
type OrderSnapshot struct {
	UUID            string
	CreateTimestamp time.Time
	EventType       string
	OriginatorID    string
	StrategyID      string
	StrategyUUID    string
	PortfolioID     string
	PortfolioUUID   string
	ProductType     string
	Symbol          string
	BuySell         Side
	Type            OrderType
	Quantity        float64
	Details         Details
	State           State
	Closed          bool
	Booked          bool
	BrokerOrderID   int64
	ExchangeOrderID int64
	FillPrice       *float64
	FillQuantity    *float64
	Commission      *float64
	StateTimes      map[State]time.Time
}

// Snapshot flattens the order into the stable persistence projection.
func (o *Order) Snapshot() OrderSnapshot {
	snap := OrderSnapshot{
		UUID:            o.uuid,
		CreateTimestamp: o.createTimestamp,
		EventType:       "ORDER",
		OriginatorID:    o.originatorID,
		StrategyID:      o.strategyID,
		StrategyUUID:    o.strategyUUID,
		PortfolioID:     o.portfolioID,
		PortfolioUUID:   o.portfolioUUID,
		ProductType:     o.productType,
		Symbol:          o.symbol,
		BuySell:         o.side,
		Type:            o.orderType,
		Quantity:        o.quantity,
		Details:         cloneDetails(o.details),
		State:           o.state,
		Closed:          o.closed,
		Booked:          o.booked,
		BrokerOrderID:   o.brokerOrderID,
		ExchangeOrderID: o.exchangeOrderID,
		StateTimes:      make(map[State]time.Time, len(o.stateLog)),
	}
	if o.HasFills() {
		snap.FillPrice = Float(o.fillPrice)
		snap.FillQuantity = Float(o.fillQuantity)
		snap.Commission = Float(o.commission)
	}
	for _, change := range o.stateLog {
		if _, ok := snap.StateTimes[change.State]; !ok {
			snap.StateTimes[change.State] = change.Timestamp
		}
	}
	return snap
}

// PositionSnapshot is the flattened projection of a Position row.
type PositionSnapshot struct {
	StrategyID  string
	ProductType string
	Symbol      string

	CurrentPosition float64
	StartPosition   float64
	NetQuantity     float64
	BuyQuantity     float64
	SellQuantity    float64
	BuyAvgPrice     float64
	SellAvgPrice    float64
	BuyPnL          float64
	SellPnL         float64
	TradePnL        float64
	PositionPnL     float64
	GrossPnL        float64
	Commission      float64
	NetPnL          float64
	PriorClosePrice *float64
	CurrentPrice    *float64
}

// Snapshot flattens the position row.
func (p *Position) Snapshot() PositionSnapshot {
	return PositionSnapshot{
		StrategyID:      p.Key.StrategyID,
		ProductType:     p.Key.ProductType,
		Symbol:          p.Key.Symbol,
		CurrentPosition: p.CurrentPosition,
		StartPosition:   p.StartPosition,
		NetQuantity:     p.NetQuantity,
		BuyQuantity:     p.BuyQuantity,
		SellQuantity:    p.SellQuantity,
		BuyAvgPrice:     p.BuyAvgPrice,
		SellAvgPrice:    p.SellAvgPrice,
		BuyPnL:          p.BuyPnL,
		SellPnL:         p.SellPnL,
		TradePnL:        p.TradePnL,
		PositionPnL:     p.PositionPnL,
		GrossPnL:        p.GrossPnL,
		Commission:      p.Commission,
		NetPnL:          p.NetPnL,
		PriorClosePrice: p.PriorClosePrice,
		CurrentPrice:    p.CurrentPrice,
	}
}

// PositionRecord is the long-form row used for position persistence and
// begin-of-day rehydration.
type PositionRecord struct {
	Strategy    string
	ProductType string
	Symbol      string
	Datetime    time.Time
	Position    float64
}
