package domain

// PositionKey identifies a row in the position book.
type PositionKey struct {
	StrategyID  string
	ProductType string
	Symbol      string
}

// Less orders keys lexicographically over (strategyId, productType, symbol).
func (k PositionKey) Less(other PositionKey) bool {
	if k.StrategyID != other.StrategyID {
		return k.StrategyID < other.StrategyID
	}
	if k.ProductType != other.ProductType {
		return k.ProductType < other.ProductType
	}
	return k.Symbol < other.Symbol
}

// Position is one row of the position book. Created lazily on the first
// trade or position load, never deleted within a day.
type Position struct {
	Key PositionKey

	CurrentPosition float64
	StartPosition   float64
	NetQuantity     float64
	BuyQuantity     float64
	SellQuantity    float64
	BuyAvgPrice     float64
	SellAvgPrice    float64

	BuyPnL      float64
	SellPnL     float64
	TradePnL    float64
	PositionPnL float64
	GrossPnL    float64
	Commission  float64
	NetPnL      float64

	PriorClosePrice *float64
	CurrentPrice    *float64
}

// ApplyTrade accumulates the trade into the row: side quantity and VWAP
// average price first, then net quantity, current position and commission.
func (p *Position) ApplyTrade(t Trade) {
	switch t.Side {
	case Buy:
		p.BuyAvgPrice = (p.BuyAvgPrice*p.BuyQuantity + t.Price*t.Quantity) / (p.BuyQuantity + t.Quantity)
		p.BuyQuantity += t.Quantity
	case Sell:
		p.SellAvgPrice = (p.SellAvgPrice*p.SellQuantity + t.Price*t.Quantity) / (p.SellQuantity + t.Quantity)
		p.SellQuantity += t.Quantity
	}
	p.NetQuantity = p.BuyQuantity - p.SellQuantity
	p.CurrentPosition = p.StartPosition + p.NetQuantity
	p.Commission += t.Commission
}

// CalculatePnL recomputes the PnL columns from the accumulated quantities,
// the prior close and the current price. Commission is signed (<= 0) so
// netPnL = grossPnL + commission.
func (p *Position) CalculatePnL() {
	priorClose := 0.0
	if p.PriorClosePrice != nil {
		priorClose = *p.PriorClosePrice
	}
	current := 0.0
	if p.CurrentPrice != nil {
		current = *p.CurrentPrice
	}

	p.BuyPnL = p.BuyQuantity * (priorClose - p.BuyAvgPrice)
	p.SellPnL = p.SellQuantity * (p.SellAvgPrice - priorClose)
	p.TradePnL = p.BuyPnL + p.SellPnL
	p.PositionPnL = p.CurrentPosition * (current - priorClose)
	p.GrossPnL = p.TradePnL + p.PositionPnL
	p.NetPnL = p.GrossPnL + p.Commission
}
