package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPositionKeyLess(t *testing.T) {
	a := PositionKey{StrategyID: "a", ProductType: "stock", Symbol: "AAPL"}
	b := PositionKey{StrategyID: "a", ProductType: "stock", Symbol: "MSFT"}
	c := PositionKey{StrategyID: "b", ProductType: "stock", Symbol: "AAPL"}

	assert.True(t, a.Less(b))
	assert.True(t, a.Less(c))
	assert.True(t, b.Less(c))
	assert.False(t, b.Less(a))
	assert.False(t, a.Less(a))
}

func TestApplyTradeAccumulates(t *testing.T) {
	p := &Position{Key: PositionKey{StrategyID: "s", ProductType: "stock", Symbol: "AAPL"}}
	ts := time.Date(2024, 1, 2, 14, 31, 0, 0, time.UTC)

	p.ApplyTrade(Trade{Side: Buy, Quantity: 10, Price: 100, Commission: -0.1, Bartime: ts})
	p.ApplyTrade(Trade{Side: Buy, Quantity: 10, Price: 102, Commission: -0.1, Bartime: ts})
	p.ApplyTrade(Trade{Side: Sell, Quantity: 5, Price: 103, Commission: -0.05, Bartime: ts})

	assert.Equal(t, 20.0, p.BuyQuantity)
	assert.InDelta(t, 101.0, p.BuyAvgPrice, 1e-9)
	assert.Equal(t, 5.0, p.SellQuantity)
	assert.InDelta(t, 103.0, p.SellAvgPrice, 1e-9)
	assert.Equal(t, 15.0, p.NetQuantity)
	assert.Equal(t, 15.0, p.CurrentPosition)
	assert.InDelta(t, -0.25, p.Commission, 1e-9)
}

func TestApplyTradeWithStartPosition(t *testing.T) {
	p := &Position{StartPosition: 50, CurrentPosition: 50}
	p.ApplyTrade(Trade{Side: Sell, Quantity: 20, Price: 100})
	assert.Equal(t, -20.0, p.NetQuantity)
	assert.Equal(t, 30.0, p.CurrentPosition)
}

func TestCalculatePnL(t *testing.T) {
	p := &Position{
		BuyQuantity:  20,
		BuyAvgPrice:  101,
		SellQuantity: 5,
		SellAvgPrice: 103,
		Commission:   -0.25,
	}
	p.NetQuantity = p.BuyQuantity - p.SellQuantity
	p.CurrentPosition = p.NetQuantity
	p.PriorClosePrice = Float(100)
	p.CurrentPrice = Float(104)

	p.CalculatePnL()

	// buyPnL = 20 * (100 - 101) = -20
	assert.InDelta(t, -20.0, p.BuyPnL, 1e-9)
	// sellPnL = 5 * (103 - 100) = 15
	assert.InDelta(t, 15.0, p.SellPnL, 1e-9)
	assert.InDelta(t, -5.0, p.TradePnL, 1e-9)
	// positionPnL = 15 * (104 - 100) = 60
	assert.InDelta(t, 60.0, p.PositionPnL, 1e-9)
	assert.InDelta(t, 55.0, p.GrossPnL, 1e-9)
	assert.InDelta(t, 54.75, p.NetPnL, 1e-9)
}

func TestCalculatePnLWithMissingPrices(t *testing.T) {
	p := &Position{BuyQuantity: 10, BuyAvgPrice: 100, CurrentPosition: 10}
	p.CalculatePnL()
	assert.InDelta(t, -1000.0, p.BuyPnL, 1e-9)
	assert.InDelta(t, 0.0, p.PositionPnL, 1e-9)
}

func TestBarValid(t *testing.T) {
	assert.False(t, Bar{Datetime: time.Now()}.Valid())
	assert.True(t, Bar{Datetime: time.Now(), Close: Float(10)}.Valid())
}
