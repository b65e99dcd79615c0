package notify

import (
	"bytes"
	"testing"
	"time"

	"github.com/alejandrodnm/tradesim/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestPrintOrders(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleWriter(&buf)

	c.PrintOrders([]domain.OrderSnapshot{{
		CreateTimestamp: time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC),
		OriginatorID:    "strategy.s1",
		StrategyID:      "s1",
		Symbol:          "AAPL",
		BuySell:         domain.Buy,
		Quantity:        10,
		Details:         domain.Details{"price": 100.5},
		State:           domain.StateFilled,
		FillQuantity:    domain.Float(10),
		FillPrice:       domain.Float(100.5),
		Commission:      domain.Float(-0.1),
	}})

	out := buf.String()
	assert.Contains(t, out, "ORDERS (1)")
	assert.Contains(t, out, "AAPL")
	assert.Contains(t, out, "FILLED")
	assert.Contains(t, out, "100.50")
}

func TestPrintOrdersEmpty(t *testing.T) {
	var buf bytes.Buffer
	NewConsoleWriter(&buf).PrintOrders(nil)
	assert.Contains(t, buf.String(), "No orders.")
}

func TestPrintTrades(t *testing.T) {
	var buf bytes.Buffer
	NewConsoleWriter(&buf).PrintTrades([]domain.Trade{{
		ID:         1,
		Bartime:    time.Date(2024, 1, 2, 14, 31, 0, 0, time.UTC),
		StrategyID: "s1",
		Symbol:     "AAPL",
		Side:       domain.Buy,
		Quantity:   10,
		Price:      100.5,
		Commission: -0.1,
	}})

	out := buf.String()
	assert.Contains(t, out, "TRADES (1)")
	assert.Contains(t, out, "01-02 14:31")
	assert.Contains(t, out, "100.50")
}

func TestPrintPositionsTotals(t *testing.T) {
	var buf bytes.Buffer
	NewConsoleWriter(&buf).PrintPositions([]domain.PositionSnapshot{
		{StrategyID: "s1", Symbol: "AAPL", CurrentPosition: 10, NetPnL: 5.5, Commission: -0.1},
		{StrategyID: "s2", Symbol: "MSFT", CurrentPosition: -5, NetPnL: -2.5, Commission: -0.05},
	})

	out := buf.String()
	assert.Contains(t, out, "POSITIONS (2)")
	assert.Contains(t, out, "Total commission: -0.15")
	assert.Contains(t, out, "Total net PnL: 3.00")
}

func TestPrintRunSummary(t *testing.T) {
	var buf bytes.Buffer
	NewConsoleWriter(&buf).PrintRunSummary(RunSummary{
		RunnerID: "simulation",
		Start:    time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC),
		End:      time.Date(2024, 1, 5, 21, 0, 0, 0, time.UTC),
		Bars:     1170,
	})

	out := buf.String()
	assert.Contains(t, out, "SIMULATION REPORT: simulation")
	assert.Contains(t, out, "(1170 bars)")
	assert.Contains(t, out, "No orders.")
	assert.Contains(t, out, "No trades.")
	assert.Contains(t, out, "No positions.")
}
