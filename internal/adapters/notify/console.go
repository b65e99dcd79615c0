// Package notify renders simulation results to the console.
package notify

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/alejandrodnm/tradesim/internal/domain"
	"github.com/olekukonko/tablewriter"
)

// Console writes order, trade and position reports to a writer.
type Console struct {
	out io.Writer
}

// NewConsole creates a reporter writing to stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter creates a reporter for tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

// PrintOrders prints the order snapshots as a table.
func (c *Console) PrintOrders(orders []domain.OrderSnapshot) {
	if len(orders) == 0 {
		fmt.Fprintln(c.out, "\n  No orders.")
		return
	}

	fmt.Fprintf(c.out, "\n=== ORDERS (%d) ===\n", len(orders))
	tbl := tablewriter.NewWriter(c.out)
	tbl.Header("Created", "Originator", "Strategy", "Symbol", "B/S", "Qty", "Price", "State", "FillQty", "FillPx", "Comm")

	for _, o := range orders {
		tbl.Append(
			o.CreateTimestamp.Format("15:04:05"),
			o.OriginatorID,
			o.StrategyID,
			o.Symbol,
			string(o.BuySell),
			fmt.Sprintf("%.0f", o.Quantity),
			fmt.Sprintf("%.2f", o.Details["price"]),
			string(o.State),
			floatLabel(o.FillQuantity, "%.0f"),
			floatLabel(o.FillPrice, "%.2f"),
			floatLabel(o.Commission, "%.2f"),
		)
	}
	tbl.Render()
}

// PrintTrades prints the booked trades as a table.
func (c *Console) PrintTrades(trades []domain.Trade) {
	if len(trades) == 0 {
		fmt.Fprintln(c.out, "\n  No trades.")
		return
	}

	fmt.Fprintf(c.out, "\n=== TRADES (%d) ===\n", len(trades))
	tbl := tablewriter.NewWriter(c.out)
	tbl.Header("ID", "Bartime", "Strategy", "Symbol", "B/S", "Qty", "Price", "Comm")

	for _, t := range trades {
		tbl.Append(
			fmt.Sprintf("%d", t.ID),
			t.Bartime.Format("01-02 15:04"),
			t.StrategyID,
			t.Symbol,
			string(t.Side),
			fmt.Sprintf("%.0f", t.Quantity),
			fmt.Sprintf("%.2f", t.Price),
			fmt.Sprintf("%.2f", t.Commission),
		)
	}
	tbl.Render()
}

// PrintPositions prints the position book with its pnl columns.
func (c *Console) PrintPositions(positions []domain.PositionSnapshot) {
	if len(positions) == 0 {
		fmt.Fprintln(c.out, "\n  No positions.")
		return
	}

	fmt.Fprintf(c.out, "\n=== POSITIONS (%d) ===\n", len(positions))
	tbl := tablewriter.NewWriter(c.out)
	tbl.Header("Strategy", "Symbol", "Pos", "Buys", "Sells", "BuyAvg", "SellAvg", "TradePnL", "PosPnL", "Comm", "NetPnL")

	var netPnL, commission float64
	for _, p := range positions {
		netPnL += p.NetPnL
		commission += p.Commission
		tbl.Append(
			p.StrategyID,
			p.Symbol,
			fmt.Sprintf("%.0f", p.CurrentPosition),
			fmt.Sprintf("%.0f", p.BuyQuantity),
			fmt.Sprintf("%.0f", p.SellQuantity),
			fmt.Sprintf("%.2f", p.BuyAvgPrice),
			fmt.Sprintf("%.2f", p.SellAvgPrice),
			fmt.Sprintf("%.2f", p.TradePnL),
			fmt.Sprintf("%.2f", p.PositionPnL),
			fmt.Sprintf("%.2f", p.Commission),
			fmt.Sprintf("%.2f", p.NetPnL),
		)
	}
	tbl.Render()

	fmt.Fprintf(c.out, "  Total commission: %.2f | Total net PnL: %.2f\n", commission, netPnL)
}

// RunSummary bundles everything PrintRunSummary needs.
type RunSummary struct {
	RunnerID  string
	Start     time.Time
	End       time.Time
	Bars      int
	Orders    []domain.OrderSnapshot
	Trades    []domain.Trade
	Positions []domain.PositionSnapshot
}

// PrintRunSummary prints the full post-run report.
func (c *Console) PrintRunSummary(s RunSummary) {
	fmt.Fprintf(c.out, "\n========================================================\n")
	fmt.Fprintf(c.out, "  SIMULATION REPORT: %s\n", s.RunnerID)
	fmt.Fprintf(c.out, "  %s to %s (%d bars)\n",
		s.Start.Format("2006-01-02 15:04"), s.End.Format("2006-01-02 15:04"), s.Bars)
	fmt.Fprintf(c.out, "========================================================\n")

	c.PrintOrders(s.Orders)
	c.PrintTrades(s.Trades)
	c.PrintPositions(s.Positions)
	fmt.Fprintln(c.out)
}

func floatLabel(v *float64, format string) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf(format, *v)
}
