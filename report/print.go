package report

import (
	"fmt"
	"io"
	"math"
)

const rule = "=================================================="

func Print(w io.Writer, title string, m Metrics) {
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, " %s\n", title)
	fmt.Fprintln(w, rule)

	fmt.Fprintf(w, "Final Equity:  %12.2f\n", m.FinalEquity)
	fmt.Fprintf(w, "Return:        %+11.2f%%\n", m.ReturnPct)
	fmt.Fprintf(w, "Trades:        %12d\n", m.Trades)
	fmt.Fprintf(w, "Wins:          %12d\n", m.Wins)
	fmt.Fprintf(w, "Losses:        %12d\n", m.Losses)
	fmt.Fprintf(w, "Win Rate:      %11.2f%%\n", m.WinRate)
	fmt.Fprintf(w, "Profit Factor: %12s\n", factor(m.ProfitFactor))
	fmt.Fprintf(w, "Max Drawdown:  %11.2f%%\n", m.MaxDDPct)
	fmt.Fprintf(w, "Sharpe:        %12.2f\n", m.Sharpe)
	fmt.Fprintf(w, "Avg Win:       %12.2f\n", m.AvgWin)
	fmt.Fprintf(w, "Avg Loss:      %12.2f\n", m.AvgLoss)
	fmt.Fprintf(w, "Total Fees:    %12.2f\n", m.TotalFees)
	fmt.Fprintln(w, rule)
}

func factor(x float64) string {
	if math.IsInf(x, 1) {
		return "inf"
	}
	return fmt.Sprintf("%.2f", x)
}
