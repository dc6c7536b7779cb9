// Package report computes performance statistics from a finished run.
package report

import (
	"math"
	"strings"
	"time"

	"github.com/rustyeddy/spottrader/journal"
	"github.com/rustyeddy/spottrader/ledger"
	"github.com/rustyeddy/spottrader/market"
)

// MinutesPerYear is the Sharpe annualisation factor for one-minute bars.
const MinutesPerYear = 525_600

// Metrics summarises a trade log and equity curve. Percentages are in
// percent, not fractions. ProfitFactor is +Inf when there are winners and
// no losers.
type Metrics struct {
	Trades int
	Wins   int
	Losses int

	StartEquity float64
	FinalEquity float64

	ReturnPct    float64
	WinRate      float64
	ProfitFactor float64
	MaxDDPct     float64
	Sharpe       float64
	TotalFees    float64

	AvgWin  float64
	AvgLoss float64
}

// Compute derives Metrics. A trade with NetPnL <= 0 counts as a loss.
// Sharpe is mean over sample standard deviation of per-bar equity returns,
// scaled by sqrt(barsPerYear).
func Compute(trades []ledger.ClosedTrade, equity []ledger.EquitySnapshot, initial, barsPerYear float64) Metrics {
	m := Metrics{
		Trades:      len(trades),
		StartEquity: initial,
		FinalEquity: initial,
	}
	if len(trades) == 0 {
		return m
	}

	if len(equity) > 0 {
		m.FinalEquity = equity[len(equity)-1].Equity
	}
	if initial > 0 {
		m.ReturnPct = (m.FinalEquity - initial) / initial * 100
	}

	var grossWin, grossLoss float64
	for _, t := range trades {
		m.TotalFees += t.TotalFee
		if t.NetPnL > 0 {
			m.Wins++
			grossWin += t.NetPnL
		} else {
			m.Losses++
			grossLoss += t.NetPnL
		}
	}
	m.WinRate = float64(m.Wins) / float64(m.Trades) * 100
	if m.Wins > 0 {
		m.AvgWin = grossWin / float64(m.Wins)
	}
	if m.Losses > 0 {
		m.AvgLoss = grossLoss / float64(m.Losses)
	}

	grossLoss = math.Abs(grossLoss)
	switch {
	case grossLoss > 0:
		m.ProfitFactor = grossWin / grossLoss
	case grossWin > 0:
		m.ProfitFactor = math.Inf(1)
	}

	m.MaxDDPct = maxDrawdown(equity) * 100
	m.Sharpe = sharpe(equity, barsPerYear)
	return m
}

func maxDrawdown(equity []ledger.EquitySnapshot) float64 {
	var peak, worst float64
	for _, e := range equity {
		if e.Equity > peak {
			peak = e.Equity
		}
		if peak > 0 {
			if dd := (peak - e.Equity) / peak; dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

func sharpe(equity []ledger.EquitySnapshot, barsPerYear float64) float64 {
	returns := make([]float64, 0, len(equity))
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Equity
		if prev == 0 {
			continue
		}
		returns = append(returns, equity[i].Equity/prev-1)
	}
	if len(returns) < 2 {
		return 0
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var ss float64
	for _, r := range returns {
		ss += (r - mean) * (r - mean)
	}
	std := math.Sqrt(ss / float64(len(returns)-1))
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(barsPerYear)
}

// BarsPerYear converts a kline interval such as "1m", "4h" or "1d" into
// the number of bars in a 365-day year. An empty interval means one minute.
func BarsPerYear(interval string) (float64, error) {
	if strings.TrimSpace(interval) == "" {
		return MinutesPerYear, nil
	}
	d, err := market.IntervalDuration(interval)
	if err != nil {
		return 0, err
	}
	return float64(365*24*time.Hour) / float64(d), nil
}

// Fill copies the statistics into a journal run summary.
func (m Metrics) Fill(r *journal.Run) {
	r.Trades = m.Trades
	r.Wins = m.Wins
	r.Losses = m.Losses
	r.StartEquity = m.StartEquity
	r.EndEquity = m.FinalEquity
	r.ReturnPct = m.ReturnPct
	r.WinRate = m.WinRate
	r.ProfitFactor = m.ProfitFactor
	r.MaxDDPct = m.MaxDDPct
	r.Sharpe = m.Sharpe
	r.TotalFees = m.TotalFees
}
