package report

import (
	"bytes"
	"math"
	"testing"
	"time"

	"github.com/rustyeddy/spottrader/journal"
	"github.com/rustyeddy/spottrader/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func curve(values ...float64) []ledger.EquitySnapshot {
	out := make([]ledger.EquitySnapshot, len(values))
	for i, v := range values {
		out[i] = ledger.EquitySnapshot{Time: t0.Add(time.Duration(i) * time.Minute), Equity: v}
	}
	return out
}

func trade(pnl, fee float64) ledger.ClosedTrade {
	return ledger.ClosedTrade{NetPnL: pnl, TotalFee: fee}
}

func TestComputeNoTrades(t *testing.T) {
	t.Parallel()

	m := Compute(nil, curve(1000, 1000), 1000, MinutesPerYear)
	assert.Equal(t, Metrics{StartEquity: 1000, FinalEquity: 1000}, m)
}

func TestCompute(t *testing.T) {
	t.Parallel()

	trades := []ledger.ClosedTrade{trade(100, 2), trade(-50, 2), trade(0, 1)}
	m := Compute(trades, curve(1000, 1100, 990, 1050), 1000, MinutesPerYear)

	assert.Equal(t, 3, m.Trades)
	assert.Equal(t, 1, m.Wins)
	assert.Equal(t, 2, m.Losses, "break-even counts as a loss")
	assert.InDelta(t, 33.333, m.WinRate, 1e-3)
	assert.InDelta(t, 2.0, m.ProfitFactor, 1e-9)
	assert.InDelta(t, 100.0, m.AvgWin, 1e-9)
	assert.InDelta(t, -25.0, m.AvgLoss, 1e-9)
	assert.InDelta(t, 5.0, m.TotalFees, 1e-9)
	assert.InDelta(t, 1050.0, m.FinalEquity, 1e-9)
	assert.InDelta(t, 5.0, m.ReturnPct, 1e-9)
	assert.InDelta(t, 10.0, m.MaxDDPct, 1e-9)
}

func TestProfitFactorWithoutLosses(t *testing.T) {
	t.Parallel()

	m := Compute([]ledger.ClosedTrade{trade(10, 1)}, curve(1000, 1010), 1000, MinutesPerYear)
	assert.True(t, math.IsInf(m.ProfitFactor, 1))
	assert.Zero(t, m.MaxDDPct)
}

func TestSharpe(t *testing.T) {
	t.Parallel()

	t.Run("known returns", func(t *testing.T) {
		// returns 1% then 2%: mean 0.015, sample std 0.00707
		got := sharpe(curve(100, 101, 103.02), 1)
		assert.InDelta(t, 2.1213, got, 1e-3)
		assert.InDelta(t, 2.1213*2, sharpe(curve(100, 101, 103.02), 4), 1e-3)
	})

	t.Run("flat curve", func(t *testing.T) {
		assert.Zero(t, sharpe(curve(100, 100, 100, 100), MinutesPerYear))
	})

	t.Run("too short", func(t *testing.T) {
		assert.Zero(t, sharpe(curve(100, 110), MinutesPerYear))
	})
}

func TestBarsPerYear(t *testing.T) {
	t.Parallel()

	tests := []struct {
		interval string
		want     float64
		wantErr  bool
	}{
		{interval: "1m", want: 525_600},
		{interval: "", want: 525_600},
		{interval: "15m", want: 35_040},
		{interval: "1h", want: 8_760},
		{interval: "4h", want: 2_190},
		{interval: "1d", want: 365},
		{interval: "1w", want: 365.0 / 7},
		{interval: "fortnight", wantErr: true},
		{interval: "0m", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.interval, func(t *testing.T) {
			got, err := BarsPerYear(tt.interval)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestFillRun(t *testing.T) {
	t.Parallel()

	m := Compute([]ledger.ClosedTrade{trade(10, 1), trade(-4, 1)}, curve(1000, 1006), 1000, MinutesPerYear)
	var r journal.Run
	m.Fill(&r)
	assert.Equal(t, 2, r.Trades)
	assert.Equal(t, 1, r.Wins)
	assert.InDelta(t, 2.5, r.ProfitFactor, 1e-9)
	assert.InDelta(t, 1006.0, r.EndEquity, 1e-9)
}

func TestPrint(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	Print(&buf, "Backtest BTCUSDT", Metrics{Trades: 1, Wins: 1, WinRate: 100, ProfitFactor: math.Inf(1), FinalEquity: 1010})

	out := buf.String()
	assert.Contains(t, out, "Backtest BTCUSDT")
	assert.Contains(t, out, "inf")
	assert.Contains(t, out, "100.00%")
	assert.Contains(t, out, "1010.00")
}
