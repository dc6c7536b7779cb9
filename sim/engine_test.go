package sim

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/rustyeddy/spottrader/internal/logging"
	"github.com/rustyeddy/spottrader/journal"
	"github.com/rustyeddy/spottrader/ledger"
	"github.com/rustyeddy/spottrader/market"
	"github.com/rustyeddy/spottrader/risk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

// frictionless returns params with no fee or slippage so prices are exact.
func frictionless() risk.Params {
	p := risk.DefaultParams()
	p.FeeFraction = 0
	p.SlippageFraction = 0
	return p
}

func newEngine(t *testing.T, p risk.Params, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithLogger(logging.Discard())}, opts...)
	e, err := NewEngine(p, opts...)
	require.NoError(t, err)
	return e
}

// bar builds a one-minute bar i minutes after start.
func bar(i int, o, h, l, c float64, buy bool) market.Signal {
	return market.Signal{
		Candle: market.Candle{Time: start.Add(time.Duration(i) * time.Minute), Open: o, High: h, Low: l, Close: c, Volume: 1},
		Buy:    buy,
	}
}

func flat(i int, px float64, buy bool) market.Signal {
	return bar(i, px, px, px, px, buy)
}

func TestScenarioA_RiskSizing(t *testing.T) {
	t.Parallel()

	p := frictionless()
	p.RiskPerTradeFraction = 0.01
	p.StopLossFraction = 0.01 // entry 100 → stop 99
	e := newEngine(t, p)

	res, err := e.Run(context.Background(), []market.Signal{flat(0, 100, true)})
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)

	tr := res.Trades[0]
	assert.InDelta(t, 100.0, tr.EntryPrice, 1e-9)
	assert.InDelta(t, 100.0, tr.Quantity, 1e-6, "(10000*0.01)/(100-99)")
	assert.Equal(t, ledger.ExitForcedClose, tr.ExitReason)
}

func TestScenarioB_CircuitBreakerTripsOnThresholdBar(t *testing.T) {
	t.Parallel()

	p := frictionless()
	p.RiskPerTradeFraction = 1
	p.StopLossFraction = 0.5
	p.TakeProfitFraction = 1
	p.CircuitBreakerDrawdown = 0.10
	j := journal.NewMemory()
	e := newEngine(t, p, WithJournal(j))

	bars := []market.Signal{
		flat(0, 100, true), // all in: 100 units, equity 10000
		flat(1, 95, false), // 9500
		flat(2, 91, false), // 9100
		flat(3, 90, false), // 9000, drawdown exactly 10%
		flat(4, 89, true),  // 8900, buy must be refused
	}
	res, err := e.Run(context.Background(), bars)
	require.NoError(t, err)

	assert.Equal(t, bars[3].Time, res.BreakerTrippedAt)
	assert.True(t, res.Final.CircuitBreakerActive)
	assert.Equal(t, 1, res.Admitted)
	assert.Equal(t, 1, res.Rejections[risk.CodeCircuitBreaker])

	eq := res.Equity
	require.Len(t, eq, 5)
	assert.InDelta(t, 9_100.0, eq[2].Equity, 1e-9)
	assert.InDelta(t, 9_000.0, eq[3].Equity, 1e-9)
	assert.InDelta(t, 8_900.0, eq[4].Equity, 1e-9)
}

func TestScenarioC_MaxOpenTrades(t *testing.T) {
	t.Parallel()

	p := frictionless()
	p.MaxOpenTrades = 2
	p.RiskPerTradeFraction = 0.001
	p.TakeProfitFraction = 0.05
	p.StopLossFraction = 0.05
	e := newEngine(t, p)

	res, err := e.Run(context.Background(), []market.Signal{
		flat(0, 100, true),
		flat(1, 100, true),
		flat(2, 100, true),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Admitted)
	assert.Equal(t, 2, res.MaxOpen)
	assert.Equal(t, 1, res.Rejections[risk.CodeTooManyOpenTrades])
	assert.Len(t, res.Trades, 2)
}

func TestScenarioD_StopBeatsTargetInSameBar(t *testing.T) {
	t.Parallel()

	p := risk.DefaultParams()
	p.TakeProfitFraction = 0.01
	p.StopLossFraction = 0.01
	e := newEngine(t, p)

	res, err := e.Run(context.Background(), []market.Signal{
		flat(0, 100, true),
		bar(1, 100, 105, 95, 100, false),
	})
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)

	tr := res.Trades[0]
	assert.Equal(t, ledger.ExitStopLoss, tr.ExitReason)

	entry := 100 * (1 + p.SlippageFraction)
	sl := entry * (1 - p.StopLossFraction)
	assert.InDelta(t, sl*(1-p.SlippageFraction), tr.ExitPrice, 1e-9)
	assert.Equal(t, start.Add(time.Minute), tr.ExitTime)
}

func TestScenarioE_DailyLossRollsOver(t *testing.T) {
	t.Parallel()

	p := frictionless()
	p.RiskPerTradeFraction = 1
	p.StopLossFraction = 0.035
	p.TakeProfitFraction = 0.5
	p.MaxDailyLossFraction = 0.03
	e := newEngine(t, p)

	nextDay := start.Add(24 * time.Hour)
	bars := []market.Signal{
		flat(0, 100, true),                // 100 units at 100, stop 96.5
		bar(1, 100, 100, 96, 97, true),    // stopped out for -350, same-day buy refused
		{Candle: market.Candle{Time: nextDay, Open: 97, High: 97, Low: 97, Close: 97}, Buy: true},
	}
	res, err := e.Run(context.Background(), bars)
	require.NoError(t, err)

	require.Len(t, res.Trades, 2)
	assert.Equal(t, ledger.ExitStopLoss, res.Trades[0].ExitReason)
	assert.InDelta(t, -350.0, res.Trades[0].NetPnL, 1e-6)

	assert.Equal(t, 1, res.Rejections[risk.CodeDailyLossLimit])
	assert.Equal(t, 2, res.Admitted, "admitted again after the UTC date rolls")
	assert.Equal(t, nextDay, res.Trades[1].EntryTime)
}

func TestForcedCloseAtLastBar(t *testing.T) {
	t.Parallel()

	p := risk.DefaultParams()
	e := newEngine(t, p)

	res, err := e.Run(context.Background(), []market.Signal{
		flat(0, 100, true),
		flat(1, 100.1, false),
	})
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)

	tr := res.Trades[0]
	assert.Equal(t, ledger.ExitForcedClose, tr.ExitReason)
	assert.InDelta(t, 100.1*(1-p.SlippageFraction), tr.ExitPrice, 1e-9)
	assert.Equal(t, 0, res.Final.OpenCount)
	assert.InDelta(t, res.Final.Cash, res.Final.Equity, 1e-9)

	wantNet := (tr.ExitPrice-tr.EntryPrice)*tr.Quantity - tr.TotalFee
	assert.InDelta(t, wantNet, tr.NetPnL, 1e-9)
	assert.InDelta(t, wantNet/(tr.EntryPrice*tr.Quantity)*100, tr.NetPnLPct, 1e-9)
}

func TestTakeProfitExit(t *testing.T) {
	t.Parallel()

	p := risk.DefaultParams()
	e := newEngine(t, p)

	res, err := e.Run(context.Background(), []market.Signal{
		flat(0, 100, true),
		bar(1, 100, 101, 99.9, 100.5, false),
	})
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	tr := res.Trades[0]
	assert.Equal(t, ledger.ExitTakeProfit, tr.ExitReason)

	tp := 100 * (1 + p.SlippageFraction) * (1 + p.TakeProfitFraction)
	assert.InDelta(t, tp*(1-p.SlippageFraction), tr.ExitPrice, 1e-9)
}

func TestRejectsUnorderedBars(t *testing.T) {
	t.Parallel()

	e := newEngine(t, risk.DefaultParams())
	_, err := e.Run(context.Background(), []market.Signal{flat(1, 100, false), flat(1, 100, false)})
	assert.ErrorIs(t, err, ErrUnorderedCandles)

	_, err = e.Run(context.Background(), []market.Signal{flat(2, 100, false), flat(1, 100, false)})
	assert.ErrorIs(t, err, ErrUnorderedCandles)
}

func TestEmptyRun(t *testing.T) {
	t.Parallel()

	e := newEngine(t, risk.DefaultParams())
	res, err := e.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Trades)
	assert.Equal(t, 10_000.0, res.Final.Equity)
}

func TestCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := newEngine(t, risk.DefaultParams())
	_, err := e.Run(ctx, []market.Signal{flat(0, 100, true)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInvalidParams(t *testing.T) {
	t.Parallel()

	p := risk.DefaultParams()
	p.MaxOpenTrades = 0
	_, err := NewEngine(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_open_trades")
}

// randomWalk builds n one-minute bars spanning several days with frequent
// buy signals.
func randomWalk(seed int64, n int) []market.Signal {
	rng := rand.New(rand.NewSource(seed))
	out := make([]market.Signal, n)
	px := 100.0
	for i := range out {
		o := px
		px *= 1 + (rng.Float64()-0.52)*0.01
		hi := max(o, px) * (1 + rng.Float64()*0.003)
		lo := min(o, px) * (1 - rng.Float64()*0.003)
		out[i] = market.Signal{
			Candle: market.Candle{Time: start.Add(time.Duration(i) * 7 * time.Minute), Open: o, High: hi, Low: lo, Close: px, Volume: 1},
			Buy:    rng.Intn(4) == 0,
		}
	}
	return out
}

func TestRunInvariants(t *testing.T) {
	t.Parallel()

	for _, seed := range []int64{1, 2, 3, 42, 99} {
		p := risk.DefaultParams()
		p.MaxOpenTrades = 2
		p.RiskPerTradeFraction = 0.05
		p.CircuitBreakerDrawdown = 0.05

		j := journal.NewMemory()
		e := newEngine(t, p, WithJournal(j))
		bars := randomWalk(seed, 2_000)

		res, err := e.Run(context.Background(), bars)
		require.NoError(t, err)
		assert.LessOrEqual(t, res.MaxOpen, p.MaxOpenTrades)

		peak := 0.0
		for _, rec := range j.Equity() {
			assert.LessOrEqual(t, rec.OpenCount, p.MaxOpenTrades)
			assert.GreaterOrEqual(t, rec.PeakEquity, peak, "peak never decreases")
			assert.GreaterOrEqual(t, rec.PeakEquity, rec.Equity)
			peak = rec.PeakEquity
		}

		if !res.BreakerTrippedAt.IsZero() {
			for _, d := range j.Decisions() {
				if d.Action == journal.ActionOpen && d.Time.After(res.BreakerTrippedAt) {
					assert.False(t, d.Allowed, "seed %d: open admitted after breaker at %s", seed, d.Time)
				}
			}
		}
		assert.Len(t, j.Trades(), len(res.Trades))
		assert.Equal(t, 0, res.Final.OpenCount)
	}
}

func TestRunIsDeterministic(t *testing.T) {
	t.Parallel()

	bars := randomWalk(7, 1_000)
	e := newEngine(t, risk.DefaultParams())

	a, err := e.Run(context.Background(), bars)
	require.NoError(t, err)
	b, err := e.Run(context.Background(), bars)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}
