// Package sim replays a finite candle series through the ledger and risk
// gate. A run is synchronous and deterministic: the same bars and params
// always produce the same trades and equity curve.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rustyeddy/spottrader/internal/logging"
	"github.com/rustyeddy/spottrader/journal"
	"github.com/rustyeddy/spottrader/ledger"
	"github.com/rustyeddy/spottrader/market"
	"github.com/rustyeddy/spottrader/risk"
)

// ErrUnorderedCandles is returned when bar times are not strictly increasing.
var ErrUnorderedCandles = errors.New("sim: candles not in strictly increasing time order")

type Engine struct {
	params  risk.Params
	symbol  string
	runID   string
	journal journal.Journal
	log     *slog.Logger
}

type Option func(*Engine)

// WithJournal streams trades, equity and decisions to j as the run
// progresses. The engine does not close j.
func WithJournal(j journal.Journal) Option {
	return func(e *Engine) { e.journal = j }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithRunID tags journal records. Defaults to "sim".
func WithRunID(id string) Option {
	return func(e *Engine) { e.runID = id }
}

func WithSymbol(s string) Option {
	return func(e *Engine) { e.symbol = s }
}

func NewEngine(p risk.Params, opts ...Option) (*Engine, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("sim: %w", err)
	}
	e := &Engine{
		params:  p,
		runID:   "sim",
		journal: journal.Nop{},
		log:     logging.L(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) Params() risk.Params { return e.params }

// Result is everything a run produced.
type Result struct {
	Trades []ledger.ClosedTrade
	Equity []ledger.EquitySnapshot

	Admitted   int
	Rejections map[string]int // violation code → count

	// MaxOpen is the highest open position count seen at any point.
	MaxOpen int

	// BreakerTrippedAt is the bar time the drawdown breaker latched, zero if
	// it never did.
	BreakerTrippedAt time.Time

	Final ledger.RiskState
}

// run holds the per-invocation state. Nothing here outlives Run.
type run struct {
	*Engine
	l   *ledger.Ledger
	g   *risk.Gate
	res Result
	seq int
}

// Run simulates bars in order. For every bar it rolls the daily window,
// checks exits (stop before target), evaluates the breaker, opens on a buy
// signal if the gate admits it, and marks equity at the close. Positions
// still open after the last bar are closed at its close.
func (e *Engine) Run(ctx context.Context, bars []market.Signal) (Result, error) {
	for i := 1; i < len(bars); i++ {
		if !bars[i].Time.After(bars[i-1].Time) {
			return Result{}, fmt.Errorf("%w: bar %d at %s follows %s", ErrUnorderedCandles,
				i, bars[i].Time.Format(time.RFC3339), bars[i-1].Time.Format(time.RFC3339))
		}
	}

	l := ledger.New(e.params.InitialCapital)
	r := &run{
		Engine: e,
		l:      l,
		g:      risk.NewGate(e.params, l),
		res:    Result{Rejections: map[string]int{}},
	}
	r.res.Equity = make([]ledger.EquitySnapshot, 0, len(bars))

	for i, bar := range bars {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
		}
		if err := r.step(bar); err != nil {
			return Result{}, err
		}
	}

	if len(bars) > 0 {
		if err := r.closeAll(bars[len(bars)-1].Candle); err != nil {
			return Result{}, err
		}
	}

	r.res.Final = l.State()
	e.log.Debug("sim run complete",
		"run", e.runID,
		"bars", len(bars),
		"trades", len(r.res.Trades),
		"final_equity", r.res.Final.Equity,
		"breaker", r.res.Final.CircuitBreakerActive)
	return r.res, nil
}

func (r *run) step(bar market.Signal) error {
	r.l.RollDailyWindow(bar.Time)

	for _, p := range r.l.Positions() {
		reason, trigger, hit := risk.ExitTrigger(p, bar.Low, bar.High)
		if !hit {
			continue
		}
		if err := r.close(p, r.g.ExitPrice(trigger), bar.Time, reason); err != nil {
			return err
		}
	}

	r.checkBreaker(bar.Time)

	if bar.Buy {
		r.tryOpen(bar.Candle)
	}

	r.l.MarkToMarket(bar.Close)
	s := r.l.State()
	r.res.Equity = append(r.res.Equity, ledger.EquitySnapshot{Time: bar.Time, Equity: s.Equity})
	if err := r.journal.RecordEquity(journal.EquityRecord{
		RunID:      r.runID,
		Time:       bar.Time,
		Cash:       s.Cash,
		Equity:     s.Equity,
		PeakEquity: s.PeakEquity,
		OpenCount:  s.OpenCount,
	}); err != nil {
		return fmt.Errorf("sim: record equity: %w", err)
	}

	// Latch on the bar whose close first crosses the threshold rather than
	// waiting for the next bar's pre-entry check.
	r.checkBreaker(bar.Time)
	return nil
}

func (r *run) checkBreaker(at time.Time) {
	if r.g.CheckCircuitBreaker() {
		r.res.BreakerTrippedAt = at
		s := r.l.State()
		r.log.Warn("circuit breaker tripped",
			"run", r.runID,
			"time", at,
			"equity", s.Equity,
			"peak", s.PeakEquity,
			"drawdown", s.Drawdown())
	}
}

func (r *run) tryOpen(c market.Candle) {
	entry, d := r.g.PlanEntry(c.Close, r.l.Cash())
	rec := journal.DecisionRecord{
		RunID:  r.runID,
		Symbol: r.symbol,
		Time:   c.Time,
		Action: journal.ActionOpen,
		Price:  c.Close,
	}

	if !d.Allowed {
		for _, v := range d.Violations {
			r.res.Rejections[v.Code]++
		}
		rec.Codes = d.Codes()
		rec.Detail = violationDetail(d)
		r.record(rec)
		return
	}

	r.seq++
	pos := ledger.Position{
		ID:         fmt.Sprintf("%s-%06d", r.runID, r.seq),
		EntryTime:  c.Time,
		EntryPrice: entry.Price,
		Quantity:   entry.Quantity,
		TakeProfit: entry.TakeProfit,
		StopLoss:   entry.StopLoss,
	}
	cost := entry.Cost()
	if err := r.l.ApplyOpen(pos, cost, r.g.Fee(cost)); err != nil {
		// The clamp sized against the same cash figure, so this is a
		// bookkeeping bug rather than a policy rejection.
		r.res.Rejections[risk.CodeInsufficientCash]++
		rec.Codes = risk.CodeInsufficientCash
		rec.Detail = err.Error()
		r.record(rec)
		r.log.Error("sim open failed after admission", "run", r.runID, "err", err)
		return
	}

	r.res.Admitted++
	if n := r.l.OpenCount(); n > r.res.MaxOpen {
		r.res.MaxOpen = n
	}
	rec.Allowed = true
	rec.PositionID = pos.ID
	rec.Price = entry.Price
	rec.Quantity = entry.Quantity
	r.record(rec)
}

func (r *run) close(p ledger.Position, price float64, at time.Time, reason ledger.ExitReason) error {
	tr, err := r.l.ApplyClose(p.ID, price, r.g.Fee(price*p.Quantity), at, reason)
	if err != nil {
		return fmt.Errorf("sim: %w", err)
	}
	r.res.Trades = append(r.res.Trades, tr)
	if err := r.journal.RecordTrade(journal.TradeRecord{RunID: r.runID, Symbol: r.symbol, ClosedTrade: tr}); err != nil {
		return fmt.Errorf("sim: record trade: %w", err)
	}
	r.record(journal.DecisionRecord{
		RunID:      r.runID,
		Symbol:     r.symbol,
		Time:       at,
		Action:     journal.ActionClose,
		Allowed:    true,
		Codes:      string(reason),
		PositionID: p.ID,
		Price:      price,
		Quantity:   p.Quantity,
	})
	return nil
}

// closeAll flattens at the last bar so every run ends in cash.
func (r *run) closeAll(last market.Candle) error {
	px := r.g.ExitPrice(last.Close)
	for _, p := range r.l.Positions() {
		if err := r.close(p, px, last.Time, ledger.ExitForcedClose); err != nil {
			return err
		}
	}
	r.l.MarkToMarket(last.Close)
	return nil
}

func (r *run) record(d journal.DecisionRecord) {
	if err := r.journal.RecordDecision(d); err != nil {
		r.log.Warn("sim: record decision", "err", err)
	}
}

func violationDetail(d risk.Decision) string {
	if len(d.Violations) == 0 {
		return ""
	}
	out := d.Violations[0].Msg
	for _, v := range d.Violations[1:] {
		out += "; " + v.Msg
	}
	return out
}
