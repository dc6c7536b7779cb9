// Package live drives the ledger and risk gate from a venue's market data
// stream and turns admitted decisions into real market orders. Exits, the
// daily window and the drawdown breaker follow the same rules as the
// simulator; persistence lets a restarted process resume where it stopped.
package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rustyeddy/spottrader/broker"
	"github.com/rustyeddy/spottrader/internal/id"
	"github.com/rustyeddy/spottrader/internal/logging"
	"github.com/rustyeddy/spottrader/journal"
	"github.com/rustyeddy/spottrader/ledger"
	"github.com/rustyeddy/spottrader/market"
	"github.com/rustyeddy/spottrader/risk"
)

var (
	ErrNotConnected       = errors.New("live: engine not connected")
	ErrInvariantViolation = errors.New("live: invariant violation")
)

// Decision codes for outcomes the gate cannot see.
const (
	CodeVenueRejected    = "VENUE_REJECTED"
	CodeVenueUnavailable = "VENUE_UNAVAILABLE"
	CodeCloseRejected    = "CLOSE_REJECTED"
	CodeCloseRetry       = "CLOSE_RETRY"
)

// flattenTimeout bounds the best-effort close-all on shutdown, which runs
// after the caller's context is already done.
const flattenTimeout = 30 * time.Second

type State int

const (
	Disconnected State = iota
	Connected
	Active
	CircuitBroken
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "DISCONNECTED"
	case Connected:
		return "CONNECTED"
	case Active:
		return "ACTIVE"
	case CircuitBroken:
		return "CIRCUIT_BROKEN"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

type Config struct {
	Symbol     string
	BaseAsset  string
	QuoteAsset string
	Params     risk.Params

	// FlattenOnStop closes every position when Run ends.
	FlattenOnStop bool
}

// Engine is safe for concurrent use: Run owns the event loop while
// CloseAll, Reset and Status may be called from other goroutines. All of
// them serialize on one mutex, so ledger mutations never interleave.
type Engine struct {
	mu sync.Mutex

	cfg     Config
	venue   broker.Venue
	store   *StateStore
	journal journal.Journal
	metrics *Metrics
	log     *slog.Logger
	now     func() time.Time
	runID   string

	ledger      *ledger.Ledger
	gate        *risk.Gate
	constraints broker.SymbolConstraints
	state       State
	lastPrice   float64
	lastEvent   time.Time
}

type Option func(*Engine)

// WithStateStore persists the ledger after every event and restores it on
// Connect.
func WithStateStore(s *StateStore) Option { return func(e *Engine) { e.store = s } }

func WithJournal(j journal.Journal) Option { return func(e *Engine) { e.journal = j } }

func WithMetrics(m *Metrics) Option { return func(e *Engine) { e.metrics = m } }

func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.log = l } }

// WithClock replaces time.Now for timestamps that do not come from an
// event, such as manual closes.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func WithRunID(runID string) Option { return func(e *Engine) { e.runID = runID } }

func NewEngine(cfg Config, venue broker.Venue, opts ...Option) (*Engine, error) {
	if err := cfg.Params.Validate(); err != nil {
		return nil, fmt.Errorf("live: %w", err)
	}
	if cfg.Symbol == "" || cfg.QuoteAsset == "" {
		return nil, errors.New("live: symbol and quote asset are required")
	}
	e := &Engine{
		cfg:     cfg,
		venue:   venue,
		journal: journal.Nop{},
		log:     logging.L(),
		now:     time.Now,
		runID:   "live",
		ledger:  ledger.New(cfg.Params.InitialCapital),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.gate = risk.NewGate(cfg.Params, e.ledger)
	return e, nil
}

// Connect loads the venue's symbol rules and either resumes the persisted
// ledger or starts a fresh one funded with the free quote balance.
func (e *Engine) Connect(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.venue.GetSymbolConstraints(ctx, e.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("live: connect: %w", err)
	}
	e.constraints = c

	resumed := false
	if e.store != nil {
		snap, ok, err := e.store.Load()
		if err != nil {
			return fmt.Errorf("live: connect: %w", err)
		}
		if ok {
			e.ledger.Restore(snap)
			e.lastPrice = snap.LastPrice
			resumed = true
		}
	}
	if !resumed {
		capital, err := e.startingCapital(ctx)
		if err != nil {
			return fmt.Errorf("live: connect: %w", err)
		}
		e.ledger.Reset(capital)
	}

	e.state = Connected
	s := e.ledger.State()
	e.metrics.observe(s)
	e.log.Info("live engine connected",
		"symbol", e.cfg.Symbol,
		"resumed", resumed,
		"cash", s.Cash,
		"open", s.OpenCount,
		"peak", s.PeakEquity,
		"breaker", s.CircuitBreakerActive)
	return nil
}

// startingCapital is the free quote balance, or the configured capital
// when the venue reports none.
func (e *Engine) startingCapital(ctx context.Context) (float64, error) {
	bal, err := e.venue.GetBalance(ctx, e.cfg.QuoteAsset)
	if err != nil {
		return 0, err
	}
	if bal > 0 {
		return bal, nil
	}
	return e.cfg.Params.InitialCapital, nil
}

// Run consumes events until ctx is done or the channel closes. Failed
// events are logged and the loop carries on; an invariant violation has
// already halted new entries. When FlattenOnStop is set every open
// position is closed on the way out.
func (e *Engine) Run(ctx context.Context, events <-chan market.Event) error {
	if e.State() == Disconnected {
		return ErrNotConnected
	}

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			runErr = ctx.Err()
			break loop
		case ev, ok := <-events:
			if !ok {
				break loop
			}
			if err := e.HandleEvent(ctx, ev); err != nil {
				if ctx.Err() != nil {
					runErr = ctx.Err()
					break loop
				}
				e.log.Error("live event failed", "time", ev.Time, "err", err)
			}
		}
	}

	if e.cfg.FlattenOnStop {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flattenTimeout)
		defer cancel()
		if err := e.CloseAll(fctx); err != nil {
			e.log.Error("flatten on stop incomplete", "err", err)
		}
	}
	return runErr
}

// HandleEvent processes one market update. Exits are checked on every
// update; entries only on closed candles carrying a buy signal.
func (e *Engine) HandleEvent(ctx context.Context, ev market.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == Disconnected {
		return ErrNotConnected
	}
	if e.state == Connected {
		e.setState(Active)
	}

	if e.ledger.RollDailyWindow(ev.Time) {
		e.log.Info("daily window rolled", "date", market.Date(ev.Time))
	}

	price := ev.Close
	e.lastPrice = price
	e.lastEvent = ev.Time
	e.syncCash(ctx)
	e.ledger.MarkToMarket(price)
	e.checkBreaker(ev.Time)

	var errs []error
	for _, p := range e.ledger.Positions() {
		if p.NeedsAttention {
			continue
		}
		reason, _, hit := risk.ExitTrigger(p, price, price)
		if !hit {
			continue
		}
		if err := e.closePosition(ctx, p, ev.Time, reason); err != nil {
			errs = append(errs, err)
			if errors.Is(err, ErrInvariantViolation) || ctx.Err() != nil {
				break
			}
		}
	}

	if ev.Closed && ev.Buy && ctx.Err() == nil {
		if err := e.tryOpen(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}

	e.ledger.MarkToMarket(price)
	e.checkBreaker(ev.Time)
	e.persist()
	e.recordEquity(ev.Time)
	return errors.Join(errs...)
}

// syncCash replaces the ledger's cash with the venue's free quote balance.
// A failed query keeps the last known figure.
func (e *Engine) syncCash(ctx context.Context) {
	bal, err := e.venue.GetBalance(ctx, e.cfg.QuoteAsset)
	if err != nil {
		e.log.Warn("balance sync failed, keeping ledger cash", "asset", e.cfg.QuoteAsset, "err", err)
		return
	}
	e.ledger.SetCash(bal)
}

func (e *Engine) checkBreaker(at time.Time) {
	if !e.gate.CheckCircuitBreaker() {
		if e.ledger.State().CircuitBreakerActive && e.state == Active {
			e.setState(CircuitBroken)
		}
		return
	}
	s := e.ledger.State()
	e.log.Error("circuit breaker tripped, new entries blocked until reset",
		"time", at,
		"equity", s.Equity,
		"peak", s.PeakEquity,
		"drawdown", s.Drawdown())
	e.setState(CircuitBroken)
	e.persist()
}

func (e *Engine) setState(s State) {
	if e.state == s {
		return
	}
	e.log.Info("live state change", "from", e.state, "to", s)
	e.state = s
}

func (e *Engine) tryOpen(ctx context.Context, ev market.Event) error {
	rec := journal.DecisionRecord{
		RunID:  e.runID,
		Symbol: e.cfg.Symbol,
		Time:   ev.Time,
		Action: journal.ActionOpen,
		Price:  ev.Close,
	}

	entry, d := e.gate.PlanEntry(ev.Close, e.ledger.Cash())
	if d.Allowed {
		qty := e.constraints.RoundQty(entry.Quantity)
		if qty <= 0 {
			d.Reject(risk.CodeNonPositiveSize, fmt.Sprintf("quantity %g rounds to zero at lot step %s", entry.Quantity, e.constraints.LotStep))
		} else if err := e.constraints.Check(qty, entry.Price); err != nil {
			d.Reject(risk.CodeBelowMinNotional, err.Error())
		}
		entry.Quantity = qty
	}
	if !d.Allowed {
		e.reject(rec, d.Violations[0].Code, d.Codes(), joinViolations(d))
		return nil
	}

	fill, err := e.venue.PlaceMarketOrder(ctx, broker.OrderRequest{
		Symbol:   e.cfg.Symbol,
		Side:     broker.Buy,
		Quantity: entry.Quantity,
	})
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		code := CodeVenueUnavailable
		if broker.IsRejected(err) {
			code = CodeVenueRejected
		}
		e.metrics.order(string(broker.Buy), code)
		e.reject(rec, code, code, err.Error())
		return fmt.Errorf("live: open: %w", err)
	}
	e.metrics.order(string(broker.Buy), "filled")

	// Exits follow the price actually paid, not the slippage estimate.
	tp, sl := e.gate.Targets(fill.AvgPrice)
	pos := ledger.Position{
		ID:         id.At(ev.Time),
		EntryTime:  ev.Time,
		EntryPrice: fill.AvgPrice,
		Quantity:   fill.Quantity,
		TakeProfit: tp,
		StopLoss:   sl,
		OrderID:    fill.OrderID,
	}
	cost := fill.AvgPrice * fill.Quantity
	fee := e.gate.Fee(cost)

	err = e.ledger.ApplyOpen(pos, cost, fee)
	if errors.Is(err, ledger.ErrInsufficientCash) {
		// The venue has already filled; the balance sync on the next event
		// puts cash right.
		e.log.Warn("fill exceeds ledger cash, booking anyway",
			"cost", cost+fee, "cash", e.ledger.Cash(), "order", fill.OrderID)
		e.ledger.SetCash(cost + fee)
		err = e.ledger.ApplyOpen(pos, cost, fee)
	}
	if err != nil {
		return e.invariant(fmt.Sprintf("open fill %s not booked: %v", fill.OrderID, err))
	}

	e.metrics.decision("ADMITTED")
	rec.Allowed = true
	rec.PositionID = pos.ID
	rec.Price = fill.AvgPrice
	rec.Quantity = fill.Quantity
	e.record(rec)
	e.log.Info("position opened",
		"id", pos.ID,
		"order", fill.OrderID,
		"price", fill.AvgPrice,
		"qty", fill.Quantity,
		"tp", tp,
		"sl", sl,
		"commission", fill.Commission,
		"commission_asset", fill.CommissionAsset)
	e.persist()
	return nil
}

func (e *Engine) reject(rec journal.DecisionRecord, first, codes, detail string) {
	rec.Allowed = false
	rec.Codes = codes
	rec.Detail = detail
	e.metrics.decision(first)
	e.record(rec)
	e.log.Info("open rejected", "codes", codes, "detail", detail)
}

// closePosition sells p at market. A venue refusal flags the position for
// an operator and leaves it open; a transient failure is noted and the
// exit is retried on the next event.
func (e *Engine) closePosition(ctx context.Context, p ledger.Position, at time.Time, reason ledger.ExitReason) error {
	rec := journal.DecisionRecord{
		RunID:      e.runID,
		Symbol:     e.cfg.Symbol,
		Time:       at,
		Action:     journal.ActionClose,
		PositionID: p.ID,
		Price:      e.lastPrice,
		Quantity:   p.Quantity,
	}

	fill, err := e.venue.PlaceMarketOrder(ctx, broker.OrderRequest{
		Symbol:   e.cfg.Symbol,
		Side:     broker.Sell,
		Quantity: e.constraints.RoundQty(p.Quantity),
	})
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		rec.Detail = err.Error()
		if broker.IsRejected(err) {
			e.metrics.order(string(broker.Sell), CodeVenueRejected)
			if merr := e.ledger.MarkNeedsAttention(p.ID, err.Error()); merr != nil {
				return e.invariant(merr.Error())
			}
			rec.Codes = CodeCloseRejected
			e.log.Error("close rejected, position needs attention", "id", p.ID, "reason", reason, "err", err)
		} else {
			e.metrics.order(string(broker.Sell), CodeVenueUnavailable)
			e.ledger.NoteCloseError(p.ID, err.Error())
			rec.Codes = CodeCloseRetry
			e.log.Warn("close failed, will retry", "id", p.ID, "reason", reason, "err", err)
		}
		e.record(rec)
		e.persist()
		return fmt.Errorf("live: close %s: %w", p.ID, err)
	}
	e.metrics.order(string(broker.Sell), "filled")

	sold := fill.Quantity
	tr, err := e.ledger.ApplyPartialClose(p.ID, sold, fill.AvgPrice, e.gate.Fee(fill.AvgPrice*sold), at, reason)
	if err != nil {
		return e.invariant(fmt.Sprintf("close fill %s not booked: %v", fill.OrderID, err))
	}
	if rest, open := e.ledger.Position(p.ID); open {
		msg := fmt.Sprintf("sold %g of %g, %g left at the venue", sold, p.Quantity, rest.Quantity)
		if merr := e.ledger.MarkNeedsAttention(p.ID, msg); merr != nil {
			return e.invariant(merr.Error())
		}
		e.log.Error("partial close, remainder needs attention", "id", p.ID, "order", fill.OrderID, "sold", sold, "left", rest.Quantity)
	}

	e.metrics.exit(reason)
	if err := e.journal.RecordTrade(journal.TradeRecord{RunID: e.runID, Symbol: e.cfg.Symbol, ClosedTrade: tr}); err != nil {
		e.log.Warn("record trade", "id", tr.PositionID, "err", err)
	}
	rec.Allowed = true
	rec.Codes = string(reason)
	rec.Price = fill.AvgPrice
	rec.Quantity = tr.Quantity
	e.record(rec)
	e.log.Info("position closed",
		"id", tr.PositionID,
		"reason", reason,
		"order", fill.OrderID,
		"exit", tr.ExitPrice,
		"net_pnl", tr.NetPnL,
		"net_pnl_pct", tr.NetPnLPct)
	e.persist()
	return nil
}

// invariant halts new entries and wraps the inconsistency for the caller.
func (e *Engine) invariant(reason string) error {
	e.ledger.Halt(reason)
	e.log.Error("bookkeeping inconsistency, trading halted until reset", "reason", reason)
	e.persist()
	return fmt.Errorf("%w: %s", ErrInvariantViolation, reason)
}

// CloseAll market-sells every open position with reason FORCED_CLOSE,
// including flagged ones. With nothing open it does nothing, so calling it
// twice never duplicates a trade.
func (e *Engine) CloseAll(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == Disconnected {
		return ErrNotConnected
	}
	at := e.now().UTC()
	if e.ledger.RollDailyWindow(at) {
		e.log.Info("daily window rolled", "date", market.Date(at))
	}
	positions := e.ledger.Positions()
	if len(positions) == 0 {
		return nil
	}

	if px, err := e.venue.GetPrice(ctx, e.cfg.Symbol); err == nil {
		e.lastPrice = px
	}
	e.log.Warn("closing all positions", "count", len(positions))

	var errs []error
	for _, p := range positions {
		if err := e.closePosition(ctx, p, at, ledger.ExitForcedClose); err != nil {
			errs = append(errs, err)
		}
	}
	if e.lastPrice > 0 {
		e.ledger.MarkToMarket(e.lastPrice)
	}
	e.persist()
	e.recordEquity(at)
	return errors.Join(errs...)
}

// Reset is the operator escape hatch: it discards every position and
// tracker, clears the breaker and any halt, deletes persisted state and
// starts over from the current free quote balance. Positions still held at
// the venue are forgotten, so close them first.
func (e *Engine) Reset(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == Disconnected {
		return ErrNotConnected
	}
	capital, err := e.startingCapital(ctx)
	if err != nil {
		return fmt.Errorf("live: reset: %w", err)
	}
	if n := e.ledger.OpenCount(); n > 0 {
		e.log.Warn("reset discards open positions", "count", n)
	}
	e.ledger.Reset(capital)
	if e.store != nil {
		if err := e.store.Delete(); err != nil {
			return fmt.Errorf("live: reset: %w", err)
		}
	}
	e.setState(Connected)
	e.metrics.observe(e.ledger.State())
	e.log.Warn("live engine reset", "capital", capital)
	return nil
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) persist() {
	s := e.ledger.State()
	e.metrics.observe(s)
	if e.store == nil {
		return
	}
	err := e.store.Save(e.ledger.Snapshot())
	e.metrics.save(err)
	if err != nil {
		e.log.Error("persist state", "path", e.store.Path(), "err", err)
	}
}

func (e *Engine) recordEquity(at time.Time) {
	s := e.ledger.State()
	if err := e.journal.RecordEquity(journal.EquityRecord{
		RunID:      e.runID,
		Time:       at,
		Cash:       s.Cash,
		Equity:     s.Equity,
		PeakEquity: s.PeakEquity,
		OpenCount:  s.OpenCount,
	}); err != nil {
		e.log.Warn("record equity", "err", err)
	}
}

func (e *Engine) record(d journal.DecisionRecord) {
	if err := e.journal.RecordDecision(d); err != nil {
		e.log.Warn("record decision", "err", err)
	}
}

func joinViolations(d risk.Decision) string {
	if len(d.Violations) == 0 {
		return ""
	}
	out := d.Violations[0].Msg
	for _, v := range d.Violations[1:] {
		out += "; " + v.Msg
	}
	return out
}
