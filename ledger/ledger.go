// Package ledger is the bookkeeping core shared by the simulator and the
// live engine: cash, open positions, equity, peak equity and the daily P&L
// window. It performs no I/O and makes no policy decisions.
package ledger

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rustyeddy/spottrader/market"
)

var (
	ErrInsufficientCash  = errors.New("ledger: insufficient cash")
	ErrUnknownPosition   = errors.New("ledger: unknown position")
	ErrDuplicatePosition = errors.New("ledger: duplicate position id")
	ErrInvalidPosition   = errors.New("ledger: invalid position")
)

// cashTolerance absorbs float rounding when a clamp sizes an order to
// exactly the available cash.
const cashTolerance = 1e-9

// qtyTolerance treats a sale within float noise of the position as a full
// close.
const qtyTolerance = 1e-9

// Ledger is not safe for concurrent use. Each driver owns one instance and
// serializes mutations through its own loop.
type Ledger struct {
	initial    float64
	cash       float64
	equity     float64
	peak       float64
	dailyPnL   float64
	dailyDate  string
	breaker    bool
	haltReason string
	tradeCount int
	lastPrice  float64

	positions []*Position
}

// New returns a ledger holding capital in cash and nothing else.
func New(capital float64) *Ledger {
	l := &Ledger{}
	l.Reset(capital)
	return l
}

// Reset clears every position and tracker and starts over with capital.
func (l *Ledger) Reset(capital float64) {
	*l = Ledger{
		initial: capital,
		cash:    capital,
		equity:  capital,
		peak:    capital,
	}
}

// MarkToMarket revalues open positions at price and raises the peak when
// equity makes a new high.
func (l *Ledger) MarkToMarket(price float64) {
	l.lastPrice = price
	l.equity = l.cash + l.exposure(price)
	if l.equity > l.peak {
		l.peak = l.equity
	}
}

func (l *Ledger) exposure(price float64) float64 {
	var v float64
	for _, p := range l.positions {
		v += p.Quantity * price
	}
	return v
}

// ApplyOpen records a filled entry. cost is entry price times quantity,
// fee is the entry commission in quote currency.
func (l *Ledger) ApplyOpen(pos Position, cost, fee float64) error {
	if pos.ID == "" || pos.Quantity <= 0 || pos.EntryPrice <= 0 {
		return fmt.Errorf("apply open: %w: id=%q qty=%v entry=%v", ErrInvalidPosition, pos.ID, pos.Quantity, pos.EntryPrice)
	}
	if l.find(pos.ID) >= 0 {
		return fmt.Errorf("apply open: %w: %q", ErrDuplicatePosition, pos.ID)
	}
	need := cost + fee
	if need > l.cash*(1+cashTolerance) {
		return fmt.Errorf("apply open: %w: need %.8f, have %.8f", ErrInsufficientCash, need, l.cash)
	}

	l.cash -= need
	if l.cash < 0 {
		l.cash = 0
	}
	pos.EntryFee = fee
	p := pos
	l.positions = append(l.positions, &p)
	return nil
}

// ApplyClose removes the position, credits the proceeds net of fee and
// books the realised P&L against the current day.
func (l *Ledger) ApplyClose(id string, exitPrice, fee float64, at time.Time, reason ExitReason) (ClosedTrade, error) {
	i := l.find(id)
	if i < 0 {
		return ClosedTrade{}, fmt.Errorf("apply close: %w: %q", ErrUnknownPosition, id)
	}
	return l.close(i, l.positions[i].Quantity, exitPrice, fee, at, reason), nil
}

// ApplyPartialClose books the sale of qty units of the position. The
// remainder stays open with its share of the entry fee. A qty at or above
// the position's quantity closes it entirely.
func (l *Ledger) ApplyPartialClose(id string, qty, exitPrice, fee float64, at time.Time, reason ExitReason) (ClosedTrade, error) {
	i := l.find(id)
	if i < 0 {
		return ClosedTrade{}, fmt.Errorf("apply close: %w: %q", ErrUnknownPosition, id)
	}
	if qty <= 0 || math.IsNaN(qty) {
		return ClosedTrade{}, fmt.Errorf("apply close: %w: qty=%v", ErrInvalidPosition, qty)
	}
	return l.close(i, qty, exitPrice, fee, at, reason), nil
}

func (l *Ledger) close(i int, qty, exitPrice, fee float64, at time.Time, reason ExitReason) ClosedTrade {
	p := l.positions[i]
	entry := *p
	entryFee := p.EntryFee
	if qty >= p.Quantity*(1-qtyTolerance) {
		qty = p.Quantity
		l.positions = append(l.positions[:i], l.positions[i+1:]...)
	} else {
		entryFee = p.EntryFee * qty / p.Quantity
		p.EntryFee -= entryFee
		p.Quantity -= qty
	}

	l.cash += exitPrice*qty - fee

	gross := (exitPrice - entry.EntryPrice) * qty
	net := gross - entryFee - fee
	var pct float64
	if notional := entry.EntryPrice * qty; notional > 0 {
		pct = net / notional * 100
	}
	l.dailyPnL += net
	l.tradeCount++

	return ClosedTrade{
		PositionID: entry.ID,
		EntryTime:  entry.EntryTime,
		ExitTime:   at,
		EntryPrice: entry.EntryPrice,
		ExitPrice:  exitPrice,
		Quantity:   qty,
		ExitReason: reason,
		NetPnL:     net,
		NetPnLPct:  pct,
		TotalFee:   entryFee + fee,
	}
}

// RollDailyWindow resets the daily P&L when t falls on a different UTC
// date than the one being tracked. It reports whether a roll happened.
func (l *Ledger) RollDailyWindow(t time.Time) bool {
	d := market.Date(t)
	if d == l.dailyDate {
		return false
	}
	l.dailyDate = d
	l.dailyPnL = 0
	return true
}

// TripCircuitBreaker latches the breaker. Only Reset clears it.
func (l *Ledger) TripCircuitBreaker() { l.breaker = true }

// Halt stops new admissions after a bookkeeping inconsistency. Like the
// breaker it is cleared only by Reset.
func (l *Ledger) Halt(reason string) {
	if l.haltReason == "" {
		l.haltReason = reason
	}
}

// SetCash replaces the cash figure with a venue-reported balance.
func (l *Ledger) SetCash(cash float64) {
	if math.IsNaN(cash) || cash < 0 {
		return
	}
	l.cash = cash
}

// MarkNeedsAttention flags a position whose close failed permanently.
func (l *Ledger) MarkNeedsAttention(id, reason string) error {
	i := l.find(id)
	if i < 0 {
		return fmt.Errorf("mark needs attention: %w: %q", ErrUnknownPosition, id)
	}
	l.positions[i].NeedsAttention = true
	l.positions[i].LastError = reason
	return nil
}

// NoteCloseError records a transient close failure without flagging.
func (l *Ledger) NoteCloseError(id, reason string) {
	if i := l.find(id); i >= 0 {
		l.positions[i].LastError = reason
	}
}

func (l *Ledger) find(id string) int {
	for i, p := range l.positions {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// Position returns a copy of the open position with id.
func (l *Ledger) Position(id string) (Position, bool) {
	if i := l.find(id); i >= 0 {
		return *l.positions[i], true
	}
	return Position{}, false
}

// Positions returns copies of the open positions in entry order.
func (l *Ledger) Positions() []Position {
	out := make([]Position, len(l.positions))
	for i, p := range l.positions {
		out[i] = *p
	}
	return out
}

func (l *Ledger) OpenCount() int         { return len(l.positions) }
func (l *Ledger) Cash() float64          { return l.cash }
func (l *Ledger) Equity() float64        { return l.equity }
func (l *Ledger) PeakEquity() float64    { return l.peak }
func (l *Ledger) InitialEquity() float64 { return l.initial }
func (l *Ledger) TradeCount() int        { return l.tradeCount }

// State returns a read-only snapshot of the risk-relevant figures.
func (l *Ledger) State() RiskState {
	return RiskState{
		Cash:                 l.cash,
		Equity:               l.equity,
		PeakEquity:           l.peak,
		DailyPnL:             l.dailyPnL,
		DailyDate:            l.dailyDate,
		CircuitBreakerActive: l.breaker,
		HaltReason:           l.haltReason,
		OpenCount:            len(l.positions),
	}
}

// Snapshot captures everything needed to rebuild the ledger after a restart.
func (l *Ledger) Snapshot() Snapshot {
	return Snapshot{
		Positions:            l.Positions(),
		Cash:                 l.cash,
		InitialEquity:        l.initial,
		PeakEquity:           l.peak,
		DailyPnL:             l.dailyPnL,
		DailyDate:            l.dailyDate,
		CircuitBreakerActive: l.breaker,
		HaltReason:           l.haltReason,
		TradeCount:           l.tradeCount,
		LastPrice:            l.lastPrice,
	}
}

// Restore replaces the ledger's state with s. Equity is recomputed from the
// restored cash and positions at the last known price.
func (l *Ledger) Restore(s Snapshot) {
	*l = Ledger{
		initial:    s.InitialEquity,
		cash:       s.Cash,
		peak:       s.PeakEquity,
		dailyPnL:   s.DailyPnL,
		dailyDate:  s.DailyDate,
		breaker:    s.CircuitBreakerActive,
		haltReason: s.HaltReason,
		tradeCount: s.TradeCount,
		lastPrice:  s.LastPrice,
	}
	for _, p := range s.Positions {
		p := p
		l.positions = append(l.positions, &p)
	}
	l.equity = l.cash + l.exposure(l.lastPrice)
	if l.equity > l.peak {
		l.peak = l.equity
	}
}
