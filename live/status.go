package live

import (
	"time"

	"github.com/rustyeddy/spottrader/ledger"
)

// Status is a point-in-time view for operators.
type Status struct {
	State          State             `json:"state"`
	Symbol         string            `json:"symbol"`
	LastPrice      float64           `json:"last_price"`
	LastEvent      time.Time         `json:"last_event"`
	InitialEquity  float64           `json:"initial_equity"`
	Equity         float64           `json:"equity"`
	PeakEquity     float64           `json:"peak_equity"`
	Cash           float64           `json:"cash"`
	DrawdownPct    float64           `json:"drawdown_pct"`
	TotalPnLPct    float64           `json:"total_pnl_pct"`
	DailyPnL       float64           `json:"daily_pnl"`
	DailyDate      string            `json:"daily_date"`
	TradeCount     int               `json:"trade_count"`
	CircuitBreaker bool              `json:"circuit_breaker"`
	HaltReason     string            `json:"halt_reason,omitempty"`
	Positions      []ledger.Position `json:"positions"`

	// NeedsAttention lists positions whose close the venue refused.
	NeedsAttention []string `json:"needs_attention,omitempty"`
}

func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return statusOf(e.ledger, e.state, e.cfg.Symbol, e.lastPrice, e.lastEvent)
}

// StatusOf describes a snapshot without a running engine, as `state show`
// does with the persisted file.
func StatusOf(symbol string, snap ledger.Snapshot) Status {
	l := ledger.New(0)
	l.Restore(snap)
	return statusOf(l, Disconnected, symbol, snap.LastPrice, time.Time{})
}

func statusOf(l *ledger.Ledger, state State, symbol string, price float64, at time.Time) Status {
	s := l.State()
	st := Status{
		State:          state,
		Symbol:         symbol,
		LastPrice:      price,
		LastEvent:      at,
		InitialEquity:  l.InitialEquity(),
		Equity:         s.Equity,
		PeakEquity:     s.PeakEquity,
		Cash:           s.Cash,
		DrawdownPct:    s.Drawdown() * 100,
		DailyPnL:       s.DailyPnL,
		DailyDate:      s.DailyDate,
		TradeCount:     l.TradeCount(),
		CircuitBreaker: s.CircuitBreakerActive,
		HaltReason:     s.HaltReason,
		Positions:      l.Positions(),
	}
	if st.InitialEquity > 0 {
		st.TotalPnLPct = (s.Equity - st.InitialEquity) / st.InitialEquity * 100
	}
	for _, p := range st.Positions {
		if p.NeedsAttention {
			st.NeedsAttention = append(st.NeedsAttention, p.ID)
		}
	}
	return st
}
