package ledger

import "time"

type ExitReason string

const (
	ExitTakeProfit  ExitReason = "TP"
	ExitStopLoss    ExitReason = "SL"
	ExitForcedClose ExitReason = "FORCED_CLOSE"
)

// Position is an open long holding. TakeProfit and StopLoss are fixed at
// admission.
type Position struct {
	ID         string    `json:"id"`
	EntryTime  time.Time `json:"entry_time"`
	EntryPrice float64   `json:"entry_price"`
	Quantity   float64   `json:"quantity"`
	TakeProfit float64   `json:"tp_price"`
	StopLoss   float64   `json:"sl_price"`
	EntryFee   float64   `json:"entry_fee"`

	// Live mode only.
	OrderID        string `json:"order_id,omitempty"`
	NeedsAttention bool   `json:"needs_attention,omitempty"`
	LastError      string `json:"last_error,omitempty"`
}

type ClosedTrade struct {
	PositionID string     `json:"position_id"`
	EntryTime  time.Time  `json:"entry_time"`
	ExitTime   time.Time  `json:"exit_time"`
	EntryPrice float64    `json:"entry_price"`
	ExitPrice  float64    `json:"exit_price"`
	Quantity   float64    `json:"quantity"`
	ExitReason ExitReason `json:"exit_reason"`
	NetPnL     float64    `json:"net_pnl"`
	NetPnLPct  float64    `json:"net_pnl_pct"`
	TotalFee   float64    `json:"total_fee"`
}

type EquitySnapshot struct {
	Time   time.Time `json:"timestamp"`
	Equity float64   `json:"equity"`
}

// RiskState is the read-only view the risk gate evaluates.
type RiskState struct {
	Cash                 float64
	Equity               float64
	PeakEquity           float64
	DailyPnL             float64
	DailyDate            string
	CircuitBreakerActive bool
	HaltReason           string
	OpenCount            int
}

// Drawdown is the fractional decline of equity from peak.
func (s RiskState) Drawdown() float64 {
	if s.PeakEquity <= 0 {
		return 0
	}
	return (s.PeakEquity - s.Equity) / s.PeakEquity
}

// Snapshot is the persistable form of a ledger.
type Snapshot struct {
	Positions            []Position `json:"positions"`
	Cash                 float64    `json:"cash"`
	InitialEquity        float64    `json:"initial_equity"`
	PeakEquity           float64    `json:"peak_equity"`
	DailyPnL             float64    `json:"daily_pnl"`
	DailyDate            string     `json:"daily_date"`
	CircuitBreakerActive bool       `json:"circuit_breaker"`
	HaltReason           string     `json:"halt_reason,omitempty"`
	TradeCount           int        `json:"trade_count"`
	LastPrice            float64    `json:"last_price"`
}
