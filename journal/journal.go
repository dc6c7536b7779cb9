// Package journal persists what the engines did: closed trades, the equity
// curve and every admission decision, to CSV files, SQLite or memory.
package journal

import (
	"time"

	"github.com/rustyeddy/spottrader/ledger"
)

type TradeRecord struct {
	RunID  string
	Symbol string
	ledger.ClosedTrade
}

type EquityRecord struct {
	RunID      string
	Time       time.Time
	Cash       float64
	Equity     float64
	PeakEquity float64
	OpenCount  int
}

// Decision actions.
const (
	ActionOpen  = "OPEN"
	ActionClose = "CLOSE"
)

// DecisionRecord is one admitted or rejected action with the reason.
type DecisionRecord struct {
	RunID      string
	Symbol     string
	Time       time.Time
	Action     string
	Allowed    bool
	Codes      string
	Detail     string
	PositionID string
	Price      float64
	Quantity   float64
}

type Journal interface {
	RecordTrade(TradeRecord) error
	RecordEquity(EquityRecord) error
	RecordDecision(DecisionRecord) error
	Close() error
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordTrade(TradeRecord) error       { return nil }
func (Nop) RecordEquity(EquityRecord) error     { return nil }
func (Nop) RecordDecision(DecisionRecord) error { return nil }
func (Nop) Close() error                        { return nil }
