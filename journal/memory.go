package journal

import "sync"

// Memory keeps records in slices. Safe for concurrent use.
type Memory struct {
	mu        sync.Mutex
	trades    []TradeRecord
	equity    []EquityRecord
	decisions []DecisionRecord
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) RecordTrade(t TradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades = append(m.trades, t)
	return nil
}

func (m *Memory) RecordEquity(e EquityRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.equity = append(m.equity, e)
	return nil
}

func (m *Memory) RecordDecision(d DecisionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions = append(m.decisions, d)
	return nil
}

func (m *Memory) Close() error { return nil }

func (m *Memory) Trades() []TradeRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]TradeRecord(nil), m.trades...)
}

func (m *Memory) Equity() []EquityRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]EquityRecord(nil), m.equity...)
}

func (m *Memory) Decisions() []DecisionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]DecisionRecord(nil), m.decisions...)
}
