// Package risk is the admission policy: whether a position may be opened,
// how large it may be, where it exits, and when the drawdown breaker trips.
// The simulator and the live engine both go through a Gate so the two
// paths enforce identical rules.
package risk

import "github.com/rustyeddy/spottrader/ledger"

// Book is the ledger state the gate evaluates and the one mutation it owns.
type Book interface {
	State() ledger.RiskState
	TripCircuitBreaker()
}

type Gate struct {
	params Params
	book   Book
}

func NewGate(p Params, book Book) *Gate {
	return &Gate{params: p, book: book}
}

func (g *Gate) Params() Params { return g.params }

// CheckCircuitBreaker latches the breaker when drawdown from peak reaches
// the configured threshold. It returns true only on the call that trips it.
func (g *Gate) CheckCircuitBreaker() bool {
	s := g.book.State()
	if s.CircuitBreakerActive || s.PeakEquity <= 0 {
		return false
	}
	if s.Drawdown() >= g.params.CircuitBreakerDrawdown {
		g.book.TripCircuitBreaker()
		return true
	}
	return false
}
