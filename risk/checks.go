package risk

import (
	"fmt"
	"math"
	"strings"
)

// Violation codes recorded with every rejected admission.
const (
	CodeCircuitBreaker    = "CIRCUIT_BREAKER"
	CodeHalted            = "HALTED"
	CodeTooManyOpenTrades = "TOO_MANY_OPEN_TRADES"
	CodeNoEquity          = "NO_EQUITY"
	CodeDailyLossLimit    = "DAILY_LOSS_LIMIT"
	CodeNonPositiveSize   = "NON_POSITIVE_SIZE"
	CodeInsufficientCash  = "INSUFFICIENT_CASH"
	CodeBelowMinNotional  = "BELOW_MIN_NOTIONAL"
)

type Violation struct {
	Code string
	Msg  string
}

type Decision struct {
	Allowed    bool
	Violations []Violation
}

func (d *Decision) add(code, msg string) {
	d.Violations = append(d.Violations, Violation{Code: code, Msg: msg})
	d.Allowed = false
}

// Reject marks the decision as denied. Drivers use it for venue-side
// constraints the gate cannot see, such as minimum notional.
func (d *Decision) Reject(code, msg string) { d.add(code, msg) }

// Codes returns the violation codes joined with commas.
func (d Decision) Codes() string {
	codes := make([]string, len(d.Violations))
	for i, v := range d.Violations {
		codes[i] = v.Code
	}
	return strings.Join(codes, ",")
}

// Has reports whether the decision carries a violation with code.
func (d Decision) Has(code string) bool {
	for _, v := range d.Violations {
		if v.Code == code {
			return true
		}
	}
	return false
}

// Evaluate decides whether a new position may be opened right now. It
// reads the book fresh every call.
func (g *Gate) Evaluate() Decision {
	s := g.book.State()
	d := Decision{Allowed: true}

	if s.CircuitBreakerActive {
		d.add(CodeCircuitBreaker,
			fmt.Sprintf("drawdown breaker latched (equity %.2f, peak %.2f)", s.Equity, s.PeakEquity))
	}
	if s.HaltReason != "" {
		d.add(CodeHalted, s.HaltReason)
	}

	if s.OpenCount >= g.params.MaxOpenTrades {
		d.add(CodeTooManyOpenTrades,
			fmt.Sprintf("open trades %d >= max %d", s.OpenCount, g.params.MaxOpenTrades))
	}

	if s.Equity <= 0 {
		d.add(CodeNoEquity, fmt.Sprintf("equity %.2f is not positive", s.Equity))
		return d
	}
	loss := math.Abs(math.Min(0, s.DailyPnL)) / s.Equity
	if loss >= g.params.MaxDailyLossFraction {
		d.add(CodeDailyLossLimit,
			fmt.Sprintf("daily loss %.2f%% >= limit %.2f%%", 100*loss, 100*g.params.MaxDailyLossFraction))
	}

	return d
}

// CanOpen is Evaluate().Allowed.
func (g *Gate) CanOpen() bool { return g.Evaluate().Allowed }
