package risk

import "fmt"

// Entry is a sized, priced open that passed the gate.
type Entry struct {
	Price      float64 // expected fill after slippage
	Quantity   float64
	TakeProfit float64
	StopLoss   float64
}

// Cost is the notional the entry consumes.
func (e Entry) Cost() float64 { return e.Price * e.Quantity }

// SizePosition risks RiskPerTradeFraction of current equity over the stop
// distance. A non-positive stop distance yields zero.
func (g *Gate) SizePosition(entry, stop float64) float64 {
	dist := entry - stop
	if dist <= 0 {
		return 0
	}
	risk := g.book.State().Equity * g.params.RiskPerTradeFraction
	if risk <= 0 {
		return 0
	}
	return risk / dist
}

// ClampToCash shrinks qty so that qty*entry plus the entry fee fits in
// available.
func (g *Gate) ClampToCash(qty, entry, available float64) float64 {
	if qty <= 0 || entry <= 0 || available <= 0 {
		return 0
	}
	unit := entry * (1 + g.params.FeeFraction)
	if qty*unit > available {
		qty = available / unit
	}
	return qty
}

// Targets returns take-profit and stop-loss prices for a long entered at
// entry.
func (g *Gate) Targets(entry float64) (tp, sl float64) {
	return entry * (1 + g.params.TakeProfitFraction), entry * (1 - g.params.StopLossFraction)
}

// EntryPrice applies entry slippage to a reference price.
func (g *Gate) EntryPrice(ref float64) float64 {
	return ref * (1 + g.params.SlippageFraction)
}

// Fee is the commission charged on notional.
func (g *Gate) Fee(notional float64) float64 {
	return notional * g.params.FeeFraction
}

// PlanEntry runs the full open pipeline against the current book: policy
// checks, slippage, exits, risk sizing and the cash clamp. ref is the
// price the signal fired at and available the spendable quote balance.
func (g *Gate) PlanEntry(ref, available float64) (Entry, Decision) {
	d := g.Evaluate()
	if !d.Allowed {
		return Entry{}, d
	}

	e := Entry{Price: g.EntryPrice(ref)}
	e.TakeProfit, e.StopLoss = g.Targets(e.Price)

	qty := g.SizePosition(e.Price, e.StopLoss)
	if qty <= 0 {
		d.add(CodeNonPositiveSize,
			fmt.Sprintf("no size for entry %.8f stop %.8f", e.Price, e.StopLoss))
		return Entry{}, d
	}

	e.Quantity = g.ClampToCash(qty, e.Price, available)
	if e.Quantity <= 0 {
		d.add(CodeInsufficientCash, fmt.Sprintf("available %.2f cannot fund any quantity", available))
		return Entry{}, d
	}
	return e, d
}
