package risk

import "github.com/rustyeddy/spottrader/ledger"

// ExitTrigger reports whether a bar with the given low and high reaches
// either exit of pos. The stop is tested first: when both levels are inside
// the bar the path is unknown, so assume the stop filled. The returned
// price is the level that was touched, before exit slippage.
//
// For a single live price pass the same value as low and high.
func ExitTrigger(pos ledger.Position, low, high float64) (ledger.ExitReason, float64, bool) {
	if low <= pos.StopLoss {
		return ledger.ExitStopLoss, pos.StopLoss, true
	}
	if high >= pos.TakeProfit {
		return ledger.ExitTakeProfit, pos.TakeProfit, true
	}
	return "", 0, false
}

// ExitPrice applies exit slippage. Both exits fill below the trigger.
func (g *Gate) ExitPrice(trigger float64) float64 {
	return trigger * (1 - g.params.SlippageFraction)
}
