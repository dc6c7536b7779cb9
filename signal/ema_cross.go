// Package signal turns candles into buy flags. It knows nothing about
// sizing or exits; the risk gate decides what a buy flag is worth.
package signal

import (
	"fmt"

	"github.com/markcheno/go-talib"
	"github.com/rustyeddy/spottrader/market"
)

// Params configures the EMA crossover. A buy fires on the bar where the
// fast EMA closes above the slow EMA after being at or below it on the
// previous bar. With UseRSI set the bar's RSI must also be below
// RSIThreshold.
type Params struct {
	Fast         int
	Slow         int
	RSIPeriod    int
	RSIThreshold float64
	UseRSI       bool
}

func (p Params) Validate() error {
	if p.Fast < 1 || p.Slow < 2 {
		return fmt.Errorf("signal: ema periods must be positive (fast %d, slow %d)", p.Fast, p.Slow)
	}
	if p.Fast >= p.Slow {
		return fmt.Errorf("signal: fast period %d must be below slow period %d", p.Fast, p.Slow)
	}
	if p.UseRSI && p.RSIPeriod < 2 {
		return fmt.Errorf("signal: rsi period %d must be at least 2", p.RSIPeriod)
	}
	return nil
}

// Warmup is the index of the first bar that can carry a buy flag. Earlier
// bars lack a defined value for one of the indicators on the bar or the bar
// before it.
func (p Params) Warmup() int {
	w := p.Slow
	if p.UseRSI && p.RSIPeriod > w {
		w = p.RSIPeriod
	}
	return w
}

// Annotate flags every crossover bar in candles. The first bar never
// signals, nor does any bar before Warmup.
func Annotate(candles []market.Candle, p Params) []market.Signal {
	out := make([]market.Signal, len(candles))
	for i, c := range candles {
		out[i].Candle = c
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	for i, buy := range flags(closes, p) {
		out[i].Buy = buy
	}
	return out
}

func flags(closes []float64, p Params) []bool {
	out := make([]bool, len(closes))
	start := p.Warmup()
	if start < 1 {
		start = 1
	}
	if len(closes) <= start {
		return out
	}

	fast := talib.Ema(closes, p.Fast)
	slow := talib.Ema(closes, p.Slow)
	var rsi []float64
	if p.UseRSI {
		rsi = talib.Rsi(closes, p.RSIPeriod)
	}

	for i := start; i < len(closes); i++ {
		cross := fast[i-1] <= slow[i-1] && fast[i] > slow[i]
		if !cross {
			continue
		}
		if p.UseRSI && !(rsi[i] < p.RSIThreshold) {
			continue
		}
		out[i] = true
	}
	return out
}
