package signal

import (
	"context"

	"github.com/rustyeddy/spottrader/market"
)

const minWindow = 500

// Annotator is the streaming form of Annotate for live klines. It keeps a
// bounded window of closed bars and evaluates the crossover on each new
// close. In-progress klines pass through unflagged.
type Annotator struct {
	p      Params
	window int
	closes []float64
	last   market.Candle
}

// NewAnnotator keeps at least ten warm-up lengths of history so the EMAs
// have converged by the time they are read.
func NewAnnotator(p Params) *Annotator {
	w := 10 * p.Warmup()
	if w < minWindow {
		w = minWindow
	}
	return &Annotator{p: p, window: w}
}

// Seed loads history, typically the closed bars fetched before the stream
// starts.
func (a *Annotator) Seed(candles []market.Candle) {
	for _, c := range candles {
		a.push(c)
	}
}

// Ready reports whether enough bars have been seen to emit a buy.
func (a *Annotator) Ready() bool {
	return len(a.closes) > a.p.Warmup()
}

func (a *Annotator) push(c market.Candle) bool {
	if !a.last.Time.IsZero() && !c.Time.After(a.last.Time) {
		return false
	}
	a.last = c
	a.closes = append(a.closes, c.Close)
	if len(a.closes) > a.window {
		a.closes = append(a.closes[:0], a.closes[len(a.closes)-a.window:]...)
	}
	return true
}

// Next annotates one kline. A closed kline whose time does not advance the
// series, such as a replay after a reconnect, is passed on without a buy.
func (a *Annotator) Next(k market.Kline) market.Event {
	ev := market.Event{Kline: k}
	if !k.Closed || !a.push(k.Candle) {
		return ev
	}
	f := flags(a.closes, a.p)
	ev.Buy = f[len(f)-1]
	return ev
}

// Run annotates every kline from in until in closes or ctx is done. out is
// closed on return.
func (a *Annotator) Run(ctx context.Context, in <-chan market.Kline, out chan<- market.Event) error {
	defer close(out)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case k, ok := <-in:
			if !ok {
				return nil
			}
			select {
			case out <- a.Next(k):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
