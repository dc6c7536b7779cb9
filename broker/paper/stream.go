package paper

import (
	"context"
	"time"

	"github.com/rustyeddy/spottrader/market"
)

// SubscribeKlines replays the configured candles, setting the venue price
// to each close before it is delivered. Without candles the subscription
// carries whatever Publish sends. The channel closes when the replay ends
// or ctx is done.
func (v *Venue) SubscribeKlines(ctx context.Context, symbol, interval string) (<-chan market.Kline, error) {
	if _, err := v.GetSymbolConstraints(ctx, symbol); err != nil {
		return nil, err
	}

	v.mu.Lock()
	candles := v.candles
	pace := v.pace
	v.mu.Unlock()

	if len(candles) == 0 {
		return v.subscribe(ctx), nil
	}

	out := make(chan market.Kline)
	go func() {
		defer close(out)
		for _, c := range candles {
			v.SetPrice(c.Close)
			select {
			case <-ctx.Done():
				return
			case out <- market.Kline{Candle: c, Closed: true}:
			}
			if pace > 0 {
				t := time.NewTimer(pace)
				select {
				case <-ctx.Done():
					t.Stop()
					return
				case <-t.C:
				}
			}
		}
	}()
	return out, nil
}

type subscriber struct {
	in   chan market.Kline
	done <-chan struct{}
}

// subscribe registers a live subscriber. in is never closed; the forwarding
// goroutine owns out and closes it once ctx is done.
func (v *Venue) subscribe(ctx context.Context) <-chan market.Kline {
	s := &subscriber{in: make(chan market.Kline, 16), done: ctx.Done()}
	out := make(chan market.Kline)

	v.mu.Lock()
	v.subs = append(v.subs, s)
	v.mu.Unlock()

	go func() {
		defer close(out)
		defer v.unsubscribe(s)
		for {
			select {
			case <-ctx.Done():
				return
			case k := <-s.in:
				select {
				case <-ctx.Done():
					return
				case out <- k:
				}
			}
		}
	}()
	return out
}

// Publish sets the price to k's close and delivers k to every live
// subscriber.
func (v *Venue) Publish(ctx context.Context, k market.Kline) error {
	v.SetPrice(k.Close)

	v.mu.Lock()
	subs := append([]*subscriber(nil), v.subs...)
	v.mu.Unlock()

	for _, s := range subs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
		case s.in <- k:
		}
	}
	return nil
}

func (v *Venue) unsubscribe(s *subscriber) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, sub := range v.subs {
		if sub == s {
			v.subs = append(v.subs[:i], v.subs[i+1:]...)
			return
		}
	}
}
