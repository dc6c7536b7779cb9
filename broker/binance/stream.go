package binance

import (
	"context"
	"sync"
	"time"

	gobinance "github.com/adshao/go-binance/v2"
	"github.com/rustyeddy/spottrader/market"
)

// SubscribeKlines streams kline updates for symbol, reconnecting with
// capped backoff whenever the socket drops. Only ctx ends the stream.
func (c *Client) SubscribeKlines(ctx context.Context, symbol, interval string) (<-chan market.Kline, error) {
	out := make(chan market.Kline, 256)
	go func() {
		defer close(out)
		c.runKlineLoop(ctx, symbol, interval, out)
	}()
	return out, nil
}

func (c *Client) runKlineLoop(ctx context.Context, symbol, interval string, out chan<- market.Kline) {
	delay := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		var errMu sync.Mutex
		var lastErr error

		handler := func(ev *gobinance.WsKlineEvent) {
			k, ok := convertKline(ev)
			if !ok {
				return
			}
			c.deliver(ctx, out, k)
		}
		errHandler := func(err error) {
			if err == nil {
				return
			}
			errMu.Lock()
			lastErr = err
			errMu.Unlock()
		}

		doneC, stopC, err := gobinance.WsKlineServe(symbol, interval, handler, errHandler)
		if err != nil {
			c.log.Warn("kline stream connect failed", "symbol", symbol, "err", err, "retry_in", delay)
			if !sleepWithContext(ctx, delay) {
				return
			}
			delay = nextDelay(delay)
			continue
		}
		delay = time.Second
		c.log.Info("kline stream connected", "symbol", symbol, "interval", interval)

		select {
		case <-ctx.Done():
			close(stopC)
			<-doneC
			return
		case <-doneC:
		}

		errMu.Lock()
		c.log.Warn("kline stream dropped, reconnecting", "symbol", symbol, "err", lastErr)
		errMu.Unlock()
		if !sleepWithContext(ctx, delay) {
			return
		}
		delay = nextDelay(delay)
	}
}

// deliver hands k to the consumer. An in-progress update is dropped when
// the consumer lags behind; a closed kline waits for room until ctx ends.
func (c *Client) deliver(ctx context.Context, out chan<- market.Kline, k market.Kline) {
	if k.Closed {
		select {
		case <-ctx.Done():
		case out <- k:
		}
		return
	}
	select {
	case <-ctx.Done():
	case out <- k:
	default:
		c.log.Debug("kline channel full, dropping update", "time", k.Time, "close", k.Close)
	}
}

func convertKline(ev *gobinance.WsKlineEvent) (market.Kline, bool) {
	if ev == nil {
		return market.Kline{}, false
	}
	k := market.Kline{
		Candle: market.Candle{
			Time:   time.UnixMilli(ev.Kline.StartTime).UTC(),
			Open:   parseFloat(ev.Kline.Open),
			High:   parseFloat(ev.Kline.High),
			Low:    parseFloat(ev.Kline.Low),
			Close:  parseFloat(ev.Kline.Close),
			Volume: parseFloat(ev.Kline.Volume),
		},
		Closed: ev.Kline.IsFinal,
	}
	if k.Close <= 0 {
		return market.Kline{}, false
	}
	return k, true
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func nextDelay(current time.Duration) time.Duration {
	next := current * 2
	if next > 30*time.Second {
		next = 30 * time.Second
	}
	return next
}
