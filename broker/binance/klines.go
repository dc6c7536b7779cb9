package binance

import (
	"context"
	"time"

	"github.com/rustyeddy/spottrader/market"
)

// maxKlinesPerRequest is the spot API page size.
const maxKlinesPerRequest = 1000

// FetchKlines downloads closed klines with open time in [start, end),
// paging forward until the range is covered.
func (c *Client) FetchKlines(ctx context.Context, symbol, interval string, start, end time.Time) ([]market.Candle, error) {
	var out []market.Candle
	from := start.UnixMilli()
	to := end.UnixMilli()

	for from < to {
		kls, err := c.api.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			StartTime(from).
			EndTime(to - 1).
			Limit(maxKlinesPerRequest).
			Do(ctx)
		if err != nil {
			return nil, classify("fetch klines", err)
		}
		if len(kls) == 0 {
			break
		}

		now := time.Now().UnixMilli()
		for _, kl := range kls {
			if kl == nil || kl.CloseTime >= now {
				continue
			}
			out = append(out, market.Candle{
				Time:   time.UnixMilli(kl.OpenTime).UTC(),
				Open:   parseFloat(kl.Open),
				High:   parseFloat(kl.High),
				Low:    parseFloat(kl.Low),
				Close:  parseFloat(kl.Close),
				Volume: parseFloat(kl.Volume),
			})
		}

		last := kls[len(kls)-1]
		if last == nil || last.OpenTime < from {
			break
		}
		from = last.OpenTime + 1
		if len(kls) < maxKlinesPerRequest {
			break
		}
		c.log.Debug("fetched kline page", "symbol", symbol, "rows", len(out), "next", time.UnixMilli(from).UTC())
	}
	return out, nil
}
