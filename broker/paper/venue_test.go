package paper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rustyeddy/spottrader/broker"
	"github.com/rustyeddy/spottrader/market"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newVenue(opts ...Option) *Venue {
	opts = append([]Option{WithBalance("USDT", 10_000)}, opts...)
	v := New("BTCUSDT", "BTC", "USDT", opts...)
	v.SetPrice(100)
	return v
}

func TestBuyThenSell(t *testing.T) {
	t.Parallel()

	v := newVenue(WithFee(0.001), WithSlippage(0.01))
	ctx := context.Background()

	buy, err := v.PlaceMarketOrder(ctx, broker.OrderRequest{Symbol: "BTCUSDT", Side: broker.Buy, Quantity: 10, ClientID: "c1"})
	require.NoError(t, err)
	assert.InDelta(t, 101.0, buy.AvgPrice, 1e-9)
	assert.InDelta(t, 1010.0, buy.QuoteQuantity, 1e-9)
	assert.InDelta(t, 1.01, buy.Commission, 1e-9)
	assert.Equal(t, "c1", buy.ClientID)
	assert.Equal(t, "USDT", buy.CommissionAsset)
	assert.InDelta(t, 10_000-1010-1.01, v.Balance("USDT"), 1e-9)
	assert.InDelta(t, 10.0, v.Balance("BTC"), 1e-12)

	sell, err := v.PlaceMarketOrder(ctx, broker.OrderRequest{Symbol: "BTCUSDT", Side: broker.Sell, Quantity: 10})
	require.NoError(t, err)
	assert.InDelta(t, 99.0, sell.AvgPrice, 1e-9)
	assert.InDelta(t, 0.0, v.Balance("BTC"), 1e-12)
	assert.InDelta(t, 10_000-1010-1.01+990-0.99, v.Balance("USDT"), 1e-9)

	assert.Len(t, v.Fills(), 2)
	assert.NotEqual(t, buy.OrderID, sell.OrderID)
}

func TestInsufficientBalanceIsRejected(t *testing.T) {
	t.Parallel()

	v := newVenue()
	_, err := v.PlaceMarketOrder(context.Background(), broker.OrderRequest{Symbol: "BTCUSDT", Side: broker.Buy, Quantity: 1000})
	require.Error(t, err)
	assert.True(t, broker.IsRejected(err))

	_, err = v.PlaceMarketOrder(context.Background(), broker.OrderRequest{Symbol: "BTCUSDT", Side: broker.Sell, Quantity: 1})
	assert.True(t, broker.IsRejected(err))
}

func TestConstraintsApplied(t *testing.T) {
	t.Parallel()

	v := newVenue(WithConstraints(broker.SymbolConstraints{
		LotStep:     decimal.RequireFromString("0.1"),
		MinNotional: decimal.RequireFromString("10"),
	}))

	f, err := v.PlaceMarketOrder(context.Background(), broker.OrderRequest{Symbol: "BTCUSDT", Side: broker.Buy, Quantity: 1.27})
	require.NoError(t, err)
	assert.InDelta(t, 1.2, f.Quantity, 1e-12)

	_, err = v.PlaceMarketOrder(context.Background(), broker.OrderRequest{Symbol: "BTCUSDT", Side: broker.Buy, Quantity: 0.05})
	require.Error(t, err)
	assert.True(t, broker.IsRejected(err))
}

func TestInjectedFailures(t *testing.T) {
	t.Parallel()

	v := newVenue()
	boom := &broker.TransientError{Op: "place order", Err: errors.New("timeout")}
	v.FailNextOrder(boom)

	req := broker.OrderRequest{Symbol: "BTCUSDT", Side: broker.Buy, Quantity: 1}
	_, err := v.PlaceMarketOrder(context.Background(), req)
	assert.ErrorIs(t, err, boom)

	_, err = v.PlaceMarketOrder(context.Background(), req)
	assert.NoError(t, err, "failure is consumed")

	v.FailPrice(boom)
	_, err = v.GetPrice(context.Background(), "BTCUSDT")
	assert.True(t, broker.IsTransient(err))
	v.FailPrice(nil)
	px, err := v.GetPrice(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.InDelta(t, 100.0, px, 0)
}

func TestUnknownSymbol(t *testing.T) {
	t.Parallel()

	v := newVenue()
	_, err := v.GetPrice(context.Background(), "ETHUSDT")
	assert.True(t, broker.IsRejected(err))
	_, err = v.SubscribeKlines(context.Background(), "ETHUSDT", "1m")
	assert.True(t, broker.IsRejected(err))
}

func TestNoPriceIsTransient(t *testing.T) {
	t.Parallel()

	v := New("BTCUSDT", "BTC", "USDT", WithBalance("USDT", 100))
	_, err := v.GetPrice(context.Background(), "BTCUSDT")
	assert.ErrorIs(t, err, ErrNoPrice)
	assert.True(t, broker.IsTransient(err))
}

func TestReplayKlines(t *testing.T) {
	t.Parallel()

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := []market.Candle{
		{Time: t0, Close: 10},
		{Time: t0.Add(time.Minute), Close: 11},
		{Time: t0.Add(2 * time.Minute), Close: 12},
	}
	v := New("BTCUSDT", "BTC", "USDT", WithCandles(candles, 0))

	ch, err := v.SubscribeKlines(context.Background(), "BTCUSDT", "1m")
	require.NoError(t, err)

	var got []market.Kline
	for k := range ch {
		got = append(got, k)
	}
	require.Len(t, got, 3)
	for i, k := range got {
		assert.True(t, k.Closed)
		assert.Equal(t, candles[i].Time, k.Time)
	}
	px, err := v.GetPrice(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.InDelta(t, 12.0, px, 0)
}

func TestPublishToSubscriber(t *testing.T) {
	t.Parallel()

	v := New("BTCUSDT", "BTC", "USDT")
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := v.SubscribeKlines(ctx, "BTCUSDT", "1m")
	require.NoError(t, err)

	k := market.Kline{Candle: market.Candle{Time: time.Unix(60, 0).UTC(), Close: 42}, Closed: true}
	require.NoError(t, v.Publish(context.Background(), k))

	select {
	case got := <-ch:
		assert.Equal(t, k, got)
	case <-time.After(time.Second):
		t.Fatal("kline not delivered")
	}

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel closes after cancel")
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
}

func TestLostResponseStillExecutes(t *testing.T) {
	t.Parallel()

	v := newVenue()
	ctx := context.Background()
	v.LoseNextResponse(&broker.TransientError{Op: "place order", Err: context.DeadlineExceeded})

	_, err := v.PlaceMarketOrder(ctx, broker.OrderRequest{Symbol: "BTCUSDT", Side: broker.Buy, Quantity: 1, ClientID: "c9"})
	require.Error(t, err)
	assert.InDelta(t, 1.0, v.Balance("BTC"), 1e-12)

	f, found, err := v.LookupOrder(ctx, "BTCUSDT", "c9")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "1", f.OrderID)

	_, found, err = v.LookupOrder(ctx, "BTCUSDT", "other")
	require.NoError(t, err)
	assert.False(t, found)
}
