package binance

import (
	"context"
	"testing"
	"time"

	gobinance "github.com/adshao/go-binance/v2"
	"github.com/rustyeddy/spottrader/broker"
	"github.com/rustyeddy/spottrader/internal/logging"
	"github.com/rustyeddy/spottrader/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstraintsFromFilters(t *testing.T) {
	t.Parallel()

	filters := []map[string]interface{}{
		{"filterType": "PRICE_FILTER", "minPrice": "0.01000000", "maxPrice": "1000000.00000000", "tickSize": "0.01000000"},
		{"filterType": "LOT_SIZE", "minQty": "0.00001000", "maxQty": "9000.00000000", "stepSize": "0.00001000"},
		{"filterType": "ICEBERG_PARTS", "limit": float64(10)},
		{"filterType": "NOTIONAL", "minNotional": "5.00000000", "applyMinToMarket": true},
	}
	c := constraintsFromFilters("BTCUSDT", filters)

	assert.Equal(t, "BTCUSDT", c.Symbol)
	assert.Equal(t, "0.00001", c.LotStep.String())
	assert.Equal(t, "0.00001", c.MinQty.String())
	assert.Equal(t, "9000", c.MaxQty.String())
	assert.Equal(t, "0.01", c.PriceStep.String())
	assert.Equal(t, "5", c.MinNotional.String())
	assert.Equal(t, "0.00123", c.QtyString(0.0012345))
}

func TestConstraintsLegacyMinNotional(t *testing.T) {
	t.Parallel()

	c := constraintsFromFilters("ETHBTC", []map[string]interface{}{
		{"filterType": "MIN_NOTIONAL", "minNotional": "0.00010000"},
	})
	assert.Equal(t, "0.0001", c.MinNotional.String())
	assert.True(t, c.LotStep.IsZero())
}

func TestFillFromResponseAveragesFills(t *testing.T) {
	t.Parallel()

	req := broker.OrderRequest{Symbol: "BTCUSDT", Side: broker.Buy, Quantity: 0.3, ClientID: "cid"}
	resp := &gobinance.CreateOrderResponse{
		Symbol:        "BTCUSDT",
		OrderID:       42,
		ClientOrderID: "cid",
		Fills: []*gobinance.Fill{
			{Price: "100.00", Quantity: "0.1", Commission: "0.0001", CommissionAsset: "BTC"},
			{Price: "103.00", Quantity: "0.2", Commission: "0.0002", CommissionAsset: "BTC"},
		},
	}
	f, err := fillFromResponse(req, resp)
	require.NoError(t, err)

	assert.Equal(t, "42", f.OrderID)
	assert.Equal(t, "cid", f.ClientID)
	assert.Equal(t, broker.Buy, f.Side)
	assert.InDelta(t, 0.3, f.Quantity, 1e-12)
	assert.InDelta(t, 30.6, f.QuoteQuantity, 1e-9)
	assert.InDelta(t, 102.0, f.AvgPrice, 1e-9)
	assert.InDelta(t, 0.0003, f.Commission, 1e-12)
	assert.Equal(t, "BTC", f.CommissionAsset)
}

func TestFillFromResponseCumulativeFallback(t *testing.T) {
	t.Parallel()

	req := broker.OrderRequest{Symbol: "BTCUSDT", Side: broker.Sell, Quantity: 2}
	resp := &gobinance.CreateOrderResponse{
		Symbol:                   "BTCUSDT",
		OrderID:                  7,
		ExecutedQuantity:         "2.00000000",
		CummulativeQuoteQuantity: "199.00000000",
	}
	f, err := fillFromResponse(req, resp)
	require.NoError(t, err)
	assert.InDelta(t, 99.5, f.AvgPrice, 1e-9)
	assert.Equal(t, broker.Sell, f.Side)
}

func TestFillFromResponseUnfilled(t *testing.T) {
	t.Parallel()

	resp := &gobinance.CreateOrderResponse{Symbol: "BTCUSDT", OrderID: 9, Status: gobinance.OrderStatusTypeExpired}
	_, err := fillFromResponse(broker.OrderRequest{Side: broker.Buy}, resp)
	require.Error(t, err)
	assert.True(t, broker.IsRejected(err))
}

func TestConvertKline(t *testing.T) {
	t.Parallel()

	ev := &gobinance.WsKlineEvent{Symbol: "BTCUSDT"}
	ev.Kline.StartTime = 1_700_000_000_000
	ev.Kline.Open = "1"
	ev.Kline.High = "3"
	ev.Kline.Low = "0.5"
	ev.Kline.Close = "2"
	ev.Kline.Volume = "10"
	ev.Kline.IsFinal = true

	k, ok := convertKline(ev)
	require.True(t, ok)
	assert.True(t, k.Closed)
	assert.InDelta(t, 2.0, k.Close, 0)
	assert.Equal(t, int64(1_700_000_000_000), k.Time.UnixMilli())

	_, ok = convertKline(nil)
	assert.False(t, ok)
}

func TestFillFromOrder(t *testing.T) {
	t.Parallel()

	o := &gobinance.Order{
		Symbol:                   "BTCUSDT",
		OrderID:                  11,
		ClientOrderID:            "cid",
		Side:                     gobinance.SideTypeSell,
		Status:                   gobinance.OrderStatusTypeFilled,
		ExecutedQuantity:         "0.50000000",
		CummulativeQuoteQuantity: "50.50000000",
	}
	f, found, err := fillFromOrder(o)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "11", f.OrderID)
	assert.Equal(t, "cid", f.ClientID)
	assert.Equal(t, broker.Sell, f.Side)
	assert.InDelta(t, 0.5, f.Quantity, 1e-12)
	assert.InDelta(t, 101.0, f.AvgPrice, 1e-9)
}

func TestFillFromOrderNotExecuted(t *testing.T) {
	t.Parallel()

	_, found, err := fillFromOrder(&gobinance.Order{OrderID: 3, Status: gobinance.OrderStatusTypeExpired, ExecutedQuantity: "0"})
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = fillFromOrder(&gobinance.Order{OrderID: 4, Status: gobinance.OrderStatusTypeNew})
	require.Error(t, err)
	assert.True(t, broker.IsTransient(err))
	assert.False(t, found)
}

func TestDeliverDropsTicksButWaitsForClosedKlines(t *testing.T) {
	t.Parallel()

	c := &Client{log: logging.Discard()}
	out := make(chan market.Kline, 1)
	ctx := context.Background()

	c.deliver(ctx, out, market.Kline{Candle: market.Candle{Close: 1}})
	c.deliver(ctx, out, market.Kline{Candle: market.Candle{Close: 2}})

	done := make(chan struct{})
	go func() {
		c.deliver(ctx, out, market.Kline{Candle: market.Candle{Close: 3}, Closed: true})
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("closed kline was not held for a full channel")
	case <-time.After(20 * time.Millisecond):
	}

	assert.InDelta(t, 1.0, (<-out).Close, 0)
	<-done
	k := <-out
	assert.True(t, k.Closed)
	assert.InDelta(t, 3.0, k.Close, 0)

	cctx, cancel := context.WithCancel(ctx)
	out <- market.Kline{}
	cancel()
	c.deliver(cctx, out, market.Kline{Closed: true})
	assert.Len(t, out, 1)
}
