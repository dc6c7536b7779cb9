// Package broker defines the venue contract the live engine trades
// through, the venue error taxonomy, and the retry and rate-limit wrapper
// every venue call goes through.
package broker

import (
	"context"

	"github.com/rustyeddy/spottrader/market"
)

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// OrderRequest is a market order for Quantity of the base asset.
// ClientID makes resubmission idempotent on venues that support it.
type OrderRequest struct {
	Symbol   string
	Side     Side
	Quantity float64
	ClientID string
}

// Fill is the venue's report of an executed market order. AvgPrice is the
// quantity-weighted average across partial fills.
type Fill struct {
	OrderID         string
	ClientID        string
	Symbol          string
	Side            Side
	AvgPrice        float64
	Quantity        float64
	QuoteQuantity   float64
	Commission      float64
	CommissionAsset string
}

// Venue is everything the live engine needs from an exchange.
type Venue interface {
	PlaceMarketOrder(ctx context.Context, req OrderRequest) (Fill, error)
	GetPrice(ctx context.Context, symbol string) (float64, error)
	GetBalance(ctx context.Context, asset string) (float64, error)
	GetSymbolConstraints(ctx context.Context, symbol string) (SymbolConstraints, error)

	// SubscribeKlines streams kline updates until ctx is done. The channel
	// is closed when the subscription ends.
	SubscribeKlines(ctx context.Context, symbol, interval string) (<-chan market.Kline, error)
}

// OrderLookup is implemented by venues that can report an earlier order by
// its client id. Guarded asks before resubmitting an order whose outcome
// it never saw.
type OrderLookup interface {
	// LookupOrder returns the executed fill for clientID. found is false
	// when the venue holds no executed order under that id.
	LookupOrder(ctx context.Context, symbol, clientID string) (fill Fill, found bool, err error)
}
