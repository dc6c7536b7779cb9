// Package paper is an in-memory spot venue. Orders fill instantly at the
// last known price plus slippage and never leave the process. It backs
// `trader live --paper` and the live engine tests.
package paper

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rustyeddy/spottrader/broker"
	"github.com/rustyeddy/spottrader/market"
)

// Binance-compatible codes so paper rejections look like the real thing.
const (
	codeInsufficientBalance = -2010
	codeFilterFailure       = -1013
	codeBadSymbol           = -1121
)

var ErrNoPrice = errors.New("paper: no price yet")

var (
	_ broker.Venue       = (*Venue)(nil)
	_ broker.OrderLookup = (*Venue)(nil)
)

type Venue struct {
	mu sync.Mutex

	symbol      string
	base, quote string

	price       float64
	fee         float64
	slippage    float64
	constraints broker.SymbolConstraints
	balances    map[string]float64

	nextID int
	fills  []broker.Fill

	// queued failures consumed one per PlaceMarketOrder call
	orderErrs []error
	// errors returned after the next orders have executed
	lostErrs []error
	priceErr  error

	candles []market.Candle
	pace    time.Duration
	subs    []*subscriber
}

type Option func(*Venue)

// WithFee charges fee as a fraction of fill notional, in the quote asset.
func WithFee(fee float64) Option { return func(v *Venue) { v.fee = fee } }

// WithSlippage moves buys up and sells down by the given fraction.
func WithSlippage(s float64) Option { return func(v *Venue) { v.slippage = s } }

func WithConstraints(c broker.SymbolConstraints) Option {
	return func(v *Venue) { v.constraints = c }
}

func WithBalance(asset string, amount float64) Option {
	return func(v *Venue) { v.balances[asset] = amount }
}

// WithCandles makes SubscribeKlines replay candles as closed klines,
// waiting pace between them.
func WithCandles(candles []market.Candle, pace time.Duration) Option {
	return func(v *Venue) {
		v.candles = candles
		v.pace = pace
	}
}

// New returns a venue trading symbol, made of base and quote assets.
func New(symbol, base, quote string, opts ...Option) *Venue {
	v := &Venue{
		symbol:   symbol,
		base:     base,
		quote:    quote,
		balances: map[string]float64{},
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.constraints.Symbol == "" {
		v.constraints.Symbol = symbol
	}
	return v
}

// SetPrice sets the last traded price used for fills and GetPrice.
func (v *Venue) SetPrice(px float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.price = px
}

// FailNextOrder queues err for the next PlaceMarketOrder call. Calls queue
// in order.
func (v *Venue) FailNextOrder(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.orderErrs = append(v.orderErrs, err)
}

// LoseNextResponse executes the next order but answers it with err, the
// way a fill looks when its reply never arrives.
func (v *Venue) LoseNextResponse(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lostErrs = append(v.lostErrs, err)
}

// FailPrice makes GetPrice return err until cleared with nil.
func (v *Venue) FailPrice(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.priceErr = err
}

// Fills returns every executed order in order.
func (v *Venue) Fills() []broker.Fill {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]broker.Fill, len(v.fills))
	copy(out, v.fills)
	return out
}

func (v *Venue) Balance(asset string) float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balances[asset]
}

func (v *Venue) PlaceMarketOrder(ctx context.Context, req broker.OrderRequest) (broker.Fill, error) {
	if err := ctx.Err(); err != nil {
		return broker.Fill{}, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if len(v.orderErrs) > 0 {
		err := v.orderErrs[0]
		v.orderErrs = v.orderErrs[1:]
		return broker.Fill{}, err
	}
	if req.Symbol != v.symbol {
		return broker.Fill{}, &broker.RejectedError{Op: "place order", Code: codeBadSymbol, Msg: "invalid symbol " + req.Symbol}
	}
	if v.price <= 0 {
		return broker.Fill{}, &broker.TransientError{Op: "place order", Err: ErrNoPrice}
	}

	qty := v.constraints.RoundQty(req.Quantity)
	if err := v.constraints.Check(qty, v.price); err != nil {
		return broker.Fill{}, &broker.RejectedError{Op: "place order", Code: codeFilterFailure, Msg: err.Error()}
	}

	px := v.price
	switch req.Side {
	case broker.Buy:
		px *= 1 + v.slippage
	case broker.Sell:
		px *= 1 - v.slippage
	default:
		return broker.Fill{}, &broker.RejectedError{Op: "place order", Code: codeFilterFailure, Msg: fmt.Sprintf("invalid side %q", req.Side)}
	}
	notional := px * qty
	commission := notional * v.fee

	switch req.Side {
	case broker.Buy:
		if notional+commission > v.balances[v.quote] {
			return broker.Fill{}, &broker.RejectedError{Op: "place order", Code: codeInsufficientBalance,
				Msg: "account has insufficient balance for requested action"}
		}
		v.balances[v.quote] -= notional + commission
		v.balances[v.base] += qty
	case broker.Sell:
		if qty > v.balances[v.base]*(1+1e-9) {
			return broker.Fill{}, &broker.RejectedError{Op: "place order", Code: codeInsufficientBalance,
				Msg: "account has insufficient balance for requested action"}
		}
		v.balances[v.base] -= qty
		if v.balances[v.base] < 0 {
			v.balances[v.base] = 0
		}
		v.balances[v.quote] += notional - commission
	}

	v.nextID++
	f := broker.Fill{
		OrderID:         strconv.Itoa(v.nextID),
		ClientID:        req.ClientID,
		Symbol:          req.Symbol,
		Side:            req.Side,
		AvgPrice:        px,
		Quantity:        qty,
		QuoteQuantity:   notional,
		Commission:      commission,
		CommissionAsset: v.quote,
	}
	v.fills = append(v.fills, f)
	if len(v.lostErrs) > 0 {
		err := v.lostErrs[0]
		v.lostErrs = v.lostErrs[1:]
		return broker.Fill{}, err
	}
	return f, nil
}

// LookupOrder finds an executed order by client id.
func (v *Venue) LookupOrder(ctx context.Context, symbol, clientID string) (broker.Fill, bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if clientID == "" {
		return broker.Fill{}, false, nil
	}
	for _, f := range v.fills {
		if f.Symbol == symbol && f.ClientID == clientID {
			return f, true, nil
		}
	}
	return broker.Fill{}, false, nil
}

func (v *Venue) GetPrice(ctx context.Context, symbol string) (float64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.priceErr != nil {
		return 0, v.priceErr
	}
	if symbol != v.symbol {
		return 0, &broker.RejectedError{Op: "get price", Code: codeBadSymbol, Msg: "invalid symbol " + symbol}
	}
	if v.price <= 0 {
		return 0, &broker.TransientError{Op: "get price", Err: ErrNoPrice}
	}
	return v.price, nil
}

func (v *Venue) GetBalance(ctx context.Context, asset string) (float64, error) {
	return v.Balance(asset), nil
}

func (v *Venue) GetSymbolConstraints(ctx context.Context, symbol string) (broker.SymbolConstraints, error) {
	if symbol != v.symbol {
		return broker.SymbolConstraints{}, &broker.RejectedError{Op: "get symbol constraints", Code: codeBadSymbol, Msg: "invalid symbol " + symbol}
	}
	return v.constraints, nil
}
