package broker

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/rustyeddy/spottrader/market"
	"golang.org/x/time/rate"
)

// Guarded wraps a Venue with a client-side rate limit, a per-call timeout
// and retries for transient failures. Kline subscriptions pass through
// untouched; streams manage their own reconnects.
type Guarded struct {
	venue   Venue
	policy  RetryPolicy
	limiter *rate.Limiter
	log     *slog.Logger
}

// NewGuarded wraps v. A nil limiter disables rate limiting.
func NewGuarded(v Venue, policy RetryPolicy, limiter *rate.Limiter, log *slog.Logger) *Guarded {
	g := &Guarded{venue: v, policy: policy, limiter: limiter, log: log}
	if g.log == nil {
		g.log = slog.Default()
	}
	if g.policy.OnRetry == nil {
		g.policy.OnRetry = func(op string, attempt int, err error, wait time.Duration) {
			g.log.Warn("venue call failed, retrying", "op", op, "attempt", attempt, "wait", wait, "err", err)
		}
	}
	return g
}

func (g *Guarded) wait(ctx context.Context) error {
	if g.limiter == nil {
		return nil
	}
	return g.limiter.Wait(ctx)
}

// PlaceMarketOrder assigns a client order id before the first attempt so
// every retry carries the same id. A market order stops being open once it
// fills, so the id alone does not stop a resubmission from trading twice:
// when the venue implements OrderLookup, every retry and a failed final
// attempt first ask whether the earlier order already executed.
func (g *Guarded) PlaceMarketOrder(ctx context.Context, req OrderRequest) (Fill, error) {
	if req.ClientID == "" {
		req.ClientID = uuid.NewString()
	}
	lookup, _ := g.venue.(OrderLookup)

	var fill Fill
	attempts := 0
	err := g.policy.Do(ctx, "place order", func(ctx context.Context) error {
		attempts++
		if err := g.wait(ctx); err != nil {
			return err
		}
		if attempts > 1 && lookup != nil {
			f, found, err := g.lookup(ctx, lookup, req)
			if err != nil {
				return err
			}
			if found {
				fill = f
				return nil
			}
		}
		f, err := g.venue.PlaceMarketOrder(ctx, req)
		if err != nil {
			return err
		}
		fill = f
		return nil
	})
	if err == nil || lookup == nil || ctx.Err() != nil || !IsRetryable(err) {
		return fill, err
	}

	// The last attempt may have executed without its response arriving.
	var found bool
	lerr := g.policy.attempt(ctx, func(ctx context.Context) error {
		if werr := g.wait(ctx); werr != nil {
			return werr
		}
		f, ok, lerr := g.lookup(ctx, lookup, req)
		fill, found = f, ok
		return lerr
	})
	if lerr == nil && found {
		return fill, nil
	}
	return Fill{}, err
}

func (g *Guarded) lookup(ctx context.Context, lookup OrderLookup, req OrderRequest) (Fill, bool, error) {
	f, found, err := lookup.LookupOrder(ctx, req.Symbol, req.ClientID)
	if err != nil || !found {
		return Fill{}, false, err
	}
	g.log.Warn("order executed before its response was lost, not resubmitting",
		"client_id", req.ClientID, "order", f.OrderID, "qty", f.Quantity)
	if f.Side == "" {
		f.Side = req.Side
	}
	if f.ClientID == "" {
		f.ClientID = req.ClientID
	}
	return f, true, nil
}

func (g *Guarded) GetPrice(ctx context.Context, symbol string) (float64, error) {
	var px float64
	err := g.policy.Do(ctx, "get price", func(ctx context.Context) error {
		if err := g.wait(ctx); err != nil {
			return err
		}
		p, err := g.venue.GetPrice(ctx, symbol)
		px = p
		return err
	})
	return px, err
}

func (g *Guarded) GetBalance(ctx context.Context, asset string) (float64, error) {
	var bal float64
	err := g.policy.Do(ctx, "get balance", func(ctx context.Context) error {
		if err := g.wait(ctx); err != nil {
			return err
		}
		b, err := g.venue.GetBalance(ctx, asset)
		bal = b
		return err
	})
	return bal, err
}

func (g *Guarded) GetSymbolConstraints(ctx context.Context, symbol string) (SymbolConstraints, error) {
	var c SymbolConstraints
	err := g.policy.Do(ctx, "get symbol constraints", func(ctx context.Context) error {
		if err := g.wait(ctx); err != nil {
			return err
		}
		sc, err := g.venue.GetSymbolConstraints(ctx, symbol)
		c = sc
		return err
	})
	return c, err
}

func (g *Guarded) SubscribeKlines(ctx context.Context, symbol, interval string) (<-chan market.Kline, error) {
	return g.venue.SubscribeKlines(ctx, symbol, interval)
}
