// Package optimize sweeps strategy and exit parameters over a candle
// series and ranks the outcomes.
package optimize

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"

	"github.com/rustyeddy/spottrader/internal/logging"
	"github.com/rustyeddy/spottrader/market"
	"github.com/rustyeddy/spottrader/report"
	"github.com/rustyeddy/spottrader/risk"
	"github.com/rustyeddy/spottrader/signal"
	"github.com/rustyeddy/spottrader/sim"
	"golang.org/x/sync/errgroup"
)

// Space is the cartesian grid of EMA periods and exit fractions.
type Space struct {
	Fast       []int
	Slow       []int
	TakeProfit []float64
	StopLoss   []float64
}

type Point struct {
	Fast       int
	Slow       int
	TakeProfit float64
	StopLoss   float64
}

func (p Point) String() string {
	return fmt.Sprintf("ema %d/%d tp %.4f sl %.4f", p.Fast, p.Slow, p.TakeProfit, p.StopLoss)
}

type pair struct{ fast, slow int }

func (s Space) pairs() []pair {
	var out []pair
	for _, f := range s.Fast {
		for _, sl := range s.Slow {
			if f < sl {
				out = append(out, pair{f, sl})
			}
		}
	}
	return out
}

// Size is the number of points with Fast < Slow.
func (s Space) Size() int {
	return len(s.pairs()) * len(s.TakeProfit) * len(s.StopLoss)
}

type Result struct {
	Point
	report.Metrics
}

// Grid runs one simulation per point. Base supplies everything except the
// exit fractions; Signal supplies the RSI filter settings.
type Grid struct {
	Base        risk.Params
	Signal      signal.Params
	BarsPerYear float64

	// Workers bounds concurrency. Zero means one less than the CPU count.
	Workers int

	// Progress, when set, is called after each EMA pair completes.
	Progress func(done, total int)

	Log *slog.Logger
}

// Run evaluates every point and returns them best first: higher Sharpe,
// then higher return. top > 0 truncates the list. Each worker builds its
// own engine; candles are only read.
func (g Grid) Run(ctx context.Context, candles []market.Candle, space Space, top int) ([]Result, error) {
	for _, tp := range space.TakeProfit {
		for _, sl := range space.StopLoss {
			p := g.Base
			p.TakeProfitFraction, p.StopLossFraction = tp, sl
			if err := p.Validate(); err != nil {
				return nil, fmt.Errorf("optimize: tp %v sl %v: %w", tp, sl, err)
			}
		}
	}

	log := g.Log
	if log == nil {
		log = logging.L()
	}
	bpy := g.BarsPerYear
	if bpy <= 0 {
		bpy = report.MinutesPerYear
	}
	workers := g.Workers
	if workers <= 0 {
		workers = max(1, runtime.NumCPU()-1)
	}

	pairs := space.pairs()
	log.Info("grid search", "points", space.Size(), "pairs", len(pairs), "workers", workers)

	var (
		mu      sync.Mutex
		results = make([]Result, 0, space.Size())
		done    int
	)

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(workers)
	for _, pr := range pairs {
		group.Go(func() error {
			out, err := g.runPair(gctx, candles, space, pr, bpy)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			results = append(results, out...)
			done++
			if g.Progress != nil {
				g.Progress(done, len(pairs))
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	Rank(results)
	if top > 0 && len(results) > top {
		results = results[:top]
	}
	return results, nil
}

func (g Grid) runPair(ctx context.Context, candles []market.Candle, space Space, pr pair, bpy float64) ([]Result, error) {
	sp := g.Signal
	sp.Fast, sp.Slow = pr.fast, pr.slow
	bars := signal.Annotate(candles, sp)

	out := make([]Result, 0, len(space.TakeProfit)*len(space.StopLoss))
	for _, tp := range space.TakeProfit {
		for _, sl := range space.StopLoss {
			p := g.Base
			p.TakeProfitFraction, p.StopLossFraction = tp, sl

			eng, err := sim.NewEngine(p, sim.WithLogger(logging.Discard()))
			if err != nil {
				return nil, err
			}
			res, err := eng.Run(ctx, bars)
			if err != nil {
				return nil, fmt.Errorf("optimize: ema %d/%d: %w", pr.fast, pr.slow, err)
			}
			out = append(out, Result{
				Point:   Point{Fast: pr.fast, Slow: pr.slow, TakeProfit: tp, StopLoss: sl},
				Metrics: report.Compute(res.Trades, res.Equity, p.InitialCapital, bpy),
			})
		}
	}
	return out, nil
}

// Rank sorts best first. Ties fall back to the point itself so the order
// does not depend on worker scheduling.
func Rank(rs []Result) {
	sort.SliceStable(rs, func(i, j int) bool {
		a, b := rs[i], rs[j]
		if a.Sharpe != b.Sharpe {
			return a.Sharpe > b.Sharpe
		}
		if a.ReturnPct != b.ReturnPct {
			return a.ReturnPct > b.ReturnPct
		}
		if a.Fast != b.Fast {
			return a.Fast < b.Fast
		}
		if a.Slow != b.Slow {
			return a.Slow < b.Slow
		}
		if a.TakeProfit != b.TakeProfit {
			return a.TakeProfit < b.TakeProfit
		}
		return a.StopLoss < b.StopLoss
	})
}
