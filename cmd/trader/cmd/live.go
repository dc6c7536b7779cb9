package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rustyeddy/spottrader/broker"
	"github.com/rustyeddy/spottrader/broker/binance"
	"github.com/rustyeddy/spottrader/broker/paper"
	"github.com/rustyeddy/spottrader/config"
	"github.com/rustyeddy/spottrader/internal/id"
	"github.com/rustyeddy/spottrader/internal/logging"
	"github.com/rustyeddy/spottrader/live"
	"github.com/rustyeddy/spottrader/market"
	strategy "github.com/rustyeddy/spottrader/signal"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Trade the strategy against Binance or a paper venue",
	Long: `Live connects to Binance spot, resumes any persisted state, warms the
strategy up on recent klines and trades closed candles until interrupted.
Every venue call is rate limited, bounded by live.request_timeout and
retried with exponential backoff on transient failures.

With --paper the venue is simulated in memory and the given candle CSV is
replayed as the kline stream; no API keys are needed.

API keys come from TRADER_BINANCE_API_KEY and TRADER_BINANCE_API_SECRET.

Examples:
  trader live -c trader.yaml --metrics-addr :9090
  trader live -c trader.yaml --paper data/BTCUSDT_1m.csv --pace 50ms`,
	RunE: runLive,
}

var (
	livePaper       string
	livePace        time.Duration
	liveMetricsAddr string
	liveNoFlatten   bool
)

func init() {
	rootCmd.AddCommand(liveCmd)

	liveCmd.Flags().StringVar(&livePaper, "paper", "", "replay this candle CSV against an in-memory venue")
	liveCmd.Flags().DurationVar(&livePace, "pace", 0, "paper: delay between replayed candles")
	liveCmd.Flags().StringVar(&liveMetricsAddr, "metrics-addr", "", "serve /metrics and /status here (default live.metrics_addr)")
	liveCmd.Flags().BoolVar(&liveNoFlatten, "no-flatten", false, "leave positions open on shutdown")
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logging.L().With("symbol", cfg.Account.Symbol)
	ctx, stop := signalContext()
	defer stop()

	venue, warm, err := liveVenue(ctx, cfg, log)
	if err != nil {
		return err
	}

	policy, err := cfg.Live.RetryPolicy()
	if err != nil {
		return err
	}
	var limiter *rate.Limiter
	if cfg.Live.RateLimitPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Live.RateLimitPerSec), max(1, cfg.Live.RateLimitBurst))
	}
	guarded := broker.NewGuarded(venue, policy, limiter, log)

	j, err := openJournal(cfg.Journal)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	runID := id.New()
	engine, err := live.NewEngine(live.Config{
		Symbol:        cfg.Account.Symbol,
		BaseAsset:     cfg.Account.BaseAsset,
		QuoteAsset:    cfg.Account.QuoteAsset,
		Params:        cfg.RiskParams(),
		FlattenOnStop: cfg.Live.FlattenOnStop && !liveNoFlatten,
	}, guarded,
		live.WithStateStore(live.NewStateStore(cfg.Live.StateFile, cfg.Account.Symbol)),
		live.WithJournal(j),
		live.WithMetrics(live.NewMetrics(reg)),
		live.WithLogger(log),
		live.WithRunID(runID),
	)
	if err != nil {
		return err
	}
	if err := engine.Connect(ctx); err != nil {
		return err
	}

	ann := strategy.NewAnnotator(signalParams(cfg))
	ann.Seed(warm)
	klines, err := guarded.SubscribeKlines(ctx, cfg.Account.Symbol, cfg.Live.Interval)
	if err != nil {
		return fmt.Errorf("subscribe klines: %w", err)
	}
	log.Info("live trading started", "run", runID, "interval", cfg.Live.Interval, "warm", len(warm), "ready", ann.Ready())

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	group, gctx := errgroup.WithContext(runCtx)
	events := make(chan market.Event, 64)

	group.Go(func() error {
		return ignoreCanceled(ann.Run(gctx, klines, events))
	})
	group.Go(func() error {
		// the replay ending closes events; stop the rest with it
		defer cancel()
		return ignoreCanceled(engine.Run(gctx, events))
	})

	addr := liveMetricsAddr
	if addr == "" {
		addr = cfg.Live.MetricsAddr
	}
	if addr != "" {
		srv := statusServer(addr, reg, engine)
		group.Go(func() error {
			log.Info("serving metrics", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		group.Go(func() error {
			<-gctx.Done()
			sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer scancel()
			return srv.Shutdown(sctx)
		})
	}

	err = group.Wait()
	printStatus(cmd, engine.Status())
	return err
}

func liveVenue(ctx context.Context, cfg *config.Config, log *slog.Logger) (broker.Venue, []market.Candle, error) {
	if livePaper != "" {
		candles, err := market.LoadCandlesCSV(livePaper)
		if err != nil {
			return nil, nil, fmt.Errorf("load %s: %w", livePaper, err)
		}
		pv := paper.New(cfg.Account.Symbol, cfg.Account.BaseAsset, cfg.Account.QuoteAsset,
			paper.WithFee(cfg.Costs.TradingFeeFraction),
			paper.WithSlippage(cfg.Costs.SlippageFraction),
			paper.WithBalance(cfg.Account.QuoteAsset, cfg.Account.InitialCapital),
			paper.WithCandles(candles, livePace),
		)
		return pv, nil, nil
	}

	client, err := binanceClient(cfg, log, true)
	if err != nil {
		return nil, nil, err
	}

	var warm []market.Candle
	if n := cfg.Live.WarmupCandles; n > 0 {
		step, err := market.IntervalDuration(cfg.Live.Interval)
		if err != nil {
			return nil, nil, err
		}
		end := time.Now().UTC()
		warm, err = client.FetchKlines(ctx, cfg.Account.Symbol, cfg.Live.Interval, end.Add(-time.Duration(n)*step), end)
		if err != nil {
			return nil, nil, fmt.Errorf("warm up: %w", err)
		}
	}
	return client, warm, nil
}

func binanceClient(cfg *config.Config, log *slog.Logger, needKeys bool) (*binance.Client, error) {
	key, secret := v.GetString("binance.api_key"), v.GetString("binance.api_secret")
	if needKeys && (key == "" || secret == "") {
		return nil, errors.New("TRADER_BINANCE_API_KEY and TRADER_BINANCE_API_SECRET are required (or use --paper)")
	}
	timeout, err := cfg.Live.Timeout()
	if err != nil {
		return nil, err
	}
	return binance.New(binance.Config{
		APIKey:      key,
		APISecret:   secret,
		Testnet:     cfg.Live.Testnet,
		HTTPTimeout: timeout,
	}, log), nil
}

func statusServer(addr string, reg *prometheus.Registry, engine *live.Engine) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(engine.Status())
	})
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
