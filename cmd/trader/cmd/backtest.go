package cmd

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/rustyeddy/spottrader/config"
	"github.com/rustyeddy/spottrader/internal/id"
	"github.com/rustyeddy/spottrader/internal/logging"
	"github.com/rustyeddy/spottrader/journal"
	"github.com/rustyeddy/spottrader/ledger"
	"github.com/rustyeddy/spottrader/market"
	"github.com/rustyeddy/spottrader/report"
	strategy "github.com/rustyeddy/spottrader/signal"
	"github.com/rustyeddy/spottrader/sim"
	"github.com/spf13/cobra"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Simulate the strategy over historical candles",
	Long: `Backtest replays an OHLCV CSV through the risk gate and ledger with
fees, slippage and intrabar stop-loss/take-profit checks, then prints a
performance report.

The CSV needs a time column (timestamp, datetime, date or time) and
open, high, low, close columns. With --signals the file must also carry a
buy column (buy_signal, buy or signal) and the EMA crossover is skipped.

Example:
  trader backtest -c trader.yaml --data data/BTCUSDT_1m.csv --trades-out output/trades.csv`,
	RunE: runBacktest,
}

var (
	btDataPath  string
	btSignals   bool
	btInterval  string
	btTradesOut string
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringVarP(&btDataPath, "data", "d", "", "path to candle CSV (required)")
	backtestCmd.Flags().BoolVar(&btSignals, "signals", false, "use the buy column in the CSV instead of the EMA crossover")
	backtestCmd.Flags().StringVarP(&btInterval, "interval", "i", "", "bar interval for Sharpe annualisation (default live.interval)")
	backtestCmd.Flags().StringVar(&btTradesOut, "trades-out", "", "write the trade log CSV here")

	backtestCmd.MarkFlagRequired("data")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	bars, err := loadBars(cfg, btDataPath, btSignals)
	if err != nil {
		return err
	}
	if len(bars) == 0 {
		return fmt.Errorf("no candles in %s", btDataPath)
	}

	interval := btInterval
	if interval == "" {
		interval = cfg.Live.Interval
	}
	bpy, err := report.BarsPerYear(interval)
	if err != nil {
		return err
	}

	j, err := openJournal(cfg.Journal)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	runID := id.New()
	engine, err := sim.NewEngine(cfg.RiskParams(),
		sim.WithJournal(j),
		sim.WithRunID(runID),
		sim.WithSymbol(cfg.Account.Symbol),
		sim.WithLogger(logging.L()),
	)
	if err != nil {
		return err
	}

	started := time.Now()
	res, err := engine.Run(ctx, bars)
	if err != nil {
		return fmt.Errorf("backtest: %w", err)
	}
	m := report.Compute(res.Trades, res.Equity, cfg.Account.InitialCapital, bpy)

	out := cmd.OutOrStdout()
	report.Print(out, fmt.Sprintf("Backtest %s %s", cfg.Account.Symbol, interval), m)
	fmt.Fprintf(out, "Bars:          %12d\n", len(bars))
	fmt.Fprintf(out, "Admitted:      %12d\n", res.Admitted)
	printRejections(cmd, res.Rejections)
	if !res.BreakerTrippedAt.IsZero() {
		fmt.Fprintf(out, "Breaker:       %s\n", res.BreakerTrippedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(out, "Elapsed:       %s\n", time.Since(started).Round(time.Millisecond))

	if btTradesOut != "" {
		if err := writeTrades(btTradesOut, res.Trades); err != nil {
			return err
		}
		fmt.Fprintf(out, "Trade Log:     %s\n", btTradesOut)
	}

	if rr, ok := j.(interface{ RecordRun(journal.Run) error }); ok {
		run := journal.Run{
			RunID:          runID,
			Created:        started,
			Mode:           "backtest",
			Symbol:         cfg.Account.Symbol,
			Interval:       interval,
			Dataset:        btDataPath,
			Params:         describeParams(cfg),
			Start:          bars[0].Time,
			End:            bars[len(bars)-1].Time,
			BreakerTripped: !res.BreakerTrippedAt.IsZero(),
		}
		m.Fill(&run)
		if err := rr.RecordRun(run); err != nil {
			return fmt.Errorf("record run: %w", err)
		}
	}
	return nil
}

func loadBars(cfg *config.Config, path string, precomputed bool) ([]market.Signal, error) {
	if precomputed {
		bars, err := market.LoadSignalsCSV(path)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		return bars, nil
	}
	candles, err := market.LoadCandlesCSV(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return strategy.Annotate(candles, signalParams(cfg)), nil
}

func printRejections(cmd *cobra.Command, rej map[string]int) {
	codes := make([]string, 0, len(rej))
	for c := range rej {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	for _, c := range codes {
		fmt.Fprintf(cmd.OutOrStdout(), "Rejected:      %12d  %s\n", rej[c], c)
	}
}

func writeTrades(path string, trades []ledger.ClosedTrade) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := journal.WriteTradesCSV(f, trades); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func describeParams(cfg *config.Config) string {
	s := fmt.Sprintf("ema %d/%d", cfg.Strategy.EMAFast, cfg.Strategy.EMASlow)
	if cfg.Strategy.UseRSIFilter {
		s += fmt.Sprintf(" rsi(%d)<%.0f", cfg.Strategy.RSIPeriod, cfg.Strategy.RSIThreshold)
	}
	return s + fmt.Sprintf(" tp %.4f sl %.4f risk %.4f fee %.4f slip %.4f",
		cfg.Exits.TakeProfitFraction, cfg.Exits.StopLossFraction,
		cfg.Risk.RiskPerTradeFraction, cfg.Costs.TradingFeeFraction, cfg.Costs.SlippageFraction)
}
