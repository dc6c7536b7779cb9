package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/rustyeddy/spottrader/internal/logging"
	"github.com/rustyeddy/spottrader/market"
	"github.com/spf13/cobra"
)

var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Download historical market data",
}

var dataFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download Binance klines to CSV",
	Long: `Fetch downloads closed spot klines for the configured symbol and writes
them as an OHLCV CSV that backtest and optimize read. No API keys are
needed.

Examples:
  trader data fetch --days 30 --out data/BTCUSDT_1m.csv
  trader data fetch --symbol ETHUSDT --base ETH --interval 5m --start 2025-01-01 --end 2025-02-01`,
	RunE: runDataFetch,
}

var (
	fetchInterval string
	fetchDays     int
	fetchStart    string
	fetchEnd      string
	fetchOut      string
)

func init() {
	rootCmd.AddCommand(dataCmd)
	dataCmd.AddCommand(dataFetchCmd)

	dataFetchCmd.Flags().StringVarP(&fetchInterval, "interval", "i", "", "kline interval (default live.interval)")
	dataFetchCmd.Flags().IntVar(&fetchDays, "days", 30, "days back from now when --start is empty")
	dataFetchCmd.Flags().StringVar(&fetchStart, "start", "", "start date YYYY-MM-DD (UTC)")
	dataFetchCmd.Flags().StringVar(&fetchEnd, "end", "", "end date YYYY-MM-DD (UTC, exclusive; default now)")
	dataFetchCmd.Flags().StringVarP(&fetchOut, "out", "o", "", "output CSV (default data/<symbol>_<interval>.csv)")
}

func runDataFetch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	interval := fetchInterval
	if interval == "" {
		interval = cfg.Live.Interval
	}
	if _, err := market.IntervalDuration(interval); err != nil {
		return err
	}

	end := time.Now().UTC()
	if fetchEnd != "" {
		if end, err = time.Parse("2006-01-02", fetchEnd); err != nil {
			return fmt.Errorf("--end: %w", err)
		}
	}
	start := end.AddDate(0, 0, -fetchDays)
	if fetchStart != "" {
		if start, err = time.Parse("2006-01-02", fetchStart); err != nil {
			return fmt.Errorf("--start: %w", err)
		}
	}
	if !start.Before(end) {
		return fmt.Errorf("start %s is not before end %s", start.Format(time.DateOnly), end.Format(time.DateOnly))
	}

	out := fetchOut
	if out == "" {
		out = fmt.Sprintf("data/%s_%s.csv", cfg.Account.Symbol, interval)
	}

	log := logging.L()
	client, err := binanceClient(cfg, log, false)
	if err != nil {
		return err
	}
	log.Info("fetching klines", "symbol", cfg.Account.Symbol, "interval", interval, "start", start, "end", end)
	candles, err := client.FetchKlines(ctx, cfg.Account.Symbol, interval, start, end)
	if err != nil {
		return err
	}

	if err := ensureDir(out); err != nil {
		return err
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := market.WriteCandlesCSV(f, candles); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", out, err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %d candles to %s\n", len(candles), out)
	return nil
}
