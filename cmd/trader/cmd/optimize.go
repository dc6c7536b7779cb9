package cmd

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/rustyeddy/spottrader/internal/logging"
	"github.com/rustyeddy/spottrader/market"
	"github.com/rustyeddy/spottrader/optimize"
	"github.com/rustyeddy/spottrader/report"
	"github.com/spf13/cobra"
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Grid search EMA periods and exit levels",
	Long: `Optimize backtests every combination in the optimize section of the
config (EMA fast x EMA slow x take-profit x stop-loss, fast below slow)
in parallel and ranks them by Sharpe ratio.

Example:
  trader optimize -c trader.yaml --data data/BTCUSDT_1m.csv --top 20 --out output/grid.csv`,
	RunE: runOptimize,
}

var (
	optDataPath string
	optTop      int
	optWorkers  int
	optOut      string
	optInterval string
)

func init() {
	rootCmd.AddCommand(optimizeCmd)

	optimizeCmd.Flags().StringVarP(&optDataPath, "data", "d", "", "path to candle CSV (required)")
	optimizeCmd.Flags().IntVar(&optTop, "top", 0, "results to show (default optimize.top)")
	optimizeCmd.Flags().IntVarP(&optWorkers, "workers", "w", 0, "parallel workers (default optimize.workers, then CPUs-1)")
	optimizeCmd.Flags().StringVarP(&optOut, "out", "o", "", "write the ranked results CSV here")
	optimizeCmd.Flags().StringVarP(&optInterval, "interval", "i", "", "bar interval for Sharpe annualisation (default live.interval)")

	optimizeCmd.MarkFlagRequired("data")
}

func runOptimize(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	candles, err := market.LoadCandlesCSV(optDataPath)
	if err != nil {
		return fmt.Errorf("load %s: %w", optDataPath, err)
	}

	interval := optInterval
	if interval == "" {
		interval = cfg.Live.Interval
	}
	bpy, err := report.BarsPerYear(interval)
	if err != nil {
		return err
	}

	workers := optWorkers
	if workers == 0 {
		workers = cfg.Optimize.Workers
	}
	top := optTop
	if top == 0 {
		top = cfg.Optimize.Top
	}

	log := logging.L()
	grid := optimize.Grid{
		Base:        cfg.RiskParams(),
		Signal:      signalParams(cfg),
		BarsPerYear: bpy,
		Workers:     workers,
		Log:         log,
		Progress: func(done, total int) {
			if done%25 == 0 || done == total {
				log.Info("grid progress", "done", done, "total", total)
			}
		},
	}
	space := optimize.Space{
		Fast:       cfg.Optimize.EMAFast,
		Slow:       cfg.Optimize.EMASlow,
		TakeProfit: cfg.Optimize.TakeProfit,
		StopLoss:   cfg.Optimize.StopLoss,
	}
	if space.Size() == 0 {
		return fmt.Errorf("optimize: empty grid (need ema_fast below ema_slow and at least one tp and sl)")
	}

	results, err := grid.Run(ctx, candles, space, 0)
	if err != nil {
		return err
	}

	if optOut != "" {
		if err := writeGridCSV(optOut, results); err != nil {
			return err
		}
	}

	shown := results
	if top > 0 && len(shown) > top {
		shown = shown[:top]
	}
	printGrid(cmd.OutOrStdout(), shown)
	if len(results) > 0 {
		best := results[0]
		fmt.Fprintf(cmd.OutOrStdout(), "\nBest: %s (sharpe %.2f, return %+.2f%%)\n", best.Point, best.Sharpe, best.ReturnPct)
	}
	return nil
}

func printGrid(w io.Writer, rs []optimize.Result) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "#\tFAST\tSLOW\tTP%\tSL%\tSHARPE\tRETURN%\tWIN%\tMAXDD%\tTRADES\tPF\t")
	for i, r := range rs {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%d\t%s\t\n",
			i+1, r.Fast, r.Slow, r.TakeProfit*100, r.StopLoss*100,
			r.Sharpe, r.ReturnPct, r.WinRate, r.MaxDDPct, r.Trades, pf(r.ProfitFactor))
	}
	tw.Flush()
}

var gridHeader = []string{
	"ema_fast", "ema_slow", "tp_pct", "sl_pct", "sharpe", "return_pct",
	"win_rate", "max_dd_pct", "trades", "profit_factor",
}

func writeGridCSV(path string, rs []optimize.Result) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	_ = w.Write(gridHeader)
	for _, r := range rs {
		_ = w.Write([]string{
			strconv.Itoa(r.Fast),
			strconv.Itoa(r.Slow),
			strconv.FormatFloat(r.TakeProfit, 'f', -1, 64),
			strconv.FormatFloat(r.StopLoss, 'f', -1, 64),
			strconv.FormatFloat(r.Sharpe, 'f', 4, 64),
			strconv.FormatFloat(r.ReturnPct, 'f', 4, 64),
			strconv.FormatFloat(r.WinRate, 'f', 2, 64),
			strconv.FormatFloat(r.MaxDDPct, 'f', 4, 64),
			strconv.Itoa(r.Trades),
			pf(r.ProfitFactor),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func pf(x float64) string {
	if math.IsInf(x, 1) {
		return "inf"
	}
	return strconv.FormatFloat(x, 'f', 2, 64)
}
