package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rustyeddy/spottrader/broker"
	"github.com/rustyeddy/spottrader/internal/logging"
	"github.com/rustyeddy/spottrader/live"
	"github.com/spf13/cobra"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect or reset the persisted live state",
	Long: `State works on the live state file (live.state_file).

Subcommands:
  show  - Print equity, drawdown, open positions and breaker status
  reset - Clear the circuit breaker and halt, re-baseline capital

Examples:
  trader state show -c trader.yaml --json
  trader state reset -c trader.yaml`,
}

var stateShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the persisted live state",
	RunE:  runStateShow,
}

var stateResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the live state",
	Long: `Reset re-baselines the ledger at the venue's free quote balance, clears
the circuit breaker and any halt, and deletes the state file. Open
positions are forgotten, so flatten them first.

With --offline the state file is deleted without contacting the venue; the
next live run starts fresh from the venue balance.`,
	RunE: runStateReset,
}

var (
	stateJSON    bool
	stateOffline bool
)

func init() {
	rootCmd.AddCommand(stateCmd)
	stateCmd.AddCommand(stateShowCmd)
	stateCmd.AddCommand(stateResetCmd)

	stateShowCmd.Flags().BoolVar(&stateJSON, "json", false, "print as JSON")
	stateResetCmd.Flags().BoolVar(&stateOffline, "offline", false, "only delete the state file")
}

func runStateShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store := live.NewStateStore(cfg.Live.StateFile, cfg.Account.Symbol)
	snap, ok, err := store.Load()
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintf(cmd.OutOrStdout(), "no live state at %s\n", store.Path())
		return nil
	}

	st := live.StatusOf(cfg.Account.Symbol, snap)
	if stateJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}
	printStatus(cmd, st)
	return nil
}

func runStateReset(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store := live.NewStateStore(cfg.Live.StateFile, cfg.Account.Symbol)

	if stateOffline {
		if err := store.Delete(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted %s\n", store.Path())
		return nil
	}

	ctx, stop := signalContext()
	defer stop()

	log := logging.L()
	client, err := binanceClient(cfg, log, true)
	if err != nil {
		return err
	}
	policy, err := cfg.Live.RetryPolicy()
	if err != nil {
		return err
	}
	engine, err := live.NewEngine(live.Config{
		Symbol:     cfg.Account.Symbol,
		BaseAsset:  cfg.Account.BaseAsset,
		QuoteAsset: cfg.Account.QuoteAsset,
		Params:     cfg.RiskParams(),
	}, broker.NewGuarded(client, policy, nil, log),
		live.WithStateStore(store),
		live.WithLogger(log),
	)
	if err != nil {
		return err
	}
	if err := engine.Connect(ctx); err != nil {
		return err
	}
	if err := engine.Reset(ctx); err != nil {
		return err
	}
	st := engine.Status()
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Reset: equity %.2f %s, breaker cleared\n", st.Equity, cfg.Account.QuoteAsset)
	return nil
}

func printStatus(cmd *cobra.Command, st live.Status) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, rule)
	fmt.Fprintf(out, " Live State %s (%s)\n", st.Symbol, st.State)
	fmt.Fprintln(out, rule)
	if !st.LastEvent.IsZero() {
		fmt.Fprintf(out, "Last Event:    %s\n", st.LastEvent.Format(time.RFC3339))
	}
	fmt.Fprintf(out, "Last Price:    %12.2f\n", st.LastPrice)
	fmt.Fprintf(out, "Initial:       %12.2f\n", st.InitialEquity)
	fmt.Fprintf(out, "Equity:        %12.2f\n", st.Equity)
	fmt.Fprintf(out, "Peak:          %12.2f\n", st.PeakEquity)
	fmt.Fprintf(out, "Cash:          %12.2f\n", st.Cash)
	fmt.Fprintf(out, "Drawdown:      %11.2f%%\n", st.DrawdownPct)
	fmt.Fprintf(out, "Total P/L:     %+11.2f%%\n", st.TotalPnLPct)
	fmt.Fprintf(out, "Daily P/L:     %12.2f  (%s)\n", st.DailyPnL, st.DailyDate)
	fmt.Fprintf(out, "Trades:        %12d\n", st.TradeCount)
	fmt.Fprintf(out, "Breaker:       %12t\n", st.CircuitBreaker)
	if st.HaltReason != "" {
		fmt.Fprintf(out, "Halted:        %s\n", st.HaltReason)
	}

	if len(st.Positions) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Open Positions")
		fmt.Fprintln(out, "--------------------------------------------------")
		for _, p := range st.Positions {
			flag := ""
			if p.NeedsAttention {
				flag = "  NEEDS ATTENTION: " + p.LastError
			}
			fmt.Fprintf(out, "%s  qty %g @ %.2f  tp %.2f  sl %.2f%s\n",
				p.ID, p.Quantity, p.EntryPrice, p.TakeProfit, p.StopLoss, flag)
		}
	}
	fmt.Fprintln(out)
}

const rule = "=================================================="
