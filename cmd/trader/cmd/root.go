package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rustyeddy/spottrader/config"
	"github.com/rustyeddy/spottrader/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// v carries flags and TRADER_* environment variables. Environment keys use
// underscores for dots and dashes: TRADER_LOG_LEVEL, TRADER_BINANCE_API_KEY.
var v = viper.New()

var rootCmd = &cobra.Command{
	Use:   "trader",
	Short: "A risk-gated spot trading engine for one symbol",
	Long: `Trader runs a long-only EMA crossover strategy on a single spot pair.

It provides tools for:
  - Backtesting against historical candles with fees and slippage
  - Grid searching EMA periods and take-profit/stop-loss levels
  - Trading live on Binance (or a paper venue) with crash-safe state
  - Inspecting the trade journal and persisted live state
  - Downloading historical klines`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.Setup(os.Stderr, v.GetString("log.level"), v.GetString("log.format"))
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	v.SetEnvPrefix("TRADER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	pf := rootCmd.PersistentFlags()
	pf.StringP("config", "c", "", "config file (YAML or JSON); defaults apply when empty")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("log-format", "text", "log format (text, json)")
	pf.String("symbol", "", "override account.symbol")
	pf.String("base", "", "override account.base_asset")
	pf.String("quote", "", "override account.quote_asset")

	_ = v.BindPFlag("config", pf.Lookup("config"))
	_ = v.BindPFlag("log.level", pf.Lookup("log-level"))
	_ = v.BindPFlag("log.format", pf.Lookup("log-format"))
	_ = v.BindPFlag("account.symbol", pf.Lookup("symbol"))
	_ = v.BindPFlag("account.base_asset", pf.Lookup("base"))
	_ = v.BindPFlag("account.quote_asset", pf.Lookup("quote"))
}

// loadConfig reads the config file when one is given and applies flag and
// environment overrides on top.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if path := v.GetString("config"); path != "" {
		var err error
		if cfg, err = config.LoadFromFile(path); err != nil {
			return nil, err
		}
	}

	if s := v.GetString("account.symbol"); s != "" {
		cfg.Account.Symbol = strings.ToUpper(s)
	}
	if s := v.GetString("account.base_asset"); s != "" {
		cfg.Account.BaseAsset = strings.ToUpper(s)
	}
	if s := v.GetString("account.quote_asset"); s != "" {
		cfg.Account.QuoteAsset = strings.ToUpper(s)
	}
	if v.IsSet("account.initial_capital") {
		cfg.Account.InitialCapital = v.GetFloat64("account.initial_capital")
	}
	if v.IsSet("live.testnet") {
		cfg.Live.Testnet = v.GetBool("live.testnet")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
