package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rustyeddy/spottrader/broker"
	"github.com/rustyeddy/spottrader/risk"
	"gopkg.in/yaml.v3"
)

// Config is the complete trader configuration.
type Config struct {
	Account  AccountConfig  `json:"account" yaml:"account"`
	Costs    CostsConfig    `json:"costs" yaml:"costs"`
	Risk     RiskConfig     `json:"risk" yaml:"risk"`
	Exits    ExitsConfig    `json:"exits" yaml:"exits"`
	Strategy StrategyConfig `json:"strategy" yaml:"strategy"`
	Live     LiveConfig     `json:"live" yaml:"live"`
	Journal  JournalConfig  `json:"journal" yaml:"journal"`
	Optimize OptimizeConfig `json:"optimize" yaml:"optimize"`
}

// AccountConfig names the traded pair and the simulated starting balance.
type AccountConfig struct {
	InitialCapital float64 `json:"initial_capital" yaml:"initial_capital"`
	Symbol         string  `json:"symbol" yaml:"symbol"`
	BaseAsset      string  `json:"base_asset" yaml:"base_asset"`
	QuoteAsset     string  `json:"quote_asset" yaml:"quote_asset"`
}

type CostsConfig struct {
	TradingFeeFraction float64 `json:"trading_fee_fraction" yaml:"trading_fee_fraction"`
	SlippageFraction   float64 `json:"slippage_fraction" yaml:"slippage_fraction"`
}

type RiskConfig struct {
	RiskPerTradeFraction           float64 `json:"risk_per_trade_fraction" yaml:"risk_per_trade_fraction"`
	MaxDailyLossFraction           float64 `json:"max_daily_loss_fraction" yaml:"max_daily_loss_fraction"`
	MaxOpenTrades                  int     `json:"max_open_trades" yaml:"max_open_trades"`
	CircuitBreakerDrawdownFraction float64 `json:"circuit_breaker_drawdown_fraction" yaml:"circuit_breaker_drawdown_fraction"`
}

type ExitsConfig struct {
	TakeProfitFraction float64 `json:"take_profit_fraction" yaml:"take_profit_fraction"`
	StopLossFraction   float64 `json:"stop_loss_fraction" yaml:"stop_loss_fraction"`
}

// StrategyConfig parameterises the EMA crossover signal.
type StrategyConfig struct {
	EMAFast      int     `json:"ema_fast" yaml:"ema_fast"`
	EMASlow      int     `json:"ema_slow" yaml:"ema_slow"`
	RSIPeriod    int     `json:"rsi_period" yaml:"rsi_period"`
	RSIThreshold float64 `json:"rsi_threshold" yaml:"rsi_threshold"`
	UseRSIFilter bool    `json:"use_rsi_filter" yaml:"use_rsi_filter"`
}

// LiveConfig holds venue and runtime settings for live trading. Durations
// are Go duration strings such as "10s".
type LiveConfig struct {
	Interval        string      `json:"interval" yaml:"interval"`
	StateFile       string      `json:"state_file" yaml:"state_file"`
	Testnet         bool        `json:"testnet" yaml:"testnet"`
	RequestTimeout  string      `json:"request_timeout" yaml:"request_timeout"`
	Retry           RetryConfig `json:"retry" yaml:"retry"`
	RateLimitPerSec float64     `json:"rate_limit_per_sec" yaml:"rate_limit_per_sec"`
	RateLimitBurst  int         `json:"rate_limit_burst" yaml:"rate_limit_burst"`
	MetricsAddr     string      `json:"metrics_addr,omitempty" yaml:"metrics_addr,omitempty"`
	WarmupCandles   int         `json:"warmup_candles" yaml:"warmup_candles"`
	FlattenOnStop   bool        `json:"flatten_on_stop" yaml:"flatten_on_stop"`
}

type RetryConfig struct {
	MaxAttempts int    `json:"max_attempts" yaml:"max_attempts"`
	BaseDelay   string `json:"base_delay" yaml:"base_delay"`
	MaxDelay    string `json:"max_delay" yaml:"max_delay"`
}

// JournalConfig contains journaling parameters
type JournalConfig struct {
	Type          string `json:"type" yaml:"type"` // "csv", "sqlite" or "none"
	TradesFile    string `json:"trades_file,omitempty" yaml:"trades_file,omitempty"`
	EquityFile    string `json:"equity_file,omitempty" yaml:"equity_file,omitempty"`
	DecisionsFile string `json:"decisions_file,omitempty" yaml:"decisions_file,omitempty"`
	DBPath        string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

// OptimizeConfig is the parameter grid swept by `trader optimize`.
type OptimizeConfig struct {
	EMAFast    []int     `json:"ema_fast" yaml:"ema_fast"`
	EMASlow    []int     `json:"ema_slow" yaml:"ema_slow"`
	TakeProfit []float64 `json:"take_profit" yaml:"take_profit"`
	StopLoss   []float64 `json:"stop_loss" yaml:"stop_loss"`
	Workers    int       `json:"workers" yaml:"workers"`
	Top        int       `json:"top" yaml:"top"`
}

// LoadFromFile loads configuration from a file (YAML, falling back to JSON)
// on top of the defaults, so a file only needs the keys it changes.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		cfg = Default()
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// RiskParams is the slice of the configuration the ledger, gate and both
// engines consume.
func (c *Config) RiskParams() risk.Params {
	return risk.Params{
		InitialCapital:         c.Account.InitialCapital,
		FeeFraction:            c.Costs.TradingFeeFraction,
		SlippageFraction:       c.Costs.SlippageFraction,
		RiskPerTradeFraction:   c.Risk.RiskPerTradeFraction,
		MaxDailyLossFraction:   c.Risk.MaxDailyLossFraction,
		MaxOpenTrades:          c.Risk.MaxOpenTrades,
		CircuitBreakerDrawdown: c.Risk.CircuitBreakerDrawdownFraction,
		TakeProfitFraction:     c.Exits.TakeProfitFraction,
		StopLossFraction:       c.Exits.StopLossFraction,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Account.Symbol == "" {
		return fmt.Errorf("account.symbol is required")
	}
	if c.Account.BaseAsset == "" || c.Account.QuoteAsset == "" {
		return fmt.Errorf("account.base_asset and account.quote_asset are required")
	}
	if !strings.EqualFold(c.Account.BaseAsset+c.Account.QuoteAsset, c.Account.Symbol) {
		return fmt.Errorf("account.symbol %s is not %s+%s", c.Account.Symbol, c.Account.BaseAsset, c.Account.QuoteAsset)
	}
	if err := c.RiskParams().Validate(); err != nil {
		return err
	}

	s := c.Strategy
	if s.EMAFast < 1 || s.EMASlow < 2 {
		return fmt.Errorf("strategy.ema_fast and strategy.ema_slow must be positive")
	}
	if s.EMAFast >= s.EMASlow {
		return fmt.Errorf("strategy.ema_fast (%d) must be below strategy.ema_slow (%d)", s.EMAFast, s.EMASlow)
	}
	if s.UseRSIFilter && (s.RSIPeriod < 2 || s.RSIThreshold <= 0 || s.RSIThreshold > 100) {
		return fmt.Errorf("strategy.rsi_period must be at least 2 and strategy.rsi_threshold in (0, 100]")
	}

	if _, err := c.Live.Timeout(); err != nil {
		return err
	}
	if _, err := c.Live.RetryPolicy(); err != nil {
		return err
	}
	if c.Live.RateLimitPerSec < 0 {
		return fmt.Errorf("live.rate_limit_per_sec must not be negative")
	}

	switch c.Journal.Type {
	case "none", "":
	case "csv":
		if c.Journal.TradesFile == "" || c.Journal.EquityFile == "" {
			return fmt.Errorf("journal trades_file and equity_file required for CSV type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for SQLite type")
		}
	default:
		return fmt.Errorf("journal.type must be 'csv', 'sqlite' or 'none'")
	}

	if c.Optimize.Workers < 0 {
		return fmt.Errorf("optimize.workers must not be negative")
	}
	return nil
}

// Timeout is the per-request venue timeout.
func (l LiveConfig) Timeout() (time.Duration, error) {
	return parseDuration("live.request_timeout", l.RequestTimeout)
}

// RetryPolicy builds the venue retry policy from the live settings.
func (l LiveConfig) RetryPolicy() (broker.RetryPolicy, error) {
	p := broker.DefaultRetryPolicy()
	if l.Retry.MaxAttempts < 0 {
		return p, fmt.Errorf("live.retry.max_attempts must not be negative")
	}
	if l.Retry.MaxAttempts > 0 {
		p.MaxAttempts = l.Retry.MaxAttempts
	}
	var err error
	if l.Retry.BaseDelay != "" {
		if p.BaseDelay, err = parseDuration("live.retry.base_delay", l.Retry.BaseDelay); err != nil {
			return p, err
		}
	}
	if l.Retry.MaxDelay != "" {
		if p.MaxDelay, err = parseDuration("live.retry.max_delay", l.Retry.MaxDelay); err != nil {
			return p, err
		}
	}
	if l.RequestTimeout != "" {
		if p.Timeout, err = l.Timeout(); err != nil {
			return p, err
		}
	}
	return p, nil
}

func parseDuration(key, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}
	return d, nil
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	p := risk.DefaultParams()
	return &Config{
		Account: AccountConfig{
			InitialCapital: p.InitialCapital,
			Symbol:         "BTCUSDT",
			BaseAsset:      "BTC",
			QuoteAsset:     "USDT",
		},
		Costs: CostsConfig{
			TradingFeeFraction: p.FeeFraction,
			SlippageFraction:   p.SlippageFraction,
		},
		Risk: RiskConfig{
			RiskPerTradeFraction:           p.RiskPerTradeFraction,
			MaxDailyLossFraction:           p.MaxDailyLossFraction,
			MaxOpenTrades:                  p.MaxOpenTrades,
			CircuitBreakerDrawdownFraction: p.CircuitBreakerDrawdown,
		},
		Exits: ExitsConfig{
			TakeProfitFraction: p.TakeProfitFraction,
			StopLossFraction:   p.StopLossFraction,
		},
		Strategy: StrategyConfig{
			EMAFast:      9,
			EMASlow:      21,
			RSIPeriod:    14,
			RSIThreshold: 60,
			UseRSIFilter: true,
		},
		Live: LiveConfig{
			Interval:       "1m",
			StateFile:      "./output/live_state.json",
			RequestTimeout: "10s",
			Retry: RetryConfig{
				MaxAttempts: 3,
				BaseDelay:   "2s",
				MaxDelay:    "30s",
			},
			RateLimitPerSec: 10,
			RateLimitBurst:  5,
			WarmupCandles:   100,
			FlattenOnStop:   true,
		},
		Journal: JournalConfig{
			Type:          "csv",
			TradesFile:    "./output/trades.csv",
			EquityFile:    "./output/equity.csv",
			DecisionsFile: "./output/decisions.csv",
		},
		Optimize: OptimizeConfig{
			EMAFast:    intRange(5, 15),
			EMASlow:    intRange(20, 50),
			TakeProfit: []float64{0.002, 0.003, 0.004, 0.005, 0.006},
			StopLoss:   []float64{0.002, 0.003, 0.004, 0.005, 0.006},
			Top:        10,
		},
	}
}

func intRange(lo, hi int) []int {
	out := make([]int, 0, hi-lo+1)
	for i := lo; i <= hi; i++ {
		out = append(out, i)
	}
	return out
}
