package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.NotNil(t, cfg)
	assert.Equal(t, "BTCUSDT", cfg.Account.Symbol)
	assert.Equal(t, 10000.0, cfg.Account.InitialCapital)
	assert.Equal(t, 9, cfg.Strategy.EMAFast)
	assert.Equal(t, 21, cfg.Strategy.EMASlow)
	assert.Len(t, cfg.Optimize.EMAFast, 11)
	assert.Len(t, cfg.Optimize.EMASlow, 31)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	with := func(mut func(*Config)) *Config {
		c := Default()
		mut(c)
		return c
	}

	tests := []struct {
		name    string
		config  *Config
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid config",
			config:  Default(),
			wantErr: false,
		},
		{
			name:    "missing symbol",
			config:  with(func(c *Config) { c.Account.Symbol = "" }),
			wantErr: true,
			errMsg:  "account.symbol is required",
		},
		{
			name:    "symbol does not match assets",
			config:  with(func(c *Config) { c.Account.Symbol = "ETHUSDT" }),
			wantErr: true,
			errMsg:  "account.symbol ETHUSDT is not BTC+USDT",
		},
		{
			name:    "negative capital",
			config:  with(func(c *Config) { c.Account.InitialCapital = -1 }),
			wantErr: true,
			errMsg:  "initial_capital must be positive",
		},
		{
			name:    "no open trades",
			config:  with(func(c *Config) { c.Risk.MaxOpenTrades = 0 }),
			wantErr: true,
			errMsg:  "max_open_trades must be at least 1",
		},
		{
			name:    "fast not below slow",
			config:  with(func(c *Config) { c.Strategy.EMAFast = 21 }),
			wantErr: true,
			errMsg:  "strategy.ema_fast (21) must be below strategy.ema_slow (21)",
		},
		{
			name:    "rsi threshold ignored when filter is off",
			config:  with(func(c *Config) { c.Strategy.UseRSIFilter = false; c.Strategy.RSIThreshold = 0 }),
			wantErr: false,
		},
		{
			name:    "bad timeout",
			config:  with(func(c *Config) { c.Live.RequestTimeout = "soon" }),
			wantErr: true,
			errMsg:  "live.request_timeout",
		},
		{
			name:    "bad retry delay",
			config:  with(func(c *Config) { c.Live.Retry.BaseDelay = "-1s" }),
			wantErr: true,
			errMsg:  "live.retry.base_delay must not be negative",
		},
		{
			name:    "csv without files",
			config:  with(func(c *Config) { c.Journal.TradesFile = "" }),
			wantErr: true,
			errMsg:  "journal trades_file and equity_file required for CSV type",
		},
		{
			name:    "sqlite without path",
			config:  with(func(c *Config) { c.Journal.Type = "sqlite" }),
			wantErr: true,
			errMsg:  "journal db_path required for SQLite type",
		},
		{
			name:    "unknown journal",
			config:  with(func(c *Config) { c.Journal.Type = "kafka" }),
			wantErr: true,
			errMsg:  "journal.type must be 'csv', 'sqlite' or 'none'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRiskParams(t *testing.T) {
	cfg := Default()
	cfg.Exits.TakeProfitFraction = 0.005
	cfg.Risk.MaxOpenTrades = 1

	p := cfg.RiskParams()
	assert.Equal(t, 0.005, p.TakeProfitFraction)
	assert.Equal(t, 1, p.MaxOpenTrades)
	assert.Equal(t, cfg.Costs.TradingFeeFraction, p.FeeFraction)
	assert.Equal(t, cfg.Risk.CircuitBreakerDrawdownFraction, p.CircuitBreakerDrawdown)
}

func TestRetryPolicy(t *testing.T) {
	live := Default().Live
	live.Retry = RetryConfig{MaxAttempts: 5, BaseDelay: "1s", MaxDelay: "8s"}
	live.RequestTimeout = "3s"

	p, err := live.RetryPolicy()
	require.NoError(t, err)
	assert.Equal(t, 5, p.MaxAttempts)
	assert.Equal(t, time.Second, p.BaseDelay)
	assert.Equal(t, 8*time.Second, p.MaxDelay)
	assert.Equal(t, 3*time.Second, p.Timeout)

	// unset fields keep the defaults
	p, err = LiveConfig{}.RetryPolicy()
	require.NoError(t, err)
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, 2*time.Second, p.BaseDelay)
}

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()

	for _, name := range []string{"config.json", "config.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(tmpDir, name)
			cfg := Default()
			cfg.Account.InitialCapital = 2500
			cfg.Exits.StopLossFraction = 0.004

			require.NoError(t, cfg.SaveToFile(path))

			loaded, err := LoadFromFile(path)
			require.NoError(t, err)
			assert.Equal(t, cfg, loaded)
		})
	}
}

func TestLoadPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	data := "exits:\n  take_profit_fraction: 0.006\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 0.006, cfg.Exits.TakeProfitFraction)
	assert.Equal(t, 0.003, cfg.Exits.StopLossFraction)
	assert.Equal(t, "BTCUSDT", cfg.Account.Symbol)
}

func TestLoadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("risk:\n  max_open_trades: 0\n"), 0o644))

	_, err := LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")

	_, err = LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
