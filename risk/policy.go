package risk

import "fmt"

// Params is the risk and cost configuration shared by both drivers.
// Fractions are plain ratios: 0.01 means one percent.
type Params struct {
	InitialCapital float64

	FeeFraction      float64 // 0.001
	SlippageFraction float64 // 0.0005

	RiskPerTradeFraction float64 // 0.01
	MaxDailyLossFraction float64 // 0.03
	MaxOpenTrades        int     // 3

	CircuitBreakerDrawdown float64 // 0.10

	TakeProfitFraction float64 // 0.003
	StopLossFraction   float64 // 0.003
}

// DefaultParams mirrors the values the desk has traded with.
func DefaultParams() Params {
	return Params{
		InitialCapital:         10_000,
		FeeFraction:            0.001,
		SlippageFraction:       0.0005,
		RiskPerTradeFraction:   0.01,
		MaxDailyLossFraction:   0.03,
		MaxOpenTrades:          3,
		CircuitBreakerDrawdown: 0.10,
		TakeProfitFraction:     0.003,
		StopLossFraction:       0.003,
	}
}

func (p Params) Validate() error {
	if p.InitialCapital <= 0 {
		return fmt.Errorf("initial_capital must be positive")
	}
	if p.FeeFraction < 0 || p.FeeFraction >= 1 {
		return fmt.Errorf("trading_fee_fraction must be in [0, 1)")
	}
	if p.SlippageFraction < 0 || p.SlippageFraction >= 1 {
		return fmt.Errorf("slippage_fraction must be in [0, 1)")
	}
	if p.RiskPerTradeFraction <= 0 || p.RiskPerTradeFraction > 1 {
		return fmt.Errorf("risk_per_trade_fraction must be in (0, 1]")
	}
	if p.MaxDailyLossFraction <= 0 || p.MaxDailyLossFraction > 1 {
		return fmt.Errorf("max_daily_loss_fraction must be in (0, 1]")
	}
	if p.MaxOpenTrades < 1 {
		return fmt.Errorf("max_open_trades must be at least 1")
	}
	if p.CircuitBreakerDrawdown <= 0 || p.CircuitBreakerDrawdown > 1 {
		return fmt.Errorf("circuit_breaker_drawdown_fraction must be in (0, 1]")
	}
	if p.TakeProfitFraction <= 0 {
		return fmt.Errorf("take_profit_fraction must be positive")
	}
	if p.StopLossFraction <= 0 || p.StopLossFraction >= 1 {
		return fmt.Errorf("stop_loss_fraction must be in (0, 1)")
	}
	return nil
}
