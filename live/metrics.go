package live

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rustyeddy/spottrader/ledger"
)

// Metrics are the engine's Prometheus series. Build one per registry;
// tests use a private registry so engines never collide.
type Metrics struct {
	equity    prometheus.Gauge
	peak      prometheus.Gauge
	cash      prometheus.Gauge
	drawdown  prometheus.Gauge
	open      prometheus.Gauge
	breaker   prometheus.Gauge
	halted    prometheus.Gauge
	orders    *prometheus.CounterVec
	decisions *prometheus.CounterVec
	exits     *prometheus.CounterVec
	saves     *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_equity",
			Help: "Marked-to-market equity in the quote asset.",
		}),
		peak: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_peak_equity",
			Help: "Highest equity seen since the last reset.",
		}),
		cash: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_cash",
			Help: "Free quote balance.",
		}),
		drawdown: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_drawdown_ratio",
			Help: "Fractional decline of equity from its peak.",
		}),
		open: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_open_positions",
			Help: "Positions currently held.",
		}),
		breaker: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_circuit_breaker",
			Help: "1 while the drawdown circuit breaker is latched.",
		}),
		halted: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_halted",
			Help: "1 while trading is halted on a bookkeeping inconsistency.",
		}),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_orders_total",
			Help: "Market orders submitted, by side and outcome.",
		}, []string{"side", "result"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_open_decisions_total",
			Help: "Open attempts, by first rejection code or ADMITTED.",
		}, []string{"code"}),
		exits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_exits_total",
			Help: "Closed positions by exit reason.",
		}, []string{"reason"}),
		saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_state_saves_total",
			Help: "State file writes by outcome.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.equity, m.peak, m.cash, m.drawdown, m.open, m.breaker,
			m.halted, m.orders, m.decisions, m.exits, m.saves)
	}
	return m
}

func (m *Metrics) observe(s ledger.RiskState) {
	if m == nil {
		return
	}
	m.equity.Set(s.Equity)
	m.peak.Set(s.PeakEquity)
	m.cash.Set(s.Cash)
	m.drawdown.Set(s.Drawdown())
	m.open.Set(float64(s.OpenCount))
	m.breaker.Set(boolGauge(s.CircuitBreakerActive))
	m.halted.Set(boolGauge(s.HaltReason != ""))
}

func (m *Metrics) order(side, result string) {
	if m != nil {
		m.orders.WithLabelValues(side, result).Inc()
	}
}

func (m *Metrics) decision(code string) {
	if m != nil {
		m.decisions.WithLabelValues(code).Inc()
	}
}

func (m *Metrics) exit(reason ledger.ExitReason) {
	if m != nil {
		m.exits.WithLabelValues(string(reason)).Inc()
	}
}

func (m *Metrics) save(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.saves.WithLabelValues(result).Inc()
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
