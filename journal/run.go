package journal

import (
	"io"
	"math"
	"text/template"
	"time"
)

// Run summarises one backtest or live session.
type Run struct {
	RunID    string
	Created  time.Time
	Mode     string // backtest, live, paper
	Symbol   string
	Interval string
	Dataset  string
	Params   string // strategy and risk parameters, human readable

	Start time.Time
	End   time.Time

	Trades int
	Wins   int
	Losses int

	StartEquity float64
	EndEquity   float64

	ReturnPct    float64
	WinRate      float64
	ProfitFactor float64
	MaxDDPct     float64
	Sharpe       float64
	TotalFees    float64

	BreakerTripped bool

	Notes []string
}

// finite keeps an unbounded profit factor storable.
func finite(x float64) float64 {
	if math.IsInf(x, 1) {
		return math.MaxFloat64
	}
	return x
}

func unfinite(x float64) float64 {
	if x == math.MaxFloat64 {
		return math.Inf(1)
	}
	return x
}

var runOrgFuncs = template.FuncMap{
	"num": func(x float64) string {
		if math.IsInf(x, 1) {
			return "inf"
		}
		return formatFloat(x, 2)
	},
	"orTime": func(t time.Time) time.Time {
		if t.IsZero() {
			return time.Now()
		}
		return t
	},
}

var runOrg = template.Must(template.New("run").Funcs(runOrgFuncs).Parse(RunOrgTemplate))

// WriteOrg renders the run as an Org-mode entry.
func (r Run) WriteOrg(w io.Writer) error {
	return runOrg.Execute(w, r)
}

const RunOrgTemplate = `* {{if .Mode}}{{.Mode}}{{else}}run{{end}}: {{.Symbol}} {{if .Interval}}{{.Interval}}{{else}}(interval?){{end}}
:PROPERTIES:
:RUN_ID:      {{.RunID}}
:SYMBOL:      {{.Symbol}}
:INTERVAL:    {{.Interval}}
:DATASET:     {{if .Dataset}}{{.Dataset}}{{else}}(dataset?){{end}}
:START_DATE:  {{.Start.Format "2006-01-02"}}
:END_DATE:    {{.End.Format "2006-01-02"}}
:START_EQ:    {{num .StartEquity}}
:END_EQ:      {{num .EndEquity}}
:RETURN_PCT:  {{num .ReturnPct}}
:MAX_DD_PCT:  {{num .MaxDDPct}}
:TRADES:      {{.Trades}}
:WINS:        {{.Wins}}
:LOSSES:      {{.Losses}}
:WIN_RATE:    {{num .WinRate}}
:PROFIT_FAC:  {{num .ProfitFactor}}
:SHARPE:      {{num .Sharpe}}
:FEES:        {{num .TotalFees}}
:BREAKER:     {{if .BreakerTripped}}tripped{{else}}clear{{end}}
:CREATED:     [{{(orTime .Created).Format "2006-01-02 Mon 15:04"}}]
:END:

** Parameters
{{if .Params}}{{.Params}}{{else}}(params?){{end}}

** Performance Summary
- Return:        *{{num .ReturnPct}}%*
- Max Drawdown:  *{{num .MaxDDPct}}%*
- Win Rate:      *{{num .WinRate}}%*
- Profit Factor: *{{num .ProfitFactor}}*
- Sharpe:        *{{num .Sharpe}}*
{{- if .Notes }}

** Observations
{{- range .Notes }}
- {{.}}
{{- end }}
{{- end }}
`
