package journal

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/rustyeddy/spottrader/ledger"
)

// TradeHeader is the column layout of the trade log export.
var TradeHeader = []string{
	"entry_time", "exit_time", "entry_price", "exit_price", "quantity",
	"exit_reason", "net_pnl", "net_pnl_pct", "total_fee",
}

var (
	equityHeader   = []string{"time", "cash", "equity", "peak_equity", "open_count"}
	decisionHeader = []string{"time", "action", "allowed", "codes", "detail", "position_id", "price", "quantity"}
)

// CSVJournal writes trades, equity and, optionally, decisions to separate
// files. Each row is flushed as it is written.
type CSVJournal struct {
	trades    *csv.Writer
	equity    *csv.Writer
	decisions *csv.Writer
	files     []*os.File
}

// NewCSV creates the files and writes their headers. decisionsPath may be
// empty to skip the decision log.
func NewCSV(tradesPath, equityPath, decisionsPath string) (*CSVJournal, error) {
	j := &CSVJournal{}

	var err error
	if j.trades, err = j.create(tradesPath, TradeHeader); err != nil {
		j.closeFiles()
		return nil, err
	}
	if j.equity, err = j.create(equityPath, equityHeader); err != nil {
		j.closeFiles()
		return nil, err
	}
	if decisionsPath != "" {
		if j.decisions, err = j.create(decisionsPath, decisionHeader); err != nil {
			j.closeFiles()
			return nil, err
		}
	}
	return j, nil
}

func (j *CSVJournal) create(path string, header []string) (*csv.Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	j.files = append(j.files, f)

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	w.Flush()
	return w, w.Error()
}

func (j *CSVJournal) RecordTrade(t TradeRecord) error {
	return writeRow(j.trades, tradeRow(t.ClosedTrade))
}

func (j *CSVJournal) RecordEquity(e EquityRecord) error {
	return writeRow(j.equity, []string{
		e.Time.UTC().Format(time.RFC3339),
		f(e.Cash),
		f(e.Equity),
		f(e.PeakEquity),
		strconv.Itoa(e.OpenCount),
	})
}

func (j *CSVJournal) RecordDecision(d DecisionRecord) error {
	if j.decisions == nil {
		return nil
	}
	return writeRow(j.decisions, []string{
		d.Time.UTC().Format(time.RFC3339),
		d.Action,
		strconv.FormatBool(d.Allowed),
		d.Codes,
		d.Detail,
		d.PositionID,
		f(d.Price),
		f(d.Quantity),
	})
}

func (j *CSVJournal) Close() error {
	var first error
	for _, w := range []*csv.Writer{j.trades, j.equity, j.decisions} {
		if w == nil {
			continue
		}
		w.Flush()
		if err := w.Error(); err != nil && first == nil {
			first = err
		}
	}
	if err := j.closeFiles(); err != nil && first == nil {
		first = err
	}
	return first
}

func (j *CSVJournal) closeFiles() error {
	var first error
	for _, fh := range j.files {
		if err := fh.Close(); err != nil && first == nil {
			first = err
		}
	}
	j.files = nil
	return first
}

// WriteTradesCSV exports a trade log with TradeHeader columns.
func WriteTradesCSV(w io.Writer, trades []ledger.ClosedTrade) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(TradeHeader); err != nil {
		return err
	}
	for _, t := range trades {
		if err := cw.Write(tradeRow(t)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func tradeRow(t ledger.ClosedTrade) []string {
	return []string{
		t.EntryTime.UTC().Format(time.RFC3339),
		t.ExitTime.UTC().Format(time.RFC3339),
		f(t.EntryPrice),
		f(t.ExitPrice),
		strconv.FormatFloat(t.Quantity, 'f', 8, 64),
		string(t.ExitReason),
		f(t.NetPnL),
		strconv.FormatFloat(t.NetPnLPct, 'f', 4, 64),
		f(t.TotalFee),
	}
}

func writeRow(w *csv.Writer, row []string) error {
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
