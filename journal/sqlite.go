package journal

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordTrade(t TradeRecord) error {
	_, err := j.db.Exec(`
		INSERT OR REPLACE INTO trades
		(position_id, run_id, symbol, entry_time, exit_time, entry_price, exit_price,
		 quantity, exit_reason, net_pnl, net_pnl_pct, total_fee)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.PositionID, t.RunID, t.Symbol, t.EntryTime.UTC(), t.ExitTime.UTC(),
		t.EntryPrice, t.ExitPrice, t.Quantity, string(t.ExitReason),
		t.NetPnL, t.NetPnLPct, t.TotalFee,
	)
	return err
}

func (j *SQLite) RecordEquity(e EquityRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO equity
		(run_id, time, cash, equity, peak_equity, open_count)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.RunID, e.Time.UTC(), e.Cash, e.Equity, e.PeakEquity, e.OpenCount,
	)
	return err
}

func (j *SQLite) RecordDecision(d DecisionRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO decisions
		(run_id, symbol, time, action, allowed, codes, detail, position_id, price, quantity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.RunID, d.Symbol, d.Time.UTC(), d.Action, d.Allowed, d.Codes, d.Detail,
		d.PositionID, d.Price, d.Quantity,
	)
	return err
}

func (j *SQLite) RecordRun(r Run) error {
	_, err := j.db.Exec(`
		INSERT OR REPLACE INTO runs
		(run_id, created, mode, symbol, interval, dataset, params, start_time, end_time,
		 trades, wins, losses, start_equity, end_equity, return_pct, win_rate,
		 profit_factor, max_dd_pct, sharpe, total_fees, breaker_tripped)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Created.UTC(), r.Mode, r.Symbol, r.Interval, r.Dataset, r.Params,
		r.Start.UTC(), r.End.UTC(), r.Trades, r.Wins, r.Losses, r.StartEquity,
		r.EndEquity, r.ReturnPct, r.WinRate, finite(r.ProfitFactor), r.MaxDDPct,
		r.Sharpe, r.TotalFees, r.BreakerTripped,
	)
	return err
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
