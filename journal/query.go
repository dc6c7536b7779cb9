package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/spottrader/ledger"
)

const tradeColumns = `position_id, run_id, symbol, entry_time, exit_time, entry_price, exit_price,
	quantity, exit_reason, net_pnl, net_pnl_pct, total_fee`

type scanner interface {
	Scan(dest ...any) error
}

func scanTrade(s scanner) (TradeRecord, error) {
	var rec TradeRecord
	var reason string
	err := s.Scan(
		&rec.PositionID,
		&rec.RunID,
		&rec.Symbol,
		&rec.EntryTime,
		&rec.ExitTime,
		&rec.EntryPrice,
		&rec.ExitPrice,
		&rec.Quantity,
		&reason,
		&rec.NetPnL,
		&rec.NetPnLPct,
		&rec.TotalFee,
	)
	rec.ExitReason = ledger.ExitReason(reason)
	return rec, err
}

// GetTrade returns the most recent trade for a position id.
func (j *SQLite) GetTrade(positionID string) (TradeRecord, error) {
	row := j.db.QueryRow(`SELECT `+tradeColumns+`
		FROM trades
		WHERE position_id = ?
		ORDER BY exit_time DESC
		LIMIT 1`, positionID)

	rec, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TradeRecord{}, fmt.Errorf("trade %q not found", positionID)
		}
		return TradeRecord{}, err
	}
	return rec, nil
}

// ListTradesClosedBetween returns trades whose exit_time is within [start, end).
func (j *SQLite) ListTradesClosedBetween(start, end time.Time) ([]TradeRecord, error) {
	return j.queryTrades(`SELECT `+tradeColumns+`
		FROM trades
		WHERE exit_time >= ? AND exit_time < ?
		ORDER BY exit_time ASC`, start.UTC(), end.UTC())
}

// ListTradesByRun returns a run's trades in exit order.
func (j *SQLite) ListTradesByRun(runID string) ([]TradeRecord, error) {
	return j.queryTrades(`SELECT `+tradeColumns+`
		FROM trades
		WHERE run_id = ?
		ORDER BY exit_time ASC`, runID)
}

func (j *SQLite) queryTrades(q string, args ...any) ([]TradeRecord, error) {
	rows, err := j.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		rec, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListDecisionsBetween returns decisions with time in [start, end).
func (j *SQLite) ListDecisionsBetween(start, end time.Time) ([]DecisionRecord, error) {
	rows, err := j.db.Query(`
		SELECT run_id, symbol, time, action, allowed, codes, detail, position_id, price, quantity
		FROM decisions
		WHERE time >= ? AND time < ?
		ORDER BY time ASC`, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DecisionRecord
	for rows.Next() {
		var d DecisionRecord
		if err := rows.Scan(
			&d.RunID,
			&d.Symbol,
			&d.Time,
			&d.Action,
			&d.Allowed,
			&d.Codes,
			&d.Detail,
			&d.PositionID,
			&d.Price,
			&d.Quantity,
		); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetRun loads a run summary.
func (j *SQLite) GetRun(runID string) (Run, error) {
	var r Run
	err := j.db.QueryRow(`
		SELECT run_id, created, mode, symbol, interval, dataset, params, start_time, end_time,
		       trades, wins, losses, start_equity, end_equity, return_pct, win_rate,
		       profit_factor, max_dd_pct, sharpe, total_fees, breaker_tripped
		FROM runs
		WHERE run_id = ?`, runID).Scan(
		&r.RunID,
		&r.Created,
		&r.Mode,
		&r.Symbol,
		&r.Interval,
		&r.Dataset,
		&r.Params,
		&r.Start,
		&r.End,
		&r.Trades,
		&r.Wins,
		&r.Losses,
		&r.StartEquity,
		&r.EndEquity,
		&r.ReturnPct,
		&r.WinRate,
		&r.ProfitFactor,
		&r.MaxDDPct,
		&r.Sharpe,
		&r.TotalFees,
		&r.BreakerTripped,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, fmt.Errorf("run %q not found", runID)
		}
		return Run{}, err
	}
	r.ProfitFactor = unfinite(r.ProfitFactor)
	return r, nil
}
