package journal

const Schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	created DATETIME NOT NULL,
	mode TEXT NOT NULL,
	symbol TEXT NOT NULL,
	interval TEXT NOT NULL,
	dataset TEXT NOT NULL,
	params TEXT NOT NULL,
	start_time DATETIME NOT NULL,
	end_time DATETIME NOT NULL,
	trades INTEGER NOT NULL,
	wins INTEGER NOT NULL,
	losses INTEGER NOT NULL,
	start_equity REAL NOT NULL,
	end_equity REAL NOT NULL,
	return_pct REAL NOT NULL,
	win_rate REAL NOT NULL,
	profit_factor REAL NOT NULL,
	max_dd_pct REAL NOT NULL,
	sharpe REAL NOT NULL,
	total_fees REAL NOT NULL,
	breaker_tripped INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
	position_id TEXT NOT NULL,
	run_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	entry_time DATETIME NOT NULL,
	exit_time DATETIME NOT NULL,
	entry_price REAL NOT NULL,
	exit_price REAL NOT NULL,
	quantity REAL NOT NULL,
	exit_reason TEXT NOT NULL,
	net_pnl REAL NOT NULL,
	net_pnl_pct REAL NOT NULL,
	total_fee REAL NOT NULL,
	PRIMARY KEY (run_id, position_id)
);

CREATE INDEX IF NOT EXISTS idx_trades_exit_time ON trades(exit_time);
CREATE INDEX IF NOT EXISTS idx_trades_position ON trades(position_id);

CREATE TABLE IF NOT EXISTS equity (
	run_id TEXT NOT NULL,
	time DATETIME NOT NULL,
	cash REAL NOT NULL,
	equity REAL NOT NULL,
	peak_equity REAL NOT NULL,
	open_count INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_equity_time ON equity(time);

CREATE TABLE IF NOT EXISTS decisions (
	run_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	time DATETIME NOT NULL,
	action TEXT NOT NULL,
	allowed INTEGER NOT NULL,
	codes TEXT NOT NULL,
	detail TEXT NOT NULL,
	position_id TEXT NOT NULL,
	price REAL NOT NULL,
	quantity REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_time ON decisions(time);
`
