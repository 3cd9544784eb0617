// journal/schema.go
package journal

const Schema = `
CREATE TABLE IF NOT EXISTS trades (
	id TEXT PRIMARY KEY,
	pair TEXT NOT NULL,
	direction TEXT NOT NULL,
	entry_price REAL NOT NULL,
	exit_price REAL DEFAULT 0,
	quantity REAL NOT NULL,
	leverage INTEGER NOT NULL,
	pnl REAL DEFAULT 0,
	pnl_pct REAL DEFAULT 0,
	entry_fee REAL DEFAULT 0,
	exit_fee REAL DEFAULT 0,
	funding_paid REAL DEFAULT 0,
	margin_used REAL NOT NULL,
	hold_minutes REAL DEFAULT 0,
	opened_at DATETIME NOT NULL,
	closed_at DATETIME,
	entry_reasoning TEXT DEFAULT '',
	exit_reasoning TEXT DEFAULT '',
	status TEXT NOT NULL DEFAULT 'open'
);

CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status);
CREATE INDEX IF NOT EXISTS idx_trades_closed_at ON trades(closed_at);

CREATE TABLE IF NOT EXISTS daily_stats (
	date TEXT PRIMARY KEY,
	starting_balance REAL NOT NULL,
	ending_balance REAL NOT NULL,
	pnl_gross REAL NOT NULL,
	pnl_net REAL NOT NULL,
	total_trades INTEGER NOT NULL,
	winning_trades INTEGER NOT NULL,
	losing_trades INTEGER NOT NULL,
	total_fees REAL NOT NULL,
	total_api_costs REAL NOT NULL,
	max_drawdown_pct REAL NOT NULL,
	best_trade_pnl REAL NOT NULL,
	worst_trade_pnl REAL NOT NULL,
	avg_hold_minutes REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS api_costs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	service TEXT NOT NULL,
	tokens_in INTEGER DEFAULT 0,
	tokens_out INTEGER DEFAULT 0,
	cost_usd REAL NOT NULL,
	purpose TEXT DEFAULT '',
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_api_costs_created ON api_costs(created_at);

CREATE TABLE IF NOT EXISTS equity (
	time DATETIME NOT NULL,
	balance REAL NOT NULL,
	equity REAL NOT NULL,
	margin_used REAL NOT NULL,
	unrealized_pnl REAL NOT NULL,
	margin_ratio REAL NOT NULL,
	drawdown_pct REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_equity_time ON equity(time);
`
