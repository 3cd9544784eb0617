package journal

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements Store on an embedded SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) InsertTrade(t TradeOpen) error {
	_, err := s.db.Exec(`
		INSERT INTO trades
		(id, pair, direction, entry_price, quantity, leverage, margin_used, entry_fee, opened_at, entry_reasoning, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'open')`,
		t.ID, t.Pair, t.Direction, t.EntryPrice, t.Quantity,
		t.Leverage, t.MarginUsed, t.EntryFee, t.OpenedAt, t.EntryReasoning,
	)
	return err
}

func (s *SQLiteStore) UpdateTrade(id string, c TradeClose) error {
	res, err := s.db.Exec(`
		UPDATE trades
		SET exit_price = ?, pnl = ?, pnl_pct = ?, exit_fee = ?, funding_paid = ?,
		    hold_minutes = ?, closed_at = ?, exit_reasoning = ?, status = 'closed'
		WHERE id = ?`,
		c.ExitPrice, c.PnL, c.PnLPct, c.ExitFee, c.FundingPaid,
		c.HoldMinutes, c.ClosedAt, c.ExitReasoning, id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("trade %q not found", id)
	}
	return err
}

func (s *SQLiteStore) OpenTrades() ([]TradeRecord, error) {
	return s.queryTrades(`status = 'open'`)
}

// TradesClosedOn returns trades closed on a YYYY-MM-DD date (UTC).
func (s *SQLiteStore) TradesClosedOn(date string) ([]TradeRecord, error) {
	return s.queryTrades(`status = 'closed' AND date(closed_at) = ?`, date)
}

func (s *SQLiteStore) queryTrades(where string, args ...any) ([]TradeRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, pair, direction, entry_price, exit_price, quantity, leverage,
		       pnl, pnl_pct, entry_fee, exit_fee, funding_paid, margin_used,
		       hold_minutes, opened_at, closed_at, entry_reasoning, exit_reasoning, status
		FROM trades
		WHERE `+where+`
		ORDER BY opened_at ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		var rec TradeRecord
		var closedAt sql.NullTime
		if err := rows.Scan(
			&rec.ID, &rec.Pair, &rec.Direction, &rec.EntryPrice, &rec.ExitPrice,
			&rec.Quantity, &rec.Leverage, &rec.PnL, &rec.PnLPct, &rec.EntryFee,
			&rec.ExitFee, &rec.FundingPaid, &rec.MarginUsed, &rec.HoldMinutes,
			&rec.OpenedAt, &closedAt, &rec.EntryReasoning, &rec.ExitReasoning, &rec.Status,
		); err != nil {
			return nil, err
		}
		if closedAt.Valid {
			rec.ClosedAt = closedAt.Time
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpsertDailyStats(d DailyStats) error {
	_, err := s.db.Exec(`
		INSERT INTO daily_stats
		(date, starting_balance, ending_balance, pnl_gross, pnl_net, total_trades,
		 winning_trades, losing_trades, total_fees, total_api_costs, max_drawdown_pct,
		 best_trade_pnl, worst_trade_pnl, avg_hold_minutes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
		 starting_balance = excluded.starting_balance,
		 ending_balance = excluded.ending_balance,
		 pnl_gross = excluded.pnl_gross,
		 pnl_net = excluded.pnl_net,
		 total_trades = excluded.total_trades,
		 winning_trades = excluded.winning_trades,
		 losing_trades = excluded.losing_trades,
		 total_fees = excluded.total_fees,
		 total_api_costs = excluded.total_api_costs,
		 max_drawdown_pct = excluded.max_drawdown_pct,
		 best_trade_pnl = excluded.best_trade_pnl,
		 worst_trade_pnl = excluded.worst_trade_pnl,
		 avg_hold_minutes = excluded.avg_hold_minutes`,
		d.Date, d.StartingBalance, d.EndingBalance, d.PnLGross, d.PnLNet,
		d.TotalTrades, d.WinningTrades, d.LosingTrades, d.TotalFees,
		d.TotalAPICosts, d.MaxDrawdownPct, d.BestTradePnL, d.WorstTradePnL,
		d.AvgHoldMinutes,
	)
	return err
}

func (s *SQLiteStore) InsertAPICost(c APICost) error {
	_, err := s.db.Exec(`
		INSERT INTO api_costs (service, tokens_in, tokens_out, cost_usd, purpose, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.Service, c.TokensIn, c.TokensOut, c.CostUSD, c.Purpose, c.CreatedAt,
	)
	return err
}

func (s *SQLiteStore) APICostsSince(t time.Time) (float64, error) {
	var total sql.NullFloat64
	err := s.db.QueryRow(`
		SELECT SUM(cost_usd) FROM api_costs WHERE created_at >= ?`, t).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total.Float64, nil
}

func (s *SQLiteStore) RecordEquity(e EquitySnapshot) error {
	_, err := s.db.Exec(`
		INSERT INTO equity
		(time, balance, equity, margin_used, unrealized_pnl, margin_ratio, drawdown_pct)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Time, e.Balance, e.Equity, e.MarginUsed, e.UnrealizedPnL, e.MarginRatio, e.DrawdownPct,
	)
	return err
}

// RecentTrades returns the most recent closed trades, newest first.
func (s *SQLiteStore) RecentTrades(limit int) ([]TradeRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, pair, direction, entry_price, exit_price, quantity, leverage,
		       pnl, pnl_pct, entry_fee, exit_fee, funding_paid, margin_used,
		       hold_minutes, opened_at, closed_at, entry_reasoning, exit_reasoning, status
		FROM trades
		WHERE status = 'closed'
		ORDER BY closed_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		var rec TradeRecord
		var closedAt sql.NullTime
		if err := rows.Scan(
			&rec.ID, &rec.Pair, &rec.Direction, &rec.EntryPrice, &rec.ExitPrice,
			&rec.Quantity, &rec.Leverage, &rec.PnL, &rec.PnLPct, &rec.EntryFee,
			&rec.ExitFee, &rec.FundingPaid, &rec.MarginUsed, &rec.HoldMinutes,
			&rec.OpenedAt, &closedAt, &rec.EntryReasoning, &rec.ExitReasoning, &rec.Status,
		); err != nil {
			return nil, err
		}
		if closedAt.Valid {
			rec.ClosedAt = closedAt.Time
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
