// Package portfolio aggregates ledger state into equity and PnL
// summaries, restores open positions on restart, and computes rolling
// daily statistics.
package portfolio

import (
	"fmt"
	"log"
	"sync"
	"time"

	"perpsim/journal"
	"perpsim/ledger"
	"perpsim/market"
)

type Supervisor struct {
	ledger *ledger.Ledger
	store  journal.Store

	mu             sync.Mutex
	today          string
	dayStartEquity float64

	now func() time.Time
}

func NewSupervisor(l *ledger.Ledger, store journal.Store) *Supervisor {
	return &Supervisor{ledger: l, store: store, now: time.Now}
}

// Restore rebuilds open positions from persisted open trade rows and
// sets the day-start equity baseline. The persisted schema does not
// carry protective levels, so restored positions run unprotected until
// the decision oracle re-establishes them.
func (s *Supervisor) Restore() (int, error) {
	open, err := s.store.OpenTrades()
	if err != nil {
		return 0, fmt.Errorf("restore positions: %w", err)
	}

	restored := 0
	for _, rec := range open {
		pos := ledger.Position{
			ID:             rec.ID,
			Pair:           rec.Pair,
			Direction:      market.Direction(rec.Direction),
			EntryPrice:     rec.EntryPrice,
			Quantity:       rec.Quantity,
			Leverage:       rec.Leverage,
			MarginUsed:     rec.MarginUsed,
			EntryFee:       rec.EntryFee,
			OpenedAt:       rec.OpenedAt,
			EntryReasoning: rec.EntryReasoning,
		}
		if err := s.ledger.Restore(pos); err != nil {
			log.Printf("restore %s: %v", rec.Pair, err)
			continue
		}
		log.Printf("restored open position: %s %s (UNPROTECTED until next decision cycle)",
			rec.Pair, rec.Direction)
		restored++
	}

	s.mu.Lock()
	s.today = s.now().UTC().Format("2006-01-02")
	s.dayStartEquity = s.ledger.TotalEquity()
	s.mu.Unlock()

	return restored, nil
}

// EquitySummary is the reporting view of the account.
type EquitySummary struct {
	Balance        float64 `json:"balance"`
	TotalEquity    float64 `json:"total_equity"`
	MarginUsed     float64 `json:"margin_used"`
	MarginRatio    float64 `json:"margin_ratio"`
	UnrealizedPnL  float64 `json:"unrealized_pnl"`
	OpenPositions  int     `json:"open_positions"`
	DrawdownPct    float64 `json:"drawdown_pct"`
	InitialBalance float64 `json:"initial_balance"`
	TotalPnL       float64 `json:"total_pnl"`
	TotalPnLPct    float64 `json:"total_pnl_pct"`
}

// EquitySummary combines the ledger's derived properties. Pure read.
func (s *Supervisor) EquitySummary() EquitySummary {
	var unrealized float64
	positions := s.ledger.Snapshot()
	for _, p := range positions {
		unrealized += p.UnrealizedPnL
	}

	equity := s.ledger.TotalEquity()
	initial := s.ledger.InitialBalance()
	sum := EquitySummary{
		Balance:        s.ledger.Balance(),
		TotalEquity:    equity,
		MarginUsed:     s.ledger.TotalMarginUsed(),
		MarginRatio:    s.ledger.MarginRatio(),
		UnrealizedPnL:  unrealized,
		OpenPositions:  len(positions),
		DrawdownPct:    s.ledger.DrawdownPct(),
		InitialBalance: initial,
		TotalPnL:       equity - initial,
	}
	if initial > 0 {
		sum.TotalPnLPct = sum.TotalPnL / initial
	}
	return sum
}

// CheckNewDay resets the day-start equity baseline when the calendar
// date changes. Callers run it each cycle; it is not automatic.
func (s *Supervisor) CheckNewDay() {
	s.mu.Lock()
	defer s.mu.Unlock()

	today := s.now().UTC().Format("2006-01-02")
	if today == s.today {
		return
	}
	s.today = today
	s.dayStartEquity = s.ledger.TotalEquity()
	log.Printf("new day %s, starting equity=%.2f", today, s.dayStartEquity)
}

func (s *Supervisor) DayStartEquity() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dayStartEquity
}

// DailyStats aggregates today's closed trades and persists them keyed
// by date. Upserts are idempotent: safe to recompute many times a day.
func (s *Supervisor) DailyStats() (journal.DailyStats, error) {
	now := s.now().UTC()
	date := now.Format("2006-01-02")

	trades, err := s.store.TradesClosedOn(date)
	if err != nil {
		return journal.DailyStats{}, fmt.Errorf("daily stats: %w", err)
	}

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	apiCosts, err := s.store.APICostsSince(midnight)
	if err != nil {
		return journal.DailyStats{}, fmt.Errorf("daily stats: api costs: %w", err)
	}

	s.mu.Lock()
	starting := s.dayStartEquity
	s.mu.Unlock()
	if starting == 0 {
		starting = s.ledger.InitialBalance()
	}

	stats := journal.DailyStats{
		Date:            date,
		StartingBalance: starting,
		EndingBalance:   s.ledger.TotalEquity(),
		TotalTrades:     len(trades),
		TotalAPICosts:   apiCosts,
		MaxDrawdownPct:  s.ledger.DrawdownPct() * 100,
	}

	var holdSum float64
	for i, t := range trades {
		fees := t.EntryFee + t.ExitFee
		stats.TotalFees += fees
		stats.PnLGross += t.PnL + fees
		stats.PnLNet += t.PnL
		holdSum += t.HoldMinutes

		if t.PnL > 0 {
			stats.WinningTrades++
		} else {
			stats.LosingTrades++
		}
		if i == 0 || t.PnL > stats.BestTradePnL {
			stats.BestTradePnL = t.PnL
		}
		if i == 0 || t.PnL < stats.WorstTradePnL {
			stats.WorstTradePnL = t.PnL
		}
	}
	if len(trades) > 0 {
		stats.AvgHoldMinutes = holdSum / float64(len(trades))
	}
	// Net PnL also absorbs what the day's oracle calls cost.
	stats.PnLNet -= apiCosts

	if err := s.store.UpsertDailyStats(stats); err != nil {
		return stats, fmt.Errorf("daily stats: upsert: %w", err)
	}
	return stats, nil
}
