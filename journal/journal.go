// Package journal persists trade history, daily statistics, API costs
// and equity snapshots. The in-memory ledger stays authoritative for
// the current session; a lost write here loses history, not money.
package journal

import "time"

// TradeOpen is the row written when a position opens.
type TradeOpen struct {
	ID             string
	Pair           string
	Direction      string
	EntryPrice     float64
	Quantity       float64
	Leverage       int
	MarginUsed     float64
	EntryFee       float64
	OpenedAt       time.Time
	EntryReasoning string
}

// TradeClose carries the fields filled in when the position closes.
type TradeClose struct {
	ExitPrice     float64
	PnL           float64
	PnLPct        float64
	ExitFee       float64
	FundingPaid   float64
	HoldMinutes   float64
	ClosedAt      time.Time
	ExitReasoning string
}

// TradeRecord is a full row as read back from the store.
type TradeRecord struct {
	TradeOpen
	TradeClose
	Status string // "open" or "closed"
}

// DailyStats aggregates one calendar day of trading. Upserts are
// keyed by Date and idempotent.
type DailyStats struct {
	Date            string // YYYY-MM-DD
	StartingBalance float64
	EndingBalance   float64
	PnLGross        float64
	PnLNet          float64 // after fees and API costs
	TotalTrades     int
	WinningTrades   int
	LosingTrades    int
	TotalFees       float64
	TotalAPICosts   float64
	MaxDrawdownPct  float64
	BestTradePnL    float64
	WorstTradePnL   float64
	AvgHoldMinutes  float64
}

// APICost is one billed call to an external service (decision oracle,
// sentiment feed).
type APICost struct {
	Service   string
	TokensIn  int
	TokensOut int
	CostUSD   float64
	Purpose   string
	CreatedAt time.Time
}

// EquitySnapshot is a point-in-time account summary for the equity curve.
type EquitySnapshot struct {
	Time          time.Time
	Balance       float64
	Equity        float64
	MarginUsed    float64
	UnrealizedPnL float64
	MarginRatio   float64
	DrawdownPct   float64
}

// Store is the persistence collaborator. It is durable-enough, not
// transactionally coupled to ledger state.
type Store interface {
	InsertTrade(TradeOpen) error
	UpdateTrade(id string, c TradeClose) error
	OpenTrades() ([]TradeRecord, error)
	TradesClosedOn(date string) ([]TradeRecord, error)
	UpsertDailyStats(DailyStats) error
	InsertAPICost(APICost) error
	APICostsSince(t time.Time) (float64, error)
	RecordEquity(EquitySnapshot) error
	Close() error
}
