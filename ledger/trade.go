package ledger

import (
	"time"

	"perpsim/market"
)

// Trade is the immutable record created exactly once when a position
// closes. PnL is net of both fees and accumulated funding.
type Trade struct {
	ID        string
	Pair      string
	Direction market.Direction

	EntryPrice float64
	ExitPrice  float64
	Quantity   float64
	Leverage   int

	PnL         float64 // net, after fees and funding
	PnLPct      float64 // relative to margin
	EntryFee    float64
	ExitFee     float64
	FundingPaid float64
	MarginUsed  float64

	HoldMinutes float64
	OpenedAt    time.Time
	ClosedAt    time.Time

	EntryReasoning string
	ExitReasoning  string
}
