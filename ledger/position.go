package ledger

import (
	"time"

	"perpsim/market"
)

// Position is a single open leveraged position. It is owned exclusively
// by the Ledger while open; readers get copies.
type Position struct {
	ID        string
	Pair      string
	Direction market.Direction

	EntryPrice   float64
	CurrentPrice float64
	Quantity     float64
	Leverage     int
	MarginUsed   float64
	EntryFee     float64

	// Protective levels. Zero means inactive. LiquidationPrice is
	// always set: it is a solvency boundary, not a strategy choice.
	StopLoss         float64
	TakeProfit       float64
	LiquidationPrice float64

	// Trailing state: distance enables the ratchet; highest/lowest
	// track the peak and trough since open.
	TrailingStopDistance float64
	HighestPrice         float64
	LowestPrice          float64

	FundingPaid   float64 // cumulative, signed (credits are negative)
	UnrealizedPnL float64

	OpenedAt       time.Time
	EntryReasoning string
}

// Notional is the position size in quote currency at the current price.
func (p *Position) Notional() float64 {
	return p.Quantity * p.CurrentPrice
}

func (p *Position) HoldMinutes(now time.Time) float64 {
	return now.Sub(p.OpenedAt).Minutes()
}

// Protected reports whether both protective levels are armed. Restored
// positions come back unprotected until the oracle re-establishes them.
func (p *Position) Protected() bool {
	return p.StopLoss > 0 && p.TakeProfit > 0
}
