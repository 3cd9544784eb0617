// Package decision defines the contract between the external decision
// oracle and the execution core. Oracle output is parsed and validated
// here, at the boundary, before any other component sees it.
package decision

import (
	"context"
	"errors"
	"fmt"
	"math"

	"perpsim/market"
)

// Action is the kind tag of a Decision. Each kind carries only the
// fields it needs; Validate enforces that per kind.
type Action string

const (
	Hold       Action = "HOLD"
	EnterLong  Action = "ENTER_LONG"
	EnterShort Action = "ENTER_SHORT"
	Exit       Action = "EXIT"
	Adjust     Action = "ADJUST"
)

func (a Action) Valid() bool {
	switch a {
	case Hold, EnterLong, EnterShort, Exit, Adjust:
		return true
	}
	return false
}

// IsEntry reports whether the action opens a new position.
func (a Action) IsEntry() bool {
	return a == EnterLong || a == EnterShort
}

// ErrMalformed marks oracle output that failed boundary validation.
// Callers coerce it to a HOLD; it never reaches the ledger.
var ErrMalformed = errors.New("malformed decision")

// Decision is the oracle's verdict for one pair.
type Decision struct {
	Action Action `json:"action"`
	Pair   string `json:"pair"`

	// Entry fields. Zero means "use the configured default" for
	// leverage and size; stop loss and take profit are mandatory for
	// entries and enforced by the risk validator.
	Leverage        int     `json:"leverage,omitempty"`
	PositionSizePct float64 `json:"position_size_pct,omitempty"`
	StopLoss        float64 `json:"stop_loss,omitempty"`
	TakeProfit      float64 `json:"take_profit,omitempty"`

	// Adjust-only: enable a trailing stop at this distance.
	TrailingStopDistance float64 `json:"trailing_stop_distance,omitempty"`

	Reasoning  string  `json:"reasoning"`
	Confidence float64 `json:"confidence"`
}

// HoldFor is the universal fallback when the oracle fails or returns
// garbage: do nothing, record why.
func HoldFor(pair, reason string) Decision {
	return Decision{Action: Hold, Pair: pair, Reasoning: reason}
}

// Direction maps an entry action to a position side. Only meaningful
// for entries.
func (d Decision) Direction() market.Direction {
	if d.Action == EnterShort {
		return market.Short
	}
	return market.Long
}

// Validate checks the decision immediately after parsing. Non-entry
// actions must not trip on absent entry fields.
func (d Decision) Validate() error {
	if !d.Action.Valid() {
		return fmt.Errorf("%w: unknown action %q", ErrMalformed, d.Action)
	}
	if d.Pair == "" {
		return fmt.Errorf("%w: missing pair", ErrMalformed)
	}
	for _, v := range []float64{d.PositionSizePct, d.StopLoss, d.TakeProfit, d.TrailingStopDistance, d.Confidence} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite numeric field", ErrMalformed)
		}
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("%w: confidence %.3f outside [0,1]", ErrMalformed, d.Confidence)
	}
	if d.Leverage < 0 || d.PositionSizePct < 0 || d.StopLoss < 0 || d.TakeProfit < 0 || d.TrailingStopDistance < 0 {
		return fmt.Errorf("%w: negative numeric field", ErrMalformed)
	}
	return nil
}

// OpenPosition is the snapshot of one open position included in the
// oracle's context.
type OpenPosition struct {
	Pair          string           `json:"pair"`
	Direction     market.Direction `json:"direction"`
	EntryPrice    float64          `json:"entry_price"`
	CurrentPrice  float64          `json:"current_price"`
	UnrealizedPnL float64          `json:"unrealized_pnl"`
	StopLoss      float64          `json:"stop_loss"`
	TakeProfit    float64          `json:"take_profit"`
	HoldMinutes   float64          `json:"hold_minutes"`
}

// Context is everything the oracle gets to see for one call.
type Context struct {
	Pair          string         `json:"pair"`
	Price         float64        `json:"price"`
	Balance       float64        `json:"balance"`
	Equity        float64        `json:"equity"`
	DrawdownPct   float64        `json:"drawdown_pct"`
	FearGreed     int            `json:"fear_greed"`
	OpenPositions []OpenPosition `json:"open_positions"`
	HasPosition   bool           `json:"has_position"`
}

// Oracle is the external decision collaborator. Implementations may
// fail or time out; callers treat any error as a HOLD.
type Oracle interface {
	Decide(ctx context.Context, mc Context) (Decision, error)
}
