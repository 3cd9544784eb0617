// Package risk is the non-bypassable safety layer between the decision
// oracle and the ledger: a pure per-decision validator plus the
// drawdown circuit breaker.
package risk

import (
	"fmt"
	"math"

	"perpsim/decision"
)

// Inputs is the account state the validator judges a decision against.
type Inputs struct {
	Price                float64 // current mark price for the pair
	Balance              float64
	OpenPositions        int
	HasPositionForPair   bool
	CircuitBreakerActive bool
	MarginRatio          float64
	FearGreed            int // 0-100; pass 50 when unknown
}

// Validate checks a decision against the limits. Rules run in order and
// the first failure wins. Returns (ok, rejection reason).
func Validate(lim Limits, dec decision.Decision, in Inputs) (bool, string) {
	// The breaker blocks only new entries; exits and holds always run.
	if in.CircuitBreakerActive && dec.Action.IsEntry() {
		return false, "circuit breaker is active - no new entries"
	}

	switch dec.Action {
	case decision.Hold:
		return true, ""

	case decision.Exit:
		if !in.HasPositionForPair {
			return false, fmt.Sprintf("no position to exit for %s", dec.Pair)
		}
		return true, ""

	case decision.Adjust:
		if !in.HasPositionForPair {
			return false, fmt.Sprintf("no position to adjust for %s", dec.Pair)
		}
		return true, ""

	case decision.EnterLong, decision.EnterShort:
		return validateEntry(lim, dec, in)
	}

	return false, fmt.Sprintf("unknown action %q", dec.Action)
}

func validateEntry(lim Limits, dec decision.Decision, in Inputs) (bool, string) {
	if in.HasPositionForPair {
		return false, fmt.Sprintf("already have position on %s", dec.Pair)
	}
	if in.OpenPositions >= lim.MaxOpenPositions {
		return false, fmt.Sprintf("max positions reached (%d/%d)", in.OpenPositions, lim.MaxOpenPositions)
	}

	minConf := lim.MinConfidence
	if in.FearGreed > 0 && in.FearGreed < lim.ExtremeFearThreshold && lim.ExtremeFearMinConfidence > minConf {
		minConf = lim.ExtremeFearMinConfidence
	}
	if dec.Confidence < minConf {
		return false, fmt.Sprintf("confidence %.2f below threshold %.2f", dec.Confidence, minConf)
	}

	if dec.Leverage > lim.MaxLeverage {
		return false, fmt.Sprintf("leverage %dx exceeds max %dx", dec.Leverage, lim.MaxLeverage)
	}
	if dec.PositionSizePct > lim.MaxPositionPct {
		return false, fmt.Sprintf("position size %.3f%% exceeds max %.3f%%",
			dec.PositionSizePct*100, lim.MaxPositionPct*100)
	}

	if dec.StopLoss <= 0 {
		return false, "stop loss is mandatory for every entry"
	}
	if dec.TakeProfit <= 0 {
		return false, "take profit is mandatory for every entry"
	}

	// Implied risk if the stop is hit: size * leverage * stop distance.
	if in.Price > 0 {
		stopFrac := math.Abs(in.Price-dec.StopLoss) / in.Price
		implied := dec.PositionSizePct * float64(dec.Leverage) * stopFrac
		if implied > 2*lim.MaxRiskPerTradePct {
			return false, fmt.Sprintf("implied risk %.3f%% exceeds 2x max risk per trade %.3f%%",
				implied*100, lim.MaxRiskPerTradePct*100)
		}
	}

	if in.MarginRatio > lim.MaxMarginRatio {
		return false, fmt.Sprintf("margin ratio %.2f exceeds ceiling %.2f", in.MarginRatio, lim.MaxMarginRatio)
	}

	marginNeeded := in.Balance * dec.PositionSizePct
	if marginNeeded > in.Balance*lim.MaxMarginOfBalance {
		return false, fmt.Sprintf("margin %.2f too high for balance %.2f", marginNeeded, in.Balance)
	}

	return true, ""
}
