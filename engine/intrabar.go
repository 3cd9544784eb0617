package engine

import (
	"time"

	"perpsim/ledger"
	"perpsim/market"
)

// intrabarTrigger evaluates a candle's full range against a position's
// exit levels, not just its close. Prices are checked worst-case
// first: a candle that wicked through both the stop and the target is
// resolved as a stop, matching how an exchange would have filled it.
//
// Order of evaluation per position direction:
//
//	long:  low (adverse), high (favorable), last price
//	short: high (adverse), low (favorable), last price
//
// The returned price is the level the trigger fired at, and is what
// the position closes at.
func (e *Engine) intrabarTrigger(pos ledger.Position, t market.Tick) (ledger.Trigger, float64) {
	adverse, favorable := t.Low, t.High
	if pos.Direction == market.Short {
		adverse, favorable = t.High, t.Low
	}

	inGrace := time.Now().UTC().Sub(pos.OpenedAt) < e.cfg.GracePeriod

	for _, px := range []float64{adverse, favorable, t.Price} {
		if px <= 0 {
			continue
		}
		trig := e.Ledger.CheckTriggers(pos.Pair, px)
		if trig == ledger.TriggerNone {
			continue
		}
		// The grace period holds off SL/TP on a fresh position, but a
		// price that reaches liquidation always closes it.
		if inGrace && trig != ledger.TriggerLiquidation {
			continue
		}
		return trig, px
	}
	return ledger.TriggerNone, 0
}
