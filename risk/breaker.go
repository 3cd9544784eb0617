package risk

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// BreakerState is the circuit breaker's current mode.
type BreakerState int

const (
	Normal BreakerState = iota
	Paused
	StoppedForDay
	FullStop
)

func (s BreakerState) String() string {
	switch s {
	case Paused:
		return "paused"
	case StoppedForDay:
		return "stopped_for_day"
	case FullStop:
		return "full_stop"
	default:
		return "normal"
	}
}

// CircuitBreaker halts entries on excessive losses. FullStop is
// terminal until a manual reset; StoppedForDay clears on the next
// calendar day; Paused clears when its timer elapses, re-evaluated on
// the next Check call.
type CircuitBreaker struct {
	mu  sync.Mutex
	lim Limits

	initialEquity  float64
	dayStartEquity float64
	pausedUntil    time.Time
	stoppedForDay  bool
	fullStop       bool
	today          string

	now func() time.Time
}

func NewCircuitBreaker(lim Limits) *CircuitBreaker {
	return &CircuitBreaker{lim: lim, now: time.Now}
}

// Initialize fixes the all-time and day-start equity baselines.
func (cb *CircuitBreaker) Initialize(equity float64) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.initialEquity = equity
	cb.dayStartEquity = equity
	cb.today = cb.now().UTC().Format("2006-01-02")
}

// CheckNewDay resets daily tracking when the calendar date changes. Not
// automatic: callers run it before any daily-dependent computation.
func (cb *CircuitBreaker) CheckNewDay(equity float64) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	today := cb.now().UTC().Format("2006-01-02")
	if today == cb.today {
		return
	}
	cb.today = today
	cb.dayStartEquity = equity
	cb.stoppedForDay = false
	cb.pausedUntil = time.Time{}
	log.Printf("circuit breaker: new day %s, daily start equity=%.2f", today, equity)
}

// Check reports whether trading is halted and why. Evaluation order:
// standing full stop, standing day stop, standing pause (with
// auto-clear), then fresh total-drawdown and daily-loss tests.
func (cb *CircuitBreaker) Check(equity float64) (bool, string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()

	if cb.fullStop {
		return true, "FULL STOP: total drawdown limit hit, manual reset required"
	}
	if cb.stoppedForDay {
		return true, fmt.Sprintf("Day stopped: daily loss exceeded %.1f%%", cb.lim.DailyLossStopPct*100)
	}
	if !cb.pausedUntil.IsZero() {
		if now.Before(cb.pausedUntil) {
			remaining := cb.pausedUntil.Sub(now).Minutes()
			return true, fmt.Sprintf("Paused for %.0f more minutes (daily loss hit %.1f%%)",
				remaining, cb.lim.DailyLossPausePct*100)
		}
		cb.pausedUntil = time.Time{}
		log.Printf("circuit breaker: pause period ended, resuming")
	}

	if cb.initialEquity > 0 {
		totalDD := (equity - cb.initialEquity) / cb.initialEquity
		if totalDD <= cb.lim.TotalDrawdownStopPct {
			cb.fullStop = true
			log.Printf("CIRCUIT BREAKER: full stop, total drawdown %.2f%% (equity=%.2f initial=%.2f)",
				totalDD*100, equity, cb.initialEquity)
			return true, fmt.Sprintf("FULL STOP: drawdown %.2f%% exceeded limit", totalDD*100)
		}
	}

	if cb.dayStartEquity > 0 {
		dailyDD := (equity - cb.dayStartEquity) / cb.dayStartEquity

		// Pause before stop: the lighter threshold is tested second so
		// a loss past the stop level takes the stop, not the pause.
		if dailyDD <= cb.lim.DailyLossStopPct {
			cb.stoppedForDay = true
			log.Printf("CIRCUIT BREAKER: day stopped, daily loss %.2f%% (equity=%.2f day start=%.2f)",
				dailyDD*100, equity, cb.dayStartEquity)
			return true, fmt.Sprintf("Day stopped: daily loss %.2f%%", dailyDD*100)
		}
		if dailyDD <= cb.lim.DailyLossPausePct {
			cb.pausedUntil = now.Add(cb.lim.PauseDuration)
			log.Printf("CIRCUIT BREAKER: paused %s, daily loss %.2f%% (equity=%.2f)",
				cb.lim.PauseDuration, dailyDD*100, equity)
			return true, fmt.Sprintf("Paused %s: daily loss %.2f%%", cb.lim.PauseDuration, dailyDD*100)
		}
	}

	return false, ""
}

// ResetFullStop clears a full stop. Manual operation only.
func (cb *CircuitBreaker) ResetFullStop() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.fullStop = false
	log.Printf("circuit breaker: full stop manually reset")
}

func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch {
	case cb.fullStop:
		return FullStop
	case cb.stoppedForDay:
		return StoppedForDay
	case !cb.pausedUntil.IsZero() && cb.now().Before(cb.pausedUntil):
		return Paused
	default:
		return Normal
	}
}

// Status is a reporting snapshot for the API surface.
type Status struct {
	State          string    `json:"state"`
	PausedUntil    time.Time `json:"paused_until,omitempty"`
	DayStartEquity float64   `json:"day_start_equity"`
	InitialEquity  float64   `json:"initial_equity"`
}

func (cb *CircuitBreaker) Status() Status {
	state := cb.State()
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Status{
		State:          state.String(),
		PausedUntil:    cb.pausedUntil,
		DayStartEquity: cb.dayStartEquity,
		InitialEquity:  cb.initialEquity,
	}
}
