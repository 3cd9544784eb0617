package market

import (
	"sync"
	"time"
)

// Tick is one price update for a pair. High and Low are the extremes of
// the interval the tick belongs to, so trigger checks can see wicks that
// reverted before the close tick, not just the last traded price.
type Tick struct {
	Pair  string
	Price float64
	High  float64
	Low   float64
	Final bool // interval closed
	Time  time.Time
}

// FundingUpdate carries the current funding rate for a perpetual pair.
// Positive rates mean longs pay shorts.
type FundingUpdate struct {
	Pair string
	Rate float64
	Time time.Time
}

// TickStore keeps the latest tick per pair for readers outside the
// ingestion path (entries, reporting).
type TickStore struct {
	mu    sync.RWMutex
	ticks map[string]Tick
}

func NewTickStore() *TickStore {
	return &TickStore{ticks: make(map[string]Tick)}
}

func (ts *TickStore) Set(t Tick) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.ticks[t.Pair] = t
}

func (ts *TickStore) Get(pair string) (Tick, bool) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	t, ok := ts.ticks[pair]
	return t, ok
}

func (ts *TickStore) Pairs() []string {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	out := make([]string, 0, len(ts.ticks))
	for p := range ts.ticks {
		out = append(out, p)
	}
	return out
}
