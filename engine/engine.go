// Package engine wires the components together and runs the trading
// loops. All cross-component references live in the Engine struct,
// constructed once at process start; there are no package globals.
package engine

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"perpsim/decision"
	"perpsim/feed"
	"perpsim/internal/metrics"
	"perpsim/journal"
	"perpsim/ledger"
	"perpsim/market"
	"perpsim/portfolio"
	"perpsim/risk"
)

// FearGreedSource feeds the market-sentiment signal into risk checks.
type FearGreedSource interface {
	Fetch(ctx context.Context) error
	Current() int
}

// Config holds the engine's loop timings.
type Config struct {
	Pairs []string

	AnalysisInterval time.Duration
	OracleTimeout    time.Duration

	// GracePeriod suppresses SL/TP checks right after entry so noise
	// cannot stop a position out instantly. Liquidation checks are
	// never suppressed.
	GracePeriod time.Duration

	// Funding is applied every FundingInterval, prorated against the
	// real FundingSettlement period (8h on Binance): each application
	// charges rate * FundingInterval/FundingSettlement. A documented
	// approximation of discrete settlement.
	FundingInterval   time.Duration
	FundingSettlement time.Duration

	SentimentInterval time.Duration
	StatsInterval     time.Duration
}

// Deps are the collaborators the engine drives.
type Deps struct {
	Ledger     *ledger.Ledger
	Supervisor *portfolio.Supervisor
	Breaker    *risk.CircuitBreaker
	Limits     risk.Limits
	Oracle     decision.Oracle
	Feed       feed.Feed
	Store      journal.Store
	FearGreed  FearGreedSource
	Metrics    *metrics.Metrics
}

type Engine struct {
	cfg Config
	Deps

	ticks *market.TickStore

	mu            sync.Mutex
	fundingRates  map[string]float64
	oracleRetryAt map[string]time.Time

	startedAt time.Time
	running   bool
}

func New(cfg Config, deps Deps) *Engine {
	return &Engine{
		cfg:           cfg,
		Deps:          deps,
		ticks:         market.NewTickStore(),
		fundingRates:  make(map[string]float64),
		oracleRetryAt: make(map[string]time.Time),
	}
}

// Run restores state, starts all loops and blocks until ctx ends.
// Each loop is error-isolated: a failing oracle call or persistence
// write degrades to HOLD/logging, never a crash.
func (e *Engine) Run(ctx context.Context) error {
	restored, err := e.Supervisor.Restore()
	if err != nil {
		return err
	}
	if restored > 0 {
		log.Printf("engine: restored %d open positions", restored)
	}
	e.Breaker.Initialize(e.Ledger.TotalEquity())

	if err := e.FearGreed.Fetch(ctx); err != nil {
		log.Printf("engine: initial sentiment fetch: %v", err)
	}

	e.mu.Lock()
	e.startedAt = time.Now().UTC()
	e.running = true
	e.mu.Unlock()

	// loopCtx ends when ctx does or when the feed is exhausted, so a
	// finite replay run terminates on its own.
	loopCtx, loopCancel := context.WithCancel(ctx)
	defer loopCancel()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := e.Feed.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("engine: feed stopped: %v", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		e.consumeTicks()
		loopCancel()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		e.consumeFunding()
	}()

	c := cron.New()
	c.Schedule(cron.Every(e.cfg.FundingInterval), cron.FuncJob(e.applyFundingJob))
	c.Schedule(cron.Every(e.cfg.StatsInterval), cron.FuncJob(e.statsJob))
	c.Schedule(cron.Every(e.cfg.SentimentInterval), cron.FuncJob(func() {
		fctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := e.FearGreed.Fetch(fctx); err != nil {
			log.Printf("engine: sentiment fetch: %v", err)
		}
	}))
	c.Start()

	e.analysisLoop(loopCtx)

	<-c.Stop().Done()
	wg.Wait()

	// Final stats so a restart picks up a fresh baseline.
	if _, err := e.Supervisor.DailyStats(); err != nil {
		log.Printf("engine: final daily stats: %v", err)
	}

	e.mu.Lock()
	e.running = false
	e.mu.Unlock()

	log.Printf("engine: stopped")
	return nil
}

func (e *Engine) consumeTicks() {
	for t := range e.Feed.Ticks() {
		e.handleTick(t)
	}
}

func (e *Engine) consumeFunding() {
	for fu := range e.Feed.Funding() {
		e.mu.Lock()
		e.fundingRates[fu.Pair] = fu.Rate
		e.mu.Unlock()
	}
}

// handleTick runs the per-tick pipeline: mark-to-market, trailing
// ratchet, intrabar trigger evaluation, close on trigger.
func (e *Engine) handleTick(t market.Tick) {
	e.ticks.Set(t)
	e.Metrics.TicksTotal.Inc()

	e.Ledger.UpdatePrice(t.Pair, t.Price)
	e.Ledger.UpdateTrailingStop(t.Pair)

	pos, ok := e.Ledger.Get(t.Pair)
	if !ok {
		e.refreshGauges()
		return
	}

	trig, px := e.intrabarTrigger(pos, t)
	if trig != ledger.TriggerNone {
		if _, err := e.Ledger.Close(t.Pair, px, trig.String()); err != nil {
			log.Printf("engine: close on trigger %s: %v", t.Pair, err)
		} else {
			e.Metrics.TradesClosed.WithLabelValues(trig.String()).Inc()
		}
		// Losses realized by a trigger feed straight back into the
		// breaker before the next entry can be considered.
		e.Breaker.Check(e.Ledger.TotalEquity())
	}

	e.refreshGauges()
}

func (e *Engine) analysisLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.AnalysisInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		e.Supervisor.CheckNewDay()
		e.Breaker.CheckNewDay(e.Ledger.TotalEquity())

		// Unprotected (restored) positions first: they need the oracle
		// to re-arm their stops before anything else.
		for _, pair := range e.orderedPairs() {
			if ctx.Err() != nil {
				return
			}
			e.analyzePair(ctx, pair)
		}
	}
}

func (e *Engine) orderedPairs() []string {
	var unprotected, rest []string
	byPair := make(map[string]bool)
	for _, p := range e.Ledger.Snapshot() {
		if !p.Protected() {
			unprotected = append(unprotected, p.Pair)
			byPair[p.Pair] = true
		}
	}
	for _, p := range e.cfg.Pairs {
		if !byPair[p] {
			rest = append(rest, p)
		}
	}
	return append(unprotected, rest...)
}

func (e *Engine) analyzePair(ctx context.Context, pair string) {
	tick, ok := e.ticks.Get(pair)
	if !ok {
		return // no data yet for this pair
	}
	e.mu.Lock()
	retryAt := e.oracleRetryAt[pair]
	e.mu.Unlock()
	if time.Now().Before(retryAt) {
		return
	}

	sum := e.Supervisor.EquitySummary()
	mc := decision.Context{
		Pair:        pair,
		Price:       tick.Price,
		Balance:     sum.Balance,
		Equity:      sum.TotalEquity,
		DrawdownPct: sum.DrawdownPct,
		FearGreed:   e.FearGreed.Current(),
		HasPosition: e.Ledger.Has(pair),
	}
	for _, p := range e.Ledger.Snapshot() {
		mc.OpenPositions = append(mc.OpenPositions, decision.OpenPosition{
			Pair:          p.Pair,
			Direction:     p.Direction,
			EntryPrice:    p.EntryPrice,
			CurrentPrice:  p.CurrentPrice,
			UnrealizedPnL: p.UnrealizedPnL,
			StopLoss:      p.StopLoss,
			TakeProfit:    p.TakeProfit,
			HoldMinutes:   p.HoldMinutes(time.Now().UTC()),
		})
	}

	cbActive, _ := e.Breaker.Check(sum.TotalEquity)

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.OracleTimeout)
	start := time.Now()
	e.Metrics.OracleCalls.Inc()
	dec, err := e.Oracle.Decide(callCtx, mc)
	cancel()
	e.Metrics.OracleLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		// Oracle failures never propagate: degrade to HOLD and move on.
		e.Metrics.OracleFailures.Inc()
		log.Printf("[%s] oracle unavailable, holding: %v", pair, err)
		// Skip this pair for one cycle before asking again.
		e.mu.Lock()
		e.oracleRetryAt[pair] = time.Now().Add(e.cfg.AnalysisInterval)
		e.mu.Unlock()
		dec = decision.HoldFor(pair, "oracle unavailable")
	} else {
		e.mu.Lock()
		delete(e.oracleRetryAt, pair)
		e.mu.Unlock()
	}

	valid, reason := risk.Validate(e.Limits, dec, risk.Inputs{
		Price:                tick.Price,
		Balance:              sum.Balance,
		OpenPositions:        e.Ledger.OpenCount(),
		HasPositionForPair:   e.Ledger.Has(pair),
		CircuitBreakerActive: cbActive,
		MarginRatio:          e.Ledger.MarginRatio(),
		FearGreed:            e.FearGreed.Current(),
	})
	if !valid {
		if dec.Action != decision.Hold {
			e.Metrics.RiskRejections.Inc()
			log.Printf("[%s] decision rejected: %s", pair, reason)
		}
		return
	}

	e.dispatch(pair, dec, tick.Price)
	e.refreshGauges()
}

func (e *Engine) dispatch(pair string, dec decision.Decision, price float64) {
	switch dec.Action {
	case decision.EnterLong, decision.EnterShort:
		if _, err := e.Ledger.Open(dec, price); err != nil {
			log.Printf("[%s] open: %v", pair, err)
			return
		}
		e.Metrics.TradesOpened.Inc()

	case decision.Exit:
		if _, err := e.Ledger.Close(pair, price, dec.Reasoning); err != nil {
			log.Printf("[%s] exit: %v", pair, err)
			return
		}
		e.Metrics.TradesClosed.WithLabelValues("oracle exit").Inc()

	case decision.Adjust:
		if err := e.Ledger.AdjustProtection(pair, dec.StopLoss, dec.TakeProfit); err != nil {
			log.Printf("[%s] adjust: %v", pair, err)
			return
		}
		if dec.TrailingStopDistance > 0 {
			if err := e.Ledger.SetTrailingStop(pair, dec.TrailingStopDistance); err != nil {
				log.Printf("[%s] trailing stop: %v", pair, err)
			}
		}
	}
}

// applyFundingJob charges the prorated funding payment to every open
// position using the latest known rate for its pair.
func (e *Engine) applyFundingJob() {
	fraction := e.cfg.FundingInterval.Seconds() / e.cfg.FundingSettlement.Seconds()

	for _, pos := range e.Ledger.Snapshot() {
		e.mu.Lock()
		rate, ok := e.fundingRates[pos.Pair]
		e.mu.Unlock()
		if !ok {
			continue
		}
		e.Ledger.ApplyFunding(pos.Pair, rate*fraction)
	}
	e.refreshGauges()
}

func (e *Engine) statsJob() {
	e.Supervisor.CheckNewDay()
	e.Breaker.CheckNewDay(e.Ledger.TotalEquity())

	if _, err := e.Supervisor.DailyStats(); err != nil {
		log.Printf("engine: daily stats: %v", err)
	}

	sum := e.Supervisor.EquitySummary()
	if err := e.Store.RecordEquity(journal.EquitySnapshot{
		Time:          time.Now().UTC(),
		Balance:       sum.Balance,
		Equity:        sum.TotalEquity,
		MarginUsed:    sum.MarginUsed,
		UnrealizedPnL: sum.UnrealizedPnL,
		MarginRatio:   sum.MarginRatio,
		DrawdownPct:   sum.DrawdownPct,
	}); err != nil {
		log.Printf("engine: record equity: %v", err)
	}
}

func (e *Engine) refreshGauges() {
	e.Metrics.Equity.Set(e.Ledger.TotalEquity())
	e.Metrics.DrawdownPct.Set(e.Ledger.DrawdownPct())
	e.Metrics.MarginRatio.Set(e.Ledger.MarginRatio())
	e.Metrics.OpenPosCount.Set(float64(e.Ledger.OpenCount()))
	e.Metrics.BreakerState.Set(float64(e.Breaker.State()))
}

// Status is the reporting snapshot served by the API.
type Status struct {
	Running        bool                    `json:"running"`
	StartedAt      time.Time               `json:"started_at"`
	UptimeMinutes  float64                 `json:"uptime_minutes"`
	Pairs          []string                `json:"pairs"`
	FearGreed      int                     `json:"fear_greed"`
	CircuitBreaker risk.Status             `json:"circuit_breaker"`
	Equity         portfolio.EquitySummary `json:"equity"`
}

func (e *Engine) Status() Status {
	e.mu.Lock()
	running, startedAt := e.running, e.startedAt
	e.mu.Unlock()

	st := Status{
		Running:        running,
		StartedAt:      startedAt,
		Pairs:          e.cfg.Pairs,
		FearGreed:      e.FearGreed.Current(),
		CircuitBreaker: e.Breaker.Status(),
		Equity:         e.Supervisor.EquitySummary(),
	}
	if !startedAt.IsZero() {
		st.UptimeMinutes = time.Since(startedAt).Minutes()
	}
	return st
}
