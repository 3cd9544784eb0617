package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"perpsim/decision"
	"perpsim/internal/metrics"
	"perpsim/journal"
	"perpsim/ledger"
	"perpsim/market"
	"perpsim/portfolio"
	"perpsim/risk"
)

type nopStore struct{}

func (nopStore) InsertTrade(journal.TradeOpen) error                  { return nil }
func (nopStore) UpdateTrade(string, journal.TradeClose) error         { return nil }
func (nopStore) OpenTrades() ([]journal.TradeRecord, error)           { return nil, nil }
func (nopStore) TradesClosedOn(string) ([]journal.TradeRecord, error) { return nil, nil }
func (nopStore) UpsertDailyStats(journal.DailyStats) error            { return nil }
func (nopStore) InsertAPICost(journal.APICost) error                  { return nil }
func (nopStore) APICostsSince(time.Time) (float64, error)             { return 0, nil }
func (nopStore) RecordEquity(journal.EquitySnapshot) error            { return nil }
func (nopStore) Close() error                                         { return nil }

type stubOracle struct {
	dec decision.Decision
	err error
}

func (o *stubOracle) Decide(ctx context.Context, mc decision.Context) (decision.Decision, error) {
	return o.dec, o.err
}

type stubFeed struct {
	ticks   chan market.Tick
	funding chan market.FundingUpdate
}

func newStubFeed() *stubFeed {
	return &stubFeed{
		ticks:   make(chan market.Tick, 16),
		funding: make(chan market.FundingUpdate, 16),
	}
}

func (f *stubFeed) Ticks() <-chan market.Tick            { return f.ticks }
func (f *stubFeed) Funding() <-chan market.FundingUpdate { return f.funding }
func (f *stubFeed) Run(ctx context.Context) error {
	<-ctx.Done()
	close(f.ticks)
	close(f.funding)
	return ctx.Err()
}

type stubSentiment struct{ value int }

func (s *stubSentiment) Fetch(ctx context.Context) error { return nil }
func (s *stubSentiment) Current() int                    { return s.value }

func testLedgerConfig() ledger.Config {
	return ledger.Config{
		TakerFee:           0.0005,
		SlippageMajor:      0.0001,
		SlippageAlt:        0.0003,
		MaintenanceRate:    0.004,
		DefaultLeverage:    3,
		DefaultPositionPct: 0.01,
	}
}

func newTestEngine(t *testing.T, grace time.Duration, orc *stubOracle) *Engine {
	t.Helper()

	store := nopStore{}
	led := ledger.New(testLedgerConfig(), 5000, store)
	breaker := risk.NewCircuitBreaker(risk.DefaultLimits())
	breaker.Initialize(5000)

	eng := New(Config{
		Pairs:             []string{"BTCUSDT", "ETHUSDT"},
		AnalysisInterval:  time.Minute,
		OracleTimeout:     time.Second,
		GracePeriod:       grace,
		FundingInterval:   time.Hour,
		FundingSettlement: 8 * time.Hour,
		SentimentInterval: time.Hour,
		StatsInterval:     time.Hour,
	}, Deps{
		Ledger:     led,
		Supervisor: portfolio.NewSupervisor(led, store),
		Breaker:    breaker,
		Limits:     risk.DefaultLimits(),
		Oracle:     orc,
		Feed:       newStubFeed(),
		Store:      store,
		FearGreed:  &stubSentiment{value: 50},
		Metrics:    metrics.New(prometheus.NewRegistry()),
	})
	return eng
}

func openLong(t *testing.T, eng *Engine, pair string, price, sl, tp float64) ledger.Position {
	t.Helper()
	pos, err := eng.Ledger.Open(decision.Decision{
		Action:     decision.EnterLong,
		Pair:       pair,
		StopLoss:   sl,
		TakeProfit: tp,
	}, price)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return pos
}

func TestIntrabarWickHitsStop(t *testing.T) {
	eng := newTestEngine(t, 0, &stubOracle{})
	pos := openLong(t, eng, "BTCUSDT", 10000, 9900, 10300)

	// the close is back above the stop, only the wick pierced it
	trig, px := eng.intrabarTrigger(pos, market.Tick{
		Pair: "BTCUSDT", Price: 10050, High: 10100, Low: 9880,
	})
	if trig != ledger.TriggerStopLoss {
		t.Fatalf("trigger = %v, want stop loss", trig)
	}
	if px != 9880 {
		t.Fatalf("trigger price = %v, want the wick low 9880", px)
	}
}

func TestIntrabarAdverseBeforeFavorable(t *testing.T) {
	eng := newTestEngine(t, 0, &stubOracle{})
	pos := openLong(t, eng, "BTCUSDT", 10000, 9900, 10300)

	// one candle swept both levels: the stop must win
	trig, _ := eng.intrabarTrigger(pos, market.Tick{
		Pair: "BTCUSDT", Price: 10200, High: 10350, Low: 9850,
	})
	if trig != ledger.TriggerStopLoss {
		t.Fatalf("trigger = %v, want stop loss to win the sweep", trig)
	}
}

func TestIntrabarFavorableSide(t *testing.T) {
	eng := newTestEngine(t, 0, &stubOracle{})
	pos := openLong(t, eng, "BTCUSDT", 10000, 9900, 10300)

	trig, px := eng.intrabarTrigger(pos, market.Tick{
		Pair: "BTCUSDT", Price: 10250, High: 10320, Low: 10100,
	})
	if trig != ledger.TriggerTakeProfit {
		t.Fatalf("trigger = %v, want take profit", trig)
	}
	if px != 10320 {
		t.Fatalf("trigger price = %v, want 10320", px)
	}
}

func TestIntrabarLastPriceOnly(t *testing.T) {
	eng := newTestEngine(t, 0, &stubOracle{})
	pos := openLong(t, eng, "BTCUSDT", 10000, 9900, 10300)

	// no candle range, just a last price at the stop
	trig, px := eng.intrabarTrigger(pos, market.Tick{Pair: "BTCUSDT", Price: 9890})
	if trig != ledger.TriggerStopLoss {
		t.Fatalf("trigger = %v, want stop loss", trig)
	}
	if px != 9890 {
		t.Fatalf("trigger price = %v, want 9890", px)
	}
}

func TestGraceSuppressesStopNotLiquidation(t *testing.T) {
	eng := newTestEngine(t, time.Hour, &stubOracle{})
	pos := openLong(t, eng, "BTCUSDT", 10000, 9900, 10300)

	trig, _ := eng.intrabarTrigger(pos, market.Tick{
		Pair: "BTCUSDT", Price: 9950, High: 10000, Low: 9880,
	})
	if trig != ledger.TriggerNone {
		t.Fatalf("trigger = %v, want stop suppressed in grace period", trig)
	}

	trig, _ = eng.intrabarTrigger(pos, market.Tick{
		Pair: "BTCUSDT", Price: 9950, High: 10000, Low: pos.LiquidationPrice - 1,
	})
	if trig != ledger.TriggerLiquidation {
		t.Fatalf("trigger = %v, grace must not shield from liquidation", trig)
	}
}

func TestHandleTickClosesOnTrigger(t *testing.T) {
	eng := newTestEngine(t, 0, &stubOracle{})
	openLong(t, eng, "BTCUSDT", 10000, 9900, 10300)

	eng.handleTick(market.Tick{Pair: "BTCUSDT", Price: 9850, High: 9950, Low: 9840})

	if eng.Ledger.Has("BTCUSDT") {
		t.Fatalf("position survived its stop")
	}
	if eng.Ledger.Balance() >= 5000 {
		t.Fatalf("stopped-out trade did not realize a loss: %v", eng.Ledger.Balance())
	}
}

func TestHandleTickIgnoresFlatPairs(t *testing.T) {
	eng := newTestEngine(t, 0, &stubOracle{})
	eng.handleTick(market.Tick{Pair: "ETHUSDT", Price: 2000})

	tick, ok := eng.ticks.Get("ETHUSDT")
	if !ok || tick.Price != 2000 {
		t.Fatalf("tick store not updated: %+v ok=%v", tick, ok)
	}
}

func TestAnalyzePairOpensOnOracleEntry(t *testing.T) {
	orc := &stubOracle{dec: decision.Decision{
		Action:          decision.EnterLong,
		Pair:            "BTCUSDT",
		Leverage:        3,
		PositionSizePct: 0.01,
		StopLoss:        9950,
		TakeProfit:      10200,
		Confidence:      0.8,
	}}
	eng := newTestEngine(t, 0, orc)
	eng.ticks.Set(market.Tick{Pair: "BTCUSDT", Price: 10000})

	eng.analyzePair(context.Background(), "BTCUSDT")

	if !eng.Ledger.Has("BTCUSDT") {
		t.Fatalf("validated oracle entry did not open a position")
	}
}

func TestAnalyzePairHoldsOnOracleFailure(t *testing.T) {
	eng := newTestEngine(t, 0, &stubOracle{err: errors.New("upstream 503")})
	eng.ticks.Set(market.Tick{Pair: "BTCUSDT", Price: 10000})

	eng.analyzePair(context.Background(), "BTCUSDT")

	if eng.Ledger.Has("BTCUSDT") {
		t.Fatalf("oracle failure must degrade to a hold")
	}
}

func TestAnalyzePairBacksOffAfterOracleFailure(t *testing.T) {
	orc := &stubOracle{err: errors.New("upstream 503")}
	eng := newTestEngine(t, 0, orc)
	eng.cfg.AnalysisInterval = time.Hour
	eng.ticks.Set(market.Tick{Pair: "BTCUSDT", Price: 10000})

	eng.analyzePair(context.Background(), "BTCUSDT")

	orc.err = nil
	orc.dec = decision.Decision{
		Action:          decision.EnterLong,
		Pair:            "BTCUSDT",
		Leverage:        3,
		PositionSizePct: 0.01,
		StopLoss:        9950,
		TakeProfit:      10200,
		Confidence:      0.8,
	}
	eng.analyzePair(context.Background(), "BTCUSDT")

	if eng.Ledger.Has("BTCUSDT") {
		t.Fatalf("pair was consulted again inside the backoff window")
	}
}

func TestAnalyzePairRejectsLowConfidence(t *testing.T) {
	orc := &stubOracle{dec: decision.Decision{
		Action:          decision.EnterLong,
		Pair:            "BTCUSDT",
		Leverage:        3,
		PositionSizePct: 0.01,
		StopLoss:        9950,
		TakeProfit:      10200,
		Confidence:      0.3,
	}}
	eng := newTestEngine(t, 0, orc)
	eng.ticks.Set(market.Tick{Pair: "BTCUSDT", Price: 10000})

	eng.analyzePair(context.Background(), "BTCUSDT")

	if eng.Ledger.Has("BTCUSDT") {
		t.Fatalf("low-confidence entry slipped past the validator")
	}
}

func TestAnalyzePairExitClosesPosition(t *testing.T) {
	orc := &stubOracle{dec: decision.Decision{
		Action:    decision.Exit,
		Pair:      "BTCUSDT",
		Reasoning: "momentum gone",
	}}
	eng := newTestEngine(t, 0, orc)
	openLong(t, eng, "BTCUSDT", 10000, 9900, 10300)
	eng.ticks.Set(market.Tick{Pair: "BTCUSDT", Price: 10100})

	eng.analyzePair(context.Background(), "BTCUSDT")

	if eng.Ledger.Has("BTCUSDT") {
		t.Fatalf("exit decision did not close the position")
	}
}

func TestFundingJobProrates(t *testing.T) {
	eng := newTestEngine(t, 0, &stubOracle{})
	pos := openLong(t, eng, "BTCUSDT", 10000, 9900, 10300)

	eng.mu.Lock()
	eng.fundingRates["BTCUSDT"] = 0.0008
	eng.mu.Unlock()

	before := eng.Ledger.Balance()
	eng.applyFundingJob()

	// 1h of an 8h settlement at 0.08% charges a 0.01% share of notional
	want := pos.Quantity * pos.CurrentPrice * 0.0001
	got := before - eng.Ledger.Balance()
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("funding charged %v, want %v", got, want)
	}
}

func TestOrderedPairsPutsUnprotectedFirst(t *testing.T) {
	eng := newTestEngine(t, 0, &stubOracle{})

	if err := eng.Ledger.Restore(ledger.Position{
		ID: "r1", Pair: "ETHUSDT", Direction: market.Long,
		EntryPrice: 2000, Quantity: 0.1, Leverage: 3, MarginUsed: 60,
		OpenedAt: time.Now().Add(-time.Hour),
	}); err != nil {
		t.Fatalf("restore: %v", err)
	}

	order := eng.orderedPairs()
	if len(order) != 2 || order[0] != "ETHUSDT" {
		t.Fatalf("analysis order = %v, want ETHUSDT first", order)
	}
}
