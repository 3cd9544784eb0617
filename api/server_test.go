package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perpsim/decision"
	"perpsim/engine"
	"perpsim/feed"
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

type holdOracle struct{}

func (holdOracle) Decide(ctx context.Context, mc decision.Context) (decision.Decision, error) {
	return decision.HoldFor(mc.Pair, "test"), nil
}

type fixedSentiment struct{}

func (fixedSentiment) Fetch(ctx context.Context) error { return nil }
func (fixedSentiment) Current() int                    { return 42 }

type stubTrades struct {
	trades []journal.TradeRecord
}

func (s *stubTrades) RecentTrades(limit int) ([]journal.TradeRecord, error) {
	if limit < len(s.trades) {
		return s.trades[:limit], nil
	}
	return s.trades, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *engine.Engine, *stubTrades) {
	t.Helper()

	store := nopStore{}
	led := ledger.New(ledger.Config{
		TakerFee:           0.0005,
		SlippageMajor:      0.0001,
		SlippageAlt:        0.0003,
		MaintenanceRate:    0.004,
		DefaultLeverage:    3,
		DefaultPositionPct: 0.01,
	}, 5000, store)

	breaker := risk.NewCircuitBreaker(risk.DefaultLimits())
	breaker.Initialize(5000)

	eng := engine.New(engine.Config{
		Pairs:             []string{"BTCUSDT"},
		AnalysisInterval:  time.Minute,
		OracleTimeout:     time.Second,
		FundingInterval:   time.Hour,
		FundingSettlement: 8 * time.Hour,
		SentimentInterval: time.Hour,
		StatsInterval:     time.Hour,
	}, engine.Deps{
		Ledger:     led,
		Supervisor: portfolio.NewSupervisor(led, store),
		Breaker:    breaker,
		Limits:     risk.DefaultLimits(),
		Oracle:     holdOracle{},
		Feed:       feed.NewReplay(nil, 0),
		Store:      store,
		FearGreed:  fixedSentiment{},
		Metrics:    metrics.New(prometheus.NewRegistry()),
	})

	trades := &stubTrades{}
	reg := prometheus.NewRegistry()
	s := NewServer(":0", eng, trades, reg)

	srv := httptest.NewServer(s.http.Handler)
	t.Cleanup(srv.Close)
	return srv, eng, trades
}

func getJSON(t *testing.T, url string, into any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
}

func TestStatusEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	var st engine.Status
	getJSON(t, srv.URL+"/status", &st)

	assert.False(t, st.Running)
	assert.Equal(t, []string{"BTCUSDT"}, st.Pairs)
	assert.Equal(t, 42, st.FearGreed)
	assert.Equal(t, "normal", st.CircuitBreaker.State)
	assert.Equal(t, 5000.0, st.Equity.Balance)
}

func TestPositionsEndpoint(t *testing.T) {
	srv, eng, _ := newTestServer(t)

	_, err := eng.Ledger.Open(decision.Decision{
		Action:     decision.EnterLong,
		Pair:       "BTCUSDT",
		StopLoss:   9900,
		TakeProfit: 10300,
	}, 10000)
	require.NoError(t, err)

	var body struct {
		Count     int               `json:"count"`
		Positions []ledger.Position `json:"positions"`
	}
	getJSON(t, srv.URL+"/positions", &body)

	require.Equal(t, 1, body.Count)
	assert.Equal(t, "BTCUSDT", body.Positions[0].Pair)
	assert.Equal(t, market.Long, body.Positions[0].Direction)
}

func TestEquityEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	var sum portfolio.EquitySummary
	getJSON(t, srv.URL+"/equity", &sum)
	assert.Equal(t, 5000.0, sum.TotalEquity)
	assert.Equal(t, 5000.0, sum.InitialBalance)
}

func TestTradesEndpoint(t *testing.T) {
	srv, _, trades := newTestServer(t)
	trades.trades = []journal.TradeRecord{
		{TradeOpen: journal.TradeOpen{ID: "t1", Pair: "BTCUSDT"}, Status: "closed"},
		{TradeOpen: journal.TradeOpen{ID: "t2", Pair: "ETHUSDT"}, Status: "closed"},
	}

	var body struct {
		Count  int                   `json:"count"`
		Trades []journal.TradeRecord `json:"trades"`
	}
	getJSON(t, srv.URL+"/trades?limit=1", &body)
	assert.Equal(t, 1, body.Count)

	resp, err := http.Get(srv.URL + "/trades?limit=0")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBreakerResetEndpoint(t *testing.T) {
	srv, eng, _ := newTestServer(t)

	eng.Breaker.Check(4000) // -20%, full stop
	require.Equal(t, risk.FullStop, eng.Breaker.State())

	resp, err := http.Post(srv.URL+"/circuit-breaker/reset", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, risk.Normal, eng.Breaker.State())
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
