// Package metrics holds the Prometheus instrumentation for the engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	TicksTotal    prometheus.Counter
	FeedReconnect prometheus.Counter

	TradesOpened prometheus.Counter
	TradesClosed *prometheus.CounterVec // label: reason

	OracleCalls    prometheus.Counter
	OracleFailures prometheus.Counter
	OracleLatency  prometheus.Histogram

	RiskRejections prometheus.Counter

	Equity       prometheus.Gauge
	DrawdownPct  prometheus.Gauge
	MarginRatio  prometheus.Gauge
	OpenPosCount prometheus.Gauge
	BreakerState prometheus.Gauge // 0=normal 1=paused 2=day 3=full
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "perpsim_ticks_total",
			Help: "Price ticks processed.",
		}),
		FeedReconnect: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "perpsim_feed_reconnects_total",
			Help: "Market-data websocket reconnects.",
		}),
		TradesOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "perpsim_trades_opened_total",
			Help: "Positions opened.",
		}),
		TradesClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perpsim_trades_closed_total",
			Help: "Positions closed, by reason.",
		}, []string{"reason"}),
		OracleCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "perpsim_oracle_calls_total",
			Help: "Decision oracle calls.",
		}),
		OracleFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "perpsim_oracle_failures_total",
			Help: "Decision oracle calls coerced to HOLD.",
		}),
		OracleLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "perpsim_oracle_latency_seconds",
			Help:    "Decision oracle call latency.",
			Buckets: prometheus.DefBuckets,
		}),
		RiskRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "perpsim_risk_rejections_total",
			Help: "Decisions rejected by the risk validator.",
		}),
		Equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "perpsim_equity",
			Help: "Total equity.",
		}),
		DrawdownPct: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "perpsim_drawdown_pct",
			Help: "Drawdown from peak equity.",
		}),
		MarginRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "perpsim_margin_ratio",
			Help: "Locked margin over equity.",
		}),
		OpenPosCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "perpsim_open_positions",
			Help: "Currently open positions.",
		}),
		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "perpsim_circuit_breaker_state",
			Help: "Circuit breaker state (0=normal 1=paused 2=day-stop 3=full-stop).",
		}),
	}

	reg.MustRegister(
		m.TicksTotal, m.FeedReconnect,
		m.TradesOpened, m.TradesClosed,
		m.OracleCalls, m.OracleFailures, m.OracleLatency,
		m.RiskRejections,
		m.Equity, m.DrawdownPct, m.MarginRatio, m.OpenPosCount, m.BreakerState,
	)
	return m
}
