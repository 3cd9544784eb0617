package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"perpsim/engine"
	"perpsim/ledger"
	"perpsim/market"
	"perpsim/risk"
)

// Config represents the complete simulator configuration
type Config struct {
	Account AccountConfig `json:"account" yaml:"account"`
	Trading TradingConfig `json:"trading" yaml:"trading"`
	Fees    FeesConfig    `json:"fees" yaml:"fees"`
	Risk    RiskConfig    `json:"risk" yaml:"risk"`
	Engine  EngineConfig  `json:"engine" yaml:"engine"`
	Oracle  OracleConfig  `json:"oracle" yaml:"oracle"`
	Journal JournalConfig `json:"journal" yaml:"journal"`
	API     APIConfig     `json:"api" yaml:"api"`
}

// AccountConfig contains account initialization parameters
type AccountConfig struct {
	InitialBalance float64 `json:"initial_balance" yaml:"initial_balance"`
}

// TradingConfig contains trading universe and default sizing
type TradingConfig struct {
	Pairs              []string `json:"pairs" yaml:"pairs"`
	DefaultLeverage    int      `json:"default_leverage" yaml:"default_leverage"`
	DefaultPositionPct float64  `json:"default_position_pct" yaml:"default_position_pct"`
}

// FeesConfig contains the fill-cost model
type FeesConfig struct {
	TakerFee        float64 `json:"taker_fee" yaml:"taker_fee"`
	SlippageMajor   float64 `json:"slippage_major" yaml:"slippage_major"`
	SlippageAlt     float64 `json:"slippage_alt" yaml:"slippage_alt"`
	MaintenanceRate float64 `json:"maintenance_rate" yaml:"maintenance_rate"`
}

// RiskConfig contains validator and circuit-breaker limits
type RiskConfig struct {
	MaxOpenPositions         int     `json:"max_open_positions" yaml:"max_open_positions"`
	MinConfidence            float64 `json:"min_confidence" yaml:"min_confidence"`
	ExtremeFearMinConfidence float64 `json:"extreme_fear_min_confidence" yaml:"extreme_fear_min_confidence"`
	ExtremeFearThreshold     int     `json:"extreme_fear_threshold" yaml:"extreme_fear_threshold"`
	MaxLeverage              int     `json:"max_leverage" yaml:"max_leverage"`
	MaxPositionPct           float64 `json:"max_position_pct" yaml:"max_position_pct"`
	MaxRiskPerTradePct       float64 `json:"max_risk_per_trade_pct" yaml:"max_risk_per_trade_pct"`
	MaxMarginRatio           float64 `json:"max_margin_ratio" yaml:"max_margin_ratio"`
	MaxMarginOfBalance       float64 `json:"max_margin_of_balance" yaml:"max_margin_of_balance"`

	DailyLossPausePct    float64 `json:"daily_loss_pause_pct" yaml:"daily_loss_pause_pct"`
	DailyLossStopPct     float64 `json:"daily_loss_stop_pct" yaml:"daily_loss_stop_pct"`
	TotalDrawdownStopPct float64 `json:"total_drawdown_stop_pct" yaml:"total_drawdown_stop_pct"`
	PauseDuration        string  `json:"pause_duration" yaml:"pause_duration"` // e.g. "4h"
}

// EngineConfig contains loop timings
type EngineConfig struct {
	AnalysisInterval  string `json:"analysis_interval" yaml:"analysis_interval"`
	GracePeriod       string `json:"grace_period" yaml:"grace_period"`
	FundingInterval   string `json:"funding_interval" yaml:"funding_interval"`
	SentimentInterval string `json:"sentiment_interval" yaml:"sentiment_interval"`
	StatsInterval     string `json:"stats_interval" yaml:"stats_interval"`
}

// OracleConfig contains decision-service connection parameters.
// The API key is never stored in the file; APIKeyEnv names the
// environment variable that carries it.
type OracleConfig struct {
	Endpoint  string `json:"endpoint" yaml:"endpoint"`
	APIKeyEnv string `json:"api_key_env" yaml:"api_key_env"`
	Timeout   string `json:"timeout" yaml:"timeout"`
}

// JournalConfig contains persistence parameters
type JournalConfig struct {
	DBPath     string `json:"db_path" yaml:"db_path"`
	EquityFile string `json:"equity_file,omitempty" yaml:"equity_file,omitempty"`
}

// APIConfig contains the monitoring server parameters
type APIConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

// LoadFromFile loads configuration from a file (YAML or JSON)
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves configuration to a file (format by extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Account.InitialBalance <= 0 {
		return fmt.Errorf("account.initial_balance must be positive")
	}
	if len(c.Trading.Pairs) == 0 {
		return fmt.Errorf("trading.pairs must name at least one pair")
	}
	for _, p := range c.Trading.Pairs {
		if !strings.HasSuffix(p, "USDT") {
			return fmt.Errorf("trading.pairs: %s is not a USDT perpetual", p)
		}
	}
	if c.Trading.DefaultLeverage < 1 {
		return fmt.Errorf("trading.default_leverage must be at least 1")
	}
	if c.Trading.DefaultPositionPct <= 0 || c.Trading.DefaultPositionPct > 1 {
		return fmt.Errorf("trading.default_position_pct must be between 0 and 1")
	}
	if c.Fees.TakerFee < 0 || c.Fees.SlippageMajor < 0 || c.Fees.SlippageAlt < 0 {
		return fmt.Errorf("fees must not be negative")
	}
	if c.Risk.MaxOpenPositions < 1 {
		return fmt.Errorf("risk.max_open_positions must be at least 1")
	}
	if c.Risk.MinConfidence < 0 || c.Risk.MinConfidence > 1 {
		return fmt.Errorf("risk.min_confidence must be between 0 and 1")
	}
	if c.Risk.MaxLeverage < c.Trading.DefaultLeverage {
		return fmt.Errorf("risk.max_leverage below trading.default_leverage")
	}
	if c.Risk.DailyLossPausePct >= 0 || c.Risk.DailyLossStopPct >= 0 || c.Risk.TotalDrawdownStopPct >= 0 {
		return fmt.Errorf("circuit breaker thresholds must be negative fractions")
	}
	for name, v := range map[string]string{
		"risk.pause_duration":       c.Risk.PauseDuration,
		"engine.analysis_interval":  c.Engine.AnalysisInterval,
		"engine.grace_period":       c.Engine.GracePeriod,
		"engine.funding_interval":   c.Engine.FundingInterval,
		"engine.sentiment_interval": c.Engine.SentimentInterval,
		"engine.stats_interval":     c.Engine.StatsInterval,
		"oracle.timeout":            c.Oracle.Timeout,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if c.Oracle.Endpoint == "" {
		return fmt.Errorf("oracle.endpoint is required")
	}
	if c.Journal.DBPath == "" {
		return fmt.Errorf("journal.db_path is required")
	}
	if c.API.Addr == "" {
		return fmt.Errorf("api.addr is required")
	}
	return nil
}

// OracleAPIKey resolves the key from the configured environment
// variable. Empty is allowed; the oracle then sends no auth header.
func (c *Config) OracleAPIKey() string {
	if c.Oracle.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.Oracle.APIKeyEnv)
}

// LedgerConfig converts the fee and sizing sections
func (c *Config) LedgerConfig() ledger.Config {
	return ledger.Config{
		TakerFee:           c.Fees.TakerFee,
		SlippageMajor:      c.Fees.SlippageMajor,
		SlippageAlt:        c.Fees.SlippageAlt,
		MaintenanceRate:    c.Fees.MaintenanceRate,
		DefaultLeverage:    c.Trading.DefaultLeverage,
		DefaultPositionPct: c.Trading.DefaultPositionPct,
	}
}

// RiskLimits converts the risk section
func (c *Config) RiskLimits() risk.Limits {
	return risk.Limits{
		MaxOpenPositions:         c.Risk.MaxOpenPositions,
		MinConfidence:            c.Risk.MinConfidence,
		ExtremeFearMinConfidence: c.Risk.ExtremeFearMinConfidence,
		ExtremeFearThreshold:     c.Risk.ExtremeFearThreshold,
		MaxLeverage:              c.Risk.MaxLeverage,
		MaxPositionPct:           c.Risk.MaxPositionPct,
		MaxRiskPerTradePct:       c.Risk.MaxRiskPerTradePct,
		MaxMarginRatio:           c.Risk.MaxMarginRatio,
		MaxMarginOfBalance:       c.Risk.MaxMarginOfBalance,
		DailyLossPausePct:        c.Risk.DailyLossPausePct,
		DailyLossStopPct:         c.Risk.DailyLossStopPct,
		TotalDrawdownStopPct:     c.Risk.TotalDrawdownStopPct,
		PauseDuration:            mustDuration(c.Risk.PauseDuration),
	}
}

// EngineConfigResolved converts the engine section. Funding is settled
// every 8 hours on Binance perpetuals; the interval here only controls
// how often the prorated share is applied.
func (c *Config) EngineConfigResolved() engine.Config {
	return engine.Config{
		Pairs:             c.Trading.Pairs,
		AnalysisInterval:  mustDuration(c.Engine.AnalysisInterval),
		OracleTimeout:     mustDuration(c.Oracle.Timeout),
		GracePeriod:       mustDuration(c.Engine.GracePeriod),
		FundingInterval:   mustDuration(c.Engine.FundingInterval),
		FundingSettlement: 8 * time.Hour,
		SentimentInterval: mustDuration(c.Engine.SentimentInterval),
		StatsInterval:     mustDuration(c.Engine.StatsInterval),
	}
}

// mustDuration is safe after Validate has run.
func mustDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Account: AccountConfig{
			InitialBalance: 5000,
		},
		Trading: TradingConfig{
			Pairs:              market.DefaultPairs,
			DefaultLeverage:    3,
			DefaultPositionPct: 0.01,
		},
		Fees: FeesConfig{
			TakerFee:        0.0005,
			SlippageMajor:   0.0001,
			SlippageAlt:     0.0003,
			MaintenanceRate: 0.004,
		},
		Risk: RiskConfig{
			MaxOpenPositions:         5,
			MinConfidence:            0.6,
			ExtremeFearMinConfidence: 0.75,
			ExtremeFearThreshold:     20,
			MaxLeverage:              10,
			MaxPositionPct:           0.015,
			MaxRiskPerTradePct:       0.01,
			MaxMarginRatio:           0.70,
			MaxMarginOfBalance:       0.95,
			DailyLossPausePct:        -0.02,
			DailyLossStopPct:         -0.03,
			TotalDrawdownStopPct:     -0.10,
			PauseDuration:            "4h",
		},
		Engine: EngineConfig{
			AnalysisInterval:  "15m",
			GracePeriod:       "15s",
			FundingInterval:   "1h",
			SentimentInterval: "30m",
			StatsInterval:     "1h",
		},
		Oracle: OracleConfig{
			Endpoint:  "http://localhost:8090/decide",
			APIKeyEnv: "PERPSIM_ORACLE_KEY",
			Timeout:   "60s",
		},
		Journal: JournalConfig{
			DBPath:     "./perpsim.db",
			EquityFile: "./equity.csv",
		},
		API: APIConfig{
			Addr: ":8080",
		},
	}
}
