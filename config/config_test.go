package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
account:
  initial_balance: 10000
trading:
  pairs: [BTCUSDT, SOLUSDT]
  default_leverage: 5
  default_position_pct: 0.012
engine:
  analysis_interval: 5m
`), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 10000.0, cfg.Account.InitialBalance)
	assert.Equal(t, []string{"BTCUSDT", "SOLUSDT"}, cfg.Trading.Pairs)
	assert.Equal(t, 5, cfg.Trading.DefaultLeverage)

	// unspecified sections keep their defaults
	assert.Equal(t, 0.0005, cfg.Fees.TakerFee)
	assert.Equal(t, ":8080", cfg.API.Addr)

	ecfg := cfg.EngineConfigResolved()
	assert.Equal(t, 5*time.Minute, ecfg.AnalysisInterval)
	assert.Equal(t, 8*time.Hour, ecfg.FundingSettlement)
}

func TestLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"account": {"initial_balance": 2500},
		"trading": {"pairs": ["ETHUSDT"], "default_leverage": 2, "default_position_pct": 0.01}
	}`), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2500.0, cfg.Account.InitialBalance)
	assert.Equal(t, []string{"ETHUSDT"}, cfg.Trading.Pairs)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero balance", func(c *Config) { c.Account.InitialBalance = 0 }, "initial_balance"},
		{"no pairs", func(c *Config) { c.Trading.Pairs = nil }, "pairs"},
		{"non-usdt pair", func(c *Config) { c.Trading.Pairs = []string{"EURUSD"} }, "USDT"},
		{"zero leverage", func(c *Config) { c.Trading.DefaultLeverage = 0 }, "default_leverage"},
		{"oversized position pct", func(c *Config) { c.Trading.DefaultPositionPct = 1.5 }, "default_position_pct"},
		{"negative fee", func(c *Config) { c.Fees.TakerFee = -0.1 }, "fees"},
		{"default leverage above max", func(c *Config) { c.Risk.MaxLeverage = 2 }, "max_leverage"},
		{"positive breaker threshold", func(c *Config) { c.Risk.DailyLossPausePct = 0.02 }, "negative"},
		{"bad duration", func(c *Config) { c.Engine.AnalysisInterval = "soon" }, "analysis_interval"},
		{"missing endpoint", func(c *Config) { c.Oracle.Endpoint = "" }, "endpoint"},
		{"missing db path", func(c *Config) { c.Journal.DBPath = "" }, "db_path"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Account.InitialBalance = 7777

	for _, name := range []string{"cfg.yaml", "cfg.json"} {
		path := filepath.Join(dir, name)
		require.NoError(t, cfg.SaveToFile(path))

		back, err := LoadFromFile(path)
		require.NoError(t, err, name)
		assert.Equal(t, 7777.0, back.Account.InitialBalance, name)
	}
}

func TestOracleAPIKeyFromEnv(t *testing.T) {
	cfg := Default()
	cfg.Oracle.APIKeyEnv = "PERPSIM_TEST_KEY"

	t.Setenv("PERPSIM_TEST_KEY", "sk-123")
	assert.Equal(t, "sk-123", cfg.OracleAPIKey())

	cfg.Oracle.APIKeyEnv = ""
	assert.Equal(t, "", cfg.OracleAPIKey())
}

func TestRiskLimitsConversion(t *testing.T) {
	lim := Default().RiskLimits()
	assert.Equal(t, 5, lim.MaxOpenPositions)
	assert.Equal(t, -0.02, lim.DailyLossPausePct)
	assert.Equal(t, 4*time.Hour, lim.PauseDuration)
}
