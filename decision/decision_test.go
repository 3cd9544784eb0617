package decision

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perpsim/market"
)

func TestActionValid(t *testing.T) {
	for _, a := range []Action{Hold, EnterLong, EnterShort, Exit, Adjust} {
		assert.True(t, a.Valid(), string(a))
	}
	assert.False(t, Action("BUY").Valid())
	assert.False(t, Action("").Valid())

	assert.True(t, EnterLong.IsEntry())
	assert.True(t, EnterShort.IsEntry())
	assert.False(t, Exit.IsEntry())
	assert.False(t, Hold.IsEntry())
}

func TestDirection(t *testing.T) {
	assert.Equal(t, market.Long, Decision{Action: EnterLong}.Direction())
	assert.Equal(t, market.Short, Decision{Action: EnterShort}.Direction())
}

func TestValidate(t *testing.T) {
	base := Decision{
		Action:          EnterLong,
		Pair:            "BTCUSDT",
		Leverage:        3,
		PositionSizePct: 0.01,
		StopLoss:        9950,
		TakeProfit:      10200,
		Confidence:      0.7,
	}
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*Decision)
	}{
		{"unknown action", func(d *Decision) { d.Action = "YOLO" }},
		{"missing pair", func(d *Decision) { d.Pair = "" }},
		{"NaN stop", func(d *Decision) { d.StopLoss = math.NaN() }},
		{"infinite size", func(d *Decision) { d.PositionSizePct = math.Inf(1) }},
		{"confidence above one", func(d *Decision) { d.Confidence = 1.2 }},
		{"negative confidence", func(d *Decision) { d.Confidence = -0.1 }},
		{"negative leverage", func(d *Decision) { d.Leverage = -2 }},
		{"negative take profit", func(d *Decision) { d.TakeProfit = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := base
			tt.mutate(&d)
			err := d.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}

	// non-entry actions carry no entry fields and still pass
	assert.NoError(t, Decision{Action: Hold, Pair: "BTCUSDT"}.Validate())
	assert.NoError(t, Decision{Action: Exit, Pair: "ETHUSDT", Reasoning: "done"}.Validate())
}

func TestHoldFor(t *testing.T) {
	d := HoldFor("BTCUSDT", "oracle unavailable")
	assert.Equal(t, Hold, d.Action)
	assert.Equal(t, "BTCUSDT", d.Pair)
	assert.Equal(t, "oracle unavailable", d.Reasoning)
	assert.NoError(t, d.Validate())
}

func TestDecisionJSONRoundTrip(t *testing.T) {
	raw := `{
		"action": "ENTER_SHORT",
		"pair": "ETHUSDT",
		"leverage": 5,
		"position_size_pct": 0.012,
		"stop_loss": 2100,
		"take_profit": 1850,
		"reasoning": "rejection at resistance",
		"confidence": 0.74
	}`

	var d Decision
	require.NoError(t, json.Unmarshal([]byte(raw), &d))
	require.NoError(t, d.Validate())

	assert.Equal(t, EnterShort, d.Action)
	assert.Equal(t, "ETHUSDT", d.Pair)
	assert.Equal(t, 5, d.Leverage)
	assert.Equal(t, market.Short, d.Direction())
}
