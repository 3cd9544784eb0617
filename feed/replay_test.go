package feed

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perpsim/market"
)

func writeCandlesCSV(t *testing.T, rows string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "candles.csv")
	content := "pair,time,open,high,low,close,volume\n" + rows
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadCandlesCSV(t *testing.T) {
	path := writeCandlesCSV(t,
		"BTCUSDT,2026-03-01T10:00:00Z,10000,10100,9950,10050,12.5\n"+
			"BTCUSDT,2026-03-01T10:01:00Z,10050,10080,10020,10030,8.1\n")

	candles, err := LoadCandlesCSV(path)
	require.NoError(t, err)
	require.Len(t, candles, 2)

	c := candles[0]
	assert.Equal(t, "BTCUSDT", c.Pair)
	assert.Equal(t, 10000.0, c.Open)
	assert.Equal(t, 10100.0, c.High)
	assert.Equal(t, 9950.0, c.Low)
	assert.Equal(t, 10050.0, c.Close)
	assert.Equal(t, 12.5, c.Volume)
	assert.True(t, c.Time.Equal(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)))
}

func TestLoadCandlesCSVErrors(t *testing.T) {
	t.Run("bad time", func(t *testing.T) {
		path := writeCandlesCSV(t, "BTCUSDT,yesterday,1,2,0.5,1.5,10\n")
		_, err := LoadCandlesCSV(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "line 2")
	})

	t.Run("bad number", func(t *testing.T) {
		path := writeCandlesCSV(t, "BTCUSDT,2026-03-01T10:00:00Z,one,2,0.5,1.5,10\n")
		_, err := LoadCandlesCSV(path)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadCandlesCSV(filepath.Join(t.TempDir(), "nope.csv"))
		assert.Error(t, err)
	})
}

func TestReplayDeliversCandlesAsTicks(t *testing.T) {
	candles := []market.Candle{
		{Pair: "BTCUSDT", Time: time.Now(), Open: 10000, High: 10100, Low: 9950, Close: 10050},
		{Pair: "BTCUSDT", Time: time.Now(), Open: 10050, High: 10200, Low: 10040, Close: 10180},
	}
	f := NewReplay(candles, 0)

	done := make(chan error, 1)
	go func() { done <- f.Run(context.Background()) }()

	var got []market.Tick
	for tick := range f.Ticks() {
		got = append(got, tick)
	}
	require.NoError(t, <-done)

	require.Len(t, got, 2)
	assert.Equal(t, 10050.0, got[0].Price)
	assert.Equal(t, 10100.0, got[0].High)
	assert.Equal(t, 9950.0, got[0].Low)
	assert.True(t, got[0].Final)
}

func TestReplayStopsOnCancel(t *testing.T) {
	candles := make([]market.Candle, 1000)
	for i := range candles {
		candles[i] = market.Candle{Pair: "BTCUSDT", Open: 1, High: 1, Low: 1, Close: 1}
	}
	f := NewReplay(candles, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	<-f.Ticks()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("replay did not stop on cancel")
	}
}
