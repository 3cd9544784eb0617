package feed

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"perpsim/market"
)

// ReplayFeed plays back recorded candles as ticks, for deterministic
// dry runs of the full engine without a live connection.
type ReplayFeed struct {
	candles []market.Candle
	delay   time.Duration

	ticks   chan market.Tick
	funding chan market.FundingUpdate
}

func NewReplay(candles []market.Candle, delay time.Duration) *ReplayFeed {
	return &ReplayFeed{
		candles: candles,
		delay:   delay,
		ticks:   make(chan market.Tick, 64),
		funding: make(chan market.FundingUpdate),
	}
}

func (f *ReplayFeed) Ticks() <-chan market.Tick             { return f.ticks }
func (f *ReplayFeed) Funding() <-chan market.FundingUpdate { return f.funding }

func (f *ReplayFeed) Run(ctx context.Context) error {
	defer close(f.ticks)
	defer close(f.funding)

	for _, c := range f.candles {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f.ticks <- c.Tick():
		}
		if f.delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(f.delay):
			}
		}
	}
	return nil
}

// LoadCandlesCSV reads candles from a CSV file with a
// pair,time,open,high,low,close,volume header row.
func LoadCandlesCSV(path string) ([]market.Candle, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load candles: %w", err)
	}
	defer file.Close()

	r := csv.NewReader(file)
	if _, err := r.Read(); err != nil { // header
		return nil, fmt.Errorf("load candles: header: %w", err)
	}

	var out []market.Candle
	for line := 2; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("load candles: line %d: %w", line, err)
		}
		if len(rec) < 7 {
			return nil, fmt.Errorf("load candles: line %d: want 7 fields, got %d", line, len(rec))
		}

		ts, err := time.Parse(time.RFC3339, rec[1])
		if err != nil {
			return nil, fmt.Errorf("load candles: line %d: time: %w", line, err)
		}

		var vals [5]float64
		for i, s := range rec[2:7] {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("load candles: line %d: field %d: %w", line, i+3, err)
			}
			vals[i] = v
		}

		out = append(out, market.Candle{
			Pair: rec[0], Time: ts,
			Open: vals[0], High: vals[1], Low: vals[2], Close: vals[3],
			Volume: vals[4],
		})
	}
	return out, nil
}
