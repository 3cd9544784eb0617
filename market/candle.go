package market

import "time"

// Candle represents OHLC (Open, High, Low, Close) candlestick data.
type Candle struct {
	Pair string
	Time time.Time

	Open  float64
	High  float64
	Low   float64
	Close float64

	Volume float64
}

// Tick converts a closed candle into the tick shape the engine consumes.
func (c Candle) Tick() Tick {
	return Tick{
		Pair:  c.Pair,
		Price: c.Close,
		High:  c.High,
		Low:   c.Low,
		Final: true,
		Time:  c.Time,
	}
}
