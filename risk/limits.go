package risk

import "time"

// Limits are the hard trading boundaries. The decision oracle cannot
// override any of them.
type Limits struct {
	MaxOpenPositions int
	MinConfidence    float64
	// Confidence floor applied instead of MinConfidence when the
	// fear/greed index signals extreme fear.
	ExtremeFearMinConfidence float64
	ExtremeFearThreshold     int

	MaxLeverage        int
	MaxPositionPct     float64
	MaxRiskPerTradePct float64
	MaxMarginRatio     float64
	// Fraction of balance that margin for a single entry may consume.
	MaxMarginOfBalance float64

	// Circuit-breaker thresholds, all negative fractions.
	DailyLossPausePct    float64
	DailyLossStopPct     float64
	TotalDrawdownStopPct float64
	PauseDuration        time.Duration
}

func DefaultLimits() Limits {
	return Limits{
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
		PauseDuration:            4 * time.Hour,
	}
}
