package pricing

import (
	"math"

	"mediaforge/internal/provider"
)

// Fallback rates for models whose catalog entry carries no pricing data, and
// the assumed clip length when a video provider reports no predict time.
const (
	defaultImageRate       = 0.04
	defaultVideoSecondRate = 0.10
	defaultVideoSeconds    = 5.0
)

// CalculateGenerationCost computes the billable cost of one generation.
// Video bills per second of predict time, floored at one second; image bills
// per output, floored at one. A nil model config yields no cost.
func CalculateGenerationCost(model *provider.ModelConfig, outputCount int, predictTime *float64) *float64 {
	if model == nil {
		return nil
	}

	var cost float64
	switch model.Type {
	case provider.ModelTypeVideo:
		rate := model.VideoSecondRate
		if rate <= 0 {
			rate = defaultVideoSecondRate
		}
		seconds := defaultVideoSeconds
		if predictTime != nil && *predictTime > 0 {
			seconds = *predictTime
		}
		if seconds < 1 {
			seconds = 1
		}
		cost = rate * seconds

	case provider.ModelTypeImage:
		rate := model.ImageRate
		if rate <= 0 {
			rate = defaultImageRate
		}
		count := outputCount
		if count < 1 {
			count = 1
		}
		cost = rate * float64(count)

	default:
		return nil
	}

	cost = roundCost(cost)
	return &cost
}

// roundCost rounds to 6 decimal places so stored costs are stable across
// float arithmetic orderings.
func roundCost(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
