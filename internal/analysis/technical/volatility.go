package technical

import (
	"math"

	"github.com/Alias1177/fxsignal/internal/model"
)

// ATR calculates the Average True Range as the simple mean of the last
// period true ranges
func ATR(bars []model.Bar, period int) float64 {
	if period <= 0 || len(bars) < 2 {
		return 0
	}

	trueRanges := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		// True Range is the greatest of:
		// 1. Current High - Current Low
		// 2. Abs(Current High - Previous Close)
		// 3. Abs(Current Low - Previous Close)
		highLow := bars[i].High - bars[i].Low
		highPrevClose := math.Abs(bars[i].High - bars[i-1].Close)
		lowPrevClose := math.Abs(bars[i].Low - bars[i-1].Close)

		trueRanges = append(trueRanges, math.Max(highLow, math.Max(highPrevClose, lowPrevClose)))
	}

	// If we don't have enough data for the period, use what we have
	periodToUse := period
	if len(trueRanges) < period {
		periodToUse = len(trueRanges)
	}

	var sum float64
	for i := len(trueRanges) - periodToUse; i < len(trueRanges); i++ {
		sum += trueRanges[i]
	}

	return sum / float64(periodToUse)
}

// AverageRange is the mean high-low range over every bar
func AverageRange(bars []model.Bar) float64 {
	if len(bars) == 0 {
		return 0
	}
	var sum float64
	for _, b := range bars {
		sum += b.Range()
	}
	return sum / float64(len(bars))
}

// VolatilityRatio compares short-term ATR to long-term ATR
func VolatilityRatio(bars []model.Bar, shortPeriod, longPeriod int) float64 {
	long := ATR(bars, longPeriod)
	if long == 0 {
		return 1.0
	}
	return ATR(bars, shortPeriod) / long
}
