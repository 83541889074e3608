package pattern

import (
	"math"

	"github.com/Alias1177/fxsignal/internal/analysis/levels"
	"github.com/Alias1177/fxsignal/internal/analysis/technical"
	"github.com/Alias1177/fxsignal/internal/model"
)

const (
	minChartBars       = 50
	proximityPct       = 0.005
	flagMovePct        = 0.02
	flagPausePct       = 0.005
	triangleWindow     = 20
	triangleFlatThresh = 0.0001
)

// ChartPatterns finds level-proximity, double top/bottom, flag and triangle
// formations. trend gates the directional formations.
func ChartPatterns(bars []model.Bar, supports, resistances []float64, trend model.Trend) []model.PatternTag {
	if len(bars) < minChartBars {
		return nil
	}

	var tags []model.PatternTag
	n := len(bars)
	last := bars[n-1].Close

	support, _ := levels.Nearest(supports, last)
	_, resistance := levels.Nearest(resistances, last)

	if support != 0 && (last-support)/last < proximityPct {
		tags = append(tags, model.PatternTag{Label: "Price at Support", Polarity: model.Buy})
		if trend == model.TrendBullish {
			tags = append(tags, model.PatternTag{Label: "Bullish Bounce from Support", Polarity: model.Buy})
		}
	}
	if resistance != 0 && (resistance-last)/last < proximityPct {
		tags = append(tags, model.PatternTag{Label: "Price at Resistance", Polarity: model.Sell})
		if trend == model.TrendBearish {
			tags = append(tags, model.PatternTag{Label: "Bearish Rejection from Resistance", Polarity: model.Sell})
		}
	}

	if tag, ok := doubleTopBottom(bars, trend); ok {
		tags = append(tags, tag)
	}

	if tag, ok := flag(bars, trend); ok {
		tags = append(tags, tag)
	}

	if tag, ok := triangle(bars); ok {
		tags = append(tags, tag)
	}

	return tags
}

// windowHigh reports whether bars[p].High is the highest of the five bars ending at p
func windowHigh(bars []model.Bar, p int) bool {
	if p < 4 {
		return false
	}
	for k := p - 4; k < p; k++ {
		if bars[k].High > bars[p].High {
			return false
		}
	}
	return true
}

func windowLow(bars []model.Bar, p int) bool {
	if p < 4 {
		return false
	}
	for k := p - 4; k < p; k++ {
		if bars[k].Low < bars[p].Low {
			return false
		}
	}
	return true
}

func doubleTopBottom(bars []model.Bar, trend model.Trend) (model.PatternTag, bool) {
	n := len(bars)
	limit := int(math.Min(50, float64(n-5)))
	for i := 5; i < limit; i++ {
		p := n - i
		if windowHigh(bars, p) && trend == model.TrendBearish {
			for j := 5; j < i; j++ {
				if math.Abs(bars[n-j].High-bars[p].High)/bars[p].High < proximityPct {
					return model.PatternTag{Label: "Double Top", Polarity: model.Sell}, true
				}
			}
		}
		if windowLow(bars, p) && trend == model.TrendBullish {
			for j := 5; j < i; j++ {
				if math.Abs(bars[n-j].Low-bars[p].Low)/bars[p].Low < proximityPct {
					return model.PatternTag{Label: "Double Bottom", Polarity: model.Buy}, true
				}
			}
		}
	}
	return model.PatternTag{}, false
}

func flag(bars []model.Bar, trend model.Trend) (model.PatternTag, bool) {
	n := len(bars)
	last := bars[n-1]
	base, recent := bars[n-20], bars[n-5]

	highChange := (last.High - base.High) / base.High
	lowChange := (last.Low - base.Low) / base.Low
	paused := math.Abs((last.High-recent.High)/recent.High) < flagPausePct &&
		math.Abs((last.Low-recent.Low)/recent.Low) < flagPausePct

	switch {
	case highChange > flagMovePct && paused:
		if trend == model.TrendBullish {
			return model.PatternTag{Label: "Bullish Flag/Pennant", Polarity: model.Buy}, true
		}
	case lowChange < -flagMovePct && paused:
		if trend == model.TrendBearish {
			return model.PatternTag{Label: "Bearish Flag/Pennant", Polarity: model.Sell}, true
		}
	}
	return model.PatternTag{}, false
}

func triangle(bars []model.Bar) (model.PatternTag, bool) {
	highs, lows, _ := technical.Columns(bars[len(bars)-triangleWindow:])
	highSlope, okH := technical.Slope(highs, triangleWindow)
	lowSlope, okL := technical.Slope(lows, triangleWindow)
	if !okH || !okL {
		return model.PatternTag{}, false
	}

	switch {
	case highSlope < -triangleFlatThresh && lowSlope > triangleFlatThresh:
		return model.PatternTag{Label: "Symmetrical Triangle", Polarity: model.Neutral}, true
	case math.Abs(highSlope) < triangleFlatThresh && lowSlope > triangleFlatThresh:
		return model.PatternTag{Label: "Ascending Triangle", Polarity: model.Neutral}, true
	case highSlope < -triangleFlatThresh && math.Abs(lowSlope) < triangleFlatThresh:
		return model.PatternTag{Label: "Descending Triangle", Polarity: model.Neutral}, true
	}
	return model.PatternTag{}, false
}
