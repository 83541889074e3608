package pattern

import (
	"sort"

	"github.com/Alias1177/fxsignal/internal/model"
)

// CandlePattern is a single-bar or two-bar formation found near the end of a series
type CandlePattern struct {
	Index    int          `json:"index"`
	Name     string       `json:"name"`
	Polarity model.Signal `json:"polarity"`
	Strength float64      `json:"strength"`
}

const (
	minCandleBars  = 10
	candleLookback = 5
)

// IdentifyCandlePatterns inspects the last five bars for doji, hammer,
// inverted hammer, shooting star, marubozu, engulfing and harami formations.
// Results are sorted by strength, strongest first.
func IdentifyCandlePatterns(bars []model.Bar) []CandlePattern {
	if len(bars) < minCandleBars {
		return nil
	}

	var patterns []CandlePattern
	for idx := len(bars) - candleLookback; idx < len(bars); idx++ {
		curr := bars[idx]
		body := curr.Body()
		rng := curr.Range()
		upper := curr.UpperShadow()
		lower := curr.LowerShadow()
		bullish := curr.IsBullish()

		switch {
		case body < 0.1*rng:
			patterns = append(patterns, CandlePattern{idx, "Doji", model.Neutral, 50})
		case lower > 2*body && upper < 0.3*body:
			if bullish {
				patterns = append(patterns, CandlePattern{idx, "Hammer", model.Buy, 70})
			} else {
				patterns = append(patterns, CandlePattern{idx, "Hanging Man", model.Sell, 70})
			}
		case upper > 2*body && lower < 0.3*body:
			if bullish {
				patterns = append(patterns, CandlePattern{idx, "Inverted Hammer", model.Buy, 60})
			} else {
				patterns = append(patterns, CandlePattern{idx, "Shooting Star", model.Sell, 70})
			}
		case body > 0.7*rng:
			if bullish {
				patterns = append(patterns, CandlePattern{idx, "Bullish Marubozu", model.Buy, 80})
			} else {
				patterns = append(patterns, CandlePattern{idx, "Bearish Marubozu", model.Sell, 80})
			}
		}

		if idx == 0 {
			continue
		}
		if p, ok := twoBarPattern(bars[idx-1], curr, idx); ok {
			patterns = append(patterns, p)
		}
	}

	sort.SliceStable(patterns, func(i, j int) bool {
		return patterns[i].Strength > patterns[j].Strength
	})
	return patterns
}

func twoBarPattern(prev, curr model.Bar, idx int) (CandlePattern, bool) {
	currBody, prevBody := curr.Body(), prev.Body()
	currBull, prevBull := curr.IsBullish(), prev.IsBullish()

	engulfing := currBody > prevBody &&
		((currBull && !prevBull && curr.Open <= prev.Close && curr.Close >= prev.Open) ||
			(!currBull && prevBull && curr.Open >= prev.Close && curr.Close <= prev.Open))
	if engulfing {
		if currBull {
			return CandlePattern{idx, "Bullish Engulfing", model.Buy, 90}, true
		}
		return CandlePattern{idx, "Bearish Engulfing", model.Sell, 90}, true
	}

	harami := prevBody > currBody &&
		((currBull && !prevBull && curr.High <= prev.Open && curr.Low >= prev.Close) ||
			(!currBull && prevBull && curr.High <= prev.Close && curr.Low >= prev.Open))
	if harami {
		if currBull {
			return CandlePattern{idx, "Bullish Harami", model.Buy, 60}, true
		}
		return CandlePattern{idx, "Bearish Harami", model.Sell, 60}, true
	}

	return CandlePattern{}, false
}

// RecentFormations names the multi-bar formations of the last five bars
// (engulfing, pin bars, three soldiers/crows, stars, momentum bars)
func RecentFormations(bars []model.Bar) []string {
	if len(bars) < 5 {
		return nil
	}

	var patterns []string

	c3 := bars[len(bars)-3]
	c4 := bars[len(bars)-2]
	c5 := bars[len(bars)-1]

	var avgBody float64
	for _, b := range bars[len(bars)-5:] {
		avgBody += b.Body()
	}
	avgBody /= 5

	body3, body4, body5 := c3.Body(), c4.Body(), c5.Body()
	bullish3, bullish4, bullish5 := c3.IsBullish(), c4.IsBullish(), c5.IsBullish()
	upper5, lower5 := c5.UpperShadow(), c5.LowerShadow()

	if bullish5 && !bullish4 && c5.Open < c4.Close && c5.Close > c4.Open && body5 > body4*1.2 {
		patterns = append(patterns, "BULLISH_ENGULFING")
	}
	if !bullish5 && bullish4 && c5.Open > c4.Close && c5.Close < c4.Open && body5 > body4*1.2 {
		patterns = append(patterns, "BEARISH_ENGULFING")
	}

	if lower5 > body5*2 && upper5 < body5*0.5 {
		patterns = append(patterns, "HAMMER")
	}
	if upper5 > body5*2 && lower5 < body5*0.5 {
		patterns = append(patterns, "SHOOTING_STAR")
	}

	if bullish3 && bullish4 && bullish5 {
		patterns = append(patterns, "THREE_WHITE_SOLDIERS")
	}
	if c3.IsBearish() && c4.IsBearish() && c5.IsBearish() {
		patterns = append(patterns, "THREE_BLACK_CROWS")
	}

	if bullish5 && body5 > avgBody*1.5 && lower5 < body5*0.2 && upper5 < body5*0.2 {
		patterns = append(patterns, "STRONG_BULLISH_MOMENTUM")
	}
	if c5.IsBearish() && body5 > avgBody*1.5 && lower5 < body5*0.2 && upper5 < body5*0.2 {
		patterns = append(patterns, "STRONG_BEARISH_MOMENTUM")
	}

	// Evening star: large bullish, small gap-up body, large bearish closing below the first midpoint
	if len(bars) >= 7 && bullish3 && body3 > avgBody && body4 < avgBody*0.3 && c4.Open > c3.Close &&
		c5.IsBearish() && body5 > avgBody && c5.Close < c3.Open+(c3.Close-c3.Open)/2 {
		patterns = append(patterns, "EVENING_STAR")
	}
	// Morning star: the mirror image
	if len(bars) >= 7 && c3.IsBearish() && body3 > avgBody && body4 < avgBody*0.3 && c4.Open < c3.Close &&
		bullish5 && body5 > avgBody && c5.Close > c3.Open+(c3.Close-c3.Open)/2 {
		patterns = append(patterns, "MORNING_STAR")
	}

	return patterns
}
