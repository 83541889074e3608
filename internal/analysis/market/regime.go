// Package market classifies the prevailing market regime and flags anomalous
// bars that should dampen any directional call.
package market

import (
	"math"

	"github.com/Alias1177/fxsignal/internal/analysis/technical"
	"github.com/Alias1177/fxsignal/internal/model"
)

// RegimeKind names the broad behaviour of the market
type RegimeKind string

const (
	RegimeUnknown  RegimeKind = "unknown"
	RegimeTrending RegimeKind = "trending"
	RegimeRanging  RegimeKind = "ranging"
	RegimeChoppy   RegimeKind = "choppy"
	RegimeVolatile RegimeKind = "volatile"
)

// VolatilityLevel grades short-term against long-term ATR
type VolatilityLevel string

const (
	VolatilityLow    VolatilityLevel = "low"
	VolatilityNormal VolatilityLevel = "normal"
	VolatilityHigh   VolatilityLevel = "high"
)

// Regime is the classification of one series
type Regime struct {
	Kind       RegimeKind      `json:"kind"`
	Direction  model.Signal    `json:"direction"`
	Strength   float64         `json:"strength"` // 0..1
	Momentum   float64         `json:"momentum"` // 0..1
	Volatility VolatilityLevel `json:"volatility"`
}

// MinRegimeBars is the shortest series ClassifyRegime will look at
const MinRegimeBars = 30

// ClassifyRegime derives the regime from ADX, ATR ratio and weighted momentum
func ClassifyRegime(bars []model.Bar) Regime {
	regime := Regime{
		Kind:       RegimeUnknown,
		Direction:  model.Neutral,
		Volatility: VolatilityNormal,
	}
	if len(bars) < MinRegimeBars {
		return regime
	}

	atr10 := technical.ATR(bars, 10)
	volRatio := technical.VolatilityRatio(bars, 10, 30)
	switch {
	case volRatio > 1.5:
		regime.Volatility = VolatilityHigh
	case volRatio < 0.7:
		regime.Volatility = VolatilityLow
	}

	// shorter lookbacks weigh more
	n := len(bars)
	current := bars[n-1].Close
	momentum := 0.5*change(bars[n-6].Close, current) +
		0.3*change(bars[n-11].Close, current) +
		0.2*change(bars[n-21].Close, current)
	regime.Momentum = math.Min(math.Abs(momentum)*10, 1)
	switch {
	case momentum > 0:
		regime.Direction = model.Buy
	case momentum < 0:
		regime.Direction = model.Sell
	}

	adx, plusDI, minusDI, ok := technical.ADX(bars, 14)
	if !ok {
		return regime
	}

	if adx > 25 {
		regime.Kind = RegimeTrending
		regime.Strength = math.Min(adx/50, 1)
		regime.Direction = diDirection(plusDI, minusDI)
		return regime
	}

	hi, lo := bars[n-20].High, bars[n-20].Low
	for _, b := range bars[n-20:] {
		hi = math.Max(hi, b.High)
		lo = math.Min(lo, b.Low)
	}
	if atr10 > 0 && (hi-lo)/atr10 < 5 {
		regime.Kind = RegimeRanging
		regime.Strength = math.Min((30-adx)/30, 1)
		return regime
	}

	flips := 0
	up := bars[n-20].Close > bars[n-21].Close
	for i := n - 19; i < n; i++ {
		if cur := bars[i].Close > bars[i-1].Close; cur != up {
			flips++
			up = cur
		}
	}

	switch {
	case flips > 8:
		regime.Kind = RegimeChoppy
		regime.Strength = math.Min(float64(flips)/15, 1)
	case volRatio > 1.8:
		regime.Kind = RegimeVolatile
		regime.Strength = math.Min(volRatio/3, 1)
	default:
		// mild trend, capped
		regime.Kind = RegimeTrending
		regime.Strength = math.Min(adx/30, 0.7)
		regime.Direction = diDirection(plusDI, minusDI)
	}
	return regime
}

func diDirection(plusDI, minusDI float64) model.Signal {
	switch {
	case plusDI > minusDI:
		return model.Buy
	case minusDI > plusDI:
		return model.Sell
	}
	return model.Neutral
}

func change(from, to float64) float64 {
	if from == 0 {
		return 0
	}
	return (to - from) / from
}

// TrendAlignment scores how consistently the given series trend in the same
// direction. Lower timeframes weigh more, matching their role as the trigger.
// It returns the aligned direction and a strength in 0..1.
func TrendAlignment(series map[model.Timeframe][]model.Bar) (model.Signal, float64) {
	var total float64
	scored := 0
	for tf, bars := range series {
		if len(bars) < 21 {
			continue
		}
		n := len(bars)
		last, prev, prevPrev := bars[n-1].Close, bars[n-2].Close, bars[n-3].Close
		fast := technical.EMA(bars, 8)
		slow := technical.EMA(bars, 21)

		var direction, emas, position float64
		switch {
		case last > prev && prev > prevPrev:
			direction = 1
		case last < prev && prev < prevPrev:
			direction = -1
		}
		switch {
		case fast > slow:
			emas = 1
		case fast < slow:
			emas = -1
		}
		switch {
		case last > fast && last > slow:
			position = 1
		case last < fast && last < slow:
			position = -1
		}

		weight := 1.0
		switch tf {
		case model.M5:
			weight = 2
		case model.M15:
			weight = 3
		}
		total += (direction + emas + position) * weight
		scored++
	}
	if scored == 0 {
		return model.Neutral, 0
	}

	score := total / 6
	strength := math.Min(math.Abs(score), 1)
	switch {
	case score > 0.3:
		return model.Buy, strength
	case score < -0.3:
		return model.Sell, strength
	}
	return model.Neutral, strength
}
