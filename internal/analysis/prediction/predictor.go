// Package prediction produces the directional forecast that signal fusion
// blends with the technical verdict.
package prediction

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/fxsignal/internal/analysis/levels"
	"github.com/Alias1177/fxsignal/internal/analysis/market"
	"github.com/Alias1177/fxsignal/internal/analysis/pattern"
	"github.com/Alias1177/fxsignal/internal/analysis/technical"
	"github.com/Alias1177/fxsignal/internal/model"
)

// MinBars is the shortest primary series the heuristic forecaster accepts
const MinBars = market.MinRegimeBars

// ErrInsufficientBars is returned when the primary timeframe is missing or short
var ErrInsufficientBars = errors.New("insufficient bars for forecast")

// Forecaster predicts the next move of a symbol from its bar series
type Forecaster interface {
	Forecast(ctx context.Context, symbol string, series map[model.Timeframe][]model.Bar) (model.Forecast, error)
}

// Heuristic is a deterministic rule-based forecaster working on one primary
// timeframe with the others used for trend alignment
type Heuristic struct {
	primary model.Timeframe
	logger  zerolog.Logger
}

// NewHeuristic creates a forecaster for the given primary timeframe
func NewHeuristic(primary model.Timeframe) *Heuristic {
	return &Heuristic{
		primary: primary,
		logger:  log.With().Str("component", "forecaster").Logger(),
	}
}

// Forecast implements Forecaster
func (h *Heuristic) Forecast(ctx context.Context, symbol string, series map[model.Timeframe][]model.Bar) (model.Forecast, error) {
	if err := ctx.Err(); err != nil {
		return model.Forecast{Direction: model.Neutral}, err
	}
	bars := series[h.primary]
	if len(bars) < MinBars {
		return model.Forecast{Direction: model.Neutral},
			fmt.Errorf("%w: %s %s has %d bars, need %d", ErrInsufficientBars, symbol, h.primary, len(bars), MinBars)
	}

	f := Predict(bars, series)
	h.logger.Debug().
		Str("symbol", symbol).
		Str("direction", string(f.Direction)).
		Float64("confidence", f.Confidence).
		Strs("factors", f.Factors).
		Msg("forecast generated")
	return f, nil
}

var formationWeights = map[string]struct {
	side   model.Signal
	weight float64
}{
	"BULLISH_ENGULFING":       {model.Buy, 1.8},
	"HAMMER":                  {model.Buy, 1.8},
	"MORNING_STAR":            {model.Buy, 1.8},
	"BEARISH_ENGULFING":       {model.Sell, 1.8},
	"SHOOTING_STAR":           {model.Sell, 1.8},
	"EVENING_STAR":            {model.Sell, 1.8},
	"THREE_WHITE_SOLDIERS":    {model.Buy, 2.0},
	"THREE_BLACK_CROWS":       {model.Sell, 2.0},
	"STRONG_BULLISH_MOMENTUM": {model.Buy, 1.2},
	"STRONG_BEARISH_MOMENTUM": {model.Sell, 1.2},
}

// inputs collects everything the scoring model looks at
type inputs struct {
	price      float64
	regime     market.Regime
	alignDir   model.Signal
	alignStr   float64
	mean       float64
	rsi        float64
	rsiOK      bool
	stoch      technical.StochasticReading
	stochOK    bool
	formations []string
	support    float64
	resistance float64
	expected   float64
	flow       model.Signal
	anomaly    market.Anomaly
}

func gather(bars []model.Bar, series map[model.Timeframe][]model.Bar) inputs {
	in := inputs{price: bars[len(bars)-1].Close}
	in.regime = market.ClassifyRegime(bars)
	in.alignDir, in.alignStr = market.TrendAlignment(series)
	if sma := technical.SMA(bars, 20); len(sma) > 0 {
		in.mean = sma[len(sma)-1]
	}
	in.rsi, in.rsiOK = technical.RSI(bars, 14)
	in.stoch, in.stochOK = technical.Stochastic(bars, 14, 3)
	in.formations = pattern.RecentFormations(bars)
	lows, highs := swingExtremes(bars, 50)
	in.support, _ = levels.Nearest(lows, in.price)
	_, in.resistance = levels.Nearest(highs, in.price)
	in.expected = technical.ATR(bars, 14)
	in.flow, _ = technical.OrderFlow(bars, 5)
	in.anomaly = market.DetectAnomaly(bars)
	return in
}

// Predict scores bullish and bearish evidence on bars. series may carry other
// timeframes of the same symbol for trend alignment.
func Predict(bars []model.Bar, series map[model.Timeframe][]model.Bar) model.Forecast {
	if len(bars) < MinBars {
		return model.Forecast{Direction: model.Neutral}
	}
	in := gather(bars, series)

	var bull, bear float64
	add := func(side model.Signal, w float64) {
		switch side {
		case model.Buy:
			bull += w
		case model.Sell:
			bear += w
		}
	}

	switch in.regime.Kind {
	case market.RegimeTrending:
		add(in.regime.Direction, 2*in.regime.Strength)
	case market.RegimeRanging:
		// mean reversion toward the 20-bar average
		switch {
		case in.mean > 0 && in.price > in.mean:
			bear += 0.5 * in.regime.Strength
		case in.price < in.mean:
			bull += 0.5 * in.regime.Strength
		}
	}

	add(in.alignDir, 1.5*in.alignStr)

	if in.rsiOK {
		switch {
		case in.rsi < 30:
			bull++
		case in.rsi > 70:
			bear++
		}
	}

	if in.stochOK {
		switch {
		case in.stoch.K < 20 && in.stoch.K > in.stoch.D:
			bull += 0.7
		case in.stoch.K > 80 && in.stoch.K < in.stoch.D:
			bear += 0.7
		}
	}

	for _, f := range in.formations {
		if w, ok := formationWeights[f]; ok {
			add(w.side, w.weight)
		}
	}

	if in.support > 0 && in.resistance > 0 && in.expected > 0 {
		toSupport := in.price - in.support
		toResistance := in.resistance - in.price
		if toSupport < toResistance {
			factor := math.Min(1, in.expected/toSupport)
			bear -= factor * 0.8
			bull += factor * 0.5
		} else {
			factor := math.Min(1, in.expected/toResistance)
			bull -= factor * 0.8
			bear += factor * 0.5
		}
	}

	add(in.flow, 1)

	if in.anomaly.Detected {
		damp := 1 - in.anomaly.Score*0.3
		bull *= damp
		bear *= damp
	}

	multiplier := 1.0
	switch in.regime.Volatility {
	case market.VolatilityHigh:
		multiplier = 0.8
	case market.VolatilityLow:
		multiplier = 0.9
	}
	net := (bull - bear) * multiplier

	direction := model.Neutral
	switch {
	case net > 1.5:
		direction = model.Buy
	case net < -1.5:
		direction = model.Sell
	}

	return model.Forecast{
		Direction:  direction,
		Confidence: Confidence(net),
		Factors:    explain(direction, in),
	}
}

// Confidence maps a net score onto 0..100. A net of 2 is the low/medium
// boundary (40) and 3 the medium/high boundary (60).
func Confidence(net float64) float64 {
	return math.Min(100, math.Abs(net)*20)
}

// swingExtremes returns the two-bar fractal lows and highs of the last
// lookback bars, excluding the current one
func swingExtremes(bars []model.Bar, lookback int) (lows, highs []float64) {
	start := max(2, len(bars)-lookback)
	for i := start; i < len(bars)-3; i++ {
		b := bars[i]
		if b.Low < bars[i-1].Low && b.Low < bars[i-2].Low && b.Low < bars[i+1].Low && b.Low < bars[i+2].Low {
			lows = append(lows, b.Low)
		}
		if b.High > bars[i-1].High && b.High > bars[i-2].High && b.High > bars[i+1].High && b.High > bars[i+2].High {
			highs = append(highs, b.High)
		}
	}
	return lows, highs
}

func explain(direction model.Signal, in inputs) []string {
	var factors []string
	if direction == model.Neutral {
		return factors
	}
	word := "bullish"
	if direction == model.Sell {
		word = "bearish"
	}

	if in.regime.Kind == market.RegimeTrending && in.regime.Direction == direction && in.regime.Strength > 0.6 {
		factors = append(factors, fmt.Sprintf("Strong %s market regime (%.1f strength)", word, in.regime.Strength))
	}
	if in.alignDir == direction && in.alignStr > 0.5 {
		factors = append(factors, fmt.Sprintf("%s alignment across timeframes (%.1f)", capitalize(word), in.alignStr))
	}
	if in.rsiOK {
		if direction == model.Buy && in.rsi < 40 {
			factors = append(factors, fmt.Sprintf("Oversold RSI at %.1f", in.rsi))
		}
		if direction == model.Sell && in.rsi > 60 {
			factors = append(factors, fmt.Sprintf("Overbought RSI at %.1f", in.rsi))
		}
	}
	for _, f := range in.formations {
		if w, ok := formationWeights[f]; ok && w.side == direction {
			factors = append(factors, fmt.Sprintf("%s pattern: %s", capitalize(word), f))
		}
	}
	if in.flow == direction {
		factors = append(factors, fmt.Sprintf("%s order flow over the last 5 bars", capitalize(word)))
	}
	if direction == model.Buy && in.support > 0 && in.price-in.support < in.expected {
		factors = append(factors, fmt.Sprintf("Price holding support at %.5f", in.support))
	}
	if direction == model.Sell && in.resistance > 0 && in.resistance-in.price < in.expected {
		factors = append(factors, fmt.Sprintf("Price rejected at resistance %.5f", in.resistance))
	}
	if in.anomaly.Detected {
		factors = append(factors, "Anomaly: "+in.anomaly.Details)
	}
	return factors
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
