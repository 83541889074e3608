// Package fusion blends the cross-timeframe verdict with the forecaster and
// turns the result into a priced candidate signal.
package fusion

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Alias1177/fxsignal/internal/model"
)

var (
	// ErrNoDirection means neither side led by the required margin
	ErrNoDirection = errors.New("no blended direction")
	// ErrWeakSignal means the blended strength is below the minimum
	ErrWeakSignal = errors.New("blended strength below minimum")
	// ErrPoorRiskReward means the priced order does not pay enough for its risk
	ErrPoorRiskReward = errors.New("risk/reward below minimum")
	// ErrNoPrice means no timeframe reported a last price
	ErrNoPrice = errors.New("no entry price")
)

// Config holds the blend weights and the pricing rules
type Config struct {
	TechnicalWeight float64 `yaml:"technical_weight" default:"0.7" validate:"gte=0,lte=1"`
	ForecastWeight  float64 `yaml:"forecast_weight" default:"0.3" validate:"gte=0,lte=1"`
	// Lead is how many points the winning side must be ahead by
	Lead          float64 `yaml:"lead" default:"10" validate:"gte=0"`
	MinStrength   float64 `yaml:"min_strength" default:"40" validate:"gte=0,lte=100"`
	MinRiskReward float64 `yaml:"min_risk_reward" default:"1.5" validate:"gte=0"`

	StopATR         float64 `yaml:"stop_atr" default:"1.5" validate:"gt=0"`
	TargetATR       float64 `yaml:"target_atr" default:"3" validate:"gt=0"`
	StopAnchorATR   float64 `yaml:"stop_anchor_atr" default:"2" validate:"gte=0"`
	TargetAnchorATR float64 `yaml:"target_anchor_atr" default:"4" validate:"gte=0"`
	StopBufferATR   float64 `yaml:"stop_buffer_atr" default:"0.1" validate:"gte=0"`
	MinStopATR      float64 `yaml:"min_stop_atr" default:"0.5" validate:"gte=0"`
	MinTargetATR    float64 `yaml:"min_target_atr" default:"1" validate:"gte=0"`

	// Used when no timeframe reports an ATR
	DefaultStopPips   float64 `yaml:"default_stop_pips" default:"50" validate:"gt=0"`
	DefaultTargetPips float64 `yaml:"default_target_pips" default:"100" validate:"gt=0"`
}

// DefaultConfig returns the standard blend and pricing rules
func DefaultConfig() Config {
	return Config{
		TechnicalWeight:   0.7,
		ForecastWeight:    0.3,
		Lead:              10,
		MinStrength:       40,
		MinRiskReward:     1.5,
		StopATR:           1.5,
		TargetATR:         3,
		StopAnchorATR:     2,
		TargetAnchorATR:   4,
		StopBufferATR:     0.1,
		MinStopATR:        0.5,
		MinTargetATR:      1,
		DefaultStopPips:   50,
		DefaultTargetPips: 100,
	}
}

// PipSizer resolves the pip size of a symbol
type PipSizer interface {
	PipSize(symbol string) float64
}

// PipSizeFunc adapts a function to PipSizer
type PipSizeFunc func(symbol string) float64

// PipSize implements PipSizer
func (f PipSizeFunc) PipSize(symbol string) float64 { return f(symbol) }

var atrPreference = []model.Timeframe{model.H1, model.H4, model.M15, model.D1, model.M5}

// Fuser produces candidate signals
type Fuser struct {
	cfg  Config
	pips PipSizer
	now  func() time.Time
}

// NewFuser creates a Fuser. pips is consulted only when no ATR is available.
func NewFuser(cfg Config, pips PipSizer) *Fuser {
	return &Fuser{cfg: cfg, pips: pips, now: time.Now}
}

// Blend is the outcome of weighing the verdict against the forecast
type Blend struct {
	Signal      model.Signal
	Strength    float64
	Probability float64
	BuyScore    float64
	SellScore   float64
}

// Blend weighs the technical verdict against the forecast
func (f *Fuser) Blend(v model.AggregateVerdict, fc model.Forecast) Blend {
	var b Blend
	switch v.Signal {
	case model.Buy:
		b.BuyScore += v.Strength * f.cfg.TechnicalWeight
	case model.Sell:
		b.SellScore += v.Strength * f.cfg.TechnicalWeight
	}
	switch fc.Direction {
	case model.Buy:
		b.BuyScore += fc.Confidence * f.cfg.ForecastWeight
	case model.Sell:
		b.SellScore += fc.Confidence * f.cfg.ForecastWeight
	}

	switch {
	case b.BuyScore > b.SellScore+f.cfg.Lead:
		b.Signal, b.Strength = model.Buy, b.BuyScore
	case b.SellScore > b.BuyScore+f.cfg.Lead:
		b.Signal, b.Strength = model.Sell, b.SellScore
	default:
		b.Signal, b.Strength = model.Neutral, math.Max(b.BuyScore, b.SellScore)/2
	}
	b.Strength = clamp(b.Strength, 0, 100)

	if b.Signal != model.Neutral {
		b.Probability = clamp(v.SuccessProbability*f.cfg.TechnicalWeight+fc.Confidence*f.cfg.ForecastWeight, 0, 100)
	}
	return b
}

// Fuse blends the verdict with the forecast and prices the resulting order.
// A rejected blend returns one of the package errors with the candidate
// fields computed so far.
func (f *Fuser) Fuse(v model.AggregateVerdict, fc model.Forecast) (model.CandidateSignal, error) {
	b := f.Blend(v, fc)
	now := f.now()
	c := model.CandidateSignal{
		Symbol:             v.Symbol,
		Direction:          b.Signal,
		Strength:           b.Strength,
		SuccessProbability: b.Probability,
		Status:             model.StatusPending,
		KeyTimeframes:      v.KeyTimeframes,
		Forecast:           fc,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if b.Signal == model.Neutral {
		return c, fmt.Errorf("%w: buy %.1f sell %.1f", ErrNoDirection, b.BuyScore, b.SellScore)
	}
	if b.Strength < f.cfg.MinStrength {
		return c, fmt.Errorf("%w: %.1f < %.1f", ErrWeakSignal, b.Strength, f.cfg.MinStrength)
	}

	entry := entryPrice(v)
	if entry <= 0 {
		return c, ErrNoPrice
	}
	c.EntryPrice = entry
	c.StopLoss, c.TakeProfit = f.levels(v.Symbol, b.Signal, entry, verdictATR(v), v.NearestSupport, v.NearestResistance)
	c.RiskReward = RiskReward(entry, c.StopLoss, c.TakeProfit)

	if c.RiskReward < f.cfg.MinRiskReward {
		return c, fmt.Errorf("%w: %.2f < %.2f", ErrPoorRiskReward, c.RiskReward, f.cfg.MinRiskReward)
	}

	c.Reason = fmt.Sprintf("%s %.0f%% (technical %s %.0f, forecast %s %.0f)",
		b.Signal, b.Strength, v.Signal, v.Strength, fc.Direction, fc.Confidence)
	return c, nil
}

// levels places the stop and target. Nearby structural levels anchor them,
// otherwise fixed ATR multiples apply, and both keep a minimum distance.
func (f *Fuser) levels(symbol string, side model.Signal, entry, atr, support, resistance float64) (stop, target float64) {
	if atr <= 0 {
		pip := 0.0001
		if f.pips != nil {
			if p := f.pips.PipSize(symbol); p > 0 {
				pip = p
			}
		}
		if side == model.Buy {
			return entry - f.cfg.DefaultStopPips*pip, entry + f.cfg.DefaultTargetPips*pip
		}
		return entry + f.cfg.DefaultStopPips*pip, entry - f.cfg.DefaultTargetPips*pip
	}

	minStop := f.cfg.MinStopATR * atr
	minTarget := f.cfg.MinTargetATR * atr

	if side == model.Buy {
		stop = entry - f.cfg.StopATR*atr
		if support > 0 && entry-support < f.cfg.StopAnchorATR*atr {
			stop = support - f.cfg.StopBufferATR*atr
		}
		target = entry + f.cfg.TargetATR*atr
		if resistance > 0 && resistance-entry < f.cfg.TargetAnchorATR*atr {
			target = resistance
		}
		if entry-stop < minStop {
			stop = entry - minStop
		}
		if target-entry < minTarget {
			target = entry + minTarget
		}
		return stop, target
	}

	stop = entry + f.cfg.StopATR*atr
	if resistance > 0 && resistance-entry < f.cfg.StopAnchorATR*atr {
		stop = resistance + f.cfg.StopBufferATR*atr
	}
	target = entry - f.cfg.TargetATR*atr
	if support > 0 && entry-support < f.cfg.TargetAnchorATR*atr {
		target = support
	}
	if stop-entry < minStop {
		stop = entry + minStop
	}
	if entry-target < minTarget {
		target = entry - minTarget
	}
	return stop, target
}

// RiskReward is reward over risk, zero when the risk is not positive
func RiskReward(entry, stop, target float64) float64 {
	risk := math.Abs(entry - stop)
	if risk <= 0 {
		return 0
	}
	return math.Abs(target-entry) / risk
}

func entryPrice(v model.AggregateVerdict) float64 {
	for _, tf := range model.PriceTimeframes {
		if tv, ok := v.Timeframes[tf]; ok && tv.LastPrice > 0 {
			return tv.LastPrice
		}
	}
	return v.LastPrice
}

func verdictATR(v model.AggregateVerdict) float64 {
	for _, tf := range atrPreference {
		if tv, ok := v.Timeframes[tf]; ok && tv.ATR > 0 {
			return tv.ATR
		}
	}
	return 0
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
