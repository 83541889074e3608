package aggregate

import (
	"math"
	"sort"
	"time"

	"github.com/Alias1177/fxsignal/internal/analysis/levels"
	"github.com/Alias1177/fxsignal/internal/model"
)

// Weights is the prior importance of each timeframe
type Weights map[model.Timeframe]float64

// DefaultWeights favours higher timeframes
func DefaultWeights() Weights {
	return Weights{
		model.M5:  0.05,
		model.M15: 0.10,
		model.H1:  0.20,
		model.H4:  0.30,
		model.D1:  0.35,
	}
}

// Normalize rescales the weights of the present timeframes to sum to one.
// Timeframes without a prior weight get zero.
func (w Weights) Normalize(present []model.Timeframe) map[model.Timeframe]float64 {
	out := make(map[model.Timeframe]float64, len(present))
	var total float64
	for _, tf := range present {
		total += w[tf]
	}
	for _, tf := range present {
		if total > 0 {
			out[tf] = w[tf] / total
		} else {
			out[tf] = 0
		}
	}
	return out
}

// StrengthTiers maps aggregate strength to a confidence tier. A strength
// strictly above High is high, strictly above Medium is medium.
type StrengthTiers struct {
	High   float64 `yaml:"high" default:"70" validate:"gtefield=Medium,lte=100"`
	Medium float64 `yaml:"medium" default:"40" validate:"gte=0"`
}

// DefaultStrengthTiers returns the 70/40 split
func DefaultStrengthTiers() StrengthTiers {
	return StrengthTiers{High: 70, Medium: 40}
}

func (t StrengthTiers) tier(strength float64) model.Confidence {
	switch {
	case strength > t.High:
		return model.ConfidenceHigh
	case strength > t.Medium:
		return model.ConfidenceMedium
	}
	return model.ConfidenceLow
}

// Config tunes the cross-timeframe aggregation
type Config struct {
	Weights Weights
	Tiers   StrengthTiers
	// SentimentWeight is added to the matching side per unit of impact
	SentimentWeight float64
	// Margin is the weight lead a side needs over the other
	Margin float64
}

// DefaultConfig returns the stock aggregation settings
func DefaultConfig() Config {
	return Config{
		Weights:         DefaultWeights(),
		Tiers:           DefaultStrengthTiers(),
		SentimentWeight: 0.1,
		Margin:          0.1,
	}
}

// trendPreference is the order in which timeframes supply the dominant trend
var trendPreference = []model.Timeframe{model.D1, model.H4}

// Aggregator weighs per-timeframe verdicts into one call
type Aggregator struct {
	cfg Config
	now func() time.Time
}

// NewAggregator creates an aggregator
func NewAggregator(cfg Config) *Aggregator {
	return &Aggregator{cfg: cfg, now: time.Now}
}

// Aggregate derives the overall signal, strength and success probability for
// symbol. sentiment may be nil.
func (a *Aggregator) Aggregate(symbol string, verdicts map[model.Timeframe]model.TimeframeVerdict, sentiment *model.SentimentReport) model.AggregateVerdict {
	out := model.AggregateVerdict{
		Symbol:        symbol,
		Signal:        model.Neutral,
		Confidence:    model.ConfidenceLow,
		KeyTimeframes: []model.Timeframe{},
		Timeframes:    verdicts,
		CreatedAt:     a.now(),
	}

	present := make([]model.Timeframe, 0, len(verdicts))
	for tf := range verdicts {
		present = append(present, tf)
	}
	sortTimeframes(present)
	weights := a.cfg.Weights.Normalize(present)

	// 1. Timeframe votes
	var buy, sell float64
	for _, tf := range present {
		switch verdicts[tf].Signal {
		case model.Buy:
			buy += weights[tf]
		case model.Sell:
			sell += weights[tf]
		}
	}

	// 2. Sentiment term, impact scaled to -1..1
	var impact float64
	if sentiment != nil {
		impact = clamp(sentiment.Impact, -100, 100)
		out.SentimentImpact = impact
		out.UpcomingEvents = sentiment.Upcoming
		unit := math.Min(math.Abs(impact)/100, 1)
		switch {
		case impact > 0:
			buy += a.cfg.SentimentWeight * unit
		case impact < 0:
			sell += a.cfg.SentimentWeight * unit
		}
	}
	out.BuyWeight, out.SellWeight = buy, sell

	// 3. Direction and strength
	weight := math.Max(buy, sell)
	switch {
	case buy > sell+a.cfg.Margin:
		out.Signal, weight = model.Buy, buy
	case sell > buy+a.cfg.Margin:
		out.Signal, weight = model.Sell, sell
	}
	out.Strength = math.Min(100, weight*100)
	out.Confidence = a.cfg.Tiers.tier(out.Strength)

	// 4. Nearest levels around the latest price
	out.LastPrice = latestPrice(verdicts)
	if out.LastPrice > 0 {
		var supports, resistances []float64
		for _, tf := range present {
			supports = append(supports, verdicts[tf].Supports...)
			resistances = append(resistances, verdicts[tf].Resistances...)
		}
		out.NearestSupport, _ = levels.Nearest(supports, out.LastPrice)
		_, out.NearestResistance = levels.Nearest(resistances, out.LastPrice)
	}

	// 5. Key timeframes
	for _, tf := range present {
		v := verdicts[tf]
		if v.Signal != model.Neutral && v.Confidence != model.ConfidenceLow {
			out.KeyTimeframes = append(out.KeyTimeframes, tf)
		}
	}

	out.SuccessProbability = successProbability(out.Signal, out.Strength, verdicts, impact)
	return out
}

// successProbability starts from strength and adds a confirmation bonus, a
// sentiment correction (up to +10 when news agrees, -15 when it opposes) and
// a higher-timeframe trend correction
func successProbability(signal model.Signal, strength float64, verdicts map[model.Timeframe]model.TimeframeVerdict, impact float64) float64 {
	var confirmations int
	for _, v := range verdicts {
		if v.Signal == signal {
			confirmations++
		}
	}
	p := strength + math.Min(float64(confirmations)*5, 20)

	unit := impact / 100
	switch {
	case (signal == model.Buy && unit > 0) || (signal == model.Sell && unit < 0):
		p += math.Min(math.Abs(unit)*10, 10)
	case (signal == model.Buy && unit < 0) || (signal == model.Sell && unit > 0):
		p -= math.Min(math.Abs(unit)*15, 15)
	}

	for _, tf := range trendPreference {
		v, ok := verdicts[tf]
		if !ok {
			continue
		}
		switch {
		case signal != model.Neutral && v.Trend.Signal() == signal:
			p += math.Min(v.TrendStrength*0.15, 15)
		case signal != model.Neutral && v.Trend.Signal() == signal.Opposite():
			p -= math.Min(v.TrendStrength*0.2, 20)
		}
		break
	}

	return clamp(p, 0, 100)
}

func latestPrice(verdicts map[model.Timeframe]model.TimeframeVerdict) float64 {
	for _, tf := range model.PriceTimeframes {
		if v, ok := verdicts[tf]; ok && v.LastPrice > 0 {
			return v.LastPrice
		}
	}
	return 0
}

func sortTimeframes(tfs []model.Timeframe) {
	sort.Slice(tfs, func(i, j int) bool { return tfs[i].Duration() < tfs[j].Duration() })
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
