// Package aggregate folds detector results into per-timeframe verdicts and
// per-timeframe verdicts into one cross-timeframe call.
package aggregate

import (
	"github.com/Alias1177/fxsignal/internal/analysis/detector"
	"github.com/Alias1177/fxsignal/internal/analysis/levels"
	"github.com/Alias1177/fxsignal/internal/model"
)

// AgreementTiers maps the number of detectors agreeing on the winning
// direction to a confidence tier
type AgreementTiers struct {
	High   int `yaml:"high" default:"3" validate:"gtefield=Medium"`
	Medium int `yaml:"medium" default:"2" validate:"min=1"`
}

// DefaultAgreementTiers returns high at three agreeing detectors and medium at two
func DefaultAgreementTiers() AgreementTiers {
	return AgreementTiers{High: 3, Medium: 2}
}

func (t AgreementTiers) tier(agreeing int) model.Confidence {
	switch {
	case agreeing >= t.High:
		return model.ConfidenceHigh
	case agreeing >= t.Medium:
		return model.ConfidenceMedium
	}
	return model.ConfidenceLow
}

var patternPrefix = map[string]string{
	detector.NameLiquidity:   "liquidity: ",
	detector.NameStructure:   "structure: ",
	detector.NamePriceAction: "price-action: ",
}

// Summarizer merges the detector results of one timeframe
type Summarizer struct {
	tolerance float64
	tiers     AgreementTiers
}

// NewSummarizer creates a summarizer merging levels within tolerance
func NewSummarizer(tolerance float64, tiers AgreementTiers) *Summarizer {
	return &Summarizer{tolerance: tolerance, tiers: tiers}
}

// Summarize takes a majority vote over the detector signals. A tie is
// neutral. Strength is the mean detector strength; a failed detector still
// counts with strength zero.
func (s *Summarizer) Summarize(tf model.Timeframe, results []model.DetectorResult) model.TimeframeVerdict {
	v := model.TimeframeVerdict{
		Timeframe:   tf,
		Signal:      model.Neutral,
		Confidence:  model.ConfidenceLow,
		Supports:    []float64{},
		Resistances: []float64{},
		KeyPatterns: []string{},
		Trend:       model.TrendSideways,
		Detectors:   results,
	}
	if len(results) == 0 {
		return v
	}

	var buy, sell int
	var total float64
	var supports, resistances []float64
	for _, r := range results {
		switch r.Signal {
		case model.Buy:
			buy++
		case model.Sell:
			sell++
		}
		total += r.Strength
		supports = append(supports, r.Supports...)
		resistances = append(resistances, r.Resistances...)

		for _, p := range r.Patterns {
			v.KeyPatterns = append(v.KeyPatterns, patternPrefix[r.Detector]+p.Label)
		}

		if r.Detector == detector.NamePriceAction {
			if r.Trend != "" {
				v.Trend = r.Trend
			}
			v.TrendStrength = r.TrendStrength
			v.ATR = r.ATR
		}
		if v.LastPrice == 0 {
			v.LastPrice = r.LastPrice
		}
	}

	switch {
	case buy > sell:
		v.Signal = model.Buy
	case sell > buy:
		v.Signal = model.Sell
	}
	v.Confidence = s.tiers.tier(max(buy, sell))
	v.Strength = total / float64(len(results))
	v.Supports = levels.Merge(supports, s.tolerance)
	v.Resistances = levels.Merge(resistances, s.tolerance)
	return v
}
