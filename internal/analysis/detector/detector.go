// Package detector implements the three pattern detectors (liquidity,
// structure and price action) behind one shared contract.
package detector

import (
	"errors"
	"fmt"
	"math"

	"github.com/Alias1177/fxsignal/internal/analysis/levels"
	"github.com/Alias1177/fxsignal/internal/model"
)

var (
	// ErrInsufficientData marks a series shorter than the detector minimum
	ErrInsufficientData = errors.New("insufficient data")
	// ErrComputation marks a detector that failed mid-analysis
	ErrComputation = errors.New("computation failure")
)

const (
	NameLiquidity   = "liquidity"
	NameStructure   = "structure"
	NamePriceAction = "price-action"
)

// Detector analyses one timeframe's bars. Implementations must be pure: they
// may be called concurrently on different series.
type Detector interface {
	Name() string
	// MinBars is the smallest series any sub-feature can work with
	MinBars() int
	Analyze(tf model.Timeframe, bars []model.Bar) model.DetectorResult
}

// Options holds settings shared by every detector
type Options struct {
	MergeTolerance float64
}

// DefaultOptions returns the stock detector settings
func DefaultOptions() Options {
	return Options{MergeTolerance: levels.DefaultTolerance}
}

// All returns the three detectors in their canonical order
func All(opts Options) []Detector {
	return []Detector{
		NewLiquidity(opts),
		NewStructure(opts),
		NewPriceAction(opts),
	}
}

// Neutral is the empty result a degraded detector reports
func Neutral(name string, tf model.Timeframe) model.DetectorResult {
	return model.DetectorResult{
		Detector:    name,
		Timeframe:   tf,
		Supports:    []float64{},
		Resistances: []float64{},
		Signal:      model.Neutral,
	}
}

// Run executes d on bars and isolates its failures. A short series yields a
// neutral result with ErrInsufficientData; a panic or a non-finite score
// yields a neutral result with ErrComputation. The result is always usable.
func Run(d Detector, tf model.Timeframe, bars []model.Bar) (res model.DetectorResult, err error) {
	if len(bars) < d.MinBars() {
		res = Neutral(d.Name(), tf)
		res.Note = "insufficient data"
		return res, fmt.Errorf("%s %s: have %d bars, need %d: %w",
			d.Name(), tf, len(bars), d.MinBars(), ErrInsufficientData)
	}

	defer func() {
		if r := recover(); r != nil {
			res = Neutral(d.Name(), tf)
			res.Failed = true
			res.Note = fmt.Sprint(r)
			err = fmt.Errorf("%s %s: %v: %w", d.Name(), tf, r, ErrComputation)
		}
	}()

	res = d.Analyze(tf, bars)
	if !finite(res.Strength) || !finite(res.BuyScore) || !finite(res.SellScore) {
		failed := Neutral(d.Name(), tf)
		failed.Failed = true
		failed.Note = "non-finite score"
		return failed, fmt.Errorf("%s %s: non-finite score: %w", d.Name(), tf, ErrComputation)
	}
	res.Strength = clamp(res.Strength, 0, 100)
	res.Supports = finiteOnly(res.Supports)
	res.Resistances = finiteOnly(res.Resistances)
	return res, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func finiteOnly(vs []float64) []float64 {
	out := make([]float64, 0, len(vs))
	for _, v := range vs {
		if finite(v) {
			out = append(out, v)
		}
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// relDiff is (a-b)/ref, or 0 when ref is zero
func relDiff(a, b, ref float64) float64 {
	if ref == 0 {
		return 0
	}
	return (a - b) / ref
}
