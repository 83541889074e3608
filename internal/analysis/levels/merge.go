// Package levels holds the shared price-level utilities used by every
// detector and by the cross-timeframe aggregator.
package levels

import (
	"math"
	"sort"

	"github.com/Alias1177/fxsignal/internal/model"
)

// DefaultTolerance is the relative distance (0.05%) under which two levels are one
const DefaultTolerance = 0.0005

// Merge sorts levels ascending and collapses every level lying within
// tolerance (relative to the previously kept level) into that level by
// averaging. The input slice is not modified.
func Merge(prices []float64, tolerance float64) []float64 {
	if len(prices) == 0 {
		return []float64{}
	}
	if tolerance < 0 {
		tolerance = 0
	}

	sorted := make([]float64, 0, len(prices))
	for _, p := range prices {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			continue
		}
		sorted = append(sorted, p)
	}
	sort.Float64s(sorted)

	merged := make([]float64, 0, len(sorted))
	for _, p := range sorted {
		if len(merged) == 0 {
			merged = append(merged, p)
			continue
		}
		last := merged[len(merged)-1]
		if within(p, last, tolerance) {
			merged[len(merged)-1] = (last + p) / 2
			continue
		}
		merged = append(merged, p)
	}
	return merged
}

func within(p, ref, tolerance float64) bool {
	if ref == 0 {
		return p == 0
	}
	return math.Abs(p-ref)/math.Abs(ref) <= tolerance
}

// Prices extracts the prices of levels of the given kind
func Prices(ls []model.Level, kind model.LevelKind) []float64 {
	out := make([]float64, 0, len(ls))
	for _, l := range ls {
		if l.Kind == kind {
			out = append(out, l.Price)
		}
	}
	return out
}

// Nearest returns the highest level strictly below price and the lowest level
// strictly above it. A zero return means no level exists on that side.
func Nearest(prices []float64, price float64) (below, above float64) {
	for _, p := range prices {
		if p < price && (below == 0 || p > below) {
			below = p
		}
		if p > price && (above == 0 || p < above) {
			above = p
		}
	}
	return below, above
}
