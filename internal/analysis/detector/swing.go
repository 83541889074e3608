package detector

import (
	"sort"

	"github.com/Alias1177/fxsignal/internal/model"
)

type swingKind int

const (
	swingHigh swingKind = iota
	swingLow
)

type swing struct {
	index int
	price float64
	kind  swingKind
}

// findSwings returns strict local extrema: a bar whose high (low) exceeds
// (undercuts) the reach bars on either side. Only indices in [from, to) are
// considered.
func findSwings(bars []model.Bar, from, to, reach int) (highs, lows []swing) {
	if from < reach {
		from = reach
	}
	if to > len(bars)-reach {
		to = len(bars) - reach
	}
	for i := from; i < to; i++ {
		isHigh, isLow := true, true
		for j := 1; j <= reach; j++ {
			if bars[i].High <= bars[i-j].High || bars[i].High <= bars[i+j].High {
				isHigh = false
			}
			if bars[i].Low >= bars[i-j].Low || bars[i].Low >= bars[i+j].Low {
				isLow = false
			}
		}
		if isHigh {
			highs = append(highs, swing{index: i, price: bars[i].High, kind: swingHigh})
		}
		if isLow {
			lows = append(lows, swing{index: i, price: bars[i].Low, kind: swingLow})
		}
	}
	return highs, lows
}

// mergeSwings interleaves highs and lows by bar index
func mergeSwings(highs, lows []swing) []swing {
	all := make([]swing, 0, len(highs)+len(lows))
	all = append(all, highs...)
	all = append(all, lows...)
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].index == all[j].index {
			return all[i].kind < all[j].kind
		}
		return all[i].index < all[j].index
	})
	return all
}

func lastSwings(s []swing, n int) []swing {
	if len(s) > n {
		return s[len(s)-n:]
	}
	return s
}
