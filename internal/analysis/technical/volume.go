package technical

import (
	"github.com/Alias1177/fxsignal/internal/model"
)

// HasVolume reports whether every bar carries a volume figure. Many forex
// feeds report none.
func HasVolume(bars []model.Bar) bool {
	if len(bars) == 0 {
		return false
	}
	for _, b := range bars {
		if b.Volume <= 0 {
			return false
		}
	}
	return true
}

// OrderFlow compares up-bar and down-bar volume over the last window bars and
// returns the favoured direction with the volume-weighted price of the
// window. Without volume it returns Neutral and zero.
func OrderFlow(bars []model.Bar, window int) (model.Signal, float64) {
	if window <= 0 || len(bars) < window {
		return model.Neutral, 0
	}
	recent := bars[len(bars)-window:]
	if !HasVolume(recent) {
		return model.Neutral, 0
	}

	var total, up, down int64
	var weighted float64
	for _, b := range recent {
		weighted += b.Close * float64(b.Volume)
		total += b.Volume
		if b.IsBullish() {
			up += b.Volume
		} else {
			down += b.Volume
		}
	}
	vwap := weighted / float64(total)

	ratio := float64(up) / float64(up+down)
	switch {
	case ratio > 0.65:
		return model.Buy, vwap
	case ratio < 0.35:
		return model.Sell, vwap
	}
	return model.Neutral, vwap
}

// AverageVolume is the mean volume of the last period bars
func AverageVolume(bars []model.Bar, period int) float64 {
	if period <= 0 || len(bars) < period {
		return 0
	}
	var total int64
	for _, b := range bars[len(bars)-period:] {
		total += b.Volume
	}
	return float64(total) / float64(period)
}
