package technical

import (
	"github.com/markcheno/go-talib"

	"github.com/Alias1177/fxsignal/internal/model"
)

// RSI calculates the Relative Strength Index of the last bar using simple
// rolling means of gains and losses over period
func RSI(bars []model.Bar, period int) (float64, bool) {
	if period <= 0 || len(bars) < period+1 {
		return 0, false
	}

	var gains, losses float64
	for i := len(bars) - period; i < len(bars); i++ {
		change := bars[i].Close - bars[i-1].Close
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		if avgGain == 0 {
			return 0, false
		}
		return 100, true
	}

	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs)), true
}

// WilderRSI calculates the Relative Strength Index with Wilder smoothing
func WilderRSI(bars []model.Bar, period int) float64 {
	if len(bars) < period+1 {
		return 50.0
	}

	var gains, losses float64
	for i := 1; i <= period; i++ {
		change := bars[i].Close - bars[i-1].Close
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	for i := period + 1; i < len(bars); i++ {
		change := bars[i].Close - bars[i-1].Close
		if change > 0 {
			avgGain = (avgGain*float64(period-1) + change) / float64(period)
			avgLoss = (avgLoss * float64(period-1)) / float64(period)
		} else {
			avgGain = (avgGain * float64(period-1)) / float64(period)
			avgLoss = (avgLoss*float64(period-1) - change) / float64(period)
		}
	}

	if avgLoss == 0 {
		return 100.0
	}

	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}

// StochasticReading holds the last two %K and %D values
type StochasticReading struct {
	K, D         float64
	PrevK, PrevD float64
}

// Stochastic calculates the fast stochastic oscillator (%K over kPeriod,
// %D as the simple mean of %K over dPeriod)
func Stochastic(bars []model.Bar, kPeriod, dPeriod int) (StochasticReading, bool) {
	if kPeriod <= 0 || dPeriod <= 0 || len(bars) < kPeriod+dPeriod {
		return StochasticReading{}, false
	}

	highs, lows, closes := Columns(bars)
	k, d := talib.StochF(highs, lows, closes, kPeriod, dPeriod, talib.SMA)
	n := len(bars)
	return StochasticReading{K: k[n-1], D: d[n-1], PrevK: k[n-2], PrevD: d[n-2]}, true
}

// CCI calculates the Commodity Channel Index of the last bar
func CCI(bars []model.Bar, period int) (float64, bool) {
	if period <= 0 || len(bars) < period {
		return 0, false
	}

	highs, lows, closes := Columns(bars)
	out := talib.Cci(highs, lows, closes, period)
	return out[len(out)-1], true
}
