package technical

import (
	"github.com/markcheno/go-talib"

	"github.com/Alias1177/fxsignal/internal/model"
)

// Columns splits bars into high, low and close series
func Columns(bars []model.Bar) (highs, lows, closes []float64) {
	highs = make([]float64, len(bars))
	lows = make([]float64, len(bars))
	closes = make([]float64, len(bars))
	for i, b := range bars {
		highs[i] = b.High
		lows[i] = b.Low
		closes[i] = b.Close
	}
	return highs, lows, closes
}

// SMA returns the simple moving average series of closes. Values before the
// first full window are zero.
func SMA(bars []model.Bar, period int) []float64 {
	if period <= 0 || len(bars) < period {
		return make([]float64, len(bars))
	}
	_, _, closes := Columns(bars)
	return talib.Sma(closes, period)
}

// Slope returns the least-squares slope of the last period values
func Slope(values []float64, period int) (float64, bool) {
	if period < 2 || len(values) < period {
		return 0, false
	}
	out := talib.LinearRegSlope(values, period)
	return out[len(out)-1], true
}

// EMA returns the exponential moving average of closes at the last bar
func EMA(bars []model.Bar, period int) float64 {
	if period <= 0 || len(bars) < period {
		return 0
	}
	_, _, closes := Columns(bars)
	out := talib.Ema(closes, period)
	return out[len(out)-1]
}

// ADX returns the Average Directional Index with the +DI and -DI lines at the
// last bar. It needs at least twice period bars.
func ADX(bars []model.Bar, period int) (adx, plusDI, minusDI float64, ok bool) {
	if period <= 0 || len(bars) < 2*period+1 {
		return 0, 0, 0, false
	}
	highs, lows, closes := Columns(bars)
	n := len(bars) - 1
	return talib.Adx(highs, lows, closes, period)[n],
		talib.PlusDI(highs, lows, closes, period)[n],
		talib.MinusDI(highs, lows, closes, period)[n],
		true
}
