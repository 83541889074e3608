package market

import (
	"fmt"
	"math"

	"github.com/Alias1177/fxsignal/internal/analysis/technical"
	"github.com/Alias1177/fxsignal/internal/model"
)

// AnomalyKind names the first anomaly found on the last bar
type AnomalyKind string

const (
	AnomalyPriceSpike         AnomalyKind = "price_spike"
	AnomalyVolumeSpike        AnomalyKind = "volume_spike"
	AnomalyGap                AnomalyKind = "gap"
	AnomalyVolatilityBreakout AnomalyKind = "volatility_breakout"
	AnomalyExtremeRSI         AnomalyKind = "extreme_rsi"
	AnomalyRapidMove          AnomalyKind = "rapid_move"
)

// Anomaly describes unusual conditions on the latest bar. Score is 0..1.
type Anomaly struct {
	Detected bool          `json:"detected"`
	Kinds    []AnomalyKind `json:"kinds,omitempty"`
	Score    float64       `json:"score"`
	Details  string        `json:"details,omitempty"`
}

func (a *Anomaly) flag(kind AnomalyKind, score, bump float64, details string) {
	if a.Detected {
		a.Score = math.Min(a.Score+bump, 1)
		a.Kinds = append(a.Kinds, kind)
		return
	}
	a.Detected = true
	a.Kinds = []AnomalyKind{kind}
	a.Score = math.Min(score, 1)
	a.Details = details
}

// DetectAnomaly inspects the last bar against the recent baseline. The first
// anomaly sets the score, later ones only bump it.
func DetectAnomaly(bars []model.Bar) Anomaly {
	var a Anomaly
	n := len(bars)
	if n < 20 {
		return a
	}
	current, prev := bars[n-1], bars[n-2]

	atr10 := technical.ATR(bars, 10)
	atr50 := technical.ATR(bars, min(50, n-1))
	if atr10 <= 0 || atr50 <= 0 {
		return a
	}

	if move := math.Abs(current.Close-prev.Close) / atr10; move > 3 {
		a.flag(AnomalyPriceSpike, move/3, 0, fmt.Sprintf("price moved %.1f times the normal range", move))
	}

	if current.Volume > 0 {
		if avg := technical.AverageVolume(bars[:n-1], 10); avg > 0 {
			if ratio := float64(current.Volume) / avg; ratio > 3 {
				a.flag(AnomalyVolumeSpike, ratio/5, 0.2, fmt.Sprintf("volume %.1f times the average", ratio))
			}
		}
	}

	gap := 0.0
	switch {
	case current.Low > prev.Close:
		gap = current.Low - prev.Close
	case current.High < prev.Close:
		gap = prev.Close - current.High
	}
	if g := gap / atr10; g > 1 {
		a.flag(AnomalyGap, g/2, 0.15, fmt.Sprintf("price gapped %.1f times the average range", g))
	}

	if ratio := atr10 / atr50; ratio > 2.5 {
		a.flag(AnomalyVolatilityBreakout, ratio/4, 0.1, fmt.Sprintf("recent volatility %.1f times the baseline", ratio))
	}

	if rsi, ok := technical.RSI(bars, 14); ok {
		switch {
		case rsi < 10:
			a.flag(AnomalyExtremeRSI, (10-rsi)/10, 0.1, fmt.Sprintf("extremely oversold RSI %.1f", rsi))
		case rsi > 90:
			a.flag(AnomalyExtremeRSI, (rsi-90)/10, 0.1, fmt.Sprintf("extremely overbought RSI %.1f", rsi))
		}
	}

	if base := bars[n-6].Close; base > 0 {
		if pct := (current.Close - base) / base; math.Abs(pct) > 0.05 {
			a.flag(AnomalyRapidMove, math.Abs(pct)/0.1, 0.15, fmt.Sprintf("rapid %.1f%% move over 5 bars", pct*100))
		}
	}
	return a
}
