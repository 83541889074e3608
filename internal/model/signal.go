package model

// Signal is a directional call
type Signal string

const (
	Buy     Signal = "buy"
	Sell    Signal = "sell"
	Neutral Signal = "neutral"
)

// Opposite returns the reverse direction; Neutral stays Neutral
func (s Signal) Opposite() Signal {
	switch s {
	case Buy:
		return Sell
	case Sell:
		return Buy
	}
	return Neutral
}

// Confidence is a coarse tier attached to a verdict
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Trend is the directional regime reported by the price-action detector
type Trend string

const (
	TrendBullish  Trend = "bullish"
	TrendBearish  Trend = "bearish"
	TrendSideways Trend = "sideways"
)

// Signal maps a trend onto the direction it favours
func (t Trend) Signal() Signal {
	switch t {
	case TrendBullish:
		return Buy
	case TrendBearish:
		return Sell
	}
	return Neutral
}

// Forecast is the output of a directional forecaster. Confidence is in 0..100.
type Forecast struct {
	Direction  Signal   `json:"direction"`
	Confidence float64  `json:"confidence"`
	Factors    []string `json:"factors,omitempty"`
}
