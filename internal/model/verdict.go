package model

import "time"

// DetectorResult is what one pattern detector produced for one timeframe
type DetectorResult struct {
	Detector    string       `json:"detector"`
	Timeframe   Timeframe    `json:"timeframe"`
	Levels      []Level      `json:"levels,omitempty"`
	Supports    []float64    `json:"supports"`
	Resistances []float64    `json:"resistances"`
	Zones       []Zone       `json:"zones,omitempty"`
	Patterns    []PatternTag `json:"patterns,omitempty"`
	Signal      Signal       `json:"signal"`
	Strength    float64      `json:"strength"`
	BuyScore    float64      `json:"buy_score"`
	SellScore   float64      `json:"sell_score"`

	// Populated by the price-action detector only
	Trend         Trend   `json:"trend,omitempty"`
	TrendStrength float64 `json:"trend_strength,omitempty"`
	ATR           float64 `json:"atr,omitempty"`
	LastPrice     float64 `json:"last_price,omitempty"`

	Failed bool   `json:"failed,omitempty"`
	Note   string `json:"note,omitempty"`
}

// TimeframeVerdict merges the detector results of a single timeframe
type TimeframeVerdict struct {
	Timeframe     Timeframe        `json:"timeframe"`
	Signal        Signal           `json:"signal"`
	Strength      float64          `json:"strength"`
	Confidence    Confidence       `json:"confidence"`
	Supports      []float64        `json:"supports"`
	Resistances   []float64        `json:"resistances"`
	KeyPatterns   []string         `json:"key_patterns"`
	Trend         Trend            `json:"trend,omitempty"`
	TrendStrength float64          `json:"trend_strength,omitempty"`
	ATR           float64          `json:"atr,omitempty"`
	LastPrice     float64          `json:"last_price,omitempty"`
	Detectors     []DetectorResult `json:"detectors"`
}

// AggregateVerdict is the cross-timeframe call for one symbol. A zero
// NearestSupport or NearestResistance means no level was found on that side.
type AggregateVerdict struct {
	Symbol             string                         `json:"symbol"`
	Signal             Signal                         `json:"signal"`
	Strength           float64                        `json:"strength"`
	Confidence         Confidence                     `json:"confidence"`
	SuccessProbability float64                        `json:"success_probability"`
	BuyWeight          float64                        `json:"buy_weight"`
	SellWeight         float64                        `json:"sell_weight"`
	LastPrice          float64                        `json:"last_price"`
	NearestSupport     float64                        `json:"nearest_support"`
	NearestResistance  float64                        `json:"nearest_resistance"`
	KeyTimeframes      []Timeframe                    `json:"key_timeframes"`
	SentimentImpact    float64                        `json:"sentiment_impact"`
	UpcomingEvents     []CalendarEvent                `json:"upcoming_events,omitempty"`
	Timeframes         map[Timeframe]TimeframeVerdict `json:"timeframes"`
	CreatedAt          time.Time                      `json:"created_at"`
}
