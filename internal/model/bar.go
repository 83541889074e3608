package model

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Timeframe identifies the bar period of a series
type Timeframe string

const (
	M5  Timeframe = "M5"
	M15 Timeframe = "M15"
	H1  Timeframe = "H1"
	H4  Timeframe = "H4"
	D1  Timeframe = "D1"
)

// AllTimeframes lists the supported timeframes from lowest to highest
var AllTimeframes = []Timeframe{M5, M15, H1, H4, D1}

// PriceTimeframes is the order in which timeframes supply the current price
// of a multi-timeframe verdict
var PriceTimeframes = []Timeframe{H1, M15, M5, H4, D1}

// Duration returns the wall-clock length of one bar
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case M5:
		return 5 * time.Minute
	case M15:
		return 15 * time.Minute
	case H1:
		return time.Hour
	case H4:
		return 4 * time.Hour
	case D1:
		return 24 * time.Hour
	}
	return 0
}

// ParseTimeframe converts a string such as "h1" into a Timeframe
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(strings.ToUpper(strings.TrimSpace(s)))
	if tf.Duration() == 0 {
		return "", fmt.Errorf("unknown timeframe %q", s)
	}
	return tf, nil
}

// Bar represents a single OHLC price bar
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume,omitempty"`
}

// Range is the high-low distance of the bar
func (b Bar) Range() float64 {
	return b.High - b.Low
}

// Body is the absolute open-close distance of the bar
func (b Bar) Body() float64 {
	return math.Abs(b.Close - b.Open)
}

// IsBullish reports whether the bar closed above its open
func (b Bar) IsBullish() bool {
	return b.Close > b.Open
}

// IsBearish reports whether the bar closed below its open
func (b Bar) IsBearish() bool {
	return b.Close < b.Open
}

// UpperShadow is the distance from the body top to the high
func (b Bar) UpperShadow() float64 {
	return b.High - math.Max(b.Open, b.Close)
}

// LowerShadow is the distance from the body bottom to the low
func (b Bar) LowerShadow() float64 {
	return math.Min(b.Open, b.Close) - b.Low
}
