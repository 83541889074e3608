package model

// LevelKind tells whether a level acts from below or above price
type LevelKind string

const (
	Support    LevelKind = "support"
	Resistance LevelKind = "resistance"
)

// Level is a horizontal price of interest
type Level struct {
	Price    float64   `json:"price"`
	Kind     LevelKind `json:"kind"`
	Strength float64   `json:"strength"`
	Origin   string    `json:"origin"`
	Index    int       `json:"index"`
}

// ZoneKind names the structure a Zone was derived from
type ZoneKind string

const (
	ZoneSupply       ZoneKind = "supply"
	ZoneDemand       ZoneKind = "demand"
	ZoneBullishBlock ZoneKind = "bullish_order_block"
	ZoneBearishBlock ZoneKind = "bearish_order_block"
	ZoneBullishGap   ZoneKind = "bullish_fvg"
	ZoneBearishGap   ZoneKind = "bearish_fvg"
	ZoneBullishBreak ZoneKind = "bullish_breaker"
	ZoneBearishBreak ZoneKind = "bearish_breaker"
	ZonePremium      ZoneKind = "premium"
	ZoneDiscount     ZoneKind = "discount"
	ZoneEquilibrium  ZoneKind = "equilibrium"
)

// Zone is a price band. Top is never below Bottom.
type Zone struct {
	Top      float64  `json:"top"`
	Bottom   float64  `json:"bottom"`
	Kind     ZoneKind `json:"kind"`
	Strength float64  `json:"strength"`
	Index    int      `json:"index"`
	Touched  bool     `json:"touched"`
	Broken   bool     `json:"broken"`
}

// NewZone builds a zone, swapping the bounds if needed
func NewZone(a, b float64, kind ZoneKind, strength float64, index int) Zone {
	if a < b {
		a, b = b, a
	}
	return Zone{Top: a, Bottom: b, Kind: kind, Strength: strength, Index: index}
}

// Contains reports whether price lies inside the zone bounds
func (z Zone) Contains(price float64) bool {
	return price >= z.Bottom && price <= z.Top
}

// Overlaps reports whether two zones share any price
func (z Zone) Overlaps(o Zone) bool {
	return z.Bottom <= o.Top && o.Bottom <= z.Top
}

// Mid is the centre of the zone
func (z Zone) Mid() float64 {
	return (z.Top + z.Bottom) / 2
}

// PatternTag is a named structural observation with the direction it supports
type PatternTag struct {
	Label    string `json:"label"`
	Polarity Signal `json:"polarity"`
}
