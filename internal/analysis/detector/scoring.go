package detector

import (
	"math"

	"github.com/Alias1177/fxsignal/internal/model"
)

// scorer accumulates buy and sell points from structural-proximity events
type scorer struct {
	buy  float64
	sell float64
}

func (s *scorer) add(side model.Signal, points float64) {
	switch side {
	case model.Buy:
		s.buy += points
	case model.Sell:
		s.sell += points
	}
}

func (s *scorer) tags(tags []model.PatternTag, points float64) {
	for _, t := range tags {
		s.add(t.Polarity, points)
	}
}

// verdict picks the winning side when it leads by more than margin.
// Strength is the winning score times ten, capped at 100. A neutral verdict
// reports the larger score times neutralScale.
func (s *scorer) verdict(margin, neutralScale float64) (model.Signal, float64) {
	switch {
	case s.buy > s.sell+margin:
		return model.Buy, math.Min(100, s.buy*10)
	case s.sell > s.buy+margin:
		return model.Sell, math.Min(100, s.sell*10)
	}
	return model.Neutral, math.Min(100, math.Max(s.buy, s.sell)*neutralScale)
}

func (s *scorer) apply(res *model.DetectorResult, margin, neutralScale float64) {
	res.BuyScore = s.buy
	res.SellScore = s.sell
	res.Signal, res.Strength = s.verdict(margin, neutralScale)
}
