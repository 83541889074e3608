package detector

import (
	"math"

	"github.com/Alias1177/fxsignal/internal/analysis/levels"
	"github.com/Alias1177/fxsignal/internal/analysis/technical"
	"github.com/Alias1177/fxsignal/internal/model"
)

const (
	structMinBars      = 30
	structRecentWindow = 5
	zoneMoveMultiple   = 1.5
	goldenRetracement  = 0.618
	equilibriumShare   = 0.1
)

// Transition classifies a swing point against the previous swing of the same kind
type Transition string

const (
	HigherHigh Transition = "HH"
	LowerHigh  Transition = "LH"
	HigherLow  Transition = "HL"
	LowerLow   Transition = "LL"
)

func (t Transition) bullish() bool { return t == HigherHigh || t == HigherLow }

// Phase is the market-cycle stage inferred from recent transitions
type Phase string

const (
	PhaseUndetermined  Phase = ""
	PhaseAccumulation  Phase = "accumulation"
	PhaseMarkup        Phase = "markup"
	PhaseDistribution  Phase = "distribution"
	PhaseMarkdown      Phase = "markdown"
	PhaseConsolidation Phase = "consolidation"
)

type transition struct {
	kind  Transition
	index int
	price float64
}

type marketStructure struct {
	trend       model.Trend
	phase       Phase
	highs       []swing
	lows        []swing
	transitions []transition
	keyLevels   []model.Level
}

type move struct {
	startIndex, endIndex int
	size                 float64
	bars                 int
	up                   bool
	depth                float64
}

type premiumDiscount struct {
	premium     []model.Zone
	equilibrium []model.Zone
	discount    []model.Zone
	trend       model.Trend
}

// Structure infers trend and phase from swing transitions and scores
// supply/demand zones, premium/discount areas and impulse/correction legs.
type Structure struct {
	opts Options
}

// NewStructure creates a structure/zone detector
func NewStructure(opts Options) *Structure {
	return &Structure{opts: opts}
}

func (d *Structure) Name() string { return NameStructure }

func (d *Structure) MinBars() int { return structMinBars }

// Analyze implements Detector
func (d *Structure) Analyze(tf model.Timeframe, bars []model.Bar) model.DetectorResult {
	res := Neutral(d.Name(), tf)
	last := bars[len(bars)-1].Close

	ms := analyzeStructure(bars)
	supply, demand := findSupplyDemand(bars)
	pd := findPremiumDiscount(ms)
	impulses, corrections := findImpulseCorrective(ms)
	tags := structureTags(last, ms, supply, demand, pd, impulses, corrections)

	var supports, resistances []float64
	for _, h := range ms.highs {
		if h.price > last {
			resistances = append(resistances, h.price)
		} else {
			supports = append(supports, h.price)
		}
	}
	for _, l := range ms.lows {
		if l.price < last {
			supports = append(supports, l.price)
		} else {
			resistances = append(resistances, l.price)
		}
	}
	for _, z := range supply {
		if z.Bottom > last {
			resistances = append(resistances, z.Bottom, z.Top)
		}
	}
	for _, z := range demand {
		if z.Top < last {
			supports = append(supports, z.Bottom, z.Top)
		}
	}
	for _, z := range pd.premium {
		if z.Top > last {
			resistances = append(resistances, z.Top)
		}
	}
	for _, z := range pd.discount {
		if z.Bottom < last {
			supports = append(supports, z.Bottom)
		}
	}

	res.Supports = levels.Merge(supports, d.opts.MergeTolerance)
	res.Resistances = levels.Merge(resistances, d.opts.MergeTolerance)
	res.Levels = ms.keyLevels
	res.Zones = append(res.Zones, supply...)
	res.Zones = append(res.Zones, demand...)
	res.Zones = append(res.Zones, pd.premium...)
	res.Zones = append(res.Zones, pd.equilibrium...)
	res.Zones = append(res.Zones, pd.discount...)
	res.Patterns = tags
	res.Trend = ms.trend
	res.LastPrice = last

	var s scorer
	switch ms.trend {
	case model.TrendBullish:
		s.add(model.Buy, 2)
	case model.TrendBearish:
		s.add(model.Sell, 2)
	}
	switch ms.phase {
	case PhaseAccumulation:
		s.add(model.Buy, 1)
	case PhaseDistribution:
		s.add(model.Sell, 1)
	case PhaseMarkup:
		s.add(model.Buy, 2)
	case PhaseMarkdown:
		s.add(model.Sell, 2)
	}

	for _, z := range demand {
		if z.Bottom <= last && last <= z.Top*1.01 {
			s.add(model.Buy, 3)
		} else if last < z.Bottom && relDiff(z.Bottom, last, last) < 0.003 {
			s.add(model.Buy, 2)
		}
	}
	for _, z := range supply {
		if z.Bottom*0.99 <= last && last <= z.Top {
			s.add(model.Sell, 3)
		} else if last > z.Top && relDiff(last, z.Top, last) < 0.003 {
			s.add(model.Sell, 2)
		}
	}

	switch pd.classify(last) {
	case model.ZonePremium:
		switch pd.trend {
		case model.TrendBullish:
			s.add(model.Sell, 2)
		case model.TrendBearish:
			s.add(model.Sell, 3)
		}
	case model.ZoneDiscount:
		switch pd.trend {
		case model.TrendBullish:
			s.add(model.Buy, 3)
		case model.TrendBearish:
			s.add(model.Buy, 2)
		}
	}

	if len(impulses) > 0 && len(corrections) > 0 {
		imp := impulses[len(impulses)-1]
		cor := corrections[len(corrections)-1]
		if cor.endIndex > imp.endIndex && cor.depth < goldenRetracement {
			switch {
			case imp.up && !cor.up:
				s.add(model.Buy, 3)
			case !imp.up && cor.up:
				s.add(model.Sell, 3)
			}
		}
	}

	s.tags(tags, 2)
	s.apply(&res, 2, 0)
	return res
}

// analyzeStructure classifies each swing against the previous swing of the
// same kind and derives trend and phase from the last five transitions
func analyzeStructure(bars []model.Bar) marketStructure {
	ms := marketStructure{trend: model.TrendSideways, phase: PhaseUndetermined}
	if len(bars) < structMinBars {
		return ms
	}

	highs, lows := findSwings(bars, 5, len(bars)-5, 2)
	var prevHigh, prevLow *swing
	for _, sw := range mergeSwings(highs, lows) {
		switch sw.kind {
		case swingHigh:
			if prevHigh != nil {
				kind := LowerHigh
				if sw.price > prevHigh.price {
					kind = HigherHigh
				}
				ms.transitions = append(ms.transitions, transition{kind: kind, index: sw.index, price: sw.price})
			}
			prevHigh = &sw
		case swingLow:
			if prevLow != nil {
				kind := LowerLow
				if sw.price > prevLow.price {
					kind = HigherLow
				}
				ms.transitions = append(ms.transitions, transition{kind: kind, index: sw.index, price: sw.price})
			}
			prevLow = &sw
		}
	}

	recent := ms.transitions
	if len(recent) > structRecentWindow {
		recent = recent[len(recent)-structRecentWindow:]
	}
	if len(recent) >= 3 {
		var up, down int
		for _, t := range recent {
			if t.kind.bullish() {
				up++
			} else {
				down++
			}
		}
		lastKind := recent[len(recent)-1].kind
		switch {
		case up >= 3 && up > down:
			ms.trend = model.TrendBullish
			ms.phase = PhaseMarkup
			if lastKind == LowerHigh {
				ms.phase = PhaseDistribution
			}
		case down >= 3 && down > up:
			ms.trend = model.TrendBearish
			ms.phase = PhaseMarkdown
			if lastKind == HigherLow {
				ms.phase = PhaseAccumulation
			}
		default:
			ms.phase = PhaseConsolidation
		}
	}

	if len(ms.transitions) >= 3 {
		for i := 1; i < len(ms.transitions); i++ {
			prev, cur := ms.transitions[i-1], ms.transitions[i]
			if prev.kind.bullish() != cur.kind.bullish() {
				kind := model.Support
				if cur.kind == HigherHigh || cur.kind == LowerHigh {
					kind = model.Resistance
				}
				ms.keyLevels = append(ms.keyLevels, model.Level{
					Price:    cur.price,
					Kind:     kind,
					Strength: 1,
					Origin:   "structure_change_" + string(prev.kind) + "_" + string(cur.kind),
					Index:    cur.index,
				})
			}
		}
	}

	ms.highs = lastSwings(highs, 10)
	ms.lows = lastSwings(lows, 10)
	ms.transitions = ms.transitionsTail(10)
	return ms
}

func (ms marketStructure) transitionsTail(n int) []transition {
	if len(ms.transitions) > n {
		return ms.transitions[len(ms.transitions)-n:]
	}
	return ms.transitions
}

// findSupplyDemand takes the 3-bar base ending at i as a zone when the close
// three bars later has moved more than 1.5 average ranges. Later bars mark
// zones touched; a close through the far side breaks them.
func findSupplyDemand(bars []model.Bar) (supply, demand []model.Zone) {
	if len(bars) < structMinBars {
		return nil, nil
	}
	avgRange := technical.AverageRange(bars)
	if avgRange == 0 {
		return nil, nil
	}

	threshold := zoneMoveMultiple * avgRange
	for i := 5; i < len(bars)-5; i++ {
		forward := bars[i+3].Close - bars[i].Close
		size := math.Abs(forward)
		if size <= threshold {
			continue
		}
		base := bars[i-2 : i+1]
		if forward < 0 {
			top, bottom := base[0].High, base[0].Close
			for _, b := range base[1:] {
				top = math.Max(top, b.High)
				bottom = math.Min(bottom, b.Close)
			}
			if top-bottom < 2*avgRange {
				supply = append(supply, model.NewZone(top, bottom, model.ZoneSupply, size/avgRange, i))
			}
		} else {
			top, bottom := base[0].Open, base[0].Low
			for _, b := range base[1:] {
				top = math.Max(top, b.Open)
				bottom = math.Min(bottom, b.Low)
			}
			if top-bottom < 2*avgRange {
				demand = append(demand, model.NewZone(top, bottom, model.ZoneDemand, size/avgRange, i))
			}
		}
	}

	supply = topZones(interact(bars, supply), 5)
	demand = topZones(interact(bars, demand), 5)
	return supply, demand
}

// interact scans bars after each zone and drops the zones price closed through
func interact(bars []model.Bar, zones []model.Zone) []model.Zone {
	kept := zones[:0]
	for _, z := range zones {
		for i := z.Index + 5; i < len(bars); i++ {
			b := bars[i]
			if z.Contains(b.High) || z.Contains(b.Low) {
				z.Touched = true
			}
			if (z.Kind == model.ZoneSupply && b.Close > z.Top) || (z.Kind == model.ZoneDemand && b.Close < z.Bottom) {
				z.Broken = true
				break
			}
		}
		if !z.Broken {
			kept = append(kept, z)
		}
	}
	return kept
}

// findPremiumDiscount splits the dominant swing range at its midpoint. The
// upper half is premium, the lower half discount, and a band of
// equilibriumShare of the range around the midpoint is equilibrium.
func findPremiumDiscount(ms marketStructure) premiumDiscount {
	pd := premiumDiscount{trend: ms.trend}
	if len(ms.transitions) == 0 {
		return pd
	}

	recent := ms.transitionsTail(structRecentWindow)
	pick := func(kind Transition) []transition {
		var out []transition
		for _, t := range recent {
			if t.kind == kind {
				out = append(out, t)
			}
		}
		return out
	}

	var hi, lo swing
	switch ms.trend {
	case model.TrendBullish:
		hh, hl := pick(HigherHigh), pick(HigherLow)
		if len(hh) == 0 || len(hl) == 0 {
			return pd
		}
		top := hh[0]
		for _, t := range hh[1:] {
			if t.price > top.price {
				top = t
			}
		}
		low := hl[len(hl)-1]
		hi, lo = swing{index: top.index, price: top.price}, swing{index: low.index, price: low.price}
	case model.TrendBearish:
		lh, ll := pick(LowerHigh), pick(LowerLow)
		if len(lh) == 0 || len(ll) == 0 {
			return pd
		}
		high := lh[len(lh)-1]
		bottom := ll[0]
		for _, t := range ll[1:] {
			if t.price < bottom.price {
				bottom = t
			}
		}
		hi, lo = swing{index: high.index, price: high.price}, swing{index: bottom.index, price: bottom.price}
	default:
		highs, lows := lastSwings(ms.highs, 3), lastSwings(ms.lows, 3)
		if len(highs) == 0 || len(lows) == 0 {
			return pd
		}
		hi, lo = highs[0], lows[0]
		for _, h := range highs[1:] {
			if h.price > hi.price {
				hi = h
			}
		}
		for _, l := range lows[1:] {
			if l.price < lo.price {
				lo = l
			}
		}
	}
	return splitRange(pd, hi, lo)
}

func splitRange(pd premiumDiscount, hi, lo swing) premiumDiscount {
	span := hi.price - lo.price
	if span <= 0 {
		return pd
	}
	mid := lo.price + span/2
	band := span * equilibriumShare / 2
	pd.premium = []model.Zone{model.NewZone(hi.price, mid+band, model.ZonePremium, 1, hi.index)}
	pd.equilibrium = []model.Zone{model.NewZone(mid+band, mid-band, model.ZoneEquilibrium, 1, max(hi.index, lo.index))}
	pd.discount = []model.Zone{model.NewZone(mid-band, lo.price, model.ZoneDiscount, 1, lo.index)}
	return pd
}

// classify reports which part of the range price sits in, or "" outside it
func (pd premiumDiscount) classify(price float64) model.ZoneKind {
	for _, group := range [][]model.Zone{pd.equilibrium, pd.premium, pd.discount} {
		for _, z := range group {
			if z.Contains(price) {
				return z.Kind
			}
		}
	}
	return ""
}

// findImpulseCorrective walks consecutive swing legs. A leg larger than 1.5
// average swings completed in under 15 bars is an impulse; a following leg
// smaller than 61.8% of it and slower is a correction.
func findImpulseCorrective(ms marketStructure) (impulses, corrections []move) {
	all := mergeSwings(ms.highs, ms.lows)
	if len(all) < 3 {
		return nil, nil
	}

	var avgSwing float64
	for i := 1; i < len(all); i++ {
		avgSwing += math.Abs(all[i].price - all[i-1].price)
	}
	avgSwing /= float64(len(all) - 1)

	for i := 1; i < len(all)-1; i++ {
		start, mid, end := all[i-1], all[i], all[i+1]
		first := mid.price - start.price
		second := end.price - mid.price
		firstSize, secondSize := math.Abs(first), math.Abs(second)
		firstLen, secondLen := mid.index-start.index, end.index-mid.index

		if firstSize > avgSwing*1.5 && firstLen < 15 {
			impulses = append(impulses, move{
				startIndex: start.index, endIndex: mid.index,
				size: firstSize, bars: firstLen, up: first > 0,
			})
		}
		if firstSize > 0 && secondSize < firstSize*goldenRetracement && secondLen > firstLen {
			corrections = append(corrections, move{
				startIndex: mid.index, endIndex: end.index,
				size: secondSize, bars: secondLen, up: second > 0,
				depth: secondSize / firstSize,
			})
		}
	}

	if len(impulses) > 5 {
		impulses = impulses[len(impulses)-5:]
	}
	if len(corrections) > 5 {
		corrections = corrections[len(corrections)-5:]
	}
	return impulses, corrections
}

func structureTags(last float64, ms marketStructure, supply, demand []model.Zone, pd premiumDiscount, impulses, corrections []move) []model.PatternTag {
	var tags []model.PatternTag
	add := func(label string, polarity model.Signal) {
		tags = append(tags, model.PatternTag{Label: label, Polarity: polarity})
	}

	switch {
	case ms.phase == PhaseAccumulation && ms.trend != model.TrendBullish:
		add("Accumulation Phase", model.Neutral)
	case ms.phase == PhaseDistribution && ms.trend != model.TrendBearish:
		add("Distribution Phase", model.Neutral)
	}

	var activeSupply, activeDemand int
	for _, z := range supply {
		if z.Bottom <= last*1.01 {
			activeSupply++
		}
	}
	for _, z := range demand {
		if z.Top >= last*0.99 {
			activeDemand++
		}
	}
	if activeSupply > 0 {
		switch {
		case ms.trend == model.TrendBullish && ms.phase == PhaseDistribution:
			add("Bearish Supply Zone at Distribution", model.Sell)
		case ms.trend == model.TrendBearish && activeSupply >= 2:
			add("Bearish Supply Zone Confluence", model.Sell)
		}
	}
	if activeDemand > 0 {
		switch {
		case ms.trend == model.TrendBearish && ms.phase == PhaseAccumulation:
			add("Bullish Demand Zone at Accumulation", model.Buy)
		case ms.trend == model.TrendBullish && activeDemand >= 2:
			add("Bullish Demand Zone Confluence", model.Buy)
		}
	}

	switch pd.classify(last) {
	case model.ZonePremium:
		switch pd.trend {
		case model.TrendBullish:
			add("Price in Premium (Caution for Longs)", model.Neutral)
		case model.TrendBearish:
			add("Price in Premium (Favours Shorts)", model.Neutral)
		}
	case model.ZoneDiscount:
		switch pd.trend {
		case model.TrendBullish:
			add("Price in Discount (Favours Longs)", model.Neutral)
		case model.TrendBearish:
			add("Price in Discount (Caution for Shorts)", model.Neutral)
		}
	case model.ZoneEquilibrium:
		add("Price at Equilibrium", model.Neutral)
	}

	if len(impulses) > 0 && len(corrections) > 0 {
		imp := impulses[len(impulses)-1]
		cor := corrections[len(corrections)-1]
		if cor.endIndex > imp.endIndex && cor.depth <= 0.5 {
			switch {
			case !cor.up && ms.trend == model.TrendBullish:
				add("Shallow Pullback in Uptrend", model.Neutral)
			case cor.up && ms.trend == model.TrendBearish:
				add("Shallow Pullback in Downtrend", model.Neutral)
			}
		}
	}

	if n := len(ms.transitions); n >= 2 {
		prev, cur := ms.transitions[n-2].kind, ms.transitions[n-1].kind
		switch {
		case prev == LowerLow && cur == HigherHigh:
			add("Bullish Break of Structure", model.Buy)
		case prev == HigherHigh && cur == LowerLow:
			add("Bearish Break of Structure", model.Sell)
		}
	}

	return tags
}
