package detector

import (
	"math"
	"sort"

	"github.com/Alias1177/fxsignal/internal/analysis/levels"
	"github.com/Alias1177/fxsignal/internal/analysis/technical"
	"github.com/Alias1177/fxsignal/internal/model"
)

const (
	liqMinLevelBars   = 30
	liqMinBlockBars   = 20
	liqMinBreakerBars = 50
	liqMinGapBars     = 10
	liqMinSweepBars   = 100

	equalTouchTolerance = 0.001
	equalTouchLookback  = 50
	blockConfluencePct  = 0.002
	nearPct             = 0.005
)

// Liquidity detects liquidity pools, order blocks, breaker blocks and
// fair-value gaps, and scores price proximity to them.
type Liquidity struct {
	opts Options
}

// NewLiquidity creates a liquidity/order-block detector
func NewLiquidity(opts Options) *Liquidity {
	return &Liquidity{opts: opts}
}

func (d *Liquidity) Name() string { return NameLiquidity }

func (d *Liquidity) MinBars() int { return liqMinGapBars }

type liquidityPools struct {
	buySide  []model.Level // resting below swing lows
	sellSide []model.Level // resting above swing highs
}

type blockSet struct {
	bullish []model.Zone
	bearish []model.Zone
}

// Analyze implements Detector
func (d *Liquidity) Analyze(tf model.Timeframe, bars []model.Bar) model.DetectorResult {
	res := Neutral(d.Name(), tf)
	avgRange := technical.AverageRange(bars)
	last := bars[len(bars)-1].Close

	pools := findLiquidityPools(bars)
	blocks := findOrderBlocks(bars, avgRange)
	breakers := findBreakerBlocks(bars)
	gaps := findFairValueGaps(bars, avgRange)
	tags := liquidityTags(bars, avgRange, pools, blocks, gaps)

	var supports, resistances []float64
	for _, l := range pools.buySide {
		if l.Price < last {
			supports = append(supports, l.Price)
		}
	}
	for _, l := range pools.sellSide {
		if l.Price > last {
			resistances = append(resistances, l.Price)
		}
	}
	for _, b := range blocks.bullish {
		if b.Top < last {
			supports = append(supports, b.Top, b.Bottom)
		}
	}
	for _, b := range blocks.bearish {
		if b.Bottom > last {
			resistances = append(resistances, b.Top, b.Bottom)
		}
	}

	res.Supports = levels.Merge(supports, d.opts.MergeTolerance)
	res.Resistances = levels.Merge(resistances, d.opts.MergeTolerance)
	res.Levels = append(append(res.Levels, pools.buySide...), pools.sellSide...)
	res.Zones = append(res.Zones, blocks.bullish...)
	res.Zones = append(res.Zones, blocks.bearish...)
	res.Zones = append(res.Zones, breakers...)
	res.Zones = append(res.Zones, gaps.bullish...)
	res.Zones = append(res.Zones, gaps.bearish...)
	res.Patterns = tags
	res.LastPrice = last

	var s scorer
	for _, l := range pools.buySide {
		diff := relDiff(last, l.Price, last)
		switch {
		case diff > -nearPct && diff < 0.002:
			s.add(model.Buy, 2*l.Strength)
		case diff >= 0.002 && diff < 0.01:
			s.add(model.Buy, l.Strength)
		}
	}
	for _, l := range pools.sellSide {
		diff := relDiff(l.Price, last, last)
		switch {
		case diff > -nearPct && diff < 0.002:
			s.add(model.Sell, 2*l.Strength)
		case diff >= 0.002 && diff < 0.01:
			s.add(model.Sell, l.Strength)
		}
	}
	for _, b := range blocks.bullish {
		if b.Contains(last) {
			s.add(model.Buy, 3*b.Strength)
		} else if diff := relDiff(last, b.Top, last); diff > 0 && diff < nearPct {
			s.add(model.Buy, 1.5*b.Strength)
		}
	}
	for _, b := range blocks.bearish {
		if b.Contains(last) {
			s.add(model.Sell, 3*b.Strength)
		} else if diff := relDiff(b.Bottom, last, last); diff > 0 && diff < nearPct {
			s.add(model.Sell, 1.5*b.Strength)
		}
	}
	for _, g := range gaps.bullish {
		if last < g.Bottom && relDiff(g.Bottom, last, last) < nearPct {
			s.add(model.Buy, 2*g.Strength)
		} else if g.Contains(last) {
			s.add(model.Buy, g.Strength)
		}
	}
	for _, g := range gaps.bearish {
		if last > g.Top && relDiff(last, g.Top, last) < nearPct {
			s.add(model.Sell, 2*g.Strength)
		} else if g.Contains(last) {
			s.add(model.Sell, g.Strength)
		}
	}
	s.tags(tags, 2)
	s.apply(&res, 2, 0)

	return res
}

// findLiquidityPools turns swing points into liquidity levels. Strength grows
// by 0.2 for every near-equal extreme in the preceding 50 bars. The five
// strongest of each side are kept.
func findLiquidityPools(bars []model.Bar) liquidityPools {
	var pools liquidityPools
	if len(bars) < liqMinLevelBars {
		return pools
	}

	highs, lows := findSwings(bars, 5, len(bars)-5, 2)
	for _, h := range highs {
		touches := countEqual(bars, h.index, h.price, func(b model.Bar) float64 { return b.High })
		pools.sellSide = append(pools.sellSide, model.Level{
			Price:    h.price,
			Kind:     model.Resistance,
			Strength: 1 + float64(touches)*0.2,
			Origin:   "sell_side_liquidity",
			Index:    h.index,
		})
	}
	for _, l := range lows {
		touches := countEqual(bars, l.index, l.price, func(b model.Bar) float64 { return b.Low })
		pools.buySide = append(pools.buySide, model.Level{
			Price:    l.price,
			Kind:     model.Support,
			Strength: 1 + float64(touches)*0.2,
			Origin:   "buy_side_liquidity",
			Index:    l.index,
		})
	}

	pools.buySide = topLevels(pools.buySide, 5)
	pools.sellSide = topLevels(pools.sellSide, 5)
	return pools
}

func countEqual(bars []model.Bar, idx int, price float64, field func(model.Bar) float64) int {
	if price == 0 {
		return 0
	}
	count := 0
	for j := max(0, idx-equalTouchLookback); j < idx; j++ {
		if math.Abs(field(bars[j])-price)/price < equalTouchTolerance {
			count++
		}
	}
	return count
}

func topLevels(ls []model.Level, n int) []model.Level {
	sort.SliceStable(ls, func(i, j int) bool { return ls[i].Strength > ls[j].Strength })
	if len(ls) > n {
		ls = ls[:n]
	}
	return ls
}

func topZones(zs []model.Zone, n int) []model.Zone {
	sort.SliceStable(zs, func(i, j int) bool { return zs[i].Strength > zs[j].Strength })
	if n > 0 && len(zs) > n {
		zs = zs[:n]
	}
	return zs
}

// findOrderBlocks locates the last opposite-coloured bar (within three bars)
// before a bar whose range exceeds twice the average range. A bearish bar
// before a bullish expansion is a bullish block and vice versa.
func findOrderBlocks(bars []model.Bar, avgRange float64) blockSet {
	var set blockSet
	if len(bars) < liqMinBlockBars || avgRange == 0 {
		return set
	}

	threshold := 2 * avgRange
	for i := 3; i < len(bars)-1; i++ {
		move := bars[i]
		if move.Range() <= threshold {
			continue
		}
		strength := move.Range() / avgRange

		switch {
		case move.IsBullish():
			for j := i - 3; j < i; j++ {
				if bars[j].IsBearish() && bars[j].Low < move.Low {
					set.bullish = append(set.bullish, model.NewZone(bars[j].Open, bars[j].Close, model.ZoneBullishBlock, strength, j))
					break
				}
			}
		case move.IsBearish():
			for j := i - 3; j < i; j++ {
				if bars[j].IsBullish() && bars[j].High > move.High {
					set.bearish = append(set.bearish, model.NewZone(bars[j].Close, bars[j].Open, model.ZoneBearishBlock, strength, j))
					break
				}
			}
		}
	}

	set.bullish = topZones(set.bullish, 3)
	set.bearish = topZones(set.bearish, 3)
	return set
}

// findBreakerBlocks marks the first bullish bar within 20 bars of a lower
// high and the first bearish bar within 20 bars of a higher low
func findBreakerBlocks(bars []model.Bar) []model.Zone {
	if len(bars) < liqMinBreakerBars {
		return nil
	}

	var bullish, bearish []model.Zone
	highs, lows := findSwings(bars, 5, len(bars)-5, 2)

	for i := 1; i < len(highs); i++ {
		prev, cur := highs[i-1], highs[i]
		if cur.price >= prev.price {
			continue
		}
		end := min(cur.index+20, len(bars)-1)
		for j := cur.index; j < end; j++ {
			if bars[j].IsBullish() {
				strength := 1 + (prev.price-cur.price)/prev.price
				bullish = append(bullish, model.NewZone(bars[j].Close, bars[j].Open, model.ZoneBullishBreak, strength, j))
				break
			}
		}
	}

	for i := 1; i < len(lows); i++ {
		prev, cur := lows[i-1], lows[i]
		if cur.price <= prev.price {
			continue
		}
		end := min(cur.index+20, len(bars)-1)
		for j := cur.index; j < end; j++ {
			if bars[j].IsBearish() {
				strength := 1 + (cur.price-prev.price)/prev.price
				bearish = append(bearish, model.NewZone(bars[j].Open, bars[j].Close, model.ZoneBearishBreak, strength, j))
				break
			}
		}
	}

	return append(topZones(bullish, 0), topZones(bearish, 0)...)
}

type gapSet struct {
	bullish []model.Zone
	bearish []model.Zone
}

// findFairValueGaps finds three-bar gaps larger than 0.3 average ranges
func findFairValueGaps(bars []model.Bar, avgRange float64) gapSet {
	var set gapSet
	if len(bars) < liqMinGapBars || avgRange == 0 {
		return set
	}

	minGap := 0.3 * avgRange
	for i := 1; i < len(bars)-1; i++ {
		before, after := bars[i-1], bars[i+1]
		if before.High < after.Low {
			if size := after.Low - before.High; size > minGap {
				set.bullish = append(set.bullish, model.NewZone(after.Low, before.High, model.ZoneBullishGap, size/avgRange, i))
			}
		}
		if before.Low > after.High {
			if size := before.Low - after.High; size > minGap {
				set.bearish = append(set.bearish, model.NewZone(before.Low, after.High, model.ZoneBearishGap, size/avgRange, i))
			}
		}
	}

	set.bullish = topZones(set.bullish, 3)
	set.bearish = topZones(set.bearish, 3)
	return set
}

func liquidityTags(bars []model.Bar, avgRange float64, pools liquidityPools, blocks blockSet, gaps gapSet) []model.PatternTag {
	var tags []model.PatternTag
	last := bars[len(bars)-1].Close

	if len(bars) > liqMinSweepBars {
		var recent []float64
		for _, l := range pools.buySide {
			if l.Index > len(bars)-60 {
				recent = append(recent, l.Price)
			}
		}
		if len(recent) >= 2 {
			sort.Float64s(recent)
			spacing := math.Inf(1)
			for i := 1; i < len(recent); i++ {
				spacing = math.Min(spacing, recent[i]-recent[i-1])
			}
			if spacing < 0.5*avgRange {
				tags = append(tags, model.PatternTag{Label: "Liquidity Sweep (Buy Side)", Polarity: model.Neutral})
			}
		}
	}

	if len(blocks.bullish) >= 2 {
		top, bottom := blocks.bullish[0].Top, blocks.bullish[0].Bottom
		for _, b := range blocks.bullish[1:] {
			top = math.Max(top, b.Top)
			bottom = math.Min(bottom, b.Bottom)
		}
		if top-bottom < 2*avgRange {
			tags = append(tags, model.PatternTag{Label: "Bullish Internal Price Delivery Area", Polarity: model.Buy})
		}
	}

	if anyOverlap(gaps.bullish, blocks.bullish) {
		tags = append(tags, model.PatternTag{Label: "Bullish Order Block with Fair Value Gap", Polarity: model.Buy})
	}
	if anyOverlap(gaps.bearish, blocks.bearish) {
		tags = append(tags, model.PatternTag{Label: "Bearish Order Block with Fair Value Gap", Polarity: model.Sell})
	}

	if blockAtLevel(pools.buySide, blocks.bullish, func(z model.Zone) float64 { return z.Bottom }) {
		tags = append(tags, model.PatternTag{Label: "Bullish Order Block at Buy Side Liquidity", Polarity: model.Buy})
	}
	if blockAtLevel(pools.sellSide, blocks.bearish, func(z model.Zone) float64 { return z.Top }) {
		tags = append(tags, model.PatternTag{Label: "Bearish Order Block at Sell Side Liquidity", Polarity: model.Sell})
	}

	for _, g := range gaps.bullish {
		if last < g.Bottom && relDiff(g.Bottom, last, last) < nearPct {
			tags = append(tags, model.PatternTag{Label: "Price Approaching Bullish Fair Value Gap", Polarity: model.Buy})
			break
		}
	}
	for _, g := range gaps.bearish {
		if last > g.Top && relDiff(last, g.Top, last) < nearPct {
			tags = append(tags, model.PatternTag{Label: "Price Approaching Bearish Fair Value Gap", Polarity: model.Sell})
			break
		}
	}

	return tags
}

func anyOverlap(a, b []model.Zone) bool {
	for _, x := range a {
		for _, y := range b {
			if x.Overlaps(y) {
				return true
			}
		}
	}
	return false
}

func blockAtLevel(ls []model.Level, zs []model.Zone, edge func(model.Zone) float64) bool {
	for _, l := range ls {
		if l.Price == 0 {
			continue
		}
		for _, z := range zs {
			if math.Abs(l.Price-edge(z))/l.Price < blockConfluencePct {
				return true
			}
		}
	}
	return false
}
