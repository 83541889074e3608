package detector

import (
	"math"
	"sort"

	"github.com/Alias1177/fxsignal/internal/analysis/levels"
	"github.com/Alias1177/fxsignal/internal/analysis/pattern"
	"github.com/Alias1177/fxsignal/internal/analysis/technical"
	"github.com/Alias1177/fxsignal/internal/model"
)

const (
	paMinBars         = 10
	paMinTrendBars    = 200
	paMinLevelBars    = 50
	paMinMomentumBars = 20
	paLevelsPerSide   = 7
	paSwingReach      = 5
	paClusterBins     = 100
	paATRPeriod       = 14
	pivotProximityPct = 0.005
)

type trendReading struct {
	trend       model.Trend
	strength    float64
	ma20Slope   float64
	higherHighs bool
	higherLows  bool
	lowerHighs  bool
	lowerLows   bool
	crossover   string
}

type momentumSignal struct {
	indicator string
	side      model.Signal
	strength  float64
}

// PriceAction combines moving-average trend, candle formations, swing and
// cluster levels, pivots and oscillators into one verdict.
type PriceAction struct {
	opts Options
}

// NewPriceAction creates a classical price-action detector
func NewPriceAction(opts Options) *PriceAction {
	return &PriceAction{opts: opts}
}

func (d *PriceAction) Name() string { return NamePriceAction }

func (d *PriceAction) MinBars() int { return paMinBars }

// Analyze implements Detector
func (d *PriceAction) Analyze(tf model.Timeframe, bars []model.Bar) model.DetectorResult {
	res := Neutral(d.Name(), tf)
	n := len(bars)
	last := bars[n-1].Close

	tr := analyzeTrend(bars)
	candles := pattern.IdentifyCandlePatterns(bars)
	supports, resistances := d.supportResistance(bars)
	pivots := technical.CalculatePivots(bars[n-1])
	momentum := momentumSignals(bars)
	chart := pattern.ChartPatterns(bars, supports, resistances, tr.trend)

	var s scorer
	s.add(tr.trend.Signal(), tr.strength/20)
	for _, c := range candles {
		s.add(c.Polarity, c.Strength/20)
	}
	for _, m := range momentum {
		s.add(m.side, m.strength/20)
	}
	s.tags(chart, 2.5)

	for i, lvl := range []float64{pivots.Classic.S1, pivots.Classic.S2, pivots.Classic.S3} {
		if diff := relDiff(last, lvl, last); diff > 0 && diff < pivotProximityPct {
			s.add(model.Buy, float64(3-i)*0.5)
		}
	}
	for i, lvl := range []float64{pivots.Classic.R1, pivots.Classic.R2, pivots.Classic.R3} {
		if diff := relDiff(lvl, last, last); diff > 0 && diff < pivotProximityPct {
			s.add(model.Sell, float64(3-i)*0.5)
		}
	}
	pivotSet := pivotLevels(pivots)
	below, above := pivotConfluence(pivotSet, last)
	if below >= 2 {
		s.add(model.Buy, 0.5)
	}
	if above >= 2 {
		s.add(model.Sell, 0.5)
	}

	patterns := make([]model.PatternTag, 0, len(chart)+len(candles)+1)
	patterns = append(patterns, chart...)
	for _, c := range candles {
		patterns = append(patterns, model.PatternTag{Label: c.Name, Polarity: c.Polarity})
	}
	switch tr.crossover {
	case "golden_cross":
		patterns = append(patterns, model.PatternTag{Label: "Golden Cross", Polarity: model.Neutral})
	case "death_cross":
		patterns = append(patterns, model.PatternTag{Label: "Death Cross", Polarity: model.Neutral})
	}

	res.Supports = supports
	res.Resistances = resistances
	res.Patterns = patterns
	res.Trend = tr.trend
	res.TrendStrength = tr.strength
	res.ATR = technical.ATR(bars, paATRPeriod)
	res.LastPrice = last
	for _, p := range supports {
		res.Levels = append(res.Levels, model.Level{Price: p, Kind: model.Support, Strength: 1, Origin: "price_action"})
	}
	for _, p := range resistances {
		res.Levels = append(res.Levels, model.Level{Price: p, Kind: model.Resistance, Strength: 1, Origin: "price_action"})
	}
	res.Levels = append(res.Levels, pivotSet...)

	s.apply(&res, 3, 5)
	return res
}

// pivotLevels flattens the four pivot families into levels. The central
// pivot is left out.
func pivotLevels(p technical.Pivots) []model.Level {
	var out []model.Level
	add := func(origin string, set technical.PivotSet) {
		for _, v := range []float64{set.S1, set.S2, set.S3, set.S4} {
			if v != 0 {
				out = append(out, model.Level{Price: v, Kind: model.Support, Strength: 0.5, Origin: origin})
			}
		}
		for _, v := range []float64{set.R1, set.R2, set.R3, set.R4} {
			if v != 0 {
				out = append(out, model.Level{Price: v, Kind: model.Resistance, Strength: 0.5, Origin: origin})
			}
		}
	}
	add("pivot_classic", p.Classic)
	add("pivot_fibonacci", p.Fibonacci)
	add("pivot_woodie", p.Woodie)
	add("pivot_camarilla", p.Camarilla)
	return out
}

// pivotConfluence counts the pivot families with a support just below price
// and a resistance just above it
func pivotConfluence(ls []model.Level, last float64) (below, above int) {
	seenBelow := map[string]bool{}
	seenAbove := map[string]bool{}
	for _, l := range ls {
		switch l.Kind {
		case model.Support:
			if diff := relDiff(last, l.Price, last); diff > 0 && diff < pivotProximityPct && !seenBelow[l.Origin] {
				seenBelow[l.Origin] = true
				below++
			}
		case model.Resistance:
			if diff := relDiff(l.Price, last, last); diff > 0 && diff < pivotProximityPct && !seenAbove[l.Origin] {
				seenAbove[l.Origin] = true
				above++
			}
		}
	}
	return below, above
}

// analyzeTrend grades the trend from close against MA20/MA50, the MA20
// slope and sampled swing highs and lows
func analyzeTrend(bars []model.Bar) trendReading {
	tr := trendReading{trend: model.TrendSideways}
	n := len(bars)
	if n < paMinTrendBars {
		return tr
	}

	ma20 := technical.SMA(bars, 20)
	ma50 := technical.SMA(bars, 50)
	ma200 := technical.SMA(bars, 200)
	tr.ma20Slope = ma20[n-1] - ma20[n-10]

	switch {
	case ma20[n-2] <= ma50[n-2] && ma20[n-1] > ma50[n-1]:
		tr.crossover = "golden_cross"
	case ma20[n-2] >= ma50[n-2] && ma20[n-1] < ma50[n-1]:
		tr.crossover = "death_cross"
	}

	swingHighs, swingLows := sampleSwings(bars)
	if len(swingHighs) >= 2 {
		tr.higherHighs = swingHighs[0] > swingHighs[len(swingHighs)-1]
		tr.lowerHighs = swingHighs[0] < swingHighs[len(swingHighs)-1]
	}
	if len(swingLows) >= 2 {
		tr.higherLows = swingLows[0] > swingLows[len(swingLows)-1]
		tr.lowerLows = swingLows[0] < swingLows[len(swingLows)-1]
	}

	last := bars[n-1].Close
	up, down := tr.ma20Slope > 0, tr.ma20Slope < 0
	switch {
	case last > ma20[n-1] && ma20[n-1] > ma50[n-1] && tr.higherHighs && tr.higherLows:
		tr.trend, tr.strength = model.TrendBullish, 80
	case last > ma20[n-1] && up:
		tr.trend, tr.strength = model.TrendBullish, 60
	case up && tr.higherLows:
		tr.trend, tr.strength = model.TrendBullish, 40
	case last < ma20[n-1] && ma20[n-1] < ma50[n-1] && tr.lowerHighs && tr.lowerLows:
		tr.trend, tr.strength = model.TrendBearish, 80
	case last < ma20[n-1] && down:
		tr.trend, tr.strength = model.TrendBearish, 60
	case down && tr.lowerHighs:
		tr.trend, tr.strength = model.TrendBearish, 40
	default:
		tr.trend, tr.strength = model.TrendSideways, 20
	}

	stackedUp := ma20[n-1] > ma50[n-1] && ma50[n-1] > ma200[n-1]
	stackedDown := ma20[n-1] < ma50[n-1] && ma50[n-1] < ma200[n-1]
	if (tr.trend == model.TrendBullish && stackedUp) || (tr.trend == model.TrendBearish && stackedDown) {
		tr.strength = math.Min(100, tr.strength+20)
	}
	return tr
}

// sampleSwings walks back from the end in steps of five bars and keeps up to
// three bars that are the extreme of their trailing five-bar window. The most
// recent sample comes first.
func sampleSwings(bars []model.Bar) (highs, lows []float64) {
	n := len(bars)
	for i := 5; i < n-5; i += 5 {
		idx := n - i
		if idx < 4 {
			break
		}
		hi, lo := bars[idx].High, bars[idx].Low
		for j := idx - 4; j < idx; j++ {
			hi = math.Max(hi, bars[j].High)
			lo = math.Min(lo, bars[j].Low)
		}
		if len(highs) < 3 && hi == bars[idx].High {
			highs = append(highs, bars[idx].High)
		}
		if len(lows) < 3 && lo == bars[idx].Low {
			lows = append(lows, bars[idx].Low)
		}
		if len(highs) >= 3 && len(lows) >= 3 {
			break
		}
	}
	return highs, lows
}

// supportResistance collects swing extremes, histogram clusters and round
// numbers, merges them and keeps the seven nearest on each side of price
func (d *PriceAction) supportResistance(bars []model.Bar) (supports, resistances []float64) {
	if len(bars) < paMinLevelBars {
		return []float64{}, []float64{}
	}
	last := bars[len(bars)-1].Close

	highs, lows := findSwings(bars, 10, len(bars)-10, paSwingReach)
	for _, h := range highs {
		resistances = append(resistances, h.price)
	}
	for _, l := range lows {
		supports = append(supports, l.price)
	}

	for _, c := range priceClusters(bars) {
		if c < last {
			supports = append(supports, c)
		} else {
			resistances = append(resistances, c)
		}
	}

	for _, r := range roundNumbers(last) {
		if r < last {
			supports = append(supports, r)
		} else {
			resistances = append(resistances, r)
		}
	}

	supports = levels.Merge(supports, d.opts.MergeTolerance)
	resistances = levels.Merge(resistances, d.opts.MergeTolerance)

	sort.Sort(sort.Reverse(sort.Float64Slice(supports)))
	if len(supports) > paLevelsPerSide {
		supports = supports[:paLevelsPerSide]
	}
	if len(resistances) > paLevelsPerSide {
		resistances = resistances[:paLevelsPerSide]
	}
	return supports, resistances
}

// priceClusters builds a 100-bin histogram of all highs and lows and returns
// the centres of bins whose count exceeds the 90th percentile of counts
func priceClusters(bars []model.Bar) []float64 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, b := range bars {
		lo = math.Min(lo, b.Low)
		hi = math.Max(hi, b.High)
	}
	if !(hi > lo) {
		return nil
	}

	width := (hi - lo) / paClusterBins
	counts := make([]float64, paClusterBins)
	bin := func(p float64) int {
		i := int((p - lo) / width)
		if i >= paClusterBins {
			i = paClusterBins - 1
		}
		if i < 0 {
			i = 0
		}
		return i
	}
	for _, b := range bars {
		counts[bin(b.High)]++
		counts[bin(b.Low)]++
	}

	threshold := percentile(counts, 90)
	var out []float64
	for i, c := range counts {
		if c > threshold {
			out = append(out, lo+width*(float64(i)+0.5))
		}
	}
	return out
}

// percentile uses linear interpolation between closest ranks
func percentile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	pos := q / 100 * float64(len(sorted)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	frac := pos - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*frac
}

// roundNumbers returns the psychological levels within 10% of price. The step
// is a twentieth of the price's order of magnitude, so 1.0850 yields the
// 0.05 grid and 2350 yields the 50 grid.
func roundNumbers(price float64) []float64 {
	if !(price > 0) || !finite(price) {
		return nil
	}
	step := math.Pow(10, math.Floor(math.Log10(price))) / 20
	from := math.Ceil(price * 0.9 / step)
	to := math.Floor(price * 1.1 / step)

	var out []float64
	for m := from; m <= to; m++ {
		out = append(out, m*step)
	}
	return out
}

// momentumSignals reads RSI(14), fast stochastic 14/3 and CCI(20)
func momentumSignals(bars []model.Bar) []momentumSignal {
	if len(bars) < paMinMomentumBars {
		return nil
	}

	var out []momentumSignal
	if rsi, ok := technical.RSI(bars, 14); ok {
		switch {
		case rsi < 30:
			out = append(out, momentumSignal{indicator: "RSI", side: model.Buy, strength: 70})
		case rsi > 70:
			out = append(out, momentumSignal{indicator: "RSI", side: model.Sell, strength: 70})
		}
	}

	if st, ok := technical.Stochastic(bars, 14, 3); ok {
		switch {
		case st.K < 20 && st.D < 20:
			out = append(out, momentumSignal{indicator: "Stochastic", side: model.Buy, strength: 60})
		case st.K > 80 && st.D > 80:
			out = append(out, momentumSignal{indicator: "Stochastic", side: model.Sell, strength: 60})
		}
		switch {
		case st.PrevK < st.PrevD && st.K > st.D:
			out = append(out, momentumSignal{indicator: "Stochastic Crossover", side: model.Buy, strength: 50})
		case st.PrevK > st.PrevD && st.K < st.D:
			out = append(out, momentumSignal{indicator: "Stochastic Crossover", side: model.Sell, strength: 50})
		}
	}

	if cci, ok := technical.CCI(bars, 20); ok {
		switch {
		case cci < -100:
			out = append(out, momentumSignal{indicator: "CCI", side: model.Buy, strength: 60})
		case cci > 100:
			out = append(out, momentumSignal{indicator: "CCI", side: model.Sell, strength: 60})
		}
	}
	return out
}
