package market

import (
	"testing"
	"time"

	"github.com/Alias1177/fxsignal/internal/model"
)

func trendBars(n int, step float64) []model.Bar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]model.Bar, n)
	for i := range bars {
		c := 1.1 + step*float64(i)
		o := c - step/2
		bars[i] = model.Bar{
			Time:  start.Add(time.Duration(i) * time.Hour),
			Open:  o,
			High:  max(o, c) + 0.0002,
			Low:   min(o, c) - 0.0002,
			Close: c,
		}
	}
	return bars
}

func flatBars(n int) []model.Bar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]model.Bar, n)
	for i := range bars {
		bars[i] = model.Bar{
			Time:  start.Add(time.Duration(i) * time.Hour),
			Open:  1.0,
			High:  1.0005,
			Low:   0.9995,
			Close: 1.0,
		}
	}
	return bars
}

func TestClassifyRegime(t *testing.T) {
	tests := []struct {
		name      string
		bars      []model.Bar
		kind      RegimeKind
		direction model.Signal
	}{
		{"too short", trendBars(20, 0.001), RegimeUnknown, model.Neutral},
		{"uptrend", trendBars(80, 0.001), RegimeTrending, model.Buy},
		{"downtrend", trendBars(80, -0.001), RegimeTrending, model.Sell},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyRegime(tt.bars)
			if got.Kind != tt.kind {
				t.Errorf("kind = %s, want %s", got.Kind, tt.kind)
			}
			if got.Direction != tt.direction {
				t.Errorf("direction = %s, want %s", got.Direction, tt.direction)
			}
			if got.Strength < 0 || got.Strength > 1 {
				t.Errorf("strength %v out of range", got.Strength)
			}
		})
	}
}

func TestTrendAlignment(t *testing.T) {
	up := trendBars(60, 0.001)
	down := trendBars(60, -0.001)

	dir, strength := TrendAlignment(map[model.Timeframe][]model.Bar{model.H1: up})
	if dir != model.Buy || strength != 0.5 {
		t.Errorf("single H1 uptrend = %s %.2f, want buy 0.50", dir, strength)
	}

	dir, strength = TrendAlignment(map[model.Timeframe][]model.Bar{model.M15: down, model.H1: down})
	if dir != model.Sell || strength != 1 {
		t.Errorf("aligned downtrend = %s %.2f, want sell 1.00", dir, strength)
	}

	dir, _ = TrendAlignment(map[model.Timeframe][]model.Bar{model.H1: up, model.H4: down})
	if dir != model.Neutral {
		t.Errorf("opposing trends = %s, want neutral", dir)
	}

	dir, strength = TrendAlignment(nil)
	if dir != model.Neutral || strength != 0 {
		t.Errorf("empty = %s %.2f", dir, strength)
	}
}

func TestDetectAnomaly(t *testing.T) {
	if a := DetectAnomaly(flatBars(10)); a.Detected {
		t.Fatal("short series must not be flagged")
	}
	if a := DetectAnomaly(flatBars(50)); a.Detected {
		t.Fatalf("flat series flagged: %+v", a)
	}

	bars := flatBars(50)
	bars[49] = model.Bar{Time: bars[49].Time, Open: 1.0, High: 1.0105, Low: 0.9995, Close: 1.01}
	a := DetectAnomaly(bars)
	if !a.Detected {
		t.Fatal("spike not detected")
	}
	if a.Kinds[0] != AnomalyPriceSpike {
		t.Errorf("first kind = %s, want %s", a.Kinds[0], AnomalyPriceSpike)
	}
	if a.Score != 1 {
		t.Errorf("score = %v, want 1", a.Score)
	}

	gapped := flatBars(50)
	gapped[49] = model.Bar{Time: gapped[49].Time, Open: 1.0015, High: 1.0025, Low: 1.0015, Close: 1.002}
	a = DetectAnomaly(gapped)
	if !a.Detected {
		t.Fatal("gap not detected")
	}
	found := false
	for _, k := range a.Kinds {
		if k == AnomalyGap {
			found = true
		}
	}
	if !found {
		t.Errorf("kinds %v missing gap", a.Kinds)
	}
}
