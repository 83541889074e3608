package prediction

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Alias1177/fxsignal/internal/model"
)

func generateTestBars(n int, generator func(int) model.Bar) []model.Bar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]model.Bar, n)
	for i := range bars {
		bars[i] = generator(i)
		bars[i].Time = start.Add(time.Duration(i) * time.Hour)
	}
	return bars
}

func trend(step float64) func(int) model.Bar {
	return func(i int) model.Bar {
		c := 1.1 + step*float64(i)
		o := c - step/2
		return model.Bar{Open: o, High: max(o, c) + 0.0002, Low: min(o, c) - 0.0002, Close: c}
	}
}

func TestPredict(t *testing.T) {
	tests := []struct {
		name string
		step float64
		want model.Signal
	}{
		{"uptrend", 0.001, model.Buy},
		{"downtrend", -0.001, model.Sell},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bars := generateTestBars(80, trend(tt.step))
			got := Predict(bars, map[model.Timeframe][]model.Bar{model.H1: bars})
			if got.Direction != tt.want {
				t.Fatalf("direction = %s, want %s", got.Direction, tt.want)
			}
			if got.Confidence < 40 || got.Confidence > 60 {
				t.Errorf("confidence = %.1f, want medium band 40..60", got.Confidence)
			}
			if len(got.Factors) == 0 {
				t.Error("expected explanation factors")
			}
		})
	}
}

func TestPredictShortSeries(t *testing.T) {
	got := Predict(generateTestBars(10, trend(0.001)), nil)
	if got.Direction != model.Neutral || got.Confidence != 0 {
		t.Errorf("short series = %+v, want neutral 0", got)
	}
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		net  float64
		want float64
	}{
		{0, 0},
		{1.5, 30},
		{2, 40},
		{-3, 60},
		{10, 100},
	}
	for _, tt := range tests {
		if got := Confidence(tt.net); got != tt.want {
			t.Errorf("Confidence(%v) = %v, want %v", tt.net, got, tt.want)
		}
	}
}

func TestHeuristicForecast(t *testing.T) {
	h := NewHeuristic(model.H1)
	bars := generateTestBars(80, trend(0.001))

	if _, err := h.Forecast(context.Background(), "EURUSD", map[model.Timeframe][]model.Bar{model.H4: bars}); !errors.Is(err, ErrInsufficientBars) {
		t.Errorf("missing primary: err = %v, want ErrInsufficientBars", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := h.Forecast(ctx, "EURUSD", map[model.Timeframe][]model.Bar{model.H1: bars}); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled: err = %v, want context.Canceled", err)
	}

	f, err := h.Forecast(context.Background(), "EURUSD", map[model.Timeframe][]model.Bar{model.H1: bars, model.H4: bars})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Direction != model.Buy {
		t.Errorf("direction = %s, want buy", f.Direction)
	}
}

func TestSwingExtremes(t *testing.T) {
	// peaks every 6 bars
	bars := generateTestBars(40, func(i int) model.Bar {
		phase := float64(i % 6)
		if phase > 3 {
			phase = 6 - phase
		}
		c := 1.1 + phase*0.001
		return model.Bar{Open: c, High: c + 0.0002, Low: c - 0.0002, Close: c}
	})

	lows, highs := swingExtremes(bars, 50)
	if len(highs) == 0 || len(lows) == 0 {
		t.Fatalf("lows=%v highs=%v, want both sides", lows, highs)
	}
	for _, h := range highs {
		if h < 1.1031 {
			t.Errorf("swing high %v below the peak", h)
		}
	}
}
