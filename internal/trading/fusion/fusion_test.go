package fusion

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/Alias1177/fxsignal/internal/model"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func pipTable(symbol string) float64 {
	if strings.HasSuffix(symbol, "JPY") {
		return 0.01
	}
	return 0.0001
}

func verdict(symbol string, signal model.Signal, strength, probability, price, atr, support, resistance float64) model.AggregateVerdict {
	return model.AggregateVerdict{
		Symbol:             symbol,
		Signal:             signal,
		Strength:           strength,
		SuccessProbability: probability,
		LastPrice:          price,
		NearestSupport:     support,
		NearestResistance:  resistance,
		KeyTimeframes:      []model.Timeframe{model.H1},
		Timeframes: map[model.Timeframe]model.TimeframeVerdict{
			model.H1: {Timeframe: model.H1, Signal: signal, LastPrice: price, ATR: atr},
		},
	}
}

func TestBlend(t *testing.T) {
	f := NewFuser(DefaultConfig(), PipSizeFunc(pipTable))

	tests := []struct {
		name        string
		verdict     model.AggregateVerdict
		forecast    model.Forecast
		signal      model.Signal
		strength    float64
		probability float64
	}{
		{
			name:        "agreeing forecast adds",
			verdict:     verdict("EURUSD", model.Buy, 80, 70, 1.1, 0.001, 0, 0),
			forecast:    model.Forecast{Direction: model.Buy, Confidence: 60},
			signal:      model.Buy,
			strength:    74,
			probability: 67,
		},
		{
			name:        "opposing forecast within lead",
			verdict:     verdict("EURUSD", model.Buy, 50, 60, 1.1, 0.001, 0, 0),
			forecast:    model.Forecast{Direction: model.Sell, Confidence: 90},
			signal:      model.Neutral,
			strength:    17.5,
			probability: 0,
		},
		{
			name:        "opposing forecast outside lead",
			verdict:     verdict("EURUSD", model.Buy, 60, 60, 1.1, 0.001, 0, 0),
			forecast:    model.Forecast{Direction: model.Sell, Confidence: 100},
			signal:      model.Buy,
			strength:    42,
			probability: 72,
		},
		{
			name:        "forecast alone",
			verdict:     verdict("EURUSD", model.Neutral, 0, 0, 1.1, 0.001, 0, 0),
			forecast:    model.Forecast{Direction: model.Sell, Confidence: 100},
			signal:      model.Sell,
			strength:    30,
			probability: 30,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := f.Blend(tt.verdict, tt.forecast)
			if got.Signal != tt.signal {
				t.Errorf("signal = %s, want %s", got.Signal, tt.signal)
			}
			if !almostEqual(got.Strength, tt.strength) {
				t.Errorf("strength = %v, want %v", got.Strength, tt.strength)
			}
			if !almostEqual(got.Probability, tt.probability) {
				t.Errorf("probability = %v, want %v", got.Probability, tt.probability)
			}
		})
	}
}

func TestFuse(t *testing.T) {
	f := NewFuser(DefaultConfig(), PipSizeFunc(pipTable))
	buy := model.Forecast{Direction: model.Buy, Confidence: 60}
	sell := model.Forecast{Direction: model.Sell, Confidence: 60}

	tests := []struct {
		name     string
		verdict  model.AggregateVerdict
		forecast model.Forecast
		err      error
		stop     float64
		target   float64
		rr       float64
	}{
		{
			name:     "buy anchored to nearby levels",
			verdict:  verdict("EURUSD", model.Buy, 80, 70, 1.1, 0.001, 1.099, 1.103),
			forecast: buy,
			stop:     1.0989,
			target:   1.103,
			rr:       0.003 / 0.0011,
		},
		{
			name:     "sell on fixed ATR multiples",
			verdict:  verdict("EURUSD", model.Sell, 80, 70, 1.1, 0.001, 0, 0),
			forecast: sell,
			stop:     1.1015,
			target:   1.097,
			rr:       2,
		},
		{
			name:     "sell levels too far to anchor",
			verdict:  verdict("EURUSD", model.Sell, 80, 70, 1.1, 0.001, 1.09, 1.11),
			forecast: sell,
			stop:     1.1015,
			target:   1.097,
			rr:       2,
		},
		{
			name:     "no ATR falls back to pips",
			verdict:  verdict("USDJPY", model.Buy, 80, 70, 150, 0, 0, 0),
			forecast: buy,
			stop:     149.5,
			target:   151,
			rr:       2,
		},
		{
			name:     "resistance too close",
			verdict:  verdict("EURUSD", model.Buy, 80, 70, 1.1, 0.001, 0, 1.1005),
			forecast: buy,
			err:      ErrPoorRiskReward,
			stop:     1.0985,
			target:   1.101,
			rr:       0.001 / 0.0015,
		},
		{
			name:     "neutral",
			verdict:  verdict("EURUSD", model.Neutral, 30, 30, 1.1, 0.001, 0, 0),
			forecast: model.Forecast{Direction: model.Neutral},
			err:      ErrNoDirection,
		},
		{
			name:     "weak",
			verdict:  verdict("EURUSD", model.Buy, 50, 50, 1.1, 0.001, 0, 0),
			forecast: model.Forecast{Direction: model.Neutral},
			err:      ErrWeakSignal,
		},
		{
			name:     "no price",
			verdict:  verdict("EURUSD", model.Buy, 80, 70, 0, 0.001, 0, 0),
			forecast: buy,
			err:      ErrNoPrice,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.Fuse(tt.verdict, tt.forecast)
			if !errors.Is(err, tt.err) {
				t.Fatalf("err = %v, want %v", err, tt.err)
			}
			if got.Status != model.StatusPending {
				t.Errorf("status = %s, want pending", got.Status)
			}
			if tt.stop == 0 {
				return
			}
			if !almostEqual(got.StopLoss, tt.stop) {
				t.Errorf("stop = %v, want %v", got.StopLoss, tt.stop)
			}
			if !almostEqual(got.TakeProfit, tt.target) {
				t.Errorf("target = %v, want %v", got.TakeProfit, tt.target)
			}
			if !almostEqual(got.RiskReward, tt.rr) {
				t.Errorf("rr = %v, want %v", got.RiskReward, tt.rr)
			}
		})
	}
}

func TestFuseMinimumDistances(t *testing.T) {
	f := NewFuser(DefaultConfig(), nil)
	// support a hair under entry would put the stop inside 0.5 ATR
	v := verdict("EURUSD", model.Buy, 90, 80, 1.1, 0.002, 1.09995, 0)
	got, err := f.Fuse(v, model.Forecast{Direction: model.Buy, Confidence: 80})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d := got.EntryPrice - got.StopLoss; d < 0.001-1e-12 {
		t.Errorf("stop distance %v below 0.5 ATR", d)
	}
	if d := got.TakeProfit - got.EntryPrice; !almostEqual(d, 0.006) {
		t.Errorf("target distance = %v, want 3 ATR", d)
	}
}

func TestEntryPriceFollowsPriceTimeframes(t *testing.T) {
	v := model.AggregateVerdict{
		LastPrice: 1.2,
		Timeframes: map[model.Timeframe]model.TimeframeVerdict{
			model.D1: {LastPrice: 1.098},
			model.H4: {LastPrice: 1.099},
			model.M5: {LastPrice: 1.1002},
		},
	}
	if got := entryPrice(v); got != 1.1002 {
		t.Errorf("entryPrice() = %v, want the M5 price 1.1002", got)
	}
	v.Timeframes = nil
	if got := entryPrice(v); got != 1.2 {
		t.Errorf("entryPrice() without timeframes = %v, want 1.2", got)
	}
}

func TestRiskReward(t *testing.T) {
	if got := RiskReward(1.1, 1.1, 1.2); got != 0 {
		t.Errorf("zero risk = %v, want 0", got)
	}
	if got := RiskReward(1.0, 0.9, 1.2); !almostEqual(got, 2) {
		t.Errorf("rr = %v, want 2", got)
	}
}
