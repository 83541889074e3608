package backtest

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/Alias1177/fxsignal/internal/model"
	"github.com/Alias1177/fxsignal/internal/trading/fusion"
	"github.com/Alias1177/fxsignal/internal/trading/risk"
)

var start = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

func generateTestBars(n int, gen func(i int) model.Bar) []model.Bar {
	bars := make([]model.Bar, n)
	for i := range bars {
		bars[i] = gen(i)
	}
	return bars
}

// replayBars returns five flat hourly bars, an entry bar closing at 1.1 and
// the given exit bar
func replayBars(exit model.Bar) []model.Bar {
	bars := generateTestBars(6, func(i int) model.Bar {
		return model.Bar{Time: start.Add(time.Duration(i) * time.Hour), Open: 1.1, High: 1.1005, Low: 1.0995, Close: 1.1}
	})
	exit.Time = start.Add(6 * time.Hour)
	return append(bars, exit)
}

type fakeAnalyzer struct {
	latest time.Time
}

func (a *fakeAnalyzer) Analyze(ctx context.Context, symbol string, series map[model.Timeframe][]model.Bar, _ *model.SentimentReport) (model.AggregateVerdict, error) {
	if err := ctx.Err(); err != nil {
		return model.AggregateVerdict{}, err
	}
	bars := series[model.H1]
	last := bars[len(bars)-1]
	if last.Time.After(a.latest) {
		a.latest = last.Time
	}
	return model.AggregateVerdict{
		Symbol:             symbol,
		Signal:             model.Buy,
		Strength:           80,
		SuccessProbability: 80,
		LastPrice:          last.Close,
		KeyTimeframes:      []model.Timeframe{model.H1},
		Timeframes: map[model.Timeframe]model.TimeframeVerdict{
			model.H1: {Timeframe: model.H1, Signal: model.Buy, ATR: 0.001, LastPrice: last.Close},
		},
	}, nil
}

type fakeForecaster struct{}

func (fakeForecaster) Forecast(context.Context, string, map[model.Timeframe][]model.Bar) (model.Forecast, error) {
	return model.Forecast{Direction: model.Buy, Confidence: 80}, nil
}

func newEngine(analyzer Analyzer) *Engine {
	limits := risk.DefaultLimits()
	limits.MaxLot = 0.5
	instruments := risk.DefaultInstruments()
	return NewEngine(Config{
		Symbol:         "EURUSD",
		Primary:        model.H1,
		Window:         5,
		Step:           100,
		InitialBalance: 10000,
	}, analyzer, fakeForecaster{}, fusion.NewFuser(fusion.DefaultConfig(), instruments), limits, instruments)
}

func TestRun(t *testing.T) {
	tests := []struct {
		name    string
		exit    model.Bar
		profit  float64
		won     bool
		forced  bool
		exitAt  float64
		drawdwn float64
	}{
		{"target hit", model.Bar{Open: 1.1, High: 1.104, Low: 1.0995, Close: 1.1035}, 150, true, false, 1.103, 0},
		{"stop hit", model.Bar{Open: 1.1, High: 1.1005, Low: 1.098, Close: 1.0985}, -75, false, false, 1.0985, 0.75},
		{"open at end", model.Bar{Open: 1.1, High: 1.1015, Low: 1.0995, Close: 1.101}, 50, true, true, 1.101, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analyzer := &fakeAnalyzer{}
			results, err := newEngine(analyzer).Run(context.Background(), map[model.Timeframe][]model.Bar{
				model.H1: replayBars(tt.exit),
			})
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if results.Evaluations != 1 || results.Candidates != 1 || results.Rejections != 0 {
				t.Errorf("evaluations/candidates/rejections = %d/%d/%d, want 1/1/0",
					results.Evaluations, results.Candidates, results.Rejections)
			}
			if !analyzer.latest.Equal(start.Add(5 * time.Hour)) {
				t.Errorf("analyzer saw bars up to %v, want the entry bar only", analyzer.latest)
			}
			if results.TotalTrades != 1 {
				t.Fatalf("TotalTrades = %d, want 1", results.TotalTrades)
			}

			trade := results.Trades[0]
			if trade.Lot != 0.5 || trade.Direction != model.Buy {
				t.Errorf("trade = %+v, want 0.5 lot buy", trade)
			}
			if math.Abs(trade.Profit-tt.profit) > 1e-9 || trade.Won() != tt.won || trade.Forced != tt.forced {
				t.Errorf("trade = %+v, want profit %v forced %v", trade, tt.profit, tt.forced)
			}
			if math.Abs(trade.ExitPrice-tt.exitAt) > 1e-9 {
				t.Errorf("ExitPrice = %v, want %v", trade.ExitPrice, tt.exitAt)
			}
			if !trade.OpenedAt.Equal(start.Add(6 * time.Hour)) {
				t.Errorf("OpenedAt = %v, want close of the entry bar", trade.OpenedAt)
			}
			if math.Abs(results.FinalBalance-(10000+tt.profit)) > 1e-9 {
				t.Errorf("FinalBalance = %v", results.FinalBalance)
			}
			if math.Abs(results.MaxDrawdown-tt.drawdwn) > 1e-9 {
				t.Errorf("MaxDrawdown = %v, want %v", results.MaxDrawdown, tt.drawdwn)
			}
			if len(results.EquityCurve) != 2 {
				t.Errorf("EquityCurve = %v", results.EquityCurve)
			}
		})
	}
}

func TestRunInsufficientHistory(t *testing.T) {
	bars := replayBars(model.Bar{Open: 1.1, High: 1.1, Low: 1.1, Close: 1.1})[:5]
	_, err := newEngine(&fakeAnalyzer{}).Run(context.Background(), map[model.Timeframe][]model.Bar{model.H1: bars})
	if !errors.Is(err, ErrInsufficientHistory) {
		t.Errorf("Run() error = %v, want ErrInsufficientHistory", err)
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bars := replayBars(model.Bar{Open: 1.1, High: 1.1, Low: 1.1, Close: 1.1})
	_, err := newEngine(&fakeAnalyzer{}).Run(ctx, map[model.Timeframe][]model.Bar{model.H1: bars})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}

func TestWindow(t *testing.T) {
	h1 := generateTestBars(10, func(i int) model.Bar {
		return model.Bar{Time: start.Add(time.Duration(i) * time.Hour), Close: float64(i)}
	})
	h4 := generateTestBars(3, func(i int) model.Bar {
		return model.Bar{Time: start.Add(time.Duration(i*4) * time.Hour), Close: float64(i)}
	})
	series := map[model.Timeframe][]model.Bar{model.H1: h1, model.H4: h4}

	// five hours in: H1 bars 0..4 and only the first H4 bar have closed
	got := window(series, start.Add(5*time.Hour), 3)
	if len(got[model.H1]) != 3 || got[model.H1][2].Close != 4 {
		t.Errorf("H1 window = %v", got[model.H1])
	}
	if len(got[model.H4]) != 1 || got[model.H4][0].Close != 0 {
		t.Errorf("H4 window = %v", got[model.H4])
	}

	if got := window(series, start, 3); len(got) != 0 {
		t.Errorf("window before the first close = %v, want empty", got)
	}
}

func TestCalculateMetrics(t *testing.T) {
	results := &model.BacktestResults{InitialBalance: 1000, MonthlyReturns: map[string]float64{}}
	profits := []float64{100, -50, -50, 200}
	for i, p := range profits {
		results.Trades = append(results.Trades, model.BacktestTrade{
			Profit:   p,
			ClosedAt: time.Date(2024, time.Month(1+i/2), 10, 0, 0, 0, 0, time.UTC),
		})
	}
	calculateMetrics(results)

	if results.WinningTrades != 2 || results.LosingTrades != 2 || results.WinPercentage != 50 {
		t.Errorf("wins/losses = %d/%d (%.1f%%)", results.WinningTrades, results.LosingTrades, results.WinPercentage)
	}
	if results.ProfitFactor != 3 {
		t.Errorf("ProfitFactor = %v, want 3", results.ProfitFactor)
	}
	if results.AverageGain != 150 || results.AverageLoss != 50 {
		t.Errorf("average gain/loss = %v/%v", results.AverageGain, results.AverageLoss)
	}
	if results.MaxConsecutive.Losses != 2 || results.MaxConsecutive.Wins != 1 {
		t.Errorf("MaxConsecutive = %+v", results.MaxConsecutive)
	}
	// peak 1100, trough 1000
	if math.Abs(results.MaxDrawdown-100.0/1100*100) > 1e-9 {
		t.Errorf("MaxDrawdown = %v", results.MaxDrawdown)
	}
	if results.MonthlyReturns["2024-01"] != 5 || results.MonthlyReturns["2024-02"] != 15 {
		t.Errorf("MonthlyReturns = %v", results.MonthlyReturns)
	}
	if results.FinalBalance != 1200 || results.EquityGrowthPercent != 20 {
		t.Errorf("final %v growth %v", results.FinalBalance, results.EquityGrowthPercent)
	}

	out := FormatResults(results)
	for _, want := range []string{"Total trades: 4", "Profit factor: 3.00", "- 2024-02: +15.00%", "1000.00 -> 1200.00"} {
		if !strings.Contains(out, want) {
			t.Errorf("FormatResults() missing %q:\n%s", want, out)
		}
	}
}
