// Package backtest replays historical bars through the signal pipeline and a
// paper account to measure how the fused signals would have traded.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/fxsignal/internal/analysis/prediction"
	"github.com/Alias1177/fxsignal/internal/broker"
	"github.com/Alias1177/fxsignal/internal/model"
	"github.com/Alias1177/fxsignal/internal/trading/fusion"
	"github.com/Alias1177/fxsignal/internal/trading/risk"
)

// ErrInsufficientHistory is returned when the primary series is shorter than
// one window plus a bar to trade on
var ErrInsufficientHistory = errors.New("insufficient history for backtest")

// Analyzer turns a symbol's series into a cross-timeframe verdict
type Analyzer interface {
	Analyze(ctx context.Context, symbol string, series map[model.Timeframe][]model.Bar, sentiment *model.SentimentReport) (model.AggregateVerdict, error)
}

// Config controls the replay
type Config struct {
	Symbol string
	// Primary is the timeframe the replay steps through
	Primary model.Timeframe
	// Window is the number of bars per timeframe visible at each step
	Window int
	// Step is the number of primary bars between evaluations
	Step           int
	MinProbability float64
	InitialBalance float64
	Leverage       int
}

func (c *Config) setDefaults() {
	if c.Primary == "" {
		c.Primary = model.H1
	}
	if c.Window <= 0 {
		c.Window = 200
	}
	if c.Step <= 0 {
		c.Step = 1
	}
	if c.InitialBalance <= 0 {
		c.InitialBalance = 10000
	}
	if c.Leverage <= 0 {
		c.Leverage = 100
	}
}

// Engine handles backtesting operations
type Engine struct {
	cfg         Config
	analyzer    Analyzer
	forecaster  prediction.Forecaster
	fuser       *fusion.Fuser
	limits      risk.Limits
	instruments *risk.Instruments
	logger      zerolog.Logger
}

// NewEngine creates a new backtesting engine
func NewEngine(cfg Config, analyzer Analyzer, forecaster prediction.Forecaster, fuser *fusion.Fuser, limits risk.Limits, instruments *risk.Instruments) *Engine {
	cfg.setDefaults()
	if instruments == nil {
		instruments = risk.DefaultInstruments()
	}
	return &Engine{
		cfg:         cfg,
		analyzer:    analyzer,
		forecaster:  forecaster,
		fuser:       fuser,
		limits:      limits,
		instruments: instruments,
		logger:      log.With().Str("component", "backtest").Str("symbol", cfg.Symbol).Logger(),
	}
}

// Run replays series. At every step the pipeline sees only bars that had
// closed by then; positions opened at a step are settled against later
// primary bars. Sentiment is not replayed.
func (e *Engine) Run(ctx context.Context, series map[model.Timeframe][]model.Bar) (*model.BacktestResults, error) {
	primary := series[e.cfg.Primary]
	if len(primary) <= e.cfg.Window {
		return nil, fmt.Errorf("%w: %d %s bars, need more than %d",
			ErrInsufficientHistory, len(primary), e.cfg.Primary, e.cfg.Window)
	}

	var now time.Time
	paper := broker.NewPaper(broker.PaperConfig{Balance: e.cfg.InitialBalance, Leverage: e.cfg.Leverage}, e.instruments)
	paper.SetClock(func() time.Time { return now })
	rm := risk.NewManager(e.limits, e.instruments, risk.NewBudget(e.limits.HistorySize, time.UTC))

	results := &model.BacktestResults{
		Symbol:         e.cfg.Symbol,
		InitialBalance: e.cfg.InitialBalance,
		MonthlyReturns: make(map[string]float64),
	}
	probabilities := make(map[string]float64)
	record := func(closed []broker.ClosedPosition, forced bool) {
		for _, c := range closed {
			results.Trades = append(results.Trades, model.BacktestTrade{
				SignalID:    c.Position.SignalID,
				Direction:   c.Position.Direction,
				Probability: probabilities[c.Position.SignalID],
				Lot:         c.Position.Lot,
				EntryPrice:  c.Position.EntryPrice,
				ExitPrice:   c.ExitPrice,
				Profit:      c.Profit,
				OpenedAt:    c.Position.OpenedAt,
				ClosedAt:    c.ClosedAt,
				Forced:      forced,
			})
		}
	}

	step := e.cfg.Primary.Duration()
	for i := e.cfg.Window; i < len(primary); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bar := primary[i]
		now = bar.Time.Add(step)

		// settle before evaluating so a position never fills on its own bar
		record(paper.ObservePrice(e.cfg.Symbol, bar), false)

		if (i-e.cfg.Window)%e.cfg.Step != 0 {
			continue
		}
		results.Evaluations++

		candidate, ok, err := e.evaluate(ctx, window(series, now, e.cfg.Window))
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		results.Candidates++

		candidate.ID = fmt.Sprintf("BT-%d", i)
		candidate.CreatedAt, candidate.UpdatedAt = now, now
		probabilities[candidate.ID] = candidate.SuccessProbability

		req, err := e.request(ctx, paper, candidate)
		if err != nil {
			return nil, err
		}
		exec, err := rm.Open(ctx, req, now, paper.PlaceOrder)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.logger.Debug().Err(err).Str("signal_id", candidate.ID).Msg("Order not filled")
			results.Rejections++
			continue
		}
		if !exec.Decision.Allowed {
			results.Rejections++
		}
	}

	last := primary[len(primary)-1]
	positions, _ := paper.OpenPositions(ctx)
	for _, pos := range positions {
		closed, err := paper.Close(ctx, pos.Ticket, last.Close)
		if err != nil {
			return nil, fmt.Errorf("close %s: %w", pos.Ticket, err)
		}
		record([]broker.ClosedPosition{closed}, true)
	}

	calculateMetrics(results)
	e.logger.Info().
		Int("trades", results.TotalTrades).
		Float64("win_percentage", results.WinPercentage).
		Float64("final_balance", results.FinalBalance).
		Msg("Backtest finished")
	return results, nil
}

// evaluate runs the signal pipeline over one window. ok is false when no
// candidate clears the fusion rules and the probability floor.
func (e *Engine) evaluate(ctx context.Context, series map[model.Timeframe][]model.Bar) (model.CandidateSignal, bool, error) {
	verdict, err := e.analyzer.Analyze(ctx, e.cfg.Symbol, series, nil)
	if err != nil {
		if ctx.Err() != nil {
			return model.CandidateSignal{}, false, ctx.Err()
		}
		e.logger.Debug().Err(err).Msg("Analysis failed")
		return model.CandidateSignal{}, false, nil
	}
	forecast, err := e.forecaster.Forecast(ctx, e.cfg.Symbol, series)
	if err != nil {
		forecast = model.Forecast{Direction: model.Neutral}
	}
	candidate, err := e.fuser.Fuse(verdict, forecast)
	if err != nil || candidate.SuccessProbability < e.cfg.MinProbability {
		return model.CandidateSignal{}, false, nil
	}
	return candidate, true, nil
}

func (e *Engine) request(ctx context.Context, paper *broker.Paper, c model.CandidateSignal) (risk.Request, error) {
	account, err := paper.Account(ctx)
	if err != nil {
		return risk.Request{}, err
	}
	info, err := paper.Symbol(ctx, c.Symbol)
	if err != nil {
		return risk.Request{}, err
	}
	positions, err := paper.OpenPositions(ctx)
	if err != nil {
		return risk.Request{}, err
	}
	return risk.Request{Signal: c, Account: account, Symbol: info, Positions: positions}, nil
}

// window returns, per timeframe, the last n bars that had closed by now
func window(series map[model.Timeframe][]model.Bar, now time.Time, n int) map[model.Timeframe][]model.Bar {
	out := make(map[model.Timeframe][]model.Bar, len(series))
	for tf, bars := range series {
		d := tf.Duration()
		end := sort.Search(len(bars), func(i int) bool {
			return bars[i].Time.Add(d).After(now)
		})
		start := max(0, end-n)
		if end > start {
			out[tf] = bars[start:end]
		}
	}
	return out
}
