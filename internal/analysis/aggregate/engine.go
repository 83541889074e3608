package aggregate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/fxsignal/internal/analysis/detector"
	"github.com/Alias1177/fxsignal/internal/model"
)

// ErrNoTimeframes is returned when no timeframe has any bars
var ErrNoTimeframes = errors.New("no timeframe data")

// FailureFunc observes detector failures
type FailureFunc func(name string, tf model.Timeframe, err error)

// Engine runs every detector over every timeframe of a symbol and folds the
// results into one AggregateVerdict
type Engine struct {
	detectors  []detector.Detector
	summarizer *Summarizer
	aggregator *Aggregator
	onFailure  FailureFunc
	logger     zerolog.Logger
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithFailureHook registers fn to be called for each degraded detector run
func WithFailureHook(fn FailureFunc) EngineOption {
	return func(e *Engine) {
		e.onFailure = fn
	}
}

// NewEngine wires detectors, summarizer and aggregator together
func NewEngine(detectors []detector.Detector, s *Summarizer, a *Aggregator, opts ...EngineOption) *Engine {
	e := &Engine{
		detectors:  detectors,
		summarizer: s,
		aggregator: a,
		logger:     log.With().Str("component", "analysis_engine").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AnalyzeTimeframe runs the detectors concurrently over one series. A
// detector that fails degrades to neutral; the others are unaffected.
func (e *Engine) AnalyzeTimeframe(symbol string, tf model.Timeframe, bars []model.Bar) model.TimeframeVerdict {
	results := make([]model.DetectorResult, len(e.detectors))

	var wg sync.WaitGroup
	for i, d := range e.detectors {
		wg.Add(1)
		go func(i int, d detector.Detector) {
			defer wg.Done()

			res, err := detector.Run(d, tf, bars)
			if err != nil {
				e.report(symbol, tf, d, len(bars), err)
			}
			results[i] = res
		}(i, d)
	}
	wg.Wait()

	return e.summarizer.Summarize(tf, results)
}

// Analyze evaluates every non-empty series and aggregates the verdicts.
// Missing timeframes are skipped and the weights renormalize over the rest.
func (e *Engine) Analyze(ctx context.Context, symbol string, series map[model.Timeframe][]model.Bar, sentiment *model.SentimentReport) (model.AggregateVerdict, error) {
	verdicts := make(map[model.Timeframe]model.TimeframeVerdict, len(series))

	var wg sync.WaitGroup
	var mu sync.Mutex
	for tf, bars := range series {
		if len(bars) == 0 {
			continue
		}
		wg.Add(1)
		go func(tf model.Timeframe, bars []model.Bar) {
			defer wg.Done()

			v := e.AnalyzeTimeframe(symbol, tf, bars)

			mu.Lock()
			verdicts[tf] = v
			mu.Unlock()
		}(tf, bars)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return model.AggregateVerdict{}, fmt.Errorf("analyze %s: %w", symbol, err)
	}
	if len(verdicts) == 0 {
		return model.AggregateVerdict{}, fmt.Errorf("analyze %s: %w", symbol, ErrNoTimeframes)
	}

	return e.aggregator.Aggregate(symbol, verdicts, sentiment), nil
}

func (e *Engine) report(symbol string, tf model.Timeframe, d detector.Detector, bars int, err error) {
	switch {
	case errors.Is(err, detector.ErrInsufficientData):
		e.logger.Warn().
			Str("symbol", symbol).
			Str("timeframe", string(tf)).
			Str("detector", d.Name()).
			Int("bars", bars).
			Int("need", d.MinBars()).
			Msg("Insufficient data, detector degraded to neutral")
	default:
		e.logger.Error().
			Err(err).
			Str("symbol", symbol).
			Str("timeframe", string(tf)).
			Str("detector", d.Name()).
			Msg("Detector failed, degraded to neutral")
	}
	if e.onFailure != nil {
		e.onFailure(d.Name(), tf, err)
	}
}
