// Package scanner drives the signal pipeline: it fetches bars for every
// symbol, runs the analysis engine and forecaster, fuses the results into
// candidate signals and hands them to the operator for confirmation.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/fxsignal/internal/analysis/prediction"
	"github.com/Alias1177/fxsignal/internal/model"
	"github.com/Alias1177/fxsignal/internal/notify"
	"github.com/Alias1177/fxsignal/internal/trading/fusion"
	"github.com/Alias1177/fxsignal/internal/trading/risk"
	"github.com/Alias1177/fxsignal/internal/trading/signal"
)

// ErrUpstreamUnavailable means a collaborator returned nothing usable
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// expirySweep is how often pending signals are checked against the timeout
const expirySweep = 5 * time.Second

// Feed supplies bar series
type Feed interface {
	GetBars(ctx context.Context, symbol string, tf model.Timeframe, count int) ([]model.Bar, error)
}

// Analyzer turns a symbol's series into a cross-timeframe verdict
type Analyzer interface {
	Analyze(ctx context.Context, symbol string, series map[model.Timeframe][]model.Bar, sentiment *model.SentimentReport) (model.AggregateVerdict, error)
}

// SentimentSource reports the news and headline impact of a symbol
type SentimentSource interface {
	Analyze(ctx context.Context, symbol string) (model.SentimentReport, error)
}

// Metrics observes scan timings and failures
type Metrics interface {
	ObserveScan(d time.Duration)
	ObserveSymbol(symbol string, d time.Duration)
	SymbolFailure(symbol string)
}

// Config holds the scan loop settings
type Config struct {
	Symbols             []string
	Timeframes          []model.Timeframe
	BarCount            int
	Interval            time.Duration
	Workers             int
	MinProbability      float64
	AutoTradeThreshold  float64
	AutoTrade           bool
	ConfirmationTimeout time.Duration
}

// Result is the outcome of one symbol in one scan
type Result struct {
	Symbol  string
	Verdict model.AggregateVerdict
	// Signal is nil when no candidate was stored
	Signal   *model.CandidateSignal
	Sizing   risk.SizingResult
	Decision risk.Decision
	// Skipped explains why no candidate was stored
	Skipped string
	Err     error
}

// Scanner runs the pipeline for every configured symbol
type Scanner struct {
	cfg        Config
	feed       Feed
	engine     Analyzer
	sentiment  SentimentSource
	forecaster prediction.Forecaster
	fuser      *fusion.Fuser
	store      *signal.Store
	trader     *Trader
	notifier   notify.Notifier
	metrics    Metrics
	logger     zerolog.Logger
}

// Option configures a Scanner
type Option func(*Scanner)

// WithSentiment blends news and headline impact into every verdict
func WithSentiment(s SentimentSource) Option {
	return func(sc *Scanner) { sc.sentiment = s }
}

// WithMetrics records scan timings
func WithMetrics(m Metrics) Option {
	return func(sc *Scanner) { sc.metrics = m }
}

// WithNotifier sends candidates to n
func WithNotifier(n notify.Notifier) Option {
	return func(sc *Scanner) { sc.notifier = n }
}

// New creates a scanner
func New(cfg Config, feed Feed, engine Analyzer, forecaster prediction.Forecaster, fuser *fusion.Fuser, store *signal.Store, trader *Trader, opts ...Option) *Scanner {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if len(cfg.Timeframes) == 0 {
		cfg.Timeframes = model.AllTimeframes
	}
	s := &Scanner{
		cfg:        cfg,
		feed:       feed,
		engine:     engine,
		forecaster: forecaster,
		fuser:      fuser,
		store:      store,
		trader:     trader,
		notifier:   notify.Nop{},
		logger:     log.With().Str("component", "scanner").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run scans immediately and then every interval until ctx is cancelled.
// Pending signals are expired between scans.
func (s *Scanner) Run(ctx context.Context) error {
	s.logger.Info().
		Strs("symbols", s.cfg.Symbols).
		Dur("interval", s.cfg.Interval).
		Int("workers", s.cfg.Workers).
		Msg("Scanner started")

	scan := time.NewTicker(s.cfg.Interval)
	defer scan.Stop()
	sweep := time.NewTicker(expirySweep)
	defer sweep.Stop()

	s.ScanOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Scanner stopped")
			return ctx.Err()
		case now := <-sweep.C:
			s.trader.ExpireStale(now)
		case <-scan.C:
			s.ScanOnce(ctx)
		}
	}
}

// ScanOnce processes every symbol with a bounded worker pool. One symbol's
// failure never affects the others. Results follow the configured symbol order.
func (s *Scanner) ScanOnce(ctx context.Context) []Result {
	start := time.Now()
	results := make([]Result, len(s.cfg.Symbols))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < s.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = s.scanSymbol(ctx, s.cfg.Symbols[i])
			}
		}()
	}

feed:
	for i := range s.cfg.Symbols {
		select {
		case jobs <- i:
		case <-ctx.Done():
			for j := i; j < len(s.cfg.Symbols); j++ {
				results[j] = Result{Symbol: s.cfg.Symbols[j], Err: ctx.Err()}
			}
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	elapsed := time.Since(start)
	if s.metrics != nil {
		s.metrics.ObserveScan(elapsed)
	}
	stored := 0
	for _, r := range results {
		if r.Signal != nil {
			stored++
		}
	}
	s.logger.Info().Int("symbols", len(results)).Int("signals", stored).Dur("elapsed", elapsed).Msg("Scan completed")
	return results
}

func (s *Scanner) scanSymbol(ctx context.Context, symbol string) Result {
	start := time.Now()
	res := s.process(ctx, symbol)
	if s.metrics != nil {
		s.metrics.ObserveSymbol(symbol, time.Since(start))
	}
	if res.Err != nil {
		if s.metrics != nil {
			s.metrics.SymbolFailure(symbol)
		}
		if !errors.Is(res.Err, context.Canceled) {
			s.logger.Error().Err(res.Err).Str("symbol", symbol).Msg("Symbol skipped")
		}
	}
	return res
}

func (s *Scanner) process(ctx context.Context, symbol string) Result {
	res := Result{Symbol: symbol}
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}

	series, err := s.fetch(ctx, symbol)
	if err != nil {
		res.Err = err
		return res
	}
	if bar, ok := latestBar(series); ok {
		s.trader.ObservePrices(ctx, symbol, bar)
	}

	var sentiment *model.SentimentReport
	if s.sentiment != nil {
		report, err := s.sentiment.Analyze(ctx, symbol)
		if err != nil {
			s.logger.Warn().Err(err).Str("symbol", symbol).Msg("Sentiment unavailable, using zero impact")
		} else {
			sentiment = &report
		}
	}

	verdict, err := s.engine.Analyze(ctx, symbol, series, sentiment)
	if err != nil {
		res.Err = err
		return res
	}
	res.Verdict = verdict

	forecast, err := s.forecaster.Forecast(ctx, symbol, series)
	if err != nil {
		if ctx.Err() != nil {
			res.Err = ctx.Err()
			return res
		}
		s.logger.Debug().Err(err).Str("symbol", symbol).Msg("Forecast unavailable, using neutral")
		forecast = model.Forecast{Direction: model.Neutral}
	}

	candidate, err := s.fuser.Fuse(verdict, forecast)
	if err != nil {
		res.Skipped = err.Error()
		s.logger.Debug().Str("symbol", symbol).Str("reason", res.Skipped).Msg("No candidate")
		return res
	}
	if candidate.SuccessProbability < s.cfg.MinProbability {
		res.Skipped = fmt.Sprintf("probability %.1f below %.1f", candidate.SuccessProbability, s.cfg.MinProbability)
		return res
	}
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}

	stored, err := s.store.Create(candidate)
	if err != nil {
		res.Skipped = err.Error()
		s.logger.Info().Err(err).Str("symbol", symbol).Msg("Candidate not stored")
		return res
	}
	res.Signal = &stored

	decision, sizing, err := s.trader.Preview(ctx, stored)
	if err != nil {
		s.logger.Warn().Err(err).Str("symbol", symbol).Msg("Sizing unavailable")
	}
	res.Decision, res.Sizing = decision, sizing

	s.announce(ctx, stored, sizing)
	return res
}

// announce sends candidates above the auto-trade threshold: with
// confirmation buttons when auto-trading is on, as information otherwise
func (s *Scanner) announce(ctx context.Context, c model.CandidateSignal, sizing risk.SizingResult) {
	if c.SuccessProbability < s.cfg.AutoTradeThreshold {
		return
	}
	var err error
	if s.cfg.AutoTrade {
		err = s.notifier.SendConfirmation(ctx, c, sizing)
	} else {
		err = s.notifier.SendInfo(ctx, c)
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("signal_id", c.ID).Msg("Failed to notify")
	}
}

// fetch loads every configured timeframe concurrently. Timeframes that fail
// are skipped; the symbol fails only when none could be loaded.
func (s *Scanner) fetch(ctx context.Context, symbol string) (map[model.Timeframe][]model.Bar, error) {
	series := make(map[model.Timeframe][]model.Bar, len(s.cfg.Timeframes))

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	for _, tf := range s.cfg.Timeframes {
		wg.Add(1)
		go func(tf model.Timeframe) {
			defer wg.Done()

			bars, err := s.feed.GetBars(ctx, symbol, tf, s.cfg.BarCount)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("failed to fetch %s bars: %w", tf, err)
				}
				s.logger.Warn().Err(err).Str("symbol", symbol).Str("timeframe", string(tf)).Msg("Timeframe skipped")
				return
			}
			if len(bars) > 0 {
				series[tf] = bars
			}
		}(tf)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(series) == 0 {
		if firstErr == nil {
			firstErr = errors.New("no bars returned")
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrUpstreamUnavailable, symbol, firstErr)
	}
	return series, nil
}

// latestBar returns the last bar of the shortest timeframe present
func latestBar(series map[model.Timeframe][]model.Bar) (model.Bar, bool) {
	for _, tf := range model.AllTimeframes {
		if bars := series[tf]; len(bars) > 0 {
			return bars[len(bars)-1], true
		}
	}
	return model.Bar{}, false
}
