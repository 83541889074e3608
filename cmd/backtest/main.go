package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/fxsignal/internal/analysis/aggregate"
	"github.com/Alias1177/fxsignal/internal/analysis/detector"
	"github.com/Alias1177/fxsignal/internal/analysis/prediction"
	"github.com/Alias1177/fxsignal/internal/api/twelvedata"
	"github.com/Alias1177/fxsignal/internal/config"
	"github.com/Alias1177/fxsignal/internal/model"
	"github.com/Alias1177/fxsignal/internal/trading/backtest"
	"github.com/Alias1177/fxsignal/internal/trading/fusion"
)

func main() {
	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupt signals
	setupSignalHandling(cancel)

	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// 2. Configure logging
	setupLogging(cfg.LogLevel)
	log.Info().
		Strs("symbols", cfg.Symbols).
		Int("bars", cfg.BacktestBars).
		Int("window", cfg.BacktestWindow).
		Int("step", cfg.BacktestStep).
		Msg("Starting backtest")

	// 3. Setup API client
	client := twelvedata.NewClient(twelvedata.ClientOptions{
		APIKey:          cfg.TwelveAPIKey,
		BaseURL:         cfg.TwelveBaseURL,
		RequestTimeout:  cfg.RequestTimeout,
		RequestsPerSec:  cfg.RequestsPerSec,
		MaxRetries:      cfg.MaxRetries,
		MaxRetryTimeout: cfg.MaxRetryTimeout,
	})

	// 4. Build the pipeline
	tables := cfg.Tables
	analyzer := aggregate.NewEngine(
		detector.All(detector.Options{MergeTolerance: cfg.MergeTolerance}),
		aggregate.NewSummarizer(cfg.MergeTolerance, tables.AgreementTiers),
		aggregate.NewAggregator(tables.Aggregate()),
	)
	forecaster := prediction.NewHeuristic(model.H1)
	fuser := fusion.NewFuser(tables.Fusion, &tables.Instruments)

	// 5. Replay every symbol
	failed := false
	for _, symbol := range cfg.Symbols {
		if ctx.Err() != nil {
			break
		}
		series, err := loadHistory(ctx, client, symbol, cfg.Timeframes, cfg.BacktestBars)
		if err != nil {
			log.Error().Err(err).Str("symbol", symbol).Msg("Failed to load history")
			failed = true
			continue
		}

		engine := backtest.NewEngine(backtest.Config{
			Symbol:         symbol,
			Primary:        model.H1,
			Window:         cfg.BacktestWindow,
			Step:           cfg.BacktestStep,
			MinProbability: cfg.MinProbability,
			InitialBalance: cfg.PaperBalance,
			Leverage:       cfg.PaperLeverage,
		}, analyzer, forecaster, fuser, cfg.Risk, &tables.Instruments)

		results, err := engine.Run(ctx, series)
		if err != nil {
			log.Error().Err(err).Str("symbol", symbol).Msg("Backtest failed")
			failed = true
			continue
		}
		fmt.Println(backtest.FormatResults(results))
	}

	if failed {
		os.Exit(1)
	}
}

// loadHistory fetches count bars of every timeframe for symbol
func loadHistory(ctx context.Context, client *twelvedata.Client, symbol string, timeframes []model.Timeframe, count int) (map[model.Timeframe][]model.Bar, error) {
	series := make(map[model.Timeframe][]model.Bar, len(timeframes))
	for _, tf := range timeframes {
		bars, err := client.GetBars(ctx, symbol, tf, count)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s bars: %w", tf, err)
		}
		series[tf] = bars
	}
	if _, ok := series[model.H1]; !ok {
		bars, err := client.GetBars(ctx, symbol, model.H1, count)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch H1 bars: %w", err)
		}
		series[model.H1] = bars
	}
	return series, nil
}

// setupSignalHandling cancels the root context on SIGINT or SIGTERM
func setupSignalHandling(cancel context.CancelFunc) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		log.Info().Msg("Shutdown signal received, stopping...")
		cancel()
	}()
}

// setupLogging configures the logger
func setupLogging(logLevel string) {
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log.Logger = log.Output(output)

	level, err := zerolog.ParseLevel(strings.ToLower(logLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
