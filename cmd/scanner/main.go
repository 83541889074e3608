package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Alias1177/fxsignal/internal/analysis/aggregate"
	"github.com/Alias1177/fxsignal/internal/analysis/detector"
	"github.com/Alias1177/fxsignal/internal/analysis/prediction"
	"github.com/Alias1177/fxsignal/internal/analysis/sentiment"
	"github.com/Alias1177/fxsignal/internal/api/twelvedata"
	"github.com/Alias1177/fxsignal/internal/broker"
	"github.com/Alias1177/fxsignal/internal/cache"
	"github.com/Alias1177/fxsignal/internal/config"
	"github.com/Alias1177/fxsignal/internal/database"
	"github.com/Alias1177/fxsignal/internal/metrics"
	"github.com/Alias1177/fxsignal/internal/model"
	"github.com/Alias1177/fxsignal/internal/notify"
	httpClient "github.com/Alias1177/fxsignal/internal/platform/http"
	"github.com/Alias1177/fxsignal/internal/scanner"
	"github.com/Alias1177/fxsignal/internal/server"
	"github.com/Alias1177/fxsignal/internal/trading/fusion"
	"github.com/Alias1177/fxsignal/internal/trading/risk"
	sigstore "github.com/Alias1177/fxsignal/internal/trading/signal"
)

func main() {
	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupt signals
	setupSignalHandling(cancel)

	// 1. Load configuration
	setupLogging("info")
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// 2. Configure logging
	setupLogging(cfg.LogLevel)
	log.Info().Msg("Starting FX signal scanner")
	printConfig(cfg)

	// 3. Market data
	var feed scanner.Feed = twelvedata.NewClient(twelvedata.ClientOptions{
		APIKey:          cfg.TwelveAPIKey,
		BaseURL:         cfg.TwelveBaseURL,
		RequestTimeout:  cfg.RequestTimeout,
		RequestsPerSec:  cfg.RequestsPerSec,
		MaxRetries:      cfg.MaxRetries,
		MaxRetryTimeout: cfg.MaxRetryTimeout,
	})
	if cfg.CacheEnabled() {
		rc, err := cache.NewRedisCache(ctx, cache.RedisConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rc.Close()
		feed = cache.NewCachedFeed(feed, rc)
		log.Info().Str("addr", cfg.RedisAddr).Msg("Bar cache enabled")
	}

	// 4. Analysis pipeline
	recorder := metrics.New()
	tables := cfg.Tables
	engine := aggregate.NewEngine(
		detector.All(detector.Options{MergeTolerance: cfg.MergeTolerance}),
		aggregate.NewSummarizer(cfg.MergeTolerance, tables.AgreementTiers),
		aggregate.NewAggregator(tables.Aggregate()),
		aggregate.WithFailureHook(recorder.DetectorFailure),
	)
	forecaster := prediction.NewHeuristic(model.H1)
	fuser := fusion.NewFuser(tables.Fusion, &tables.Instruments)

	// 5. Trading state
	store := sigstore.NewStore(tables.Signals)
	store.OnChange(recorder.SignalListener())
	riskManager := risk.NewManager(cfg.Risk, &tables.Instruments, risk.NewBudget(cfg.Risk.HistorySize, time.UTC))
	paper := broker.NewPaper(broker.PaperConfig{
		Balance:  cfg.PaperBalance,
		Leverage: cfg.PaperLeverage,
		Currency: cfg.Currency,
	}, &tables.Instruments)

	traderOpts := []scanner.TraderOption{scanner.WithRiskObserver(recorder)}
	var serverOpts []server.Option
	if cfg.DatabaseEnabled() {
		db, err := database.New(ctx, database.ConnectionParams{
			Host:     cfg.DBHost,
			Port:     cfg.DBPort,
			User:     cfg.DBUser,
			Password: cfg.DBPassword,
			DBName:   cfg.DBName,
			SSLMode:  cfg.DBSSLMode,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer db.Close()
		store.OnChange(db.SignalListener(5 * time.Second))
		traderOpts = append(traderOpts, scanner.WithJournal(db))
		serverOpts = append(serverOpts, server.WithJournal(db))
		log.Info().Str("host", cfg.DBHost).Msg("Signal journal enabled")
	}

	// 6. Notifications
	var notifier notify.Notifier = notify.Nop{}
	var bot *notify.Telegram
	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		bot, err = notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize Telegram bot")
		}
		notifier = bot
	} else {
		log.Warn().Msg("TELEGRAM_BOT_TOKEN or TELEGRAM_CHAT_ID not set, notifications disabled")
	}

	trader := scanner.NewTrader(store, riskManager, paper, notifier, cfg.ConfirmationTimeout, traderOpts...)
	if bot != nil {
		bot.SetHandler(trader)
	}

	scanOpts := []scanner.Option{scanner.WithNotifier(notifier), scanner.WithMetrics(recorder)}
	if cfg.CalendarURL != "" {
		calendarClient := httpClient.NewClient(httpClient.ClientOptions{
			Timeout:         cfg.RequestTimeout,
			RequestsPerSec:  cfg.RequestsPerSec,
			MaxRetries:      cfg.MaxRetries,
			MaxRetryTimeout: cfg.MaxRetryTimeout,
		})
		analyzer := sentiment.NewAnalyzer(sentiment.NewHTTPCalendar(cfg.CalendarURL, calendarClient), nil)
		scanOpts = append(scanOpts, scanner.WithSentiment(analyzer))
	}

	sc := scanner.New(scanner.Config{
		Symbols:             cfg.Symbols,
		Timeframes:          cfg.Timeframes,
		BarCount:            cfg.BarCount,
		Interval:            cfg.ScanInterval,
		Workers:             cfg.Workers,
		MinProbability:      cfg.MinProbability,
		AutoTradeThreshold:  cfg.AutoTradeThreshold,
		AutoTrade:           cfg.AutoTrade,
		ConfirmationTimeout: cfg.ConfirmationTimeout,
	}, feed, engine, forecaster, fuser, store, trader, scanOpts...)

	srv := server.New(store, trader, recorder.Handler(), serverOpts...)

	// 7. Run until interrupted
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sc.Run(gctx) })
	g.Go(func() error { return srv.Start(cfg.HTTPAddr) })
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if bot != nil {
		g.Go(func() error { return bot.Run(gctx) })
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("Scanner exited with error")
		os.Exit(1)
	}
	log.Info().Msg("Scanner stopped")
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

// setupLogging configures the global logger
func setupLogging(logLevel string) {
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log.Logger = log.Output(output)

	level, err := zerolog.ParseLevel(strings.ToLower(logLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

// printConfig logs the effective configuration without secrets
func printConfig(cfg *config.Config) {
	tfs := make([]string, len(cfg.Timeframes))
	for i, tf := range cfg.Timeframes {
		tfs[i] = string(tf)
	}
	log.Info().
		Strs("symbols", cfg.Symbols).
		Strs("timeframes", tfs).
		Dur("scan_interval", cfg.ScanInterval).
		Float64("min_probability", cfg.MinProbability).
		Float64("auto_trade_threshold", cfg.AutoTradeThreshold).
		Bool("auto_trade", cfg.AutoTrade).
		Float64("max_risk_percent", cfg.Risk.MaxRiskPercent).
		Float64("max_daily_risk_percent", cfg.Risk.MaxDailyRiskPercent).
		Float64("max_weekly_risk_percent", cfg.Risk.MaxWeeklyRiskPercent).
		Bool("database", cfg.DatabaseEnabled()).
		Bool("cache", cfg.CacheEnabled()).
		Msg("Configuration loaded")
}
