package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/fxsignal/internal/model"
	"github.com/Alias1177/fxsignal/internal/trading/risk"
)

// ErrInvalidConfig is returned by Validate, wrapped with the failing field
var ErrInvalidConfig = errors.New("invalid config")

// Config holds all application configuration
type Config struct {
	TwelveAPIKey  string
	TwelveBaseURL string
	CalendarURL   string

	Symbols      []string
	Timeframes   []model.Timeframe
	BarCount     int
	ScanInterval time.Duration
	Workers      int

	MinProbability      float64
	AutoTradeThreshold  float64
	AutoTrade           bool
	ConfirmationTimeout time.Duration
	MaxSignalsPerDay    int
	MergeTolerance      float64

	Risk risk.Limits

	RequestTimeout  time.Duration
	RequestsPerSec  int
	MaxRetries      int
	MaxRetryTimeout time.Duration

	LogLevel string
	HTTPAddr string

	TelegramToken  string
	TelegramChatID int64

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	PaperBalance  float64
	PaperLeverage int
	Currency      string

	BacktestBars   int
	BacktestWindow int
	BacktestStep   int

	TablesFile string
	Tables     Tables
}

// Load initializes configuration from environment variables and the optional
// tables file
func Load() (*Config, error) {
	// Load environment variables from .env file if present
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg(".env file not found, relying on actual environment variables")
	}

	var cfg Config
	cfg.TwelveAPIKey = os.Getenv("TWELVE_API_KEY")
	cfg.TwelveBaseURL = getEnvWithDefault("TWELVE_BASE_URL", "https://api.twelvedata.com")
	cfg.CalendarURL = os.Getenv("CALENDAR_URL")

	cfg.Symbols = getEnvListWithDefault("SYMBOLS", []string{"EURUSD", "GBPUSD", "USDJPY", "AUDUSD", "USDCAD", "XAUUSD"})
	for i, s := range cfg.Symbols {
		cfg.Symbols[i] = strings.ToUpper(s)
	}
	for _, s := range getEnvListWithDefault("TIMEFRAMES", []string{"M5", "M15", "H1", "H4", "D1"}) {
		tf, err := model.ParseTimeframe(s)
		if err != nil {
			return nil, fmt.Errorf("%w: TIMEFRAMES: %v", ErrInvalidConfig, err)
		}
		cfg.Timeframes = append(cfg.Timeframes, tf)
	}
	cfg.BarCount = getEnvIntWithDefault("BAR_COUNT", 300)
	cfg.ScanInterval = getEnvDurationWithDefault("SCAN_INTERVAL", 60*time.Second)
	cfg.Workers = getEnvIntWithDefault("SCAN_WORKERS", 3)

	cfg.MinProbability = getEnvFloatWithDefault("MIN_PROBABILITY", 60)
	cfg.AutoTradeThreshold = getEnvFloatWithDefault("AUTO_TRADE_THRESHOLD", 70)
	cfg.AutoTrade = getEnvBoolWithDefault("AUTO_TRADE", false)
	cfg.ConfirmationTimeout = getEnvDurationWithDefault("CONFIRMATION_TIMEOUT", 300*time.Second)
	cfg.MaxSignalsPerDay = getEnvIntWithDefault("MAX_SIGNALS_PER_DAY", 10)
	cfg.MergeTolerance = getEnvFloatWithDefault("MERGE_TOLERANCE", 0.0005)

	limits := risk.DefaultLimits()
	limits.MaxRiskPercent = getEnvFloatWithDefault("MAX_RISK_PERCENT", limits.MaxRiskPercent)
	limits.MaxDailyRiskPercent = getEnvFloatWithDefault("MAX_DAILY_RISK_PERCENT", limits.MaxDailyRiskPercent)
	limits.MaxWeeklyRiskPercent = getEnvFloatWithDefault("MAX_WEEKLY_RISK_PERCENT", limits.MaxWeeklyRiskPercent)
	limits.MaxOpenPositions = getEnvIntWithDefault("MAX_OPEN_POSITIONS", limits.MaxOpenPositions)
	limits.MaxPositionsPerSymbol = getEnvIntWithDefault("MAX_POSITIONS_PER_SYMBOL", limits.MaxPositionsPerSymbol)
	limits.MaxLot = getEnvFloatWithDefault("MAX_LOT", limits.MaxLot)
	limits.MinLot = getEnvFloatWithDefault("MIN_LOT", limits.MinLot)
	limits.MinRiskReward = getEnvFloatWithDefault("MIN_RISK_REWARD", limits.MinRiskReward)
	cfg.Risk = limits

	cfg.RequestTimeout = getEnvDurationWithDefault("REQUEST_TIMEOUT", 30*time.Second)
	cfg.RequestsPerSec = getEnvIntWithDefault("REQUESTS_PER_SEC", 5)
	cfg.MaxRetries = getEnvIntWithDefault("MAX_RETRIES", 3)
	cfg.MaxRetryTimeout = getEnvDurationWithDefault("MAX_RETRY_TIMEOUT", 30*time.Second)

	cfg.LogLevel = getEnvWithDefault("LOG_LEVEL", "info")
	cfg.HTTPAddr = getEnvWithDefault("HTTP_ADDR", ":8080")

	cfg.TelegramToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.TelegramChatID = int64(getEnvIntWithDefault("TELEGRAM_CHAT_ID", 0))

	cfg.DBHost = os.Getenv("DB_HOST")
	cfg.DBPort = getEnvWithDefault("DB_PORT", "5432")
	cfg.DBUser = getEnvWithDefault("DB_USER", "postgres")
	cfg.DBPassword = os.Getenv("DB_PASSWORD")
	cfg.DBName = getEnvWithDefault("DB_NAME", "fxsignal")
	cfg.DBSSLMode = getEnvWithDefault("DB_SSLMODE", "disable")

	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.RedisDB = getEnvIntWithDefault("REDIS_DB", 0)

	cfg.PaperBalance = getEnvFloatWithDefault("PAPER_BALANCE", 10000)
	cfg.PaperLeverage = getEnvIntWithDefault("PAPER_LEVERAGE", 100)
	cfg.Currency = getEnvWithDefault("ACCOUNT_CURRENCY", "USD")

	cfg.BacktestBars = getEnvIntWithDefault("BACKTEST_BARS", 2000)
	cfg.BacktestWindow = getEnvIntWithDefault("BACKTEST_WINDOW", 200)
	cfg.BacktestStep = getEnvIntWithDefault("BACKTEST_STEP", 1)

	cfg.TablesFile = os.Getenv("INSTRUMENTS_FILE")
	tables, err := LoadTables(cfg.TablesFile)
	if err != nil {
		return nil, err
	}
	cfg.Tables = *tables
	cfg.Tables.Fusion.MinRiskReward = cfg.Risk.MinRiskReward
	cfg.Tables.Signals.MaxPerDay = cfg.MaxSignalsPerDay

	return &cfg, cfg.Validate()
}

// Validate checks the settings that would otherwise fail deep inside a scan
func (c *Config) Validate() error {
	switch {
	case c.TwelveAPIKey == "":
		return fmt.Errorf("%w: TWELVE_API_KEY is required", ErrInvalidConfig)
	case len(c.Symbols) == 0:
		return fmt.Errorf("%w: SYMBOLS is empty", ErrInvalidConfig)
	case len(c.Timeframes) == 0:
		return fmt.Errorf("%w: TIMEFRAMES is empty", ErrInvalidConfig)
	case c.BarCount < 50:
		return fmt.Errorf("%w: BAR_COUNT must be at least 50", ErrInvalidConfig)
	case c.ScanInterval <= 0:
		return fmt.Errorf("%w: SCAN_INTERVAL must be positive", ErrInvalidConfig)
	case c.Workers < 1:
		return fmt.Errorf("%w: SCAN_WORKERS must be at least 1", ErrInvalidConfig)
	case c.MinProbability < 0 || c.MinProbability > 100:
		return fmt.Errorf("%w: MIN_PROBABILITY must be in 0..100", ErrInvalidConfig)
	case c.AutoTradeThreshold < 0 || c.AutoTradeThreshold > 100:
		return fmt.Errorf("%w: AUTO_TRADE_THRESHOLD must be in 0..100", ErrInvalidConfig)
	case c.ConfirmationTimeout <= 0:
		return fmt.Errorf("%w: CONFIRMATION_TIMEOUT must be positive", ErrInvalidConfig)
	case c.MergeTolerance < 0:
		return fmt.Errorf("%w: MERGE_TOLERANCE must not be negative", ErrInvalidConfig)
	case c.RequestsPerSec < 1:
		return fmt.Errorf("%w: REQUESTS_PER_SEC must be at least 1", ErrInvalidConfig)
	case c.PaperBalance <= 0:
		return fmt.Errorf("%w: PAPER_BALANCE must be positive", ErrInvalidConfig)
	case c.BacktestWindow < 50 || c.BacktestBars <= c.BacktestWindow:
		return fmt.Errorf("%w: BACKTEST_BARS must exceed BACKTEST_WINDOW (at least 50)", ErrInvalidConfig)
	case c.BacktestStep < 1:
		return fmt.Errorf("%w: BACKTEST_STEP must be at least 1", ErrInvalidConfig)
	}
	if err := validate.Struct(c.Risk); err != nil {
		return fmt.Errorf("%w: risk limits: %v", ErrInvalidConfig, err)
	}
	return nil
}

// DatabaseEnabled reports whether a journal database is configured
func (c *Config) DatabaseEnabled() bool {
	return c.DBHost != ""
}

// CacheEnabled reports whether a Redis bar cache is configured
func (c *Config) CacheEnabled() bool {
	return c.RedisAddr != ""
}

// Helper functions for environment variable handling
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		log.Warn().Str("key", key).Str("value", value).Msg("Invalid integer, using default")
	}
	return defaultValue
}

func getEnvFloatWithDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
		log.Warn().Str("key", key).Str("value", value).Msg("Invalid float, using default")
	}
	return defaultValue
}

func getEnvBoolWithDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

// getEnvDurationWithDefault accepts Go durations ("90s") or plain seconds
func getEnvDurationWithDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	log.Warn().Str("key", key).Str("value", value).Msg("Invalid duration, using default")
	return defaultValue
}

func getEnvListWithDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
