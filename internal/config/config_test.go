package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Alias1177/fxsignal/internal/model"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TWELVE_API_KEY", "key")
	t.Setenv("INSTRUMENTS_FILE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Symbols) != 6 || cfg.Symbols[0] != "EURUSD" {
		t.Errorf("Symbols = %v", cfg.Symbols)
	}
	if len(cfg.Timeframes) != 5 || cfg.Timeframes[2] != model.H1 {
		t.Errorf("Timeframes = %v", cfg.Timeframes)
	}
	if cfg.ScanInterval != time.Minute {
		t.Errorf("ScanInterval = %v, want 1m", cfg.ScanInterval)
	}
	if cfg.ConfirmationTimeout != 5*time.Minute {
		t.Errorf("ConfirmationTimeout = %v, want 5m", cfg.ConfirmationTimeout)
	}
	if cfg.Risk.MaxDailyRiskPercent != 5 {
		t.Errorf("MaxDailyRiskPercent = %v, want 5", cfg.Risk.MaxDailyRiskPercent)
	}
	if cfg.BacktestBars != 2000 || cfg.BacktestWindow != 200 || cfg.BacktestStep != 1 {
		t.Errorf("backtest = %d/%d/%d", cfg.BacktestBars, cfg.BacktestWindow, cfg.BacktestStep)
	}
	if cfg.DatabaseEnabled() || cfg.CacheEnabled() {
		t.Error("database and cache should be disabled without hosts")
	}
	if got := cfg.Tables.Instruments.PipSize("USDJPY"); got != 0.01 {
		t.Errorf("USDJPY pip = %v, want 0.01", got)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("TWELVE_API_KEY", "key")
	t.Setenv("SYMBOLS", "eurusd, gbpjpy")
	t.Setenv("TIMEFRAMES", "h1,h4")
	t.Setenv("SCAN_INTERVAL", "90")
	t.Setenv("CONFIRMATION_TIMEOUT", "2m")
	t.Setenv("AUTO_TRADE", "yes")
	t.Setenv("MAX_RISK_PERCENT", "1")
	t.Setenv("MIN_RISK_REWARD", "2")
	t.Setenv("MAX_SIGNALS_PER_DAY", "4")
	t.Setenv("BAR_COUNT", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Symbols) != 2 || cfg.Symbols[1] != "GBPJPY" {
		t.Errorf("Symbols = %v", cfg.Symbols)
	}
	if len(cfg.Timeframes) != 2 || cfg.Timeframes[1] != model.H4 {
		t.Errorf("Timeframes = %v", cfg.Timeframes)
	}
	if cfg.ScanInterval != 90*time.Second {
		t.Errorf("ScanInterval = %v", cfg.ScanInterval)
	}
	if cfg.ConfirmationTimeout != 2*time.Minute {
		t.Errorf("ConfirmationTimeout = %v", cfg.ConfirmationTimeout)
	}
	if !cfg.AutoTrade {
		t.Error("AutoTrade should be enabled")
	}
	if cfg.Risk.MaxRiskPercent != 1 {
		t.Errorf("MaxRiskPercent = %v", cfg.Risk.MaxRiskPercent)
	}
	if cfg.Tables.Fusion.MinRiskReward != 2 {
		t.Errorf("fusion MinRiskReward = %v, want 2", cfg.Tables.Fusion.MinRiskReward)
	}
	if cfg.Tables.Signals.MaxPerDay != 4 {
		t.Errorf("signals MaxPerDay = %v, want 4", cfg.Tables.Signals.MaxPerDay)
	}
	if cfg.BarCount != 300 {
		t.Errorf("BarCount = %v, want default 300", cfg.BarCount)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing api key", map[string]string{"TWELVE_API_KEY": ""}},
		{"bad timeframe", map[string]string{"TWELVE_API_KEY": "k", "TIMEFRAMES": "H2"}},
		{"probability out of range", map[string]string{"TWELVE_API_KEY": "k", "MIN_PROBABILITY": "120"}},
		{"daily below per trade", map[string]string{"TWELVE_API_KEY": "k", "MAX_DAILY_RISK_PERCENT": "1"}},
		{"backtest window too large", map[string]string{"TWELVE_API_KEY": "k", "BACKTEST_BARS": "100", "BACKTEST_WINDOW": "200"}},
		{"missing tables file", map[string]string{"TWELVE_API_KEY": "k", "INSTRUMENTS_FILE": "/nonexistent/tables.yaml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Load() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestLoadTables(t *testing.T) {
	file := filepath.Join(t.TempDir(), "tables.yaml")
	data := `
instruments:
  symbols:
    - match: "*JPY"
      pip_size: 0.01
      digits: 3
    - match: BTCUSD
      pip_size: 1
      contract_size: 1
weights:
  H1: 0.5
strength_tiers:
  high: 80
  medium: 50
fusion:
  lead: 5
signals:
  history_size: 20
`
	if err := os.WriteFile(file, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	tables, err := LoadTables(file)
	if err != nil {
		t.Fatalf("LoadTables() error = %v", err)
	}
	if got := tables.Instruments.PipSize("BTCUSD"); got != 1 {
		t.Errorf("BTCUSD pip = %v, want 1", got)
	}
	if got := tables.Instruments.PipSize("EURUSD"); got != 0.0001 {
		t.Errorf("EURUSD pip = %v, want default 0.0001", got)
	}
	agg := tables.Aggregate()
	if agg.Weights[model.H1] != 0.5 || agg.Weights[model.D1] != 0.35 {
		t.Errorf("weights = %v", agg.Weights)
	}
	if agg.Tiers.High != 80 || agg.Tiers.Medium != 50 {
		t.Errorf("tiers = %+v", agg.Tiers)
	}
	if tables.Fusion.Lead != 5 || tables.Fusion.TechnicalWeight != 0.7 {
		t.Errorf("fusion = %+v", tables.Fusion)
	}
	if tables.Signals.HistorySize != 20 || tables.Signals.MaxPerDay != 10 {
		t.Errorf("signals = %+v", tables.Signals)
	}
	if tables.AgreementTiers.High != 3 {
		t.Errorf("agreement tiers = %+v", tables.AgreementTiers)
	}
}

func TestParseTablesRejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unknown timeframe", "weights:\n  W1: 0.2\n"},
		{"negative weight", "weights:\n  H1: -1\n"},
		{"inverted tiers", "strength_tiers:\n  high: 30\n  medium: 50\n"},
		{"zero pip size", "instruments:\n  symbols:\n    - match: EURUSD\n      pip_size: 0\n"},
		{"malformed", "weights: [1, 2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ParseTables([]byte(tt.data), DefaultTables())
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("ParseTables() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}
