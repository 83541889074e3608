package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/fxsignal/internal/model"
	"github.com/Alias1177/fxsignal/internal/trading/signal"
)

// DB represents a database connection
type DB struct {
	*sql.DB
	logger zerolog.Logger
}

// ConnectionParams holds PostgreSQL connection parameters
type ConnectionParams struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// ConnString renders params as a lib/pq keyword/value connection string
func (p ConnectionParams) ConnString() string {
	sslMode := p.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, sslMode,
	)
}

// New creates a new database connection
func New(ctx context.Context, params ConnectionParams) (*DB, error) {
	connector, err := pq.NewConnector(params.ConnString())
	if err != nil {
		return nil, fmt.Errorf("postgres connector: %w", err)
	}
	db := sql.OpenDB(connector)

	// Check connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	// Create tables if they don't exist
	if err := createTables(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &DB{DB: db, logger: log.With().Str("component", "journal").Logger()}, nil
}

// createTables creates the journal tables if they don't exist
func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS candidate_signals (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			direction TEXT NOT NULL,
			entry_price DOUBLE PRECISION NOT NULL,
			stop_loss DOUBLE PRECISION NOT NULL,
			take_profit DOUBLE PRECISION NOT NULL,
			strength DOUBLE PRECISION NOT NULL,
			success_probability DOUBLE PRECISION NOT NULL,
			risk_reward DOUBLE PRECISION NOT NULL,
			status TEXT NOT NULL,
			key_timeframes TEXT[],
			forecast_direction TEXT,
			forecast_confidence DOUBLE PRECISION,
			reason TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS trades (
			ticket TEXT PRIMARY KEY,
			signal_id TEXT REFERENCES candidate_signals(id),
			symbol TEXT NOT NULL,
			direction TEXT NOT NULL,
			lot DOUBLE PRECISION NOT NULL,
			entry_price DOUBLE PRECISION NOT NULL,
			stop_loss DOUBLE PRECISION NOT NULL,
			take_profit DOUBLE PRECISION NOT NULL,
			margin DOUBLE PRECISION NOT NULL,
			risk_amount DOUBLE PRECISION NOT NULL,
			risk_percent DOUBLE PRECISION NOT NULL,
			opened_at TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	_, _ = db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS candidate_signals_created_at_idx
		ON candidate_signals (created_at DESC)
	`)
	return nil
}

// SaveSignal inserts a candidate signal, overwriting an existing row with the same id
func (db *DB) SaveSignal(ctx context.Context, s model.CandidateSignal) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO candidate_signals (
			id, symbol, direction, entry_price, stop_loss, take_profit, strength,
			success_probability, risk_reward, status, key_timeframes,
			forecast_direction, forecast_confidence, reason, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id)
		DO UPDATE SET
			status = EXCLUDED.status,
			reason = EXCLUDED.reason,
			updated_at = EXCLUDED.updated_at
	`,
		s.ID, s.Symbol, s.Direction, s.EntryPrice, s.StopLoss, s.TakeProfit, s.Strength,
		s.SuccessProbability, s.RiskReward, s.Status, pq.Array(timeframeStrings(s.KeyTimeframes)),
		s.Forecast.Direction, s.Forecast.Confidence, s.Reason, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save signal %s: %w", s.ID, err)
	}
	return nil
}

// UpdateSignalStatus records a status transition
func (db *DB) UpdateSignalStatus(ctx context.Context, id string, status model.SignalStatus, reason string, at time.Time) error {
	_, err := db.ExecContext(ctx, `
		UPDATE candidate_signals
		SET status = $1, reason = $2, updated_at = $3
		WHERE id = $4
	`, status, reason, at, id)
	if err != nil {
		return fmt.Errorf("update signal %s: %w", id, err)
	}
	return nil
}

// TradeRecord is an executed position together with the risk it consumed
type TradeRecord struct {
	Position    model.Position
	RiskAmount  float64
	RiskPercent float64
}

// SaveTrade journals an executed trade
func (db *DB) SaveTrade(ctx context.Context, t TradeRecord) error {
	p := t.Position
	var signalID sql.NullString
	if p.SignalID != "" {
		signalID = sql.NullString{String: p.SignalID, Valid: true}
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO trades (
			ticket, signal_id, symbol, direction, lot, entry_price, stop_loss,
			take_profit, margin, risk_amount, risk_percent, opened_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		p.Ticket, signalID, p.Symbol, p.Direction, p.Lot, p.EntryPrice, p.StopLoss,
		p.TakeProfit, p.Margin, t.RiskAmount, t.RiskPercent, p.OpenedAt)
	if err != nil {
		return fmt.Errorf("save trade %s: %w", p.Ticket, err)
	}
	return nil
}

// RecentSignals returns up to limit journaled signals, newest first
func (db *DB) RecentSignals(ctx context.Context, limit int) ([]model.CandidateSignal, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT
			id, symbol, direction, entry_price, stop_loss, take_profit, strength,
			success_probability, risk_reward, status, key_timeframes,
			forecast_direction, forecast_confidence, reason, created_at, updated_at
		FROM candidate_signals
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	var out []model.CandidateSignal
	for rows.Next() {
		var (
			s          model.CandidateSignal
			timeframes []string
			fcDir      sql.NullString
			fcConf     sql.NullFloat64
			reason     sql.NullString
		)
		if err := rows.Scan(
			&s.ID, &s.Symbol, &s.Direction, &s.EntryPrice, &s.StopLoss, &s.TakeProfit, &s.Strength,
			&s.SuccessProbability, &s.RiskReward, &s.Status, pq.Array(&timeframes),
			&fcDir, &fcConf, &reason, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		for _, tf := range timeframes {
			s.KeyTimeframes = append(s.KeyTimeframes, model.Timeframe(tf))
		}
		if fcDir.Valid {
			s.Forecast.Direction = model.Signal(fcDir.String)
		}
		if fcConf.Valid {
			s.Forecast.Confidence = fcConf.Float64
		}
		if reason.Valid {
			s.Reason = reason.String
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SignalListener returns a store listener that journals every created signal
// and status change. Write failures are logged, never propagated.
func (db *DB) SignalListener(timeout time.Duration) signal.Listener {
	return func(prev model.SignalStatus, s model.CandidateSignal) {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		var err error
		if prev == "" {
			err = db.SaveSignal(ctx, s)
		} else {
			err = db.UpdateSignalStatus(ctx, s.ID, s.Status, s.Reason, s.UpdatedAt)
		}
		if err != nil {
			db.logger.Error().Err(err).Str("signal_id", s.ID).Msg("Failed to journal signal")
		}
	}
}

func timeframeStrings(tfs []model.Timeframe) []string {
	out := make([]string, len(tfs))
	for i, tf := range tfs {
		out[i] = string(tf)
	}
	return out
}
