// Package server exposes the control API: signal listing, manual
// confirmation, the risk summary and Prometheus metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/fxsignal/internal/model"
	"github.com/Alias1177/fxsignal/internal/scanner"
	"github.com/Alias1177/fxsignal/internal/trading/risk"
	"github.com/Alias1177/fxsignal/internal/trading/signal"
)

// Signals is the read side of the signal store
type Signals interface {
	Get(id string) (model.CandidateSignal, error)
	List(f signal.Filter) []model.CandidateSignal
	Counts() map[model.SignalStatus]int
}

// Trader applies operator decisions and reports the risk budget
type Trader interface {
	Confirm(ctx context.Context, id string) error
	Reject(ctx context.Context, id, reason string) error
	Summary(ctx context.Context) (risk.Summary, error)
	History(days int) []risk.Commitment
}

// Journal reads persisted signals
type Journal interface {
	RecentSignals(ctx context.Context, limit int) ([]model.CandidateSignal, error)
}

// ErrorResponse is the body of every non-2xx answer
type ErrorResponse struct {
	Error string `json:"error"`
}

type rejectRequest struct {
	Reason string `json:"reason" default:"rejected via API" validate:"max=200"`
}

type historyRequest struct {
	Days int `query:"days" default:"7" validate:"min=1,max=90"`
}

type journalRequest struct {
	Limit int `query:"limit" default:"50" validate:"min=1,max=500"`
}

type requestValidator struct {
	v *validator.Validate
}

func (rv *requestValidator) Validate(i any) error {
	return rv.v.Struct(i)
}

// Server wraps the Echo instance
type Server struct {
	echo    *echo.Echo
	signals Signals
	trader  Trader
	journal Journal
	logger  zerolog.Logger
}

// Option configures a Server
type Option func(*Server)

// WithJournal serves persisted signals under /journal
func WithJournal(j Journal) Option {
	return func(s *Server) { s.journal = j }
}

// New builds the router. metrics may be nil.
func New(signals Signals, trader Trader, metrics http.Handler, opts ...Option) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &requestValidator{v: validator.New()}

	s := &Server{
		echo:    e,
		signals: signals,
		trader:  trader,
		logger:  log.With().Str("component", "http_server").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Debug().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("Request")
			return nil
		},
	}))

	e.GET("/healthz", s.health)
	e.GET("/signals", s.listSignals)
	e.GET("/signals/:id", s.getSignal)
	e.POST("/signals/:id/confirm", s.confirmSignal)
	e.POST("/signals/:id/reject", s.rejectSignal)
	e.GET("/risk", s.riskSummary)
	e.GET("/risk/history", s.riskHistory)
	if s.journal != nil {
		e.GET("/journal", s.recentJournal)
	}
	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(metrics))
	}
	return s
}

// Handler returns the router for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on addr until Shutdown is called
func (s *Server) Start(addr string) error {
	s.logger.Info().Str("addr", addr).Msg("HTTP server listening")
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "ok",
		"time":    time.Now().UTC(),
		"signals": s.signals.Counts(),
	})
}

func (s *Server) listSignals(c echo.Context) error {
	var f signal.Filter
	if err := bindAndValidate(c, &f); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, s.signals.List(f))
}

func (s *Server) getSignal(c echo.Context) error {
	sig, err := s.signals.Get(c.Param("id"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, sig)
}

func (s *Server) confirmSignal(c echo.Context) error {
	id := c.Param("id")
	if err := s.trader.Confirm(c.Request().Context(), id); err != nil {
		return errorJSON(c, err)
	}
	sig, err := s.signals.Get(id)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, sig)
}

func (s *Server) rejectSignal(c echo.Context) error {
	var req rejectRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
		}
	}
	if err := defaults.Set(&req); err != nil {
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}

	id := c.Param("id")
	if err := s.trader.Reject(c.Request().Context(), id, req.Reason); err != nil {
		return errorJSON(c, err)
	}
	sig, err := s.signals.Get(id)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, sig)
}

func (s *Server) riskSummary(c echo.Context) error {
	summary, err := s.trader.Summary(c.Request().Context())
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, summary)
}

func (s *Server) riskHistory(c echo.Context) error {
	var req historyRequest
	if err := bindAndValidate(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}
	history := s.trader.History(req.Days)
	if history == nil {
		history = []risk.Commitment{}
	}
	return c.JSON(http.StatusOK, history)
}

func (s *Server) recentJournal(c echo.Context) error {
	var req journalRequest
	if err := bindAndValidate(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}
	signals, err := s.journal.RecentSignals(c.Request().Context(), req.Limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read journal")
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "journal unavailable"})
	}
	return c.JSON(http.StatusOK, signals)
}

// bindAndValidate binds query parameters, fills defaults and validates
func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return fmt.Errorf("%v", he.Message)
		}
		return err
	}
	if err := defaults.Set(req); err != nil {
		return err
	}
	return c.Validate(req)
}

// errorJSON maps domain errors onto HTTP status codes
func errorJSON(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, signal.ErrSignalNotFound):
		status = http.StatusNotFound
	case errors.Is(err, signal.ErrTerminalStatus), errors.Is(err, scanner.ErrExpired):
		status = http.StatusConflict
	case errors.Is(err, scanner.ErrRiskRejected), errors.Is(err, signal.ErrInvalidStatus):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, scanner.ErrUpstreamUnavailable):
		status = http.StatusBadGateway
	}
	return c.JSON(status, ErrorResponse{Error: err.Error()})
}
