package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/fxsignal/internal/broker"
	"github.com/Alias1177/fxsignal/internal/database"
	"github.com/Alias1177/fxsignal/internal/model"
	"github.com/Alias1177/fxsignal/internal/notify"
	"github.com/Alias1177/fxsignal/internal/trading/risk"
	"github.com/Alias1177/fxsignal/internal/trading/signal"
)

var (
	// ErrRiskRejected is returned by Confirm when the risk manager refuses the trade
	ErrRiskRejected = errors.New("rejected by risk manager")
	// ErrExpired is returned by Confirm when the confirmation window has passed
	ErrExpired = errors.New("confirmation window expired")
)

// TradeJournal persists executed trades
type TradeJournal interface {
	SaveTrade(ctx context.Context, t database.TradeRecord) error
}

// RiskObserver is told about budget usage after every trade and sweep
type RiskObserver interface {
	SetRisk(daily, weekly float64, openPositions int)
}

// Trader turns operator decisions into executed or rejected signals. Every
// writer of a signal's status goes through the trader lock, so a confirmation
// and an expiry can never both act on the same signal.
type Trader struct {
	mu       sync.Mutex
	store    *signal.Store
	risk     *risk.Manager
	broker   broker.Broker
	notifier notify.Notifier
	journal  TradeJournal
	observer RiskObserver
	timeout  time.Duration
	now      func() time.Time
	logger   zerolog.Logger
}

// TraderOption configures a Trader
type TraderOption func(*Trader)

// WithJournal records executed trades in j
func WithJournal(j TradeJournal) TraderOption {
	return func(t *Trader) { t.journal = j }
}

// WithRiskObserver publishes budget usage to o
func WithRiskObserver(o RiskObserver) TraderOption {
	return func(t *Trader) { t.observer = o }
}

// NewTrader creates a trader. timeout is how long a signal may stay pending.
func NewTrader(store *signal.Store, rm *risk.Manager, b broker.Broker, n notify.Notifier, timeout time.Duration, opts ...TraderOption) *Trader {
	if n == nil {
		n = notify.Nop{}
	}
	t := &Trader{
		store:    store,
		risk:     rm,
		broker:   b,
		notifier: n,
		timeout:  timeout,
		now:      time.Now,
		logger:   log.With().Str("component", "trader").Logger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// request collects the live account state for s
func (t *Trader) request(ctx context.Context, s model.CandidateSignal) (risk.Request, error) {
	account, err := t.broker.Account(ctx)
	if err != nil {
		return risk.Request{}, fmt.Errorf("%w: account: %v", ErrUpstreamUnavailable, err)
	}
	info, err := t.broker.Symbol(ctx, s.Symbol)
	if err != nil {
		return risk.Request{}, fmt.Errorf("%w: symbol %s: %v", ErrUpstreamUnavailable, s.Symbol, err)
	}
	positions, err := t.broker.OpenPositions(ctx)
	if err != nil {
		return risk.Request{}, fmt.Errorf("%w: positions: %v", ErrUpstreamUnavailable, err)
	}
	return risk.Request{Signal: s, Account: account, Symbol: info, Positions: positions}, nil
}

// Preview sizes s and runs the admission checks without committing anything
func (t *Trader) Preview(ctx context.Context, s model.CandidateSignal) (risk.Decision, risk.SizingResult, error) {
	req, err := t.request(ctx, s)
	if err != nil {
		return risk.Decision{}, risk.SizingResult{}, err
	}
	d, sizing := t.risk.CanOpen(req, t.now())
	return d, sizing, nil
}

// Confirm executes a pending signal. A risk rejection or a refused order
// moves the signal to rejected. Upstream failures leave it pending.
func (t *Trader) Confirm(ctx context.Context, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, err := t.store.Get(id)
	if err != nil {
		return err
	}
	if s.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", signal.ErrTerminalStatus, id, s.Status)
	}
	now := t.now()
	if t.timeout > 0 && now.Sub(s.CreatedAt) > t.timeout {
		t.transition(id, model.StatusExpired, "confirmation timeout")
		return fmt.Errorf("%w: %s", ErrExpired, id)
	}

	req, err := t.request(ctx, s)
	if err != nil {
		return err
	}
	exec, err := t.risk.Open(ctx, req, now, t.broker.PlaceOrder)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		t.transition(id, model.StatusRejected, "execution failed: "+err.Error())
		return err
	}
	if !exec.Decision.Allowed {
		t.transition(id, model.StatusRejected, exec.Decision.Reason)
		if err := t.notifier.SendText(ctx, fmt.Sprintf("%s %s rejected: %s", s.Symbol, s.Direction, exec.Decision.Reason)); err != nil {
			t.logger.Warn().Err(err).Msg("Failed to send rejection notice")
		}
		return fmt.Errorf("%w: %s", ErrRiskRejected, exec.Decision.Reason)
	}

	executed, ok := t.transition(id, model.StatusExecuted, fmt.Sprintf("ticket %s, lot %.2f", exec.Position.Ticket, exec.Sizing.Lot))
	if !ok {
		executed = s
	}

	if t.journal != nil {
		rec := database.TradeRecord{Position: exec.Position, RiskAmount: exec.Sizing.RiskAmount, RiskPercent: exec.Sizing.RiskPercent}
		if err := t.journal.SaveTrade(ctx, rec); err != nil {
			t.logger.Error().Err(err).Str("ticket", exec.Position.Ticket).Msg("Failed to journal trade")
		}
	}
	if err := t.notifier.SendTradeNotification(ctx, executed, exec.Position); err != nil {
		t.logger.Warn().Err(err).Msg("Failed to send trade notification")
	}
	t.publishRisk(ctx)
	return nil
}

// Reject moves a pending signal to rejected
func (t *Trader) Reject(_ context.Context, id, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := t.store.Transition(id, model.StatusRejected, reason)
	return err
}

// ExpireStale expires every pending signal older than the timeout
func (t *Trader) ExpireStale(now time.Time) []model.CandidateSignal {
	if t.timeout <= 0 {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	expired := t.store.ExpireStale(now, t.timeout)
	for _, s := range expired {
		t.logger.Info().Str("signal_id", s.ID).Str("symbol", s.Symbol).Msg("Signal expired without confirmation")
	}
	return expired
}

// ObservePrices lets a simulating broker settle stops and targets against
// the latest bar of symbol
func (t *Trader) ObservePrices(ctx context.Context, symbol string, bar model.Bar) {
	po, ok := t.broker.(broker.PriceObserver)
	if !ok {
		return
	}
	closed := po.ObservePrice(symbol, bar)
	for _, c := range closed {
		msg := fmt.Sprintf("Closed %s %s at %.5f, profit %.2f", c.Position.Symbol, c.Position.Direction, c.ExitPrice, c.Profit)
		if err := t.notifier.SendText(ctx, msg); err != nil {
			t.logger.Warn().Err(err).Msg("Failed to send close notice")
		}
	}
	if len(closed) > 0 {
		t.publishRisk(ctx)
	}
}

// Summary reports the risk budget together with the live position count
func (t *Trader) Summary(ctx context.Context) (risk.Summary, error) {
	positions, err := t.broker.OpenPositions(ctx)
	if err != nil {
		return risk.Summary{}, fmt.Errorf("%w: positions: %v", ErrUpstreamUnavailable, err)
	}
	return t.risk.Summary(t.now(), len(positions)), nil
}

// History returns the risk commitments of the last days days
func (t *Trader) History(days int) []risk.Commitment {
	return t.risk.History(t.now(), days)
}

func (t *Trader) publishRisk(ctx context.Context) {
	if t.observer == nil {
		return
	}
	s, err := t.Summary(ctx)
	if err != nil {
		return
	}
	t.observer.SetRisk(s.DailyUsed, s.WeeklyUsed, s.OpenPositions)
}

// transition applies a status change. Caller holds mu.
func (t *Trader) transition(id string, to model.SignalStatus, reason string) (model.CandidateSignal, bool) {
	s, err := t.store.Transition(id, to, reason)
	if err != nil {
		t.logger.Error().Err(err).Str("signal_id", id).Str("to", string(to)).Msg("Status transition refused")
		return s, false
	}
	return s, true
}
