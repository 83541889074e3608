// Package signal keeps candidate signals and enforces their one-way
// lifecycle: pending moves to executed, rejected or expired exactly once.
package signal

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/fxsignal/internal/model"
)

var (
	ErrSignalNotFound = errors.New("signal not found")
	ErrTerminalStatus = errors.New("signal already in a terminal status")
	ErrInvalidStatus  = errors.New("invalid target status")
	ErrDailyLimit     = errors.New("daily signal limit reached")
)

// Config bounds the store
type Config struct {
	HistorySize int `yaml:"history_size" default:"100" validate:"gte=1"`
	MaxPerDay   int `yaml:"max_per_day" default:"10" validate:"gte=0"`
}

// DefaultConfig keeps 100 signals and allows 10 per day
func DefaultConfig() Config {
	return Config{HistorySize: 100, MaxPerDay: 10}
}

// Listener is told about every stored signal and status change. prev is empty
// for a newly created signal.
type Listener func(prev model.SignalStatus, s model.CandidateSignal)

// Filter narrows List. Zero fields match everything.
type Filter struct {
	Status model.SignalStatus `query:"status" validate:"omitempty,oneof=pending executed rejected expired"`
	Symbol string             `query:"symbol"`
	Limit  int                `query:"limit" default:"50" validate:"gte=0,lte=100"`
}

// Store is an in-memory, bounded signal history safe for concurrent use
type Store struct {
	mu        sync.Mutex
	cfg       Config
	signals   map[string]*model.CandidateSignal
	order     []string
	day       string
	dayCount  int
	listeners []Listener
	now       func() time.Time
	logger    zerolog.Logger
}

// NewStore creates an empty store
func NewStore(cfg Config) *Store {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultConfig().HistorySize
	}
	return &Store{
		cfg:     cfg,
		signals: make(map[string]*model.CandidateSignal),
		now:     time.Now,
		logger:  log.With().Str("component", "signal_store").Logger(),
	}
}

// OnChange registers a listener. Listeners run synchronously after the store
// lock is released.
func (s *Store) OnChange(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Create stores a new pending signal, assigning an id when missing. It fails
// with ErrDailyLimit once the day's quota is used.
func (s *Store) Create(c model.CandidateSignal) (model.CandidateSignal, error) {
	s.mu.Lock()
	now := s.now()
	day := now.UTC().Format(time.DateOnly)
	if day != s.day {
		s.day, s.dayCount = day, 0
	}
	if s.cfg.MaxPerDay > 0 && s.dayCount >= s.cfg.MaxPerDay {
		s.mu.Unlock()
		return c, fmt.Errorf("%w: %d on %s", ErrDailyLimit, s.dayCount, day)
	}

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if _, exists := s.signals[c.ID]; exists {
		s.mu.Unlock()
		return c, fmt.Errorf("signal %s already stored", c.ID)
	}
	c.Status = model.StatusPending
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	stored := c
	s.signals[c.ID] = &stored
	s.order = append(s.order, c.ID)
	s.dayCount++
	s.evict()
	listeners := s.listeners
	s.mu.Unlock()

	s.logger.Info().
		Str("id", c.ID).
		Str("symbol", c.Symbol).
		Str("direction", string(c.Direction)).
		Float64("probability", c.SuccessProbability).
		Msg("Signal stored")
	for _, l := range listeners {
		l("", c)
	}
	return c, nil
}

// evict drops the oldest signals beyond the history size. Caller holds mu.
func (s *Store) evict() {
	for len(s.order) > s.cfg.HistorySize {
		delete(s.signals, s.order[0])
		s.order = s.order[1:]
	}
}

// Get returns a copy of the signal with the given id
func (s *Store) Get(id string) (model.CandidateSignal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.signals[id]
	if !ok {
		return model.CandidateSignal{}, fmt.Errorf("%w: %s", ErrSignalNotFound, id)
	}
	return *c, nil
}

// List returns matching signals, newest first
func (s *Store) List(f Filter) []model.CandidateSignal {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.CandidateSignal, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		c := s.signals[s.order[i]]
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if f.Symbol != "" && c.Symbol != f.Symbol {
			continue
		}
		out = append(out, *c)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out
}

// Transition moves a pending signal to a terminal status. Only the first
// transition out of pending succeeds; later ones get ErrTerminalStatus.
func (s *Store) Transition(id string, to model.SignalStatus, reason string) (model.CandidateSignal, error) {
	if !to.Valid() || !to.IsTerminal() {
		return model.CandidateSignal{}, fmt.Errorf("%w: %q", ErrInvalidStatus, to)
	}

	s.mu.Lock()
	c, ok := s.signals[id]
	if !ok {
		s.mu.Unlock()
		return model.CandidateSignal{}, fmt.Errorf("%w: %s", ErrSignalNotFound, id)
	}
	if c.Status.IsTerminal() {
		current := *c
		s.mu.Unlock()
		return current, fmt.Errorf("%w: %s is %s", ErrTerminalStatus, id, current.Status)
	}
	prev := c.Status
	c.Status = to
	c.UpdatedAt = s.now()
	if reason != "" {
		c.Reason = reason
	}
	updated := *c
	listeners := s.listeners
	s.mu.Unlock()

	s.logger.Info().
		Str("id", id).
		Str("from", string(prev)).
		Str("to", string(to)).
		Str("reason", reason).
		Msg("Signal status changed")
	for _, l := range listeners {
		l(prev, updated)
	}
	return updated, nil
}

// ExpireStale expires every pending signal created more than timeout before
// now and returns the expired signals
func (s *Store) ExpireStale(now time.Time, timeout time.Duration) []model.CandidateSignal {
	s.mu.Lock()
	var stale []string
	for _, id := range s.order {
		c := s.signals[id]
		if c.Status == model.StatusPending && now.Sub(c.CreatedAt) > timeout {
			stale = append(stale, id)
		}
	}
	s.mu.Unlock()

	var expired []model.CandidateSignal
	for _, id := range stale {
		// a confirmation may have won the race since the scan
		c, err := s.Transition(id, model.StatusExpired, "confirmation timeout")
		if err != nil {
			continue
		}
		expired = append(expired, c)
	}
	return expired
}

// Counts returns the number of stored signals per status
func (s *Store) Counts() map[model.SignalStatus]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[model.SignalStatus]int, 4)
	for _, c := range s.signals {
		counts[c.Status]++
	}
	return counts
}

// TodayCount is the number of signals created on the current UTC day
func (s *Store) TodayCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.now().UTC().Format(time.DateOnly) != s.day {
		return 0
	}
	return s.dayCount
}
