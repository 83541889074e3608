// Package risk sizes candidate signals and admits or rejects them against
// position limits and the rolling daily and weekly risk budgets.
package risk

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/fxsignal/internal/model"
)

// Limits are the account-wide risk settings. Percentages are of balance.
type Limits struct {
	MaxRiskPercent        float64 `yaml:"max_risk_percent" default:"2" validate:"gt=0,lte=100"`
	MaxDailyRiskPercent   float64 `yaml:"max_daily_risk_percent" default:"5" validate:"gtefield=MaxRiskPercent"`
	MaxWeeklyRiskPercent  float64 `yaml:"max_weekly_risk_percent" default:"10" validate:"gtefield=MaxDailyRiskPercent"`
	MaxOpenPositions      int     `yaml:"max_open_positions" default:"5" validate:"gte=1"`
	MaxPositionsPerSymbol int     `yaml:"max_positions_per_symbol" default:"2" validate:"gte=1"`
	MaxLot                float64 `yaml:"max_lot" default:"1" validate:"gt=0"`
	MinLot                float64 `yaml:"min_lot" default:"0.01" validate:"gt=0"`
	MinRiskReward         float64 `yaml:"min_risk_reward" default:"1.5" validate:"gte=0"`
	HistorySize           int     `yaml:"history_size" default:"500" validate:"gte=1"`
	DefaultLeverage       int     `yaml:"default_leverage" default:"100" validate:"gte=1"`
}

// DefaultLimits returns the standard risk settings
func DefaultLimits() Limits {
	return Limits{
		MaxRiskPercent:        2,
		MaxDailyRiskPercent:   5,
		MaxWeeklyRiskPercent:  10,
		MaxOpenPositions:      5,
		MaxPositionsPerSymbol: 2,
		MaxLot:                1,
		MinLot:                0.01,
		MinRiskReward:         1.5,
		HistorySize:           500,
		DefaultLeverage:       100,
	}
}

// Request is everything needed to size and admit one candidate
type Request struct {
	Signal    model.CandidateSignal
	Account   model.AccountSnapshot
	Symbol    model.SymbolInfo
	Positions []model.Position
}

// Decision is the admission verdict. Reason is set on rejection.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

func reject(format string, args ...any) Decision {
	return Decision{Reason: fmt.Sprintf(format, args...)}
}

// SizingResult is the sized order. RiskAmount and RiskPercent are realized
// after lot rounding. RequestedRisk is the capped amount before rounding.
type SizingResult struct {
	Lot           float64 `json:"lot"`
	RawLot        float64 `json:"raw_lot"`
	RequestedRisk float64 `json:"requested_risk"`
	RiskAmount    float64 `json:"risk_amount"`
	RiskPercent   float64 `json:"risk_percent"`
	StopPips      float64 `json:"stop_pips"`
	TargetPips    float64 `json:"target_pips"`
	PipValue      float64 `json:"pip_value"`
	Margin        float64 `json:"margin"`
	Available     float64 `json:"available"`
}

// Summary reports the state of the budget
type Summary struct {
	DailyUsed       float64   `json:"daily_used"`
	DailyLimit      float64   `json:"daily_limit"`
	DailyRemaining  float64   `json:"daily_remaining"`
	WeeklyUsed      float64   `json:"weekly_used"`
	WeeklyLimit     float64   `json:"weekly_limit"`
	WeeklyRemaining float64   `json:"weekly_remaining"`
	TradesToday     int       `json:"trades_today"`
	AvgRiskToday    float64   `json:"avg_risk_today"`
	OpenPositions   int       `json:"open_positions"`
	LastDailyReset  time.Time `json:"last_daily_reset"`
	LastWeeklyReset time.Time `json:"last_weekly_reset"`
}

// Executor places a sized order and returns the opened position
type Executor func(ctx context.Context, order model.Order) (model.Position, error)

// Execution is the outcome of Open
type Execution struct {
	Decision Decision       `json:"decision"`
	Sizing   SizingResult   `json:"sizing"`
	Position model.Position `json:"position"`
}

// Manager owns the risk budget of one account
type Manager struct {
	limits      Limits
	instruments *Instruments
	budget      *Budget

	// serializes admission, execution and commit
	mu     sync.Mutex
	logger zerolog.Logger
}

// NewManager creates a manager over the given budget
func NewManager(limits Limits, instruments *Instruments, budget *Budget) *Manager {
	if instruments == nil {
		instruments = DefaultInstruments()
	}
	if budget == nil {
		budget = NewBudget(limits.HistorySize, time.UTC)
	}
	return &Manager{
		limits:      limits,
		instruments: instruments,
		budget:      budget,
		logger:      log.With().Str("component", "risk_manager").Logger(),
	}
}

// Limits returns the configured limits
func (m *Manager) Limits() Limits {
	return m.limits
}

// RiskPercentFor steps the per-trade risk by success probability: the full
// ceiling at 80 and above, 80% at 70, 60% at 60, half below that
func (m *Manager) RiskPercentFor(probability float64) float64 {
	switch {
	case probability >= 80:
		return m.limits.MaxRiskPercent
	case probability >= 70:
		return m.limits.MaxRiskPercent * 0.8
	case probability >= 60:
		return m.limits.MaxRiskPercent * 0.6
	}
	return m.limits.MaxRiskPercent * 0.5
}

// Size computes lot and risk for the request as of now
func (m *Manager) Size(req Request, now time.Time) SizingResult {
	var res SizingResult
	c := req.Signal
	balance := req.Account.Balance
	if balance <= 0 {
		return res
	}

	inst := m.instruments.Lookup(c.Symbol)
	contract := req.Symbol.ContractSize
	if contract <= 0 {
		contract = inst.ContractSize
	}
	pip := inst.PipSize
	inst.ContractSize = contract
	res.PipValue = inst.AccountPipValue(c.Symbol, req.Account.Currency, c.EntryPrice)
	res.StopPips = math.Abs(c.EntryPrice-c.StopLoss) / pip
	res.TargetPips = math.Abs(c.TakeProfit-c.EntryPrice) / pip

	daily, weekly := m.budget.Used(now)
	remaining := math.Max(0, math.Min(m.limits.MaxDailyRiskPercent-daily, m.limits.MaxWeeklyRiskPercent-weekly))
	res.Available = balance * remaining / 100

	riskPercent := m.RiskPercentFor(c.SuccessProbability)
	res.RequestedRisk = balance * riskPercent / 100
	if res.RequestedRisk > res.Available {
		res.RequestedRisk = res.Available
	}

	if res.StopPips > 0 && res.PipValue > 0 {
		res.RawLot = res.RequestedRisk / (res.StopPips * res.PipValue)
	}

	step := req.Symbol.LotStep
	if step <= 0 {
		step = inst.LotStep
	}
	minLot := math.Max(req.Symbol.LotMin, m.limits.MinLot)
	maxLot := m.limits.MaxLot
	if req.Symbol.LotMax > 0 {
		maxLot = math.Min(maxLot, req.Symbol.LotMax)
	}

	// floor to the step so rounding never adds risk
	lot := math.Floor(res.RawLot/step+1e-6) * step
	lot = math.Round(lot*1e8) / 1e8
	if lot-res.RawLot > 1e-12 {
		lot = math.Round((lot-step)*1e8) / 1e8
	}
	res.Lot = math.Max(minLot, math.Min(lot, maxLot))

	res.RiskAmount = res.Lot * res.StopPips * res.PipValue
	res.RiskPercent = res.RiskAmount / balance * 100

	leverage := req.Account.Leverage
	if leverage <= 0 {
		leverage = m.limits.DefaultLeverage
	}
	res.Margin = ToAccount(c.Symbol, req.Account.Currency, Margin(res.Lot, contract, c.EntryPrice, leverage), c.EntryPrice)
	return res
}

// Margin is the collateral for lot lots at price under leverage, in the
// quote currency
func Margin(lot, contractSize, price float64, leverage int) float64 {
	if leverage <= 0 {
		return lot * contractSize * price
	}
	return lot * contractSize * price / float64(leverage)
}

// CanOpen admits or rejects the request. Checks run in order: open position
// ceiling, per-symbol ceiling, free margin, remaining budget, minimum lot,
// sized risk within budget, risk/reward floor.
func (m *Manager) CanOpen(req Request, now time.Time) (Decision, SizingResult) {
	sizing := m.Size(req, now)
	c := req.Signal

	if len(req.Positions) >= m.limits.MaxOpenPositions {
		return reject("maximum open positions reached (%d)", m.limits.MaxOpenPositions), sizing
	}
	perSymbol := 0
	for _, p := range req.Positions {
		if p.Symbol == c.Symbol {
			perSymbol++
		}
	}
	if perSymbol >= m.limits.MaxPositionsPerSymbol {
		return reject("maximum positions for %s reached (%d)", c.Symbol, m.limits.MaxPositionsPerSymbol), sizing
	}
	if req.Account.Balance <= 0 {
		return reject("account balance unavailable"), sizing
	}
	if sizing.Margin > req.Account.FreeMargin {
		return reject("insufficient margin: required %.2f, free %.2f", sizing.Margin, req.Account.FreeMargin), sizing
	}
	if sizing.Available <= 1e-9 {
		return reject("daily or weekly risk budget exhausted"), sizing
	}
	minLot := math.Max(req.Symbol.LotMin, m.limits.MinLot)
	if sizing.RawLot+1e-6 < minLot {
		return reject("lot %.4f below minimum %.2f", sizing.RawLot, minLot), sizing
	}
	if sizing.RiskAmount > sizing.Available*(1+1e-9) {
		return reject("sized risk %.2f exceeds remaining budget %.2f", sizing.RiskAmount, sizing.Available), sizing
	}
	if c.RiskReward < m.limits.MinRiskReward {
		return reject("risk/reward too low: %.2f < %.2f", c.RiskReward, m.limits.MinRiskReward), sizing
	}
	return Decision{Allowed: true}, sizing
}

// Commit records an executed trade against the budget. It is the only place
// the budget changes.
func (m *Manager) Commit(c Commitment) {
	m.budget.Commit(c)
	daily, weekly := m.budget.Used(c.Time)
	m.logger.Info().
		Str("signal_id", c.SignalID).
		Str("symbol", c.Symbol).
		Float64("lot", c.Lot).
		Float64("risk_percent", c.RiskPercent).
		Float64("daily_used", daily).
		Float64("weekly_used", weekly).
		Msg("Risk committed")
}

// Open re-checks admission, executes the order and commits its risk while
// holding the manager lock, so concurrent confirmations cannot overspend the
// budget. A rejection is reported in the Decision with a nil error. An
// executor failure commits nothing.
func (m *Manager) Open(ctx context.Context, req Request, now time.Time, exec Executor) (Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	decision, sizing := m.CanOpen(req, now)
	out := Execution{Decision: decision, Sizing: sizing}
	if !decision.Allowed {
		m.logger.Warn().
			Str("signal_id", req.Signal.ID).
			Str("symbol", req.Signal.Symbol).
			Str("reason", decision.Reason).
			Msg("Trade rejected by risk manager")
		return out, nil
	}
	if err := ctx.Err(); err != nil {
		return out, err
	}

	c := req.Signal
	pos, err := exec(ctx, model.Order{
		SignalID:   c.ID,
		Symbol:     c.Symbol,
		Direction:  c.Direction,
		Lot:        sizing.Lot,
		EntryPrice: c.EntryPrice,
		StopLoss:   c.StopLoss,
		TakeProfit: c.TakeProfit,
	})
	if err != nil {
		return out, fmt.Errorf("execute %s: %w", c.ID, err)
	}
	out.Position = pos

	m.Commit(Commitment{
		Time:        now,
		SignalID:    c.ID,
		Symbol:      c.Symbol,
		Lot:         sizing.Lot,
		RiskAmount:  sizing.RiskAmount,
		RiskPercent: sizing.RiskPercent,
		Balance:     req.Account.Balance,
	})
	return out, nil
}

// Summary reports budget usage as of now
func (m *Manager) Summary(now time.Time, openPositions int) Summary {
	daily, weekly := m.budget.Used(now)
	lastDaily, lastWeekly := m.budget.resets(now)
	s := Summary{
		DailyUsed:       daily,
		DailyLimit:      m.limits.MaxDailyRiskPercent,
		DailyRemaining:  math.Max(0, m.limits.MaxDailyRiskPercent-daily),
		WeeklyUsed:      weekly,
		WeeklyLimit:     m.limits.MaxWeeklyRiskPercent,
		WeeklyRemaining: math.Max(0, m.limits.MaxWeeklyRiskPercent-weekly),
		OpenPositions:   openPositions,
		LastDailyReset:  lastDaily,
		LastWeeklyReset: lastWeekly,
	}

	var total float64
	for _, c := range m.budget.History(lastDaily) {
		s.TradesToday++
		total += c.RiskPercent
	}
	if s.TradesToday > 0 {
		s.AvgRiskToday = total / float64(s.TradesToday)
	}
	return s
}

// History returns commitments from the last days days
func (m *Manager) History(now time.Time, days int) []Commitment {
	return m.budget.History(now.AddDate(0, 0, -days))
}
