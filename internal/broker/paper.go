// Package broker abstracts order execution and account state.
package broker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/fxsignal/internal/model"
	"github.com/Alias1177/fxsignal/internal/trading/risk"
)

var (
	// ErrOrderRejected is returned when the venue refuses an order
	ErrOrderRejected = errors.New("order rejected")
	// ErrPositionNotFound is returned when closing an unknown ticket
	ErrPositionNotFound = errors.New("position not found")
)

// Broker is the execution adapter used by the trade pipeline
type Broker interface {
	Account(ctx context.Context) (model.AccountSnapshot, error)
	Symbol(ctx context.Context, symbol string) (model.SymbolInfo, error)
	OpenPositions(ctx context.Context) ([]model.Position, error)
	PlaceOrder(ctx context.Context, order model.Order) (model.Position, error)
}

// PriceObserver is implemented by brokers that settle stops and targets from
// observed prices
type PriceObserver interface {
	ObservePrice(symbol string, bar model.Bar) []ClosedPosition
}

// ClosedPosition is a position settled by the paper broker
type ClosedPosition struct {
	Position  model.Position `json:"position"`
	ExitPrice float64        `json:"exit_price"`
	Profit    float64        `json:"profit"`
	ClosedAt  time.Time      `json:"closed_at"`
}

// PaperConfig configures the simulated account
type PaperConfig struct {
	Balance  float64
	Leverage int
	Currency string
}

// Paper is an in-memory broker. Margin and profit are converted into the
// account currency when it is a leg of the traded pair.
type Paper struct {
	mu          sync.Mutex
	cfg         PaperConfig
	balance     float64
	positions   []model.Position
	closed      []ClosedPosition
	instruments *risk.Instruments
	now         func() time.Time
	logger      zerolog.Logger
}

// NewPaper creates a paper account
func NewPaper(cfg PaperConfig, instruments *risk.Instruments) *Paper {
	if cfg.Leverage <= 0 {
		cfg.Leverage = 100
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	if instruments == nil {
		instruments = risk.DefaultInstruments()
	}
	return &Paper{
		cfg:         cfg,
		balance:     cfg.Balance,
		instruments: instruments,
		now:         time.Now,
		logger:      log.With().Str("component", "paper_broker").Logger(),
	}
}

// SetClock replaces the clock used to stamp opened and closed positions
func (p *Paper) SetClock(now func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.now = now
}

// Account returns the current balance and margin usage
func (p *Paper) Account(ctx context.Context) (model.AccountSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return model.AccountSnapshot{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot(), nil
}

func (p *Paper) snapshot() model.AccountSnapshot {
	var used float64
	for _, pos := range p.positions {
		used += pos.Margin
	}
	return model.AccountSnapshot{
		Balance:    p.balance,
		Equity:     p.balance,
		Margin:     used,
		FreeMargin: p.balance - used,
		Currency:   p.cfg.Currency,
		TradeMode:  "demo",
		Leverage:   p.cfg.Leverage,
	}
}

// Symbol returns the instrument metadata from the instrument table
func (p *Paper) Symbol(ctx context.Context, symbol string) (model.SymbolInfo, error) {
	if err := ctx.Err(); err != nil {
		return model.SymbolInfo{}, err
	}
	return p.instruments.Lookup(symbol).Info(strings.ToUpper(symbol)), nil
}

// OpenPositions returns a copy of the open positions
func (p *Paper) OpenPositions(ctx context.Context) ([]model.Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.Position, len(p.positions))
	copy(out, p.positions)
	return out, nil
}

// PlaceOrder fills the order at its entry price
func (p *Paper) PlaceOrder(ctx context.Context, order model.Order) (model.Position, error) {
	if err := ctx.Err(); err != nil {
		return model.Position{}, err
	}
	if order.Direction != model.Buy && order.Direction != model.Sell {
		return model.Position{}, fmt.Errorf("%w: direction %q", ErrOrderRejected, order.Direction)
	}
	if order.Lot <= 0 || order.EntryPrice <= 0 {
		return model.Position{}, fmt.Errorf("%w: lot %.2f at %.5f", ErrOrderRejected, order.Lot, order.EntryPrice)
	}

	inst := p.instruments.Lookup(order.Symbol)
	margin := risk.Margin(order.Lot, inst.ContractSize, order.EntryPrice, p.cfg.Leverage)
	margin = risk.ToAccount(order.Symbol, p.cfg.Currency, margin, order.EntryPrice)

	p.mu.Lock()
	defer p.mu.Unlock()
	if free := p.snapshot().FreeMargin; margin > free {
		return model.Position{}, fmt.Errorf("%w: margin %.2f exceeds free %.2f", ErrOrderRejected, margin, free)
	}

	pos := model.Position{
		Ticket:     uuid.NewString(),
		SignalID:   order.SignalID,
		Symbol:     order.Symbol,
		Direction:  order.Direction,
		Lot:        order.Lot,
		EntryPrice: order.EntryPrice,
		StopLoss:   order.StopLoss,
		TakeProfit: order.TakeProfit,
		Margin:     margin,
		OpenedAt:   p.now(),
	}
	p.positions = append(p.positions, pos)
	p.logger.Info().
		Str("ticket", pos.Ticket).
		Str("symbol", pos.Symbol).
		Str("direction", string(pos.Direction)).
		Float64("lot", pos.Lot).
		Float64("margin", margin).
		Msg("Paper order filled")
	return pos, nil
}

// Close settles a position at price
func (p *Paper) Close(ctx context.Context, ticket string, price float64) (ClosedPosition, error) {
	if err := ctx.Err(); err != nil {
		return ClosedPosition{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, pos := range p.positions {
		if pos.Ticket == ticket {
			return p.settle(i, price), nil
		}
	}
	return ClosedPosition{}, fmt.Errorf("%w: %s", ErrPositionNotFound, ticket)
}

// ObservePrice closes positions of symbol whose stop or target lies inside
// the bar. When both do, the stop is assumed to fill first.
func (p *Paper) ObservePrice(symbol string, bar model.Bar) []ClosedPosition {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []ClosedPosition
	for i := 0; i < len(p.positions); {
		pos := p.positions[i]
		if !strings.EqualFold(pos.Symbol, symbol) {
			i++
			continue
		}
		exit, hit := exitPrice(pos, bar)
		if !hit {
			i++
			continue
		}
		out = append(out, p.settle(i, exit))
	}
	return out
}

func exitPrice(pos model.Position, bar model.Bar) (float64, bool) {
	if pos.Direction == model.Buy {
		switch {
		case pos.StopLoss > 0 && bar.Low <= pos.StopLoss:
			return pos.StopLoss, true
		case pos.TakeProfit > 0 && bar.High >= pos.TakeProfit:
			return pos.TakeProfit, true
		}
		return 0, false
	}
	switch {
	case pos.StopLoss > 0 && bar.High >= pos.StopLoss:
		return pos.StopLoss, true
	case pos.TakeProfit > 0 && bar.Low <= pos.TakeProfit:
		return pos.TakeProfit, true
	}
	return 0, false
}

// settle removes position i and books its profit. Caller holds mu.
func (p *Paper) settle(i int, price float64) ClosedPosition {
	pos := p.positions[i]
	p.positions = append(p.positions[:i], p.positions[i+1:]...)

	inst := p.instruments.Lookup(pos.Symbol)
	move := price - pos.EntryPrice
	if pos.Direction == model.Sell {
		move = -move
	}
	profit := move / inst.PipSize * inst.AccountPipValue(pos.Symbol, p.cfg.Currency, price) * pos.Lot
	profit = math.Round(profit*100) / 100
	p.balance += profit

	c := ClosedPosition{Position: pos, ExitPrice: price, Profit: profit, ClosedAt: p.now()}
	p.closed = append(p.closed, c)
	p.logger.Info().
		Str("ticket", pos.Ticket).
		Str("symbol", pos.Symbol).
		Float64("exit", price).
		Float64("profit", profit).
		Float64("balance", p.balance).
		Msg("Paper position closed")
	return c
}

// Closed returns the settled positions, oldest first
func (p *Paper) Closed() []ClosedPosition {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ClosedPosition, len(p.closed))
	copy(out, p.closed)
	return out
}
