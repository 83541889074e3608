// Package notify delivers signals to a human operator and relays their
// confirm/reject decisions back to the trading pipeline.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Alias1177/fxsignal/internal/model"
	"github.com/Alias1177/fxsignal/internal/trading/risk"
)

const (
	confirmPrefix = "confirm_"
	rejectPrefix  = "reject_"
)

// ErrUnknownCallback is returned for callback data that is not a signal decision
var ErrUnknownCallback = errors.New("unknown callback data")

// Notifier sends signal and trade messages
type Notifier interface {
	SendConfirmation(ctx context.Context, s model.CandidateSignal, sizing risk.SizingResult) error
	SendInfo(ctx context.Context, s model.CandidateSignal) error
	SendTradeNotification(ctx context.Context, s model.CandidateSignal, pos model.Position) error
	SendText(ctx context.Context, text string) error
}

// DecisionHandler acts on an operator decision for a pending signal
type DecisionHandler interface {
	Confirm(ctx context.Context, id string) error
	Reject(ctx context.Context, id, reason string) error
}

// Decision is a parsed confirm/reject callback
type Decision struct {
	SignalID string
	Confirm  bool
}

// ParseCallback decodes "confirm_<id>" and "reject_<id>"
func ParseCallback(data string) (Decision, error) {
	switch {
	case strings.HasPrefix(data, confirmPrefix) && len(data) > len(confirmPrefix):
		return Decision{SignalID: data[len(confirmPrefix):], Confirm: true}, nil
	case strings.HasPrefix(data, rejectPrefix) && len(data) > len(rejectPrefix):
		return Decision{SignalID: data[len(rejectPrefix):]}, nil
	}
	return Decision{}, fmt.Errorf("%w: %q", ErrUnknownCallback, data)
}

// ConfirmData and RejectData build the callback payloads of a signal
func ConfirmData(id string) string { return confirmPrefix + id }

func RejectData(id string) string { return rejectPrefix + id }

// FormatSignal renders a signal as a chat message
func FormatSignal(s model.CandidateSignal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", strings.ToUpper(string(s.Direction)), s.Symbol)
	fmt.Fprintf(&b, "Entry: %s\n", price(s.EntryPrice))
	fmt.Fprintf(&b, "Stop loss: %s\n", price(s.StopLoss))
	fmt.Fprintf(&b, "Take profit: %s\n", price(s.TakeProfit))
	fmt.Fprintf(&b, "Strength: %.1f | Probability: %.1f%% | R:R %.2f\n", s.Strength, s.SuccessProbability, s.RiskReward)
	if len(s.KeyTimeframes) > 0 {
		tfs := make([]string, len(s.KeyTimeframes))
		for i, tf := range s.KeyTimeframes {
			tfs[i] = string(tf)
		}
		fmt.Fprintf(&b, "Timeframes: %s\n", strings.Join(tfs, ", "))
	}
	if s.Forecast.Direction != "" {
		fmt.Fprintf(&b, "Forecast: %s (%.0f%%)\n", s.Forecast.Direction, s.Forecast.Confidence)
	}
	if s.Reason != "" {
		fmt.Fprintf(&b, "%s\n", s.Reason)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatSizing renders the proposed position size
func FormatSizing(r risk.SizingResult) string {
	return fmt.Sprintf("Lot: %.2f | Risk: %.2f (%.2f%%) | Stop: %.1f pips | Margin: %.2f",
		r.Lot, r.RiskAmount, r.RiskPercent, r.StopPips, r.Margin)
}

// FormatTrade renders an executed position
func FormatTrade(pos model.Position) string {
	return fmt.Sprintf("Executed %s %s %.2f lot at %s (ticket %s)",
		strings.ToUpper(string(pos.Direction)), pos.Symbol, pos.Lot, price(pos.EntryPrice), pos.Ticket)
}

func price(p float64) string {
	return fmt.Sprintf("%.5f", p)
}

// Nop discards every message. It is used when no chat is configured.
type Nop struct{}

func (Nop) SendConfirmation(context.Context, model.CandidateSignal, risk.SizingResult) error {
	return nil
}

func (Nop) SendInfo(context.Context, model.CandidateSignal) error { return nil }

func (Nop) SendTradeNotification(context.Context, model.CandidateSignal, model.Position) error {
	return nil
}

func (Nop) SendText(context.Context, string) error { return nil }
