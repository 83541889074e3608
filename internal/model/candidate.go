package model

import "time"

// SignalStatus is the lifecycle state of a CandidateSignal
type SignalStatus string

const (
	StatusPending  SignalStatus = "pending"
	StatusExecuted SignalStatus = "executed"
	StatusRejected SignalStatus = "rejected"
	StatusExpired  SignalStatus = "expired"
)

// IsTerminal reports whether no further transition is allowed
func (s SignalStatus) IsTerminal() bool {
	return s != StatusPending
}

// Valid reports whether s is a known status
func (s SignalStatus) Valid() bool {
	switch s {
	case StatusPending, StatusExecuted, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// CandidateSignal is a trade proposal awaiting confirmation
type CandidateSignal struct {
	ID                 string       `json:"id"`
	Symbol             string       `json:"symbol"`
	Direction          Signal       `json:"direction"`
	EntryPrice         float64      `json:"entry_price"`
	StopLoss           float64      `json:"stop_loss"`
	TakeProfit         float64      `json:"take_profit"`
	Strength           float64      `json:"strength"`
	SuccessProbability float64      `json:"success_probability"`
	RiskReward         float64      `json:"risk_reward"`
	Status             SignalStatus `json:"status"`
	KeyTimeframes      []Timeframe  `json:"key_timeframes,omitempty"`
	Forecast           Forecast     `json:"forecast"`
	Reason             string       `json:"reason,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}
