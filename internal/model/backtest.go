package model

import "time"

// BacktestTrade is one simulated position from entry to exit
type BacktestTrade struct {
	SignalID    string    `json:"signal_id"`
	Direction   Signal    `json:"direction"`
	Probability float64   `json:"probability"`
	Lot         float64   `json:"lot"`
	EntryPrice  float64   `json:"entry_price"`
	ExitPrice   float64   `json:"exit_price"`
	Profit      float64   `json:"profit"`
	OpenedAt    time.Time `json:"opened_at"`
	ClosedAt    time.Time `json:"closed_at"`
	// Forced is set for positions still open when the history ran out
	Forced bool `json:"forced,omitempty"`
}

// Won reports whether the trade closed in profit
func (t BacktestTrade) Won() bool {
	return t.Profit > 0
}

// BacktestResults stores backtesting results
type BacktestResults struct {
	Symbol         string  `json:"symbol"`
	Evaluations    int     `json:"evaluations"`
	Candidates     int     `json:"candidates"`
	Rejections     int     `json:"rejections"`
	TotalTrades    int     `json:"total_trades"`
	WinningTrades  int     `json:"winning_trades"`
	LosingTrades   int     `json:"losing_trades"`
	WinPercentage  float64 `json:"win_percentage"`
	AverageGain    float64 `json:"average_gain"`
	AverageLoss    float64 `json:"average_loss"`
	MaxConsecutive struct {
		Wins   int `json:"wins"`
		Losses int `json:"losses"`
	} `json:"max_consecutive"`
	ProfitFactor        float64            `json:"profit_factor"`
	MaxDrawdown         float64            `json:"max_drawdown"`
	SharpeRatio         float64            `json:"sharpe_ratio"`
	InitialBalance      float64            `json:"initial_balance"`
	FinalBalance        float64            `json:"final_balance"`
	EquityCurve         []float64          `json:"equity_curve,omitempty"`
	EquityGrowthPercent float64            `json:"equity_growth_percent"`
	MonthlyReturns      map[string]float64 `json:"monthly_returns"`
	Trades              []BacktestTrade    `json:"trades"`
}
