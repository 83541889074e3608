package model

import "time"

// AccountSnapshot is the live state of a trading account
type AccountSnapshot struct {
	Balance    float64 `json:"balance"`
	Equity     float64 `json:"equity"`
	Margin     float64 `json:"margin"`
	FreeMargin float64 `json:"free_margin"`
	Currency   string  `json:"currency"`
	TradeMode  string  `json:"trade_mode"`
	Leverage   int     `json:"leverage"`
}

// SymbolInfo is the broker metadata needed to size an order
type SymbolInfo struct {
	Symbol       string  `json:"symbol"`
	ContractSize float64 `json:"contract_size"`
	Digits       int     `json:"digits"`
	LotMin       float64 `json:"lot_min"`
	LotMax       float64 `json:"lot_max"`
	LotStep      float64 `json:"lot_step"`
}

// Position is an open trade held by the broker
type Position struct {
	Ticket     string    `json:"ticket"`
	SignalID   string    `json:"signal_id"`
	Symbol     string    `json:"symbol"`
	Direction  Signal    `json:"direction"`
	Lot        float64   `json:"lot"`
	EntryPrice float64   `json:"entry_price"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	Margin     float64   `json:"margin"`
	OpenedAt   time.Time `json:"opened_at"`
}

// Order is a sized market order ready for execution
type Order struct {
	SignalID   string  `json:"signal_id"`
	Symbol     string  `json:"symbol"`
	Direction  Signal  `json:"direction"`
	Lot        float64 `json:"lot"`
	EntryPrice float64 `json:"entry_price"`
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
}
