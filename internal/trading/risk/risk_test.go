package risk

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Alias1177/fxsignal/internal/model"
)

// 2024-03-04 is a Monday
var monday = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func eurusd() model.SymbolInfo {
	return model.SymbolInfo{Symbol: "EURUSD", ContractSize: 100000, Digits: 5, LotMin: 0.01, LotMax: 100, LotStep: 0.01}
}

func account() model.AccountSnapshot {
	return model.AccountSnapshot{Balance: 10000, Equity: 10000, FreeMargin: 10000, Currency: "USD", Leverage: 100}
}

func buySignal(probability, stopDistance float64) model.CandidateSignal {
	return model.CandidateSignal{
		ID:                 "sig-1",
		Symbol:             "EURUSD",
		Direction:          model.Buy,
		EntryPrice:         1.1,
		StopLoss:           1.1 - stopDistance,
		TakeProfit:         1.1 + 2*stopDistance,
		SuccessProbability: probability,
		RiskReward:         2,
		Status:             model.StatusPending,
	}
}

func request(c model.CandidateSignal) Request {
	return Request{Signal: c, Account: account(), Symbol: eurusd()}
}

func TestRiskPercentFor(t *testing.T) {
	m := NewManager(DefaultLimits(), nil, nil)
	tests := []struct {
		probability float64
		want        float64
	}{
		{95, 2},
		{80, 2},
		{75, 1.6},
		{60, 1.2},
		{59.9, 1},
		{0, 1},
	}
	for _, tt := range tests {
		if got := m.RiskPercentFor(tt.probability); !almostEqual(got, tt.want) {
			t.Errorf("RiskPercentFor(%v) = %v, want %v", tt.probability, got, tt.want)
		}
	}
}

func TestSizeCapsToRemainingBudget(t *testing.T) {
	m := NewManager(DefaultLimits(), nil, nil)
	m.Commit(Commitment{Time: monday.Add(-time.Hour), SignalID: "earlier", Symbol: "GBPUSD", RiskPercent: 4})

	got := m.Size(request(buySignal(85, 0.002)), monday)
	if !almostEqual(got.RequestedRisk, 100) {
		t.Errorf("requested risk = %v, want 100 (remaining 1%% of 10000)", got.RequestedRisk)
	}
	if !almostEqual(got.StopPips, 20) {
		t.Errorf("stop pips = %v, want 20", got.StopPips)
	}
	if !almostEqual(got.PipValue, 10) {
		t.Errorf("pip value = %v, want 10", got.PipValue)
	}
	if !almostEqual(got.Lot, 0.5) {
		t.Errorf("lot = %v, want 0.5", got.Lot)
	}
	if got.RiskPercent > 1+1e-6 {
		t.Errorf("risk percent = %v exceeds remaining 1%%", got.RiskPercent)
	}
	if !almostEqual(got.Margin, 550) {
		t.Errorf("margin = %v, want 550", got.Margin)
	}
}

func TestSizeLotBounds(t *testing.T) {
	m := NewManager(DefaultLimits(), nil, nil)

	// 2% of 10000 over 5 pips would be 4 lots, capped at the configured 1.0
	got := m.Size(request(buySignal(90, 0.0005)), monday)
	if !almostEqual(got.Lot, 1) {
		t.Errorf("lot = %v, want capped 1", got.Lot)
	}

	// rounding floors to the step
	got = m.Size(request(buySignal(90, 0.0030)), monday)
	if !almostEqual(got.Lot, 0.66) {
		t.Errorf("lot = %v, want 0.66", got.Lot)
	}
}

func TestSizeConvertsToAccountCurrency(t *testing.T) {
	jpy := model.SymbolInfo{Symbol: "USDJPY", ContractSize: 100000, LotMin: 0.01, LotMax: 100, LotStep: 0.01}
	tests := []struct {
		name     string
		symbol   string
		entry    float64
		stop     float64
		info     model.SymbolInfo
		stopPips float64
		pipValue float64
		lot      float64
		margin   float64
	}{
		{
			name: "quote is account currency", symbol: "EURUSD", entry: 1.1, stop: 1.098, info: eurusd(),
			stopPips: 20, pipValue: 10, lot: 1, margin: 1100,
		},
		{
			// 2% of 10000 over 45 pips at 1000 JPY / 150 per pip
			name: "base is account currency", symbol: "USDJPY", entry: 150, stop: 149.55, info: jpy,
			stopPips: 45, pipValue: 1000.0 / 150, lot: 0.66, margin: 660,
		},
		{
			name: "slash separated pair", symbol: "USD/JPY", entry: 150, stop: 149.55, info: jpy,
			stopPips: 45, pipValue: 1000.0 / 150, lot: 0.66, margin: 660,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(DefaultLimits(), nil, nil)
			c := buySignal(90, 0)
			c.Symbol, c.EntryPrice, c.StopLoss, c.TakeProfit = tt.symbol, tt.entry, tt.stop, tt.entry+2*(tt.entry-tt.stop)
			req := Request{Signal: c, Account: account(), Symbol: tt.info}

			decision, got := m.CanOpen(req, monday)
			if !decision.Allowed {
				t.Fatalf("rejected: %s", decision.Reason)
			}
			if !almostEqual(got.StopPips, tt.stopPips) {
				t.Errorf("stop pips = %v, want %v", got.StopPips, tt.stopPips)
			}
			if !almostEqual(got.PipValue, tt.pipValue) {
				t.Errorf("pip value = %v, want %v", got.PipValue, tt.pipValue)
			}
			if !almostEqual(got.Lot, tt.lot) {
				t.Errorf("lot = %v, want %v", got.Lot, tt.lot)
			}
			if !almostEqual(got.Margin, tt.margin) {
				t.Errorf("margin = %v, want %v", got.Margin, tt.margin)
			}
			if got.RiskAmount > 200+1e-6 {
				t.Errorf("risk = %v exceeds 2%% of balance", got.RiskAmount)
			}
		})
	}
}

func TestToAccount(t *testing.T) {
	tests := []struct {
		symbol  string
		account string
		amount  float64
		price   float64
		want    float64
	}{
		{"EURUSD", "USD", 10, 1.1, 10},
		{"USDJPY", "USD", 1500, 150, 10},
		{"usdjpy", "usd", 1500, 150, 10},
		{"EURJPY", "USD", 1000, 160, 1000},
		{"XAUUSD", "USD", 10, 2000, 10},
		{"USDJPY", "", 1500, 150, 1500},
		{"US30", "USD", 1, 35000, 1},
	}
	for _, tt := range tests {
		if got := ToAccount(tt.symbol, tt.account, tt.amount, tt.price); !almostEqual(got, tt.want) {
			t.Errorf("ToAccount(%s, %s, %v, %v) = %v, want %v", tt.symbol, tt.account, tt.amount, tt.price, got, tt.want)
		}
	}
}

func TestSizeNeverRoundsAboveBudget(t *testing.T) {
	m := NewManager(DefaultLimits(), nil, nil)
	m.Commit(Commitment{Time: monday.Add(-time.Hour), SignalID: "earlier", Symbol: "GBPUSD", RiskPercent: 4})

	// raw lot 0.049999995 sits just under a step
	decision, got := m.CanOpen(request(buySignal(85, 0.020000002)), monday)
	if !decision.Allowed {
		t.Fatalf("rejected: %s", decision.Reason)
	}
	if !almostEqual(got.Lot, 0.04) {
		t.Errorf("lot = %v, want 0.04", got.Lot)
	}
	if got.RiskAmount > got.Available {
		t.Errorf("risk %v exceeds available %v", got.RiskAmount, got.Available)
	}
}

func TestCanOpen(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Request)
		prepare func(*Manager)
		allowed bool
		reason  string
	}{
		{
			name:    "allowed",
			allowed: true,
		},
		{
			name: "position ceiling",
			mutate: func(r *Request) {
				for i := 0; i < 5; i++ {
					r.Positions = append(r.Positions, model.Position{Symbol: "GBPUSD"})
				}
			},
			reason: "maximum open positions reached (5)",
		},
		{
			name: "per-symbol ceiling",
			mutate: func(r *Request) {
				r.Positions = []model.Position{{Symbol: "EURUSD"}, {Symbol: "EURUSD"}}
			},
			reason: "maximum positions for EURUSD reached (2)",
		},
		{
			name:   "margin",
			mutate: func(r *Request) { r.Account.FreeMargin = 100 },
			reason: "insufficient margin: required 1100.00, free 100.00",
		},
		{
			name: "budget exhausted",
			prepare: func(m *Manager) {
				m.Commit(Commitment{Time: monday, RiskPercent: 5})
			},
			reason: "daily or weekly risk budget exhausted",
		},
		{
			name:   "lot below minimum",
			mutate: func(r *Request) { r.Signal = buySignal(85, 0.5) },
			reason: "lot 0.0040 below minimum 0.01",
		},
		{
			name:   "risk reward floor",
			mutate: func(r *Request) { r.Signal.RiskReward = 1.2 },
			reason: "risk/reward too low: 1.20 < 1.50",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(DefaultLimits(), nil, nil)
			if tt.prepare != nil {
				tt.prepare(m)
			}
			req := request(buySignal(85, 0.002))
			if tt.mutate != nil {
				tt.mutate(&req)
			}

			got, _ := m.CanOpen(req, monday)
			if got.Allowed != tt.allowed {
				t.Fatalf("allowed = %v (%s), want %v", got.Allowed, got.Reason, tt.allowed)
			}
			if got.Reason != tt.reason {
				t.Errorf("reason = %q, want %q", got.Reason, tt.reason)
			}
		})
	}
}

func TestBudgetResets(t *testing.T) {
	b := NewBudget(10, time.UTC)
	b.Commit(Commitment{Time: monday, RiskPercent: 3})
	b.Commit(Commitment{Time: monday.Add(time.Hour), RiskPercent: 1})

	if d, w := b.Used(monday.Add(2 * time.Hour)); d != 4 || w != 4 {
		t.Errorf("same day = %v/%v, want 4/4", d, w)
	}

	tuesday := monday.Add(24 * time.Hour)
	if d, w := b.Used(tuesday); d != 0 || w != 4 {
		t.Errorf("next day = %v/%v, want 0/4", d, w)
	}
	b.Commit(Commitment{Time: tuesday, RiskPercent: 2})

	sunday := monday.Add(6 * 24 * time.Hour)
	if d, w := b.Used(sunday); d != 0 || w != 6 {
		t.Errorf("sunday = %v/%v, want 0/6", d, w)
	}

	nextMonday := monday.Add(7 * 24 * time.Hour)
	if d, w := b.Used(nextMonday); d != 0 || w != 0 {
		t.Errorf("next week = %v/%v, want 0/0", d, w)
	}
}

func TestBudgetIgnoresOutOfOrderCommit(t *testing.T) {
	tuesday := monday.Add(24 * time.Hour)
	b := NewBudget(10, time.UTC)
	b.Commit(Commitment{Time: tuesday, RiskPercent: 2})
	b.Commit(Commitment{Time: monday, RiskPercent: 1})

	if d, w := b.Used(tuesday.Add(time.Hour)); d != 2 || w != 3 {
		t.Errorf("after late commit = %v/%v, want 2/3", d, w)
	}
	if d, _ := b.Used(monday.Add(time.Hour)); d != 2 {
		t.Errorf("earlier query reset daily to %v, want 2", d)
	}

	lastWeek := monday.Add(-3 * 24 * time.Hour)
	b.Commit(Commitment{Time: lastWeek, RiskPercent: 5})
	if d, w := b.Used(tuesday.Add(2 * time.Hour)); d != 2 || w != 3 {
		t.Errorf("after previous-week commit = %v/%v, want 2/3", d, w)
	}
	if got := b.History(time.Time{}); len(got) != 3 {
		t.Errorf("history len = %d, want 3", len(got))
	}
}

func TestBudgetHistoryRing(t *testing.T) {
	b := NewBudget(3, nil)
	for i := 0; i < 5; i++ {
		b.Commit(Commitment{Time: monday.Add(time.Duration(i) * time.Minute), SignalID: string(rune('a' + i)), RiskPercent: 0.1})
	}

	h := b.History(time.Time{})
	if len(h) != 3 {
		t.Fatalf("len = %d, want 3", len(h))
	}
	for i, want := range []string{"c", "d", "e"} {
		if h[i].SignalID != want {
			t.Errorf("history[%d] = %s, want %s", i, h[i].SignalID, want)
		}
	}
	if got := b.History(monday.Add(4 * time.Minute)); len(got) != 1 {
		t.Errorf("since filter len = %d, want 1", len(got))
	}
}

func TestOpenNeverExceedsDailyBudget(t *testing.T) {
	m := NewManager(DefaultLimits(), nil, nil)
	exec := func(_ context.Context, o model.Order) (model.Position, error) {
		return model.Position{Ticket: "t-" + o.SignalID, Symbol: o.Symbol, Lot: o.Lot}, nil
	}

	opened := 0
	for i := 0; i < 10; i++ {
		out, err := m.Open(context.Background(), request(buySignal(85, 0.002)), monday.Add(time.Duration(i)*time.Minute), exec)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		if out.Decision.Allowed {
			opened++
		}
	}

	daily, _ := m.budget.Used(monday.Add(time.Hour))
	if daily > DefaultLimits().MaxDailyRiskPercent+1e-6 {
		t.Errorf("daily used %v exceeds limit", daily)
	}
	if opened != 3 {
		t.Errorf("opened = %d, want 3 (2%% + 2%% + 1%%)", opened)
	}

	s := m.Summary(monday.Add(time.Hour), 3)
	if s.TradesToday != 3 || !almostEqual(s.DailyRemaining, 0) || s.OpenPositions != 3 {
		t.Errorf("summary = %+v", s)
	}
}

func TestOpenExecutorFailureCommitsNothing(t *testing.T) {
	m := NewManager(DefaultLimits(), nil, nil)
	boom := errors.New("broker down")
	exec := func(context.Context, model.Order) (model.Position, error) {
		return model.Position{}, boom
	}

	_, err := m.Open(context.Background(), request(buySignal(85, 0.002)), monday, exec)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want broker error", err)
	}
	if d, w := m.budget.Used(monday); d != 0 || w != 0 {
		t.Errorf("budget changed to %v/%v", d, w)
	}
}

func TestOpenCancelledContext(t *testing.T) {
	m := NewManager(DefaultLimits(), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	exec := func(context.Context, model.Order) (model.Position, error) {
		called = true
		return model.Position{}, nil
	}

	if _, err := m.Open(ctx, request(buySignal(85, 0.002)), monday, exec); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if called {
		t.Error("executor ran on a cancelled context")
	}
}

func TestLoadInstruments(t *testing.T) {
	data := []byte(`
default:
  pip_size: 0.0001
symbols:
  - match: "*JPY"
    pip_size: 0.01
    digits: 3
  - match: EURJPY
    pip_size: 0.01
    pip_value: 650
  - match: "XAU*"
    pip_size: 0.1
    contract_size: 100
`)
	file := filepath.Join(t.TempDir(), "instruments.yaml")
	if err := os.WriteFile(file, data, 0o600); err != nil {
		t.Fatal(err)
	}
	table, err := LoadInstruments(file)
	if err != nil {
		t.Fatalf("LoadInstruments: %v", err)
	}

	tests := []struct {
		symbol   string
		pip      float64
		pipValue float64
	}{
		{"EURUSD", 0.0001, 10},
		{"USDJPY", 0.01, 1000},
		{"eurjpy", 0.01, 650},
		{"XAUUSD", 0.1, 10},
	}
	for _, tt := range tests {
		in := table.Lookup(tt.symbol)
		if in.PipSize != tt.pip {
			t.Errorf("%s pip = %v, want %v", tt.symbol, in.PipSize, tt.pip)
		}
		if !almostEqual(in.PerLotPipValue(), tt.pipValue) {
			t.Errorf("%s pip value = %v, want %v", tt.symbol, in.PerLotPipValue(), tt.pipValue)
		}
		if in.LotStep != 0.01 {
			t.Errorf("%s lot step default = %v", tt.symbol, in.LotStep)
		}
	}

	bad := Instruments{Symbols: []Instrument{{Match: "EURUSD"}}}
	if err := bad.Prepare(); err == nil {
		t.Error("missing pip_size accepted")
	}
	if _, err := LoadInstruments(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file accepted")
	}
}
