package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Alias1177/fxsignal/internal/model"
	"github.com/Alias1177/fxsignal/internal/scanner"
	"github.com/Alias1177/fxsignal/internal/trading/risk"
	"github.com/Alias1177/fxsignal/internal/trading/signal"
)

type fakeTrader struct {
	store       *signal.Store
	confirmErr  error
	historyDays int
}

func (f *fakeTrader) Confirm(_ context.Context, id string) error {
	if f.confirmErr != nil {
		return f.confirmErr
	}
	_, err := f.store.Transition(id, model.StatusExecuted, "")
	return err
}

func (f *fakeTrader) Reject(_ context.Context, id, reason string) error {
	_, err := f.store.Transition(id, model.StatusRejected, reason)
	return err
}

func (f *fakeTrader) Summary(context.Context) (risk.Summary, error) {
	return risk.Summary{DailyUsed: 1.5, DailyLimit: 5, DailyRemaining: 3.5}, nil
}

func (f *fakeTrader) History(days int) []risk.Commitment {
	f.historyDays = days
	if days > 1 {
		return []risk.Commitment{{SignalID: "s1", Symbol: "EURUSD", RiskPercent: 1.5}}
	}
	return nil
}

type fakeJournal struct {
	limit int
	err   error
}

func (j *fakeJournal) RecentSignals(_ context.Context, limit int) ([]model.CandidateSignal, error) {
	j.limit = limit
	if j.err != nil {
		return nil, j.err
	}
	return []model.CandidateSignal{{ID: "j1", Symbol: "GBPUSD", Status: model.StatusExecuted}}, nil
}

func newTestServer(t *testing.T) (*Server, *signal.Store, *fakeTrader) {
	t.Helper()
	store := signal.NewStore(signal.DefaultConfig())
	trader := &fakeTrader{store: store}
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "fxsignal_open_positions 0\n")
	})
	return New(store, trader, metrics), store, trader
}

func seed(t *testing.T, store *signal.Store, symbol string) model.CandidateSignal {
	t.Helper()
	s, err := store.Create(model.CandidateSignal{Symbol: symbol, Direction: model.Buy, EntryPrice: 1.1, StopLoss: 1.0985, TakeProfit: 1.103, SuccessProbability: 72})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func do(srv *Server, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthAndMetrics(t *testing.T) {
	srv, store, _ := newTestServer(t)
	seed(t, store, "EURUSD")

	rec := do(srv, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"pending":1`) {
		t.Errorf("healthz = %d %s", rec.Code, rec.Body.String())
	}

	rec = do(srv, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "fxsignal_open_positions") {
		t.Errorf("metrics = %d %s", rec.Code, rec.Body.String())
	}
}

func TestListSignals(t *testing.T) {
	srv, store, _ := newTestServer(t)
	seed(t, store, "EURUSD")
	seed(t, store, "GBPUSD")
	rejected := seed(t, store, "EURUSD")
	if _, err := store.Transition(rejected.ID, model.StatusRejected, "test"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		query  string
		status int
		count  int
	}{
		{"all", "", http.StatusOK, 3},
		{"by symbol", "?symbol=EURUSD", http.StatusOK, 2},
		{"by status", "?status=pending", http.StatusOK, 2},
		{"limit", "?limit=1", http.StatusOK, 1},
		{"bad status", "?status=unknown", http.StatusBadRequest, 0},
		{"limit too large", "?limit=500", http.StatusBadRequest, 0},
		{"limit not a number", "?limit=abc", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(srv, http.MethodGet, "/signals"+tt.query, "")
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body.String())
			}
			if tt.status != http.StatusOK {
				return
			}
			var got []model.CandidateSignal
			if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
				t.Fatal(err)
			}
			if len(got) != tt.count {
				t.Errorf("signals = %d, want %d", len(got), tt.count)
			}
		})
	}
}

func TestSignalDecisions(t *testing.T) {
	srv, store, trader := newTestServer(t)
	a := seed(t, store, "EURUSD")
	b := seed(t, store, "GBPUSD")

	rec := do(srv, http.MethodGet, "/signals/"+a.ID, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), a.ID) {
		t.Errorf("get = %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(srv, http.MethodGet, "/signals/missing", ""); rec.Code != http.StatusNotFound {
		t.Errorf("get missing = %d, want 404", rec.Code)
	}

	rec = do(srv, http.MethodPost, "/signals/"+a.ID+"/confirm", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"executed"`) {
		t.Errorf("confirm = %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(srv, http.MethodPost, "/signals/"+a.ID+"/reject", ""); rec.Code != http.StatusConflict {
		t.Errorf("reject after confirm = %d, want 409", rec.Code)
	}

	rec = do(srv, http.MethodPost, "/signals/"+b.ID+"/reject", `{"reason":"spread too wide"}`)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "spread too wide") {
		t.Errorf("reject = %d %s", rec.Code, rec.Body.String())
	}

	c := seed(t, store, "USDJPY")
	trader.confirmErr = fmt.Errorf("%w: maximum open positions reached (5)", scanner.ErrRiskRejected)
	if rec := do(srv, http.MethodPost, "/signals/"+c.ID+"/confirm", ""); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("risk rejection = %d, want 422", rec.Code)
	}
	trader.confirmErr = fmt.Errorf("%w: account: timeout", scanner.ErrUpstreamUnavailable)
	if rec := do(srv, http.MethodPost, "/signals/"+c.ID+"/confirm", ""); rec.Code != http.StatusBadGateway {
		t.Errorf("upstream failure = %d, want 502", rec.Code)
	}
}

func TestRiskSummary(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := do(srv, http.MethodGet, "/risk", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("risk = %d", rec.Code)
	}
	var s risk.Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &s); err != nil {
		t.Fatal(err)
	}
	if s.DailyUsed != 1.5 || s.DailyRemaining != 3.5 {
		t.Errorf("summary = %+v", s)
	}
}

func TestRiskHistory(t *testing.T) {
	srv, _, trader := newTestServer(t)

	tests := []struct {
		name     string
		target   string
		wantCode int
		wantDays int
		wantLen  int
	}{
		{"default window", "/risk/history", http.StatusOK, 7, 1},
		{"one day empty", "/risk/history?days=1", http.StatusOK, 1, 0},
		{"too many days", "/risk/history?days=365", http.StatusBadRequest, 0, 0},
		{"not a number", "/risk/history?days=week", http.StatusBadRequest, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trader.historyDays = 0
			rec := do(srv, http.MethodGet, tt.target, "")
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			if trader.historyDays != tt.wantDays {
				t.Errorf("days = %d, want %d", trader.historyDays, tt.wantDays)
			}
			var got []risk.Commitment
			if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
				t.Fatal(err)
			}
			if got == nil || len(got) != tt.wantLen {
				t.Errorf("history = %v, want %d entries", got, tt.wantLen)
			}
		})
	}
}

func TestJournal(t *testing.T) {
	store := signal.NewStore(signal.DefaultConfig())
	trader := &fakeTrader{store: store}

	if rec := do(New(store, trader, nil), http.MethodGet, "/journal", ""); rec.Code != http.StatusNotFound {
		t.Errorf("journal without database = %d, want 404", rec.Code)
	}

	j := &fakeJournal{}
	srv := New(store, trader, nil, WithJournal(j))
	rec := do(srv, http.MethodGet, "/journal?limit=5", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("journal = %d", rec.Code)
	}
	if j.limit != 5 {
		t.Errorf("limit = %d, want 5", j.limit)
	}
	var got []model.CandidateSignal
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "j1" {
		t.Errorf("journal = %+v", got)
	}

	j.err = errors.New("connection refused")
	if rec := do(srv, http.MethodGet, "/journal", ""); rec.Code != http.StatusInternalServerError {
		t.Errorf("journal error = %d, want 500", rec.Code)
	}
	if j.limit != 50 {
		t.Errorf("default limit = %d, want 50", j.limit)
	}
}
