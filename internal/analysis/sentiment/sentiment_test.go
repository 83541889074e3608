package sentiment

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/Alias1177/fxsignal/internal/model"
	httpClient "github.com/Alias1177/fxsignal/internal/platform/http"
)

var now = time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC)

func f(v float64) *float64 { return &v }

type staticCalendar struct {
	events []model.CalendarEvent
	err    error
}

func (s staticCalendar) Events(context.Context, time.Time, time.Time) ([]model.CalendarEvent, error) {
	return s.events, s.err
}

type staticHeadlines []model.Headline

func (s staticHeadlines) Headlines(context.Context, string) ([]model.Headline, error) {
	return s, nil
}

func TestCurrencies(t *testing.T) {
	tests := map[string][]string{
		"EURUSD":  {"EUR", "USD"},
		"XAUUSD":  {"XAU", "USD"},
		"usd/jpy": {"USD", "JPY"},
		"BTCUSD":  {"USD"},
		"US30":    nil,
	}
	for in, want := range tests {
		if got := Currencies(in); !reflect.DeepEqual(got, want) {
			t.Errorf("Currencies(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewsScore(t *testing.T) {
	currencies := []string{"EUR", "USD"}
	tests := []struct {
		name   string
		events []model.CalendarEvent
		want   float64
	}{
		{
			name: "base currency beat",
			events: []model.CalendarEvent{
				{Time: now.Add(-time.Hour), Currency: "EUR", Title: "GDP", Impact: model.ImpactHigh, Actual: f(0.5), Forecast: f(0.3)},
			},
			want: 100,
		},
		{
			name: "quote currency beat is bearish",
			events: []model.CalendarEvent{
				{Time: now.Add(-time.Hour), Currency: "USD", Title: "Retail Sales", Impact: model.ImpactHigh, Actual: f(0.5), Forecast: f(0.3)},
			},
			want: -100,
		},
		{
			name: "lower unemployment is a beat",
			events: []model.CalendarEvent{
				{Time: now.Add(-time.Hour), Currency: "EUR", Title: "Unemployment Rate", Impact: model.ImpactMedium, Actual: f(6.1), Forecast: f(6.3)},
				{Time: now.Add(-2 * time.Hour), Currency: "EUR", Title: "CPI", Impact: model.ImpactLow, Actual: f(2.0), Forecast: f(2.0)},
			},
			want: 2 * 100 / 8.0,
		},
		{
			name: "future and stale events ignored",
			events: []model.CalendarEvent{
				{Time: now.Add(time.Hour), Currency: "EUR", Title: "GDP", Impact: model.ImpactHigh, Actual: f(1), Forecast: f(0)},
				{Time: now.Add(-30 * time.Hour), Currency: "EUR", Title: "GDP", Impact: model.ImpactHigh, Actual: f(1), Forecast: f(0)},
			},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewsScore(tt.events, currencies, now); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("NewsScore() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUpcoming(t *testing.T) {
	var events []model.CalendarEvent
	for i := 7; i >= 1; i-- {
		events = append(events, model.CalendarEvent{Time: now.Add(time.Duration(i) * time.Hour), Impact: model.ImpactHigh, Title: "event"})
	}
	events = append(events,
		model.CalendarEvent{Time: now.Add(30 * time.Minute), Impact: model.ImpactMedium},
		model.CalendarEvent{Time: now.Add(72 * time.Hour), Impact: model.ImpactHigh},
	)

	got := Upcoming(events, now)
	if len(got) != 5 {
		t.Fatalf("len(Upcoming) = %d, want 5", len(got))
	}
	for i, e := range got {
		if want := now.Add(time.Duration(i+1) * time.Hour); !e.Time.Equal(want) {
			t.Errorf("Upcoming[%d] at %v, want %v", i, e.Time, want)
		}
	}
}

func TestHeadlineScore(t *testing.T) {
	tests := []struct {
		titles []string
		want   float64
	}{
		{titles: []string{"Euro rallies on strong data"}, want: 100},
		{titles: []string{"Dollar slumps", "Euro gains"}, want: 0},
		{titles: []string{"Markets quiet"}, want: 0},
		{titles: []string{"Yields drop after weak jobs report", "Stocks rise"}, want: -100.0 / 3},
	}
	for _, tt := range tests {
		var hs []model.Headline
		for _, title := range tt.titles {
			hs = append(hs, model.Headline{Title: title})
		}
		if got := HeadlineScore(hs); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("HeadlineScore(%v) = %v, want %v", tt.titles, got, tt.want)
		}
	}
}

func TestAnalyze(t *testing.T) {
	cal := staticCalendar{events: []model.CalendarEvent{
		{Time: now.Add(-time.Hour), Currency: "EUR", Title: "GDP", Impact: model.ImpactHigh, Actual: f(0.5), Forecast: f(0.3)},
		{Time: now.Add(5 * time.Hour), Currency: "USD", Title: "FOMC", Impact: model.ImpactHigh},
		{Time: now.Add(5 * time.Hour), Currency: "JPY", Title: "BoJ", Impact: model.ImpactHigh},
	}}
	a := NewAnalyzer(cal, staticHeadlines{{Title: "Euro surges"}})
	a.now = func() time.Time { return now }

	report, err := a.Analyze(context.Background(), "EURUSD")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	// 100*0.7 + 100*0.3
	if math.Abs(report.Impact-100) > 1e-9 {
		t.Errorf("Impact = %v, want 100", report.Impact)
	}
	if len(report.Upcoming) != 1 || report.Upcoming[0].Currency != "USD" {
		t.Errorf("Upcoming = %+v, want the USD event only", report.Upcoming)
	}

	failing := NewAnalyzer(staticCalendar{err: errors.New("down")}, nil)
	if _, err := failing.Analyze(context.Background(), "EURUSD"); err == nil {
		t.Error("Analyze() expected calendar error")
	}
}

func TestHTTPCalendar(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"title": "Non-Farm Employment Change", "country": "USD", "date": "2024-03-06T08:30:00-05:00", "impact": "High", "forecast": "200K", "previous": "353K", "actual": "275K"},
			{"title": "ECB Press Conference", "country": "EUR", "date": "2024-03-20T08:45:00-04:00", "impact": "High", "forecast": "", "previous": ""}
		]`))
	}))
	defer srv.Close()

	c := NewHTTPCalendar(srv.URL, httpClient.NewClient(httpClient.ClientOptions{MaxRetryTimeout: time.Second}))
	events, err := c.Events(context.Background(), now.Add(-24*time.Hour), now.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("Events() error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	e := events[0]
	if e.Impact != model.ImpactHigh || e.Currency != "USD" {
		t.Errorf("event = %+v", e)
	}
	if e.Actual == nil || *e.Actual != 275 || e.Forecast == nil || *e.Forecast != 200 {
		t.Errorf("numeric fields = %v/%v, want 275/200", e.Actual, e.Forecast)
	}
	if !e.Time.Equal(time.Date(2024, 3, 6, 13, 30, 0, 0, time.UTC)) {
		t.Errorf("time = %v", e.Time)
	}
}
