package sentiment

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Alias1177/fxsignal/internal/model"
	httpClient "github.com/Alias1177/fxsignal/internal/platform/http"
)

// CalendarSource lists economic calendar events in [from, to]
type CalendarSource interface {
	Events(ctx context.Context, from, to time.Time) ([]model.CalendarEvent, error)
}

// HeadlineSource lists recent news headlines relevant to a symbol
type HeadlineSource interface {
	Headlines(ctx context.Context, symbol string) ([]model.Headline, error)
}

// calendarEntry is one record of a weekly calendar feed
type calendarEntry struct {
	Title    string `json:"title"`
	Country  string `json:"country"`
	Date     string `json:"date"`
	Impact   string `json:"impact"`
	Forecast string `json:"forecast"`
	Previous string `json:"previous"`
	Actual   string `json:"actual"`
}

// HTTPCalendar reads a JSON calendar feed shaped like
// [{"title","country","date","impact","forecast","previous","actual"}]
type HTTPCalendar struct {
	url    string
	client *httpClient.Client
}

// NewHTTPCalendar creates a calendar source over the shared HTTP client
func NewHTTPCalendar(url string, client *httpClient.Client) *HTTPCalendar {
	return &HTTPCalendar{url: url, client: client}
}

// Events implements CalendarSource
func (c *HTTPCalendar) Events(ctx context.Context, from, to time.Time) ([]model.CalendarEvent, error) {
	var entries []calendarEntry
	if err := c.client.GetJSON(ctx, c.url, &entries); err != nil {
		return nil, fmt.Errorf("fetching calendar: %w", err)
	}

	events := make([]model.CalendarEvent, 0, len(entries))
	for _, e := range entries {
		ts, err := time.Parse(time.RFC3339, e.Date)
		if err != nil {
			continue
		}
		if ts.Before(from) || ts.After(to) {
			continue
		}
		events = append(events, model.CalendarEvent{
			Time:     ts.UTC(),
			Currency: strings.ToUpper(e.Country),
			Title:    e.Title,
			Impact:   parseImpact(e.Impact),
			Actual:   parseNumeric(e.Actual),
			Forecast: parseNumeric(e.Forecast),
			Previous: parseNumeric(e.Previous),
		})
	}
	return events, nil
}

func parseImpact(s string) model.EventImpact {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return model.ImpactHigh
	case "medium":
		return model.ImpactMedium
	}
	return model.ImpactLow
}

var numberRe = regexp.MustCompile(`[-+]?\d*\.\d+|[-+]?\d+`)

// parseNumeric extracts the first number of a value such as "0.3%" or "215K"
func parseNumeric(s string) *float64 {
	m := numberRe.FindString(strings.ReplaceAll(s, "%", ""))
	if m == "" {
		return nil
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return nil
	}
	return &v
}
