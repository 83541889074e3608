// Package sentiment scores the news and calendar backdrop of a symbol.
package sentiment

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/fxsignal/internal/model"
)

const (
	newsWeight     = 0.7
	socialWeight   = 0.3
	maxEventFactor = 4.0
	recentWindow   = 24 * time.Hour
	upcomingWindow = 48 * time.Hour
	maxUpcoming    = 5
)

var knownCurrencies = map[string]bool{
	"USD": true, "EUR": true, "GBP": true, "JPY": true, "AUD": true,
	"NZD": true, "CAD": true, "CHF": true, "XAU": true, "XAG": true,
}

// lower-is-better releases
var invertedIndicators = []string{"unemployment", "jobless", "deficit"}

var (
	bullishWords = []string{"rall", "surge", "gain", "rise", "beat", "strong", "hawkish", "upgrade", "higher", "jump"}
	bearishWords = []string{"fall", "drop", "slump", "miss", "weak", "dovish", "downgrade", "lower", "plunge", "recession"}
)

// Currencies splits a six-letter symbol into its known base and quote
// currencies. Unknown codes are dropped.
func Currencies(symbol string) []string {
	symbol = strings.ToUpper(strings.ReplaceAll(symbol, "/", ""))
	if len(symbol) != 6 {
		return nil
	}
	var out []string
	for _, c := range []string{symbol[:3], symbol[3:]} {
		if knownCurrencies[c] {
			out = append(out, c)
		}
	}
	return out
}

// Analyzer combines calendar surprises and headline polarity into one impact
type Analyzer struct {
	calendar  CalendarSource
	headlines HeadlineSource
	now       func() time.Time
	logger    zerolog.Logger
}

// NewAnalyzer creates an analyzer. headlines may be nil.
func NewAnalyzer(calendar CalendarSource, headlines HeadlineSource) *Analyzer {
	return &Analyzer{
		calendar:  calendar,
		headlines: headlines,
		now:       time.Now,
		logger:    log.With().Str("component", "sentiment").Logger(),
	}
}

// Analyze builds the sentiment report for symbol. Impact is
// news*0.7 + headlines*0.3, bounded to -100..100. A headline failure only
// zeroes the headline part; a calendar failure is returned.
func (a *Analyzer) Analyze(ctx context.Context, symbol string) (model.SentimentReport, error) {
	report := model.SentimentReport{Symbol: symbol, Upcoming: []model.CalendarEvent{}}
	currencies := Currencies(symbol)
	if len(currencies) == 0 {
		return report, nil
	}

	now := a.now().UTC()
	events, err := a.calendar.Events(ctx, now.Add(-recentWindow), now.Add(upcomingWindow))
	if err != nil {
		return report, fmt.Errorf("sentiment %s: %w", symbol, err)
	}

	relevant := filterCurrencies(events, currencies)
	report.NewsScore = NewsScore(relevant, currencies, now)
	report.Upcoming = Upcoming(relevant, now)

	if a.headlines != nil {
		headlines, err := a.headlines.Headlines(ctx, symbol)
		if err != nil {
			a.logger.Warn().Err(err).Str("symbol", symbol).Msg("Headline source failed, ignoring headlines")
		} else {
			report.SocialScore = HeadlineScore(headlines)
		}
	}

	report.Impact = clamp(report.NewsScore*newsWeight+report.SocialScore*socialWeight, -100, 100)
	return report, nil
}

func filterCurrencies(events []model.CalendarEvent, currencies []string) []model.CalendarEvent {
	var out []model.CalendarEvent
	for _, e := range events {
		for _, c := range currencies {
			if e.Currency == c {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// NewsScore grades released events of the last 24h. A beat adds the impact
// factor (low 1, medium 2, high 4) and a miss subtracts it; the sign flips
// for the quote currency. The sum is scaled by the maximum attainable to
// -100..100.
func NewsScore(events []model.CalendarEvent, currencies []string, now time.Time) float64 {
	var total float64
	var scored int
	for _, e := range events {
		if e.Time.After(now) || e.Time.Before(now.Add(-recentWindow)) {
			continue
		}
		scored++
		if e.Actual == nil || e.Forecast == nil {
			continue
		}

		surprise := *e.Actual - *e.Forecast
		if isInverted(e.Title) {
			surprise = -surprise
		}
		var impact float64
		switch {
		case surprise > 0:
			impact = factor(e.Impact)
		case surprise < 0:
			impact = -factor(e.Impact)
		}
		if len(currencies) > 1 && e.Currency == currencies[len(currencies)-1] && e.Currency != currencies[0] {
			impact = -impact
		}
		total += impact
	}
	if scored == 0 {
		return 0
	}
	return clamp(total*100/(float64(scored)*maxEventFactor), -100, 100)
}

// Upcoming returns up to five high-impact events in the next 48h, soonest first
func Upcoming(events []model.CalendarEvent, now time.Time) []model.CalendarEvent {
	out := []model.CalendarEvent{}
	for _, e := range events {
		if e.Impact == model.ImpactHigh && e.Time.After(now) && !e.Time.After(now.Add(upcomingWindow)) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	if len(out) > maxUpcoming {
		out = out[:maxUpcoming]
	}
	return out
}

// HeadlineScore counts bullish and bearish keywords over all headlines and
// returns their balance in -100..100
func HeadlineScore(headlines []model.Headline) float64 {
	var bull, bear int
	for _, h := range headlines {
		words := strings.Fields(strings.ToLower(h.Title))
		for _, w := range words {
			w = strings.Trim(w, ".,:;!?\"'()")
			for _, b := range bullishWords {
				if strings.HasPrefix(w, b) {
					bull++
				}
			}
			for _, b := range bearishWords {
				if strings.HasPrefix(w, b) {
					bear++
				}
			}
		}
	}
	if bull+bear == 0 {
		return 0
	}
	return float64(bull-bear) * 100 / float64(bull+bear)
}

func factor(impact model.EventImpact) float64 {
	switch impact {
	case model.ImpactHigh:
		return 4
	case model.ImpactMedium:
		return 2
	}
	return 1
}

func isInverted(title string) bool {
	title = strings.ToLower(title)
	for _, term := range invertedIndicators {
		if strings.Contains(title, term) {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
