package risk

import (
	"sync"
	"time"
)

// Commitment is one executed trade's contribution to the risk budget
type Commitment struct {
	Time        time.Time `json:"time"`
	SignalID    string    `json:"signal_id"`
	Symbol      string    `json:"symbol"`
	Lot         float64   `json:"lot"`
	RiskAmount  float64   `json:"risk_amount"`
	RiskPercent float64   `json:"risk_percent"`
	Balance     float64   `json:"balance"`
}

// Budget tracks the risk percent committed in the current calendar day and
// ISO week. Counters reset lazily when a query or commit crosses a boundary.
// History is a ring buffer keeping the most recent commitments.
type Budget struct {
	mu  sync.Mutex
	loc *time.Location

	daily, weekly   float64
	day             string
	year, week      int
	lastDailyReset  time.Time
	lastWeeklyReset time.Time
	latest          time.Time

	ring  []Commitment
	head  int
	count int
}

// NewBudget creates an empty budget keeping capacity commitments. Day and week
// boundaries are evaluated in loc (UTC when nil).
func NewBudget(capacity int, loc *time.Location) *Budget {
	if capacity <= 0 {
		capacity = 500
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Budget{loc: loc, ring: make([]Commitment, capacity)}
}

// roll resets the counters whose period ended before now. Times earlier than
// the latest one seen never move the counters back. Caller holds mu.
func (b *Budget) roll(now time.Time) {
	if now.Before(b.latest) {
		return
	}
	b.latest = now
	local := now.In(b.loc)
	day := local.Format(time.DateOnly)
	if day != b.day {
		b.daily = 0
		b.day = day
		b.lastDailyReset = now
	}
	year, week := local.ISOWeek()
	if year != b.year || week != b.week {
		b.weekly = 0
		b.year, b.week = year, week
		b.lastWeeklyReset = now
	}
}

// Used returns the daily and weekly committed risk percent as of now
func (b *Budget) Used(now time.Time) (daily, weekly float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.roll(now)
	return b.daily, b.weekly
}

// Commit adds a trade to the history and to the counters of the periods it
// falls in. A trade dated before the current day or week only counts toward
// the periods it shares with the latest one seen.
func (b *Budget) Commit(c Commitment) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.roll(c.Time)
	local := c.Time.In(b.loc)
	if local.Format(time.DateOnly) == b.day {
		b.daily += c.RiskPercent
	}
	if year, week := local.ISOWeek(); year == b.year && week == b.week {
		b.weekly += c.RiskPercent
	}

	b.ring[b.head] = c
	b.head = (b.head + 1) % len(b.ring)
	if b.count < len(b.ring) {
		b.count++
	}
}

// History returns retained commitments at or after since, oldest first
func (b *Budget) History(since time.Time) []Commitment {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Commitment, 0, b.count)
	start := (b.head - b.count + len(b.ring)) % len(b.ring)
	for i := 0; i < b.count; i++ {
		c := b.ring[(start+i)%len(b.ring)]
		if !c.Time.Before(since) {
			out = append(out, c)
		}
	}
	return out
}

// resets returns the time of the last daily and weekly reset as of now
func (b *Budget) resets(now time.Time) (daily, weekly time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.roll(now)
	return b.lastDailyReset, b.lastWeeklyReset
}
