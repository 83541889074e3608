package model

import "time"

// EventImpact grades an economic calendar release
type EventImpact string

const (
	ImpactLow    EventImpact = "low"
	ImpactMedium EventImpact = "medium"
	ImpactHigh   EventImpact = "high"
)

// CalendarEvent is a scheduled or released economic event
type CalendarEvent struct {
	Time     time.Time   `json:"time"`
	Currency string      `json:"currency"`
	Title    string      `json:"title"`
	Impact   EventImpact `json:"impact"`
	Actual   *float64    `json:"actual,omitempty"`
	Forecast *float64    `json:"forecast,omitempty"`
	Previous *float64    `json:"previous,omitempty"`
}

// Headline is a news item used for headline polarity scoring
type Headline struct {
	Time  time.Time `json:"time"`
	Title string    `json:"title"`
}

// SentimentReport is the bounded sentiment view for one symbol. Impact is in -100..100.
type SentimentReport struct {
	Symbol      string          `json:"symbol"`
	Impact      float64         `json:"impact"`
	NewsScore   float64         `json:"news_score"`
	SocialScore float64         `json:"social_score"`
	Upcoming    []CalendarEvent `json:"upcoming"`
}
