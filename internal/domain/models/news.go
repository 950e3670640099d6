package models

import "time"

// Impact is the expected market impact of a news item or calendar event.
type Impact string

const (
	ImpactLow    Impact = "LOW"
	ImpactMedium Impact = "MEDIUM"
	ImpactHigh   Impact = "HIGH"
)

type NewsItem struct {
	Title     string    `json:"title"`
	Timestamp time.Time `json:"timestamp"`
	Impact    Impact    `json:"impact"`
	Sentiment *float64  `json:"sentiment,omitempty"`
	Source    string    `json:"source,omitempty"`
}

type EconomicEvent struct {
	Title     string    `json:"title" yaml:"title"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Impact    Impact    `json:"impact" yaml:"impact"`
	Currency  string    `json:"currency,omitempty" yaml:"currency"`
}
