package models

import (
	"strings"
	"time"
)

// SignalPayload is the signal wire schema exchanged with downstream consumers.
type SignalPayload struct {
	SignalID        string                 `json:"signal_id" validate:"required"`
	Timestamp       string                 `json:"timestamp"`
	Pair            string                 `json:"pair" validate:"required"`
	Timeframe       string                 `json:"timeframe" default:"H1" validate:"oneof=M1 M5 M15 M30 H1 H4 D1"`
	Type            string                 `json:"type" validate:"required,oneof=BUY SELL"`
	EntryPrice      float64                `json:"entry_price" validate:"required,gt=0"`
	SL              float64                `json:"sl" validate:"gte=0"`
	TP              float64                `json:"tp" validate:"gte=0"`
	ConfidenceScore int                    `json:"confidence_score" validate:"gte=0,lte=100"`
	Sentiment       string                 `json:"sentiment" default:"NEUTRAL" validate:"oneof='STRONG BULLISH' BULLISH NEUTRAL BEARISH 'STRONG BEARISH'"`
	Status          string                 `json:"status" default:"WAITING" validate:"oneof=WAITING ACTIVE ENTRY_HIT TP1_HIT TP2_HIT SL_HIT EXPIRED"`
	Version         string                 `json:"version"`
	ExpiryTime      string                 `json:"expiry_time,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

// SymbolFromPair converts "EUR/USD" into the feed symbol "EURUSD=X".
func SymbolFromPair(pair string) string {
	s := strings.ToUpper(strings.ReplaceAll(pair, "/", ""))
	if strings.HasSuffix(s, "=X") {
		return s
	}
	return s + "=X"
}

// PairFromSymbol is the inverse of SymbolFromPair for six-letter FX symbols.
func PairFromSymbol(symbol string) string {
	s := strings.TrimSuffix(strings.ToUpper(symbol), "=X")
	if len(s) == 6 {
		return s[:3] + "/" + s[3:]
	}
	return s
}

// SentimentFor maps a direction and confidence to the wire sentiment label.
func SentimentFor(d Direction, confidence int) string {
	strong := confidence >= 90
	switch {
	case d == Long && strong:
		return "STRONG BULLISH"
	case d == Long:
		return "BULLISH"
	case d == Short && strong:
		return "STRONG BEARISH"
	case d == Short:
		return "BEARISH"
	}
	return "NEUTRAL"
}

// ToPayload renders a signal in the wire schema.
func (s *Signal) ToPayload() SignalPayload {
	p := SignalPayload{
		SignalID:        s.ID,
		Timestamp:       s.CreatedAt.UTC().Format(time.RFC3339),
		Pair:            s.Pair,
		Timeframe:       s.Timeframe,
		Type:            string(ActionFor(s.Direction)),
		EntryPrice:      s.EntryPrice,
		SL:              s.StopLoss,
		TP:              s.TakeProfit,
		ConfidenceScore: s.Confidence,
		Sentiment:       s.Sentiment,
		Status:          string(s.Status),
		Version:         s.Version,
		Metadata:        map[string]interface{}{},
	}
	if p.Pair == "" {
		p.Pair = PairFromSymbol(s.Symbol)
	}
	if s.ExpiryTime != nil {
		p.ExpiryTime = s.ExpiryTime.UTC().Format(time.RFC3339)
	}
	if s.TP1 > 0 {
		p.Metadata[MetaTP1Price] = s.TP1
	}
	if s.TP2 > 0 {
		p.Metadata[MetaTP2Price] = s.TP2
	}
	return p
}
