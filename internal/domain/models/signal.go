package models

import "time"

// Status is a persisted signal's lifecycle state.
type Status string

const (
	StatusWaiting  Status = "WAITING"
	StatusActive   Status = "ACTIVE"
	StatusEntryHit Status = "ENTRY_HIT"
	StatusTP1Hit   Status = "TP1_HIT"
	StatusTP2Hit   Status = "TP2_HIT"
	StatusSLHit    Status = "SL_HIT"
	StatusExpired  Status = "EXPIRED"
)

// Terminal reports whether no transition may leave s.
func (s Status) Terminal() bool {
	switch s {
	case StatusTP1Hit, StatusTP2Hit, StatusSLHit, StatusExpired:
		return true
	}
	return false
}

// PreEntry reports whether the entry has not been confirmed yet.
func (s Status) PreEntry() bool { return s == StatusWaiting || s == StatusActive }

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusWaiting, StatusActive, StatusEntryHit, StatusTP1Hit, StatusTP2Hit, StatusSLHit, StatusExpired:
		return true
	}
	return false
}

// Metadata keys written by the lifecycle and publishing paths.
const (
	MetaBroadcasted     = "broadcasted"
	MetaBroadcastTime   = "broadcast_time"
	MetaResultAnnounced = "result_announced"
	MetaExpiredAt       = "expired_at"
	MetaExpiredReason   = "expired_reason"
	MetaPriceAtExpire   = "current_price_at_expire"
	MetaLastPrice       = "last_price"
	MetaTP1Price        = "tp1_price"
	MetaTP2Price        = "tp2_price"
)

// Signal is an emitted recommendation tracked until it resolves.
type Signal struct {
	ID            string                 `json:"id"`
	Symbol        string                 `json:"symbol"`
	Pair          string                 `json:"pair"`
	Direction     Direction              `json:"direction"`
	Timeframe     string                 `json:"timeframe"`
	EntryPrice    float64                `json:"entry_price"`
	StopLoss      float64                `json:"sl"`
	TakeProfit    float64                `json:"tp"`
	TP1           float64                `json:"tp1"`
	TP2           float64                `json:"tp2"`
	Confidence    int                    `json:"confidence"`
	Sentiment     string                 `json:"sentiment"`
	Version       string                 `json:"version"`
	Status        Status                 `json:"status"`
	CreatedAt     time.Time              `json:"created_at"`
	LastCheckedAt time.Time              `json:"last_checked_at"`
	ExpiryTime    *time.Time             `json:"expiry_time,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// Flag reads a boolean metadata marker.
func (s *Signal) Flag(key string) bool {
	if s.Metadata == nil {
		return false
	}
	v, ok := s.Metadata[key].(bool)
	return ok && v
}

// Event is published for every applied lifecycle transition.
type Event struct {
	SignalID   string    `json:"signal_id"`
	Symbol     string    `json:"symbol"`
	From       Status    `json:"from"`
	To         Status    `json:"to"`
	Price      float64   `json:"price"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
