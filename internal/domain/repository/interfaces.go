package repository

import (
	"context"
	"errors"
	"time"

	"SignalDesk/internal/domain/models"
)

// ErrSignalNotFound is returned when no signal has the requested id.
var ErrSignalNotFound = errors.New("signal not found")

// SignalRepository persists signals. Status changes go through CompareAndSetStatus only.
type SignalRepository interface {
	// Upsert inserts s, or refreshes the content of an existing signal without
	// touching its status, created_at or last_checked_at.
	Upsert(ctx context.Context, s *models.Signal) error
	Get(ctx context.Context, id string) (*models.Signal, error)
	// ListByStatus returns signals in one of statuses. A zero createdBefore means no age bound.
	ListByStatus(ctx context.Context, statuses []models.Status, createdBefore time.Time) ([]*models.Signal, error)
	ListActive(ctx context.Context, symbol string) ([]*models.Signal, error)
	// CompareAndSetStatus atomically moves a signal from one of from to to,
	// stamps last_checked_at and merges meta. It reports whether a row changed.
	CompareAndSetStatus(ctx context.Context, id string, from []models.Status, to models.Status, at time.Time, meta map[string]interface{}) (bool, error)
	MergeMetadata(ctx context.Context, id string, meta map[string]interface{}) error
	Health(ctx context.Context) error
}

// WeightStore loads tunable agent parameters keyed by name.
type WeightStore interface {
	LoadWeights(ctx context.Context) (map[string]float64, error)
}

// DecisionJournal retains every pipeline outcome, ghosts included.
type DecisionJournal interface {
	Record(ctx context.Context, r *models.PipelineResult) error
}

// EventPublisher fans emitted signals and lifecycle events out to consumers.
type EventPublisher interface {
	PublishSignal(ctx context.Context, s *models.Signal) error
	PublishEvent(ctx context.Context, e models.Event) error
	Close() error
}

// PriceSource answers the latest observed price for a symbol.
type PriceSource interface {
	LatestPrice(symbol string) (float64, bool)
}

// Locker guards work that must run on a single replica at a time.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

type Metrics interface {
	RecordBusMessage(channel string, latencySeconds float64)
	RecordVote(agent, decision string)
	RecordDecision(outcome string, confidence int)
	RecordSniper(reason string)
	RecordTransition(to string)
	RecordSweep(kind string, expired int)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
}
