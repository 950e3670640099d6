package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"SignalDesk/internal/domain/models"
	"SignalDesk/internal/domain/repository"
)

// MemorySignalRepository keeps signals in process. It is used when no
// Postgres DSN is configured and in tests.
type MemorySignalRepository struct {
	mu      sync.RWMutex
	signals map[string]*models.Signal
}

func NewMemorySignalRepository() *MemorySignalRepository {
	return &MemorySignalRepository{signals: make(map[string]*models.Signal)}
}

// Upsert inserts s or refreshes an existing signal's content. An existing
// signal keeps its status and timestamps.
func (r *MemorySignalRepository) Upsert(_ context.Context, s *models.Signal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := cloneSignal(s)
	if prev, ok := r.signals[s.ID]; ok {
		c.Status = prev.Status
		c.CreatedAt = prev.CreatedAt
		c.LastCheckedAt = prev.LastCheckedAt
		merged := make(map[string]interface{}, len(prev.Metadata)+len(c.Metadata))
		for k, v := range prev.Metadata {
			merged[k] = v
		}
		for k, v := range c.Metadata {
			merged[k] = v
		}
		c.Metadata = merged
	}
	r.signals[s.ID] = c
	return nil
}

func (r *MemorySignalRepository) Get(_ context.Context, id string) (*models.Signal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.signals[id]
	if !ok {
		return nil, repository.ErrSignalNotFound
	}
	return cloneSignal(s), nil
}

func (r *MemorySignalRepository) ListByStatus(_ context.Context, statuses []models.Status, createdBefore time.Time) ([]*models.Signal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.Signal
	for _, s := range r.signals {
		if !hasStatus(statuses, s.Status) {
			continue
		}
		if !createdBefore.IsZero() && !s.CreatedAt.Before(createdBefore) {
			continue
		}
		out = append(out, cloneSignal(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemorySignalRepository) ListActive(ctx context.Context, symbol string) ([]*models.Signal, error) {
	all, err := r.ListByStatus(ctx, []models.Status{models.StatusWaiting, models.StatusActive, models.StatusEntryHit}, time.Time{})
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, s := range all {
		if symbol == "" || s.Symbol == symbol {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *MemorySignalRepository) CompareAndSetStatus(_ context.Context, id string, from []models.Status, to models.Status, at time.Time, meta map[string]interface{}) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.signals[id]
	if !ok {
		return false, repository.ErrSignalNotFound
	}
	if !hasStatus(from, s.Status) {
		return false, nil
	}
	s.Status = to
	s.LastCheckedAt = at
	mergeMeta(s, meta)
	return true, nil
}

func (r *MemorySignalRepository) MergeMetadata(_ context.Context, id string, meta map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.signals[id]
	if !ok {
		return repository.ErrSignalNotFound
	}
	mergeMeta(s, meta)
	return nil
}

func (r *MemorySignalRepository) Health(context.Context) error { return nil }

func hasStatus(set []models.Status, s models.Status) bool {
	for _, x := range set {
		if x == s {
			return true
		}
	}
	return false
}

func mergeMeta(s *models.Signal, meta map[string]interface{}) {
	if len(meta) == 0 {
		return
	}
	if s.Metadata == nil {
		s.Metadata = make(map[string]interface{}, len(meta))
	}
	for k, v := range meta {
		s.Metadata[k] = v
	}
}

func cloneSignal(s *models.Signal) *models.Signal {
	c := *s
	if s.Metadata != nil {
		c.Metadata = make(map[string]interface{}, len(s.Metadata))
		for k, v := range s.Metadata {
			c.Metadata[k] = v
		}
	}
	if s.ExpiryTime != nil {
		t := *s.ExpiryTime
		c.ExpiryTime = &t
	}
	return &c
}

var _ repository.SignalRepository = (*MemorySignalRepository)(nil)
