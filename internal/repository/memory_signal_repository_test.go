package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"SignalDesk/internal/domain/models"
	"SignalDesk/internal/domain/repository"
)

func TestMemoryCompareAndSetIsExclusive(t *testing.T) {
	ctx := context.Background()
	r := NewMemorySignalRepository()
	_ = r.Upsert(ctx, &models.Signal{ID: "s1", Status: models.StatusEntryHit})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for _, to := range []models.Status{models.StatusTP1Hit, models.StatusSLHit, models.StatusExpired, models.StatusTP2Hit} {
		wg.Add(1)
		go func(to models.Status) {
			defer wg.Done()
			ok, err := r.CompareAndSetStatus(ctx, "s1", []models.Status{models.StatusEntryHit}, to, time.Now(), nil)
			if err != nil {
				t.Errorf("CompareAndSetStatus: %v", err)
			}
			if ok {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}(to)
	}
	wg.Wait()
	if applied != 1 {
		t.Fatalf("applied = %d, want exactly one terminal status", applied)
	}
}

func TestMemoryListByStatusAgeBound(t *testing.T) {
	ctx := context.Background()
	r := NewMemorySignalRepository()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	_ = r.Upsert(ctx, &models.Signal{ID: "old", Symbol: "EURUSD=X", Status: models.StatusWaiting, CreatedAt: base})
	_ = r.Upsert(ctx, &models.Signal{ID: "new", Symbol: "EURUSD=X", Status: models.StatusWaiting, CreatedAt: base.Add(time.Hour)})
	_ = r.Upsert(ctx, &models.Signal{ID: "done", Symbol: "EURUSD=X", Status: models.StatusTP1Hit, CreatedAt: base})

	got, _ := r.ListByStatus(ctx, []models.Status{models.StatusWaiting}, base.Add(time.Minute))
	if len(got) != 1 || got[0].ID != "old" {
		t.Fatalf("got %+v, want only old", got)
	}
	active, _ := r.ListActive(ctx, "EURUSD=X")
	if len(active) != 2 {
		t.Fatalf("active = %d, want 2", len(active))
	}
}

func TestMemoryGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	r := NewMemorySignalRepository()
	_ = r.Upsert(ctx, &models.Signal{ID: "s1", Status: models.StatusWaiting, Metadata: map[string]interface{}{"a": 1}})
	s, _ := r.Get(ctx, "s1")
	s.Status = models.StatusExpired
	s.Metadata["a"] = 2
	again, _ := r.Get(ctx, "s1")
	if again.Status != models.StatusWaiting || again.Metadata["a"] != 1 {
		t.Fatalf("stored signal mutated through copy: %+v", again)
	}
	if _, err := r.Get(ctx, "missing"); !errors.Is(err, repository.ErrSignalNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestMemoryUpsertKeepsStatusAndTimestamps(t *testing.T) {
	ctx := context.Background()
	r := NewMemorySignalRepository()
	created := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	_ = r.Upsert(ctx, &models.Signal{ID: "s1", Status: models.StatusWaiting, CreatedAt: created,
		Metadata: map[string]interface{}{"broadcasted": true}})
	if ok, _ := r.CompareAndSetStatus(ctx, "s1", []models.Status{models.StatusWaiting}, models.StatusExpired, created.Add(time.Hour), nil); !ok {
		t.Fatalf("CompareAndSetStatus not applied")
	}

	_ = r.Upsert(ctx, &models.Signal{ID: "s1", Status: models.StatusWaiting, StopLoss: 1.2, CreatedAt: created.Add(2 * time.Hour),
		Metadata: map[string]interface{}{"note": "x"}})
	got, _ := r.Get(ctx, "s1")
	if got.Status != models.StatusExpired || !got.CreatedAt.Equal(created) || !got.LastCheckedAt.Equal(created.Add(time.Hour)) {
		t.Fatalf("upsert rewrote lifecycle fields: %+v", got)
	}
	if got.StopLoss != 1.2 || got.Metadata["broadcasted"] != true || got.Metadata["note"] != "x" {
		t.Fatalf("content not refreshed: %+v", got)
	}
}
