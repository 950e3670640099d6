package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"SignalDesk/internal/domain/models"
	"SignalDesk/internal/domain/repository"
	repo "SignalDesk/internal/repository"
	"SignalDesk/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newLifecycle(prices mapPrices) (*LifecycleManager, *repo.MemorySignalRepository, *memPublisher, *clock) {
	store := repo.NewMemorySignalRepository()
	pub := &memPublisher{}
	clk := &clock{t: t0}
	m := NewLifecycleManager(store, pub, prices, DefaultLifecycleConfig(), nil, WithLifecycleClock(clk.now))
	return m, store, pub, clk
}

func seed(t *testing.T, store *repo.MemorySignalRepository, s models.Signal) {
	t.Helper()
	if s.Symbol == "" {
		s.Symbol = "EURUSD=X"
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = t0
	}
	if err := store.Upsert(context.Background(), &s); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
}

func status(t *testing.T, store *repo.MemorySignalRepository, id string) models.Status {
	t.Helper()
	s, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	return s.Status
}

func TestTTLSweepExpiresExactlyOnce(t *testing.T) {
	m, store, pub, _ := newLifecycle(nil)
	seed(t, store, models.Signal{ID: "s1", Direction: models.Long, EntryPrice: 1.1, Status: models.StatusWaiting})
	ctx := context.Background()

	n, err := m.SweepExpired(ctx, t0.Add(3*time.Hour))
	if err != nil || n != 0 {
		t.Fatalf("sweep at exactly TTL: n=%d err=%v, want 0", n, err)
	}

	at := t0.Add(3*time.Hour + time.Second)
	n, err = m.SweepExpired(ctx, at)
	if err != nil || n != 1 {
		t.Fatalf("first sweep: n=%d err=%v, want 1", n, err)
	}
	n, _ = m.SweepExpired(ctx, at.Add(5*time.Minute))
	if n != 0 {
		t.Fatalf("second sweep expired %d, want 0", n)
	}
	if got := status(t, store, "s1"); got != models.StatusExpired {
		t.Fatalf("status = %s", got)
	}
	if pub.eventCount() != 1 {
		t.Fatalf("events = %d, want 1", pub.eventCount())
	}
	s, _ := store.Get(ctx, "s1")
	if s.Metadata[models.MetaExpiredReason] != "TTL exceeded" || !s.Flag(models.MetaResultAnnounced) {
		t.Fatalf("metadata = %+v", s.Metadata)
	}
}

func TestTerminalSignalsSurviveEverySweep(t *testing.T) {
	m, store, pub, _ := newLifecycle(mapPrices{"EURUSD=X": 1.2})
	for _, st := range []models.Status{models.StatusTP1Hit, models.StatusTP2Hit, models.StatusSLHit, models.StatusExpired} {
		seed(t, store, models.Signal{ID: string(st), Direction: models.Long, EntryPrice: 1.1, Status: st})
	}
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := m.SweepExpired(ctx, t0.Add(24*time.Hour)); err != nil {
			t.Fatalf("SweepExpired: %v", err)
		}
		if _, err := m.SweepDrift(ctx, t0.Add(24*time.Hour)); err != nil {
			t.Fatalf("SweepDrift: %v", err)
		}
	}
	for _, st := range []models.Status{models.StatusTP1Hit, models.StatusTP2Hit, models.StatusSLHit, models.StatusExpired} {
		if got := status(t, store, string(st)); got != st {
			t.Fatalf("%s changed to %s", st, got)
		}
	}
	if pub.eventCount() != 0 {
		t.Fatalf("events = %d, want 0", pub.eventCount())
	}
}

func TestEntryHitAlsoExpiresOnTTL(t *testing.T) {
	m, store, _, _ := newLifecycle(nil)
	seed(t, store, models.Signal{ID: "s1", Direction: models.Long, EntryPrice: 1.1, Status: models.StatusEntryHit})
	n, _ := m.SweepExpired(context.Background(), t0.Add(4*time.Hour))
	if n != 1 || status(t, store, "s1") != models.StatusExpired {
		t.Fatalf("n=%d status=%s", n, status(t, store, "s1"))
	}
}

func TestDriftSweep(t *testing.T) {
	prices := mapPrices{"EURUSD=X": 1.1015, "USDJPY=X": 150.05}
	m, store, _, _ := newLifecycle(prices)
	// long waits for a pullback to 1.1000, price ran 15 pips up
	seed(t, store, models.Signal{ID: "long", Direction: models.Long, EntryPrice: 1.1000, Status: models.StatusWaiting})
	// short from 1.1020 sees price 5 pips below, inside the zone
	seed(t, store, models.Signal{ID: "short", Direction: models.Short, EntryPrice: 1.1020, Status: models.StatusWaiting})
	// JPY: 5 pips up is within tolerance
	seed(t, store, models.Signal{ID: "jpy", Symbol: "USDJPY=X", Direction: models.Long, EntryPrice: 150.00, Status: models.StatusActive})
	// entered signals are never drift-expired
	seed(t, store, models.Signal{ID: "entered", Direction: models.Long, EntryPrice: 1.0900, Status: models.StatusEntryHit})

	n, err := m.SweepDrift(context.Background(), t0.Add(time.Minute))
	if err != nil || n != 1 {
		t.Fatalf("n=%d err=%v, want 1", n, err)
	}
	if status(t, store, "long") != models.StatusExpired {
		t.Fatalf("long not expired")
	}
	for _, id := range []string{"short", "jpy"} {
		if st := status(t, store, id); !st.PreEntry() {
			t.Fatalf("%s status = %s", id, st)
		}
	}
	if status(t, store, "entered") != models.StatusEntryHit {
		t.Fatalf("entered signal drift-expired")
	}
	s, _ := store.Get(context.Background(), "long")
	if s.Metadata[models.MetaExpiredReason] != "Price moved 15.0 pips away from entry zone" {
		t.Fatalf("reason = %v", s.Metadata[models.MetaExpiredReason])
	}
	if s.Metadata[models.MetaPriceAtExpire] != 1.1015 {
		t.Fatalf("price at expire = %v", s.Metadata[models.MetaPriceAtExpire])
	}
}

func TestApplyPriceWalksLongSignal(t *testing.T) {
	m, store, pub, _ := newLifecycle(nil)
	seed(t, store, models.Signal{ID: "s1", Direction: models.Long, EntryPrice: 1.1000,
		StopLoss: 1.0970, TP1: 1.1030, TP2: 1.1060, Status: models.StatusWaiting})
	ctx := context.Background()

	steps := []struct {
		price float64
		want  models.Status
		moved bool
	}{
		{1.1010, models.StatusWaiting, false},
		{1.0999, models.StatusEntryHit, true},
		{1.1020, models.StatusEntryHit, false},
		{1.1035, models.StatusTP1Hit, true},
		{1.0900, models.StatusTP1Hit, false},
	}
	for i, st := range steps {
		sig, _ := store.Get(ctx, "s1")
		got, moved, err := m.ApplyPrice(ctx, sig, st.price)
		if err != nil && !errors.Is(err, ErrTerminalStatus) {
			t.Fatalf("step %d: %v", i, err)
		}
		if got != st.want || moved != st.moved {
			t.Fatalf("step %d price %.4f: got %s moved=%v, want %s moved=%v", i, st.price, got, moved, st.want, st.moved)
		}
	}
	if pub.eventCount() != 2 {
		t.Fatalf("events = %d, want 2", pub.eventCount())
	}
}

func TestApplyPriceShortStopLoss(t *testing.T) {
	m, store, _, _ := newLifecycle(nil)
	seed(t, store, models.Signal{ID: "s1", Direction: models.Short, EntryPrice: 1.1000,
		StopLoss: 1.1030, TakeProfit: 1.0950, Status: models.StatusEntryHit})
	sig, _ := store.Get(context.Background(), "s1")
	got, moved, err := m.ApplyPrice(context.Background(), sig, 1.1031)
	if err != nil || !moved || got != models.StatusSLHit {
		t.Fatalf("got %s moved=%v err=%v", got, moved, err)
	}
}

func TestTransitionErrors(t *testing.T) {
	m, store, _, _ := newLifecycle(nil)
	seed(t, store, models.Signal{ID: "done", Status: models.StatusSLHit})
	seed(t, store, models.Signal{ID: "wait", Status: models.StatusWaiting})
	ctx := context.Background()

	if _, err := m.Transition(ctx, "missing", models.StatusExpired, 0); !errors.Is(err, repository.ErrSignalNotFound) {
		t.Fatalf("missing: err = %v", err)
	}
	if _, err := m.Transition(ctx, "done", models.StatusExpired, 0); !errors.Is(err, ErrTerminalStatus) {
		t.Fatalf("terminal: err = %v", err)
	}
	if _, err := m.Transition(ctx, "wait", models.StatusTP1Hit, 0); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("illegal: err = %v", err)
	}
	ok, err := m.Transition(ctx, "wait", models.StatusEntryHit, 1.1)
	if err != nil || !ok {
		t.Fatalf("legal: ok=%v err=%v", ok, err)
	}
}

func TestStaleSignalLosesRace(t *testing.T) {
	m, store, pub, _ := newLifecycle(nil)
	seed(t, store, models.Signal{ID: "s1", Direction: models.Long, EntryPrice: 1.1, TakeProfit: 1.2, StopLoss: 1.0, Status: models.StatusEntryHit})
	ctx := context.Background()
	stale, _ := store.Get(ctx, "s1")

	if _, err := m.Transition(ctx, "s1", models.StatusExpired, 0); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	_, moved, err := m.ApplyPrice(ctx, stale, 1.25)
	if err != nil || moved {
		t.Fatalf("stale apply moved=%v err=%v, want silent no-op", moved, err)
	}
	if status(t, store, "s1") != models.StatusExpired || pub.eventCount() != 1 {
		t.Fatalf("status=%s events=%d", status(t, store, "s1"), pub.eventCount())
	}
}

type fakeLocker struct{ held map[string]bool }

func (l *fakeLocker) TryLock(_ context.Context, key string, _ time.Duration) (bool, error) {
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}

func (l *fakeLocker) Unlock(_ context.Context, key string) error {
	delete(l.held, key)
	return nil
}

func TestSweepSkipsWhenLockHeld(t *testing.T) {
	m, store, _, clk := newLifecycle(nil)
	lock := &fakeLocker{held: map[string]bool{"lifecycle:sweep:ttl": true}}
	m.locker = lock
	seed(t, store, models.Signal{ID: "s1", Status: models.StatusWaiting})
	clk.t = t0.Add(5 * time.Hour)

	m.sweep(context.Background(), "ttl", time.Minute, m.SweepExpired)
	if status(t, store, "s1") != models.StatusWaiting {
		t.Fatalf("swept while another replica held the lock")
	}
	delete(lock.held, "lifecycle:sweep:ttl")
	m.sweep(context.Background(), "ttl", time.Minute, m.SweepExpired)
	if status(t, store, "s1") != models.StatusExpired {
		t.Fatalf("not swept after lock released")
	}
	if len(lock.held) != 0 {
		t.Fatalf("lock not released: %v", lock.held)
	}
}

func gatherCounter(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var sum float64
	for _, f := range families {
		if f.GetName() == name {
			for _, m := range f.GetMetric() {
				sum += m.GetCounter().GetValue()
			}
		}
	}
	return sum
}

func TestSweepRecordedOncePerRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	store := repo.NewMemorySignalRepository()
	clk := &clock{t: t0.Add(5 * time.Hour)}
	m := NewLifecycleManager(store, &memPublisher{}, nil, DefaultLifecycleConfig(), nil,
		WithLifecycleClock(clk.now), WithLifecycleMetrics(metrics.NewWithRegisterer(reg)))
	seed(t, store, models.Signal{ID: "s1", Status: models.StatusWaiting})

	m.sweep(context.Background(), "ttl", time.Minute, m.SweepExpired)
	if got := gatherCounter(t, reg, "signaldesk_lifecycle_sweeps_total"); got != 1 {
		t.Fatalf("sweeps_total = %v, want 1", got)
	}
	if got := gatherCounter(t, reg, "signaldesk_lifecycle_swept_signals_total"); got != 1 {
		t.Fatalf("swept_signals_total = %v, want 1", got)
	}

	m.sweep(context.Background(), "ttl", time.Minute, m.SweepExpired)
	if got := gatherCounter(t, reg, "signaldesk_lifecycle_sweeps_total"); got != 2 {
		t.Fatalf("sweeps_total after second run = %v, want 2", got)
	}
	if got := gatherCounter(t, reg, "signaldesk_lifecycle_swept_signals_total"); got != 1 {
		t.Fatalf("swept_signals_total after second run = %v, want 1", got)
	}
}
