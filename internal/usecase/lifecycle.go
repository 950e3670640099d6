package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SignalDesk/internal/domain/models"
	"SignalDesk/internal/domain/repository"
	"SignalDesk/internal/indicators"
	applogger "SignalDesk/pkg/logger"
)

var (
	// ErrTerminalStatus is returned when a transition targets a resolved signal.
	ErrTerminalStatus = errors.New("lifecycle: signal is in a terminal status")
	// ErrIllegalTransition is returned for edges the state machine does not have.
	ErrIllegalTransition = errors.New("lifecycle: illegal transition")
)

const (
	reasonTTL    = "TTL exceeded"
	reasonManual = "status update"
	reasonPrice  = "price touched level"
)

// allowedFrom lists the source states of every edge into to.
func allowedFrom(to models.Status) []models.Status {
	switch to {
	case models.StatusActive:
		return []models.Status{models.StatusWaiting}
	case models.StatusEntryHit:
		return []models.Status{models.StatusWaiting, models.StatusActive}
	case models.StatusTP1Hit, models.StatusTP2Hit, models.StatusSLHit:
		return []models.Status{models.StatusEntryHit}
	case models.StatusExpired:
		return []models.Status{models.StatusWaiting, models.StatusActive, models.StatusEntryHit}
	}
	return nil
}

type LifecycleConfig struct {
	TTL        time.Duration
	DriftPips  float64
	TTLEvery   time.Duration
	DriftEvery time.Duration
}

func DefaultLifecycleConfig() LifecycleConfig {
	return LifecycleConfig{
		TTL:        3 * time.Hour,
		DriftPips:  10,
		TTLEvery:   5 * time.Minute,
		DriftEvery: 60 * time.Second,
	}
}

type LifecycleOption func(*LifecycleManager)

func WithLifecycleClock(now func() time.Time) LifecycleOption {
	return func(m *LifecycleManager) { m.now = now }
}

func WithLocker(l repository.Locker) LifecycleOption {
	return func(m *LifecycleManager) { m.locker = l }
}

func WithLifecycleMetrics(r repository.Metrics) LifecycleOption {
	return func(m *LifecycleManager) { m.metrics = r }
}

// LifecycleManager is the only writer of Signal.Status.
type LifecycleManager struct {
	repo      repository.SignalRepository
	publisher repository.EventPublisher
	prices    repository.PriceSource
	locker    repository.Locker
	metrics   repository.Metrics
	cfg       LifecycleConfig
	l         *applogger.Logger
	now       func() time.Time
}

func NewLifecycleManager(
	repo repository.SignalRepository,
	publisher repository.EventPublisher,
	prices repository.PriceSource,
	cfg LifecycleConfig,
	l *applogger.Logger,
	opts ...LifecycleOption,
) *LifecycleManager {
	def := DefaultLifecycleConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.DriftPips <= 0 {
		cfg.DriftPips = def.DriftPips
	}
	if cfg.TTLEvery <= 0 {
		cfg.TTLEvery = def.TTLEvery
	}
	if cfg.DriftEvery <= 0 {
		cfg.DriftEvery = def.DriftEvery
	}
	if l == nil {
		l = applogger.NewNop()
	}
	m := &LifecycleManager{
		repo:      repo,
		publisher: publisher,
		prices:    prices,
		cfg:       cfg,
		l:         l,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Transition moves signal id to status to. It reports whether the change was
// applied; false with a nil error means the row moved on concurrently.
func (m *LifecycleManager) Transition(ctx context.Context, id string, to models.Status, price float64) (bool, error) {
	sig, err := m.repo.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return m.transition(ctx, sig, to, price, reasonManual, nil)
}

func (m *LifecycleManager) transition(ctx context.Context, sig *models.Signal, to models.Status, price float64, reason string, meta map[string]interface{}) (bool, error) {
	if sig.Status.Terminal() {
		m.l.Debug("transition on terminal signal ignored",
			applogger.String("signal_id", sig.ID),
			applogger.String("status", string(sig.Status)),
			applogger.String("to", string(to)),
		)
		return false, fmt.Errorf("%w: %s is %s", ErrTerminalStatus, sig.ID, sig.Status)
	}
	from := allowedFrom(to)
	if !hasStatus(from, sig.Status) {
		return false, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, sig.Status, to)
	}

	now := m.now()
	if meta == nil {
		meta = map[string]interface{}{}
	}
	if price > 0 {
		meta[models.MetaLastPrice] = price
	}
	applied, err := m.repo.CompareAndSetStatus(ctx, sig.ID, from, to, now, meta)
	if err != nil {
		return false, fmt.Errorf("set status %s on %s: %w", to, sig.ID, err)
	}
	if !applied {
		m.l.Debug("transition lost race, no-op",
			applogger.String("signal_id", sig.ID),
			applogger.String("to", string(to)),
		)
		return false, nil
	}

	m.l.Info("signal transitioned",
		applogger.String("signal_id", sig.ID),
		applogger.String("symbol", sig.Symbol),
		applogger.String("from", string(sig.Status)),
		applogger.String("to", string(to)),
		applogger.Float64("price", price),
		applogger.String("reason", reason),
	)
	if m.metrics != nil {
		m.metrics.RecordTransition(string(to))
	}
	m.announce(ctx, sig, models.Event{
		SignalID:   sig.ID,
		Symbol:     sig.Symbol,
		From:       sig.Status,
		To:         to,
		Price:      price,
		Reason:     reason,
		OccurredAt: now,
	})
	return true, nil
}

// announce publishes e and marks terminal outcomes as announced. Publish
// failures are logged, never returned: the status change already happened.
func (m *LifecycleManager) announce(ctx context.Context, sig *models.Signal, e models.Event) {
	if m.publisher == nil {
		return
	}
	if e.To.Terminal() && sig.Flag(models.MetaResultAnnounced) {
		return
	}
	if err := m.publisher.PublishEvent(ctx, e); err != nil {
		m.l.Error("publish lifecycle event failed",
			applogger.String("signal_id", e.SignalID),
			applogger.String("to", string(e.To)),
			applogger.Error(err),
		)
		if m.metrics != nil {
			m.metrics.RecordError("publish_event")
		}
		return
	}
	if e.To.Terminal() {
		if err := m.repo.MergeMetadata(ctx, sig.ID, map[string]interface{}{models.MetaResultAnnounced: true}); err != nil {
			m.l.Warn("mark result announced failed", applogger.String("signal_id", sig.ID), applogger.Error(err))
		}
	}
}

// ApplyPrice advances sig by one step if price touches one of its levels.
func (m *LifecycleManager) ApplyPrice(ctx context.Context, sig *models.Signal, price float64) (models.Status, bool, error) {
	to, ok := nextStatus(sig, price)
	if !ok {
		return sig.Status, false, nil
	}
	applied, err := m.transition(ctx, sig, to, price, reasonPrice, nil)
	if err != nil || !applied {
		return sig.Status, false, err
	}
	return to, true, nil
}

func nextStatus(sig *models.Signal, price float64) (models.Status, bool) {
	if price <= 0 {
		return "", false
	}
	long := sig.Direction != models.Short
	switch {
	case sig.Status.PreEntry():
		if (long && price <= sig.EntryPrice) || (!long && price >= sig.EntryPrice) {
			return models.StatusEntryHit, true
		}
	case sig.Status == models.StatusEntryHit:
		tp1 := sig.TP1
		if tp1 == 0 {
			tp1 = sig.TakeProfit
		}
		if long {
			switch {
			case sig.TP2 > 0 && price >= sig.TP2:
				return models.StatusTP2Hit, true
			case tp1 > 0 && price >= tp1:
				return models.StatusTP1Hit, true
			case sig.StopLoss > 0 && price <= sig.StopLoss:
				return models.StatusSLHit, true
			}
		} else {
			switch {
			case sig.TP2 > 0 && price <= sig.TP2:
				return models.StatusTP2Hit, true
			case tp1 > 0 && price <= tp1:
				return models.StatusTP1Hit, true
			case sig.StopLoss > 0 && price >= sig.StopLoss:
				return models.StatusSLHit, true
			}
		}
	}
	return "", false
}

// SweepExpired expires every non-terminal signal older than the TTL.
func (m *LifecycleManager) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-m.cfg.TTL)
	sigs, err := m.repo.ListByStatus(ctx, allowedFrom(models.StatusExpired), cutoff)
	if err != nil {
		return 0, fmt.Errorf("list expirable signals: %w", err)
	}
	expired := 0
	for _, sig := range sigs {
		price, _ := m.latestPrice(sig.Symbol)
		meta := map[string]interface{}{
			models.MetaExpiredAt:     now.UTC().Format(time.RFC3339),
			models.MetaExpiredReason: reasonTTL,
		}
		ok, err := m.transition(ctx, sig, models.StatusExpired, price, reasonTTL, meta)
		if err != nil {
			m.l.Warn("ttl expiry failed", applogger.String("signal_id", sig.ID), applogger.Error(err))
			continue
		}
		if ok {
			expired++
		}
	}
	return expired, nil
}

// SweepDrift expires pre-entry signals whose price ran away from the entry.
func (m *LifecycleManager) SweepDrift(ctx context.Context, now time.Time) (int, error) {
	sigs, err := m.repo.ListByStatus(ctx, []models.Status{models.StatusWaiting, models.StatusActive}, time.Time{})
	if err != nil {
		return 0, fmt.Errorf("list pre-entry signals: %w", err)
	}
	expired := 0
	for _, sig := range sigs {
		price, ok := m.latestPrice(sig.Symbol)
		if !ok {
			continue
		}
		pips := indicators.Pips(sig.Symbol, sig.EntryPrice, price)
		drifted := pips > m.cfg.DriftPips
		if sig.Direction == models.Short {
			drifted = pips < -m.cfg.DriftPips
		}
		if !drifted {
			continue
		}
		reason := fmt.Sprintf("Price moved %.1f pips away from entry zone", pips)
		meta := map[string]interface{}{
			models.MetaExpiredAt:     now.UTC().Format(time.RFC3339),
			models.MetaExpiredReason: reason,
			models.MetaPriceAtExpire: price,
		}
		applied, err := m.transition(ctx, sig, models.StatusExpired, price, reason, meta)
		if err != nil {
			m.l.Warn("drift expiry failed", applogger.String("signal_id", sig.ID), applogger.Error(err))
			continue
		}
		if applied {
			expired++
		}
	}
	return expired, nil
}

func (m *LifecycleManager) latestPrice(symbol string) (float64, bool) {
	if m.prices == nil {
		return 0, false
	}
	return m.prices.LatestPrice(symbol)
}

// Run drives both sweeps on their own tickers until ctx is done.
func (m *LifecycleManager) Run(ctx context.Context) {
	ttl := time.NewTicker(m.cfg.TTLEvery)
	defer ttl.Stop()
	drift := time.NewTicker(m.cfg.DriftEvery)
	defer drift.Stop()

	m.l.Info("lifecycle sweeps started",
		applogger.Duration("ttl_every", m.cfg.TTLEvery),
		applogger.Duration("drift_every", m.cfg.DriftEvery),
	)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ttl.C:
			m.sweep(ctx, "ttl", m.cfg.TTLEvery, m.SweepExpired)
		case <-drift.C:
			m.sweep(ctx, "drift", m.cfg.DriftEvery, m.SweepDrift)
		}
	}
}

func (m *LifecycleManager) sweep(ctx context.Context, kind string, ttl time.Duration, fn func(context.Context, time.Time) (int, error)) {
	if m.locker != nil {
		key := "lifecycle:sweep:" + kind
		ok, err := m.locker.TryLock(ctx, key, ttl)
		if err != nil {
			m.l.Warn("sweep lock failed", applogger.String("kind", kind), applogger.Error(err))
			return
		}
		if !ok {
			return
		}
		defer func() {
			if err := m.locker.Unlock(ctx, key); err != nil {
				m.l.Warn("sweep unlock failed", applogger.String("kind", kind), applogger.Error(err))
			}
		}()
	}
	n, err := fn(ctx, m.now())
	if err != nil {
		m.l.Error("sweep failed", applogger.String("kind", kind), applogger.Error(err))
		if m.metrics != nil {
			m.metrics.RecordError("sweep_" + kind)
		}
		return
	}
	if m.metrics != nil {
		m.metrics.RecordSweep(kind, n)
	}
	if n > 0 {
		m.l.Info("sweep expired signals", applogger.String("kind", kind), applogger.Int("count", n))
	}
}

func hasStatus(set []models.Status, s models.Status) bool {
	for _, x := range set {
		if x == s {
			return true
		}
	}
	return false
}
