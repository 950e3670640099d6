package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"SignalDesk/internal/domain/models"
	"SignalDesk/internal/domain/repository"
	applogger "SignalDesk/pkg/logger"
	"SignalDesk/pkg/util"
)

// ErrInvalidPayload marks a signal payload that cannot be mapped to a signal.
var ErrInvalidPayload = errors.New("ingest: invalid payload")

// StatusUpdate is the outcome of an externally requested status change.
type StatusUpdate struct {
	Signal  *models.Signal `json:"signal"`
	Applied bool           `json:"applied"`
}

// SignalIngest accepts signals produced outside the pipeline.
type SignalIngest struct {
	repo      repository.SignalRepository
	lifecycle *LifecycleManager
	l         *applogger.Logger
	now       func() time.Time
}

func NewSignalIngest(repo repository.SignalRepository, lifecycle *LifecycleManager, l *applogger.Logger) *SignalIngest {
	if l == nil {
		l = applogger.NewNop()
	}
	return &SignalIngest{repo: repo, lifecycle: lifecycle, l: l, now: time.Now}
}

// Ingest upserts a signal from its wire form. The repository keeps an
// existing signal's status, so only the lifecycle manager moves it.
func (s *SignalIngest) Ingest(ctx context.Context, p models.SignalPayload) (*models.Signal, error) {
	sig, err := s.fromPayload(p)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Upsert(ctx, sig); err != nil {
		return nil, fmt.Errorf("save signal %s: %w", sig.ID, err)
	}
	stored, err := s.repo.Get(ctx, sig.ID)
	if err != nil {
		return nil, fmt.Errorf("load signal %s: %w", sig.ID, err)
	}
	sig = stored
	s.l.Info("signal ingested",
		applogger.String("signal_id", sig.ID),
		applogger.String("symbol", sig.Symbol),
		applogger.String("status", string(sig.Status)),
	)
	return sig, nil
}

// UpdateStatus routes a status change through the lifecycle manager. A
// resolved signal is left untouched and reported as not applied.
func (s *SignalIngest) UpdateStatus(ctx context.Context, id string, to models.Status, price float64) (*StatusUpdate, error) {
	sig, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sig.Status == to {
		return &StatusUpdate{Signal: sig}, nil
	}
	applied, err := s.lifecycle.Transition(ctx, id, to, price)
	if errors.Is(err, ErrTerminalStatus) {
		s.l.Info("status update on resolved signal ignored",
			applogger.String("signal_id", id),
			applogger.String("status", string(sig.Status)),
			applogger.String("requested", string(to)),
		)
		return &StatusUpdate{Signal: sig}, nil
	}
	if err != nil {
		return nil, err
	}
	if sig, err = s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return &StatusUpdate{Signal: sig, Applied: applied}, nil
}

func (s *SignalIngest) fromPayload(p models.SignalPayload) (*models.Signal, error) {
	now := s.now()
	created := now
	if p.Timestamp != "" {
		t, ok := util.ParseTime(p.Timestamp)
		if !ok {
			return nil, fmt.Errorf("%w: timestamp %q", ErrInvalidPayload, p.Timestamp)
		}
		created = t
	}
	status := models.Status(strings.ToUpper(p.Status))
	if status == "" {
		status = models.StatusWaiting
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: status %q", ErrInvalidPayload, p.Status)
	}

	sig := &models.Signal{
		ID:            p.SignalID,
		Symbol:        models.SymbolFromPair(p.Pair),
		Pair:          p.Pair,
		Direction:     models.ParseDirection(strings.ToUpper(p.Type)),
		Timeframe:     p.Timeframe,
		EntryPrice:    p.EntryPrice,
		StopLoss:      p.SL,
		TakeProfit:    p.TP,
		TP1:           metaFloat(p.Metadata, models.MetaTP1Price, p.TP),
		TP2:           metaFloat(p.Metadata, models.MetaTP2Price, p.TP),
		Confidence:    p.ConfidenceScore,
		Sentiment:     p.Sentiment,
		Version:       p.Version,
		Status:        status,
		CreatedAt:     created,
		LastCheckedAt: now,
		Metadata:      map[string]interface{}{},
	}
	for k, v := range p.Metadata {
		sig.Metadata[k] = v
	}
	if p.ExpiryTime != "" {
		t, ok := util.ParseTime(p.ExpiryTime)
		if !ok {
			return nil, fmt.Errorf("%w: expiry_time %q", ErrInvalidPayload, p.ExpiryTime)
		}
		sig.ExpiryTime = &t
	}
	return sig, nil
}

// metaFloat reads a numeric metadata value, falling back to def.
func metaFloat(meta map[string]interface{}, key string, def float64) float64 {
	switch v := meta[key].(type) {
	case float64:
		if v > 0 {
			return v
		}
	case int:
		if v > 0 {
			return float64(v)
		}
	}
	return def
}
