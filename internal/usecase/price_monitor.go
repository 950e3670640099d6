package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"SignalDesk/internal/domain/models"
	"SignalDesk/internal/domain/repository"
	"SignalDesk/internal/domain/service"
	applogger "SignalDesk/pkg/logger"
)

// PriceRecorder stores the latest price per symbol.
type PriceRecorder interface {
	RecordPrice(symbol string, price float64, at time.Time)
}

// PriceMonitor feeds live prices into the lifecycle manager.
type PriceMonitor struct {
	book      PriceRecorder
	repo      repository.SignalRepository
	lifecycle *LifecycleManager
	metrics   repository.Metrics
	l         *applogger.Logger
}

func NewPriceMonitor(book PriceRecorder, repo repository.SignalRepository, lifecycle *LifecycleManager, metrics repository.Metrics, l *applogger.Logger) *PriceMonitor {
	if l == nil {
		l = applogger.NewNop()
	}
	return &PriceMonitor{book: book, repo: repo, lifecycle: lifecycle, metrics: metrics, l: l}
}

// OnTick records the price and advances every open signal on the symbol.
func (m *PriceMonitor) OnTick(ctx context.Context, t models.Tick) error {
	if t.Symbol == "" || t.Price <= 0 || math.IsNaN(t.Price) || math.IsInf(t.Price, 0) {
		return fmt.Errorf("invalid tick %q at %v", t.Symbol, t.Price)
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now()
	}
	if m.book != nil {
		m.book.RecordPrice(t.Symbol, t.Price, t.Timestamp)
	}
	if m.metrics != nil {
		m.metrics.RecordLastPrice(t.Symbol, t.Price)
	}

	sigs, err := m.repo.ListActive(ctx, t.Symbol)
	if err != nil {
		return fmt.Errorf("list active signals for %s: %w", t.Symbol, err)
	}
	for _, sig := range sigs {
		to, moved, err := m.lifecycle.ApplyPrice(ctx, sig, t.Price)
		if err != nil && !errors.Is(err, ErrTerminalStatus) {
			m.l.Warn("apply price failed",
				applogger.String("signal_id", sig.ID),
				applogger.Float64("price", t.Price),
				applogger.Error(err),
			)
			continue
		}
		if moved {
			m.l.Debug("tick moved signal",
				applogger.String("signal_id", sig.ID),
				applogger.String("to", string(to)),
			)
		}
	}
	return nil
}

var _ service.TickProcessor = (*PriceMonitor)(nil)
