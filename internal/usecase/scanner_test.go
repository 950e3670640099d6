package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	applogger "SignalDesk/pkg/logger"
)

type sliceCandles struct {
	candles []models.Candle
	asked   int
}

func (s *sliceCandles) LatestCandles(_ context.Context, _ string, n int, _ domrepo.Timeframe) ([]models.Candle, error) {
	s.asked = n
	if len(s.candles) > n {
		return s.candles[len(s.candles)-n:], nil
	}
	return s.candles, nil
}

func candlesFrom(prices []float64) []models.Candle {
	out := make([]models.Candle, len(prices))
	for i, p := range prices {
		out[i] = models.Candle{Bucket: t0.Add(time.Duration(i) * 5 * time.Minute), Open: p, High: p, Low: p, Close: p, Volume: 100}
	}
	return out
}

func TestScannerSkipsShortWindow(t *testing.T) {
	f := newPipelineFixture(t, 90, 40, false)
	s := NewScanner(&sliceCandles{candles: candlesFrom(risingPrices(10, 1.1, 0.0001))}, f.pipeline, ScannerConfig{MinWindow: 30}, nil)
	if _, err := s.ScanOnce(context.Background(), "EURUSD=X"); !errors.Is(err, ErrInsufficientCandles) {
		t.Fatalf("err = %v, want ErrInsufficientCandles", err)
	}
	if len(f.journal.results) != 0 {
		t.Fatalf("pipeline ran on a short window")
	}
}

func TestScannerEvaluatesTrendDirection(t *testing.T) {
	f := newPipelineFixture(t, 90, 40, false)
	store := &sliceCandles{candles: candlesFrom(risingPrices(120, 1.2, -0.0002))}
	s := NewScanner(store, f.pipeline, ScannerConfig{Window: 100, MinWindow: 30}, nil)

	res, err := s.ScanOnce(context.Background(), "EURUSD=X")
	if err != nil {
		t.Fatalf("ScanOnce: %v", err)
	}
	if store.asked != 100 {
		t.Fatalf("asked for %d candles, want 100", store.asked)
	}
	if res.Signal == nil || res.Signal.Direction != models.Short {
		t.Fatalf("falling series should propose SHORT, got %+v", res.Signal)
	}
	if got := res.Signal.EntryPrice; got != store.candles[119].Close {
		t.Fatalf("entry = %v, want last close", got)
	}
}

type batchSink struct {
	mu      sync.Mutex
	entries []applogger.AggregatedLogEntry
}

func (b *batchSink) PublishMessage(_ context.Context, _ string, payload interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, payload.([]applogger.AggregatedLogEntry)...)
	return nil
}

func TestScanFailuresAreWarnedShortWindowsAreNot(t *testing.T) {
	sink := &batchSink{}
	l := applogger.NewNop()
	l.AddCollector(&applogger.CollectionConfig{TimeInterval: time.Hour, Publisher: sink})
	s := NewScanner(&sliceCandles{}, nil, ScannerConfig{}, l)

	s.logScanError("EURUSD=X", fmt.Errorf("%w: EURUSD=X has 3 of 30", ErrInsufficientCandles))
	s.logScanError("EURUSD=X", errors.New("clickhouse: connection refused"))
	l.RemoveCollector()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.entries) != 1 {
		t.Fatalf("collected %d entries, want 1: %+v", len(sink.entries), sink.entries)
	}
	if e := sink.entries[0]; e.Level != "warn" || e.Message != "scan failed" {
		t.Fatalf("entry = %+v, want warn scan failed", e)
	}
}
