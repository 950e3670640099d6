package calendar

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"SignalDesk/internal/domain/models"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "calendar.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestFetchEventsSortedAndNormalized(t *testing.T) {
	p := writeFile(t, `
events:
  - title: ECB Rate Decision
    timestamp: 2026-03-05T12:45:00Z
    impact: high
    currency: EUR
  - title: US Non-Farm Payrolls
    timestamp: 2026-03-02T13:30:00Z
    impact: HIGH
    currency: USD
  - title: German PMI
    timestamp: 2026-03-03T08:30:00Z
`)
	evs, err := NewFileSource(p).FetchEvents(context.Background())
	if err != nil {
		t.Fatalf("FetchEvents: %v", err)
	}
	if len(evs) != 3 {
		t.Fatalf("got %d events", len(evs))
	}
	if evs[0].Title != "US Non-Farm Payrolls" || evs[2].Title != "ECB Rate Decision" {
		t.Fatalf("not sorted by time: %v", evs)
	}
	if evs[2].Impact != models.ImpactHigh {
		t.Fatalf("impact not upper-cased: %q", evs[2].Impact)
	}
	if evs[1].Impact != models.ImpactLow {
		t.Fatalf("missing impact should default to LOW, got %q", evs[1].Impact)
	}
	want := time.Date(2026, 3, 2, 13, 30, 0, 0, time.UTC)
	if !evs[0].Timestamp.Equal(want) {
		t.Fatalf("timestamp %v", evs[0].Timestamp)
	}
}

func TestFetchEventsErrors(t *testing.T) {
	if _, err := NewFileSource(filepath.Join(t.TempDir(), "missing.yaml")).FetchEvents(context.Background()); err == nil {
		t.Fatalf("expected error for missing file")
	}
	p := writeFile(t, "events:\n  - impact: HIGH\n")
	if _, err := NewFileSource(p).FetchEvents(context.Background()); err == nil {
		t.Fatalf("expected error for event without title")
	}
}
