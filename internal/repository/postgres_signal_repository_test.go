package repository

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"SignalDesk/internal/domain/models"
)

type fakeRow struct {
	values []interface{}
	err    error
}

func (f fakeRow) Scan(dest ...interface{}) error {
	if f.err != nil {
		return f.err
	}
	if len(dest) != len(f.values) {
		return errors.New("column count mismatch")
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = f.values[i].(string)
		case *float64:
			*p = f.values[i].(float64)
		case *int:
			*p = f.values[i].(int)
		case *time.Time:
			*p = f.values[i].(time.Time)
		case *[]byte:
			*p = f.values[i].([]byte)
		default:
			// sql.NullTime
			if s, ok := d.(interface{ Scan(interface{}) error }); ok {
				if err := s.Scan(f.values[i]); err != nil {
					return err
				}
				continue
			}
			return errors.New("unsupported destination")
		}
	}
	return nil
}

func TestScanSignal(t *testing.T) {
	created := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	expiry := created.Add(3 * time.Hour)
	row := fakeRow{values: []interface{}{
		"sig-1", "EURUSD=X", "EUR/USD", "SHORT", "H1", 1.1, 1.102, 1.098, 1.098, 1.096,
		97, "STRONG BEARISH", "v1", "ENTRY_HIT", created, created, expiry,
		[]byte(`{"broadcasted":true,"last_price":1.0995}`),
	}}
	s, err := scanSignal(row)
	if err != nil {
		t.Fatalf("scanSignal: %v", err)
	}
	if s.Direction != models.Short || s.Status != models.StatusEntryHit {
		t.Fatalf("direction/status = %s/%s", s.Direction, s.Status)
	}
	if s.ExpiryTime == nil || !s.ExpiryTime.Equal(expiry) {
		t.Fatalf("expiry = %v", s.ExpiryTime)
	}
	if !s.Flag(models.MetaBroadcasted) || s.Metadata[models.MetaLastPrice].(float64) != 1.0995 {
		t.Fatalf("metadata = %v", s.Metadata)
	}
}

func TestScanSignalNullMetadata(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	row := fakeRow{values: []interface{}{
		"sig-2", "USDJPY=X", "", "LONG", "", 150.0, 0.0, 0.0, 0.0, 0.0,
		0, "", "", "WAITING", now, now, nil, []byte(nil),
	}}
	s, err := scanSignal(row)
	if err != nil {
		t.Fatalf("scanSignal: %v", err)
	}
	if s.ExpiryTime != nil || s.Metadata == nil || len(s.Metadata) != 0 {
		t.Fatalf("expiry=%v metadata=%v", s.ExpiryTime, s.Metadata)
	}
}

func TestEncodeMeta(t *testing.T) {
	b, err := encodeMeta(nil)
	if err != nil || string(b) != "{}" {
		t.Fatalf("nil meta = %s, %v", b, err)
	}
	b, _ = encodeMeta(map[string]interface{}{"result_announced": true})
	if string(b) != `{"result_announced":true}` {
		t.Fatalf("meta = %s", b)
	}
	got := statusStrings([]models.Status{models.StatusWaiting, models.StatusActive})
	if len(got) != 2 || got[1] != "ACTIVE" {
		t.Fatalf("statusStrings = %v", got)
	}
}

func TestStaticWeightStoreCopies(t *testing.T) {
	s := StaticWeightStore{"rsi_threshold": 65}
	m, _ := s.LoadWeights(context.Background())
	m["rsi_threshold"] = 1
	if s["rsi_threshold"] != 65 {
		t.Fatalf("store mutated through returned map")
	}
}

func TestUpsertConflictLeavesStatusAlone(t *testing.T) {
	conflict := upsertSignalSQL[strings.Index(upsertSignalSQL, "ON CONFLICT"):]
	for _, col := range []string{"status =", "last_checked_at =", "created_at ="} {
		if strings.Contains(conflict, col) {
			t.Fatalf("conflict clause writes %q:\n%s", col, conflict)
		}
	}
	if !strings.Contains(conflict, "signals.metadata || EXCLUDED.metadata") {
		t.Fatalf("conflict clause does not merge metadata:\n%s", conflict)
	}
}
