package ratelimit

import (
	"testing"
	"time"
)

func TestLimiterPerKeyBurst(t *testing.T) {
	l := New(1, 2)
	clock := time.Now()
	l.now = func() time.Time { return clock }

	if !l.Allow("a") || !l.Allow("a") {
		t.Fatalf("burst of 2 not granted")
	}
	if l.Allow("a") {
		t.Fatalf("third request within burst window allowed")
	}
	if !l.Allow("b") {
		t.Fatalf("independent key throttled")
	}
	clock = clock.Add(1100 * time.Millisecond)
	if !l.Allow("a") {
		t.Fatalf("token not refilled after a second")
	}
}
