package cache

import (
	"context"
	"testing"
	"time"

	pkgcache "SignalDesk/pkg/cache"
)

func TestPriceBookKeepsNewestQuote(t *testing.T) {
	b := NewPriceBook(time.Minute, nil)
	now := time.Now()
	b.RecordPrice("EURUSD=X", 1.1010, now)
	b.RecordPrice("EURUSD=X", 1.1000, now.Add(-time.Second))
	if p, ok := b.LatestPrice("EURUSD=X"); !ok || p != 1.1010 {
		t.Fatalf("price = %v, %v", p, ok)
	}
	if _, ok := b.LatestPrice("GBPUSD=X"); ok {
		t.Fatalf("unknown symbol reported a price")
	}
}

func TestPriceBookExpires(t *testing.T) {
	b := NewPriceBook(time.Minute, nil)
	clock := time.Now()
	b.now = func() time.Time { return clock }
	b.RecordPrice("EURUSD=X", 1.1, clock)
	clock = clock.Add(2 * time.Minute)
	if _, ok := b.LatestPrice("EURUSD=X"); ok {
		t.Fatalf("stale price returned")
	}
}

func TestPriceBookSharesAcrossReplicas(t *testing.T) {
	shared := pkgcache.NewMemoryCache()
	defer shared.Close()
	a := NewPriceBook(time.Minute, shared)
	b := NewPriceBook(time.Minute, shared)

	a.RecordPrice("USDJPY=X", 150.25, time.Now())
	if p, ok := b.LatestPrice("USDJPY=X"); !ok || p != 150.25 {
		t.Fatalf("replica b price = %v, %v", p, ok)
	}
	quotes := b.Quotes(context.Background(), []string{"USDJPY=X", "EURUSD=X"})
	if len(quotes) != 1 || quotes["USDJPY=X"].Price != 150.25 {
		t.Fatalf("quotes = %+v", quotes)
	}
}
