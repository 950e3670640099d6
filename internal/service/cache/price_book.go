package cache

import (
	"context"
	"sync"
	"time"

	"SignalDesk/internal/domain/repository"
	pkgcache "SignalDesk/pkg/cache"
)

// Quote is the latest observed price of a symbol.
type Quote struct {
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	At     time.Time `json:"at"`
}

type entry struct {
	q   Quote
	exp time.Time
}

// PriceBook keeps the latest price per symbol for ttl. With a shared cache
// attached, prices are written through so every replica sees them.
type PriceBook struct {
	mu     sync.RWMutex
	m      map[string]entry
	ttl    time.Duration
	shared pkgcache.Service
	now    func() time.Time
}

func NewPriceBook(ttl time.Duration, shared pkgcache.Service) *PriceBook {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &PriceBook{m: make(map[string]entry), ttl: ttl, shared: shared, now: time.Now}
}

func priceKey(symbol string) string { return pkgcache.Key("price", symbol) }

// RecordPrice stores price unless a newer quote is already known.
func (b *PriceBook) RecordPrice(symbol string, price float64, at time.Time) {
	q := Quote{Symbol: symbol, Price: price, At: at}
	b.mu.Lock()
	if cur, ok := b.m[symbol]; ok && cur.q.At.After(at) {
		b.mu.Unlock()
		return
	}
	b.m[symbol] = entry{q: q, exp: b.now().Add(b.ttl)}
	b.mu.Unlock()

	if b.shared != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = b.shared.Set(ctx, priceKey(symbol), q, b.ttl)
	}
}

// LatestPrice implements repository.PriceSource.
func (b *PriceBook) LatestPrice(symbol string) (float64, bool) {
	q, ok := b.Quote(symbol)
	return q.Price, ok
}

func (b *PriceBook) Quote(symbol string) (Quote, bool) {
	b.mu.RLock()
	e, ok := b.m[symbol]
	b.mu.RUnlock()
	if ok && b.now().Before(e.exp) {
		return e.q, true
	}
	if ok {
		b.mu.Lock()
		delete(b.m, symbol)
		b.mu.Unlock()
	}
	if b.shared == nil {
		return Quote{}, false
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	var q Quote
	if err := b.shared.Get(ctx, priceKey(symbol), &q); err != nil {
		return Quote{}, false
	}
	return q, true
}

// Quotes returns the known quotes for symbols, reading the shared cache in one round trip.
func (b *PriceBook) Quotes(ctx context.Context, symbols []string) map[string]Quote {
	out := make(map[string]Quote, len(symbols))
	var missing []string
	for _, s := range symbols {
		if q, ok := b.localQuote(s); ok {
			out[s] = q
		} else {
			missing = append(missing, s)
		}
	}
	if b.shared == nil || len(missing) == 0 {
		return out
	}
	keys := make([]string, len(missing))
	for i, s := range missing {
		keys[i] = priceKey(s)
	}
	remote, err := pkgcache.MGetTyped[Quote](ctx, b.shared, keys...)
	if err != nil {
		return out
	}
	for _, q := range remote {
		out[q.Symbol] = q
	}
	return out
}

func (b *PriceBook) localQuote(symbol string) (Quote, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.m[symbol]
	if !ok || !b.now().Before(e.exp) {
		return Quote{}, false
	}
	return e.q, true
}

var _ repository.PriceSource = (*PriceBook)(nil)
