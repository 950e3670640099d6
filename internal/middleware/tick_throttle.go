package middleware

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	"SignalDesk/internal/domain/service"
)

// TickThrottle sits between a tick source and a TickProcessor. It validates
// ticks, caps the per-symbol rate and buffers ticks the processor rejected.
type TickThrottle struct {
	next     service.TickProcessor
	metrics  domrepo.Metrics
	maxRPS   int
	bufSize  int
	bufCh    chan models.Tick
	stopCh   chan struct{}
	mu       sync.Mutex
	started  bool
	lastSeen map[string]time.Time
}

type ThrottleOption func(*TickThrottle)

// WithMaxRPS caps accepted ticks per second per symbol.
func WithMaxRPS(n int) ThrottleOption {
	return func(p *TickThrottle) {
		if n > 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets how many failed ticks are kept for retry.
func WithBufferSize(n int) ThrottleOption {
	return func(p *TickThrottle) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

func NewTickThrottle(next service.TickProcessor, metrics domrepo.Metrics, opts ...ThrottleOption) *TickThrottle {
	p := &TickThrottle{
		next:     next,
		metrics:  metrics,
		maxRPS:   5,
		bufSize:  256,
		stopCh:   make(chan struct{}),
		lastSeen: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan models.Tick, p.bufSize)
	return p
}

// Start retries buffered ticks in the background until Stop.
func (p *TickThrottle) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			case t := <-p.bufCh:
				if err := p.next.OnTick(ctx, t); err != nil {
					p.recordError("throttle_retry")
					if backoff < 2*time.Second {
						backoff *= 2
					}
					time.Sleep(backoff)
					select {
					case p.bufCh <- t:
					default:
						p.recordError("throttle_buffer_drop")
					}
					continue
				}
				backoff = 50 * time.Millisecond
			}
		}
	}()
}

func (p *TickThrottle) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return
	}
	p.started = false
	close(p.stopCh)
}

// OnTick forwards t unless it is invalid or over the symbol's rate.
func (p *TickThrottle) OnTick(ctx context.Context, t models.Tick) error {
	if err := validateTick(t); err != nil {
		p.recordError("throttle_validate")
		return err
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now()
	}
	if !p.allow(t.Symbol, time.Now()) {
		return nil
	}
	if err := p.next.OnTick(ctx, t); err != nil {
		select {
		case p.bufCh <- t:
		default:
			p.recordError("throttle_buffer_full")
		}
		return fmt.Errorf("tick downstream: %w", err)
	}
	return nil
}

// Pending reports how many ticks await retry.
func (p *TickThrottle) Pending() int { return len(p.bufCh) }

func validateTick(t models.Tick) error {
	switch {
	case t.Symbol == "":
		return fmt.Errorf("tick symbol empty")
	case math.IsNaN(t.Price) || math.IsInf(t.Price, 0) || t.Price <= 0:
		return fmt.Errorf("tick price invalid: %v", t.Price)
	case t.Volume < 0:
		return fmt.Errorf("tick volume negative: %v", t.Volume)
	}
	return nil
}

func (p *TickThrottle) allow(symbol string, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	last, ok := p.lastSeen[symbol]
	if ok && now.Sub(last) < time.Second/time.Duration(p.maxRPS) {
		return false
	}
	p.lastSeen[symbol] = now
	return true
}

func (p *TickThrottle) recordError(kind string) {
	if p.metrics != nil {
		p.metrics.RecordError(kind)
	}
}

var _ service.TickProcessor = (*TickThrottle)(nil)
