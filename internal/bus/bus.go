// Package bus is the in-process publish/subscribe router that connects the
// agents to the orchestrator.
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"SignalDesk/internal/domain/repository"
	applogger "SignalDesk/pkg/logger"

	"github.com/google/uuid"
)

// Well-known channels.
const (
	ChannelMarketData       = "market_data"
	ChannelTechAnalysis     = "tech_analysis"
	ChannelSentimentCheck   = "sentiment_check"
	ChannelConsensusRequest = "consensus_request"
	ChannelSignalApproved   = "signal_approved"
	ChannelSignalRejected   = "signal_rejected"
	ChannelLearningFeedback = "learning_feedback"
)

const (
	defaultLogCapacity    = 100
	defaultRequestTimeout = 5 * time.Second
	recentStatsSize       = 10
)

var (
	// ErrRequestTimeout is returned by Request when no reply arrives in time.
	ErrRequestTimeout = errors.New("bus: request timeout")
	// ErrUnexpectedReply is returned by RequestAs when the reply has the wrong type.
	ErrUnexpectedReply = errors.New("bus: unexpected reply type")
)

// Message is the envelope delivered to handlers.
type Message struct {
	ID            string      `json:"id"`
	Channel       string      `json:"channel"`
	Payload       interface{} `json:"payload"`
	ReplyTo       string      `json:"reply_to,omitempty"`
	CorrelationID string      `json:"correlation_id,omitempty"`
	PublishedAt   time.Time   `json:"published_at"`
}

// Handler receives messages for a subscribed channel.
type Handler func(ctx context.Context, msg Message)

// Subscription identifies one registered handler.
type Subscription struct {
	id      uint64
	channel string
}

func (s *Subscription) Channel() string { return s.channel }

// Record is one entry of the recent-message log.
type Record struct {
	ID          string        `json:"id"`
	Channel     string        `json:"channel"`
	Subscribers int           `json:"subscribers"`
	Latency     time.Duration `json:"latency_ns"`
	At          time.Time     `json:"at"`
}

// Stats is a diagnostic view of bus activity.
type Stats struct {
	TotalMessages   int64     `json:"total_messages"`
	AvgLatencyMs    float64   `json:"avg_latency_ms"`
	LastMessageTime time.Time `json:"last_message_time"`
	ActiveChannels  int       `json:"active_channels"`
	Subscriptions   int       `json:"subscriptions"`
	RecentMessages  []Record  `json:"recent_messages"`
}

type Option func(*Bus)

// WithRequestTimeout sets the default Request timeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(b *Bus) {
		if d > 0 {
			b.requestTimeout = d
		}
	}
}

// WithLogCapacity sets the size of the recent-message log.
func WithLogCapacity(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.logCap = n
		}
	}
}

func WithMetrics(m repository.Metrics) Option {
	return func(b *Bus) { b.metrics = m }
}

func WithLogger(l *applogger.Logger) Option {
	return func(b *Bus) { b.l = l }
}

// Bus routes messages by channel name.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]map[uint64]Handler
	nextID uint64

	statsMu     sync.Mutex
	log         []Record
	logNext     int
	logCap      int
	total       int64
	avgLatency  float64
	lastMessage time.Time

	requestTimeout time.Duration
	metrics        repository.Metrics
	l              *applogger.Logger
}

func New(opts ...Option) *Bus {
	b := &Bus{
		subs:           make(map[string]map[uint64]Handler),
		logCap:         defaultLogCapacity,
		requestTimeout: defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.log = make([]Record, 0, b.logCap)
	return b
}

// Subscribe registers h on channel.
func (b *Bus) Subscribe(channel string, h Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[uint64]Handler)
	}
	b.subs[channel][id] = h
	return &Subscription{id: id, channel: channel}
}

// Unsubscribe removes a subscription. It reports whether it was registered.
func (b *Bus) Unsubscribe(sub *Subscription) bool {
	if sub == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	hs, ok := b.subs[sub.channel]
	if !ok {
		return false
	}
	if _, ok := hs[sub.id]; !ok {
		return false
	}
	delete(hs, sub.id)
	if len(hs) == 0 {
		delete(b.subs, sub.channel)
	}
	return true
}

// Publish delivers payload to every handler on channel and returns the message id.
func (b *Bus) Publish(ctx context.Context, channel string, payload interface{}) string {
	return b.dispatch(ctx, Message{Channel: channel, Payload: payload})
}

// Reply answers a request message on its reply channel.
func (b *Bus) Reply(ctx context.Context, req Message, payload interface{}) string {
	if req.ReplyTo == "" {
		return ""
	}
	return b.dispatch(ctx, Message{
		Channel:       req.ReplyTo,
		Payload:       payload,
		CorrelationID: req.CorrelationID,
	})
}

// Request publishes payload on channel and waits for the first reply.
// timeout <= 0 uses the bus default. The timeout covers handler execution, and a
// reply that arrives after it is dropped. The reply listener is always removed.
func (b *Bus) Request(ctx context.Context, channel string, payload interface{}, timeout time.Duration) (interface{}, error) {
	if timeout <= 0 {
		timeout = b.requestTimeout
	}
	corr := uuid.NewString()
	replyTo := "reply." + corr

	resp := make(chan Message, 1)
	sub := b.Subscribe(replyTo, func(_ context.Context, m Message) {
		if m.CorrelationID != corr {
			return
		}
		select {
		case resp <- m:
		default:
		}
	})
	defer b.Unsubscribe(sub)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	// Handlers run off the caller's goroutine so a stuck one cannot outlive the timeout.
	go b.dispatch(ctx, Message{
		Channel:       channel,
		Payload:       payload,
		ReplyTo:       replyTo,
		CorrelationID: corr,
	})

	select {
	case m := <-resp:
		return m.Payload, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w on channel: %s", ErrRequestTimeout, channel)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RequestAs is Request with a typed reply.
func RequestAs[T any](ctx context.Context, b *Bus, channel string, payload interface{}, timeout time.Duration) (T, error) {
	var zero T
	v, err := b.Request(ctx, channel, payload, timeout)
	if err != nil {
		return zero, err
	}
	out, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %T on channel %s", ErrUnexpectedReply, v, channel)
	}
	return out, nil
}

func (b *Bus) dispatch(ctx context.Context, msg Message) string {
	msg.ID = "msg_" + uuid.NewString()
	msg.PublishedAt = time.Now()

	b.mu.RLock()
	hs := make([]Handler, 0, len(b.subs[msg.Channel]))
	for _, h := range b.subs[msg.Channel] {
		hs = append(hs, h)
	}
	b.mu.RUnlock()

	for _, h := range hs {
		b.invoke(ctx, h, msg)
	}

	latency := time.Since(msg.PublishedAt)
	b.record(Record{
		ID:          msg.ID,
		Channel:     msg.Channel,
		Subscribers: len(hs),
		Latency:     latency,
		At:          msg.PublishedAt,
	})
	if b.metrics != nil {
		b.metrics.RecordBusMessage(msg.Channel, latency.Seconds())
	}
	return msg.ID
}

func (b *Bus) invoke(ctx context.Context, h Handler, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			if b.l != nil {
				b.l.Error("bus handler panic",
					applogger.String("channel", msg.Channel),
					applogger.Any("panic", r),
				)
			}
			if b.metrics != nil {
				b.metrics.RecordError("bus_handler_panic")
			}
		}
	}()
	h(ctx, msg)
}

func (b *Bus) record(r Record) {
	b.statsMu.Lock()
	defer b.statsMu.Unlock()
	b.total++
	b.avgLatency += (float64(r.Latency) - b.avgLatency) / float64(b.total)
	b.lastMessage = r.At
	if len(b.log) < b.logCap {
		b.log = append(b.log, r)
		return
	}
	b.log[b.logNext] = r
	b.logNext = (b.logNext + 1) % b.logCap
}

// Recent returns up to n log records, oldest first.
func (b *Bus) Recent(n int) []Record {
	b.statsMu.Lock()
	defer b.statsMu.Unlock()
	ordered := make([]Record, 0, len(b.log))
	if len(b.log) < b.logCap {
		ordered = append(ordered, b.log...)
	} else {
		ordered = append(ordered, b.log[b.logNext:]...)
		ordered = append(ordered, b.log[:b.logNext]...)
	}
	if n > 0 && len(ordered) > n {
		ordered = ordered[len(ordered)-n:]
	}
	return ordered
}

func (b *Bus) Stats() Stats {
	b.mu.RLock()
	channels := len(b.subs)
	subs := 0
	for _, hs := range b.subs {
		subs += len(hs)
	}
	b.mu.RUnlock()

	recent := b.Recent(recentStatsSize)

	b.statsMu.Lock()
	defer b.statsMu.Unlock()
	return Stats{
		TotalMessages:   b.total,
		AvgLatencyMs:    b.avgLatency / float64(time.Millisecond),
		LastMessageTime: b.lastMessage,
		ActiveChannels:  channels,
		Subscriptions:   subs,
		RecentMessages:  recent,
	}
}
