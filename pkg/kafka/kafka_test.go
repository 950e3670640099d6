package kafka

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

func TestEncodeValue(t *testing.T) {
	b, err := encodeValue(map[string]interface{}{"symbol": "EURUSD=X"})
	if err != nil || string(b) != `{"symbol":"EURUSD=X"}` {
		t.Fatalf("json: %s %v", b, err)
	}
	if b, _ := encodeValue("raw"); string(b) != "raw" {
		t.Fatalf("string: %s", b)
	}
	if _, err := encodeValue(make(chan int)); err == nil {
		t.Fatalf("expected marshal error")
	}
}

func TestToKafkaMessageHeaders(t *testing.T) {
	km, err := toKafkaMessage("signals", Message{Key: []byte("k"), Value: "v", Headers: map[string]string{"type": "signal"}}, time.Unix(0, 0))
	if err != nil {
		t.Fatalf("toKafkaMessage: %v", err)
	}
	if km.Topic != "signals" || len(km.Headers) != 1 || km.Headers[0].Key != "type" {
		t.Fatalf("message = %+v", km)
	}
}

type flakyHandler struct {
	failures int32
	calls    int32
}

func (h *flakyHandler) Topic() string { return "ticks" }

func (h *flakyHandler) Handle(ctx context.Context, b []byte) error {
	n := atomic.AddInt32(&h.calls, 1)
	if n <= h.failures {
		return errors.New("transient")
	}
	return nil
}

func newTestConsumer(t *testing.T, h MessageHandler) *Consumer {
	t.Helper()
	c, err := NewConsumer(
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerRetry(2, time.Millisecond, 5*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("NewConsumer: %v", err)
	}
	c.RegisterHandler(h)
	return c
}

func TestProcessRetriesThenSucceeds(t *testing.T) {
	h := &flakyHandler{failures: 2}
	c := newTestConsumer(t, h)
	var failed bool
	c.OnFailure(func(string, []byte, error) { failed = true })

	c.process(&message{topic: "ticks", km: kafka.Message{Value: []byte("{}")}})

	if got := atomic.LoadInt32(&h.calls); got != 3 {
		t.Fatalf("calls = %d, want 3", got)
	}
	if failed {
		t.Fatalf("failure callback fired for a recovered message")
	}
}

func TestProcessReportsExhaustedMessage(t *testing.T) {
	h := &flakyHandler{failures: 100}
	c := newTestConsumer(t, h)
	var gotTopic string
	c.OnFailure(func(topic string, _ []byte, _ error) { gotTopic = topic })

	c.process(&message{topic: "ticks", km: kafka.Message{Value: []byte("{}")}})

	if got := atomic.LoadInt32(&h.calls); got != 3 {
		t.Fatalf("calls = %d, want 1 + 2 retries", got)
	}
	if gotTopic != "ticks" {
		t.Fatalf("failure callback topic = %q", gotTopic)
	}
}

func TestStartWithoutHandlers(t *testing.T) {
	c, err := NewConsumer(WithConsumerBrokers([]string{"localhost:9092"}))
	if err != nil {
		t.Fatalf("NewConsumer: %v", err)
	}
	if err := c.Start(); err == nil {
		t.Fatalf("expected error without handlers")
	}
	if _, err := NewConsumer(); err == nil {
		t.Fatalf("expected error without brokers")
	}
}
