package usecase

import (
	"context"
	"encoding/json"
	"time"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	"SignalDesk/internal/domain/service"
	pkgkafka "SignalDesk/pkg/kafka"
	"SignalDesk/pkg/util"
)

// KafkaTicksHandler decodes price ticks from Kafka and hands them to a processor.
type KafkaTicksHandler struct {
	topic   string
	next    service.TickProcessor
	metrics domrepo.Metrics
}

func NewKafkaTicksHandler(topic string, next service.TickProcessor, metrics domrepo.Metrics) *KafkaTicksHandler {
	return &KafkaTicksHandler{topic: topic, next: next, metrics: metrics}
}

func (h *KafkaTicksHandler) Topic() string { return h.topic }

// message schema: {symbol, t, c, v}; t in seconds or milliseconds
func (h *KafkaTicksHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		Symbol string  `json:"symbol"`
		T      int64   `json:"t"`
		C      float64 `json:"c"`
		V      float64 `json:"v"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.recordError("ticks_unmarshal")
		return err
	}
	ts := util.UnixAuto(m.T)
	if h.metrics != nil && m.T > 0 {
		h.metrics.RecordLatency("tick_ingest_seconds", time.Since(ts).Seconds())
	}

	start := time.Now()
	err := h.next.OnTick(ctx, models.Tick{Symbol: m.Symbol, Price: m.C, Volume: m.V, Timestamp: ts})
	if h.metrics != nil {
		h.metrics.RecordLatency("tick_process_seconds", time.Since(start).Seconds())
	}
	if err != nil {
		h.recordError("ticks_process")
		return err
	}
	return nil
}

func (h *KafkaTicksHandler) recordError(kind string) {
	if h.metrics != nil {
		h.metrics.RecordError(kind)
	}
}

var _ pkgkafka.MessageHandler = (*KafkaTicksHandler)(nil)
