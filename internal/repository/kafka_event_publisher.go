package repository

import (
	"context"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	pkgkafka "SignalDesk/pkg/kafka"
)

// KafkaEventPublisher writes emitted signals and lifecycle events to Kafka,
// keyed by signal id so each signal's history stays ordered in one partition.
type KafkaEventPublisher struct {
	producer     *pkgkafka.Producer
	signalsTopic string
	eventsTopic  string
}

func NewKafkaEventPublisher(producer *pkgkafka.Producer, signalsTopic, eventsTopic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer, signalsTopic: signalsTopic, eventsTopic: eventsTopic}
}

// PublishSignal sends the signal in its wire schema.
func (p *KafkaEventPublisher) PublishSignal(ctx context.Context, s *models.Signal) error {
	return p.producer.PublishBatch(ctx, p.signalsTopic, []pkgkafka.Message{{
		Key:     []byte(s.ID),
		Value:   s.ToPayload(),
		Headers: map[string]string{"type": "signal", "symbol": s.Symbol},
	}})
}

func (p *KafkaEventPublisher) PublishEvent(ctx context.Context, e models.Event) error {
	return p.producer.PublishBatch(ctx, p.eventsTopic, []pkgkafka.Message{{
		Key:     []byte(e.SignalID),
		Value:   e,
		Headers: map[string]string{"type": "status", "status": string(e.To)},
	}})
}

func (p *KafkaEventPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// NopEventPublisher accepts and drops everything. Used when Kafka is not configured.
type NopEventPublisher struct{}

func (NopEventPublisher) PublishSignal(context.Context, *models.Signal) error { return nil }
func (NopEventPublisher) PublishEvent(context.Context, models.Event) error    { return nil }
func (NopEventPublisher) Close() error                                        { return nil }

var (
	_ domrepo.EventPublisher = (*KafkaEventPublisher)(nil)
	_ domrepo.EventPublisher = NopEventPublisher{}
)
