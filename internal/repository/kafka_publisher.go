package repository

import (
	"context"

	"Aegis/internal/domain/models"
	"Aegis/internal/domain/repository"
)

// keyedPublisher is satisfied by *kafka.Producer.
type keyedPublisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

// KafkaSignalPublisher writes signal.created events keyed by account.
type KafkaSignalPublisher struct {
	producer keyedPublisher
	topic    string
}

func NewKafkaSignalPublisher(producer keyedPublisher, topic string) *KafkaSignalPublisher {
	return &KafkaSignalPublisher{producer: producer, topic: topic}
}

var _ repository.SignalPublisher = (*KafkaSignalPublisher)(nil)

func (p *KafkaSignalPublisher) PublishSignal(ctx context.Context, e models.SignalEvent) error {
	return p.producer.Publish(ctx, p.topic, []byte(e.AccountID), e)
}

// KafkaFailurePublisher writes terminal job failures for external monitors.
type KafkaFailurePublisher struct {
	producer keyedPublisher
	topic    string
}

func NewKafkaFailurePublisher(producer keyedPublisher, topic string) *KafkaFailurePublisher {
	return &KafkaFailurePublisher{producer: producer, topic: topic}
}

var _ repository.FailurePublisher = (*KafkaFailurePublisher)(nil)

func (p *KafkaFailurePublisher) PublishJobFailure(ctx context.Context, e models.JobFailedEvent) error {
	return p.producer.Publish(ctx, p.topic, []byte(e.JobID), e)
}

// NopFailurePublisher drops failure events. Used when Kafka is disabled.
type NopFailurePublisher struct{}

func (NopFailurePublisher) PublishJobFailure(context.Context, models.JobFailedEvent) error {
	return nil
}
