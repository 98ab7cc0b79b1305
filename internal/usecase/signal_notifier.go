package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"Aegis/internal/domain/models"
	drepo "Aegis/internal/domain/repository"
	pkgkafka "Aegis/pkg/kafka"
	"Aegis/pkg/logger"
)

// SignalBroadcaster delivers a signal to a user's open realtime connections
// and returns how many received it.
type SignalBroadcaster interface {
	BroadcastSignal(userID string, e models.SignalEvent) int
}

// SignalNotifier forwards signal.created events to connected owners. It is
// the Kafka handler for the signals topic and, with Kafka disabled, the
// in-process SignalPublisher.
type SignalNotifier struct {
	topic   string
	hub     SignalBroadcaster
	metrics drepo.Metrics
	lgr     *logger.Logger
}

func NewSignalNotifier(topic string, hub SignalBroadcaster, metrics drepo.Metrics, lgr *logger.Logger) *SignalNotifier {
	return &SignalNotifier{topic: topic, hub: hub, metrics: metrics, lgr: lgr}
}

var (
	_ pkgkafka.MessageHandler = (*SignalNotifier)(nil)
	_ drepo.SignalPublisher   = (*SignalNotifier)(nil)
)

func (n *SignalNotifier) Topic() string { return n.topic }

// Handle decodes a signals topic message.
func (n *SignalNotifier) Handle(ctx context.Context, b []byte) error {
	var e models.SignalEvent
	if err := json.Unmarshal(b, &e); err != nil {
		n.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("decode signal event: %w", err)
	}
	return n.PublishSignal(ctx, e)
}

func (n *SignalNotifier) PublishSignal(_ context.Context, e models.SignalEvent) error {
	if e.UserID == "" {
		n.lgr.Debug("signal event without owner", logger.String("signal_id", e.SignalID))
		return nil
	}
	delivered := n.hub.BroadcastSignal(e.UserID, e)
	n.lgr.Debug("signal forwarded",
		logger.String("signal_id", e.SignalID),
		logger.String("user_id", e.UserID),
		logger.Int("connections", delivered))
	return nil
}
