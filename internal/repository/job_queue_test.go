package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"Aegis/internal/domain/models"
	"Aegis/pkg/logger"
	"Aegis/pkg/queue"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisJobQueue(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	q := queue.NewRedisQueue(logger.Nop(), &queue.QueueConfig{}, client, queue.ModeProducerOnly, queue.WithKeyPrefix("test:jobs"))
	require.NoError(t, q.Start())
	t.Cleanup(func() { _ = q.Stop(context.Background()) })
	jq := NewRedisJobQueue(q)
	ctx := context.Background()

	id, err := jq.Enqueue(ctx, "event-1")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	st, err := jq.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobQueued, st)

	_, err = jq.Status(ctx, "nope")
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.NoError(t, jq.Ping(ctx))

	mr.Close()
	_, err = jq.Enqueue(ctx, "event-2")
	assert.ErrorIs(t, err, models.ErrQueueFailure)
}

type recordingProducer struct {
	topic string
	key   []byte
	value interface{}
	err   error
}

func (p *recordingProducer) Publish(_ context.Context, topic string, key []byte, value interface{}) error {
	p.topic, p.key, p.value = topic, key, value
	return p.err
}

func TestKafkaPublishers(t *testing.T) {
	p := &recordingProducer{}
	ctx := context.Background()

	err := NewKafkaSignalPublisher(p, "aegis.signals").PublishSignal(ctx, models.SignalEvent{SignalID: "s-1", AccountID: "acct-1"})
	require.NoError(t, err)
	assert.Equal(t, "aegis.signals", p.topic)
	assert.Equal(t, []byte("acct-1"), p.key)
	b, err := json.Marshal(p.value)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"signalId":"s-1"`)

	err = NewKafkaFailurePublisher(p, "aegis.jobs.failed").PublishJobFailure(ctx, models.JobFailedEvent{JobID: "j-1"})
	require.NoError(t, err)
	assert.Equal(t, []byte("j-1"), p.key)

	p.err = errors.New("broker down")
	assert.Error(t, NewKafkaSignalPublisher(p, "t").PublishSignal(ctx, models.SignalEvent{}))
	assert.NoError(t, NopFailurePublisher{}.PublishJobFailure(ctx, models.JobFailedEvent{}))
}
