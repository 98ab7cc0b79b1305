package repository

import (
	"context"
	"errors"
	"fmt"

	"Aegis/internal/domain/models"
	"Aegis/internal/domain/repository"
	"Aegis/pkg/queue"
)

// RedisJobQueue enqueues signal jobs on the Redis lease queue.
type RedisJobQueue struct {
	q *queue.RedisQueue
}

func NewRedisJobQueue(q *queue.RedisQueue) *RedisJobQueue {
	return &RedisJobQueue{q: q}
}

var _ repository.JobQueue = (*RedisJobQueue)(nil)

func (r *RedisJobQueue) Enqueue(ctx context.Context, eventID string) (string, error) {
	id, err := r.q.Enqueue(ctx, models.JobTypeSignal, models.SignalJobPayload{OrderFlowEventID: eventID})
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrQueueFailure, err)
	}
	return id, nil
}

func (r *RedisJobQueue) Status(ctx context.Context, jobID string) (models.JobStatus, error) {
	st, err := r.q.Status(ctx, jobID)
	if errors.Is(err, queue.ErrUnknownState) {
		return "", fmt.Errorf("job: %w", models.ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	return models.JobStatus(st), nil
}

func (r *RedisJobQueue) Ping(ctx context.Context) error {
	return r.q.Ping(ctx)
}
