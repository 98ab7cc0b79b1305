package repository

import (
	"context"
	"time"

	"Aegis/internal/domain/models"
)

// EventStore is the durable record of events, signals and decisions.
type EventStore interface {
	GetAccount(ctx context.Context, accountID string) (*models.Account, error)
	CreateEvent(ctx context.Context, e *models.OrderFlowEvent) error
	GetEvent(ctx context.Context, id string) (*models.OrderFlowEvent, error)

	// CreateSignalWithDecision stores a signal and its seed decision in one
	// transaction. If a signal already exists for the event, it returns that
	// signal and created=false.
	CreateSignalWithDecision(ctx context.Context, s *models.Signal, d *models.Decision) (stored *models.Signal, created bool, err error)
	GetSignal(ctx context.Context, id string) (*models.Signal, error)
	GetSignalByEvent(ctx context.Context, eventID string) (*models.Signal, error)
	ListSignals(ctx context.Context, userID string, q models.SignalQuery) ([]*models.Signal, error)

	// AppendDecision stores d and, in the same transaction, applies the status
	// transition named by d.NextAction.
	AppendDecision(ctx context.Context, d *models.Decision) (*models.Signal, error)

	Ping(ctx context.Context) error
}

// AuditLog is append-only.
type AuditLog interface {
	Append(ctx context.Context, e *models.AuditLogEntry) error
}

// JobQueue carries signal-generation jobs from the gateway to workers.
type JobQueue interface {
	Enqueue(ctx context.Context, eventID string) (jobID string, err error)
	Status(ctx context.Context, jobID string) (models.JobStatus, error)
	Ping(ctx context.Context) error
}

// SignalPublisher announces persisted signals.
type SignalPublisher interface {
	PublishSignal(ctx context.Context, e models.SignalEvent) error
}

// FailurePublisher reports terminally failed jobs.
type FailurePublisher interface {
	PublishJobFailure(ctx context.Context, e models.JobFailedEvent) error
}

// Locker serializes work on a key across processes.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

type Metrics interface {
	RecordIngest(result string)
	RecordEngineCall(result string, d time.Duration)
	RecordSignal(status string)
	RecordError(kind string)
	RealtimeConnected(delta int)
	RecordRealtimeMessage(direction, msgType string)
}
