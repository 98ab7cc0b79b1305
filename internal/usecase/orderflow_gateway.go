package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"Aegis/internal/domain/models"
	drepo "Aegis/internal/domain/repository"
	"Aegis/pkg/logger"
	"Aegis/pkg/validation"

	"github.com/google/uuid"
)

// Ingestion results recorded in metrics.
const (
	ingestAccepted        = "accepted"
	ingestUnauthenticated = "unauthenticated"
	ingestInvalid         = "invalid"
	ingestNotFound        = "not_found"
	ingestQueueFailure    = "queue_failure"
	ingestError           = "error"
)

// OrderFlowGateway validates, authorizes, persists and enqueues order-flow
// submissions.
type OrderFlowGateway struct {
	store   drepo.EventStore
	audit   drepo.AuditLog
	queue   drepo.JobQueue
	metrics drepo.Metrics
	lgr     *logger.Logger
	now     func() time.Time
}

func NewOrderFlowGateway(
	store drepo.EventStore,
	audit drepo.AuditLog,
	queue drepo.JobQueue,
	metrics drepo.Metrics,
	lgr *logger.Logger,
) *OrderFlowGateway {
	return &OrderFlowGateway{
		store:   store,
		audit:   audit,
		queue:   queue,
		metrics: metrics,
		lgr:     lgr,
		now:     time.Now,
	}
}

// Submit stores the event and enqueues its signal job. The event is written
// before the job so a worker never sees a job for a missing event.
func (g *OrderFlowGateway) Submit(ctx context.Context, id *models.Identity, accountID string, payload json.RawMessage) (string, error) {
	if id.Anonymous() {
		g.metrics.RecordIngest(ingestUnauthenticated)
		return "", models.ErrUnauthenticated
	}

	if err := ValidateOrderFlowPayload(ctx, payload); err != nil {
		g.metrics.RecordIngest(ingestInvalid)
		return "", err
	}

	if err := g.authorize(ctx, id, accountID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			g.metrics.RecordIngest(ingestNotFound)
		} else {
			g.metrics.RecordIngest(ingestError)
		}
		return "", err
	}

	event := &models.OrderFlowEvent{
		ID:         uuid.NewString(),
		AccountID:  accountID,
		Payload:    payload,
		ReceivedAt: g.now().UTC(),
	}
	if err := g.store.CreateEvent(ctx, event); err != nil {
		g.metrics.RecordIngest(ingestError)
		return "", fmt.Errorf("persist event: %w", err)
	}

	jobID, err := g.queue.Enqueue(ctx, event.ID)
	if err != nil {
		g.metrics.RecordIngest(ingestQueueFailure)
		g.lgr.Error("enqueue signal job failed",
			logger.String("event_id", event.ID),
			logger.String("account_id", accountID),
			logger.Error(err))
		// The stored event has no job; the marker lets reconciliation find it.
		reason, _ := json.Marshal(map[string]string{"reason": err.Error()})
		g.appendAudit(ctx, id, models.AuditOrderFlowEnqueueFailed, event.ID, reason)
		if !errors.Is(err, models.ErrQueueFailure) {
			err = fmt.Errorf("%w: %v", models.ErrQueueFailure, err)
		}
		return "", fmt.Errorf("enqueue event %s: %w", event.ID, err)
	}

	g.appendAudit(ctx, id, models.AuditOrderFlowIngest, event.ID, payload)

	g.metrics.RecordIngest(ingestAccepted)
	g.lgr.Debug("order flow accepted",
		logger.String("event_id", event.ID),
		logger.String("job_id", jobID),
		logger.String("account_id", accountID))
	return event.ID, nil
}

// appendAudit is best-effort: failures are logged and counted, never returned.
func (g *OrderFlowGateway) appendAudit(ctx context.Context, id *models.Identity, action, resource string, meta json.RawMessage) {
	entry := &models.AuditLogEntry{
		ID:        uuid.NewString(),
		UserID:    id.UserID,
		Action:    action,
		Resource:  resource,
		Metadata:  meta,
		CreatedAt: g.now().UTC(),
	}
	if err := g.audit.Append(ctx, entry); err != nil {
		g.metrics.RecordError("audit_append")
		g.lgr.Error("audit append failed",
			logger.String("event_id", resource),
			logger.String("action", action),
			logger.Error(err))
	}
}

func (g *OrderFlowGateway) authorize(ctx context.Context, id *models.Identity, accountID string) error {
	acct, err := g.store.GetAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("account %s: %w", accountID, models.ErrNotFound)
		}
		return fmt.Errorf("lookup account: %w", err)
	}
	if acct.UserID != id.UserID {
		return fmt.Errorf("account %s: %w", accountID, models.ErrNotFound)
	}
	return nil
}

// ValidateOrderFlowPayload strictly decodes and validates an order-flow payload.
func ValidateOrderFlowPayload(ctx context.Context, payload json.RawMessage) error {
	var p models.OrderFlowPayload
	if err := validation.DecodeStrictBytes(payload, &p); err != nil {
		return models.NewValidationError(prefixFields(validation.FromError(err), "payload"))
	}
	if err := validation.Struct(ctx, &p); err != nil {
		return models.NewValidationError(prefixFields(validation.FromError(err), "payload"))
	}
	return nil
}

func prefixFields(errs validation.Errors, prefix string) validation.Errors {
	for i := range errs {
		if errs[i].Field == "" {
			errs[i].Field = prefix
		} else {
			errs[i].Field = prefix + "." + errs[i].Field
		}
	}
	return errs
}
