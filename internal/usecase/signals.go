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
	"Aegis/pkg/util"

	"github.com/google/uuid"
)

const (
	defaultSignalLimit = 50
	maxSignalLimit     = 200
)

// SignalsUsecase serves owner-scoped signal reads and decision appends.
type SignalsUsecase struct {
	store   drepo.EventStore
	audit   drepo.AuditLog
	metrics drepo.Metrics
	lgr     *logger.Logger
	now     func() time.Time
}

func NewSignalsUsecase(store drepo.EventStore, audit drepo.AuditLog, metrics drepo.Metrics, lgr *logger.Logger) *SignalsUsecase {
	return &SignalsUsecase{store: store, audit: audit, metrics: metrics, lgr: lgr, now: time.Now}
}

// List returns the caller's signals, newest first.
func (u *SignalsUsecase) List(ctx context.Context, id *models.Identity, q models.SignalQuery) ([]*models.Signal, error) {
	if id.Anonymous() {
		return nil, models.ErrUnauthenticated
	}
	if q.Limit == 0 {
		q.Limit = defaultSignalLimit
	}
	q.Limit = util.ClampInt(q.Limit, 1, maxSignalLimit)
	return u.store.ListSignals(ctx, id.UserID, q)
}

// Get returns one signal with its decisions. Signals on accounts the caller
// does not own are reported as not found.
func (u *SignalsUsecase) Get(ctx context.Context, id *models.Identity, signalID string) (*models.Signal, error) {
	if id.Anonymous() {
		return nil, models.ErrUnauthenticated
	}
	sig, err := u.store.GetSignal(ctx, signalID)
	if err != nil {
		return nil, err
	}
	if err := u.checkOwner(ctx, id, sig.AccountID); err != nil {
		return nil, err
	}
	return sig, nil
}

// AppendDecision adds a decision to the signal trail and applies the status
// transition named by NextAction.
func (u *SignalsUsecase) AppendDecision(ctx context.Context, id *models.Identity, signalID string, req models.DecisionRequest) (*models.Decision, *models.Signal, error) {
	if _, err := u.Get(ctx, id, signalID); err != nil {
		return nil, nil, err
	}

	d := &models.Decision{
		ID:         uuid.NewString(),
		SignalID:   signalID,
		Actor:      req.Actor,
		Rationale:  req.Rationale,
		NextAction: req.NextAction,
		Confidence: req.Confidence,
		CreatedAt:  u.now().UTC(),
	}
	sig, err := u.store.AppendDecision(ctx, d)
	if err != nil {
		return nil, nil, err
	}
	u.metrics.RecordSignal(string(sig.Status))

	meta, _ := json.Marshal(map[string]interface{}{
		"decisionId": d.ID,
		"actor":      d.Actor,
		"nextAction": d.NextAction,
		"status":     sig.Status,
	})
	entry := &models.AuditLogEntry{
		ID:        uuid.NewString(),
		UserID:    id.UserID,
		Action:    models.AuditSignalDecision,
		Resource:  signalID,
		Metadata:  meta,
		CreatedAt: d.CreatedAt,
	}
	if err := u.audit.Append(ctx, entry); err != nil {
		u.metrics.RecordError("audit_append")
		u.lgr.Error("audit append failed",
			logger.String("signal_id", signalID),
			logger.String("action", entry.Action),
			logger.Error(err))
	}
	return d, sig, nil
}

func (u *SignalsUsecase) checkOwner(ctx context.Context, id *models.Identity, accountID string) error {
	acct, err := u.store.GetAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("signal: %w", models.ErrNotFound)
		}
		return err
	}
	if acct.UserID != id.UserID {
		return fmt.Errorf("signal: %w", models.ErrNotFound)
	}
	return nil
}
