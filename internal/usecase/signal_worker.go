package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"Aegis/internal/domain/models"
	drepo "Aegis/internal/domain/repository"
	"Aegis/internal/domain/service"
	"Aegis/pkg/logger"

	"github.com/google/uuid"
)

// ErrJobBusy means another worker holds the lock for the same event.
var ErrJobBusy = errors.New("event is being processed by another worker")

// SignalWorker turns one order-flow event into one signal.
type SignalWorker struct {
	store     drepo.EventStore
	engine    service.DecisionEngine
	publisher drepo.SignalPublisher
	locker    drepo.Locker
	metrics   drepo.Metrics
	lgr       *logger.Logger
	lockTTL   time.Duration
	now       func() time.Time
}

func NewSignalWorker(
	store drepo.EventStore,
	engine service.DecisionEngine,
	publisher drepo.SignalPublisher,
	locker drepo.Locker,
	metrics drepo.Metrics,
	lgr *logger.Logger,
	lockTTL time.Duration,
) *SignalWorker {
	if lockTTL <= 0 {
		lockTTL = time.Minute
	}
	return &SignalWorker{
		store:     store,
		engine:    engine,
		publisher: publisher,
		locker:    locker,
		metrics:   metrics,
		lgr:       lgr,
		lockTTL:   lockTTL,
		now:       time.Now,
	}
}

// Process returns the id of the signal for job's event, creating it on first
// success. Redelivered jobs return the existing signal without calling the
// engine.
func (w *SignalWorker) Process(ctx context.Context, job models.Job) (string, error) {
	lgr := w.lgr.With(
		logger.String("job_id", job.ID),
		logger.String("event_id", job.OrderFlowEventID),
		logger.Int("attempt", job.Attempt))

	event, err := w.store.GetEvent(ctx, job.OrderFlowEventID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			lgr.Error("order flow event missing")
			return "", fmt.Errorf("%w: %s", models.ErrMissingEvent, job.OrderFlowEventID)
		}
		return "", fmt.Errorf("load event: %w", err)
	}

	if sig, err := w.existing(ctx, event.ID); err != nil || sig != nil {
		if sig != nil {
			lgr.Info("signal already exists", logger.String("signal_id", sig.ID))
			return sig.ID, nil
		}
		return "", err
	}

	lockKey := "job:" + event.ID
	if w.locker != nil {
		ok, err := w.locker.TryLock(ctx, lockKey, w.lockTTL)
		if err != nil {
			return "", fmt.Errorf("acquire lock: %w", err)
		}
		if !ok {
			return "", ErrJobBusy
		}
		defer func() {
			if err := w.locker.Unlock(context.WithoutCancel(ctx), lockKey); err != nil {
				lgr.Warn("release lock failed", logger.Error(err))
			}
		}()

		// another worker may have finished between the first check and the lock
		if sig, err := w.existing(ctx, event.ID); err != nil || sig != nil {
			if sig != nil {
				return sig.ID, nil
			}
			return "", err
		}
	}

	result, err := w.engine.Evaluate(ctx, event)
	if err != nil {
		lgr.Warn("decision engine failed", logger.Error(err))
		if !errors.Is(err, models.ErrEngineFailure) {
			err = fmt.Errorf("%w: %v", models.ErrEngineFailure, err)
		}
		return "", err
	}
	if result.Confidence == nil {
		lgr.Warn("decision engine returned no confidence")
		return "", fmt.Errorf("%w: missing confidence", models.ErrEngineFailure)
	}

	now := w.now().UTC()
	confidence := *result.Confidence
	sig := &models.Signal{
		ID:               uuid.NewString(),
		AccountID:        event.AccountID,
		OrderFlowEventID: event.ID,
		Symbol:           result.Symbol,
		Direction:        result.Direction,
		Confidence:       confidence,
		RiskReward:       result.RiskReward,
		Status:           models.SignalPending,
		CreatedAt:        now,
		Metadata:         result.Metadata,
	}
	seed := &models.Decision{
		ID:         uuid.NewString(),
		Actor:      models.ActorAgent,
		Rationale:  result.Rationale,
		Confidence: &confidence,
		CreatedAt:  now,
	}

	stored, created, err := w.store.CreateSignalWithDecision(ctx, sig, seed)
	if err != nil {
		return "", fmt.Errorf("persist signal: %w", err)
	}
	if !created {
		lgr.Info("signal created concurrently", logger.String("signal_id", stored.ID))
		return stored.ID, nil
	}

	w.metrics.RecordSignal(string(stored.Status))
	lgr.Info("signal created",
		logger.String("signal_id", stored.ID),
		logger.String("symbol", stored.Symbol),
		logger.String("direction", stored.Direction),
		logger.Float64("confidence", stored.Confidence))

	w.announce(ctx, lgr, stored)
	return stored.ID, nil
}

func (w *SignalWorker) existing(ctx context.Context, eventID string) (*models.Signal, error) {
	sig, err := w.store.GetSignalByEvent(ctx, eventID)
	if err == nil {
		return sig, nil
	}
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	return nil, fmt.Errorf("lookup signal: %w", err)
}

// announce publishes signal.created. Failures are logged only.
func (w *SignalWorker) announce(ctx context.Context, lgr *logger.Logger, sig *models.Signal) {
	if w.publisher == nil {
		return
	}
	userID := ""
	if acct, err := w.store.GetAccount(ctx, sig.AccountID); err == nil {
		userID = acct.UserID
	}
	if err := w.publisher.PublishSignal(ctx, models.NewSignalEvent(sig, userID)); err != nil {
		w.metrics.RecordError("signal_publish")
		lgr.Warn("publish signal.created failed",
			logger.String("signal_id", sig.ID),
			logger.Error(err))
	}
}
