package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"Aegis/internal/domain/models"
	drepo "Aegis/internal/domain/repository"
	"Aegis/pkg/logger"
	"Aegis/pkg/queue"
)

// SignalJob runs SignalWorker for queue messages of type orderflow.signal.
type SignalJob struct {
	worker *SignalWorker
}

func NewSignalJob(worker *SignalWorker) *SignalJob {
	return &SignalJob{worker: worker}
}

var _ queue.Job = (*SignalJob)(nil)

func (j *SignalJob) Name() string { return "signal-generation" }

func (j *SignalJob) Type() string { return models.JobTypeSignal }

// Handle maps worker outcomes to queue semantics: a missing event or a bad
// message is permanent, anything else is retried.
func (j *SignalJob) Handle(ctx context.Context, msg queue.Message) error {
	p, err := queue.ParsePayload[models.SignalJobPayload](msg.Payload)
	if err != nil {
		return queue.Permanent(err)
	}
	if p.OrderFlowEventID == "" {
		return queue.Permanent(fmt.Errorf("job %s has no orderFlowEventId", msg.ID))
	}

	_, err = j.worker.Process(ctx, models.Job{
		ID:               msg.ID,
		OrderFlowEventID: p.OrderFlowEventID,
		Attempt:          msg.Attempt(),
		Status:           models.JobRunning,
	})
	if errors.Is(err, models.ErrMissingEvent) {
		return queue.Permanent(err)
	}
	return err
}

// FailureReporter is the queue failure handler. The queue logs the failure;
// the reporter counts it and publishes it for external monitors.
type FailureReporter struct {
	publisher drepo.FailurePublisher
	metrics   drepo.Metrics
	lgr       *logger.Logger
	now       func() time.Time
}

func NewFailureReporter(publisher drepo.FailurePublisher, metrics drepo.Metrics, lgr *logger.Logger) *FailureReporter {
	return &FailureReporter{publisher: publisher, metrics: metrics, lgr: lgr, now: time.Now}
}

// Handle has the queue.FailureHandler signature.
func (r *FailureReporter) Handle(ctx context.Context, msg queue.Message, reason string) {
	ev := models.JobFailedEvent{
		JobID:    msg.ID,
		Attempts: msg.Attempts,
		Reason:   reason,
		FailedAt: r.now().UTC(),
	}
	if p, err := queue.ParsePayload[models.SignalJobPayload](msg.Payload); err == nil {
		ev.OrderFlowEventID = p.OrderFlowEventID
	}

	r.metrics.RecordError("job_failed")
	if r.publisher == nil {
		return
	}
	if err := r.publisher.PublishJobFailure(ctx, ev); err != nil {
		r.lgr.Warn("publish job failure failed",
			logger.String("job_id", ev.JobID),
			logger.String("event_id", ev.OrderFlowEventID),
			logger.Error(err))
	}
}
