package models

import "time"

// JobTypeSignal is the queue message type for signal generation.
const JobTypeSignal = "orderflow.signal"

type JobStatus string

const (
	JobQueued  JobStatus = "queued"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// Job is a unit of signal-generation work for one event.
type Job struct {
	ID               string    `json:"id"`
	OrderFlowEventID string    `json:"orderFlowEventId"`
	Attempt          int       `json:"attempt"`
	Status           JobStatus `json:"status"`
}

// SignalJobPayload is the queue message body.
type SignalJobPayload struct {
	OrderFlowEventID string `json:"orderFlowEventId"`
}

// JobFailedEvent is published when a job reaches the failed state.
type JobFailedEvent struct {
	JobID            string    `json:"jobId"`
	OrderFlowEventID string    `json:"orderFlowEventId,omitempty"`
	Attempts         int       `json:"attempts"`
	Reason           string    `json:"reason"`
	FailedAt         time.Time `json:"failedAt"`
}
