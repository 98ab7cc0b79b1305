package queue

import "context"

// Job defines a queue job handler.
type Job interface {
	// Name returns the unique identifier of the job.
	Name() string

	// Type returns the type of message that the job handles.
	Type() string

	// Handle processes one delivery of msg. Returning nil acks the message,
	// an error nacks it and a Permanent error fails it without retry.
	Handle(ctx context.Context, msg Message) error
}
