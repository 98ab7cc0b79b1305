package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle state of a message.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

var (
	ErrNotRunning   = errors.New("queue not running")
	ErrLeaseLost    = errors.New("lease no longer held")
	ErrUnknownJob   = errors.New("no job registered for type")
	ErrUnknownState = errors.New("unknown message")
	ErrConsumerOnly = errors.New("queue is consumer-only")
)

// QueueConfig contains the configuration for the queue
type QueueConfig struct {
	Workers       int           // number of workers
	MaxAttempts   int           // deliveries before a message is failed
	RetryDelay    time.Duration // base delay, doubled per attempt
	MaxRetryDelay time.Duration
	LeaseTimeout  time.Duration // redelivery deadline for a leased message
	PollInterval  time.Duration // idle wait when the ready list is empty
	ReapInterval  time.Duration // cadence of lease reaping and retry promotion
	StatusTTL     time.Duration
}

func (c *QueueConfig) withDefaults() {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 2 * time.Second
	}
	if c.MaxRetryDelay <= 0 {
		c.MaxRetryDelay = 30 * time.Second
	}
	if c.LeaseTimeout <= 0 {
		c.LeaseTimeout = 60 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.ReapInterval <= 0 {
		c.ReapInterval = time.Second
	}
	if c.StatusTTL <= 0 {
		c.StatusTTL = 7 * 24 * time.Hour
	}
}

// Backoff returns the delay before the retry that follows the given number of
// failed attempts.
func (c *QueueConfig) Backoff(failed int) time.Duration {
	if failed < 1 {
		failed = 1
	}
	d := c.RetryDelay
	for i := 1; i < failed; i++ {
		d *= 2
		if d >= c.MaxRetryDelay {
			return c.MaxRetryDelay
		}
	}
	if d > c.MaxRetryDelay {
		return c.MaxRetryDelay
	}
	return d
}

// Message represents a message in the queue
type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"` // failed deliveries so far
	Timestamp time.Time       `json:"timestamp"`
	LastError string          `json:"lastError,omitempty"`
}

// Attempt is the 1-based number of the current delivery.
func (m Message) Attempt() int { return m.Attempts + 1 }

// Delivery is a leased message. The raw member identifies the lease in Redis.
type Delivery struct {
	Message
	raw string
}

// FailureHandler is notified when a message is moved to the failed list.
type FailureHandler func(ctx context.Context, msg Message, reason string)

// Observer receives queue outcomes for metrics.
type Observer interface {
	ObserveJob(msgType, result string, elapsed time.Duration)
	ObserveDepth(stats Stats)
}

// Stats is a point-in-time view of queue sizes.
type Stats struct {
	Ready  int64 `json:"ready"`
	Leased int64 `json:"leased"`
	Retry  int64 `json:"retry"`
	Failed int64 `json:"failed"`
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

func ParsePayload[T any](payload json.RawMessage) (*T, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("empty payload")
	}
	var result T
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return &result, nil
}
