package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"Aegis/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// QueueMode defines the operation mode of the queue.
type QueueMode int

const (
	ModeProducerConsumer QueueMode = iota
	ModeProducerOnly
	ModeConsumerOnly
)

const (
	targetReady  = "ready"
	targetRetry  = "retry"
	targetFailed = "failed"

	reapBatch = 100
)

// RPOP from ready and lease with the deadline score in one step.
var dequeueScript = redis.NewScript(`
local m = redis.call('RPOP', KEYS[1])
if not m then
  return false
end
redis.call('ZADD', KEYS[2], ARGV[1], m)
return m
`)

// Finish a lease. Only the current lease holder can move the message on.
var settleScript = redis.NewScript(`
if redis.call('ZREM', KEYS[1], ARGV[1]) == 0 then
  return 0
end
if ARGV[3] == 'retry' then
  redis.call('ZADD', KEYS[2], ARGV[4], ARGV[2])
elseif ARGV[3] == 'ready' then
  redis.call('LPUSH', KEYS[3], ARGV[2])
elseif ARGV[3] == 'failed' then
  redis.call('LPUSH', KEYS[4], ARGV[2])
end
redis.call('SET', KEYS[5], ARGV[5], 'EX', ARGV[6])
return 1
`)

var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, m in ipairs(due) do
  redis.call('ZREM', KEYS[1], m)
  redis.call('LPUSH', KEYS[2], m)
end
return #due
`)

// RedisQueue is a lease-based at-least-once queue on Redis.
//
// Keys under the prefix: ready (list), leases (zset scored by deadline),
// retry (zset scored by due time), failed (list) and job:<id> (status).
type RedisQueue struct {
	logger    *logger.Logger
	config    *QueueConfig
	client    *redis.Client
	jobs      map[string]Job
	wg        sync.WaitGroup
	mu        sync.RWMutex
	isRunning bool
	mode      QueueMode
	ctx       context.Context
	cancel    context.CancelFunc
	keyPrefix string
	now       func() time.Time
	onFailure FailureHandler
	observer  Observer
}

// RedisQueueOption configures RedisQueue.
type RedisQueueOption func(*RedisQueue)

// WithKeyPrefix sets custom key prefix.
func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(r *RedisQueue) {
		r.keyPrefix = prefix
	}
}

// WithFailureHandler registers a callback for messages that exhaust their attempts.
func WithFailureHandler(h FailureHandler) RedisQueueOption {
	return func(r *RedisQueue) {
		r.onFailure = h
	}
}

// WithObserver reports job outcomes and queue depth.
func WithObserver(o Observer) RedisQueueOption {
	return func(r *RedisQueue) {
		r.observer = o
	}
}

// WithClock overrides the time source used for lease and retry scores.
func WithClock(now func() time.Time) RedisQueueOption {
	return func(r *RedisQueue) {
		r.now = now
	}
}

// NewRedisQueue creates a new Redis queue.
func NewRedisQueue(lgr *logger.Logger, config *QueueConfig, client *redis.Client, mode QueueMode, opts ...RedisQueueOption) *RedisQueue {
	if config == nil {
		config = &QueueConfig{}
	}
	config.withDefaults()

	ctx, cancel := context.WithCancel(context.Background())

	rq := &RedisQueue{
		logger:    lgr,
		config:    config,
		client:    client,
		jobs:      make(map[string]Job),
		mode:      mode,
		ctx:       ctx,
		cancel:    cancel,
		keyPrefix: "aegis:queue",
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(rq)
	}

	return rq
}

// RegisterJob registers a single job.
func (r *RedisQueue) RegisterJob(job Job) {
	if r.mode == ModeProducerOnly {
		r.logger.Warn("job registration ignored in producer-only mode",
			logger.String("job", job.Name()))
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.Type()]; exists {
		r.logger.Warn("job already registered", logger.String("job", job.Name()))
		return
	}

	r.jobs[job.Type()] = job
	r.logger.Info("job registered",
		logger.String("job", job.Name()),
		logger.String("type", job.Type()))
}

// Start pings Redis and, in consumer modes, starts the workers and the
// maintenance loop that reaps expired leases and promotes due retries.
func (r *RedisQueue) Start() error {
	r.mu.Lock()
	if r.isRunning {
		r.mu.Unlock()
		return fmt.Errorf("queue already running")
	}
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	r.mu.Lock()
	r.isRunning = true
	r.mu.Unlock()

	if r.mode != ModeProducerOnly {
		for i := 0; i < r.config.Workers; i++ {
			r.wg.Add(1)
			go r.worker(i)
		}
		r.wg.Add(1)
		go r.maintain()
		r.logger.Info("redis queue started",
			logger.Int("workers", r.config.Workers),
			logger.String("addr", r.client.Options().Addr),
			logger.String("mode", r.getModeString()),
			logger.Int("max_attempts", r.config.MaxAttempts),
			logger.Duration("lease_timeout_ms", r.config.LeaseTimeout))
	} else {
		r.logger.Info("redis publisher started",
			logger.String("addr", r.client.Options().Addr))
	}

	return nil
}

// Stop gracefully stops the queue. In-flight messages are released back to
// the ready list without counting an attempt.
func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.isRunning {
		r.mu.Unlock()
		return nil
	}
	r.isRunning = false
	r.logger.Info("stopping redis queue...")
	r.cancel()
	r.mu.Unlock()

	doneCh := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(doneCh)
	}()

	select {
	case <-ctx.Done():
		r.logger.Warn("timeout waiting for queue workers", logger.Error(ctx.Err()))
		return fmt.Errorf("timeout: %w", ctx.Err())
	case <-doneCh:
		r.logger.Info("redis queue stopped gracefully")
		return nil
	}
}

// Enqueue adds a message to the ready list and returns its id.
func (r *RedisQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) (string, error) {
	r.mu.RLock()
	running := r.isRunning
	_, registered := r.jobs[msgType]
	r.mu.RUnlock()

	if !running {
		return "", ErrNotRunning
	}
	if r.mode == ModeConsumerOnly {
		return "", ErrConsumerOnly
	}
	if r.mode == ModeProducerConsumer && !registered {
		return "", fmt.Errorf("%w: %s", ErrUnknownJob, msgType)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	msg := Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Payload:   raw,
		Timestamp: r.now().UTC(),
	}

	msgData, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, r.getReadyKey(), msgData)
		pipe.Set(ctx, r.getStatusKey(msg.ID), string(StatusQueued), r.config.StatusTTL)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("lpush: %w", err)
	}

	return msg.ID, nil
}

// Dequeue leases the next ready message, waiting until one is available or
// ctx is done.
func (r *RedisQueue) Dequeue(ctx context.Context) (*Delivery, error) {
	for {
		d, err := r.TryDequeue(ctx)
		if err != nil {
			return nil, err
		}
		if d != nil {
			return d, nil
		}

		timer := time.NewTimer(r.config.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// TryDequeue leases the next ready message or returns (nil, nil) when empty.
func (r *RedisQueue) TryDequeue(ctx context.Context) (*Delivery, error) {
	deadline := r.now().Add(r.config.LeaseTimeout).UnixMilli()
	raw, err := dequeueScript.Run(ctx, r.client,
		[]string{r.getReadyKey(), r.getLeaseKey()}, deadline).Text()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("dequeue: %w", err)
	}

	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		// Unreadable members can never be processed; park them in failed.
		r.logger.Error("unmarshal message", logger.Error(err), logger.String("raw", raw))
		if _, serr := r.settle(ctx, raw, raw, targetFailed, 0, "corrupt", StatusFailed); serr != nil {
			r.logger.Error("park corrupt message", logger.Error(serr))
		}
		return nil, nil
	}

	if err := r.client.Set(ctx, r.getStatusKey(msg.ID), string(StatusRunning), r.config.StatusTTL).Err(); err != nil {
		r.logger.Warn("set running status", logger.String("id", msg.ID), logger.Error(err))
	}

	return &Delivery{Message: msg, raw: raw}, nil
}

// Ack marks a delivery done. ErrLeaseLost means the lease expired and the
// message may already have been redelivered.
func (r *RedisQueue) Ack(ctx context.Context, d *Delivery) error {
	ok, err := r.settle(ctx, d.raw, "", "", 0, d.ID, StatusDone)
	if err != nil {
		return fmt.Errorf("ack: %w", err)
	}
	if !ok {
		return ErrLeaseLost
	}
	return nil
}

// Nack records a failed delivery. The message is retried with exponential
// backoff until MaxAttempts, or failed immediately for Permanent errors.
// It returns the status the message moved to.
func (r *RedisQueue) Nack(ctx context.Context, d *Delivery, reason error) (Status, error) {
	next := d.Message
	next.Attempts++
	if reason != nil {
		next.LastError = reason.Error()
	}

	if IsPermanent(reason) || next.Attempts >= r.config.MaxAttempts {
		return r.fail(ctx, d.raw, next)
	}

	delay := r.config.Backoff(next.Attempts)
	due := r.now().Add(delay).UnixMilli()
	nextData, err := json.Marshal(next)
	if err != nil {
		return "", fmt.Errorf("marshal retry: %w", err)
	}
	ok, err := r.settle(ctx, d.raw, string(nextData), targetRetry, due, next.ID, StatusQueued)
	if err != nil {
		return "", fmt.Errorf("nack: %w", err)
	}
	if !ok {
		return "", ErrLeaseLost
	}

	r.logger.Warn("job nacked, retry scheduled",
		logger.String("id", next.ID),
		logger.String("type", next.Type),
		logger.Int("attempts", next.Attempts),
		logger.String("reason", next.LastError),
		logger.Duration("retry_in_ms", delay))
	return StatusQueued, nil
}

func (r *RedisQueue) fail(ctx context.Context, raw string, next Message) (Status, error) {
	nextData, err := json.Marshal(next)
	if err != nil {
		return "", fmt.Errorf("marshal failed: %w", err)
	}
	ok, err := r.settle(ctx, raw, string(nextData), targetFailed, 0, next.ID, StatusFailed)
	if err != nil {
		return "", fmt.Errorf("fail: %w", err)
	}
	if !ok {
		return "", ErrLeaseLost
	}

	r.logger.Error("job failed",
		logger.String("id", next.ID),
		logger.String("type", next.Type),
		logger.Int("attempts", next.Attempts),
		logger.String("reason", next.LastError))
	if r.onFailure != nil {
		r.onFailure(ctx, next, next.LastError)
	}
	return StatusFailed, nil
}

// release puts a leased message back on the ready list without consuming an attempt.
func (r *RedisQueue) release(ctx context.Context, d *Delivery) error {
	ok, err := r.settle(ctx, d.raw, d.raw, targetReady, 0, d.ID, StatusQueued)
	if err != nil {
		return err
	}
	if !ok {
		return ErrLeaseLost
	}
	return nil
}

func (r *RedisQueue) settle(ctx context.Context, leased, next, target string, score int64, id string, status Status) (bool, error) {
	ttl := int64(r.config.StatusTTL / time.Second)
	n, err := settleScript.Run(ctx, r.client,
		[]string{r.getLeaseKey(), r.getRetryKey(), r.getReadyKey(), r.getFailedKey(), r.getStatusKey(id)},
		leased, next, target, score, string(status), ttl).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Status returns the lifecycle state of a message id.
func (r *RedisQueue) Status(ctx context.Context, id string) (Status, error) {
	s, err := r.client.Get(ctx, r.getStatusKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrUnknownState
		}
		return "", err
	}
	return Status(s), nil
}

// Stats returns current queue sizes.
func (r *RedisQueue) Stats(ctx context.Context) (Stats, error) {
	var ready, leased, retry, failed *redis.IntCmd
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		ready = pipe.LLen(ctx, r.getReadyKey())
		leased = pipe.ZCard(ctx, r.getLeaseKey())
		retry = pipe.ZCard(ctx, r.getRetryKey())
		failed = pipe.LLen(ctx, r.getFailedKey())
		return nil
	})
	if err != nil {
		return Stats{}, err
	}
	return Stats{Ready: ready.Val(), Leased: leased.Val(), Retry: retry.Val(), Failed: failed.Val()}, nil
}

// Failed returns up to limit messages from the failed list, newest first.
func (r *RedisQueue) Failed(ctx context.Context, limit int64) ([]Message, error) {
	raws, err := r.client.LRange(ctx, r.getFailedKey(), 0, limit-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Message, 0, len(raws))
	for _, raw := range raws {
		var m Message
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// PromoteDue moves retries whose backoff has elapsed to the ready list.
func (r *RedisQueue) PromoteDue(ctx context.Context) (int, error) {
	n, err := promoteScript.Run(ctx, r.client,
		[]string{r.getRetryKey(), r.getReadyKey()}, r.now().UnixMilli(), reapBatch).Int()
	if err != nil {
		return 0, fmt.Errorf("promote retries: %w", err)
	}
	return n, nil
}

// ReapExpired returns messages whose lease deadline passed. An expired lease
// counts as a failed attempt.
func (r *RedisQueue) ReapExpired(ctx context.Context) (int, error) {
	raws, err := r.client.ZRangeByScore(ctx, r.getLeaseKey(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(r.now().UnixMilli(), 10),
		Count: reapBatch,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("scan leases: %w", err)
	}

	reaped := 0
	for _, raw := range raws {
		var msg Message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			r.logger.Error("unmarshal leased message", logger.Error(err))
			continue
		}
		msg.Attempts++
		msg.LastError = "lease expired"

		if msg.Attempts >= r.config.MaxAttempts {
			if _, err := r.fail(ctx, raw, msg); err != nil && !errors.Is(err, ErrLeaseLost) {
				r.logger.Error("fail expired lease", logger.String("id", msg.ID), logger.Error(err))
				continue
			}
		} else {
			next, _ := json.Marshal(msg)
			ok, err := r.settle(ctx, raw, string(next), targetReady, 0, msg.ID, StatusQueued)
			if err != nil {
				r.logger.Error("requeue expired lease", logger.String("id", msg.ID), logger.Error(err))
				continue
			}
			if !ok {
				continue
			}
			r.logger.Warn("lease expired, message requeued",
				logger.String("id", msg.ID),
				logger.Int("attempts", msg.Attempts))
		}
		reaped++
	}
	return reaped, nil
}

func (r *RedisQueue) worker(id int) {
	defer r.wg.Done()
	r.logger.Info("queue worker started", logger.Int("worker_id", id))

	for {
		d, err := r.Dequeue(r.ctx)
		if err != nil {
			if r.ctx.Err() != nil {
				r.logger.Info("queue worker stopping", logger.Int("worker_id", id))
				return
			}
			r.logger.Error("dequeue error", logger.Error(err))
			select {
			case <-r.ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		r.processMessage(d)
	}
}

func (r *RedisQueue) processMessage(d *Delivery) {
	bg, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	r.mu.RLock()
	job, exists := r.jobs[d.Type]
	r.mu.RUnlock()
	if !exists {
		r.logger.Error("no job found",
			logger.String("type", d.Type),
			logger.String("id", d.ID))
		if _, err := r.Nack(bg, d, Permanent(fmt.Errorf("%w: %s", ErrUnknownJob, d.Type))); err != nil {
			r.logger.Error("nack unknown job", logger.String("id", d.ID), logger.Error(err))
		}
		return
	}

	jobCtx, jobCancel := context.WithTimeout(r.ctx, r.config.LeaseTimeout)
	start := time.Now()
	err := job.Handle(jobCtx, d.Message)
	jobCancel()
	elapsed := time.Since(start)

	if err == nil {
		if aerr := r.Ack(bg, d); aerr != nil {
			r.logger.Warn("ack failed",
				logger.String("id", d.ID),
				logger.String("job", job.Name()),
				logger.Error(aerr))
		}
		r.observe(d.Type, string(StatusDone), elapsed)
		return
	}

	if r.ctx.Err() != nil && errors.Is(err, context.Canceled) {
		r.logger.Warn("message cancelled, releasing lease",
			logger.String("id", d.ID),
			logger.String("job", job.Name()),
			logger.Int64("elapsed_ms", elapsed.Milliseconds()))
		if rerr := r.release(bg, d); rerr != nil {
			r.logger.Error("release lease", logger.String("id", d.ID), logger.Error(rerr))
		}
		return
	}

	r.logger.Error("message processing error",
		logger.String("id", d.ID),
		logger.String("job", job.Name()),
		logger.Int("attempt", d.Attempt()),
		logger.Error(err))

	status, nerr := r.Nack(bg, d, err)
	if nerr != nil {
		r.logger.Error("nack failed", logger.String("id", d.ID), logger.Error(nerr))
		return
	}
	result := "retry"
	if status == StatusFailed {
		result = string(StatusFailed)
	}
	r.observe(d.Type, result, elapsed)
}

func (r *RedisQueue) observe(msgType, result string, elapsed time.Duration) {
	if r.observer != nil {
		r.observer.ObserveJob(msgType, result, elapsed)
	}
}

func (r *RedisQueue) maintain() {
	defer r.wg.Done()
	r.logger.Info("queue maintenance started")

	ticker := time.NewTicker(r.config.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Info("queue maintenance stopping")
			return
		case <-ticker.C:
			r.runMaintenance(r.ctx)
		}
	}
}

func (r *RedisQueue) runMaintenance(ctx context.Context) {
	if _, err := r.PromoteDue(ctx); err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Error("promote retries", logger.Error(err))
	}
	if _, err := r.ReapExpired(ctx); err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Error("reap leases", logger.Error(err))
	}
	if r.observer != nil {
		if st, err := r.Stats(ctx); err == nil {
			r.observer.ObserveDepth(st)
		}
	}
}

// Ping checks the Redis connection.
func (r *RedisQueue) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisQueue) getModeString() string {
	switch r.mode {
	case ModeProducerOnly:
		return "producer-only"
	case ModeConsumerOnly:
		return "consumer-only"
	default:
		return "producer-consumer"
	}
}

func (r *RedisQueue) getReadyKey() string {
	return fmt.Sprintf("%s:ready", r.keyPrefix)
}

func (r *RedisQueue) getLeaseKey() string {
	return fmt.Sprintf("%s:leases", r.keyPrefix)
}

func (r *RedisQueue) getRetryKey() string {
	return fmt.Sprintf("%s:retry", r.keyPrefix)
}

func (r *RedisQueue) getFailedKey() string {
	return fmt.Sprintf("%s:failed", r.keyPrefix)
}

func (r *RedisQueue) getStatusKey(id string) string {
	return fmt.Sprintf("%s:job:%s", r.keyPrefix, id)
}
