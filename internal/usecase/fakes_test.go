package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"Aegis/internal/domain/models"
	"Aegis/internal/domain/service"
	"Aegis/internal/repository"

	"github.com/stretchr/testify/require"
)

type countingMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func newRecorder() *countingMetrics {
	return &countingMetrics{counts: map[string]int{}}
}

func (m *countingMetrics) inc(key string) {
	m.mu.Lock()
	m.counts[key]++
	m.mu.Unlock()
}

func (m *countingMetrics) Count(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[key]
}

func (m *countingMetrics) RecordIngest(result string) { m.inc("ingest:" + result) }
func (m *countingMetrics) RecordEngineCall(result string, _ time.Duration) {
	m.inc("engine:" + result)
}
func (m *countingMetrics) RecordSignal(status string)           { m.inc("signal:" + status) }
func (m *countingMetrics) RecordError(kind string)              { m.inc("error:" + kind) }
func (m *countingMetrics) RealtimeConnected(int)                {}
func (m *countingMetrics) RecordRealtimeMessage(string, string) {}

func seededStore(t *testing.T) *repository.MemoryStore {
	t.Helper()
	s := repository.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.PutAccount(ctx, &models.Account{ID: "acct-1", UserID: "user-1"}))
	require.NoError(t, s.PutAccount(ctx, &models.Account{ID: "acct-2", UserID: "user-2"}))
	return s
}

func storeEvent(t *testing.T, s *repository.MemoryStore, accountID string) *models.OrderFlowEvent {
	t.Helper()
	e := &models.OrderFlowEvent{
		ID:         "evt-" + accountID,
		AccountID:  accountID,
		Payload:    json.RawMessage(`{"symbol":"ES","qty":1,"side":"BUY"}`),
		ReceivedAt: time.Now().UTC(),
	}
	require.NoError(t, s.CreateEvent(context.Background(), e))
	return e
}

type fakeQueue struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (q *fakeQueue) Enqueue(_ context.Context, eventID string) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return "", q.err
	}
	q.events = append(q.events, eventID)
	return "job-" + eventID, nil
}

func (q *fakeQueue) Status(context.Context, string) (models.JobStatus, error) {
	return models.JobQueued, nil
}

func (q *fakeQueue) Ping(context.Context) error { return nil }

type failingAudit struct{}

func (failingAudit) Append(context.Context, *models.AuditLogEntry) error {
	return errors.New("audit unavailable")
}

type fakeEngine struct {
	calls  atomic.Int32
	result *service.EngineResult
	err    error
	block  chan struct{}
}

func (e *fakeEngine) Evaluate(ctx context.Context, _ *models.OrderFlowEvent) (*service.EngineResult, error) {
	e.calls.Add(1)
	if e.block != nil {
		select {
		case <-e.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if e.err != nil {
		return nil, e.err
	}
	return e.result, nil
}

func okEngine() *fakeEngine {
	rr, conf := 2.5, 0.82
	return &fakeEngine{result: &service.EngineResult{
		Symbol:     "ES",
		Direction:  models.DirectionLong,
		Confidence: &conf,
		RiskReward: &rr,
		Rationale:  "bid absorption",
	}}
}

type fakePublisher struct {
	mu     sync.Mutex
	events []models.SignalEvent
	err    error
}

func (p *fakePublisher) PublishSignal(_ context.Context, e models.SignalEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *fakePublisher) Events() []models.SignalEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.SignalEvent(nil), p.events...)
}

type fakeFailures struct {
	mu     sync.Mutex
	events []models.JobFailedEvent
}

func (f *fakeFailures) PublishJobFailure(_ context.Context, e models.JobFailedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}

func (f *fakeFailures) Events() []models.JobFailedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.JobFailedEvent(nil), f.events...)
}

type fakeLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func newFakeLocker() *fakeLocker { return &fakeLocker{held: map[string]bool{}} }

func (l *fakeLocker) TryLock(_ context.Context, key string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}

func (l *fakeLocker) Unlock(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}
