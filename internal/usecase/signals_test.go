package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"Aegis/internal/domain/models"
	"Aegis/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededSignal(t *testing.T) (*SignalsUsecase, string, *countingMetrics) {
	t.Helper()
	store := seededStore(t)
	e := storeEvent(t, store, "acct-1")
	w := NewSignalWorker(store, okEngine(), nil, nil, newRecorder(), logger.Nop(), time.Minute)
	id, err := w.Process(context.Background(), models.Job{ID: "j-1", OrderFlowEventID: e.ID})
	require.NoError(t, err)
	rec := newRecorder()
	return NewSignalsUsecase(store, store, rec, logger.Nop()), id, rec
}

func TestSignalsListAndGet(t *testing.T) {
	uc, id, _ := seededSignal(t)
	ctx := context.Background()

	list, err := uc.List(ctx, user1, models.SignalQuery{Limit: 50})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)

	other, err := uc.List(ctx, &models.Identity{UserID: "user-2"}, models.SignalQuery{Limit: 50})
	require.NoError(t, err)
	assert.Empty(t, other)

	sig, err := uc.Get(ctx, user1, id)
	require.NoError(t, err)
	assert.Len(t, sig.Decisions, 1)

	_, err = uc.Get(ctx, &models.Identity{UserID: "user-2"}, id)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = uc.Get(ctx, nil, id)
	assert.ErrorIs(t, err, models.ErrUnauthenticated)

	_, err = uc.List(ctx, nil, models.SignalQuery{Limit: 50})
	assert.ErrorIs(t, err, models.ErrUnauthenticated)

	unbounded, err := uc.List(ctx, user1, models.SignalQuery{})
	require.NoError(t, err)
	assert.Len(t, unbounded, 1)
}

func TestAppendDecisionMovesStatusAndAudits(t *testing.T) {
	uc, id, rec := seededSignal(t)
	ctx := context.Background()
	conf := 0.9

	d, sig, err := uc.AppendDecision(ctx, user1, id, models.DecisionRequest{
		Actor:      models.ActorHuman,
		Rationale:  "confirmed on tape",
		NextAction: models.ActionActivate,
		Confidence: &conf,
	})
	require.NoError(t, err)
	assert.Equal(t, id, d.SignalID)
	assert.Equal(t, models.SignalActive, sig.Status)
	assert.Len(t, sig.Decisions, 2)
	assert.Equal(t, 1, rec.Count("signal:ACTIVE"))

	entries := uc.audit.(interface{ AuditEntries() []models.AuditLogEntry }).AuditEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, models.AuditSignalDecision, entries[0].Action)
	assert.Equal(t, id, entries[0].Resource)
	assert.Contains(t, string(entries[0].Metadata), d.ID)

	_, _, err = uc.AppendDecision(ctx, user1, id, models.DecisionRequest{
		Actor:      models.ActorHuman,
		Rationale:  "too late",
		NextAction: models.ActionReject,
	})
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestAppendDecisionOwnership(t *testing.T) {
	uc, id, _ := seededSignal(t)

	_, _, err := uc.AppendDecision(context.Background(), &models.Identity{UserID: "user-2"}, id, models.DecisionRequest{
		Actor:     models.ActorHuman,
		Rationale: "not mine",
	})
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, _, err = uc.AppendDecision(context.Background(), user1, "missing", models.DecisionRequest{
		Actor:     models.ActorHuman,
		Rationale: "x",
	})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestAppendDecisionAuditFailureIsNotFatal(t *testing.T) {
	uc, id, rec := seededSignal(t)
	uc.audit = failingAudit{}

	_, sig, err := uc.AppendDecision(context.Background(), user1, id, models.DecisionRequest{
		Actor:     models.ActorHuman,
		Rationale: "note",
	})
	require.NoError(t, err)
	assert.Equal(t, models.SignalPending, sig.Status)
	assert.Equal(t, 1, rec.Count("error:audit_append"))
}

type fakeBroadcaster struct {
	userID string
	events []models.SignalEvent
}

func (b *fakeBroadcaster) BroadcastSignal(userID string, e models.SignalEvent) int {
	b.userID = userID
	b.events = append(b.events, e)
	return 1
}

func TestSignalNotifier(t *testing.T) {
	hub := &fakeBroadcaster{}
	rec := newRecorder()
	n := NewSignalNotifier("aegis.signals", hub, rec, logger.Nop())
	ctx := context.Background()

	assert.Equal(t, "aegis.signals", n.Topic())

	require.NoError(t, n.Handle(ctx, []byte(`{"signalId":"s-1","userId":"user-1","accountId":"acct-1","status":"PENDING"}`)))
	require.Len(t, hub.events, 1)
	assert.Equal(t, "user-1", hub.userID)
	assert.Equal(t, "s-1", hub.events[0].SignalID)

	require.NoError(t, n.PublishSignal(ctx, models.SignalEvent{SignalID: "s-2"}))
	assert.Len(t, hub.events, 1, "ownerless events are dropped")

	err := n.Handle(ctx, []byte(`{broken`))
	require.Error(t, err)
	assert.False(t, errors.Is(err, models.ErrNotFound))
	assert.Equal(t, 1, rec.Count("error:consumer_unmarshal"))
}
