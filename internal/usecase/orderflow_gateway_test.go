package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"Aegis/internal/domain/models"
	"Aegis/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var user1 = &models.Identity{UserID: "user-1"}

const validPayload = `{"symbol":"ES","qty":2,"side":"BUY","price":5012.25,"timestamp":1700000000000}`

func TestSubmitAcceptsValidOrderFlow(t *testing.T) {
	store := seededStore(t)
	q := &fakeQueue{}
	rec := newRecorder()
	gw := NewOrderFlowGateway(store, store, q, rec, logger.Nop())
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	gw.now = func() time.Time { return fixed }

	id, err := gw.Submit(context.Background(), user1, "acct-1", json.RawMessage(validPayload))
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	e, err := store.GetEvent(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "acct-1", e.AccountID)
	assert.Equal(t, fixed, e.ReceivedAt)
	assert.Equal(t, []string{id}, q.events)

	entries := store.AuditEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, models.AuditOrderFlowIngest, entries[0].Action)
	assert.Equal(t, id, entries[0].Resource)
	assert.Equal(t, "user-1", entries[0].UserID)
	assert.JSONEq(t, validPayload, string(entries[0].Metadata))

	assert.Equal(t, 1, rec.Count("ingest:"+ingestAccepted))
}

func TestSubmitRejections(t *testing.T) {
	tests := []struct {
		name      string
		id        *models.Identity
		accountID string
		payload   string
		want      error
	}{
		{"anonymous", nil, "acct-1", validPayload, models.ErrUnauthenticated},
		{"empty identity", &models.Identity{}, "acct-1", validPayload, models.ErrUnauthenticated},
		{"unknown account", user1, "acct-9", validPayload, models.ErrNotFound},
		{"foreign account", user1, "acct-2", validPayload, models.ErrNotFound},
		{"missing symbol", user1, "acct-1", `{"qty":1,"side":"BUY"}`, models.ErrValidation},
		{"negative qty", user1, "acct-1", `{"symbol":"ES","qty":-1,"side":"BUY"}`, models.ErrValidation},
		{"bad side", user1, "acct-1", `{"symbol":"ES","qty":1,"side":"HOLD"}`, models.ErrValidation},
		{"unknown field", user1, "acct-1", `{"symbol":"ES","qty":1,"side":"BUY","leverage":5}`, models.ErrValidation},
		{"not an object", user1, "acct-1", `[1,2]`, models.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := seededStore(t)
			q := &fakeQueue{}
			gw := NewOrderFlowGateway(store, store, q, newRecorder(), logger.Nop())

			_, err := gw.Submit(context.Background(), tt.id, tt.accountID, json.RawMessage(tt.payload))
			assert.ErrorIs(t, err, tt.want)

			events, _ := store.Counts()
			assert.Zero(t, events, "no event stored")
			assert.Empty(t, q.events)
			assert.Empty(t, store.AuditEntries())
		})
	}
}

func TestSubmitValidationDetailsArePrefixed(t *testing.T) {
	store := seededStore(t)
	gw := NewOrderFlowGateway(store, store, &fakeQueue{}, newRecorder(), logger.Nop())

	_, err := gw.Submit(context.Background(), user1, "acct-1", json.RawMessage(`{"qty":0,"side":"BUY"}`))
	var verr *models.ValidationError
	require.True(t, errors.As(err, &verr))
	require.NotEmpty(t, verr.Fields)
	for _, f := range verr.Fields {
		assert.Contains(t, f.Field, "payload.")
	}
}

func TestSubmitQueueFailure(t *testing.T) {
	store := seededStore(t)
	q := &fakeQueue{err: errors.New("redis down")}
	gw := NewOrderFlowGateway(store, store, q, newRecorder(), logger.Nop())

	_, err := gw.Submit(context.Background(), user1, "acct-1", json.RawMessage(validPayload))
	assert.ErrorIs(t, err, models.ErrQueueFailure)

	events, _ := store.Counts()
	assert.Equal(t, 1, events, "event stays for reconciliation")

	entries := store.AuditEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, models.AuditOrderFlowEnqueueFailed, entries[0].Action)
	assert.Equal(t, user1.UserID, entries[0].UserID)
	assert.JSONEq(t, `{"reason":"redis down"}`, string(entries[0].Metadata))

	e, err := store.GetEvent(context.Background(), entries[0].Resource)
	require.NoError(t, err)
	assert.Equal(t, "acct-1", e.AccountID)
}

func TestSubmitAuditFailureIsNotFatal(t *testing.T) {
	store := seededStore(t)
	rec := newRecorder()
	gw := NewOrderFlowGateway(store, failingAudit{}, &fakeQueue{}, rec, logger.Nop())

	id, err := gw.Submit(context.Background(), user1, "acct-1", json.RawMessage(validPayload))
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, rec.Count("error:audit_append"))
}
