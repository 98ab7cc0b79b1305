package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"Aegis/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInserter struct {
	query string
	rows  [][]any
	err   error
}

func (f *fakeInserter) InsertRows(_ context.Context, query string, rows [][]any) error {
	f.query = query
	f.rows = append(f.rows, rows...)
	return f.err
}

func auditEntry() *models.AuditLogEntry {
	return &models.AuditLogEntry{
		ID:        "a-1",
		UserID:    "user-1",
		Action:    models.AuditOrderFlowIngest,
		Resource:  "orderflow:e-1",
		Metadata:  json.RawMessage(`{"accountId":"acct-1"}`),
		CreatedAt: time.Unix(1_700_000_000, 0).UTC(),
	}
}

func TestClickHouseAuditLogAppend(t *testing.T) {
	ins := &fakeInserter{}
	log := NewClickHouseAuditLog(ins, "aegis")

	require.NoError(t, log.Append(context.Background(), auditEntry()))
	assert.Contains(t, ins.query, "INSERT INTO aegis.audit_logs")
	require.Len(t, ins.rows, 1)
	assert.Equal(t, "user-1", ins.rows[0][1])
	assert.Equal(t, `{"accountId":"acct-1"}`, ins.rows[0][4])

	e := auditEntry()
	e.Metadata = nil
	require.NoError(t, log.Append(context.Background(), e))
	assert.Equal(t, "{}", ins.rows[1][4])
}

func TestClickHouseAuditLogError(t *testing.T) {
	ins := &fakeInserter{err: errors.New("clickhouse down")}
	err := NewClickHouseAuditLog(ins, "aegis").Append(context.Background(), auditEntry())
	assert.Error(t, err)
}

func TestClickHouseAuditSchema(t *testing.T) {
	stmts := ClickHouseAuditSchema("aegis")
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], "CREATE DATABASE IF NOT EXISTS aegis")
	assert.Contains(t, stmts[1], "aegis.audit_logs")
	assert.Contains(t, stmts[1], "MergeTree")
}

func TestGormAuditLogAppend(t *testing.T) {
	store := newSQLiteStore(t)
	log := NewGormAuditLog(store.db)

	require.NoError(t, log.Append(context.Background(), auditEntry()))

	var recs []auditRecord
	require.NoError(t, store.db.Find(&recs).Error)
	require.Len(t, recs, 1)
	assert.Equal(t, models.AuditOrderFlowIngest, recs[0].Action)
	assert.JSONEq(t, `{"accountId":"acct-1"}`, string(recs[0].Metadata))
}

func TestMemoryAuditEntries(t *testing.T) {
	m := NewMemoryStore()
	require.NoError(t, m.Append(context.Background(), auditEntry()))
	entries := m.AuditEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, "orderflow:e-1", entries[0].Resource)
}
