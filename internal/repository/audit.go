package repository

import (
	"context"
	"fmt"
	"time"

	"Aegis/internal/domain/models"
	"Aegis/internal/domain/repository"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type auditRecord struct {
	ID        string         `gorm:"primaryKey;size:36"`
	UserID    string         `gorm:"size:64;not null;index"`
	Action    string         `gorm:"size:64;not null;index"`
	Resource  string         `gorm:"size:128;not null"`
	Metadata  datatypes.JSON `gorm:"column:metadata"`
	CreatedAt time.Time      `gorm:"not null;index"`
}

func (auditRecord) TableName() string { return "audit_logs" }

// GormAuditLog appends audit entries to the relational store.
type GormAuditLog struct {
	db *gorm.DB
}

func NewGormAuditLog(db *gorm.DB) *GormAuditLog {
	return &GormAuditLog{db: db}
}

var _ repository.AuditLog = (*GormAuditLog)(nil)

func (a *GormAuditLog) Append(ctx context.Context, e *models.AuditLogEntry) error {
	rec := auditRecord{
		ID:        e.ID,
		UserID:    e.UserID,
		Action:    e.Action,
		Resource:  e.Resource,
		Metadata:  datatypes.JSON(e.Metadata),
		CreatedAt: e.CreatedAt,
	}
	if err := a.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// rowInserter is satisfied by *clickhouse.Client.
type rowInserter interface {
	InsertRows(ctx context.Context, query string, rows [][]any) error
}

// ClickHouseAuditLog appends audit entries to a MergeTree table.
type ClickHouseAuditLog struct {
	client rowInserter
	table  string
}

func NewClickHouseAuditLog(client rowInserter, database string) *ClickHouseAuditLog {
	return &ClickHouseAuditLog{client: client, table: database + ".audit_logs"}
}

var _ repository.AuditLog = (*ClickHouseAuditLog)(nil)

// ClickHouseAuditSchema returns the DDL for the audit table.
func ClickHouseAuditSchema(database string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.audit_logs (
			id String,
			user_id String,
			action LowCardinality(String),
			resource String,
			metadata String,
			created_at DateTime64(3)
		) ENGINE = MergeTree ORDER BY (action, created_at)`, database),
	}
}

func (a *ClickHouseAuditLog) Append(ctx context.Context, e *models.AuditLogEntry) error {
	q := fmt.Sprintf("INSERT INTO %s (id, user_id, action, resource, metadata, created_at) VALUES (?, ?, ?, ?, ?, ?)", a.table)
	meta := string(e.Metadata)
	if meta == "" {
		meta = "{}"
	}
	return a.client.InsertRows(ctx, q, [][]any{{
		e.ID, e.UserID, e.Action, e.Resource, meta, e.CreatedAt,
	}})
}
