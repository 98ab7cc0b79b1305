package models

import (
	"encoding/json"
	"time"
)

// Audit actions.
const (
	AuditOrderFlowIngest        = "ORDERFLOW_INGEST"
	AuditOrderFlowEnqueueFailed = "ORDERFLOW_ENQUEUE_FAILED"
	AuditSignalDecision         = "SIGNAL_DECISION"
)

// AuditLogEntry records a mutating boundary operation. Never updated or deleted.
type AuditLogEntry struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	Action    string          `json:"action"`
	Resource  string          `json:"resource"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Identity is the authenticated caller.
type Identity struct {
	UserID string `json:"userId"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
}

// Anonymous reports whether no caller was established.
func (i *Identity) Anonymous() bool { return i == nil || i.UserID == "" }
