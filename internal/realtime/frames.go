package realtime

import "Aegis/internal/domain/models"

// Frame types on the wire.
const (
	TypeHeartbeat = "heartbeat"
	TypeAck       = "ack"
	TypeSignal    = "signal"
	TypeOrderFlow = "orderflow"
)

type HeartbeatFrame struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

type AckFrame struct {
	Type          string `json:"type"`
	ReceivedAt    int64  `json:"receivedAt"`
	CorrelationID string `json:"correlationId"`
}

type SignalFrame struct {
	Type   string             `json:"type"`
	Signal models.SignalEvent `json:"signal"`
}

// inbound is the recognised client frame. Other fields of an orderflow
// frame are accepted and ignored.
type inbound struct {
	Type          string `json:"type" validate:"required,oneof=orderflow"`
	CorrelationID string `json:"correlationId" validate:"required,max=128"`
}
