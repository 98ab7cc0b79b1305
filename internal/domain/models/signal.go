package models

import "time"

type SignalStatus string

const (
	SignalPending  SignalStatus = "PENDING"
	SignalActive   SignalStatus = "ACTIVE"
	SignalClosed   SignalStatus = "CLOSED"
	SignalRejected SignalStatus = "REJECTED"
)

// Signal directions returned by the decision engine.
const (
	DirectionLong    = "LONG"
	DirectionShort   = "SHORT"
	DirectionNeutral = "NEUTRAL"
)

// Signal is derived exactly once from an order-flow event. Its status only
// changes together with an appended Decision. OrderFlow is populated on
// reads (get and list).
type Signal struct {
	ID               string                 `json:"id"`
	AccountID        string                 `json:"accountId"`
	OrderFlowEventID string                 `json:"orderFlowEventId"`
	Symbol           string                 `json:"symbol"`
	Direction        string                 `json:"direction"`
	Confidence       float64                `json:"confidence"`
	RiskReward       *float64               `json:"riskReward,omitempty"`
	Status           SignalStatus           `json:"status"`
	CreatedAt        time.Time              `json:"createdAt"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
	OrderFlow        *OrderFlowEvent        `json:"orderFlow,omitempty"`
	Decisions        []Decision             `json:"decisions,omitempty"`
}

// SignalEvent is the signal.created message published after persistence.
type SignalEvent struct {
	SignalID         string       `json:"signalId"`
	AccountID        string       `json:"accountId"`
	UserID           string       `json:"userId"`
	OrderFlowEventID string       `json:"orderFlowEventId"`
	Symbol           string       `json:"symbol"`
	Direction        string       `json:"direction"`
	Confidence       float64      `json:"confidence"`
	Status           SignalStatus `json:"status"`
	CreatedAt        time.Time    `json:"createdAt"`
}

// NewSignalEvent builds the published form of s.
func NewSignalEvent(s *Signal, userID string) SignalEvent {
	return SignalEvent{
		SignalID:         s.ID,
		AccountID:        s.AccountID,
		UserID:           userID,
		OrderFlowEventID: s.OrderFlowEventID,
		Symbol:           s.Symbol,
		Direction:        s.Direction,
		Confidence:       s.Confidence,
		Status:           s.Status,
		CreatedAt:        s.CreatedAt,
	}
}

// SignalQuery filters signal listings.
type SignalQuery struct {
	AccountID string `query:"accountId" json:"accountId" validate:"omitempty,max=64"`
	Limit     int    `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=200"`
}
