package models

import "time"

// Decision actors.
const (
	ActorHuman = "human"
	ActorAgent = "agent"
)

// Next actions that move a signal between statuses.
const (
	ActionActivate = "ACTIVATE"
	ActionClose    = "CLOSE"
	ActionReject   = "REJECT"
)

// Decision is an append-only entry in a signal's decision trail.
type Decision struct {
	ID         string    `json:"id"`
	SignalID   string    `json:"signalId"`
	Actor      string    `json:"actor"`
	Rationale  string    `json:"rationale"`
	NextAction string    `json:"nextAction,omitempty"`
	Confidence *float64  `json:"confidence,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// DecisionRequest is the body of POST /api/signals/:id/decisions.
type DecisionRequest struct {
	Actor      string   `json:"actor" default:"human" validate:"oneof=human agent"`
	Rationale  string   `json:"rationale" validate:"required,max=4000"`
	NextAction string   `json:"nextAction,omitempty" validate:"omitempty,max=64"`
	Confidence *float64 `json:"confidence,omitempty" validate:"omitempty,gte=0,lte=1"`
}

// NextStatus returns the status a signal in from moves to when a decision
// with the given next action is appended. Actions outside the status
// vocabulary leave the status unchanged.
func NextStatus(from SignalStatus, nextAction string) (SignalStatus, error) {
	switch nextAction {
	case ActionActivate:
		if from == SignalPending {
			return SignalActive, nil
		}
	case ActionClose:
		if from == SignalPending || from == SignalActive {
			return SignalClosed, nil
		}
	case ActionReject:
		if from == SignalPending {
			return SignalRejected, nil
		}
	default:
		return from, nil
	}
	return from, ErrInvalidTransition
}
