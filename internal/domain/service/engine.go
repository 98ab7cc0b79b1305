package service

import (
	"context"

	"Aegis/internal/domain/models"
)

// EngineResult is the signal attributes returned by the decision engine.
type EngineResult struct {
	Symbol     string                 `json:"symbol" validate:"required,max=32"`
	Direction  string                 `json:"direction" validate:"required,oneof=LONG SHORT NEUTRAL"`
	Confidence *float64               `json:"confidence" validate:"required,gte=0,lte=1"`
	RiskReward *float64               `json:"riskReward,omitempty" validate:"omitempty,gte=0"`
	Rationale  string                 `json:"rationale"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// DecisionEngine derives signal attributes from an order-flow event.
type DecisionEngine interface {
	Evaluate(ctx context.Context, e *models.OrderFlowEvent) (*EngineResult, error)
}
