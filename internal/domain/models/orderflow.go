package models

import (
	"encoding/json"
	"time"
)

// OrderFlowEvent is an ingested order-flow submission. Immutable once stored.
type OrderFlowEvent struct {
	ID         string          `json:"id"`
	AccountID  string          `json:"accountId"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"receivedAt"`
}

// Order sides.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// OrderFlowPayload is the accepted shape of an order-flow payload.
// Unknown fields are rejected at decode time.
type OrderFlowPayload struct {
	Symbol    string   `json:"symbol" validate:"required,max=32"`
	Qty       float64  `json:"qty" validate:"required,gt=0"`
	Side      string   `json:"side,omitempty" validate:"omitempty,oneof=BUY SELL"`
	Price     *float64 `json:"price,omitempty" validate:"omitempty,gt=0"`
	BidVolume *float64 `json:"bidVolume,omitempty" validate:"omitempty,gte=0"`
	AskVolume *float64 `json:"askVolume,omitempty" validate:"omitempty,gte=0"`
	Delta     *float64 `json:"delta,omitempty"`
	Venue     string   `json:"venue,omitempty" validate:"omitempty,max=32"`
	Timestamp int64    `json:"timestamp,omitempty" validate:"omitempty,gt=0"`
}

// OrderFlowRequest is the body of POST /orderflow.
type OrderFlowRequest struct {
	AccountID string          `json:"accountId" validate:"required,max=64"`
	Payload   json.RawMessage `json:"payload" validate:"required"`
}

// OrderFlowResponse is returned on successful ingestion.
type OrderFlowResponse struct {
	EventID string `json:"eventId"`
}

// Account is the ownership record consulted at ingestion.
type Account struct {
	ID            string `json:"id"`
	UserID        string `json:"userId"`
	Broker        string `json:"broker"`
	AccountNumber string `json:"accountNumber"`
	Environment   string `json:"environment"`
}
