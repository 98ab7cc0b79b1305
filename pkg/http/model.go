package http

import "Aegis/pkg/validation"

// ValidationError represents validation error detail.
type ValidationError = validation.FieldError

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string            `json:"error" example:"account not found"`
	Code    string            `json:"code" example:"ERR_NOT_FOUND"`
	Details []ValidationError `json:"details,omitempty"`
}

// ListDataResponse represents a list response.
type ListDataResponse struct {
	Rows  interface{} `json:"rows"`
	Total int64       `json:"total"`
}
