package models

import (
	"errors"

	"Aegis/pkg/validation"
)

var (
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrEngineFailure     = errors.New("decision engine failure")
	ErrQueueFailure      = errors.New("queue failure")
	ErrMissingEvent      = errors.New("order-flow event missing")
	ErrInvalidTransition = errors.New("invalid signal transition")
	ErrConflict          = errors.New("already exists")
)

// ValidationError carries per-field details and matches ErrValidation.
type ValidationError struct {
	Fields validation.Errors
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	return ErrValidation.Error() + ": " + e.Fields.Error()
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NewValidationError wraps field errors.
func NewValidationError(fields validation.Errors) error {
	return &ValidationError{Fields: fields}
}
