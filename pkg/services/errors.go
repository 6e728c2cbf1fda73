// Package services exposes the operations of the relay API: scenario
// definitions, execution triggering, resume, cancellation and queries.
package services

import (
	"errors"
	"fmt"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest      = errors.New("invalid request")
	ErrInvalidGraph        = errors.New("invalid scenario graph")
	ErrTriggerNodeRequired = errors.New("scenario must have exactly one trigger node")
	ErrNotTriggerNode      = errors.New("node is not a trigger node")

	// Authorization Errors (401/403).
	ErrWebhookDisabled     = errors.New("webhook trigger is disabled")
	ErrInvalidWebhookToken = errors.New("invalid webhook token")

	// Business Logic Conflicts (409 Conflict).
	ErrScenarioNotActive   = errors.New("scenario is not active")
	ErrScenarioNotEditable = errors.New("only draft or paused scenarios can be edited")
	ErrExecutionNotRunning = errors.New("execution is not running")
	ErrExecutionRunning    = errors.New("execution is still running")
	ErrExecutionLocked     = errors.New("execution is owned by another worker")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidGraph) ||
		errors.Is(err, ErrTriggerNodeRequired) ||
		errors.Is(err, ErrNotTriggerNode)
}

// IsUnauthorizedError checks if an error should return HTTP 401.
func IsUnauthorizedError(err error) bool {
	return errors.Is(err, ErrWebhookDisabled) ||
		errors.Is(err, ErrInvalidWebhookToken)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrScenarioNotActive) ||
		errors.Is(err, ErrScenarioNotEditable) ||
		errors.Is(err, ErrExecutionNotRunning) ||
		errors.Is(err, ErrExecutionRunning) ||
		errors.Is(err, ErrExecutionLocked)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
