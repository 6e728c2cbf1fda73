// Package recovery classifies node failures and plans how an execution reacts to them.
package recovery

import (
	"errors"
	"fmt"
)

var (
	// ErrCancelled is the error recorded on executions stopped by a cancel request.
	ErrCancelled = errors.New("execution cancelled")

	// ErrExecutionTimeout is recorded when the whole-execution ceiling is exceeded.
	ErrExecutionTimeout = errors.New("execution exceeded maximum duration")
)

// ConfigurationError reports a scenario that can never run as defined: a cyclic or
// unsatisfiable graph, an unknown node type, a missing connection or app.
type ConfigurationError struct {
	NodeID string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := "configuration error"
	if e.NodeID != "" {
		msg += " at node " + e.NodeID
	}

	if e.Reason != "" {
		msg += ": " + e.Reason
	}

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// NewConfigurationError creates a configuration error for nodeID.
func NewConfigurationError(nodeID, reason string, err error) *ConfigurationError {
	return &ConfigurationError{NodeID: nodeID, Reason: reason, Err: err}
}

// ValidationError reports malformed node input or output.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Reason)
	}

	return "validation failed: " + e.Reason
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a validation error for field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// TransientError marks a failure expected to go away on its own.
type TransientError struct {
	Category Category
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient %s error: %v", e.Category, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// StatusCoder is implemented by errors carrying an HTTP status code.
type StatusCoder interface {
	StatusCode() int
}

// HTTPError is returned by action invokers when the remote side answers with a
// non-success status.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("remote returned status %d", e.Status)
	}

	return fmt.Sprintf("remote returned status %d: %s", e.Status, e.Body)
}

func (e *HTTPError) StatusCode() int {
	return e.Status
}

// ClassifiedError carries a classification decided at the point of failure.
// The classifier returns it unchanged.
type ClassifiedError struct {
	Classification Classification
	Err            error
}

func (e *ClassifiedError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}

	return e.Classification.Message
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// IsConfigurationError checks if an error is a configuration error.
func IsConfigurationError(err error) bool {
	var target *ConfigurationError

	return errors.As(err, &target)
}

// IsValidationError checks if an error is a validation error.
func IsValidationError(err error) bool {
	var target *ValidationError

	return errors.As(err, &target)
}
