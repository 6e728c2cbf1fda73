package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	ErrScenarioNotFound   = errors.New("scenario not found")
	ErrNodeNotFound       = errors.New("node not found")
	ErrAppNotFound        = errors.New("app not found")
	ErrConnectionNotFound = errors.New("connection not found")
	ErrExecutionNotFound  = errors.New("execution not found")
	ErrCheckpointNotFound = errors.New("checkpoint not found")

	// ErrCheckpointExists is returned when a checkpoint id is written twice.
	ErrCheckpointExists = errors.New("checkpoint already exists")

	// ErrExecutionFinished is returned when a cancel request reaches an
	// execution that is no longer running.
	ErrExecutionFinished = errors.New("execution already finished")

	// ErrInvalidID indicates an id that cannot be used as a storage key.
	ErrInvalidID = errors.New("invalid id")
)

// RepositoryError wraps a storage failure with the entity it concerns.
type RepositoryError struct {
	Op     string // Operation being performed (e.g., "GetByID", "Save")
	Entity string // "scenario", "execution", ...
	ID     string
	Err    error
}

func (e *RepositoryError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Entity, e.Err)
	}

	return fmt.Sprintf("%s %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
}

func (e *RepositoryError) Unwrap() error {
	return e.Err
}

func (e *RepositoryError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewRepositoryError creates a repository error with context.
func NewRepositoryError(op, entity, id string, err error) *RepositoryError {
	return &RepositoryError{
		Op:     op,
		Entity: entity,
		ID:     id,
		Err:    err,
	}
}

func IsScenarioNotFound(err error) bool {
	return errors.Is(err, ErrScenarioNotFound)
}

func IsNodeNotFound(err error) bool {
	return errors.Is(err, ErrNodeNotFound)
}

func IsConnectionNotFound(err error) bool {
	return errors.Is(err, ErrConnectionNotFound)
}

func IsAppNotFound(err error) bool {
	return errors.Is(err, ErrAppNotFound)
}

func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}

func IsCheckpointNotFound(err error) bool {
	return errors.Is(err, ErrCheckpointNotFound)
}

// IsNotFound reports whether err is any of the not found errors.
func IsNotFound(err error) bool {
	return IsScenarioNotFound(err) || IsNodeNotFound(err) || IsConnectionNotFound(err) ||
		IsAppNotFound(err) || IsExecutionNotFound(err) || IsCheckpointNotFound(err)
}
