// Package models defines the core domain models for scenario automation.
package models

import "time"

// ScenarioStatus represents the lifecycle state of a scenario.
type ScenarioStatus string

const (
	ScenarioStatusDraft  ScenarioStatus = "draft"  // Editable, not triggered automatically
	ScenarioStatusActive ScenarioStatus = "active" // Triggers are armed
	ScenarioStatusPaused ScenarioStatus = "paused"
	ScenarioStatusError  ScenarioStatus = "error" // Last run failed with a critical error
)

const DefaultRetryCount = 3

// Scenario is a directed graph of typed nodes owned by a user.
type Scenario struct {
	ID            string         `json:"id"             validate:"required"`
	Name          string         `json:"name"           validate:"required,min=3"`
	Description   string         `json:"description"`
	Status        ScenarioStatus `json:"status"         validate:"required,oneof=draft active paused error"`
	Owner         string         `json:"owner"          validate:"required"`
	NodeIDs       []string       `json:"node_ids"`
	ErrorHandling ErrorHandling  `json:"error_handling"`
	LastRun       *LastRun       `json:"last_run,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// ErrorHandling is the per-scenario recovery policy.
// A zero RetryCount means DefaultRetryCount; a negative one disables retries.
type ErrorHandling struct {
	RetryCount    int  `json:"retry_count"     validate:"gte=-1,lte=10"`
	NotifyOnError bool `json:"notify_on_error"`

	// SuppressStatusChange keeps an active scenario active even after a critical failure.
	SuppressStatusChange bool `json:"suppress_status_change,omitempty"`

	Retry          *RetryPolicy          `json:"retry,omitempty"`
	CircuitBreaker *CircuitBreakerPolicy `json:"circuit_breaker,omitempty"`
	Checkpoint     *CheckpointPolicy     `json:"checkpoint,omitempty"`
}

// MaxRetries returns the effective retry ceiling for a node in this scenario.
func (e ErrorHandling) MaxRetries() int {
	if e.Retry != nil && e.Retry.MaxAttempts > 0 {
		return e.Retry.MaxAttempts
	}

	switch {
	case e.RetryCount < 0:
		return 0
	case e.RetryCount == 0:
		return DefaultRetryCount
	default:
		return e.RetryCount
	}
}

// CheckpointsEnabled reports whether checkpoints should be written.
// Checkpoints are on unless a policy explicitly disables them.
func (e ErrorHandling) CheckpointsEnabled() bool {
	return e.Checkpoint == nil || e.Checkpoint.Enabled
}

type RetryStrategy string

const (
	RetryStrategyExponential RetryStrategy = "exponential"
	RetryStrategyFixed       RetryStrategy = "fixed"
	RetryStrategyProgressive RetryStrategy = "progressive"
)

// RetryPolicy tunes the delay between attempts and which error categories are retried.
type RetryPolicy struct {
	Strategy               RetryStrategy `json:"strategy"                           validate:"omitempty,oneof=exponential fixed progressive"`
	MaxAttempts            int           `json:"max_attempts,omitempty"`
	InitialDelay           time.Duration `json:"initial_delay,omitempty"`
	MaxDelay               time.Duration `json:"max_delay,omitempty"`
	Factor                 float64       `json:"factor,omitempty"`
	RetryableCategories    []string      `json:"retryable_categories,omitempty"`
	NonRetryableCategories []string      `json:"non_retryable_categories,omitempty"`
}

// CircuitBreakerPolicy configures the breaker guarding each connection.
type CircuitBreakerPolicy struct {
	Enabled          bool          `json:"enabled"`
	FailureThreshold int           `json:"failure_threshold,omitempty"`
	ResetTimeout     time.Duration `json:"reset_timeout,omitempty"`
	HalfOpenSuccess  int           `json:"half_open_success,omitempty"`
}

type CheckpointPolicy struct {
	Enabled bool `json:"enabled"`
}

// LastRun summarizes the most recent finalized execution of a scenario.
type LastRun struct {
	Time        time.Time `json:"time"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
	ExecutionID string    `json:"execution_id"`
}
