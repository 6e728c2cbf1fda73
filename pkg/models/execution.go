package models

import "time"

// ExecutionStatus represents the state of a single scenario run.
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// TriggerType identifies what started an execution.
type TriggerType string

const (
	TriggerTypeManual    TriggerType = "manual"
	TriggerTypeWebhook   TriggerType = "webhook"
	TriggerTypePolling   TriggerType = "polling"
	TriggerTypeScheduled TriggerType = "scheduled"
	TriggerTypeRecovery  TriggerType = "recovery"
	TriggerTypeBenchmark TriggerType = "benchmark"
)

// Trigger carries the event that started an execution. Data becomes the output
// of the scenario's trigger node.
type Trigger struct {
	Type     TriggerType    `json:"type"               validate:"required,oneof=manual webhook polling scheduled recovery benchmark"`
	NodeID   string         `json:"node_id,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Execution is the auditable record of one scenario run.
type Execution struct {
	ID            string          `json:"id"`
	ScenarioID    string          `json:"scenario_id"`
	Owner         string          `json:"owner,omitempty"`
	Status        ExecutionStatus `json:"status"`
	Trigger       Trigger         `json:"trigger"`
	StartTime     time.Time       `json:"start_time"`
	EndTime       *time.Time      `json:"end_time,omitempty"`
	NodeResults   []NodeResult    `json:"node_results"`
	Progress      float64         `json:"progress"`
	CurrentNodeID string          `json:"current_node_id,omitempty"`
	Error         string          `json:"error,omitempty"`

	// EstimatedTimeRemaining is refreshed with every progress update.
	EstimatedTimeRemaining time.Duration `json:"estimated_time_remaining,omitempty"`

	RetryCount    int        `json:"retry_count"`
	MaxRetries    int        `json:"max_retries"`
	LastRetryTime *time.Time `json:"last_retry_time,omitempty"`

	LastCheckpointID    string `json:"last_checkpoint_id,omitempty"`
	IsRecovery          bool   `json:"is_recovery,omitempty"`
	OriginalExecutionID string `json:"original_execution_id,omitempty"`
	RecoveryExecutionID string `json:"recovery_execution_id,omitempty"`

	CancelRequested bool `json:"cancel_requested,omitempty"`
}

// IsTerminal reports whether the execution has been finalized.
func (e *Execution) IsTerminal() bool {
	return e.Status == ExecutionStatusCompleted || e.Status == ExecutionStatusFailed
}

// Duration returns the wall-clock duration of a finalized execution, or the
// elapsed time so far for a running one.
func (e *Execution) Duration(now time.Time) time.Duration {
	if e.EndTime != nil {
		return e.EndTime.Sub(e.StartTime)
	}

	return now.Sub(e.StartTime)
}

// SetNodeResult stores result, replacing any earlier entry for the same node.
func (e *Execution) SetNodeResult(result NodeResult) {
	for i := range e.NodeResults {
		if e.NodeResults[i].NodeID == result.NodeID {
			e.NodeResults[i] = result

			return
		}
	}

	e.NodeResults = append(e.NodeResults, result)
}

// NodeResult returns the recorded result for nodeID.
func (e *Execution) NodeResult(nodeID string) (NodeResult, bool) {
	for _, result := range e.NodeResults {
		if result.NodeID == nodeID {
			return result, true
		}
	}

	return NodeResult{}, false
}

// NodeStatus is the state of a single node within an execution.
type NodeStatus string

const (
	NodeStatusPending   NodeStatus = "pending"
	NodeStatusRunning   NodeStatus = "running"
	NodeStatusCompleted NodeStatus = "completed"
	NodeStatusFailed    NodeStatus = "failed"
	NodeStatusSkipped   NodeStatus = "skipped"
)

// NodeResult is the outcome of one node within one execution.
type NodeResult struct {
	NodeID       string         `json:"node_id"`
	NodeType     NodeType       `json:"node_type"`
	Status       NodeStatus     `json:"status"`
	StartTime    time.Time      `json:"start_time"`
	EndTime      *time.Time     `json:"end_time,omitempty"`
	Input        map[string]any `json:"input,omitempty"`
	Output       map[string]any `json:"output,omitempty"`
	Error        string         `json:"error,omitempty"`
	RetryCount   int            `json:"retry_count,omitempty"`
	UsedFallback bool           `json:"used_fallback,omitempty"`
	SkippedBy    string         `json:"skipped_by,omitempty"`
}

// Duration returns how long the node ran, zero if it never finished.
func (r NodeResult) Duration() time.Duration {
	if r.EndTime == nil {
		return 0
	}

	return r.EndTime.Sub(r.StartTime)
}
