package models

import "time"

// CheckpointReason records why a checkpoint was written.
type CheckpointReason string

const (
	CheckpointReasonRetry CheckpointReason = "retry"
	CheckpointReasonAbort CheckpointReason = "abort"
)

// Checkpoint is an immutable snapshot of an execution's progress that a
// recovery execution can resume from.
type Checkpoint struct {
	ID          string           `json:"id"`
	ExecutionID string           `json:"execution_id"`
	ScenarioID  string           `json:"scenario_id"`
	Reason      CheckpointReason `json:"reason"`
	Snapshot    Snapshot         `json:"snapshot"`
	CreatedAt   time.Time        `json:"created_at"`
}

type Snapshot struct {
	CompletedNodes []string                  `json:"completed_nodes"`
	SkippedNodes   []string                  `json:"skipped_nodes,omitempty"`
	CurrentNodeID  string                    `json:"current_node_id,omitempty"`
	NodeOutputs    map[string]map[string]any `json:"node_outputs"`
	RetryCounts    map[string]int            `json:"retry_counts,omitempty"`
	Timestamp      time.Time                 `json:"timestamp"`
}
