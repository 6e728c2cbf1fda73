// Package web provides the HTTP API for scenarios and their executions.
package web

import (
	"github.com/dukex/relay/pkg/models"
	"github.com/dukex/relay/pkg/services"
)

// SaveScenarioRequest is the body of PUT /scenarios/:id.
type SaveScenarioRequest struct {
	Scenario *models.Scenario `json:"scenario" validate:"required"`
	Nodes    []*models.Node   `json:"nodes"    validate:"required,min=1"`
}

// TriggerExecutionRequest starts a manual execution.
type TriggerExecutionRequest struct {
	Data     map[string]any `json:"data"`
	Metadata map[string]any `json:"metadata,omitempty"`

	// Wait runs the execution inside the request instead of dispatching it.
	Wait bool `json:"wait,omitempty"`
}

// ResumeExecutionRequest is the body of POST /executions/:id/resume.
type ResumeExecutionRequest struct {
	CheckpointID    string `json:"checkpoint_id,omitempty"`
	StartFromNodeID string `json:"start_from_node_id,omitempty"`
	SkipFailedNode  bool   `json:"skip_failed_node,omitempty"`
	Wait            bool   `json:"wait,omitempty"`
}

// ExecutionResponse is the list envelope for executions.
type ExecutionResponse struct {
	Executions []*models.Execution `json:"executions"`
	TotalCount int                 `json:"total_count"`
}

func (r ResumeExecutionRequest) toService(executionID string) services.ResumeRequest {
	return services.ResumeRequest{
		ExecutionID:     executionID,
		CheckpointID:    r.CheckpointID,
		StartFromNodeID: r.StartFromNodeID,
		SkipFailedNode:  r.SkipFailedNode,
	}
}
