// Package events defines the lifecycle events emitted while scenarios execute.
package events

import (
	"time"

	"github.com/dukex/relay/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic carries every relay event.
const Topic = "relay.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Dispatch.
	ExecutionRequestedEvent EventType = "execution_requested"

	// Execution lifecycle.
	ExecutionStartedEvent   EventType = "execution_started"
	ExecutionProgressEvent  EventType = "execution_progress"
	ExecutionCompletedEvent EventType = "execution_completed"
	ExecutionFailedEvent    EventType = "execution_failed"
	ExecutionResumedEvent   EventType = "execution_resumed"
	ExecutionCancelledEvent EventType = "execution_cancelled"

	// Node lifecycle.
	NodeStartedEvent    EventType = "node_started"
	NodeCompletedEvent  EventType = "node_completed"
	NodeFailedEvent     EventType = "node_failed"
	NodeSkippedEvent    EventType = "node_skipped"
	RetryAttemptedEvent EventType = "retry_attempted"
	FallbackUsedEvent   EventType = "fallback_used"

	CheckpointSavedEvent  EventType = "checkpoint_saved"
	NotificationSentEvent EventType = "notification_sent"
)

type BaseEvent struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	Timestamp   time.Time      `json:"timestamp"`
	ScenarioID  string         `json:"scenario_id"`
	ExecutionID string         `json:"execution_id,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func (b BaseEvent) GetType() EventType {
	return b.Type
}

func NewBaseEvent(eventType EventType, scenarioID, executionID string) BaseEvent {
	return BaseEvent{
		ID:          uuid.New().String(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		ScenarioID:  scenarioID,
		ExecutionID: executionID,
		Metadata:    make(map[string]any),
	}
}

// ExecutionRequested asks a worker to run an execution that is already recorded.
type ExecutionRequested struct {
	BaseEvent

	TriggerType models.TriggerType `json:"trigger_type"`
}

// ExecutionEvent covers every execution level transition.
type ExecutionEvent struct {
	BaseEvent

	Status              models.ExecutionStatus `json:"status"`
	TriggerType         models.TriggerType     `json:"trigger_type,omitempty"`
	Progress            float64                `json:"progress"`
	EstimatedRemaining  time.Duration          `json:"estimated_remaining,omitempty"`
	CurrentNodeID       string                 `json:"current_node_id,omitempty"`
	Error               string                 `json:"error,omitempty"`
	DurationMs          int64                  `json:"duration_ms,omitempty"`
	OriginalExecutionID string                 `json:"original_execution_id,omitempty"`
	CheckpointID        string                 `json:"checkpoint_id,omitempty"`
}

// NodeEvent covers node level transitions, retries and fallbacks included.
type NodeEvent struct {
	BaseEvent

	NodeID     string            `json:"node_id"`
	NodeType   models.NodeType   `json:"node_type"`
	Status     models.NodeStatus `json:"status"`
	Attempt    int               `json:"attempt,omitempty"`
	Delay      time.Duration     `json:"delay,omitempty"`
	Error      string            `json:"error,omitempty"`
	Category   string            `json:"category,omitempty"`
	Severity   string            `json:"severity,omitempty"`
	Action     string            `json:"action,omitempty"`
	SkippedBy  string            `json:"skipped_by,omitempty"`
	DurationMs int64             `json:"duration_ms,omitempty"`
}

type CheckpointSaved struct {
	BaseEvent

	CheckpointID string                  `json:"checkpoint_id"`
	Reason       models.CheckpointReason `json:"reason"`
	NodeID       string                  `json:"node_id,omitempty"`
	Progress     float64                 `json:"progress"`
}

type NotificationSent struct {
	BaseEvent

	UserID   string `json:"user_id"`
	Title    string `json:"title"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// New returns an empty event value to decode a payload of eventType into.
func New(eventType EventType) (any, bool) {
	switch eventType {
	case ExecutionRequestedEvent:
		return &ExecutionRequested{}, true
	case ExecutionStartedEvent, ExecutionProgressEvent, ExecutionCompletedEvent,
		ExecutionFailedEvent, ExecutionResumedEvent, ExecutionCancelledEvent:
		return &ExecutionEvent{}, true
	case NodeStartedEvent, NodeCompletedEvent, NodeFailedEvent, NodeSkippedEvent,
		RetryAttemptedEvent, FallbackUsedEvent:
		return &NodeEvent{}, true
	case CheckpointSavedEvent:
		return &CheckpointSaved{}, true
	case NotificationSentEvent:
		return &NotificationSent{}, true
	default:
		return nil, false
	}
}
