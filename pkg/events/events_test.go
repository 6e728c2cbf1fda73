package events

import (
	"encoding/json"
	"testing"

	"github.com/dukex/relay/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		eventType EventType
		want      any
	}{
		{ExecutionRequestedEvent, &ExecutionRequested{}},
		{ExecutionStartedEvent, &ExecutionEvent{}},
		{ExecutionCancelledEvent, &ExecutionEvent{}},
		{RetryAttemptedEvent, &NodeEvent{}},
		{NodeSkippedEvent, &NodeEvent{}},
		{CheckpointSavedEvent, &CheckpointSaved{}},
		{NotificationSentEvent, &NotificationSent{}},
	}

	for _, tt := range tests {
		t.Run(string(tt.eventType), func(t *testing.T) {
			got, ok := New(tt.eventType)
			require.True(t, ok)
			assert.IsType(t, tt.want, got)
		})
	}

	_, ok := New("workflow.triggered")
	assert.False(t, ok)
}

func TestNodeEvent_TypeSurvivesEncoding(t *testing.T) {
	original := NodeEvent{
		BaseEvent: NewBaseEvent(RetryAttemptedEvent, "sc-1", "exec-1"),
		NodeID:    "crm",
		NodeType:  models.NodeTypeAction,
		Status:    models.NodeStatusFailed,
		Attempt:   2,
		Category:  "network",
	}

	payload, err := json.Marshal(original)
	require.NoError(t, err)

	decoded, ok := New(original.GetType())
	require.True(t, ok)
	require.NoError(t, json.Unmarshal(payload, decoded))

	event := decoded.(*NodeEvent)
	assert.Equal(t, RetryAttemptedEvent, event.GetType())
	assert.Equal(t, "exec-1", event.ExecutionID)
	assert.Equal(t, 2, event.Attempt)
}
