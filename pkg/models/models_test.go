package models

import (
	"encoding/json"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNode_UnmarshalJSON_DispatchesOnType(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		expected NodeConfig
	}{
		{
			name:    "action",
			payload: `{"id":"n1","scenario_id":"s1","type":"action","config":{"app_id":"crm","action_id":"create","connection_id":"c1","essential":true}}`,
			expected: ActionConfig{
				AppID:        "crm",
				ActionID:     "create",
				ConnectionID: "c1",
				Essential:    true,
			},
		},
		{
			name:    "condition",
			payload: `{"id":"n2","scenario_id":"s1","type":"condition","config":{"clauses":[{"field":"status","operator":"eq","value":"ok"}]}}`,
			expected: ConditionConfig{
				Clauses: []ConditionClause{{Field: "status", Operator: "eq", Value: "ok"}},
			},
		},
		{
			name:     "trigger without config defaults to manual",
			payload:  `{"id":"n3","scenario_id":"s1","type":"trigger"}`,
			expected: TriggerConfig{Kind: TriggerKindManual},
		},
		{
			name:    "transformer",
			payload: `{"id":"n4","scenario_id":"s1","type":"transformer","operation":"filter","config":{"include":["a","b"]}}`,
			expected: TransformerConfig{
				Include: []string{"a", "b"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var node Node

			err := json.Unmarshal([]byte(tt.payload), &node)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, node.Config)
			assert.Equal(t, tt.expected.NodeType(), node.Type)
		})
	}
}

func TestNode_UnmarshalJSON_UnknownType(t *testing.T) {
	var node Node

	err := json.Unmarshal([]byte(`{"id":"n1","type":"loop","config":{}}`), &node)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownNodeType)
}

func TestNode_JSONRoundTripKeepsTypedConfig(t *testing.T) {
	node := Node{
		ID:         "n1",
		ScenarioID: "s1",
		Type:       NodeTypeAction,
		DependsOn:  []string{"t1"},
		Config: ActionConfig{
			AppID:         "crm",
			ActionID:      "create",
			ConnectionID:  "c1",
			FallbackValue: map[string]any{"id": "none"},
		},
	}

	data, err := json.Marshal(node)
	require.NoError(t, err)

	var decoded Node
	require.NoError(t, json.Unmarshal(data, &decoded))

	cfg, ok := decoded.Config.(ActionConfig)
	require.True(t, ok)

	fallback, has := cfg.Fallback()
	assert.True(t, has)
	assert.Equal(t, map[string]any{"id": "none"}, fallback)
	assert.Equal(t, []string{"t1"}, decoded.DependsOn)
}

func TestScenario_Validation(t *testing.T) {
	validate := validator.New(validator.WithRequiredStructEnabled())

	scenario := &Scenario{
		ID:     "s1",
		Name:   "Sync contacts",
		Status: ScenarioStatusActive,
		Owner:  "user-1",
	}
	assert.NoError(t, validate.Struct(scenario))

	scenario.Status = "archived"
	assert.Error(t, validate.Struct(scenario))
}

func TestErrorHandling_MaxRetries(t *testing.T) {
	assert.Equal(t, 3, ErrorHandling{RetryCount: 3}.MaxRetries())
	assert.Equal(t, 0, ErrorHandling{RetryCount: -1}.MaxRetries())
	assert.Equal(t, DefaultRetryCount, ErrorHandling{}.MaxRetries())
	assert.Equal(t, 5, ErrorHandling{RetryCount: 3, Retry: &RetryPolicy{MaxAttempts: 5}}.MaxRetries())
}

func TestExecution_SetNodeResultReplacesByNodeID(t *testing.T) {
	exec := &Execution{}

	exec.SetNodeResult(NodeResult{NodeID: "a", Status: NodeStatusFailed})
	exec.SetNodeResult(NodeResult{NodeID: "b", Status: NodeStatusCompleted})
	exec.SetNodeResult(NodeResult{NodeID: "a", Status: NodeStatusCompleted, RetryCount: 1})

	require.Len(t, exec.NodeResults, 2)

	result, ok := exec.NodeResult("a")
	require.True(t, ok)
	assert.Equal(t, NodeStatusCompleted, result.Status)
	assert.Equal(t, 1, result.RetryCount)
}

func TestGetPath(t *testing.T) {
	data := map[string]any{
		"user": map[string]any{
			"name": "Ada",
			"tags": []any{"admin", map[string]any{"label": "ops"}},
		},
	}

	tests := []struct {
		path     string
		expected any
		found    bool
	}{
		{"user.name", "Ada", true},
		{"user.tags[0]", "admin", true},
		{"user.tags.1.label", "ops", true},
		{"user.tags[5]", nil, false},
		{"user.email", nil, false},
		{"", data, true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			value, ok := GetPath(data, tt.path)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.expected, value)
		})
	}
}

func TestSetPathAndDeletePath(t *testing.T) {
	target := map[string]any{}

	SetPath(target, "contact.address.city", "Lisbon")
	assert.Equal(t, map[string]any{"contact": map[string]any{"address": map[string]any{"city": "Lisbon"}}}, target)

	DeletePath(target, "contact.address.city")
	assert.Equal(t, map[string]any{"contact": map[string]any{"address": map[string]any{}}}, target)
}
