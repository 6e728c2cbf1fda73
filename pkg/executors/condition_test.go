package executors

import (
	"testing"

	"github.com/dukex/relay/pkg/models"
	"github.com/dukex/relay/pkg/protocol"
	"github.com/dukex/relay/pkg/recovery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		operator string
		actual   any
		expected any
		want     bool
	}{
		{"eq", "active", "active", true},
		{"eq", 10.0, "10", true},
		{"eq", true, "true", true},
		{"eq", nil, "x", false},
		{"neq", "a", "b", true},
		{"gt", 10.0, 2, true},
		{"gt", "10", "9", true},
		{"gte", 5, 5.0, true},
		{"lt", "2024-01-01T00:00:00Z", "2024-02-01T00:00:00Z", true},
		{"lte", nil, 1, true},
		{"contains", "hello world", "world", true},
		{"contains", []any{"a", "b"}, "b", true},
		{"contains", map[string]any{"k": 1}, "k", true},
		{"contains", nil, "x", false},
		{"startsWith", "relay-1", "relay", true},
		{"endsWith", "relay-1", "-2", false},
		{"empty", "  ", nil, true},
		{"empty", []any{}, nil, true},
		{"empty", 0, nil, false},
		{"notEmpty", map[string]any{"a": 1}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.operator, func(t *testing.T) {
			got, err := Evaluate(tt.operator, tt.actual, tt.expected)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got, "%v %s %v", tt.actual, tt.operator, tt.expected)
		})
	}
}

func TestEvaluate_UnknownOperator(t *testing.T) {
	_, err := Evaluate("matches", "a", "a")

	assert.True(t, recovery.IsValidationError(err))
}

func TestCondition_Execute(t *testing.T) {
	env := protocol.Env{
		Execution: &models.Execution{Trigger: models.Trigger{Data: map[string]any{"min": 100.0}}},
		Outputs: map[string]map[string]any{
			"order": {"total": 150.0, "status": "paid"},
		},
	}

	tests := []struct {
		name    string
		clauses []models.ConditionClause
		input   map[string]any
		want    bool
	}{
		{
			name: "no clauses is true",
			want: true,
		},
		{
			name: "reads prior outputs and templated values",
			clauses: []models.ConditionClause{
				{Field: "order.total", Operator: "gte", Value: "{{ .trigger.min }}"},
			},
			want: true,
		},
		{
			name: "previous combinator joins clauses",
			clauses: []models.ConditionClause{
				{Field: "order.status", Operator: "eq", Value: "refunded", Combinator: models.CombinatorOr},
				{Field: "order.total", Operator: "gt", Value: 100},
			},
			want: true,
		},
		{
			name: "and is the default combinator",
			clauses: []models.ConditionClause{
				{Field: "order.status", Operator: "eq", Value: "paid"},
				{Field: "order.total", Operator: "gt", Value: 1000},
			},
			want: false,
		},
		{
			name: "input takes precedence over outputs",
			clauses: []models.ConditionClause{
				{Field: "order.status", Operator: "eq", Value: "draft"},
			},
			input: map[string]any{"order": map[string]any{"status": "draft"}},
			want:  true,
		},
	}

	executor := NewCondition()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := &models.Node{ID: "check", Type: models.NodeTypeCondition, Config: models.ConditionConfig{Clauses: tt.clauses}}

			input := tt.input
			if input == nil {
				input = map[string]any{}
			}

			output, err := executor.Execute(t.Context(), node, input, env)
			require.NoError(t, err)

			assert.Equal(t, tt.want, output[ResultKey])
			assert.Len(t, output["conditions"], len(tt.clauses))
			assert.Equal(t, !tt.want, IsFalse(output))
		})
	}
}
