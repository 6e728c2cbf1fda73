// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"time"

	"github.com/dukex/relay/pkg/models"
	"github.com/google/uuid"
)

// CreateTestScenario creates an active scenario with default values that can be overridden.
func CreateTestScenario(overrides ...func(*models.Scenario)) *models.Scenario {
	scenario := &models.Scenario{
		ID:        uuid.New().String(),
		Name:      "Test Scenario",
		Status:    models.ScenarioStatusActive,
		Owner:     "test-user",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	for _, override := range overrides {
		override(scenario)
	}

	return scenario
}

// WithErrorHandling sets the scenario recovery policy.
func WithErrorHandling(policy models.ErrorHandling) func(*models.Scenario) {
	return func(s *models.Scenario) {
		s.ErrorHandling = policy
	}
}

// WithStatus sets the scenario status.
func WithStatus(status models.ScenarioStatus) func(*models.Scenario) {
	return func(s *models.Scenario) {
		s.Status = status
	}
}

// CreateTestNode creates a node of the scenario. The node type follows config.
func CreateTestNode(scenarioID, id string, config models.NodeConfig, overrides ...func(*models.Node)) *models.Node {
	node := &models.Node{
		ID:         id,
		ScenarioID: scenarioID,
		Type:       config.NodeType(),
		Name:       id,
		Config:     config,
	}

	for _, override := range overrides {
		override(node)
	}

	return node
}

// TriggerNode creates a manual trigger node.
func TriggerNode(scenarioID, id string) *models.Node {
	return CreateTestNode(scenarioID, id, models.TriggerConfig{Kind: models.TriggerKindManual})
}

// ActionNode creates an action node against a test app and connection.
func ActionNode(scenarioID, id string, overrides ...func(*models.Node)) *models.Node {
	config := models.ActionConfig{AppID: "test-app", ActionID: "test-action", ConnectionID: "test-connection"}

	return CreateTestNode(scenarioID, id, config, overrides...)
}

// ConditionNode creates a condition node with a single clause.
func ConditionNode(scenarioID, id, field, operator string, value any, overrides ...func(*models.Node)) *models.Node {
	config := models.ConditionConfig{
		Clauses: []models.ConditionClause{{Field: field, Operator: operator, Value: value}},
	}

	return CreateTestNode(scenarioID, id, config, overrides...)
}

// WithDependsOn sets the node dependencies.
func WithDependsOn(ids ...string) func(*models.Node) {
	return func(n *models.Node) {
		n.DependsOn = ids
	}
}

// WithPosition sets the node position.
func WithPosition(position int) func(*models.Node) {
	return func(n *models.Node) {
		n.Position = position
	}
}

// WithName sets the node name.
func WithName(name string) func(*models.Node) {
	return func(n *models.Node) {
		n.Name = name
	}
}

// WithMappings sets the node input mappings.
func WithMappings(mappings ...models.InputMapping) func(*models.Node) {
	return func(n *models.Node) {
		n.InputMappings = mappings
	}
}

// WithEssential marks an action node essential.
func WithEssential() func(*models.Node) {
	return func(n *models.Node) {
		if cfg, ok := n.Config.(models.ActionConfig); ok {
			cfg.Essential = true
			n.Config = cfg
		}
	}
}

// WithFallback sets the fallback value of an action node.
func WithFallback(value any) func(*models.Node) {
	return func(n *models.Node) {
		if cfg, ok := n.Config.(models.ActionConfig); ok {
			cfg.FallbackValue = value
			n.Config = cfg
		}
	}
}

// CreateTestExecution creates a running execution of scenario started by a manual trigger.
func CreateTestExecution(scenario *models.Scenario, data map[string]any) *models.Execution {
	return &models.Execution{
		ID:         uuid.New().String(),
		ScenarioID: scenario.ID,
		Owner:      scenario.Owner,
		Status:     models.ExecutionStatusRunning,
		Trigger:    models.Trigger{Type: models.TriggerTypeManual, Data: data},
		StartTime:  time.Now(),
		MaxRetries: scenario.ErrorHandling.MaxRetries(),
	}
}
