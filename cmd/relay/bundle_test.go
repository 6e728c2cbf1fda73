package main

import (
	"log/slog"
	"testing"

	"github.com/dukex/relay/pkg/cmd"
	"github.com/dukex/relay/pkg/credentials"
	"github.com/dukex/relay/pkg/models"
	"github.com/dukex/relay/pkg/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenarioYAML = `
scenario:
  id: welcome
  name: Welcome new contacts
  owner: ops
  status: active
  error_handling:
    retry_count: 2
nodes:
  - id: start
    type: trigger
    config:
      kind: manual
  - id: clean
    type: transformer
    operation: filter
    depends_on: [start]
    position: 1
    input_mappings:
      - target: email
        source: start.email
    config:
      static_inputs:
        greeting: "Hello {{ .email }}"
apps:
  - id: crm
    name: CRM
    actions:
      - id: create
        method: POST
        url: https://crm.example.com/contacts
connections:
  - id: crm-ops
    app_id: crm
    owner: ops
    credentials:
      api_key: abc123
`

func TestParseBundle(t *testing.T) {
	bundle, err := ParseBundle([]byte(scenarioYAML))
	require.NoError(t, err)

	assert.Equal(t, "welcome", bundle.Scenario.ID)
	assert.Equal(t, 2, bundle.Scenario.ErrorHandling.RetryCount)
	require.Len(t, bundle.Nodes, 2)
	assert.Equal(t, "welcome", bundle.Nodes[1].ScenarioID)
	assert.Equal(t, models.TriggerConfig{Kind: models.TriggerKindManual}, bundle.Nodes[0].Config)
	assert.IsType(t, models.TransformerConfig{}, bundle.Nodes[1].Config)
	require.Len(t, bundle.Connections, 1)
	assert.Equal(t, "abc123", bundle.Connections[0].Credentials["api_key"])

	_, err = ParseBundle([]byte("nodes: []"))
	assert.Error(t, err)
}

func TestBundle_ImportAndRun(t *testing.T) {
	stack, err := cmd.NewStack(t.Context(), slog.Default(), cmd.Config{
		ServiceName: "relay-test",
		DatabaseURL: t.TempDir(),
		EventBus:    "memory",
	})
	require.NoError(t, err)

	t.Cleanup(func() { _ = stack.Close(t.Context()) })

	bundle, err := ParseBundle([]byte(scenarioYAML))
	require.NoError(t, err)

	def, err := bundle.Import(t.Context(), stack.Persistence, stack.Credentials, stack.Scenarios)
	require.NoError(t, err)
	assert.Equal(t, models.ScenarioStatusDraft, def.Scenario.Status)

	conn, err := stack.Persistence.ConnectionRepository().GetByID(t.Context(), "crm-ops")
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionStatusActive, conn.Status)

	opened, err := credentials.Open(stack.Credentials, conn)
	require.NoError(t, err)
	assert.Equal(t, "abc123", opened["api_key"])

	execution, err := stack.Executions.Execute(t.Context(), services.TriggerRequest{
		ScenarioID: "welcome",
		Type:       models.TriggerTypeManual,
		Data:       map[string]any{"email": "ada@example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)

	// Importing again over an active scenario pauses it first.
	_, err = stack.Scenarios.Activate(t.Context(), "welcome")
	require.NoError(t, err)

	bundle, err = ParseBundle([]byte(scenarioYAML))
	require.NoError(t, err)

	_, err = bundle.Import(t.Context(), stack.Persistence, stack.Credentials, stack.Scenarios)
	assert.NoError(t, err)
}
