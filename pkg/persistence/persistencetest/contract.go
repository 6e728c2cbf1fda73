// Package persistencetest holds the behavior every persistence implementation must satisfy.
package persistencetest

import (
	"testing"
	"time"

	"github.com/dukex/relay/pkg/models"
	"github.com/dukex/relay/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises p against the shared repository contract. Each subtest uses
// its own ids so a single store can be reused.
func Run(t *testing.T, p persistence.Persistence) {
	t.Helper()

	t.Run("HealthCheck", func(t *testing.T) {
		require.NoError(t, p.HealthCheck(t.Context()))
	})
	t.Run("Scenarios", func(t *testing.T) { testScenarios(t, p) })
	t.Run("Nodes", func(t *testing.T) { testNodes(t, p) })
	t.Run("AppsAndConnections", func(t *testing.T) { testAppsAndConnections(t, p) })
	t.Run("Executions", func(t *testing.T) { testExecutions(t, p) })
	t.Run("Checkpoints", func(t *testing.T) { testCheckpoints(t, p) })
}

func testScenarios(t *testing.T, p persistence.Persistence) {
	repo := p.ScenarioRepository()
	ctx := t.Context()

	_, err := repo.GetByID(ctx, "missing-scenario")
	require.Error(t, err)
	assert.True(t, persistence.IsScenarioNotFound(err))

	scenario := &models.Scenario{
		ID:     "contract-scenario",
		Name:   "Contract",
		Status: models.ScenarioStatusActive,
		Owner:  "user-1",
		ErrorHandling: models.ErrorHandling{
			RetryCount:    2,
			NotifyOnError: true,
			Retry:         &models.RetryPolicy{Strategy: models.RetryStrategyFixed, InitialDelay: time.Second},
		},
	}

	require.NoError(t, repo.Save(ctx, scenario))
	assert.False(t, scenario.CreatedAt.IsZero())

	got, err := repo.GetByID(ctx, scenario.ID)
	require.NoError(t, err)
	assert.Equal(t, "Contract", got.Name)
	assert.Equal(t, 2, got.ErrorHandling.RetryCount)
	require.NotNil(t, got.ErrorHandling.Retry)
	assert.Equal(t, time.Second, got.ErrorHandling.Retry.InitialDelay)

	got.Status = models.ScenarioStatusError
	got.LastRun = &models.LastRun{Time: time.Now().UTC(), Success: false, Error: "boom", ExecutionID: "e1"}
	require.NoError(t, repo.Save(ctx, got))

	got, err = repo.GetByID(ctx, scenario.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScenarioStatusError, got.Status)
	require.NotNil(t, got.LastRun)
	assert.Equal(t, "boom", got.LastRun.Error)

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, all)

	require.NoError(t, repo.Delete(ctx, scenario.ID))

	_, err = repo.GetByID(ctx, scenario.ID)
	assert.True(t, persistence.IsScenarioNotFound(err))
}

func testNodes(t *testing.T, p persistence.Persistence) {
	repo := p.NodeRepository()
	ctx := t.Context()

	nodes := []*models.Node{
		{
			ID: "b", ScenarioID: "contract-nodes", Type: models.NodeTypeCondition, Position: 2, DependsOn: []string{"a"},
			Config: models.ConditionConfig{Clauses: []models.ConditionClause{{Field: "ok", Operator: "eq", Value: true}}},
		},
		{
			ID: "a", ScenarioID: "contract-nodes", Type: models.NodeTypeTrigger, Position: 1,
			Config: models.TriggerConfig{Kind: models.TriggerKindWebhook, WebhookToken: "t"},
		},
		{
			ID: "c", ScenarioID: "contract-nodes", Type: models.NodeTypeAction, Position: 2, DependsOn: []string{"b"},
			InputMappings: []models.InputMapping{{Target: "email", Source: "a.email"}},
			Config:        models.ActionConfig{AppID: "crm", ActionID: "create", ConnectionID: "conn", Essential: true},
		},
	}

	for _, node := range nodes {
		require.NoError(t, repo.Save(ctx, node))
	}

	got, err := repo.GetByScenario(ctx, "contract-nodes")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{got[0].ID, got[1].ID, got[2].ID})

	action, ok := got[2].Config.(models.ActionConfig)
	require.True(t, ok, "config decoded as %T", got[2].Config)
	assert.True(t, action.Essential)
	assert.Equal(t, "a.email", got[2].InputMappings[0].Source)

	trigger, err := repo.GetByID(ctx, "contract-nodes", "a")
	require.NoError(t, err)
	assert.Equal(t, models.TriggerKindWebhook, trigger.Config.(models.TriggerConfig).Kind)

	require.NoError(t, repo.Delete(ctx, "contract-nodes", "c"))

	_, err = repo.GetByID(ctx, "contract-nodes", "c")
	assert.True(t, persistence.IsNodeNotFound(err))

	empty, err := repo.GetByScenario(ctx, "contract-no-nodes")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testAppsAndConnections(t *testing.T, p persistence.Persistence) {
	ctx := t.Context()

	app := &models.App{
		ID:   "contract-crm",
		Name: "CRM",
		Actions: []models.ActionDefinition{
			{ID: "create", Method: "POST", URL: "https://crm.example.com/contacts"},
		},
	}
	require.NoError(t, p.AppRepository().Save(ctx, app))

	gotApp, err := p.AppRepository().GetByID(ctx, app.ID)
	require.NoError(t, err)

	action, ok := gotApp.Action("create")
	require.True(t, ok)
	assert.Equal(t, "POST", action.Method)

	_, err = p.AppRepository().GetByID(ctx, "contract-missing-app")
	assert.True(t, persistence.IsAppNotFound(err))

	conn := &models.Connection{
		ID:                   "contract-conn",
		AppID:                app.ID,
		Status:               models.ConnectionStatusActive,
		EncryptedCredentials: "v1:abc",
	}
	require.NoError(t, p.ConnectionRepository().Save(ctx, conn))

	gotConn, err := p.ConnectionRepository().GetByID(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, "v1:abc", gotConn.EncryptedCredentials)

	require.NoError(t, p.ConnectionRepository().Delete(ctx, conn.ID))

	_, err = p.ConnectionRepository().GetByID(ctx, conn.ID)
	assert.True(t, persistence.IsConnectionNotFound(err))
}

func testExecutions(t *testing.T, p persistence.Persistence) {
	repo := p.ExecutionRepository()
	ctx := t.Context()
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	for i, status := range []models.ExecutionStatus{
		models.ExecutionStatusCompleted,
		models.ExecutionStatusRunning,
		models.ExecutionStatusFailed,
	} {
		execution := &models.Execution{
			ID:         "contract-exec-" + string(rune('a'+i)),
			ScenarioID: "contract-exec-scenario",
			Status:     status,
			Trigger:    models.Trigger{Type: models.TriggerTypeManual, Data: map[string]any{"n": float64(i)}},
			StartTime:  base.Add(time.Duration(i) * time.Minute),
		}
		execution.SetNodeResult(models.NodeResult{NodeID: "a", Status: models.NodeStatusCompleted, Output: map[string]any{"ok": true}})

		require.NoError(t, repo.Save(ctx, execution))
	}

	got, err := repo.GetByID(ctx, "contract-exec-b")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusRunning, got.Status)
	assert.Equal(t, 1.0, got.Trigger.Data["n"])
	require.Len(t, got.NodeResults, 1)
	assert.Equal(t, true, got.NodeResults[0].Output["ok"])

	recent, err := repo.ListByScenario(ctx, "contract-exec-scenario", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "contract-exec-c", recent[0].ID)
	assert.Equal(t, "contract-exec-b", recent[1].ID)

	running, err := repo.ListByStatus(ctx, models.ExecutionStatusRunning)
	require.NoError(t, err)

	ids := make([]string, 0, len(running))
	for _, e := range running {
		ids = append(ids, e.ID)
	}

	assert.Contains(t, ids, "contract-exec-b")
	assert.NotContains(t, ids, "contract-exec-a")

	// status changes move the execution between status lists
	got.Status = models.ExecutionStatusCompleted
	require.NoError(t, repo.Save(ctx, got))

	running, err = repo.ListByStatus(ctx, models.ExecutionStatusRunning)
	require.NoError(t, err)

	for _, e := range running {
		assert.NotEqual(t, "contract-exec-b", e.ID)
	}

	_, err = repo.GetByID(ctx, "contract-exec-missing")
	assert.True(t, persistence.IsExecutionNotFound(err))

	testCancelRequests(t, repo, base)
}

func testCancelRequests(t *testing.T, repo persistence.ExecutionRepository, started time.Time) {
	ctx := t.Context()

	execution := &models.Execution{
		ID:         "contract-exec-cancel",
		ScenarioID: "contract-exec-scenario",
		Status:     models.ExecutionStatusRunning,
		Trigger:    models.Trigger{Type: models.TriggerTypeManual},
		StartTime:  started,
	}
	require.NoError(t, repo.Save(ctx, execution))

	require.NoError(t, repo.RequestCancel(ctx, execution.ID))

	got, err := repo.GetByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.True(t, got.CancelRequested)
	assert.Equal(t, models.ExecutionStatusRunning, got.Status)

	// a stale copy written by the owner keeps the stored flag
	execution.Progress = 50
	require.NoError(t, repo.Save(ctx, execution))

	got, err = repo.GetByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.True(t, got.CancelRequested)
	assert.Equal(t, 50.0, got.Progress)

	finished := started.Add(time.Minute)
	execution.Status = models.ExecutionStatusFailed
	execution.EndTime = &finished
	require.NoError(t, repo.Save(ctx, execution))

	err = repo.RequestCancel(ctx, execution.ID)
	assert.ErrorIs(t, err, persistence.ErrExecutionFinished)

	got, err = repo.GetByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, got.Status)
	require.NotNil(t, got.EndTime)

	err = repo.RequestCancel(ctx, "contract-exec-missing")
	assert.True(t, persistence.IsExecutionNotFound(err))
}

func testCheckpoints(t *testing.T, p persistence.Persistence) {
	repo := p.CheckpointRepository()
	ctx := t.Context()
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"contract-cp-2", "contract-cp-1"} {
		checkpoint := &models.Checkpoint{
			ID:          id,
			ExecutionID: "contract-cp-exec",
			ScenarioID:  "s",
			Reason:      models.CheckpointReasonRetry,
			Snapshot: models.Snapshot{
				CompletedNodes: []string{"a"},
				NodeOutputs:    map[string]map[string]any{"a": {"v": "x"}},
				Timestamp:      base,
			},
			CreatedAt: base.Add(time.Duration(1-i) * time.Second),
		}

		require.NoError(t, repo.Save(ctx, checkpoint))
	}

	err := repo.Save(ctx, &models.Checkpoint{ID: "contract-cp-1", ExecutionID: "contract-cp-exec"})
	assert.ErrorIs(t, err, persistence.ErrCheckpointExists)

	list, err := repo.ListByExecution(ctx, "contract-cp-exec")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "contract-cp-1", list[0].ID)
	assert.Equal(t, "contract-cp-2", list[1].ID)
	assert.Equal(t, "x", list[0].Snapshot.NodeOutputs["a"]["v"])

	_, err = repo.GetByID(ctx, "contract-cp-missing")
	assert.True(t, persistence.IsCheckpointNotFound(err))
}
