package services_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukex/relay/pkg/checkpoint"
	"github.com/dukex/relay/pkg/engine"
	"github.com/dukex/relay/pkg/events"
	"github.com/dukex/relay/pkg/executors"
	"github.com/dukex/relay/pkg/functions"
	"github.com/dukex/relay/pkg/mocks"
	"github.com/dukex/relay/pkg/models"
	"github.com/dukex/relay/pkg/persistence"
	"github.com/dukex/relay/pkg/persistence/file"
	"github.com/dukex/relay/pkg/recovery"
	"github.com/dukex/relay/pkg/registry"
	"github.com/dukex/relay/pkg/services"
	"github.com/dukex/relay/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store     persistence.Persistence
	events    *mocks.RecordingPublisher
	scenarios *services.Scenario
	service   *services.Execution
}

func newFixture(t *testing.T, opts ...services.ExecutionOption) *fixture {
	t.Helper()

	return newFixtureWithStore(t, file.NewPersistence(t.TempDir()), opts...)
}

func newFixtureWithStore(t *testing.T, store persistence.Persistence, opts ...services.ExecutionOption) *fixture {
	t.Helper()

	recorder := &mocks.RecordingPublisher{}

	reg := registry.NewRegistry(slog.Default())
	reg.Register(executors.NewTrigger())
	reg.Register(executors.NewCondition())
	reg.Register(executors.NewTransformer(functions.NewLibrary()))

	checkpoints := checkpoint.NewManager(slog.Default(), store.CheckpointRepository())
	coordinator := engine.NewCoordinator(slog.Default(), reg, store, checkpoints,
		engine.WithPublisher(recorder),
		engine.WithSleep(func(ctx context.Context, _ time.Duration) error { return ctx.Err() }),
	)

	opts = append([]services.ExecutionOption{services.WithEventPublisher(recorder)}, opts...)

	return &fixture{
		store:     store,
		events:    recorder,
		scenarios: services.NewScenario(store),
		service:   services.NewExecution(slog.Default(), store, coordinator, checkpoints, opts...),
	}
}

// convertScenario stores trigger -> convert(amount to number) -> tag.
func (f *fixture) convertScenario(t *testing.T, status models.ScenarioStatus) *models.Scenario {
	t.Helper()

	scenario := testutil.CreateTestScenario(testutil.WithStatus(models.ScenarioStatusDraft))
	trigger := testutil.CreateTestNode(scenario.ID, "start", models.TriggerConfig{
		Kind:           models.TriggerKindWebhook,
		WebhookEnabled: true,
		WebhookToken:   "s3cret",
	})
	convert := testutil.CreateTestNode(scenario.ID, "amount", models.TransformerConfig{
		Essential:   true,
		Conversions: []models.Conversion{{Field: "amount", Type: "number"}},
	}, testutil.WithDependsOn("start"), testutil.WithPosition(1),
		testutil.WithMappings(models.InputMapping{Target: "amount", Source: "start.amount"}))
	convert.Operation = models.OperationConvert

	tag := testutil.CreateTestNode(scenario.ID, "tag", models.TransformerConfig{
		StaticInputs: map[string]any{"source": "relay"},
	}, testutil.WithDependsOn("amount"), testutil.WithPosition(2))
	tag.Operation = models.OperationFilter

	_, err := f.scenarios.Save(t.Context(), &services.Definition{Scenario: scenario, Nodes: []*models.Node{trigger, convert, tag}})
	require.NoError(t, err)

	if status == models.ScenarioStatusActive {
		_, err = f.scenarios.Activate(t.Context(), scenario.ID)
		require.NoError(t, err)
	}

	return scenario
}

func TestExecution_Trigger(t *testing.T) {
	f := newFixture(t)
	scenario := f.convertScenario(t, models.ScenarioStatusDraft)

	_, err := f.service.Trigger(t.Context(), services.TriggerRequest{Type: models.TriggerTypeManual})
	assert.True(t, services.IsValidationError(err))

	_, err = f.service.Trigger(t.Context(), services.TriggerRequest{ScenarioID: scenario.ID, Type: models.TriggerTypeRecovery})
	assert.True(t, services.IsValidationError(err), "recovery runs are created by Resume only")

	_, err = f.service.Trigger(t.Context(), services.TriggerRequest{ScenarioID: scenario.ID, Type: models.TriggerTypeScheduled})
	assert.ErrorIs(t, err, services.ErrScenarioNotActive)

	_, err = f.service.Trigger(t.Context(), services.TriggerRequest{ScenarioID: "missing", Type: models.TriggerTypeManual})
	assert.ErrorIs(t, err, services.ErrScenarioNotFound)

	execution, err := f.service.Trigger(t.Context(), services.TriggerRequest{
		ScenarioID: scenario.ID,
		Type:       models.TriggerTypeManual,
		Data:       map[string]any{"amount": "12.5"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusRunning, execution.Status)
	assert.Equal(t, models.DefaultRetryCount, execution.MaxRetries)

	active, err := f.service.ListActive(t.Context())
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, execution.ID, active[0].ID)
}

func TestExecution_ExecuteCompletes(t *testing.T) {
	f := newFixture(t)
	scenario := f.convertScenario(t, models.ScenarioStatusActive)

	execution, err := f.service.Execute(t.Context(), services.TriggerRequest{
		ScenarioID: scenario.ID,
		Type:       models.TriggerTypeManual,
		Data:       map[string]any{"amount": "12.5"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)

	result, ok := execution.NodeResult("amount")
	require.True(t, ok)
	assert.InDelta(t, 12.5, result.Output["amount"], 0.0001)

	stored, err := f.service.Get(t.Context(), execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, stored.Status)

	// Running a finished execution again is a no-op.
	again, err := f.service.Run(t.Context(), execution.ID)
	require.NoError(t, err)
	assert.Equal(t, execution.EndTime.Unix(), again.EndTime.Unix())

	listed, err := f.service.ListByScenario(t.Context(), scenario.ID, 10)
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	active, err := f.service.ListActive(t.Context())
	require.NoError(t, err)
	assert.Empty(t, active)
}

type heldLocker struct{}

func (heldLocker) TryLock(context.Context, string, time.Duration) (func(context.Context) error, error) {
	return nil, errors.New("lock is held by another owner")
}

func TestExecution_RunRespectsLock(t *testing.T) {
	f := newFixture(t, services.WithLocker(heldLocker{}))
	scenario := f.convertScenario(t, models.ScenarioStatusActive)

	execution, err := f.service.Trigger(t.Context(), services.TriggerRequest{ScenarioID: scenario.ID, Type: models.TriggerTypeManual})
	require.NoError(t, err)

	_, err = f.service.Run(t.Context(), execution.ID)
	assert.ErrorIs(t, err, services.ErrExecutionLocked)
	assert.True(t, services.IsConflictError(err))
}

func TestExecution_Cancel(t *testing.T) {
	f := newFixture(t)
	scenario := f.convertScenario(t, models.ScenarioStatusActive)

	execution, err := f.service.Trigger(t.Context(), services.TriggerRequest{ScenarioID: scenario.ID, Type: models.TriggerTypeManual})
	require.NoError(t, err)

	require.NoError(t, f.service.Cancel(t.Context(), execution.ID))

	finished, err := f.service.Run(t.Context(), execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, finished.Status)
	assert.Equal(t, recovery.ErrCancelled.Error(), finished.Error)
	assert.Equal(t, 1, f.events.Count(events.ExecutionCancelledEvent))

	assert.ErrorIs(t, f.service.Cancel(t.Context(), execution.ID), services.ErrExecutionNotRunning)
}

func TestExecution_CancelAfterFinishLeavesRecordIntact(t *testing.T) {
	f := newFixture(t)
	scenario := f.convertScenario(t, models.ScenarioStatusActive)

	finished, err := f.service.Execute(t.Context(), services.TriggerRequest{
		ScenarioID: scenario.ID,
		Type:       models.TriggerTypeManual,
		Data:       map[string]any{"amount": "3"},
	})
	require.NoError(t, err)
	require.Equal(t, models.ExecutionStatusCompleted, finished.Status)

	assert.ErrorIs(t, f.service.Cancel(t.Context(), finished.ID), services.ErrExecutionNotRunning)

	stored, err := f.service.Get(t.Context(), finished.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, stored.Status)
	assert.NotNil(t, stored.EndTime)
	assert.Len(t, stored.NodeResults, 3)
	assert.False(t, stored.CancelRequested)
}

// cancellingStore files a cancel request from "another process" right before
// the owner writes its copy of the execution for nodeID.
type cancellingStore struct {
	persistence.Persistence
	executions *cancelBeforeSave
}

func (s *cancellingStore) ExecutionRepository() persistence.ExecutionRepository {
	return s.executions
}

type cancelBeforeSave struct {
	persistence.ExecutionRepository
	nodeID string
	once   sync.Once
}

func (r *cancelBeforeSave) Save(ctx context.Context, execution *models.Execution) error {
	if execution.CurrentNodeID == r.nodeID {
		r.once.Do(func() {
			_ = r.ExecutionRepository.RequestCancel(ctx, execution.ID)
		})
	}

	return r.ExecutionRepository.Save(ctx, execution)
}

func TestExecution_RemoteCancelSurvivesOwnerSave(t *testing.T) {
	base := file.NewPersistence(t.TempDir())
	store := &cancellingStore{
		Persistence: base,
		executions:  &cancelBeforeSave{ExecutionRepository: base.ExecutionRepository(), nodeID: "amount"},
	}

	f := newFixtureWithStore(t, store)
	scenario := f.convertScenario(t, models.ScenarioStatusActive)

	finished, err := f.service.Execute(t.Context(), services.TriggerRequest{
		ScenarioID: scenario.ID,
		Type:       models.TriggerTypeManual,
		Data:       map[string]any{"amount": "3"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, finished.Status)
	assert.Equal(t, recovery.ErrCancelled.Error(), finished.Error)

	_, ran := finished.NodeResult("tag")
	assert.False(t, ran)

	stored, err := base.ExecutionRepository().GetByID(t.Context(), finished.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, stored.Status)
	assert.True(t, stored.CancelRequested)
}

func TestExecution_Resume(t *testing.T) {
	f := newFixture(t)
	scenario := f.convertScenario(t, models.ScenarioStatusActive)

	original, err := f.service.Execute(t.Context(), services.TriggerRequest{
		ScenarioID: scenario.ID,
		Type:       models.TriggerTypeManual,
		Data:       map[string]any{"amount": "not a number"},
	})
	require.NoError(t, err)
	require.Equal(t, models.ExecutionStatusFailed, original.Status)

	_, err = f.service.Resume(t.Context(), services.ResumeRequest{ExecutionID: original.ID, StartFromNodeID: "ghost"})
	assert.True(t, services.IsValidationError(err))

	recoveryExec, err := f.service.Resume(t.Context(), services.ResumeRequest{
		ExecutionID:    original.ID,
		SkipFailedNode: true,
	})
	require.NoError(t, err)

	assert.True(t, recoveryExec.IsRecovery)
	assert.Equal(t, models.TriggerTypeRecovery, recoveryExec.Trigger.Type)
	assert.Equal(t, original.ID, recoveryExec.OriginalExecutionID)
	assert.Equal(t, 1, f.events.Count(events.ExecutionResumedEvent))

	stored, err := f.service.Get(t.Context(), original.ID)
	require.NoError(t, err)
	assert.Equal(t, recoveryExec.ID, stored.RecoveryExecutionID)
	assert.Equal(t, models.ExecutionStatusFailed, stored.Status)
	assert.Equal(t, original.Error, stored.Error)

	finished, err := f.service.Run(t.Context(), recoveryExec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, finished.Status)

	skipped, ok := finished.NodeResult("amount")
	require.True(t, ok)
	assert.Equal(t, models.NodeStatusSkipped, skipped.Status)

	tag, ok := finished.NodeResult("tag")
	require.True(t, ok)
	assert.Equal(t, models.NodeStatusCompleted, tag.Status)
	assert.Equal(t, "relay", tag.Output["source"])
}

func TestExecution_ResumeRunningExecution(t *testing.T) {
	f := newFixture(t)
	scenario := f.convertScenario(t, models.ScenarioStatusActive)

	execution, err := f.service.Trigger(t.Context(), services.TriggerRequest{ScenarioID: scenario.ID, Type: models.TriggerTypeManual})
	require.NoError(t, err)

	_, err = f.service.Resume(t.Context(), services.ResumeRequest{ExecutionID: execution.ID})
	assert.ErrorIs(t, err, services.ErrExecutionRunning)
}

func TestExecution_TriggerWebhook(t *testing.T) {
	f := newFixture(t)
	scenario := f.convertScenario(t, models.ScenarioStatusActive)

	_, err := f.service.TriggerWebhook(t.Context(), services.WebhookRequest{ScenarioID: scenario.ID, NodeID: "start", Token: "wrong"})
	assert.ErrorIs(t, err, services.ErrInvalidWebhookToken)
	assert.True(t, services.IsUnauthorizedError(err))

	_, err = f.service.TriggerWebhook(t.Context(), services.WebhookRequest{ScenarioID: scenario.ID, NodeID: "amount", Token: "s3cret"})
	assert.ErrorIs(t, err, services.ErrNotTriggerNode)

	execution, err := f.service.TriggerWebhook(t.Context(), services.WebhookRequest{
		ScenarioID: scenario.ID,
		NodeID:     "start",
		Token:      "s3cret",
		Payload:    map[string]any{"amount": "3"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.TriggerTypeWebhook, execution.Trigger.Type)
	assert.Equal(t, "start", execution.Trigger.NodeID)
	assert.Equal(t, "3", execution.Trigger.Data["amount"])
}
