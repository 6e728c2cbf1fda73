package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukex/relay/pkg/checkpoint"
	"github.com/dukex/relay/pkg/engine"
	"github.com/dukex/relay/pkg/events"
	"github.com/dukex/relay/pkg/executors"
	"github.com/dukex/relay/pkg/functions"
	"github.com/dukex/relay/pkg/mocks"
	"github.com/dukex/relay/pkg/models"
	"github.com/dukex/relay/pkg/persistence/file"
	"github.com/dukex/relay/pkg/registry"
	"github.com/dukex/relay/pkg/services"
	"github.com/dukex/relay/pkg/testutil"
	"github.com/dukex/relay/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testAPI struct {
	app        *fiber.App
	scenarios  *services.Scenario
	executions *services.Execution
	bus        *mocks.RecordingPublisher
}

func setupTestApp(t *testing.T, dispatch bool) *testAPI {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	bus := &mocks.RecordingPublisher{}

	reg := registry.NewRegistry(slog.Default())
	reg.Register(executors.NewTrigger())
	reg.Register(executors.NewTransformer(functions.NewLibrary()))

	checkpoints := checkpoint.NewManager(slog.Default(), store.CheckpointRepository())
	coordinator := engine.NewCoordinator(slog.Default(), reg, store, checkpoints,
		engine.WithSleep(func(ctx context.Context, _ time.Duration) error { return ctx.Err() }),
	)

	scenarios := services.NewScenario(store)
	executions := services.NewExecution(slog.Default(), store, coordinator, checkpoints)

	var dispatcher *services.Dispatcher
	if dispatch {
		dispatcher = services.NewDispatcher(bus)
	}

	handlers := web.NewAPIHandlers(scenarios, executions, dispatcher, validator.New(validator.WithRequiredStructEnabled()), reg)

	app := fiber.New()
	handlers.Register(app)

	return &testAPI{app: app, scenarios: scenarios, executions: executions, bus: bus}
}

func (a *testAPI) do(t *testing.T, method, path string, body any, headers ...string) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := a.app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, data
}

// webhookDefinition is trigger(webhook) -> tag(static source).
func webhookDefinition() web.SaveScenarioRequest {
	scenario := testutil.CreateTestScenario(testutil.WithStatus(""))
	trigger := testutil.CreateTestNode(scenario.ID, "start", models.TriggerConfig{
		Kind:           models.TriggerKindWebhook,
		WebhookEnabled: true,
		WebhookToken:   "t0ken",
	})
	tag := testutil.CreateTestNode(scenario.ID, "tag", models.TransformerConfig{
		StaticInputs: map[string]any{"source": "relay"},
	}, testutil.WithDependsOn("start"), testutil.WithPosition(1),
		testutil.WithMappings(models.InputMapping{Target: "id", Source: "start.id"}))
	tag.Operation = models.OperationFilter

	return web.SaveScenarioRequest{Scenario: scenario, Nodes: []*models.Node{trigger, tag}}
}

func TestAPIHandlers_ScenarioLifecycle(t *testing.T) {
	api := setupTestApp(t, false)
	req := webhookDefinition()
	id := req.Scenario.ID

	status, body := api.do(t, http.MethodPut, "/scenarios/"+id, req)
	require.Equal(t, http.StatusOK, status, string(body))

	var saved services.Definition
	require.NoError(t, json.Unmarshal(body, &saved))
	assert.Equal(t, models.ScenarioStatusDraft, saved.Scenario.Status)
	assert.Equal(t, []string{"start", "tag"}, saved.Scenario.NodeIDs)

	status, body = api.do(t, http.MethodGet, "/scenarios/"+id, nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &saved))
	assert.Len(t, saved.Nodes, 2)

	status, _ = api.do(t, http.MethodPost, "/scenarios/"+id+"/activate", nil)
	assert.Equal(t, http.StatusOK, status)

	status, body = api.do(t, http.MethodPut, "/scenarios/"+id, req)
	assert.Equal(t, http.StatusConflict, status, string(body))

	status, _ = api.do(t, http.MethodPost, "/scenarios/"+id+"/pause", nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = api.do(t, http.MethodGet, "/scenarios/missing", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPIHandlers_SaveScenarioValidation(t *testing.T) {
	api := setupTestApp(t, false)

	req := webhookDefinition()
	req.Nodes = req.Nodes[1:]

	status, body := api.do(t, http.MethodPut, "/scenarios/"+req.Scenario.ID, req)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(body), "trigger")

	status, _ = api.do(t, http.MethodPut, "/scenarios/other-id", webhookDefinition())
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = api.do(t, http.MethodPut, "/scenarios/x", map[string]any{"nodes": []any{}})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPIHandlers_ManualExecutionRunsInline(t *testing.T) {
	api := setupTestApp(t, false)
	req := webhookDefinition()

	status, _ := api.do(t, http.MethodPut, "/scenarios/"+req.Scenario.ID, req)
	require.Equal(t, http.StatusOK, status)

	status, body := api.do(t, http.MethodPost, "/scenarios/"+req.Scenario.ID+"/executions",
		web.TriggerExecutionRequest{Data: map[string]any{"id": "c-1"}})
	require.Equal(t, http.StatusOK, status, string(body))

	var execution models.Execution
	require.NoError(t, json.Unmarshal(body, &execution))
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.InDelta(t, 100.0, execution.Progress, 0.001)

	status, body = api.do(t, http.MethodGet, "/executions/"+execution.ID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"status":"completed"`)

	status, body = api.do(t, http.MethodGet, "/scenarios/"+req.Scenario.ID+"/executions?limit=10", nil)
	require.Equal(t, http.StatusOK, status)

	var list web.ExecutionResponse
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Equal(t, 1, list.TotalCount)

	status, body = api.do(t, http.MethodGet, "/scenarios/"+req.Scenario.ID+"/performance", nil)
	require.Equal(t, http.StatusOK, status)

	var performance services.ScenarioPerformance
	require.NoError(t, json.Unmarshal(body, &performance))
	assert.Equal(t, 1, performance.ExecutionCount)
	assert.InDelta(t, 1.0, performance.SuccessRate, 0.001)

	status, _ = api.do(t, http.MethodGet, "/scenarios/"+req.Scenario.ID+"/executions?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPIHandlers_ManualExecutionDispatched(t *testing.T) {
	api := setupTestApp(t, true)
	req := webhookDefinition()

	status, _ := api.do(t, http.MethodPut, "/scenarios/"+req.Scenario.ID, req)
	require.Equal(t, http.StatusOK, status)

	status, body := api.do(t, http.MethodPost, "/scenarios/"+req.Scenario.ID+"/executions", nil)
	require.Equal(t, http.StatusAccepted, status, string(body))

	var execution models.Execution
	require.NoError(t, json.Unmarshal(body, &execution))
	assert.Equal(t, models.ExecutionStatusRunning, execution.Status)

	published := api.bus.Events()
	require.Len(t, published, 1)

	requested, ok := published[0].(events.ExecutionRequested)
	require.True(t, ok)
	assert.Equal(t, execution.ID, requested.ExecutionID)

	status, body = api.do(t, http.MethodGet, "/executions/active", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), execution.ID)

	status, _ = api.do(t, http.MethodPost, "/executions/"+execution.ID+"/cancel", nil)
	assert.Equal(t, http.StatusAccepted, status)
}

func TestAPIHandlers_Webhook(t *testing.T) {
	api := setupTestApp(t, false)
	req := webhookDefinition()
	id := req.Scenario.ID

	status, _ := api.do(t, http.MethodPut, "/scenarios/"+id, req)
	require.Equal(t, http.StatusOK, status)

	payload := map[string]any{"id": "c-9"}

	status, _ = api.do(t, http.MethodPost, "/webhooks/"+id+"/start", payload, "X-Webhook-Token", "t0ken")
	assert.Equal(t, http.StatusConflict, status, "scenario is still a draft")

	status, _ = api.do(t, http.MethodPost, "/scenarios/"+id+"/activate", nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = api.do(t, http.MethodPost, "/webhooks/"+id+"/start", payload, "X-Webhook-Token", "wrong")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = api.do(t, http.MethodPost, "/webhooks/"+id+"/tag?token=t0ken", payload)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := api.do(t, http.MethodPost, "/webhooks/"+id+"/start?token=t0ken", payload)
	require.Equal(t, http.StatusOK, status, string(body))

	var execution models.Execution
	require.NoError(t, json.Unmarshal(body, &execution))
	assert.Equal(t, models.TriggerTypeWebhook, execution.Trigger.Type)
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
}

func TestAPIHandlers_ResumeAndCancelFinished(t *testing.T) {
	api := setupTestApp(t, false)
	req := webhookDefinition()

	status, _ := api.do(t, http.MethodPut, "/scenarios/"+req.Scenario.ID, req)
	require.Equal(t, http.StatusOK, status)

	status, body := api.do(t, http.MethodPost, "/scenarios/"+req.Scenario.ID+"/executions", nil)
	require.Equal(t, http.StatusOK, status)

	var execution models.Execution
	require.NoError(t, json.Unmarshal(body, &execution))

	status, _ = api.do(t, http.MethodPost, "/executions/"+execution.ID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, status)

	// Checkpoints are only taken on failures, so there is nothing to resume from.
	status, _ = api.do(t, http.MethodPost, "/executions/"+execution.ID+"/resume", web.ResumeExecutionRequest{})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = api.do(t, http.MethodPost, "/executions/missing/resume", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	api := setupTestApp(t, false)

	status, body := api.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"status":"healthy"`)
}
