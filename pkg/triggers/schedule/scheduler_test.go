package schedule

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/dukex/relay/pkg/models"
	"github.com/dukex/relay/pkg/persistence/file"
	"github.com/dukex/relay/pkg/protocol"
	"github.com/dukex/relay/pkg/services"
	"github.com/dukex/relay/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingStarter struct {
	mu       sync.Mutex
	requests []services.TriggerRequest
}

func (r *recordingStarter) start(_ context.Context, req services.TriggerRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.requests = append(r.requests, req)

	return nil
}

type stubPoller struct {
	output map[string]any
	err    error
	nodes  []*models.Node
}

func (p *stubPoller) Type() models.NodeType { return models.NodeTypeAction }

func (p *stubPoller) Execute(_ context.Context, node *models.Node, _ map[string]any, _ protocol.Env) (map[string]any, error) {
	p.nodes = append(p.nodes, node)

	return p.output, p.err
}

func setupScheduler(t *testing.T, poller protocol.NodeExecutor, triggers ...models.TriggerConfig) (*Scheduler, *services.Scenario, *recordingStarter, []*models.Scenario) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	scenarios := services.NewScenario(file.NewPersistence(t.TempDir()))
	starter := &recordingStarter{}

	var saved []*models.Scenario

	for _, trigger := range triggers {
		scenario := testutil.CreateTestScenario(testutil.WithStatus(""))
		nodes := []*models.Node{
			testutil.CreateTestNode(scenario.ID, "start", trigger),
			testutil.ActionNode(scenario.ID, "a", testutil.WithDependsOn("start")),
		}

		_, err := scenarios.Save(t.Context(), &services.Definition{Scenario: scenario, Nodes: nodes})
		require.NoError(t, err)

		activated, err := scenarios.Activate(t.Context(), scenario.ID)
		require.NoError(t, err)

		saved = append(saved, activated)
	}

	scheduler := NewScheduler(logger, scenarios, starter.start, poller)
	scheduler.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	return scheduler, scenarios, starter, saved
}

func TestScheduler_SyncRegistersTriggerJobs(t *testing.T) {
	scheduler, scenarios, _, saved := setupScheduler(t, &stubPoller{},
		models.TriggerConfig{Kind: models.TriggerKindScheduled, Schedule: "*/5 * * * *"},
		models.TriggerConfig{Kind: models.TriggerKindPolling, PollingEnabled: true, PollingInterval: 15},
		models.TriggerConfig{Kind: models.TriggerKindPolling, PollingEnabled: false, PollingInterval: 15},
		models.TriggerConfig{Kind: models.TriggerKindManual},
	)

	require.NoError(t, scheduler.Sync(t.Context()))
	assert.Equal(t, 2, scheduler.Jobs())
	assert.Len(t, scheduler.cron.Entries(), 2)

	// Syncing again keeps the same jobs.
	require.NoError(t, scheduler.Sync(t.Context()))
	assert.Len(t, scheduler.cron.Entries(), 2)

	_, err := scenarios.Pause(t.Context(), saved[0].ID)
	require.NoError(t, err)

	require.NoError(t, scheduler.Sync(t.Context()))
	assert.Equal(t, 1, scheduler.Jobs())
	assert.Len(t, scheduler.cron.Entries(), 1)
}

func TestScheduler_InvalidScheduleIsIgnored(t *testing.T) {
	scheduler, _, _, _ := setupScheduler(t, nil,
		models.TriggerConfig{Kind: models.TriggerKindScheduled, Schedule: "every tuesday"},
		models.TriggerConfig{Kind: models.TriggerKindPolling, PollingEnabled: true, PollingInterval: 5},
	)

	require.NoError(t, scheduler.Sync(t.Context()))
	assert.Equal(t, 0, scheduler.Jobs())
}

func TestScheduler_FireScheduled(t *testing.T) {
	scheduler, scenarios, starter, saved := setupScheduler(t, nil,
		models.TriggerConfig{Kind: models.TriggerKindScheduled, Schedule: "0 0 * * *"},
	)

	def, err := scenarios.GetDefinition(t.Context(), saved[0].ID)
	require.NoError(t, err)

	scheduler.fireScheduled(t.Context(), def.Scenario, triggerNode(t, def))

	require.Len(t, starter.requests, 1)
	req := starter.requests[0]
	assert.Equal(t, saved[0].ID, req.ScenarioID)
	assert.Equal(t, models.TriggerTypeScheduled, req.Type)
	assert.Equal(t, "start", req.NodeID)
	assert.Equal(t, "2026-01-02T03:04:05Z", req.Data["timestamp"])
}

func TestScheduler_FirePolling(t *testing.T) {
	trigger := models.TriggerConfig{
		Kind:            models.TriggerKindPolling,
		PollingEnabled:  true,
		PollingInterval: 1,
		AppID:           "crm",
		ActionID:        "list-contacts",
		ConnectionID:    "conn-1",
		ItemsPath:       "data.contacts",
	}

	tests := []struct {
		name     string
		output   map[string]any
		err      error
		expected int
	}{
		{
			name:     "items found",
			output:   map[string]any{"data": map[string]any{"contacts": []any{map[string]any{"id": 1}}}},
			expected: 1,
		},
		{
			name:   "empty items",
			output: map[string]any{"data": map[string]any{"contacts": []any{}}},
		},
		{
			name:   "missing path",
			output: map[string]any{"data": map[string]any{}},
		},
		{
			name: "action failure",
			err:  errors.New("connection refused"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			poller := &stubPoller{output: tt.output, err: tt.err}
			scheduler, scenarios, starter, saved := setupScheduler(t, poller, trigger)

			def, err := scenarios.GetDefinition(t.Context(), saved[0].ID)
			require.NoError(t, err)

			scheduler.firePolling(t.Context(), def.Scenario, triggerNode(t, def))

			require.Len(t, poller.nodes, 1)
			assert.Equal(t, models.ActionConfig{AppID: "crm", ActionID: "list-contacts", ConnectionID: "conn-1"}, poller.nodes[0].Config)

			require.Len(t, starter.requests, tt.expected)

			if tt.expected > 0 {
				assert.Equal(t, models.TriggerTypePolling, starter.requests[0].Type)
				assert.Len(t, starter.requests[0].Data["items"], 1)
			}
		})
	}
}

func TestScheduler_StartStop(t *testing.T) {
	scheduler, _, _, _ := setupScheduler(t, nil)

	scheduler.Start()

	ctx, cancel := context.WithTimeout(t.Context(), time.Second)
	defer cancel()

	scheduler.Stop(ctx)
}

func triggerNode(t *testing.T, def *services.Definition) *models.Node {
	t.Helper()

	for _, node := range def.Nodes {
		if node.Type == models.NodeTypeTrigger {
			return node
		}
	}

	t.Fatal("definition has no trigger node")

	return nil
}
