package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/relay/pkg/models"
	"github.com/dukex/relay/pkg/protocol"
	"github.com/dukex/relay/pkg/services"
	"github.com/robfig/cron/v3"
)

const defaultItemsPath = "items"

// Starter begins an execution for a fired trigger.
type Starter func(ctx context.Context, req services.TriggerRequest) error

// DispatchStarter creates the execution and hands it to the workers.
func DispatchStarter(executions *services.Execution, dispatcher *services.Dispatcher) Starter {
	return func(ctx context.Context, req services.TriggerRequest) error {
		execution, err := executions.Trigger(ctx, req)
		if err != nil {
			return err
		}

		return dispatcher.Dispatch(ctx, execution)
	}
}

type entry struct {
	id   cron.EntryID
	spec string
}

// Scheduler runs the scheduled and polling trigger nodes of active scenarios.
type Scheduler struct {
	scenarios *services.Scenario
	start     Starter
	poller    protocol.NodeExecutor
	cron      *cron.Cron
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	entries map[string]entry
}

// NewScheduler builds a scheduler. poller invokes the action behind polling
// triggers; when nil polling nodes are ignored.
func NewScheduler(logger *slog.Logger, scenarios *services.Scenario, start Starter, poller protocol.NodeExecutor) *Scheduler {
	logger = logger.With("module", "scheduler")

	cronLogger := cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))

	return &Scheduler{
		scenarios: scenarios,
		start:     start,
		poller:    poller,
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cronLogger),
			cron.Recover(cronLogger),
		)),
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]entry),
	}
}

func (s *Scheduler) Start() {
	s.logger.Info("Starting scheduler")
	s.cron.Start()
}

// Stop stops the cron runner and waits for running jobs or ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	s.logger.Info("Stopping scheduler")

	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// Sync reconciles the registered jobs with the trigger nodes of the currently
// active scenarios. Jobs whose schedule did not change keep running.
func (s *Scheduler) Sync(ctx context.Context) error {
	active, err := s.scenarios.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active scenarios: %w", err)
	}

	wanted := make(map[string]string)
	jobs := make(map[string]func())

	for _, scenario := range active {
		def, err := s.scenarios.GetDefinition(ctx, scenario.ID)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to load scenario", "scenario_id", scenario.ID, "error", err)

			continue
		}

		for _, node := range def.Nodes {
			spec, job, ok := s.jobFor(def.Scenario, node)
			if !ok {
				continue
			}

			key := def.Scenario.ID + "/" + node.ID
			wanted[key] = spec
			jobs[key] = job
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, current := range s.entries {
		if spec, ok := wanted[key]; ok && spec == current.spec {
			continue
		}

		s.cron.Remove(current.id)
		delete(s.entries, key)
	}

	for key, spec := range wanted {
		if _, ok := s.entries[key]; ok {
			continue
		}

		id, err := s.cron.AddFunc(spec, jobs[key])
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to add cron job", "key", key, "spec", spec, "error", err)

			continue
		}

		s.entries[key] = entry{id: id, spec: spec}
	}

	s.logger.InfoContext(ctx, "Scheduler synced", "jobs", len(s.entries))

	return nil
}

// Jobs returns the number of registered jobs.
func (s *Scheduler) Jobs() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}

func (s *Scheduler) jobFor(scenario *models.Scenario, node *models.Node) (string, func(), bool) {
	cfg, ok := node.Config.(models.TriggerConfig)
	if !ok {
		return "", nil, false
	}

	switch cfg.Kind {
	case models.TriggerKindScheduled:
		if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
			s.logger.Warn("Invalid schedule", "scenario_id", scenario.ID, "node_id", node.ID, "schedule", cfg.Schedule, "error", err)

			return "", nil, false
		}

		return cfg.Schedule, func() { s.fireScheduled(context.Background(), scenario, node) }, true
	case models.TriggerKindPolling:
		if !cfg.PollingEnabled || cfg.PollingInterval <= 0 || s.poller == nil {
			return "", nil, false
		}

		spec := fmt.Sprintf("@every %dm", cfg.PollingInterval)

		return spec, func() { s.firePolling(context.Background(), scenario, node) }, true
	default:
		return "", nil, false
	}
}

func (s *Scheduler) fireScheduled(ctx context.Context, scenario *models.Scenario, node *models.Node) {
	logger := s.logger.With("scenario_id", scenario.ID, "node_id", node.ID)
	logger.InfoContext(ctx, "Schedule fired")

	err := s.start(ctx, services.TriggerRequest{
		ScenarioID: scenario.ID,
		Type:       models.TriggerTypeScheduled,
		NodeID:     node.ID,
		Data: map[string]any{
			"timestamp": s.now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		logger.ErrorContext(ctx, "Failed to start scheduled execution", "error", err)
	}
}

// firePolling invokes the trigger's action and starts an execution only when
// the response carries items.
func (s *Scheduler) firePolling(ctx context.Context, scenario *models.Scenario, node *models.Node) {
	logger := s.logger.With("scenario_id", scenario.ID, "node_id", node.ID)
	cfg := node.Config.(models.TriggerConfig)

	probe := &models.Node{
		ID:         node.ID,
		ScenarioID: scenario.ID,
		Type:       models.NodeTypeAction,
		Config: models.ActionConfig{
			AppID:        cfg.AppID,
			ActionID:     cfg.ActionID,
			ConnectionID: cfg.ConnectionID,
		},
	}

	output, err := s.poller.Execute(ctx, probe, map[string]any{}, protocol.Env{
		Scenario: scenario,
		Outputs:  map[string]map[string]any{},
		Now:      s.now(),
	})
	if err != nil {
		logger.ErrorContext(ctx, "Polling failed", "error", err)

		return
	}

	path := cfg.ItemsPath
	if path == "" {
		path = defaultItemsPath
	}

	raw, _ := models.GetPath(output, path)

	items, ok := raw.([]any)
	if !ok || len(items) == 0 {
		logger.DebugContext(ctx, "Polling found no items", "items_path", path)

		return
	}

	logger.InfoContext(ctx, "Polling found items", "count", len(items))

	err = s.start(ctx, services.TriggerRequest{
		ScenarioID: scenario.ID,
		Type:       models.TriggerTypePolling,
		NodeID:     node.ID,
		Data: map[string]any{
			"items":     items,
			"timestamp": s.now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		logger.ErrorContext(ctx, "Failed to start polling execution", "error", err)
	}
}
