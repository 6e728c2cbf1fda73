package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/relay/pkg/checkpoint"
	"github.com/dukex/relay/pkg/engine"
	"github.com/dukex/relay/pkg/eventbus"
	"github.com/dukex/relay/pkg/events"
	"github.com/dukex/relay/pkg/models"
	"github.com/dukex/relay/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// DefaultExecutionTimeout is the ceiling for a whole execution.
const DefaultExecutionTimeout = 10 * time.Minute

// ErrExecutionNotFound is returned when an execution is not found.
var ErrExecutionNotFound = persistence.ErrExecutionNotFound

// Locker guards execution ownership across processes.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (func(ctx context.Context) error, error)
}

// TriggerRequest starts an execution of a scenario.
type TriggerRequest struct {
	ScenarioID string             `json:"scenario_id" validate:"required"`
	Type       models.TriggerType `json:"type"        validate:"required,oneof=manual webhook polling scheduled benchmark"`
	NodeID     string             `json:"node_id,omitempty"`
	Data       map[string]any     `json:"data,omitempty"`
	Metadata   map[string]any     `json:"metadata,omitempty"`
}

// ResumeRequest continues a finished execution from one of its checkpoints.
// An empty CheckpointID picks the latest one.
type ResumeRequest struct {
	ExecutionID     string `json:"execution_id"                 validate:"required"`
	CheckpointID    string `json:"checkpoint_id,omitempty"`
	StartFromNodeID string `json:"start_from_node_id,omitempty"`
	SkipFailedNode  bool   `json:"skip_failed_node,omitempty"`
}

type Execution struct {
	persistence persistence.Persistence
	coordinator *engine.Coordinator
	checkpoints *checkpoint.Manager
	publisher   eventbus.EventPublisher
	locker      Locker
	validate    *validator.Validate
	logger      *slog.Logger
	timeout     time.Duration
	now         func() time.Time

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

type ExecutionOption func(*Execution)

// WithExecutionTimeout overrides DefaultExecutionTimeout. Non-positive values are ignored.
func WithExecutionTimeout(timeout time.Duration) ExecutionOption {
	return func(s *Execution) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

func WithLocker(locker Locker) ExecutionOption {
	return func(s *Execution) {
		s.locker = locker
	}
}

func WithEventPublisher(publisher eventbus.EventPublisher) ExecutionOption {
	return func(s *Execution) {
		if publisher != nil {
			s.publisher = publisher
		}
	}
}

// NewExecution creates a new execution service.
func NewExecution(
	logger *slog.Logger,
	persistence persistence.Persistence,
	coordinator *engine.Coordinator,
	checkpoints *checkpoint.Manager,
	opts ...ExecutionOption,
) *Execution {
	s := &Execution{
		persistence: persistence,
		coordinator: coordinator,
		checkpoints: checkpoints,
		publisher:   eventbus.Discard{},
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		logger:      logger.With("module", "execution_service"),
		timeout:     DefaultExecutionTimeout,
		now:         time.Now,
		active:      make(map[string]context.CancelFunc),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Trigger records a new running execution. It does not run it; see Run and
// Dispatcher. Only manual and benchmark runs are accepted for scenarios that
// are not active.
func (s *Execution) Trigger(ctx context.Context, req TriggerRequest) (*models.Execution, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, NewValidationError("Trigger", "INVALID_TRIGGER", err.Error(), ErrInvalidRequest)
	}

	scenario, err := s.persistence.ScenarioRepository().GetByID(ctx, req.ScenarioID)
	if err != nil {
		return nil, err
	}

	manual := req.Type == models.TriggerTypeManual || req.Type == models.TriggerTypeBenchmark
	if !manual && scenario.Status != models.ScenarioStatusActive {
		return nil, fmt.Errorf("%w: %s is %s", ErrScenarioNotActive, scenario.ID, scenario.Status)
	}

	execution := &models.Execution{
		ID:         uuid.New().String(),
		ScenarioID: scenario.ID,
		Owner:      scenario.Owner,
		Status:     models.ExecutionStatusRunning,
		Trigger: models.Trigger{
			Type:     req.Type,
			NodeID:   req.NodeID,
			Data:     req.Data,
			Metadata: req.Metadata,
		},
		StartTime:   s.now().UTC(),
		NodeResults: []models.NodeResult{},
		MaxRetries:  scenario.ErrorHandling.MaxRetries(),
	}

	if err := s.persistence.ExecutionRepository().Save(ctx, execution); err != nil {
		return nil, fmt.Errorf("failed to save execution: %w", err)
	}

	s.logger.InfoContext(ctx, "Execution triggered",
		"execution_id", execution.ID,
		"scenario_id", scenario.ID,
		"trigger_type", req.Type)

	return execution, nil
}

// Execute triggers and runs an execution in the calling goroutine.
func (s *Execution) Execute(ctx context.Context, req TriggerRequest) (*models.Execution, error) {
	execution, err := s.Trigger(ctx, req)
	if err != nil {
		return nil, err
	}

	return s.Run(ctx, execution.ID)
}

// Run drives a recorded execution to a terminal status under the execution
// timeout. A finished execution is returned as is, so a redelivered request
// is harmless.
func (s *Execution) Run(ctx context.Context, executionID string) (*models.Execution, error) {
	execution, err := s.persistence.ExecutionRepository().GetByID(ctx, executionID)
	if err != nil {
		return nil, err
	}

	if execution.IsTerminal() {
		return execution, nil
	}

	if s.locker != nil {
		unlock, err := s.locker.TryLock(ctx, "execution:"+executionID, s.timeout+time.Minute)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrExecutionLocked, err)
		}

		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				s.logger.WarnContext(ctx, "Failed to release execution lock", "execution_id", executionID, "error", err)
			}
		}()
	}

	def, err := s.definition(ctx, execution.ScenarioID)
	if err != nil {
		return nil, err
	}

	job := engine.Job{
		Scenario:  def.Scenario,
		Nodes:     def.Nodes,
		Execution: execution,
	}

	if execution.IsRecovery {
		job.Seed, err = s.seed(ctx, execution, def.Nodes)
		if err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	s.track(executionID, cancel)
	defer s.untrack(executionID)

	if err := s.coordinator.Run(ctx, job); err != nil {
		return execution, err
	}

	return execution, nil
}

func (s *Execution) definition(ctx context.Context, scenarioID string) (*Definition, error) {
	scenario, err := s.persistence.ScenarioRepository().GetByID(ctx, scenarioID)
	if err != nil {
		return nil, err
	}

	nodes, err := s.persistence.NodeRepository().GetByScenario(ctx, scenarioID)
	if err != nil {
		return nil, fmt.Errorf("failed to load nodes: %w", err)
	}

	return &Definition{Scenario: scenario, Nodes: nodes}, nil
}

func (s *Execution) seed(ctx context.Context, execution *models.Execution, nodes []*models.Node) (*engine.Seed, error) {
	opts, err := engine.DecodeResumeOptions(execution.Trigger.Metadata)
	if err != nil {
		return nil, NewValidationError("Run", "INVALID_RECOVERY", err.Error(), ErrInvalidRequest)
	}

	cp, err := s.checkpoints.Get(ctx, opts.CheckpointID)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint %s: %w", opts.CheckpointID, err)
	}

	original, err := s.persistence.ExecutionRepository().GetByID(ctx, execution.OriginalExecutionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load original execution: %w", err)
	}

	seed, _ := engine.SeedFrom(nodes, cp, original, opts, s.now())

	return seed, nil
}

func (s *Execution) track(id string, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active[id] = cancel
}

func (s *Execution) untrack(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.active, id)
}

// Resume records a recovery execution seeded from a checkpoint of a finished
// execution. The original only gains a link to the new execution.
func (s *Execution) Resume(ctx context.Context, req ResumeRequest) (*models.Execution, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, NewValidationError("Resume", "INVALID_RESUME", err.Error(), ErrInvalidRequest)
	}

	executions := s.persistence.ExecutionRepository()

	original, err := executions.GetByID(ctx, req.ExecutionID)
	if err != nil {
		return nil, err
	}

	if !original.IsTerminal() {
		return nil, ErrExecutionRunning
	}

	cp, err := s.checkpoints.Resolve(ctx, original.ID, req.CheckpointID)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNoCheckpoint) || persistence.IsCheckpointNotFound(err) {
			return nil, NewValidationError("Resume", "NO_CHECKPOINT", err.Error(), ErrInvalidRequest)
		}

		return nil, err
	}

	def, err := s.definition(ctx, original.ScenarioID)
	if err != nil {
		return nil, err
	}

	if req.StartFromNodeID != "" && !hasNode(def.Nodes, req.StartFromNodeID) {
		return nil, NewValidationError("Resume", "UNKNOWN_NODE",
			"unknown start node "+req.StartFromNodeID, ErrInvalidRequest)
	}

	opts := engine.ResumeOptions{
		CheckpointID:    cp.ID,
		StartFromNodeID: req.StartFromNodeID,
		SkipFailedNode:  req.SkipFailedNode,
	}

	now := s.now().UTC()
	_, results := engine.SeedFrom(def.Nodes, cp, original, opts, now)

	execution := &models.Execution{
		ID:         uuid.New().String(),
		ScenarioID: original.ScenarioID,
		Owner:      original.Owner,
		Status:     models.ExecutionStatusRunning,
		Trigger: models.Trigger{
			Type:     models.TriggerTypeRecovery,
			NodeID:   original.Trigger.NodeID,
			Data:     original.Trigger.Data,
			Metadata: opts.Metadata(),
		},
		StartTime:           now,
		NodeResults:         results,
		MaxRetries:          def.Scenario.ErrorHandling.MaxRetries(),
		LastCheckpointID:    cp.ID,
		IsRecovery:          true,
		OriginalExecutionID: original.ID,
	}

	if err := executions.Save(ctx, execution); err != nil {
		return nil, fmt.Errorf("failed to save recovery execution: %w", err)
	}

	original.RecoveryExecutionID = execution.ID
	if err := executions.Save(ctx, original); err != nil {
		return nil, fmt.Errorf("failed to link original execution: %w", err)
	}

	event := events.ExecutionEvent{
		BaseEvent:           events.NewBaseEvent(events.ExecutionResumedEvent, execution.ScenarioID, execution.ID),
		Status:              execution.Status,
		TriggerType:         execution.Trigger.Type,
		OriginalExecutionID: original.ID,
		CheckpointID:        cp.ID,
	}
	if err := s.publisher.Publish(ctx, execution.ID, event); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish resume event", "execution_id", execution.ID, "error", err)
	}

	s.logger.InfoContext(ctx, "Execution resumed",
		"execution_id", execution.ID,
		"original_execution_id", original.ID,
		"checkpoint_id", cp.ID)

	return execution, nil
}

func hasNode(nodes []*models.Node, id string) bool {
	for _, node := range nodes {
		if node.ID == id {
			return true
		}
	}

	return false
}

// Cancel requests cancellation of a running execution. The flag is stored so
// a worker in another process stops before its next node; a run owned by this
// process is interrupted at once.
func (s *Execution) Cancel(ctx context.Context, executionID string) error {
	if err := s.persistence.ExecutionRepository().RequestCancel(ctx, executionID); err != nil {
		if errors.Is(err, persistence.ErrExecutionFinished) {
			return ErrExecutionNotRunning
		}

		if persistence.IsExecutionNotFound(err) {
			return err
		}

		return fmt.Errorf("failed to save cancel request: %w", err)
	}

	s.mu.Lock()
	cancel, ok := s.active[executionID]
	s.mu.Unlock()

	if ok {
		cancel()
	}

	s.logger.InfoContext(ctx, "Execution cancel requested", "execution_id", executionID, "local", ok)

	return nil
}

// Get retrieves an execution by its ID.
func (s *Execution) Get(ctx context.Context, executionID string) (*models.Execution, error) {
	return s.persistence.ExecutionRepository().GetByID(ctx, executionID)
}

// ListActive returns every running execution, oldest first.
func (s *Execution) ListActive(ctx context.Context) ([]*models.Execution, error) {
	return s.persistence.ExecutionRepository().ListByStatus(ctx, models.ExecutionStatusRunning)
}

// ListByScenario returns the most recent executions of a scenario first.
func (s *Execution) ListByScenario(ctx context.Context, scenarioID string, limit int) ([]*models.Execution, error) {
	if _, err := s.persistence.ScenarioRepository().GetByID(ctx, scenarioID); err != nil {
		return nil, err
	}

	return s.persistence.ExecutionRepository().ListByScenario(ctx, scenarioID, limit)
}
