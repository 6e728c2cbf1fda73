package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dukex/relay/pkg/engine"
	"github.com/dukex/relay/pkg/models"
	"github.com/dukex/relay/pkg/persistence"
	"github.com/go-playground/validator/v10"
)

// ErrScenarioNotFound is returned when a scenario is not found.
var ErrScenarioNotFound = persistence.ErrScenarioNotFound

// Definition is a scenario together with its nodes.
type Definition struct {
	Scenario *models.Scenario `json:"scenario" validate:"required"`
	Nodes    []*models.Node   `json:"nodes"    validate:"required,min=1,dive,required"`
}

type Scenario struct {
	persistence persistence.Persistence
	validate    *validator.Validate
	now         func() time.Time
}

// NewScenario creates a new scenario service.
func NewScenario(persistence persistence.Persistence) *Scenario {
	return &Scenario{
		persistence: persistence,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		now:         time.Now,
	}
}

// HealthCheck checks the health of the persistence layer.
func (s *Scenario) HealthCheck(ctx context.Context) (string, bool) {
	if s.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := s.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// Get retrieves a scenario by its ID.
func (s *Scenario) Get(ctx context.Context, id string) (*models.Scenario, error) {
	return s.persistence.ScenarioRepository().GetByID(ctx, id)
}

// GetDefinition retrieves a scenario and its nodes ordered by position.
func (s *Scenario) GetDefinition(ctx context.Context, id string) (*Definition, error) {
	scenario, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	nodes, err := s.persistence.NodeRepository().GetByScenario(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load nodes: %w", err)
	}

	return &Definition{Scenario: scenario, Nodes: nodes}, nil
}

// Validate checks a definition without storing it: field rules, exactly one
// trigger node, every node belonging to the scenario and an acyclic graph.
func (s *Scenario) Validate(def *Definition) error {
	if def == nil || def.Scenario == nil {
		return NewValidationError("Validate", "INVALID_DEFINITION", "scenario is required", ErrInvalidRequest)
	}

	if err := s.validate.Struct(def); err != nil {
		return NewValidationError("Validate", "INVALID_DEFINITION", err.Error(), ErrInvalidRequest)
	}

	triggers := 0

	for _, node := range def.Nodes {
		if node.ScenarioID != def.Scenario.ID {
			return NewValidationError("Validate", "INVALID_NODE",
				fmt.Sprintf("node %s belongs to scenario %s", node.ID, node.ScenarioID), ErrInvalidRequest)
		}

		if node.Config == nil || node.Config.NodeType() != node.Type {
			return NewValidationError("Validate", "INVALID_NODE",
				fmt.Sprintf("node %s config does not match type %s", node.ID, node.Type), ErrInvalidRequest)
		}

		if node.Type == models.NodeTypeTrigger {
			triggers++
		}
	}

	if triggers != 1 {
		return ErrTriggerNodeRequired
	}

	if err := engine.Validate(def.Nodes); err != nil {
		return NewValidationError("Validate", "INVALID_GRAPH", err.Error(), ErrInvalidGraph)
	}

	return nil
}

// Save validates and stores a definition. Active scenarios must be paused
// before they are edited. Nodes missing from the definition are removed.
func (s *Scenario) Save(ctx context.Context, def *Definition) (*Definition, error) {
	if def != nil && def.Scenario != nil && def.Scenario.Status == "" {
		def.Scenario.Status = models.ScenarioStatusDraft
	}

	if err := s.Validate(def); err != nil {
		return nil, err
	}

	scenario := def.Scenario
	now := s.now().UTC()

	existing, err := s.persistence.ScenarioRepository().GetByID(ctx, scenario.ID)

	switch {
	case err == nil:
		if existing.Status == models.ScenarioStatusActive {
			return nil, ErrScenarioNotEditable
		}

		scenario.CreatedAt = existing.CreatedAt
		scenario.LastRun = existing.LastRun
	case errors.Is(err, persistence.ErrScenarioNotFound):
		scenario.CreatedAt = now
	default:
		return nil, fmt.Errorf("failed to get scenario: %w", err)
	}

	ordered, _ := engine.Order(def.Nodes)

	scenario.NodeIDs = make([]string, len(ordered))
	for i, node := range ordered {
		scenario.NodeIDs[i] = node.ID
	}

	scenario.UpdatedAt = now

	nodes := s.persistence.NodeRepository()

	for _, node := range def.Nodes {
		if err := nodes.Save(ctx, node); err != nil {
			return nil, fmt.Errorf("failed to save node %s: %w", node.ID, err)
		}
	}

	if existing != nil {
		if err := s.removeStaleNodes(ctx, scenario.ID, scenario.NodeIDs); err != nil {
			return nil, err
		}
	}

	if err := s.persistence.ScenarioRepository().Save(ctx, scenario); err != nil {
		return nil, fmt.Errorf("failed to save scenario: %w", err)
	}

	return def, nil
}

func (s *Scenario) removeStaleNodes(ctx context.Context, scenarioID string, keep []string) error {
	stored, err := s.persistence.NodeRepository().GetByScenario(ctx, scenarioID)
	if err != nil {
		return fmt.Errorf("failed to load nodes: %w", err)
	}

	for _, node := range stored {
		if slices.Contains(keep, node.ID) {
			continue
		}

		if err := s.persistence.NodeRepository().Delete(ctx, scenarioID, node.ID); err != nil {
			return fmt.Errorf("failed to delete node %s: %w", node.ID, err)
		}
	}

	return nil
}

// Activate arms a scenario's triggers after re-validating its stored definition.
func (s *Scenario) Activate(ctx context.Context, id string) (*models.Scenario, error) {
	def, err := s.GetDefinition(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.Validate(def); err != nil {
		return nil, err
	}

	return s.setStatus(ctx, def.Scenario, models.ScenarioStatusActive)
}

// Pause disarms a scenario's triggers. Manual runs are still allowed.
func (s *Scenario) Pause(ctx context.Context, id string) (*models.Scenario, error) {
	scenario, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	return s.setStatus(ctx, scenario, models.ScenarioStatusPaused)
}

func (s *Scenario) setStatus(ctx context.Context, scenario *models.Scenario, status models.ScenarioStatus) (*models.Scenario, error) {
	scenario.Status = status
	scenario.UpdatedAt = s.now().UTC()

	if err := s.persistence.ScenarioRepository().Save(ctx, scenario); err != nil {
		return nil, fmt.Errorf("failed to update scenario status: %w", err)
	}

	return scenario, nil
}

// ListActive returns every active scenario.
func (s *Scenario) ListActive(ctx context.Context) ([]*models.Scenario, error) {
	all, err := s.persistence.ScenarioRepository().GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list scenarios: %w", err)
	}

	active := make([]*models.Scenario, 0, len(all))

	for _, scenario := range all {
		if scenario.Status == models.ScenarioStatusActive {
			active = append(active, scenario)
		}
	}

	return active, nil
}
