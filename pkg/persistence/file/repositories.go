package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/dukex/relay/pkg/models"
	"github.com/dukex/relay/pkg/persistence"
)

type ScenarioRepository struct {
	docs *collection[models.Scenario]
}

func (r *ScenarioRepository) GetAll(_ context.Context) ([]*models.Scenario, error) {
	scenarios, err := r.docs.all()
	if err != nil {
		return nil, persistence.NewRepositoryError("GetAll", "scenario", "", err)
	}

	sort.Slice(scenarios, func(i, j int) bool { return scenarios[i].ID < scenarios[j].ID })

	return scenarios, nil
}

func (r *ScenarioRepository) GetByID(_ context.Context, id string) (*models.Scenario, error) {
	scenario, err := r.docs.get(id)
	if err != nil {
		return nil, persistence.NewRepositoryError("GetByID", "scenario", id, err)
	}

	return scenario, nil
}

func (r *ScenarioRepository) Save(_ context.Context, scenario *models.Scenario) error {
	now := time.Now().UTC()
	if scenario.CreatedAt.IsZero() {
		scenario.CreatedAt = now
	}

	scenario.UpdatedAt = now

	if err := r.docs.put(scenario.ID, scenario, false); err != nil {
		return persistence.NewRepositoryError("Save", "scenario", scenario.ID, err)
	}

	return nil
}

func (r *ScenarioRepository) Delete(_ context.Context, id string) error {
	if err := r.docs.remove(id); err != nil {
		return persistence.NewRepositoryError("Delete", "scenario", id, err)
	}

	return nil
}

// NodeRepository keeps one directory of nodes per scenario.
type NodeRepository struct {
	root string

	mu          sync.Mutex
	collections map[string]*collection[models.Node]
}

func (r *NodeRepository) scenario(scenarioID string) (*collection[models.Node], error) {
	if err := validateID(scenarioID); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.collections == nil {
		r.collections = make(map[string]*collection[models.Node])
	}

	c, ok := r.collections[scenarioID]
	if !ok {
		c = newCollection[models.Node](filepath.Join(r.root, "nodes"), scenarioID, "node", persistence.ErrNodeNotFound)
		r.collections[scenarioID] = c
	}

	return c, nil
}

func (r *NodeRepository) GetByScenario(_ context.Context, scenarioID string) ([]*models.Node, error) {
	c, err := r.scenario(scenarioID)
	if err != nil {
		return nil, persistence.NewRepositoryError("GetByScenario", "node", scenarioID, err)
	}

	nodes, err := c.all()
	if err != nil {
		return nil, persistence.NewRepositoryError("GetByScenario", "node", scenarioID, err)
	}

	sortNodes(nodes)

	return nodes, nil
}

func (r *NodeRepository) GetByID(_ context.Context, scenarioID, nodeID string) (*models.Node, error) {
	c, err := r.scenario(scenarioID)
	if err != nil {
		return nil, persistence.NewRepositoryError("GetByID", "node", nodeID, err)
	}

	node, err := c.get(nodeID)
	if err != nil {
		return nil, persistence.NewRepositoryError("GetByID", "node", nodeID, err)
	}

	return node, nil
}

func (r *NodeRepository) Save(_ context.Context, node *models.Node) error {
	c, err := r.scenario(node.ScenarioID)
	if err != nil {
		return persistence.NewRepositoryError("Save", "node", node.ID, err)
	}

	if err := c.put(node.ID, node, false); err != nil {
		return persistence.NewRepositoryError("Save", "node", node.ID, err)
	}

	return nil
}

func (r *NodeRepository) Delete(_ context.Context, scenarioID, nodeID string) error {
	c, err := r.scenario(scenarioID)
	if err != nil {
		return persistence.NewRepositoryError("Delete", "node", nodeID, err)
	}

	if err := c.remove(nodeID); err != nil {
		return persistence.NewRepositoryError("Delete", "node", nodeID, err)
	}

	return nil
}

func sortNodes(nodes []*models.Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].Position != nodes[j].Position {
			return nodes[i].Position < nodes[j].Position
		}

		return nodes[i].ID < nodes[j].ID
	})
}

type AppRepository struct {
	docs *collection[models.App]
}

func (r *AppRepository) GetAll(_ context.Context) ([]*models.App, error) {
	apps, err := r.docs.all()
	if err != nil {
		return nil, persistence.NewRepositoryError("GetAll", "app", "", err)
	}

	sort.Slice(apps, func(i, j int) bool { return apps[i].ID < apps[j].ID })

	return apps, nil
}

func (r *AppRepository) GetByID(_ context.Context, id string) (*models.App, error) {
	app, err := r.docs.get(id)
	if err != nil {
		return nil, persistence.NewRepositoryError("GetByID", "app", id, err)
	}

	return app, nil
}

func (r *AppRepository) Save(_ context.Context, app *models.App) error {
	if err := r.docs.put(app.ID, app, false); err != nil {
		return persistence.NewRepositoryError("Save", "app", app.ID, err)
	}

	return nil
}

type ConnectionRepository struct {
	docs *collection[models.Connection]
}

func (r *ConnectionRepository) GetByID(_ context.Context, id string) (*models.Connection, error) {
	conn, err := r.docs.get(id)
	if err != nil {
		return nil, persistence.NewRepositoryError("GetByID", "connection", id, err)
	}

	return conn, nil
}

func (r *ConnectionRepository) Save(_ context.Context, connection *models.Connection) error {
	now := time.Now().UTC()
	if connection.CreatedAt.IsZero() {
		connection.CreatedAt = now
	}

	connection.UpdatedAt = now

	if err := r.docs.put(connection.ID, connection, false); err != nil {
		return persistence.NewRepositoryError("Save", "connection", connection.ID, err)
	}

	return nil
}

func (r *ConnectionRepository) Delete(_ context.Context, id string) error {
	if err := r.docs.remove(id); err != nil {
		return persistence.NewRepositoryError("Delete", "connection", id, err)
	}

	return nil
}

type ExecutionRepository struct {
	docs *collection[models.Execution]
}

func (r *ExecutionRepository) GetByID(_ context.Context, id string) (*models.Execution, error) {
	execution, err := r.docs.get(id)
	if err != nil {
		return nil, persistence.NewRepositoryError("GetByID", "execution", id, err)
	}

	return execution, nil
}

func (r *ExecutionRepository) Save(_ context.Context, execution *models.Execution) error {
	if execution.NodeResults == nil {
		execution.NodeResults = []models.NodeResult{}
	}

	err := r.docs.update(execution.ID, func(current *models.Execution) (*models.Execution, error) {
		if current != nil && current.CancelRequested {
			execution.CancelRequested = true
		}

		return execution, nil
	})
	if err != nil {
		return persistence.NewRepositoryError("Save", "execution", execution.ID, err)
	}

	return nil
}

func (r *ExecutionRepository) RequestCancel(_ context.Context, id string) error {
	err := r.docs.update(id, func(current *models.Execution) (*models.Execution, error) {
		if current == nil {
			return nil, persistence.ErrExecutionNotFound
		}

		if current.IsTerminal() {
			return nil, persistence.ErrExecutionFinished
		}

		current.CancelRequested = true

		return current, nil
	})
	if err != nil {
		return persistence.NewRepositoryError("RequestCancel", "execution", id, err)
	}

	return nil
}

func (r *ExecutionRepository) ListByScenario(_ context.Context, scenarioID string, limit int) ([]*models.Execution, error) {
	all, err := r.docs.all()
	if err != nil {
		return nil, persistence.NewRepositoryError("ListByScenario", "execution", scenarioID, err)
	}

	executions := make([]*models.Execution, 0)

	for _, execution := range all {
		if execution.ScenarioID == scenarioID {
			executions = append(executions, execution)
		}
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].StartTime.After(executions[j].StartTime)
	})

	if limit > 0 && len(executions) > limit {
		executions = executions[:limit]
	}

	return executions, nil
}

func (r *ExecutionRepository) ListByStatus(_ context.Context, status models.ExecutionStatus) ([]*models.Execution, error) {
	all, err := r.docs.all()
	if err != nil {
		return nil, persistence.NewRepositoryError("ListByStatus", "execution", "", err)
	}

	executions := make([]*models.Execution, 0)

	for _, execution := range all {
		if execution.Status == status {
			executions = append(executions, execution)
		}
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].StartTime.Before(executions[j].StartTime)
	})

	return executions, nil
}

type CheckpointRepository struct {
	docs *collection[models.Checkpoint]
}

func (r *CheckpointRepository) Save(_ context.Context, checkpoint *models.Checkpoint) error {
	err := r.docs.put(checkpoint.ID, checkpoint, true)
	if errors.Is(err, os.ErrExist) {
		err = persistence.ErrCheckpointExists
	}

	if err != nil {
		return persistence.NewRepositoryError("Save", "checkpoint", checkpoint.ID, err)
	}

	return nil
}

func (r *CheckpointRepository) GetByID(_ context.Context, id string) (*models.Checkpoint, error) {
	checkpoint, err := r.docs.get(id)
	if err != nil {
		return nil, persistence.NewRepositoryError("GetByID", "checkpoint", id, err)
	}

	return checkpoint, nil
}

func (r *CheckpointRepository) ListByExecution(_ context.Context, executionID string) ([]*models.Checkpoint, error) {
	all, err := r.docs.all()
	if err != nil {
		return nil, persistence.NewRepositoryError("ListByExecution", "checkpoint", executionID, err)
	}

	checkpoints := make([]*models.Checkpoint, 0)

	for _, checkpoint := range all {
		if checkpoint.ExecutionID == executionID {
			checkpoints = append(checkpoints, checkpoint)
		}
	}

	sort.SliceStable(checkpoints, func(i, j int) bool {
		return checkpoints[i].CreatedAt.Before(checkpoints[j].CreatedAt)
	})

	return checkpoints, nil
}
