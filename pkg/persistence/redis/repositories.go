package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dukex/relay/pkg/models"
	"github.com/dukex/relay/pkg/persistence"
	"github.com/goccy/go-json"
	backend "github.com/redis/go-redis/v9"
)

var executionStatuses = []models.ExecutionStatus{
	models.ExecutionStatusRunning,
	models.ExecutionStatusCompleted,
	models.ExecutionStatusFailed,
}

type ScenarioRepository struct {
	p *Persistence
}

func (r *ScenarioRepository) GetAll(ctx context.Context) ([]*models.Scenario, error) {
	ids, err := r.p.client.SMembers(ctx, r.p.key("scenarios")).Result()
	if err != nil {
		return nil, persistence.NewRepositoryError("GetAll", "scenario", "", err)
	}

	sort.Strings(ids)

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.p.key("scenario", id)
	}

	scenarios, err := getDocuments[models.Scenario](ctx, r.p, keys)
	if err != nil {
		return nil, persistence.NewRepositoryError("GetAll", "scenario", "", err)
	}

	return scenarios, nil
}

func (r *ScenarioRepository) GetByID(ctx context.Context, id string) (*models.Scenario, error) {
	scenario, err := getDocument[models.Scenario](ctx, r.p, r.p.key("scenario", id), persistence.ErrScenarioNotFound)
	if err != nil {
		return nil, persistence.NewRepositoryError("GetByID", "scenario", id, err)
	}

	return scenario, nil
}

func (r *ScenarioRepository) Save(ctx context.Context, scenario *models.Scenario) error {
	now := time.Now().UTC()
	if scenario.CreatedAt.IsZero() {
		scenario.CreatedAt = now
	}

	scenario.UpdatedAt = now

	data, err := json.Marshal(scenario)
	if err != nil {
		return fmt.Errorf("failed to marshal scenario: %w", err)
	}

	_, err = r.p.client.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
		pipe.Set(ctx, r.p.key("scenario", scenario.ID), data, 0)
		pipe.SAdd(ctx, r.p.key("scenarios"), scenario.ID)

		return nil
	})
	if err != nil {
		return persistence.NewRepositoryError("Save", "scenario", scenario.ID, err)
	}

	return nil
}

func (r *ScenarioRepository) Delete(ctx context.Context, id string) error {
	var deleted *backend.IntCmd

	_, err := r.p.client.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
		deleted = pipe.Del(ctx, r.p.key("scenario", id))
		pipe.SRem(ctx, r.p.key("scenarios"), id)

		return nil
	})
	if err != nil {
		return persistence.NewRepositoryError("Delete", "scenario", id, err)
	}

	if deleted.Val() == 0 {
		return persistence.NewRepositoryError("Delete", "scenario", id, persistence.ErrScenarioNotFound)
	}

	return nil
}

type NodeRepository struct {
	p *Persistence
}

func (r *NodeRepository) GetByScenario(ctx context.Context, scenarioID string) ([]*models.Node, error) {
	ids, err := r.p.client.SMembers(ctx, r.p.key("nodes", scenarioID)).Result()
	if err != nil {
		return nil, persistence.NewRepositoryError("GetByScenario", "node", scenarioID, err)
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.p.key("node", scenarioID, id)
	}

	nodes, err := getDocuments[models.Node](ctx, r.p, keys)
	if err != nil {
		return nil, persistence.NewRepositoryError("GetByScenario", "node", scenarioID, err)
	}

	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].Position != nodes[j].Position {
			return nodes[i].Position < nodes[j].Position
		}

		return nodes[i].ID < nodes[j].ID
	})

	return nodes, nil
}

func (r *NodeRepository) GetByID(ctx context.Context, scenarioID, nodeID string) (*models.Node, error) {
	node, err := getDocument[models.Node](ctx, r.p, r.p.key("node", scenarioID, nodeID), persistence.ErrNodeNotFound)
	if err != nil {
		return nil, persistence.NewRepositoryError("GetByID", "node", nodeID, err)
	}

	return node, nil
}

func (r *NodeRepository) Save(ctx context.Context, node *models.Node) error {
	data, err := json.Marshal(node)
	if err != nil {
		return fmt.Errorf("failed to marshal node: %w", err)
	}

	_, err = r.p.client.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
		pipe.Set(ctx, r.p.key("node", node.ScenarioID, node.ID), data, 0)
		pipe.SAdd(ctx, r.p.key("nodes", node.ScenarioID), node.ID)

		return nil
	})
	if err != nil {
		return persistence.NewRepositoryError("Save", "node", node.ID, err)
	}

	return nil
}

func (r *NodeRepository) Delete(ctx context.Context, scenarioID, nodeID string) error {
	var deleted *backend.IntCmd

	_, err := r.p.client.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
		deleted = pipe.Del(ctx, r.p.key("node", scenarioID, nodeID))
		pipe.SRem(ctx, r.p.key("nodes", scenarioID), nodeID)

		return nil
	})
	if err != nil {
		return persistence.NewRepositoryError("Delete", "node", nodeID, err)
	}

	if deleted.Val() == 0 {
		return persistence.NewRepositoryError("Delete", "node", nodeID, persistence.ErrNodeNotFound)
	}

	return nil
}

type AppRepository struct {
	p *Persistence
}

func (r *AppRepository) GetAll(ctx context.Context) ([]*models.App, error) {
	ids, err := r.p.client.SMembers(ctx, r.p.key("apps")).Result()
	if err != nil {
		return nil, persistence.NewRepositoryError("GetAll", "app", "", err)
	}

	sort.Strings(ids)

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.p.key("app", id)
	}

	apps, err := getDocuments[models.App](ctx, r.p, keys)
	if err != nil {
		return nil, persistence.NewRepositoryError("GetAll", "app", "", err)
	}

	return apps, nil
}

func (r *AppRepository) GetByID(ctx context.Context, id string) (*models.App, error) {
	app, err := getDocument[models.App](ctx, r.p, r.p.key("app", id), persistence.ErrAppNotFound)
	if err != nil {
		return nil, persistence.NewRepositoryError("GetByID", "app", id, err)
	}

	return app, nil
}

func (r *AppRepository) Save(ctx context.Context, app *models.App) error {
	data, err := json.Marshal(app)
	if err != nil {
		return fmt.Errorf("failed to marshal app: %w", err)
	}

	_, err = r.p.client.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
		pipe.Set(ctx, r.p.key("app", app.ID), data, 0)
		pipe.SAdd(ctx, r.p.key("apps"), app.ID)

		return nil
	})
	if err != nil {
		return persistence.NewRepositoryError("Save", "app", app.ID, err)
	}

	return nil
}

type ConnectionRepository struct {
	p *Persistence
}

func (r *ConnectionRepository) GetByID(ctx context.Context, id string) (*models.Connection, error) {
	conn, err := getDocument[models.Connection](ctx, r.p, r.p.key("connection", id), persistence.ErrConnectionNotFound)
	if err != nil {
		return nil, persistence.NewRepositoryError("GetByID", "connection", id, err)
	}

	return conn, nil
}

func (r *ConnectionRepository) Save(ctx context.Context, connection *models.Connection) error {
	now := time.Now().UTC()
	if connection.CreatedAt.IsZero() {
		connection.CreatedAt = now
	}

	connection.UpdatedAt = now

	data, err := json.Marshal(connection)
	if err != nil {
		return fmt.Errorf("failed to marshal connection: %w", err)
	}

	if err := r.p.client.Set(ctx, r.p.key("connection", connection.ID), data, 0).Err(); err != nil {
		return persistence.NewRepositoryError("Save", "connection", connection.ID, err)
	}

	return nil
}

func (r *ConnectionRepository) Delete(ctx context.Context, id string) error {
	deleted, err := r.p.client.Del(ctx, r.p.key("connection", id)).Result()
	if err != nil {
		return persistence.NewRepositoryError("Delete", "connection", id, err)
	}

	if deleted == 0 {
		return persistence.NewRepositoryError("Delete", "connection", id, persistence.ErrConnectionNotFound)
	}

	return nil
}

// ExecutionRepository indexes executions by scenario (sorted by start time)
// and by status.
type ExecutionRepository struct {
	p *Persistence
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	execution, err := getDocument[models.Execution](ctx, r.p, r.p.key("execution", id), persistence.ErrExecutionNotFound)
	if err != nil {
		return nil, persistence.NewRepositoryError("GetByID", "execution", id, err)
	}

	return execution, nil
}

// Save and RequestCancel use optimistic transactions on the document key so
// a cancel request is never lost between a read and a write.
func (r *ExecutionRepository) Save(ctx context.Context, execution *models.Execution) error {
	if execution.NodeResults == nil {
		execution.NodeResults = []models.NodeResult{}
	}

	key := r.p.key("execution", execution.ID)

	err := r.watch(ctx, key, func(tx *backend.Tx) error {
		stored, err := loadExecution(ctx, tx, key)
		if err != nil {
			return err
		}

		if stored != nil && stored.CancelRequested {
			execution.CancelRequested = true
		}

		data, err := json.Marshal(execution)
		if err != nil {
			return fmt.Errorf("failed to marshal execution: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.ZAdd(ctx, r.p.key("executions", "scenario", execution.ScenarioID), backend.Z{
				Score:  float64(execution.StartTime.UnixMilli()),
				Member: execution.ID,
			})

			for _, status := range executionStatuses {
				if status != execution.Status {
					pipe.SRem(ctx, r.p.key("executions", "status", string(status)), execution.ID)
				}
			}

			pipe.SAdd(ctx, r.p.key("executions", "status", string(execution.Status)), execution.ID)

			return nil
		})

		return err
	})
	if err != nil {
		return persistence.NewRepositoryError("Save", "execution", execution.ID, err)
	}

	return nil
}

func (r *ExecutionRepository) RequestCancel(ctx context.Context, id string) error {
	key := r.p.key("execution", id)

	err := r.watch(ctx, key, func(tx *backend.Tx) error {
		stored, err := loadExecution(ctx, tx, key)
		if err != nil {
			return err
		}

		if stored == nil {
			return persistence.ErrExecutionNotFound
		}

		if stored.IsTerminal() {
			return persistence.ErrExecutionFinished
		}

		stored.CancelRequested = true

		data, err := json.Marshal(stored)
		if err != nil {
			return fmt.Errorf("failed to marshal execution: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)

			return nil
		})

		return err
	})
	if err != nil {
		return persistence.NewRepositoryError("RequestCancel", "execution", id, err)
	}

	return nil
}

const maxTxAttempts = 10

func (r *ExecutionRepository) watch(ctx context.Context, key string, fn func(*backend.Tx) error) error {
	for range maxTxAttempts {
		err := r.p.client.Watch(ctx, fn, key)
		if !errors.Is(err, backend.TxFailedErr) {
			return err
		}
	}

	return backend.TxFailedErr
}

// loadExecution returns nil when the key does not exist.
func loadExecution(ctx context.Context, tx *backend.Tx, key string) (*models.Execution, error) {
	data, err := tx.Get(ctx, key).Bytes()
	if errors.Is(err, backend.Nil) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	var execution models.Execution
	if err := json.Unmarshal(data, &execution); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}

	return &execution, nil
}

func (r *ExecutionRepository) ListByScenario(ctx context.Context, scenarioID string, limit int) ([]*models.Execution, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}

	ids, err := r.p.client.ZRevRange(ctx, r.p.key("executions", "scenario", scenarioID), 0, stop).Result()
	if err != nil {
		return nil, persistence.NewRepositoryError("ListByScenario", "execution", scenarioID, err)
	}

	executions, err := getDocuments[models.Execution](ctx, r.p, r.executionKeys(ids))
	if err != nil {
		return nil, persistence.NewRepositoryError("ListByScenario", "execution", scenarioID, err)
	}

	return executions, nil
}

func (r *ExecutionRepository) ListByStatus(ctx context.Context, status models.ExecutionStatus) ([]*models.Execution, error) {
	ids, err := r.p.client.SMembers(ctx, r.p.key("executions", "status", string(status))).Result()
	if err != nil {
		return nil, persistence.NewRepositoryError("ListByStatus", "execution", "", err)
	}

	executions, err := getDocuments[models.Execution](ctx, r.p, r.executionKeys(ids))
	if err != nil {
		return nil, persistence.NewRepositoryError("ListByStatus", "execution", "", err)
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].StartTime.Before(executions[j].StartTime)
	})

	return executions, nil
}

func (r *ExecutionRepository) executionKeys(ids []string) []string {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.p.key("execution", id)
	}

	return keys
}

type CheckpointRepository struct {
	p *Persistence
}

func (r *CheckpointRepository) Save(ctx context.Context, checkpoint *models.Checkpoint) error {
	data, err := json.Marshal(checkpoint)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	created, err := r.p.client.SetNX(ctx, r.p.key("checkpoint", checkpoint.ID), data, 0).Result()
	if err != nil {
		return persistence.NewRepositoryError("Save", "checkpoint", checkpoint.ID, err)
	}

	if !created {
		return persistence.NewRepositoryError("Save", "checkpoint", checkpoint.ID, persistence.ErrCheckpointExists)
	}

	err = r.p.client.ZAdd(ctx, r.p.key("checkpoints", "execution", checkpoint.ExecutionID), backend.Z{
		Score:  float64(checkpoint.CreatedAt.UnixNano()),
		Member: checkpoint.ID,
	}).Err()
	if err != nil {
		return persistence.NewRepositoryError("Save", "checkpoint", checkpoint.ID, err)
	}

	return nil
}

func (r *CheckpointRepository) GetByID(ctx context.Context, id string) (*models.Checkpoint, error) {
	checkpoint, err := getDocument[models.Checkpoint](ctx, r.p, r.p.key("checkpoint", id), persistence.ErrCheckpointNotFound)
	if err != nil {
		return nil, persistence.NewRepositoryError("GetByID", "checkpoint", id, err)
	}

	return checkpoint, nil
}

func (r *CheckpointRepository) ListByExecution(ctx context.Context, executionID string) ([]*models.Checkpoint, error) {
	ids, err := r.p.client.ZRange(ctx, r.p.key("checkpoints", "execution", executionID), 0, -1).Result()
	if err != nil {
		return nil, persistence.NewRepositoryError("ListByExecution", "checkpoint", executionID, err)
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.p.key("checkpoint", id)
	}

	checkpoints, err := getDocuments[models.Checkpoint](ctx, r.p, keys)
	if err != nil {
		return nil, persistence.NewRepositoryError("ListByExecution", "checkpoint", executionID, err)
	}

	return checkpoints, nil
}
