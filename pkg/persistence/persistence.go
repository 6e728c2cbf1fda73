// Package persistence provides the document store abstraction for scenarios, executions and checkpoints.
package persistence

import (
	"context"

	"github.com/dukex/relay/pkg/models"
)

type Persistence interface {
	ScenarioRepository() ScenarioRepository
	NodeRepository() NodeRepository
	AppRepository() AppRepository
	ConnectionRepository() ConnectionRepository
	ExecutionRepository() ExecutionRepository
	CheckpointRepository() CheckpointRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

type ScenarioRepository interface {
	GetAll(ctx context.Context) ([]*models.Scenario, error)
	GetByID(ctx context.Context, id string) (*models.Scenario, error)
	Save(ctx context.Context, scenario *models.Scenario) error
	Delete(ctx context.Context, id string) error
}

type NodeRepository interface {
	// GetByScenario returns the nodes of a scenario ordered by position.
	GetByScenario(ctx context.Context, scenarioID string) ([]*models.Node, error)
	GetByID(ctx context.Context, scenarioID, nodeID string) (*models.Node, error)
	Save(ctx context.Context, node *models.Node) error
	Delete(ctx context.Context, scenarioID, nodeID string) error
}

type AppRepository interface {
	GetAll(ctx context.Context) ([]*models.App, error)
	GetByID(ctx context.Context, id string) (*models.App, error)
	Save(ctx context.Context, app *models.App) error
}

type ConnectionRepository interface {
	GetByID(ctx context.Context, id string) (*models.Connection, error)
	Save(ctx context.Context, connection *models.Connection) error
	Delete(ctx context.Context, id string) error
}

type ExecutionRepository interface {
	GetByID(ctx context.Context, id string) (*models.Execution, error)

	// Save writes the whole record but never clears a stored cancel request.
	Save(ctx context.Context, execution *models.Execution) error

	// RequestCancel sets the cancel flag of a running execution in place.
	// It fails with ErrExecutionFinished once the execution has ended.
	RequestCancel(ctx context.Context, id string) error

	// ListByScenario returns the most recent executions of a scenario first.
	// A limit of zero or less returns all of them.
	ListByScenario(ctx context.Context, scenarioID string, limit int) ([]*models.Execution, error)
	ListByStatus(ctx context.Context, status models.ExecutionStatus) ([]*models.Execution, error)
}

// CheckpointRepository is append-only: saving an existing id fails with
// ErrCheckpointExists.
type CheckpointRepository interface {
	Save(ctx context.Context, checkpoint *models.Checkpoint) error
	GetByID(ctx context.Context, id string) (*models.Checkpoint, error)

	// ListByExecution returns checkpoints oldest first.
	ListByExecution(ctx context.Context, executionID string) ([]*models.Checkpoint, error)
}
