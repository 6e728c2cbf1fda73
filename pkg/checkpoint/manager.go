// Package checkpoint writes and reads the resumable snapshots of executions.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/relay/pkg/models"
	"github.com/dukex/relay/pkg/persistence"
	"github.com/google/uuid"
)

var ErrNoCheckpoint = errors.New("execution has no checkpoint")

// Manager appends checkpoints and keeps Execution.LastCheckpointID current.
type Manager struct {
	checkpoints persistence.CheckpointRepository
	logger      *slog.Logger
	now         func() time.Time
}

func NewManager(logger *slog.Logger, checkpoints persistence.CheckpointRepository) *Manager {
	return &Manager{
		checkpoints: checkpoints,
		logger:      logger.With("module", "checkpoint"),
		now:         time.Now,
	}
}

// Save appends a checkpoint for execution and records its id on the execution.
// The execution itself is not persisted here; the caller owns that write.
func (m *Manager) Save(ctx context.Context, execution *models.Execution, snapshot models.Snapshot, reason models.CheckpointReason) (*models.Checkpoint, error) {
	now := m.now().UTC()
	if snapshot.Timestamp.IsZero() {
		snapshot.Timestamp = now
	}

	checkpoint := &models.Checkpoint{
		ID:          uuid.NewString(),
		ExecutionID: execution.ID,
		ScenarioID:  execution.ScenarioID,
		Reason:      reason,
		Snapshot:    snapshot,
		CreatedAt:   now,
	}

	if err := m.checkpoints.Save(ctx, checkpoint); err != nil {
		return nil, fmt.Errorf("failed to save checkpoint: %w", err)
	}

	execution.LastCheckpointID = checkpoint.ID

	m.logger.DebugContext(ctx, "Checkpoint saved",
		"execution_id", execution.ID,
		"checkpoint_id", checkpoint.ID,
		"reason", reason,
		"completed", len(snapshot.CompletedNodes))

	return checkpoint, nil
}

func (m *Manager) Get(ctx context.Context, id string) (*models.Checkpoint, error) {
	return m.checkpoints.GetByID(ctx, id)
}

func (m *Manager) List(ctx context.Context, executionID string) ([]*models.Checkpoint, error) {
	return m.checkpoints.ListByExecution(ctx, executionID)
}

// Latest returns the most recent checkpoint of an execution.
func (m *Manager) Latest(ctx context.Context, executionID string) (*models.Checkpoint, error) {
	checkpoints, err := m.checkpoints.ListByExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}

	if len(checkpoints) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoCheckpoint, executionID)
	}

	return checkpoints[len(checkpoints)-1], nil
}

// Resolve returns checkpointID when set, otherwise the execution's latest checkpoint.
// A checkpoint belonging to another execution is rejected.
func (m *Manager) Resolve(ctx context.Context, executionID, checkpointID string) (*models.Checkpoint, error) {
	if checkpointID == "" {
		return m.Latest(ctx, executionID)
	}

	checkpoint, err := m.Get(ctx, checkpointID)
	if err != nil {
		return nil, err
	}

	if checkpoint.ExecutionID != executionID {
		return nil, fmt.Errorf("checkpoint %s does not belong to execution %s", checkpointID, executionID)
	}

	return checkpoint, nil
}
