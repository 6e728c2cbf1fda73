package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/relay/pkg/models"
	"github.com/dukex/relay/pkg/persistence"
	"github.com/lib/pq"
)

// ExecutionRepository handles execution-related database operations.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	execution, err := scanDocument[models.Execution](r.db.QueryRowContext(ctx, `SELECT data FROM executions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = persistence.ErrExecutionNotFound
		}

		return nil, persistence.NewRepositoryError("GetByID", "execution", id, err)
	}

	return execution, nil
}

func (r *ExecutionRepository) Save(ctx context.Context, execution *models.Execution) error {
	if execution.NodeResults == nil {
		execution.NodeResults = []models.NodeResult{}
	}

	data, err := json.Marshal(execution)
	if err != nil {
		return fmt.Errorf("failed to marshal execution: %w", err)
	}

	query := `
		INSERT INTO executions (id, scenario_id, status, start_time, end_time, data)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			end_time = EXCLUDED.end_time,
			data = CASE
				WHEN executions.data @> '{"cancel_requested": true}'
				THEN jsonb_set(EXCLUDED.data, '{cancel_requested}', 'true')
				ELSE EXCLUDED.data
			END
	`

	_, err = r.db.ExecContext(ctx, query,
		execution.ID,
		execution.ScenarioID,
		execution.Status,
		execution.StartTime,
		pq.NullTime{Time: derefTime(execution.EndTime), Valid: execution.EndTime != nil},
		data,
	)
	if err != nil {
		return persistence.NewRepositoryError("Save", "execution", execution.ID, err)
	}

	return nil
}

func (r *ExecutionRepository) RequestCancel(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE executions
		SET data = jsonb_set(data, '{cancel_requested}', 'true')
		WHERE id = $1 AND status = 'running'
	`, id)
	if err != nil {
		return persistence.NewRepositoryError("RequestCancel", "execution", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewRepositoryError("RequestCancel", "execution", id, err)
	}

	if affected > 0 {
		return nil
	}

	var status string

	err = r.db.QueryRowContext(ctx, `SELECT status FROM executions WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		err = persistence.ErrExecutionNotFound
	} else if err == nil {
		err = persistence.ErrExecutionFinished
	}

	return persistence.NewRepositoryError("RequestCancel", "execution", id, err)
}

func (r *ExecutionRepository) ListByScenario(ctx context.Context, scenarioID string, limit int) ([]*models.Execution, error) {
	query := `SELECT data FROM executions WHERE scenario_id = $1 ORDER BY start_time DESC`
	args := []any{scenarioID}

	if limit > 0 {
		query += ` LIMIT $2`

		args = append(args, limit)
	}

	executions, err := queryDocuments[models.Execution](ctx, r.db, r.logger, query, args...)
	if err != nil {
		return nil, persistence.NewRepositoryError("ListByScenario", "execution", scenarioID, err)
	}

	return executions, nil
}

func (r *ExecutionRepository) ListByStatus(ctx context.Context, status models.ExecutionStatus) ([]*models.Execution, error) {
	executions, err := queryDocuments[models.Execution](ctx, r.db, r.logger,
		`SELECT data FROM executions WHERE status = $1 ORDER BY start_time`, status)
	if err != nil {
		return nil, persistence.NewRepositoryError("ListByStatus", "execution", "", err)
	}

	return executions, nil
}

// CheckpointRepository handles checkpoint database operations. Rows are never updated.
type CheckpointRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewCheckpointRepository(db *sql.DB, logger *slog.Logger) *CheckpointRepository {
	return &CheckpointRepository{db: db, logger: logger}
}

func (r *CheckpointRepository) Save(ctx context.Context, checkpoint *models.Checkpoint) error {
	data, err := json.Marshal(checkpoint)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO checkpoints (id, execution_id, scenario_id, reason, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, checkpoint.ID, checkpoint.ExecutionID, checkpoint.ScenarioID, checkpoint.Reason, data, checkpoint.CreatedAt)
	if err != nil {
		return persistence.NewRepositoryError("Save", "checkpoint", checkpoint.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewRepositoryError("Save", "checkpoint", checkpoint.ID, err)
	}

	if affected == 0 {
		return persistence.NewRepositoryError("Save", "checkpoint", checkpoint.ID, persistence.ErrCheckpointExists)
	}

	return nil
}

func (r *CheckpointRepository) GetByID(ctx context.Context, id string) (*models.Checkpoint, error) {
	checkpoint, err := scanDocument[models.Checkpoint](r.db.QueryRowContext(ctx, `SELECT data FROM checkpoints WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = persistence.ErrCheckpointNotFound
		}

		return nil, persistence.NewRepositoryError("GetByID", "checkpoint", id, err)
	}

	return checkpoint, nil
}

func (r *CheckpointRepository) ListByExecution(ctx context.Context, executionID string) ([]*models.Checkpoint, error) {
	checkpoints, err := queryDocuments[models.Checkpoint](ctx, r.db, r.logger,
		`SELECT data FROM checkpoints WHERE execution_id = $1 ORDER BY created_at, id`, executionID)
	if err != nil {
		return nil, persistence.NewRepositoryError("ListByExecution", "checkpoint", executionID, err)
	}

	return checkpoints, nil
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}

	return *t
}
