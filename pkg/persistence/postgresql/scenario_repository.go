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
)

// ScenarioRepository handles scenario-related database operations.
type ScenarioRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewScenarioRepository(db *sql.DB, logger *slog.Logger) *ScenarioRepository {
	return &ScenarioRepository{db: db, logger: logger}
}

func (r *ScenarioRepository) GetAll(ctx context.Context) ([]*models.Scenario, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT data FROM scenarios ORDER BY id`)
	if err != nil {
		return nil, persistence.NewRepositoryError("GetAll", "scenario", "", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "Failed to close rows", "error", err)
		}
	}()

	scenarios := make([]*models.Scenario, 0)

	for rows.Next() {
		scenario, err := scanDocument[models.Scenario](rows)
		if err != nil {
			return nil, persistence.NewRepositoryError("GetAll", "scenario", "", err)
		}

		scenarios = append(scenarios, scenario)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewRepositoryError("GetAll", "scenario", "", err)
	}

	return scenarios, nil
}

func (r *ScenarioRepository) GetByID(ctx context.Context, id string) (*models.Scenario, error) {
	row := r.db.QueryRowContext(ctx, `SELECT data FROM scenarios WHERE id = $1`, id)

	scenario, err := scanDocument[models.Scenario](row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = persistence.ErrScenarioNotFound
		}

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

	query := `
		INSERT INTO scenarios (id, owner, status, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			owner = EXCLUDED.owner,
			status = EXCLUDED.status,
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		scenario.ID,
		scenario.Owner,
		scenario.Status,
		data,
		scenario.CreatedAt,
		scenario.UpdatedAt,
	)
	if err != nil {
		return persistence.NewRepositoryError("Save", "scenario", scenario.ID, err)
	}

	return nil
}

func (r *ScenarioRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM scenarios WHERE id = $1`, id)
	if err != nil {
		return persistence.NewRepositoryError("Delete", "scenario", id, err)
	}

	return expectAffected(result, "Delete", "scenario", id, persistence.ErrScenarioNotFound)
}

func scanDocument[T any](row scanner) (*T, error) {
	var data []byte
	if err := row.Scan(&data); err != nil {
		return nil, err
	}

	var doc T
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}

	return &doc, nil
}

func expectAffected(result sql.Result, op, entity, id string, notFound error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewRepositoryError(op, entity, id, err)
	}

	if affected == 0 {
		return persistence.NewRepositoryError(op, entity, id, notFound)
	}

	return nil
}

func queryDocuments[T any](ctx context.Context, db *sql.DB, logger *slog.Logger, query string, args ...any) ([]*T, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := rows.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close rows", "error", err)
		}
	}()

	docs := make([]*T, 0)

	for rows.Next() {
		doc, err := scanDocument[T](rows)
		if err != nil {
			return nil, err
		}

		docs = append(docs, doc)
	}

	return docs, rows.Err()
}
