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

// AppRepository handles app catalog database operations.
type AppRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewAppRepository(db *sql.DB, logger *slog.Logger) *AppRepository {
	return &AppRepository{db: db, logger: logger}
}

func (r *AppRepository) GetAll(ctx context.Context) ([]*models.App, error) {
	apps, err := queryDocuments[models.App](ctx, r.db, r.logger, `SELECT data FROM apps ORDER BY id`)
	if err != nil {
		return nil, persistence.NewRepositoryError("GetAll", "app", "", err)
	}

	return apps, nil
}

func (r *AppRepository) GetByID(ctx context.Context, id string) (*models.App, error) {
	app, err := scanDocument[models.App](r.db.QueryRowContext(ctx, `SELECT data FROM apps WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = persistence.ErrAppNotFound
		}

		return nil, persistence.NewRepositoryError("GetByID", "app", id, err)
	}

	return app, nil
}

func (r *AppRepository) Save(ctx context.Context, app *models.App) error {
	data, err := json.Marshal(app)
	if err != nil {
		return fmt.Errorf("failed to marshal app: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO apps (id, data) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data
	`, app.ID, data)
	if err != nil {
		return persistence.NewRepositoryError("Save", "app", app.ID, err)
	}

	return nil
}

// ConnectionRepository handles connection database operations. Credentials are
// stored exactly as received, already encrypted.
type ConnectionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewConnectionRepository(db *sql.DB, logger *slog.Logger) *ConnectionRepository {
	return &ConnectionRepository{db: db, logger: logger}
}

func (r *ConnectionRepository) GetByID(ctx context.Context, id string) (*models.Connection, error) {
	conn, err := scanDocument[models.Connection](r.db.QueryRowContext(ctx, `SELECT data FROM connections WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = persistence.ErrConnectionNotFound
		}

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

	query := `
		INSERT INTO connections (id, app_id, owner, status, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			app_id = EXCLUDED.app_id,
			owner = EXCLUDED.owner,
			status = EXCLUDED.status,
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		connection.ID,
		connection.AppID,
		connection.Owner,
		connection.Status,
		data,
		connection.CreatedAt,
		connection.UpdatedAt,
	)
	if err != nil {
		return persistence.NewRepositoryError("Save", "connection", connection.ID, err)
	}

	return nil
}

func (r *ConnectionRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM connections WHERE id = $1`, id)
	if err != nil {
		return persistence.NewRepositoryError("Delete", "connection", id, err)
	}

	return expectAffected(result, "Delete", "connection", id, persistence.ErrConnectionNotFound)
}
