package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/relay/pkg/models"
	"github.com/dukex/relay/pkg/persistence"
)

// NodeRepository handles scenario node database operations.
type NodeRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewNodeRepository(db *sql.DB, logger *slog.Logger) *NodeRepository {
	return &NodeRepository{db: db, logger: logger}
}

func (r *NodeRepository) GetByScenario(ctx context.Context, scenarioID string) ([]*models.Node, error) {
	nodes, err := queryDocuments[models.Node](ctx, r.db, r.logger,
		`SELECT data FROM scenario_nodes WHERE scenario_id = $1 ORDER BY position, id`, scenarioID)
	if err != nil {
		return nil, persistence.NewRepositoryError("GetByScenario", "node", scenarioID, err)
	}

	return nodes, nil
}

func (r *NodeRepository) GetByID(ctx context.Context, scenarioID, nodeID string) (*models.Node, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT data FROM scenario_nodes WHERE scenario_id = $1 AND id = $2`, scenarioID, nodeID)

	node, err := scanDocument[models.Node](row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = persistence.ErrNodeNotFound
		}

		return nil, persistence.NewRepositoryError("GetByID", "node", nodeID, err)
	}

	return node, nil
}

func (r *NodeRepository) Save(ctx context.Context, node *models.Node) error {
	data, err := json.Marshal(node)
	if err != nil {
		return fmt.Errorf("failed to marshal node: %w", err)
	}

	query := `
		INSERT INTO scenario_nodes (scenario_id, id, node_type, position, data)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (scenario_id, id) DO UPDATE SET
			node_type = EXCLUDED.node_type,
			position = EXCLUDED.position,
			data = EXCLUDED.data
	`

	if _, err := r.db.ExecContext(ctx, query, node.ScenarioID, node.ID, node.Type, node.Position, data); err != nil {
		return persistence.NewRepositoryError("Save", "node", node.ID, err)
	}

	return nil
}

func (r *NodeRepository) Delete(ctx context.Context, scenarioID, nodeID string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM scenario_nodes WHERE scenario_id = $1 AND id = $2`, scenarioID, nodeID)
	if err != nil {
		return persistence.NewRepositoryError("Delete", "node", nodeID, err)
	}

	return expectAffected(result, "Delete", "node", nodeID, persistence.ErrNodeNotFound)
}
