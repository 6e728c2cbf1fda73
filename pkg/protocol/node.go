// Package protocol defines the interfaces and contracts between the engine and its collaborators.
package protocol

import (
	"context"
	"time"

	"github.com/dukex/relay/pkg/models"
)

// NodeExecutor runs one node type. Implementations must not retain input or
// mutate outputs of other nodes.
type NodeExecutor interface {
	// Type returns the node type handled by this executor.
	Type() models.NodeType

	// Execute runs node with its resolved input and returns its output.
	Execute(ctx context.Context, node *models.Node, input map[string]any, env Env) (map[string]any, error)
}

// Env is the read-only view of the running execution handed to executors.
type Env struct {
	Execution *models.Execution
	Scenario  *models.Scenario

	// Outputs holds the outputs of nodes completed so far, keyed by node id.
	Outputs map[string]map[string]any
	Now     time.Time
}
