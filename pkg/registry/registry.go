// Package registry maps node types to the executors that run them.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/dukex/relay/pkg/models"
	"github.com/dukex/relay/pkg/protocol"
)

var ErrExecutorNotFound = errors.New("no executor registered for node type")

type Registry struct {
	logger    *slog.Logger
	mu        sync.RWMutex
	executors map[models.NodeType]protocol.NodeExecutor
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:    log.With("module", "registry"),
		executors: make(map[models.NodeType]protocol.NodeExecutor),
	}
}

// Register adds executor, replacing any executor for the same type.
func (r *Registry) Register(executor protocol.NodeExecutor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.executors[executor.Type()]; exists {
		r.logger.Warn("Replacing node executor", "node_type", executor.Type())
	}

	r.executors[executor.Type()] = executor
}

func (r *Registry) Get(nodeType models.NodeType) (protocol.NodeExecutor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	executor, ok := r.executors[nodeType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrExecutorNotFound, nodeType)
	}

	return executor, nil
}

// Types returns the registered node types in order.
func (r *Registry) Types() []models.NodeType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]models.NodeType, 0, len(r.executors))
	for t := range r.executors {
		types = append(types, t)
	}

	slices.Sort(types)

	return types
}
