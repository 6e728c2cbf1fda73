// Package engine runs scenario executions: dependency resolution, node
// dispatch, recovery and finalization.
package engine

import (
	"errors"
	"fmt"
	"sort"

	"github.com/dukex/relay/pkg/models"
	"github.com/dukex/relay/pkg/recovery"
)

var (
	ErrUnsatisfiableGraph = errors.New("no node is ready but the execution is not finished")
	ErrCyclicGraph        = errors.New("scenario graph contains a cycle")
	ErrUnknownDependency  = errors.New("node depends on an unknown node")
	ErrDuplicateNode      = errors.New("duplicate node id")
)

// NextReady returns the first node, by position then id, that is not done and
// whose dependencies are all done.
func NextReady(nodes []*models.Node, done func(id string) bool) (*models.Node, bool) {
	var ready *models.Node

	for _, node := range nodes {
		if done(node.ID) || !dependenciesDone(node, done) {
			continue
		}

		if ready == nil || before(node, ready) {
			ready = node
		}
	}

	return ready, ready != nil
}

func dependenciesDone(node *models.Node, done func(id string) bool) bool {
	for _, dep := range node.DependsOn {
		if !done(dep) {
			return false
		}
	}

	return true
}

func before(a, b *models.Node) bool {
	if a.Position != b.Position {
		return a.Position < b.Position
	}

	return a.ID < b.ID
}

// Validate rejects graphs the coordinator could never finish: duplicate ids,
// dependencies on unknown nodes and cycles. Errors are configuration errors.
func Validate(nodes []*models.Node) error {
	byID := make(map[string]*models.Node, len(nodes))

	for _, node := range nodes {
		if _, exists := byID[node.ID]; exists {
			return recovery.NewConfigurationError(node.ID, "invalid graph", ErrDuplicateNode)
		}

		byID[node.ID] = node
	}

	for _, node := range nodes {
		for _, dep := range node.DependsOn {
			if _, ok := byID[dep]; !ok {
				return recovery.NewConfigurationError(node.ID, "invalid graph", fmt.Errorf("%w: %s", ErrUnknownDependency, dep))
			}
		}
	}

	const (
		unvisited = iota
		visiting
		visited
	)

	state := make(map[string]int, len(nodes))

	var visit func(node *models.Node) error

	visit = func(node *models.Node) error {
		switch state[node.ID] {
		case visiting:
			return recovery.NewConfigurationError(node.ID, "invalid graph", ErrCyclicGraph)
		case visited:
			return nil
		}

		state[node.ID] = visiting

		for _, dep := range node.DependsOn {
			if err := visit(byID[dep]); err != nil {
				return err
			}
		}

		state[node.ID] = visited

		return nil
	}

	for _, node := range nodes {
		if err := visit(node); err != nil {
			return err
		}
	}

	return nil
}

// Order returns the order in which nodes would run if every node succeeded.
func Order(nodes []*models.Node) ([]*models.Node, error) {
	if err := Validate(nodes); err != nil {
		return nil, err
	}

	done := make(map[string]bool, len(nodes))
	order := make([]*models.Node, 0, len(nodes))

	for len(order) < len(nodes) {
		node, ok := NextReady(nodes, func(id string) bool { return done[id] })
		if !ok {
			return nil, recovery.NewConfigurationError("", "invalid graph", ErrUnsatisfiableGraph)
		}

		done[node.ID] = true
		order = append(order, node)
	}

	return order, nil
}

// Dependents returns the ids of nodes that depend on id, directly or not,
// sorted.
func Dependents(nodes []*models.Node, id string) []string {
	reached := map[string]bool{id: true}

	for changed := true; changed; {
		changed = false

		for _, node := range nodes {
			if reached[node.ID] {
				continue
			}

			for _, dep := range node.DependsOn {
				if reached[dep] {
					reached[node.ID] = true
					changed = true

					break
				}
			}
		}
	}

	delete(reached, id)

	ids := make([]string, 0, len(reached))
	for dependent := range reached {
		ids = append(ids, dependent)
	}

	sort.Strings(ids)

	return ids
}
