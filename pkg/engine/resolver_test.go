package engine

import (
	"testing"

	"github.com/dukex/relay/pkg/models"
	"github.com/dukex/relay/pkg/recovery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func node(id string, position int, deps ...string) *models.Node {
	return &models.Node{ID: id, Type: models.NodeTypeAction, Position: position, DependsOn: deps}
}

func ids(nodes []*models.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}

	return out
}

func TestNextReady_TieBreaksByPositionThenID(t *testing.T) {
	nodes := []*models.Node{
		node("c", 1),
		node("b", 0),
		node("a", 1),
	}

	next, ok := NextReady(nodes, func(string) bool { return false })
	require.True(t, ok)
	assert.Equal(t, "b", next.ID)

	done := map[string]bool{"b": true}
	next, ok = NextReady(nodes, func(id string) bool { return done[id] })
	require.True(t, ok)
	assert.Equal(t, "a", next.ID)
}

func TestNextReady_WaitsForDependencies(t *testing.T) {
	nodes := []*models.Node{node("a", 0), node("b", 1, "a")}

	done := map[string]bool{"a": true, "b": true}
	_, ok := NextReady(nodes, func(id string) bool { return done[id] })
	assert.False(t, ok)

	next, ok := NextReady(nodes, func(id string) bool { return id == "a" })
	require.True(t, ok)
	assert.Equal(t, "b", next.ID)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		nodes    []*models.Node
		expected error
	}{
		{name: "valid", nodes: []*models.Node{node("a", 0), node("b", 1, "a")}},
		{name: "duplicate", nodes: []*models.Node{node("a", 0), node("a", 1)}, expected: ErrDuplicateNode},
		{name: "unknown dependency", nodes: []*models.Node{node("a", 0, "ghost")}, expected: ErrUnknownDependency},
		{name: "cycle", nodes: []*models.Node{node("a", 0, "c"), node("b", 1, "a"), node("c", 2, "b")}, expected: ErrCyclicGraph},
		{name: "self dependency", nodes: []*models.Node{node("a", 0, "a")}, expected: ErrCyclicGraph},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.nodes)
			if tt.expected == nil {
				assert.NoError(t, err)

				return
			}

			assert.ErrorIs(t, err, tt.expected)
			assert.True(t, recovery.IsConfigurationError(err))
		})
	}
}

func TestOrder(t *testing.T) {
	nodes := []*models.Node{
		node("notify", 0, "score"),
		node("score", 0, "start"),
		node("start", 5),
		node("audit", 1, "start"),
	}

	ordered, err := Order(nodes)
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "score", "notify", "audit"}, ids(ordered))
}

func TestDependents(t *testing.T) {
	nodes := []*models.Node{
		node("a", 0),
		node("b", 1, "a"),
		node("c", 2, "b"),
		node("d", 3, "a", "c"),
		node("e", 4),
	}

	assert.Equal(t, []string{"b", "c", "d"}, Dependents(nodes, "a"))
	assert.Equal(t, []string{"d"}, Dependents(nodes, "c"))
	assert.Empty(t, Dependents(nodes, "e"))
}
