package engine

import (
	"testing"
	"time"

	"github.com/dukex/relay/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestRunState_MarkSkipped(t *testing.T) {
	// gate is a condition; c and d hang off it, e joins d with a live branch.
	nodes := []*models.Node{
		node("a", 0),
		node("gate", 1, "a"),
		node("c", 2, "gate"),
		node("d", 3, "c"),
		node("e", 4, "d", "a"),
		node("f", 5, "a"),
	}

	s := newRunState(nodes, time.Now())
	s.completed["a"] = true
	s.completed["gate"] = true

	marked := s.markSkipped("gate")

	assert.Equal(t, []string{"c", "d"}, marked)
	assert.Equal(t, "gate", s.skipped["d"])
	assert.NotContains(t, s.skipped, "e")
	assert.NotContains(t, s.skipped, "f")
	assert.Empty(t, s.conflicts())
	assert.InDelta(t, 4.0/6.0*100, s.progress(), 0.001)
}

func TestRunState_EstimatedRemaining(t *testing.T) {
	s := newRunState([]*models.Node{node("a", 0), node("b", 1), node("c", 2), node("d", 3)}, time.Now())
	assert.Zero(t, s.estimatedRemaining())

	s.completed["a"] = true
	s.nodeTimes = append(s.nodeTimes, 2*time.Second)
	s.completed["b"] = true
	s.nodeTimes = append(s.nodeTimes, 4*time.Second)

	assert.Equal(t, 6*time.Second, s.estimatedRemaining())
}

func TestRunState_Snapshot(t *testing.T) {
	s := newRunState([]*models.Node{node("a", 0), node("b", 1, "a"), node("c", 2, "a")}, time.Now())
	s.completed["a"] = true
	s.skipped["c"] = "a"
	s.outputs["a"] = map[string]any{"id": 1}
	s.retries["b"] = 2

	now := time.Now()
	snapshot := s.snapshot("b", now)

	assert.Equal(t, []string{"a"}, snapshot.CompletedNodes)
	assert.Equal(t, []string{"c"}, snapshot.SkippedNodes)
	assert.Equal(t, "b", snapshot.CurrentNodeID)
	assert.Equal(t, 2, snapshot.RetryCounts["b"])
	assert.Equal(t, now, snapshot.Timestamp)

	// The snapshot is a copy.
	snapshot.NodeOutputs["a"]["id"] = 2
	assert.Equal(t, 1, s.outputs["a"]["id"])
}

func TestRunState_EmptyScenarioIsFinished(t *testing.T) {
	s := newRunState(nil, time.Now())

	assert.True(t, s.finished())
	assert.InDelta(t, 100, s.progress(), 0.001)
}
