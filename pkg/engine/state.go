package engine

import (
	"maps"
	"slices"
	"time"

	"github.com/dukex/relay/pkg/models"
)

// runState is owned by the goroutine running one execution and never shared.
type runState struct {
	nodes []*models.Node
	byID  map[string]*models.Node

	// completed holds nodes that ran, used a fallback or were skipped after a
	// failure. skipped holds nodes switched off by a false condition, mapped to
	// that condition's id.
	completed map[string]bool
	skipped   map[string]string

	outputs map[string]map[string]any
	retries map[string]int

	// retrying forces the next iteration to re-run this node.
	retrying string

	started   time.Time
	nodeTimes []time.Duration
}

func newRunState(nodes []*models.Node, started time.Time) *runState {
	byID := make(map[string]*models.Node, len(nodes))
	for _, node := range nodes {
		byID[node.ID] = node
	}

	return &runState{
		nodes:     nodes,
		byID:      byID,
		completed: make(map[string]bool),
		skipped:   make(map[string]string),
		outputs:   make(map[string]map[string]any),
		retries:   make(map[string]int),
		started:   started,
	}
}

func (s *runState) done(id string) bool {
	if s.completed[id] {
		return true
	}

	_, skipped := s.skipped[id]

	return skipped
}

func (s *runState) doneCount() int {
	count := 0

	for _, node := range s.nodes {
		if s.done(node.ID) {
			count++
		}
	}

	return count
}

func (s *runState) finished() bool {
	return s.doneCount() == len(s.nodes)
}

func (s *runState) progress() float64 {
	if len(s.nodes) == 0 {
		return 100
	}

	return float64(s.doneCount()) / float64(len(s.nodes)) * 100
}

// estimatedRemaining extrapolates the mean node duration over the nodes left.
func (s *runState) estimatedRemaining() time.Duration {
	if len(s.nodeTimes) == 0 {
		return 0
	}

	var total time.Duration
	for _, d := range s.nodeTimes {
		total += d
	}

	remaining := len(s.nodes) - s.doneCount()

	return total / time.Duration(len(s.nodeTimes)) * time.Duration(remaining)
}

// markSkipped adds the direct dependents of a false condition to the skip-set,
// then sweeps: any pending node whose dependencies are all in the skip-set is
// skipped too, until nothing changes. Returns the newly skipped ids in order.
func (s *runState) markSkipped(conditionID string) []string {
	var marked []string

	for _, node := range s.nodes {
		if !s.done(node.ID) && node.DependsOnNode(conditionID) {
			s.skipped[node.ID] = conditionID
			marked = append(marked, node.ID)
		}
	}

	for changed := len(marked) > 0; changed; {
		changed = false

		for _, node := range s.nodes {
			if s.done(node.ID) || len(node.DependsOn) == 0 || !s.allSkipped(node.DependsOn) {
				continue
			}

			s.skipped[node.ID] = conditionID
			marked = append(marked, node.ID)
			changed = true
		}
	}

	return marked
}

func (s *runState) allSkipped(ids []string) bool {
	for _, id := range ids {
		if _, ok := s.skipped[id]; !ok {
			return false
		}
	}

	return true
}

// conflicts returns nodes that are both in the skip-set and completed.
func (s *runState) conflicts() []string {
	var ids []string

	for id := range s.skipped {
		if s.completed[id] {
			ids = append(ids, id)
		}
	}

	slices.Sort(ids)

	return ids
}

func (s *runState) snapshot(currentNodeID string, now time.Time) models.Snapshot {
	completed := make([]string, 0, len(s.completed))
	skipped := make([]string, 0, len(s.skipped))

	for _, node := range s.nodes {
		if s.completed[node.ID] {
			completed = append(completed, node.ID)
		}

		if _, ok := s.skipped[node.ID]; ok {
			skipped = append(skipped, node.ID)
		}
	}

	outputs := make(map[string]map[string]any, len(s.outputs))
	for id, output := range s.outputs {
		outputs[id] = maps.Clone(output)
	}

	return models.Snapshot{
		CompletedNodes: completed,
		SkippedNodes:   skipped,
		CurrentNodeID:  currentNodeID,
		NodeOutputs:    outputs,
		RetryCounts:    maps.Clone(s.retries),
		Timestamp:      now,
	}
}
