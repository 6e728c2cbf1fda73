package engine

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/dukex/relay/pkg/models"
	"github.com/mitchellh/mapstructure"
)

// Trigger metadata keys carried by recovery executions.
const (
	MetadataCheckpointID    = "checkpoint_id"
	MetadataStartFromNodeID = "start_from_node_id"
	MetadataSkipFailedNode  = "skip_failed_node"
)

// ResumeOptions tune how a recovery execution continues from a checkpoint.
type ResumeOptions struct {
	CheckpointID    string `mapstructure:"checkpoint_id"`
	StartFromNodeID string `mapstructure:"start_from_node_id"`
	SkipFailedNode  bool   `mapstructure:"skip_failed_node"`
}

// Metadata encodes the options into trigger metadata.
func (o ResumeOptions) Metadata() map[string]any {
	return map[string]any{
		MetadataCheckpointID:    o.CheckpointID,
		MetadataStartFromNodeID: o.StartFromNodeID,
		MetadataSkipFailedNode:  o.SkipFailedNode,
	}
}

func DecodeResumeOptions(metadata map[string]any) (ResumeOptions, error) {
	var opts ResumeOptions

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &opts,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return opts, err
	}

	if err := decoder.Decode(metadata); err != nil {
		return opts, fmt.Errorf("invalid resume options: %w", err)
	}

	return opts, nil
}

// SeedFrom rebuilds the progress stored in cp. Retry counters start from zero.
// StartFromNodeID re-runs that node and everything depending on it.
// SkipFailedNode treats the node the checkpoint stopped at as skipped so its
// dependents run. The returned results are the original execution's records
// for every seeded node, to carry over into the recovery execution.
func SeedFrom(nodes []*models.Node, cp *models.Checkpoint, original *models.Execution, opts ResumeOptions, now time.Time) (*Seed, []models.NodeResult) {
	snapshot := cp.Snapshot

	rerun := map[string]bool{}
	if opts.StartFromNodeID != "" {
		rerun[opts.StartFromNodeID] = true

		for _, id := range Dependents(nodes, opts.StartFromNodeID) {
			rerun[id] = true
		}
	}

	seed := &Seed{
		Skipped:     map[string]string{},
		Outputs:     map[string]map[string]any{},
		RetryCounts: map[string]int{},
	}

	for _, id := range snapshot.CompletedNodes {
		if rerun[id] {
			continue
		}

		seed.Completed = append(seed.Completed, id)

		if output, ok := snapshot.NodeOutputs[id]; ok {
			seed.Outputs[id] = maps.Clone(output)
		}
	}

	for _, id := range snapshot.SkippedNodes {
		if rerun[id] {
			continue
		}

		var by string
		if original != nil {
			if result, ok := original.NodeResult(id); ok {
				by = result.SkippedBy
			}
		}

		seed.Skipped[id] = by
	}

	var results []models.NodeResult

	if original != nil {
		for _, id := range seed.Completed {
			if result, ok := original.NodeResult(id); ok {
				results = append(results, result)
			}
		}

		for _, id := range snapshot.SkippedNodes {
			if _, ok := seed.Skipped[id]; !ok {
				continue
			}

			if result, ok := original.NodeResult(id); ok {
				results = append(results, result)
			}
		}
	}

	failed := snapshot.CurrentNodeID
	if opts.SkipFailedNode && failed != "" && !rerun[failed] && !slices.Contains(seed.Completed, failed) {
		seed.Completed = append(seed.Completed, failed)

		result := models.NodeResult{
			NodeID:    failed,
			Status:    models.NodeStatusSkipped,
			StartTime: now,
			EndTime:   &now,
			Error:     "skipped on resume",
		}

		for _, node := range nodes {
			if node.ID == failed {
				result.NodeType = node.Type
			}
		}

		results = append(results, result)
	}

	return seed, results
}
