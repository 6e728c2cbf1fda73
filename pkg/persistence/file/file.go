// Package file provides file-based persistence, one JSON document per entity.
package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dukex/relay/pkg/models"
	"github.com/dukex/relay/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root           string
	scenarioRepo   *ScenarioRepository
	nodeRepo       *NodeRepository
	appRepo        *AppRepository
	connectionRepo *ConnectionRepository
	executionRepo  *ExecutionRepository
	checkpointRepo *CheckpointRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) persistence.Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:           cleanRoot,
		scenarioRepo:   &ScenarioRepository{docs: newCollection[models.Scenario](cleanRoot, "scenarios", "scenario", persistence.ErrScenarioNotFound)},
		nodeRepo:       &NodeRepository{root: cleanRoot},
		appRepo:        &AppRepository{docs: newCollection[models.App](cleanRoot, "apps", "app", persistence.ErrAppNotFound)},
		connectionRepo: &ConnectionRepository{docs: newCollection[models.Connection](cleanRoot, "connections", "connection", persistence.ErrConnectionNotFound)},
		executionRepo:  &ExecutionRepository{docs: newCollection[models.Execution](cleanRoot, "executions", "execution", persistence.ErrExecutionNotFound)},
		checkpointRepo: &CheckpointRepository{docs: newCollection[models.Checkpoint](cleanRoot, "checkpoints", "checkpoint", persistence.ErrCheckpointNotFound)},
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks the root directory exists and is writable.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if err := os.MkdirAll(fp.root, 0750); err != nil {
		return fmt.Errorf("file persistence root %s: %w", fp.root, err)
	}

	if _, err := os.Stat(fp.root); errors.Is(err, os.ErrNotExist) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) ScenarioRepository() persistence.ScenarioRepository {
	return fp.scenarioRepo
}

func (fp *Persistence) NodeRepository() persistence.NodeRepository {
	return fp.nodeRepo
}

func (fp *Persistence) AppRepository() persistence.AppRepository {
	return fp.appRepo
}

func (fp *Persistence) ConnectionRepository() persistence.ConnectionRepository {
	return fp.connectionRepo
}

func (fp *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return fp.executionRepo
}

func (fp *Persistence) CheckpointRepository() persistence.CheckpointRepository {
	return fp.checkpointRepo
}
