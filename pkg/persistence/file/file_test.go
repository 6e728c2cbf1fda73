package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dukex/relay/pkg/models"
	"github.com/dukex/relay/pkg/persistence/persistencetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPersistence(t *testing.T) {
	p := NewPersistence("/tmp/test")
	assert.Equal(t, "/tmp/test", p.(*Persistence).root)

	p = NewPersistence("file:///tmp/test")
	assert.Equal(t, "/tmp/test", p.(*Persistence).root)
}

func TestPersistence_Contract(t *testing.T) {
	persistencetest.Run(t, NewPersistence(t.TempDir()))
}

func TestPersistence_WritesOneDocumentPerExecution(t *testing.T) {
	dir := t.TempDir()
	p := NewPersistence(dir)

	err := p.ExecutionRepository().Save(t.Context(), &models.Execution{ID: "exec-1", ScenarioID: "s"})
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(dir, "executions", "exec-1.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestPersistence_RejectsPathTraversal(t *testing.T) {
	p := NewPersistence(t.TempDir())

	_, err := p.ExecutionRepository().GetByID(t.Context(), "../etc/passwd")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid characters")

	err = p.NodeRepository().Save(t.Context(), &models.Node{ID: "n", ScenarioID: "a/b", Type: models.NodeTypeTrigger})
	assert.Error(t, err)
}
