package registry

import (
	"log/slog"
	"testing"

	"github.com/dukex/relay/pkg/functions"
	"github.com/dukex/relay/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterDefaultExecutors(t *testing.T) {
	registry := NewRegistry(slog.Default())
	registry.RegisterDefaultExecutors(Dependencies{Functions: functions.NewLibrary()})

	assert.Equal(t, []models.NodeType{
		models.NodeTypeAction,
		models.NodeTypeCondition,
		models.NodeTypeTransformer,
		models.NodeTypeTrigger,
	}, registry.Types())

	for _, nodeType := range registry.Types() {
		executor, err := registry.Get(nodeType)
		require.NoError(t, err)
		assert.Equal(t, nodeType, executor.Type())
	}
}

func TestGet_Unknown(t *testing.T) {
	registry := NewRegistry(slog.Default())

	_, err := registry.Get("delay")
	assert.ErrorIs(t, err, ErrExecutorNotFound)
}
