package executors

import (
	"context"
	"maps"

	"github.com/dukex/relay/pkg/models"
	"github.com/dukex/relay/pkg/protocol"
)

// Trigger seeds the execution: its output is the trigger payload.
type Trigger struct{}

var _ protocol.NodeExecutor = (*Trigger)(nil)

func NewTrigger() *Trigger {
	return &Trigger{}
}

func (t *Trigger) Type() models.NodeType {
	return models.NodeTypeTrigger
}

func (t *Trigger) Execute(_ context.Context, _ *models.Node, input map[string]any, env protocol.Env) (map[string]any, error) {
	output := make(map[string]any)

	if env.Execution != nil {
		output = deepCopy(env.Execution.Trigger.Data)
	}

	maps.Copy(output, input)

	return output, nil
}
