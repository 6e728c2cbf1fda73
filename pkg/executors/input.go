// Package executors holds the strategies that run each node type.
package executors

import (
	"strings"

	"github.com/dukex/relay/pkg/models"
	"github.com/dukex/relay/pkg/protocol"
	"github.com/dukex/relay/pkg/recovery"
	"github.com/dukex/relay/pkg/template"
)

// ResolveInput builds the input of node. Mappings project copies of prior
// outputs by path, so executors never share state with other nodes. Static
// inputs override them. String statics containing template
// actions are rendered against the mapped input, prior outputs and the trigger.
func ResolveInput(node *models.Node, env protocol.Env) (map[string]any, error) {
	input := make(map[string]any)

	for _, mapping := range node.InputMappings {
		value, ok := resolveSource(mapping.Source, env.Outputs)
		if !ok {
			continue
		}

		models.SetPath(input, mapping.Target, copyValue(value))
	}

	if node.Config == nil {
		return input, nil
	}

	statics := node.Config.Statics()
	if len(statics) == 0 {
		return input, nil
	}

	rendered, err := template.RenderValues(statics, TemplateData(input, env).Map())
	if err != nil {
		return nil, &recovery.ValidationError{Field: "static_inputs", Reason: "template rendering failed", Err: err}
	}

	for key, value := range rendered {
		input[key] = value
	}

	return input, nil
}

// TemplateData exposes input and the execution state to templates.
func TemplateData(input map[string]any, env protocol.Env) template.Data {
	data := template.Data{
		Input: input,
		Nodes: env.Outputs,
	}

	if env.Execution != nil {
		data.Trigger = env.Execution.Trigger.Data
		data.ExecutionID = env.Execution.ID
		data.ScenarioID = env.Execution.ScenarioID
	}

	return data
}

// resolveSource reads "<nodeId>.<path>" from outputs. A bare node id yields
// the whole output.
func resolveSource(source string, outputs map[string]map[string]any) (any, bool) {
	nodeID, path, _ := strings.Cut(source, ".")

	output, ok := outputs[nodeID]
	if !ok {
		return nil, false
	}

	if path == "" {
		return output, true
	}

	return models.GetPath(output, path)
}

// lookup reads field from input first, then from prior outputs as "<nodeId>.<path>".
func lookup(field string, input map[string]any, outputs map[string]map[string]any) (any, bool) {
	if value, ok := models.GetPath(input, field); ok {
		return value, true
	}

	return resolveSource(field, outputs)
}
