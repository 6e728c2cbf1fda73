package executors

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/dukex/relay/pkg/models"
	"github.com/dukex/relay/pkg/protocol"
	"github.com/dukex/relay/pkg/recovery"
	"github.com/goccy/go-json"
	"github.com/spf13/cast"
)

// metadataPrefix marks keys such as "__status_code" that merges leave behind.
const metadataPrefix = "__"

// Transformer reshapes data without any I/O.
type Transformer struct {
	functions protocol.FunctionLibrary
}

var _ protocol.NodeExecutor = (*Transformer)(nil)

func NewTransformer(functions protocol.FunctionLibrary) *Transformer {
	return &Transformer{functions: functions}
}

func (t *Transformer) Type() models.NodeType {
	return models.NodeTypeTransformer
}

func (t *Transformer) Execute(_ context.Context, node *models.Node, input map[string]any, env protocol.Env) (map[string]any, error) {
	cfg, ok := node.Config.(models.TransformerConfig)
	if !ok {
		return nil, recovery.NewConfigurationError(node.ID, "transformer node without transformer config", nil)
	}

	switch node.Operation {
	case models.OperationFilter:
		return filter(cfg, input), nil
	case models.OperationMap:
		return mapFields(cfg, input, env.Outputs), nil
	case models.OperationMerge:
		return merge(cfg, input, env.Outputs)
	case models.OperationConvert:
		return convert(cfg, input)
	case models.OperationFunction:
		return t.applyFunctions(cfg, input)
	default:
		return nil, recovery.NewConfigurationError(node.ID, fmt.Sprintf("unknown transformer operation %q", node.Operation), nil)
	}
}

func filter(cfg models.TransformerConfig, input map[string]any) map[string]any {
	var output map[string]any

	if len(cfg.Include) > 0 {
		output = make(map[string]any, len(cfg.Include))

		for _, path := range cfg.Include {
			if value, ok := models.GetPath(input, path); ok {
				models.SetPath(output, path, copyValue(value))
			}
		}
	} else {
		output = deepCopy(input)
	}

	for _, path := range cfg.Exclude {
		models.DeletePath(output, path)
	}

	return output
}

// mapFields builds a new object where each target takes the value at its source
// path, read from the input or from a prior node output.
func mapFields(cfg models.TransformerConfig, input map[string]any, outputs map[string]map[string]any) map[string]any {
	output := make(map[string]any, len(cfg.Mappings))

	for target, source := range cfg.Mappings {
		if value, ok := lookup(source, input, outputs); ok {
			models.SetPath(output, target, value)
		}
	}

	return output
}

func merge(cfg models.TransformerConfig, input map[string]any, outputs map[string]map[string]any) (map[string]any, error) {
	output := withoutMetadata(input)

	for _, source := range cfg.Sources {
		prior, ok := outputs[source.NodeID]
		if !ok {
			continue
		}

		value := any(prior)
		if source.Path != "" {
			if value, ok = models.GetPath(prior, source.Path); !ok {
				continue
			}
		}

		object, ok := value.(map[string]any)
		if !ok {
			return nil, recovery.NewValidationError(source.NodeID, "merge source is not an object")
		}

		if err := mergo.Merge(&output, withoutMetadata(object), mergo.WithOverride, mergo.WithAppendSlice); err != nil {
			return nil, fmt.Errorf("merge %s: %w", source.NodeID, err)
		}
	}

	return output, nil
}

func convert(cfg models.TransformerConfig, input map[string]any) (map[string]any, error) {
	output := deepCopy(input)

	for _, conversion := range cfg.Conversions {
		value, ok := models.GetPath(output, conversion.Field)
		if !ok {
			continue
		}

		converted, err := convertValue(value, conversion.Type)
		if err != nil {
			return nil, &recovery.ValidationError{
				Field:  conversion.Field,
				Reason: fmt.Sprintf("cannot convert to %s", conversion.Type),
				Err:    err,
			}
		}

		models.SetPath(output, conversion.Field, converted)
	}

	return output, nil
}

func convertValue(value any, to string) (any, error) {
	switch to {
	case "string":
		switch value.(type) {
		case map[string]any, []any:
			encoded, err := json.Marshal(value)

			return string(encoded), err
		}

		return cast.ToStringE(value)
	case "number":
		return cast.ToFloat64E(value)
	case "boolean":
		return cast.ToBoolE(value)
	case "date":
		t, err := cast.ToTimeE(value)
		if err != nil {
			return nil, err
		}

		return t.UTC().Format(time.RFC3339), nil
	case "json":
		s, ok := value.(string)
		if !ok {
			return value, nil
		}

		var decoded any
		if err := json.Unmarshal([]byte(s), &decoded); err != nil {
			return nil, err
		}

		return decoded, nil
	default:
		return nil, fmt.Errorf("unsupported conversion type %q", to)
	}
}

func (t *Transformer) applyFunctions(cfg models.TransformerConfig, input map[string]any) (map[string]any, error) {
	output := deepCopy(input)

	for _, call := range cfg.Functions {
		value := any(output)
		if call.Field != "" {
			value, _ = models.GetPath(output, call.Field)
		}

		result := t.functions.Run(call.FunctionID, value, call.Params)
		if !result.Success {
			return nil, recovery.NewValidationError(call.Field, fmt.Sprintf("%s: %s", call.FunctionID, result.Error))
		}

		target := call.Target
		if target == "" {
			target = call.Field
		}

		if target == "" {
			target = "result"
		}

		models.SetPath(output, target, result.Value)
	}

	return output, nil
}

func withoutMetadata(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))

	for k, v := range in {
		if strings.HasPrefix(k, metadataPrefix) {
			continue
		}

		out[k] = copyValue(v)
	}

	return out
}

func deepCopy(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = copyValue(v)
	}

	return out
}

func copyValue(v any) any {
	switch value := v.(type) {
	case map[string]any:
		return deepCopy(value)
	case []any:
		out := make([]any, len(value))
		for i, item := range value {
			out[i] = copyValue(item)
		}

		return out
	default:
		return v
	}
}

