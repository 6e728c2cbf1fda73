// Package template renders Go text templates against node inputs and prior outputs.
package template

import (
	"crypto/rand"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/goccy/go-json"
)

// Data is the context exposed to templates used inside scenario nodes.
type Data struct {
	Input       map[string]any            `json:"input"`
	Nodes       map[string]map[string]any `json:"nodes"`
	Trigger     map[string]any            `json:"trigger"`
	ExecutionID string                    `json:"execution_id"`
	ScenarioID  string                    `json:"scenario_id"`
}

// Map flattens Data into the map templates see: input fields at the top level
// plus .nodes, .trigger and .execution.
func (d Data) Map() map[string]any {
	out := make(map[string]any, len(d.Input)+3)
	for k, v := range d.Input {
		out[k] = v
	}

	nodes := make(map[string]any, len(d.Nodes))
	for id, output := range d.Nodes {
		nodes[id] = output
	}

	out["nodes"] = nodes
	out["trigger"] = d.Trigger
	out["execution"] = map[string]any{
		"id":          d.ExecutionID,
		"scenario_id": d.ScenarioID,
	}

	return out
}

// IsTemplate reports whether s opens a template action. An unterminated
// action still counts so that parsing reports it.
func IsTemplate(s string) bool {
	return strings.Contains(s, "{{")
}

var funcs = template.FuncMap{
	"now": func() string {
		return time.Now().UTC().Format(time.RFC3339)
	},
	"rand": func(max int) int {
		if max <= 0 {
			return 0
		}

		num := make([]byte, 1)
		if _, err := rand.Read(num); err != nil {
			return 0
		}

		return int(num[0]) % max
	},
	"json": func(v any) (string, error) {
		b, err := json.Marshal(v)

		return string(b), err
	},
	"default": func(fallback, v any) any {
		if v == nil || v == "" {
			return fallback
		}

		return v
	},
}

// RenderString executes templateStr and returns the raw text.
func RenderString(templateStr string, data any) (string, error) {
	tmpl, err := template.New("node").Funcs(funcs).Option("missingkey=zero").Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	return strings.ReplaceAll(buf.String(), "<no value>", ""), nil
}

// Render executes templateStr and coerces the result: JSON objects and arrays
// are decoded, numbers become float64 and booleans bool. Anything else is
// returned as a string.
func Render(templateStr string, data any) (any, error) {
	result, err := RenderString(templateStr, data)
	if err != nil {
		return nil, err
	}

	result = strings.TrimSpace(result)
	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		if err := json.Unmarshal([]byte(result), &jsonResult); err != nil {
			return nil, fmt.Errorf("failed to parse json '%s': %w", templateStr, err)
		}

		return jsonResult, nil
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}

// RenderValues renders every template string found in values, recursing into
// nested maps and slices. Non-template values are copied as is.
func RenderValues(values map[string]any, data any) (map[string]any, error) {
	out := make(map[string]any, len(values))

	for key, value := range values {
		rendered, err := renderValue(value, data)
		if err != nil {
			return nil, fmt.Errorf("render %s: %w", key, err)
		}

		out[key] = rendered
	}

	return out, nil
}

func renderValue(value any, data any) (any, error) {
	switch v := value.(type) {
	case string:
		if !IsTemplate(v) {
			return v, nil
		}

		return Render(v, data)
	case map[string]any:
		return RenderValues(v, data)
	case []any:
		out := make([]any, len(v))

		for i, item := range v {
			rendered, err := renderValue(item, data)
			if err != nil {
				return nil, err
			}

			out[i] = rendered
		}

		return out, nil
	default:
		return value, nil
	}
}
