package executors

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/dukex/relay/pkg/models"
	"github.com/dukex/relay/pkg/protocol"
	"github.com/dukex/relay/pkg/recovery"
	"github.com/dukex/relay/pkg/template"
	"github.com/spf13/cast"
)

// ResultKey holds the boolean outcome in a condition node's output.
const ResultKey = "result"

// Condition evaluates ordered clauses. Each clause is joined to the running
// result by the combinator of the clause before it.
type Condition struct{}

var _ protocol.NodeExecutor = (*Condition)(nil)

func NewCondition() *Condition {
	return &Condition{}
}

func (c *Condition) Type() models.NodeType {
	return models.NodeTypeCondition
}

func (c *Condition) Execute(_ context.Context, node *models.Node, input map[string]any, env protocol.Env) (map[string]any, error) {
	cfg, ok := node.Config.(models.ConditionConfig)
	if !ok {
		return nil, recovery.NewConfigurationError(node.ID, "condition node without condition config", nil)
	}

	result := true
	evaluated := make([]any, 0, len(cfg.Clauses))
	data := TemplateData(input, env).Map()

	for i, clause := range cfg.Clauses {
		actual, _ := lookup(clause.Field, input, env.Outputs)

		expected := clause.Value
		if s, ok := expected.(string); ok && template.IsTemplate(s) {
			rendered, err := template.Render(s, data)
			if err != nil {
				return nil, &recovery.ValidationError{Field: clause.Field, Reason: "invalid clause value", Err: err}
			}

			expected = rendered
		}

		matched, err := Evaluate(clause.Operator, actual, expected)
		if err != nil {
			return nil, err
		}

		if i == 0 {
			result = matched
		} else if cfg.Clauses[i-1].Combinator == models.CombinatorOr {
			result = result || matched
		} else {
			result = result && matched
		}

		evaluated = append(evaluated, map[string]any{
			"field":    clause.Field,
			"operator": clause.Operator,
			"value":    expected,
			"actual":   actual,
			"result":   matched,
		})
	}

	message := "condition not met"
	if result {
		message = "condition met"
	}

	return map[string]any{
		ResultKey:    result,
		"conditions": evaluated,
		"message":    message,
	}, nil
}

// IsFalse reports whether a condition output evaluated to false.
func IsFalse(output map[string]any) bool {
	result, ok := output[ResultKey].(bool)

	return ok && !result
}

// Evaluate applies operator to actual and expected.
func Evaluate(operator string, actual, expected any) (bool, error) {
	switch operator {
	case "eq", "equals":
		return equal(actual, expected), nil
	case "neq", "notEquals":
		return !equal(actual, expected), nil
	case "gt":
		return compare(actual, expected) > 0, nil
	case "gte":
		return compare(actual, expected) >= 0, nil
	case "lt":
		return compare(actual, expected) < 0, nil
	case "lte":
		return compare(actual, expected) <= 0, nil
	case "contains":
		return contains(actual, expected), nil
	case "startsWith":
		return strings.HasPrefix(cast.ToString(actual), cast.ToString(expected)), nil
	case "endsWith":
		return strings.HasSuffix(cast.ToString(actual), cast.ToString(expected)), nil
	case "empty":
		return isEmpty(actual), nil
	case "notEmpty":
		return !isEmpty(actual), nil
	default:
		return false, recovery.NewValidationError("operator", fmt.Sprintf("unknown operator %q", operator))
	}
}

func equal(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}

	if a == nil || b == nil {
		return false
	}

	if af, aerr := cast.ToFloat64E(a); aerr == nil {
		if bf, berr := cast.ToFloat64E(b); berr == nil {
			return af == bf
		}
	}

	return cast.ToString(a) == cast.ToString(b)
}

// compare orders numbers numerically, then times chronologically, and falls
// back to string ordering. A missing value sorts before everything else.
func compare(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}

	af, aerr := cast.ToFloat64E(a)
	bf, berr := cast.ToFloat64E(b)

	if aerr == nil && berr == nil {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}

	at, aerr := cast.ToTimeE(a)
	bt, berr := cast.ToTimeE(b)

	if aerr == nil && berr == nil {
		return at.Compare(bt)
	}

	return strings.Compare(cast.ToString(a), cast.ToString(b))
}

func contains(actual, expected any) bool {
	switch v := actual.(type) {
	case []any:
		for _, item := range v {
			if equal(item, expected) {
				return true
			}
		}

		return false
	case map[string]any:
		_, ok := v[cast.ToString(expected)]

		return ok
	case nil:
		return false
	default:
		return strings.Contains(cast.ToString(actual), cast.ToString(expected))
	}
}

func isEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []any:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	default:
		return false
	}
}
