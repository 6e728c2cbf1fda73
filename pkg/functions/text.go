package functions

import (
	"fmt"
	"math"
	"strings"

	"github.com/spf13/cast"
)

func registerStringFunctions(l *Library) {
	l.Register("string.upper", stringFunc(strings.ToUpper))
	l.Register("string.lower", stringFunc(strings.ToLower))
	l.Register("string.trim", stringFunc(strings.TrimSpace))
	l.Register("string.replace", func(value any, params map[string]any) (any, error) {
		var p struct {
			Search  string `param:"search"`
			Replace string `param:"replace"`
		}

		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}

		s, err := cast.ToStringE(value)
		if err != nil {
			return nil, err
		}

		return strings.ReplaceAll(s, p.Search, p.Replace), nil
	})
	l.Register("string.split", func(value any, params map[string]any) (any, error) {
		var p struct {
			Separator string `param:"separator"`
		}

		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}

		if p.Separator == "" {
			p.Separator = ","
		}

		s, err := cast.ToStringE(value)
		if err != nil {
			return nil, err
		}

		parts := strings.Split(s, p.Separator)
		out := make([]any, len(parts))

		for i, part := range parts {
			out[i] = strings.TrimSpace(part)
		}

		return out, nil
	})
	l.Register("string.join", func(value any, params map[string]any) (any, error) {
		var p struct {
			Separator string `param:"separator"`
		}

		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}

		items, err := cast.ToStringSliceE(value)
		if err != nil {
			return nil, err
		}

		return strings.Join(items, p.Separator), nil
	})
}

func stringFunc(fn func(string) string) Func {
	return func(value any, _ map[string]any) (any, error) {
		s, err := cast.ToStringE(value)
		if err != nil {
			return nil, err
		}

		return fn(s), nil
	}
}

func registerNumberFunctions(l *Library) {
	l.Register("number.round", func(value any, params map[string]any) (any, error) {
		var p struct {
			Precision int `param:"precision"`
		}

		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}

		f, err := cast.ToFloat64E(value)
		if err != nil {
			return nil, err
		}

		pow := math.Pow(10, float64(p.Precision))

		return math.Round(f*pow) / pow, nil
	})
	l.Register("number.multiply", func(value any, params map[string]any) (any, error) {
		var p struct {
			Factor float64 `param:"factor"`
		}

		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}

		f, err := cast.ToFloat64E(value)
		if err != nil {
			return nil, err
		}

		return f * p.Factor, nil
	})
	l.Register("number.parse", func(value any, _ map[string]any) (any, error) {
		f, err := cast.ToFloat64E(value)
		if err != nil {
			return nil, fmt.Errorf("not a number: %v", value)
		}

		return f, nil
	})
}
