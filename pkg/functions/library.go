// Package functions holds the transformation functions available to transformer nodes.
package functions

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dukex/relay/pkg/protocol"
	"github.com/mitchellh/mapstructure"
)

// Func transforms value. Params are decoded by the function itself.
type Func func(value any, params map[string]any) (any, error)

// Library is a registry of functions keyed by id, such as "date.format".
type Library struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

var _ protocol.FunctionLibrary = (*Library)(nil)

// NewLibrary returns a library with every builtin function registered.
func NewLibrary() *Library {
	l := &Library{funcs: make(map[string]Func)}

	registerDateFunctions(l)
	registerStringFunctions(l)
	registerNumberFunctions(l)

	return l
}

// Register adds fn under id, replacing any existing function.
func (l *Library) Register(id string, fn Func) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.funcs[id] = fn
}

// IDs returns the registered function ids in order.
func (l *Library) IDs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ids := make([]string, 0, len(l.funcs))
	for id := range l.funcs {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

// Run executes functionID. Failures are reported in the result, never panicked.
func (l *Library) Run(functionID string, value any, params map[string]any) protocol.FunctionResult {
	l.mu.RLock()
	fn, ok := l.funcs[functionID]
	l.mu.RUnlock()

	if !ok {
		return protocol.FunctionResult{Error: fmt.Sprintf("unknown function %q", functionID)}
	}

	result, err := fn(value, params)
	if err != nil {
		return protocol.FunctionResult{Error: fmt.Sprintf("%s: %v", functionID, err)}
	}

	return protocol.FunctionResult{Success: true, Value: result}
}

func decodeParams(params map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
		TagName:          "param",
	})
	if err != nil {
		return err
	}

	if err := decoder.Decode(params); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}

	return nil
}
