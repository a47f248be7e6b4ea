// Package sandbox hosts the user-code runners behind the engine's
// CodeRunner capability: an embedded JavaScript interpreter and a
// subprocess-based Python runner.
package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dop251/goja"
)

// JSRunner evaluates user JavaScript in a fresh goja VM per call. The
// code is wrapped in an async IIFE so top-level return and await both
// work; $input mirrors the n8n helper with all/first/last over
// normalised {json: item} records.
type JSRunner struct{}

func NewJSRunner() *JSRunner {
	return &JSRunner{}
}

func (r *JSRunner) Run(ctx context.Context, code string, input any) (any, error) {
	vm := goja.New()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt("execution cancelled")
		case <-done:
		}
	}()

	if err := injectInput(vm, input); err != nil {
		return nil, fmt.Errorf("Init Error: %s", err)
	}

	wrapped := "(async () => {\n" + code + "\n})()"
	value, err := vm.RunString(wrapped)
	if err != nil {
		return nil, err
	}

	// RunString drains the job queue, so a well-behaved promise has
	// settled by now. A still-pending one is blocked on host I/O the
	// sandbox does not provide.
	if promise, ok := value.Export().(*goja.Promise); ok {
		switch promise.State() {
		case goja.PromiseStateFulfilled:
			value = promise.Result()
		case goja.PromiseStateRejected:
			return nil, fmt.Errorf("%s", promise.Result().String())
		default:
			return nil, fmt.Errorf("code returned a promise that never settled")
		}
	}

	return exportValue(vm, value)
}

// injectInput defines globalThis.$input. The input travels as a JSON
// literal parsed inside the VM so the object graph is native to the
// interpreter.
func injectInput(vm *goja.Runtime, input any) error {
	raw, err := json.Marshal(input)
	if err != nil {
		raw = []byte("{}")
	}
	escaped := strings.ReplaceAll(string(raw), `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `'`, `\'`)

	init := `
(function() {
    const rawInput = JSON.parse('` + escaped + `');
    const items = Array.isArray(rawInput) ? rawInput : [rawInput];
    const normalizedItems = items.map(item => {
        if (item && typeof item === 'object' && 'json' in item) return item;
        return { json: item };
    });
    globalThis.$input = {
        all: () => normalizedItems,
        first: () => normalizedItems[0],
        last: () => normalizedItems[normalizedItems.length - 1]
    };
})();
`
	_, err = vm.RunString(init)
	return err
}

// exportValue serialises the result through the VM's own JSON.stringify
// so prototypes, getters and cycles behave exactly as they would in the
// browser. undefined becomes an empty object.
func exportValue(vm *goja.Runtime, value goja.Value) (any, error) {
	if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
		return map[string]any{}, nil
	}

	jsonObj := vm.Get("JSON").ToObject(vm)
	stringify, ok := goja.AssertFunction(jsonObj.Get("stringify"))
	if !ok {
		return nil, fmt.Errorf("Serialization Error: JSON.stringify unavailable")
	}
	serialized, err := stringify(goja.Undefined(), value)
	if err != nil {
		return nil, fmt.Errorf("Serialization Error: %s", err)
	}

	var out any
	if err := json.Unmarshal([]byte(serialized.String()), &out); err != nil {
		return map[string]any{}, nil
	}
	return out, nil
}
