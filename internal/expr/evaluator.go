// Package expr evaluates pipeline task expressions using JavaScript (goja).
// Expressions share a single mutable `state` object per run, so a task can
// publish values its successors read.
package expr

import (
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"
)

// Evaluator runs JavaScript snippets against a shared per-run VM. Task
// bodies execute on many workers concurrently; the evaluator serialises
// access to the VM, which is not goroutine-safe.
type Evaluator struct {
	mu sync.Mutex
	vm *goja.Runtime
}

// NewEvaluator creates an evaluator with an empty state object and helper
// bindings (sleep_ms).
func NewEvaluator() (*Evaluator, error) {
	vm := goja.New()
	if _, err := vm.RunString("var state = {};"); err != nil {
		return nil, fmt.Errorf("init state: %w", err)
	}
	if err := vm.Set("sleep_ms", func(ms int) {
		time.Sleep(time.Duration(ms) * time.Millisecond)
	}); err != nil {
		return nil, fmt.Errorf("bind sleep_ms: %w", err)
	}
	return &Evaluator{vm: vm}, nil
}

// Eval runs a snippet and returns its completion value.
func (e *Evaluator) Eval(src string) (any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	v, err := e.vm.RunString(src)
	if err != nil {
		return nil, fmt.Errorf("eval: %w", err)
	}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, nil
	}
	return v.Export(), nil
}

// State returns the value of a field on the shared state object, or nil.
func (e *Evaluator) State(key string) any {
	e.mu.Lock()
	defer e.mu.Unlock()

	obj := e.vm.Get("state")
	if obj == nil {
		return nil
	}
	v := obj.ToObject(e.vm).Get(key)
	if v == nil || goja.IsUndefined(v) {
		return nil
	}
	return v.Export()
}
