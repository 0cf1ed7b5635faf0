package autosplit

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Function represents a callable registered against evaluators.
type Function func(args ...any) (any, error)

// FunctionRegistry stores custom functions. Lookups ignore case; Names
// reports the spelling used at registration.
type FunctionRegistry struct {
	mu        sync.RWMutex
	functions map[string]namedFunction
}

type namedFunction struct {
	name string
	fn   Function
}

// NewFunctionRegistry constructs an empty registry.
func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{
		functions: make(map[string]namedFunction),
	}
}

// Register stores fn under name guarding against duplicates.
func (r *FunctionRegistry) Register(name string, fn Function) error {
	if fn == nil {
		return fmt.Errorf("autosplit: function %q is nil", name)
	}
	if name == "" {
		return fmt.Errorf("autosplit: function name must not be empty")
	}
	key := strings.ToLower(name)
	if _, taken := reserved[key]; taken {
		return fmt.Errorf("autosplit: function name %q is reserved", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.functions == nil {
		r.functions = make(map[string]namedFunction)
	}
	if _, exists := r.functions[key]; exists {
		return fmt.Errorf("autosplit: function %q already registered", name)
	}
	r.functions[key] = namedFunction{name: name, fn: fn}
	return nil
}

// Clone returns a shallow copy of the registry.
func (r *FunctionRegistry) Clone() *FunctionRegistry {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	clone := &FunctionRegistry{
		functions: make(map[string]namedFunction, len(r.functions)),
	}
	for key, entry := range r.functions {
		clone.functions[key] = entry
	}
	return clone
}

// Call executes the function registered for name.
func (r *FunctionRegistry) Call(name string, args ...any) (any, error) {
	if r == nil {
		return nil, fmt.Errorf("autosplit: function registry is nil")
	}
	r.mu.RLock()
	entry, ok := r.functions[strings.ToLower(name)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("autosplit: function %q not registered", name)
	}
	return entry.fn(args...)
}

// Names returns registered function names sorted alphabetically.
func (r *FunctionRegistry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.functions))
	for _, entry := range r.functions {
		names = append(names, entry.name)
	}
	sort.Strings(names)
	return names
}

// SceneFunctions returns a registry with helpers for scene conditions.
// prefixed(scene, prefix) tests a scene name prefix and oneOf(value, a, b...)
// tests membership.
func SceneFunctions() *FunctionRegistry {
	r := NewFunctionRegistry()
	_ = r.Register("prefixed", func(args ...any) (any, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("prefixed expects (scene, prefix), got %d args", len(args))
		}
		scene, ok1 := args[0].(string)
		prefix, ok2 := args[1].(string)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("prefixed expects string arguments")
		}
		return strings.HasPrefix(scene, prefix), nil
	})
	_ = r.Register("oneOf", func(args ...any) (any, error) {
		if len(args) < 2 {
			return nil, fmt.Errorf("oneOf expects a value and at least one candidate")
		}
		for _, candidate := range args[1:] {
			if candidate == args[0] {
				return true, nil
			}
		}
		return false, nil
	})
	return r
}
