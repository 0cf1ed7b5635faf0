package autosplit

import (
	"maps"
	"slices"
)

// Env is everything a route condition can see on one tick.
type Env struct {
	// Old and Current are the transition pair emitted this tick, or the
	// last confirmed scenes when Transition is false.
	Old        string
	Current    string
	Transition bool
	Scene      string
	Next       string
	Fields     map[string]any
	// Incremented marks fields that grew by exactly one since the last tick.
	Incremented map[string]bool
	Mismatch    bool
	Index       int
	Menu        string

	// Split names the condition being evaluated, for logs and errors.
	Split string
}

// reserved names cannot be shadowed by field names.
var reserved = map[string]struct{}{
	"old": {}, "current": {}, "transition": {}, "scene": {}, "next": {},
	"fields": {}, "incremented": {}, "mismatch": {}, "index": {}, "menu": {},
	"call": {},
}

func (e Env) withDefaults() Env {
	if e.Fields == nil {
		e.Fields = map[string]any{}
	}
	if e.Incremented == nil {
		e.Incremented = map[string]bool{}
	}
	return e
}

func (e Env) label() string {
	if e.Split != "" {
		return e.Split
	}
	return "unknown"
}

// Vars flattens the env into the variables conditions refer to. Each field
// is also exposed under its own name unless that name is reserved.
func (e Env) Vars() map[string]any {
	e = e.withDefaults()
	vars := map[string]any{
		"old":         e.Old,
		"current":     e.Current,
		"transition":  e.Transition,
		"scene":       e.Scene,
		"next":        e.Next,
		"fields":      maps.Clone(e.Fields),
		"incremented": maps.Clone(e.Incremented),
		"mismatch":    e.Mismatch,
		"index":       e.Index,
		"menu":        e.Menu,
	}
	for name, value := range e.Fields {
		if _, taken := reserved[name]; taken {
			continue
		}
		vars[name] = value
	}
	return vars
}

// Evaluator compiles and runs route conditions.
type Evaluator interface {
	Evaluate(env Env, expr string) (any, error)
	Compile(expr string, opts ...CompileOption) (CompiledRule, error)
}

// CompiledRule represents a reusable condition program.
type CompiledRule interface {
	Evaluate(env Env) (any, error)
}

// CompileOption configures evaluator compile behaviour.
type CompileOption interface {
	applyCompileOption(*compileConfig)
}

type compileConfig struct {
	fields []string
}

type compileOptionFunc func(*compileConfig)

func (f compileOptionFunc) applyCompileOption(cfg *compileConfig) {
	if f != nil {
		f(cfg)
	}
}

// WithFieldNames declares the field readings a condition may refer to by
// name. Engines that type check at compile time need it.
func WithFieldNames(names ...string) CompileOption {
	return compileOptionFunc(func(cfg *compileConfig) {
		for _, name := range names {
			if _, taken := reserved[name]; taken || name == "" {
				continue
			}
			if !slices.Contains(cfg.fields, name) {
				cfg.fields = append(cfg.fields, name)
			}
		}
	})
}

func applyCompileOptions(opts []CompileOption) compileConfig {
	cfg := compileConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt.applyCompileOption(&cfg)
		}
	}
	slices.Sort(cfg.fields)
	return cfg
}
