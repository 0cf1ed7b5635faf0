package autosplit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/goliatone/go-autosplit/pkg/activity"
	"github.com/goliatone/go-autosplit/pkg/memory"
	"github.com/goliatone/go-autosplit/pkg/resolver"
	"github.com/goliatone/go-autosplit/pkg/state"
)

// Attacher opens the target process. It is retried every tick until it
// succeeds.
type Attacher func(ctx context.Context) (memory.Process, error)

// ProcessAttacher attaches to the running process called name.
func ProcessAttacher(name string) Attacher {
	return func(context.Context) (memory.Process, error) {
		return memory.Attach(name)
	}
}

// Option configures a Splitter.
type Option func(*splitterConfig)

type splitterConfig struct {
	log        logrus.FieldLogger
	evaluator  Evaluator
	cache      ProgramCache
	functions  *FunctionRegistry
	evalLogger EvaluatorLogger
	hooks      activity.Hooks
	channel    string
	store      state.Store[RouteRecord]
	runner     string
	interval   time.Duration
	layout     resolver.Layout
	attach     Attacher
	badNames   []string
	newRunID   func() string
	optErrs    []error
}

func applyOptions(opts []Option) splitterConfig {
	cfg := splitterConfig{
		interval: time.Second / DefaultTickRate,
		layout:   resolver.DefaultLayout(),
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithLogger routes splitter diagnostics, and those of the components it
// builds, to log.
func WithLogger(log logrus.FieldLogger) Option {
	return func(cfg *splitterConfig) {
		cfg.log = log
	}
}

// WithEvaluator sets the condition engine. The default is expr.
func WithEvaluator(e Evaluator) Option {
	return func(cfg *splitterConfig) {
		cfg.evaluator = e
	}
}

// WithProgramCache shares compiled programs with the default evaluator.
func WithProgramCache(cache ProgramCache) Option {
	return func(cfg *splitterConfig) {
		cfg.cache = cache
	}
}

// WithFunctionRegistry makes registry functions callable from conditions
// compiled by the default evaluator.
func WithFunctionRegistry(registry *FunctionRegistry) Option {
	return func(cfg *splitterConfig) {
		if registry == nil {
			return
		}
		cfg.functions = registry.Clone()
	}
}

// WithCustomFunction registers fn under name for the default evaluator. A
// rejected registration makes New fail.
func WithCustomFunction(name string, fn Function) Option {
	return func(cfg *splitterConfig) {
		if cfg.functions == nil {
			cfg.functions = NewFunctionRegistry()
		}
		if err := cfg.functions.Register(name, fn); err != nil {
			cfg.optErrs = append(cfg.optErrs, err)
		}
	}
}

// WithEvaluatorLogger receives every condition evaluation.
func WithEvaluatorLogger(logger EvaluatorLogger) Option {
	return func(cfg *splitterConfig) {
		cfg.evalLogger = logger
	}
}

// WithStore persists attempt counts and personal bests.
func WithStore(store state.Store[RouteRecord]) Option {
	return func(cfg *splitterConfig) {
		cfg.store = store
	}
}

// WithRunner sets the actor recorded on run events.
func WithRunner(id string) Option {
	return func(cfg *splitterConfig) {
		cfg.runner = id
	}
}

// WithInterval sets the time between ticks of Run.
func WithInterval(d time.Duration) Option {
	return func(cfg *splitterConfig) {
		if d > 0 {
			cfg.interval = d
		}
	}
}

// WithLayout sets the resolver layout. Use resolver.LayoutWith to override
// only some fields.
func WithLayout(layout resolver.Layout) Option {
	return func(cfg *splitterConfig) {
		cfg.layout = layout
	}
}

// WithAttacher sets how the target process is opened.
func WithAttacher(attach Attacher) Option {
	return func(cfg *splitterConfig) {
		cfg.attach = attach
	}
}

// WithBadNames replaces the placeholder scene names.
func WithBadNames(names ...string) Option {
	return func(cfg *splitterConfig) {
		cfg.badNames = append([]string(nil), names...)
	}
}

// WithRunIDs replaces the run identifier generator.
func WithRunIDs(next func() string) Option {
	return func(cfg *splitterConfig) {
		if next != nil {
			cfg.newRunID = next
		}
	}
}
