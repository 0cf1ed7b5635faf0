// Package autosplit drives a speedrun timer from the memory of a running
// game.
//
// A Splitter ties the pieces together once per tick: the resolver finds the
// active scene and game manager, the scene store turns the readings into
// transition pairs, the route conditions pick an action and the timer applies
// it against the host timer.
package autosplit

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/goliatone/go-autosplit/internal/logging"
	"github.com/goliatone/go-autosplit/pkg/accum"
	"github.com/goliatone/go-autosplit/pkg/activity"
	"github.com/goliatone/go-autosplit/pkg/memory"
	"github.com/goliatone/go-autosplit/pkg/resolver"
	"github.com/goliatone/go-autosplit/pkg/scene"
	"github.com/goliatone/go-autosplit/pkg/state"
	"github.com/goliatone/go-autosplit/pkg/timer"
)

// ErrProcessExited is returned by Tick when the attached process is gone.
// Anchors and scene history have been discarded by then.
var ErrProcessExited = errors.New("autosplit: process exited")

// Splitter is the per tick pipeline. It is not safe for concurrent use;
// drive it from one goroutine with Tick or Run.
type Splitter struct {
	cfg     splitterConfig
	route   *compiledRoute
	host    timer.Host
	timer   *timer.Timer
	emitter *activity.Emitter
	log     logrus.FieldLogger

	proc   memory.Process
	res    *resolver.Resolver
	scenes *scene.Store
	primed bool

	deltas *accum.Deltas
	hits   *accum.HitCounter

	runID        string
	lastRunID    string
	paused       bool
	resetPending bool
	endedPending bool
}

// New compiles route and prepares a splitter driving host.
func New(route Route, host timer.Host, opts ...Option) (*Splitter, error) {
	if host == nil {
		return nil, fmt.Errorf("autosplit: host timer is required")
	}
	cfg := applyOptions(opts)
	if err := errors.Join(cfg.optErrs...); err != nil {
		return nil, fmt.Errorf("autosplit: invalid option: %w", err)
	}
	log := logging.Component(cfg.log, "splitter").WithField("route", route.Name)

	evaluator := cfg.evaluator
	if evaluator == nil {
		evaluator = NewExprEvaluator(ExprWithProgramCache(cache(cfg)), ExprWithFunctionRegistry(cfg.functions))
	}
	compiled, err := compileRoute(route, evaluator, cfg.evalLogger)
	if err != nil {
		return nil, err
	}

	s := &Splitter{
		cfg:     cfg,
		route:   compiled,
		host:    host,
		emitter: cfg.emitter(),
		log:     log,
		deltas:  accum.NewDeltas(),
		hits:    accum.NewHitCounter(),
		runID:   cfg.newRunID(),
	}
	s.scenes = s.newSceneStore()
	s.timer = timer.New(host, route.N(),
		timer.WithLogger(cfg.log),
		timer.WithAutoResetSafe(route.AutoResetSafe...),
		timer.WithOnReset(func() { s.resetPending = true }),
		timer.WithOnEnded(func() { s.endedPending = true }),
	)
	return s, nil
}

func cache(cfg splitterConfig) ProgramCache {
	if cfg.cache != nil {
		return cfg.cache
	}
	return NewMapProgramCache()
}

func (s *Splitter) newSceneStore() *scene.Store {
	opts := []scene.Option{scene.WithLogger(s.cfg.log)}
	if s.cfg.badNames != nil {
		opts = append(opts, scene.WithBadNames(s.cfg.badNames...))
	}
	return scene.New("", opts...)
}

// Route returns the route being run.
func (s *Splitter) Route() Route { return s.route.route }

// Timer exposes the progress state machine.
func (s *Splitter) Timer() *timer.Timer { return s.timer }

// Scenes exposes the scene transition store.
func (s *Splitter) Scenes() *scene.Store { return s.scenes }

// RunID identifies the current attempt.
func (s *Splitter) RunID() string { return s.runID }

// Hits returns the per segment hits of the current attempt.
func (s *Splitter) Hits() []int { return s.hits.Segments() }

// Attached reports whether a target process is attached.
func (s *Splitter) Attached() bool { return s.proc != nil }

// Attach uses proc as the target process, replacing any previous one.
func (s *Splitter) Attach(proc memory.Process) {
	s.detach()
	s.proc = proc
	s.res = resolver.New(proc, s.cfg.layout, resolver.WithLogger(s.cfg.log))
	s.log.Info("attached to target process")
}

// detach discards everything derived from the process.
func (s *Splitter) detach() {
	if s.res != nil {
		s.res.Reset()
	}
	s.proc = nil
	s.res = nil
	s.scenes.Reset("")
	s.primed = false
}

func (s *Splitter) ref() state.Ref {
	return state.Ref{Namespace: RecordNamespace, Key: s.route.route.Name}
}
