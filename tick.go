package autosplit

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/goliatone/go-autosplit/pkg/accum"
	"github.com/goliatone/go-autosplit/pkg/activity"
	"github.com/goliatone/go-autosplit/pkg/resolver"
	"github.com/goliatone/go-autosplit/pkg/scene"
	"github.com/goliatone/go-autosplit/pkg/timer"
)

// Waiting reasons reported by TickResult.
const (
	WaitProcess = "process"
	WaitScene   = "scene"
)

// TickResult reports what one tick observed and did.
type TickResult struct {
	// Waiting is set when the tick stopped early, naming what it waits for.
	Waiting string
	Sync    timer.Sync

	Scene      string
	Pair       scene.Pair
	Transition bool
	Mismatch   bool
	Fields     resolver.Readings

	Decision Decision
	Outcome  timer.Outcome
	Loading  bool
}

// Tick runs one pass of the pipeline. Stages run strictly in order: host
// synchronization, address resolution, scene reconciliation, field reads,
// condition evaluation, then the timer action. Transient read failures end
// the tick early with Waiting set and a nil error.
func (s *Splitter) Tick(ctx context.Context) (TickResult, error) {
	var res TickResult
	if err := ctx.Err(); err != nil {
		return res, err
	}

	if s.proc == nil {
		if s.cfg.attach == nil {
			res.Waiting = WaitProcess
			return res, nil
		}
		proc, err := s.cfg.attach(ctx)
		if err != nil {
			s.log.WithError(err).Trace("target process not available")
			res.Waiting = WaitProcess
			return res, nil
		}
		s.Attach(proc)
	}
	if !s.proc.Alive() {
		s.detach()
		return res, ErrProcessExited
	}

	res.Sync = s.timer.Poll(ctx)
	s.settleManual(ctx, res.Sync)

	if _, err := s.res.LocateActiveScene(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, ctxErr
		}
		res.Waiting = WaitScene
		return res, nil
	}
	active, err := s.res.CurrentScene()
	if err != nil {
		s.log.WithError(err).Debug("active scene read failed")
		active = ""
	}
	managerScene, next, err := s.readManager(ctx, active)
	if err != nil {
		return res, err
	}
	if active == "" && managerScene == "" {
		res.Waiting = WaitScene
		return res, nil
	}
	if !s.primed {
		first := active
		if first == "" {
			first = managerScene
		}
		s.scenes.Reset(first)
		s.primed = true
	}

	rec := s.scenes.ReconcileDualCurrent(active, managerScene)
	if next != "" {
		s.scenes.RecordNext(next)
	}
	pair, transition := s.scenes.NextTransitionPair()
	res.Scene, res.Pair, res.Transition = s.scenes.Curr(), pair, transition
	res.Mismatch = rec.MismatchA || rec.MismatchB

	env := Env{
		Old:        s.scenes.Old(),
		Current:    s.scenes.Curr(),
		Transition: transition,
		Scene:      s.scenes.Curr(),
		Next:       s.scenes.Next(),
		Mismatch:   res.Mismatch,
		Index:      s.timer.Index(),
		Menu:       scene.MainMenu,
	}
	if transition {
		env.Old, env.Current = pair.Old, pair.Current
	}
	res.Fields = s.readFields()
	env.Fields, env.Incremented = s.accumulate(res.Fields)

	res.Decision = s.route.decide(env, s.timer.Index(), rec.Resolved, s.timer.State() == timer.Running)
	res.Loading = s.applyLoading(ctx, env)

	res.Outcome = s.timer.Apply(ctx, res.Decision.Action)
	s.settle(ctx, res.Outcome)
	s.emitOutcome(ctx, res, env)
	return res, nil
}

// readManager revalidates the game manager anchor and reads its two scene
// names. A failed scene read marks the anchor dirty for the next tick.
func (s *Splitter) readManager(ctx context.Context, active string) (string, string, error) {
	var err error
	switch {
	case s.res.IsDirty():
		err = s.res.AttemptClean(ctx, active)
	case !s.res.ManagerAnchor().Found():
		_, err = s.res.LocateGameManager(ctx, active)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", "", ctxErr
		}
		if !errors.Is(err, resolver.ErrPreMenu) {
			s.log.WithError(err).Trace("game manager not available")
		}
		return "", "", nil
	}
	if s.res.IsDirty() {
		return "", "", nil
	}

	managerScene, err := s.res.ManagerScene()
	if err != nil {
		s.log.WithError(err).Debug("manager scene read failed, anchor marked dirty")
		s.res.MarkDirty()
		return "", "", nil
	}
	next, err := s.res.NextScene()
	if err != nil {
		s.log.WithError(err).Debug("next scene read failed")
		next = ""
	}
	return managerScene, next, nil
}

func (s *Splitter) readFields() resolver.Readings {
	fields := s.route.route.Fields
	if len(fields) == 0 || s.res.IsDirty() || !s.res.ManagerAnchor().Found() {
		return resolver.Readings{}
	}
	readings, failed := s.res.ReadFields(fields)
	if len(failed) == len(fields) {
		s.log.WithField("fields", failed).Debug("every field read failed, anchor marked dirty")
		s.res.MarkDirty()
	}
	return readings
}

// accumulate feeds the readings to the delta tracker and the hit counter.
func (s *Splitter) accumulate(readings resolver.Readings) (map[string]any, map[string]bool) {
	fields := make(map[string]any, len(readings))
	incremented := make(map[string]bool, len(readings))
	for name, value := range readings {
		fields[name] = value
		if n, ok := accum.AsInt(value); ok {
			incremented[name] = s.deltas.Observe(name, n)
		}
	}
	if health := s.route.route.HealthField; health != "" {
		if n, ok := accum.AsInt(readings[health]); ok && s.hits.Observe(n) {
			s.log.WithField("hits", s.hits.Total()).Debug("hit taken")
		}
	}
	return fields, incremented
}

// applyLoading pauses and resumes game time on edges of the loading
// condition while a run is in progress.
func (s *Splitter) applyLoading(ctx context.Context, env Env) bool {
	loading, ok := s.route.isLoading(env)
	if !ok {
		return false
	}
	if s.timer.State() != timer.Running {
		s.paused = false
		return loading
	}
	switch {
	case loading && !s.paused:
		s.timer.PauseGameTime(ctx)
		s.paused = true
	case !loading && s.paused:
		s.timer.ResumeGameTime(ctx)
		s.paused = false
	}
	return loading
}

// settleManual handles host driven changes seen by Poll.
func (s *Splitter) settleManual(ctx context.Context, sync timer.Sync) {
	prevRun := s.runID
	s.settle(ctx, timer.Outcome{Started: sync.Change == timer.ManualStart})
	for i := 0; i < sync.IndexDelta; i++ {
		s.hits.Split()
	}
	for i := sync.IndexDelta; i < 0; i++ {
		s.hits.Undo()
	}

	input := s.eventInput(prevRun, "", s.scenes.Old(), s.scenes.Curr())
	switch sync.Change {
	case timer.ManualReset:
		s.emit(ctx, activity.BuildRunResetEvent(input))
	case timer.ManualStart:
		input = s.eventInput(s.runID, "", s.scenes.Old(), s.scenes.Curr())
		s.emit(ctx, activity.BuildRunStartedEvent(input))
	case timer.ManualEnd:
		if !s.finishRun(ctx) {
			s.log.Debug("host ended a run that was not being tracked")
		}
		s.emit(ctx, activity.BuildRunEndedEvent(input))
	}
}

// settle runs the bookkeeping requested by the timer callbacks.
func (s *Splitter) settle(ctx context.Context, out timer.Outcome) {
	if s.resetPending {
		s.resetPending = false
		s.lastRunID = s.runID
		s.runID = s.cfg.newRunID()
		s.deltas.Reset()
		s.hits.Reset()
		s.paused = false
		if out.Started {
			s.hits.Start()
			s.recordAttempt(ctx)
			if out.Action == timer.Split && s.route.loading != nil {
				s.timer.SetGameTime(ctx, 0)
			}
		}
		s.log.WithField("run_id", s.runID).Debug("run bookkeeping reset")
	}
	if s.endedPending {
		s.endedPending = false
		s.finishRun(ctx)
	}
	switch out.Action {
	case timer.Split, timer.Skip, timer.ManualSplit:
		if !out.Started && !out.Ended && out.To != out.From {
			s.hits.Split()
		}
	}
}

// finishRun closes the counted attempt and records its completion. It
// reports false when no attempt was being counted.
func (s *Splitter) finishRun(ctx context.Context) bool {
	if !s.hits.Active() {
		return false
	}
	s.hits.End()
	s.recordCompletion(ctx)
	return true
}

func (s *Splitter) emitOutcome(ctx context.Context, res TickResult, env Env) {
	out := res.Outcome
	input := s.eventInput(s.runID, res.Decision.Split, env.Old, env.Current)
	input.Index = out.To
	switch {
	case out.Action == timer.Reset:
		input.RunID = s.lastRunID
		s.emit(ctx, activity.BuildRunResetEvent(input))
		return
	case out.Started:
		s.emit(ctx, activity.BuildRunStartedEvent(input))
	case out.Action == timer.Split && out.To != out.From:
		s.emit(ctx, activity.BuildRunSplitEvent(input))
	case out.Action == timer.Skip:
		s.emit(ctx, activity.BuildRunSkippedEvent(input))
	case out.Action == timer.ManualSplit && out.To != out.From:
		s.emit(ctx, activity.BuildRunManualSplitEvent(input))
	}
	if out.Ended {
		s.emit(ctx, activity.BuildRunEndedEvent(input))
	}
	if out.Action != timer.Pass {
		s.log.WithFields(logrus.Fields{
			"action": out.Action.String(),
			"split":  res.Decision.Split,
			"from":   out.From,
			"to":     out.To,
		}).Info("timer action applied")
	}
}

func (s *Splitter) eventInput(runID, split, old, current string) activity.RunEventInput {
	input := activity.RunEventInput{
		RunID:      runID,
		RunnerID:   s.cfg.runner,
		Route:      s.route.route.Name,
		Split:      split,
		Index:      s.timer.Index(),
		Old:        old,
		Current:    current,
		OccurredAt: time.Now().UTC(),
	}
	if s.route.route.HealthField != "" {
		input.Hits, input.HasHits = s.hits.Total(), true
	}
	return input
}

func (s *Splitter) emit(ctx context.Context, event activity.Event) {
	if err := s.emitter.Emit(ctx, event); err != nil {
		s.log.WithError(err).WithField("verb", event.Verb).Warn("activity hook failed")
	}
}
