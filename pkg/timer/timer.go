// Package timer tracks run progress as an index into the split boundaries and
// keeps it consistent with an external timer that may be driven by hand.
//
// The index i lives in [0, n]. Zero means before the start or ended and safe
// to restart; 1..n-1 is mid run; n is ended and not safe to rewind.
package timer

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/goliatone/go-autosplit/internal/logging"
)

// Action is a caller decision for one tick.
type Action int

const (
	Pass Action = iota
	Split
	Skip
	Reset
	ManualSplit
)

func (a Action) String() string {
	switch a {
	case Pass:
		return "pass"
	case Split:
		return "split"
	case Skip:
		return "skip"
	case Reset:
		return "reset"
	case ManualSplit:
		return "manual_split"
	default:
		return "unknown"
	}
}

// Change is a host driven event inferred by Synchronize.
type Change int

const (
	NoChange Change = iota
	ManualReset
	ManualStart
	ManualEnd
)

func (c Change) String() string {
	switch c {
	case ManualReset:
		return "manual_reset"
	case ManualStart:
		return "manual_start"
	case ManualEnd:
		return "manual_end"
	default:
		return "none"
	}
}

// Sync reports what Synchronize inferred.
type Sync struct {
	Change Change
	// IndexDelta is the number of boundaries applied from the host split
	// index, negative for undos.
	IndexDelta int
}

// Outcome reports what Apply did.
type Outcome struct {
	Action  Action
	From    int
	To      int
	Started bool
	Ended   bool
}

// Option configures a Timer.
type Option func(*Timer)

// WithLogger routes timer diagnostics to log.
func WithLogger(log logrus.FieldLogger) Option {
	return func(t *Timer) {
		t.log = logging.Component(log, "timer")
	}
}

// WithAutoResetSafe lists the states from which the index may rewind to zero
// without a reset.
func WithAutoResetSafe(states ...State) Option {
	return func(t *Timer) {
		for _, s := range states {
			t.safe[s] = struct{}{}
		}
	}
}

// WithOnReset sets the callback fired whenever a fresh run begins or the run
// is reset.
func WithOnReset(fn func()) Option {
	return func(t *Timer) { t.onReset = fn }
}

// WithOnEnded sets the callback fired when the index reaches n.
func WithOnEnded(fn func()) Option {
	return func(t *Timer) { t.onEnded = fn }
}

// Timer is the progress state machine. It is not safe for concurrent use.
type Timer struct {
	host Host
	n    int
	i    int

	state   State
	trusted State
	read    State
	hasRead bool

	lastIndex      int
	hasLastIndex   bool
	indexAvailable bool

	safe    map[State]struct{}
	onReset func()
	onEnded func()
	log     logrus.FieldLogger
}

// New returns a timer driving host across n split boundaries. n counts the
// start and end boundaries and is at least 1.
func New(host Host, n int, opts ...Option) *Timer {
	if n < 1 {
		n = 1
	}
	t := &Timer{
		host: host,
		n:    n,
		safe: map[State]struct{}{},
		log:  logging.Component(nil, "timer"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

// Index returns the progress index.
func (t *Timer) Index() int { return t.i }

// N returns the number of split boundaries.
func (t *Timer) N() int { return t.n }

// State returns the internal state.
func (t *Timer) State() State { return t.state }

// HostState returns the last host state the timer trusted.
func (t *Timer) HostState() State { return t.trusted }

// IndexAvailable reports whether the last observation carried a split index.
func (t *Timer) IndexAvailable() bool { return t.indexAvailable }

func (t *Timer) autoResetSafe(s State) bool {
	_, ok := t.safe[s]
	return ok
}

// Poll observes the host and synchronizes with the result.
func (t *Timer) Poll(ctx context.Context) Sync {
	return t.Synchronize(Observe(ctx, t.host))
}

// Synchronize reconciles the index with a host observation. A state change
// is trusted only once it has been read on two consecutive calls.
func (t *Timer) Synchronize(obs Observation) Sync {
	var out Sync
	if obs.HasState {
		prev, had := t.read, t.hasRead
		t.read, t.hasRead = obs.State, true
		if had && prev == obs.State && obs.State != t.trusted {
			out.Change = t.hostChanged(obs.State)
		}
	}

	t.indexAvailable = obs.HasIndex
	if obs.HasIndex {
		out.IndexDelta = t.crossCheck(obs)
	}
	return out
}

func (t *Timer) hostChanged(st State) Change {
	from := t.trusted
	t.trusted = st
	log := t.log.WithFields(logrus.Fields{
		"from":  from.String(),
		"to":    st.String(),
		"index": t.i,
	})

	switch st {
	case NotRunning:
		t.i = 0
		t.state = NotRunning
		log.Info("manual reset detected")
		t.fire(t.onReset)
		return ManualReset
	case Running:
		if t.state == Running {
			return NoChange
		}
		t.i = min(1, t.n)
		t.state = Running
		log.Info("manual start detected")
		t.fire(t.onReset)
		return ManualStart
	case Ended:
		t.state = Ended
		if t.autoResetSafe(Ended) {
			t.i = 0
		} else {
			t.i = t.n
		}
		log.WithField("rewound", t.i == 0).Info("manual end detected")
		return ManualEnd
	default:
		return NoChange
	}
}

// crossCheck applies manual splits, skips and undos seen through the host
// split index. It acts only on index changes during a running attempt that
// the same observation also reads as running.
func (t *Timer) crossCheck(obs Observation) int {
	index := obs.Index
	changed := !t.hasLastIndex || index != t.lastIndex
	t.lastIndex, t.hasLastIndex = index, true
	if !changed || t.state != Running || t.trusted != Running {
		return 0
	}
	if !obs.HasState || obs.State != Running {
		return 0
	}
	if index < 0 {
		return 0
	}
	delta := index - t.i
	if delta == 0 {
		return 0
	}
	from := t.i
	t.i = clamp(index, 0, t.n)
	log := t.log.WithFields(logrus.Fields{
		"from":       from,
		"to":         t.i,
		"host_index": index,
	})
	if delta < 0 {
		log.Infof("host index moved back, %d undo(s) applied", -delta)
	} else {
		log.Infof("host index moved ahead, %d manual split(s) or skip(s) applied", delta)
	}
	return t.i - from
}

// Apply performs a caller action against the host and the index. Host
// failures are logged and never abort the action.
func (t *Timer) Apply(ctx context.Context, action Action) Outcome {
	out := Outcome{Action: action, From: t.i}
	switch action {
	case Pass:
		out.To = t.i
		return out
	case Reset:
		t.command(ctx, "reset", t.host.Reset)
		t.i = 0
		t.state = NotRunning
		t.trusted = NotRunning
		t.fire(t.onReset)
		out.To = t.i
		return out
	case Skip:
		t.command(ctx, "skip split", t.host.SkipSplit)
		t.i++
	case Split:
		if t.i == 0 {
			t.command(ctx, "reset", t.host.Reset)
			t.command(ctx, "start", t.host.Start)
			t.fire(t.onReset)
			t.state = Running
			t.trusted = Running
			out.Started = true
		} else {
			t.command(ctx, "split", t.host.Split)
		}
		t.i++
	case ManualSplit:
		if t.indexAvailable || t.i <= 0 || t.i >= t.n-1 {
			out.To = t.i
			return out
		}
		t.i++
	default:
		out.To = t.i
		return out
	}

	if t.i >= t.n {
		t.i = t.n
		t.state = Ended
		t.trusted = Ended
		out.Ended = true
		t.log.WithField("index", t.i).Info("run ended")
		t.fire(t.onEnded)
		if t.autoResetSafe(Ended) {
			t.i = 0
		}
	}
	out.To = t.i
	return out
}

// PauseGameTime pauses host game time.
func (t *Timer) PauseGameTime(ctx context.Context) {
	t.command(ctx, "pause game time", t.host.PauseGameTime)
}

// ResumeGameTime resumes host game time.
func (t *Timer) ResumeGameTime(ctx context.Context) {
	t.command(ctx, "resume game time", t.host.ResumeGameTime)
}

// SetGameTime sets host game time to d.
func (t *Timer) SetGameTime(ctx context.Context, d time.Duration) {
	t.command(ctx, "set game time", func(ctx context.Context) error {
		return t.host.SetGameTime(ctx, d)
	})
}

func (t *Timer) command(ctx context.Context, name string, fn func(context.Context) error) {
	if err := fn(ctx); err != nil {
		t.log.WithError(err).WithField("command", name).Warn("host command failed")
	}
}

func (t *Timer) fire(fn func()) {
	if fn != nil {
		fn()
	}
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
