package timer

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// State is the coarse phase of a timer.
type State int

const (
	NotRunning State = iota
	Running
	Ended
)

func (s State) String() string {
	switch s {
	case NotRunning:
		return "not_running"
	case Running:
		return "running"
	case Ended:
		return "ended"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ParseState converts a state name into its State.
func ParseState(value string) (State, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "not_running", "notrunning":
		return NotRunning, nil
	case "running":
		return Running, nil
	case "ended":
		return Ended, nil
	default:
		return 0, fmt.Errorf("timer: unknown state %q", value)
	}
}

// Host is the external timer authority. A human may drive it directly, so its
// state is the source of truth for what happened.
type Host interface {
	State(ctx context.Context) (State, error)
	Start(ctx context.Context) error
	Split(ctx context.Context) error
	SkipSplit(ctx context.Context) error
	Reset(ctx context.Context) error
	PauseGameTime(ctx context.Context) error
	ResumeGameTime(ctx context.Context) error
	SetGameTime(ctx context.Context, d time.Duration) error
}

// SplitIndexer is implemented by hosts that can report their current split
// index in boundary units: 0 before the start, 1 after the start boundary.
// ok is false when the host cannot tell right now.
type SplitIndexer interface {
	SplitIndex(ctx context.Context) (index int, ok bool, err error)
}

// Observation is one poll of the host.
type Observation struct {
	State    State
	HasState bool
	Index    int
	HasIndex bool
}

// Observe polls host for its state and, when supported, its split index.
// Failed reads leave the matching Has flag unset.
func Observe(ctx context.Context, host Host) Observation {
	var obs Observation
	if st, err := host.State(ctx); err == nil {
		obs.State, obs.HasState = st, true
	}
	if indexer, ok := host.(SplitIndexer); ok {
		if idx, ok, err := indexer.SplitIndex(ctx); err == nil && ok {
			obs.Index, obs.HasIndex = idx, true
		}
	}
	return obs
}
