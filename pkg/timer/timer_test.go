package timer_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/goliatone/go-autosplit/pkg/timer"
)

type fakeHost struct {
	state timer.State
	calls []string
	fail  error
}

func (h *fakeHost) record(name string) error {
	h.calls = append(h.calls, name)
	return h.fail
}

func (h *fakeHost) State(context.Context) (timer.State, error) { return h.state, nil }
func (h *fakeHost) Start(context.Context) error                { return h.record("start") }
func (h *fakeHost) Split(context.Context) error                { return h.record("split") }
func (h *fakeHost) SkipSplit(context.Context) error            { return h.record("skip") }
func (h *fakeHost) Reset(context.Context) error                { return h.record("reset") }
func (h *fakeHost) PauseGameTime(context.Context) error        { return h.record("pause") }
func (h *fakeHost) ResumeGameTime(context.Context) error       { return h.record("resume") }
func (h *fakeHost) SetGameTime(_ context.Context, d time.Duration) error {
	return h.record("setgametime " + d.String())
}

type indexedHost struct {
	fakeHost
	index int
	ok    bool
}

func (h *indexedHost) SplitIndex(context.Context) (int, bool, error) {
	return h.index, h.ok, nil
}

func running(index int) timer.Observation {
	return timer.Observation{State: timer.Running, HasState: true, Index: index, HasIndex: true}
}

func state(s timer.State) timer.Observation {
	return timer.Observation{State: s, HasState: true}
}

func TestSplitFromZeroStartsRun(t *testing.T) {
	ctx := context.Background()
	host := &fakeHost{}
	resets := 0
	tm := timer.New(host, 3, timer.WithOnReset(func() { resets++ }))

	out := tm.Apply(ctx, timer.Split)
	if !reflect.DeepEqual(host.calls, []string{"reset", "start"}) {
		t.Fatalf("expected reset then start, got %v", host.calls)
	}
	if tm.Index() != 1 || !out.Started || out.From != 0 || out.To != 1 {
		t.Fatalf("unexpected outcome %+v index=%d", out, tm.Index())
	}
	if resets != 1 {
		t.Fatalf("expected one reset callback, got %d", resets)
	}
	if tm.State() != timer.Running || tm.HostState() != timer.Running {
		t.Fatalf("expected running, got %s/%s", tm.State(), tm.HostState())
	}
}

func TestEndToEndTwoBoundariesAutoResetSafe(t *testing.T) {
	ctx := context.Background()
	host := &fakeHost{}
	var order []string
	tm := timer.New(host, 2,
		timer.WithAutoResetSafe(timer.Ended),
		timer.WithOnReset(func() { order = append(order, "reset") }),
		timer.WithOnEnded(func() { order = append(order, "ended") }),
	)

	tm.Apply(ctx, timer.Split)
	if tm.Index() != 1 {
		t.Fatalf("expected index 1, got %d", tm.Index())
	}
	host.calls = nil

	out := tm.Apply(ctx, timer.Split)
	if !reflect.DeepEqual(host.calls, []string{"split"}) {
		t.Fatalf("expected a host split, got %v", host.calls)
	}
	if !out.Ended || tm.State() != timer.Ended {
		t.Fatalf("expected run to end, got %+v state=%s", out, tm.State())
	}
	if tm.Index() != 0 || out.To != 0 {
		t.Fatalf("expected rewind to 0, got %d", tm.Index())
	}
	if !reflect.DeepEqual(order, []string{"reset", "ended"}) {
		t.Fatalf("unexpected callback order %v", order)
	}
}

func TestEndedCallbackFiresBeforeRewind(t *testing.T) {
	ctx := context.Background()
	host := &fakeHost{}
	var tm *timer.Timer
	seen := -1
	tm = timer.New(host, 2,
		timer.WithAutoResetSafe(timer.Ended),
		timer.WithOnEnded(func() { seen = tm.Index() }),
	)
	tm.Apply(ctx, timer.Split)
	tm.Apply(ctx, timer.Split)
	if seen != 2 {
		t.Fatalf("expected ended callback to see index 2, got %d", seen)
	}
	if tm.Index() != 0 {
		t.Fatalf("expected rewind, got %d", tm.Index())
	}
}

func TestEndWithoutAutoResetKeepsIndex(t *testing.T) {
	ctx := context.Background()
	tm := timer.New(&fakeHost{}, 2)
	tm.Apply(ctx, timer.Split)
	tm.Apply(ctx, timer.Split)
	if tm.Index() != 2 || tm.State() != timer.Ended {
		t.Fatalf("expected ended at n, got %d %s", tm.Index(), tm.State())
	}
}

func TestResetAndSkip(t *testing.T) {
	ctx := context.Background()
	host := &fakeHost{}
	resets := 0
	tm := timer.New(host, 4, timer.WithOnReset(func() { resets++ }))
	tm.Apply(ctx, timer.Split)
	tm.Apply(ctx, timer.Skip)
	if tm.Index() != 2 {
		t.Fatalf("expected index 2, got %d", tm.Index())
	}
	tm.Apply(ctx, timer.Reset)
	if tm.Index() != 0 || tm.State() != timer.NotRunning {
		t.Fatalf("expected reset, got %d %s", tm.Index(), tm.State())
	}
	want := []string{"reset", "start", "skip", "reset"}
	if !reflect.DeepEqual(host.calls, want) {
		t.Fatalf("expected %v, got %v", want, host.calls)
	}
	if resets != 2 {
		t.Fatalf("expected two reset callbacks, got %d", resets)
	}
}

func TestPassDoesNothing(t *testing.T) {
	host := &fakeHost{}
	tm := timer.New(host, 3)
	out := tm.Apply(context.Background(), timer.Pass)
	if len(host.calls) != 0 || tm.Index() != 0 || out.To != 0 {
		t.Fatalf("pass must not act, calls=%v", host.calls)
	}
}

func TestHostFailuresAreAbsorbed(t *testing.T) {
	host := &fakeHost{fail: errors.New("connection refused")}
	tm := timer.New(host, 3)
	tm.Apply(context.Background(), timer.Split)
	if tm.Index() != 1 {
		t.Fatalf("expected index to advance despite host failure, got %d", tm.Index())
	}
}

func TestManualResetNeedsTwoReads(t *testing.T) {
	ctx := context.Background()
	resets := 0
	tm := timer.New(&fakeHost{}, 4, timer.WithOnReset(func() { resets++ }))
	tm.Apply(ctx, timer.Split)
	tm.Apply(ctx, timer.Split)
	resets = 0

	if sync := tm.Synchronize(state(timer.NotRunning)); sync.Change != timer.NoChange {
		t.Fatalf("a single read must not be trusted, got %s", sync.Change)
	}
	// glitch recovers
	tm.Synchronize(state(timer.Running))
	tm.Synchronize(state(timer.Running))
	if tm.Index() != 2 {
		t.Fatalf("glitch changed the index to %d", tm.Index())
	}

	tm.Synchronize(state(timer.NotRunning))
	sync := tm.Synchronize(state(timer.NotRunning))
	if sync.Change != timer.ManualReset || tm.Index() != 0 || resets != 1 {
		t.Fatalf("expected manual reset, got %+v index=%d resets=%d", sync, tm.Index(), resets)
	}
}

func TestManualStartAndEnd(t *testing.T) {
	resets := 0
	tm := timer.New(&fakeHost{}, 5, timer.WithOnReset(func() { resets++ }))

	tm.Synchronize(state(timer.Running))
	sync := tm.Synchronize(state(timer.Running))
	if sync.Change != timer.ManualStart || tm.Index() != 1 || resets != 1 {
		t.Fatalf("expected manual start, got %+v index=%d", sync, tm.Index())
	}

	tm.Synchronize(state(timer.Ended))
	sync = tm.Synchronize(state(timer.Ended))
	if sync.Change != timer.ManualEnd || tm.Index() != 5 {
		t.Fatalf("expected unsafe manual end at n, got %+v index=%d", sync, tm.Index())
	}

	safe := timer.New(&fakeHost{}, 5, timer.WithAutoResetSafe(timer.Ended))
	safe.Synchronize(state(timer.Running))
	safe.Synchronize(state(timer.Running))
	safe.Synchronize(state(timer.Ended))
	safe.Synchronize(state(timer.Ended))
	if safe.Index() != 0 {
		t.Fatalf("expected safe manual end to rewind, got %d", safe.Index())
	}
}

func TestIndexCrossCheckAppliesManualSplit(t *testing.T) {
	ctx := context.Background()
	tm := timer.New(&fakeHost{}, 8)
	tm.Apply(ctx, timer.Split)
	tm.Synchronize(running(1))
	tm.Synchronize(running(1))
	tm.Apply(ctx, timer.Split)
	tm.Apply(ctx, timer.Split)
	tm.Synchronize(running(3))
	if tm.Index() != 3 {
		t.Fatalf("expected index 3, got %d", tm.Index())
	}

	// our split moves to 4 while a manual split lands on the host as well
	tm.Apply(ctx, timer.Split)
	sync := tm.Synchronize(running(5))
	if sync.IndexDelta != 1 || tm.Index() != 5 {
		t.Fatalf("expected one manual split, got %+v index=%d", sync, tm.Index())
	}
	again := tm.Synchronize(running(5))
	if again.IndexDelta != 0 || tm.Index() != 5 {
		t.Fatalf("unchanged host index must not act, got %+v", again)
	}

	sync = tm.Synchronize(running(3))
	if sync.IndexDelta != -2 || tm.Index() != 3 {
		t.Fatalf("expected two undos, got %+v index=%d", sync, tm.Index())
	}
}

func TestIndexCrossCheckClampsToN(t *testing.T) {
	ctx := context.Background()
	tm := timer.New(&fakeHost{}, 4)
	tm.Apply(ctx, timer.Split)
	tm.Synchronize(running(1))
	tm.Synchronize(running(1))
	for tm.Index() < 3 {
		tm.Apply(ctx, timer.Split)
	}
	tm.Synchronize(running(3))

	sync := tm.Synchronize(running(5))
	if tm.Index() != 4 || sync.IndexDelta != 1 {
		t.Fatalf("expected index clamped at n, got %+v index=%d", sync, tm.Index())
	}
	sync = tm.Synchronize(running(-1))
	if sync.IndexDelta != 0 || tm.Index() != 4 {
		t.Fatalf("negative host index must be ignored, got %+v index=%d", sync, tm.Index())
	}
}

func TestIndexCrossCheckIgnoredOutsideRun(t *testing.T) {
	tm := timer.New(&fakeHost{}, 4)
	sync := tm.Synchronize(timer.Observation{State: timer.NotRunning, HasState: true, Index: 3, HasIndex: true})
	if sync.IndexDelta != 0 || tm.Index() != 0 {
		t.Fatalf("index must not move before a run, got %+v", sync)
	}
}

func TestIndexCrossCheckAbsorbsStateGlitch(t *testing.T) {
	ctx := context.Background()
	tm := timer.New(&fakeHost{}, 6)
	tm.Apply(ctx, timer.Split)
	tm.Apply(ctx, timer.Split)
	tm.Apply(ctx, timer.Split)
	tm.Synchronize(running(3))
	tm.Synchronize(running(3))

	glitch := tm.Synchronize(timer.Observation{State: timer.NotRunning, HasState: true, Index: 0, HasIndex: true})
	if glitch.Change != timer.NoChange || glitch.IndexDelta != 0 || tm.Index() != 3 {
		t.Fatalf("a single not running read must not rewind, got %+v index=%d", glitch, tm.Index())
	}
	recovered := tm.Synchronize(running(3))
	if recovered.Change != timer.NoChange || recovered.IndexDelta != 0 || tm.Index() != 3 {
		t.Fatalf("recovery read must not split, got %+v index=%d", recovered, tm.Index())
	}
	if tm.State() != timer.Running {
		t.Fatalf("expected the run to continue, got %s", tm.State())
	}

	stateless := tm.Synchronize(timer.Observation{Index: 4, HasIndex: true})
	if stateless.IndexDelta != 0 || tm.Index() != 3 {
		t.Fatalf("an index without a state read must not act, got %+v", stateless)
	}
}

func TestManualSplitOnlyWithoutIndex(t *testing.T) {
	ctx := context.Background()
	tm := timer.New(&fakeHost{}, 4)

	tm.Apply(ctx, timer.ManualSplit)
	if tm.Index() != 0 {
		t.Fatalf("manual split before start must not act")
	}
	tm.Apply(ctx, timer.Split)
	tm.Apply(ctx, timer.ManualSplit)
	if tm.Index() != 2 {
		t.Fatalf("expected manual split to advance, got %d", tm.Index())
	}
	tm.Apply(ctx, timer.ManualSplit)
	if tm.Index() != 3 {
		t.Fatalf("expected index 3, got %d", tm.Index())
	}
	tm.Apply(ctx, timer.ManualSplit)
	if tm.Index() != 3 {
		t.Fatalf("manual split must not reach the end boundary, got %d", tm.Index())
	}

	indexed := timer.New(&fakeHost{}, 4)
	indexed.Apply(ctx, timer.Split)
	indexed.Synchronize(running(1))
	indexed.Apply(ctx, timer.ManualSplit)
	if indexed.Index() != 1 {
		t.Fatalf("manual split must defer to the host index, got %d", indexed.Index())
	}
}

func TestPollReadsIndexer(t *testing.T) {
	host := &indexedHost{fakeHost: fakeHost{state: timer.Running}, index: 1, ok: true}
	tm := timer.New(host, 3)
	tm.Poll(context.Background())
	if !tm.IndexAvailable() {
		t.Fatalf("expected index to be available")
	}
	host.ok = false
	tm.Poll(context.Background())
	if tm.IndexAvailable() {
		t.Fatalf("expected index to be unavailable")
	}
}

func TestGameTimeCommands(t *testing.T) {
	ctx := context.Background()
	host := &fakeHost{}
	tm := timer.New(host, 2)
	tm.PauseGameTime(ctx)
	tm.ResumeGameTime(ctx)
	tm.SetGameTime(ctx, 0)
	want := []string{"pause", "resume", "setgametime 0s"}
	if !reflect.DeepEqual(host.calls, want) {
		t.Fatalf("expected %v, got %v", want, host.calls)
	}
}

func TestPropertyIndexStaysInBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	properties.Property("0 <= i <= n after any calls", prop.ForAll(
		func(n int, safe bool, ops []int) bool {
			opts := []timer.Option{}
			if safe {
				opts = append(opts, timer.WithAutoResetSafe(timer.Ended))
			}
			tm := timer.New(&fakeHost{}, n, opts...)
			for _, op := range ops {
				switch op % 4 {
				case 0:
					tm.Apply(context.Background(), timer.Action((op/4)%5))
				case 1:
					tm.Synchronize(state(timer.State((op / 4) % 3)))
				case 2:
					tm.Synchronize(timer.Observation{
						State:    timer.State((op / 4) % 3),
						HasState: true,
						Index:    (op/12)%(n+4) - 2,
						HasIndex: true,
					})
				default:
					tm.Synchronize(timer.Observation{})
				}
				if tm.Index() < 0 || tm.Index() > tm.N() {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 12),
		gen.Bool(),
		gen.SliceOf(gen.IntRange(0, 400)),
	))

	properties.TestingRun(t)
}

func TestPropertySynchronizeIsIdempotent(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("an unchanged observation never moves the index", prop.ForAll(
		func(n int, ops []int, st int, index int, repeats int) bool {
			tm := timer.New(&fakeHost{}, n)
			for _, op := range ops {
				if op%2 == 0 {
					tm.Apply(context.Background(), timer.Action((op/2)%5))
				} else {
					tm.Synchronize(state(timer.State((op / 2) % 3)))
				}
			}
			obs := timer.Observation{State: timer.State(st), HasState: true, Index: index, HasIndex: true}
			tm.Synchronize(obs)
			tm.Synchronize(obs)
			settled := tm.Index()
			for i := 0; i < repeats; i++ {
				if sync := tm.Synchronize(obs); sync.Change != timer.NoChange || sync.IndexDelta != 0 {
					return false
				}
				if tm.Index() != settled {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 10),
		gen.SliceOf(gen.IntRange(0, 60)),
		gen.IntRange(0, 2),
		gen.IntRange(0, 10),
		gen.IntRange(1, 5),
	))

	properties.TestingRun(t)
}
