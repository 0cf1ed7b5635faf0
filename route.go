package autosplit

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-autosplit/pkg/resolver"
	"github.com/goliatone/go-autosplit/pkg/timer"
)

// SplitKind says what a satisfied split condition does.
type SplitKind int

const (
	// KindSplit splits the host timer, or starts it at the start boundary.
	KindSplit SplitKind = iota
	// KindSkip skips the host timer segment.
	KindSkip
	// KindManual expects the runner to split by hand and only keeps pace.
	KindManual
)

func (k SplitKind) String() string {
	switch k {
	case KindSplit:
		return "split"
	case KindSkip:
		return "skip"
	case KindManual:
		return "manual"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseSplitKind converts a kind name into its SplitKind.
func ParseSplitKind(value string) (SplitKind, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "split":
		return KindSplit, nil
	case "skip":
		return KindSkip, nil
	case "manual":
		return KindManual, nil
	default:
		return 0, fmt.Errorf("autosplit: unknown split kind %q", value)
	}
}

func (k SplitKind) action() timer.Action {
	switch k {
	case KindSkip:
		return timer.Skip
	case KindManual:
		return timer.ManualSplit
	default:
		return timer.Split
	}
}

// Split is one boundary of a route.
type Split struct {
	Name string
	When string
	Kind SplitKind
}

// Route is the ordered list of split boundaries plus the conditions that
// apply to the whole run. Splits[0] is the start boundary and the last entry
// is the end boundary.
type Route struct {
	Name   string
	Splits []Split
	// Reset, when it holds, resets the run.
	Reset string
	// Loading, when set, pauses game time while it holds.
	Loading string
	// AutoResetSafe lists the timer states the index may rewind from.
	AutoResetSafe []timer.State
	// Fields are read from the game manager every tick.
	Fields []resolver.Field
	// HealthField names the field whose drops count as hits.
	HealthField string
}

// Validate checks the route shape.
func (r Route) Validate() error {
	var errs []error
	if strings.TrimSpace(r.Name) == "" {
		errs = append(errs, errors.New("route name is required"))
	}
	if len(r.Splits) == 0 {
		errs = append(errs, errors.New("route needs at least one split"))
	}
	for i, s := range r.Splits {
		if strings.TrimSpace(s.When) == "" {
			errs = append(errs, fmt.Errorf("split %d (%s) has no condition", i, s.Name))
		}
		if i == 0 && s.Kind != KindSplit {
			errs = append(errs, fmt.Errorf("start split %q must be of kind split", s.Name))
		}
	}
	seen := map[string]struct{}{}
	for _, f := range r.Fields {
		if f.Name == "" {
			errs = append(errs, errors.New("field name is required"))
			continue
		}
		if _, dup := seen[f.Name]; dup {
			errs = append(errs, fmt.Errorf("field %q declared twice", f.Name))
		}
		seen[f.Name] = struct{}{}
		if len(f.Offsets) == 0 {
			errs = append(errs, fmt.Errorf("field %q has no offsets", f.Name))
		}
	}
	if r.HealthField != "" {
		if _, ok := seen[r.HealthField]; !ok {
			errs = append(errs, fmt.Errorf("health field %q is not declared", r.HealthField))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("autosplit: invalid route %q: %w", r.Name, errors.Join(errs...))
	}
	return nil
}

// N returns the number of split boundaries.
func (r Route) N() int { return len(r.Splits) }

func (r Route) fieldNames() []string {
	names := make([]string, 0, len(r.Fields))
	for _, f := range r.Fields {
		names = append(names, f.Name)
	}
	return names
}

// compiledRoute holds the route conditions ready to run.
type compiledRoute struct {
	route   Route
	splits  []*condition
	reset   *condition
	loading *condition
	logger  EvaluatorLogger
}

func compileRoute(route Route, evaluator Evaluator, logger EvaluatorLogger) (*compiledRoute, error) {
	if err := route.Validate(); err != nil {
		return nil, err
	}
	if evaluator == nil {
		return nil, ErrNoEvaluator
	}
	if logger == nil {
		logger = noopEvaluatorLogger{}
	}
	fields := route.fieldNames()
	out := &compiledRoute{route: route, logger: logger}
	for _, s := range route.Splits {
		c, err := compileCondition(evaluator, s.Name, s.When, fields)
		if err != nil {
			return nil, err
		}
		out.splits = append(out.splits, c)
	}
	var err error
	if out.reset, err = compileCondition(evaluator, "reset", route.Reset, fields); err != nil {
		return nil, err
	}
	if out.loading, err = compileCondition(evaluator, "loading", route.Loading, fields); err != nil {
		return nil, err
	}
	return out, nil
}

// Decision is what the route asks of the timer on one tick.
type Decision struct {
	Action timer.Action
	// Split is the boundary that fired, when Action came from a split.
	Split string
}

// decide evaluates the reset condition, only while running, and the split
// condition of boundary index. Split conditions are skipped when splits is
// false.
func (c *compiledRoute) decide(env Env, index int, splits, running bool) Decision {
	if running && c.reset.holds(env, c.logger) {
		return Decision{Action: timer.Reset}
	}
	if !splits || index < 0 || index >= len(c.splits) {
		return Decision{Action: timer.Pass}
	}
	if !c.splits[index].holds(env, c.logger) {
		return Decision{Action: timer.Pass}
	}
	s := c.route.Splits[index]
	return Decision{Action: s.Kind.action(), Split: s.Name}
}

// isLoading reports whether the loading condition holds. ok is false when the
// route has none.
func (c *compiledRoute) isLoading(env Env) (loading, ok bool) {
	if c.loading == nil {
		return false, false
	}
	return c.loading.holds(env, c.logger), true
}
