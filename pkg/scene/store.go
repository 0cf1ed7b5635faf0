// Package scene turns scene name observations into ordered transition pairs.
//
// The store keeps four slots. curr and prev track the active scene, next
// tracks the scene a loader announced, and old is the scene the last emitted
// pair came from. Two flags gate emission so that a transition announced
// through next and later confirmed through curr is emitted once.
package scene

import (
	"github.com/sirupsen/logrus"

	"github.com/goliatone/go-autosplit/internal/logging"
)

// MainMenu is the title screen scene.
const MainMenu = "Menu_Title"

// DefaultBadNames are engine placeholders that show up while a scene loads.
func DefaultBadNames() []string {
	return []string{"-", "Pre_Menu_Loader", "Loader", "Quit_To_Menu", "PermaDeath_Unlock"}
}

// Pair is one directed scene transition.
type Pair struct {
	Old     string
	Current string
}

// Reconciled is the outcome of ReconcileDualCurrent.
type Reconciled struct {
	// Name is the adopted value, empty when Resolved is false.
	Name string
	// Resolved is false when neither reading could be trusted.
	Resolved bool
	// MismatchA and MismatchB flag a side as stale for this tick.
	MismatchA bool
	MismatchB bool
}

// Option configures a Store.
type Option func(*Store)

// WithLogger routes store diagnostics to log.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Store) {
		s.log = logging.Component(log, "scene")
	}
}

// WithBadNames replaces the placeholder name set.
func WithBadNames(names ...string) Option {
	return func(s *Store) {
		s.bad = make(map[string]struct{}, len(names))
		for _, n := range names {
			s.bad[n] = struct{}{}
		}
	}
}

// Store is the scene transition store. It is not safe for concurrent use.
type Store struct {
	old, prev, curr, next string
	newCurr, newNext      bool

	bad map[string]struct{}
	log logrus.FieldLogger
}

// New returns a store whose slots all start at initial.
func New(initial string, opts ...Option) *Store {
	s := &Store{
		old:  initial,
		prev: initial,
		curr: initial,
		log:  logging.Component(nil, "scene"),
	}
	WithBadNames(DefaultBadNames()...)(s)
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Old returns the scene the last emitted pair came from.
func (s *Store) Old() string { return s.old }

// Prev returns the active scene before Curr.
func (s *Store) Prev() string { return s.prev }

// Curr returns the active scene.
func (s *Store) Curr() string { return s.curr }

// Next returns the last announced next scene.
func (s *Store) Next() string { return s.next }

// Pending reports whether a pair is waiting to be emitted.
func (s *Store) Pending() bool { return s.newCurr || s.newNext }

// IsBad reports whether name is a placeholder.
func (s *Store) IsBad(name string) bool {
	_, ok := s.bad[name]
	return ok
}

// RecordCurrent stores an active scene observation.
func (s *Store) RecordCurrent(name string) {
	if name == s.curr {
		return
	}
	s.prev = s.curr
	s.curr = name
	// a scene that matches an emitted next was already announced
	if s.curr != s.next || s.newNext {
		s.newCurr = true
	}
}

// RecordNext stores a next scene observation.
func (s *Store) RecordNext(name string) {
	if name == s.next {
		return
	}
	s.next = name
	if name != "" {
		s.newNext = true
	}
}

// ReconcileDualCurrent arbitrates between two readings of the active scene
// taken in the same tick. An empty reading counts as absent. The adopted
// value is recorded; an unresolved mismatch leaves the store untouched.
func (s *Store) ReconcileDualCurrent(a, b string) Reconciled {
	switch {
	case a == "" && b == "":
		return Reconciled{}
	case a == "":
		return s.adopt(b, false, false)
	case b == "":
		return s.adopt(a, false, false)
	case a == b:
		return s.adopt(a, false, false)
	}

	badA, badB := s.IsBad(a), s.IsBad(b)
	switch {
	case badA && !badB:
		return s.adopt(b, true, false)
	case badB && !badA:
		return s.adopt(a, false, true)
	}

	switch {
	case s.fresh(a, b):
		return s.adopt(a, false, true)
	case s.fresh(b, a):
		return s.adopt(b, true, false)
	}

	s.log.WithFields(logrus.Fields{
		"a":    a,
		"b":    b,
		"prev": s.prev,
		"curr": s.curr,
		"old":  s.old,
	}).Warn("unresolved scene mismatch")
	return Reconciled{MismatchA: a != s.prev, MismatchB: b != s.prev}
}

// fresh reports whether x agrees with history better than y.
func (s *Store) fresh(x, y string) bool {
	if x == s.old {
		return true
	}
	return x == s.curr && y != s.curr && y != s.old
}

func (s *Store) adopt(name string, mismatchA, mismatchB bool) Reconciled {
	s.RecordCurrent(name)
	return Reconciled{Name: name, Resolved: true, MismatchA: mismatchA, MismatchB: mismatchB}
}

// NextTransitionPair returns the pending transition, if any. A pending next
// scene wins over a pending current scene and consumes both flags.
func (s *Store) NextTransitionPair() (Pair, bool) {
	if s.newNext {
		if s.next != s.curr {
			pair := Pair{Old: s.curr, Current: s.next}
			s.newNext = false
			s.newCurr = false
			s.old = pair.Old
			return pair, true
		}
		// already the active scene, nothing left to announce
		s.newNext = false
	}
	if s.newCurr {
		s.newCurr = false
		if s.prev == s.curr {
			return Pair{}, false
		}
		pair := Pair{Old: s.prev, Current: s.curr}
		s.old = pair.Old
		return pair, true
	}
	return Pair{}, false
}

// Reset replaces every slot with initial and drops pending flags.
func (s *Store) Reset(initial string) {
	s.old, s.prev, s.curr, s.next = initial, initial, initial, ""
	s.newCurr, s.newNext = false, false
}
