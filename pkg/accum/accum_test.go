package accum

import (
	"reflect"
	"testing"
)

func TestDeltasDetectsSingleStep(t *testing.T) {
	d := NewDeltas()
	steps := []struct {
		value int64
		want  bool
	}{
		{3, false},
		{4, true},
		{4, false},
		{6, false},
		{7, true},
		{5, false},
	}
	for i, step := range steps {
		if got := d.Observe("grubs", step.value); got != step.want {
			t.Fatalf("step %d: Observe(%d) = %v, want %v", i, step.value, got, step.want)
		}
	}
	d.Reset()
	if _, ok := d.Last("grubs"); ok {
		t.Fatalf("expected reset to forget fields")
	}
	if d.Observe("grubs", 8) {
		t.Fatalf("first observation after reset must not count")
	}
}

func TestAsInt(t *testing.T) {
	cases := []struct {
		in   any
		want int64
		ok   bool
	}{
		{int64(5), 5, true},
		{3.9, 3, true},
		{true, 1, true},
		{"five", 0, false},
	}
	for _, tc := range cases {
		got, ok := AsInt(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("AsInt(%v) = %d %v, want %d %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestHitCounterUndoFoldsSegment(t *testing.T) {
	h := NewHitCounter()
	h.Undo()
	h.Start()
	h.Observe(5)
	h.Observe(4)
	h.Split()
	h.Observe(3)
	h.Undo()
	h.Undo()
	if got := h.Segments(); !reflect.DeepEqual(got, []int{2}) {
		t.Fatalf("expected the undone segment folded back, got %v", got)
	}
	h.Split()
	h.Observe(2)
	if got := h.Segments(); !reflect.DeepEqual(got, []int{2, 1}) {
		t.Fatalf("unexpected segments after undo %v", got)
	}
}

func TestHitCounterCountsDropsPerSegment(t *testing.T) {
	h := NewHitCounter()
	if h.Observe(5); h.Observe(4) {
		t.Fatalf("hits before the run starts must not count")
	}

	h.Start()
	h.Observe(5)
	h.Observe(4)
	h.Observe(4)
	h.Observe(5)
	h.Split()
	h.Observe(3)
	h.Observe(1)
	h.End()
	h.Observe(0)

	if got := h.Segments(); !reflect.DeepEqual(got, []int{1, 2}) {
		t.Fatalf("unexpected segments %v", got)
	}
	if h.Total() != 3 {
		t.Fatalf("expected 3 hits, got %d", h.Total())
	}
	if !h.Better([]int{2, 2}) || h.Better([]int{1, 1}) || !h.Better(nil) {
		t.Fatalf("unexpected comparison result")
	}

	h.Reset()
	if h.Total() != 0 || h.Active() {
		t.Fatalf("expected reset counter")
	}
}
