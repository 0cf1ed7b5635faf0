package accum

// HitCounter counts hits per segment. A hit is a drop of the health field
// while a run is active.
type HitCounter struct {
	segments []int
	last     int64
	hasLast  bool
	active   bool
}

// NewHitCounter returns an idle counter.
func NewHitCounter() *HitCounter {
	return &HitCounter{}
}

// Start begins counting a new run in its first segment.
func (h *HitCounter) Start() {
	h.segments = []int{0}
	h.hasLast = false
	h.active = true
}

// Split moves counting to the next segment.
func (h *HitCounter) Split() {
	if !h.active {
		return
	}
	h.segments = append(h.segments, 0)
}

// Undo returns counting to the previous segment. Hits of the dropped segment
// are folded into it so the run total is kept.
func (h *HitCounter) Undo() {
	if !h.active || len(h.segments) < 2 {
		return
	}
	last := len(h.segments) - 1
	h.segments[last-1] += h.segments[last]
	h.segments = h.segments[:last]
}

// End stops counting and keeps the totals.
func (h *HitCounter) End() {
	h.active = false
}

// Reset stops counting and drops the totals.
func (h *HitCounter) Reset() {
	h.segments = nil
	h.hasLast = false
	h.active = false
}

// Active reports whether a run is being counted.
func (h *HitCounter) Active() bool { return h.active }

// Observe feeds the current health value and reports whether it was a hit.
func (h *HitCounter) Observe(health int64) bool {
	prev, had := h.last, h.hasLast
	h.last, h.hasLast = health, true
	if !h.active || !had || health >= prev {
		return false
	}
	h.segments[len(h.segments)-1]++
	return true
}

// Total returns the hits of the run.
func (h *HitCounter) Total() int {
	total := 0
	for _, n := range h.segments {
		total += n
	}
	return total
}

// Segments returns a copy of the per-segment hits.
func (h *HitCounter) Segments() []int {
	return append([]int(nil), h.segments...)
}

// Better reports whether the run beats best, the per-segment hits of a stored
// comparison. An empty comparison is always beaten.
func (h *HitCounter) Better(best []int) bool {
	if len(best) == 0 {
		return true
	}
	total := 0
	for _, n := range best {
		total += n
	}
	return h.Total() < total
}
