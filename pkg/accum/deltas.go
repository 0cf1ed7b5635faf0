// Package accum holds per-run accumulators fed from field readings.
package accum

// Deltas remembers the last value of each field to detect single-step
// increases between ticks.
type Deltas struct {
	last map[string]int64
}

// NewDeltas returns an empty tracker.
func NewDeltas() *Deltas {
	return &Deltas{last: map[string]int64{}}
}

// Observe records value for field and reports whether it is exactly one more
// than the previous observation. The first observation of a field is never
// an increase.
func (d *Deltas) Observe(field string, value int64) bool {
	prev, ok := d.last[field]
	d.last[field] = value
	return ok && value == prev+1
}

// Last returns the previous value of field.
func (d *Deltas) Last(field string) (int64, bool) {
	v, ok := d.last[field]
	return v, ok
}

// Reset forgets every field.
func (d *Deltas) Reset() {
	clear(d.last)
}

// AsInt converts a field reading to int64. Booleans count as 0 and 1.
func AsInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint32:
		return int64(n), true
	case float64:
		return int64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
