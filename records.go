package autosplit

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-autosplit/pkg/state"
)

// RecordNamespace holds one RouteRecord per route name.
const RecordNamespace = "routes"

// RouteRecord is the persisted history of a route.
type RouteRecord struct {
	Attempts  int `json:"attempts"`
	Completed int `json:"completed"`
	// BestSegments are the per segment hits of the best completed run.
	BestSegments []int     `json:"best_segments,omitempty"`
	BestTotal    int       `json:"best_total"`
	BestRunID    string    `json:"best_run_id,omitempty"`
	BestAt       time.Time `json:"best_at"`
}

// Validate rejects negative counters.
func (r RouteRecord) Validate() error {
	if r.Attempts < 0 || r.Completed < 0 || r.BestTotal < 0 {
		return fmt.Errorf("autosplit: route record counters must not be negative")
	}
	if r.Completed > r.Attempts {
		return fmt.Errorf("autosplit: completed runs (%d) exceed attempts (%d)", r.Completed, r.Attempts)
	}
	for _, n := range r.BestSegments {
		if n < 0 {
			return fmt.Errorf("autosplit: segment hits must not be negative")
		}
	}
	return nil
}

// recordAttempt counts a started run.
func (s *Splitter) recordAttempt(ctx context.Context) {
	if s.cfg.store == nil {
		return
	}
	record, _, err := state.Update(ctx, s.cfg.store, s.ref(), func(r *RouteRecord) error {
		r.Attempts++
		return nil
	}, 0)
	if err != nil {
		s.log.WithError(err).Warn("attempt count not saved")
		return
	}
	s.log.WithField("attempts", record.Attempts).Debug("attempt recorded")
}

// recordCompletion counts a finished run and keeps it as the best when it
// took fewer hits.
func (s *Splitter) recordCompletion(ctx context.Context) {
	if s.cfg.store == nil {
		return
	}
	counting := s.route.route.HealthField != ""
	segments := s.hits.Segments()
	total := s.hits.Total()
	improved := false
	_, _, err := state.Update(ctx, s.cfg.store, s.ref(), func(r *RouteRecord) error {
		improved = false
		r.Completed++
		if r.Completed > r.Attempts {
			r.Attempts = r.Completed
		}
		if counting && s.hits.Better(r.BestSegments) {
			improved = true
			r.BestSegments = segments
			r.BestTotal = total
			r.BestRunID = s.runID
			r.BestAt = time.Now().UTC()
		}
		return nil
	}, 0)
	if err != nil {
		s.log.WithError(err).Warn("run completion not saved")
		return
	}
	if improved {
		s.log.WithField("hits", total).Info("new personal best saved")
	}
}
