package autosplit

import (
	"context"
	"errors"
	"time"
)

// Run ticks at the configured interval until ctx ends. When the target
// process exits the splitter discards what it learned about it and waits for
// it to come back. Run returns ctx.Err().
func (s *Splitter) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.interval)
	defer ticker.Stop()

	s.log.WithField("interval", s.cfg.interval.String()).Info("splitter running")
	waiting := ""
	for {
		res, err := s.Tick(ctx)
		switch {
		case errors.Is(err, ErrProcessExited):
			s.log.Info("target process exited, waiting for it to restart")
			waiting = ""
		case err != nil && ctx.Err() != nil:
			s.detach()
			return ctx.Err()
		case err != nil:
			s.log.WithError(err).Warn("tick failed")
		case res.Waiting != waiting:
			if res.Waiting != "" {
				s.log.WithField("waiting_for", res.Waiting).Info("splitter waiting")
			}
			waiting = res.Waiting
		}

		select {
		case <-ctx.Done():
			s.detach()
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
