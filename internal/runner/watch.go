package runner

import (
	"context"
	"time"

	"revq/internal/logging"
	"revq/internal/syncer"
)

// Watch repeats sync-then-run passes until the context is cancelled. The
// first pass starts immediately; a failed pass logs and waits for the next
// tick instead of stopping the loop.
func (r *Runner) Watch(ctx context.Context, s *syncer.Syncer, interval time.Duration, syncOpts syncer.Options, runOpts Options) error {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	r.logger.Info("watching for pending reviews", logging.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		r.pass(ctx, s, syncOpts, runOpts)
		select {
		case <-ctx.Done():
			r.logger.Info("watch stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Runner) pass(ctx context.Context, s *syncer.Syncer, syncOpts syncer.Options, runOpts Options) {
	if s != nil {
		if _, err := s.Sync(ctx, syncOpts); err != nil {
			r.logger.Error("sync pass failed", logging.Error(err))
			return
		}
	}
	if _, err := r.Run(ctx, runOpts); err != nil {
		r.logger.Error("processing pass failed", logging.Error(err))
	}
}
