package syncer

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/jaki95/registry-sync/internal/progress"
)

// Runner starts a sync run.
type Runner interface {
	Run(ctx context.Context, req Request) (*Summary, error)
}

// Scheduler runs a full sync at a fixed interval plus random jitter.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	jitter   time.Duration
	done     chan struct{}
}

func NewScheduler(runner Runner, interval, jitter time.Duration) *Scheduler {
	return &Scheduler{
		runner:   runner,
		interval: interval,
		jitter:   jitter,
		done:     make(chan struct{}),
	}
}

func (s *Scheduler) nextInterval() time.Duration {
	if s.jitter <= 0 {
		return s.interval
	}
	//nolint:gosec // jitter does not need crypto randomness
	return s.interval + time.Duration(rand.Int64N(int64(s.jitter)))
}

// Start blocks, triggering a sync on every tick until ctx is cancelled.
// A tick that finds a run already active is skipped.
func (s *Scheduler) Start(ctx context.Context) {
	defer close(s.done)

	if s.interval <= 0 {
		slog.Info("Scheduled sync disabled")
		return
	}

	next := s.nextInterval()
	slog.Info("Starting sync scheduler", "interval", s.interval, "next", next)

	ticker := time.NewTicker(next)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runOnce(ctx)
			ticker.Reset(s.nextInterval())
		case <-ctx.Done():
			slog.Info("Sync scheduler stopping")
			return
		}
	}
}

// Done is closed once Start returns.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

func (s *Scheduler) runOnce(ctx context.Context) {
	summary, err := s.runner.Run(ctx, Request{})
	switch {
	case errors.Is(err, progress.ErrAlreadyRunning):
		slog.Debug("Scheduled sync skipped, a run is already active")
	case err != nil:
		slog.Error("Scheduled sync failed", "error", err)
	default:
		slog.Info("Scheduled sync finished", "inserted", summary.Inserted, "updated", summary.Updated,
			"unchanged", summary.Unchanged, "errors", summary.Errors)
	}
}
