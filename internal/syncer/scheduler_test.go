package syncer

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jaki95/registry-sync/internal/progress"
	"github.com/stretchr/testify/assert"
)

type countingRunner struct {
	calls atomic.Int32
	err   error
}

func (r *countingRunner) Run(context.Context, Request) (*Summary, error) {
	r.calls.Add(1)
	if r.err != nil {
		return nil, r.err
	}
	return &Summary{}, nil
}

func TestSchedulerRunsOnInterval(t *testing.T) {
	runner := &countingRunner{}
	scheduler := NewScheduler(runner, 10*time.Millisecond, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	go scheduler.Start(ctx)

	assert.Eventually(t, func() bool {
		return runner.calls.Load() >= 2
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-scheduler.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestSchedulerSkipsBusyTicks(t *testing.T) {
	runner := &countingRunner{err: progress.ErrAlreadyRunning}
	scheduler := NewScheduler(runner, 5*time.Millisecond, 0)

	ctx, cancel := context.WithCancel(context.Background())
	go scheduler.Start(ctx)

	assert.Eventually(t, func() bool {
		return runner.calls.Load() >= 2
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-scheduler.Done()
}

func TestSchedulerDisabled(t *testing.T) {
	runner := &countingRunner{}
	scheduler := NewScheduler(runner, 0, 0)

	scheduler.Start(context.Background())

	<-scheduler.Done()
	assert.Equal(t, int32(0), runner.calls.Load())
}
