package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingResetter struct {
	calls atomic.Int32
	err   error
}

func (r *countingResetter) ResetMonthlyUsage(_ context.Context, _ time.Time) (int64, error) {
	r.calls.Add(1)
	return 1, r.err
}

func TestQuotaResetSchedulerRunsImmediatelyAndOnTick(t *testing.T) {
	r := &countingResetter{}
	s := NewQuotaResetScheduler(r, 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		s.Start(context.Background())
		close(done)
	}()

	assert.Eventually(t, func() bool { return r.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	s.Stop()
	s.Stop()
	<-done
}

func TestQuotaResetSchedulerStopsOnContext(t *testing.T) {
	r := &countingResetter{err: errors.New("db down")}
	s := NewQuotaResetScheduler(r, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return r.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
