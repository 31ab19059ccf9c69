package scheduler

import (
	"context"
	"sync"
	"time"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

// MonthlyResetter zeroes usage counters whose period has rolled over
type MonthlyResetter interface {
	ResetMonthlyUsage(ctx context.Context, now time.Time) (int64, error)
}

// QuotaResetScheduler runs the monthly quota rollover on a fixed interval
type QuotaResetScheduler struct {
	resetter MonthlyResetter
	interval time.Duration
	now      func() time.Time
	stopChan chan struct{}
	stopOnce sync.Once
}

func NewQuotaResetScheduler(resetter MonthlyResetter, interval time.Duration) *QuotaResetScheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &QuotaResetScheduler{
		resetter: resetter,
		interval: interval,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
}

// Start blocks until Stop is called or ctx is done. One pass runs immediately
// so a restart after the month boundary does not wait a full interval.
func (s *QuotaResetScheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	fiberlog.Infof("QuotaReset: scheduler started, running every %s", s.interval)
	s.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-s.stopChan:
			fiberlog.Info("QuotaReset: scheduler stopped")
			return
		case <-ctx.Done():
			fiberlog.Info("QuotaReset: scheduler stopped due to context cancellation")
			return
		}
	}
}

func (s *QuotaResetScheduler) RunOnce(ctx context.Context) {
	n, err := s.resetter.ResetMonthlyUsage(ctx, s.now())
	if err != nil {
		fiberlog.Errorf("QuotaReset: failed to reset monthly usage: %v", err)
		return
	}
	if n > 0 {
		fiberlog.Infof("QuotaReset: reset monthly usage for %d users", n)
	}
}

func (s *QuotaResetScheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}
