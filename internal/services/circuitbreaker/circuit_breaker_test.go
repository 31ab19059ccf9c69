package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Egham-7/adaptive-gateway/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var errUpstream = errors.New("upstream 503")

type breakerFactory func(t *testing.T, cfg Config) Breaker

func factories() map[string]breakerFactory {
	return map[string]breakerFactory{
		"memory": func(_ *testing.T, cfg Config) Breaker {
			return NewMemoryBreaker("openai", cfg)
		},
		"redis": func(t *testing.T, cfg Config) Breaker {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = client.Close() })
			return NewRedisBreaker(client, "openai", cfg)
		},
	}
}

func failN(ctx context.Context, b Breaker, n int) {
	for range n {
		_, _ = Execute(ctx, b, func(context.Context) error { return errUpstream })
	}
}

func allowed(ctx context.Context, b Breaker) bool {
	_, ok := b.Allow(ctx)
	return ok
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	for name, newBreaker := range factories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := newFakeClock()
			b := newBreaker(t, Config{FailureThreshold: 3, RecoveryTimeout: 30 * time.Second, Now: clock.Now})

			failN(ctx, b, 2)
			assert.Equal(t, Closed, b.Snapshot(ctx).State)

			failN(ctx, b, 1)
			snap := b.Snapshot(ctx)
			assert.Equal(t, Open, snap.State)
			assert.Equal(t, 3, snap.FailureCount)

			var calls int32
			_, err := Execute(ctx, b, func(context.Context) error {
				atomic.AddInt32(&calls, 1)
				return nil
			})
			require.ErrorIs(t, err, ErrOpen)
			assert.Zero(t, atomic.LoadInt32(&calls), "provider must not be invoked while open")
		})
	}
}

func TestBreakerHalfOpenTrialSuccessCloses(t *testing.T) {
	for name, newBreaker := range factories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := newFakeClock()
			b := newBreaker(t, Config{FailureThreshold: 3, RecoveryTimeout: 30 * time.Second, Now: clock.Now})

			failN(ctx, b, 3)
			clock.Advance(29 * time.Second)
			assert.False(t, allowed(ctx, b))

			clock.Advance(time.Second)
			trial, ok := b.Allow(ctx)
			require.True(t, ok, "first call after recovery timeout is the trial call")
			assert.Equal(t, HalfOpen, b.Snapshot(ctx).State)
			assert.False(t, allowed(ctx, b), "concurrent calls during the trial are rejected")

			b.RecordSuccess(ctx, trial)
			snap := b.Snapshot(ctx)
			assert.Equal(t, Closed, snap.State)
			assert.Zero(t, snap.FailureCount)
			assert.True(t, allowed(ctx, b))
		})
	}
}

func TestBreakerHalfOpenTrialFailureReopens(t *testing.T) {
	for name, newBreaker := range factories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := newFakeClock()
			b := newBreaker(t, Config{FailureThreshold: 3, RecoveryTimeout: 30 * time.Second, Now: clock.Now})

			failN(ctx, b, 3)
			clock.Advance(31 * time.Second)
			trial, ok := b.Allow(ctx)
			require.True(t, ok)
			b.RecordFailure(ctx, trial)
			assert.Equal(t, Open, b.Snapshot(ctx).State)

			// The open timer restarted at the failed trial call.
			clock.Advance(20 * time.Second)
			assert.False(t, allowed(ctx, b))
			clock.Advance(10 * time.Second)
			assert.True(t, allowed(ctx, b))
		})
	}
}

func TestBreakerIgnoresStaleFailureDuringHalfOpen(t *testing.T) {
	for name, newBreaker := range factories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := newFakeClock()
			b := newBreaker(t, Config{FailureThreshold: 3, RecoveryTimeout: 30 * time.Second, Now: clock.Now})

			// A slow call admitted while closed outlives the open period.
			slow, ok := b.Allow(ctx)
			require.True(t, ok)

			failN(ctx, b, 3)
			clock.Advance(31 * time.Second)
			trial, ok := b.Allow(ctx)
			require.True(t, ok)

			b.RecordFailure(ctx, slow)
			assert.Equal(t, HalfOpen, b.Snapshot(ctx).State, "late failure from before the outage must not reopen")
			assert.Equal(t, 3, b.Snapshot(ctx).FailureCount)

			b.RecordSuccess(ctx, trial)
			snap := b.Snapshot(ctx)
			assert.Equal(t, Closed, snap.State)
			assert.Zero(t, snap.FailureCount)
		})
	}
}

func TestBreakerIgnoresStaleSuccessDuringHalfOpen(t *testing.T) {
	for name, newBreaker := range factories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := newFakeClock()
			b := newBreaker(t, Config{FailureThreshold: 3, RecoveryTimeout: 30 * time.Second, Now: clock.Now})

			slow, ok := b.Allow(ctx)
			require.True(t, ok)

			failN(ctx, b, 3)
			clock.Advance(31 * time.Second)
			trial, ok := b.Allow(ctx)
			require.True(t, ok)

			b.RecordSuccess(ctx, slow)
			assert.Equal(t, HalfOpen, b.Snapshot(ctx).State, "late success from before the outage must not close")

			b.RecordFailure(ctx, trial)
			assert.Equal(t, Open, b.Snapshot(ctx).State)
		})
	}
}

func TestBreakerIgnoresStaleOutcomesWhileOpen(t *testing.T) {
	for name, newBreaker := range factories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := newFakeClock()
			b := newBreaker(t, Config{FailureThreshold: 2, RecoveryTimeout: 30 * time.Second, Now: clock.Now})

			slow, ok := b.Allow(ctx)
			require.True(t, ok)
			failN(ctx, b, 2)
			require.Equal(t, Open, b.Snapshot(ctx).State)

			b.RecordFailure(ctx, slow)
			b.RecordSuccess(ctx, slow)
			snap := b.Snapshot(ctx)
			assert.Equal(t, Open, snap.State)
			assert.Equal(t, 2, snap.FailureCount)
		})
	}
}

func TestBreakerSuccessResetsConsecutiveFailures(t *testing.T) {
	for name, newBreaker := range factories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			b := newBreaker(t, DefaultConfig())

			failN(ctx, b, 2)
			_, err := Execute(ctx, b, func(context.Context) error { return nil })
			require.NoError(t, err)
			failN(ctx, b, 2)
			assert.Equal(t, Closed, b.Snapshot(ctx).State)
		})
	}
}

func TestBreakerReleaseHandsTrialBack(t *testing.T) {
	for name, newBreaker := range factories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := newFakeClock()
			b := newBreaker(t, Config{FailureThreshold: 1, RecoveryTimeout: time.Minute, Now: clock.Now})

			failN(ctx, b, 1)
			clock.Advance(time.Minute)

			_, err := Execute(ctx, b, func(context.Context) error { return context.Canceled })
			require.ErrorIs(t, err, context.Canceled)
			assert.Equal(t, Open, b.Snapshot(ctx).State)
			assert.True(t, allowed(ctx, b), "a released trial can be taken immediately")
		})
	}
}

func TestBreakerReset(t *testing.T) {
	for name, newBreaker := range factories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			b := newBreaker(t, Config{FailureThreshold: 1})
			failN(ctx, b, 1)
			require.Equal(t, Open, b.Snapshot(ctx).State)

			b.Reset(ctx)
			snap := b.Snapshot(ctx)
			assert.Equal(t, Closed, snap.State)
			assert.Zero(t, snap.FailureCount)
		})
	}
}

func TestMemoryBreakerSingleTrialUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	b := NewMemoryBreaker("claude", Config{FailureThreshold: 1, RecoveryTimeout: time.Second, Now: clock.Now})
	failN(ctx, b, 1)
	clock.Advance(time.Second)

	var admitted int32
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if allowed(ctx, b) {
				atomic.AddInt32(&admitted, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), admitted)
}

func TestSetCreatesOneBreakerPerProvider(t *testing.T) {
	ctx := context.Background()
	set := NewMemorySet(Config{FailureThreshold: 1})

	assert.Same(t, set.For(models.ProviderOpenAI), set.For(models.ProviderOpenAI))
	failN(ctx, set.For(models.ProviderOpenAI), 1)

	snaps := set.Snapshots(ctx)
	assert.Equal(t, Open, snaps[models.ProviderOpenAI].State)
	assert.Equal(t, Closed, set.For(models.ProviderClaude).Snapshot(ctx).State)
}

func TestConfigFromModel(t *testing.T) {
	cfg := ConfigFromModel(models.CircuitBreakerConfig{})
	assert.Equal(t, DefaultFailureThreshold, cfg.FailureThreshold)
	assert.Equal(t, DefaultRecoveryTimeout, cfg.RecoveryTimeout)

	cfg = ConfigFromModel(models.CircuitBreakerConfig{FailureThreshold: 5, RecoveryTimeoutMs: 1500})
	assert.Equal(t, 5, cfg.FailureThreshold)
	assert.Equal(t, 1500*time.Millisecond, cfg.RecoveryTimeout)
}
