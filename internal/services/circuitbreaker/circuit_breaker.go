package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Egham-7/adaptive-gateway/internal/models"
)

type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "CLOSED"
	case Open:
		return "OPEN"
	case HalfOpen:
		return "HALF_OPEN"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// MarshalText renders the state name in JSON payloads
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

const (
	DefaultFailureThreshold = 3
	DefaultRecoveryTimeout  = 30 * time.Second
)

// ErrOpen is returned by Execute when the breaker rejects a call without running it
var ErrOpen = errors.New("circuit breaker open")

type Config struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	// Now is the clock used for the recovery timer; nil means time.Now
	Now func() time.Time
}

// DefaultConfig returns the default breaker configuration
func DefaultConfig() Config {
	return Config{
		FailureThreshold: DefaultFailureThreshold,
		RecoveryTimeout:  DefaultRecoveryTimeout,
	}
}

// ConfigFromModel converts the YAML breaker settings, filling defaults
func ConfigFromModel(cfg models.CircuitBreakerConfig) Config {
	c := DefaultConfig()
	if cfg.FailureThreshold > 0 {
		c.FailureThreshold = cfg.FailureThreshold
	}
	if cfg.RecoveryTimeoutMs > 0 {
		c.RecoveryTimeout = time.Duration(cfg.RecoveryTimeoutMs) * time.Millisecond
	}
	return c
}

func (c Config) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c Config) normalized() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = DefaultRecoveryTimeout
	}
	return c
}

// Snapshot is a point-in-time view of a breaker
type Snapshot struct {
	State         State     `json:"state"`
	FailureCount  int       `json:"failure_count"`
	LastFailureAt time.Time `json:"last_failure_at,omitzero"`
	ChangedAt     time.Time `json:"changed_at,omitzero"`
}

// Ticket records the breaker generation a call was admitted in. The
// generation moves on every state transition, so outcomes reported with an
// older ticket are ignored. While HALF_OPEN the only current ticket is the
// one handed to the trial call.
type Ticket struct {
	Generation int64
}

// Breaker tracks failures of one provider and decides whether calls may pass.
//
// Allow must be paired with exactly one of RecordSuccess, RecordFailure or
// Release, passing back the ticket Allow returned. Release hands the trial
// call back without an outcome.
type Breaker interface {
	Allow(ctx context.Context) (Ticket, bool)
	RecordSuccess(ctx context.Context, t Ticket)
	RecordFailure(ctx context.Context, t Ticket)
	Release(ctx context.Context, t Ticket)
	Snapshot(ctx context.Context) Snapshot
	Reset(ctx context.Context)
}

// Execute runs fn when b allows it and records the outcome under the ticket
// it was admitted with. Caller cancellation is not held against the provider.
func Execute(ctx context.Context, b Breaker, fn func(context.Context) error) (Ticket, error) {
	ticket, ok := b.Allow(ctx)
	if !ok {
		return ticket, ErrOpen
	}

	err := fn(ctx)

	// Outcome bookkeeping must survive the caller cancelling ctx.
	bookkeeping := context.WithoutCancel(ctx)
	switch {
	case err == nil:
		b.RecordSuccess(bookkeeping, ticket)
	case errors.Is(err, context.Canceled):
		b.Release(bookkeeping, ticket)
	default:
		b.RecordFailure(bookkeeping, ticket)
	}
	return ticket, err
}

// Set holds one breaker per provider, created on first use
type Set struct {
	mu       sync.RWMutex
	breakers map[models.ProviderID]Breaker
	factory  func(models.ProviderID) Breaker
}

// NewSet creates a breaker set using factory for new providers
func NewSet(factory func(models.ProviderID) Breaker) *Set {
	return &Set{
		breakers: make(map[models.ProviderID]Breaker),
		factory:  factory,
	}
}

// NewMemorySet creates a set of process-local breakers
func NewMemorySet(cfg Config) *Set {
	return NewSet(func(id models.ProviderID) Breaker {
		return NewMemoryBreaker(string(id), cfg)
	})
}

// For returns the breaker of a provider
func (s *Set) For(id models.ProviderID) Breaker {
	s.mu.RLock()
	b, ok := s.breakers[id]
	s.mu.RUnlock()
	if ok {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.breakers[id]; ok {
		return b
	}
	b = s.factory(id)
	s.breakers[id] = b
	return b
}

// Snapshots returns the current view of every breaker created so far
func (s *Set) Snapshots(ctx context.Context) map[models.ProviderID]Snapshot {
	s.mu.RLock()
	breakers := make(map[models.ProviderID]Breaker, len(s.breakers))
	for id, b := range s.breakers {
		breakers[id] = b
	}
	s.mu.RUnlock()

	out := make(map[models.ProviderID]Snapshot, len(breakers))
	for id, b := range breakers {
		out[id] = b.Snapshot(ctx)
	}
	return out
}
