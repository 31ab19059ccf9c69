package circuitbreaker

import (
	"context"
	"sync"
	"time"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

// MemoryBreaker keeps breaker state in process, guarded by a mutex
type MemoryBreaker struct {
	name   string
	config Config

	mu            sync.Mutex
	state         State
	generation    int64
	failureCount  int
	lastFailureAt time.Time
	changedAt     time.Time
}

func NewMemoryBreaker(name string, config Config) *MemoryBreaker {
	config = config.normalized()
	return &MemoryBreaker{
		name:      name,
		config:    config,
		state:     Closed,
		changedAt: config.now(),
	}
}

func (cb *MemoryBreaker) Allow(_ context.Context) (Ticket, bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case Closed:
		return cb.ticket(), true
	case Open, HalfOpen:
		// An overdue trial call is treated as lost and a new one may take over.
		now := cb.config.now()
		if now.Sub(cb.changedAt) < cb.config.RecoveryTimeout {
			return cb.ticket(), false
		}
		cb.transition(HalfOpen, now)
		return cb.ticket(), true
	default:
		return cb.ticket(), false
	}
}

func (cb *MemoryBreaker) RecordSuccess(_ context.Context, t Ticket) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !cb.current(t, "success") {
		return
	}

	switch cb.state {
	case HalfOpen:
		cb.failureCount = 0
		cb.transition(Closed, cb.config.now())
	case Closed:
		cb.failureCount = 0
	}
}

func (cb *MemoryBreaker) RecordFailure(_ context.Context, t Ticket) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !cb.current(t, "failure") {
		return
	}

	now := cb.config.now()
	cb.failureCount++
	cb.lastFailureAt = now

	switch cb.state {
	case Closed:
		if cb.failureCount >= cb.config.FailureThreshold {
			cb.transition(Open, now)
		}
	case HalfOpen:
		cb.transition(Open, now)
	}
}

func (cb *MemoryBreaker) Release(_ context.Context, t Ticket) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != HalfOpen || t.Generation != cb.generation {
		return
	}
	// Back to OPEN with an already expired timer so the next caller takes the trial.
	cb.state = Open
	cb.generation++
	cb.changedAt = cb.config.now().Add(-cb.config.RecoveryTimeout)
	fiberlog.Debugf("CircuitBreaker: %s trial call released without outcome", cb.name)
}

func (cb *MemoryBreaker) Snapshot(_ context.Context) Snapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return Snapshot{
		State:         cb.state,
		FailureCount:  cb.failureCount,
		LastFailureAt: cb.lastFailureAt,
		ChangedAt:     cb.changedAt,
	}
}

func (cb *MemoryBreaker) Reset(_ context.Context) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount = 0
	cb.lastFailureAt = time.Time{}
	cb.transition(Closed, cb.config.now())
}

func (cb *MemoryBreaker) ticket() Ticket {
	return Ticket{Generation: cb.generation}
}

// current reports whether t was issued in the present generation; mu must be held
func (cb *MemoryBreaker) current(t Ticket, outcome string) bool {
	if t.Generation == cb.generation {
		return true
	}
	fiberlog.Debugf("CircuitBreaker: %s ignoring stale %s from generation %d (now %d)", cb.name, outcome, t.Generation, cb.generation)
	return false
}

// transition must be called with mu held
func (cb *MemoryBreaker) transition(to State, now time.Time) {
	from := cb.state
	cb.state = to
	cb.changedAt = now
	cb.generation++

	switch to {
	case Open:
		fiberlog.Warnf("CircuitBreaker: %s transitioned to %s after %d failures", cb.name, to, cb.failureCount)
	case HalfOpen:
		fiberlog.Infof("CircuitBreaker: %s transitioned to %s, allowing one trial call", cb.name, to)
	default:
		if from != to {
			fiberlog.Infof("CircuitBreaker: %s transitioned to %s", cb.name, to)
		}
	}
}
