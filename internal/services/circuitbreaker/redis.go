package circuitbreaker

import (
	"context"
	"strconv"
	"time"

	"github.com/Egham-7/adaptive-gateway/internal/models"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

const (
	circuitBreakerKeyPrefix = "circuit_breaker:"
	stateKey                = "state"
	failureCountKey         = "failure_count"
	lastFailureTimeKey      = "last_failure_time"
	lastStateChangeKey      = "last_state_change"
	generationKey           = "generation"
	defaultTimeout          = 1 * time.Second
)

// unknownGeneration marks calls admitted while Redis was unreachable; their
// outcomes never match a stored generation.
const unknownGeneration = -1

// Lua scripts keep every read-modify-write atomic across gateway instances.
// Timestamps are unix milliseconds supplied by the caller's clock. Every state
// change bumps the generation key and outcome scripts return -1 for tickets
// from another generation.
var (
	// KEYS: state, last_state_change, generation
	// ARGV: now, recovery timeout
	// Returns {code, generation}; code 0 reject, 1 allow (closed), 2 allow as trial
	allowScript = redis.NewScript(`
		local state = tonumber(redis.call('GET', KEYS[1]) or '0')
		local gen = tonumber(redis.call('GET', KEYS[3]) or '0')
		if state == 0 then
			return {1, gen}
		end
		local changed = tonumber(redis.call('GET', KEYS[2]) or '0')
		if tonumber(ARGV[1]) - changed < tonumber(ARGV[2]) then
			return {0, gen}
		end
		redis.call('SET', KEYS[1], 2)
		redis.call('SET', KEYS[2], ARGV[1])
		gen = redis.call('INCR', KEYS[3])
		return {2, gen}
	`)

	// KEYS: state, failure_count, last_state_change, generation
	// ARGV: now, ticket generation
	// Returns 1 when the breaker closed
	recordSuccessScript = redis.NewScript(`
		if tonumber(redis.call('GET', KEYS[4]) or '0') ~= tonumber(ARGV[2]) then
			return -1
		end
		local state = tonumber(redis.call('GET', KEYS[1]) or '0')
		if state == 2 then
			redis.call('SET', KEYS[1], 0)
			redis.call('SET', KEYS[2], 0)
			redis.call('SET', KEYS[3], ARGV[1])
			redis.call('INCR', KEYS[4])
			return 1
		end
		if state == 0 then
			redis.call('SET', KEYS[2], 0)
		end
		return 0
	`)

	// KEYS: state, failure_count, last_failure_time, last_state_change, generation
	// ARGV: failure threshold, now, ticket generation
	// Returns 1 when the breaker opened
	recordFailureScript = redis.NewScript(`
		if tonumber(redis.call('GET', KEYS[5]) or '0') ~= tonumber(ARGV[3]) then
			return -1
		end
		local state = tonumber(redis.call('GET', KEYS[1]) or '0')
		local failures = redis.call('INCR', KEYS[2])
		redis.call('SET', KEYS[3], ARGV[2])
		if (state == 0 and failures >= tonumber(ARGV[1])) or state == 2 then
			redis.call('SET', KEYS[1], 1)
			redis.call('SET', KEYS[4], ARGV[2])
			redis.call('INCR', KEYS[5])
			return 1
		end
		return 0
	`)

	// KEYS: state, last_state_change, generation
	// ARGV: expired timestamp, ticket generation
	releaseScript = redis.NewScript(`
		if tonumber(redis.call('GET', KEYS[3]) or '0') ~= tonumber(ARGV[2]) then
			return -1
		end
		local state = tonumber(redis.call('GET', KEYS[1]) or '0')
		if state == 2 then
			redis.call('SET', KEYS[1], 1)
			redis.call('SET', KEYS[2], ARGV[1])
			redis.call('INCR', KEYS[3])
			return 1
		end
		return 0
	`)
)

type keyBuilder struct {
	prefix string
}

func (kb keyBuilder) state() string        { return kb.prefix + stateKey }
func (kb keyBuilder) failureCount() string { return kb.prefix + failureCountKey }
func (kb keyBuilder) lastFailure() string  { return kb.prefix + lastFailureTimeKey }
func (kb keyBuilder) lastChange() string   { return kb.prefix + lastStateChangeKey }
func (kb keyBuilder) generation() string   { return kb.prefix + generationKey }

// RedisBreaker shares breaker state between gateway instances through Redis
type RedisBreaker struct {
	redisClient *redis.Client
	name        string
	config      Config
	keys        keyBuilder
}

func NewRedisBreaker(redisClient *redis.Client, name string, config Config) *RedisBreaker {
	return &RedisBreaker{
		redisClient: redisClient,
		name:        name,
		config:      config.normalized(),
		keys:        keyBuilder{prefix: circuitBreakerKeyPrefix + name + ":"},
	}
}

// NewRedisSet creates a breaker set whose state lives in Redis
func NewRedisSet(redisClient *redis.Client, cfg Config) *Set {
	return NewSet(func(id models.ProviderID) Breaker {
		return NewRedisBreaker(redisClient, string(id), cfg)
	})
}

func (cb *RedisBreaker) Allow(ctx context.Context) (Ticket, bool) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	result, err := allowScript.Run(ctx, cb.redisClient,
		[]string{cb.keys.state(), cb.keys.lastChange(), cb.keys.generation()},
		cb.config.now().UnixMilli(), cb.config.RecoveryTimeout.Milliseconds(),
	).Int64Slice()
	if err != nil || len(result) != 2 {
		fiberlog.Errorf("CircuitBreaker: Failed to evaluate %s, allowing execution: %v", cb.name, err)
		return Ticket{Generation: unknownGeneration}, true
	}

	ticket := Ticket{Generation: result[1]}
	switch result[0] {
	case 2:
		fiberlog.Infof("CircuitBreaker: %s transitioned to %s, allowing one trial call", cb.name, HalfOpen)
		return ticket, true
	case 1:
		return ticket, true
	default:
		return ticket, false
	}
}

func (cb *RedisBreaker) RecordSuccess(ctx context.Context, t Ticket) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	result, err := recordSuccessScript.Run(ctx, cb.redisClient,
		[]string{cb.keys.state(), cb.keys.failureCount(), cb.keys.lastChange(), cb.keys.generation()},
		cb.config.now().UnixMilli(), t.Generation,
	).Int()
	if err != nil {
		fiberlog.Errorf("CircuitBreaker: Failed to record success for %s: %v", cb.name, err)
		return
	}

	switch result {
	case 1:
		fiberlog.Infof("CircuitBreaker: %s transitioned to %s after successful trial call", cb.name, Closed)
	case -1:
		fiberlog.Debugf("CircuitBreaker: %s ignoring stale success from generation %d", cb.name, t.Generation)
	}
}

func (cb *RedisBreaker) RecordFailure(ctx context.Context, t Ticket) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	result, err := recordFailureScript.Run(ctx, cb.redisClient,
		[]string{cb.keys.state(), cb.keys.failureCount(), cb.keys.lastFailure(), cb.keys.lastChange(), cb.keys.generation()},
		cb.config.FailureThreshold, cb.config.now().UnixMilli(), t.Generation,
	).Int()
	if err != nil {
		fiberlog.Errorf("CircuitBreaker: Failed to record failure for %s: %v", cb.name, err)
		return
	}

	switch result {
	case 1:
		fiberlog.Warnf("CircuitBreaker: %s transitioned to %s after failure", cb.name, Open)
	case -1:
		fiberlog.Debugf("CircuitBreaker: %s ignoring stale failure from generation %d", cb.name, t.Generation)
	default:
		fiberlog.Debugf("CircuitBreaker: %s recorded failure", cb.name)
	}
}

func (cb *RedisBreaker) Release(ctx context.Context, t Ticket) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	expired := cb.config.now().Add(-cb.config.RecoveryTimeout).UnixMilli()
	if err := releaseScript.Run(ctx, cb.redisClient,
		[]string{cb.keys.state(), cb.keys.lastChange(), cb.keys.generation()}, expired, t.Generation,
	).Err(); err != nil {
		fiberlog.Errorf("CircuitBreaker: Failed to release trial call for %s: %v", cb.name, err)
	}
}

func (cb *RedisBreaker) Snapshot(ctx context.Context) Snapshot {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	values, err := cb.redisClient.MGet(ctx,
		cb.keys.state(), cb.keys.failureCount(), cb.keys.lastFailure(), cb.keys.lastChange(),
	).Result()
	if err != nil {
		fiberlog.Errorf("CircuitBreaker: Failed to read state of %s, reporting %s: %v", cb.name, Closed, err)
		return Snapshot{State: Closed}
	}

	return Snapshot{
		State:         State(parseInt(values[0])),
		FailureCount:  int(parseInt(values[1])),
		LastFailureAt: parseMillis(values[2]),
		ChangedAt:     parseMillis(values[3]),
	}
}

func (cb *RedisBreaker) Reset(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	pipe := cb.redisClient.TxPipeline()
	pipe.Set(ctx, cb.keys.state(), int(Closed), 0)
	pipe.Set(ctx, cb.keys.failureCount(), 0, 0)
	pipe.Del(ctx, cb.keys.lastFailure())
	pipe.Set(ctx, cb.keys.lastChange(), cb.config.now().UnixMilli(), 0)
	pipe.Incr(ctx, cb.keys.generation())

	if _, err := pipe.Exec(ctx); err != nil {
		fiberlog.Errorf("CircuitBreaker: Failed to reset %s: %v", cb.name, err)
		return
	}
	fiberlog.Infof("CircuitBreaker: Reset circuit breaker for %s", cb.name)
}

func parseInt(v any) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func parseMillis(v any) time.Time {
	ms := parseInt(v)
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
