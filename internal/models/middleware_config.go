package models

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

const (
	DefaultRateLimitMax        = 1000
	DefaultRateLimitExpiration = time.Minute

	DefaultRequestTimeout = 60 * time.Second
	MaxRequestTimeout     = 2 * time.Minute
)

// RateLimitConfig is a sliding window per key. A nil KeyFunc keys on the
// caller's user ID, then on the client IP.
type RateLimitConfig struct {
	Max        int
	Expiration time.Duration
	KeyFunc    func(*fiber.Ctx) string
}

func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{Max: DefaultRateLimitMax, Expiration: DefaultRateLimitExpiration}
}

// TimeoutConfig bounds non-streaming requests. Streams are never cut by it.
type TimeoutConfig struct {
	Timeout time.Duration
}

// Resolve picks the deadline for one request. A positive duration in header
// (an X-Request-Timeout value) wins, capped at MaxRequestTimeout; otherwise
// the configured timeout or DefaultRequestTimeout applies.
func (c TimeoutConfig) Resolve(header string) time.Duration {
	if header != "" {
		if d, err := time.ParseDuration(header); err == nil && d > 0 {
			return min(d, MaxRequestTimeout)
		}
	}
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultRequestTimeout
}
