package models

// FallbackMode defines the strategy for handling provider failures
type FallbackMode string

const (
	FallbackModeSequential FallbackMode = "sequential"
	FallbackModeDisabled   FallbackMode = "disabled"
)

// CircuitBreakerBackend selects where breaker state lives
type CircuitBreakerBackend string

const (
	CircuitBreakerBackendMemory CircuitBreakerBackend = "memory"
	CircuitBreakerBackendRedis  CircuitBreakerBackend = "redis"
)

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	Backend           CircuitBreakerBackend `json:"backend,omitzero" yaml:"backend,omitempty"`
	FailureThreshold  int                   `json:"failure_threshold,omitzero" yaml:"failure_threshold,omitempty"`     // Failures before opening the circuit
	RecoveryTimeoutMs int                   `json:"recovery_timeout_ms,omitzero" yaml:"recovery_timeout_ms,omitempty"` // Time spent OPEN before a trial call is allowed
}

// FallbackConfig holds the fallback configuration.
// An empty Mode behaves as sequential.
type FallbackConfig struct {
	Mode FallbackMode `json:"mode,omitzero" yaml:"mode,omitempty"`
	// Plans whose requests only ever try the primary candidate
	SingleCandidatePlans []PlanTier           `json:"single_candidate_plans,omitzero" yaml:"single_candidate_plans,omitempty"`
	CircuitBreaker       CircuitBreakerConfig `json:"circuit_breaker" yaml:"circuit_breaker,omitempty"`
}

// Enabled reports whether fallback may move past the first candidate
func (f FallbackConfig) Enabled() bool {
	return f.Mode != FallbackModeDisabled
}

// AllowsFallbackFor reports whether requests on plan may fall back
func (f FallbackConfig) AllowsFallbackFor(plan PlanTier) bool {
	if !f.Enabled() {
		return false
	}
	for _, p := range f.SingleCandidatePlans {
		if p == plan {
			return false
		}
	}
	return true
}
