package models

import "time"

// CacheBackendType represents the type of cache backend to use
type CacheBackendType string

const (
	CacheBackendRedis  CacheBackendType = "redis"
	CacheBackendMemory CacheBackendType = "memory"
)

// CacheConfig holds configuration for the response cache
type CacheConfig struct {
	// Backend configuration
	Backend    CacheBackendType `json:"backend,omitzero" yaml:"backend"`     // "redis" or "memory"
	RedisURL   string           `json:"redis_url,omitzero" yaml:"redis_url"` // Falls back to redis.url
	Capacity   int              `json:"capacity,omitzero" yaml:"capacity"`   // LRU size for the memory backend
	TTLSeconds int              `json:"ttl_seconds,omitzero" yaml:"ttl_seconds"`

	// Cache behavior
	Enabled           bool    `json:"enabled,omitzero" yaml:"enabled"`
	SemanticThreshold float64 `json:"semantic_threshold,omitzero" yaml:"semantic_threshold"`
	OpenAIAPIKey      string  `json:"openai_api_key,omitzero" yaml:"openai_api_key"` // Enables embedding similarity when set
	EmbeddingModel    string  `json:"embedding_model,omitzero" yaml:"embedding_model"`
}

// TTL returns the configured entry lifetime
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// Cache tier constants
const (
	CacheTierExact   = "exact"
	CacheTierSimilar = "similar"
)

// CacheEntry is a previously computed response keyed by normalized query and model
type CacheEntry struct {
	Key         string     `json:"key"`
	Query       string     `json:"query"`
	Response    string     `json:"response"`
	Model       string     `json:"model"`
	Provider    ProviderID `json:"provider,omitzero"`
	ServedModel string     `json:"served_model,omitzero"`
	TokensIn    int        `json:"tokens_in"`
	TokensOut   int        `json:"tokens_out"`
	CostUSD     float64    `json:"cost_usd"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	Tier        string     `json:"tier,omitzero"`
}

// CacheStats aggregates cache effectiveness, globally or for one model
type CacheStats struct {
	Model          string  `json:"model,omitzero"`
	Entries        int64   `json:"entries"`
	Hits           int64   `json:"hits"`
	Misses         int64   `json:"misses"`
	TokensSaved    int64   `json:"tokens_saved"`
	CostSavedUSD   float64 `json:"cost_saved_usd"`
	HitRatePercent float64 `json:"hit_rate_percent"`
}
