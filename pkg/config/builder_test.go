package config

import (
	"testing"
	"time"

	"github.com/Egham-7/adaptive-gateway/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder(t *testing.T) {
	deepseek := NewProviderBuilder("sk-ds").
		WithType("openai").
		WithBaseURL("https://api.deepseek.com/v1").
		WithModels("deepseek-chat", "deepseek-chat", "deepseek-reasoner").
		WithPricing("deepseek-chat", 0.27, 1.1).
		WithHeader("X-Team", "gateway").
		Build()

	b := New().
		Port("9000").
		LogLevel("debug").
		AddProvider("openai", NewProviderBuilder("sk-openai").Build()).
		AddProvider("deepseek", deepseek).
		WithRedis("redis://localhost:6379/1").
		WithCache(models.CacheConfig{Backend: models.CacheBackendRedis}).
		WithFallback(models.FallbackConfig{SingleCandidatePlans: []models.PlanTier{models.PlanFree}}).
		WithRateLimit(10, time.Minute).
		WithTimeout(5 * time.Second)

	cfg := b.Build()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "*", cfg.Server.AllowedOrigins)
	assert.Equal(t, []string{"deepseek", "openai"}, cfg.ProviderIDs())
	assert.Equal(t, "openai", cfg.Providers["deepseek"].Type)
	assert.InDelta(t, 0.27, cfg.Providers["deepseek"].Pricing["deepseek-chat"].InputTokenCost, 1e-9)

	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, "redis://localhost:6379/1", cfg.Cache.RedisURL)
	assert.Equal(t, 3600, cfg.Cache.TTLSeconds)
	assert.Equal(t, models.FallbackModeSequential, cfg.Fallback.Mode)
	assert.Equal(t, 3, cfg.Fallback.CircuitBreaker.FailureThreshold)

	require.NotNil(t, b.GetRateLimitConfig())
	assert.Equal(t, 10, b.GetRateLimitConfig().Max)
	assert.Equal(t, 5*time.Second, b.GetTimeoutConfig().Timeout)
}

func TestProviderBuilderBuildCopiesMaps(t *testing.T) {
	pb := NewProviderBuilder("key").WithHeader("A", "1")
	first := pb.Build()
	pb.WithHeader("B", "2")

	assert.Len(t, first.Headers, 1)
	assert.Len(t, pb.Build().Headers, 2)
}

func TestLogLevelMapping(t *testing.T) {
	for _, level := range []string{"trace", "debug", "info", "warn", "warning", "error", "fatal", "panic", "bogus"} {
		cfg := New().LogLevel(level).Build()
		assert.NotPanics(t, func() { setupLogLevel(cfg) })
	}
}
