// Package config provides the fluent configuration builder and server bootstrap for the gateway.
package config

import (
	"maps"
	"time"

	"github.com/Egham-7/adaptive-gateway/internal/config"
	"github.com/Egham-7/adaptive-gateway/internal/models"

	"github.com/gofiber/fiber/v2"
)

// Builder provides a fluent interface for building gateway configurations.
type Builder struct {
	cfg             *config.Config
	middlewares     []fiber.Handler
	rateLimitConfig *models.RateLimitConfig
	timeoutConfig   *models.TimeoutConfig
}

// New creates a new configuration builder with minimal defaults.
func New() *Builder {
	cfg := &config.Config{
		Server: models.ServerConfig{
			Environment: "development",
		},
		Providers: make(map[string]models.ProviderConfig),
	}
	cfg.ApplyDefaults()
	return &Builder{cfg: cfg}
}

// Server configuration

// Port sets the server port.
func (b *Builder) Port(port string) *Builder {
	b.cfg.Server.Port = port
	return b
}

// AllowedOrigins sets CORS allowed origins.
func (b *Builder) AllowedOrigins(origins string) *Builder {
	b.cfg.Server.AllowedOrigins = origins
	return b
}

// Environment sets the environment (development/production).
func (b *Builder) Environment(env string) *Builder {
	b.cfg.Server.Environment = env
	return b
}

// LogLevel sets the logging level (trace, debug, info, warn, error, fatal).
func (b *Builder) LogLevel(level string) *Builder {
	b.cfg.Server.LogLevel = level
	return b
}

// WithCache enables the response cache.
func (b *Builder) WithCache(cfg models.CacheConfig) *Builder {
	cfg.Enabled = true
	b.cfg.Cache = cfg
	b.cfg.ApplyDefaults()
	return b
}

// WithFallback configures fallback behavior and circuit breakers.
func (b *Builder) WithFallback(cfg models.FallbackConfig) *Builder {
	b.cfg.Fallback = cfg
	b.cfg.ApplyDefaults()
	return b
}

// WithQuota overrides plan limits and the reset interval.
func (b *Builder) WithQuota(cfg models.QuotaConfig) *Builder {
	b.cfg.Quota = cfg
	b.cfg.ApplyDefaults()
	return b
}

// WithMetrics configures the async recorder and alert thresholds.
func (b *Builder) WithMetrics(cfg models.MetricsConfig) *Builder {
	b.cfg.Metrics = cfg
	b.cfg.ApplyDefaults()
	return b
}

// WithDatabase enables quota, metrics and conversation persistence.
func (b *Builder) WithDatabase(cfg models.DatabaseConfig) *Builder {
	b.cfg.Database = &cfg
	return b
}

// WithRedis sets the shared Redis connection used by breakers and the cache.
func (b *Builder) WithRedis(url string) *Builder {
	b.cfg.Redis.URL = url
	if b.cfg.Cache.RedisURL == "" {
		b.cfg.Cache.RedisURL = url
	}
	return b
}

// Provider configuration

// ProviderBuilder provides a type-safe way to configure providers.
type ProviderBuilder struct {
	cfg models.ProviderConfig
}

// NewProviderBuilder creates a new provider configuration builder.
func NewProviderBuilder(apiKey string) *ProviderBuilder {
	return &ProviderBuilder{cfg: models.ProviderConfig{
		APIKey:  apiKey,
		Headers: make(map[string]string),
	}}
}

// WithType selects the adapter, e.g. "openai" for an OpenAI-compatible endpoint.
func (pb *ProviderBuilder) WithType(providerType string) *ProviderBuilder {
	pb.cfg.Type = providerType
	return pb
}

// WithBaseURL sets a custom base URL for the provider.
func (pb *ProviderBuilder) WithBaseURL(url string) *ProviderBuilder {
	pb.cfg.BaseURL = url
	return pb
}

// WithTimeout sets the request timeout in milliseconds.
func (pb *ProviderBuilder) WithTimeout(ms int) *ProviderBuilder {
	pb.cfg.TimeoutMs = ms
	return pb
}

// WithHeader adds a custom header.
func (pb *ProviderBuilder) WithHeader(key, value string) *ProviderBuilder {
	pb.cfg.Headers[key] = value
	return pb
}

// WithModels sets the model used for each complexity tier.
func (pb *ProviderBuilder) WithModels(weak, medium, strong string) *ProviderBuilder {
	pb.cfg.Models = models.ProviderModels{Weak: weak, Medium: medium, Strong: strong}
	return pb
}

// WithThresholds sets the upper complexity bounds of the weak and medium tiers.
func (pb *ProviderBuilder) WithThresholds(weak, medium float64) *ProviderBuilder {
	pb.cfg.Thresholds = models.ComplexityCutoffs{Weak: weak, Medium: medium}
	return pb
}

// WithPricing sets the USD per million tokens of a model.
func (pb *ProviderBuilder) WithPricing(model string, input, output float64) *ProviderBuilder {
	if pb.cfg.Pricing == nil {
		pb.cfg.Pricing = make(map[string]models.ModelPricing)
	}
	pb.cfg.Pricing[model] = models.ModelPricing{InputTokenCost: input, OutputTokenCost: output}
	return pb
}

// Build builds the provider configuration.
func (pb *ProviderBuilder) Build() models.ProviderConfig {
	cfg := pb.cfg
	cfg.Headers = maps.Clone(pb.cfg.Headers)
	cfg.Pricing = maps.Clone(pb.cfg.Pricing)
	return cfg
}

// AddProvider registers a provider under id ("openai", "claude", "gemini" or
// any id with type "openai" and a base URL).
func (b *Builder) AddProvider(id string, cfg models.ProviderConfig) *Builder {
	b.cfg.Providers[id] = cfg
	return b
}

// Middleware configuration

// WithRateLimit configures rate limiting middleware.
func (b *Builder) WithRateLimit(max int, expiration time.Duration, keyFunc ...func(*fiber.Ctx) string) *Builder {
	cfg := &models.RateLimitConfig{
		Max:        max,
		Expiration: expiration,
	}
	if len(keyFunc) > 0 {
		cfg.KeyFunc = keyFunc[0]
	}
	b.rateLimitConfig = cfg
	return b
}

// WithTimeout configures request timeout middleware.
func (b *Builder) WithTimeout(timeout time.Duration) *Builder {
	b.timeoutConfig = &models.TimeoutConfig{
		Timeout: timeout,
	}
	return b
}

// WithMiddleware adds a custom middleware.
func (b *Builder) WithMiddleware(middleware fiber.Handler) *Builder {
	b.middlewares = append(b.middlewares, middleware)
	return b
}

// GetMiddlewares returns all configured middlewares.
func (b *Builder) GetMiddlewares() []fiber.Handler {
	return b.middlewares
}

// GetRateLimitConfig returns the rate limit configuration.
func (b *Builder) GetRateLimitConfig() *models.RateLimitConfig {
	return b.rateLimitConfig
}

// GetTimeoutConfig returns the timeout configuration.
func (b *Builder) GetTimeoutConfig() *models.TimeoutConfig {
	return b.timeoutConfig
}

// Build returns the constructed configuration.
func (b *Builder) Build() *config.Config {
	return b.cfg
}

// FromYAML creates a Builder from a YAML configuration file.
// The envFiles are loaded first; earlier files take precedence.
func FromYAML(path string, envFiles []string) (*Builder, error) {
	if len(envFiles) > 0 {
		config.LoadEnvFiles(envFiles)
	}

	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]models.ProviderConfig)
	}
	return &Builder{cfg: cfg}, nil
}
