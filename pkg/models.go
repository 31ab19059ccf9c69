// Package pkg re-exports the configuration and result types needed to embed the gateway.
package pkg

import "github.com/Egham-7/adaptive-gateway/internal/models"

type (
	ServerConfig         = models.ServerConfig
	ProviderConfig       = models.ProviderConfig
	ProviderModels       = models.ProviderModels
	ModelPricing         = models.ModelPricing
	FallbackConfig       = models.FallbackConfig
	CircuitBreakerConfig = models.CircuitBreakerConfig
	CacheConfig          = models.CacheConfig
	QuotaConfig          = models.QuotaConfig
	PlanTier             = models.PlanTier
	PlanLimits           = models.PlanLimits
	MetricsConfig        = models.MetricsConfig
	DatabaseConfig       = models.DatabaseConfig
	RateLimitConfig      = models.RateLimitConfig
	TimeoutConfig        = models.TimeoutConfig
	RequestOptions       = models.RequestOptions
	GenerationResult     = models.GenerationResult
	AppError             = models.AppError
)
