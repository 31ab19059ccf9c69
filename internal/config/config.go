package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/Egham-7/adaptive-gateway/internal/models"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultPort                = "8080"
	defaultAllowedOrigins      = "*"
	defaultLogLevel            = "info"
	defaultFailureThreshold    = 3
	defaultRecoveryTimeoutMs   = 30_000
	defaultCacheTTLSeconds     = 3600
	defaultCacheCapacity       = 1000
	defaultSemanticThreshold   = 0.92
	defaultEmbeddingModel      = "text-embedding-3-small"
	defaultResetIntervalMins   = 60
	defaultMetricsWorkers      = 2
	defaultMetricsBuffer       = 256
	defaultAlertErrorRate      = 0.1
	defaultAlertLatencyMs      = 5000
	defaultAlertLookbackMins   = 15
	defaultGatewayHistoryLimit = 20
	defaultStreamBufferSize    = 16
)

var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::(-[^}]*))?\}`)

// Config represents the complete application configuration
type Config struct {
	Server    models.ServerConfig              `yaml:"server"`
	Providers map[string]models.ProviderConfig `yaml:"providers"`
	Fallback  models.FallbackConfig            `yaml:"fallback"`
	Cache     models.CacheConfig               `yaml:"cache"`
	Quota     models.QuotaConfig               `yaml:"quota"`
	Metrics   models.MetricsConfig             `yaml:"metrics"`
	Gateway   models.GatewayConfig             `yaml:"gateway"`
	Redis     models.RedisConfig               `yaml:"redis"`
	Database  *models.DatabaseConfig           `yaml:"database,omitempty"`
}

// LoadFromFile loads configuration from a YAML file with environment variable
// substitution and fills defaults for everything left unset.
func LoadFromFile(configPath string) (*Config, error) {
	cleanPath := filepath.Clean(configPath)
	if strings.Contains(cleanPath, "..") {
		return nil, fmt.Errorf("invalid config path: path traversal not allowed")
	}

	ext := filepath.Ext(cleanPath)
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("invalid config file: only .yaml and .yml files are allowed")
	}

	data, err := os.ReadFile(cleanPath) // #nosec G304 - path is validated above
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", cleanPath, err)
	}

	return Parse(data)
}

// Parse decodes YAML configuration after substituting ${VAR} and ${VAR:-default}
func Parse(data []byte) (*Config, error) {
	content := substituteEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(content), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	cfg.normalizeProviders()
	cfg.ApplyDefaults()
	return &cfg, nil
}

// LoadEnvFiles loads environment variables from .env files.
// Earlier files win because godotenv never overrides a variable that is already set.
func LoadEnvFiles(envFiles []string) {
	for _, envFile := range envFiles {
		if _, err := os.Stat(envFile); err != nil {
			continue
		}
		if err := godotenv.Load(envFile); err != nil {
			fiberlog.Warnf("Failed to load %s: %v", envFile, err)
			continue
		}
		fiberlog.Infof("Loaded environment variables from %s", envFile)
	}
}

// substituteEnvVars replaces ${VAR_NAME} and ${VAR_NAME:-default} patterns with environment variables
func substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		if value := os.Getenv(submatches[1]); value != "" {
			return value
		}
		if len(submatches) > 2 {
			return strings.TrimPrefix(submatches[2], "-")
		}
		return ""
	})
}

// normalizeProviders lowercases provider ids and resolves aliases so lookups are case-insensitive
func (c *Config) normalizeProviders() {
	if c.Providers == nil {
		return
	}
	normalized := make(map[string]models.ProviderConfig, len(c.Providers))
	for key, value := range c.Providers {
		id := strings.ToLower(strings.TrimSpace(key))
		switch id {
		case "anthropic":
			id = string(models.ProviderClaude)
		case "google":
			id = string(models.ProviderGemini)
		}
		normalized[id] = value
	}
	c.Providers = normalized
}

// ApplyDefaults fills every unset option with its default
func (c *Config) ApplyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = defaultPort
	}
	if c.Server.AllowedOrigins == "" {
		c.Server.AllowedOrigins = defaultAllowedOrigins
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = defaultLogLevel
	}

	if c.Fallback.Mode == "" {
		c.Fallback.Mode = models.FallbackModeSequential
	}
	cb := &c.Fallback.CircuitBreaker
	if cb.Backend == "" {
		cb.Backend = models.CircuitBreakerBackendMemory
	}
	if cb.FailureThreshold <= 0 {
		cb.FailureThreshold = defaultFailureThreshold
	}
	if cb.RecoveryTimeoutMs <= 0 {
		cb.RecoveryTimeoutMs = defaultRecoveryTimeoutMs
	}

	if c.Cache.Backend == "" {
		c.Cache.Backend = models.CacheBackendMemory
	}
	if c.Cache.TTLSeconds <= 0 {
		c.Cache.TTLSeconds = defaultCacheTTLSeconds
	}
	if c.Cache.Capacity <= 0 {
		c.Cache.Capacity = defaultCacheCapacity
	}
	if c.Cache.SemanticThreshold <= 0 {
		c.Cache.SemanticThreshold = defaultSemanticThreshold
	}
	if c.Cache.EmbeddingModel == "" {
		c.Cache.EmbeddingModel = defaultEmbeddingModel
	}
	if c.Cache.RedisURL == "" {
		c.Cache.RedisURL = c.Redis.URL
	}

	if c.Quota.ResetIntervalMinutes <= 0 {
		c.Quota.ResetIntervalMinutes = defaultResetIntervalMins
	}

	if c.Metrics.Workers <= 0 {
		c.Metrics.Workers = defaultMetricsWorkers
	}
	if c.Metrics.BufferSize <= 0 {
		c.Metrics.BufferSize = defaultMetricsBuffer
	}
	alerting := &c.Metrics.Alerting
	if alerting.ErrorRate <= 0 {
		alerting.ErrorRate = defaultAlertErrorRate
	}
	if alerting.LatencyMs <= 0 {
		alerting.LatencyMs = defaultAlertLatencyMs
	}
	if alerting.LookbackMinutes <= 0 {
		alerting.LookbackMinutes = defaultAlertLookbackMins
	}

	if c.Gateway.HistoryLimit <= 0 {
		c.Gateway.HistoryLimit = defaultGatewayHistoryLimit
	}
	if c.Gateway.StreamBufferSize <= 0 {
		c.Gateway.StreamBufferSize = defaultStreamBufferSize
	}
}

// GetNormalizedLogLevel returns the log level in lowercase for consistent comparison
func (c *Config) GetNormalizedLogLevel() string {
	return strings.ToLower(c.Server.LogLevel)
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// ProviderIDs returns the configured provider ids in sorted order
func (c *Config) ProviderIDs() []string {
	ids := make([]string, 0, len(c.Providers))
	for id := range c.Providers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Validate reports every missing or invalid field at once
func (c *Config) Validate() error {
	var missing, invalid []string

	if c.Server.Port == "" {
		missing = append(missing, "server.port")
	}
	if c.Server.AllowedOrigins == "" {
		missing = append(missing, "server.allowed_origins")
	}

	keyed := 0
	for _, id := range c.ProviderIDs() {
		if c.Providers[id].APIKey != "" {
			keyed++
		}
	}
	if keyed == 0 {
		missing = append(missing, "providers.<id>.api_key")
	}

	switch c.Fallback.Mode {
	case "", models.FallbackModeSequential, models.FallbackModeDisabled:
	default:
		invalid = append(invalid, fmt.Sprintf("fallback.mode=%q", c.Fallback.Mode))
	}
	switch c.Fallback.CircuitBreaker.Backend {
	case "", models.CircuitBreakerBackendMemory:
	case models.CircuitBreakerBackendRedis:
		if c.Redis.URL == "" {
			missing = append(missing, "redis.url")
		}
	default:
		invalid = append(invalid, fmt.Sprintf("fallback.circuit_breaker.backend=%q", c.Fallback.CircuitBreaker.Backend))
	}

	if c.Cache.Enabled {
		switch c.Cache.Backend {
		case "", models.CacheBackendMemory:
		case models.CacheBackendRedis:
			if c.Cache.RedisURL == "" && c.Redis.URL == "" {
				missing = append(missing, "cache.redis_url")
			}
		default:
			invalid = append(invalid, fmt.Sprintf("cache.backend=%q", c.Cache.Backend))
		}
		if c.Cache.SemanticThreshold > 1 {
			invalid = append(invalid, "cache.semantic_threshold must be <= 1")
		}
	}

	if c.Database != nil {
		switch {
		case c.Database.Type == "":
			missing = append(missing, "database.type")
		case !c.Database.Type.Valid():
			invalid = append(invalid, fmt.Sprintf("database.type=%q", c.Database.Type))
		}
	}

	if len(missing) > 0 || len(invalid) > 0 {
		return &ValidationError{MissingFields: missing, InvalidFields: invalid}
	}
	return nil
}

// ValidationError represents configuration validation errors
type ValidationError struct {
	MissingFields []string
	InvalidFields []string
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.MissingFields) > 0 {
		parts = append(parts, "missing required configuration fields: "+strings.Join(e.MissingFields, ", "))
	}
	if len(e.InvalidFields) > 0 {
		parts = append(parts, "invalid configuration values: "+strings.Join(e.InvalidFields, ", "))
	}
	return strings.Join(parts, "; ")
}
