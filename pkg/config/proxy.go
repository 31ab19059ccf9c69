package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/Egham-7/adaptive-gateway/internal/api"
	"github.com/Egham-7/adaptive-gateway/internal/config"
	"github.com/Egham-7/adaptive-gateway/internal/models"
	"github.com/Egham-7/adaptive-gateway/internal/services/circuitbreaker"
	"github.com/Egham-7/adaptive-gateway/internal/services/conversation"
	"github.com/Egham-7/adaptive-gateway/internal/services/database"
	"github.com/Egham-7/adaptive-gateway/internal/services/gateway"
	"github.com/Egham-7/adaptive-gateway/internal/services/metrics"
	"github.com/Egham-7/adaptive-gateway/internal/services/providers"
	"github.com/Egham-7/adaptive-gateway/internal/services/quota"
	"github.com/Egham-7/adaptive-gateway/internal/services/scheduler"
	"github.com/Egham-7/adaptive-gateway/internal/services/semanticcache"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/pprof"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/redis/go-redis/v9"
)

const shutdownTimeout = 30 * time.Second

// Proxy represents a gateway server instance.
type Proxy struct {
	config  *config.Config
	app     *fiber.App
	builder *Builder

	infra    *proxyInfrastructure
	services *proxyServices
}

type proxyInfrastructure struct {
	redis      *redis.Client
	cacheRedis *redis.Client
	db         *database.DB
}

type proxyServices struct {
	gateway       *gateway.Gateway
	registry      *providers.Registry
	cache         *semanticcache.Store
	quota         *quota.Service
	metrics       *metrics.Service
	recorder      *metrics.Recorder
	conversations *conversation.Store
	quotaReset    *scheduler.QuotaResetScheduler
}

// NewProxy creates a new Proxy instance with the given configuration.
// The cfg parameter is required and must not be nil.
// For middleware control, use NewProxyWithBuilder.
func NewProxy(cfg *config.Config) *Proxy {
	if cfg == nil {
		panic("config cannot be nil - use config.LoadFromFile() or config builder to create config")
	}
	return &Proxy{config: cfg}
}

// NewProxyWithBuilder creates a new Proxy instance with a configuration builder.
func NewProxyWithBuilder(b *Builder) *Proxy {
	return &Proxy{
		config:  b.Build(),
		builder: b,
	}
}

// App returns the underlying fiber app once Setup has run.
func (p *Proxy) App() *fiber.App {
	return p.app
}

// Setup validates the configuration and builds infrastructure, services,
// middleware and routes without listening.
func (p *Proxy) Setup() error {
	if err := p.config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	setupLogLevel(p.config)

	p.app = createFiberApp(p.config)

	infra, err := initializeInfrastructure(p.config)
	if err != nil {
		return err
	}
	p.infra = infra

	services, err := initializeServices(p.config, infra)
	if err != nil {
		p.closeInfrastructure()
		return err
	}
	p.services = services

	setupMiddleware(p.app, p.config, p.builder)
	setupRoutes(p.app, p.config, infra, services)
	p.app.Get("/", welcomeHandler(services.registry))

	return nil
}

// Run starts the gateway server and blocks until shutdown.
func (p *Proxy) Run() error {
	if err := p.Setup(); err != nil {
		return err
	}

	listenAddr := ":" + p.config.Server.Port

	fmt.Printf("🚀 Gateway starting on %s\n", listenAddr)
	fmt.Printf("   Environment: %s\n", p.config.Server.Environment)
	fmt.Printf("   Providers: %s\n", strings.Join(providerNames(p.services.registry), ", "))
	fmt.Printf("   Go version: %s\n", runtime.Version())
	fmt.Printf("   GOMAXPROCS: %d\n", runtime.GOMAXPROCS(0))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if p.services.quotaReset != nil {
		go p.services.quotaReset.Start(ctx)
	}

	serverErrChan := make(chan error, 1)
	go func() {
		if err := p.app.Listen(listenAddr); err != nil {
			serverErrChan <- err
		}
	}()

	select {
	case err := <-serverErrChan:
		p.Shutdown()
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		fiberlog.Info("Received shutdown signal. Starting graceful shutdown...")
	}

	return p.Shutdown()
}

// Shutdown stops accepting requests, drains background work and releases
// connections, in that order.
func (p *Proxy) Shutdown() error {
	var errs []error

	if p.app != nil {
		fiberlog.Info("Server shutting down gracefully...")
		if err := p.app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			errs = append(errs, fmt.Errorf("shutdown error: %w", err))
		}
	}

	if s := p.services; s != nil {
		// Drain cache, metric and conversation writes before stopping the recorder
		s.gateway.Wait()
		if s.recorder != nil {
			s.recorder.Stop()
		}
		if s.quotaReset != nil {
			s.quotaReset.Stop()
		}
		if s.cache != nil {
			if err := s.cache.Close(); err != nil {
				fiberlog.Errorf("Failed to close cache: %v", err)
			}
		}
	}

	p.closeInfrastructure()

	if err := errors.Join(errs...); err != nil {
		return err
	}
	fiberlog.Info("Server shutdown completed successfully")
	return nil
}

func (p *Proxy) closeInfrastructure() {
	if p.infra == nil {
		return
	}
	if p.infra.cacheRedis != nil {
		if err := p.infra.cacheRedis.Close(); err != nil {
			fiberlog.Errorf("Failed to close cache Redis client: %v", err)
		}
	}
	if p.infra.redis != nil {
		if err := p.infra.redis.Close(); err != nil {
			fiberlog.Errorf("Failed to close Redis client: %v", err)
		}
	}
	if p.infra.db != nil {
		if err := p.infra.db.Close(); err != nil {
			fiberlog.Errorf("Failed to close database connection: %v", err)
		}
	}
	p.infra = nil
}

func createFiberApp(cfg *config.Config) *fiber.App {
	isProd := cfg.IsProduction()

	return fiber.New(fiber.Config{
		AppName:           "AdaptiveGateway v1.0",
		EnablePrintRoutes: !isProd,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       5 * time.Minute,
		ReadBufferSize:    8192,
		WriteBufferSize:   8192,
		Prefork:           false,
		CaseSensitive:     true,
		StrictRouting:     false,
		Network:           "tcp",
		ServerHeader:      "AdaptiveGateway",
	})
}

func isStreamRequest(c *fiber.Ctx) bool {
	return strings.HasSuffix(c.Path(), "/stream")
}

func rateLimitKey(c *fiber.Ctx) string {
	if userID := c.Get(api.UserIDHeader); userID != "" {
		return "user:" + userID
	}
	return c.IP()
}

func setupMiddleware(app *fiber.App, cfg *config.Config, b *Builder) {
	isProd := cfg.IsProduction()

	// Recover middleware (must be first)
	app.Use(recover.New(recover.Config{
		EnableStackTrace: !isProd,
	}))

	rlCfg := models.DefaultRateLimitConfig()
	if b != nil && b.GetRateLimitConfig() != nil {
		rlCfg = b.GetRateLimitConfig()
	}
	keyFunc := rlCfg.KeyFunc
	if keyFunc == nil {
		keyFunc = rateLimitKey
	}
	app.Use(limiter.New(limiter.Config{
		Max:               rlCfg.Max,
		Expiration:        rlCfg.Expiration,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      keyFunc,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": fmt.Sprintf("rate limit exceeded: %d requests per %v", rlCfg.Max, rlCfg.Expiration),
			})
		},
	}))

	// Streams outlive any request timeout; the SSE handler owns their lifetime
	if b != nil && b.GetTimeoutConfig() != nil {
		timeoutDuration := b.GetTimeoutConfig().Timeout
		app.Use(func(c *fiber.Ctx) error {
			if isStreamRequest(c) {
				return c.Next()
			}
			handler := func(c *fiber.Ctx) error {
				return c.Next()
			}
			return timeout.NewWithContext(handler, timeoutDuration)(c)
		})
	} else {
		app.Use(func(c *fiber.Ctx) error {
			if isStreamRequest(c) {
				return c.Next()
			}

			timeout := models.TimeoutConfig{}.Resolve(c.Get("X-Request-Timeout"))
			ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
			defer cancel()
			c.SetUserContext(ctx)

			return c.Next()
		})
	}

	// Compression buffers the body, which would hold SSE frames back
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
		Next:  isStreamRequest,
	}))

	if isProd {
		app.Use(logger.New(logger.Config{
			Format: "${time} ${status} ${method} ${path} ${latency} ${bytesSent}b ${respHeader:X-Request-ID}\n",
			Output: os.Stdout,
		}))
	} else {
		app.Use(logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path} ${respHeader:X-Request-ID} ${error}\n",
			Output: os.Stdout,
		}))
	}

	allowedHeaders := []string{
		"Origin", "Content-Type", "Accept", "Authorization", "User-Agent",
		api.RequestIDHeader, api.UserIDHeader, "X-Request-Timeout",
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowHeaders:     strings.Join(allowedHeaders, ", "),
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS",
		AllowCredentials: cfg.Server.AllowedOrigins != "*",
		MaxAge:           86400,
		ExposeHeaders:    "Content-Length, Content-Type, " + api.RequestIDHeader,
	}))

	if b != nil {
		for _, middleware := range b.GetMiddlewares() {
			app.Use(middleware)
		}
	}

	// Profiler (dev only)
	if !isProd {
		app.Use(pprof.New())
	}
}

func setupLogLevel(cfg *config.Config) {
	logLevel := cfg.GetNormalizedLogLevel()

	switch logLevel {
	case "trace":
		fiberlog.SetLevel(fiberlog.LevelTrace)
	case "debug":
		fiberlog.SetLevel(fiberlog.LevelDebug)
	case "info":
		fiberlog.SetLevel(fiberlog.LevelInfo)
	case "warn", "warning":
		fiberlog.SetLevel(fiberlog.LevelWarn)
	case "error":
		fiberlog.SetLevel(fiberlog.LevelError)
	case "fatal":
		fiberlog.SetLevel(fiberlog.LevelFatal)
	case "panic":
		fiberlog.SetLevel(fiberlog.LevelPanic)
	default:
		fiberlog.SetLevel(fiberlog.LevelInfo)
		fiberlog.Warnf("Unknown log level '%s', defaulting to 'info'", logLevel)
	}

	fiberlog.Infof("Log level set to: %s", logLevel)
}

func createRedisClient(redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opt.PoolSize = 50
	opt.MinIdleConns = 10
	opt.PoolTimeout = 4 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute
	opt.ConnMaxLifetime = 30 * time.Minute
	opt.DialTimeout = 10 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second
	opt.MaxRetries = 3
	opt.MinRetryBackoff = 8 * time.Millisecond
	opt.MaxRetryBackoff = 512 * time.Millisecond

	fiberlog.Debugf("Redis client configuration: PoolSize=%d, MinIdle=%d, MaxRetries=%d",
		opt.PoolSize, opt.MinIdleConns, opt.MaxRetries)

	return testRedisConnectionWithRetry(redis.NewClient(opt))
}

func testRedisConnectionWithRetry(client *redis.Client) (*redis.Client, error) {
	const maxAttempts = 3
	const baseDelay = 1 * time.Second

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := client.Ping(ctx).Err()
		cancel()

		if err == nil {
			fiberlog.Infof("Redis connection established successfully (attempt %d/%d)", attempt, maxAttempts)
			stats := client.PoolStats()
			fiberlog.Debugf("Redis pool initialized: Hits=%d, Misses=%d, Timeouts=%d, TotalConns=%d, IdleConns=%d",
				stats.Hits, stats.Misses, stats.Timeouts, stats.TotalConns, stats.IdleConns)
			return client, nil
		}

		fiberlog.Warnf("Redis connection failed (attempt %d/%d): %v", attempt, maxAttempts, err)

		if attempt < maxAttempts {
			delay := time.Duration(attempt) * baseDelay
			fiberlog.Infof("Retrying Redis connection in %v...", delay)
			time.Sleep(delay)
		}
	}

	if err := client.Close(); err != nil {
		fiberlog.Errorf("Failed to close Redis client after connection failures: %v", err)
	}

	return nil, fmt.Errorf("failed to connect to Redis after %d attempts", maxAttempts)
}

func initializeInfrastructure(cfg *config.Config) (*proxyInfrastructure, error) {
	infra := &proxyInfrastructure{}

	if cfg.Redis.URL != "" {
		client, err := createRedisClient(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to create Redis client: %w", err)
		}
		infra.redis = client
	} else {
		fiberlog.Info("Redis not configured - breakers and cache use process memory")
	}

	if cfg.Cache.Enabled && cfg.Cache.Backend == models.CacheBackendRedis && cfg.Cache.RedisURL != cfg.Redis.URL {
		client, err := createRedisClient(cfg.Cache.RedisURL)
		if err != nil {
			if infra.redis != nil {
				_ = infra.redis.Close()
			}
			return nil, fmt.Errorf("failed to create cache Redis client: %w", err)
		}
		infra.cacheRedis = client
	}

	if cfg.Database != nil {
		db, err := database.New(*cfg.Database)
		if err != nil {
			if infra.redis != nil {
				_ = infra.redis.Close()
			}
			if infra.cacheRedis != nil {
				_ = infra.cacheRedis.Close()
			}
			return nil, fmt.Errorf("failed to create database connection: %w", err)
		}
		infra.db = db
		fiberlog.Infof("Database (%s) initialized successfully", db.DriverName())
	} else {
		fiberlog.Info("Database not configured - quota, metrics and conversations disabled")
	}

	return infra, nil
}

func createBreakers(cfg *config.Config, client *redis.Client) *circuitbreaker.Set {
	cbCfg := circuitbreaker.ConfigFromModel(cfg.Fallback.CircuitBreaker)
	if cfg.Fallback.CircuitBreaker.Backend == models.CircuitBreakerBackendRedis && client != nil {
		fiberlog.Info("Circuit breakers: using shared Redis state")
		return circuitbreaker.NewRedisSet(client, cbCfg)
	}
	return circuitbreaker.NewMemorySet(cbCfg)
}

func createCache(cfg *config.Config, infra *proxyInfrastructure) (*semanticcache.Store, error) {
	if !cfg.Cache.Enabled {
		fiberlog.Info("SemanticCache: disabled")
		return nil, nil
	}

	var backend semanticcache.Backend
	switch cfg.Cache.Backend {
	case models.CacheBackendRedis:
		client := infra.cacheRedis
		if client == nil {
			client = infra.redis
		}
		if client == nil {
			return nil, fmt.Errorf("cache backend redis requires cache.redis_url or redis.url")
		}
		backend = semanticcache.NewRedisBackend(client)
	default:
		backend = semanticcache.NewMemoryBackend(cfg.Cache.Capacity, cfg.Cache.TTL())
	}

	opts := []semanticcache.Option{semanticcache.WithTTL(cfg.Cache.TTL())}
	index, err := semanticcache.NewEmbeddingIndex(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding index: %w", err)
	}
	if index != nil {
		opts = append(opts, semanticcache.WithEmbeddingIndex(index))
	}

	fiberlog.Infof("SemanticCache: %s backend, ttl %v", cfg.Cache.Backend, cfg.Cache.TTL())
	return semanticcache.NewStore(backend, opts...), nil
}

func initializeServices(cfg *config.Config, infra *proxyInfrastructure) (*proxyServices, error) {
	registry, err := providers.NewRegistryFromConfig(cfg.Providers, providers.NewPricingTable())
	if err != nil {
		return nil, fmt.Errorf("provider registry initialization failed: %w", err)
	}

	cache, err := createCache(cfg, infra)
	if err != nil {
		return nil, err
	}

	s := &proxyServices{registry: registry, cache: cache}

	deps := gateway.Deps{
		Registry: registry,
		Breakers: createBreakers(cfg, infra.redis),
	}
	// Interfaces stay nil unless the backing service exists
	if cache != nil {
		deps.Cache = cache
	}

	if db := infra.db; db != nil {
		s.quota = quota.NewService(db.DB, quota.PlansFromConfig(cfg.Quota))
		s.metrics = metrics.NewService(db.DB, registry.IDs())
		s.conversations = conversation.NewStore(db.DB)

		if err := db.Migrate(s.quota, s.metrics, s.conversations); err != nil {
			return nil, fmt.Errorf("failed to run database migrations: %w", err)
		}
		fiberlog.Info("Database migrations completed successfully")

		s.recorder = metrics.NewRecorder(s.metrics, cfg.Metrics.Workers, cfg.Metrics.BufferSize)
		s.quotaReset = scheduler.NewQuotaResetScheduler(s.quota,
			time.Duration(cfg.Quota.ResetIntervalMinutes)*time.Minute)

		deps.Quota = s.quota
		deps.Metrics = s.recorder
		deps.Conversations = s.conversations
	}

	s.gateway = gateway.New(deps, gateway.Config{
		Fallback:         cfg.Fallback,
		HistoryLimit:     cfg.Gateway.HistoryLimit,
		StreamBufferSize: cfg.Gateway.StreamBufferSize,
	})
	return s, nil
}

func setupRoutes(app *fiber.App, cfg *config.Config, infra *proxyInfrastructure, s *proxyServices) {
	h := api.Handlers{
		Chat:   api.NewChatHandler(s.gateway),
		Health: api.NewHealthHandler(s.gateway, infra.redis, infra.db),
		Cache:  api.NewCacheHandler(s.gateway),
	}
	if s.metrics != nil {
		h.Metrics = api.NewMetricsHandler(s.metrics, cfg.Metrics.Alerting)
	}
	if s.quota != nil {
		h.Usage = api.NewUsageHandler(s.quota)
	}
	api.RegisterRoutes(app, h)
}

func providerNames(registry *providers.Registry) []string {
	ids := registry.IDs()
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = string(id)
	}
	return names
}

func welcomeHandler(registry *providers.Registry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message":    "Welcome to AdaptiveGateway!",
			"version":    "1.0.0",
			"go_version": runtime.Version(),
			"status":     "running",
			"providers":  providerNames(registry),
			"endpoints": fiber.Map{
				"chat":             "/v1/chat",
				"chat_stream":      "/v1/chat/stream",
				"providers_health": "/v1/providers/health",
				"cache_stats":      "/v1/cache/stats",
				"usage":            "/v1/usage/:userID",
				"metrics":          "/v1/metrics/dashboard",
				"health":           "/health",
			},
		})
	}
}
