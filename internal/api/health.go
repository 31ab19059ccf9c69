package api

import (
	"context"
	"time"

	"github.com/Egham-7/adaptive-gateway/internal/services/database"
	"github.com/Egham-7/adaptive-gateway/internal/services/gateway"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const (
	statusHealthy       = "healthy"
	statusUnhealthy     = "unhealthy"
	statusNotConfigured = "not_configured"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	gw          *gateway.Gateway
	redisClient *redis.Client
	db          *database.DB
}

// NewHealthHandler creates a new health check handler. redisClient and db may be nil.
func NewHealthHandler(gw *gateway.Gateway, redisClient *redis.Client, db *database.DB) *HealthHandler {
	return &HealthHandler{
		gw:          gw,
		redisClient: redisClient,
		db:          db,
	}
}

// HealthCheck returns the health status of the service and its dependencies
func (h *HealthHandler) HealthCheck(c *fiber.Ctx) error {
	redisStatus := h.checkRedis(c.UserContext())
	dbStatus := h.checkDatabase()

	overallStatus := statusHealthy
	statusCode := fiber.StatusOK
	if redisStatus == statusUnhealthy || dbStatus == statusUnhealthy {
		overallStatus = "degraded"
		statusCode = fiber.StatusServiceUnavailable
	}

	return c.Status(statusCode).JSON(fiber.Map{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks": fiber.Map{
			"redis":    redisStatus,
			"database": dbStatus,
		},
	})
}

// ProvidersHealth handles GET /v1/providers/health with live availability checks and breaker state
func (h *HealthHandler) ProvidersHealth(c *fiber.Ctx) error {
	reqID := requestID(c)
	statuses, err := h.gw.CheckProvidersHealth(c.UserContext())
	if err != nil {
		return respondError(c, err, reqID)
	}
	return c.JSON(fiber.Map{"providers": statuses})
}

func (h *HealthHandler) checkRedis(ctx context.Context) string {
	if h.redisClient == nil {
		return statusNotConfigured
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := h.redisClient.Ping(ctx).Err(); err != nil {
		return statusUnhealthy
	}
	return statusHealthy
}

func (h *HealthHandler) checkDatabase() string {
	if h.db == nil {
		return statusNotConfigured
	}
	if err := h.db.Ping(); err != nil {
		return statusUnhealthy
	}
	return statusHealthy
}
