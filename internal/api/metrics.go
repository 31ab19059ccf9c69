package api

import (
	"github.com/Egham-7/adaptive-gateway/internal/models"
	"github.com/Egham-7/adaptive-gateway/internal/services/metrics"

	"github.com/gofiber/fiber/v2"
)

// MetricsHandler serves provider health, dashboard aggregates and alerts
type MetricsHandler struct {
	metrics  *metrics.Service
	alerting models.AlertThresholds
}

func NewMetricsHandler(service *metrics.Service, alerting models.AlertThresholds) *MetricsHandler {
	return &MetricsHandler{metrics: service, alerting: alerting}
}

func (h *MetricsHandler) RegisterRoutes(router fiber.Router) {
	group := router.Group("/metrics")
	group.Get("/health", h.ProviderHealth)
	group.Get("/dashboard", h.Dashboard)
	group.Get("/alerts", h.Alerts)
}

// ProviderHealth handles GET /v1/metrics/health?lookback_minutes=
func (h *MetricsHandler) ProviderHealth(c *fiber.Ctx) error {
	reqID := requestID(c)
	lookback := c.QueryInt("lookback_minutes", 0)
	if lookback < 0 {
		return badRequest(c, "lookback_minutes must not be negative", reqID)
	}

	health, err := h.metrics.GetProviderHealth(c.UserContext(), lookback)
	if err != nil {
		return respondError(c, models.NewInternalError("failed to compute provider health", err), reqID)
	}
	return c.JSON(fiber.Map{"providers": health})
}

// Dashboard handles GET /v1/metrics/dashboard?hours=
func (h *MetricsHandler) Dashboard(c *fiber.Ctx) error {
	reqID := requestID(c)
	hours := c.QueryInt("hours", 0)
	if hours < 0 {
		return badRequest(c, "hours must not be negative", reqID)
	}

	dashboard, err := h.metrics.GetDashboardMetrics(c.UserContext(), hours)
	if err != nil {
		return respondError(c, models.NewInternalError("failed to compute dashboard", err), reqID)
	}
	return c.JSON(dashboard)
}

// Alerts handles GET /v1/metrics/alerts using the configured thresholds
func (h *MetricsHandler) Alerts(c *fiber.Ctx) error {
	reqID := requestID(c)
	alerts, err := h.metrics.CheckAlerts(c.UserContext(), h.alerting)
	if err != nil {
		return respondError(c, models.NewInternalError("failed to evaluate alerts", err), reqID)
	}
	return c.JSON(fiber.Map{"alerts": alerts})
}
