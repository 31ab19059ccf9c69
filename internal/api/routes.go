package api

import (
	"github.com/gofiber/fiber/v2"
)

// Handlers groups the HTTP surface. Metrics and Usage are nil when no
// database is configured and their routes are not registered.
type Handlers struct {
	Chat    *ChatHandler
	Health  *HealthHandler
	Cache   *CacheHandler
	Metrics *MetricsHandler
	Usage   *UsageHandler
}

// RegisterRoutes mounts every handler on app
func RegisterRoutes(app *fiber.App, h Handlers) {
	app.Get("/health", h.Health.HealthCheck)

	v1 := app.Group("/v1")
	v1.Post("/chat", h.Chat.Chat)
	v1.Post("/chat/stream", h.Chat.ChatStream)
	v1.Get("/providers/health", h.Health.ProvidersHealth)
	h.Cache.RegisterRoutes(v1)

	if h.Metrics != nil {
		h.Metrics.RegisterRoutes(v1)
	}
	if h.Usage != nil {
		h.Usage.RegisterRoutes(v1)
	}
}
