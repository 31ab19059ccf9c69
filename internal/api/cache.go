package api

import (
	"net/url"

	"github.com/Egham-7/adaptive-gateway/internal/services/gateway"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
)

// CacheHandler reports and clears the response cache
type CacheHandler struct {
	gw *gateway.Gateway
}

func NewCacheHandler(gw *gateway.Gateway) *CacheHandler {
	return &CacheHandler{gw: gw}
}

func (h *CacheHandler) RegisterRoutes(router fiber.Router) {
	group := router.Group("/cache")
	group.Get("/stats", h.Stats)
	group.Delete("/:model", h.Clear)
}

// Stats handles GET /v1/cache/stats?model=
func (h *CacheHandler) Stats(c *fiber.Ctx) error {
	reqID := requestID(c)
	stats, err := h.gw.GetCacheStats(c.UserContext(), c.Query("model"))
	if err != nil {
		return respondError(c, err, reqID)
	}
	return c.JSON(stats)
}

// Clear handles DELETE /v1/cache/:model
func (h *CacheHandler) Clear(c *fiber.Ctx) error {
	reqID := requestID(c)
	model, err := url.PathUnescape(c.Params("model"))
	if err != nil {
		return badRequest(c, "invalid model", reqID)
	}

	removed, err := h.gw.ClearCache(c.UserContext(), model)
	if err != nil {
		return respondError(c, err, reqID)
	}
	fiberlog.Infof("[%s] Cleared %d cache entries for model %s", reqID, removed, model)
	return c.JSON(fiber.Map{"model": model, "removed": removed})
}
