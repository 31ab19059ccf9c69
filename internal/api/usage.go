package api

import (
	"github.com/Egham-7/adaptive-gateway/internal/models"
	"github.com/Egham-7/adaptive-gateway/internal/services/quota"

	"github.com/gofiber/fiber/v2"
)

// UsageHandler exposes per-user quota state
type UsageHandler struct {
	quota *quota.Service
}

func NewUsageHandler(quotaService *quota.Service) *UsageHandler {
	return &UsageHandler{quota: quotaService}
}

func (h *UsageHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/usage/:userID", h.GetUsage)
	router.Put("/users/:userID", h.UpsertUser)
}

// GetUsage handles GET /v1/usage/:userID
func (h *UsageHandler) GetUsage(c *fiber.Ctx) error {
	reqID := requestID(c)
	userID := c.Params("userID")

	summary, err := h.quota.GetUsageSummary(c.UserContext(), userID)
	if err != nil {
		return respondError(c, models.NewInternalError("failed to load usage", err), reqID)
	}
	if summary == nil {
		return respondError(c, models.NewNotFoundError("user "+userID), reqID)
	}
	return c.JSON(summary)
}

type upsertUserRequest struct {
	Plan models.PlanTier `json:"plan"`
}

// UpsertUser handles PUT /v1/users/:userID, creating the user or changing its plan
func (h *UsageHandler) UpsertUser(c *fiber.Ctx) error {
	reqID := requestID(c)

	var req upsertUserRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body", reqID)
	}
	if req.Plan == "" {
		req.Plan = models.PlanFree
	}
	if _, ok := h.quota.Plans()[req.Plan]; !ok {
		return badRequest(c, "unknown plan "+string(req.Plan), reqID)
	}

	user, err := h.quota.UpsertUser(c.UserContext(), c.Params("userID"), req.Plan)
	if err != nil {
		return respondError(c, models.NewInternalError("failed to save user", err), reqID)
	}
	return c.JSON(user)
}
