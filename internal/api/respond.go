package api

import (
	"strings"

	"github.com/Egham-7/adaptive-gateway/internal/models"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
)

// Headers the gateway reads and echoes
const (
	RequestIDHeader    = "X-Request-ID"
	UserIDHeader       = "X-User-ID"
	requestIDLocalKey  = "request_id"
	maxRequestIDLength = 256
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error     *models.AppError `json:"error"`
	RequestID string           `json:"request_id,omitzero"`
}

// requestID returns the caller supplied X-Request-ID, or a new one, and echoes it back
func requestID(c *fiber.Ctx) string {
	if cached, ok := c.Locals(requestIDLocalKey).(string); ok && cached != "" {
		return cached
	}

	id := strings.TrimSpace(c.Get(RequestIDHeader))
	if len(id) > maxRequestIDLength {
		id = id[:maxRequestIDLength]
	}
	if id == "" {
		id = uuid.NewString()
	}

	c.Locals(requestIDLocalKey, id)
	c.Set(RequestIDHeader, id)
	return id
}

// respondError renders err with the status of its AppError type.
// Internal details never reach the client.
func respondError(c *fiber.Ctx, err error, reqID string) error {
	sanitized := models.SanitizeError(err)
	status := sanitized.GetStatusCode()
	if status >= fiber.StatusInternalServerError && sanitized.Type == models.ErrorTypeInternal {
		fiberlog.Errorf("[%s] Request failed: %v", reqID, err)
	} else {
		fiberlog.Infof("[%s] Request rejected (%d %s): %s", reqID, status, sanitized.Code, sanitized.Message)
	}
	return c.Status(status).JSON(ErrorResponse{Error: sanitized, RequestID: reqID})
}

func badRequest(c *fiber.Ctx, message string, reqID string) error {
	return respondError(c, models.NewValidationError(message, nil), reqID)
}
