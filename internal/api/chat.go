package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Egham-7/adaptive-gateway/internal/models"
	"github.com/Egham-7/adaptive-gateway/internal/services/gateway"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/valyala/fasthttp"
)

// ChatRequest is the body of /v1/chat and /v1/chat/stream
type ChatRequest struct {
	Query string `json:"query"`
	models.RequestOptions
}

// ChatHandler serves generation requests through the gateway
type ChatHandler struct {
	gw *gateway.Gateway
}

func NewChatHandler(gw *gateway.Gateway) *ChatHandler {
	return &ChatHandler{gw: gw}
}

func (h *ChatHandler) parse(c *fiber.Ctx, reqID string) (*ChatRequest, error) {
	var req ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return nil, models.NewValidationError("invalid request body", err)
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, models.NewValidationError("query is required", nil)
	}
	if req.UserID == "" {
		req.UserID = c.Get(UserIDHeader)
	}
	if req.RequestID == "" {
		req.RequestID = reqID
	}
	return &req, nil
}

// Chat handles POST /v1/chat
func (h *ChatHandler) Chat(c *fiber.Ctx) error {
	reqID := requestID(c)
	req, err := h.parse(c, reqID)
	if err != nil {
		return respondError(c, err, reqID)
	}
	fiberlog.Infof("[%s] Chat request (user=%q, force=%q/%q)", reqID, req.UserID, req.ForceProvider, req.ForceModel)

	result, err := h.gw.RouteRequest(c.UserContext(), req.Query, req.RequestOptions)
	if err != nil {
		return respondError(c, err, reqID)
	}
	return c.JSON(result)
}

// streamStart is the first SSE frame of a stream
type streamStart struct {
	RequestID  string            `json:"request_id"`
	Provider   models.ProviderID `json:"provider"`
	Model      string            `json:"model"`
	Complexity float64           `json:"complexity"`
	Cached     bool              `json:"cached"`
}

type streamChunk struct {
	Text string `json:"text"`
}

// ChatStream handles POST /v1/chat/stream as server-sent events. Errors
// before the first byte render as regular JSON errors; later failures become
// an "error" event followed by [DONE].
func (h *ChatHandler) ChatStream(c *fiber.Ctx) error {
	reqID := requestID(c)
	req, err := h.parse(c, reqID)
	if err != nil {
		return respondError(c, err, reqID)
	}

	// The stream outlives the handler, so it gets its own cancellation.
	ctx, cancel := context.WithCancel(context.WithoutCancel(c.UserContext()))
	stream, err := h.gw.RouteStreamRequest(ctx, req.Query, req.RequestOptions)
	if err != nil {
		cancel()
		return respondError(c, err, reqID)
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer cancel()

		if err := writeEvent(w, "start", streamStart{
			RequestID:  stream.RequestID,
			Provider:   stream.Provider,
			Model:      stream.Model,
			Complexity: stream.Complexity,
			Cached:     stream.Cached,
		}); err != nil {
			fiberlog.Infof("[%s] Client disconnected before stream start: %v", reqID, err)
			return
		}

		for delta := range stream.Deltas {
			if delta.Err != nil {
				fiberlog.Warnf("[%s] Stream failed: %v", reqID, delta.Err)
				_ = writeEvent(w, "error", ErrorResponse{Error: models.SanitizeError(delta.Err), RequestID: reqID})
				break
			}
			if err := writeEvent(w, "", streamChunk{Text: delta.Text}); err != nil {
				fiberlog.Infof("[%s] Client disconnected mid-stream: %v", reqID, err)
				return
			}
		}

		if _, err := w.WriteString("data: [DONE]\n\n"); err == nil {
			_ = w.Flush()
		}
	}))
	return nil
}

// writeEvent writes one SSE frame and flushes it
func writeEvent(w *bufio.Writer, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return w.Flush()
}
