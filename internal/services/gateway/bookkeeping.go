package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Egham-7/adaptive-gateway/internal/models"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

// goBackground runs fn detached from the caller's cancellation and tracked by Wait
func (g *Gateway) goBackground(ctx context.Context, fn func(ctx context.Context)) {
	bg := context.WithoutCancel(ctx)
	g.background.Add(1)
	go func() {
		defer g.background.Done()
		fn(bg)
	}()
}

// recordSuccess bills the user synchronously so a failure can be reported on
// the result, then stores cache, metric and conversation writes in the background.
func (g *Gateway) recordSuccess(ctx context.Context, p *prepared, result *models.GenerationResult) {
	g.recordUsage(ctx, p, result)

	g.goBackground(ctx, func(ctx context.Context) {
		g.storeCache(ctx, p, result)
		g.recordMetric(ctx, models.MetricInput{
			Provider:  result.Provider,
			Model:     result.Model,
			LatencyMs: result.LatencyMs,
			CostUSD:   result.Usage.CostUSD,
			Success:   true,
			UserID:    p.opts.UserID,
			RequestID: p.opts.RequestID,
			TokensIn:  result.Usage.PromptTokens,
			TokensOut: result.Usage.CompletionTokens,
		})
		g.appendConversation(ctx, p, result)
	})
}

func (g *Gateway) recordUsage(ctx context.Context, p *prepared, result *models.GenerationResult) {
	if g.quota == nil || p.opts.UserID == "" {
		return
	}

	res, err := g.quota.RecordUsage(context.WithoutCancel(ctx), models.RecordUsageParams{
		UserID:    p.opts.UserID,
		RequestID: p.opts.RequestID,
		Provider:  result.Provider,
		Model:     result.Model,
		TokensIn:  result.Usage.PromptTokens,
		TokensOut: result.Usage.CompletionTokens,
		CostUSD:   result.Usage.CostUSD,
	})
	if err != nil {
		fiberlog.Warnf("[%s] Usage recording failed for user %s, needs reconciliation: %v", p.requestID, p.opts.UserID, err)
		result.Warnings = append(result.Warnings, "usage recording failed: "+err.Error())
		return
	}
	if !res.Saved {
		fiberlog.Infof("[%s] Usage for request already recorded, not billed again", p.requestID)
	}
}

func (g *Gateway) storeCache(ctx context.Context, p *prepared, result *models.GenerationResult) {
	if g.cache == nil || p.opts.SkipCache {
		return
	}
	err := g.cache.Set(ctx, models.CacheEntry{
		Query:       p.query,
		Model:       p.cacheModel,
		Response:    result.Content,
		Provider:    result.Provider,
		ServedModel: result.Model,
		TokensIn:    result.Usage.PromptTokens,
		TokensOut:   result.Usage.CompletionTokens,
		CostUSD:     result.Usage.CostUSD,
	})
	if err != nil {
		fiberlog.Warnf("[%s] Cache store failed: %v", p.requestID, err)
	}
}

func (g *Gateway) appendConversation(ctx context.Context, p *prepared, result *models.GenerationResult) {
	if g.conversations == nil || p.opts.ConversationID == "" {
		return
	}
	if err := g.conversations.AppendTurn(ctx, p.opts.ConversationID, p.opts.UserID, p.query, result); err != nil {
		fiberlog.Warnf("[%s] Failed to append conversation turn: %v", p.requestID, err)
	}
}

// recordFailure stores a failed attempt. Failed attempts get their own
// request id suffix so they never collide with the success metric.
func (g *Gateway) recordFailure(ctx context.Context, p *prepared, c candidate, elapsed time.Duration, err error) {
	requestID := ""
	if p.opts.RequestID != "" {
		requestID = fmt.Sprintf("%s#%s", p.opts.RequestID, c.id())
	}
	code := "UNKNOWN"
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		code = appErr.Code
	}

	input := models.MetricInput{
		Provider:  c.id(),
		Model:     c.model,
		LatencyMs: elapsed.Milliseconds(),
		Success:   false,
		ErrorCode: code,
		UserID:    p.opts.UserID,
		RequestID: requestID,
	}
	g.goBackground(ctx, func(ctx context.Context) {
		g.recordMetric(ctx, input)
	})
}

func (g *Gateway) recordMetric(ctx context.Context, input models.MetricInput) {
	if g.metrics == nil {
		return
	}
	g.metrics.RecordMetric(ctx, input)
}
