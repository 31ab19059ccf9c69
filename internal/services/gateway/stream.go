package gateway

import (
	"context"
	"time"

	"github.com/Egham-7/adaptive-gateway/internal/models"
	"github.com/Egham-7/adaptive-gateway/internal/services/complexity"
	"github.com/Egham-7/adaptive-gateway/internal/utils"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

// StreamResponse is an open generation. Deltas is closed when the stream
// ends; a delta carrying Err is always the last one.
type StreamResponse struct {
	RequestID  string
	Provider   models.ProviderID
	Model      string
	Complexity float64
	Cached     bool
	Deltas     <-chan models.StreamDelta
}

// RouteStreamRequest selects a provider like RouteRequest and streams its
// output. Only failures while opening the stream fall back; once text has
// been emitted the stream stays with its provider. Cancelling ctx stops
// consumption and releases the upstream connection.
func (g *Gateway) RouteStreamRequest(ctx context.Context, query string, opts models.RequestOptions) (*StreamResponse, error) {
	p, err := g.prepare(ctx, query, opts)
	if err != nil {
		return nil, err
	}

	if cached := g.lookupCache(ctx, p); cached != nil {
		deltas := make(chan models.StreamDelta, 1)
		deltas <- models.StreamDelta{Text: cached.Content}
		close(deltas)
		return &StreamResponse{
			RequestID:  p.requestID,
			Provider:   cached.Provider,
			Model:      cached.Model,
			Complexity: p.complexity,
			Cached:     true,
			Deltas:     deltas,
		}, nil
	}

	if err := g.checkQuota(ctx, p); err != nil {
		return nil, err
	}
	g.applyFallbackPolicy(p)

	var opened time.Time
	upstream, winner, err := runFallback(ctx, g, p, func(ctx context.Context, c candidate) (<-chan models.StreamDelta, error) {
		opened = time.Now()
		return c.provider.GenerateStream(ctx, p.generateRequest(c))
	})
	if err != nil {
		return nil, err
	}
	fiberlog.Infof("[%s] Streaming from %s/%s", p.requestID, winner.id(), winner.model)

	out := make(chan models.StreamDelta, g.cfg.StreamBufferSize)
	g.background.Add(1)
	go g.forward(ctx, p, winner, opened, upstream, out)

	return &StreamResponse{
		RequestID:  p.requestID,
		Provider:   winner.id(),
		Model:      winner.model,
		Complexity: p.complexity,
		Deltas:     out,
	}, nil
}

type streamOutcome int

const (
	streamCompleted streamOutcome = iota
	streamFailed
	streamCancelled
)

// forward relays upstream deltas to the caller while accumulating the text
func (g *Gateway) forward(
	ctx context.Context,
	p *prepared,
	c candidate,
	opened time.Time,
	upstream <-chan models.StreamDelta,
	out chan<- models.StreamDelta,
) {
	defer g.background.Done()

	buf := utils.NewStreamBuffer(0)
	defer buf.Release()

	outcome := streamCompleted
	var streamErr error

relay:
	for {
		select {
		case <-ctx.Done():
			outcome = streamCancelled
			break relay
		case d, ok := <-upstream:
			if !ok {
				break relay
			}
			if d.Err != nil {
				outcome = streamFailed
				streamErr = d.Err
			} else {
				buf.WriteString(d.Text)
			}
			select {
			case out <- d:
			case <-ctx.Done():
				outcome = streamCancelled
				break relay
			}
			if outcome == streamFailed {
				break relay
			}
		}
	}
	close(out)
	// Producers close their channel on cancellation, which can win the select.
	if outcome == streamCompleted && ctx.Err() != nil {
		outcome = streamCancelled
	}

	g.finishStream(context.WithoutCancel(ctx), p, c, opened, buf, outcome, streamErr)
}

// finishStream bills emitted output once. Only a fully drained stream is cached.
func (g *Gateway) finishStream(
	ctx context.Context,
	p *prepared,
	c candidate,
	opened time.Time,
	buf *utils.StreamBuffer,
	outcome streamOutcome,
	streamErr error,
) {
	elapsed := time.Since(opened)
	content := buf.String()
	promptTokens := p.promptTokens()
	completionTokens := complexity.EstimateTokens(content)

	result := &models.GenerationResult{
		Content:  content,
		Provider: c.id(),
		Model:    c.model,
		Usage: models.Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			CostUSD:          c.provider.EstimateCost(c.model, promptTokens, completionTokens),
		},
		LatencyMs:  elapsed.Milliseconds(),
		Duration:   elapsed,
		Complexity: p.complexity,
		RequestID:  p.requestID,
		CreatedAt:  time.Now(),
	}

	switch outcome {
	case streamCompleted:
		fiberlog.Infof("[%s] Stream from %s/%s completed (%d chars)", p.requestID, c.id(), c.model, len(content))
		g.recordUsage(ctx, p, result)
		if buf.Overflowed() {
			p.opts.SkipCache = true
			fiberlog.Warnf("[%s] Stream output exceeded buffer limit, not caching", p.requestID)
		}
		g.storeCache(ctx, p, result)
		g.recordMetric(ctx, models.MetricInput{
			Provider:  c.id(),
			Model:     c.model,
			LatencyMs: result.LatencyMs,
			CostUSD:   result.Usage.CostUSD,
			Success:   true,
			UserID:    p.opts.UserID,
			RequestID: p.opts.RequestID,
			TokensIn:  promptTokens,
			TokensOut: completionTokens,
		})
		g.appendConversation(ctx, p, result)

	case streamFailed:
		fiberlog.Warnf("[%s] Stream from %s failed mid-way: %v", p.requestID, c.id(), streamErr)
		g.breakers.For(c.id()).RecordFailure(ctx, c.ticket)
		g.billPartial(ctx, p, result)
		g.recordFailure(ctx, p, c, elapsed, streamErr)

	case streamCancelled:
		fiberlog.Infof("[%s] Stream cancelled by caller after %d chars", p.requestID, len(content))
		g.billPartial(ctx, p, result)
	}
}

// billPartial charges for text that was already emitted; nothing is cached
func (g *Gateway) billPartial(ctx context.Context, p *prepared, result *models.GenerationResult) {
	if result.Content == "" {
		return
	}
	g.recordUsage(ctx, p, result)
}
