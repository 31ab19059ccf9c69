package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/Egham-7/adaptive-gateway/internal/models"
	"github.com/Egham-7/adaptive-gateway/internal/services/circuitbreaker"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

// runFallback tries candidates in order through their circuit breakers.
// Open breakers are skipped, transient failures move on to the next
// candidate and the first non-retryable failure ends the chain.
func runFallback[T any](
	ctx context.Context,
	g *Gateway,
	p *prepared,
	attempt func(context.Context, candidate) (T, error),
) (T, candidate, error) {
	var zero T
	var lastErr error

	fiberlog.Infof("[%s] Fallback chain started (%d candidates, complexity %.2f)", p.requestID, len(p.candidates), p.complexity)
	for i, c := range p.candidates {
		if err := ctx.Err(); err != nil {
			return zero, candidate{}, err
		}

		role := "fallback"
		if i == 0 {
			role = "primary"
		}
		fiberlog.Debugf("[%s] Trying %s candidate [%d/%d]: %s/%s", p.requestID, role, i+1, len(p.candidates), c.id(), c.model)

		var result T
		started := time.Now()
		ticket, err := circuitbreaker.Execute(ctx, g.breakers.For(c.id()), func(ctx context.Context) error {
			var callErr error
			result, callErr = attempt(ctx, c)
			return callErr
		})

		switch {
		case err == nil:
			if i > 0 {
				fiberlog.Infof("[%s] Recovered on fallback candidate %s/%s", p.requestID, c.id(), c.model)
			}
			c.ticket = ticket
			return result, c, nil

		case errors.Is(err, circuitbreaker.ErrOpen):
			fiberlog.Warnf("[%s] Skipping %s: circuit breaker open", p.requestID, c.id())
			lastErr = models.NewCircuitOpenError(c.id())
			continue

		case errors.Is(err, context.Canceled):
			fiberlog.Infof("[%s] Request cancelled while calling %s", p.requestID, c.id())
			return zero, candidate{}, err
		}

		fiberlog.Warnf("[%s] Candidate %s/%s failed after %v: %v", p.requestID, c.id(), c.model, time.Since(started), err)
		g.recordFailure(ctx, p, c, time.Since(started), err)
		lastErr = err

		if !models.IsRetryable(err) {
			fiberlog.Errorf("[%s] Non-retryable failure from %s, stopping fallback", p.requestID, c.id())
			return zero, candidate{}, err
		}
	}

	fiberlog.Errorf("[%s] All %d candidates failed, last error: %v", p.requestID, len(p.candidates), lastErr)
	return zero, candidate{}, models.NewAllProvidersFailedError(len(p.candidates), lastErr)
}
