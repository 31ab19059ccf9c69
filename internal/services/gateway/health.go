package gateway

import (
	"context"
	"time"

	"github.com/Egham-7/adaptive-gateway/internal/models"
	"github.com/Egham-7/adaptive-gateway/internal/services/circuitbreaker"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"golang.org/x/sync/errgroup"
)

const healthCheckTimeout = 5 * time.Second

// ProviderStatus is the live view of one registered provider
type ProviderStatus struct {
	Provider  models.ProviderID       `json:"provider"`
	Available bool                    `json:"available"`
	Circuit   circuitbreaker.Snapshot `json:"circuit"`
	LatencyMs int64                   `json:"latency_ms"`
}

// CheckProvidersHealth checks every registered provider concurrently.
// Results follow registry order.
func (g *Gateway) CheckProvidersHealth(ctx context.Context) ([]ProviderStatus, error) {
	if g.registry == nil {
		return nil, nil
	}

	ordered := g.registry.Ordered()
	statuses := make([]ProviderStatus, len(ordered))

	eg, egCtx := errgroup.WithContext(ctx)
	for i, p := range ordered {
		eg.Go(func() error {
			checkCtx, cancel := context.WithTimeout(egCtx, healthCheckTimeout)
			defer cancel()

			started := time.Now()
			available := p.IsAvailable(checkCtx)
			statuses[i] = ProviderStatus{
				Provider:  p.ID(),
				Available: available,
				Circuit:   g.breakers.For(p.ID()).Snapshot(egCtx),
				LatencyMs: time.Since(started).Milliseconds(),
			}
			if !available {
				fiberlog.Warnf("Health: provider %s is unavailable", p.ID())
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return statuses, nil
}
