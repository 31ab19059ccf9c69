package providers

import (
	"context"
	"time"

	"github.com/Egham-7/adaptive-gateway/internal/models"
)

const (
	defaultStreamBuffer     = 16
	availabilityCheckWindow = 5 * time.Second
)

// Provider is the uniform capability set of one upstream model provider.
// Adapters never retry; failures come back classified by ClassifyError.
type Provider interface {
	ID() models.ProviderID
	Generate(ctx context.Context, req models.GenerateRequest) (*models.GenerationResult, error)
	// GenerateStream opens one upstream stream. Connection and request errors are
	// returned directly; mid-stream errors arrive as the final delta. Cancelling
	// ctx stops the producer and releases the connection.
	GenerateStream(ctx context.Context, req models.GenerateRequest) (<-chan models.StreamDelta, error)
	EstimateCost(model string, promptTokens, completionTokens int) float64
	// IsAvailable is a cheap check that reports false instead of failing
	IsAvailable(ctx context.Context) bool
	ModelForComplexity(score float64) string
}

// tiering is shared by every adapter: tier selection, pricing and timeouts
type tiering struct {
	id           models.ProviderID
	tiers        models.ProviderModels
	cutoffs      models.ComplexityCutoffs
	pricing      *PricingTable
	timeout      time.Duration
	streamBuffer int
}

func newTiering(id models.ProviderID, cfg models.ProviderConfig, defaults models.ProviderModels, cutoffs models.ComplexityCutoffs, pricing *PricingTable) tiering {
	m := cfg.Models
	if m.Weak == "" {
		m.Weak = defaults.Weak
	}
	if m.Medium == "" {
		m.Medium = defaults.Medium
	}
	if m.Strong == "" {
		m.Strong = defaults.Strong
	}

	c := cfg.Thresholds
	if c.Weak <= 0 {
		c.Weak = cutoffs.Weak
	}
	if c.Medium <= 0 {
		c.Medium = cutoffs.Medium
	}

	if pricing == nil {
		pricing = NewPricingTable()
	}
	if len(cfg.Pricing) > 0 {
		pricing.Merge(id, cfg.Pricing)
	}

	return tiering{
		id:           id,
		tiers:        m,
		cutoffs:      c,
		pricing:      pricing,
		timeout:      time.Duration(cfg.TimeoutMs) * time.Millisecond,
		streamBuffer: defaultStreamBuffer,
	}
}

func (t tiering) ID() models.ProviderID {
	return t.id
}

// Tier maps a complexity score onto a model tier
func (t tiering) Tier(score float64) models.ModelTier {
	switch {
	case score < t.cutoffs.Weak:
		return models.ModelTierWeak
	case score < t.cutoffs.Medium:
		return models.ModelTierMedium
	default:
		return models.ModelTierStrong
	}
}

func (t tiering) ModelForComplexity(score float64) string {
	switch t.Tier(score) {
	case models.ModelTierWeak:
		return t.tiers.Weak
	case models.ModelTierMedium:
		return t.tiers.Medium
	default:
		return t.tiers.Strong
	}
}

func (t tiering) EstimateCost(model string, promptTokens, completionTokens int) float64 {
	return t.pricing.Cost(t.id, model, promptTokens, completionTokens)
}

// callContext bounds a unary call by the configured provider timeout
func (t tiering) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if t.timeout > 0 {
		return context.WithTimeout(ctx, t.timeout)
	}
	return context.WithCancel(ctx)
}

// result prices the call on the requested model; served is the name the
// provider reported and is only kept for display.
func (t tiering) result(content, requested, served string, promptTokens, completionTokens int, started time.Time) *models.GenerationResult {
	elapsed := time.Since(started)
	model := served
	if model == "" {
		model = requested
	}
	return &models.GenerationResult{
		Content:  content,
		Provider: t.id,
		Model:    model,
		Usage: models.Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			CostUSD:          t.EstimateCost(requested, promptTokens, completionTokens),
		},
		LatencyMs: elapsed.Milliseconds(),
		Duration:  elapsed,
		CreatedAt: time.Now(),
	}
}
