package gateway

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/Egham-7/adaptive-gateway/internal/models"
	"github.com/Egham-7/adaptive-gateway/internal/services/circuitbreaker"
	"github.com/Egham-7/adaptive-gateway/internal/services/complexity"
	"github.com/Egham-7/adaptive-gateway/internal/services/providers"
	"github.com/Egham-7/adaptive-gateway/internal/services/semanticcache"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
)

const (
	defaultHistoryLimit     = 20
	defaultStreamBufferSize = 16
)

// QuotaService is the slice of the quota service the gateway depends on
type QuotaService interface {
	CanSpend(ctx context.Context, userID string, estimatedTokens int64) (models.SpendCheck, error)
	RecordUsage(ctx context.Context, params models.RecordUsageParams) (models.RecordUsageResult, error)
}

// MetricsRecorder never fails the caller; implementations log their own errors
type MetricsRecorder interface {
	RecordMetric(ctx context.Context, input models.MetricInput)
}

// ConversationStore supplies history and receives completed turns
type ConversationStore interface {
	GetRecentMessages(ctx context.Context, conversationID, userID string, limit int) ([]models.ChatMessage, error)
	AppendTurn(ctx context.Context, conversationID, userID, prompt string, result *models.GenerationResult) error
}

// Deps are the collaborators of a Gateway. Cache, Quota, Metrics and
// Conversations are optional.
type Deps struct {
	Registry      *providers.Registry
	Breakers      *circuitbreaker.Set
	Analyzer      *complexity.Analyzer
	Cache         semanticcache.Cache
	Quota         QuotaService
	Metrics       MetricsRecorder
	Conversations ConversationStore
}

type Config struct {
	Fallback         models.FallbackConfig
	HistoryLimit     int
	StreamBufferSize int
}

// Gateway routes chat requests to providers with caching, quota
// enforcement, circuit breaking and fallback.
type Gateway struct {
	registry      *providers.Registry
	breakers      *circuitbreaker.Set
	analyzer      *complexity.Analyzer
	cache         semanticcache.Cache
	quota         QuotaService
	metrics       MetricsRecorder
	conversations ConversationStore
	cfg           Config

	// background tracks post-response bookkeeping so shutdown can drain it
	background sync.WaitGroup
}

func New(deps Deps, cfg Config) *Gateway {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}
	if cfg.StreamBufferSize <= 0 {
		cfg.StreamBufferSize = defaultStreamBufferSize
	}
	if deps.Analyzer == nil {
		deps.Analyzer = complexity.NewAnalyzer()
	}
	if deps.Breakers == nil {
		deps.Breakers = circuitbreaker.NewMemorySet(circuitbreaker.ConfigFromModel(cfg.Fallback.CircuitBreaker))
	}
	return &Gateway{
		registry:      deps.Registry,
		breakers:      deps.Breakers,
		analyzer:      deps.Analyzer,
		cache:         deps.Cache,
		quota:         deps.Quota,
		metrics:       deps.Metrics,
		conversations: deps.Conversations,
		cfg:           cfg,
	}
}

// prepared is the per-request state shared by both entry points
type prepared struct {
	query      string
	opts       models.RequestOptions
	requestID  string
	started    time.Time
	complexity float64
	history    []models.ChatMessage
	candidates []candidate
	cacheModel string
	plan       models.PlanTier
}

func (p *prepared) generateRequest(c candidate) models.GenerateRequest {
	return models.GenerateRequest{
		Model:        c.model,
		Prompt:       p.query,
		SystemPrompt: p.opts.SystemPrompt,
		History:      p.history,
		Temperature:  p.opts.EffectiveTemperature(),
		MaxTokens:    p.opts.EffectiveMaxTokens(),
		RequestID:    p.requestID,
	}
}

// promptTokens estimates the prompt side of the request
func (p *prepared) promptTokens() int {
	var sb strings.Builder
	sb.WriteString(p.query)
	sb.WriteString(p.opts.SystemPrompt)
	for _, m := range p.history {
		sb.WriteString(m.Content)
	}
	return complexity.EstimateTokens(sb.String())
}

// prepare scores the query, resolves history and builds the candidate order
func (g *Gateway) prepare(ctx context.Context, query string, opts models.RequestOptions) (*prepared, error) {
	if strings.TrimSpace(query) == "" {
		return nil, models.NewValidationError("query must not be empty", nil)
	}

	p := &prepared{
		query:     query,
		opts:      opts,
		requestID: opts.RequestID,
		started:   time.Now(),
		history:   opts.History,
	}
	if p.requestID == "" {
		p.requestID = uuid.NewString()
	}

	p.complexity = g.analyzer.Score(query)
	fiberlog.Debugf("[%s] Complexity score: %.3f", p.requestID, p.complexity)

	if opts.ConversationID != "" && g.conversations != nil && len(p.history) == 0 {
		history, err := g.conversations.GetRecentMessages(ctx, opts.ConversationID, opts.UserID, g.cfg.HistoryLimit)
		if err != nil {
			fiberlog.Warnf("[%s] Failed to load conversation history: %v", p.requestID, err)
		} else {
			p.history = history
		}
	}

	candidates, err := g.candidates(p.complexity, opts)
	if err != nil {
		return nil, err
	}
	p.candidates = candidates
	p.cacheModel = candidates[0].model
	return p, nil
}

// checkQuota blocks the request before any provider call when the user cannot afford it
func (g *Gateway) checkQuota(ctx context.Context, p *prepared) error {
	if g.quota == nil || p.opts.UserID == "" {
		return nil
	}

	estimate := int64(p.promptTokens() + p.opts.EffectiveMaxTokens())
	check, err := g.quota.CanSpend(ctx, p.opts.UserID, estimate)
	if err != nil {
		return models.NewInternalError("quota check failed", err)
	}
	if !check.OK {
		fiberlog.Infof("[%s] Quota rejected for user %s: %s (remaining %d, limit %d)",
			p.requestID, p.opts.UserID, check.Reason, check.Remaining, check.Limit)
		return models.NewQuotaExceededError(check)
	}
	p.plan = check.Plan
	return nil
}

// applyFallbackPolicy trims the chain to the primary candidate when fallback is off for this request
func (g *Gateway) applyFallbackPolicy(p *prepared) {
	if len(p.candidates) <= 1 {
		return
	}
	allowed := g.cfg.Fallback.Enabled()
	if allowed && p.plan != "" {
		allowed = g.cfg.Fallback.AllowsFallbackFor(p.plan)
	}
	if !allowed {
		fiberlog.Debugf("[%s] Fallback disabled for this request, using primary candidate only", p.requestID)
		p.candidates = p.candidates[:1]
	}
}

// lookupCache returns a cached result, or nil on a miss or cache failure
func (g *Gateway) lookupCache(ctx context.Context, p *prepared) *models.GenerationResult {
	if g.cache == nil || p.opts.SkipCache {
		return nil
	}

	entry, err := g.cache.FindSimilar(ctx, p.query, p.cacheModel)
	if err != nil {
		fiberlog.Warnf("[%s] Cache lookup failed, continuing without cache: %v", p.requestID, err)
		return nil
	}
	if entry == nil {
		fiberlog.Debugf("[%s] Cache miss for model %s", p.requestID, p.cacheModel)
		return nil
	}

	model := entry.ServedModel
	if model == "" {
		model = entry.Model
	}
	elapsed := time.Since(p.started)
	fiberlog.Infof("[%s] Cache hit (%s) for model %s", p.requestID, entry.Tier, p.cacheModel)
	return &models.GenerationResult{
		Content:  entry.Response,
		Provider: entry.Provider,
		Model:    model,
		Usage: models.Usage{
			PromptTokens:     entry.TokensIn,
			CompletionTokens: entry.TokensOut,
		},
		LatencyMs:  elapsed.Milliseconds(),
		Duration:   elapsed,
		Cached:     true,
		Complexity: p.complexity,
		RequestID:  p.requestID,
		CreatedAt:  time.Now(),
	}
}

// RouteRequest answers query with the best available provider
func (g *Gateway) RouteRequest(ctx context.Context, query string, opts models.RequestOptions) (*models.GenerationResult, error) {
	p, err := g.prepare(ctx, query, opts)
	if err != nil {
		return nil, err
	}

	if cached := g.lookupCache(ctx, p); cached != nil {
		return cached, nil
	}

	if err := g.checkQuota(ctx, p); err != nil {
		return nil, err
	}
	g.applyFallbackPolicy(p)

	result, winner, err := runFallback(ctx, g, p, func(ctx context.Context, c candidate) (*models.GenerationResult, error) {
		return c.provider.Generate(ctx, p.generateRequest(c))
	})
	if err != nil {
		return nil, err
	}

	result.Complexity = p.complexity
	result.RequestID = p.requestID
	if result.Model == "" {
		result.Model = winner.model
	}
	fiberlog.Infof("[%s] Served by %s/%s in %dms (%d tokens, $%.6f)",
		p.requestID, result.Provider, result.Model, result.LatencyMs, result.Usage.TotalTokens(), result.Usage.CostUSD)

	g.recordSuccess(ctx, p, result)
	return result, nil
}

// GetCacheStats reports cache effectiveness for model, or overall when model is empty
func (g *Gateway) GetCacheStats(ctx context.Context, model string) (models.CacheStats, error) {
	if g.cache == nil {
		return models.CacheStats{Model: model}, nil
	}
	return g.cache.Stats(ctx, model)
}

// ClearCache drops every cached entry for model
func (g *Gateway) ClearCache(ctx context.Context, model string) (int, error) {
	if strings.TrimSpace(model) == "" {
		return 0, models.NewValidationError("model is required", nil)
	}
	if g.cache == nil {
		return 0, nil
	}
	return g.cache.ClearModel(ctx, model)
}

// Wait blocks until background bookkeeping of finished requests completes
func (g *Gateway) Wait() {
	g.background.Wait()
}
