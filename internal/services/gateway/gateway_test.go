package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Egham-7/adaptive-gateway/internal/models"
	"github.com/Egham-7/adaptive-gateway/internal/services/circuitbreaker"
	"github.com/Egham-7/adaptive-gateway/internal/services/complexity"
	"github.com/Egham-7/adaptive-gateway/internal/services/providers"
	"github.com/Egham-7/adaptive-gateway/internal/services/semanticcache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	simpleQuery  = "hi there"
	complexQuery = "Implement and debug this algorithm, then analyze the trade-offs step by step: ```go\nfunc main() {}\n```"
)

type fakeProvider struct {
	id models.ProviderID

	mu       sync.Mutex
	requests []models.GenerateRequest

	generate  func(ctx context.Context, req models.GenerateRequest) (*models.GenerationResult, error)
	stream    func(ctx context.Context, req models.GenerateRequest) (<-chan models.StreamDelta, error)
	available bool
}

func newFakeProvider(id models.ProviderID) *fakeProvider {
	return &fakeProvider{id: id, available: true}
}

func (p *fakeProvider) ID() models.ProviderID { return p.id }

func (p *fakeProvider) ModelForComplexity(score float64) string {
	if score < 0.5 {
		return string(p.id) + "-small"
	}
	return string(p.id) + "-large"
}

func (p *fakeProvider) EstimateCost(_ string, promptTokens, completionTokens int) float64 {
	return float64(promptTokens+completionTokens) * 0.0001
}

func (p *fakeProvider) IsAvailable(context.Context) bool { return p.available }

func (p *fakeProvider) record(req models.GenerateRequest) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
}

func (p *fakeProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

func (p *fakeProvider) lastRequest() models.GenerateRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests[len(p.requests)-1]
}

func (p *fakeProvider) Generate(ctx context.Context, req models.GenerateRequest) (*models.GenerationResult, error) {
	p.record(req)
	if p.generate != nil {
		return p.generate(ctx, req)
	}
	return &models.GenerationResult{
		Content:   "answer from " + string(p.id),
		Provider:  p.id,
		Model:     req.Model,
		Usage:     models.Usage{PromptTokens: 10, CompletionTokens: 20, CostUSD: 0.002},
		LatencyMs: 5,
		CreatedAt: time.Now(),
	}, nil
}

func (p *fakeProvider) GenerateStream(ctx context.Context, req models.GenerateRequest) (<-chan models.StreamDelta, error) {
	p.record(req)
	if p.stream != nil {
		return p.stream(ctx, req)
	}
	return deltas("Hel", "lo"), nil
}

func deltas(parts ...string) <-chan models.StreamDelta {
	ch := make(chan models.StreamDelta, len(parts))
	for _, part := range parts {
		ch <- models.StreamDelta{Text: part}
	}
	close(ch)
	return ch
}

func transient(id models.ProviderID) error {
	return models.NewProviderTransientError(id, "503 from upstream", errors.New("service unavailable"))
}

type fakeQuota struct {
	mu        sync.Mutex
	check     models.SpendCheck
	recordErr error
	records   []models.RecordUsageParams
	checks    int
}

func (q *fakeQuota) CanSpend(context.Context, string, int64) (models.SpendCheck, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.checks++
	return q.check, nil
}

func (q *fakeQuota) RecordUsage(_ context.Context, params models.RecordUsageParams) (models.RecordUsageResult, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.recordErr != nil {
		return models.RecordUsageResult{}, q.recordErr
	}
	q.records = append(q.records, params)
	return models.RecordUsageResult{Saved: true}, nil
}

func (q *fakeQuota) recorded() []models.RecordUsageParams {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]models.RecordUsageParams(nil), q.records...)
}

type fakeMetrics struct {
	mu     sync.Mutex
	inputs []models.MetricInput
}

func (m *fakeMetrics) RecordMetric(_ context.Context, input models.MetricInput) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputs = append(m.inputs, input)
}

func (m *fakeMetrics) all() []models.MetricInput {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.MetricInput(nil), m.inputs...)
}

type fakeConversations struct {
	mu      sync.Mutex
	history []models.ChatMessage
	turns   []string
}

func (c *fakeConversations) GetRecentMessages(context.Context, string, string, int) ([]models.ChatMessage, error) {
	return c.history, nil
}

func (c *fakeConversations) AppendTurn(_ context.Context, conversationID, _ string, prompt string, result *models.GenerationResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = append(c.turns, conversationID+":"+prompt+"->"+result.Content)
	return nil
}

type harness struct {
	gw      *Gateway
	openai  *fakeProvider
	claude  *fakeProvider
	gemini  *fakeProvider
	quota   *fakeQuota
	metrics *fakeMetrics
	convs   *fakeConversations
	cache   *semanticcache.Store
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		openai:  newFakeProvider(models.ProviderOpenAI),
		claude:  newFakeProvider(models.ProviderClaude),
		gemini:  newFakeProvider(models.ProviderGemini),
		quota:   &fakeQuota{check: models.SpendCheck{OK: true, Plan: models.PlanPro}},
		metrics: &fakeMetrics{},
		convs:   &fakeConversations{},
		cache:   semanticcache.NewStore(semanticcache.NewMemoryBackend(100, time.Hour)),
	}

	registry := providers.NewRegistry(providers.NewPricingTable())
	registry.Register(h.gemini)
	registry.Register(h.claude)
	registry.Register(h.openai)

	h.gw = New(Deps{
		Registry:      registry,
		Cache:         h.cache,
		Quota:         h.quota,
		Metrics:       h.metrics,
		Conversations: h.convs,
	}, cfg)
	t.Cleanup(h.gw.Wait)
	return h
}

func TestQueriesLandOnBothSidesOfPivot(t *testing.T) {
	a := complexity.NewAnalyzer()
	assert.Less(t, a.Score(simpleQuery), complexityPivot)
	assert.Greater(t, a.Score(complexQuery), complexityPivot)
}

func TestPreferenceOrder(t *testing.T) {
	registry := providers.NewRegistry(providers.NewPricingTable())
	for _, id := range []models.ProviderID{"deepseek", models.ProviderGemini, models.ProviderClaude, models.ProviderOpenAI} {
		registry.Register(newFakeProvider(id))
	}

	assert.Equal(t,
		[]models.ProviderID{models.ProviderOpenAI, models.ProviderClaude, models.ProviderGemini, "deepseek"},
		PreferenceOrder(0.2, "", registry))
	assert.Equal(t,
		[]models.ProviderID{models.ProviderClaude, models.ProviderOpenAI, models.ProviderGemini, "deepseek"},
		PreferenceOrder(0.9, "", registry))
	assert.Equal(t,
		[]models.ProviderID{models.ProviderGemini, models.ProviderClaude, models.ProviderOpenAI, "deepseek"},
		PreferenceOrder(0.9, models.ProviderGemini, registry))
	assert.Equal(t,
		[]models.ProviderID{models.ProviderOpenAI, models.ProviderClaude, models.ProviderGemini, "deepseek"},
		PreferenceOrder(0.2, "unknown", registry), "unregistered forced provider is ignored")
}

func TestPreferenceOrderSkipsUnregistered(t *testing.T) {
	registry := providers.NewRegistry(providers.NewPricingTable())
	registry.Register(newFakeProvider(models.ProviderGemini))
	registry.Register(newFakeProvider(models.ProviderClaude))

	assert.Equal(t, []models.ProviderID{models.ProviderClaude, models.ProviderGemini}, PreferenceOrder(0.1, "", registry))
}

func TestRouteRequestSimpleQueryPrefersCheapProvider(t *testing.T) {
	h := newHarness(t, Config{})

	result, err := h.gw.RouteRequest(context.Background(), simpleQuery, models.RequestOptions{})
	require.NoError(t, err)

	assert.Equal(t, models.ProviderOpenAI, result.Provider)
	assert.Equal(t, "openai-small", result.Model)
	assert.False(t, result.Cached)
	assert.NotEmpty(t, result.RequestID)
	assert.Less(t, result.Complexity, complexityPivot)
	assert.Zero(t, h.claude.calls())
}

func TestRouteRequestComplexQueryPrefersQualityProvider(t *testing.T) {
	h := newHarness(t, Config{})

	result, err := h.gw.RouteRequest(context.Background(), complexQuery, models.RequestOptions{})
	require.NoError(t, err)

	assert.Equal(t, models.ProviderClaude, result.Provider)
	assert.Equal(t, "claude-large", result.Model)
	assert.Zero(t, h.openai.calls())
}

func TestRouteRequestFallsBackOnTransientFailure(t *testing.T) {
	h := newHarness(t, Config{})
	h.openai.generate = func(context.Context, models.GenerateRequest) (*models.GenerationResult, error) {
		return nil, transient(models.ProviderOpenAI)
	}

	result, err := h.gw.RouteRequest(context.Background(), simpleQuery, models.RequestOptions{UserID: "u1", RequestID: "req-1"})
	require.NoError(t, err)
	h.gw.Wait()

	assert.Equal(t, models.ProviderClaude, result.Provider)
	assert.Equal(t, 1, h.openai.calls())
	assert.Equal(t, 1, h.claude.calls())

	records := h.quota.recorded()
	require.Len(t, records, 1, "only the successful attempt is billed")
	assert.Equal(t, models.ProviderClaude, records[0].Provider)

	var failure, success *models.MetricInput
	for _, m := range h.metrics.all() {
		if m.Success {
			success = &m
		} else {
			failure = &m
		}
	}
	require.NotNil(t, failure)
	require.NotNil(t, success)
	assert.Equal(t, "req-1#openai", failure.RequestID)
	assert.Equal(t, "PROVIDER_TRANSIENT", failure.ErrorCode)
	assert.Equal(t, "req-1", success.RequestID)
	assert.Equal(t, models.ProviderClaude, success.Provider)
}

func TestRouteRequestSkipsProviderWithOpenCircuit(t *testing.T) {
	h := newHarness(t, Config{Fallback: models.FallbackConfig{
		CircuitBreaker: models.CircuitBreakerConfig{FailureThreshold: 3, RecoveryTimeoutMs: 60_000},
	}})
	h.openai.generate = func(context.Context, models.GenerateRequest) (*models.GenerationResult, error) {
		return nil, transient(models.ProviderOpenAI)
	}
	opts := models.RequestOptions{SkipCache: true}

	for range 3 {
		result, err := h.gw.RouteRequest(context.Background(), simpleQuery, opts)
		require.NoError(t, err)
		assert.Equal(t, models.ProviderClaude, result.Provider)
	}
	assert.Equal(t, circuitbreaker.Open, h.gw.breakers.For(models.ProviderOpenAI).Snapshot(context.Background()).State)

	result, err := h.gw.RouteRequest(context.Background(), simpleQuery, opts)
	require.NoError(t, err)
	assert.Equal(t, models.ProviderClaude, result.Provider)
	assert.Equal(t, 3, h.openai.calls(), "open circuit must not reach the provider")
	assert.Equal(t, 4, h.claude.calls())
}

func TestRouteRequestCacheHitIsFree(t *testing.T) {
	h := newHarness(t, Config{})
	opts := models.RequestOptions{UserID: "u1"}

	first, err := h.gw.RouteRequest(context.Background(), simpleQuery, opts)
	require.NoError(t, err)
	h.gw.Wait()
	metricsAfterFirst := len(h.metrics.all())

	second, err := h.gw.RouteRequest(context.Background(), "  HI THERE ", opts)
	require.NoError(t, err)
	h.gw.Wait()

	assert.True(t, second.Cached)
	assert.Equal(t, first.Content, second.Content)
	assert.Equal(t, first.Provider, second.Provider)
	assert.Equal(t, first.Model, second.Model)
	assert.Zero(t, second.Usage.CostUSD)
	assert.Equal(t, 1, h.openai.calls())
	assert.Len(t, h.quota.recorded(), 1, "cache hits are not billed")
	assert.Len(t, h.metrics.all(), metricsAfterFirst, "cache hits record no provider metric")

	stats, err := h.gw.GetCacheStats(context.Background(), "openai-small")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestRouteRequestSkipCacheBypassesLookupAndStore(t *testing.T) {
	h := newHarness(t, Config{})
	opts := models.RequestOptions{SkipCache: true}

	for range 2 {
		result, err := h.gw.RouteRequest(context.Background(), simpleQuery, opts)
		require.NoError(t, err)
		assert.False(t, result.Cached)
	}
	h.gw.Wait()

	assert.Equal(t, 2, h.openai.calls())
	stats, err := h.gw.GetCacheStats(context.Background(), "openai-small")
	require.NoError(t, err)
	assert.Zero(t, stats.Entries)
}

func TestRouteRequestHardErrorStopsChain(t *testing.T) {
	h := newHarness(t, Config{})
	h.openai.generate = func(context.Context, models.GenerateRequest) (*models.GenerationResult, error) {
		return nil, models.NewProviderHardError(models.ProviderOpenAI, "invalid api key", nil)
	}

	_, err := h.gw.RouteRequest(context.Background(), simpleQuery, models.RequestOptions{})
	require.Error(t, err)

	assert.True(t, models.HasType(err, models.ErrorTypeProviderHard))
	assert.Zero(t, h.claude.calls())
	assert.Zero(t, h.gemini.calls())
}

func TestRouteRequestAllProvidersFailed(t *testing.T) {
	h := newHarness(t, Config{})
	for _, p := range []*fakeProvider{h.openai, h.claude, h.gemini} {
		id := p.id
		p.generate = func(context.Context, models.GenerateRequest) (*models.GenerationResult, error) {
			return nil, transient(id)
		}
	}

	_, err := h.gw.RouteRequest(context.Background(), simpleQuery, models.RequestOptions{})
	require.Error(t, err)

	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.ErrorTypeAllProvidersFailed, appErr.Type)
	assert.Equal(t, http.StatusServiceUnavailable, appErr.GetStatusCode())
	assert.Contains(t, appErr.LastError, "gemini")
	assert.Empty(t, h.quota.recorded())
}

func TestRouteRequestQuotaRejectsBeforeProviderCall(t *testing.T) {
	h := newHarness(t, Config{})
	h.quota.check = models.SpendCheck{
		OK:            false,
		Reason:        models.QuotaReasonOverLimit,
		Remaining:     1000,
		Limit:         50_000,
		WouldExceedBy: 1000,
	}

	_, err := h.gw.RouteRequest(context.Background(), simpleQuery, models.RequestOptions{UserID: "u1"})
	require.Error(t, err)

	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.ErrorTypeQuotaExceeded, appErr.Type)
	assert.Equal(t, http.StatusPaymentRequired, appErr.GetStatusCode())
	assert.Equal(t, int64(1000), appErr.Quota.WouldExceedBy)
	assert.Zero(t, h.openai.calls())
}

func TestRouteRequestAnonymousSkipsQuota(t *testing.T) {
	h := newHarness(t, Config{})
	h.quota.check = models.SpendCheck{OK: false, Reason: models.QuotaReasonNoUser}

	_, err := h.gw.RouteRequest(context.Background(), simpleQuery, models.RequestOptions{})
	require.NoError(t, err)
	assert.Zero(t, h.quota.checks)
}

func TestRouteRequestSingleCandidatePlan(t *testing.T) {
	h := newHarness(t, Config{Fallback: models.FallbackConfig{
		SingleCandidatePlans: []models.PlanTier{models.PlanFree},
	}})
	h.quota.check = models.SpendCheck{OK: true, Plan: models.PlanFree}
	h.openai.generate = func(context.Context, models.GenerateRequest) (*models.GenerationResult, error) {
		return nil, transient(models.ProviderOpenAI)
	}

	_, err := h.gw.RouteRequest(context.Background(), simpleQuery, models.RequestOptions{UserID: "u1"})
	require.Error(t, err)

	assert.True(t, models.HasType(err, models.ErrorTypeAllProvidersFailed))
	assert.Zero(t, h.claude.calls())
}

func TestRouteRequestFallbackDisabled(t *testing.T) {
	h := newHarness(t, Config{Fallback: models.FallbackConfig{Mode: models.FallbackModeDisabled}})
	h.openai.generate = func(context.Context, models.GenerateRequest) (*models.GenerationResult, error) {
		return nil, transient(models.ProviderOpenAI)
	}

	_, err := h.gw.RouteRequest(context.Background(), simpleQuery, models.RequestOptions{})
	require.Error(t, err)
	assert.Zero(t, h.claude.calls())
}

func TestRouteRequestUsageFailureBecomesWarning(t *testing.T) {
	h := newHarness(t, Config{})
	h.quota.recordErr = errors.New("database is locked")

	result, err := h.gw.RouteRequest(context.Background(), simpleQuery, models.RequestOptions{UserID: "u1"})
	require.NoError(t, err)

	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "database is locked")
}

func TestRouteRequestForcedProviderAndModel(t *testing.T) {
	h := newHarness(t, Config{})

	result, err := h.gw.RouteRequest(context.Background(), simpleQuery, models.RequestOptions{ForceModel: "google:gemini-custom"})
	require.NoError(t, err)
	assert.Equal(t, models.ProviderGemini, result.Provider)
	assert.Equal(t, "gemini-custom", result.Model)

	result, err = h.gw.RouteRequest(context.Background(), simpleQuery, models.RequestOptions{ForceProvider: "anthropic", SkipCache: true})
	require.NoError(t, err)
	assert.Equal(t, models.ProviderClaude, result.Provider)
	assert.Equal(t, "claude-small", result.Model)
}

func TestRouteRequestForcedModelWithUnknownOwnerGoesToPrimary(t *testing.T) {
	h := newHarness(t, Config{})

	result, err := h.gw.RouteRequest(context.Background(), simpleQuery, models.RequestOptions{ForceModel: "ft:custom:org"})
	require.NoError(t, err)
	assert.Equal(t, models.ProviderOpenAI, result.Provider)
	assert.Equal(t, "ft:custom:org", result.Model)
}

func TestRouteRequestValidation(t *testing.T) {
	h := newHarness(t, Config{})

	_, err := h.gw.RouteRequest(context.Background(), "   ", models.RequestOptions{})
	assert.True(t, models.HasType(err, models.ErrorTypeValidation))

	_, err = h.gw.RouteRequest(context.Background(), simpleQuery, models.RequestOptions{ForceModel: "openai:"})
	assert.True(t, models.HasType(err, models.ErrorTypeValidation))
}

func TestRouteRequestCancelledContext(t *testing.T) {
	h := newHarness(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.gw.RouteRequest(ctx, simpleQuery, models.RequestOptions{SkipCache: true})
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, h.openai.calls())
}

func TestRouteRequestLoadsAndAppendsConversation(t *testing.T) {
	h := newHarness(t, Config{})
	h.convs.history = []models.ChatMessage{
		{Role: models.RoleUser, Content: "my name is Ada"},
		{Role: models.RoleAssistant, Content: "hello Ada"},
	}

	_, err := h.gw.RouteRequest(context.Background(), simpleQuery, models.RequestOptions{ConversationID: "c1"})
	require.NoError(t, err)
	h.gw.Wait()

	assert.Equal(t, h.convs.history, h.openai.lastRequest().History)
	h.convs.mu.Lock()
	defer h.convs.mu.Unlock()
	assert.Equal(t, []string{"c1:" + simpleQuery + "->answer from openai"}, h.convs.turns)
}

func TestClearCache(t *testing.T) {
	h := newHarness(t, Config{})

	_, err := h.gw.RouteRequest(context.Background(), simpleQuery, models.RequestOptions{})
	require.NoError(t, err)
	h.gw.Wait()

	removed, err := h.gw.ClearCache(context.Background(), "openai-small")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = h.gw.ClearCache(context.Background(), "")
	assert.True(t, models.HasType(err, models.ErrorTypeValidation))
}

func TestCheckProvidersHealth(t *testing.T) {
	h := newHarness(t, Config{})
	h.gemini.available = false

	statuses, err := h.gw.CheckProvidersHealth(context.Background())
	require.NoError(t, err)
	require.Len(t, statuses, 3)

	assert.Equal(t, models.ProviderOpenAI, statuses[0].Provider)
	assert.True(t, statuses[0].Available)
	assert.Equal(t, circuitbreaker.Closed, statuses[0].Circuit.State)
	assert.Equal(t, models.ProviderGemini, statuses[2].Provider)
	assert.False(t, statuses[2].Available)
}

func collect(t *testing.T, resp *StreamResponse) (string, error) {
	t.Helper()
	var sb strings.Builder
	var streamErr error
	for d := range resp.Deltas {
		if d.Err != nil {
			streamErr = d.Err
			continue
		}
		sb.WriteString(d.Text)
	}
	return sb.String(), streamErr
}

func TestRouteStreamRequestCompletes(t *testing.T) {
	h := newHarness(t, Config{})
	opts := models.RequestOptions{UserID: "u1", RequestID: "req-s"}

	resp, err := h.gw.RouteStreamRequest(context.Background(), simpleQuery, opts)
	require.NoError(t, err)
	assert.Equal(t, models.ProviderOpenAI, resp.Provider)
	assert.Equal(t, "req-s", resp.RequestID)

	text, streamErr := collect(t, resp)
	require.NoError(t, streamErr)
	assert.Equal(t, "Hello", text)
	h.gw.Wait()

	records := h.quota.recorded()
	require.Len(t, records, 1)
	assert.Equal(t, complexity.EstimateTokens("Hello"), records[0].TokensOut)

	cached, err := h.gw.RouteStreamRequest(context.Background(), simpleQuery, opts)
	require.NoError(t, err)
	assert.True(t, cached.Cached)
	text, _ = collect(t, cached)
	assert.Equal(t, "Hello", text)
	assert.Equal(t, 1, h.openai.calls())
}

func TestRouteStreamRequestFallsBackWhenOpenFails(t *testing.T) {
	h := newHarness(t, Config{})
	h.openai.stream = func(context.Context, models.GenerateRequest) (<-chan models.StreamDelta, error) {
		return nil, transient(models.ProviderOpenAI)
	}

	resp, err := h.gw.RouteStreamRequest(context.Background(), simpleQuery, models.RequestOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.ProviderClaude, resp.Provider)

	text, streamErr := collect(t, resp)
	require.NoError(t, streamErr)
	assert.Equal(t, "Hello", text)
}

func TestRouteStreamRequestMidStreamErrorIsNotCached(t *testing.T) {
	h := newHarness(t, Config{})
	h.openai.stream = func(context.Context, models.GenerateRequest) (<-chan models.StreamDelta, error) {
		ch := make(chan models.StreamDelta, 2)
		ch <- models.StreamDelta{Text: "partial"}
		ch <- models.StreamDelta{Err: transient(models.ProviderOpenAI)}
		close(ch)
		return ch, nil
	}

	resp, err := h.gw.RouteStreamRequest(context.Background(), simpleQuery, models.RequestOptions{UserID: "u1", RequestID: "req-m"})
	require.NoError(t, err)

	text, streamErr := collect(t, resp)
	assert.Equal(t, "partial", text)
	require.Error(t, streamErr)
	h.gw.Wait()

	assert.Len(t, h.quota.recorded(), 1, "emitted text is billed once")
	assert.Equal(t, 1, h.gw.breakers.For(models.ProviderOpenAI).Snapshot(context.Background()).FailureCount)

	stats, err := h.gw.GetCacheStats(context.Background(), "openai-small")
	require.NoError(t, err)
	assert.Zero(t, stats.Entries)

	metrics := h.metrics.all()
	require.Len(t, metrics, 1)
	assert.False(t, metrics[0].Success)
	assert.Equal(t, "req-m#openai", metrics[0].RequestID)
}

func TestRouteStreamRequestCancellation(t *testing.T) {
	h := newHarness(t, Config{})
	released := make(chan struct{})
	h.openai.stream = func(ctx context.Context, _ models.GenerateRequest) (<-chan models.StreamDelta, error) {
		ch := make(chan models.StreamDelta)
		go func() {
			defer close(released)
			defer close(ch)
			select {
			case ch <- models.StreamDelta{Text: "first "}:
			case <-ctx.Done():
				return
			}
			<-ctx.Done()
		}()
		return ch, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	resp, err := h.gw.RouteStreamRequest(ctx, simpleQuery, models.RequestOptions{UserID: "u1"})
	require.NoError(t, err)

	first := <-resp.Deltas
	assert.Equal(t, "first ", first.Text)
	cancel()

	for range resp.Deltas {
	}
	select {
	case <-released:
	case <-time.After(2 * time.Second):
		t.Fatal("upstream producer was not released after cancellation")
	}
	h.gw.Wait()

	records := h.quota.recorded()
	require.Len(t, records, 1)
	assert.Equal(t, complexity.EstimateTokens("first "), records[0].TokensOut)

	stats, err := h.gw.GetCacheStats(context.Background(), "openai-small")
	require.NoError(t, err)
	assert.Zero(t, stats.Entries)
}
