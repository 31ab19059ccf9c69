package providers

import (
	"context"
	"strings"
	"time"

	"github.com/Egham-7/adaptive-gateway/internal/models"
	"github.com/Egham-7/adaptive-gateway/internal/utils/clientcache"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	fiberlog "github.com/gofiber/fiber/v2/log"
)

var (
	anthropicDefaultModels = models.ProviderModels{
		Weak:   "claude-3-5-haiku-20241022",
		Medium: "claude-sonnet-4-5-20250929",
		Strong: "claude-opus-4-1-20250805",
	}
	// Sonnet handles more of the range before escalating to Opus.
	anthropicDefaultCutoffs = models.ComplexityCutoffs{Weak: 0.3, Medium: 0.8}
)

// AnthropicProvider serves Claude models through the Messages API
type AnthropicProvider struct {
	tiering
	config      models.ProviderConfig
	clientCache *clientcache.Cache[*anthropic.Client]
}

func NewAnthropicProvider(id models.ProviderID, cfg models.ProviderConfig, pricing *PricingTable) *AnthropicProvider {
	return &AnthropicProvider{
		tiering:     newTiering(id, cfg, anthropicDefaultModels, anthropicDefaultCutoffs, pricing),
		config:      cfg,
		clientCache: clientcache.NewCache[*anthropic.Client](),
	}
}

func (p *AnthropicProvider) client() (*anthropic.Client, error) {
	key := clientcache.Fingerprint(p.config.BaseURL, p.config.APIKey, p.config.Headers)
	return p.clientCache.GetOrCreate(key, func() (*anthropic.Client, error) {
		fiberlog.Debugf("Creating new Anthropic client (config hash: %s)", key[:8])
		opts := []option.RequestOption{
			option.WithAPIKey(p.config.APIKey),
			option.WithMaxRetries(0),
		}
		if p.config.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(p.config.BaseURL))
		}
		for k, v := range p.config.Headers {
			opts = append(opts, option.WithHeader(k, v))
		}
		client := anthropic.NewClient(opts...)
		return &client, nil
	})
}

func (p *AnthropicProvider) params(req models.GenerateRequest) anthropic.MessageNewParams {
	var system []string
	if req.SystemPrompt != "" {
		system = append(system, req.SystemPrompt)
	}

	messages := make([]anthropic.MessageParam, 0, len(req.History)+1)
	for _, m := range req.History {
		switch m.Role {
		case models.RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		case models.RoleSystem:
			// Claude takes system text out of band
			system = append(system, m.Content)
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)))

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = models.DefaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(req.Model),
		MaxTokens:   int64(maxTokens),
		Messages:    messages,
		Temperature: anthropic.Float(req.Temperature),
	}
	if len(system) > 0 {
		params.System = []anthropic.TextBlockParam{{Text: strings.Join(system, "\n\n")}}
	}
	return params
}

func (p *AnthropicProvider) Generate(ctx context.Context, req models.GenerateRequest) (*models.GenerationResult, error) {
	client, err := p.client()
	if err != nil {
		return nil, models.NewProviderHardError(p.id, "client construction failed", err)
	}

	ctx, cancel := p.callContext(ctx)
	defer cancel()

	fiberlog.Infof("[%s] Making non-streaming Anthropic request - model: %s, max_tokens: %d", req.RequestID, req.Model, req.MaxTokens)
	started := time.Now()
	message, err := client.Messages.New(ctx, p.params(req))
	if err != nil {
		fiberlog.Errorf("[%s] Anthropic request failed after %v: %v", req.RequestID, time.Since(started), err)
		return nil, ClassifyError(p.id, err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return p.result(text.String(), req.Model, string(message.Model),
		int(message.Usage.InputTokens), int(message.Usage.OutputTokens), started), nil
}

func (p *AnthropicProvider) GenerateStream(ctx context.Context, req models.GenerateRequest) (<-chan models.StreamDelta, error) {
	client, err := p.client()
	if err != nil {
		return nil, models.NewProviderHardError(p.id, "client construction failed", err)
	}

	fiberlog.Infof("[%s] Making streaming Anthropic request - model: %s", req.RequestID, req.Model)
	stream := client.Messages.NewStreaming(ctx, p.params(req))
	return startStream(ctx, p.id, &anthropicDeltaSource{stream: stream}, p.streamBuffer)
}

func (p *AnthropicProvider) IsAvailable(ctx context.Context) bool {
	client, err := p.client()
	if err != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, availabilityCheckWindow)
	defer cancel()

	if _, err := client.Models.List(ctx, anthropic.ModelListParams{}); err != nil {
		fiberlog.Warnf("Provider %s availability check failed: %v", p.id, err)
		return false
	}
	return true
}

type anthropicDeltaSource struct {
	stream *ssestream.Stream[anthropic.MessageStreamEventUnion]
}

func (s *anthropicDeltaSource) Next() bool   { return s.stream.Next() }
func (s *anthropicDeltaSource) Err() error   { return s.stream.Err() }
func (s *anthropicDeltaSource) Close() error { return s.stream.Close() }

func (s *anthropicDeltaSource) Delta() string {
	event := s.stream.Current()
	if event.Type != "content_block_delta" || event.Delta.Type != "text_delta" {
		return ""
	}
	return event.Delta.Text
}
