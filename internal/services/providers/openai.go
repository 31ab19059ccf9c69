package providers

import (
	"context"
	"strings"
	"time"

	"github.com/Egham-7/adaptive-gateway/internal/models"
	"github.com/Egham-7/adaptive-gateway/internal/utils/clientcache"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/packages/ssestream"
)

var (
	openAIDefaultModels = models.ProviderModels{
		Weak:   "gpt-4o-mini",
		Medium: "gpt-4o",
		Strong: "gpt-5",
	}
	openAIDefaultCutoffs = models.ComplexityCutoffs{Weak: 0.3, Medium: 0.7}
)

// OpenAIProvider serves OpenAI and any OpenAI-compatible endpoint
type OpenAIProvider struct {
	tiering
	config      models.ProviderConfig
	clientCache *clientcache.Cache[*openai.Client]
}

// NewOpenAIProvider creates an adapter registered under id
func NewOpenAIProvider(id models.ProviderID, cfg models.ProviderConfig, pricing *PricingTable) *OpenAIProvider {
	return &OpenAIProvider{
		tiering:     newTiering(id, cfg, openAIDefaultModels, openAIDefaultCutoffs, pricing),
		config:      cfg,
		clientCache: clientcache.NewCache[*openai.Client](),
	}
}

func (p *OpenAIProvider) client() (*openai.Client, error) {
	key := clientcache.Fingerprint(p.config.BaseURL, p.config.APIKey, p.config.Headers)
	return p.clientCache.GetOrCreate(key, func() (*openai.Client, error) {
		fiberlog.Debugf("Creating new OpenAI client for %s (config hash: %s)", p.id, key[:8])
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
		client := openai.NewClient(opts...)
		return &client, nil
	})
}

func (p *OpenAIProvider) params(req models.GenerateRequest) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	for _, m := range req.History {
		switch m.Role {
		case models.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		case models.RoleSystem:
			messages = append(messages, openai.SystemMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if supportsTemperature(req.Model) {
		params.Temperature = openai.Float(req.Temperature)
	}
	return params
}

func (p *OpenAIProvider) Generate(ctx context.Context, req models.GenerateRequest) (*models.GenerationResult, error) {
	client, err := p.client()
	if err != nil {
		return nil, models.NewProviderHardError(p.id, "client construction failed", err)
	}

	ctx, cancel := p.callContext(ctx)
	defer cancel()

	fiberlog.Infof("[%s] Making non-streaming %s request - model: %s", req.RequestID, p.id, req.Model)
	started := time.Now()
	resp, err := client.Chat.Completions.New(ctx, p.params(req))
	if err != nil {
		fiberlog.Errorf("[%s] %s request failed after %v: %v", req.RequestID, p.id, time.Since(started), err)
		return nil, ClassifyError(p.id, err)
	}
	if len(resp.Choices) == 0 {
		return nil, models.NewProviderTransientError(p.id, "response contained no choices", nil)
	}

	return p.result(resp.Choices[0].Message.Content, req.Model, resp.Model,
		int(resp.Usage.PromptTokens), int(resp.Usage.CompletionTokens), started), nil
}

func (p *OpenAIProvider) GenerateStream(ctx context.Context, req models.GenerateRequest) (<-chan models.StreamDelta, error) {
	client, err := p.client()
	if err != nil {
		return nil, models.NewProviderHardError(p.id, "client construction failed", err)
	}

	fiberlog.Infof("[%s] Making streaming %s request - model: %s", req.RequestID, p.id, req.Model)
	stream := client.Chat.Completions.NewStreaming(ctx, p.params(req))
	return startStream(ctx, p.id, &openAIDeltaSource{stream: stream}, p.streamBuffer)
}

func (p *OpenAIProvider) IsAvailable(ctx context.Context) bool {
	client, err := p.client()
	if err != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, availabilityCheckWindow)
	defer cancel()

	if _, err := client.Models.List(ctx); err != nil {
		fiberlog.Warnf("Provider %s availability check failed: %v", p.id, err)
		return false
	}
	return true
}

// Reasoning models only accept the default temperature
func supportsTemperature(model string) bool {
	for _, prefix := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(model, prefix) {
			return false
		}
	}
	return true
}

type openAIDeltaSource struct {
	stream *ssestream.Stream[openai.ChatCompletionChunk]
}

func (s *openAIDeltaSource) Next() bool   { return s.stream.Next() }
func (s *openAIDeltaSource) Err() error   { return s.stream.Err() }
func (s *openAIDeltaSource) Close() error { return s.stream.Close() }

func (s *openAIDeltaSource) Delta() string {
	chunk := s.stream.Current()
	if len(chunk.Choices) == 0 {
		return ""
	}
	return chunk.Choices[0].Delta.Content
}
