package providers

import (
	"context"
	"fmt"
	"iter"
	"net/http"
	"time"

	"github.com/Egham-7/adaptive-gateway/internal/models"
	"github.com/Egham-7/adaptive-gateway/internal/utils/clientcache"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"google.golang.org/genai"
)

var (
	geminiDefaultModels = models.ProviderModels{
		Weak:   "gemini-2.5-flash-lite",
		Medium: "gemini-2.5-flash",
		Strong: "gemini-2.5-pro",
	}
	geminiDefaultCutoffs = models.ComplexityCutoffs{Weak: 0.3, Medium: 0.7}
)

// GeminiProvider serves Google Gemini models through the GenAI SDK
type GeminiProvider struct {
	tiering
	config      models.ProviderConfig
	clientCache *clientcache.Cache[*genai.Client]
}

func NewGeminiProvider(id models.ProviderID, cfg models.ProviderConfig, pricing *PricingTable) *GeminiProvider {
	return &GeminiProvider{
		tiering:     newTiering(id, cfg, geminiDefaultModels, geminiDefaultCutoffs, pricing),
		config:      cfg,
		clientCache: clientcache.NewCache[*genai.Client](),
	}
}

func (p *GeminiProvider) client(ctx context.Context) (*genai.Client, error) {
	key := clientcache.Fingerprint(p.config.BaseURL, p.config.APIKey, p.config.Headers)
	return p.clientCache.GetOrCreate(key, func() (*genai.Client, error) {
		fiberlog.Debugf("Creating new Gemini client (config hash: %s)", key[:8])
		httpOpts := genai.HTTPOptions{BaseURL: p.config.BaseURL}
		if len(p.config.Headers) > 0 {
			httpOpts.Headers = http.Header{}
			for k, v := range p.config.Headers {
				httpOpts.Headers.Set(k, v)
			}
		}
		client, err := genai.NewClient(context.WithoutCancel(ctx), &genai.ClientConfig{
			APIKey:      p.config.APIKey,
			Backend:     genai.BackendGeminiAPI,
			HTTPOptions: httpOpts,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		return client, nil
	})
}

func (p *GeminiProvider) request(req models.GenerateRequest) ([]*genai.Content, *genai.GenerateContentConfig) {
	contents := make([]*genai.Content, 0, len(req.History)+1)
	system := req.SystemPrompt
	for _, m := range req.History {
		switch m.Role {
		case models.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		case models.RoleSystem:
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	contents = append(contents, genai.NewContentFromText(req.Prompt, genai.RoleUser))

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	return contents, cfg
}

func (p *GeminiProvider) Generate(ctx context.Context, req models.GenerateRequest) (*models.GenerationResult, error) {
	client, err := p.client(ctx)
	if err != nil {
		return nil, models.NewProviderHardError(p.id, "client construction failed", err)
	}

	ctx, cancel := p.callContext(ctx)
	defer cancel()

	fiberlog.Infof("[%s] Making non-streaming Gemini request - model: %s", req.RequestID, req.Model)
	contents, cfg := p.request(req)
	started := time.Now()
	resp, err := client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		fiberlog.Errorf("[%s] Gemini request failed after %v: %v", req.RequestID, time.Since(started), err)
		return nil, ClassifyError(p.id, err)
	}

	var promptTokens, completionTokens int
	if resp.UsageMetadata != nil {
		promptTokens = int(resp.UsageMetadata.PromptTokenCount)
		completionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return p.result(resp.Text(), req.Model, resp.ModelVersion, promptTokens, completionTokens, started), nil
}

func (p *GeminiProvider) GenerateStream(ctx context.Context, req models.GenerateRequest) (<-chan models.StreamDelta, error) {
	client, err := p.client(ctx)
	if err != nil {
		return nil, models.NewProviderHardError(p.id, "client construction failed", err)
	}

	fiberlog.Infof("[%s] Making streaming Gemini request - model: %s", req.RequestID, req.Model)
	contents, cfg := p.request(req)
	seq := client.Models.GenerateContentStream(ctx, req.Model, contents, cfg)
	return startStream(ctx, p.id, newGeminiDeltaSource(seq), p.streamBuffer)
}

func (p *GeminiProvider) IsAvailable(ctx context.Context) bool {
	client, err := p.client(ctx)
	if err != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, availabilityCheckWindow)
	defer cancel()

	if _, err := client.Models.List(ctx, &genai.ListModelsConfig{PageSize: 1}); err != nil {
		fiberlog.Warnf("Provider %s availability check failed: %v", p.id, err)
		return false
	}
	return true
}

// geminiDeltaSource turns the SDK's push iterator into a pull iterator
type geminiDeltaSource struct {
	next    func() (*genai.GenerateContentResponse, error, bool)
	stop    func()
	current *genai.GenerateContentResponse
	err     error
}

func newGeminiDeltaSource(seq iter.Seq2[*genai.GenerateContentResponse, error]) *geminiDeltaSource {
	next, stop := iter.Pull2(seq)
	return &geminiDeltaSource{next: next, stop: stop}
}

func (s *geminiDeltaSource) Next() bool {
	if s.err != nil {
		return false
	}
	resp, err, ok := s.next()
	if !ok {
		return false
	}
	if err != nil {
		s.err = err
		return false
	}
	s.current = resp
	return true
}

func (s *geminiDeltaSource) Delta() string {
	if s.current == nil {
		return ""
	}
	return s.current.Text()
}

func (s *geminiDeltaSource) Err() error { return s.err }

func (s *geminiDeltaSource) Close() error {
	s.stop()
	return nil
}
