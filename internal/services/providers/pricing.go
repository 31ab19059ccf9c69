package providers

import (
	"strings"
	"sync"

	"github.com/Egham-7/adaptive-gateway/internal/models"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

// ModelPrices maps model name to per-million-token pricing
type ModelPrices map[string]models.ModelPricing

// defaultPricing is USD per million tokens (input, output)
var defaultPricing = map[models.ProviderID]ModelPrices{
	models.ProviderOpenAI: {
		"gpt-5":        {InputTokenCost: 1.25, OutputTokenCost: 10.0},
		"gpt-5-mini":   {InputTokenCost: 0.25, OutputTokenCost: 2.0},
		"gpt-5-nano":   {InputTokenCost: 0.05, OutputTokenCost: 0.4},
		"gpt-4.1":      {InputTokenCost: 2.0, OutputTokenCost: 8.0},
		"gpt-4.1-mini": {InputTokenCost: 0.4, OutputTokenCost: 1.6},
		"gpt-4o":       {InputTokenCost: 2.5, OutputTokenCost: 10.0},
		"gpt-4o-mini":  {InputTokenCost: 0.15, OutputTokenCost: 0.6},
		"o4-mini":      {InputTokenCost: 1.1, OutputTokenCost: 4.4},
	},
	models.ProviderClaude: {
		"claude-opus-4-1-20250805":   {InputTokenCost: 15.0, OutputTokenCost: 75.0},
		"claude-sonnet-4-5-20250929": {InputTokenCost: 3.0, OutputTokenCost: 15.0},
		"claude-3-7-sonnet-20250219": {InputTokenCost: 3.0, OutputTokenCost: 15.0},
		"claude-3-5-haiku-20241022":  {InputTokenCost: 0.8, OutputTokenCost: 4.0},
	},
	models.ProviderGemini: {
		"gemini-2.5-pro":        {InputTokenCost: 1.25, OutputTokenCost: 10.0},
		"gemini-2.5-flash":      {InputTokenCost: 0.3, OutputTokenCost: 2.5},
		"gemini-2.5-flash-lite": {InputTokenCost: 0.1, OutputTokenCost: 0.4},
		"gemini-2.0-flash":      {InputTokenCost: 0.1, OutputTokenCost: 0.4},
	},
	"deepseek": {
		"deepseek-chat":     {InputTokenCost: 0.27, OutputTokenCost: 1.1},
		"deepseek-reasoner": {InputTokenCost: 0.55, OutputTokenCost: 2.19},
	},
	"groq": {
		"llama-3.3-70b-versatile": {InputTokenCost: 0.59, OutputTokenCost: 0.79},
		"llama-3.1-8b-instant":    {InputTokenCost: 0.05, OutputTokenCost: 0.08},
	},
}

// PricingTable resolves per-model token prices. Unknown models cost nothing.
type PricingTable struct {
	mu     sync.RWMutex
	prices map[models.ProviderID]ModelPrices
	warned map[string]struct{}
}

// NewPricingTable creates a table seeded with the built-in prices
func NewPricingTable() *PricingTable {
	t := &PricingTable{
		prices: make(map[models.ProviderID]ModelPrices, len(defaultPricing)),
		warned: make(map[string]struct{}),
	}
	for provider, prices := range defaultPricing {
		t.Merge(provider, prices)
	}
	return t
}

// Merge adds or overrides prices for a provider
func (t *PricingTable) Merge(provider models.ProviderID, prices map[string]models.ModelPricing) {
	t.mu.Lock()
	defer t.mu.Unlock()

	existing, ok := t.prices[provider]
	if !ok {
		existing = make(ModelPrices, len(prices))
		t.prices[provider] = existing
	}
	for model, p := range prices {
		existing[model] = p
	}
}

// Lookup returns the pricing of a model. Dated snapshots such as
// "gpt-4o-mini-2024-07-18" resolve to the longest priced base name.
func (t *PricingTable) Lookup(provider models.ProviderID, model string) (models.ModelPricing, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	prices := t.prices[provider]
	if p, ok := prices[model]; ok {
		return p, true
	}

	var best string
	for name := range prices {
		if len(name) > len(best) && strings.HasPrefix(model, name+"-") {
			best = name
		}
	}
	if best == "" {
		return models.ModelPricing{}, false
	}
	return prices[best], true
}

// Cost returns the USD cost of a generation
func (t *PricingTable) Cost(provider models.ProviderID, model string, promptTokens, completionTokens int) float64 {
	p, ok := t.Lookup(provider, model)
	if !ok {
		t.warnOnce(provider, model)
		return 0
	}
	return (float64(promptTokens)*p.InputTokenCost + float64(completionTokens)*p.OutputTokenCost) / 1_000_000
}

func (t *PricingTable) warnOnce(provider models.ProviderID, model string) {
	key := string(provider) + "/" + model
	t.mu.Lock()
	_, seen := t.warned[key]
	t.warned[key] = struct{}{}
	t.mu.Unlock()
	if !seen {
		fiberlog.Debugf("Pricing: no price for %s, cost reported as 0", key)
	}
}
