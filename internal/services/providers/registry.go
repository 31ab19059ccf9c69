package providers

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Egham-7/adaptive-gateway/internal/models"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

// builtinOrder fixes the position of the first-class providers; extra
// OpenAI-compatible providers follow in name order.
var builtinOrder = []models.ProviderID{
	models.ProviderOpenAI,
	models.ProviderClaude,
	models.ProviderGemini,
}

// Registry holds every configured provider adapter keyed by id
type Registry struct {
	providers map[models.ProviderID]Provider
	order     []models.ProviderID
	pricing   *PricingTable
}

// NewRegistry creates an empty registry sharing one pricing table
func NewRegistry(pricing *PricingTable) *Registry {
	if pricing == nil {
		pricing = NewPricingTable()
	}
	return &Registry{
		providers: make(map[models.ProviderID]Provider),
		pricing:   pricing,
	}
}

// NewRegistryFromConfig builds adapters for every configured provider.
// Providers without an API key are skipped with a warning.
func NewRegistryFromConfig(configs map[string]models.ProviderConfig, pricing *PricingTable) (*Registry, error) {
	r := NewRegistry(pricing)

	names := make([]string, 0, len(configs))
	for name := range configs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		cfg := configs[name]
		if cfg.APIKey == "" {
			fiberlog.Warnf("Provider %s has no API key configured, skipping", name)
			continue
		}
		p, err := r.build(models.ProviderID(name), cfg)
		if err != nil {
			return nil, err
		}
		r.Register(p)
	}

	if len(r.providers) == 0 {
		return nil, fmt.Errorf("no providers configured")
	}
	fiberlog.Infof("Provider registry initialized with %d providers: %v", len(r.order), r.order)
	return r, nil
}

func (r *Registry) build(id models.ProviderID, cfg models.ProviderConfig) (Provider, error) {
	kind := strings.ToLower(cfg.Type)
	if kind == "" {
		kind = string(id)
	}
	switch kind {
	case "openai":
		return NewOpenAIProvider(id, cfg, r.pricing), nil
	case "claude", "anthropic":
		return NewAnthropicProvider(id, cfg, r.pricing), nil
	case "gemini", "google":
		return NewGeminiProvider(id, cfg, r.pricing), nil
	default:
		if cfg.BaseURL != "" {
			// Unknown ids with an endpoint are assumed to speak the OpenAI protocol.
			return NewOpenAIProvider(id, cfg, r.pricing), nil
		}
		return nil, fmt.Errorf("provider %s: unsupported type %q", id, kind)
	}
}

// Register adds or replaces a provider
func (r *Registry) Register(p Provider) {
	if _, exists := r.providers[p.ID()]; !exists {
		r.order = append(r.order, p.ID())
	}
	r.providers[p.ID()] = p
	r.sortOrder()
}

func (r *Registry) sortOrder() {
	rank := func(id models.ProviderID) int {
		for i, b := range builtinOrder {
			if b == id {
				return i
			}
		}
		return len(builtinOrder)
	}
	sort.SliceStable(r.order, func(i, j int) bool {
		ri, rj := rank(r.order[i]), rank(r.order[j])
		if ri != rj {
			return ri < rj
		}
		return r.order[i] < r.order[j]
	})
}

// Get returns the provider registered under id
func (r *Registry) Get(id models.ProviderID) (Provider, bool) {
	p, ok := r.providers[id]
	return p, ok
}

// IDs returns provider ids, built-in providers first
func (r *Registry) IDs() []models.ProviderID {
	out := make([]models.ProviderID, len(r.order))
	copy(out, r.order)
	return out
}

// Ordered returns the providers in IDs order
func (r *Registry) Ordered() []Provider {
	out := make([]Provider, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.providers[id])
	}
	return out
}

func (r *Registry) Len() int {
	return len(r.providers)
}

func (r *Registry) Pricing() *PricingTable {
	return r.pricing
}
