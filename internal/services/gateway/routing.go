package gateway

import (
	"errors"
	"slices"

	"github.com/Egham-7/adaptive-gateway/internal/models"
	"github.com/Egham-7/adaptive-gateway/internal/services/circuitbreaker"
	"github.com/Egham-7/adaptive-gateway/internal/services/providers"
	"github.com/Egham-7/adaptive-gateway/internal/utils"
)

// complexityPivot splits cheap-first from quality-first ordering
const complexityPivot = 0.5

var (
	cheapFirst   = []models.ProviderID{models.ProviderOpenAI, models.ProviderClaude, models.ProviderGemini}
	qualityFirst = []models.ProviderID{models.ProviderClaude, models.ProviderOpenAI, models.ProviderGemini}
)

// candidate is one provider and the model it will be asked for. ticket is
// set on the candidate that served the request.
type candidate struct {
	provider providers.Provider
	model    string
	ticket   circuitbreaker.Ticket
}

func (c candidate) id() models.ProviderID {
	return c.provider.ID()
}

// PreferenceOrder returns the fallback order of registered providers.
// A registered forced provider always comes first; providers outside the
// built-in three keep registry order at the end.
func PreferenceOrder(score float64, forced models.ProviderID, registry *providers.Registry) []models.ProviderID {
	base := qualityFirst
	if score < complexityPivot {
		base = cheapFirst
	}

	order := make([]models.ProviderID, 0, registry.Len())
	if _, ok := registry.Get(forced); ok && forced != "" {
		order = append(order, forced)
	}
	for _, id := range base {
		if _, ok := registry.Get(id); ok && !slices.Contains(order, id) {
			order = append(order, id)
		}
	}
	for _, id := range registry.IDs() {
		if !slices.Contains(order, id) {
			order = append(order, id)
		}
	}
	return order
}

// candidates resolves the ordered provider/model pairs for a request
func (g *Gateway) candidates(score float64, opts models.RequestOptions) ([]candidate, error) {
	if g.registry == nil || g.registry.Len() == 0 {
		return nil, models.NewAllProvidersFailedError(0, errors.New("no providers registered"))
	}

	forcedProvider := models.ProviderID(utils.CanonicalProvider(string(opts.ForceProvider)))
	var forcedModel string
	if opts.ForceModel != "" {
		provider, model, err := utils.ParseForcedModel(opts.ForceModel, func(p string) bool {
			_, ok := g.registry.Get(models.ProviderID(p))
			return ok
		})
		if err != nil {
			return nil, models.NewValidationError("invalid force_model", err)
		}
		forcedModel = model
		if forcedProvider == "" {
			forcedProvider = models.ProviderID(provider)
		}
	}
	if forcedProvider == "" && forcedModel != "" {
		forcedProvider = g.ownerOf(forcedModel)
	}

	order := PreferenceOrder(score, forcedProvider, g.registry)
	out := make([]candidate, 0, len(order))
	for i, id := range order {
		p, _ := g.registry.Get(id)
		model := p.ModelForComplexity(score)
		// A forced model applies to the forced provider, or to the primary when the owner is unknown.
		if forcedModel != "" && (id == forcedProvider || (i == 0 && forcedProvider == "")) {
			model = forcedModel
		}
		out = append(out, candidate{provider: p, model: model})
	}
	return out, nil
}

// ownerOf finds the provider whose price list names model
func (g *Gateway) ownerOf(model string) models.ProviderID {
	for _, id := range g.registry.IDs() {
		if _, ok := g.registry.Pricing().Lookup(id, model); ok {
			return id
		}
	}
	return ""
}
