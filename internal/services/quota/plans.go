package quota

import "github.com/Egham-7/adaptive-gateway/internal/models"

var defaultPlans = map[models.PlanTier]models.PlanLimits{
	models.PlanFree:       {MonthlyTokenLimit: 50_000, PerRequestMaxTokens: 8_000},
	models.PlanPro:        {MonthlyTokenLimit: 1_000_000, PerRequestMaxTokens: 32_000},
	models.PlanEnterprise: {MonthlyTokenLimit: 10_000_000, PerRequestMaxTokens: 128_000},
}

// Plans resolves the limits of each tier
type Plans map[models.PlanTier]models.PlanLimits

// DefaultPlans returns a fresh copy of the built-in plan table
func DefaultPlans() Plans {
	p := make(Plans, len(defaultPlans))
	for tier, limits := range defaultPlans {
		p[tier] = limits
	}
	return p
}

// PlansFromConfig overlays configured limits on the defaults. Zero fields keep the default.
func PlansFromConfig(cfg models.QuotaConfig) Plans {
	p := DefaultPlans()
	for tier, override := range cfg.Plans {
		limits := p[tier]
		if override.MonthlyTokenLimit > 0 {
			limits.MonthlyTokenLimit = override.MonthlyTokenLimit
		}
		if override.PerRequestMaxTokens > 0 {
			limits.PerRequestMaxTokens = override.PerRequestMaxTokens
		}
		p[tier] = limits
	}
	return p
}

// Limits returns the limits of tier. Unknown tiers get the free plan.
func (p Plans) Limits(tier models.PlanTier) models.PlanLimits {
	if limits, ok := p[tier]; ok {
		return limits
	}
	return p[models.PlanFree]
}
