package models

// ProviderConfig holds configuration for one upstream provider
type ProviderConfig struct {
	// Type selects the adapter; empty means infer from the provider id.
	// "openai" registers an OpenAI-compatible endpoint under any id.
	Type      string            `yaml:"type" json:"type,omitzero"`
	APIKey    string            `yaml:"api_key" json:"api_key,omitzero"`
	BaseURL   string            `yaml:"base_url" json:"base_url,omitzero"`     // Optional custom base URL
	TimeoutMs int               `yaml:"timeout_ms" json:"timeout_ms,omitzero"` // Optional timeout in milliseconds
	Headers   map[string]string `yaml:"headers" json:"headers,omitzero"`       // Optional custom headers

	Models     ProviderModels          `yaml:"models" json:"models,omitzero"`
	Thresholds ComplexityCutoffs       `yaml:"thresholds" json:"thresholds,omitzero"`
	Pricing    map[string]ModelPricing `yaml:"pricing" json:"pricing,omitzero"`
}

// ProviderModels names the model used for each complexity tier
type ProviderModels struct {
	Weak   string `yaml:"weak" json:"weak,omitzero"`
	Medium string `yaml:"medium" json:"medium,omitzero"`
	Strong string `yaml:"strong" json:"strong,omitzero"`
}

// ComplexityCutoffs are the upper bounds (exclusive) of the weak and medium tiers
type ComplexityCutoffs struct {
	Weak   float64 `yaml:"weak" json:"weak,omitzero"`
	Medium float64 `yaml:"medium" json:"medium,omitzero"`
}
