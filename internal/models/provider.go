package models

// ProviderID identifies an upstream model provider
type ProviderID string

const (
	ProviderOpenAI ProviderID = "openai"
	ProviderClaude ProviderID = "claude"
	ProviderGemini ProviderID = "gemini"
)

// ModelTier is the capability band a model is selected for
type ModelTier string

const (
	ModelTierWeak   ModelTier = "weak"
	ModelTierMedium ModelTier = "medium"
	ModelTierStrong ModelTier = "strong"
)

// ModelPricing holds the cost per million tokens for a model
type ModelPricing struct {
	InputTokenCost  float64 `json:"input_token_cost" yaml:"input_token_cost"`
	OutputTokenCost float64 `json:"output_token_cost" yaml:"output_token_cost"`
}

// ModelInfo describes a concrete model served by exactly one provider
type ModelInfo struct {
	Provider ProviderID   `json:"provider"`
	Model    string       `json:"model"`
	Tier     ModelTier    `json:"tier"`
	Pricing  ModelPricing `json:"pricing"`
}
