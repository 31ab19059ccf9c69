package models

import "time"

// Role of a chat message author
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one turn of conversation history
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 1024
)

// RequestOptions enumerates every option accepted by the gateway entry points.
// Zero values mean "use the default".
type RequestOptions struct {
	Temperature    *float64      `json:"temperature,omitempty"`
	MaxTokens      int           `json:"max_tokens,omitzero"`
	SystemPrompt   string        `json:"system_prompt,omitzero"`
	ForceProvider  ProviderID    `json:"force_provider,omitzero"`
	ForceModel     string        `json:"force_model,omitzero"`
	UserID         string        `json:"user_id,omitzero"`
	RequestID      string        `json:"request_id,omitzero"`
	SkipCache      bool          `json:"skip_cache,omitzero"`
	ConversationID string        `json:"conversation_id,omitzero"`
	History        []ChatMessage `json:"history,omitzero"`
}

// EffectiveTemperature returns the requested temperature or the default
func (o RequestOptions) EffectiveTemperature() float64 {
	if o.Temperature != nil {
		return *o.Temperature
	}
	return DefaultTemperature
}

// EffectiveMaxTokens returns the requested completion budget or the default
func (o RequestOptions) EffectiveMaxTokens() int {
	if o.MaxTokens > 0 {
		return o.MaxTokens
	}
	return DefaultMaxTokens
}

// GenerateRequest is what a provider adapter receives for one attempt
type GenerateRequest struct {
	Model        string
	Prompt       string
	SystemPrompt string
	History      []ChatMessage
	Temperature  float64
	MaxTokens    int
	RequestID    string
}

// Usage reports token consumption and cost of one generation
type Usage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	CostUSD          float64 `json:"cost_usd"`
}

// TotalTokens returns prompt plus completion tokens
func (u Usage) TotalTokens() int {
	return u.PromptTokens + u.CompletionTokens
}

// GenerationResult is produced once per successful attempt and never mutated afterwards
type GenerationResult struct {
	Content    string        `json:"content"`
	Usage      Usage         `json:"usage"`
	Provider   ProviderID    `json:"provider"`
	Model      string        `json:"model"`
	LatencyMs  int64         `json:"latency_ms"`
	Cached     bool          `json:"cached"`
	Complexity float64       `json:"complexity"`
	RequestID  string        `json:"request_id,omitzero"`
	Warnings   []string      `json:"warnings,omitzero"`
	CreatedAt  time.Time     `json:"created_at"`
	Duration   time.Duration `json:"-"`
}

// StreamDelta is one element of a streamed generation. A delta with a
// non-nil Err is always the last element sent on the channel.
type StreamDelta struct {
	Text string
	Err  error
}
