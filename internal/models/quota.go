package models

import "time"

// PlanTier is a subscription level with its own token limits
type PlanTier string

const (
	PlanFree       PlanTier = "free"
	PlanPro        PlanTier = "pro"
	PlanEnterprise PlanTier = "enterprise"
)

// PlanLimits are the token ceilings of a plan tier
type PlanLimits struct {
	MonthlyTokenLimit   int64 `json:"monthly_token_limit" yaml:"monthly_token_limit"`
	PerRequestMaxTokens int64 `json:"per_request_max_tokens" yaml:"per_request_max_tokens"`
}

// QuotaReason explains a rejected spend check
type QuotaReason string

const (
	QuotaReasonNoUser             QuotaReason = "NO_USER"
	QuotaReasonPerRequestTooLarge QuotaReason = "PER_REQUEST_TOO_LARGE"
	QuotaReasonOverLimit          QuotaReason = "OVER_LIMIT"
)

// User holds the quota state of one account
type User struct {
	ID               string    `gorm:"primaryKey;size:255" json:"id"`
	Plan             PlanTier  `gorm:"size:32;not null;default:'free'" json:"plan"`
	MonthlyTokenUsed int64     `gorm:"not null;default:0" json:"monthly_token_used"`
	UsagePeriodStart time.Time `gorm:"index" json:"usage_period_start"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// UsageRecord is the append-only system of record for token consumption.
// RequestID is nullable so requests without an idempotency key never collide.
type UsageRecord struct {
	ID        uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    string     `gorm:"size:255;not null;index;uniqueIndex:idx_usage_user_request" json:"user_id"`
	RequestID *string    `gorm:"size:255;uniqueIndex:idx_usage_user_request" json:"request_id,omitempty"`
	Provider  ProviderID `gorm:"size:50;default:''" json:"provider,omitzero"`
	Model     string     `gorm:"size:100;not null;index" json:"model"`
	TokensIn  int        `gorm:"not null;default:0" json:"tokens_in"`
	TokensOut int        `gorm:"not null;default:0" json:"tokens_out"`
	CostUSD   float64    `gorm:"not null;default:0" json:"cost_usd"`
	CreatedAt time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
}

// SpendCheck is the outcome of a quota pre-check
type SpendCheck struct {
	OK            bool        `json:"ok"`
	Reason        QuotaReason `json:"reason,omitzero"`
	Remaining     int64       `json:"remaining"`
	Limit         int64       `json:"limit"`
	WouldExceedBy int64       `json:"would_exceed_by,omitzero"`
	Plan          PlanTier    `json:"plan,omitzero"`
}

// RecordUsageParams describes one completed generation to bill
type RecordUsageParams struct {
	UserID    string
	RequestID string
	Provider  ProviderID
	Model     string
	TokensIn  int
	TokensOut int
	CostUSD   float64
}

// RecordUsageResult reports whether a record was written and the counter afterwards
type RecordUsageResult struct {
	Saved          bool  `json:"saved"`
	NewMonthlyUsed int64 `json:"new_monthly_used"`
}

// UsageSummary is the caller-facing view of a user's monthly consumption
type UsageSummary struct {
	Used      int64    `json:"used"`
	Limit     int64    `json:"limit"`
	Remaining int64    `json:"remaining"`
	Percent   float64  `json:"percent"`
	Plan      PlanTier `json:"plan"`
}

// QuotaConfig holds quota configuration
type QuotaConfig struct {
	Plans                map[PlanTier]PlanLimits `json:"plans,omitzero" yaml:"plans,omitempty"`
	ResetIntervalMinutes int                     `json:"reset_interval_minutes,omitzero" yaml:"reset_interval_minutes,omitempty"`
}
