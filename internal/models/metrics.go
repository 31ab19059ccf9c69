package models

import "time"

// HealthStatus is the derived state of a provider over a window
type HealthStatus string

const (
	HealthStatusHealthy  HealthStatus = "HEALTHY"
	HealthStatusDegraded HealthStatus = "DEGRADED"
	HealthStatusDown     HealthStatus = "DOWN"
)

// AlertSeverity ranks an alert
type AlertSeverity string

const (
	AlertSeverityWarning  AlertSeverity = "warning"
	AlertSeverityCritical AlertSeverity = "critical"
)

// ProviderMetric is one append-only provider call outcome
type ProviderMetric struct {
	ID        uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	Provider  ProviderID `gorm:"size:50;not null;index:idx_metric_provider_time" json:"provider"`
	Model     string     `gorm:"size:100;not null;index" json:"model"`
	LatencyMs int64      `gorm:"not null;default:0" json:"latency_ms"`
	CostUSD   float64    `gorm:"not null;default:0" json:"cost_usd"`
	Success   bool       `gorm:"not null" json:"success"`
	ErrorCode string     `gorm:"size:64;default:''" json:"error_code,omitzero"`
	UserID    string     `gorm:"size:255;default:''" json:"user_id,omitzero"`
	RequestID *string    `gorm:"size:255;uniqueIndex" json:"request_id,omitempty"`
	TokensIn  int        `gorm:"not null;default:0" json:"tokens_in"`
	TokensOut int        `gorm:"not null;default:0" json:"tokens_out"`
	CreatedAt time.Time  `gorm:"autoCreateTime;index:idx_metric_provider_time" json:"created_at"`
}

// MetricInput is what callers hand to the metrics service
type MetricInput struct {
	Provider  ProviderID
	Model     string
	LatencyMs int64
	CostUSD   float64
	Success   bool
	ErrorCode string
	UserID    string
	RequestID string
	TokensIn  int
	TokensOut int
}

// ProviderHealth summarizes one provider over a lookback window
type ProviderHealth struct {
	Provider      ProviderID   `json:"provider"`
	Status        HealthStatus `json:"status"`
	TotalRequests int64        `json:"total_requests"`
	ErrorRate     float64      `json:"error_rate"`
	AvgLatencyMs  float64      `json:"avg_latency_ms"`
}

// ProviderStats are per-provider dashboard aggregates
type ProviderStats struct {
	Provider      ProviderID `json:"provider"`
	TotalRequests int64      `json:"total_requests"`
	SuccessCount  int64      `json:"success_count"`
	ErrorCount    int64      `json:"error_count"`
	ErrorRate     float64    `json:"error_rate"`
	AvgLatencyMs  float64    `json:"avg_latency_ms"`
	TotalCostUSD  float64    `json:"total_cost_usd"`
	TotalTokens   int64      `json:"total_tokens"`
}

// ModelStats ranks models by request volume
type ModelStats struct {
	Provider      ProviderID `json:"provider"`
	Model         string     `json:"model"`
	TotalRequests int64      `json:"total_requests"`
	TotalCostUSD  float64    `json:"total_cost_usd"`
}

// OverallStats aggregates every provider
type OverallStats struct {
	TotalRequests int64   `json:"total_requests"`
	TotalCostUSD  float64 `json:"total_cost_usd"`
	AvgLatencyMs  float64 `json:"avg_latency_ms"`
	ErrorRate     float64 `json:"error_rate"`
}

// DashboardMetrics is the dashboard aggregate for a time window
type DashboardMetrics struct {
	Since       time.Time       `json:"since"`
	PerProvider []ProviderStats `json:"per_provider"`
	TopModels   []ModelStats    `json:"top_models"`
	Overall     OverallStats    `json:"overall"`
}

// AlertThresholds configures alert evaluation
type AlertThresholds struct {
	Enabled         bool    `json:"enabled" yaml:"enabled"`
	ErrorRate       float64 `json:"error_rate,omitzero" yaml:"error_rate,omitempty"`
	LatencyMs       float64 `json:"latency_ms,omitzero" yaml:"latency_ms,omitempty"`
	LookbackMinutes int     `json:"lookback_minutes,omitzero" yaml:"lookback_minutes,omitempty"`
}

// Alert is a threshold breach for one provider
type Alert struct {
	Provider ProviderID    `json:"provider"`
	Reason   string        `json:"reason"`
	Severity AlertSeverity `json:"severity"`
}

// MetricsConfig holds metrics recording configuration
type MetricsConfig struct {
	Workers    int             `json:"workers,omitzero" yaml:"workers,omitempty"`
	BufferSize int             `json:"buffer_size,omitzero" yaml:"buffer_size,omitempty"`
	Alerting   AlertThresholds `json:"alerting" yaml:"alerting,omitempty"`
}
