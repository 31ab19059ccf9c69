package metrics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Egham-7/adaptive-gateway/internal/models"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

const (
	degradedErrorRate = 0.1
	downErrorRate     = 0.5
	topModelsLimit    = 5

	defaultLookbackMinutes = 15
	defaultAlertErrorRate  = 0.1
	defaultAlertLatencyMs  = 5000
)

// Service persists provider call outcomes and derives health from them
type Service struct {
	db        *gorm.DB
	providers []models.ProviderID
	now       func() time.Time
}

// NewService creates a metrics service. Known providers are always reported
// by GetProviderHealth, even without traffic.
func NewService(db *gorm.DB, providers []models.ProviderID) *Service {
	return &Service{db: db, providers: providers, now: time.Now}
}

// WithClock replaces the time source used for lookback windows
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) AutoMigrate() error {
	return s.db.AutoMigrate(&models.ProviderMetric{})
}

// RecordMetric stores one provider call outcome. Failures are logged, never
// returned, and a repeated request id is ignored.
func (s *Service) RecordMetric(ctx context.Context, input models.MetricInput) {
	metric := models.ProviderMetric{
		Provider:  input.Provider,
		Model:     input.Model,
		LatencyMs: input.LatencyMs,
		CostUSD:   input.CostUSD,
		Success:   input.Success,
		ErrorCode: input.ErrorCode,
		UserID:    input.UserID,
		TokensIn:  input.TokensIn,
		TokensOut: input.TokensOut,
		CreatedAt: s.now(),
	}
	if input.RequestID != "" {
		requestID := input.RequestID
		metric.RequestID = &requestID

		var existing int64
		if err := s.db.WithContext(ctx).Model(&models.ProviderMetric{}).
			Where("request_id = ?", requestID).
			Count(&existing).Error; err != nil {
			fiberlog.Warnf("[%s] Metrics: duplicate check failed: %v", requestID, err)
			return
		}
		if existing > 0 {
			fiberlog.Debugf("[%s] Metrics: metric already recorded, skipping", requestID)
			return
		}
	}

	if err := s.db.WithContext(ctx).Create(&metric).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			fiberlog.Debugf("[%s] Metrics: metric already recorded, skipping", input.RequestID)
			return
		}
		fiberlog.Warnf("[%s] Metrics: failed to record metric for %s: %v", input.RequestID, input.Provider, err)
	}
}

type providerAggregate struct {
	Provider      models.ProviderID
	TotalRequests int64
	ErrorCount    int64
	AvgLatencyMs  float64
	TotalLatency  float64
	TotalCostUSD  float64
	TotalTokens   int64
}

func (s *Service) aggregateByProvider(ctx context.Context, since time.Time) ([]providerAggregate, error) {
	var rows []providerAggregate
	err := s.db.WithContext(ctx).
		Model(&models.ProviderMetric{}).
		Where("created_at >= ?", since).
		Select(
			"provider",
			"COUNT(*) as total_requests",
			"COALESCE(SUM(CASE WHEN success THEN 0 ELSE 1 END), 0) as error_count",
			"COALESCE(AVG(latency_ms), 0) as avg_latency_ms",
			"COALESCE(SUM(latency_ms), 0) as total_latency",
			"COALESCE(SUM(cost_usd), 0) as total_cost_usd",
			"COALESCE(SUM(tokens_in + tokens_out), 0) as total_tokens",
		).
		Group("provider").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate provider metrics: %w", err)
	}
	return rows, nil
}

// StatusFor maps an error rate onto a health status
func StatusFor(totalRequests int64, errorRate float64) models.HealthStatus {
	switch {
	case totalRequests == 0:
		return models.HealthStatusHealthy
	case errorRate > downErrorRate:
		return models.HealthStatusDown
	case errorRate > degradedErrorRate:
		return models.HealthStatusDegraded
	default:
		return models.HealthStatusHealthy
	}
}

// GetProviderHealth reports every known provider plus any provider seen in the window
func (s *Service) GetProviderHealth(ctx context.Context, lookbackMinutes int) ([]models.ProviderHealth, error) {
	if lookbackMinutes <= 0 {
		lookbackMinutes = defaultLookbackMinutes
	}
	since := s.now().Add(-time.Duration(lookbackMinutes) * time.Minute)

	rows, err := s.aggregateByProvider(ctx, since)
	if err != nil {
		return nil, err
	}

	byProvider := make(map[models.ProviderID]providerAggregate, len(rows))
	for _, row := range rows {
		byProvider[row.Provider] = row
	}

	ids := s.orderedProviders(byProvider)
	health := make([]models.ProviderHealth, 0, len(ids))
	for _, id := range ids {
		row := byProvider[id]
		rate := errorRate(row.ErrorCount, row.TotalRequests)
		health = append(health, models.ProviderHealth{
			Provider:      id,
			Status:        StatusFor(row.TotalRequests, rate),
			TotalRequests: row.TotalRequests,
			ErrorRate:     rate,
			AvgLatencyMs:  row.AvgLatencyMs,
		})
	}
	return health, nil
}

func (s *Service) orderedProviders(seen map[models.ProviderID]providerAggregate) []models.ProviderID {
	ids := make([]models.ProviderID, 0, len(s.providers)+len(seen))
	known := make(map[models.ProviderID]bool, len(s.providers))
	for _, id := range s.providers {
		known[id] = true
		ids = append(ids, id)
	}
	var extra []models.ProviderID
	for id := range seen {
		if !known[id] {
			extra = append(extra, id)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(ids, extra...)
}

// GetDashboardMetrics aggregates the last hoursBack hours
func (s *Service) GetDashboardMetrics(ctx context.Context, hoursBack int) (*models.DashboardMetrics, error) {
	if hoursBack <= 0 {
		hoursBack = 24
	}
	since := s.now().Add(-time.Duration(hoursBack) * time.Hour)

	rows, err := s.aggregateByProvider(ctx, since)
	if err != nil {
		return nil, err
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].TotalRequests > rows[j].TotalRequests })

	dashboard := &models.DashboardMetrics{
		Since:       since,
		PerProvider: make([]models.ProviderStats, 0, len(rows)),
	}

	var totalLatency float64
	var totalErrors int64
	for _, row := range rows {
		dashboard.PerProvider = append(dashboard.PerProvider, models.ProviderStats{
			Provider:      row.Provider,
			TotalRequests: row.TotalRequests,
			SuccessCount:  row.TotalRequests - row.ErrorCount,
			ErrorCount:    row.ErrorCount,
			ErrorRate:     errorRate(row.ErrorCount, row.TotalRequests),
			AvgLatencyMs:  row.AvgLatencyMs,
			TotalCostUSD:  row.TotalCostUSD,
			TotalTokens:   row.TotalTokens,
		})
		dashboard.Overall.TotalRequests += row.TotalRequests
		dashboard.Overall.TotalCostUSD += row.TotalCostUSD
		totalLatency += row.TotalLatency
		totalErrors += row.ErrorCount
	}
	if dashboard.Overall.TotalRequests > 0 {
		dashboard.Overall.AvgLatencyMs = totalLatency / float64(dashboard.Overall.TotalRequests)
		dashboard.Overall.ErrorRate = errorRate(totalErrors, dashboard.Overall.TotalRequests)
	}

	if err := s.db.WithContext(ctx).
		Model(&models.ProviderMetric{}).
		Where("created_at >= ?", since).
		Select(
			"provider",
			"model",
			"COUNT(*) as total_requests",
			"COALESCE(SUM(cost_usd), 0) as total_cost_usd",
		).
		Group("provider, model").
		Order("total_requests DESC").
		Limit(topModelsLimit).
		Scan(&dashboard.TopModels).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate model metrics: %w", err)
	}
	if dashboard.TopModels == nil {
		dashboard.TopModels = []models.ModelStats{}
	}

	return dashboard, nil
}

// CheckAlerts compares current provider health against thresholds
func (s *Service) CheckAlerts(ctx context.Context, thresholds models.AlertThresholds) ([]models.Alert, error) {
	alerts := []models.Alert{}
	if !thresholds.Enabled {
		return alerts, nil
	}
	if thresholds.ErrorRate <= 0 {
		thresholds.ErrorRate = defaultAlertErrorRate
	}
	if thresholds.LatencyMs <= 0 {
		thresholds.LatencyMs = defaultAlertLatencyMs
	}

	health, err := s.GetProviderHealth(ctx, thresholds.LookbackMinutes)
	if err != nil {
		return nil, err
	}

	for _, h := range health {
		if h.TotalRequests == 0 {
			continue
		}
		if h.ErrorRate > thresholds.ErrorRate {
			severity := models.AlertSeverityWarning
			if h.Status == models.HealthStatusDown {
				severity = models.AlertSeverityCritical
			}
			alerts = append(alerts, models.Alert{
				Provider: h.Provider,
				Reason:   fmt.Sprintf("error rate %.1f%% exceeds %.1f%%", h.ErrorRate*100, thresholds.ErrorRate*100),
				Severity: severity,
			})
		}
		if h.AvgLatencyMs > thresholds.LatencyMs {
			severity := models.AlertSeverityWarning
			if h.AvgLatencyMs > 2*thresholds.LatencyMs {
				severity = models.AlertSeverityCritical
			}
			alerts = append(alerts, models.Alert{
				Provider: h.Provider,
				Reason:   fmt.Sprintf("average latency %.0fms exceeds %.0fms", h.AvgLatencyMs, thresholds.LatencyMs),
				Severity: severity,
			})
		}
	}

	if len(alerts) > 0 {
		fiberlog.Warnf("Metrics: %d provider alerts raised", len(alerts))
	}
	return alerts, nil
}

func errorRate(failed, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(failed) / float64(total)
}
