package metrics

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Egham-7/adaptive-gateway/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	svc := NewService(db, []models.ProviderID{models.ProviderOpenAI, models.ProviderClaude, models.ProviderGemini}).
		WithClock(func() time.Time { return testNow })
	require.NoError(t, svc.AutoMigrate())
	return svc, db
}

func record(svc *Service, provider models.ProviderID, model string, success bool, latency int64, n int) {
	for range n {
		svc.RecordMetric(context.Background(), models.MetricInput{
			Provider: provider, Model: model, Success: success, LatencyMs: latency, CostUSD: 0.01, TokensIn: 10, TokensOut: 20,
		})
	}
}

func TestRecordMetricDeduplicatesByRequestID(t *testing.T) {
	svc, db := newTestService(t)

	in := models.MetricInput{Provider: models.ProviderOpenAI, Model: "gpt-4o", Success: true, RequestID: "req-1"}
	svc.RecordMetric(context.Background(), in)
	svc.RecordMetric(context.Background(), in)

	var count int64
	require.NoError(t, db.Model(&models.ProviderMetric{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestRecordMetricSwallowsErrors(t *testing.T) {
	svc, db := newTestService(t)
	require.NoError(t, db.Migrator().DropTable(&models.ProviderMetric{}))

	assert.NotPanics(t, func() {
		svc.RecordMetric(context.Background(), models.MetricInput{Provider: models.ProviderOpenAI, Model: "m", RequestID: "x"})
		svc.RecordMetric(context.Background(), models.MetricInput{Provider: models.ProviderOpenAI, Model: "m"})
	})
}

func TestGetProviderHealthStatuses(t *testing.T) {
	svc, _ := newTestService(t)

	record(svc, models.ProviderOpenAI, "gpt-4o", true, 100, 10)
	record(svc, models.ProviderClaude, "claude-sonnet-4-5-20250929", true, 200, 8)
	record(svc, models.ProviderClaude, "claude-sonnet-4-5-20250929", false, 200, 2)
	record(svc, "deepseek", "deepseek-chat", false, 50, 6)
	record(svc, "deepseek", "deepseek-chat", true, 50, 4)

	health, err := svc.GetProviderHealth(context.Background(), 60)
	require.NoError(t, err)

	byID := map[models.ProviderID]models.ProviderHealth{}
	for _, h := range health {
		byID[h.Provider] = h
	}
	require.Len(t, health, 4)
	assert.Equal(t, models.ProviderOpenAI, health[0].Provider)
	assert.Equal(t, models.ProviderID("deepseek"), health[3].Provider)

	assert.Equal(t, models.HealthStatusHealthy, byID[models.ProviderOpenAI].Status)
	assert.InDelta(t, 100, byID[models.ProviderOpenAI].AvgLatencyMs, 1e-9)

	assert.Equal(t, models.HealthStatusDegraded, byID[models.ProviderClaude].Status)
	assert.InDelta(t, 0.2, byID[models.ProviderClaude].ErrorRate, 1e-9)

	assert.Equal(t, models.HealthStatusDown, byID["deepseek"].Status)

	gemini := byID[models.ProviderGemini]
	assert.Equal(t, models.HealthStatusHealthy, gemini.Status)
	assert.Zero(t, gemini.TotalRequests)
}

func TestGetProviderHealthRespectsLookback(t *testing.T) {
	svc, db := newTestService(t)

	old := models.ProviderMetric{Provider: models.ProviderOpenAI, Model: "m", Success: false, CreatedAt: testNow.Add(-2 * time.Hour)}
	require.NoError(t, db.Create(&old).Error)

	health, err := svc.GetProviderHealth(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, models.HealthStatusHealthy, health[0].Status)
	assert.Zero(t, health[0].TotalRequests)
}

func TestStatusForBoundaries(t *testing.T) {
	assert.Equal(t, models.HealthStatusHealthy, StatusFor(0, 1))
	assert.Equal(t, models.HealthStatusHealthy, StatusFor(10, 0.1))
	assert.Equal(t, models.HealthStatusDegraded, StatusFor(10, 0.11))
	assert.Equal(t, models.HealthStatusDegraded, StatusFor(10, 0.5))
	assert.Equal(t, models.HealthStatusDown, StatusFor(10, 0.51))
}

func TestGetDashboardMetrics(t *testing.T) {
	svc, _ := newTestService(t)

	record(svc, models.ProviderOpenAI, "gpt-4o-mini", true, 100, 6)
	record(svc, models.ProviderOpenAI, "gpt-4o", true, 300, 2)
	record(svc, models.ProviderClaude, "claude-3-5-haiku-20241022", false, 400, 2)

	dash, err := svc.GetDashboardMetrics(context.Background(), 24)
	require.NoError(t, err)

	require.Len(t, dash.PerProvider, 2)
	assert.Equal(t, models.ProviderOpenAI, dash.PerProvider[0].Provider)
	assert.EqualValues(t, 8, dash.PerProvider[0].TotalRequests)
	assert.InDelta(t, 150, dash.PerProvider[0].AvgLatencyMs, 1e-9)
	assert.EqualValues(t, 240, dash.PerProvider[0].TotalTokens)

	assert.EqualValues(t, 10, dash.Overall.TotalRequests)
	assert.InDelta(t, 0.1, dash.Overall.TotalCostUSD, 1e-9)
	assert.InDelta(t, 200, dash.Overall.AvgLatencyMs, 1e-9)
	assert.InDelta(t, 0.2, dash.Overall.ErrorRate, 1e-9)

	require.Len(t, dash.TopModels, 3)
	assert.Equal(t, "gpt-4o-mini", dash.TopModels[0].Model)
	assert.EqualValues(t, 6, dash.TopModels[0].TotalRequests)
}

func TestCheckAlerts(t *testing.T) {
	svc, _ := newTestService(t)

	record(svc, models.ProviderOpenAI, "gpt-4o", true, 9000, 5)
	record(svc, models.ProviderClaude, "claude", false, 100, 3)
	record(svc, models.ProviderClaude, "claude", true, 100, 1)

	disabled, err := svc.CheckAlerts(context.Background(), models.AlertThresholds{Enabled: false})
	require.NoError(t, err)
	assert.Empty(t, disabled)

	alerts, err := svc.CheckAlerts(context.Background(), models.AlertThresholds{
		Enabled: true, ErrorRate: 0.2, LatencyMs: 4000, LookbackMinutes: 60,
	})
	require.NoError(t, err)
	require.Len(t, alerts, 2)

	byProvider := map[models.ProviderID]models.Alert{}
	for _, a := range alerts {
		byProvider[a.Provider] = a
	}
	assert.Equal(t, models.AlertSeverityCritical, byProvider[models.ProviderClaude].Severity)
	assert.Contains(t, byProvider[models.ProviderClaude].Reason, "error rate")
	assert.Equal(t, models.AlertSeverityCritical, byProvider[models.ProviderOpenAI].Severity)
	assert.Contains(t, byProvider[models.ProviderOpenAI].Reason, "latency")
}

func TestRecorderDrainsOnStop(t *testing.T) {
	svc, db := newTestService(t)
	r := NewRecorder(svc, 2, 64)

	for i := range 20 {
		r.Submit(models.MetricInput{Provider: models.ProviderGemini, Model: "m", Success: true, RequestID: fmt.Sprintf("r-%d", i)})
	}
	r.Stop()
	r.Stop()
	r.Submit(models.MetricInput{Provider: models.ProviderGemini, Model: "m"})

	var count int64
	require.NoError(t, db.Model(&models.ProviderMetric{}).Count(&count).Error)
	assert.EqualValues(t, 20, count)
}
