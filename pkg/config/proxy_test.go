package config

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Egham-7/adaptive-gateway/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBuilder(t *testing.T) *Builder {
	t.Helper()
	return New().
		Environment("production").
		LogLevel("error").
		AddProvider("openai", NewProviderBuilder("sk-test").Build()).
		AddProvider("claude", NewProviderBuilder("sk-ant-test").Build())
}

func get(t *testing.T, p *Proxy, path string) (int, map[string]any) {
	t.Helper()
	resp, err := p.App().Test(httptest.NewRequest(http.MethodGet, path, nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body), string(raw))
	return resp.StatusCode, body
}

func TestSetupWithoutDatabase(t *testing.T) {
	p := NewProxyWithBuilder(newTestBuilder(t).WithCache(models.CacheConfig{}))
	require.NoError(t, p.Setup())
	t.Cleanup(func() { _ = p.Shutdown() })

	status, body := get(t, p, "/")
	assert.Equal(t, http.StatusOK, status)
	assert.ElementsMatch(t, []any{"openai", "claude"}, body["providers"])

	status, body = get(t, p, "/health")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "not_configured", body["checks"].(map[string]any)["database"])

	status, _ = get(t, p, "/v1/cache/stats")
	assert.Equal(t, http.StatusOK, status)

	// Usage and metrics need a database
	resp, err := p.App().Test(httptest.NewRequest(http.MethodGet, "/v1/usage/alice", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSetupWithDatabaseAndRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	b := newTestBuilder(t).
		WithRedis("redis://"+mr.Addr()).
		WithFallback(models.FallbackConfig{
			CircuitBreaker: models.CircuitBreakerConfig{Backend: models.CircuitBreakerBackendRedis},
		}).
		WithCache(models.CacheConfig{Backend: models.CacheBackendRedis}).
		WithDatabase(models.DatabaseConfig{
			Type:     models.SQLite,
			FilePath: filepath.Join(t.TempDir(), "gateway.db"),
		})

	p := NewProxyWithBuilder(b)
	require.NoError(t, p.Setup())
	t.Cleanup(func() { _ = p.Shutdown() })

	status, body := get(t, p, "/health")
	assert.Equal(t, http.StatusOK, status)
	checks := body["checks"].(map[string]any)
	assert.Equal(t, "healthy", checks["redis"])
	assert.Equal(t, "healthy", checks["database"])

	req := httptest.NewRequest(http.MethodPut, "/v1/users/alice", strings.NewReader(`{"plan":"pro"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	status, body = get(t, p, "/v1/usage/alice")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "pro", body["plan"])

	status, _ = get(t, p, "/v1/metrics/dashboard")
	assert.Equal(t, http.StatusOK, status)
}

func TestSetupRejectsInvalidConfig(t *testing.T) {
	p := NewProxyWithBuilder(New())
	err := p.Setup()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "providers.<id>.api_key")
}

func TestShutdownBeforeSetup(t *testing.T) {
	assert.NoError(t, NewProxy(New().Build()).Shutdown())
}
