package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/catalogsearch/internal/config"
	"github.com/utafrali/catalogsearch/pkg/database"
	"github.com/utafrali/catalogsearch/pkg/tracing"
)

const testCatalog = `
stores:
  - {id: 1, code: default, website_id: 1, locale: en_US}
attributes:
  - {code: name, searchable: true, sortable: true}
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testCatalog), 0o600))

	return &config.Config{
		HTTPPort:        0,
		RequestTimeout:  5 * time.Second,
		ShutdownTimeout: time.Second,
		CatalogPath:     path,
		SearchEngine:    config.EngineMemory,
		CacheTTL:        time.Minute,
		Redis:           database.DefaultRedisConfig(),
		IdempotencyTTL:  time.Hour,
		Tracing:         tracing.DefaultConfig("catalog-search"),
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func serve(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, reader))
	return rec
}

func TestNewApp_MemoryEngine(t *testing.T) {
	a, err := NewApp(context.Background(), testConfig(t), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown() })

	h := a.Handler()

	rec := serve(t, h, http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, h, http.MethodPost, "/api/v1/index/1",
		`{"rows": [{"id": "1", "data": {"name": "Red shoe", "visibility": "4", "in_stock": "1"}}]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, h, http.MethodGet, "/api/v1/search?q=shoe", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data struct {
			IDs []string `json:"ids"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"1"}, resp.Data.IDs)
}

func TestNewApp_WithRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.CacheEnabled = true
	cfg.Redis.URL = "redis://" + mr.Addr()

	a, err := NewApp(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	require.NotNil(t, a.redis)

	rec := serve(t, a.Handler(), http.MethodGet, "/api/v1/search?q=shoe", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, mr.Keys())

	rec = serve(t, a.Handler(), http.MethodGet, "/health/ready", "")
	assert.Contains(t, rec.Body.String(), `"redis"`)

	require.NoError(t, a.Shutdown())
}

func TestNewApp_RedisDownDisablesCache(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	cfg := testConfig(t)
	cfg.CacheEnabled = true
	cfg.Redis.URL = "redis://" + addr
	cfg.Redis.DialTimeout = 100 * time.Millisecond

	a, err := NewApp(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown() })

	assert.Nil(t, a.redis)
	rec := serve(t, a.Handler(), http.MethodGet, "/api/v1/search?q=shoe", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNewApp_MissingCatalog(t *testing.T) {
	cfg := testConfig(t)
	cfg.CatalogPath = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := NewApp(context.Background(), cfg, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load catalog")
}

func TestRun_StopsOnCancel(t *testing.T) {
	a, err := NewApp(context.Background(), testConfig(t), testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
