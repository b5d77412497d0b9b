package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/catalogsearch/internal/catalog"
	"github.com/utafrali/catalogsearch/internal/engine/memory"
	"github.com/utafrali/catalogsearch/internal/service"
	"github.com/utafrali/catalogsearch/pkg/health"
	"github.com/utafrali/catalogsearch/pkg/httputil"
)

const testCatalog = `
show_out_of_stock: false
stores:
  - {id: 1, code: default, website_id: 1, locale: en_US}
attributes:
  - {code: name, searchable: true, sortable: true}
  - {code: color, searchable: true}
  - {code: weight, backend: decimal, searchable: true, sortable: true}
`

const seedBody = `{"rows": [
  {"id": "1", "data": {"name": "Red shoe", "color": "red", "weight": "1.5", "categories": ["5"], "visibility": "4", "in_stock": "1"}},
  {"id": "2", "data": {"name": "Red boot", "color": "red", "weight": "2.5", "categories": ["5"], "visibility": "4", "in_stock": "1"}},
  {"id": "3", "data": {"name": "Red sandal", "color": "red", "weight": "0.5", "categories": ["5"], "visibility": "4", "in_stock": "1"}},
  {"id": "4", "data": {"name": "Blue shoe", "color": "blue", "weight": "1.0", "categories": ["6"], "visibility": "4", "in_stock": "1"}}
]}`

type envelope struct {
	Data  json.RawMessage         `json:"data"`
	Error *httputil.ErrorResponse `json:"error"`
}

type searchData struct {
	IDs        []string        `json:"ids"`
	TotalCount int64           `json:"total_count"`
	Facets     map[string]any  `json:"facets"`
	Pagination *paginationData `json:"pagination"`
}

type paginationData struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	TotalPages int64 `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func newTestRouter(t *testing.T) (http.Handler, *memory.Engine) {
	t.Helper()
	cat, err := catalog.Parse([]byte(testCatalog))
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := memory.New()
	svc := service.NewSearchService(eng, cat, cat, cat, logger)

	hh := health.NewHandler()
	hh.Register("search_engine", func(ctx context.Context) error {
		_, err := svc.Status(ctx)
		return err
	})
	return NewRouter(svc, hh, DefaultRouterConfig(), logger), eng
}

func do(t *testing.T, router http.Handler, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func seeded(t *testing.T) (http.Handler, *memory.Engine) {
	t.Helper()
	router, eng := newTestRouter(t)
	rec, _ := do(t, router, http.MethodPost, "/api/v1/index/1", seedBody)
	require.Equal(t, http.StatusOK, rec.Code)
	return router, eng
}

func searchResult(t *testing.T, env envelope) searchData {
	t.Helper()
	var data searchData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	return data
}

// --- Search ---

func TestSearch_Post(t *testing.T) {
	router, eng := seeded(t)

	rec, env := do(t, router, http.MethodPost, "/api/v1/search",
		`{"query": "red", "facets": {"color": []}, "sort": [{"weight": "asc"}]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	data := searchResult(t, env)
	assert.Equal(t, int64(3), data.TotalCount)
	assert.Equal(t, []string{"3", "1", "2"}, data.IDs)
	assert.Equal(t, map[string]any{"red": float64(3)}, data.Facets["color"])
	assert.Nil(t, data.Pagination)

	call, ok := eng.LastSearch()
	require.True(t, ok)
	assert.Equal(t, "(red)", call.Conditions)
}

func TestSearch_PostPaged(t *testing.T) {
	router, eng := seeded(t)

	rec, env := do(t, router, http.MethodPost, "/api/v1/search", `{"query": "red", "page": 2, "per_page": 2}`)

	require.Equal(t, http.StatusOK, rec.Code)
	data := searchResult(t, env)
	assert.Len(t, data.IDs, 1)
	require.NotNil(t, data.Pagination)
	assert.Equal(t, 2, data.Pagination.Page)
	assert.Equal(t, int64(2), data.Pagination.TotalPages)
	assert.False(t, data.Pagination.HasNext)

	call, _ := eng.LastSearch()
	assert.Equal(t, 2, call.Request.Offset)
	assert.Equal(t, 2, call.Request.Limit)
}

func TestSearch_PostStructuredQuery(t *testing.T) {
	router, eng := seeded(t)

	rec, env := do(t, router, http.MethodPost, "/api/v1/search", `{"query": {"color": "blue"}}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"4"}, searchResult(t, env).IDs)

	call, _ := eng.LastSearch()
	assert.Equal(t, "color:blue", call.Conditions)
}

func TestSearch_PostInvalid(t *testing.T) {
	router, _ := newTestRouter(t)

	tests := []struct {
		name   string
		body   string
		status int
		code   string
		field  string
	}{
		{name: "malformed", body: `{"query":`, status: http.StatusBadRequest, code: "INVALID_INPUT"},
		{name: "offset and page", body: `{"offset": 1, "page": 2}`, status: http.StatusBadRequest, code: "VALIDATION_ERROR", field: "page"},
		{name: "limit too large", body: `{"limit": 5000}`, status: http.StatusBadRequest, code: "VALIDATION_ERROR", field: "limit"},
		{name: "range filter without field", body: `{"range_filters": [{"from": "1"}]}`, status: http.StatusBadRequest, code: "VALIDATION_ERROR", field: "range_filters[0].field"},
		{name: "unknown store", body: `{"store_id": 9}`, status: http.StatusNotFound, code: "NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := do(t, router, http.MethodPost, "/api/v1/search", tt.body)

			assert.Equal(t, tt.status, rec.Code)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
			if tt.field != "" {
				assert.Contains(t, env.Error.Fields, tt.field)
			}
		})
	}
}

func TestSearch_Get(t *testing.T) {
	router, _ := seeded(t)

	rec, env := do(t, router, http.MethodGet, "/api/v1/search?q=red&per_page=2&sort=name:desc", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	data := searchResult(t, env)
	assert.Equal(t, int64(3), data.TotalCount)
	assert.Equal(t, []string{"1", "3"}, data.IDs)
	require.NotNil(t, data.Pagination)
	assert.True(t, data.Pagination.HasNext)
}

func TestSearch_GetCategoryBrowse(t *testing.T) {
	router, eng := seeded(t)

	rec, env := do(t, router, http.MethodGet, "/api/v1/search?category_id=6", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"4"}, searchResult(t, env).IDs)

	call, _ := eng.LastSearch()
	assert.Equal(t, "", call.Conditions)
	assert.Equal(t,
		"(categories:6 OR show_in_categories:6) AND in_stock:1 AND (visibility:2 OR visibility:4)",
		call.Request.Filters)
}

func TestSearch_GetInvalidParameter(t *testing.T) {
	router, _ := newTestRouter(t)

	for _, target := range []string{
		"/api/v1/search?store_id=-1",
		"/api/v1/search?customer_group_id=abc",
		"/api/v1/search?category_id=1.5",
	} {
		rec, env := do(t, router, http.MethodGet, target, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		require.NotNil(t, env.Error, target)
		assert.Equal(t, "INVALID_PARAMETER", env.Error.Code, target)
	}
}

func TestSearch_EngineDownIsEmpty(t *testing.T) {
	router, eng := seeded(t)
	eng.FailWith(errors.New("connection refused"))

	rec, env := do(t, router, http.MethodPost, "/api/v1/search", `{"query": "red"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	data := searchResult(t, env)
	assert.Empty(t, data.IDs)
	assert.Equal(t, int64(0), data.TotalCount)
}

func TestStats(t *testing.T) {
	router, _ := seeded(t)

	rec, env := do(t, router, http.MethodPost, "/api/v1/search/stats", `{"query": "red", "stats": ["weight"]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var data struct {
		Stats map[string]map[string]any `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Contains(t, data.Stats, "weight")
	assert.Equal(t, float64(3), data.Stats["weight"]["count"])
	assert.Equal(t, 0.5, data.Stats["weight"]["min"])

	rec, env = do(t, router, http.MethodPost, "/api/v1/search/stats", `{"query": "red"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_INPUT", env.Error.Code)
}

// --- Index ---

func TestSaveIndex(t *testing.T) {
	router, eng := seeded(t)
	assert.Equal(t, 4, eng.Len())

	rec, env := do(t, router, http.MethodPost, "/api/v1/index/1", `{"rows": [{"id": "5"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"store_id": 1, "indexed": 1}`, string(env.Data))
	assert.Equal(t, 5, eng.Len())
}

func TestSaveIndex_Invalid(t *testing.T) {
	router, _ := newTestRouter(t)

	tests := []struct {
		name   string
		target string
		body   string
		status int
		code   string
	}{
		{name: "bad store id", target: "/api/v1/index/abc", body: `{"rows": [{"id": "1"}]}`, status: http.StatusBadRequest, code: "INVALID_PARAMETER"},
		{name: "no rows", target: "/api/v1/index/1", body: `{"rows": []}`, status: http.StatusBadRequest, code: "VALIDATION_ERROR"},
		{name: "row without id", target: "/api/v1/index/1", body: `{"rows": [{"data": {}}]}`, status: http.StatusBadRequest, code: "VALIDATION_ERROR"},
		{name: "unknown store", target: "/api/v1/index/9", body: `{"rows": [{"id": "1"}]}`, status: http.StatusNotFound, code: "NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := do(t, router, http.MethodPost, tt.target, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
		})
	}
}

func TestSaveIndex_EngineDown(t *testing.T) {
	router, eng := newTestRouter(t)
	eng.FailWith(errors.New("bulk rejected"))

	rec, env := do(t, router, http.MethodPost, "/api/v1/index/1", seedBody)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "ENGINE_UNAVAILABLE", env.Error.Code)
}

func TestCleanIndex(t *testing.T) {
	router, eng := seeded(t)

	rec, _ := do(t, router, http.MethodDelete, "/api/v1/index?store_id=1&id=4", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 3, eng.Len())

	rec, env := do(t, router, http.MethodGet, "/api/v1/search?q=blue", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, searchResult(t, env).IDs)

	rec, _ = do(t, router, http.MethodDelete, "/api/v1/index?all=true", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, eng.Len())
}

func TestCleanIndex_InvalidStore(t *testing.T) {
	router, _ := newTestRouter(t)

	rec, env := do(t, router, http.MethodDelete, "/api/v1/index?store_id=x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_PARAMETER", env.Error.Code)
}

func TestCleanCache(t *testing.T) {
	router, _ := newTestRouter(t)

	rec, _ := do(t, router, http.MethodDelete, "/api/v1/cache", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

// --- Status and health ---

func TestStatus(t *testing.T) {
	router, eng := seeded(t)

	rec, env := do(t, router, http.MethodGet, "/api/v1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status struct {
		Status    string `json:"status"`
		Documents int64  `json:"documents"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.Equal(t, "green", status.Status)
	assert.Equal(t, int64(4), status.Documents)

	eng.FailWith(errors.New("down"))
	rec, env = do(t, router, http.MethodGet, "/api/v1/status", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "ENGINE_UNAVAILABLE", env.Error.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	router, eng := newTestRouter(t)

	rec, _ := do(t, router, http.MethodGet, "/health/live", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, router, http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	eng.FailWith(errors.New("down"))
	rec, _ = do(t, router, http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	mrec := httptest.NewRecorder()
	router.ServeHTTP(mrec, req)
	assert.Equal(t, http.StatusOK, mrec.Code)
	assert.Contains(t, mrec.Body.String(), "http_requests_total")
}

func TestParseSort(t *testing.T) {
	assert.Equal(t, "[{\"name\":\"desc\"},{\"price\":\"asc\"}]", mustJSON(t, parseSort("name:DESC, price,")))
	assert.Empty(t, parseSort(","))
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}
