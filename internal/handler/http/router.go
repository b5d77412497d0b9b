package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/catalogsearch/pkg/health"
	"github.com/utafrali/catalogsearch/pkg/middleware"
)

const serviceName = "catalog-search"

// RouterConfig tunes the HTTP surface.
type RouterConfig struct {
	CORS           middleware.CORSConfig
	RequestTimeout time.Duration
	// SearchCacheMaxAge is sent on GET search responses; zero disables
	// client caching.
	SearchCacheMaxAge time.Duration
}

// DefaultRouterConfig returns permissive CORS and a 30s request timeout.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		CORS:           middleware.DefaultCORSConfig(),
		RequestTimeout: 30 * time.Second,
	}
}

// NewRouter creates a chi router with all search service routes registered.
func NewRouter(
	svc SearchService,
	healthHandler *health.Handler,
	cfg RouterConfig,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing(serviceName))
	r.Use(middleware.PrometheusMetrics(serviceName))
	r.Use(chimw.Compress(5))
	if cfg.RequestTimeout > 0 {
		r.Use(chimw.Timeout(cfg.RequestTimeout))
	}

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	h := NewSearchHandler(svc, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/search", func(r chi.Router) {
			r.With(middleware.CacheControl(cfg.SearchCacheMaxAge)).Get("/", h.SearchSimple)
			r.Post("/", h.Search)
			r.Post("/stats", h.Stats)
		})

		r.Post("/index/{store_id}", h.SaveIndex)
		r.Delete("/index", h.CleanIndex)
		r.Delete("/cache", h.CleanCache)
		r.Get("/status", h.Status)
	})

	return r
}
