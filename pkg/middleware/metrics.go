package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTPMetrics holds the request collectors for one registry.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight *prometheus.GaugeVec
}

// NewHTTPMetrics registers request collectors with reg.
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	f := promauto.With(reg)
	return &HTTPMetrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "catalog_search",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests served, by route and status code",
		}, []string{"service", "method", "route", "code"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "catalog_search",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Time to serve an HTTP request",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"service", "method", "route"}),
		inFlight: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "catalog_search",
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "HTTP requests currently being served",
		}, []string{"service"}),
	}
}

var defaultHTTPMetrics = NewHTTPMetrics(prometheus.DefaultRegisterer)

// PrometheusMetrics records requests on the default registry.
func PrometheusMetrics(service string) func(http.Handler) http.Handler {
	return defaultHTTPMetrics.Middleware(service)
}

// Middleware labels observations with the chi route pattern, never the raw
// path.
func (m *HTTPMetrics) Middleware(service string) func(http.Handler) http.Handler {
	inFlight := m.inFlight.WithLabelValues(service)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			inFlight.Inc()
			defer inFlight.Dec()

			start := time.Now()
			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)

			route := routePattern(r)
			m.requests.WithLabelValues(service, r.Method, route, strconv.Itoa(rec.status)).Inc()
			m.duration.WithLabelValues(service, r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// routePattern returns the matched chi pattern or "unknown".
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unknown"
}
