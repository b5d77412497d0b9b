package httpclient

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker/v2"
)

// BreakerConfig controls when a backend is considered down.
type BreakerConfig struct {
	// HalfOpenRequests is how many probes pass while half-open.
	HalfOpenRequests uint32 `env:"HALF_OPEN_REQUESTS" envDefault:"1"`
	// Interval resets the closed-state counts. Zero never resets them.
	Interval time.Duration `env:"INTERVAL" envDefault:"60s"`
	// OpenTimeout is how long the breaker rejects calls before probing.
	OpenTimeout  time.Duration `env:"OPEN_TIMEOUT" envDefault:"30s"`
	FailureRatio float64       `env:"FAILURE_RATIO" envDefault:"0.5"`
	// MinRequests must be seen before FailureRatio is evaluated.
	MinRequests uint32 `env:"MIN_REQUESTS" envDefault:"5"`
}

// DefaultBreakerConfig matches the env defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		HalfOpenRequests: 1,
		Interval:         time.Minute,
		OpenTimeout:      30 * time.Second,
		FailureRatio:     0.5,
		MinRequests:      5,
	}
}

func (c BreakerConfig) readyToTrip(counts gobreaker.Counts) bool {
	if counts.Requests < c.MinRequests || counts.Requests == 0 {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= c.FailureRatio
}

var (
	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "catalog_search",
			Subsystem: "http_client",
			Name:      "breaker_state",
			Help:      "Circuit breaker state per backend (0 closed, 1 half-open, 2 open)",
		},
		[]string{"backend"},
	)

	breakerRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "catalog_search",
			Subsystem: "http_client",
			Name:      "breaker_rejected_total",
			Help:      "Backend calls refused without being sent because the breaker was open",
		},
		[]string{"backend"},
	)
)

// gobreaker numbers its states closed, half-open, open.
func stateValue(s gobreaker.State) float64 { return float64(s) }

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = gobreaker.ErrOpenState

type serverError struct{ status int }

func (e serverError) Error() string { return "backend answered " + strconv.Itoa(e.status) }

// BreakerTransport is an http.RoundTripper guarded by a circuit breaker.
// Transport errors and 5xx answers count as failures, but 5xx responses
// still reach the caller.
type BreakerTransport struct {
	name    string
	next    http.RoundTripper
	breaker *gobreaker.CircuitBreaker[*http.Response]
	logger  *slog.Logger
}

// NewBreakerTransport guards next, or http.DefaultTransport when nil.
func NewBreakerTransport(name string, next http.RoundTripper, cfg BreakerConfig, logger *slog.Logger) *BreakerTransport {
	if next == nil {
		next = http.DefaultTransport
	}
	t := &BreakerTransport{name: name, next: next, logger: logger}
	t.breaker = gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:          name,
		MaxRequests:   cfg.HalfOpenRequests,
		Interval:      cfg.Interval,
		Timeout:       cfg.OpenTimeout,
		ReadyToTrip:   cfg.readyToTrip,
		OnStateChange: t.stateChanged,
	})
	breakerState.WithLabelValues(name).Set(stateValue(gobreaker.StateClosed))
	return t
}

func (t *BreakerTransport) stateChanged(name string, from, to gobreaker.State) {
	t.logger.Warn("circuit breaker state changed",
		slog.String("backend", name),
		slog.String("from", from.String()),
		slog.String("to", to.String()),
	)
	breakerState.WithLabelValues(name).Set(stateValue(to))
}

func (t *BreakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.breaker.Execute(func() (*http.Response, error) {
		resp, err := t.next.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return resp, serverError{status: resp.StatusCode}
		}
		return resp, nil
	})

	var se serverError
	switch {
	case err == nil:
		return resp, nil
	case errors.As(err, &se):
		return resp, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		breakerRejected.WithLabelValues(t.name).Inc()
		t.logger.WarnContext(req.Context(), "backend call rejected by circuit breaker",
			slog.String("backend", t.name),
			slog.String("url", req.URL.Redacted()),
		)
	}
	return nil, err
}

// State reports the breaker state.
func (t *BreakerTransport) State() gobreaker.State {
	return t.breaker.State()
}
