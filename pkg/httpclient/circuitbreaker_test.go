package httpclient

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testBreaker() BreakerConfig {
	return BreakerConfig{
		HalfOpenRequests: 1,
		Interval:         time.Minute,
		OpenTimeout:      50 * time.Millisecond,
		FailureRatio:     0.5,
		MinRequests:      3,
	}
}

// roundTripFunc stubs the transport below the breaker.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func statusResponder(status *atomic.Int32) roundTripFunc {
	return func(r *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: int(status.Load()), Body: http.NoBody, Request: r}, nil
	}
}

func call(t *testing.T, bt *BreakerTransport) (*http.Response, error) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, "http://es.local/_cluster/health", http.NoBody)
	require.NoError(t, err)
	return bt.RoundTrip(req)
}

func TestBreakerTransport_ServerErrorsReachCallerAndTrip(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusServiceUnavailable)
	bt := NewBreakerTransport("trip-on-5xx", statusResponder(&status), testBreaker(), testLogger())

	for range 3 {
		resp, err := call(t, bt)
		require.NoError(t, err)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	}
	assert.Equal(t, gobreaker.StateOpen, bt.State())
	assert.Equal(t, 2.0, testutil.ToFloat64(breakerState.WithLabelValues("trip-on-5xx")))

	_, err := call(t, bt)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 1.0, testutil.ToFloat64(breakerRejected.WithLabelValues("trip-on-5xx")))
}

func TestBreakerTransport_ClientErrorsDoNotTrip(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusNotFound)
	bt := NewBreakerTransport("ignore-4xx", statusResponder(&status), testBreaker(), testLogger())

	for range 10 {
		resp, err := call(t, bt)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	}
	assert.Equal(t, gobreaker.StateClosed, bt.State())
}

func TestBreakerTransport_TransportErrorsTrip(t *testing.T) {
	refused := errors.New("connection refused")
	bt := NewBreakerTransport("dial-failures", roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, refused
	}), testBreaker(), testLogger())

	for range 3 {
		resp, err := call(t, bt)
		assert.Nil(t, resp)
		assert.ErrorIs(t, err, refused)
	}
	assert.Equal(t, gobreaker.StateOpen, bt.State())
}

func TestBreakerTransport_RecoversThroughHalfOpen(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusInternalServerError)
	bt := NewBreakerTransport("recovery", statusResponder(&status), testBreaker(), testLogger())

	for range 3 {
		_, _ = call(t, bt)
	}
	require.Equal(t, gobreaker.StateOpen, bt.State())

	status.Store(http.StatusOK)
	require.Eventually(t, func() bool {
		return bt.State() == gobreaker.StateHalfOpen
	}, time.Second, 10*time.Millisecond)

	resp, err := call(t, bt)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, gobreaker.StateClosed, bt.State())
	assert.Equal(t, 0.0, testutil.ToFloat64(breakerState.WithLabelValues("recovery")))
}

func TestBreakerTransport_MinRequestsGuardsRatio(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusBadGateway)
	cfg := testBreaker()
	cfg.MinRequests = 10
	bt := NewBreakerTransport("min-requests", statusResponder(&status), cfg, testLogger())

	for range 9 {
		_, _ = call(t, bt)
	}
	assert.Equal(t, gobreaker.StateClosed, bt.State())
}

func TestBreakerTransport_OverRealServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"status":"green"}`)
	}))
	t.Cleanup(srv.Close)

	client := &http.Client{Transport: New("real-server", DefaultConfig(), DefaultBreakerConfig(), testLogger())}
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"green"}`, string(body))
}

func TestBreakerTransport_NilNextUsesDefault(t *testing.T) {
	bt := NewBreakerTransport("default-next", nil, DefaultBreakerConfig(), testLogger())
	assert.Equal(t, http.DefaultTransport, bt.next)
}
