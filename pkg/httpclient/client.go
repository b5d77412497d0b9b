// Package httpclient builds outbound HTTP transports for backend calls.
package httpclient

import (
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Config tunes the pooled transport.
type Config struct {
	// Timeout bounds the wait for response headers.
	Timeout         time.Duration `env:"TIMEOUT" envDefault:"30s"`
	MaxConnsPerHost int           `env:"MAX_CONNS_PER_HOST" envDefault:"100"`
}

// DefaultConfig matches the env defaults.
func DefaultConfig() Config {
	return Config{Timeout: 30 * time.Second, MaxConnsPerHost: 100}
}

// NewTransport returns a pooled transport with keep-alives. Non-positive
// fields fall back to DefaultConfig.
func NewTransport(cfg Config) *http.Transport {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxConnsPerHost <= 0 {
		cfg.MaxConnsPerHost = def.MaxConnsPerHost
	}
	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          cfg.MaxConnsPerHost,
		MaxIdleConnsPerHost:   cfg.MaxConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
	}
}

// New returns a pooled transport for the named backend guarded by a
// circuit breaker.
func New(name string, cfg Config, breaker BreakerConfig, logger *slog.Logger) *BreakerTransport {
	return NewBreakerTransport(name, NewTransport(cfg), breaker, logger)
}
