package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/catalogsearch/pkg/logger"
)

// Request headers read by RequestLogging.
const (
	HeaderCorrelationID = "X-Correlation-ID"
	HeaderStoreID       = "X-Store-ID"
)

// RequestLogging assigns a correlation id, stores a request-scoped logger in
// the context and writes one access line per request. Mount it before
// Tracing so spans carry the correlation id.
func RequestLogging(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			correlationID := r.Header.Get(HeaderCorrelationID)
			if correlationID == "" {
				correlationID = uuid.New().String()
			}
			ctx := logger.WithCorrelationID(r.Context(), correlationID)
			if raw := r.Header.Get(HeaderStoreID); raw != "" {
				if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
					ctx = logger.WithStoreID(ctx, id)
				}
			}
			l := logger.WithContext(ctx, base)
			ctx = logger.NewContext(ctx, l)

			w.Header().Set(HeaderCorrelationID, correlationID)

			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r.WithContext(ctx))

			level := slog.LevelInfo
			if rec.status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			l.LogAttrs(ctx, level, "http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("duration", time.Since(start)),
				slog.Int("bytes", rec.bytes),
				slog.String("remote_addr", r.RemoteAddr),
				slog.String("user_agent", r.UserAgent()),
			)
		})
	}
}
