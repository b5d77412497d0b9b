package middleware

import (
	"net/http"
	"strconv"
	"time"
)

// CacheControl lets clients reuse GET responses for maxAge. A zero maxAge
// marks responses as not storable.
func CacheControl(maxAge time.Duration) func(http.Handler) http.Handler {
	value := "no-store"
	if secs := int(maxAge.Seconds()); secs > 0 {
		value = "private, max-age=" + strconv.Itoa(secs)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet {
				w.Header().Set("Cache-Control", value)
			}
			next.ServeHTTP(w, r)
		})
	}
}
