package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/dexbot/internal/metrics"
)

// Metrics returns middleware that records request latency per path and
// method. Paths outside /api are skipped to keep the label set bounded.
func Metrics() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, "/api/") {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			next.ServeHTTP(w, r)
			metrics.ObserveAPILatency(r.URL.Path, r.Method, time.Since(start).Seconds())
		})
	}
}
