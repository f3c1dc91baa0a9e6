// Package middleware holds HTTP middleware shared by the API router.
package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"delivery-dispatch/internal/logx"
	"delivery-dispatch/internal/metrics"
)

// Observability records request counters and latency and logs each request.
// WebSocket upgrades are logged when the connection ends.
func Observability(logger logx.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	logger = logx.Component(logger, "http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			// Route patterns keep label cardinality bounded.
			path := pathPattern(r)
			took := time.Since(start)
			status := strconv.Itoa(ww.Status())

			m.HTTPRequests.WithLabelValues(r.Method, path, status).Inc()
			m.HTTPDuration.WithLabelValues(r.Method, path, status).Observe(took.Seconds())

			logger.Info("http request",
				logx.String("request_id", chimw.GetReqID(r.Context())),
				logx.String("method", r.Method),
				logx.String("path", path),
				logx.Int("status", ww.Status()),
				logx.Duration("duration", took),
			)
		})
	}
}

func pathPattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}
