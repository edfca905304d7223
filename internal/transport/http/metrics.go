package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "renodesk_http_request_duration_seconds",
		Help:    "Duration of API requests by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method", "status"})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "renodesk_http_requests_total",
		Help: "API requests by route and status.",
	}, []string{"route", "method", "status"})

	httpInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "renodesk_http_requests_in_flight",
		Help: "API requests currently being served.",
	})
)

// MetricsMiddleware records request rate, errors and duration per route pattern.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpInFlight.Inc()
		defer httpInFlight.Dec()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		// Route pattern keeps label cardinality bounded (/api/reputation/{date}).
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		code := strconv.Itoa(status)
		httpDuration.WithLabelValues(route, r.Method, code).Observe(time.Since(start).Seconds())
		httpRequests.WithLabelValues(route, r.Method, code).Inc()
	})
}
