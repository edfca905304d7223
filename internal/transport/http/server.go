// Package http exposes the operational API: health, metrics, the feedback webhook,
// suppression administration and read-only reporting.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/strogmv/renodesk/internal/port"
)

const maxBodyBytes = 256 << 10

// FeedbackHandler applies one provider feedback message.
type FeedbackHandler interface {
	Handle(ctx context.Context, raw []byte) error
}

// Check reports the readiness of one dependency.
type Check func(ctx context.Context) error

// Handler serves the API routes.
type Handler struct {
	Feedback     FeedbackHandler
	Suppressions port.SuppressionRepository
	Metrics      port.MetricsRepository
	Events       port.EventLog
	Checks       map[string]Check

	now func() time.Time
}

func NewHandler(feedback FeedbackHandler, suppressions port.SuppressionRepository, metricsRepo port.MetricsRepository, events port.EventLog, checks map[string]Check) *Handler {
	return &Handler{
		Feedback:     feedback,
		Suppressions: suppressions,
		Metrics:      metricsRepo,
		Events:       events,
		Checks:       checks,
		now:          time.Now,
	}
}

// NewRouter builds the instrumented router. When apiToken is set every /api route
// requires it.
func NewRouter(h *Handler, corsOrigins []string, apiToken string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.Health)
	r.Get("/readyz", h.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(RequireToken(apiToken))
		r.Use(MaxBodySizeMiddleware(maxBodyBytes))
		r.Use(TimeoutMiddleware(30 * time.Second))

		r.Post("/feedback", h.ReceiveFeedback)

		r.Post("/suppressions", h.CreateSuppression)
		r.Get("/suppressions/{email}", h.GetSuppressions)
		r.Delete("/suppressions/{email}", h.DeleteSuppression)

		r.Get("/reputation/{date}", h.GetReputation)
		r.Get("/events", h.ListEvents)
	})

	return otelhttp.NewHandler(r, "renodesk.api")
}

// NewServer returns an http.Server with conservative timeouts.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
