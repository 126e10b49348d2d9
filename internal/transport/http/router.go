// Package httptransport assembles the HTTP surface: middleware chain, public
// endpoints, the mediator callback, and the operational routes.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	obshandler "fieldbook/internal/observation/handler"
	"fieldbook/internal/platform/metrics"
	"fieldbook/internal/platform/middleware"
	sesshandler "fieldbook/internal/session/handler"
	spechandler "fieldbook/internal/species/handler"
	"fieldbook/pkg/platform/httputil"
)

// Deps carries everything the router mounts.
type Deps struct {
	Logger         *slog.Logger
	HTTPMetrics    *metrics.Metrics
	TokenValidator middleware.TokenValidator
	MediatorSecret string
	Observations   *obshandler.Handler
	Session        *sesshandler.Handler
	Species        *spechandler.Handler
	// Health reports readiness of the backing stores. nil checks are skipped.
	Health func(ctx context.Context) error
}

// NewRouter wires the full middleware chain and all endpoints.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(d.Logger))
	r.Use(middleware.Logger(d.Logger))
	r.Use(middleware.Latency(d.HTTPMetrics))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if d.Health != nil {
			if err := d.Health(req.Context()); err != nil {
				httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	// Public API, JWT-authenticated.
	r.Group(func(gr chi.Router) {
		gr.Use(middleware.ContentTypeJSON)
		gr.Use(middleware.Timeout(30 * time.Second))
		gr.Use(middleware.RequireAuth(d.TokenValidator, d.Logger))
		d.Observations.Register(gr)
		d.Session.Register(gr)
		d.Species.Register(gr)
	})

	// Mediator callback, shared-secret authenticated.
	r.Group(func(gr chi.Router) {
		gr.Use(middleware.ContentTypeJSON)
		gr.Use(middleware.Timeout(30 * time.Second))
		gr.Use(middleware.RequireMediatorSecret(d.MediatorSecret, d.Logger))
		d.Observations.RegisterInternal(gr)
	})

	return r
}
