// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/airwave/radio-identity/internal/middleware"
)

// NewRouter builds the chi mux for the operator surface with the
// CORS/rate-limit/request-ID stack. There is no auth middleware: this
// mount has no auth surface.
func NewRouter(h *Handler, cfg MiddlewareConfig) http.Handler {
	r := chi.NewRouter()
	perf := middleware.NewPerformanceMonitor(1000)

	r.Use(adapt(middleware.RequestID))
	r.Use(chimiddleware.Recoverer)
	r.Use(corsMiddleware(cfg))
	r.Use(rateLimitMiddleware(cfg))
	r.Use(adapt(middleware.PrometheusMetrics))
	r.Use(perf.Middleware)

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/stats", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(perf.GetStats())
	})

	r.Route("/queue", func(r chi.Router) {
		r.Get("/", h.ListQueue)
		r.Post("/link", h.Link)
		r.Post("/promote", h.Promote)
		r.Post("/dismiss", h.Dismiss)
		r.Post("/undo", h.Undo)
	})

	r.Get("/audit", h.ListAudit)
	r.Post("/bridges", h.CreateBridge)

	r.Route("/thresholds", func(r chi.Router) {
		r.Get("/", h.GetThresholds)
		r.Put("/", h.SetThresholds)
	})

	r.Post("/reevaluate", h.Reevaluate)
	r.Post("/discovery/rebuild", h.RebuildDiscovery)
	r.Post("/ingest", h.Ingest)

	r.Post("/recordings/resolve", h.ResolveRecording)

	r.Route("/export", func(r chi.Router) {
		r.Use(adapt(middleware.Compression))
		r.Get("/csv", h.ExportCSV)
		r.Get("/m3u", h.ExportM3U)
	})

	return r
}
