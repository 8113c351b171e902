package http

import (
	"teamrelay/internal/api/http/handlers"
	"teamrelay/internal/api/http/mw"
	"teamrelay/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func BuildRouter(h *handlers.Handler, logMW *mw.LoggingMiddleware) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	if logMW != nil {
		r.Use(logMW.Handler)
	}

	// tech endpoints only, the relay has no public API
	r.Get("/healthz", h.Healthz)
	r.Get("/readiness", h.Readiness)
	r.Mount("/metrics", metrics.Handler())

	return r
}
