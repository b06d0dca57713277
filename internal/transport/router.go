package transport

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pitabwire/aduan/internal/config"
	"github.com/pitabwire/aduan/internal/observability"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config    *config.Config
	Logger    *zap.Logger
	Metrics   *observability.Metrics
	Handlers  *Handlers
	Readiness observability.ReadinessChecks
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics endpoints skip the
// per-request pipeline.
func NewRouter(deps Dependencies) chi.Router {
	r := chi.NewRouter()

	// Global middleware: applied to all routes including health.
	r.Use(Recovery(deps.Logger))
	r.Use(SecurityHeaders)

	// Operational endpoints.
	r.Get("/healthz", observability.HandleHealth())
	r.Get("/readyz", observability.HandleReady(deps.Readiness))
	if deps.Config.Observability.Metrics.Enabled {
		r.Handle(deps.Config.Observability.Metrics.Path, observability.Handler())
	}

	// API routes — full middleware chain.
	r.Group(func(r chi.Router) {
		if deps.Config.Observability.Tracing.Enabled {
			r.Use(observability.TracingMiddleware)
		}
		r.Use(BuildRequestContext(deps.Logger))
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(RequestLogging(deps.Logger))
		r.Use(deps.Metrics.MetricsMiddleware)

		h := deps.Handlers
		r.Post("/v1/messages", h.HandleMessage)
		r.Post("/v1/sessions", h.HandleCreateSession)
		r.Get("/v1/sessions/stats", h.HandleSessionStats)
		r.Get("/v1/sessions/{sessionID}", h.HandleGetSession)
		r.Delete("/v1/sessions/{sessionID}", h.HandleCloseSession)
		r.Post("/v1/admin/cleanup", h.HandleCleanup)
	})

	return r
}
