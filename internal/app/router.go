package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/arkhan2/invoicing-system-sub001/internal/auth"
	"github.com/arkhan2/invoicing-system-sub001/internal/observability"
	"github.com/arkhan2/invoicing-system-sub001/internal/platform/httpx"
	"github.com/arkhan2/invoicing-system-sub001/internal/shared"
	"github.com/arkhan2/invoicing-system-sub001/jobs"
)

// RouteMounter is implemented by every feature handler.
type RouteMounter interface {
	MountRoutes(r chi.Router)
}

// HealthCheck reports whether a backing service is reachable.
type HealthCheck func(ctx context.Context) error

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Metrics        *observability.Metrics
	AuthHandler    *auth.Handler
	JobHandler     *jobs.Handler
	// Handlers are mounted behind auth.RequireIdentity.
	Handlers     []RouteMounter
	HealthChecks map[string]HealthCheck
}

type healthView struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// NewRouter constructs the chi.Router with the invoicing API.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", healthHandler(params.HealthChecks))
	r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.AuthHandler != nil {
		r.Route("/auth", params.AuthHandler.MountRoutes)
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireIdentity)
		for _, h := range params.Handlers {
			h.MountRoutes(r)
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no route for "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusMethodNotAllowed, "Method Not Allowed", r.Method+" is not supported here")
	})
	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		view := healthView{Status: "ok"}
		status := http.StatusOK
		for name, check := range checks {
			if view.Checks == nil {
				view.Checks = make(map[string]string, len(checks))
			}
			if err := check(ctx); err != nil {
				view.Checks[name] = err.Error()
				view.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			view.Checks[name] = "ok"
		}
		httpx.JSON(w, status, view)
	}
}
