// Package app assembles the judge server: routing, readiness checks,
// startup bootstrap and crash recovery.
package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	httpserver "github.com/fairyhunter13/oj-server/internal/adapter/httpserver"
	"github.com/fairyhunter13/oj-server/internal/adapter/observability"
	"github.com/fairyhunter13/oj-server/internal/config"
)

// ParseOrigins splits a comma-separated origin list into a slice, trimming spaces.
// If the input is empty, returns ["*"].
func ParseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return []string{"*"}
	}
	if s == "*" {
		return []string{"*"}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// BuildRouter constructs the HTTP handler with all middlewares and routes.
func BuildRouter(cfg config.Config, srv *httpserver.Server) http.Handler {
	r := chi.NewRouter()
	// Security & instrumentation middleware
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.RequestID())
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   ParseOrigins(cfg.CORSAllowOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Unknown routes still answer with the JSON error envelope.
	r.NotFound(httpserver.NotFoundHandler())
	r.MethodNotAllowed(httpserver.NotFoundHandler())

	// Mutating endpoints, optionally rate limited per client IP. No
	// timeout handler here: submissions are enqueue-only and an
	// artificial 503 would hide that the job was already accepted.
	r.Group(func(wr chi.Router) {
		if cfg.RateLimitPerMin > 0 {
			wr.Use(httprate.LimitByIP(cfg.RateLimitPerMin, 1*time.Minute))
		}
		wr.Post("/jobs", srv.SubmitHandler())
		wr.Put("/jobs/{id}", srv.RetestJobHandler())
		wr.Post("/users", srv.UpsertUserHandler())
		wr.Post("/contests", srv.UpsertContestHandler())
		wr.Post("/internal/exit", srv.ExitHandler())
	})

	// Read-only endpoints
	r.Group(func(ro chi.Router) {
		ro.Use(httpserver.TimeoutMiddleware(cfg.HTTPWriteTimeout))
		ro.Get("/jobs", srv.ListJobsHandler())
		ro.Get("/jobs/{id}", srv.GetJobHandler())
		ro.Get("/users", srv.ListUsersHandler())
		ro.Get("/contests", srv.ListContestsHandler())
		ro.Get("/contests/{id}", srv.GetContestHandler())
		ro.Get("/contests/{id}/ranklist", srv.RanklistHandler())
	})

	// Health and metrics
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) { promhttp.Handler().ServeHTTP(w, r) })
	r.Get("/readyz", srv.ReadyzHandler())

	return otelhttp.NewHandler(httpserver.SecurityHeaders(r), "http.server")
}
