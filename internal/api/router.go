package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"pg-advisor/internal/middleware"
)

// RouterOptions tunes the middleware stack around the handlers.
type RouterOptions struct {
	// RateLimitRPS throttles /v1/optimize per client; zero disables
	// the limiter.
	RateLimitRPS   float64
	RateLimitBurst int
	// AllowedOrigins feeds the CORS layer; empty disables it.
	AllowedOrigins []string
}

// NewRouter mounts the handlers behind request-id, logging, recovery,
// and CORS middleware. Optimization requests additionally pass a
// per-client token bucket: they cost real work on the target database,
// so they are the one route worth throttling.
func NewRouter(h *Handler, opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", h.Healthz)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/validate", h.Validate)
		r.Post("/analyze", h.Analyze)

		r.Group(func(r chi.Router) {
			if opts.RateLimitRPS > 0 {
				r.Use(middleware.RateLimit(opts.RateLimitRPS, opts.RateLimitBurst))
			}
			r.Post("/optimize", h.Optimize)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", h.ListSessions)
			r.Get("/{id}", h.GetSession)
			r.Post("/{id}/cancel", h.CancelSession)
			r.Get("/{id}/attempts", h.SessionAttempts)
			r.Get("/{id}/recommendations", h.SessionRecommendations)
		})

		r.Route("/connections", func(r chi.Router) {
			r.Get("/", h.ListConnections)
			r.Post("/", h.CreateConnection)
			r.Get("/{name}", h.GetConnection)
			r.Delete("/{name}", h.DeleteConnection)
			r.Post("/{name}/test", h.TestConnection)
		})
	})

	return r
}
