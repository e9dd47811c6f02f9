package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter mounts all routes on a chi router.
func NewRouter(h *Handlers) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/api", func(r chi.Router) {
		// Price query; the wid routes are older aliases.
		r.With(corsFor("GET", "OPTIONS")).HandleFunc("/preco_wid", h.Price)

		r.Route("/ml", func(r chi.Router) {
			r.Use(corsFor("GET", "OPTIONS"))
			r.HandleFunc("/preco", h.Price)
			r.HandleFunc("/preco_wid", h.Price)
			r.Get("/login", h.Login)
			r.Get("/callback", h.Callback)
			r.Get("/env", h.Env)
			r.Get("/test-token", h.TestToken)
		})

		r.Route("/costs", func(r chi.Router) {
			r.Use(corsFor("POST", "OPTIONS"))
			r.Post("/", h.Costs)
		})

		r.Group(func(r chi.Router) {
			r.Use(corsFor("GET", "OPTIONS"))
			r.Get("/cron/refresh", h.CronRefresh)
			r.Get("/health", h.Health)
		})
	})

	return r
}

// corsFor allows any origin to use the given methods.
func corsFor(methods ...string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: methods,
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	})
}
