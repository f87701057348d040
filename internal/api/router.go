// Package api serves the HTTP endpoints used by the Telegram web app.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router wires every route. Player endpoints wait for the schema bootstrap.
// The payment webhook authenticates by peer address, so it sits outside
// RealIP and never sees forwarding headers.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(countRequests)

	if h.webhook != nil {
		r.With(h.requireSchema).Post("/webhooks/yookassa", h.webhook)
	}

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.RealIP)

		r.Get("/api/health", h.Health)
		r.Handle("/metrics", promhttp.Handler())

		r.Route("/api", func(r chi.Router) {
			r.Use(httprate.LimitByIP(h.opts.RateLimit, time.Minute))
			r.Use(h.requireSchema)

			r.Post("/state", h.State)
			r.Post("/tap", h.Tap)
			r.Post("/task", h.Task)
			r.Post("/friends", h.Friends)
			r.Post("/leaderboard", h.Leaderboard)
			r.Post("/withdraw/info", h.WithdrawInfo)

			r.Get("/powerups/catalog", h.PowerupCatalog)
			r.Post("/powerups/checkout", h.PowerupCheckout)
			r.Post("/powerups/consume", h.PowerupConsume)
		})
	})

	return r
}
