package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// maxUpdateSize bounds a webhook body. Telegram updates are far smaller.
const maxUpdateSize = 1 << 20

func SetupRouter(h *Handler, logger zerolog.Logger) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(Metrics)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(Logger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/", h.Status)
	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(MaxBodySize(maxUpdateSize))
		if h.webhookSecret != "" {
			r.Post("/webhook/{secret}", h.Webhook)
		} else {
			r.Post("/webhook", h.Webhook)
		}
	})

	return r
}
