package api

import (
	"log/slog"

	"trainer-chat/auth"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(log *slog.Logger, h *Handler, validator *auth.TokenValidator) *chi.Mux {
	r := chi.NewRouter()

	r.Use(Metrics)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(RequestLogger(log))
	r.Use(chimw.Recoverer)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", h.Health)

	r.Group(func(r chi.Router) {
		r.Use(validator.Middleware)

		r.Get("/conversations", h.ListConversations)
		r.Get("/conversations/{peerID}", h.GetConversation)
		r.Get("/conversations/{peerID}/messages", h.GetMessages)
		r.Post("/conversations/{peerID}/messages", h.SendMessage)
		r.Post("/conversations/{peerID}/read", h.MarkRead)
		r.Get("/conversations/{peerID}/stream", h.Stream)
		r.Get("/stream", h.Stream)
	})

	return r
}
