package httpapi

import (
	"github.com/go-chi/chi/v5"

	"github.com/flap-ai/flapd/internal/middleware"
	"github.com/flap-ai/flapd/internal/port/identity"
)

// MountRoutes registers all API routes on the given chi router. The chat and
// conversation endpoints require a verified caller; the stream endpoint takes
// optional auth so anonymous users can still stream, they just get no
// cross-device persistence.
func MountRoutes(r chi.Router, h *Handlers, verifier identity.Verifier) {
	r.Get("/", h.HandleRoot)
	r.Get("/health", h.HandleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalAuth(verifier))
			r.Post("/chat/stream", h.HandleChatStream)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(verifier))
			r.Post("/chat", h.HandleChat)
			r.Get("/conversations", h.HandleListConversations)
			r.Get("/conversations/{id}", h.HandleGetConversation)
			r.Delete("/conversations/{id}", h.HandleDeleteConversation)
		})
	})
}
