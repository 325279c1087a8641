package webhooks

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// SetupRoutes mounts the public intake endpoint. Requests authenticate by
// signature, not session.
func SetupRoutes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Post("/intake", h.IntakeWebhook)
	return r
}
