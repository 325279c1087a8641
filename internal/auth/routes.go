package auth

import (
	"net/http"

	"github.com/EcoWatch/EcoWatch-Backend/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// SetupRoutes mounts the auth endpoints. limit throttles the credential
// endpoints; pass nil to leave them unthrottled.
func SetupRoutes(h *Handler, limit func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	sessionFetcher := SessionInfo{Store: h.store}

	r.Group(func(r chi.Router) {
		if limit != nil {
			r.Use(limit)
		}
		r.Post("/register", h.RegisterHandler)
		r.Post("/login", h.LoginHandler)
		if h.opts.DemoLogin {
			r.Post("/demo-login", h.DemoLoginHandler)
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.SessionMiddleware(sessionFetcher))
		r.Post("/logout", h.LogoutHandler)
		r.Get("/me", h.MeHandler)
		r.Post("/password", h.UpdatePasswordHandler)
	})

	return r
}
