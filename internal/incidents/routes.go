package incidents

import (
	"net/http"

	"github.com/EcoWatch/EcoWatch-Backend/internal/middleware"
	"github.com/EcoWatch/EcoWatch-Backend/internal/models"
	"github.com/go-chi/chi/v5"
)

// SetupRoutes mounts /incidents. limit throttles report submission and
// image uploads; nil disables it.
func SetupRoutes(h *Handler, fetcher middleware.SessionFetcher, limit func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.SessionMiddleware(fetcher))
	staff := middleware.RoleMiddleware(models.RoleCoordinator, models.RoleAgency)

	r.Get("/", h.ListIncidents)
	r.Get("/{id}", h.GetIncident)
	r.Patch("/{id}", h.UpdateIncident)
	r.Delete("/{id}", h.DeleteIncident)
	r.With(staff).Patch("/{id}/status", h.UpdateStatus)
	r.With(staff).Patch("/{id}/assign", h.AssignIncident)

	r.Group(func(r chi.Router) {
		if limit != nil {
			r.Use(limit)
		}
		r.Post("/", h.CreateIncident)
		r.Post("/{id}/images", h.UploadImage)
	})
	return r
}

// SetupReportRoutes mounts the flat /reports view of the same incidents.
func SetupReportRoutes(h *Handler, fetcher middleware.SessionFetcher, limit func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.SessionMiddleware(fetcher))

	r.Get("/", h.ListReports)
	r.With(middleware.RoleMiddleware(models.RoleCoordinator, models.RoleAgency)).
		Patch("/{id}/status", h.UpdateReportStatus)
	r.Delete("/{id}", h.DeleteReport)

	r.Group(func(r chi.Router) {
		if limit != nil {
			r.Use(limit)
		}
		r.Post("/", h.CreateReport)
	})
	return r
}
