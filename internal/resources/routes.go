package resources

import (
	"net/http"

	"github.com/EcoWatch/EcoWatch-Backend/internal/middleware"
	"github.com/EcoWatch/EcoWatch-Backend/internal/models"
	"github.com/go-chi/chi/v5"
)

// SetupRoutes mounts /resources. Anyone signed in may read; changes need a
// coordinator or agency role.
func SetupRoutes(h *Handler, fetcher middleware.SessionFetcher) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.SessionMiddleware(fetcher))

	r.Get("/", h.ListResources)
	r.Get("/{id}", h.GetResource)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RoleMiddleware(models.RoleCoordinator, models.RoleAgency))
		r.Post("/", h.CreateResource)
		r.Patch("/{id}", h.UpdateResource)
		r.Delete("/{id}", h.DeleteResource)
	})
	return r
}

// SetupAllocationRoutes mounts /allocations for staff.
func SetupAllocationRoutes(h *Handler, fetcher middleware.SessionFetcher) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.SessionMiddleware(fetcher))
	r.Use(middleware.RoleMiddleware(models.RoleCoordinator, models.RoleAgency))

	r.Get("/", h.ListAllocations)
	r.Post("/", h.CreateAllocation)
	r.Post("/{id}/return", h.ReturnAllocation)
	r.Post("/{id}/lost", h.MarkAllocationLost)
	return r
}
