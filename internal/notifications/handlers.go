package notifications

import (
	"net/http"
	"sort"

	"github.com/EcoWatch/EcoWatch-Backend/internal/httputil"
	"github.com/EcoWatch/EcoWatch-Backend/internal/middleware"
	"github.com/EcoWatch/EcoWatch-Backend/internal/storage"
	"github.com/EcoWatch/EcoWatch-Backend/internal/utils"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type Handler struct {
	store storage.Store
	log   *zap.Logger
}

func NewHandler(store storage.Store, log *zap.Logger) *Handler {
	return &Handler{store: store, log: log}
}

// SetupRoutes expects fetcher to resolve session cookies.
func SetupRoutes(h *Handler, fetcher middleware.SessionFetcher) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.SessionMiddleware(fetcher))
	r.Get("/", h.ListNotifications)
	r.Post("/{id}/read", h.MarkRead)
	return r
}

// ListNotifications returns the caller's notifications, unread first and
// newest first within each group.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	userID, _ := utils.GetUserIDFromContext(r.Context())

	list, err := h.store.ListNotifications(r.Context(), userID)
	if err != nil {
		h.log.Error("[notifications] list failed", zap.String("user_id", userID), zap.Error(err))
		httputil.StoreError(w, "Failed to load notifications", err)
		return
	}
	sort.SliceStable(list, func(i, j int) bool {
		return !list[i].Read && list[j].Read
	})
	if r.URL.Query().Get("unread") == "true" {
		n := 0
		for _, note := range list {
			if !note.Read {
				n++
			}
		}
		list = list[:n]
	}

	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, _ := utils.GetUserIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	note, err := h.store.GetNotification(r.Context(), id)
	// Someone else's notification looks the same as a missing one.
	if err != nil || note.UserID != userID {
		http.Error(w, "Notification not found", http.StatusNotFound)
		return
	}

	if _, err := h.store.MarkNotificationRead(r.Context(), id); err != nil {
		httputil.StoreError(w, "Failed to mark notification read", err)
		return
	}
	note.Read = true
	httputil.WriteJSON(w, http.StatusOK, note)
}
