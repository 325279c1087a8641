// Package alerts serves broadcast alerts and fans them out as
// notifications.
package alerts

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/EcoWatch/EcoWatch-Backend/internal/httputil"
	"github.com/EcoWatch/EcoWatch-Backend/internal/middleware"
	"github.com/EcoWatch/EcoWatch-Backend/internal/models"
	"github.com/EcoWatch/EcoWatch-Backend/internal/notifications"
	"github.com/EcoWatch/EcoWatch-Backend/internal/storage"
	"github.com/EcoWatch/EcoWatch-Backend/internal/utils"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type Handler struct {
	store    storage.Store
	notifier *notifications.Notifier
	log      *zap.Logger
	now      func() time.Time
}

func NewHandler(store storage.Store, notifier *notifications.Notifier, log *zap.Logger) *Handler {
	return &Handler{store: store, notifier: notifier, log: log, now: time.Now}
}

func SetupRoutes(h *Handler, fetcher middleware.SessionFetcher) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.SessionMiddleware(fetcher))

	r.Get("/", h.ListAlerts)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RoleMiddleware(models.RoleCoordinator))
		r.Post("/", h.CreateAlert)
		r.Patch("/{id}", h.UpdateAlert)
	})
	return r
}

// Active returns the unexpired alerts addressed to the user, newest first.
func Active(ctx context.Context, store storage.Store, userID string, role models.Role, now time.Time) ([]models.Alert, error) {
	all, err := store.ListAlerts(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Alert, 0, len(all))
	for _, a := range all {
		if a.Active(now) && notifications.Targets(a, userID, role) {
			out = append(out, a)
		}
	}
	return out, nil
}

// ListAlerts returns the caller's active alerts. Coordinators may pass
// all=true to see every alert, expired ones included.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	userID, _ := utils.GetUserIDFromContext(r.Context())
	role, _ := utils.GetRoleFromContext(r.Context())

	var (
		list []models.Alert
		err  error
	)
	if r.URL.Query().Get("all") == "true" && role == models.RoleCoordinator {
		list, err = h.store.ListAlerts(r.Context())
	} else {
		list, err = Active(r.Context(), h.store, userID, role, h.now())
	}
	if err != nil {
		h.log.Error("[alerts] list failed", zap.Error(err))
		httputil.StoreError(w, "Failed to load alerts", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

type alertInput struct {
	Title       string           `json:"title"`
	Message     string           `json:"message"`
	Type        models.AlertType `json:"type"`
	Priority    models.Level     `json:"priority"`
	TargetUsers []string         `json:"target_users"`
	IncidentID  *string          `json:"incident_id"`
	Location    *models.Location `json:"location"`
	ExpiresAt   *time.Time       `json:"expires_at"`
}

// validate checks the fields that are set. full requires the fields a new
// alert cannot do without.
func (h *Handler) validate(ctx context.Context, in *alertInput, full bool) string {
	in.Title = strings.TrimSpace(in.Title)
	in.Message = strings.TrimSpace(in.Message)
	if full {
		if in.Title == "" || in.Message == "" {
			return "title and message are required"
		}
		if in.Type == "" {
			in.Type = models.AlertInfo
		}
		if in.Priority == "" {
			in.Priority = models.LevelMedium
		}
	}
	if in.Type != "" && !models.ValidAlertTypes[in.Type] {
		return "unknown alert type " + string(in.Type)
	}
	if in.Priority != "" && !models.ValidLevels[in.Priority] {
		return "unknown priority " + string(in.Priority)
	}
	for _, t := range in.TargetUsers {
		if strings.TrimSpace(t) == "" {
			return "target_users cannot contain empty entries"
		}
	}
	if in.Location != nil && !in.Location.Valid() {
		return "location is out of range"
	}
	// A past expiry on update ends the alert early.
	if full && in.ExpiresAt != nil && !in.ExpiresAt.After(h.now()) {
		return "expires_at must be in the future"
	}
	if in.IncidentID != nil {
		if _, err := h.store.GetIncident(ctx, *in.IncidentID); err != nil {
			return "incident " + *in.IncidentID + " does not exist"
		}
	}
	return ""
}

// CreateAlert stores an alert and notifies every targeted user.
func (h *Handler) CreateAlert(w http.ResponseWriter, r *http.Request) {
	var in alertInput
	if err := httputil.DecodeJSON(w, r, &in); err != nil {
		http.Error(w, "Invalid Request Format", http.StatusBadRequest)
		return
	}
	if msg := h.validate(r.Context(), &in, true); msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	userID, _ := utils.GetUserIDFromContext(r.Context())
	a, err := h.store.CreateAlert(r.Context(), models.Alert{
		Title:       in.Title,
		Message:     in.Message,
		Type:        in.Type,
		Priority:    in.Priority,
		TargetUsers: in.TargetUsers,
		IncidentID:  in.IncidentID,
		Location:    in.Location,
		CreatedBy:   userID,
		ExpiresAt:   in.ExpiresAt,
	})
	if err != nil {
		h.log.Error("[alerts] create failed", zap.Error(err))
		httputil.StoreError(w, "Failed to create alert", err)
		return
	}

	sent, err := h.notifier.AlertIssued(r.Context(), a)
	if err != nil {
		// The alert itself is stored; users still see it on GET /alerts.
		h.log.Warn("[alerts] fan-out failed", zap.String("alert_id", a.ID), zap.Error(err))
	}
	h.log.Info("[alerts] issued",
		zap.String("alert_id", a.ID),
		zap.String("type", string(a.Type)),
		zap.Strings("targets", a.TargetUsers),
		zap.Int("notified", sent))
	httputil.WriteJSON(w, http.StatusCreated, a)
}

func (h *Handler) UpdateAlert(w http.ResponseWriter, r *http.Request) {
	var in alertInput
	if err := httputil.DecodeJSON(w, r, &in); err != nil {
		http.Error(w, "Invalid Request Format", http.StatusBadRequest)
		return
	}
	if msg := h.validate(r.Context(), &in, false); msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	p := storage.AlertPatch{
		TargetUsers: in.TargetUsers,
		IncidentID:  in.IncidentID,
		Location:    in.Location,
		ExpiresAt:   in.ExpiresAt,
	}
	if in.Title != "" {
		p.Title = &in.Title
	}
	if in.Message != "" {
		p.Message = &in.Message
	}
	if in.Type != "" {
		p.Type = &in.Type
	}
	if in.Priority != "" {
		p.Priority = &in.Priority
	}

	a, err := h.store.UpdateAlert(r.Context(), chi.URLParam(r, "id"), p)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "Alert not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error("[alerts] update failed", zap.Error(err))
		httputil.StoreError(w, "Failed to update alert", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a)
}
