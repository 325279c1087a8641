// Package dashboard assembles the role-specific landing view.
package dashboard

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/EcoWatch/EcoWatch-Backend/internal/alerts"
	"github.com/EcoWatch/EcoWatch-Backend/internal/analytics"
	"github.com/EcoWatch/EcoWatch-Backend/internal/httputil"
	"github.com/EcoWatch/EcoWatch-Backend/internal/middleware"
	"github.com/EcoWatch/EcoWatch-Backend/internal/models"
	"github.com/EcoWatch/EcoWatch-Backend/internal/storage"
	"github.com/EcoWatch/EcoWatch-Backend/internal/utils"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Summarizer computes the analytics summary. Satisfied by
// *analytics.Handler so the dashboard also refreshes the incident gauge.
type Summarizer interface {
	Summary(ctx context.Context, period models.Period) (analytics.Summary, error)
}

type Handler struct {
	store   storage.Store
	summary Summarizer
	log     *zap.Logger
	now     func() time.Time
}

func NewHandler(store storage.Store, summary Summarizer, log *zap.Logger) *Handler {
	return &Handler{store: store, summary: summary, log: log, now: time.Now}
}

func SetupRoutes(h *Handler, fetcher middleware.SessionFetcher) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.SessionMiddleware(fetcher))
	r.Get("/", h.GetDashboard)
	return r
}

type CitizenCounts struct {
	Total      int `json:"total"`
	Open       int `json:"open"`
	InProgress int `json:"in_progress"`
	Resolved   int `json:"resolved"`
}

type CitizenView struct {
	Role          models.Role           `json:"role"`
	Reports       []models.Incident     `json:"reports"`
	Counts        CitizenCounts         `json:"counts"`
	Alerts        []models.Alert        `json:"alerts"`
	Notifications []models.Notification `json:"notifications"`
}

type Availability struct {
	Type      string `json:"type"`
	Quantity  int    `json:"quantity"`
	Available int    `json:"available"`
}

type CoordinatorView struct {
	Role       models.Role       `json:"role"`
	Open       []models.Incident `json:"open_incidents"`
	Unassigned []models.Incident `json:"unassigned"`
	Summary    analytics.Summary `json:"summary"`
	Alerts     []models.Alert    `json:"alerts"`
	Resources  []Availability    `json:"resources"`
}

type AgencyView struct {
	Role         models.Role                 `json:"role"`
	Organization string                      `json:"organization"`
	Assigned     []models.Incident           `json:"assigned"`
	Resources    []models.Resource           `json:"resources"`
	Allocations  []models.ResourceAllocation `json:"active_allocations"`
	Alerts       []models.Alert              `json:"alerts"`
}

func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	userID, _ := utils.GetUserIDFromContext(r.Context())
	role, _ := utils.GetRoleFromContext(r.Context())

	start := time.Now()
	var (
		view interface{}
		err  error
	)
	switch role {
	case models.RoleCoordinator:
		view, err = h.coordinator(r.Context(), userID)
	case models.RoleAgency:
		view, err = h.agency(r.Context(), userID)
	default:
		view, err = h.citizen(r.Context(), userID)
	}
	if err != nil {
		h.log.Error("[dashboard] build failed", zap.String("role", string(role)), zap.Error(err))
		httputil.StoreError(w, "Failed to build dashboard", err)
		return
	}
	httputil.AddServerTiming(w, httputil.Timing{Name: "dashboard", Duration: time.Since(start)})
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) citizen(ctx context.Context, userID string) (CitizenView, error) {
	reports, err := h.store.ListIncidents(ctx, storage.IncidentFilter{ReportedBy: userID})
	if err != nil {
		return CitizenView{}, fmt.Errorf("list reports: %w", err)
	}
	active, err := alerts.Active(ctx, h.store, userID, models.RoleCitizen, h.now())
	if err != nil {
		return CitizenView{}, fmt.Errorf("list alerts: %w", err)
	}
	notes, err := h.store.ListNotifications(ctx, userID)
	if err != nil {
		return CitizenView{}, fmt.Errorf("list notifications: %w", err)
	}

	unread := make([]models.Notification, 0, len(notes))
	for _, n := range notes {
		if !n.Read {
			unread = append(unread, n)
		}
	}
	counts := CitizenCounts{Total: len(reports)}
	for _, in := range reports {
		switch in.Status {
		case models.StatusInProgress:
			counts.InProgress++
		case models.StatusResolved:
			counts.Resolved++
		default:
			counts.Open++
		}
	}
	return CitizenView{
		Role:          models.RoleCitizen,
		Reports:       reports,
		Counts:        counts,
		Alerts:        active,
		Notifications: unread,
	}, nil
}

func (h *Handler) coordinator(ctx context.Context, userID string) (CoordinatorView, error) {
	all, err := h.store.ListIncidents(ctx, storage.IncidentFilter{})
	if err != nil {
		return CoordinatorView{}, fmt.Errorf("list incidents: %w", err)
	}
	open := make([]models.Incident, 0, len(all))
	unassigned := []models.Incident{}
	for _, in := range all {
		if in.Status == models.StatusResolved {
			continue
		}
		open = append(open, in)
		if in.AssignedTo == nil {
			unassigned = append(unassigned, in)
		}
	}
	// Highest priority first; the store already returns newest first.
	sort.SliceStable(open, func(i, j int) bool { return open[i].Priority.Rank() < open[j].Priority.Rank() })

	sum, err := h.summary.Summary(ctx, "")
	if err != nil {
		return CoordinatorView{}, fmt.Errorf("summary: %w", err)
	}
	active, err := alerts.Active(ctx, h.store, userID, models.RoleCoordinator, h.now())
	if err != nil {
		return CoordinatorView{}, fmt.Errorf("list alerts: %w", err)
	}
	resources, err := h.store.ListResources(ctx, storage.ResourceFilter{})
	if err != nil {
		return CoordinatorView{}, fmt.Errorf("list resources: %w", err)
	}

	return CoordinatorView{
		Role:       models.RoleCoordinator,
		Open:       open,
		Unassigned: unassigned,
		Summary:    sum,
		Alerts:     active,
		Resources:  availability(resources),
	}, nil
}

func availability(resources []models.Resource) []Availability {
	byType := make(map[string]*Availability)
	for _, r := range resources {
		a, ok := byType[r.Type]
		if !ok {
			a = &Availability{Type: r.Type}
			byType[r.Type] = a
		}
		a.Quantity += r.Quantity
		a.Available += r.Available
	}
	out := make([]Availability, 0, len(byType))
	for _, a := range byType {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

func (h *Handler) agency(ctx context.Context, userID string) (AgencyView, error) {
	user, err := h.store.GetUser(ctx, userID)
	if err != nil {
		return AgencyView{}, fmt.Errorf("load user: %w", err)
	}
	view := AgencyView{
		Role:        models.RoleAgency,
		Resources:   []models.Resource{},
		Allocations: []models.ResourceAllocation{},
	}
	if user.Organization != nil {
		view.Organization = *user.Organization
	}

	if view.Assigned, err = h.store.ListIncidents(ctx, storage.IncidentFilter{AssignedTo: userID}); err != nil {
		return AgencyView{}, fmt.Errorf("list assigned: %w", err)
	}
	if view.Organization != "" {
		if view.Resources, err = h.store.ListResources(ctx, storage.ResourceFilter{Organization: view.Organization}); err != nil {
			return AgencyView{}, fmt.Errorf("list resources: %w", err)
		}
		for _, res := range view.Resources {
			out, err := h.store.ListAllocations(ctx, storage.AllocationFilter{ResourceID: res.ID, Status: models.AllocationAllocated})
			if err != nil {
				return AgencyView{}, fmt.Errorf("list allocations: %w", err)
			}
			view.Allocations = append(view.Allocations, out...)
		}
	}
	if view.Alerts, err = alerts.Active(ctx, h.store, userID, models.RoleAgency, h.now()); err != nil {
		return AgencyView{}, fmt.Errorf("list alerts: %w", err)
	}
	return view, nil
}
