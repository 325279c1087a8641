package incidents

import (
	"context"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/EcoWatch/EcoWatch-Backend/internal/httputil"
	"github.com/EcoWatch/EcoWatch-Backend/internal/models"
	"github.com/EcoWatch/EcoWatch-Backend/internal/storage"
	"github.com/go-chi/chi/v5"
)

// ReportStatus is the three-state status the citizen app shows.
type ReportStatus string

const (
	ReportOpen       ReportStatus = "open"
	ReportInProgress ReportStatus = "in-progress"
	ReportResolved   ReportStatus = "resolved"
)

// Point is a bare coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Report is the flat view of an incident used by the waste-report app.
type Report struct {
	ID          string       `json:"id"`
	UserID      string       `json:"userId"`
	UserName    string       `json:"userName"`
	Description string       `json:"description"`
	ImageURL    string       `json:"imageUrl"`
	Location    Point        `json:"location"`
	Status      ReportStatus `json:"status"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// ReportStatusOf collapses the incident workflow: reported and
// acknowledged both read as open.
func ReportStatusOf(s models.IncidentStatus) ReportStatus {
	switch s {
	case models.StatusInProgress:
		return ReportInProgress
	case models.StatusResolved:
		return ReportResolved
	}
	return ReportOpen
}

func incidentStatusOf(s ReportStatus) (models.IncidentStatus, bool) {
	switch s {
	case ReportOpen:
		return models.StatusReported, true
	case ReportInProgress:
		return models.StatusInProgress, true
	case ReportResolved:
		return models.StatusResolved, true
	}
	return "", false
}

// ToReport projects an incident. userName is the reporter's display name.
func ToReport(in models.Incident, userName string) Report {
	rep := Report{
		ID:          in.ID,
		UserID:      in.ReportedBy,
		UserName:    userName,
		Description: in.Description,
		Location:    Point{Lat: in.Location.Lat, Lng: in.Location.Lng},
		Status:      ReportStatusOf(in.Status),
		CreatedAt:   in.CreatedAt,
	}
	if len(in.Images) > 0 {
		rep.ImageURL = in.Images[0]
	}
	return rep
}

// nameCache resolves reporter names once per request.
type nameCache struct {
	store storage.Store
	names map[string]string
}

func (c *nameCache) name(ctx context.Context, userID string) string {
	if n, ok := c.names[userID]; ok {
		return n
	}
	n := ""
	if u, err := c.store.GetUser(ctx, userID); err == nil {
		n = u.Name
	}
	c.names[userID] = n
	return n
}

func (h *Handler) reports(ctx context.Context, list []models.Incident) []Report {
	names := &nameCache{store: h.svc.store, names: make(map[string]string)}
	out := make([]Report, 0, len(list))
	for _, in := range list {
		out = append(out, ToReport(in, names.name(ctx, in.ReportedBy)))
	}
	return out
}

// ListReports returns reports newest first, optionally filtered by
// ?status=open|in-progress|resolved.
func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	want := ReportStatus(r.URL.Query().Get("status"))
	if want != "" {
		if _, ok := incidentStatusOf(want); !ok {
			http.Error(w, "Unknown status filter", http.StatusBadRequest)
			return
		}
	}

	list, err := h.svc.List(r.Context(), CallerFrom(r.Context()), storage.IncidentFilter{})
	if err != nil {
		h.writeError(w, "Failed to list reports", err)
		return
	}
	if want != "" {
		kept := list[:0]
		for _, in := range list {
			if ReportStatusOf(in.Status) == want {
				kept = append(kept, in)
			}
		}
		list = kept
	}
	httputil.WriteJSON(w, http.StatusOK, h.reports(r.Context(), list))
}

type reportInput struct {
	Description string `json:"description"`
	ImageURL    string `json:"imageUrl"`
	Location    Point  `json:"location"`
}

// CreateReport files a waste report. The title is derived from the
// description.
func (h *Handler) CreateReport(w http.ResponseWriter, r *http.Request) {
	var body reportInput
	if err := httputil.DecodeJSON(w, r, &body); err != nil {
		http.Error(w, "Invalid Request Format", http.StatusBadRequest)
		return
	}

	input := CreateInput{
		Title:       titleFrom(body.Description),
		Description: body.Description,
		Category:    "waste",
		Severity:    models.LevelMedium,
		Location:    models.Location{Lat: body.Location.Lat, Lng: body.Location.Lng},
	}
	if body.ImageURL != "" {
		input.Images = []string{body.ImageURL}
	}

	in, err := h.svc.Create(r.Context(), CallerFrom(r.Context()), input)
	if err != nil {
		h.writeError(w, "Failed to create report", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, h.reports(r.Context(), []models.Incident{in})[0])
}

// UpdateReportStatus sets a report's status to any of the three states,
// reopening included. Asking for the status a report already shows is a
// no-op, so "open" leaves an acknowledged incident acknowledged.
func (h *Handler) UpdateReportStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status ReportStatus `json:"status"`
	}
	if err := httputil.DecodeJSON(w, r, &body); err != nil {
		http.Error(w, "Invalid Request Format", http.StatusBadRequest)
		return
	}
	to, ok := incidentStatusOf(body.Status)
	if !ok {
		http.Error(w, "status must be open, in-progress or resolved", http.StatusBadRequest)
		return
	}

	c := CallerFrom(r.Context())
	id := chi.URLParam(r, "id")
	current, err := h.svc.Get(r.Context(), c, id)
	if err != nil {
		h.writeError(w, "Failed to load report", err)
		return
	}

	in := current
	if ReportStatusOf(current.Status) != body.Status {
		in, err = h.svc.SetStatus(r.Context(), c, id, to)
		if err != nil {
			h.writeError(w, "Failed to change status", err)
			return
		}
	}
	httputil.WriteJSON(w, http.StatusOK, h.reports(r.Context(), []models.Incident{in})[0])
}

func (h *Handler) DeleteReport(w http.ResponseWriter, r *http.Request) {
	h.DeleteIncident(w, r)
}

const maxTitleRunes = 60

// titleFrom takes the first sentence of desc, cut to maxTitleRunes.
func titleFrom(desc string) string {
	t := strings.TrimSpace(desc)
	if i := strings.IndexAny(t, ".!?\n"); i > 0 {
		t = t[:i]
	}
	if utf8.RuneCountInString(t) > maxTitleRunes {
		runes := []rune(t)
		t = strings.TrimSpace(string(runes[:maxTitleRunes-1])) + "…"
	}
	return t
}
