package analytics

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/EcoWatch/EcoWatch-Backend/internal/httputil"
	"github.com/EcoWatch/EcoWatch-Backend/internal/middleware"
	"github.com/EcoWatch/EcoWatch-Backend/internal/models"
	"github.com/EcoWatch/EcoWatch-Backend/internal/storage"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// IncidentGauge receives fresh per-status counts. Satisfied by
// *metrics.Metrics.
type IncidentGauge interface {
	SetIncidentCounts(map[models.IncidentStatus]int)
}

type Handler struct {
	store storage.Store
	jobs  *Jobs
	gauge IncidentGauge
	log   *zap.Logger
	now   func() time.Time
}

// NewHandler wires the analytics routes. gauge may be nil.
func NewHandler(store storage.Store, jobs *Jobs, gauge IncidentGauge, log *zap.Logger) *Handler {
	return &Handler{store: store, jobs: jobs, gauge: gauge, log: log, now: time.Now}
}

func SetupRoutes(h *Handler, fetcher middleware.SessionFetcher) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.SessionMiddleware(fetcher))
	r.Use(middleware.RoleMiddleware(models.RoleCoordinator, models.RoleAgency))

	r.Get("/", h.ListEntries)
	r.Get("/summary", h.GetSummary)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RoleMiddleware(models.RoleCoordinator))
		r.Post("/", h.CreateEntry)
		r.Post("/rollup", h.StartRollup)
		r.Get("/rollup", h.ListRollups)
		r.Get("/rollup/{jobID}", h.GetRollup)
	})
	return r
}

func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := storage.AnalyticsFilter{
		Type:   models.AnalyticsType(q.Get("type")),
		Period: models.Period(q.Get("period")),
	}
	if f.Type != "" && !models.ValidAnalyticsTypes[f.Type] {
		http.Error(w, "Unknown analytics type", http.StatusBadRequest)
		return
	}
	if f.Period != "" && !models.ValidPeriods[f.Period] {
		http.Error(w, "Unknown period", http.StatusBadRequest)
		return
	}

	list, err := h.store.ListAnalytics(r.Context(), f)
	if err != nil {
		h.log.Error("[analytics] list failed", zap.Error(err))
		httputil.StoreError(w, "Failed to load analytics", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Type   models.AnalyticsType `json:"type"`
		Period models.Period        `json:"period"`
		Data   models.JSONMap       `json:"data"`
	}
	if err := httputil.DecodeJSON(w, r, &body); err != nil {
		http.Error(w, "Invalid Request Format", http.StatusBadRequest)
		return
	}
	if !models.ValidAnalyticsTypes[body.Type] || !models.ValidPeriods[body.Period] {
		http.Error(w, "type and period are required", http.StatusBadRequest)
		return
	}
	if body.Data == nil {
		http.Error(w, "data is required", http.StatusBadRequest)
		return
	}

	e, err := h.store.CreateAnalyticsEntry(r.Context(), models.AnalyticsEntry{
		Type: body.Type, Period: body.Period, Data: body.Data,
	})
	if err != nil {
		h.log.Error("[analytics] create failed", zap.Error(err))
		httputil.StoreError(w, "Failed to store analytics entry", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, e)
}

// GetSummary computes live chart data, optionally limited to
// ?period=daily|weekly|monthly.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	period := models.Period(r.URL.Query().Get("period"))
	if period != "" && !models.ValidPeriods[period] {
		http.Error(w, "Unknown period", http.StatusBadRequest)
		return
	}

	start := time.Now()
	sum, err := h.Summary(r.Context(), period)
	if err != nil {
		h.log.Error("[analytics] summary failed", zap.Error(err))
		http.Error(w, "Failed to compute summary", http.StatusInternalServerError)
		return
	}
	httputil.AddServerTiming(w, httputil.Timing{Name: "summary", Duration: time.Since(start)})
	httputil.WriteJSON(w, http.StatusOK, sum)
}

// Summary computes a summary and, for the all-time view, refreshes the
// incident gauge.
func (h *Handler) Summary(ctx context.Context, period models.Period) (Summary, error) {
	sum, err := Summarize(ctx, h.store, period, h.now())
	if err != nil {
		return Summary{}, err
	}
	if h.gauge != nil && period == "" {
		h.gauge.SetIncidentCounts(sum.StatusCounts())
	}
	return sum, nil
}

func (h *Handler) StartRollup(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Period models.Period `json:"period"`
	}
	if err := httputil.DecodeJSON(w, r, &body); err != nil || !models.ValidPeriods[body.Period] {
		http.Error(w, "period must be daily, weekly or monthly", http.StatusBadRequest)
		return
	}

	job, err := h.jobs.Start(r.Context(), body.Period)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.ID,
		"status": job.Status,
	})
}

func (h *Handler) GetRollup(w http.ResponseWriter, r *http.Request) {
	job, ok := h.jobs.Get(chi.URLParam(r, "jobID"))
	if !ok {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, job)
}

// ListRollups returns every job started by this process, newest first.
func (h *Handler) ListRollups(w http.ResponseWriter, r *http.Request) {
	jobs := h.jobs.List()
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].StartedAt.After(jobs[j].StartedAt) })
	httputil.WriteJSON(w, http.StatusOK, jobs)
}
