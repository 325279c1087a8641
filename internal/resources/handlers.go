package resources

import (
	"errors"
	"net/http"

	"github.com/EcoWatch/EcoWatch-Backend/internal/httputil"
	"github.com/EcoWatch/EcoWatch-Backend/internal/models"
	"github.com/EcoWatch/EcoWatch-Backend/internal/storage"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type Handler struct {
	svc *Service
	log *zap.Logger
}

func NewHandler(svc *Service, log *zap.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

func (h *Handler) writeError(w http.ResponseWriter, msg string, err error) {
	var verr ValidationError
	switch {
	case errors.As(err, &verr):
		http.Error(w, verr.Msg, http.StatusBadRequest)
	case errors.Is(err, ErrForbidden):
		http.Error(w, "Forbidden: "+err.Error(), http.StatusForbidden)
	case errors.Is(err, storage.ErrInsufficient), errors.Is(err, storage.ErrConflict):
		http.Error(w, err.Error(), httputil.StatusFor(err))
	default:
		if httputil.StatusFor(err) == http.StatusInternalServerError {
			h.log.Error("[resources] "+msg, zap.Error(err))
		}
		httputil.StoreError(w, msg, err)
	}
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (Caller, bool) {
	c, err := h.svc.CallerFrom(r.Context())
	if err != nil {
		h.log.Error("[resources] caller lookup failed", zap.Error(err))
		http.Error(w, "Couldn't find user", http.StatusUnauthorized)
		return Caller{}, false
	}
	return c, true
}

func (h *Handler) ListResources(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := storage.ResourceFilter{
		Organization: q.Get("organization"),
		Type:         q.Get("type"),
		Status:       models.ResourceStatus(q.Get("status")),
	}
	if f.Status != "" && !models.ValidResourceStatuses[f.Status] {
		http.Error(w, "Unknown status filter", http.StatusBadRequest)
		return
	}
	list, err := h.svc.List(r.Context(), f)
	if err != nil {
		h.writeError(w, "Failed to list resources", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) GetResource(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, "Resource not found", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) CreateResource(w http.ResponseWriter, r *http.Request) {
	var input CreateInput
	if err := httputil.DecodeJSON(w, r, &input); err != nil {
		http.Error(w, "Invalid Request Format", http.StatusBadRequest)
		return
	}
	c, ok := h.caller(w, r)
	if !ok {
		return
	}
	res, err := h.svc.Create(r.Context(), c, input)
	if err != nil {
		h.writeError(w, "Failed to create resource", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, res)
}

func (h *Handler) UpdateResource(w http.ResponseWriter, r *http.Request) {
	var input UpdateInput
	if err := httputil.DecodeJSON(w, r, &input); err != nil {
		http.Error(w, "Invalid Request Format", http.StatusBadRequest)
		return
	}
	c, ok := h.caller(w, r)
	if !ok {
		return
	}
	res, err := h.svc.Update(r.Context(), c, chi.URLParam(r, "id"), input)
	if err != nil {
		h.writeError(w, "Failed to update resource", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) DeleteResource(w http.ResponseWriter, r *http.Request) {
	c, ok := h.caller(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), c, chi.URLParam(r, "id")); err != nil {
		h.writeError(w, "Failed to delete resource", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListAllocations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := h.svc.ListAllocations(r.Context(), storage.AllocationFilter{
		IncidentID: q.Get("incident_id"),
		ResourceID: q.Get("resource_id"),
		Status:     models.AllocationStatus(q.Get("status")),
	})
	if err != nil {
		h.writeError(w, "Failed to list allocations", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) CreateAllocation(w http.ResponseWriter, r *http.Request) {
	var input AllocateInput
	if err := httputil.DecodeJSON(w, r, &input); err != nil {
		http.Error(w, "Invalid Request Format", http.StatusBadRequest)
		return
	}
	c, ok := h.caller(w, r)
	if !ok {
		return
	}
	a, err := h.svc.Allocate(r.Context(), c, input)
	if err != nil {
		h.writeError(w, "Failed to allocate resource", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, a)
}

func (h *Handler) ReturnAllocation(w http.ResponseWriter, r *http.Request) {
	c, ok := h.caller(w, r)
	if !ok {
		return
	}
	a, err := h.svc.Return(r.Context(), c, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, "Failed to return allocation", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a)
}

func (h *Handler) MarkAllocationLost(w http.ResponseWriter, r *http.Request) {
	c, ok := h.caller(w, r)
	if !ok {
		return
	}
	a, err := h.svc.MarkLost(r.Context(), c, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, "Failed to mark allocation lost", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a)
}
