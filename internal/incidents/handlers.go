package incidents

import (
	"errors"
	"net/http"
	"time"

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

// writeError maps service errors onto status codes.
func (h *Handler) writeError(w http.ResponseWriter, msg string, err error) {
	var verr ValidationError
	switch {
	case errors.As(err, &verr):
		http.Error(w, verr.Msg, http.StatusBadRequest)
	case errors.Is(err, ErrForbidden):
		http.Error(w, "Forbidden: "+err.Error(), http.StatusForbidden)
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, storage.ErrConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, storage.ErrNotFound):
		http.Error(w, "Incident not found", http.StatusNotFound)
	default:
		h.log.Error("[incidents] "+msg, zap.Error(err))
		httputil.StoreError(w, msg, err)
	}
}

func (h *Handler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := storage.IncidentFilter{
		Status:     models.IncidentStatus(q.Get("status")),
		Category:   q.Get("category"),
		ReportedBy: q.Get("reported_by"),
		AssignedTo: q.Get("assigned_to"),
	}
	if f.Status != "" && !models.ValidIncidentStatuses[f.Status] {
		http.Error(w, "Unknown status filter", http.StatusBadRequest)
		return
	}

	start := time.Now()
	list, err := h.svc.List(r.Context(), CallerFrom(r.Context()), f)
	if err != nil {
		h.writeError(w, "Failed to list incidents", err)
		return
	}
	httputil.AddServerTiming(w, httputil.Timing{Name: "store", Duration: time.Since(start)})
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) GetIncident(w http.ResponseWriter, r *http.Request) {
	in, err := h.svc.Get(r.Context(), CallerFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, "Failed to load incident", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, in)
}

func (h *Handler) CreateIncident(w http.ResponseWriter, r *http.Request) {
	var input CreateInput
	if err := httputil.DecodeJSON(w, r, &input); err != nil {
		http.Error(w, "Invalid Request Format", http.StatusBadRequest)
		return
	}

	in, err := h.svc.Create(r.Context(), CallerFrom(r.Context()), input)
	if err != nil {
		h.writeError(w, "Failed to create incident", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, in)
}

func (h *Handler) UpdateIncident(w http.ResponseWriter, r *http.Request) {
	var input UpdateInput
	if err := httputil.DecodeJSON(w, r, &input); err != nil {
		http.Error(w, "Invalid Request Format", http.StatusBadRequest)
		return
	}

	in, err := h.svc.Update(r.Context(), CallerFrom(r.Context()), chi.URLParam(r, "id"), input)
	if err != nil {
		h.writeError(w, "Failed to update incident", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, in)
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status models.IncidentStatus `json:"status"`
	}
	if err := httputil.DecodeJSON(w, r, &body); err != nil || body.Status == "" {
		http.Error(w, "status is required", http.StatusBadRequest)
		return
	}

	in, err := h.svc.ChangeStatus(r.Context(), CallerFrom(r.Context()), chi.URLParam(r, "id"), body.Status)
	if err != nil {
		h.writeError(w, "Failed to change status", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, in)
}

func (h *Handler) AssignIncident(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AssignedTo string `json:"assigned_to"`
	}
	if err := httputil.DecodeJSON(w, r, &body); err != nil {
		http.Error(w, "Invalid Request Format", http.StatusBadRequest)
		return
	}

	in, err := h.svc.Assign(r.Context(), CallerFrom(r.Context()), chi.URLParam(r, "id"), body.AssignedTo)
	if err != nil {
		h.writeError(w, "Failed to assign incident", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, in)
}

func (h *Handler) DeleteIncident(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), CallerFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, "Failed to delete incident", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadImage accepts a multipart form with an "image" file part.
func (h *Handler) UploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxImageBytes+1<<20)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			http.Error(w, "Image exceeds 10 MiB", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Malformed multipart upload", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("image")
	if err != nil {
		http.Error(w, "Missing image file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if header.Size > MaxImageBytes {
		http.Error(w, "Image exceeds 10 MiB", http.StatusRequestEntityTooLarge)
		return
	}

	// Trust the bytes, not the client's declared type.
	sniff := make([]byte, 512)
	n, _ := file.Read(sniff)
	contentType := http.DetectContentType(sniff[:n])
	if _, err := file.Seek(0, 0); err != nil {
		http.Error(w, "Failed to read image", http.StatusInternalServerError)
		return
	}

	in, err := h.svc.AddImage(r.Context(), CallerFrom(r.Context()), chi.URLParam(r, "id"), contentType, file)
	if err != nil {
		h.writeError(w, "Failed to store image", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, in)
}
