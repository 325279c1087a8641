// Package webhooks receives signed form submissions from outside intake
// channels and files them as incidents.
package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/EcoWatch/EcoWatch-Backend/internal/httputil"
	"github.com/EcoWatch/EcoWatch-Backend/internal/incidents"
	"github.com/EcoWatch/EcoWatch-Backend/internal/models"
	"go.uber.org/zap"
)

const (
	SignatureHeader  = "Intake-Signature"
	SubmissionHeader = "Intake-Submission-Id"
)

// Filer records an external submission. Satisfied by *incidents.Service.
type Filer interface {
	FileExternal(ctx context.Context, reporter, ref string, input incidents.CreateInput) (models.Incident, bool, error)
}

type Handler struct {
	filer    Filer
	secret   string
	reporter string
	log      *zap.Logger
}

// NewHandler files submissions as reporter. An empty secret rejects every
// delivery.
func NewHandler(filer Filer, secret, reporter string, log *zap.Logger) *Handler {
	return &Handler{filer: filer, secret: secret, reporter: reporter, log: log}
}

func (h *Handler) IntakeWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MiB
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "payload too large or unreadable", http.StatusRequestEntityTooLarge)
		return
	}
	defer r.Body.Close()

	sig := r.Header.Get(SignatureHeader)
	sid := r.Header.Get(SubmissionHeader)
	if sid == "" {
		http.Error(w, "missing submission id", http.StatusBadRequest)
		return
	}

	if h.secret == "" || h.reporter == "" {
		h.log.Error("[webhooks] intake called but INTAKE_WEBHOOK_SECRET or INTAKE_USER_ID is unset")
		http.Error(w, "server misconfigured", http.StatusInternalServerError)
		return
	}
	if !Verify(sig, sid, raw, h.secret) {
		h.log.Warn("[webhooks] bad signature", zap.String("submission_id", sid))
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	input := incidents.CreateInput{
		Title:       str(m, "Title", "title", "Subject", "subject"),
		Description: str(m, "Description", "description", "Message", "message"),
		Category:    str(m, "Category", "category"),
		Severity:    models.Level(strings.ToLower(str(m, "Severity", "severity"))),
		Location: models.Location{
			Lat:     num(m, "Latitude", "latitude", "lat"),
			Lng:     num(m, "Longitude", "longitude", "lng"),
			Address: str(m, "Address", "address", "Location", "location"),
		},
	}
	if input.Severity == "" && boolAny(m, "Urgent", "urgent") {
		input.Severity = models.LevelHigh
	}
	if img := str(m, "Photo", "photo", "Image", "image"); img != "" {
		input.Images = []string{img}
	}

	in, created, err := h.filer.FileExternal(r.Context(), h.reporter, sid, input)
	var verr incidents.ValidationError
	if errors.As(err, &verr) {
		http.Error(w, verr.Msg, http.StatusBadRequest)
		return
	}
	if err != nil {
		h.log.Error("[webhooks] filing failed", zap.String("submission_id", sid), zap.Error(err))
		http.Error(w, "db insert failed", http.StatusInternalServerError)
		return
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
		h.log.Info("[webhooks] duplicate submission ignored", zap.String("submission_id", sid), zap.String("incident_id", in.ID))
	}
	httputil.WriteJSON(w, status, map[string]any{
		"ok":          true,
		"incident_id": in.ID,
		"duplicate":   !created,
	})
}

// Verify checks sig against HMAC-SHA256 of the body followed by the
// submission ID.
func Verify(sig, sid string, raw []byte, secret string) bool {
	if !strings.HasPrefix(sig, "sha256=") {
		return false
	}
	return hmac.Equal([]byte(sig), []byte(Sign(sid, raw, secret)))
}

// Sign returns the header value a sender puts in Intake-Signature.
func Sign(sid string, raw []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(raw)
	mac.Write([]byte(sid))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func toBool(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		s := strings.ToLower(strings.TrimSpace(x))
		return s == "true" || s == "on" || s == "1" || s == "yes"
	default:
		return false
	}
}

func str(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

func boolAny(m map[string]any, keys ...string) bool {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return toBool(v)
		}
	}
	return false
}

// num accepts JSON numbers and numeric strings; anything else is 0.
func num(m map[string]any, keys ...string) float64 {
	for _, k := range keys {
		switch x := m[k].(type) {
		case float64:
			return x
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
				return f
			}
		}
	}
	return 0
}
