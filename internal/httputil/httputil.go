// Package httputil holds the small response helpers shared by the route
// packages.
package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/EcoWatch/EcoWatch-Backend/internal/storage"
)

// MaxBodyBytes caps JSON request bodies.
const MaxBodyBytes = 1 << 20 // 1 MiB

func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// DecodeJSON reads a size-limited JSON body into v, rejecting unknown fields.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// StatusFor maps storage errors onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, storage.ErrInsufficient):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// StoreError writes msg with the status matching err. Internal errors get
// the error text appended so operators can see the cause.
func StoreError(w http.ResponseWriter, msg string, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		http.Error(w, msg+": "+err.Error(), status)
		return
	}
	http.Error(w, msg, status)
}

// AddServerTiming appends Server-Timing metrics, e.g. {"store", d}.
func AddServerTiming(w http.ResponseWriter, metrics ...Timing) {
	if len(metrics) == 0 {
		return
	}
	parts := make([]string, 0, len(metrics))
	for _, m := range metrics {
		parts = append(parts, fmt.Sprintf("%s;dur=%.1f", m.Name, float64(m.Duration.Microseconds())/1000))
	}
	w.Header().Add("Server-Timing", strings.Join(parts, ", "))
}

type Timing struct {
	Name     string
	Duration time.Duration
}
