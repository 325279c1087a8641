package media

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// SetupRoutes serves stored blobs. Drivers that can presign get a redirect.
func SetupRoutes(store Store, log *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "*")
		if _, err := cleanKey(key); err != nil {
			http.Error(w, "Invalid media key", http.StatusBadRequest)
			return
		}

		if p, ok := store.(Presigner); ok {
			u, err := p.PresignURL(r.Context(), key, 15*time.Minute)
			if err != nil {
				log.Error("[media] presign failed", zap.String("key", key), zap.Error(err))
				http.Error(w, "Failed to sign media URL", http.StatusInternalServerError)
				return
			}
			http.Redirect(w, r, u, http.StatusFound)
			return
		}

		info, body, err := store.Get(r.Context(), key)
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "Media not found", http.StatusNotFound)
			return
		}
		if err != nil {
			log.Error("[media] read failed", zap.String("key", key), zap.Error(err))
			http.Error(w, "Failed to read media", http.StatusInternalServerError)
			return
		}
		defer body.Close()

		if info.ContentType != "" {
			w.Header().Set("Content-Type", info.ContentType)
		}
		if info.Size > 0 {
			w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
		}
		w.Header().Set("Cache-Control", "public, max-age=86400")
		io.Copy(w, body)
	})
	return r
}
