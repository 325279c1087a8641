// Package media stores report images. Drivers: memory (tests), fs (local
// development) and s3 (S3 or MinIO).
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/EcoWatch/EcoWatch-Backend/internal/config"
)

var (
	ErrNotFound   = errors.New("media: not found")
	ErrExists     = errors.New("media: already exists")
	ErrInvalidKey = errors.New("media: invalid key")
)

// URLPrefix is where the API serves stored blobs.
const URLPrefix = "/media/"

type Info struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size_bytes"`
	ContentType  string    `json:"content_type,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

type Store interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) (Info, error)
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Delete(ctx context.Context, key string) (bool, error)
	Driver() config.MediaDriver
}

// Presigner is implemented by drivers that can hand out a direct download
// URL instead of streaming through the API.
type Presigner interface {
	PresignURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// Open builds the store selected in cfg.
func Open(ctx context.Context, cfg config.Config) (Store, error) {
	switch cfg.Media {
	case config.MediaMemory:
		return NewMemory(), nil
	case config.MediaFS:
		return NewFS(cfg.MediaDir)
	case config.MediaS3:
		return NewS3(ctx, S3Config{
			Bucket:    cfg.MediaS3Bucket,
			Region:    cfg.MediaS3Region,
			Endpoint:  cfg.MediaS3URL,
			PathStyle: cfg.MediaS3Path,
		})
	}
	return nil, fmt.Errorf("unknown media driver %q", cfg.Media)
}

// URL is the API path of a stored key.
func URL(key string) string {
	return URLPrefix + key
}

// KeyFromURL reverses URL. It returns false for anything not served by us.
func KeyFromURL(u string) (string, bool) {
	if !strings.HasPrefix(u, URLPrefix) {
		return "", false
	}
	return strings.TrimPrefix(u, URLPrefix), true
}

// cleanKey rejects empty, absolute and escaping keys.
func cleanKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return path.Clean(key), nil
}
