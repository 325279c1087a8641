// Package config reads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"
	StoragePostgres StorageDriver = "postgres"
)

type MediaDriver string

const (
	MediaMemory MediaDriver = "memory"
	MediaFS     MediaDriver = "fs"
	MediaS3     MediaDriver = "s3"
)

var (
	ErrMissingDatabaseURL  = errors.New("DATABASE_URL is required when STORAGE_DRIVER=postgres")
	ErrMissingMediaBucket  = errors.New("MEDIA_S3_BUCKET is required when MEDIA_DRIVER=s3")
	ErrMissingIntakeUserID = errors.New("INTAKE_USER_ID is required when INTAKE_WEBHOOK_SECRET is set")
)

// DefaultAllowedOrigins are the dev servers of the dashboard front end.
var DefaultAllowedOrigins = []string{
	"http://localhost:5173",
	"http://localhost:5174",
}

type Config struct {
	Port     string
	LogLevel string

	Storage     StorageDriver
	DatabaseURL string
	Seed        bool

	AllowedOrigins []string

	Media         MediaDriver
	MediaDir      string
	MediaS3Bucket string
	MediaS3Region string
	MediaS3URL    string // custom endpoint, e.g. MinIO
	MediaS3Path   bool

	GoogleMapsKey string

	IntakeSecret string
	IntakeUserID string

	DemoLogin     bool
	SecureCookies bool

	// Requests per minute per client on report submission and login.
	ReportRate int
}

// LoadFromEnv loads configuration from environment variables.
//
// Environment variables:
//   - PORT (default 5050), LOG_LEVEL (debug|info|warn|error, default info)
//   - STORAGE_DRIVER: "memory" or "postgres" (default memory), DATABASE_URL
//   - SEED: "true" to load the demo fixtures at startup
//   - ALLOWED_ORIGINS: comma separated CORS allow-list
//   - MEDIA_DRIVER: "memory", "fs" or "s3" (default fs), MEDIA_DIR (default ./media)
//   - MEDIA_S3_BUCKET, MEDIA_S3_REGION, MEDIA_S3_ENDPOINT, MEDIA_S3_PATH_STYLE
//   - GOOGLE_MAPS_API_KEY: enables address lookup for reports
//   - INTAKE_WEBHOOK_SECRET, INTAKE_USER_ID: signed intake webhook
//   - DEMO_LOGIN: "true" enables email+role login without a password
//   - COOKIE_SECURE: "true" marks the session cookie Secure; SameSite=None
//   - REPORT_RATE: requests per minute (default 30)
func LoadFromEnv() Config {
	cfg := Config{
		Port:          envOr("PORT", "5050"),
		LogLevel:      strings.ToLower(envOr("LOG_LEVEL", "info")),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		Seed:          envBool("SEED"),
		MediaDir:      envOr("MEDIA_DIR", "./media"),
		MediaS3Bucket: os.Getenv("MEDIA_S3_BUCKET"),
		MediaS3Region: envOr("MEDIA_S3_REGION", "us-east-1"),
		MediaS3URL:    os.Getenv("MEDIA_S3_ENDPOINT"),
		MediaS3Path:   envBool("MEDIA_S3_PATH_STYLE"),
		GoogleMapsKey: os.Getenv("GOOGLE_MAPS_API_KEY"),
		IntakeSecret:  os.Getenv("INTAKE_WEBHOOK_SECRET"),
		IntakeUserID:  os.Getenv("INTAKE_USER_ID"),
		DemoLogin:     envBool("DEMO_LOGIN"),
		SecureCookies: envBool("COOKIE_SECURE"),
		ReportRate:    30,
	}

	switch strings.ToLower(strings.TrimSpace(os.Getenv("STORAGE_DRIVER"))) {
	case "postgres":
		cfg.Storage = StoragePostgres
	default:
		cfg.Storage = StorageMemory
	}

	switch strings.ToLower(strings.TrimSpace(os.Getenv("MEDIA_DRIVER"))) {
	case "memory":
		cfg.Media = MediaMemory
	case "s3":
		cfg.Media = MediaS3
	default:
		cfg.Media = MediaFS
	}

	cfg.AllowedOrigins = DefaultAllowedOrigins
	if raw := os.Getenv("ALLOWED_ORIGINS"); raw != "" {
		cfg.AllowedOrigins = nil
		for _, o := range strings.Split(raw, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	}

	if raw := os.Getenv("REPORT_RATE"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			cfg.ReportRate = n
		}
	}

	return cfg
}

// Validate checks that the selected drivers have what they need.
func (c Config) Validate() error {
	if c.Storage == StoragePostgres && c.DatabaseURL == "" {
		return ErrMissingDatabaseURL
	}
	if c.Media == MediaS3 && c.MediaS3Bucket == "" {
		return ErrMissingMediaBucket
	}
	if c.IntakeSecret != "" && c.IntakeUserID == "" {
		return ErrMissingIntakeUserID
	}
	if c.Port == "" {
		return fmt.Errorf("PORT is empty")
	}
	return nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envBool(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
