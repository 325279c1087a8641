// Package app wires every module onto one router.
package app

import (
	"fmt"
	"net/http"
	"time"

	"github.com/EcoWatch/EcoWatch-Backend/internal/alerts"
	"github.com/EcoWatch/EcoWatch-Backend/internal/analytics"
	"github.com/EcoWatch/EcoWatch-Backend/internal/auth"
	"github.com/EcoWatch/EcoWatch-Backend/internal/config"
	"github.com/EcoWatch/EcoWatch-Backend/internal/dashboard"
	"github.com/EcoWatch/EcoWatch-Backend/internal/incidents"
	"github.com/EcoWatch/EcoWatch-Backend/internal/media"
	"github.com/EcoWatch/EcoWatch-Backend/internal/metrics"
	"github.com/EcoWatch/EcoWatch-Backend/internal/middleware"
	"github.com/EcoWatch/EcoWatch-Backend/internal/notifications"
	"github.com/EcoWatch/EcoWatch-Backend/internal/resources"
	"github.com/EcoWatch/EcoWatch-Backend/internal/storage"
	"github.com/EcoWatch/EcoWatch-Backend/internal/webhooks"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type Deps struct {
	Config config.Config
	Store  storage.Store
	Media  media.Store
	// Geocoder fills missing report addresses. Leave nil to disable.
	Geocoder incidents.Geocoder
	Log      *zap.Logger
}

type App struct {
	Router  http.Handler
	Metrics *metrics.Metrics

	limiter *middleware.RateLimiter
	jobs    *analytics.Jobs
}

func RootHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, "Server is up!")
}

func New(d Deps) *App {
	cfg, log, store := d.Config, d.Log, d.Store
	m := metrics.New()
	limiter := middleware.NewRateLimiter(cfg.ReportRate, max(cfg.ReportRate/6, 3), 10*time.Minute)
	fetcher := auth.SessionInfo{Store: store}

	notifier := notifications.NewNotifier(store, log)

	opts := []incidents.Option{incidents.WithUploadRecorder(m)}
	if d.Geocoder != nil {
		opts = append(opts, incidents.WithGeocoder(d.Geocoder))
	}
	incidentSvc := incidents.NewService(store, notifier, d.Media, log, opts...)
	incidentH := incidents.NewHandler(incidentSvc, log)

	resourceH := resources.NewHandler(resources.NewService(store, log), log)

	jobs := analytics.NewJobs(store, log)
	analyticsH := analytics.NewHandler(store, jobs, m, log)

	authH := auth.NewHandler(store, log, auth.Options{
		DemoLogin:     cfg.DemoLogin,
		SecureCookies: cfg.SecureCookies,
	})

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(log))
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))
	r.Use(m.Middleware)

	r.Get("/", RootHandler)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", m.Handler())

	r.Mount("/auth", auth.SetupRoutes(authH, limiter.Middleware))
	r.Mount("/incidents", incidents.SetupRoutes(incidentH, fetcher, limiter.Middleware))
	r.Mount("/reports", incidents.SetupReportRoutes(incidentH, fetcher, limiter.Middleware))
	r.Mount("/resources", resources.SetupRoutes(resourceH, fetcher))
	r.Mount("/allocations", resources.SetupAllocationRoutes(resourceH, fetcher))
	r.Mount("/alerts", alerts.SetupRoutes(alerts.NewHandler(store, notifier, log), fetcher))
	r.Mount("/notifications", notifications.SetupRoutes(notifications.NewHandler(store, log), fetcher))
	r.Mount("/analytics", analytics.SetupRoutes(analyticsH, fetcher))
	r.Mount("/dashboard", dashboard.SetupRoutes(dashboard.NewHandler(store, analyticsH, log), fetcher))
	r.Mount("/media", media.SetupRoutes(d.Media, log))
	r.Mount("/webhooks", webhooks.SetupRoutes(webhooks.NewHandler(incidentSvc, cfg.IntakeSecret, cfg.IntakeUserID, log)))

	return &App{Router: r, Metrics: m, limiter: limiter, jobs: jobs}
}

// Close stops the rate limiter janitor and waits for running rollups.
func (a *App) Close() {
	a.limiter.Stop()
	a.jobs.Wait()
}
