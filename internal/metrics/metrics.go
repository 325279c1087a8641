// Package metrics exposes Prometheus collectors for the HTTP layer and the
// incident backlog.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/EcoWatch/EcoWatch-Backend/internal/models"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	incidents *prometheus.GaugeVec
	uploads   prometheus.Counter
}

// New registers every collector on a private registry so tests can build
// as many instances as they like.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ecowatch",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern, method and status.",
		}, []string{"route", "method", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ecowatch",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		incidents: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ecowatch",
			Name:      "incidents",
			Help:      "Incidents by status at the last summary.",
		}, []string{"status"}),
		uploads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ecowatch",
			Name:      "report_images_uploaded_total",
			Help:      "Images attached to incidents.",
		}),
	}
	m.registry.MustRegister(
		m.requests,
		m.latency,
		m.incidents,
		m.uploads,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Middleware records each request under its chi route pattern, so
// /incidents/{id} is one series no matter how many IDs are requested.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		m.latency.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

// SetIncidentCounts replaces the backlog gauge. Statuses missing from
// counts are reported as zero.
func (m *Metrics) SetIncidentCounts(counts map[models.IncidentStatus]int) {
	for status := range models.ValidIncidentStatuses {
		m.incidents.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}

func (m *Metrics) ImageUploaded() {
	m.uploads.Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
