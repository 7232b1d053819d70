// Package metrics exposes Prometheus collectors for backend traffic,
// generation jobs, topic mutations and the local view server.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "curator"

// Collector owns a private registry and the application collectors.
type Collector struct {
	registry *prometheus.Registry

	backendRequests *prometheus.CounterVec
	backendDuration *prometheus.HistogramVec
	reloads         *prometheus.CounterVec
	topicMutations  *prometheus.CounterVec
	jobsFinished    *prometheus.CounterVec
	completions     prometheus.Counter
	jobActive       prometheus.Gauge
	viewRequests    *prometheus.CounterVec
	viewDuration    *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)
	return &Collector{
		registry: reg,
		backendRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_requests_total",
				Help:      "Backend requests by method, route and status.",
			},
			[]string{"method", "route", "status"},
		),
		backendDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backend_request_duration_seconds",
				Help:      "Backend request latency.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		reloads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reloads_total",
				Help:      "Reloads by outcome (applied, stale, failed).",
			},
			[]string{"outcome"},
		),
		topicMutations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "topic_mutations_total",
				Help:      "Confirmed topic mutations by kind.",
			},
			[]string{"kind"},
		),
		jobsFinished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generation_jobs_total",
				Help:      "Finished generation jobs by terminal state.",
			},
			[]string{"state"},
		),
		completions: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generation_completions_total",
				Help:      "Generated comments observed during polling.",
			},
		),
		jobActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "generation_active",
				Help:      "1 while a generation job is running.",
			},
		),
		viewRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "view_requests_total",
				Help:      "View server requests by method, route and status.",
			},
			[]string{"method", "route", "status"},
		),
		viewDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "view_request_duration_seconds",
				Help:      "View server request latency.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// ObserveBackend records one backend call. Status 0 is reported as "error".
func (c *Collector) ObserveBackend(method, path string, status int, elapsed time.Duration) {
	route := Route(path)
	c.backendRequests.WithLabelValues(method, route, statusLabel(status)).Inc()
	c.backendDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveView records one view server request.
func (c *Collector) ObserveView(method, route string, status int, elapsed time.Duration) {
	c.viewRequests.WithLabelValues(method, route, statusLabel(status)).Inc()
	c.viewDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Reload counts a reload outcome.
func (c *Collector) Reload(outcome string) {
	c.reloads.WithLabelValues(outcome).Inc()
}

// TopicMutation counts a confirmed topic mutation.
func (c *Collector) TopicMutation(kind string) {
	c.topicMutations.WithLabelValues(kind).Inc()
}

// JobStarted marks a generation job as running.
func (c *Collector) JobStarted() {
	c.jobActive.Set(1)
}

// JobFinished counts a terminal job and clears the running gauge.
func (c *Collector) JobFinished(state string) {
	c.jobActive.Set(0)
	c.jobsFinished.WithLabelValues(state).Inc()
}

// Completion counts one observed comment.
func (c *Collector) Completion() {
	c.completions.Inc()
}

// Route collapses numeric path segments so ids do not become label values.
func Route(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if part == "" {
			continue
		}
		if _, err := strconv.ParseInt(part, 10, 64); err == nil {
			parts[i] = ":id"
		}
	}
	return strings.Join(parts, "/")
}

func statusLabel(status int) string {
	if status == 0 {
		return "error"
	}
	return strconv.Itoa(status)
}
