// Package metrics exposes Prometheus collectors for the HTTP layer, the
// geocoder and the history log.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "circlemap"

// Collector owns a private registry so tests can build as many as they need.
type Collector struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	geocodeCache    *prometheus.CounterVec
	geocodeUpstream *prometheus.CounterVec
	historyCommits  *prometheus.CounterVec
	activeSessions  prometheus.Gauge
}

// New creates a Collector with Go runtime and process collectors registered.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		geocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_lookups_total",
			Help:      "Geocode cache lookups by operation and result.",
		}, []string{"op", "result"}),
		geocodeUpstream: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_upstream_calls_total",
			Help:      "Upstream geocoder calls by operation and outcome.",
		}, []string{"op", "outcome"}),
		historyCommits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_commits_total",
			Help:      "History log appends by outcome.",
		}, []string{"outcome"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Sessions currently held in memory.",
		}),
	}
	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.requests,
		c.requestDuration,
		c.geocodeCache,
		c.geocodeUpstream,
		c.historyCommits,
		c.activeSessions,
	)
	return c
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RecordRequest records one HTTP request. route should be the matched route
// pattern, not the raw path, to keep label cardinality bounded.
func (c *Collector) RecordRequest(method, route, status string, duration time.Duration) {
	c.requests.WithLabelValues(method, route, status).Inc()
	c.requestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// GeocodeCacheLookup counts a cache hit or miss.
func (c *Collector) GeocodeCacheLookup(op string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.geocodeCache.WithLabelValues(op, result).Inc()
}

// GeocodeUpstream counts an upstream geocoder call by outcome.
func (c *Collector) GeocodeUpstream(op, outcome string) {
	c.geocodeUpstream.WithLabelValues(op, outcome).Inc()
}

// HistoryCommit counts a history append by outcome ("ok" or "error").
func (c *Collector) HistoryCommit(outcome string) {
	c.historyCommits.WithLabelValues(outcome).Inc()
}

// SetActiveSessions publishes the current session count.
func (c *Collector) SetActiveSessions(n int) {
	c.activeSessions.Set(float64(n))
}
