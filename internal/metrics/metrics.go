package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes per-namespace cache counters for Prometheus scraping.
// All methods are safe on a nil receiver so instrumentation stays optional.
type Metrics struct {
	registry      *prometheus.Registry
	hits          *prometheus.CounterVec
	misses        *prometheus.CounterVec
	evictions     *prometheus.CounterVec
	invalidations *prometheus.CounterVec
	entries       *prometheus.GaugeVec
	sizeBytes     *prometheus.GaugeVec
}

// New creates a self-contained metrics registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "respcache", Name: "hits_total",
			Help: "Cache hits by namespace.",
		}, []string{"namespace"}),
		misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "respcache", Name: "misses_total",
			Help: "Cache misses by namespace (includes expired and corrupted reads).",
		}, []string{"namespace"}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "respcache", Name: "evictions_total",
			Help: "Entries removed by capacity eviction.",
		}, []string{"namespace"}),
		invalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "respcache", Name: "invalidations_total",
			Help: "Entries removed by rule-driven invalidation.",
		}, []string{"namespace"}),
		entries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "respcache", Name: "entries",
			Help: "Live entries at last stats aggregation.",
		}, []string{"namespace"}),
		sizeBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "respcache", Name: "size_bytes",
			Help: "Stored bytes at last stats aggregation.",
		}, []string{"namespace"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		m.hits, m.misses, m.evictions, m.invalidations, m.entries, m.sizeBytes,
	)
	return m
}

// Handler returns the scrape endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Hit records a cache hit.
func (m *Metrics) Hit(namespace string) {
	if m == nil {
		return
	}
	m.hits.WithLabelValues(namespace).Inc()
}

// Miss records a cache miss.
func (m *Metrics) Miss(namespace string) {
	if m == nil {
		return
	}
	m.misses.WithLabelValues(namespace).Inc()
}

// Evicted records n capacity evictions.
func (m *Metrics) Evicted(namespace string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.evictions.WithLabelValues(namespace).Add(float64(n))
}

// Invalidated records n rule-driven removals.
func (m *Metrics) Invalidated(namespace string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.invalidations.WithLabelValues(namespace).Add(float64(n))
}

// Observe records the gauge snapshot taken during stats aggregation.
func (m *Metrics) Observe(namespace string, entries int, sizeBytes int64) {
	if m == nil {
		return
	}
	m.entries.WithLabelValues(namespace).Set(float64(entries))
	m.sizeBytes.WithLabelValues(namespace).Set(float64(sizeBytes))
}
