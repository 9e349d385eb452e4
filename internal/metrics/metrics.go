package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the analytics service.
type Metrics struct {
	// Ingestion metrics
	EventsIngested *prometheus.CounterVec
	EventsRejected *prometheus.CounterVec
	SessionUpserts *prometheus.CounterVec

	// Aggregation metrics
	AggregationLatency *prometheus.HistogramVec
	AggregationErrors  *prometheus.CounterVec

	// Lookup metrics
	GeoLookupLatency *prometheus.HistogramVec
	CacheRequests    *prometheus.CounterVec

	// System metrics
	RateLimitHits *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics under the
// given namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		EventsIngested: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_ingested_total",
				Help:      "Total playback events stored, by event type",
			},
			[]string{"event_type"},
		),
		EventsRejected: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_rejected_total",
				Help:      "Playback events rejected at validation",
			},
			[]string{"reason"},
		),
		SessionUpserts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_upserts_total",
				Help:      "Viewer session and device context upserts",
			},
			[]string{"kind", "result"},
		),
		AggregationLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "aggregation_latency_seconds",
				Help:      "Analytics aggregation latency in seconds",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"operation"},
		),
		AggregationErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "aggregation_errors_total",
				Help:      "Errors while computing aggregations",
			},
			[]string{"operation"},
		),
		GeoLookupLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "geo_lookup_latency_seconds",
				Help:      "GeoIP lookup latency in seconds",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
			},
			[]string{"cache"},
		),
		CacheRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_requests_total",
				Help:      "Response cache lookups by result",
			},
			[]string{"result"},
		),
		RateLimitHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_hits_total",
				Help:      "Requests rejected by rate limiting",
			},
			[]string{"class"},
		),
	}
}

// RecordEventIngested increments the ingested-events counter.
func (m *Metrics) RecordEventIngested(eventType string) {
	m.EventsIngested.WithLabelValues(eventType).Inc()
}

// RecordEventRejected increments the rejected-events counter.
func (m *Metrics) RecordEventRejected(reason string) {
	m.EventsRejected.WithLabelValues(reason).Inc()
}

// RecordSessionUpsert records a session or device-context upsert outcome.
func (m *Metrics) RecordSessionUpsert(kind string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	m.SessionUpserts.WithLabelValues(kind, result).Inc()
}

// RecordAggregation records an aggregation's duration, and its failure
// when err is non-nil.
func (m *Metrics) RecordAggregation(operation string, d time.Duration, err error) {
	m.AggregationLatency.WithLabelValues(operation).Observe(d.Seconds())
	if err != nil {
		m.AggregationErrors.WithLabelValues(operation).Inc()
	}
}

// RecordGeoLookup records a GeoIP lookup duration, labeled by whether
// the lookup cache answered it.
func (m *Metrics) RecordGeoLookup(cacheHit bool, d time.Duration) {
	label := "miss"
	if cacheHit {
		label = "hit"
	}
	m.GeoLookupLatency.WithLabelValues(label).Observe(d.Seconds())
}

// RecordCacheRequest records a response cache hit or miss.
func (m *Metrics) RecordCacheRequest(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheRequests.WithLabelValues(result).Inc()
}

// RecordRateLimitHit records a rate-limited request by traffic class.
func (m *Metrics) RecordRateLimitHit(class string) {
	m.RateLimitHits.WithLabelValues(class).Inc()
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
