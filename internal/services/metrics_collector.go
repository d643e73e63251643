package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector owns the recommender's Prometheus instruments.
// All methods are safe on a nil receiver, which disables collection.
type MetricsCollector struct {
	recommendationRequests *prometheus.CounterVec
	recommendationLatency  prometheus.Histogram
	signalLatency          *prometheus.HistogramVec
	signalFailures         *prometheus.CounterVec
	predictionFailures     *prometheus.CounterVec
	degradations           *prometheus.CounterVec
	cacheRequests          *prometheus.CounterVec
	historyRecords         *prometheus.CounterVec
	referenceReloads       *prometheus.CounterVec
	snapshotVersion        prometheus.Gauge
	catalogSize            prometheus.Gauge
}

// NewMetricsCollector registers the instruments with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewMetricsCollector(reg prometheus.Registerer) *MetricsCollector {
	factory := promauto.With(reg)

	return &MetricsCollector{
		recommendationRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tripwise_recommendation_requests_total",
			Help: "Total number of recommendation requests by user state",
		}, []string{"state"}),

		recommendationLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "tripwise_recommendation_latency_seconds",
			Help:    "Recommendation request latency in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0},
		}),

		signalLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tripwise_signal_latency_seconds",
			Help:    "Signal adapter latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0},
		}, []string{"signal"}),

		signalFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tripwise_signal_failures_total",
			Help: "Signal adapter failures by signal and reason",
		}, []string{"signal", "reason"}),

		predictionFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tripwise_prediction_failures_total",
			Help: "Per-item rating prediction failures by reason",
		}, []string{"reason"}),

		degradations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tripwise_degradations_total",
			Help: "Recoverable degradations by kind",
		}, []string{"kind"}),

		cacheRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tripwise_cache_requests_total",
			Help: "Cache lookups by cache and result",
		}, []string{"cache", "result"}),

		historyRecords: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tripwise_history_records_total",
			Help: "History records by outcome",
		}, []string{"outcome"}),

		referenceReloads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tripwise_reference_reloads_total",
			Help: "Reference data reloads by result",
		}, []string{"result"}),

		snapshotVersion: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tripwise_reference_snapshot_version",
			Help: "Version of the reference data snapshot being served",
		}),

		catalogSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tripwise_catalog_items",
			Help: "Number of items in the served catalog snapshot",
		}),
	}
}

func (m *MetricsCollector) RecordRequest(state string, latency time.Duration) {
	if m == nil {
		return
	}
	if state == "" {
		state = "none"
	}
	m.recommendationRequests.WithLabelValues(state).Inc()
	m.recommendationLatency.Observe(latency.Seconds())
}

func (m *MetricsCollector) RecordSignalLatency(signal string, latency time.Duration) {
	if m == nil {
		return
	}
	m.signalLatency.WithLabelValues(signal).Observe(latency.Seconds())
}

func (m *MetricsCollector) RecordSignalFailure(signal, reason string) {
	if m == nil {
		return
	}
	m.signalFailures.WithLabelValues(signal, reason).Inc()
}

func (m *MetricsCollector) RecordPredictionFailure(reason string) {
	if m == nil {
		return
	}
	m.predictionFailures.WithLabelValues(reason).Inc()
}

func (m *MetricsCollector) RecordDegradation(kind string) {
	if m == nil {
		return
	}
	m.degradations.WithLabelValues(kind).Inc()
}

func (m *MetricsCollector) RecordCacheResult(cache string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheRequests.WithLabelValues(cache, result).Inc()
}

func (m *MetricsCollector) RecordHistory(outcome string, n int) {
	if m == nil {
		return
	}
	m.historyRecords.WithLabelValues(outcome).Add(float64(n))
}

func (m *MetricsCollector) RecordReload(success bool, version int64, items int) {
	if m == nil {
		return
	}
	if !success {
		m.referenceReloads.WithLabelValues("failure").Inc()
		return
	}
	m.referenceReloads.WithLabelValues("success").Inc()
	m.snapshotVersion.Set(float64(version))
	m.catalogSize.Set(float64(items))
}
