// Package metrics provides Prometheus metrics for the talentlens service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Latency buckets in milliseconds; model calls run from tens of ms to tens of seconds.
var modelLatencyBuckets = []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000}

// Manager manages all Prometheus metrics for the talentlens service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Analysis pipeline
	analyses              *prometheus.CounterVec
	modelLatency          *prometheus.HistogramVec
	modelErrors           *prometheus.CounterVec
	modelRetries          *prometheus.CounterVec
	interpretOutcomes     *prometheus.CounterVec
	validationCorrections *prometheus.CounterVec
	batchItems            *prometheus.CounterVec

	// Record store
	recordStoreSize     prometheus.Gauge
	recordEvictions     prometheus.Counter
	recordAppendLatency prometheus.Histogram
	recordStoreErrors   *prometheus.CounterVec
	subjects            *prometheus.GaugeVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorRateByEndpoint *prometheus.CounterVec
	errorRateByType     *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "talentlens",
		subsystem:        "analysis",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) name(n string) string { return m.metricPrefix + n }

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every metric definition
	auto := promauto.With(m.registry)
	constLabels := prometheus.Labels(m.customLabels)

	m.analyses = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("analyses_total"),
		Help: "Analyses recorded, by subject kind and payload source",
	}, []string{"kind", "source"})

	m.modelLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name:    m.name("model_invocation_duration_milliseconds"),
		Help:    "Model provider call latency in milliseconds",
		Buckets: modelLatencyBuckets,
	}, []string{"provider", "outcome"})

	m.modelErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("model_invocation_errors_total"),
		Help: "Failed model provider calls, by provider and reason",
	}, []string{"provider", "reason"})

	m.modelRetries = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("model_invocation_retries_total"),
		Help: "Retried model provider calls",
	}, []string{"provider"})

	m.interpretOutcomes = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("interpret_outcomes_total"),
		Help: "Model replies interpreted, by subject kind and resulting source",
	}, []string{"kind", "source"})

	m.validationCorrections = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("validation_corrections_total"),
		Help: "Fields clamped or defaulted during interpretation",
	}, []string{"kind", "field"})

	m.batchItems = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("batch_items_total"),
		Help: "Batch analysis items, by outcome",
	}, []string{"outcome"})

	m.recordStoreSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("record_store_size"),
		Help: "Records currently retained in the analysis log",
	})

	m.recordEvictions = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("record_store_evictions_total"),
		Help: "Records evicted because the log reached capacity",
	})

	m.recordAppendLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name:    m.name("record_store_append_duration_milliseconds"),
		Help:    "Record append latency in milliseconds",
		Buckets: m.histogramBuckets,
	})

	m.recordStoreErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("record_store_errors_total"),
		Help: "Record store failures, by operation",
	}, []string{"op"})

	m.subjects = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("subjects"),
		Help: "Subjects in the directory, by kind",
	}, []string{"kind"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("http_requests_total"),
		Help: "Total number of HTTP requests by endpoint and method",
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name:    m.name("http_request_duration_milliseconds"),
		Help:    "HTTP request duration in milliseconds",
		Buckets: modelLatencyBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.errorRateByEndpoint = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("errors_by_endpoint_total"),
		Help: "HTTP errors by endpoint, method and type",
	}, []string{"endpoint", "method", "error_type"})

	m.errorRateByType = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("errors_by_type_total"),
		Help: "Errors by type and severity",
	}, []string{"error_type", "severity"})
}

// Analysis pipeline.

// RecordAnalysis counts one recorded analysis.
func RecordAnalysis(kind, source string) {
	if globalManager.enabled {
		globalManager.analyses.WithLabelValues(kind, source).Inc()
	}
}

// RecordModelInvocation observes one provider call. outcome is "ok" or "error".
func RecordModelInvocation(provider, outcome string, latency time.Duration) {
	if globalManager.enabled {
		globalManager.modelLatency.WithLabelValues(provider, outcome).Observe(float64(latency.Milliseconds()))
	}
}

// RecordModelError counts a failed provider call.
func RecordModelError(provider, reason string) {
	if globalManager.enabled {
		globalManager.modelErrors.WithLabelValues(provider, reason).Inc()
	}
}

// RecordModelRetry counts one retried provider call.
func RecordModelRetry(provider string) {
	if globalManager.enabled {
		globalManager.modelRetries.WithLabelValues(provider).Inc()
	}
}

// RecordInterpretOutcome counts one interpreted reply.
func RecordInterpretOutcome(kind, source string) {
	if globalManager.enabled {
		globalManager.interpretOutcomes.WithLabelValues(kind, source).Inc()
	}
}

// RecordValidationCorrection counts one clamped or defaulted field.
func RecordValidationCorrection(kind, field string) {
	if globalManager.enabled {
		globalManager.validationCorrections.WithLabelValues(kind, field).Inc()
	}
}

// RecordBatchItem counts one batch item by outcome.
func RecordBatchItem(outcome string) {
	if globalManager.enabled {
		globalManager.batchItems.WithLabelValues(outcome).Inc()
	}
}

// Record store.

// UpdateRecordStoreSize sets the retained record count.
func UpdateRecordStoreSize(n int) {
	if globalManager.enabled {
		globalManager.recordStoreSize.Set(float64(n))
	}
}

// RecordEvictions adds n evicted records.
func RecordEvictions(n int) {
	if globalManager.enabled && n > 0 {
		globalManager.recordEvictions.Add(float64(n))
	}
}

// RecordAppendLatency observes one append.
func RecordAppendLatency(latency time.Duration) {
	if globalManager.enabled {
		globalManager.recordAppendLatency.Observe(float64(latency.Microseconds()) / 1000)
	}
}

// RecordStoreError counts a store failure for op.
func RecordStoreError(op string) {
	if globalManager.enabled {
		globalManager.recordStoreErrors.WithLabelValues(op).Inc()
	}
}

// UpdateSubjectCount sets the directory size for kind.
func UpdateSubjectCount(kind string, n int) {
	if globalManager.enabled {
		globalManager.subjects.WithLabelValues(kind).Set(float64(n))
	}
}

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if globalManager.enabled {
		globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	}
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if globalManager.enabled {
		globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
	}
}

// RecordErrorByEndpoint records an HTTP error for an endpoint.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	if globalManager.enabled {
		globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
	}
}

// RecordErrorByType records an error by type and severity.
func RecordErrorByType(errorType, severity string) {
	if globalManager.enabled {
		globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
	}
}

// GetRegistry returns the custom registry used by the global manager.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// Handler serves the custom registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(customRegistry, promhttp.HandlerOpts{})
}
