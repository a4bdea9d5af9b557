// Package metrics provides Prometheus metrics for the humancheck verdict service.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// sampleBuckets covers trace lengths from a short flick to a long game session.
var sampleBuckets = []float64{2, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000} //nolint:gochecknoglobals // bucket layout

// Manager manages all Prometheus metrics for the humancheck service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Core business metrics
	sessionsSubmitted prometheus.Counter
	sessionsDuplicate prometheus.Counter
	sessionsAnalyzed  prometheus.Counter
	verdicts          *prometheus.CounterVec
	fallbacks         *prometheus.CounterVec
	analysisLatency   prometheus.Histogram
	sessionSamples    prometheus.Histogram
	verdictConfidence prometheus.Histogram

	// Model metrics
	modelTrainings        *prometheus.CounterVec
	modelTrainingDuration prometheus.Histogram
	modelTrained          prometheus.Gauge
	modelExamples         prometheus.Gauge

	// Store metrics
	storeVerdicts                prometheus.Gauge
	storeUpdateLatency           prometheus.Histogram
	storeQueryLatency            prometheus.Histogram
	storeSnapshotRebuildDuration prometheus.Histogram
	storeSnapshotLastUnix        prometheus.Gauge
	storeSnapshotCount           prometheus.Counter

	// Queue metrics
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueued          prometheus.Counter
	queueDequeued          prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Worker metrics
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerIdleCount         prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Spool metrics
	spoolFiles *prometheus.CounterVec

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error metrics
	errorsByComponent *prometheus.CounterVec
	errorsByType      *prometheus.CounterVec
	errorsByEndpoint  *prometheus.CounterVec

	// System metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "humancheck",
		subsystem:        "verdict",
		histogramBuckets: prometheus.DefBuckets,
		constLabels:      map[string]string{},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	if buckets == nil {
		buckets = m.histogramBuckets
	}
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.constLabels,
	}
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	// Core business metrics
	m.sessionsSubmitted = auto.NewCounter(m.counterOpts("sessions_submitted_total", "Total number of sessions accepted for analysis"))
	m.sessionsDuplicate = auto.NewCounter(m.counterOpts("sessions_duplicate_total", "Total number of duplicate session submissions"))
	m.sessionsAnalyzed = auto.NewCounter(m.counterOpts("sessions_analyzed_total", "Total number of sessions that produced a verdict"))
	m.verdicts = auto.NewCounterVec(m.counterOpts("verdicts_total", "Total number of verdicts by class"), []string{"verdict"})
	m.fallbacks = auto.NewCounterVec(m.counterOpts("fallbacks_total", "Total number of fallback verdicts by reason"), []string{"reason"})
	m.analysisLatency = auto.NewHistogram(m.histogramOpts("analysis_latency_milliseconds", "Feature extraction plus prediction latency in milliseconds", nil))
	m.sessionSamples = auto.NewHistogram(m.histogramOpts("session_samples", "Number of samples per analyzed session", sampleBuckets))
	m.verdictConfidence = auto.NewHistogram(m.histogramOpts("verdict_confidence", "Confidence of model verdicts",
		[]float64{0.5, 0.6, 0.7, 0.8, 0.9, 0.95, 0.99, 1}))

	// Model metrics
	m.modelTrainings = auto.NewCounterVec(m.counterOpts("model_trainings_total", "Total number of model training attempts by result"), []string{"result"})
	m.modelTrainingDuration = auto.NewHistogram(m.histogramOpts("model_training_duration_milliseconds", "Model training duration in milliseconds",
		[]float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000}))
	m.modelTrained = auto.NewGauge(m.gaugeOpts("model_trained", "1 when a fitted model is published"))
	m.modelExamples = auto.NewGauge(m.gaugeOpts("model_examples", "Number of examples the published model was fitted on"))

	// Store metrics
	m.storeVerdicts = auto.NewGauge(m.gaugeOpts("store_verdicts", "Number of verdicts held in the store"))
	m.storeUpdateLatency = auto.NewHistogram(m.histogramOpts("store_update_latency_milliseconds", "Store update latency in milliseconds", nil))
	m.storeQueryLatency = auto.NewHistogram(m.histogramOpts("store_query_latency_milliseconds", "Store query latency in milliseconds", nil))
	m.storeSnapshotRebuildDuration = auto.NewHistogram(m.histogramOpts("store_snapshot_rebuild_duration_milliseconds", "Ranking snapshot rebuild duration in milliseconds", nil))
	m.storeSnapshotLastUnix = auto.NewGauge(m.gaugeOpts("store_snapshot_last_unix", "Unix timestamp of the last ranking snapshot publish"))
	m.storeSnapshotCount = auto.NewCounter(m.counterOpts("store_snapshot_count_total", "Total number of ranking snapshots published"))

	// Queue metrics
	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Current size of the session queue"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Maximum queue capacity"))
	m.queueUtilization = auto.NewGauge(m.gaugeOpts("queue_utilization_ratio", "Queue utilization ratio (current size / capacity)"))
	m.queueEnqueued = auto.NewCounter(m.counterOpts("queue_enqueue_total", "Total number of sessions enqueued"))
	m.queueDequeued = auto.NewCounter(m.counterOpts("queue_dequeue_total", "Total number of sessions dequeued"))
	m.queueEnqueueErrors = auto.NewCounter(m.counterOpts("queue_enqueue_errors_total", "Total number of rejected enqueues"))
	m.queueProcessingLatency = auto.NewHistogram(m.histogramOpts("queue_processing_latency_milliseconds", "Enqueue latency in milliseconds", nil))

	// Worker metrics
	m.workerCount = auto.NewGauge(m.gaugeOpts("worker_count", "Configured number of workers"))
	m.workerActiveCount = auto.NewGauge(m.gaugeOpts("worker_active_count", "Number of workers analyzing a session"))
	m.workerIdleCount = auto.NewGauge(m.gaugeOpts("worker_idle_count", "Number of idle workers"))
	m.workerProcessingLatency = auto.NewHistogram(m.histogramOpts("worker_processing_latency_milliseconds", "Per-session worker latency in milliseconds", nil))
	m.workerErrors = auto.NewCounter(m.counterOpts("worker_errors_total", "Total number of worker errors"))

	// Spool metrics
	m.spoolFiles = auto.NewCounterVec(m.counterOpts("spool_files_total", "Total number of spooled trace files by result"), []string{"result"})

	// HTTP metrics
	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total", "Total number of HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds", nil),
		[]string{"endpoint", "method", "status_code"})

	// Error metrics
	m.errorsByComponent = auto.NewCounterVec(m.counterOpts("errors_by_component_total", "Total number of errors by component"),
		[]string{"component", "error_type"})
	m.errorsByType = auto.NewCounterVec(m.counterOpts("errors_by_type_total", "Total number of errors by type"),
		[]string{"error_type", "severity"})
	m.errorsByEndpoint = auto.NewCounterVec(m.counterOpts("errors_by_endpoint_total", "Total number of errors by endpoint"),
		[]string{"endpoint", "method", "error_type"})

	// System metrics
	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes", "System memory usage in bytes"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(m.histogramOpts("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}))
}

// RecordSessionSubmitted increments the accepted sessions counter.
func RecordSessionSubmitted() {
	globalManager.sessionsSubmitted.Inc()
}

// RecordSessionDuplicate increments the duplicate sessions counter.
func RecordSessionDuplicate() {
	globalManager.sessionsDuplicate.Inc()
}

// RecordSessionAnalyzed records an analyzed session with its sample count.
func RecordSessionAnalyzed(samples int) {
	globalManager.sessionsAnalyzed.Inc()
	globalManager.sessionSamples.Observe(float64(samples))
}

// RecordVerdict records a verdict class and its confidence.
func RecordVerdict(verdict string, confidence float64) {
	globalManager.verdicts.WithLabelValues(verdict).Inc()
	globalManager.verdictConfidence.Observe(confidence)
}

// RecordFallback records a fallback verdict by reason.
func RecordFallback(reason string) {
	globalManager.fallbacks.WithLabelValues(reason).Inc()
}

// RecordAnalysisLatency records analysis latency in milliseconds.
func RecordAnalysisLatency(latencyMs float64) {
	globalManager.analysisLatency.Observe(latencyMs)
}

// RecordModelTraining records a training attempt. result is "ok" or an error kind.
func RecordModelTraining(result string, durationMs float64) {
	globalManager.modelTrainings.WithLabelValues(result).Inc()
	globalManager.modelTrainingDuration.Observe(durationMs)
}

// UpdateModelState sets the published model gauges.
func UpdateModelState(trained bool, examples int) {
	v := 0.0
	if trained {
		v = 1
	}
	globalManager.modelTrained.Set(v)
	globalManager.modelExamples.Set(float64(examples))
}

// UpdateStoreVerdicts sets the number of stored verdicts.
func UpdateStoreVerdicts(count int) {
	globalManager.storeVerdicts.Set(float64(count))
}

// RecordStoreUpdateLatency records store update latency.
func RecordStoreUpdateLatency(latencyMs float64) {
	globalManager.storeUpdateLatency.Observe(latencyMs)
}

// RecordStoreQueryLatency records store query latency.
func RecordStoreQueryLatency(latencyMs float64) {
	globalManager.storeQueryLatency.Observe(latencyMs)
}

// RecordStoreSnapshot records a ranking snapshot publish.
func RecordStoreSnapshot(durationMs float64, unix int64) {
	globalManager.storeSnapshotRebuildDuration.Observe(durationMs)
	globalManager.storeSnapshotLastUnix.Set(float64(unix))
	globalManager.storeSnapshotCount.Inc()
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// RecordQueueProcessingLatency records queue processing latency.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateWorkerActiveCount sets the number of active workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// UpdateWorkerIdleCount sets the number of idle workers.
func UpdateWorkerIdleCount(count int) {
	globalManager.workerIdleCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// RecordSpoolFile records a spooled trace file by result.
func RecordSpoolFile(result string) {
	globalManager.spoolFiles.WithLabelValues(result).Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorsByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// Value returns the current value of a counter or gauge registered on the custom
// registry. Labels select one series of a vector; extra series labels are ignored.
func Value(name string, labels map[string]string) (float64, error) {
	families, err := customRegistry.Gather()
	if err != nil {
		return 0, fmt.Errorf("gather: %w", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if !matchLabels(metric, labels) {
				continue
			}
			switch {
			case metric.GetCounter() != nil:
				return metric.GetCounter().GetValue(), nil
			case metric.GetGauge() != nil:
				return metric.GetGauge().GetValue(), nil
			}
		}
		return 0, nil
	}
	return 0, fmt.Errorf("%s: %w", name, ErrUnknownMetric)
}

func matchLabels(metric *dto.Metric, want map[string]string) bool {
	for k, v := range want {
		found := false
		for _, lp := range metric.GetLabel() {
			if lp.GetName() == k && lp.GetValue() == v {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
