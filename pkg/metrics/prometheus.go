// Package metrics provides Prometheus metrics for the award tally service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the tally service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Ingest - the business path
	factsIngested    *prometheus.CounterVec
	ingestRejected   *prometheus.CounterVec
	factsRetracted   prometheus.Counter
	ledgerLatency    *prometheus.HistogramVec
	aggConflicts     prometheus.Counter
	storeLatency     *prometheus.HistogramVec
	thresholdCrossed *prometheus.CounterVec
	winnersSelected  *prometheus.CounterVec

	// Tally
	rescorePasses      prometheus.Counter
	rescoreDuration    prometheus.Histogram
	aggregatesTotal    prometheus.Gauge
	nomineesTotal      prometheus.Gauge
	snapshotRebuilds   prometheus.Counter
	snapshotRebuildDur prometheus.Histogram

	// Notifier
	notifyDelivered *prometheus.CounterVec
	notifyFailures  prometheus.Counter
	notifyParked    prometheus.Gauge

	// Queue
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueued          prometheus.Counter
	queueDequeued          prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Worker
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter
	workerRetries           prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors and system
	errorsByComponent    *prometheus.CounterVec
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
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
		namespace:        "agc",
		subsystem:        "tally",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		Buckets: m.histogramBuckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		Buckets: m.histogramBuckets,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	m.factsIngested = m.counterVec("facts_ingested_total", "Facts durably recorded by kind", "kind")
	m.ingestRejected = m.counterVec("ingest_rejected_total", "Ingest requests rejected by error kind", "kind")
	m.factsRetracted = m.counter("facts_retracted_total", "Facts retracted")
	m.ledgerLatency = m.histogramVec("ledger_latency_milliseconds", "Ledger verify-and-consume latency in milliseconds", "outcome")
	m.aggConflicts = m.counter("aggregate_conflicts_total", "Optimistic version conflicts at aggregate commit")
	m.storeLatency = m.histogramVec("store_latency_milliseconds", "Fact store operation latency in milliseconds", "op")
	m.thresholdCrossed = m.counterVec("threshold_crossings_total", "Nominees crossing the certificate threshold", "tier")
	m.winnersSelected = m.counterVec("winners_selected_total", "Winners selected at subcategory close", "tier")

	m.rescorePasses = m.counter("rescore_passes_total", "Periodic rescoring passes over dirty boards")
	m.rescoreDuration = m.histogram("rescore_duration_milliseconds", "Rescoring pass duration in milliseconds")
	m.aggregatesTotal = m.gauge("aggregates", "Subcategory aggregates held in memory")
	m.nomineesTotal = m.gauge("nominees", "Registered nominees")
	m.snapshotRebuilds = m.counter("snapshot_rebuilds_total", "Tally snapshots rebuilt")
	m.snapshotRebuildDur = m.histogram("snapshot_rebuild_duration_milliseconds", "Tally snapshot rebuild duration in milliseconds")

	m.notifyDelivered = m.counterVec("notifier_delivered_total", "Certificate events delivered by reason", "reason")
	m.notifyFailures = m.counter("notifier_failures_total", "Certificate event delivery attempts that failed")
	m.notifyParked = m.gauge("notifier_parked", "Certificate events parked awaiting relay")

	m.queueSize = m.gauge("queue_size", "Current size of the notification queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue utilization ratio (current size / capacity)")
	m.queueEnqueued = m.counter("queue_enqueue_total", "Total number of messages enqueued")
	m.queueDequeued = m.counter("queue_dequeue_total", "Total number of messages dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Total number of enqueue errors")
	m.queueProcessingLatency = m.histogram("queue_processing_latency_milliseconds", "Queue processing latency in milliseconds")

	m.workerCount = m.gauge("worker_count", "Configured delivery workers")
	m.workerActiveCount = m.gauge("worker_active_count", "Number of running delivery workers")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Worker processing latency in milliseconds")
	m.workerErrors = m.counter("worker_errors_total", "Total number of worker errors")
	m.workerRetries = m.counter("worker_retries_total", "Total number of worker retries")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method",
		"endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds",
		"endpoint", "method", "status_code")

	m.errorsByComponent = m.counterVec("errors_by_component_total", "Total number of errors by component", "component", "error_type")
	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
}

// Ingest.

// RecordFactIngested counts a durably recorded fact.
func RecordFactIngested(kind string) { globalManager.factsIngested.WithLabelValues(kind).Inc() }

// RecordIngestRejected counts an ingest failure by error kind.
func RecordIngestRejected(kind string) { globalManager.ingestRejected.WithLabelValues(kind).Inc() }

// RecordFactRetracted counts a retraction.
func RecordFactRetracted() { globalManager.factsRetracted.Inc() }

// RecordLedgerLatency records a ledger call with its outcome label.
func RecordLedgerLatency(outcome string, latencyMs float64) {
	globalManager.ledgerLatency.WithLabelValues(outcome).Observe(latencyMs)
}

// RecordAggregateConflict counts a version mismatch at commit.
func RecordAggregateConflict() { globalManager.aggConflicts.Inc() }

// RecordStoreLatency records a fact store operation.
func RecordStoreLatency(op string, latencyMs float64) {
	globalManager.storeLatency.WithLabelValues(op).Observe(latencyMs)
}

// RecordThresholdCrossed counts a threshold crossing.
func RecordThresholdCrossed(tier string) { globalManager.thresholdCrossed.WithLabelValues(tier).Inc() }

// RecordWinnerSelected counts a winner.
func RecordWinnerSelected(tier string) { globalManager.winnersSelected.WithLabelValues(tier).Inc() }

// Tally.

// RecordRescorePass records one periodic rescoring pass.
func RecordRescorePass(durationMs float64) {
	globalManager.rescorePasses.Inc()
	globalManager.rescoreDuration.Observe(durationMs)
}

// RecordSnapshotRebuild records a tally snapshot rebuild.
func RecordSnapshotRebuild(durationMs float64) {
	globalManager.snapshotRebuilds.Inc()
	globalManager.snapshotRebuildDur.Observe(durationMs)
}

// UpdateAggregateCount sets the number of subcategory aggregates.
func UpdateAggregateCount(count int) { globalManager.aggregatesTotal.Set(float64(count)) }

// UpdateNomineeCount sets the number of registered nominees.
func UpdateNomineeCount(count int) { globalManager.nomineesTotal.Set(float64(count)) }

// Notifier.

// RecordNotifyDelivered counts a delivered certificate event.
func RecordNotifyDelivered(reason string) { globalManager.notifyDelivered.WithLabelValues(reason).Inc() }

// RecordNotifyFailure counts a failed delivery attempt.
func RecordNotifyFailure() { globalManager.notifyFailures.Inc() }

// UpdateNotifyParked sets the number of parked events.
func UpdateNotifyParked(count int) { globalManager.notifyParked.Set(float64(count)) }

// Queue.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) { globalManager.queueUtilization.Set(utilization) }

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() { globalManager.queueEnqueued.Inc() }

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() { globalManager.queueDequeued.Inc() }

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() { globalManager.queueEnqueueErrors.Inc() }

// RecordQueueProcessingLatency records queue processing latency.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// Worker.

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) { globalManager.workerCount.Set(float64(count)) }

// UpdateWorkerActiveCount sets the number of active workers.
func UpdateWorkerActiveCount(count int) { globalManager.workerActiveCount.Set(float64(count)) }

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() { globalManager.workerErrors.Inc() }

// RecordWorkerRetry increments the worker retry counter.
func RecordWorkerRetry() { globalManager.workerRetries.Inc() }

// HTTP.

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

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
