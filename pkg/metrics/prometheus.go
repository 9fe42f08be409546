// Package metrics provides Prometheus metrics for the meetstake bot service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the meetstake service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	registry         prometheus.Registerer

	// Conversation Metrics - The bot's primary interaction surface
	intentsCompleted *prometheus.CounterVec
	sessionsActive   prometheus.Gauge
	turnsProcessed   prometheus.Counter
	turnsUnhandled   prometheus.Counter

	// Ledger Metrics - Submission and confirmation health
	ledgerSubmissions     *prometheus.CounterVec
	ledgerSubmitErrors    *prometheus.CounterVec
	ledgerConfirmLatency  prometheus.Histogram
	ledgerConfirmTimeouts prometheus.Counter

	// Consistency Metrics - Mirror writes and reconciliation
	mirrorWriteFailures prometheus.Counter
	reconcileRuns       prometheus.Counter
	reconcileRepairs    prometheus.Counter

	// Verification Metrics
	geofenceDecisions *prometheus.CounterVec

	// Blob Store Metrics
	blobUploads      prometheus.Counter
	blobUploadErrors prometheus.Counter

	// Queue Metrics - Inbound turn queue performance
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueueRate   prometheus.Counter
	queueDequeueRate   prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Worker Metrics - Turn processing performance
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

	// HTTP Performance Metrics - Ops endpoints
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error Metrics
	errorRateByComponent *prometheus.CounterVec

	// System Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
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
		namespace:        "meetstake",
		subsystem:        "bot",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		registry:         prometheus.DefaultRegisterer,
	}

	// Apply all options
	for _, opt := range opts {
		opt(m)
	}

	// Initialize metrics
	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	// Ensure metrics are registered on the configured registry (custom by default)
	auto := promauto.With(m.registry)

	// Conversation Metrics
	m.intentsCompleted = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "intents_completed_total",
			Help:      "Total number of completed conversation flows by flow name",
		},
		[]string{"flow"},
	)

	m.sessionsActive = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sessions_active",
		Help:      "Number of users currently mid-way through a conversation flow",
	})

	m.turnsProcessed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "turns_processed_total",
		Help:      "Total number of inbound turns processed",
	})

	m.turnsUnhandled = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "turns_unhandled_total",
		Help:      "Total number of turns that matched no session or command",
	})

	// Ledger Metrics
	m.ledgerSubmissions = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "ledger_submissions_total",
			Help:      "Total number of ledger transactions submitted by method",
		},
		[]string{"method"},
	)

	m.ledgerSubmitErrors = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "ledger_submit_errors_total",
			Help:      "Total number of rejected ledger submissions by method",
		},
		[]string{"method"},
	)

	m.ledgerConfirmLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ledger_confirm_latency_milliseconds",
		Help:      "Histogram of submit-to-confirmation latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.ledgerConfirmTimeouts = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ledger_confirm_timeouts_total",
		Help:      "Total number of confirmations that did not arrive in time",
	})

	// Consistency Metrics
	m.mirrorWriteFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "mirror_write_failures_total",
		Help:      "Total number of record writes that failed after ledger confirmation (needs reconciliation)",
	})

	m.reconcileRuns = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "reconcile_runs_total",
		Help:      "Total number of reconciliation sweeps",
	})

	m.reconcileRepairs = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "reconcile_repairs_total",
		Help:      "Total number of record rows repaired from ledger state",
	})

	// Verification Metrics
	m.geofenceDecisions = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "geofence_decisions_total",
			Help:      "Total number of attendance location checks by decision",
		},
		[]string{"decision"},
	)

	// Blob Store Metrics
	m.blobUploads = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "blob_uploads_total",
		Help:      "Total number of memory photos uploaded to the blob store",
	})

	m.blobUploadErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "blob_upload_errors_total",
		Help:      "Total number of failed blob store uploads",
	})

	// Queue Metrics
	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_size",
		Help:      "Current size of the inbound turn queue (backlog indicator)",
	})

	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_capacity",
		Help:      "Maximum queue capacity",
	})

	m.queueUtilization = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_utilization_ratio",
		Help:      "Queue utilization ratio (current size / capacity)",
	})

	m.queueEnqueueRate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_enqueue_total",
		Help:      "Total number of turns enqueued",
	})

	m.queueDequeueRate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_dequeue_total",
		Help:      "Total number of turns dequeued",
	})

	m.queueEnqueueErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_enqueue_errors_total",
		Help:      "Total number of enqueue errors",
	})

	// Worker Metrics
	m.workerActiveCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_active_count",
		Help:      "Number of active turn workers",
	})

	m.workerProcessingLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_processing_latency_milliseconds",
		Help:      "Turn processing latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.workerErrorRate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_errors_total",
		Help:      "Total number of worker errors",
	})

	// HTTP Performance Metrics
	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by endpoint and method",
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_request_duration_milliseconds",
			Help:      "HTTP request duration in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	// System Metrics
	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_memory_bytes",
		Help:      "Current heap allocation in bytes",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_goroutines",
		Help:      "Current number of goroutines",
	})

	// Error Metrics
	m.errorRateByComponent = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "errors_by_component_total",
			Help:      "Total number of errors by component",
		},
		[]string{"component", "error_type"},
	)
}

// Conversation Metrics Functions.

// RecordIntentCompleted increments the completed-flow counter for a flow.
func RecordIntentCompleted(flow string) {
	globalManager.intentsCompleted.WithLabelValues(flow).Inc()
}

// UpdateSessionsActive sets the number of active conversation sessions.
func UpdateSessionsActive(count int) {
	globalManager.sessionsActive.Set(float64(count))
}

// RecordTurnProcessed increments the processed turns counter.
func RecordTurnProcessed() {
	globalManager.turnsProcessed.Inc()
}

// RecordTurnUnhandled increments the unhandled turns counter.
func RecordTurnUnhandled() {
	globalManager.turnsUnhandled.Inc()
}

// Ledger Metrics Functions.

// RecordLedgerSubmission increments the submission counter for a contract method.
func RecordLedgerSubmission(method string) {
	globalManager.ledgerSubmissions.WithLabelValues(method).Inc()
}

// RecordLedgerSubmitError increments the rejected-submission counter for a method.
func RecordLedgerSubmitError(method string) {
	globalManager.ledgerSubmitErrors.WithLabelValues(method).Inc()
}

// RecordLedgerConfirmLatency records submit-to-confirmation latency in milliseconds.
func RecordLedgerConfirmLatency(latencyMs float64) {
	globalManager.ledgerConfirmLatency.Observe(latencyMs)
}

// RecordLedgerConfirmTimeout increments the confirmation timeout counter.
func RecordLedgerConfirmTimeout() {
	globalManager.ledgerConfirmTimeouts.Inc()
}

// Consistency Metrics Functions.

// RecordMirrorWriteFailure increments the post-confirmation write failure counter.
func RecordMirrorWriteFailure() {
	globalManager.mirrorWriteFailures.Inc()
}

// RecordReconcileRun increments the reconciliation sweep counter.
func RecordReconcileRun() {
	globalManager.reconcileRuns.Inc()
}

// RecordReconcileRepair increments the repaired-row counter.
func RecordReconcileRepair() {
	globalManager.reconcileRepairs.Inc()
}

// Verification Metrics Functions.

// RecordGeofenceDecision increments the decision counter for a check outcome.
func RecordGeofenceDecision(decision string) {
	globalManager.geofenceDecisions.WithLabelValues(decision).Inc()
}

// Blob Store Metrics Functions.

// RecordBlobUpload increments the blob upload counter.
func RecordBlobUpload() {
	globalManager.blobUploads.Inc()
}

// RecordBlobUploadError increments the blob upload error counter.
func RecordBlobUploadError() {
	globalManager.blobUploadErrors.Inc()
}

// Queue Metrics Functions.

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
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// Worker Metrics Functions.

// UpdateWorkerActiveCount sets the number of active workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records turn processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrorRate.Inc()
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Error Metrics Functions.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// System Metrics Functions.

// UpdateSystemMemoryUsage sets the current heap allocation.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the current goroutine count.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
