// Package metrics provides Prometheus metrics for the arena race service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the arena service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Race lifecycle metrics
	racesCreated     prometheus.Counter
	racesCompleted   *prometheus.CounterVec
	taskGenLatency   prometheus.Histogram
	taskGenFailures  prometheus.Counter
	unknownRunEvents prometheus.Counter

	// Judgment pipeline metrics
	judgeRequests      prometheus.Counter
	judgeFailures      prometheus.Counter
	judgeEnqueueErrors prometheus.Counter
	judgeLatency       prometheus.Histogram
	judgeQueueCapacity prometheus.Gauge
	judgeQueueSize     prometheus.Gauge
	judgeWorkerCount   prometheus.Gauge

	// Run stream metrics
	runsStarted       prometheus.Counter
	activeRuns        prometheus.Gauge
	runEvents         *prometheus.CounterVec
	runEventDrops     prometheus.Counter
	streamSubscribers prometheus.Gauge
	listenerDrops     prometheus.Counter

	// HTTP performance metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// System performance metrics
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
		namespace:        "arena",
		subsystem:        "race",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		metricPrefix:     "",
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

	// Race lifecycle metrics
	m.racesCreated = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "races_created_total",
		Help:      "Total number of races created",
	})

	m.racesCompleted = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "races_completed_total",
			Help:      "Total number of races completed by winner",
		},
		[]string{"winner"},
	)

	m.taskGenLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "task_generation_latency_milliseconds",
		Help:      "Histogram of task generation latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.taskGenFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "task_generation_failures_total",
		Help:      "Total number of failed task generation attempts",
	})

	m.unknownRunEvents = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "unknown_run_events_total",
		Help:      "Total number of run events dropped because no race owns the run",
	})

	// Judgment pipeline metrics
	m.judgeRequests = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "judge_requests_total",
		Help:      "Total number of judgment requests dispatched",
	})

	m.judgeFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "judge_failures_total",
		Help:      "Total number of judgments that fell back to a synthetic verdict",
	})

	m.judgeEnqueueErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "judge_enqueue_errors_total",
		Help:      "Total number of judgment jobs rejected by the queue",
	})

	m.judgeLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "judge_latency_milliseconds",
		Help:      "Histogram of judge evaluation latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.judgeQueueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "judge_queue_capacity",
		Help:      "Maximum judgment queue capacity",
	})

	m.judgeQueueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "judge_queue_size",
		Help:      "Current size of the judgment queue (backlog indicator)",
	})

	m.judgeWorkerCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "judge_worker_count",
		Help:      "Current number of judge workers (processing capacity)",
	})

	// Run stream metrics
	m.runsStarted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "runs_started_total",
		Help:      "Total number of agent runs started",
	})

	m.activeRuns = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "active_runs",
		Help:      "Number of agent runs currently alive",
	})

	m.runEvents = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "run_events_total",
			Help:      "Total number of run events accepted by kind",
		},
		[]string{"kind"},
	)

	m.runEventDrops = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "run_event_drops_total",
		Help:      "Total number of run events rejected by a full or finished run",
	})

	m.streamSubscribers = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "stream_subscribers",
		Help:      "Number of live event stream subscribers",
	})

	m.listenerDrops = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "listener_drops_total",
		Help:      "Total number of events dropped for slow stream listeners",
	})

	// HTTP performance metrics
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
			Help:      "HTTP request duration in milliseconds (user experience)",
			Buckets:   m.histogramBuckets,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	// System performance metrics
	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_memory_usage_bytes",
		Help:      "System memory usage in bytes",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_goroutine_count",
		Help:      "Number of goroutines",
	})
}

// Race Lifecycle Metrics Functions.

// RecordRaceCreated increments the races created counter.
func RecordRaceCreated() {
	globalManager.racesCreated.Inc()
}

// RecordRaceCompleted increments the completed races counter for a winner.
func RecordRaceCompleted(winner string) {
	globalManager.racesCompleted.WithLabelValues(winner).Inc()
}

// RecordTaskGenerationLatency records task generation latency in milliseconds.
func RecordTaskGenerationLatency(latencyMs float64) {
	globalManager.taskGenLatency.Observe(latencyMs)
}

// RecordTaskGenerationFailure increments the task generation failure counter.
func RecordTaskGenerationFailure() {
	globalManager.taskGenFailures.Inc()
}

// RecordUnknownRunEvent increments the unknown run event counter.
func RecordUnknownRunEvent() {
	globalManager.unknownRunEvents.Inc()
}

// Judgment Pipeline Metrics Functions.

// RecordJudgeRequest increments the judgment request counter.
func RecordJudgeRequest() {
	globalManager.judgeRequests.Inc()
}

// RecordJudgeFailure increments the judgment failure counter.
func RecordJudgeFailure() {
	globalManager.judgeFailures.Inc()
}

// RecordJudgeEnqueueError increments the judgment enqueue error counter.
func RecordJudgeEnqueueError() {
	globalManager.judgeEnqueueErrors.Inc()
}

// RecordJudgeLatency records judge evaluation latency in milliseconds.
func RecordJudgeLatency(latencyMs float64) {
	globalManager.judgeLatency.Observe(latencyMs)
}

// UpdateJudgeQueueCapacity sets the maximum judgment queue capacity.
func UpdateJudgeQueueCapacity(capacity int) {
	globalManager.judgeQueueCapacity.Set(float64(capacity))
}

// UpdateJudgeQueueSize sets the current judgment queue size.
func UpdateJudgeQueueSize(size int) {
	globalManager.judgeQueueSize.Set(float64(size))
}

// UpdateJudgeWorkerCount sets the current judge worker count.
func UpdateJudgeWorkerCount(count int) {
	globalManager.judgeWorkerCount.Set(float64(count))
}

// Run Stream Metrics Functions.

// RecordRunStarted increments the runs started counter.
func RecordRunStarted() {
	globalManager.runsStarted.Inc()
}

// UpdateActiveRuns sets the number of currently alive runs.
func UpdateActiveRuns(count int) {
	globalManager.activeRuns.Set(float64(count))
}

// RecordRunEvent increments the run event counter for a kind.
func RecordRunEvent(kind string) {
	globalManager.runEvents.WithLabelValues(kind).Inc()
}

// RecordRunEventDrop increments the dropped run event counter.
func RecordRunEventDrop() {
	globalManager.runEventDrops.Inc()
}

// AddStreamSubscriber increments the stream subscriber gauge.
func AddStreamSubscriber() {
	globalManager.streamSubscribers.Inc()
}

// RemoveStreamSubscriber decrements the stream subscriber gauge.
func RemoveStreamSubscriber() {
	globalManager.streamSubscribers.Dec()
}

// RecordListenerDrop increments the slow listener drop counter.
func RecordListenerDrop() {
	globalManager.listenerDrops.Inc()
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

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
