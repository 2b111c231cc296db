// Package metrics provides Prometheus metrics for the defsync engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the sync engine.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Ingest Metrics - event flow from the remote service into the cache
	eventsIngested   *prometheus.CounterVec
	eventsDuplicate  prometheus.Counter
	eventsDropped    *prometheus.CounterVec
	eventsEvicted    prometheus.Counter

	// Cache Metrics - lookup quality and size
	cacheHits          prometheus.Counter
	cacheMisses        prometheus.Counter
	cacheInterpolated  prometheus.Counter
	cacheSize          *prometheus.GaugeVec
	cacheQueryLatency  prometheus.Histogram

	// Remote Client Metrics - connection and fetch health
	connectionState   prometheus.Gauge
	reconnectAttempts prometheus.Counter
	heartbeatTimeouts prometheus.Counter
	fetchesTotal      prometheus.Counter
	fetchErrors       prometheus.Counter
	fetchLatency      prometheus.Histogram
	pushReceived      *prometheus.CounterVec
	pushMalformed     prometheus.Counter

	// Queue Metrics - ingest queue pressure
	queueDepth     prometheus.Gauge
	queueCapacity  prometheus.Gauge
	queueEnqueued  prometheus.Counter
	queueDequeued  prometheus.Counter
	queueDisplaced prometheus.Counter

	// Marker Metrics
	markersActive  *prometheus.GaugeVec
	markersEvicted prometheus.Counter

	// Coordinator Metrics - tick loop health
	syncTickDuration prometheus.Histogram
	syncDrainBatch   prometheus.Histogram
	urgencyAlerts    prometheus.Counter

	// Store Metrics - persistence timings
	storeSaveLatency prometheus.Histogram
	storeLoadLatency prometheus.Histogram
	storeCleanupRows prometheus.Counter

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Stream Metrics - websocket fan-out to UI clients
	streamClients  prometheus.Gauge
	streamMessages prometheus.Counter
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
		namespace:        "defsync",
		subsystem:        "engine",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}

	// Apply all options
	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	// Ensure metrics are registered on the configured registry (custom by default)
	auto := promauto.With(m.registry)

	// Ingest Metrics
	m.eventsIngested = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "events_ingested_total",
			Help:      "Total number of events accepted into the cache by kind",
		},
		[]string{"kind"},
	)

	m.eventsDuplicate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_duplicate_total",
		Help:      "Total number of stale or duplicate events discarded on ingest",
	})

	m.eventsDropped = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "events_dropped_total",
			Help:      "Total number of events dropped before ingest by reason",
		},
		[]string{"reason"},
	)

	m.eventsEvicted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_evicted_total",
		Help:      "Total number of events removed by cache capacity or age eviction",
	})

	// Cache Metrics
	m.cacheHits = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cache_hits_total",
		Help:      "Total number of position lookups answered from the cache",
	})

	m.cacheMisses = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cache_misses_total",
		Help:      "Total number of position lookups with no usable event",
	})

	m.cacheInterpolated = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cache_interpolated_total",
		Help:      "Total number of lookups answered by interpolating between neighbors",
	})

	m.cacheSize = auto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "cache_size",
			Help:      "Current number of cached events by kind",
		},
		[]string{"kind"},
	)

	m.cacheQueryLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cache_query_latency_milliseconds",
		Help:      "Cache lookup latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	// Remote Client Metrics
	m.connectionState = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "connection_state",
		Help:      "Remote connection state (0 disconnected, 1 connecting, 2 connected, 3 degraded)",
	})

	m.reconnectAttempts = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "reconnect_attempts_total",
		Help:      "Total number of reconnection attempts against the remote service",
	})

	m.heartbeatTimeouts = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "heartbeat_timeouts_total",
		Help:      "Total number of heartbeat acknowledgements that timed out",
	})

	m.fetchesTotal = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "fetches_total",
		Help:      "Total number of range fetches issued to the remote service",
	})

	m.fetchErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "fetch_errors_total",
		Help:      "Total number of range fetches that failed",
	})

	m.fetchLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "fetch_latency_milliseconds",
		Help:      "Range fetch latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.pushReceived = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "push_received_total",
			Help:      "Total number of push messages received by message type",
		},
		[]string{"type"},
	)

	m.pushMalformed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "push_malformed_total",
		Help:      "Total number of push messages dropped as malformed",
	})

	// Queue Metrics
	m.queueDepth = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_depth",
		Help:      "Current number of events waiting in the ingest queue",
	})

	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_capacity",
		Help:      "Maximum ingest queue capacity",
	})

	m.queueEnqueued = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_enqueue_total",
		Help:      "Total number of events enqueued",
	})

	m.queueDequeued = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_dequeue_total",
		Help:      "Total number of events drained from the queue",
	})

	m.queueDisplaced = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_displaced_total",
		Help:      "Total number of low-priority events displaced by critical ones",
	})

	// Marker Metrics
	m.markersActive = auto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "markers_active",
			Help:      "Current number of timeline markers by kind",
		},
		[]string{"kind"},
	)

	m.markersEvicted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "markers_evicted_total",
		Help:      "Total number of markers removed by capacity or age eviction",
	})

	// Coordinator Metrics
	m.syncTickDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sync_tick_duration_milliseconds",
		Help:      "Duration of a single sync tick in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.syncDrainBatch = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sync_drain_batch_size",
		Help:      "Number of queued events drained per sync tick",
		Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
	})

	m.urgencyAlerts = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "urgency_alerts_total",
		Help:      "Total number of alerts raised by the defensive urgency heuristic",
	})

	// Store Metrics
	m.storeSaveLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_save_latency_milliseconds",
		Help:      "Persistent store save latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.storeLoadLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_load_latency_milliseconds",
		Help:      "Persistent store load latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.storeCleanupRows = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_cleanup_rows_total",
		Help:      "Total number of rows removed by retention cleanup",
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

	// Stream Metrics
	m.streamClients = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "stream_clients",
		Help:      "Current number of connected websocket stream clients",
	})

	m.streamMessages = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "stream_messages_total",
		Help:      "Total number of messages broadcast to stream clients",
	})
}

// Ingest Metrics Functions.

// RecordEventIngested increments the ingested events counter for a kind.
func RecordEventIngested(kind string) {
	globalManager.eventsIngested.WithLabelValues(kind).Inc()
}

// RecordEventDuplicate increments the stale/duplicate events counter.
func RecordEventDuplicate() {
	globalManager.eventsDuplicate.Inc()
}

// RecordEventDropped increments the dropped events counter for a reason.
func RecordEventDropped(reason string) {
	globalManager.eventsDropped.WithLabelValues(reason).Inc()
}

// RecordEventEvicted increments the evicted events counter.
func RecordEventEvicted() {
	globalManager.eventsEvicted.Inc()
}

// Cache Metrics Functions.

// RecordCacheHit increments the cache hit counter.
func RecordCacheHit() {
	globalManager.cacheHits.Inc()
}

// RecordCacheMiss increments the cache miss counter.
func RecordCacheMiss() {
	globalManager.cacheMisses.Inc()
}

// RecordCacheInterpolated increments the interpolated lookup counter.
func RecordCacheInterpolated() {
	globalManager.cacheInterpolated.Inc()
}

// UpdateCacheSize sets the cached event count for a kind.
func UpdateCacheSize(kind string, size int) {
	globalManager.cacheSize.WithLabelValues(kind).Set(float64(size))
}

// RecordCacheQueryLatency records cache lookup latency.
func RecordCacheQueryLatency(latencyMs float64) {
	globalManager.cacheQueryLatency.Observe(latencyMs)
}

// Remote Client Metrics Functions.

// UpdateConnectionState sets the remote connection state gauge.
func UpdateConnectionState(state int) {
	globalManager.connectionState.Set(float64(state))
}

// RecordReconnectAttempt increments the reconnect attempts counter.
func RecordReconnectAttempt() {
	globalManager.reconnectAttempts.Inc()
}

// RecordHeartbeatTimeout increments the heartbeat timeout counter.
func RecordHeartbeatTimeout() {
	globalManager.heartbeatTimeouts.Inc()
}

// RecordFetch increments the fetch counter.
func RecordFetch() {
	globalManager.fetchesTotal.Inc()
}

// RecordFetchError increments the fetch error counter.
func RecordFetchError() {
	globalManager.fetchErrors.Inc()
}

// RecordFetchLatency records range fetch latency.
func RecordFetchLatency(latencyMs float64) {
	globalManager.fetchLatency.Observe(latencyMs)
}

// RecordPushReceived increments the push message counter for a type.
func RecordPushReceived(msgType string) {
	globalManager.pushReceived.WithLabelValues(msgType).Inc()
}

// RecordPushMalformed increments the malformed push counter.
func RecordPushMalformed() {
	globalManager.pushMalformed.Inc()
}

// Queue Metrics Functions.

// UpdateQueueDepth sets the current queue depth.
func UpdateQueueDepth(depth int) {
	globalManager.queueDepth.Set(float64(depth))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueDisplaced increments the displaced event counter.
func RecordQueueDisplaced() {
	globalManager.queueDisplaced.Inc()
}

// Marker Metrics Functions.

// UpdateMarkersActive sets the active marker count for a kind.
func UpdateMarkersActive(kind string, count int) {
	globalManager.markersActive.WithLabelValues(kind).Set(float64(count))
}

// RecordMarkerEvicted increments the evicted marker counter.
func RecordMarkerEvicted() {
	globalManager.markersEvicted.Inc()
}

// Coordinator Metrics Functions.

// RecordSyncTickDuration records the duration of a sync tick.
func RecordSyncTickDuration(durationMs float64) {
	globalManager.syncTickDuration.Observe(durationMs)
}

// RecordSyncDrainBatch records the number of events drained in a tick.
func RecordSyncDrainBatch(n int) {
	globalManager.syncDrainBatch.Observe(float64(n))
}

// RecordUrgencyAlert increments the urgency alert counter.
func RecordUrgencyAlert() {
	globalManager.urgencyAlerts.Inc()
}

// Store Metrics Functions.

// RecordStoreSaveLatency records persistent store save latency.
func RecordStoreSaveLatency(latencyMs float64) {
	globalManager.storeSaveLatency.Observe(latencyMs)
}

// RecordStoreLoadLatency records persistent store load latency.
func RecordStoreLoadLatency(latencyMs float64) {
	globalManager.storeLoadLatency.Observe(latencyMs)
}

// RecordStoreCleanupRows adds to the cleanup row counter.
func RecordStoreCleanupRows(n int64) {
	globalManager.storeCleanupRows.Add(float64(n))
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

// Stream Metrics Functions.

// UpdateStreamClients sets the connected stream client count.
func UpdateStreamClients(count int) {
	globalManager.streamClients.Set(float64(count))
}

// RecordStreamMessage increments the broadcast message counter.
func RecordStreamMessage() {
	globalManager.streamMessages.Inc()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
