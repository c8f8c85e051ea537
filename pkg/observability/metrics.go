package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Event metrics
	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartmath_events_total",
			Help: "Total number of inbound events",
		},
		[]string{"kind", "status"},
	)

	eventDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "smartmath_event_duration_seconds",
			Help:    "Event handling duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	rateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "smartmath_rate_limited_total",
			Help: "Total number of messages rejected by the per-user rate limit",
		},
	)

	// Engine metrics
	calculationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartmath_calculations_total",
			Help: "Total number of engine calculations",
		},
		[]string{"path", "status"},
	)

	// Transport metrics
	repliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartmath_replies_total",
			Help: "Total number of outbound replies",
		},
		[]string{"transport", "status"},
	)

	droppedEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartmath_dropped_events_total",
			Help: "Total number of events that could not be queued",
		},
		[]string{"reason"},
	)

	handlerPanicsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "smartmath_handler_panics_total",
			Help: "Total number of recovered handler panics",
		},
	)

	// State metrics
	sessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "smartmath_sessions",
			Help: "Number of user sessions",
		},
	)

	activeWorkers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "smartmath_active_workers",
			Help: "Number of per-user workers",
		},
	)

	// System metrics
	memoryUsage = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "smartmath_memory_usage_bytes",
			Help: "Memory usage in bytes",
		},
	)

	goroutines = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "smartmath_goroutines",
			Help: "Number of goroutines",
		},
	)

	initOnce sync.Once
)

// InitMetrics registers the metrics with the default registry. Metrics
// are recorded whether or not they are registered.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			eventsTotal,
			eventDuration,
			rateLimitedTotal,
			calculationsTotal,
			repliesTotal,
			droppedEventsTotal,
			handlerPanicsTotal,
			sessions,
			activeWorkers,
			memoryUsage,
			goroutines,
		)
	})
}

// MetricsHandler returns an HTTP handler for Prometheus metrics
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordEvent records an inbound event and its handling time
func RecordEvent(kind, status string, duration time.Duration) {
	eventsTotal.WithLabelValues(kind, status).Inc()
	eventDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordRateLimited counts a rate-limited message
func RecordRateLimited() {
	rateLimitedTotal.Inc()
}

// RecordCalculation counts an engine calculation
func RecordCalculation(path, status string) {
	calculationsTotal.WithLabelValues(path, status).Inc()
}

// RecordReply counts an outbound reply
func RecordReply(transport, status string) {
	repliesTotal.WithLabelValues(transport, status).Inc()
}

// RecordDroppedEvent counts an event that was not queued
func RecordDroppedEvent(reason string) {
	droppedEventsTotal.WithLabelValues(reason).Inc()
}

// RecordHandlerPanic counts a recovered panic
func RecordHandlerPanic() {
	handlerPanicsTotal.Inc()
}

// SetSessions sets the sessions gauge
func SetSessions(count int) {
	sessions.Set(float64(count))
}

// SetActiveWorkers sets the worker gauge
func SetActiveWorkers(count int) {
	activeWorkers.Set(float64(count))
}

// SetMemoryUsage sets the memory usage gauge
func SetMemoryUsage(bytes uint64) {
	memoryUsage.Set(float64(bytes))
}

// SetGoroutines sets the goroutines gauge
func SetGoroutines(count int) {
	goroutines.Set(float64(count))
}
