package kraconnect

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector provides Prometheus metrics for the operation pipeline
// and its reliability layers. It is safe for concurrent use, and a nil
// collector records nothing.
type MetricsCollector struct {
	operationsTotal    *prometheus.CounterVec
	operationDuration  *prometheus.HistogramVec
	operationsInFlight *prometheus.GaugeVec

	retriesTotal *prometheus.CounterVec

	circuitBreakerState prometheus.Gauge

	rateLimitRejections *prometheus.CounterVec
	rateLimitWindow     prometheus.Gauge

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec
	cacheSize   prometheus.Gauge

	deduplicationHits *prometheus.CounterVec

	retryBudgetExceeded prometheus.Counter

	batchSize prometheus.Histogram

	errorsTotal *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewMetricsCollector creates a metrics collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using supplied registerer.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	factory := promauto.With(registry)
	mc := &MetricsCollector{
		operationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kraconnect_operations_total",
				Help: "Total number of completed operations",
			},
			[]string{"operation", "outcome"},
		),
		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kraconnect_operation_duration_seconds",
				Help:    "Duration of operations in seconds, including retries",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "outcome"},
		),
		operationsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kraconnect_operations_in_flight",
				Help: "Number of operations currently in flight",
			},
			[]string{"operation"},
		),
		retriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kraconnect_retries_total",
				Help: "Total number of retry attempts",
			},
			[]string{"operation", "attempt"},
		),
		circuitBreakerState: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "kraconnect_circuit_breaker_state",
				Help: "Current state of circuit breaker (0=closed, 1=open, 2=half-open)",
			},
		),
		rateLimitRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kraconnect_rate_limit_rejections_total",
				Help: "Total number of operations rejected by the rate limiter",
			},
			[]string{"operation"},
		),
		rateLimitWindow: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "kraconnect_rate_limit_window_requests",
				Help: "Requests admitted in the current rate limit window",
			},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kraconnect_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"operation"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kraconnect_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"operation"},
		),
		cacheSize: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "kraconnect_cache_size",
				Help: "Current number of entries in the in-memory cache",
			},
		),
		deduplicationHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kraconnect_deduplication_hits_total",
				Help: "Total number of operations served by an identical in-flight call",
			},
			[]string{"operation"},
		),
		retryBudgetExceeded: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "kraconnect_retry_budget_exceeded_total",
				Help: "Total number of times retry budget was exceeded",
			},
		),
		batchSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "kraconnect_batch_size",
				Help:    "Number of operations per batch",
				Buckets: prometheus.ExponentialBuckets(1, 2, 10),
			},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kraconnect_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"kind", "operation"},
		),
	}

	if g, ok := registry.(prometheus.Gatherer); ok {
		mc.gatherer = g
	}

	return mc
}

// RecordOperation records a completed operation's outcome and duration.
func (mc *MetricsCollector) RecordOperation(kind OperationKind, err *Error, duration time.Duration) {
	if mc == nil {
		return
	}

	outcome := "success"
	if err != nil {
		outcome = string(err.Kind)
		mc.errorsTotal.WithLabelValues(string(err.Kind), kind.String()).Inc()
	}
	mc.operationsTotal.WithLabelValues(kind.String(), outcome).Inc()
	mc.operationDuration.WithLabelValues(kind.String(), outcome).Observe(duration.Seconds())
}

// RecordOperationStart increments in-flight gauge.
func (mc *MetricsCollector) RecordOperationStart(kind OperationKind) {
	if mc == nil {
		return
	}

	mc.operationsInFlight.WithLabelValues(kind.String()).Inc()
}

// RecordOperationEnd decrements in-flight gauge.
func (mc *MetricsCollector) RecordOperationEnd(kind OperationKind) {
	if mc == nil {
		return
	}

	mc.operationsInFlight.WithLabelValues(kind.String()).Dec()
}

// RecordRetry increments retry counter for an attempt.
func (mc *MetricsCollector) RecordRetry(kind OperationKind, attempt int) {
	if mc == nil {
		return
	}

	mc.retriesTotal.WithLabelValues(kind.String(), strconv.Itoa(attempt)).Inc()
}

// RecordCircuitBreakerState sets gauge to breaker state.
func (mc *MetricsCollector) RecordCircuitBreakerState(state CircuitState) {
	if mc == nil {
		return
	}

	mc.circuitBreakerState.Set(float64(state))
}

// RecordRateLimited increments the rejection counter.
func (mc *MetricsCollector) RecordRateLimited(kind OperationKind) {
	if mc == nil {
		return
	}

	mc.rateLimitRejections.WithLabelValues(kind.String()).Inc()
}

// RecordRateLimitWindow sets the admitted-requests gauge.
func (mc *MetricsCollector) RecordRateLimitWindow(count int) {
	if mc == nil {
		return
	}

	mc.rateLimitWindow.Set(float64(count))
}

// RecordCacheHit increments cache hit counter.
func (mc *MetricsCollector) RecordCacheHit(kind OperationKind) {
	if mc == nil {
		return
	}

	mc.cacheHits.WithLabelValues(kind.String()).Inc()
}

// RecordCacheMiss increments cache miss counter.
func (mc *MetricsCollector) RecordCacheMiss(kind OperationKind) {
	if mc == nil {
		return
	}

	mc.cacheMisses.WithLabelValues(kind.String()).Inc()
}

// RecordCacheSize sets cache size gauge.
func (mc *MetricsCollector) RecordCacheSize(size int) {
	if mc == nil {
		return
	}

	mc.cacheSize.Set(float64(size))
}

// RecordDeduplicationHit increments de-dup hit counter.
func (mc *MetricsCollector) RecordDeduplicationHit(kind OperationKind) {
	if mc == nil {
		return
	}

	mc.deduplicationHits.WithLabelValues(kind.String()).Inc()
}

// RecordRetryBudgetExceeded increments retry budget exceeded counter.
func (mc *MetricsCollector) RecordRetryBudgetExceeded() {
	if mc == nil {
		return
	}

	mc.retryBudgetExceeded.Inc()
}

// RecordBatch observes the size of a submitted batch.
func (mc *MetricsCollector) RecordBatch(size int) {
	if mc == nil {
		return
	}

	mc.batchSize.Observe(float64(size))
}

// Handler serves the collector's registry in the Prometheus exposition format.
func (mc *MetricsCollector) Handler() http.Handler {
	if mc == nil || mc.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(mc.gatherer, promhttp.HandlerOpts{})
}
