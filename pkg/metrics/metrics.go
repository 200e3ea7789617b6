package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight *prometheus.GaugeVec

	// Resilience metrics
	ErrorsTotal        *prometheus.CounterVec
	OperationDuration  *prometheus.HistogramVec
	CircuitTripsTotal  *prometheus.CounterVec
	ShortCircuitsTotal *prometheus.CounterVec
	RetryAttemptsTotal *prometheus.CounterVec
	BatchItemsTotal    *prometheus.CounterVec
	BatchDuration      *prometheus.HistogramVec

	// Market data metrics
	FetchesTotal         *prometheus.CounterVec
	FetchDuration        *prometheus.HistogramVec
	SchedulerRunsTotal   *prometheus.CounterVec
	SchedulerRunDuration *prometheus.HistogramVec

	// Cache metrics
	CacheOperationsTotal   *prometheus.CounterVec
	CacheOperationDuration *prometheus.HistogramVec
	CacheHitRatio          *prometheus.GaugeVec
	RedisConnections       *prometheus.GaugeVec
}

// Config holds metrics configuration
type Config struct {
	Namespace string
	Subsystem string
	Enabled   bool
}

// DefaultConfig returns default metrics configuration
func DefaultConfig() *Config {
	return &Config{
		Namespace: "marketpulse",
		Subsystem: "",
		Enabled:   true,
	}
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(config *Config) *Metrics {
	if config == nil {
		config = DefaultConfig()
	}

	if !config.Enabled {
		return &Metrics{}
	}

	m := &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.1, 0.3, 0.5, 0.7, 1, 3, 5, 7, 10},
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestsInFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "http_requests_in_flight",
				Help:      "Number of HTTP requests currently being processed",
			},
			[]string{"method", "path"},
		),

		// Resilience metrics
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "errors_total",
				Help:      "Total number of classified errors",
			},
			[]string{"operation", "category"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "operation_duration_seconds",
				Help:      "Guarded operation duration in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"operation", "status"},
		),
		CircuitTripsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "circuit_trips_total",
				Help:      "Total number of circuit breaker trips",
			},
			[]string{"operation"},
		),
		ShortCircuitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "short_circuits_total",
				Help:      "Total number of calls rejected by an active circuit breaker",
			},
			[]string{"operation"},
		),
		RetryAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "retry_attempts_total",
				Help:      "Total number of retry attempts",
			},
			[]string{"operation"},
		),
		BatchItemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "batch_items_total",
				Help:      "Total number of batch items processed",
			},
			[]string{"operation", "outcome"},
		),
		BatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "batch_duration_seconds",
				Help:      "Batch execution duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
			},
			[]string{"operation"},
		),

		// Market data metrics
		FetchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "fetches_total",
				Help:      "Total number of quote fetches",
			},
			[]string{"provider", "symbol", "status"},
		),
		FetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "fetch_duration_seconds",
				Help:      "Quote fetch duration in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"provider", "status"},
		),
		SchedulerRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "scheduler_runs_total",
				Help:      "Total number of scheduler refresh runs",
			},
			[]string{"status"},
		),
		SchedulerRunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "scheduler_run_duration_seconds",
				Help:      "Scheduler refresh run duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
			},
			[]string{"status"},
		),

		// Cache metrics
		CacheOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "cache_operations_total",
				Help:      "Total number of cache operations",
			},
			[]string{"operation", "cache_type", "status"},
		),
		CacheOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "cache_operation_duration_seconds",
				Help:      "Cache operation duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"operation", "cache_type"},
		),
		CacheHitRatio: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "cache_hit_ratio",
				Help:      "Cache hit ratio",
			},
			[]string{"cache_type"},
		),
		RedisConnections: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "redis_connections",
				Help:      "Number of Redis connections",
			},
			[]string{"state"},
		),
	}

	// Register all metrics
	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.ErrorsTotal,
		m.OperationDuration,
		m.CircuitTripsTotal,
		m.ShortCircuitsTotal,
		m.RetryAttemptsTotal,
		m.BatchItemsTotal,
		m.BatchDuration,
		m.FetchesTotal,
		m.FetchDuration,
		m.SchedulerRunsTotal,
		m.SchedulerRunDuration,
		m.CacheOperationsTotal,
		m.CacheOperationDuration,
		m.CacheHitRatio,
		m.RedisConnections,
	)

	return m
}

// RecordHTTPRequest records HTTP request metrics
func (m *Metrics) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	if m.HTTPRequestsTotal == nil {
		return
	}

	statusStr := strconv.Itoa(statusCode)
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, statusStr).Observe(duration.Seconds())
}

// RecordError records a classified error
func (m *Metrics) RecordError(operation, category string) {
	if m.ErrorsTotal == nil {
		return
	}

	m.ErrorsTotal.WithLabelValues(operation, category).Inc()
}

// RecordOperation records the outcome and duration of a guarded operation
func (m *Metrics) RecordOperation(operation, status string, duration time.Duration) {
	if m.OperationDuration == nil {
		return
	}

	m.OperationDuration.WithLabelValues(operation, status).Observe(duration.Seconds())
}

// RecordCircuitTrip records a circuit breaker trip
func (m *Metrics) RecordCircuitTrip(operation string) {
	if m.CircuitTripsTotal == nil {
		return
	}

	m.CircuitTripsTotal.WithLabelValues(operation).Inc()
}

// RecordShortCircuit records a call rejected by an active circuit breaker
func (m *Metrics) RecordShortCircuit(operation string) {
	if m.ShortCircuitsTotal == nil {
		return
	}

	m.ShortCircuitsTotal.WithLabelValues(operation).Inc()
}

// RecordRetry records a retry attempt
func (m *Metrics) RecordRetry(operation string) {
	if m.RetryAttemptsTotal == nil {
		return
	}

	m.RetryAttemptsTotal.WithLabelValues(operation).Inc()
}

// RecordBatch records the outcome of a batch execution
func (m *Metrics) RecordBatch(operation string, successes, failures int, duration time.Duration) {
	if m.BatchItemsTotal == nil {
		return
	}

	m.BatchItemsTotal.WithLabelValues(operation, "success").Add(float64(successes))
	m.BatchItemsTotal.WithLabelValues(operation, "failure").Add(float64(failures))
	m.BatchDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordFetch records quote fetch metrics
func (m *Metrics) RecordFetch(provider, symbol, status string, duration time.Duration) {
	if m.FetchesTotal == nil {
		return
	}

	m.FetchesTotal.WithLabelValues(provider, symbol, status).Inc()
	m.FetchDuration.WithLabelValues(provider, status).Observe(duration.Seconds())
}

// RecordSchedulerRun records scheduler refresh run metrics
func (m *Metrics) RecordSchedulerRun(status string, duration time.Duration) {
	if m.SchedulerRunsTotal == nil {
		return
	}

	m.SchedulerRunsTotal.WithLabelValues(status).Inc()
	m.SchedulerRunDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordCacheOperation records cache operation metrics
func (m *Metrics) RecordCacheOperation(operation, cacheType, status string, duration time.Duration) {
	if m.CacheOperationsTotal == nil {
		return
	}

	m.CacheOperationsTotal.WithLabelValues(operation, cacheType, status).Inc()
	m.CacheOperationDuration.WithLabelValues(operation, cacheType).Observe(duration.Seconds())
}

// UpdateCacheHitRatio updates cache hit ratio metrics
func (m *Metrics) UpdateCacheHitRatio(cacheType string, ratio float64) {
	if m.CacheHitRatio == nil {
		return
	}

	m.CacheHitRatio.WithLabelValues(cacheType).Set(ratio)
}

// UpdateRedisConnections updates Redis connection metrics
func (m *Metrics) UpdateRedisConnections(total, idle, stale int) {
	if m.RedisConnections == nil {
		return
	}

	m.RedisConnections.WithLabelValues("total").Set(float64(total))
	m.RedisConnections.WithLabelValues("idle").Set(float64(idle))
	m.RedisConnections.WithLabelValues("stale").Set(float64(stale))
}

// PrometheusMiddleware creates a middleware for Prometheus metrics collection
func (m *Metrics) PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.HTTPRequestsInFlight != nil {
			m.HTTPRequestsInFlight.WithLabelValues(c.Request.Method, c.FullPath()).Inc()
			defer m.HTTPRequestsInFlight.WithLabelValues(c.Request.Method, c.FullPath()).Dec()
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		m.RecordHTTPRequest(c.Request.Method, c.FullPath(), c.Writer.Status(), duration)
	}
}

// Handler returns the Prometheus metrics HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

// SampleFunc reports point-in-time gauge values for one collection cycle.
type SampleFunc func(m *Metrics)

// MetricsCollector updates gauge metrics periodically
type MetricsCollector struct {
	metrics  *Metrics
	interval time.Duration
	sample   SampleFunc
	stopCh   chan struct{}
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(metrics *Metrics, interval time.Duration, sample SampleFunc) *MetricsCollector {
	return &MetricsCollector{
		metrics:  metrics,
		interval: interval,
		sample:   sample,
		stopCh:   make(chan struct{}),
	}
}

// Start begins metrics collection
func (mc *MetricsCollector) Start(ctx context.Context) {
	ticker := time.NewTicker(mc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-mc.stopCh:
			return
		case <-ticker.C:
			if mc.sample != nil {
				mc.sample(mc.metrics)
			}
		}
	}
}

// Stop stops metrics collection
func (mc *MetricsCollector) Stop() {
	close(mc.stopCh)
}
