package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stanchionhq/stanchion/pkg/faults"
	"github.com/stanchionhq/stanchion/pkg/retry"
)

// Metrics provides Prometheus metrics for Stanchion.
type Metrics struct {
	config MetricsConfig

	// Retry metrics
	retryAttempts    *prometheus.CounterVec
	retryExhaustions *prometheus.CounterVec
	retryDelay       prometheus.Histogram

	// Transaction metrics
	txCommitted        prometheus.Counter
	txRolledBack       prometheus.Counter
	txRollbackFailures prometheus.Counter
	txDuration         *prometheus.HistogramVec

	// Validation metrics
	validationRuns     *prometheus.CounterVec
	validationFailures *prometheus.CounterVec

	// Store metrics
	storeOperations *prometheus.CounterVec
	storeDuration   *prometheus.HistogramVec

	// Error metrics
	errorsByKind *prometheus.CounterVec

	// System metrics
	activeTxScopes prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	// Create a new registry
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		// Retry metrics
		retryAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retry_attempts_total",
				Help:      "Total number of retry attempts",
			},
			[]string{"kind", "result"},
		),
		retryExhaustions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retry_exhaustions_total",
				Help:      "Total number of operations that exhausted all retry attempts",
			},
			[]string{"kind"},
		),
		retryDelay: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "retry_delay_seconds",
				Help:      "Backoff delay slept before retry attempts in seconds",
				Buckets:   buckets,
			},
		),

		// Transaction metrics
		txCommitted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transactions_committed_total",
				Help:      "Total number of committed transaction scopes",
			},
		),
		txRolledBack: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transactions_rolled_back_total",
				Help:      "Total number of rolled back transaction scopes",
			},
		),
		txRollbackFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transaction_rollback_failures_total",
				Help:      "Total number of rollbacks that themselves failed",
			},
		),
		txDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "transaction_duration_seconds",
				Help:      "Duration of transaction scopes in seconds",
				Buckets:   buckets,
			},
			[]string{"outcome"},
		),

		// Validation metrics
		validationRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validation_runs_total",
				Help:      "Total number of configuration validation runs",
			},
			[]string{"result"},
		),
		validationFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validation_failures_total",
				Help:      "Total number of failed validation checks by section",
			},
			[]string{"section"},
		),

		// Store metrics
		storeOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_operations_total",
				Help:      "Total number of store operations",
			},
			[]string{"operation", "status"},
		),
		storeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "store_operation_duration_seconds",
				Help:      "Duration of store operations in seconds",
				Buckets:   buckets,
			},
			[]string{"operation"},
		),

		// Error metrics
		errorsByKind: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_kind_total",
				Help:      "Total number of errors by fault kind",
			},
			[]string{"kind"},
		),

		// System metrics
		activeTxScopes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_transaction_scopes",
				Help:      "Current number of open transaction scopes",
			},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.retryAttempts,
		m.retryExhaustions,
		m.retryDelay,
		m.txCommitted,
		m.txRolledBack,
		m.txRollbackFailures,
		m.txDuration,
		m.validationRuns,
		m.validationFailures,
		m.storeOperations,
		m.storeDuration,
		m.errorsByKind,
		m.activeTxScopes,
	)

	return m, nil
}

// Retry Metrics

// ObserveAttempt records a retry attempt. Metrics satisfies retry.Observer
// so it can be passed to retry.Execute via retry.WithObserver.
func (m *Metrics) ObserveAttempt(a retry.Attempt) {
	if m.retryAttempts == nil {
		return
	}
	result := "success"
	kind := ""
	if a.Err != nil {
		result = "failure"
		kind = string(faults.KindOf(a.Err))
	}
	m.retryAttempts.WithLabelValues(kind, result).Inc()
	if a.Delay > 0 {
		m.retryDelay.Observe(a.Delay.Seconds())
	}
}

// RecordRetryExhaustion records an operation that failed all attempts.
func (m *Metrics) RecordRetryExhaustion(err error) {
	if m.retryExhaustions == nil {
		return
	}
	m.retryExhaustions.WithLabelValues(string(faults.KindOf(err))).Inc()
}

// Transaction Metrics

// RecordTxStarted increments the active transaction scope gauge.
func (m *Metrics) RecordTxStarted() {
	if m.activeTxScopes == nil {
		return
	}
	m.activeTxScopes.Inc()
}

// RecordTxCommitted records a committed transaction scope with its duration.
func (m *Metrics) RecordTxCommitted(duration time.Duration) {
	if m.txCommitted == nil {
		return
	}
	m.txCommitted.Inc()
	m.txDuration.WithLabelValues("committed").Observe(duration.Seconds())
	m.activeTxScopes.Dec()
}

// RecordTxRolledBack records a rolled back transaction scope. rollbackFailed
// marks rollbacks that themselves returned an error.
func (m *Metrics) RecordTxRolledBack(duration time.Duration, rollbackFailed bool) {
	if m.txRolledBack == nil {
		return
	}
	m.txRolledBack.Inc()
	if rollbackFailed {
		m.txRollbackFailures.Inc()
	}
	m.txDuration.WithLabelValues("rolled_back").Observe(duration.Seconds())
	m.activeTxScopes.Dec()
}

// Validation Metrics

// RecordValidation records a validation run and its per-section failures.
func (m *Metrics) RecordValidation(failuresBySection map[string]int) {
	if m.validationRuns == nil {
		return
	}
	result := "ok"
	for section, count := range failuresBySection {
		if count > 0 {
			result = "failed"
			m.validationFailures.WithLabelValues(section).Add(float64(count))
		}
	}
	m.validationRuns.WithLabelValues(result).Inc()
}

// Store Metrics

// RecordStoreOperation records a store operation with its duration.
func (m *Metrics) RecordStoreOperation(operation, status string, duration time.Duration) {
	if m.storeOperations == nil {
		return
	}
	m.storeOperations.WithLabelValues(operation, status).Inc()
	m.storeDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// Error Metrics

// RecordError records an error by its fault kind.
func (m *Metrics) RecordError(err error) {
	if m.errorsByKind == nil || err == nil {
		return
	}
	m.errorsByKind.WithLabelValues(string(faults.KindOf(err))).Inc()
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration is a helper to time an operation and record it.
func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(t.Duration().Seconds())
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// Log error but don't fail the application
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
