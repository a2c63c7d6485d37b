package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code", "service"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "service"},
	)

	// Consent operation metrics
	consentOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consent_operations_total",
			Help: "Total number of consent operations",
		},
		[]string{"operation", "status", "service"},
	)

	consentOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "consent_operation_duration_seconds",
			Help:    "Duration of consent operations in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0},
		},
		[]string{"operation", "service"},
	)

	// Access check metrics
	accessChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "access_checks_total",
			Help: "Total number of access predicate evaluations",
		},
		[]string{"result", "service"},
	)

	// Ledger transaction metrics
	ledgerTransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_transactions_total",
			Help: "Total number of ledger transactions",
		},
		[]string{"function", "status", "service"},
	)

	ledgerTransactionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_transaction_duration_seconds",
			Help:    "Duration of ledger transactions in seconds",
			Buckets: []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
		},
		[]string{"function", "service"},
	)

	// Event mirror metrics
	eventMirrorWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_mirror_writes_total",
			Help: "Total number of consent event mirror writes",
		},
		[]string{"action", "status", "service"},
	)

	// Authentication metrics
	authAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"method", "status", "service"},
	)
)

// MetricsCollector handles Prometheus metrics collection
type MetricsCollector struct {
	serviceName string
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(serviceName string) *MetricsCollector {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		consentOperationsTotal,
		consentOperationDuration,
		accessChecksTotal,
		ledgerTransactionsTotal,
		ledgerTransactionDuration,
		eventMirrorWritesTotal,
		authAttemptsTotal,
	)

	return &MetricsCollector{
		serviceName: serviceName,
	}
}

// RecordHTTPRequest records HTTP request metrics
func (m *MetricsCollector) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, endpoint, statusCode, m.serviceName).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint, m.serviceName).Observe(duration.Seconds())
}

// RecordConsentOperation records a consent operation and its duration
func (m *MetricsCollector) RecordConsentOperation(operation, status string, duration time.Duration) {
	consentOperationsTotal.WithLabelValues(operation, status, m.serviceName).Inc()
	consentOperationDuration.WithLabelValues(operation, m.serviceName).Observe(duration.Seconds())
}

// RecordAccessCheck records an access predicate evaluation
func (m *MetricsCollector) RecordAccessCheck(granted bool) {
	result := "denied"
	if granted {
		result = "granted"
	}
	accessChecksTotal.WithLabelValues(result, m.serviceName).Inc()
}

// RecordLedgerTransaction records ledger transaction metrics
func (m *MetricsCollector) RecordLedgerTransaction(function, status string, duration time.Duration) {
	ledgerTransactionsTotal.WithLabelValues(function, status, m.serviceName).Inc()
	ledgerTransactionDuration.WithLabelValues(function, m.serviceName).Observe(duration.Seconds())
}

// RecordEventMirrorWrite records a consent event mirror write attempt
func (m *MetricsCollector) RecordEventMirrorWrite(action, status string) {
	eventMirrorWritesTotal.WithLabelValues(action, status, m.serviceName).Inc()
}

// RecordAuthAttempt records authentication attempt metrics
func (m *MetricsCollector) RecordAuthAttempt(method, status string) {
	authAttemptsTotal.WithLabelValues(method, status, m.serviceName).Inc()
}

// Handler returns the Prometheus metrics HTTP handler
func (m *MetricsCollector) Handler() http.Handler {
	return promhttp.Handler()
}

// HTTPMiddleware creates middleware for HTTP request metrics
func (m *MetricsCollector) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		duration := time.Since(start)
		statusCode := strconv.Itoa(wrapper.statusCode)

		m.RecordHTTPRequest(r.Method, r.URL.Path, statusCode, duration)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
