package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authentication metrics
	AuthAttemptsTotal   *prometheus.CounterVec
	TokensIssuedTotal   prometheus.Counter
	TokensRevokedTotal  prometheus.Counter
	SecretRotationsTotal prometheus.Counter
	InvalidCookiesTotal prometheus.Counter
	SessionsBurnedTotal prometheus.Counter
	ActiveSessions      prometheus.Gauge

	// Storage metrics
	StoreOperationsTotal   *prometheus.CounterVec
	StoreOperationDuration *prometheus.HistogramVec

	// Cache metrics
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter
}

// AuthAttemptsTotal result label values.
const (
	AuthResultSuccess   = "success"
	AuthResultAnonymous = "anonymous"
	AuthResultDenied    = "denied"
	AuthResultError     = "error"
)

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keepsake_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "keepsake_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		AuthAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keepsake_auth_attempts_total",
				Help: "Cookie authentication attempts by result",
			},
			[]string{"result"},
		),
		TokensIssuedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "keepsake_tokens_issued_total",
				Help: "Remember-me tokens issued on login",
			},
		),
		TokensRevokedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "keepsake_tokens_revoked_total",
				Help: "Remember-me tokens revoked on logout",
			},
		),
		SecretRotationsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "keepsake_secret_rotations_total",
				Help: "Random-password rotations on login and resume",
			},
		),
		InvalidCookiesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "keepsake_invalid_cookies_total",
				Help: "Tampered or unparseable authentication cookies observed",
			},
		),
		SessionsBurnedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "keepsake_sessions_burned_total",
				Help: "Server-side sessions expired after a failed verification",
			},
		),
		ActiveSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "keepsake_active_sessions",
				Help: "Best-effort count of active remember-me sessions",
			},
		),

		StoreOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keepsake_store_operations_total",
				Help: "Total number of token store operations",
			},
			[]string{"operation", "backend", "status"},
		),
		StoreOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "keepsake_store_operation_duration_seconds",
				Help:    "Token store operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "backend"},
		),

		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "keepsake_user_cache_hits_total",
				Help: "User lookup cache hits",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "keepsake_user_cache_misses_total",
				Help: "User lookup cache misses",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthAttemptsTotal,
		m.TokensIssuedTotal,
		m.TokensRevokedTotal,
		m.SecretRotationsTotal,
		m.InvalidCookiesTotal,
		m.SessionsBurnedTotal,
		m.ActiveSessions,
		m.StoreOperationsTotal,
		m.StoreOperationDuration,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
	)

	return m
}

// ObserveStoreOperation records one token store call.
func (m *Metrics) ObserveStoreOperation(operation, backend string, err error, duration time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.StoreOperationsTotal.WithLabelValues(operation, backend, status).Inc()
	m.StoreOperationDuration.WithLabelValues(operation, backend).Observe(duration.Seconds())
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
		})
	}
}

// MetricsHandler returns the Prometheus scrape handler for the registry
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
