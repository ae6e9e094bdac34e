// Package observability provides logging, metrics, tracing, health checks,
// and graceful shutdown for the service.
//
// # Components
//
// Logger: structured JSON logging on stdlib slog
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("credential", cred).Info("session resumed")
//
// Metrics: Prometheus counters and histograms under the keepsake_ prefix:
// authentication attempts by result, tokens issued and revoked, secret
// rotations, invalid cookies, burned sessions, store operation latency, and
// HTTP request metrics.
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	router.Handle("/metrics", observability.MetricsHandler(registry))
//
// HealthChecker: liveness and readiness probes that ping the token database
// and redis. The database is required; redis only degrades.
//
// InitTracing: OpenTelemetry tracer provider with an OTLP/gRPC exporter.
//
// ShutdownManager: SIGINT/SIGTERM handling, HTTP drain, and concurrent
// shutdown hooks with a deadline.
package observability
