// Package observability provides structured logging, Prometheus metrics,
// health checks and shutdown handling for the rights service.
//
// # Structured Logging
//
// Loggers are logrus loggers with a JSON formatter by default:
//
//	logger := observability.NewLogger(logrus.InfoLevel, observability.FormatJSON, os.Stdout)
//	logger.WithField("port", 8080).Info("Server started")
//
// Inside a request, FromContext returns the request scoped entry with the
// request and user ids attached:
//
//	observability.FromContext(r.Context()).WithError(err).Error("grant failed")
//
// # Prometheus Metrics
//
// Metrics are registered on a caller supplied registry so tests can use a
// fresh one each time:
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	router.Use(observability.HTTPMetricsMiddleware(metrics))
//
// *Metrics satisfies the observer interfaces of pkg/rights and pkg/authz, so
// decisions, cache lookups and store calls are counted without those
// packages importing Prometheus.
//
// # Tracing
//
// InitTracing installs an OTLP/gRPC tracer provider when enabled; otherwise
// spans go to the no-op global provider. TracingMiddleware names server spans
// after the matched mux route, and FromContext adds trace_id and span_id to
// log entries of traced requests.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient, false, version)
//	observability.RegisterHealthRoutes(mux, checker)
//
// # Related Packages
//
//   - pkg/config: logging and listener configuration
//   - pkg/middleware: request id and authentication middleware
package observability
