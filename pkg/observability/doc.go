// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing, health checks, and graceful shutdown for the
// Sentinel access-control service.
//
// Logging uses stdlib slog with a JSON handler; request-scoped loggers travel
// through context.Context together with a correlation ID. Metrics are
// registered against a local prometheus.Registry and served on the health
// port. Tracing and metric export to an OTLP collector are optional and
// enabled via configuration.
package observability
