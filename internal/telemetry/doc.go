// Package telemetry sets up OpenTelemetry tracing and metrics for repoindex.
//
// Telemetry is off by default. When enabled, traces and metrics are exported
// over OTLP (gRPC or HTTP). Exporter failures never stop indexing; the
// instance just reports itself as degraded.
package telemetry
