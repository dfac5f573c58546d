// Package instrumentation wires OpenTelemetry metrics and tracing for the
// calendar integration service.
//
// Metrics default to the pull-based Prometheus exporter served on a
// dedicated listener; OTLP and stdout exporters are available via
// environment configuration. Tracing is off by default.
package instrumentation
