// Package tracing initializes OpenTelemetry tracing for Warden.
//
// New sets up an OTLP gRPC exporter, a ratio-sampled tracer provider, and
// W3C trace context propagation, then installs them globally. When
// tracing is disabled the returned tracer is a noop and adds no
// measurable overhead to the pipeline.
package tracing
