// Package telemetry provides observability for Warden.
//
// # Components
//
//   - logging: structured slog setup with PII redaction
//   - metrics: Prometheus collectors for the pipeline
//   - tracing: OpenTelemetry distributed tracing
//   - events: queryable in-memory execution event store
//
// Each component stands alone; wiring happens at startup. The event
// store is the queryable record behind the observability API, while
// metrics and traces cover aggregate and cross-service views.
package telemetry
