// Package enforcer fails the pipeline closed when the control plane
// itself is unhealthy.
//
// It owns two gates. The health registry aggregates named probes into a
// single status: healthy when every probe passes, degraded when only
// non-critical probes fail, down when any critical probe fails. The
// circuit breaker trips after consecutive pipeline failures so that a
// broken dependency sheds load instead of timing out every request.
//
// Execute runs a pipeline step behind both gates. When a critical probe
// is down, or the breaker is open, the step is refused before it runs
// and the caller receives a typed fail-closed error. An unhealthy
// governance layer must block traffic, never wave it through.
package enforcer
