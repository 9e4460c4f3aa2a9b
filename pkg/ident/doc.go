// Package ident provides identifier minting, clock abstraction, and the
// immutable per-request identity descriptor used throughout the control plane.
//
// Every entity in the system (agents, policies, audit entries, approvals,
// executions) carries an opaque string identifier minted by an IDSource.
// The default source is UUIDv4-backed; tests substitute a deterministic
// sequence source.
//
// The Clock interface isolates time reads so that components with
// time-dependent behavior (approval timeouts, circuit breaker windows,
// audit timestamps) can be driven by a fake clock in tests.
//
// Identity is the frozen descriptor of who submitted a request and from
// where. It is constructed once at the ingress boundary and never mutated;
// all fields are value-copied into downstream records.
package ident
