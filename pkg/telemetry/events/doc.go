// Package events is the in-memory observability store.
//
// It is an append-only event log indexed by execution, agent, actor,
// and event type, feeding dashboard queries and replay. It is not the
// authoritative record (the audit trail is): appends are best-effort
// and must never block or fail the request path.
package events
