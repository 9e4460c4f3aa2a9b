// Package metrics exposes Warden's Prometheus metrics.
//
// The collector owns a private registry and registers every metric the
// pipeline records: request outcomes, policy decisions, approval queue
// depth, breaker state, and audit writes. Mount Handler() wherever the
// server serves its scrape path.
//
// Label cardinality is kept deliberately low. Outcome labels come from
// closed enums (result status, error kind, decision outcome); nothing
// request-scoped like execution or agent ids ever becomes a label.
package metrics
