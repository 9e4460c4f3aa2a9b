// Package engine implements the deterministic policy evaluator.
//
// Evaluate is a pure function: it performs no I/O, reads no clocks, and
// mutates neither the policy set nor the request context. Two calls with
// the same inputs produce identical decisions, including the order of the
// matched-policy list. That determinism is what makes a decision
// reproducible from the audit record alone.
//
// Evaluation order is priority-descending with a stable sort, so policies
// with equal priority run in the order they were loaded. The first deny or
// review short-circuits; allows accumulate.
package engine
