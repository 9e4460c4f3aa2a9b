// Package approval implements the human-approval workflow that REVIEW
// decisions are routed through.
//
// A request enqueued here is pending until a reviewer approves or rejects
// it, or until its workflow timeout elapses. The timeout sweeper is an
// idempotent periodic scan: each expired request moves exactly once into
// the state its workflow's timeout action prescribes (reject, approve as
// "system", or escalate to a new reviewer set).
//
// Every terminal transition produces an immutable DecisionRecord and an
// audit entry, so each approval closes into the form "this outcome exists
// because <reviewer> decided it under workflow <id> at <time>".
//
// The queue is FIFO; lookup by id is O(1). Approve and Reject are
// idempotent on terminal states: a second call returns the decision record
// already minted, without re-transitioning.
package approval
