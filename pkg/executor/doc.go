// Package executor orchestrates one governed request end-to-end.
//
// The pipeline for a submission: kill-switch check, registry lookup and
// rate cap, pre-request hook fan-out, frozen context construction,
// policy evaluation, then one of three exits. DENY blocks, REVIEW
// suspends the execution into the approval workflow, ALLOW invokes the
// injected model call. Every transition appends to the audit trail and
// the observability store, and the whole pipeline runs behind the
// fail-closed enforcer.
//
// The executor owns no long-lived state beyond suspended executions
// awaiting approval; all other state lives in the components it
// composes, which are injected at construction.
package executor
