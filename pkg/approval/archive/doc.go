// Package archive persists approval decision records to SQLite.
//
// The archive is a write-mostly compliance store: the approval manager
// writes one row per terminal transition, and operators query it when
// reconstructing why an execution was allowed or blocked. Records are
// never updated or deleted through this package.
package archive
