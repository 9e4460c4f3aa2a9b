// Package storage provides durable mirrors for the audit chain.
//
// The in-memory chain in the audit package is authoritative; these
// backends receive asynchronous copies so the record survives a process
// restart. Two implementations exist: MemoryStore for tests, and
// SQLiteStore for deployments. Both preserve the entry fields verbatim,
// including hash and signature, so an offline verifier can re-walk a
// mirrored chain.
package storage
