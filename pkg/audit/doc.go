// Package audit implements the hash-chained, HMAC-signed audit trail.
//
// Every governance event appends one Entry. Each entry's hash is the
// SHA-256 of a canonical serialization of its fields (hash and signature
// excluded), each entry records the previous entry's hash, and each hash
// is signed with HMAC-SHA-256 under a deployment secret. The chain makes
// reordering, insertion, deletion, and in-place edits detectable; the HMAC
// separates what is on the chain from who can mint chain entries.
//
// The trail is the authoritative record. The in-memory chain is the source
// of truth for verification; a storage backend (see the storage
// subpackage) mirrors entries asynchronously for durability.
//
// Appends are serialized by an exclusive lock — one SHA-256 plus one HMAC
// per entry is the throughput ceiling. Readers operate on snapshots.
package audit
