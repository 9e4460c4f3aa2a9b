// Package killswitch implements the emergency-stop state consulted on every
// request through the control plane.
//
// The switch has two scopes: a single global flag, and a per-agent flag set.
// A global trip overrides everything; per-agent trips affect only that agent.
// Reads are O(1) and lock-free on the hot path in the sense that they never
// perform I/O and only briefly hold a read lock; a trip is observed by every
// pipeline invocation that begins after it becomes visible.
//
// State is in-memory and process-local. Durability and cross-node fan-out
// belong to an external coordination layer, not here.
package killswitch
