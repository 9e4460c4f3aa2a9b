// Package registry is the authoritative catalog of agents permitted to
// reach a model through the control plane.
//
// Agent ids are slugs derived from the agent name, so registration is
// naturally idempotent-by-name: registering "Customer Support Bot" twice
// fails the second time with ErrDuplicateAgent rather than silently
// creating a sibling.
//
// The registry is read-mostly: pipeline lookups take a shared lock and
// return copies, mutations take the exclusive lock. A pipeline sees either
// the pre- or post-mutation agent, never a partial write.
//
// Per-agent rate caps are enforced here with a token bucket per capped
// agent; the executor consults Allow before admitting a request.
package registry
