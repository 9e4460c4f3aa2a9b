package audit

import "time"

// EventType tags what kind of governance event an entry records.
type EventType string

const (
	EventRequestSubmitted       EventType = "request.submitted"
	EventRequestBlocked         EventType = "request.blocked"
	EventRequestPendingApproval EventType = "request.pending_approval"
	EventRequestCompleted       EventType = "request.completed"
	EventRequestFailed          EventType = "request.failed"

	EventPolicyEvaluated EventType = "policy.evaluated"

	EventApprovalRequested EventType = "approval.requested"
	EventApprovalApproved  EventType = "approval.approved"
	EventApprovalRejected  EventType = "approval.rejected"
	EventApprovalTimeout   EventType = "approval.timeout"
	EventApprovalEscalated EventType = "approval.escalated"

	EventKillSwitchActivated   EventType = "killswitch.activated"
	EventKillSwitchDeactivated EventType = "killswitch.deactivated"

	EventAgentRegistered   EventType = "agent.registered"
	EventAgentUpdated      EventType = "agent.updated"
	EventAgentDeactivated  EventType = "agent.deactivated"
	EventPolicySetReloaded EventType = "policy.set_reloaded"
)

// Entry is one link in the audit chain. Entries are frozen once appended;
// the trail only ever hands out copies.
type Entry struct {
	// Sequence is the 1-based position in the chain. Consecutive entries
	// differ by exactly one.
	Sequence uint64 `json:"sequence"`

	// EventID is the entry's unique id.
	EventID string `json:"event_id"`

	// EventType tags the recorded event.
	EventType EventType `json:"event_type"`

	// Timestamp is the wall-clock append time, in UTC.
	Timestamp time.Time `json:"timestamp"`

	// RequestID binds the entry to one execution, when applicable.
	RequestID string `json:"request_id,omitempty"`

	// AgentID binds the entry to one agent, when applicable.
	AgentID string `json:"agent_id,omitempty"`

	// ActorID binds the entry to one principal, when applicable.
	ActorID string `json:"actor_id,omitempty"`

	// Details carries event-specific data. String-valued so the canonical
	// serialization stays deterministic.
	Details map[string]string `json:"details,omitempty"`

	// PreviousHash is the prior entry's hash; empty only for sequence 1.
	PreviousHash string `json:"previous_hash"`

	// Hash is the SHA-256 of the entry's canonical serialization,
	// excluding Hash and Signature themselves.
	Hash string `json:"hash"`

	// Signature is the HMAC-SHA-256 of Hash under the trail secret.
	Signature string `json:"signature"`
}

// clone deep-copies the entry.
func (e *Entry) clone() *Entry {
	copied := *e
	if e.Details != nil {
		copied.Details = make(map[string]string, len(e.Details))
		for k, v := range e.Details {
			copied.Details[k] = v
		}
	}
	return &copied
}

// IssueKind classifies one broken chain invariant.
type IssueKind string

const (
	// IssueHashMismatch means the entry's stored hash does not equal the
	// hash recomputed from its fields.
	IssueHashMismatch IssueKind = "hash_mismatch"

	// IssueChainBreak means the entry's previous-hash does not equal the
	// prior entry's hash.
	IssueChainBreak IssueKind = "chain_break"

	// IssueSequenceMismatch means sequence numbers are not 1..n.
	IssueSequenceMismatch IssueKind = "sequence_mismatch"

	// IssueInvalidSignature means the HMAC does not verify under the
	// configured secret.
	IssueInvalidSignature IssueKind = "invalid_signature"
)

// Issue is one detected integrity violation.
type Issue struct {
	Sequence uint64    `json:"sequence"`
	Kind     IssueKind `json:"kind"`
	Message  string    `json:"message"`
}

// IntegrityReport is the result of walking the whole chain.
type IntegrityReport struct {
	// Valid is true only when Issues is empty.
	Valid bool `json:"valid"`

	// Entries is the number of entries verified.
	Entries int `json:"entries"`

	// VerifiedAt is when the walk ran.
	VerifiedAt time.Time `json:"verified_at"`

	// Issues lists every broken invariant found.
	Issues []Issue `json:"issues,omitempty"`
}

// QueryFilter selects entries for Query, ChainOfCustody, and Export.
// Zero-valued fields match everything.
type QueryFilter struct {
	// EventType restricts to one event type.
	EventType EventType

	// RequestID restricts to one execution.
	RequestID string

	// AgentID restricts to one agent.
	AgentID string

	// ActorID restricts to one principal.
	ActorID string

	// Since restricts to entries at or after this instant.
	Since time.Time

	// Until restricts to entries before this instant.
	Until time.Time

	// Limit bounds the result count; zero means unbounded.
	Limit int
}
