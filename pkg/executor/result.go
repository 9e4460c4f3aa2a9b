package executor

// ResultStatus is the submission outcome class.
type ResultStatus string

const (
	// StatusSuccess carries the model response.
	StatusSuccess ResultStatus = "success"

	// StatusBlocked carries the block reason and, for policy blocks, the
	// terminating policy id.
	StatusBlocked ResultStatus = "blocked"

	// StatusPendingApproval carries the approval id the caller can poll.
	StatusPendingApproval ResultStatus = "pending_approval"
)

// Result is the envelope a submission resolves to.
type Result struct {
	// Status is success, blocked, or pending_approval.
	Status ResultStatus `json:"status"`

	// ExecutionID identifies this pipeline run across audit, events, and
	// approvals.
	ExecutionID string `json:"execution_id"`

	// Response is the model output on success.
	Response string `json:"response,omitempty"`

	// LatencyMS is the end-to-end latency on success.
	LatencyMS int64 `json:"latency_ms,omitempty"`

	// Reason explains a block or pending state.
	Reason string `json:"reason,omitempty"`

	// PolicyID is the terminating policy on a policy block.
	PolicyID string `json:"policy_id,omitempty"`

	// ApprovalID is set on pending_approval.
	ApprovalID string `json:"approval_id,omitempty"`

	// ErrorType discriminates block causes (kill_switch_active,
	// agent_not_found, policy_violation, ...).
	ErrorType string `json:"error_type,omitempty"`
}
