package approval

import (
	"time"

	"veritas-hq/warden/pkg/ident"
	"veritas-hq/warden/pkg/registry"
)

// Status is an approval request's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusTimeout   Status = "timeout"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s != StatusPending
}

// TimeoutAction prescribes what the sweeper does with an expired request.
type TimeoutAction string

const (
	// TimeoutReject finalizes the request as timed out; downstream treats
	// it as a denial.
	TimeoutReject TimeoutAction = "reject"

	// TimeoutApprove finalizes as approved with reviewer "system".
	TimeoutApprove TimeoutAction = "approve"

	// TimeoutEscalate re-enqueues to the first escalation rule whose
	// trigger fires, falling back to the reject path when none does.
	TimeoutEscalate TimeoutAction = "escalate"
)

// EscalationTrigger describes when an escalation rule fires. Zero-valued
// fields are ignored; a trigger with all fields zero never fires on its
// own condition but TimeoutSeconds is implicitly satisfied during a
// timeout sweep.
type EscalationTrigger struct {
	// TimeoutSeconds fires once the request has been pending at least
	// this long.
	TimeoutSeconds int `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`

	// RejectionCount fires once the request has accumulated this many
	// rejections across escalation rounds.
	RejectionCount int `yaml:"rejection_count,omitempty" json:"rejection_count,omitempty"`

	// RiskThreshold fires when the request's risk level is at or above
	// this level.
	RiskThreshold registry.RiskLevel `yaml:"risk_threshold,omitempty" json:"risk_threshold,omitempty"`
}

// EscalationRule routes an expired request to a new reviewer set.
type EscalationRule struct {
	// Trigger gates the rule.
	Trigger EscalationTrigger `yaml:"trigger,omitempty" json:"trigger,omitempty"`

	// Level is the escalation level the request moves to.
	Level int `yaml:"level" json:"level"`

	// TargetRoles replaces the acceptable reviewer roles.
	TargetRoles []string `yaml:"target_roles" json:"target_roles"`

	// MaxAttempts caps how many times this rule may fire for one
	// request. Zero means once.
	MaxAttempts int `yaml:"max_attempts,omitempty" json:"max_attempts,omitempty"`
}

// Workflow configures how approvals bound to it are reviewed.
type Workflow struct {
	// ID uniquely identifies the workflow.
	ID string `yaml:"id" json:"id"`

	// ApproverRoles lists roles allowed to decide, in preference order.
	ApproverRoles []string `yaml:"approver_roles" json:"approver_roles"`

	// RequiredApprovals is how many distinct approvals finalize the
	// request. V1 semantics: 1.
	RequiredApprovals int `yaml:"required_approvals" json:"required_approvals"`

	// TimeoutSeconds bounds how long a request may stay pending.
	TimeoutSeconds int `yaml:"timeout_seconds" json:"timeout_seconds"`

	// TimeoutAction prescribes the sweeper's follow-up on expiry.
	TimeoutAction TimeoutAction `yaml:"timeout_action" json:"timeout_action"`

	// EscalationRules apply in order when TimeoutAction is escalate.
	EscalationRules []EscalationRule `yaml:"escalation_rules,omitempty" json:"escalation_rules,omitempty"`

	// RequireRationale rejects approve/reject calls without a rationale.
	RequireRationale bool `yaml:"require_rationale" json:"require_rationale"`
}

// Request is one approval awaiting (or past) review.
type Request struct {
	// ID is the approval id.
	ID string `json:"id"`

	// ExecutionID binds the approval to the suspended pipeline run.
	ExecutionID string `json:"execution_id"`

	// AgentID is the agent the suspended request targets.
	AgentID string `json:"agent_id"`

	// RequestedBy is the identity that submitted the original request.
	RequestedBy ident.Identity `json:"requested_by"`

	// Prompt is the original prompt under review.
	Prompt string `json:"prompt"`

	// Reason is the engine's reason for requiring review.
	Reason string `json:"reason"`

	// PolicyID is the policy that triggered the review.
	PolicyID string `json:"policy_id"`

	// WorkflowID names the workflow governing this approval.
	WorkflowID string `json:"workflow_id"`

	// Status is the current lifecycle state.
	Status Status `json:"status"`

	// RiskLevel is the agent's risk classification at enqueue time.
	RiskLevel registry.RiskLevel `json:"risk_level"`

	// ApproverRoles is the currently acceptable reviewer role set. It
	// starts as the workflow's roles and changes on escalation.
	ApproverRoles []string `json:"approver_roles"`

	// EscalationLevel is the current escalation level (0 = initial).
	EscalationLevel int `json:"escalation_level"`

	// EscalationAttempts counts how many times escalation has fired.
	EscalationAttempts int `json:"escalation_attempts"`

	// Rejections counts rejections accumulated across rounds.
	Rejections int `json:"rejections"`

	// RequestedAt is when the current review round began.
	RequestedAt time.Time `json:"requested_at"`

	// ReviewedAt is when the terminal decision was made, if any.
	ReviewedAt *time.Time `json:"reviewed_at,omitempty"`

	// ReviewedBy identifies the deciding reviewer, if any.
	ReviewedBy string `json:"reviewed_by,omitempty"`

	// Comment is the reviewer's rationale, if any.
	Comment string `json:"comment,omitempty"`

	// Context carries workflow parameters the reviewer should see,
	// including the configured timeout and risk level.
	Context map[string]string `json:"context,omitempty"`
}

// clone deep-copies the request.
func (r *Request) clone() *Request {
	copied := *r

	copied.ApproverRoles = append([]string(nil), r.ApproverRoles...)
	if r.Context != nil {
		copied.Context = make(map[string]string, len(r.Context))
		for k, v := range r.Context {
			copied.Context[k] = v
		}
	}
	if r.ReviewedAt != nil {
		reviewedAt := *r.ReviewedAt
		copied.ReviewedAt = &reviewedAt
	}

	return &copied
}

// Outcome is the closed-form result of one approval.
type Outcome string

const (
	OutcomeApproved  Outcome = "APPROVED"
	OutcomeRejected  Outcome = "REJECTED"
	OutcomeTimeout   Outcome = "TIMEOUT"
	OutcomeCancelled Outcome = "CANCELLED"
)

// DecisionRecord is the immutable audit artefact minted at each terminal
// transition.
type DecisionRecord struct {
	// ID is the record id.
	ID string `json:"id"`

	// ApprovalID is the approval this record closes.
	ApprovalID string `json:"approval_id"`

	// Outcome is the terminal outcome.
	Outcome Outcome `json:"outcome"`

	// DecidedAt is when the decision was made.
	DecidedAt time.Time `json:"decided_at"`

	// DecidedBy identifies the decider ("system" for timeouts).
	DecidedBy string `json:"decided_by"`

	// DecidedByRole is the decider's role.
	DecidedByRole string `json:"decided_by_role,omitempty"`

	// Rationale is the decider's stated reasoning.
	Rationale string `json:"rationale,omitempty"`

	// RiskLevel echoes the request's risk classification.
	RiskLevel registry.RiskLevel `json:"risk_level"`

	// WorkflowID names the governing workflow.
	WorkflowID string `json:"workflow_id"`

	// ContextSnapshot freezes the context the reviewer saw.
	ContextSnapshot map[string]string `json:"context_snapshot,omitempty"`

	// PriorEvents lists rejections and escalations that preceded the
	// decision, oldest first.
	PriorEvents []string `json:"prior_events,omitempty"`
}
