package approval

import "fmt"

// ErrNotAuthorized reports a reviewer whose role is not in the request's
// acceptable role set.
type ErrNotAuthorized struct {
	ApprovalID string
	Role       string
}

func (e *ErrNotAuthorized) Error() string {
	return fmt.Sprintf("role %q is not authorized to review approval %s", e.Role, e.ApprovalID)
}

// ErrMissingRationale reports a decision without a rationale on a workflow
// that requires one.
type ErrMissingRationale struct {
	ApprovalID string
}

func (e *ErrMissingRationale) Error() string {
	return fmt.Sprintf("approval %s requires a rationale", e.ApprovalID)
}

// ErrApprovalNotFound reports an unknown approval id.
type ErrApprovalNotFound struct {
	ApprovalID string
}

func (e *ErrApprovalNotFound) Error() string {
	return fmt.Sprintf("approval %s not found", e.ApprovalID)
}

// ErrWorkflowNotFound reports an unknown workflow id.
type ErrWorkflowNotFound struct {
	WorkflowID string
}

func (e *ErrWorkflowNotFound) Error() string {
	return fmt.Sprintf("workflow %s not found", e.WorkflowID)
}
