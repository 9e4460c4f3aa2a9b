package executor

import (
	"fmt"

	"veritas-hq/warden/pkg/killswitch"
)

// Error-kind discriminators surfaced in Result.ErrorType and in the
// HTTP layer's details.error_type field.
const (
	ErrorKindKillSwitch      = "kill_switch_active"
	ErrorKindAgentNotFound   = "agent_not_found"
	ErrorKindRateLimited     = "rate_limited"
	ErrorKindPolicyViolation = "policy_violation"
	ErrorKindHookAbort       = "hook_abort"
	ErrorKindFailClosed      = "fail_closed"
	ErrorKindCircuitOpen     = "circuit_open"
	ErrorKindExecutionFailed = "execution_failed"
)

// ErrKillSwitchActive reports a request refused by a tripped kill-switch.
type ErrKillSwitchActive struct {
	Scope  killswitch.Scope
	Reason string
}

func (e *ErrKillSwitchActive) Error() string {
	return fmt.Sprintf("kill switch active (%s): %s", e.Scope, e.Reason)
}

// ErrPolicyViolation reports a DENY decision.
type ErrPolicyViolation struct {
	PolicyID string
	Reason   string
}

func (e *ErrPolicyViolation) Error() string {
	return fmt.Sprintf("policy violation (%s): %s", e.PolicyID, e.Reason)
}

// ErrHookAbort reports a pre-request hook vetoing the request.
type ErrHookAbort struct {
	PluginID string
	Message  string
}

func (e *ErrHookAbort) Error() string {
	return fmt.Sprintf("request aborted by hook %s: %s", e.PluginID, e.Message)
}

// ErrExecutionFailed wraps a failed model invocation.
type ErrExecutionFailed struct {
	ExecutionID string
	Cause       error
}

func (e *ErrExecutionFailed) Error() string {
	return fmt.Sprintf("execution %s failed: %v", e.ExecutionID, e.Cause)
}

func (e *ErrExecutionFailed) Unwrap() error {
	return e.Cause
}
