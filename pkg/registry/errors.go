package registry

import "fmt"

// ErrDuplicateAgent reports registration of a name whose slug already
// exists.
type ErrDuplicateAgent struct {
	ID string
}

func (e *ErrDuplicateAgent) Error() string {
	return fmt.Sprintf("agent %q already registered", e.ID)
}

// ErrAgentNotFound reports a lookup or mutation of an unknown agent.
type ErrAgentNotFound struct {
	ID string
}

func (e *ErrAgentNotFound) Error() string {
	return fmt.Sprintf("agent %q not found", e.ID)
}

// ErrInvalidRiskLevel reports a risk level outside the fixed vocabulary.
type ErrInvalidRiskLevel struct {
	RiskLevel RiskLevel
}

func (e *ErrInvalidRiskLevel) Error() string {
	return fmt.Sprintf("invalid risk level %q (want low, medium, high, or critical)", e.RiskLevel)
}

// ErrInvalidEnvironment reports an environment outside the fixed vocabulary.
type ErrInvalidEnvironment struct {
	Environment Environment
}

func (e *ErrInvalidEnvironment) Error() string {
	return fmt.Sprintf("invalid environment %q (want dev, staging, prod, or test)", e.Environment)
}

// ErrInvalidName reports a name that reduces to an empty slug.
type ErrInvalidName struct {
	Name string
}

func (e *ErrInvalidName) Error() string {
	return fmt.Sprintf("agent name %q yields an empty id", e.Name)
}

// ErrRateLimited reports a request rejected by an agent's rate cap.
type ErrRateLimited struct {
	ID string
}

func (e *ErrRateLimited) Error() string {
	return fmt.Sprintf("agent %q rate limit exceeded", e.ID)
}
