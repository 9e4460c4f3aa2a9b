package registry

import (
	"time"
)

// Environment tags where an agent runs.
type Environment string

const (
	EnvDev     Environment = "dev"
	EnvStaging Environment = "staging"
	EnvProd    Environment = "prod"
	EnvTest    Environment = "test"
)

// Valid reports whether e is a recognized environment.
func (e Environment) Valid() bool {
	switch e {
	case EnvDev, EnvStaging, EnvProd, EnvTest:
		return true
	}
	return false
}

// Status is an agent's lifecycle state. Only active agents are executable.
type Status string

const (
	StatusActive         Status = "active"
	StatusInactive       Status = "inactive"
	StatusSuspended      Status = "suspended"
	StatusDecommissioned Status = "decommissioned"
)

// RiskLevel tags how dangerous an agent's capability surface is.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Valid reports whether r is a recognized risk level.
func (r RiskLevel) Valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return true
	}
	return false
}

// AtLeast reports whether r is at or above the given threshold.
func (r RiskLevel) AtLeast(threshold RiskLevel) bool {
	return riskRank(r) >= riskRank(threshold)
}

func riskRank(r RiskLevel) int {
	switch r {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	case RiskCritical:
		return 3
	}
	return -1
}

// Agent is a registered AI endpoint. The registry hands out copies; callers
// never share the stored value.
type Agent struct {
	// ID is the slug derived from Name at registration. Immutable.
	ID string `json:"id"`

	// Name is the human-readable agent name.
	Name string `json:"name"`

	// Model describes the backing model (e.g., "gpt-4", "claude-3-opus").
	Model string `json:"model"`

	// Environment is the deployment environment tag.
	Environment Environment `json:"environment"`

	// Status is the lifecycle state. Only active agents execute.
	Status Status `json:"status"`

	// RiskLevel tags the agent's risk classification.
	RiskLevel RiskLevel `json:"risk_level"`

	// PolicyIDs lists policies attached to this agent, in order.
	PolicyIDs []string `json:"policy_ids,omitempty"`

	// RateLimitPerMinute caps requests per minute. Zero means uncapped.
	RateLimitPerMinute int `json:"rate_limit_per_minute,omitempty"`

	// CostCapUSD is the advisory spend cap accounted from the audit
	// stream. Zero means uncapped.
	CostCapUSD float64 `json:"cost_cap_usd,omitempty"`

	// Metadata is free-form agent metadata.
	Metadata map[string]string `json:"metadata,omitempty"`

	// CreatedAt is when the agent was registered. Immutable.
	CreatedAt time.Time `json:"created_at"`

	// CreatedBy identifies who registered the agent. Immutable.
	CreatedBy string `json:"created_by,omitempty"`

	// UpdatedAt is when the agent was last mutated.
	UpdatedAt time.Time `json:"updated_at"`
}

// Executable reports whether the agent may serve requests.
func (a *Agent) Executable() bool {
	return a.Status == StatusActive
}

// clone returns a deep copy of the agent.
func (a *Agent) clone() *Agent {
	copied := *a

	if a.PolicyIDs != nil {
		copied.PolicyIDs = make([]string, len(a.PolicyIDs))
		copy(copied.PolicyIDs, a.PolicyIDs)
	}
	if a.Metadata != nil {
		copied.Metadata = make(map[string]string, len(a.Metadata))
		for k, v := range a.Metadata {
			copied.Metadata[k] = v
		}
	}

	return &copied
}
