package policy

import (
	"errors"
	"fmt"
)

// Effect is the action a policy prescribes when it matches.
type Effect string

const (
	// EffectAllow lets evaluation continue; the request proceeds if no
	// later policy blocks it.
	EffectAllow Effect = "ALLOW"

	// EffectDeny blocks the request immediately.
	EffectDeny Effect = "DENY"

	// EffectReview routes the request to human approval.
	EffectReview Effect = "REVIEW"
)

// Valid reports whether e is one of the three recognized effects.
func (e Effect) Valid() bool {
	switch e {
	case EffectAllow, EffectDeny, EffectReview:
		return true
	}
	return false
}

// Scope restricts which requests a policy applies to. Each facet maps to a
// set of permitted values; an absent facet matches everything.
type Scope struct {
	// Environments restricts by deployment environment.
	Environments []string `yaml:"environment,omitempty" json:"environment,omitempty"`

	// ResourceTypes restricts by resource type (e.g., "model", "agent").
	ResourceTypes []string `yaml:"resource_type,omitempty" json:"resource_type,omitempty"`

	// ActorRoles restricts by the requesting principal's role.
	ActorRoles []string `yaml:"actor_role,omitempty" json:"actor_role,omitempty"`
}

// Empty reports whether no facet is set.
func (s Scope) Empty() bool {
	return len(s.Environments) == 0 && len(s.ResourceTypes) == 0 && len(s.ActorRoles) == 0
}

// Conditions are the predicates a request must satisfy for the policy to
// match, once it is in scope.
type Conditions struct {
	// Tags matches when at least one listed tag is present on the request.
	Tags []string `yaml:"tags,omitempty" json:"tags,omitempty"`

	// Metadata matches when every listed key maps to exactly the listed
	// value in the request metadata.
	Metadata map[string]string `yaml:"metadata,omitempty" json:"metadata,omitempty"`

	// Intents matches when the request intent is one of the listed values.
	Intents []string `yaml:"intent,omitempty" json:"intent,omitempty"`
}

// Empty reports whether no condition is set.
func (c Conditions) Empty() bool {
	return len(c.Tags) == 0 && len(c.Metadata) == 0 && len(c.Intents) == 0
}

// Policy is one declarative governance rule. Policies are immutable once
// loaded; a reload replaces the whole set.
type Policy struct {
	// ID uniquely identifies the policy.
	ID string `yaml:"id" json:"id"`

	// Version is the policy's semantic version string.
	Version string `yaml:"version" json:"version"`

	// Description explains the policy to humans. It is echoed in decision
	// reasons and audit entries.
	Description string `yaml:"description" json:"description"`

	// Priority orders evaluation; higher evaluates first. Policies with
	// equal priority evaluate in load order.
	Priority int `yaml:"priority" json:"priority"`

	// Scope restricts which requests the policy applies to.
	Scope Scope `yaml:"scope,omitempty" json:"scope,omitempty"`

	// Conditions are the predicates the request must satisfy.
	Conditions Conditions `yaml:"conditions,omitempty" json:"conditions,omitempty"`

	// Effect is the prescribed action on match.
	Effect Effect `yaml:"effect" json:"effect"`

	// Enabled gates the policy; disabled policies are skipped entirely.
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// Validate checks the structural invariants of a single policy.
func (p *Policy) Validate() error {
	if p.ID == "" {
		return errors.New("policy id is required")
	}
	if !p.Effect.Valid() {
		return fmt.Errorf("policy %s: invalid effect %q", p.ID, p.Effect)
	}
	return nil
}

// Outcome is the verdict of an evaluation.
type Outcome string

const (
	// OutcomeAllow permits the request.
	OutcomeAllow Outcome = "ALLOW"

	// OutcomeDeny blocks the request.
	OutcomeDeny Outcome = "DENY"

	// OutcomeReview suspends the request pending human approval.
	OutcomeReview Outcome = "REVIEW"
)

// Decision is the engine's verdict for one request.
type Decision struct {
	// Outcome is the final verdict.
	Outcome Outcome `json:"outcome"`

	// MatchedPolicies lists the ids of every policy that matched, in
	// evaluation order. The terminating policy (deny or review) is last.
	MatchedPolicies []string `json:"matched_policies"`

	// Reason is a human-readable explanation. Always non-empty.
	Reason string `json:"reason"`
}

// Blocking reports whether the decision stops the request.
func (d Decision) Blocking() bool {
	return d.Outcome == OutcomeDeny
}

// TerminatingPolicy returns the id of the policy that produced a deny or
// review outcome, or "" for an allow.
func (d Decision) TerminatingPolicy() string {
	if d.Outcome == OutcomeAllow || len(d.MatchedPolicies) == 0 {
		return ""
	}
	return d.MatchedPolicies[len(d.MatchedPolicies)-1]
}
