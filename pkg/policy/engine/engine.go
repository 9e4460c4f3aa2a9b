package engine

import (
	"fmt"
	"slices"
	"sort"

	"veritas-hq/warden/pkg/policy"
)

// Evaluate runs the deterministic evaluation algorithm over a snapshot of
// the policy set and a frozen request context.
//
// The policy slice is copied before sorting, so the caller's ordering is
// never disturbed. Disabled policies are skipped. The returned decision
// always has a non-empty reason.
func Evaluate(policies []policy.Policy, ctx *policy.RequestContext) policy.Decision {
	ordered := make([]policy.Policy, len(policies))
	copy(ordered, policies)

	// Stable: equal priorities keep their load order.
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})

	matched := []string{}

	for i := range ordered {
		p := &ordered[i]

		if !p.Enabled {
			continue
		}
		if !scopeMatches(p.Scope, ctx) {
			continue
		}
		if !conditionsMatch(p.Conditions, ctx) {
			continue
		}

		matched = append(matched, p.ID)

		switch p.Effect {
		case policy.EffectDeny:
			return policy.Decision{
				Outcome:         policy.OutcomeDeny,
				MatchedPolicies: matched,
				Reason:          fmt.Sprintf("Denied by policy %s: %s", p.ID, p.Description),
			}
		case policy.EffectReview:
			return policy.Decision{
				Outcome:         policy.OutcomeReview,
				MatchedPolicies: matched,
				Reason:          fmt.Sprintf("Review required by policy %s: %s", p.ID, p.Description),
			}
		}
	}

	return policy.Decision{
		Outcome:         policy.OutcomeAllow,
		MatchedPolicies: matched,
		Reason:          "No blocking policies matched",
	}
}

// scopeMatches reports whether the context satisfies every facet the scope
// sets. An empty scope matches everything.
func scopeMatches(s policy.Scope, ctx *policy.RequestContext) bool {
	if len(s.Environments) > 0 && !slices.Contains(s.Environments, ctx.Environment()) {
		return false
	}
	if len(s.ResourceTypes) > 0 && !slices.Contains(s.ResourceTypes, ctx.ResourceType()) {
		return false
	}
	if len(s.ActorRoles) > 0 && !slices.Contains(s.ActorRoles, ctx.ActorRole()) {
		return false
	}
	return true
}

// conditionsMatch reports whether the context satisfies every condition the
// policy sets. Empty conditions match everything.
func conditionsMatch(c policy.Conditions, ctx *policy.RequestContext) bool {
	if len(c.Tags) > 0 {
		any := false
		for _, tag := range c.Tags {
			if ctx.HasTag(tag) {
				any = true
				break
			}
		}
		if !any {
			return false
		}
	}

	for key, want := range c.Metadata {
		got, ok := ctx.MetadataValue(key)
		if !ok || got != want {
			return false
		}
	}

	if len(c.Intents) > 0 && !slices.Contains(c.Intents, ctx.Intent()) {
		return false
	}

	return true
}
