package plugin

import (
	"context"

	"veritas-hq/warden/pkg/policy"
)

// Type classifies a plugin. The taxonomy is closed.
type Type string

const (
	TypePolicyEvaluator  Type = "policy_evaluator"
	TypeRiskScorer       Type = "risk_scorer"
	TypeRiskEngine       Type = "risk_engine"
	TypeComplianceModule Type = "compliance_module"
	TypeLifecycleHook    Type = "lifecycle_hook"
	TypeDataSanitizer    Type = "data_sanitizer"
)

// Valid reports whether t is in the taxonomy.
func (t Type) Valid() bool {
	switch t {
	case TypePolicyEvaluator, TypeRiskScorer, TypeRiskEngine,
		TypeComplianceModule, TypeLifecycleHook, TypeDataSanitizer:
		return true
	}
	return false
}

// Stage is a pipeline point lifecycle hooks bind to.
type Stage string

const (
	StagePreRequest   Stage = "pre_request"
	StagePreExecute   Stage = "pre_execute"
	StagePostDecision Stage = "post_decision"
	StagePostExecute  Stage = "post_execute"
	StageOnError      Stage = "on_error"
	StageOnBlock      Stage = "on_block"
	StageOnEscalate   Stage = "on_escalate"
	StageOnIncident   Stage = "on_incident"
)

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	switch s {
	case StagePreRequest, StagePreExecute, StagePostDecision, StagePostExecute,
		StageOnError, StageOnBlock, StageOnEscalate, StageOnIncident:
		return true
	}
	return false
}

// Plugin is the base contract every extension satisfies.
type Plugin interface {
	// ID uniquely identifies the plugin within the registry.
	ID() string

	// PluginType places the plugin in the taxonomy.
	PluginType() Type
}

// HookContext is the mutable working context a hook observes. Keys are
// pipeline-defined; hooks must treat unknown keys as opaque.
type HookContext map[string]interface{}

// clone shallow-copies the context so one hook's replacement cannot be
// mutated behind another hook's back.
func (c HookContext) clone() HookContext {
	if c == nil {
		return nil
	}
	copied := make(HookContext, len(c))
	for k, v := range c {
		copied[k] = v
	}
	return copied
}

// HookStatus is a hook's verdict.
type HookStatus string

const (
	// HookContinue lets the pipeline proceed, optionally with a replaced
	// context.
	HookContinue HookStatus = "continue"

	// HookAbort vetoes the request. Only honored at the pre_request
	// stage; elsewhere it is recorded but does not stop the pipeline.
	HookAbort HookStatus = "abort"
)

// HookResult is what a lifecycle hook returns.
type HookResult struct {
	// Status is continue or abort.
	Status HookStatus `json:"status"`

	// Context, when non-nil on a continue, replaces the working context.
	Context HookContext `json:"context,omitempty"`

	// Message explains an abort, or annotates a continue.
	Message string `json:"message,omitempty"`
}

// LifecycleHook runs at one pipeline stage.
type LifecycleHook interface {
	Plugin

	// HookStage is the stage this hook binds to.
	HookStage() Stage

	// Execute runs the hook against the working context.
	Execute(ctx context.Context, hctx HookContext) (HookResult, error)
}

// RiskScorer scores a request context on a 0-1 scale.
type RiskScorer interface {
	Plugin
	Score(ctx context.Context, rc *policy.RequestContext) (float64, error)
}

// PolicyEvaluator is an external evaluator consulted alongside the
// built-in engine.
type PolicyEvaluator interface {
	Plugin
	Evaluate(ctx context.Context, rc *policy.RequestContext) (policy.Decision, error)
}

// ComplianceModule checks a request context against an external
// compliance regime.
type ComplianceModule interface {
	Plugin
	Check(ctx context.Context, rc *policy.RequestContext) error
}

// DataSanitizer rewrites prompt or response text before it leaves the
// control plane.
type DataSanitizer interface {
	Plugin
	Sanitize(ctx context.Context, text string) (string, error)
}
