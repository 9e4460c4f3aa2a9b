package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"veritas-hq/warden/pkg/approval"
	"veritas-hq/warden/pkg/audit"
	"veritas-hq/warden/pkg/enforcer"
	"veritas-hq/warden/pkg/telemetry/events"
	"veritas-hq/warden/pkg/ident"
	"veritas-hq/warden/pkg/killswitch"
	"veritas-hq/warden/pkg/plugin"
	"veritas-hq/warden/pkg/policy"
	"veritas-hq/warden/pkg/policy/engine"
	"veritas-hq/warden/pkg/registry"
)

// PolicySource supplies the current policy set. Snapshot must return a
// coherent set; the executor passes it by value into evaluation so a
// concurrent reload never affects an in-flight request.
type PolicySource interface {
	Snapshot() []policy.Policy
}

// StaticPolicies is a fixed PolicySource, for tests and embedding.
type StaticPolicies []policy.Policy

func (s StaticPolicies) Snapshot() []policy.Policy {
	return append([]policy.Policy(nil), s...)
}

// InvokeFunc is the injected model call. It must honor the context
// deadline.
type InvokeFunc func(ctx context.Context, agent *registry.Agent, prompt string, metadata map[string]string) (string, error)

// SubmitParams carries one request submission.
type SubmitParams struct {
	// AgentID targets a registered agent.
	AgentID string

	// Prompt is the model input under governance.
	Prompt string

	// Intent is the caller's declared intent, if any.
	Intent string

	// ResourceType is the policy resource type facet.
	// Default: "agent"
	ResourceType string

	// Tags classify the request for policy conditions.
	Tags []string

	// Metadata is the caller's context mapping.
	Metadata map[string]string

	// Identity is the authenticated requester.
	Identity ident.Identity
}

// Config contains configuration for the Executor.
type Config struct {
	// WorkflowID is the approval workflow REVIEW decisions enroll into.
	WorkflowID string

	// ModelTimeout bounds each model invocation.
	// Default: 60 seconds
	ModelTimeout time.Duration
}

// Deps bundles the components the pipeline composes.
type Deps struct {
	KillSwitch *killswitch.Switch
	Registry   *registry.Registry
	Policies   PolicySource
	Trail      *audit.Trail
	Approvals  *approval.Manager
	Enforcer   *enforcer.Enforcer
	Plugins    *plugin.Registry
	Events     *events.Store
	Invoke     InvokeFunc
}

// CompletionFunc observes the final result of an execution that resumed
// after approval.
type CompletionFunc func(result *Result, err error)

// suspended is the resume state of an execution awaiting approval.
type suspended struct {
	params     SubmitParams
	agentID    string
	approvalID string
	startedAt  time.Time
}

// Executor runs the per-request pipeline.
type Executor struct {
	config Config
	deps   Deps

	ids    ident.IDSource
	clock  ident.Clock
	logger *slog.Logger

	mu         sync.Mutex
	pending    map[string]*suspended // execution id -> resume state
	onComplete CompletionFunc
}

// New creates an Executor and wires it to the approval manager's
// decision stream.
func New(config Config, deps Deps, ids ident.IDSource, clock ident.Clock) (*Executor, error) {
	switch {
	case deps.KillSwitch == nil:
		return nil, fmt.Errorf("executor requires a kill switch")
	case deps.Registry == nil:
		return nil, fmt.Errorf("executor requires a registry")
	case deps.Policies == nil:
		return nil, fmt.Errorf("executor requires a policy source")
	case deps.Trail == nil:
		return nil, fmt.Errorf("executor requires an audit trail")
	case deps.Enforcer == nil:
		return nil, fmt.Errorf("executor requires an enforcer")
	case deps.Invoke == nil:
		return nil, fmt.Errorf("executor requires a model invoker")
	}
	if config.ModelTimeout <= 0 {
		config.ModelTimeout = 60 * time.Second
	}
	if ids == nil {
		ids = ident.NewUUIDSource()
	}
	if clock == nil {
		clock = ident.NewSystemClock()
	}

	e := &Executor{
		config:  config,
		deps:    deps,
		ids:     ids,
		clock:   clock,
		logger:  slog.Default().With("component", "executor"),
		pending: make(map[string]*suspended),
	}

	if deps.Approvals != nil {
		deps.Approvals.OnDecision(e.handleDecision)
	}

	return e, nil
}

// OnComplete registers the observer for executions that finish after an
// approval decision.
func (e *Executor) OnComplete(fn CompletionFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onComplete = fn
}

// PendingExecutions returns the number of executions suspended on
// approval.
func (e *Executor) PendingExecutions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// pipelineOutcome separates the caller-visible outcome from the breaker
// accounting: only model-call failures count against the breaker.
type pipelineOutcome struct {
	result *Result
	err    error
}

// Submit runs one request through the governed pipeline.
func (e *Executor) Submit(ctx context.Context, params SubmitParams) (*Result, error) {
	executionID := e.ids.NewID()
	start := e.clock.Now()

	ctx, span := otel.Tracer("veritas-hq/warden/pkg/executor").Start(ctx, "executor.submit",
		trace.WithAttributes(
			attribute.String("warden.execution_id", executionID),
			attribute.String("warden.agent_id", params.AgentID),
		))
	defer span.End()

	e.appendAudit(audit.EventRequestSubmitted, executionID, params.AgentID, params.Identity.ActorID, map[string]string{
		"prompt_length": fmt.Sprintf("%d", len(params.Prompt)),
		"intent":        params.Intent,
	})
	e.appendEvent(string(audit.EventRequestSubmitted), executionID, params.AgentID, params.Identity.ActorID, nil)

	raw, err := e.deps.Enforcer.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		return e.run(ctx, params, executionID, start)
	})

	var failClosed *enforcer.ErrFailClosed
	var circuitOpen *enforcer.ErrCircuitOpen
	switch {
	case errors.As(err, &failClosed):
		result := e.blockResult(executionID, ErrorKindFailClosed, err.Error(), "")
		e.auditBlocked(executionID, params, result)
		return result, err
	case errors.As(err, &circuitOpen):
		result := e.blockResult(executionID, ErrorKindCircuitOpen, err.Error(), "")
		e.auditBlocked(executionID, params, result)
		return result, err
	}

	out, ok := raw.(*pipelineOutcome)
	if !ok || out == nil {
		if err == nil {
			err = fmt.Errorf("pipeline returned no outcome for execution %s", executionID)
		}
		return nil, err
	}
	return out.result, out.err
}

// run is the protected pipeline body. The second return value is non-nil
// only for model-call failures, which the breaker counts.
func (e *Executor) run(ctx context.Context, params SubmitParams, executionID string, start time.Time) (*pipelineOutcome, error) {
	// Kill-switch, global then agent scope.
	if e.deps.KillSwitch.IsActive(killswitch.ScopeGlobal, "") {
		reason := e.deps.KillSwitch.Reason(killswitch.ScopeGlobal, "")
		return e.block(executionID, params, ErrorKindKillSwitch, reason, "",
			&ErrKillSwitchActive{Scope: killswitch.ScopeGlobal, Reason: reason}), nil
	}
	if e.deps.KillSwitch.IsActive(killswitch.ScopeAgent, params.AgentID) {
		reason := e.deps.KillSwitch.Reason(killswitch.ScopeAgent, params.AgentID)
		return e.block(executionID, params, ErrorKindKillSwitch, reason, "",
			&ErrKillSwitchActive{Scope: killswitch.ScopeAgent, Reason: reason}), nil
	}

	// Registry lookup and rate cap.
	agent := e.deps.Registry.Get(params.AgentID)
	if agent == nil || !agent.Executable() {
		err := &registry.ErrAgentNotFound{ID: params.AgentID}
		return e.block(executionID, params, ErrorKindAgentNotFound, err.Error(), "", err), nil
	}
	if err := e.deps.Registry.Allow(agent.ID); err != nil {
		var rateLimited *registry.ErrRateLimited
		if errors.As(err, &rateLimited) {
			return e.block(executionID, params, ErrorKindRateLimited, "rate limit", "", err), nil
		}
		return e.block(executionID, params, ErrorKindAgentNotFound, err.Error(), "", err), nil
	}

	// Pre-request hook fan-out; a hook may veto or replace the context.
	if e.deps.Plugins != nil {
		executions, working := e.deps.Plugins.ExecuteHooks(ctx, plugin.StagePreRequest, hookContext(params))
		if aborted := plugin.Aborted(executions); aborted != nil {
			err := &ErrHookAbort{PluginID: aborted.PluginID, Message: aborted.Result.Message}
			return e.block(executionID, params, ErrorKindHookAbort, err.Error(), "", err), nil
		}
		params = applyHookContext(params, working)
	}

	// Frozen request context.
	resourceType := params.ResourceType
	if resourceType == "" {
		resourceType = "agent"
	}
	rc, err := policy.NewRequestContext(policy.ContextParams{
		ActorID:      params.Identity.ActorID,
		ActorRole:    params.Identity.ActorRole,
		ResourceID:   agent.ID,
		ResourceType: resourceType,
		Environment:  string(agent.Environment),
		Intent:       params.Intent,
		Tags:         params.Tags,
		Metadata:     params.Metadata,
	})
	if err != nil {
		return e.block(executionID, params, ErrorKindPolicyViolation, err.Error(), "", err), nil
	}

	// Policy evaluation against a coherent snapshot.
	decision := engine.Evaluate(e.deps.Policies.Snapshot(), rc)
	for _, policyID := range decision.MatchedPolicies {
		e.appendAudit(audit.EventPolicyEvaluated, executionID, agent.ID, params.Identity.ActorID, map[string]string{
			"policy_id": policyID,
			"outcome":   string(decision.Outcome),
		})
	}

	switch decision.Outcome {
	case policy.OutcomeDeny:
		policyID := decision.TerminatingPolicy()
		err := &ErrPolicyViolation{PolicyID: policyID, Reason: decision.Reason}
		return e.block(executionID, params, ErrorKindPolicyViolation, decision.Reason, policyID, err), nil

	case policy.OutcomeReview:
		return e.suspend(executionID, params, agent, decision, start)
	}

	// ALLOW: invoke the model.
	return e.invoke(ctx, executionID, params, agent, start)
}

// suspend enrolls the request into the approval workflow and parks the
// resume state.
func (e *Executor) suspend(executionID string, params SubmitParams, agent *registry.Agent, decision policy.Decision, start time.Time) (*pipelineOutcome, error) {
	if e.deps.Approvals == nil {
		err := &ErrPolicyViolation{PolicyID: decision.TerminatingPolicy(), Reason: "review required but no approval workflow is configured"}
		return e.block(executionID, params, ErrorKindPolicyViolation, err.Reason, err.PolicyID, err), nil
	}

	request, err := e.deps.Approvals.Enqueue(approval.EnqueueParams{
		ExecutionID: executionID,
		AgentID:     agent.ID,
		RequestedBy: params.Identity,
		Prompt:      params.Prompt,
		Reason:      decision.Reason,
		PolicyID:    decision.TerminatingPolicy(),
		WorkflowID:  e.config.WorkflowID,
		RiskLevel:   agent.RiskLevel,
	})
	if err != nil {
		reason := fmt.Sprintf("review required but enrollment failed: %v", err)
		return e.block(executionID, params, ErrorKindPolicyViolation, reason, decision.TerminatingPolicy(), err), nil
	}

	e.mu.Lock()
	e.pending[executionID] = &suspended{
		params:     params,
		agentID:    agent.ID,
		approvalID: request.ID,
		startedAt:  start,
	}
	e.mu.Unlock()

	e.appendAudit(audit.EventRequestPendingApproval, executionID, agent.ID, params.Identity.ActorID, map[string]string{
		"approval_id": request.ID,
		"policy_id":   decision.TerminatingPolicy(),
		"reason":      decision.Reason,
	})
	e.appendEvent(string(audit.EventRequestPendingApproval), executionID, agent.ID, params.Identity.ActorID, map[string]interface{}{
		"approval_id": request.ID,
	})
	e.runHooks(plugin.StageOnEscalate, hookContext(params))

	return &pipelineOutcome{result: &Result{
		Status:      StatusPendingApproval,
		ExecutionID: executionID,
		ApprovalID:  request.ID,
		Reason:      decision.Reason,
	}}, nil
}

// invoke calls the injected model with a deadline and finalizes the
// execution.
func (e *Executor) invoke(ctx context.Context, executionID string, params SubmitParams, agent *registry.Agent, start time.Time) (*pipelineOutcome, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.config.ModelTimeout)
	defer cancel()

	response, err := e.deps.Invoke(callCtx, agent, params.Prompt, params.Metadata)
	if err != nil {
		reason := err.Error()
		if ctx.Err() != nil {
			reason = "cancelled"
		}
		e.appendAudit(audit.EventRequestFailed, executionID, agent.ID, params.Identity.ActorID, map[string]string{
			"reason": reason,
		})
		e.appendEvent(string(audit.EventRequestFailed), executionID, agent.ID, params.Identity.ActorID, map[string]interface{}{
			"reason": reason,
		})
		e.runHooks(plugin.StageOnError, hookContext(params))

		wrapped := &ErrExecutionFailed{ExecutionID: executionID, Cause: err}
		return &pipelineOutcome{err: wrapped}, wrapped
	}

	latency := e.clock.Now().Sub(start).Milliseconds()
	e.appendAudit(audit.EventRequestCompleted, executionID, agent.ID, params.Identity.ActorID, map[string]string{
		"latency_ms": fmt.Sprintf("%d", latency),
	})
	e.appendEvent(string(audit.EventRequestCompleted), executionID, agent.ID, params.Identity.ActorID, map[string]interface{}{
		"latency_ms": latency,
	})
	e.runHooks(plugin.StagePostExecute, hookContext(params))

	return &pipelineOutcome{result: &Result{
		Status:      StatusSuccess,
		ExecutionID: executionID,
		Response:    response,
		LatencyMS:   latency,
	}}, nil
}

// handleDecision resumes or finalizes a suspended execution when its
// approval reaches a terminal state.
func (e *Executor) handleDecision(request *approval.Request, record *approval.DecisionRecord) {
	e.mu.Lock()
	state, ok := e.pending[request.ExecutionID]
	if ok {
		delete(e.pending, request.ExecutionID)
	}
	onComplete := e.onComplete
	e.mu.Unlock()

	if !ok {
		return
	}

	switch record.Outcome {
	case approval.OutcomeApproved:
		ctx, cancel := context.WithTimeout(context.Background(), e.config.ModelTimeout)
		defer cancel()

		agent := e.deps.Registry.Get(state.agentID)
		if agent == nil || !agent.Executable() {
			err := &registry.ErrAgentNotFound{ID: state.agentID}
			out := e.block(request.ExecutionID, state.params, ErrorKindAgentNotFound, err.Error(), "", err)
			e.complete(onComplete, out)
			return
		}

		out, _ := e.invoke(ctx, request.ExecutionID, state.params, agent, state.startedAt)
		e.complete(onComplete, out)

	default:
		reason := fmt.Sprintf("approval %s: %s", record.ApprovalID, record.Outcome)
		if record.Rationale != "" {
			reason = fmt.Sprintf("%s (%s)", reason, record.Rationale)
		}
		err := &ErrPolicyViolation{PolicyID: "", Reason: reason}
		out := e.block(request.ExecutionID, state.params, ErrorKindPolicyViolation, reason, "", err)
		e.complete(onComplete, out)
	}
}

func (e *Executor) complete(onComplete CompletionFunc, out *pipelineOutcome) {
	if onComplete == nil {
		return
	}
	onComplete(out.result, out.err)
}

// block finalizes a refused execution: audit, events, on_block hooks,
// blocked result.
func (e *Executor) block(executionID string, params SubmitParams, errorType, reason, policyID string, cause error) *pipelineOutcome {
	result := e.blockResult(executionID, errorType, reason, policyID)
	e.auditBlocked(executionID, params, result)
	e.runHooks(plugin.StageOnBlock, hookContext(params))

	e.logger.Info("request blocked",
		"execution_id", executionID,
		"agent_id", params.AgentID,
		"error_type", errorType,
		"reason", reason,
	)

	return &pipelineOutcome{result: result, err: cause}
}

func (e *Executor) blockResult(executionID, errorType, reason, policyID string) *Result {
	return &Result{
		Status:      StatusBlocked,
		ExecutionID: executionID,
		Reason:      reason,
		PolicyID:    policyID,
		ErrorType:   errorType,
	}
}

func (e *Executor) auditBlocked(executionID string, params SubmitParams, result *Result) {
	details := map[string]string{
		"error_type": result.ErrorType,
		"reason":     result.Reason,
	}
	if result.PolicyID != "" {
		details["policy_id"] = result.PolicyID
	}
	e.appendAudit(audit.EventRequestBlocked, executionID, params.AgentID, params.Identity.ActorID, details)
	e.appendEvent(string(audit.EventRequestBlocked), executionID, params.AgentID, params.Identity.ActorID, map[string]interface{}{
		"error_type": result.ErrorType,
		"reason":     result.Reason,
	})
}

func (e *Executor) appendAudit(eventType audit.EventType, executionID, agentID, actorID string, details map[string]string) {
	if _, err := e.deps.Trail.Append(audit.AppendParams{
		EventType: eventType,
		RequestID: executionID,
		AgentID:   agentID,
		ActorID:   actorID,
		Details:   details,
	}); err != nil {
		e.logger.Error("failed to append audit entry",
			"execution_id", executionID,
			"event_type", eventType,
			"error", err,
		)
	}
}

func (e *Executor) appendEvent(eventType, executionID, agentID, actorID string, data map[string]interface{}) {
	if e.deps.Events == nil {
		return
	}
	e.deps.Events.Append(events.AppendParams{
		Type:        eventType,
		ExecutionID: executionID,
		AgentID:     agentID,
		ActorID:     actorID,
		Data:        data,
	})
}

func (e *Executor) runHooks(stage plugin.Stage, hctx plugin.HookContext) {
	if e.deps.Plugins == nil {
		return
	}
	e.deps.Plugins.ExecuteHooks(context.Background(), stage, hctx)
}

// hookContext projects the submission into the working context hooks
// observe.
func hookContext(params SubmitParams) plugin.HookContext {
	return plugin.HookContext{
		"agent_id":   params.AgentID,
		"prompt":     params.Prompt,
		"intent":     params.Intent,
		"tags":       params.Tags,
		"metadata":   params.Metadata,
		"actor_id":   params.Identity.ActorID,
		"actor_role": params.Identity.ActorRole,
	}
}

// applyHookContext folds a continue-with-context replacement back into
// the submission. Unknown or mistyped keys are ignored.
func applyHookContext(params SubmitParams, hctx plugin.HookContext) SubmitParams {
	if hctx == nil {
		return params
	}
	if prompt, ok := hctx["prompt"].(string); ok {
		params.Prompt = prompt
	}
	if intent, ok := hctx["intent"].(string); ok {
		params.Intent = intent
	}
	if tags, ok := hctx["tags"].([]string); ok {
		params.Tags = tags
	}
	if metadata, ok := hctx["metadata"].(map[string]string); ok {
		params.Metadata = metadata
	}
	return params
}
