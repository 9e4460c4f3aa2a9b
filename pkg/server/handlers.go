package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"veritas-hq/warden/pkg/approval"
	"veritas-hq/warden/pkg/audit"
	"veritas-hq/warden/pkg/enforcer"
	"veritas-hq/warden/pkg/executor"
	"veritas-hq/warden/pkg/ident"
	"veritas-hq/warden/pkg/killswitch"
	"veritas-hq/warden/pkg/registry"
	"veritas-hq/warden/pkg/security/auth"
	"veritas-hq/warden/pkg/telemetry/events"
)

// --- ingress ---

type submitBody struct {
	AgentID      string            `json:"agent_id"`
	Prompt       string            `json:"prompt"`
	Intent       string            `json:"intent,omitempty"`
	ResourceType string            `json:"resource_type,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`

	ActorID       string `json:"actor_id,omitempty"`
	ActorRole     string `json:"actor_role,omitempty"`
	ActorEmail    string `json:"actor_email,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var body submitBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.AgentID == "" {
		writeError(w, http.StatusBadRequest, "agent_id is required")
		return
	}

	identity, err := s.requestIdentity(r, body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, _ := s.deps.Executor.Submit(r.Context(), executor.SubmitParams{
		AgentID:      body.AgentID,
		Prompt:       body.Prompt,
		Intent:       body.Intent,
		ResourceType: body.ResourceType,
		Tags:         body.Tags,
		Metadata:     body.Metadata,
		Identity:     identity,
	})
	if result == nil {
		writeError(w, http.StatusInternalServerError, "pipeline returned no result")
		return
	}

	s.recordRequestMetrics(result)
	writeJSON(w, statusCodeFor(result), resultEnvelope(result))
}

// requestIdentity prefers the authenticated actor and falls back to the
// body's identity metadata for deployments fronted by an upstream
// authenticator.
func (s *Server) requestIdentity(r *http.Request, body submitBody) (ident.Identity, error) {
	actorID, actorRole := body.ActorID, body.ActorRole
	if actor := auth.ActorFrom(r.Context()); actor != nil {
		actorID = actor.ID
		if len(actor.Roles) > 0 {
			actorRole = actor.Roles[0]
		}
	}

	identity, err := ident.NewIdentity(actorID, actorRole)
	if err != nil {
		return ident.Identity{}, err
	}
	identity.Email = body.ActorEmail
	identity.SourceIP = r.RemoteAddr
	identity.UserAgent = r.UserAgent()
	identity.CorrelationID = body.CorrelationID
	return identity, nil
}

func (s *Server) recordRequestMetrics(result *executor.Result) {
	if s.deps.Metrics == nil {
		return
	}
	s.deps.Metrics.RecordRequest(string(result.Status), result.ErrorType,
		time.Duration(result.LatencyMS)*time.Millisecond)
	if s.deps.Enforcer != nil {
		s.deps.Metrics.SetBreakerState(s.deps.Enforcer.BreakerState())
	}
	if s.deps.Approvals != nil {
		s.deps.Metrics.SetPendingApprovals(s.deps.Approvals.PendingCount())
	}
}

func statusCodeFor(result *executor.Result) int {
	switch result.Status {
	case executor.StatusSuccess, executor.StatusPendingApproval:
		return http.StatusOK
	}
	switch result.ErrorType {
	case executor.ErrorKindAgentNotFound:
		return http.StatusNotFound
	case executor.ErrorKindRateLimited:
		return http.StatusTooManyRequests
	case executor.ErrorKindFailClosed, executor.ErrorKindCircuitOpen:
		return http.StatusServiceUnavailable
	case executor.ErrorKindExecutionFailed:
		return http.StatusInternalServerError
	default:
		// Kill-switch, policy, and hook blocks share 403.
		return http.StatusForbidden
	}
}

func resultEnvelope(result *executor.Result) submitResponse {
	resp := submitResponse{
		Status:      string(result.Status),
		ExecutionID: result.ExecutionID,
		Response:    result.Response,
		LatencyMS:   result.LatencyMS,
		Reason:      result.Reason,
		PolicyID:    result.PolicyID,
		ApprovalID:  result.ApprovalID,
	}
	if result.ErrorType != "" {
		resp.Details = map[string]string{"error_type": result.ErrorType}
	}
	return resp
}

// --- kill switch ---

type killSwitchBody struct {
	Scope   string `json:"scope"`
	AgentID string `json:"agent_id,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func (s *Server) handleKillSwitchState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.KillSwitch.State())
}

// appendAudit records an admin-plane governance event on the trail.
func (s *Server) appendAudit(eventType audit.EventType, agentID, actorID string, details map[string]string) {
	if _, err := s.deps.Trail.Append(audit.AppendParams{
		EventType: eventType,
		AgentID:   agentID,
		ActorID:   actorID,
		Details:   details,
	}); err != nil {
		s.logger.Error("failed to append audit entry",
			"event_type", eventType,
			"error", err,
		)
	}
}

// adminActor resolves the acting identity for admin-plane mutations.
func adminActor(r *http.Request) string {
	if actor := auth.ActorFrom(r.Context()); actor != nil {
		return actor.ID
	}
	return "admin"
}

func (s *Server) handleKillSwitchActivate(w http.ResponseWriter, r *http.Request) {
	var body killSwitchBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	actorID := adminActor(r)
	err := s.deps.KillSwitch.Activate(killswitch.Scope(body.Scope), body.Reason, body.AgentID, actorID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.appendAudit(audit.EventKillSwitchActivated, body.AgentID, actorID, map[string]string{
		"scope":  body.Scope,
		"reason": body.Reason,
	})
	if s.deps.Metrics != nil {
		s.deps.Metrics.SetKillSwitch(body.Scope, true)
	}
	writeJSON(w, http.StatusOK, s.deps.KillSwitch.State())
}

func (s *Server) handleKillSwitchDeactivate(w http.ResponseWriter, r *http.Request) {
	var body killSwitchBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.deps.KillSwitch.Deactivate(killswitch.Scope(body.Scope), body.AgentID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.appendAudit(audit.EventKillSwitchDeactivated, body.AgentID, adminActor(r), map[string]string{
		"scope": body.Scope,
	})
	if s.deps.Metrics != nil {
		s.deps.Metrics.SetKillSwitch(body.Scope, false)
	}
	writeJSON(w, http.StatusOK, s.deps.KillSwitch.State())
}

// --- agent registry ---

type agentBody struct {
	Name               string            `json:"name"`
	Model              string            `json:"model"`
	Environment        string            `json:"environment"`
	RiskLevel          string            `json:"risk_level"`
	PolicyIDs          []string          `json:"policy_ids,omitempty"`
	RateLimitPerMinute int               `json:"rate_limit_per_minute,omitempty"`
	CostCapUSD         float64           `json:"cost_cap_usd,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
}

func (s *Server) handleAgentRegister(w http.ResponseWriter, r *http.Request) {
	var body agentBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	createdBy := ""
	if actor := auth.ActorFrom(r.Context()); actor != nil {
		createdBy = actor.ID
	}

	agent, err := s.deps.Registry.Register(registry.RegisterParams{
		Name:               body.Name,
		Model:              body.Model,
		Environment:        registry.Environment(body.Environment),
		RiskLevel:          registry.RiskLevel(body.RiskLevel),
		PolicyIDs:          body.PolicyIDs,
		RateLimitPerMinute: body.RateLimitPerMinute,
		CostCapUSD:         body.CostCapUSD,
		Metadata:           body.Metadata,
		CreatedBy:          createdBy,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.appendAudit(audit.EventAgentRegistered, agent.ID, adminActor(r), map[string]string{
		"name":        agent.Name,
		"environment": string(agent.Environment),
		"risk_level":  string(agent.RiskLevel),
	})
	writeJSON(w, http.StatusCreated, agent)
}

func (s *Server) handleAgentList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	agents := s.deps.Registry.List(registry.ListFilter{
		Environment: registry.Environment(q.Get("environment")),
		RiskLevel:   registry.RiskLevel(q.Get("risk_level")),
		ActiveOnly:  q.Get("active_only") == "true",
	})
	writeJSON(w, http.StatusOK, map[string]interface{}{"agents": agents})
}

func (s *Server) handleAgentGet(w http.ResponseWriter, r *http.Request) {
	agent := s.deps.Registry.Get(r.PathValue("id"))
	if agent == nil {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

type agentPatchBody struct {
	Name               *string           `json:"name,omitempty"`
	Model              *string           `json:"model,omitempty"`
	Environment        *string           `json:"environment,omitempty"`
	RiskLevel          *string           `json:"risk_level,omitempty"`
	Status             *string           `json:"status,omitempty"`
	PolicyIDs          []string          `json:"policy_ids,omitempty"`
	RateLimitPerMinute *int              `json:"rate_limit_per_minute,omitempty"`
	CostCapUSD         *float64          `json:"cost_cap_usd,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
}

func (s *Server) handleAgentUpdate(w http.ResponseWriter, r *http.Request) {
	var body agentPatchBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	patch := registry.UpdateParams{
		Name:               body.Name,
		Model:              body.Model,
		PolicyIDs:          body.PolicyIDs,
		RateLimitPerMinute: body.RateLimitPerMinute,
		CostCapUSD:         body.CostCapUSD,
		Metadata:           body.Metadata,
	}
	if body.Environment != nil {
		env := registry.Environment(*body.Environment)
		patch.Environment = &env
	}
	if body.RiskLevel != nil {
		risk := registry.RiskLevel(*body.RiskLevel)
		patch.RiskLevel = &risk
	}
	if body.Status != nil {
		status := registry.Status(*body.Status)
		patch.Status = &status
	}

	agent, err := s.deps.Registry.Update(r.PathValue("id"), patch)
	if err != nil {
		writeRegistryError(w, err)
		return
	}

	s.appendAudit(audit.EventAgentUpdated, agent.ID, adminActor(r), nil)
	writeJSON(w, http.StatusOK, agent)
}

func (s *Server) handleAgentDeactivate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.deps.Registry.Deactivate(id); err != nil {
		writeRegistryError(w, err)
		return
	}

	s.appendAudit(audit.EventAgentDeactivated, id, adminActor(r), nil)
	writeJSON(w, http.StatusOK, s.deps.Registry.Get(id))
}

func (s *Server) handleAgentActivate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.deps.Registry.Activate(id); err != nil {
		writeRegistryError(w, err)
		return
	}

	s.appendAudit(audit.EventAgentUpdated, id, adminActor(r), map[string]string{
		"status": string(registry.StatusActive),
	})
	writeJSON(w, http.StatusOK, s.deps.Registry.Get(id))
}

func (s *Server) handleAgentDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Registry.Delete(r.PathValue("id")); err != nil {
		writeRegistryError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeRegistryError(w http.ResponseWriter, err error) {
	var notFound *registry.ErrAgentNotFound
	if errors.As(err, &notFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}

// --- approvals ---

type reviewBody struct {
	ReviewerID   string `json:"reviewer_id,omitempty"`
	ReviewerRole string `json:"reviewer_role,omitempty"`
	Rationale    string `json:"rationale,omitempty"`
}

func (s *Server) handleApprovalsPending(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"approvals": s.deps.Approvals.GetPending(limit),
	})
}

func (s *Server) handleApprovalGet(w http.ResponseWriter, r *http.Request) {
	request := s.deps.Approvals.Get(r.PathValue("id"))
	if request == nil {
		writeError(w, http.StatusNotFound, "approval not found")
		return
	}
	body := map[string]interface{}{"approval": request}
	if record := s.deps.Approvals.Record(r.PathValue("id")); record != nil {
		body["decision"] = record
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleApprovalApprove(w http.ResponseWriter, r *http.Request) {
	s.decideApproval(w, r, true)
}

func (s *Server) handleApprovalReject(w http.ResponseWriter, r *http.Request) {
	s.decideApproval(w, r, false)
}

func (s *Server) decideApproval(w http.ResponseWriter, r *http.Request, approve bool) {
	var body reviewBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reviewerID, reviewerRole := body.ReviewerID, body.ReviewerRole
	if actor := auth.ActorFrom(r.Context()); actor != nil {
		reviewerID = actor.ID
		if reviewerRole == "" && len(actor.Roles) > 0 {
			reviewerRole = actor.Roles[0]
		}
	}

	reviewer, err := ident.NewIdentity(reviewerID, reviewerRole)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reviewer identity is required")
		return
	}

	var record *approval.DecisionRecord
	if approve {
		record, err = s.deps.Approvals.Approve(r.PathValue("id"), reviewer, body.Rationale)
	} else {
		record, err = s.deps.Approvals.Reject(r.PathValue("id"), reviewer, body.Rationale)
	}
	if err != nil {
		writeApprovalError(w, err)
		return
	}

	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordApprovalDecision(string(record.Outcome))
		s.deps.Metrics.SetPendingApprovals(s.deps.Approvals.PendingCount())
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleApprovalCancel(w http.ResponseWriter, r *http.Request) {
	record, err := s.deps.Approvals.Cancel(r.PathValue("id"))
	if err != nil {
		writeApprovalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func writeApprovalError(w http.ResponseWriter, err error) {
	var notAuthorized *approval.ErrNotAuthorized
	var missingRationale *approval.ErrMissingRationale
	var notFound *approval.ErrApprovalNotFound
	switch {
	case errors.As(err, &notAuthorized):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.As(err, &missingRationale):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

// --- policies ---

func (s *Server) handlePolicyStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"policy_count": s.deps.Policies.Count(),
	})
}

func (s *Server) handlePolicyReload(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Policies.Reload(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"policy_count": s.deps.Policies.Count(),
	})
}

// --- audit ---

func (s *Server) handleAuditVerify(w http.ResponseWriter, r *http.Request) {
	report := s.deps.Trail.VerifyIntegrity()
	status := http.StatusOK
	if !report.Valid {
		// A broken chain is a server-side integrity failure, not a bad
		// request.
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, report)
}

func (s *Server) handleAuditExport(w http.ResponseWriter, r *http.Request) {
	bundle := s.deps.Trail.Export(auditFilterFrom(r))
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="audit-export.json"`)
	if err := bundle.WriteJSON(w, true); err != nil {
		s.logger.Error("audit export write failed", "error", err)
	}
}

func (s *Server) handleAuditCustody(w http.ResponseWriter, r *http.Request) {
	executionID := r.URL.Query().Get("execution_id")
	if executionID == "" {
		writeError(w, http.StatusBadRequest, "execution_id is required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"execution_id": executionID,
		"entries":      s.deps.Trail.ChainOfCustody(executionID),
	})
}

func auditFilterFrom(r *http.Request) audit.QueryFilter {
	q := r.URL.Query()
	filter := audit.QueryFilter{
		EventType: audit.EventType(q.Get("event_type")),
		RequestID: q.Get("execution_id"),
		AgentID:   q.Get("agent_id"),
		ActorID:   q.Get("actor_id"),
	}
	if raw := q.Get("since"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.Since = ts
		}
	}
	if raw := q.Get("until"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.Until = ts
		}
	}
	if raw := q.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			filter.Limit = n
		}
	}
	return filter
}

// --- observability ---

func (s *Server) handleEventsQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := events.Filter{
		Type:        q.Get("type"),
		ExecutionID: q.Get("execution_id"),
		AgentID:     q.Get("agent_id"),
		ActorID:     q.Get("actor_id"),
	}
	if raw := q.Get("since"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.Since = ts
		}
	}
	if raw := q.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			filter.Limit = n
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": s.deps.Events.Query(filter),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.deps.Enforcer.Health(r.Context())
	status := http.StatusOK
	if report.Status == enforcer.StatusDown {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"kill_switch":        s.deps.KillSwitch.State(),
		"breaker_state":      s.deps.Enforcer.BreakerState(),
		"pending_approvals":  s.deps.Approvals.PendingCount(),
		"policy_count":       s.deps.Policies.Count(),
		"registered_agents":  s.deps.Registry.Count(),
		"audit_entries":      s.deps.Trail.Len(),
		"pending_executions": s.deps.Executor.PendingExecutions(),
	})
}
