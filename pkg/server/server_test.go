package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"veritas-hq/warden/pkg/approval"
	"veritas-hq/warden/pkg/audit"
	"veritas-hq/warden/pkg/enforcer"
	"veritas-hq/warden/pkg/executor"
	"veritas-hq/warden/pkg/ident"
	"veritas-hq/warden/pkg/killswitch"
	"veritas-hq/warden/pkg/plugin"
	"veritas-hq/warden/pkg/policy"
	"veritas-hq/warden/pkg/registry"
	"veritas-hq/warden/pkg/security/auth"
	"veritas-hq/warden/pkg/telemetry/events"
	"veritas-hq/warden/pkg/telemetry/metrics"
)

type harness struct {
	server     *Server
	handler    http.Handler
	killSwitch *killswitch.Switch
	registry   *registry.Registry
	approvals  *approval.Manager
	trail      *audit.Trail
	policies   *staticPolicySet
}

type staticPolicySet struct {
	policies  []policy.Policy
	reloadErr error
}

func (s *staticPolicySet) Snapshot() []policy.Policy { return s.policies }
func (s *staticPolicySet) Count() int                { return len(s.policies) }
func (s *staticPolicySet) Reload() error             { return s.reloadErr }

func newHarness(t *testing.T, policies []policy.Policy, withAuth bool) *harness {
	t.Helper()

	clock := ident.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	trail, err := audit.New(audit.Config{Secret: "test-secret"}, ident.NewSequenceSource("evt"), clock)
	if err != nil {
		t.Fatalf("audit.New: %v", err)
	}
	t.Cleanup(func() { trail.Close() })

	approvals := approval.NewManager(trail, nil, ident.NewSequenceSource("apr"), clock)
	approvals.RegisterWorkflow(approval.Workflow{
		ID:               "wf-default",
		ApproverRoles:    []string{"team-lead"},
		TimeoutSeconds:   300,
		RequireRationale: true,
	})

	set := &staticPolicySet{policies: policies}
	reg := registry.New(clock)
	ks := killswitch.New(clock)
	enf := enforcer.New(enforcer.Config{EnforceMode: true}, clock)
	store := events.New(events.Config{}, ident.NewSequenceSource("ev"), clock)

	exec, err := executor.New(executor.Config{WorkflowID: "wf-default"}, executor.Deps{
		KillSwitch: ks,
		Registry:   reg,
		Policies:   set,
		Trail:      trail,
		Approvals:  approvals,
		Enforcer:   enf,
		Plugins:    plugin.NewRegistry(),
		Events:     store,
		Invoke: func(_ context.Context, _ *registry.Agent, prompt string, _ map[string]string) (string, error) {
			return "echo: " + prompt, nil
		},
	}, ident.NewSequenceSource("exec"), clock)
	if err != nil {
		t.Fatalf("executor.New: %v", err)
	}

	deps := Deps{
		Executor:   exec,
		KillSwitch: ks,
		Registry:   reg,
		Approvals:  approvals,
		Trail:      trail,
		Enforcer:   enf,
		Events:     store,
		Policies:   set,
		Metrics:    metrics.NewCollector(nil),
	}
	if withAuth {
		deps.Auth = auth.NewMiddleware(auth.NewValidator([]auth.TokenEntry{
			{Token: "tok-lead", Actor: auth.Actor{ID: "dana", Roles: []string{"team-lead"}}},
		}))
	}

	srv := NewServer(Config{ListenAddress: "127.0.0.1:0", MetricsPath: "/metrics"}, deps)
	return &harness{
		server:     srv,
		handler:    srv.Handler(),
		killSwitch: ks,
		registry:   reg,
		approvals:  approvals,
		trail:      trail,
		policies:   set,
	}
}

func (h *harness) registerAgent(t *testing.T, name string) *registry.Agent {
	t.Helper()
	agent, err := h.registry.Register(registry.RegisterParams{
		Name:        name,
		Model:       "gpt-4",
		Environment: registry.EnvProd,
		CreatedBy:   "admin",
	})
	if err != nil {
		t.Fatalf("Register %s: %v", name, err)
	}
	return agent
}

func (h *harness) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return body
}

func submitBodyFor(agentID, prompt string) map[string]interface{} {
	return map[string]interface{}{
		"agent_id":   agentID,
		"prompt":     prompt,
		"actor_id":   "user-7",
		"actor_role": "developer",
	}
}

func TestServer_SubmitSuccess(t *testing.T) {
	h := newHarness(t, nil, false)
	agent := h.registerAgent(t, "Support Bot")

	rec := h.do(t, http.MethodPost, "/v1/requests", submitBodyFor(agent.ID, "hello"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	body := decode(t, rec)
	if body["status"] != "success" {
		t.Errorf("status = %v, want success", body["status"])
	}
	if body["response"] != "echo: hello" {
		t.Errorf("response = %v, want echo", body["response"])
	}
	if body["execution_id"] == "" {
		t.Error("execution_id missing")
	}
}

func TestServer_SubmitKillSwitchBlocked(t *testing.T) {
	h := newHarness(t, nil, false)
	agent := h.registerAgent(t, "Support Bot")
	h.killSwitch.Activate(killswitch.ScopeGlobal, "maintenance", "", "ops")

	rec := h.do(t, http.MethodPost, "/v1/requests", submitBodyFor(agent.ID, "hello"))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}

	body := decode(t, rec)
	if body["status"] != "blocked" || body["reason"] != "maintenance" {
		t.Errorf("body = %v, want blocked/maintenance", body)
	}
	details, _ := body["details"].(map[string]interface{})
	if details["error_type"] != "kill_switch_active" {
		t.Errorf("error_type = %v, want kill_switch_active", details["error_type"])
	}
}

func TestServer_SubmitUnknownAgent(t *testing.T) {
	h := newHarness(t, nil, false)

	rec := h.do(t, http.MethodPost, "/v1/requests", submitBodyFor("ghost", "hello"))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	details, _ := decode(t, rec)["details"].(map[string]interface{})
	if details["error_type"] != "agent_not_found" {
		t.Errorf("error_type = %v, want agent_not_found", details["error_type"])
	}
}

func TestServer_SubmitPolicyDeny(t *testing.T) {
	h := newHarness(t, []policy.Policy{{
		ID:         "deny-pii",
		Priority:   100,
		Effect:     policy.EffectDeny,
		Conditions: policy.Conditions{Tags: []string{"pii"}},
		Enabled:    true,
	}}, false)
	agent := h.registerAgent(t, "Support Bot")

	body := submitBodyFor(agent.ID, "dump customer table")
	body["tags"] = []string{"pii"}

	rec := h.do(t, http.MethodPost, "/v1/requests", body)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	resp := decode(t, rec)
	if resp["policy_id"] != "deny-pii" {
		t.Errorf("policy_id = %v, want deny-pii", resp["policy_id"])
	}
}

func TestServer_SubmitValidation(t *testing.T) {
	h := newHarness(t, nil, false)

	rec := h.do(t, http.MethodPost, "/v1/requests", map[string]interface{}{"prompt": "hi"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing agent_id: status = %d, want 400", rec.Code)
	}

	rec = h.do(t, http.MethodPost, "/v1/requests", map[string]interface{}{"agent_id": "a", "prompt": "hi"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing actor: status = %d, want 400", rec.Code)
	}
}

func TestServer_ApprovalReviewFlow(t *testing.T) {
	h := newHarness(t, []policy.Policy{{
		ID:         "review-prod",
		Priority:   100,
		Effect:     policy.EffectReview,
		Conditions: policy.Conditions{Tags: []string{"sensitive"}},
		Enabled:    true,
	}}, false)
	agent := h.registerAgent(t, "Support Bot")

	body := submitBodyFor(agent.ID, "rotate credentials")
	body["tags"] = []string{"sensitive"}

	rec := h.do(t, http.MethodPost, "/v1/requests", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("submit status = %d, want 200", rec.Code)
	}
	resp := decode(t, rec)
	if resp["status"] != "pending_approval" {
		t.Fatalf("status = %v, want pending_approval", resp["status"])
	}
	approvalID, _ := resp["approval_id"].(string)
	if approvalID == "" {
		t.Fatal("approval_id missing")
	}

	// Pending list shows it.
	rec = h.do(t, http.MethodGet, "/v1/approvals", nil)
	pending, _ := decode(t, rec)["approvals"].([]interface{})
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}

	// Wrong role is refused.
	rec = h.do(t, http.MethodPost, "/v1/approvals/"+approvalID+"/approve", map[string]interface{}{
		"reviewer_id":   "mallory",
		"reviewer_role": "developer",
		"rationale":     "looks fine",
	})
	if rec.Code != http.StatusForbidden {
		t.Errorf("wrong role status = %d, want 403", rec.Code)
	}

	// Missing rationale is a 400.
	rec = h.do(t, http.MethodPost, "/v1/approvals/"+approvalID+"/approve", map[string]interface{}{
		"reviewer_id":   "dana",
		"reviewer_role": "team-lead",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing rationale status = %d, want 400", rec.Code)
	}

	// Proper approval succeeds and the decision record comes back.
	rec = h.do(t, http.MethodPost, "/v1/approvals/"+approvalID+"/approve", map[string]interface{}{
		"reviewer_id":   "dana",
		"reviewer_role": "team-lead",
		"rationale":     "reviewed",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("approve status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	record := decode(t, rec)
	if record["outcome"] != "APPROVED" {
		t.Errorf("outcome = %v, want APPROVED", record["outcome"])
	}

	// Unknown approval is a 404.
	rec = h.do(t, http.MethodGet, "/v1/approvals/apr-999", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown approval status = %d, want 404", rec.Code)
	}
}

func TestServer_KillSwitchEndpoints(t *testing.T) {
	h := newHarness(t, nil, false)

	rec := h.do(t, http.MethodPost, "/v1/killswitch/activate", map[string]interface{}{
		"scope":  "global",
		"reason": "incident",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("activate status = %d, want 200", rec.Code)
	}
	state := decode(t, rec)
	global, _ := state["global"].(map[string]interface{})
	if global["active"] != true {
		t.Errorf("global flag = %v, want active", global)
	}

	rec = h.do(t, http.MethodPost, "/v1/killswitch/activate", map[string]interface{}{
		"scope": "agent",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("agent scope without id status = %d, want 400", rec.Code)
	}

	rec = h.do(t, http.MethodPost, "/v1/killswitch/deactivate", map[string]interface{}{
		"scope": "global",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("deactivate status = %d, want 200", rec.Code)
	}
	if h.killSwitch.IsActive(killswitch.ScopeGlobal, "") {
		t.Error("global switch still active after deactivate")
	}
}

func TestServer_AdminPlaneAuditEvents(t *testing.T) {
	h := newHarness(t, nil, false)

	h.do(t, http.MethodPost, "/v1/killswitch/activate", map[string]interface{}{
		"scope":  "global",
		"reason": "incident",
	})
	h.do(t, http.MethodPost, "/v1/killswitch/deactivate", map[string]interface{}{
		"scope": "global",
	})

	rec := h.do(t, http.MethodPost, "/v1/agents", map[string]interface{}{
		"name":        "Ops Bot",
		"model":       "gpt-4",
		"environment": "prod",
		"risk_level":  "high",
	})
	created := decode(t, rec)
	id, _ := created["id"].(string)
	h.do(t, http.MethodPatch, "/v1/agents/"+id, map[string]interface{}{
		"risk_level": "critical",
	})
	h.do(t, http.MethodPost, "/v1/agents/"+id+"/deactivate", nil)
	h.do(t, http.MethodPost, "/v1/agents/"+id+"/activate", nil)

	activated := h.trail.Query(audit.QueryFilter{EventType: audit.EventKillSwitchActivated})
	if len(activated) != 1 || activated[0].Details["reason"] != "incident" {
		t.Errorf("killswitch.activated entries = %v, want one with reason", activated)
	}
	if got := h.trail.Query(audit.QueryFilter{EventType: audit.EventKillSwitchDeactivated}); len(got) != 1 {
		t.Errorf("killswitch.deactivated entries = %d, want 1", len(got))
	}

	registered := h.trail.Query(audit.QueryFilter{EventType: audit.EventAgentRegistered})
	if len(registered) != 1 || registered[0].AgentID != id {
		t.Errorf("agent.registered entries = %v, want one for %s", registered, id)
	}
	// Patch and re-activate both record an update.
	if got := h.trail.Query(audit.QueryFilter{EventType: audit.EventAgentUpdated}); len(got) != 2 {
		t.Errorf("agent.updated entries = %d, want 2", len(got))
	}
	if got := h.trail.Query(audit.QueryFilter{EventType: audit.EventAgentDeactivated}); len(got) != 1 {
		t.Errorf("agent.deactivated entries = %d, want 1", len(got))
	}
}

func TestServer_AgentCRUD(t *testing.T) {
	h := newHarness(t, nil, false)

	rec := h.do(t, http.MethodPost, "/v1/agents", map[string]interface{}{
		"name":        "Billing Bot",
		"model":       "gpt-4",
		"environment": "prod",
		"risk_level":  "high",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	created := decode(t, rec)
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatal("agent id missing")
	}

	// Duplicate names are a validation error.
	rec = h.do(t, http.MethodPost, "/v1/agents", map[string]interface{}{
		"name":        "Billing Bot",
		"model":       "gpt-4",
		"environment": "prod",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("duplicate status = %d, want 400", rec.Code)
	}

	rec = h.do(t, http.MethodGet, "/v1/agents/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("get status = %d, want 200", rec.Code)
	}

	rec = h.do(t, http.MethodPatch, "/v1/agents/"+id, map[string]interface{}{
		"risk_level": "critical",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if decode(t, rec)["risk_level"] != "critical" {
		t.Error("patch did not update risk level")
	}

	rec = h.do(t, http.MethodPost, "/v1/agents/"+id+"/deactivate", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("deactivate status = %d, want 200", rec.Code)
	}
	if decode(t, rec)["status"] != "inactive" {
		t.Error("deactivate did not set inactive status")
	}

	rec = h.do(t, http.MethodGet, "/v1/agents?active_only=true", nil)
	agents, _ := decode(t, rec)["agents"].([]interface{})
	if len(agents) != 0 {
		t.Errorf("active agents = %d, want 0", len(agents))
	}

	rec = h.do(t, http.MethodGet, "/v1/agents/ghost", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown agent status = %d, want 404", rec.Code)
	}
}

func TestServer_AuditEndpoints(t *testing.T) {
	h := newHarness(t, nil, false)
	agent := h.registerAgent(t, "Support Bot")

	rec := h.do(t, http.MethodPost, "/v1/requests", submitBodyFor(agent.ID, "hello"))
	executionID, _ := decode(t, rec)["execution_id"].(string)

	rec = h.do(t, http.MethodGet, "/v1/audit/verify", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("verify status = %d, want 200", rec.Code)
	}
	if decode(t, rec)["valid"] != true {
		t.Error("chain should verify valid")
	}

	rec = h.do(t, http.MethodGet, "/v1/audit/custody?execution_id="+executionID, nil)
	entries, _ := decode(t, rec)["entries"].([]interface{})
	if len(entries) < 2 {
		t.Errorf("custody entries = %d, want submitted and completed", len(entries))
	}

	rec = h.do(t, http.MethodGet, "/v1/audit/custody", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("custody without execution_id status = %d, want 400", rec.Code)
	}

	rec = h.do(t, http.MethodGet, "/v1/audit/export", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("export status = %d, want 200", rec.Code)
	}
	if decode(t, rec)["entries"] == nil {
		t.Error("export bundle missing entries")
	}
}

func TestServer_EventsAndStatus(t *testing.T) {
	h := newHarness(t, nil, false)
	agent := h.registerAgent(t, "Support Bot")

	rec := h.do(t, http.MethodPost, "/v1/requests", submitBodyFor(agent.ID, "hello"))
	executionID, _ := decode(t, rec)["execution_id"].(string)

	rec = h.do(t, http.MethodGet, "/v1/events?execution_id="+executionID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("events status = %d, want 200", rec.Code)
	}
	evts, _ := decode(t, rec)["events"].([]interface{})
	if len(evts) == 0 {
		t.Error("no events for execution")
	}

	rec = h.do(t, http.MethodGet, "/status", nil)
	status := decode(t, rec)
	if status["registered_agents"] != float64(1) {
		t.Errorf("registered_agents = %v, want 1", status["registered_agents"])
	}
	if status["breaker_state"] != "closed" {
		t.Errorf("breaker_state = %v, want closed", status["breaker_state"])
	}

	rec = h.do(t, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", rec.Code)
	}

	rec = h.do(t, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("metrics status = %d, want 200", rec.Code)
	}
}

func TestServer_PolicyReload(t *testing.T) {
	h := newHarness(t, []policy.Policy{{ID: "p1", Effect: policy.EffectAllow, Enabled: true}}, false)

	rec := h.do(t, http.MethodGet, "/v1/policies", nil)
	if decode(t, rec)["policy_count"] != float64(1) {
		t.Errorf("policy_count = %v, want 1", decode(t, rec)["policy_count"])
	}

	rec = h.do(t, http.MethodPost, "/v1/policies/reload", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("reload status = %d, want 200", rec.Code)
	}

	h.policies.reloadErr = errors.New("broken yaml")
	rec = h.do(t, http.MethodPost, "/v1/policies/reload", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("failed reload status = %d, want 422", rec.Code)
	}
}

func TestServer_AuthGatesAdminPlane(t *testing.T) {
	h := newHarness(t, nil, true)

	rec := h.do(t, http.MethodGet, "/v1/approvals", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/approvals", nil)
	req.Header.Set("Authorization", "Bearer tok-lead")
	rec2 := httptest.NewRecorder()
	h.handler.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusOK {
		t.Errorf("authenticated status = %d, want 200", rec2.Code)
	}

	// Health stays open for probes.
	rec = h.do(t, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d, want 200 without auth", rec.Code)
	}
}
