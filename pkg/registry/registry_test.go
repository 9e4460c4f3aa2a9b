package registry

import (
	"errors"
	"testing"
	"time"

	"veritas-hq/warden/pkg/ident"
)

func newTestRegistry() (*Registry, *ident.FakeClock) {
	clock := ident.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	return New(clock), clock
}

// TestSlug tests the id derivation rule.
func TestSlug(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Customer Support Bot", "customer-support-bot"},
		{"data_pipeline_agent", "data-pipeline-agent"},
		{"GPT-4 (prod)", "gpt-4-prod"},
		{"  Spaced  Name  ", "--spaced--name--"},
		{"Émile's Bot!", "miles-bot"},
		{"!!!", ""},
	}

	for _, tt := range tests {
		if got := Slug(tt.name); got != tt.want {
			t.Errorf("Slug(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

// TestRegistry_Register tests registration and the duplicate rule.
func TestRegistry_Register(t *testing.T) {
	r, _ := newTestRegistry()

	agent, err := r.Register(RegisterParams{
		Name:        "Customer Support Bot",
		Model:       "gpt-4",
		Environment: EnvProd,
		RiskLevel:   RiskHigh,
		CreatedBy:   "alice",
	})
	if err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	if agent.ID != "customer-support-bot" {
		t.Errorf("ID = %q, want customer-support-bot", agent.ID)
	}
	if agent.Status != StatusActive {
		t.Errorf("Status = %q, want active", agent.Status)
	}

	_, err = r.Register(RegisterParams{Name: "Customer Support Bot"})
	var dup *ErrDuplicateAgent
	if !errors.As(err, &dup) {
		t.Fatalf("second Register() error = %v, want ErrDuplicateAgent", err)
	}
	if dup.ID != "customer-support-bot" {
		t.Errorf("duplicate ID = %q, want customer-support-bot", dup.ID)
	}
}

// TestRegistry_RegisterValidation tests vocabulary enforcement.
func TestRegistry_RegisterValidation(t *testing.T) {
	r, _ := newTestRegistry()

	_, err := r.Register(RegisterParams{Name: "Bot", RiskLevel: RiskLevel("extreme")})
	var invalidRisk *ErrInvalidRiskLevel
	if !errors.As(err, &invalidRisk) {
		t.Errorf("Register(risk=extreme) error = %v, want ErrInvalidRiskLevel", err)
	}

	_, err = r.Register(RegisterParams{Name: "Bot", Environment: Environment("qa")})
	var invalidEnv *ErrInvalidEnvironment
	if !errors.As(err, &invalidEnv) {
		t.Errorf("Register(env=qa) error = %v, want ErrInvalidEnvironment", err)
	}

	_, err = r.Register(RegisterParams{Name: "!!!"})
	var invalidName *ErrInvalidName
	if !errors.As(err, &invalidName) {
		t.Errorf("Register(name=!!!) error = %v, want ErrInvalidName", err)
	}
}

// TestRegistry_GetReturnsCopy tests that mutations of returned agents do
// not leak into the registry.
func TestRegistry_GetReturnsCopy(t *testing.T) {
	r, _ := newTestRegistry()

	if _, err := r.Register(RegisterParams{
		Name:     "Bot",
		Metadata: map[string]string{"team": "ml"},
	}); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	got := r.Get("bot")
	if got == nil {
		t.Fatal("Get(bot) = nil")
	}
	got.Metadata["team"] = "mutated"
	got.Status = StatusSuspended

	again := r.Get("bot")
	if again.Metadata["team"] != "ml" {
		t.Error("mutating a returned agent leaked into registry state")
	}
	if again.Status != StatusActive {
		t.Error("mutating a returned agent's status leaked into registry state")
	}
}

// TestRegistry_GetUnknown tests the nil contract for unknown ids.
func TestRegistry_GetUnknown(t *testing.T) {
	r, _ := newTestRegistry()
	if got := r.Get("ghost"); got != nil {
		t.Errorf("Get(ghost) = %+v, want nil", got)
	}
}

// TestRegistry_Update tests field-wise patching and immutable fields.
func TestRegistry_Update(t *testing.T) {
	r, clock := newTestRegistry()

	created, err := r.Register(RegisterParams{Name: "Bot", CreatedBy: "alice"})
	if err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	clock.Advance(time.Minute)

	model := "claude-3-opus"
	risk := RiskCritical
	updated, err := r.Update("bot", UpdateParams{
		Model:     &model,
		RiskLevel: &risk,
		PolicyIDs: []string{"p1", "p2"},
	})
	if err != nil {
		t.Fatalf("Update() failed: %v", err)
	}

	if updated.Model != "claude-3-opus" || updated.RiskLevel != RiskCritical {
		t.Errorf("Update() = %+v, patch not applied", updated)
	}
	if len(updated.PolicyIDs) != 2 {
		t.Errorf("PolicyIDs = %v, want [p1 p2]", updated.PolicyIDs)
	}
	if !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Error("Update() changed CreatedAt")
	}
	if updated.CreatedBy != "alice" {
		t.Error("Update() changed CreatedBy")
	}
	if !updated.UpdatedAt.After(created.UpdatedAt) {
		t.Error("Update() did not advance UpdatedAt")
	}

	badRisk := RiskLevel("extreme")
	if _, err := r.Update("bot", UpdateParams{RiskLevel: &badRisk}); err == nil {
		t.Error("Update(risk=extreme) succeeded, want error")
	}

	if _, err := r.Update("ghost", UpdateParams{Model: &model}); err == nil {
		t.Error("Update(ghost) succeeded, want ErrAgentNotFound")
	}
}

// TestRegistry_List tests filtering and ordering.
func TestRegistry_List(t *testing.T) {
	r, _ := newTestRegistry()

	seed := []RegisterParams{
		{Name: "Alpha", Environment: EnvProd, RiskLevel: RiskHigh},
		{Name: "Beta", Environment: EnvDev, RiskLevel: RiskLow},
		{Name: "Gamma", Environment: EnvProd, RiskLevel: RiskLow},
	}
	for _, params := range seed {
		if _, err := r.Register(params); err != nil {
			t.Fatalf("Register(%s) failed: %v", params.Name, err)
		}
	}
	if err := r.Deactivate("gamma"); err != nil {
		t.Fatalf("Deactivate() failed: %v", err)
	}

	tests := []struct {
		name   string
		filter ListFilter
		want   []string
	}{
		{"all active", ListFilter{ActiveOnly: true}, []string{"alpha", "beta"}},
		{"everything", ListFilter{}, []string{"alpha", "beta", "gamma"}},
		{"prod active", ListFilter{Environment: EnvProd, ActiveOnly: true}, []string{"alpha"}},
		{"low risk", ListFilter{RiskLevel: RiskLow}, []string{"beta", "gamma"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agents := r.List(tt.filter)
			ids := make([]string, len(agents))
			for i, a := range agents {
				ids[i] = a.ID
			}
			if len(ids) != len(tt.want) {
				t.Fatalf("List() = %v, want %v", ids, tt.want)
			}
			for i := range ids {
				if ids[i] != tt.want[i] {
					t.Errorf("List()[%d] = %q, want %q", i, ids[i], tt.want[i])
				}
			}
		})
	}
}

// TestRegistry_Lifecycle tests deactivate, activate, delete.
func TestRegistry_Lifecycle(t *testing.T) {
	r, _ := newTestRegistry()

	if _, err := r.Register(RegisterParams{Name: "Bot"}); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	if err := r.Deactivate("bot"); err != nil {
		t.Fatalf("Deactivate() failed: %v", err)
	}
	if r.Get("bot").Executable() {
		t.Error("agent executable after Deactivate()")
	}

	if err := r.Activate("bot"); err != nil {
		t.Fatalf("Activate() failed: %v", err)
	}
	if !r.Get("bot").Executable() {
		t.Error("agent not executable after Activate()")
	}

	if err := r.Delete("bot"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if r.Get("bot") != nil {
		t.Error("agent resolvable after Delete()")
	}

	var notFound *ErrAgentNotFound
	if err := r.Delete("bot"); !errors.As(err, &notFound) {
		t.Errorf("second Delete() error = %v, want ErrAgentNotFound", err)
	}
}

// TestRegistry_RateCap tests token-bucket enforcement and refill.
func TestRegistry_RateCap(t *testing.T) {
	r, clock := newTestRegistry()

	if _, err := r.Register(RegisterParams{Name: "Capped", RateLimitPerMinute: 2}); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	if err := r.Allow("capped"); err != nil {
		t.Fatalf("first Allow() failed: %v", err)
	}
	if err := r.Allow("capped"); err != nil {
		t.Fatalf("second Allow() failed: %v", err)
	}

	var limited *ErrRateLimited
	if err := r.Allow("capped"); !errors.As(err, &limited) {
		t.Fatalf("third Allow() error = %v, want ErrRateLimited", err)
	}

	// A full window refills the bucket.
	clock.Advance(time.Minute)
	if err := r.Allow("capped"); err != nil {
		t.Errorf("Allow() after refill failed: %v", err)
	}
}

// TestRegistry_AllowUncapped tests that agents without caps always pass.
func TestRegistry_AllowUncapped(t *testing.T) {
	r, _ := newTestRegistry()

	if _, err := r.Register(RegisterParams{Name: "Free"}); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	for i := 0; i < 1000; i++ {
		if err := r.Allow("free"); err != nil {
			t.Fatalf("Allow() failed on iteration %d: %v", i, err)
		}
	}
	if got := r.Remaining("free"); got != -1 {
		t.Errorf("Remaining(free) = %d, want -1 for uncapped", got)
	}

	var notFound *ErrAgentNotFound
	if err := r.Allow("ghost"); !errors.As(err, &notFound) {
		t.Errorf("Allow(ghost) error = %v, want ErrAgentNotFound", err)
	}
}

// TestRiskLevel_AtLeast tests risk ordering.
func TestRiskLevel_AtLeast(t *testing.T) {
	if !RiskCritical.AtLeast(RiskHigh) {
		t.Error("critical.AtLeast(high) = false")
	}
	if RiskLow.AtLeast(RiskMedium) {
		t.Error("low.AtLeast(medium) = true")
	}
	if !RiskMedium.AtLeast(RiskMedium) {
		t.Error("medium.AtLeast(medium) = false")
	}
}
