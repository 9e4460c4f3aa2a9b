package plugin

import (
	"context"
	"errors"
	"testing"
)

type testHook struct {
	id      string
	stage   Stage
	execute func(ctx context.Context, hctx HookContext) (HookResult, error)
}

func (h *testHook) ID() string       { return h.id }
func (h *testHook) PluginType() Type { return TypeLifecycleHook }
func (h *testHook) HookStage() Stage { return h.stage }
func (h *testHook) Execute(ctx context.Context, hctx HookContext) (HookResult, error) {
	if h.execute == nil {
		return HookResult{Status: HookContinue}, nil
	}
	return h.execute(ctx, hctx)
}

type plainPlugin struct {
	id  string
	typ Type
}

func (p *plainPlugin) ID() string       { return p.id }
func (p *plainPlugin) PluginType() Type { return p.typ }

func TestRegistry_RegisterAndIndex(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(&testHook{id: "notifier", stage: StagePostExecute}); err != nil {
		t.Fatalf("Register hook: %v", err)
	}
	if err := r.Register(&plainPlugin{id: "pii-scrubber", typ: TypeDataSanitizer}); err != nil {
		t.Fatalf("Register sanitizer: %v", err)
	}

	if r.Count() != 2 {
		t.Errorf("Count = %d, want 2", r.Count())
	}
	if r.Get("notifier") == nil {
		t.Error("Get(notifier) = nil")
	}
	if r.Get("absent") != nil {
		t.Error("Get(absent) != nil")
	}
	if hooks := r.ByType(TypeLifecycleHook); len(hooks) != 1 || hooks[0].ID() != "notifier" {
		t.Errorf("ByType(lifecycle_hook) = %v, want [notifier]", hooks)
	}
}

func TestRegistry_RegisterValidation(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		name   string
		plugin Plugin
	}{
		{"empty id", &plainPlugin{id: "", typ: TypeRiskScorer}},
		{"unknown type", &plainPlugin{id: "x", typ: Type("telemetry")}},
		{"hook with unknown stage", &testHook{id: "h", stage: Stage("mid_flight")}},
		{"hook type without hook interface", &plainPlugin{id: "h2", typ: TypeLifecycleHook}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Register(tt.plugin)
			var invalid *ErrInvalidPlugin
			if !errors.As(err, &invalid) {
				t.Errorf("Register error = %v, want ErrInvalidPlugin", err)
			}
		})
	}

	if err := r.Register(&testHook{id: "dup", stage: StagePreRequest}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	err := r.Register(&testHook{id: "dup", stage: StagePreRequest})
	var duplicate *ErrDuplicatePlugin
	if !errors.As(err, &duplicate) {
		t.Errorf("duplicate Register error = %v, want ErrDuplicatePlugin", err)
	}
}

func TestRegistry_Unregister(t *testing.T) {
	r := NewRegistry()
	r.Register(&testHook{id: "a", stage: StagePreRequest})
	r.Register(&testHook{id: "b", stage: StagePreRequest})

	r.Unregister("a")
	r.Unregister("never-existed")

	if r.Count() != 1 {
		t.Errorf("Count = %d, want 1", r.Count())
	}
	if hooks := r.ByType(TypeLifecycleHook); len(hooks) != 1 || hooks[0].ID() != "b" {
		t.Errorf("ByType after unregister = %v, want [b]", hooks)
	}
}

func TestExecuteHooks_IsolatesFailures(t *testing.T) {
	r := NewRegistry()
	r.Register(&testHook{id: "panics", stage: StagePreRequest, execute: func(_ context.Context, _ HookContext) (HookResult, error) {
		panic("boom")
	}})
	r.Register(&testHook{id: "errors", stage: StagePreRequest, execute: func(_ context.Context, _ HookContext) (HookResult, error) {
		return HookResult{}, errors.New("upstream unreachable")
	}})
	r.Register(&testHook{id: "succeeds", stage: StagePreRequest})

	executions, _ := r.ExecuteHooks(context.Background(), StagePreRequest, HookContext{"prompt": "hello"})
	if len(executions) != 3 {
		t.Fatalf("executions = %d, want 3 (failures must not stop the fan-out)", len(executions))
	}

	if executions[0].Status != ExecError || executions[0].Error == "" {
		t.Errorf("panicking hook execution = %+v, want captured error", executions[0])
	}
	if executions[1].Status != ExecError || executions[1].Error != "upstream unreachable" {
		t.Errorf("failing hook execution = %+v, want its error", executions[1])
	}
	if executions[2].Status != ExecOK || executions[2].Result.Status != HookContinue {
		t.Errorf("succeeding hook execution = %+v, want ok/continue", executions[2])
	}
}

func TestExecuteHooks_ContextReplacement(t *testing.T) {
	r := NewRegistry()
	r.Register(&testHook{id: "tagger", stage: StagePreRequest, execute: func(_ context.Context, hctx HookContext) (HookResult, error) {
		replaced := HookContext{"prompt": hctx["prompt"], "team": "payments"}
		return HookResult{Status: HookContinue, Context: replaced}, nil
	}})
	r.Register(&testHook{id: "observer", stage: StagePreRequest, execute: func(_ context.Context, hctx HookContext) (HookResult, error) {
		if hctx["team"] != "payments" {
			return HookResult{}, errors.New("replacement not visible downstream")
		}
		return HookResult{Status: HookContinue}, nil
	}})

	executions, final := r.ExecuteHooks(context.Background(), StagePreRequest, HookContext{"prompt": "hi"})
	for _, e := range executions {
		if e.Status != ExecOK {
			t.Fatalf("execution %s failed: %s", e.PluginID, e.Error)
		}
	}
	if final["team"] != "payments" {
		t.Errorf("final context = %v, want replacement applied", final)
	}
}

func TestExecuteHooks_AbortDetection(t *testing.T) {
	r := NewRegistry()
	r.Register(&testHook{id: "quota-guard", stage: StagePreRequest, execute: func(_ context.Context, _ HookContext) (HookResult, error) {
		return HookResult{Status: HookAbort, Message: "monthly token budget exhausted"}, nil
	}})
	r.Register(&testHook{id: "after", stage: StagePreRequest})

	executions, _ := r.ExecuteHooks(context.Background(), StagePreRequest, nil)
	if len(executions) != 2 {
		t.Fatalf("executions = %d, want 2 (abort does not stop the fan-out)", len(executions))
	}

	aborted := Aborted(executions)
	if aborted == nil {
		t.Fatal("Aborted = nil, want the quota-guard execution")
	}
	if aborted.PluginID != "quota-guard" || aborted.Result.Message != "monthly token budget exhausted" {
		t.Errorf("aborted = %+v, want quota-guard with its message", aborted)
	}

	if Aborted(nil) != nil {
		t.Error("Aborted(nil) != nil")
	}
}

func TestExecuteHooks_StageFiltering(t *testing.T) {
	r := NewRegistry()
	r.Register(&testHook{id: "pre", stage: StagePreRequest})
	r.Register(&testHook{id: "post", stage: StagePostExecute})

	executions, _ := r.ExecuteHooks(context.Background(), StagePostExecute, nil)
	if len(executions) != 1 || executions[0].PluginID != "post" {
		t.Errorf("executions = %+v, want only the post_execute hook", executions)
	}

	if executions, _ := r.ExecuteHooks(context.Background(), StageOnIncident, nil); len(executions) != 0 {
		t.Errorf("executions for an unbound stage = %d, want 0", len(executions))
	}
}
