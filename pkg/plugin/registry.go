package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// ErrDuplicatePlugin reports a plugin id already registered.
type ErrDuplicatePlugin struct {
	PluginID string
}

func (e *ErrDuplicatePlugin) Error() string {
	return fmt.Sprintf("plugin %q is already registered", e.PluginID)
}

// ErrInvalidPlugin reports a plugin outside the taxonomy or without an id.
type ErrInvalidPlugin struct {
	PluginID string
	Reason   string
}

func (e *ErrInvalidPlugin) Error() string {
	return fmt.Sprintf("invalid plugin %q: %s", e.PluginID, e.Reason)
}

// ExecStatus is the outcome of one hook invocation.
type ExecStatus string

const (
	ExecOK    ExecStatus = "ok"
	ExecError ExecStatus = "error"
)

// HookExecution records one hook's run during a fan-out.
type HookExecution struct {
	// PluginID is the hook that ran.
	PluginID string `json:"plugin_id"`

	// Status is ok when the hook returned, error when it failed or
	// panicked.
	Status ExecStatus `json:"status"`

	// Result is the hook's answer, valid when Status is ok.
	Result HookResult `json:"result,omitempty"`

	// Error carries the failure message when Status is error.
	Error string `json:"error,omitempty"`
}

// Registry indexes plugins by id and by type.
type Registry struct {
	mu     sync.RWMutex
	byID   map[string]Plugin
	byType map[Type][]string // registration order per type
	logger *slog.Logger
}

// NewRegistry creates an empty plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[string]Plugin),
		byType: make(map[Type][]string),
		logger: slog.Default().With("component", "plugin.registry"),
	}
}

// Register adds a plugin. Hook plugins must declare a valid stage.
func (r *Registry) Register(p Plugin) error {
	if p.ID() == "" {
		return &ErrInvalidPlugin{Reason: "empty id"}
	}
	if !p.PluginType().Valid() {
		return &ErrInvalidPlugin{PluginID: p.ID(), Reason: fmt.Sprintf("unknown type %q", p.PluginType())}
	}
	if hook, ok := p.(LifecycleHook); ok {
		if !hook.HookStage().Valid() {
			return &ErrInvalidPlugin{PluginID: p.ID(), Reason: fmt.Sprintf("unknown hook stage %q", hook.HookStage())}
		}
	} else if p.PluginType() == TypeLifecycleHook {
		return &ErrInvalidPlugin{PluginID: p.ID(), Reason: "lifecycle_hook type without a LifecycleHook implementation"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[p.ID()]; exists {
		return &ErrDuplicatePlugin{PluginID: p.ID()}
	}

	r.byID[p.ID()] = p
	r.byType[p.PluginType()] = append(r.byType[p.PluginType()], p.ID())

	r.logger.Info("plugin registered", "plugin_id", p.ID(), "type", p.PluginType())
	return nil
}

// Unregister removes a plugin by id. Unknown ids are a no-op.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byID[id]
	if !ok {
		return
	}
	delete(r.byID, id)

	ids := r.byType[p.PluginType()]
	for i, candidate := range ids {
		if candidate == id {
			r.byType[p.PluginType()] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
}

// Get returns a plugin by id, or nil.
func (r *Registry) Get(id string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id]
}

// ByType returns plugins of one type in registration order.
func (r *Registry) ByType(t Type) []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var plugins []Plugin
	for _, id := range r.byType[t] {
		plugins = append(plugins, r.byID[id])
	}
	return plugins
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// hooksForStage returns lifecycle hooks bound to a stage, in
// registration order.
func (r *Registry) hooksForStage(stage Stage) []LifecycleHook {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var hooks []LifecycleHook
	for _, id := range r.byType[TypeLifecycleHook] {
		hook, ok := r.byID[id].(LifecycleHook)
		if !ok {
			continue
		}
		if hook.HookStage() == stage {
			hooks = append(hooks, hook)
		}
	}
	return hooks
}

// ExecuteHooks fans the working context out to every hook bound to the
// stage. Each invocation is isolated: an error or panic in one hook is
// captured into its execution record and the remaining hooks still run.
// The returned context is the working context after any continue-with-
// context replacements, applied in registration order.
func (r *Registry) ExecuteHooks(ctx context.Context, stage Stage, hctx HookContext) ([]HookExecution, HookContext) {
	hooks := r.hooksForStage(stage)
	working := hctx

	var executions []HookExecution
	for _, hook := range hooks {
		execution := r.runHook(ctx, hook, working.clone())
		if execution.Status == ExecOK && execution.Result.Status == HookContinue && execution.Result.Context != nil {
			working = execution.Result.Context
		}
		executions = append(executions, execution)
	}

	return executions, working
}

func (r *Registry) runHook(ctx context.Context, hook LifecycleHook, hctx HookContext) (execution HookExecution) {
	execution.PluginID = hook.ID()

	defer func() {
		if recovered := recover(); recovered != nil {
			execution.Status = ExecError
			execution.Error = fmt.Sprintf("hook panicked: %v", recovered)
			r.logger.Error("hook panicked",
				"plugin_id", hook.ID(),
				"stage", hook.HookStage(),
				"panic", recovered,
			)
		}
	}()

	result, err := hook.Execute(ctx, hctx)
	if err != nil {
		execution.Status = ExecError
		execution.Error = err.Error()
		r.logger.Warn("hook failed",
			"plugin_id", hook.ID(),
			"stage", hook.HookStage(),
			"error", err,
		)
		return execution
	}

	if result.Status == "" {
		result.Status = HookContinue
	}
	execution.Status = ExecOK
	execution.Result = result
	return execution
}

// Aborted returns the first abort execution in a fan-out, or nil.
func Aborted(executions []HookExecution) *HookExecution {
	for i := range executions {
		e := &executions[i]
		if e.Status == ExecOK && e.Result.Status == HookAbort {
			return e
		}
	}
	return nil
}
