package killswitch

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"veritas-hq/warden/pkg/ident"
)

// Scope selects which flag an operation targets.
type Scope string

const (
	// ScopeGlobal targets the single global flag.
	ScopeGlobal Scope = "global"

	// ScopeAgent targets the flag for one agent.
	ScopeAgent Scope = "agent"
)

// Flag is the state of one kill-switch flag.
type Flag struct {
	// Active reports whether the flag is tripped.
	Active bool `json:"active"`

	// Reason is the operator-supplied reason for the trip.
	Reason string `json:"reason,omitempty"`

	// ActivatedBy identifies who tripped the flag.
	ActivatedBy string `json:"activated_by,omitempty"`

	// ActivatedAt is when the flag was tripped.
	ActivatedAt time.Time `json:"activated_at,omitzero"`
}

// Snapshot is a point-in-time copy of the full switch state.
type Snapshot struct {
	Global Flag            `json:"global"`
	Agents map[string]Flag `json:"agents"`
}

// ErrInvalidScope reports a scope outside {global, agent}.
type ErrInvalidScope struct {
	Scope Scope
}

func (e *ErrInvalidScope) Error() string {
	return fmt.Sprintf("invalid kill-switch scope %q", e.Scope)
}

// ErrMissingAgentID reports an agent-scoped operation without an agent id.
type ErrMissingAgentID struct{}

func (e *ErrMissingAgentID) Error() string {
	return "agent-scoped kill-switch operation requires an agent id"
}

// Switch holds the global and per-agent emergency-stop flags.
//
// All mutations go through a single writer lock; readers take the shared
// lock for the duration of one map lookup. IsActive performs no I/O.
type Switch struct {
	mu     sync.RWMutex
	global Flag
	agents map[string]Flag

	clock  ident.Clock
	logger *slog.Logger
}

// New creates a Switch with all flags clear.
func New(clock ident.Clock) *Switch {
	if clock == nil {
		clock = ident.NewSystemClock()
	}
	return &Switch{
		agents: make(map[string]Flag),
		clock:  clock,
		logger: slog.Default().With("component", "killswitch"),
	}
}

// Activate trips a flag. For ScopeAgent, agentID must be non-empty.
func (s *Switch) Activate(scope Scope, reason, agentID, activatedBy string) error {
	flag := Flag{
		Active:      true,
		Reason:      reason,
		ActivatedBy: activatedBy,
		ActivatedAt: s.clock.Now(),
	}

	switch scope {
	case ScopeGlobal:
		s.mu.Lock()
		s.global = flag
		s.mu.Unlock()

	case ScopeAgent:
		if agentID == "" {
			return &ErrMissingAgentID{}
		}
		s.mu.Lock()
		s.agents[agentID] = flag
		s.mu.Unlock()

	default:
		return &ErrInvalidScope{Scope: scope}
	}

	s.logger.Warn("kill switch activated",
		"scope", scope,
		"agent_id", agentID,
		"reason", reason,
		"activated_by", activatedBy,
	)

	return nil
}

// Deactivate clears a flag. Clearing an already-clear flag is a no-op.
func (s *Switch) Deactivate(scope Scope, agentID string) error {
	switch scope {
	case ScopeGlobal:
		s.mu.Lock()
		s.global = Flag{}
		s.mu.Unlock()

	case ScopeAgent:
		if agentID == "" {
			return &ErrMissingAgentID{}
		}
		s.mu.Lock()
		delete(s.agents, agentID)
		s.mu.Unlock()

	default:
		return &ErrInvalidScope{Scope: scope}
	}

	s.logger.Info("kill switch deactivated",
		"scope", scope,
		"agent_id", agentID,
	)

	return nil
}

// IsActive reports whether the given scope is tripped. A global trip makes
// every query return true regardless of scope or agent id.
func (s *Switch) IsActive(scope Scope, agentID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.global.Active {
		return true
	}
	if scope == ScopeAgent && agentID != "" {
		return s.agents[agentID].Active
	}
	return false
}

// Reason returns the trip reason for the given scope, or "" when the flag
// is clear. When both the global and the agent flag are tripped, the global
// reason wins, mirroring IsActive precedence.
func (s *Switch) Reason(scope Scope, agentID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.global.Active {
		return s.global.Reason
	}
	if scope == ScopeAgent && agentID != "" {
		return s.agents[agentID].Reason
	}
	return ""
}

// State returns a deep copy of the full switch state.
func (s *Switch) State() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agents := make(map[string]Flag, len(s.agents))
	for id, flag := range s.agents {
		agents[id] = flag
	}

	return Snapshot{
		Global: s.global,
		Agents: agents,
	}
}
