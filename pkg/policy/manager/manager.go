package manager

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"veritas-hq/warden/pkg/audit"
	"veritas-hq/warden/pkg/policy"
)

// Manager serves the active policy set. Reads are lock-free snapshot
// loads; a reload swaps the whole set atomically, so an in-flight
// evaluation always sees one coherent set.
type Manager struct {
	directory string
	loader    *Loader
	trail     *audit.Trail
	logger    *slog.Logger

	set atomic.Pointer[[]policy.Policy]
}

// New creates a Manager serving policies from directory. An empty
// directory path serves the empty set until Replace is called.
func New(directory string, loader *Loader, trail *audit.Trail) *Manager {
	if loader == nil {
		loader = NewLoader(LoaderConfig{})
	}
	m := &Manager{
		directory: directory,
		loader:    loader,
		trail:     trail,
		logger:    slog.Default().With("component", "policy.manager"),
	}
	empty := []policy.Policy{}
	m.set.Store(&empty)
	return m
}

// Load performs the initial directory load. A missing directory is an
// empty set, not an error.
func (m *Manager) Load() error {
	return m.Reload()
}

// Reload re-reads the directory and swaps the served set. On any load
// or validation error the previous set stays in place.
func (m *Manager) Reload() error {
	if m.directory == "" {
		return nil
	}

	policies, err := m.loader.LoadDirectory(m.directory)
	if err != nil {
		m.logger.Error("policy reload failed, keeping previous set",
			"directory", m.directory,
			"error", err,
		)
		return fmt.Errorf("reload policies from %s: %w", m.directory, err)
	}

	m.Replace(policies)
	return nil
}

// Replace atomically swaps the served set.
func (m *Manager) Replace(policies []policy.Policy) {
	copied := append([]policy.Policy(nil), policies...)
	m.set.Store(&copied)

	m.logger.Info("policy set replaced", "policies", len(copied))

	if m.trail != nil {
		if _, err := m.trail.Append(audit.AppendParams{
			EventType: audit.EventPolicySetReloaded,
			Details: map[string]string{
				"policy_count": fmt.Sprintf("%d", len(copied)),
			},
		}); err != nil {
			m.logger.Error("failed to audit policy reload", "error", err)
		}
	}
}

// Snapshot returns the active set. The returned slice is shared and must
// not be mutated; evaluation treats policies as immutable.
func (m *Manager) Snapshot() []policy.Policy {
	return *m.set.Load()
}

// Get returns the active policy with the given id, or nil.
func (m *Manager) Get(id string) *policy.Policy {
	for _, p := range m.Snapshot() {
		if p.ID == id {
			copied := p
			return &copied
		}
	}
	return nil
}

// Count returns the size of the active set.
func (m *Manager) Count() int {
	return len(m.Snapshot())
}
