package manager

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"veritas-hq/warden/pkg/policy"
)

func writePolicy(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

const prodPII = `
id: prod_pii
version: 1.0.0
description: customer data access in prod needs review
priority: 100
scope:
  environment: [prod]
conditions:
  tags: [pii]
effect: REVIEW
`

func TestLoader_LoadFile(t *testing.T) {
	dir := t.TempDir()
	path := writePolicy(t, dir, "prod_pii.yaml", prodPII)

	loader := NewLoader(LoaderConfig{})
	policies, err := loader.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(policies) != 1 {
		t.Fatalf("policies = %d, want 1", len(policies))
	}

	p := policies[0]
	if p.ID != "prod_pii" || p.Priority != 100 || p.Effect != policy.EffectReview {
		t.Errorf("policy = %+v, want parsed fields", p)
	}
	if !p.Enabled {
		t.Error("enabled should default to true when absent")
	}
	if len(p.Scope.Environments) != 1 || p.Scope.Environments[0] != "prod" {
		t.Errorf("scope = %+v, want environment [prod]", p.Scope)
	}
}

func TestLoader_MultiDocumentFile(t *testing.T) {
	dir := t.TempDir()
	path := writePolicy(t, dir, "set.yaml", prodPII+`
---
id: prod_ban
priority: 200
conditions:
  tags: [banned]
effect: DENY
enabled: false
`)

	loader := NewLoader(LoaderConfig{})
	policies, err := loader.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(policies) != 2 {
		t.Fatalf("policies = %d, want 2", len(policies))
	}
	if policies[1].ID != "prod_ban" || policies[1].Enabled {
		t.Errorf("second policy = %+v, want disabled prod_ban", policies[1])
	}
}

func TestLoader_Errors(t *testing.T) {
	dir := t.TempDir()
	loader := NewLoader(LoaderConfig{})

	t.Run("missing file", func(t *testing.T) {
		_, err := loader.LoadFile(filepath.Join(dir, "absent.yaml"))
		var loadErr *LoadError
		if !errors.As(err, &loadErr) {
			t.Errorf("error = %v, want LoadError", err)
		}
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := writePolicy(t, dir, "broken.yaml", "id: [unclosed")
		_, err := loader.LoadFile(path)
		var parseErr *ParseError
		if !errors.As(err, &parseErr) {
			t.Errorf("error = %v, want ParseError", err)
		}
	})

	t.Run("invalid effect", func(t *testing.T) {
		path := writePolicy(t, dir, "bad_effect.yaml", "id: x\neffect: MAYBE\n")
		_, err := loader.LoadFile(path)
		var parseErr *ParseError
		if !errors.As(err, &parseErr) {
			t.Errorf("error = %v, want ParseError for invalid effect", err)
		}
	})

	t.Run("missing id", func(t *testing.T) {
		path := writePolicy(t, dir, "no_id.yaml", "effect: ALLOW\npriority: 1\n")
		if _, err := loader.LoadFile(path); err == nil {
			t.Error("policy without id loaded")
		}
	})
}

func TestLoader_LoadDirectory(t *testing.T) {
	dir := t.TempDir()
	writePolicy(t, dir, "b.yaml", "id: beta\neffect: ALLOW\n")
	writePolicy(t, dir, "a.yaml", "id: alpha\neffect: DENY\n")
	writePolicy(t, dir, ".hidden.yaml", "id: hidden\neffect: DENY\n")
	writePolicy(t, dir, "notes.txt", "not a policy")

	sub := filepath.Join(dir, "nested")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writePolicy(t, sub, "c.yml", "id: gamma\neffect: REVIEW\n")

	loader := NewLoader(LoaderConfig{})
	policies, err := loader.LoadDirectory(dir)
	if err != nil {
		t.Fatalf("LoadDirectory: %v", err)
	}

	// a.yaml, b.yaml, nested/c.yml in sorted path order; hidden and
	// non-policy files skipped.
	if len(policies) != 3 {
		t.Fatalf("policies = %d, want 3", len(policies))
	}
	if policies[0].ID != "alpha" || policies[1].ID != "beta" || policies[2].ID != "gamma" {
		t.Errorf("order = [%s %s %s], want [alpha beta gamma]", policies[0].ID, policies[1].ID, policies[2].ID)
	}
}

func TestLoader_DuplicateIDAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	writePolicy(t, dir, "a.yaml", "id: same\neffect: ALLOW\n")
	writePolicy(t, dir, "b.yaml", "id: same\neffect: DENY\n")

	_, err := NewLoader(LoaderConfig{}).LoadDirectory(dir)
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("error = %v, want ParseError for duplicate id", err)
	}
}

func TestLoader_MissingDirectoryIsEmptySet(t *testing.T) {
	policies, err := NewLoader(LoaderConfig{}).LoadDirectory(filepath.Join(t.TempDir(), "absent"))
	if err != nil {
		t.Fatalf("LoadDirectory: %v", err)
	}
	if len(policies) != 0 {
		t.Errorf("policies = %d, want 0", len(policies))
	}
}

func TestManager_ReloadSwapsAtomically(t *testing.T) {
	dir := t.TempDir()
	writePolicy(t, dir, "a.yaml", "id: alpha\neffect: ALLOW\n")

	m := New(dir, nil, nil)
	if err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Count() != 1 {
		t.Fatalf("Count = %d, want 1", m.Count())
	}

	before := m.Snapshot()

	writePolicy(t, dir, "b.yaml", "id: beta\neffect: DENY\n")
	if err := m.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if m.Count() != 2 {
		t.Errorf("Count after reload = %d, want 2", m.Count())
	}
	if len(before) != 1 {
		t.Error("earlier snapshot changed under a reload")
	}
	if m.Get("beta") == nil {
		t.Error("Get(beta) = nil after reload")
	}
	if m.Get("absent") != nil {
		t.Error("Get(absent) != nil")
	}
}

func TestManager_FailedReloadKeepsPreviousSet(t *testing.T) {
	dir := t.TempDir()
	writePolicy(t, dir, "a.yaml", "id: alpha\neffect: ALLOW\n")

	m := New(dir, nil, nil)
	if err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	writePolicy(t, dir, "broken.yaml", "id: [unclosed")
	if err := m.Reload(); err == nil {
		t.Fatal("Reload succeeded on a broken directory")
	}

	if m.Count() != 1 || m.Get("alpha") == nil {
		t.Error("failed reload disturbed the served set")
	}
}

func TestManager_EmptyDirectoryPath(t *testing.T) {
	m := New("", nil, nil)
	if err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Count() != 0 {
		t.Errorf("Count = %d, want 0", m.Count())
	}

	m.Replace([]policy.Policy{{ID: "manual", Effect: policy.EffectAllow, Enabled: true}})
	if m.Count() != 1 {
		t.Errorf("Count after Replace = %d, want 1", m.Count())
	}
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	writePolicy(t, dir, "a.yaml", "id: alpha\neffect: ALLOW\n")

	m := New(dir, nil, nil)
	if err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	w, err := NewWatcher(WatcherConfig{Path: dir, DebounceInterval: 50 * time.Millisecond}, m)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Watch(ctx)
	}()

	// Give the watcher a moment to install before mutating the dir.
	time.Sleep(100 * time.Millisecond)
	writePolicy(t, dir, "b.yaml", "id: beta\neffect: DENY\n")

	deadline := time.After(3 * time.Second)
	for m.Count() != 2 {
		select {
		case <-deadline:
			t.Fatal("watcher did not reload within 3s")
		case <-time.After(25 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop on context cancel")
	}
}
