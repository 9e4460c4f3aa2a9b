package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"veritas-hq/warden/pkg/policy/manager"
)

const validPolicyDoc = `
id: deny-prod-pii
version: "1"
description: Block tagged PII requests in production
priority: 10
scope:
  environment: [prod]
conditions:
  tags: [pii]
effect: DENY
`

const invalidPolicyDoc = `
id: broken
version: "1"
effect: MAYBE
`

func writePolicyFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLintPolicyFile_Valid(t *testing.T) {
	dir := t.TempDir()
	path := writePolicyFile(t, dir, "policies.yaml", validPolicyDoc)

	loader := manager.NewLoader(manager.LoaderConfig{})
	result := lintPolicyFile(loader, path)

	if !result.Valid {
		t.Fatalf("expected valid result, got errors %v", result.Errors)
	}
	if result.PolicyCount != 1 {
		t.Errorf("PolicyCount = %d, want 1", result.PolicyCount)
	}
}

func TestLintPolicyFile_InvalidEffect(t *testing.T) {
	dir := t.TempDir()
	path := writePolicyFile(t, dir, "broken.yaml", invalidPolicyDoc)

	loader := manager.NewLoader(manager.LoaderConfig{})
	result := lintPolicyFile(loader, path)

	if result.Valid {
		t.Fatal("expected invalid result")
	}
	if len(result.Errors) == 0 || !strings.Contains(result.Errors[0], "effect") {
		t.Errorf("expected an effect validation error, got %v", result.Errors)
	}
}

func TestLintPolicyFile_Missing(t *testing.T) {
	loader := manager.NewLoader(manager.LoaderConfig{})
	result := lintPolicyFile(loader, filepath.Join(t.TempDir(), "absent.yaml"))

	if result.Valid {
		t.Fatal("expected invalid result for missing file")
	}
}

func TestCollectPolicyFiles(t *testing.T) {
	dir := t.TempDir()
	writePolicyFile(t, dir, "a.yaml", validPolicyDoc)
	writePolicyFile(t, dir, "b.yml", validPolicyDoc)
	writePolicyFile(t, dir, "notes.txt", "not a policy")

	files, err := collectPolicyFiles("", dir)
	if err != nil {
		t.Fatalf("collectPolicyFiles() error = %v", err)
	}
	if len(files) != 2 {
		t.Errorf("found %d files, want 2: %v", len(files), files)
	}

	files, err = collectPolicyFiles("explicit.yaml", dir)
	if err != nil {
		t.Fatalf("collectPolicyFiles() error = %v", err)
	}
	if len(files) != 3 || files[0] != "explicit.yaml" {
		t.Errorf("unexpected file list: %v", files)
	}
}
