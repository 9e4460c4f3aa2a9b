package main

import (
	"testing"

	"veritas-hq/warden/pkg/approval"
)

func TestVersionDefaults(t *testing.T) {
	if Version == "" {
		t.Error("Version must not be empty")
	}
	if GitCommit == "" || BuildDate == "" {
		t.Error("build metadata defaults must not be empty")
	}
}

func TestDefaultWorkflow(t *testing.T) {
	wf := defaultWorkflow("standard")

	if wf.ID != "standard" {
		t.Errorf("ID = %s, want standard", wf.ID)
	}
	if wf.RequiredApprovals != 1 {
		t.Errorf("RequiredApprovals = %d, want 1", wf.RequiredApprovals)
	}
	if wf.TimeoutAction != approval.TimeoutReject {
		t.Errorf("TimeoutAction = %s, want reject", wf.TimeoutAction)
	}
	if !wf.RequireRationale {
		t.Error("expected rationale to be required")
	}
	if len(wf.ApproverRoles) == 0 {
		t.Error("expected approver roles")
	}
}
