package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"veritas-hq/warden/pkg/registry"
)

func TestModelInvoker_Echo(t *testing.T) {
	invoke := modelInvoker("")
	agent := &registry.Agent{ID: "billing-agent"}

	got, err := invoke(context.Background(), agent, "hello", nil)
	if err != nil {
		t.Fatalf("invoke() error = %v", err)
	}
	if !strings.Contains(got, "billing-agent") || !strings.Contains(got, "hello") {
		t.Errorf("unexpected echo response: %s", got)
	}
}

func TestModelInvoker_Upstream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"response":"model says hi"}`))
	}))
	defer upstream.Close()

	invoke := modelInvoker(upstream.URL)
	agent := &registry.Agent{ID: "billing-agent", Model: "gpt-4"}

	got, err := invoke(context.Background(), agent, "hello", map[string]string{"team": "billing"})
	if err != nil {
		t.Fatalf("invoke() error = %v", err)
	}
	if got != "model says hi" {
		t.Errorf("response = %q, want %q", got, "model says hi")
	}
}

func TestModelInvoker_UpstreamError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer upstream.Close()

	invoke := modelInvoker(upstream.URL)
	if _, err := invoke(context.Background(), &registry.Agent{ID: "a"}, "hello", nil); err == nil {
		t.Fatal("expected error for non-200 upstream")
	}
}
