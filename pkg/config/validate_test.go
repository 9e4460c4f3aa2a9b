package config

import (
	"errors"
	"strings"
	"testing"
)

// validBase returns a configuration that passes validation.
func validBase() *Config {
	cfg := &Config{}
	cfg.Audit.Secret = "test-secret"
	ApplyDefaults(cfg)
	return cfg
}

func TestValidate_Valid(t *testing.T) {
	if err := Validate(validBase()); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestValidate_FieldErrors(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{
			name:      "missing audit secret",
			mutate:    func(c *Config) { c.Audit.Secret = "" },
			wantField: "audit.secret",
		},
		{
			name:      "missing listen address",
			mutate:    func(c *Config) { c.Server.ListenAddress = "" },
			wantField: "server.listen_address",
		},
		{
			name:      "watch without directory",
			mutate:    func(c *Config) { c.Policy.Watch = true },
			wantField: "policy.watch",
		},
		{
			name: "git sync without url",
			mutate: func(c *Config) {
				c.Policy.Git.Enabled = true
				c.Policy.Git.Directory = "/tmp/checkout"
			},
			wantField: "policy.git.url",
		},
		{
			name:      "negative failure threshold",
			mutate:    func(c *Config) { c.Enforcer.FailureThreshold = -1 },
			wantField: "enforcer.failure_threshold",
		},
		{
			name:      "mirror without path",
			mutate:    func(c *Config) { c.Audit.Mirror.Path = "" },
			wantField: "audit.mirror.path",
		},
		{
			name:      "invalid log level",
			mutate:    func(c *Config) { c.Telemetry.Logging.Level = "verbose" },
			wantField: "telemetry.logging.level",
		},
		{
			name:      "invalid log format",
			mutate:    func(c *Config) { c.Telemetry.Logging.Format = "xml" },
			wantField: "telemetry.logging.format",
		},
		{
			name: "tracing without endpoint",
			mutate: func(c *Config) {
				c.Telemetry.Tracing.Enabled = true
				c.Telemetry.Tracing.Endpoint = ""
			},
			wantField: "telemetry.tracing.endpoint",
		},
		{
			name:      "sample ratio out of range",
			mutate:    func(c *Config) { c.Telemetry.Tracing.SampleRatio = 1.5 },
			wantField: "telemetry.tracing.sample_ratio",
		},
		{
			name:      "auth enabled without tokens",
			mutate:    func(c *Config) { c.Security.Auth.Enabled = true },
			wantField: "security.auth.tokens",
		},
		{
			name: "token without actor",
			mutate: func(c *Config) {
				c.Security.Auth.Enabled = true
				c.Security.Auth.Tokens = []TokenConfig{{Token: "abc"}}
			},
			wantField: "security.auth.tokens[0].actor_id",
		},
		{
			name:      "tls without cert",
			mutate:    func(c *Config) { c.Security.TLS.Enabled = true },
			wantField: "security.tls.cert_file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validBase()
			tt.mutate(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("Validate passed an invalid configuration")
			}

			var verr ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("error = %T, want ValidationError", err)
			}
			for _, fe := range verr.Errors {
				if fe.Field == tt.wantField {
					return
				}
			}
			t.Errorf("errors = %v, want a %s error", verr.Errors, tt.wantField)
		})
	}
}

func TestValidate_CollectsMultipleErrors(t *testing.T) {
	cfg := validBase()
	cfg.Audit.Secret = ""
	cfg.Server.ListenAddress = ""
	cfg.Enforcer.Timeout = -1

	err := Validate(cfg)
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %T, want ValidationError", err)
	}
	if len(verr.Errors) != 3 {
		t.Errorf("errors = %d, want 3: %v", len(verr.Errors), verr.Errors)
	}
	if !strings.Contains(verr.Error(), "3 errors") {
		t.Errorf("message = %q, want error count", verr.Error())
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.Audit.Secret = "s"
	cfg.Server.ListenAddress = "0.0.0.0:1234"
	cfg.Enforcer.EnforceMode = boolPtr(false)
	cfg.Telemetry.Metrics.Enabled = boolPtr(false)

	ApplyDefaults(cfg)

	if cfg.Server.ListenAddress != "0.0.0.0:1234" {
		t.Error("explicit listen address overwritten")
	}
	if *cfg.Enforcer.EnforceMode {
		t.Error("explicit enforce_mode=false overwritten")
	}
	if *cfg.Telemetry.Metrics.Enabled {
		t.Error("explicit metrics.enabled=false overwritten")
	}
	if cfg.Audit.Mirror.Enabled == nil || !*cfg.Audit.Mirror.Enabled {
		t.Error("mirror.enabled should default to true")
	}
	if cfg.Telemetry.Events.MaxEvents != DefaultEventsMaxEvents {
		t.Errorf("events max = %d, want default", cfg.Telemetry.Events.MaxEvents)
	}
}
