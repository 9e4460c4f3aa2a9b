package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a YAML file, applies defaults, and
// validates the result. Environment variables are not consulted; use
// LoadWithEnvOverrides for that.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Variables follow the naming convention
// WARDEN_SECTION_FIELD (e.g. WARDEN_SERVER_LISTEN_ADDRESS) and always win
// over file values.
func LoadWithEnvOverrides(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	// Server overrides
	if val := os.Getenv("WARDEN_SERVER_LISTEN_ADDRESS"); val != "" {
		cfg.Server.ListenAddress = val
	}
	if val := os.Getenv("WARDEN_SERVER_READ_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if val := os.Getenv("WARDEN_SERVER_WRITE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}
	if val := os.Getenv("WARDEN_SERVER_SHUTDOWN_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.ShutdownTimeout = d
		}
	}

	// Policy overrides
	if val := os.Getenv("WARDEN_POLICY_DIRECTORY"); val != "" {
		cfg.Policy.Directory = val
	}
	if val := os.Getenv("WARDEN_POLICY_WATCH"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Policy.Watch = b
		}
	}
	if val := os.Getenv("WARDEN_POLICY_GIT_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Policy.Git.Enabled = b
		}
	}
	if val := os.Getenv("WARDEN_POLICY_GIT_URL"); val != "" {
		cfg.Policy.Git.URL = val
	}
	if val := os.Getenv("WARDEN_POLICY_GIT_BRANCH"); val != "" {
		cfg.Policy.Git.Branch = val
	}
	if val := os.Getenv("WARDEN_POLICY_GIT_TOKEN"); val != "" {
		cfg.Policy.Git.Token = val
	}

	// Audit overrides
	if val := os.Getenv("WARDEN_AUDIT_SECRET"); val != "" {
		cfg.Audit.Secret = val
	}
	if val := os.Getenv("WARDEN_AUDIT_MIRROR_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Audit.Mirror.Enabled = boolPtr(b)
		}
	}
	if val := os.Getenv("WARDEN_AUDIT_MIRROR_PATH"); val != "" {
		cfg.Audit.Mirror.Path = val
	}

	// Enforcer overrides
	if val := os.Getenv("WARDEN_ENFORCER_FAILURE_THRESHOLD"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Enforcer.FailureThreshold = i
		}
	}
	if val := os.Getenv("WARDEN_ENFORCER_SUCCESS_THRESHOLD"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Enforcer.SuccessThreshold = i
		}
	}
	if val := os.Getenv("WARDEN_ENFORCER_ENFORCE_MODE"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Enforcer.EnforceMode = boolPtr(b)
		}
	}

	// Approval overrides
	if val := os.Getenv("WARDEN_APPROVAL_SWEEP_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Approval.SweepInterval = d
		}
	}
	if val := os.Getenv("WARDEN_APPROVAL_ARCHIVE_PATH"); val != "" {
		cfg.Approval.Archive.Path = val
	}

	// Executor overrides
	if val := os.Getenv("WARDEN_EXECUTOR_MODEL_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Executor.ModelTimeout = d
		}
	}

	// Telemetry overrides
	if val := os.Getenv("WARDEN_TELEMETRY_LOGGING_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("WARDEN_TELEMETRY_LOGGING_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = val
	}
	if val := os.Getenv("WARDEN_TELEMETRY_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Metrics.Enabled = boolPtr(b)
		}
	}
	if val := os.Getenv("WARDEN_TELEMETRY_TRACING_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Tracing.Enabled = b
		}
	}
	if val := os.Getenv("WARDEN_TELEMETRY_TRACING_ENDPOINT"); val != "" {
		cfg.Telemetry.Tracing.Endpoint = val
	}
	if val := os.Getenv("WARDEN_TELEMETRY_TRACING_SAMPLE_RATIO"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Telemetry.Tracing.SampleRatio = f
		}
	}

	// Security overrides
	if val := os.Getenv("WARDEN_SECURITY_AUTH_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Security.Auth.Enabled = b
		}
	}
	if val := os.Getenv("WARDEN_SECURITY_TLS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Security.TLS.Enabled = b
		}
	}
	if val := os.Getenv("WARDEN_SECURITY_TLS_CERT_FILE"); val != "" {
		cfg.Security.TLS.CertFile = val
	}
	if val := os.Getenv("WARDEN_SECURITY_TLS_KEY_FILE"); val != "" {
		cfg.Security.TLS.KeyFile = val
	}
}
