package config

import (
	"fmt"
	"strings"
)

// FieldError represents a validation error for a specific configuration
// field.
type FieldError struct {
	// Field is the dotted path to the field (e.g. "audit.secret").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a
// configuration. It implements the error interface and provides access to
// all field errors.
type ValidationError struct {
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a
// ValidationError if any rule fails. All errors are collected and
// returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validatePolicy(&cfg.Policy)...)
	errs = append(errs, validateAudit(&cfg.Audit)...)
	errs = append(errs, validateEnforcer(&cfg.Enforcer)...)
	errs = append(errs, validateApproval(&cfg.Approval)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)
	errs = append(errs, validateSecurity(&cfg.Security)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: "listen address is required",
		})
	}
	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.read_timeout",
			Message: "read timeout must be positive",
		})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.write_timeout",
			Message: "write timeout must be positive",
		})
	}
	if cfg.MaxHeaderBytes < 0 {
		errs = append(errs, FieldError{
			Field:   "server.max_header_bytes",
			Message: "max header bytes must be non-negative",
		})
	}

	return errs
}

func validatePolicy(cfg *PolicyConfig) []FieldError {
	var errs []FieldError

	if cfg.Watch && cfg.Directory == "" {
		errs = append(errs, FieldError{
			Field:   "policy.watch",
			Message: "watching requires policy.directory to be set",
		})
	}
	if cfg.Git.Enabled {
		if cfg.Git.URL == "" {
			errs = append(errs, FieldError{
				Field:   "policy.git.url",
				Message: "git sync requires a repository url",
			})
		}
		if cfg.Git.Directory == "" {
			errs = append(errs, FieldError{
				Field:   "policy.git.directory",
				Message: "git sync requires a checkout directory",
			})
		}
		if cfg.Git.PollInterval < 0 {
			errs = append(errs, FieldError{
				Field:   "policy.git.poll_interval",
				Message: "poll interval must be positive",
			})
		}
	}

	return errs
}

func validateAudit(cfg *AuditConfig) []FieldError {
	var errs []FieldError

	// The trail refuses to sign without a secret, so fail at startup
	// rather than on the first request.
	if cfg.Secret == "" {
		errs = append(errs, FieldError{
			Field:   "audit.secret",
			Message: "audit signing secret is required",
		})
	}
	if cfg.Mirror.Enabled != nil && *cfg.Mirror.Enabled {
		if cfg.Mirror.Path == "" {
			errs = append(errs, FieldError{
				Field:   "audit.mirror.path",
				Message: "mirror requires a database path",
			})
		}
		if cfg.Mirror.BufferSize < 0 {
			errs = append(errs, FieldError{
				Field:   "audit.mirror.buffer_size",
				Message: "buffer size must be non-negative",
			})
		}
	}

	return errs
}

func validateEnforcer(cfg *EnforcerConfig) []FieldError {
	var errs []FieldError

	if cfg.FailureThreshold < 0 {
		errs = append(errs, FieldError{
			Field:   "enforcer.failure_threshold",
			Message: "failure threshold must be positive",
		})
	}
	if cfg.SuccessThreshold < 0 {
		errs = append(errs, FieldError{
			Field:   "enforcer.success_threshold",
			Message: "success threshold must be positive",
		})
	}
	if cfg.Timeout < 0 {
		errs = append(errs, FieldError{
			Field:   "enforcer.timeout",
			Message: "timeout must be positive",
		})
	}
	if cfg.ProbeTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "enforcer.probe_timeout",
			Message: "probe timeout must be positive",
		})
	}

	return errs
}

func validateApproval(cfg *ApprovalConfig) []FieldError {
	var errs []FieldError

	if cfg.SweepInterval < 0 {
		errs = append(errs, FieldError{
			Field:   "approval.sweep_interval",
			Message: "sweep interval must be positive",
		})
	}
	if cfg.Archive.Enabled != nil && *cfg.Archive.Enabled && cfg.Archive.Path == "" {
		errs = append(errs, FieldError{
			Field:   "approval.archive.path",
			Message: "archive requires a database path",
		})
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch cfg.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid level %q (must be debug, info, warn, or error)", cfg.Logging.Level),
		})
	}
	switch cfg.Logging.Format {
	case "", "json", "text":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid format %q (must be json or text)", cfg.Logging.Format),
		})
	}
	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.endpoint",
			Message: "tracing requires a collector endpoint",
		})
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sample_ratio",
			Message: "sample ratio must be between 0 and 1",
		})
	}
	if cfg.Events.MaxEvents < -1 {
		errs = append(errs, FieldError{
			Field:   "telemetry.events.max_events",
			Message: "max events must be -1 (unbounded) or positive",
		})
	}

	return errs
}

func validateSecurity(cfg *SecurityConfig) []FieldError {
	var errs []FieldError

	if cfg.Auth.Enabled && len(cfg.Auth.Tokens) == 0 {
		errs = append(errs, FieldError{
			Field:   "security.auth.tokens",
			Message: "auth is enabled but no tokens are configured",
		})
	}
	for i, token := range cfg.Auth.Tokens {
		if token.Token == "" {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("security.auth.tokens[%d].token", i),
				Message: "token value is required",
			})
		}
		if token.ActorID == "" {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("security.auth.tokens[%d].actor_id", i),
				Message: "actor id is required",
			})
		}
	}

	if cfg.TLS.Enabled {
		if cfg.TLS.CertFile == "" {
			errs = append(errs, FieldError{
				Field:   "security.tls.cert_file",
				Message: "TLS requires a certificate file",
			})
		}
		if cfg.TLS.KeyFile == "" {
			errs = append(errs, FieldError{
				Field:   "security.tls.key_file",
				Message: "TLS requires a key file",
			})
		}
	}

	return errs
}
