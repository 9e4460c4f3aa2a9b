package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxHeaderBytes  = 1048576 // 1MB

	// Policy defaults
	DefaultPolicyDebounce     = 200 * time.Millisecond
	DefaultPolicyGitBranch    = "main"
	DefaultPolicyPollInterval = 60 * time.Second

	// Audit defaults
	DefaultAuditMirrorPath         = "data/audit.db"
	DefaultAuditMirrorBufferSize   = 1000
	DefaultAuditMirrorWriteTimeout = 5 * time.Second

	// Enforcer defaults
	DefaultFailureThreshold = 5
	DefaultSuccessThreshold = 2
	DefaultBreakerTimeout   = 30 * time.Second
	DefaultProbeTimeout     = 5 * time.Second

	// Approval defaults
	DefaultSweepInterval = 30 * time.Second
	DefaultArchivePath   = "data/decisions.db"

	// Executor defaults
	DefaultWorkflowID   = "default"
	DefaultModelTimeout = 60 * time.Second

	// Telemetry defaults
	DefaultLoggingLevel    = "info"
	DefaultLoggingFormat   = "json"
	DefaultMetricsPath     = "/metrics"
	DefaultSampleRatio     = 1.0
	DefaultEventsMaxEvents = 100000
)

func boolPtr(b bool) *bool { return &b }

// ApplyDefaults fills zero-valued fields with defaults. It never
// overwrites a value the file or environment set explicitly.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = DefaultMaxHeaderBytes
	}

	if cfg.Policy.DebounceInterval == 0 {
		cfg.Policy.DebounceInterval = DefaultPolicyDebounce
	}
	if cfg.Policy.Git.Branch == "" {
		cfg.Policy.Git.Branch = DefaultPolicyGitBranch
	}
	if cfg.Policy.Git.Directory == "" {
		cfg.Policy.Git.Directory = cfg.Policy.Directory
	}
	if cfg.Policy.Git.PollInterval == 0 {
		cfg.Policy.Git.PollInterval = DefaultPolicyPollInterval
	}

	if cfg.Audit.Mirror.Enabled == nil {
		cfg.Audit.Mirror.Enabled = boolPtr(true)
	}
	if cfg.Audit.Mirror.Path == "" {
		cfg.Audit.Mirror.Path = DefaultAuditMirrorPath
	}
	if cfg.Audit.Mirror.BufferSize == 0 {
		cfg.Audit.Mirror.BufferSize = DefaultAuditMirrorBufferSize
	}
	if cfg.Audit.Mirror.WriteTimeout == 0 {
		cfg.Audit.Mirror.WriteTimeout = DefaultAuditMirrorWriteTimeout
	}

	if cfg.Enforcer.FailureThreshold == 0 {
		cfg.Enforcer.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.Enforcer.SuccessThreshold == 0 {
		cfg.Enforcer.SuccessThreshold = DefaultSuccessThreshold
	}
	if cfg.Enforcer.Timeout == 0 {
		cfg.Enforcer.Timeout = DefaultBreakerTimeout
	}
	if cfg.Enforcer.ProbeTimeout == 0 {
		cfg.Enforcer.ProbeTimeout = DefaultProbeTimeout
	}
	if cfg.Enforcer.EnforceMode == nil {
		cfg.Enforcer.EnforceMode = boolPtr(true)
	}

	if cfg.Approval.SweepInterval == 0 {
		cfg.Approval.SweepInterval = DefaultSweepInterval
	}
	if cfg.Approval.Archive.Enabled == nil {
		cfg.Approval.Archive.Enabled = boolPtr(true)
	}
	if cfg.Approval.Archive.Path == "" {
		cfg.Approval.Archive.Path = DefaultArchivePath
	}

	if cfg.Executor.WorkflowID == "" {
		cfg.Executor.WorkflowID = DefaultWorkflowID
	}
	if cfg.Executor.ModelTimeout == 0 {
		cfg.Executor.ModelTimeout = DefaultModelTimeout
	}

	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Logging.RedactPII == nil {
		cfg.Telemetry.Logging.RedactPII = boolPtr(true)
	}
	if cfg.Telemetry.Metrics.Enabled == nil {
		cfg.Telemetry.Metrics.Enabled = boolPtr(true)
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Tracing.SampleRatio == 0 {
		cfg.Telemetry.Tracing.SampleRatio = DefaultSampleRatio
	}
	if cfg.Telemetry.Events.MaxEvents == 0 {
		cfg.Telemetry.Events.MaxEvents = DefaultEventsMaxEvents
	}
}
