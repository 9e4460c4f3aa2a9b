package config

import "time"

// Config is the root configuration for Warden.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Policy    PolicyConfig    `yaml:"policy"`
	Audit     AuditConfig     `yaml:"audit"`
	Enforcer  EnforcerConfig  `yaml:"enforcer"`
	Approval  ApprovalConfig  `yaml:"approval"`
	Executor  ExecutorConfig  `yaml:"executor"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Security  SecurityConfig  `yaml:"security"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	// ListenAddress is the host:port to bind.
	// Default: 127.0.0.1:8080
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading a request.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration for writing a response.
	// Default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle limit.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes caps request header size.
	// Default: 1MB
	MaxHeaderBytes int `yaml:"max_header_bytes"`
}

// PolicyConfig configures where policies come from.
type PolicyConfig struct {
	// Directory holds the policy YAML files. Empty serves no policies.
	Directory string `yaml:"directory"`

	// Watch enables filesystem-driven hot reload of the directory.
	// Default: false
	Watch bool `yaml:"watch"`

	// DebounceInterval is the quiet period after a file event before a
	// reload fires.
	// Default: 200ms
	DebounceInterval time.Duration `yaml:"debounce_interval"`

	// Git configures the optional git-backed policy source.
	Git PolicyGitConfig `yaml:"git"`
}

// PolicyGitConfig configures git-backed policy sync.
type PolicyGitConfig struct {
	// Enabled turns the syncer on. When enabled, URL is required and
	// Directory defaults to the policy directory.
	Enabled bool `yaml:"enabled"`

	// URL is the remote policy repository.
	URL string `yaml:"url"`

	// Branch is the branch to track.
	// Default: main
	Branch string `yaml:"branch"`

	// Directory is the local checkout path. Defaults to policy.directory.
	Directory string `yaml:"directory"`

	// PollInterval is the fetch cadence.
	// Default: 60s
	PollInterval time.Duration `yaml:"poll_interval"`

	// Username and Token authenticate HTTPS remotes.
	Username string `yaml:"username"`
	Token    string `yaml:"token"`
}

// AuditConfig configures the audit trail.
type AuditConfig struct {
	// Secret is the HMAC signing secret. Required.
	Secret string `yaml:"secret"`

	// Mirror configures the durable SQLite mirror.
	Mirror AuditMirrorConfig `yaml:"mirror"`
}

// AuditMirrorConfig configures the async SQLite audit mirror.
type AuditMirrorConfig struct {
	// Enabled turns the mirror on.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Path is the SQLite database file.
	// Default: data/audit.db
	Path string `yaml:"path"`

	// BufferSize is the async write queue depth.
	// Default: 1000
	BufferSize int `yaml:"buffer_size"`

	// WriteTimeout bounds each mirror write.
	// Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// EnforcerConfig configures fail-closed enforcement.
type EnforcerConfig struct {
	// FailureThreshold is the consecutive-failure count that opens the
	// breaker.
	// Default: 5
	FailureThreshold int `yaml:"failure_threshold"`

	// SuccessThreshold is the half-open success count that closes it.
	// Default: 2
	SuccessThreshold int `yaml:"success_threshold"`

	// Timeout is how long the breaker stays open before probing.
	// Default: 30s
	Timeout time.Duration `yaml:"timeout"`

	// ProbeTimeout bounds each health probe.
	// Default: 5s
	ProbeTimeout time.Duration `yaml:"probe_timeout"`

	// EnforceMode fails requests closed on critical probe failure.
	// Default: true
	EnforceMode *bool `yaml:"enforce_mode"`
}

// ApprovalConfig configures the approval subsystem.
type ApprovalConfig struct {
	// SweepInterval is the timeout sweep cadence.
	// Default: 30s
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// Archive configures the durable decision archive.
	Archive ApprovalArchiveConfig `yaml:"archive"`
}

// ApprovalArchiveConfig configures the SQLite decision archive.
type ApprovalArchiveConfig struct {
	// Enabled turns the archive on.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Path is the SQLite database file.
	// Default: data/decisions.db
	Path string `yaml:"path"`
}

// ExecutorConfig configures the request pipeline.
type ExecutorConfig struct {
	// WorkflowID is the approval workflow applied to REVIEW outcomes.
	// Default: default
	WorkflowID string `yaml:"workflow_id"`

	// ModelTimeout bounds each model invocation.
	// Default: 60s
	ModelTimeout time.Duration `yaml:"model_timeout"`

	// UpstreamURL is the model endpoint governed requests are forwarded
	// to. Empty selects the built-in echo responder, which is only
	// useful for development.
	UpstreamURL string `yaml:"upstream_url"`
}

// TelemetryConfig configures logging, metrics, tracing, and the event
// store.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
	Events  EventsConfig  `yaml:"events"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	// Default: info
	Level string `yaml:"level"`

	// Format is json or text.
	// Default: json
	Format string `yaml:"format"`

	// RedactPII scrubs common PII patterns from log values.
	// Default: true
	RedactPII *bool `yaml:"redact_pii"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Enabled serves /metrics.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Path is the scrape path.
	// Default: /metrics
	Path string `yaml:"path"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	// Enabled turns tracing on.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP gRPC collector address.
	Endpoint string `yaml:"endpoint"`

	// SampleRatio is the trace sampling ratio in [0, 1].
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`

	// Insecure disables TLS to the collector.
	Insecure bool `yaml:"insecure"`
}

// EventsConfig configures the observability event store.
type EventsConfig struct {
	// MaxEvents caps retained events. Zero takes the default; -1 means
	// unbounded.
	// Default: 100000
	MaxEvents int `yaml:"max_events"`
}

// SecurityConfig configures API authentication and TLS.
type SecurityConfig struct {
	Auth AuthConfig `yaml:"auth"`
	TLS  TLSConfig  `yaml:"tls"`
}

// AuthConfig configures bearer-token authentication.
type AuthConfig struct {
	// Enabled requires a bearer token on API requests.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Tokens maps static tokens to actors and roles.
	Tokens []TokenConfig `yaml:"tokens"`
}

// TokenConfig binds a static token to an actor.
type TokenConfig struct {
	Token   string   `yaml:"token"`
	ActorID string   `yaml:"actor_id"`
	Roles   []string `yaml:"roles"`
}

// TLSConfig configures TLS for the API server.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}
