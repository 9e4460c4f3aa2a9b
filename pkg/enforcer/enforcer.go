package enforcer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"veritas-hq/warden/pkg/ident"
)

// ErrFailClosed reports a request refused because a critical health probe
// is down while enforce mode is on.
type ErrFailClosed struct {
	// Probe is the failing critical probe.
	Probe string

	// Message is the probe's failure message.
	Message string
}

func (e *ErrFailClosed) Error() string {
	return fmt.Sprintf("failing closed: critical probe %q is down: %s", e.Probe, e.Message)
}

// ErrCircuitOpen reports a request refused because the breaker is open.
type ErrCircuitOpen struct {
	// State is the breaker state at refusal time.
	State string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker is %s", e.State)
}

// Config contains configuration for the Enforcer.
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens
	// the breaker.
	// Default: 5
	FailureThreshold int `yaml:"failure_threshold"`

	// SuccessThreshold is the number of consecutive half-open successes
	// that closes the breaker again.
	// Default: 2
	SuccessThreshold int `yaml:"success_threshold"`

	// Timeout is how long the breaker stays open before probing.
	// Default: 30 seconds
	Timeout time.Duration `yaml:"timeout"`

	// ProbeTimeout bounds each health probe.
	// Default: 5 seconds
	ProbeTimeout time.Duration `yaml:"probe_timeout"`

	// EnforceMode fails requests closed on critical probe failure. When
	// off, probe failures are logged and requests proceed.
	// Default: true
	EnforceMode bool `yaml:"enforce_mode"`
}

// DefaultConfig returns the default enforcer configuration.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
		ProbeTimeout:     5 * time.Second,
		EnforceMode:      true,
	}
}

// Enforcer gates pipeline execution behind health probes and a circuit
// breaker.
type Enforcer struct {
	config  Config
	health  *healthRegistry
	breaker *gobreaker.CircuitBreaker
	clock   ident.Clock
	logger  *slog.Logger
}

// New creates an Enforcer. Zero-valued config fields take defaults.
func New(config Config, clock ident.Clock) *Enforcer {
	defaults := DefaultConfig()
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = defaults.FailureThreshold
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = defaults.SuccessThreshold
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.ProbeTimeout <= 0 {
		config.ProbeTimeout = defaults.ProbeTimeout
	}
	if clock == nil {
		clock = ident.NewSystemClock()
	}

	logger := slog.Default().With("component", "enforcer")

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "pipeline",
		MaxRequests: uint32(config.SuccessThreshold),
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(config.FailureThreshold)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	return &Enforcer{
		config:  config,
		health:  newHealthRegistry(config.ProbeTimeout),
		breaker: breaker,
		clock:   clock,
		logger:  logger,
	}
}

// RegisterProbe installs or replaces a named health probe. Critical
// probes fail requests closed when down and enforce mode is on.
func (e *Enforcer) RegisterProbe(name string, critical bool, fn ProbeFunc) {
	e.health.register(name, critical, fn)
}

// UnregisterProbe removes a named probe.
func (e *Enforcer) UnregisterProbe(name string) {
	e.health.unregister(name)
}

// Health runs all probes and returns the aggregated report.
func (e *Enforcer) Health(ctx context.Context) HealthReport {
	return e.health.check(ctx, e.clock.Now())
}

// BreakerState returns the breaker state as a string (closed, half-open,
// open), for metrics and health endpoints.
func (e *Enforcer) BreakerState() string {
	return e.breaker.State().String()
}

// Execute runs fn behind the health gate and the circuit breaker.
//
// When a critical probe is down and enforce mode is on, fn is never
// invoked and Execute returns ErrFailClosed. When the breaker is open,
// fn is never invoked and Execute returns ErrCircuitOpen. Otherwise
// fn's result and error pass through, with failures counted by the
// breaker.
func (e *Enforcer) Execute(ctx context.Context, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	report := e.Health(ctx)
	if report.Status == StatusDown {
		failing := criticalFailure(report)
		if e.config.EnforceMode {
			e.logger.Error("failing closed on critical probe",
				"probe", failing.Name,
				"message", failing.Message,
			)
			return nil, &ErrFailClosed{Probe: failing.Name, Message: failing.Message}
		}
		e.logger.Warn("critical probe down but enforce mode is off, proceeding",
			"probe", failing.Name,
			"message", failing.Message,
		)
	}

	result, err := e.breaker.Execute(func() (interface{}, error) {
		return fn(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &ErrCircuitOpen{State: e.BreakerState()}
	}
	return result, err
}

// criticalFailure returns the first down critical probe in the report.
func criticalFailure(report HealthReport) ProbeReport {
	for _, p := range report.Probes {
		if p.Critical && p.Status == ProbeDown {
			return p
		}
	}
	return ProbeReport{Name: "unknown"}
}
