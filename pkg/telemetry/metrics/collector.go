package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "warden"

// Collector owns Warden's Prometheus metrics and their registry.
type Collector struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	policyDecisions   *prometheus.CounterVec
	approvalDecisions *prometheus.CounterVec
	approvalsPending  prometheus.Gauge

	breakerState      prometheus.Gauge
	killSwitchEngaged *prometheus.GaugeVec

	auditAppends   prometheus.Counter
	hookExecutions *prometheus.CounterVec
}

// NewCollector creates a Collector with its metrics registered on a fresh
// registry. If registry is nil a private one is created.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{
		registry: registry,

		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total requests processed by the pipeline",
			},
			[]string{"status", "error_type"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "End-to-end request duration in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0},
			},
			[]string{"status"},
		),

		policyDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_decisions_total",
				Help:      "Policy evaluation outcomes",
			},
			[]string{"effect"},
		),

		approvalDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "approval_decisions_total",
				Help:      "Terminal approval decisions",
			},
			[]string{"outcome"},
		),

		approvalsPending: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "approvals_pending",
				Help:      "Approvals currently awaiting review",
			},
		),

		breakerState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "breaker_state",
				Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
			},
		),

		killSwitchEngaged: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "killswitch_engaged",
				Help:      "Kill switch engagement (1 engaged, 0 released)",
			},
			[]string{"scope"},
		),

		auditAppends: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "audit_appends_total",
				Help:      "Events appended to the audit trail",
			},
		),

		hookExecutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "hook_executions_total",
				Help:      "Plugin hook executions by stage and status",
			},
			[]string{"stage", "status"},
		),
	}

	registry.MustRegister(
		c.requestsTotal,
		c.requestDuration,
		c.policyDecisions,
		c.approvalDecisions,
		c.approvalsPending,
		c.breakerState,
		c.killSwitchEngaged,
		c.auditAppends,
		c.hookExecutions,
	)

	return c
}

// RecordRequest records a completed pipeline request. errorType is empty
// for successful requests.
func (c *Collector) RecordRequest(status, errorType string, duration time.Duration) {
	c.requestsTotal.WithLabelValues(status, errorType).Inc()
	c.requestDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordPolicyDecision records a policy evaluation outcome.
func (c *Collector) RecordPolicyDecision(effect string) {
	c.policyDecisions.WithLabelValues(effect).Inc()
}

// RecordApprovalDecision records a terminal approval outcome.
func (c *Collector) RecordApprovalDecision(outcome string) {
	c.approvalDecisions.WithLabelValues(outcome).Inc()
}

// SetPendingApprovals updates the pending approvals gauge.
func (c *Collector) SetPendingApprovals(n int) {
	c.approvalsPending.Set(float64(n))
}

// SetBreakerState maps the breaker state name onto the state gauge.
func (c *Collector) SetBreakerState(state string) {
	switch state {
	case "closed":
		c.breakerState.Set(0)
	case "half-open":
		c.breakerState.Set(1)
	case "open":
		c.breakerState.Set(2)
	}
}

// SetKillSwitch records engagement for a scope ("global" or an agent id
// bucketed as "agent").
func (c *Collector) SetKillSwitch(scope string, engaged bool) {
	value := 0.0
	if engaged {
		value = 1.0
	}
	c.killSwitchEngaged.WithLabelValues(scope).Set(value)
}

// RecordAuditAppend counts one audit trail append.
func (c *Collector) RecordAuditAppend() {
	c.auditAppends.Inc()
}

// RecordHookExecution counts one plugin hook execution.
func (c *Collector) RecordHookExecution(stage, status string) {
	c.hookExecutions.WithLabelValues(stage, status).Inc()
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
