package approval

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"

	"veritas-hq/warden/pkg/audit"
)

const archiveWriteTimeout = 5 * time.Second

// SweepResult describes what the sweeper did to one expired approval.
type SweepResult struct {
	// ApprovalID is the swept approval.
	ApprovalID string

	// Action is what happened: "timeout", "approved", or "escalated".
	Action string

	// Record is the minted decision record, nil for escalations.
	Record *DecisionRecord
}

// SweepTimeouts scans pending approvals and applies each workflow's
// timeout action to those whose deadline has passed. The scan is
// idempotent: a request transitions at most once, and re-running the
// sweeper after the same wall-clock instant does nothing further.
func (m *Manager) SweepTimeouts() []SweepResult {
	now := m.clock.Now()

	m.mu.Lock()
	var expired []*Request
	for _, id := range m.order {
		request := m.requests[id]
		if request.Status != StatusPending {
			continue
		}
		workflow := m.workflows[request.WorkflowID]
		if workflow.TimeoutSeconds <= 0 {
			continue
		}
		deadline := request.RequestedAt.Add(time.Duration(workflow.TimeoutSeconds) * time.Second)
		if !now.Before(deadline) {
			expired = append(expired, request)
		}
	}
	m.mu.Unlock()

	var results []SweepResult
	for _, request := range expired {
		if result, ok := m.sweepOne(request.ID, now); ok {
			results = append(results, result)
		}
	}
	return results
}

// sweepOne applies the timeout action to a single approval. Returns false
// when the approval reached a terminal state between the scan and now.
func (m *Manager) sweepOne(approvalID string, now time.Time) (SweepResult, bool) {
	m.mu.Lock()

	request, ok := m.requests[approvalID]
	if !ok || request.Status != StatusPending {
		m.mu.Unlock()
		return SweepResult{}, false
	}

	workflow := m.workflows[request.WorkflowID]

	switch workflow.TimeoutAction {
	case TimeoutApprove:
		request.Status = StatusApproved
		request.ReviewedAt = &now
		request.ReviewedBy = "system"
		record := m.mintRecordLocked(request, OutcomeApproved, "system", "", "auto-approved on timeout")
		requestCopy := request.clone()
		onDecision := m.onDecision
		m.mu.Unlock()

		m.appendAudit(audit.EventApprovalApproved, requestCopy, map[string]string{
			"record_id": record.ID,
			"timeout":   "true",
		})
		m.archiveRecord(record)
		if onDecision != nil {
			onDecision(requestCopy, record)
		}
		return SweepResult{ApprovalID: approvalID, Action: "approved", Record: record}, true

	case TimeoutEscalate:
		if rule := m.firingRuleLocked(request, workflow, now); rule != nil {
			request.EscalationAttempts++
			request.EscalationLevel = rule.Level
			request.ApproverRoles = append([]string(nil), rule.TargetRoles...)
			// The review round restarts: the deadline extends from now.
			request.RequestedAt = now
			requestCopy := request.clone()
			m.mu.Unlock()

			m.appendAudit(audit.EventApprovalEscalated, requestCopy, map[string]string{
				"level":    strconv.Itoa(rule.Level),
				"attempts": strconv.Itoa(requestCopy.EscalationAttempts),
			})
			m.logger.Warn("approval escalated",
				"approval_id", approvalID,
				"level", rule.Level,
			)
			return SweepResult{ApprovalID: approvalID, Action: "escalated"}, true
		}
		// No rule fires: fall back to the reject path.
		fallthrough

	default: // TimeoutReject
		request.Status = StatusTimeout
		request.ReviewedAt = &now
		request.ReviewedBy = "system"
		record := m.mintRecordLocked(request, OutcomeTimeout, "system", "", "review window elapsed")
		requestCopy := request.clone()
		onDecision := m.onDecision
		m.mu.Unlock()

		m.appendAudit(audit.EventApprovalTimeout, requestCopy, map[string]string{
			"record_id": record.ID,
		})
		m.archiveRecord(record)
		if onDecision != nil {
			onDecision(requestCopy, record)
		}
		return SweepResult{ApprovalID: approvalID, Action: "timeout", Record: record}, true
	}
}

// firingRuleLocked returns the first escalation rule whose trigger fires
// and whose attempt cap is not exhausted, or nil. Caller holds the lock.
func (m *Manager) firingRuleLocked(request *Request, workflow *Workflow, now time.Time) *EscalationRule {
	pendingFor := now.Sub(request.RequestedAt)

	for i := range workflow.EscalationRules {
		rule := &workflow.EscalationRules[i]

		maxAttempts := rule.MaxAttempts
		if maxAttempts <= 0 {
			maxAttempts = 1
		}
		if request.EscalationAttempts >= maxAttempts {
			continue
		}

		trigger := rule.Trigger
		fires := false
		if trigger.TimeoutSeconds > 0 && pendingFor >= time.Duration(trigger.TimeoutSeconds)*time.Second {
			fires = true
		}
		if trigger.RejectionCount > 0 && request.Rejections >= trigger.RejectionCount {
			fires = true
		}
		if trigger.RiskThreshold != "" && request.RiskLevel.AtLeast(trigger.RiskThreshold) {
			fires = true
		}
		// A rule with an empty trigger fires on the workflow timeout
		// itself, which has already elapsed when the sweeper runs.
		if trigger.TimeoutSeconds == 0 && trigger.RejectionCount == 0 && trigger.RiskThreshold == "" {
			fires = true
		}

		if fires {
			return rule
		}
	}
	return nil
}

// Sweeper runs SweepTimeouts on a fixed cadence.
type Sweeper struct {
	manager  *Manager
	cron     *cron.Cron
	interval time.Duration
	running  bool
}

// NewSweeper creates a Sweeper with the given interval.
// Default: 30 seconds.
func NewSweeper(manager *Manager, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Sweeper{
		manager:  manager,
		cron:     cron.New(),
		interval: interval,
	}
}

// Start begins periodic sweeping until the context is cancelled.
func (s *Sweeper) Start(ctx context.Context) error {
	if s.running {
		return nil
	}

	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(spec, func() {
		s.manager.SweepTimeouts()
	}); err != nil {
		return fmt.Errorf("schedule approval sweeper: %w", err)
	}

	s.cron.Start()
	s.running = true

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// Stop halts the cadence and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if !s.running {
		return
	}
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.running = false
}
