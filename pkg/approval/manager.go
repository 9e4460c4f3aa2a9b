package approval

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"

	"veritas-hq/warden/pkg/audit"
	"veritas-hq/warden/pkg/ident"
	"veritas-hq/warden/pkg/registry"
)

// Archive durably stores decision records. Writes are best-effort; the
// manager keeps records in memory regardless.
type Archive interface {
	Store(ctx context.Context, record *DecisionRecord) error
}

// DecisionFunc observes terminal transitions. The executor registers one
// to resume or finalize suspended pipelines.
type DecisionFunc func(request *Request, record *DecisionRecord)

// EnqueueParams carries the inputs to Enqueue.
type EnqueueParams struct {
	ExecutionID string
	AgentID     string
	RequestedBy ident.Identity
	Prompt      string
	Reason      string
	PolicyID    string
	WorkflowID  string
	RiskLevel   registry.RiskLevel
}

// Manager owns the approval queue, the workflow table, and the decision
// records.
type Manager struct {
	mu        sync.Mutex
	workflows map[string]*Workflow
	requests  map[string]*Request
	order     []string // FIFO enqueue order of ids
	records   map[string]*DecisionRecord

	trail   *audit.Trail
	archive Archive
	ids     ident.IDSource
	clock   ident.Clock
	logger  *slog.Logger

	onDecision DecisionFunc
}

// NewManager creates a Manager. The audit trail is required; archive may
// be nil.
func NewManager(trail *audit.Trail, archive Archive, ids ident.IDSource, clock ident.Clock) *Manager {
	if ids == nil {
		ids = ident.NewUUIDSource()
	}
	if clock == nil {
		clock = ident.NewSystemClock()
	}
	return &Manager{
		workflows: make(map[string]*Workflow),
		requests:  make(map[string]*Request),
		records:   make(map[string]*DecisionRecord),
		trail:     trail,
		archive:   archive,
		ids:       ids,
		clock:     clock,
		logger:    slog.Default().With("component", "approval.manager"),
	}
}

// RegisterWorkflow installs or replaces a workflow definition.
func (m *Manager) RegisterWorkflow(workflow Workflow) error {
	if workflow.ID == "" {
		return fmt.Errorf("workflow id is required")
	}
	if workflow.TimeoutAction == "" {
		workflow.TimeoutAction = TimeoutReject
	}
	if workflow.RequiredApprovals <= 0 {
		workflow.RequiredApprovals = 1
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.workflows[workflow.ID] = &workflow
	return nil
}

// OnDecision registers the terminal-transition observer.
func (m *Manager) OnDecision(fn DecisionFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDecision = fn
}

// Enqueue creates a pending approval bound to the given workflow.
func (m *Manager) Enqueue(params EnqueueParams) (*Request, error) {
	m.mu.Lock()

	workflow, ok := m.workflows[params.WorkflowID]
	if !ok {
		m.mu.Unlock()
		return nil, &ErrWorkflowNotFound{WorkflowID: params.WorkflowID}
	}

	request := &Request{
		ID:            m.ids.NewID(),
		ExecutionID:   params.ExecutionID,
		AgentID:       params.AgentID,
		RequestedBy:   params.RequestedBy,
		Prompt:        params.Prompt,
		Reason:        params.Reason,
		PolicyID:      params.PolicyID,
		WorkflowID:    workflow.ID,
		Status:        StatusPending,
		RiskLevel:     params.RiskLevel,
		ApproverRoles: append([]string(nil), workflow.ApproverRoles...),
		RequestedAt:   m.clock.Now(),
		Context: map[string]string{
			"timeout_seconds": strconv.Itoa(workflow.TimeoutSeconds),
			"risk_level":      string(params.RiskLevel),
		},
	}

	m.requests[request.ID] = request
	m.order = append(m.order, request.ID)
	returned := request.clone()

	m.mu.Unlock()

	m.appendAudit(audit.EventApprovalRequested, request, map[string]string{
		"workflow_id": workflow.ID,
		"policy_id":   params.PolicyID,
		"reason":      params.Reason,
	})

	m.logger.Info("approval enqueued",
		"approval_id", request.ID,
		"execution_id", request.ExecutionID,
		"workflow_id", workflow.ID,
	)

	return returned, nil
}

// Get returns a copy of the approval, or nil when unknown.
func (m *Manager) Get(id string) *Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	request, ok := m.requests[id]
	if !ok {
		return nil
	}
	return request.clone()
}

// GetPending returns up to limit pending approvals, oldest first. A zero
// limit returns all of them.
func (m *Manager) GetPending(limit int) []*Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	var results []*Request
	for _, id := range m.order {
		request := m.requests[id]
		if request.Status != StatusPending {
			continue
		}
		results = append(results, request.clone())
		if limit > 0 && len(results) >= limit {
			break
		}
	}
	return results
}

// Record returns the decision record for an approval, or nil when the
// approval is not terminal yet.
func (m *Manager) Record(approvalID string) *DecisionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[approvalID]
}

// Approve finalizes a pending approval as approved. On an already-terminal
// approval it returns the existing decision record unchanged.
func (m *Manager) Approve(approvalID string, reviewer ident.Identity, rationale string) (*DecisionRecord, error) {
	return m.decide(approvalID, reviewer, rationale, true)
}

// Reject finalizes a pending approval as rejected, symmetric to Approve.
func (m *Manager) Reject(approvalID string, reviewer ident.Identity, rationale string) (*DecisionRecord, error) {
	return m.decide(approvalID, reviewer, rationale, false)
}

func (m *Manager) decide(approvalID string, reviewer ident.Identity, rationale string, approve bool) (*DecisionRecord, error) {
	m.mu.Lock()

	request, ok := m.requests[approvalID]
	if !ok {
		m.mu.Unlock()
		return nil, &ErrApprovalNotFound{ApprovalID: approvalID}
	}

	if request.Status.Terminal() {
		record := m.records[approvalID]
		m.mu.Unlock()
		return record, nil
	}

	workflow := m.workflows[request.WorkflowID]

	if !slices.Contains(request.ApproverRoles, reviewer.ActorRole) {
		m.mu.Unlock()
		return nil, &ErrNotAuthorized{ApprovalID: approvalID, Role: reviewer.ActorRole}
	}
	if workflow.RequireRationale && rationale == "" {
		m.mu.Unlock()
		return nil, &ErrMissingRationale{ApprovalID: approvalID}
	}

	now := m.clock.Now()
	request.ReviewedAt = &now
	request.ReviewedBy = reviewer.ActorID
	request.Comment = rationale

	outcome := OutcomeApproved
	eventType := audit.EventApprovalApproved
	if approve {
		request.Status = StatusApproved
	} else {
		request.Status = StatusRejected
		request.Rejections++
		outcome = OutcomeRejected
		eventType = audit.EventApprovalRejected
	}

	record := m.mintRecordLocked(request, outcome, reviewer.ActorID, reviewer.ActorRole, rationale)
	requestCopy := request.clone()
	onDecision := m.onDecision

	m.mu.Unlock()

	m.appendAudit(eventType, requestCopy, map[string]string{
		"reviewer":  reviewer.ActorID,
		"role":      reviewer.ActorRole,
		"rationale": rationale,
		"record_id": record.ID,
	})
	m.archiveRecord(record)

	if onDecision != nil {
		onDecision(requestCopy, record)
	}

	m.logger.Info("approval decided",
		"approval_id", approvalID,
		"outcome", record.Outcome,
		"reviewer", reviewer.ActorID,
	)

	return record, nil
}

// Cancel withdraws a pending approval (e.g., the caller gave up waiting).
// Terminal approvals are left untouched.
func (m *Manager) Cancel(approvalID string) (*DecisionRecord, error) {
	m.mu.Lock()

	request, ok := m.requests[approvalID]
	if !ok {
		m.mu.Unlock()
		return nil, &ErrApprovalNotFound{ApprovalID: approvalID}
	}
	if request.Status.Terminal() {
		record := m.records[approvalID]
		m.mu.Unlock()
		return record, nil
	}

	now := m.clock.Now()
	request.Status = StatusCancelled
	request.ReviewedAt = &now
	request.ReviewedBy = "system"

	record := m.mintRecordLocked(request, OutcomeCancelled, "system", "", "cancelled by requester")
	requestCopy := request.clone()
	onDecision := m.onDecision

	m.mu.Unlock()

	m.appendAudit(audit.EventApprovalRejected, requestCopy, map[string]string{
		"record_id": record.ID,
		"cancelled": "true",
	})
	m.archiveRecord(record)

	if onDecision != nil {
		onDecision(requestCopy, record)
	}

	return record, nil
}

// PendingCount returns the number of pending approvals.
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, id := range m.order {
		if m.requests[id].Status == StatusPending {
			count++
		}
	}
	return count
}

// mintRecordLocked creates and stores the decision record for a terminal
// transition. Caller holds the lock.
func (m *Manager) mintRecordLocked(request *Request, outcome Outcome, decidedBy, role, rationale string) *DecisionRecord {
	rejections := request.Rejections
	if outcome == OutcomeRejected && rejections > 0 {
		// The rejection being minted is not "prior" to itself.
		rejections--
	}
	var prior []string
	for i := 0; i < rejections; i++ {
		prior = append(prior, "rejection")
	}
	for i := 0; i < request.EscalationAttempts; i++ {
		prior = append(prior, "escalation")
	}

	snapshot := make(map[string]string, len(request.Context))
	for k, v := range request.Context {
		snapshot[k] = v
	}

	record := &DecisionRecord{
		ID:              m.ids.NewID(),
		ApprovalID:      request.ID,
		Outcome:         outcome,
		DecidedAt:       m.clock.Now(),
		DecidedBy:       decidedBy,
		DecidedByRole:   role,
		Rationale:       rationale,
		RiskLevel:       request.RiskLevel,
		WorkflowID:      request.WorkflowID,
		ContextSnapshot: snapshot,
		PriorEvents:     prior,
	}

	m.records[request.ID] = record
	return record
}

func (m *Manager) appendAudit(eventType audit.EventType, request *Request, details map[string]string) {
	if m.trail == nil {
		return
	}
	if details == nil {
		details = make(map[string]string)
	}
	details["approval_id"] = request.ID

	if _, err := m.trail.Append(audit.AppendParams{
		EventType: eventType,
		RequestID: request.ExecutionID,
		AgentID:   request.AgentID,
		ActorID:   request.RequestedBy.ActorID,
		Details:   details,
	}); err != nil {
		m.logger.Error("failed to append approval audit entry",
			"approval_id", request.ID,
			"event_type", eventType,
			"error", err,
		)
	}
}

func (m *Manager) archiveRecord(record *DecisionRecord) {
	if m.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), archiveWriteTimeout)
	defer cancel()

	if err := m.archive.Store(ctx, record); err != nil {
		m.logger.Error("failed to archive decision record",
			"record_id", record.ID,
			"approval_id", record.ApprovalID,
			"error", err,
		)
	}
}
