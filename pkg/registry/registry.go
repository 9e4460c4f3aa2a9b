package registry

import (
	"log/slog"
	"sort"
	"sync"

	"veritas-hq/warden/pkg/ident"
)

// RegisterParams carries the inputs to Register.
type RegisterParams struct {
	Name               string
	Model              string
	Environment        Environment
	RiskLevel          RiskLevel
	PolicyIDs          []string
	RateLimitPerMinute int
	CostCapUSD         float64
	Metadata           map[string]string
	CreatedBy          string
}

// UpdateParams carries a field-wise patch for Update. Nil fields are left
// unchanged. ID, CreatedAt, and CreatedBy cannot be patched.
type UpdateParams struct {
	Name               *string
	Model              *string
	Environment        *Environment
	RiskLevel          *RiskLevel
	Status             *Status
	PolicyIDs          []string
	RateLimitPerMinute *int
	CostCapUSD         *float64
	Metadata           map[string]string
}

// ListFilter selects agents for List.
type ListFilter struct {
	// Environment filters to one environment when non-empty.
	Environment Environment

	// RiskLevel filters to one risk level when non-empty.
	RiskLevel RiskLevel

	// ActiveOnly restricts the listing to active agents. Most callers
	// want this; admin tooling passes false to see everything.
	ActiveOnly bool
}

// Registry is the in-memory agent catalog.
type Registry struct {
	mu      sync.RWMutex
	agents  map[string]*Agent
	buckets map[string]*tokenBucket

	clock  ident.Clock
	logger *slog.Logger
}

// New creates an empty Registry.
func New(clock ident.Clock) *Registry {
	if clock == nil {
		clock = ident.NewSystemClock()
	}
	return &Registry{
		agents:  make(map[string]*Agent),
		buckets: make(map[string]*tokenBucket),
		clock:   clock,
		logger:  slog.Default().With("component", "registry"),
	}
}

// Register validates params, derives the slug id, and stores a new active
// agent. Fails with ErrDuplicateAgent when the slug is already taken.
func (r *Registry) Register(params RegisterParams) (*Agent, error) {
	id := Slug(params.Name)
	if id == "" {
		return nil, &ErrInvalidName{Name: params.Name}
	}

	if params.RiskLevel == "" {
		params.RiskLevel = RiskMedium
	}
	if !params.RiskLevel.Valid() {
		return nil, &ErrInvalidRiskLevel{RiskLevel: params.RiskLevel}
	}

	if params.Environment == "" {
		params.Environment = EnvDev
	}
	if !params.Environment.Valid() {
		return nil, &ErrInvalidEnvironment{Environment: params.Environment}
	}

	now := r.clock.Now()
	agent := &Agent{
		ID:                 id,
		Name:               params.Name,
		Model:              params.Model,
		Environment:        params.Environment,
		Status:             StatusActive,
		RiskLevel:          params.RiskLevel,
		PolicyIDs:          append([]string(nil), params.PolicyIDs...),
		RateLimitPerMinute: params.RateLimitPerMinute,
		CostCapUSD:         params.CostCapUSD,
		CreatedAt:          now,
		CreatedBy:          params.CreatedBy,
		UpdatedAt:          now,
	}
	if params.Metadata != nil {
		agent.Metadata = make(map[string]string, len(params.Metadata))
		for k, v := range params.Metadata {
			agent.Metadata[k] = v
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[id]; exists {
		return nil, &ErrDuplicateAgent{ID: id}
	}

	r.agents[id] = agent
	if agent.RateLimitPerMinute > 0 {
		r.buckets[id] = newTokenBucket(agent.RateLimitPerMinute, r.clock)
	}

	r.logger.Info("agent registered",
		"agent_id", id,
		"environment", agent.Environment,
		"risk_level", agent.RiskLevel,
		"created_by", agent.CreatedBy,
	)

	return agent.clone(), nil
}

// Get returns a copy of the agent, or nil when unknown.
func (r *Registry) Get(id string) *Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agent, ok := r.agents[id]
	if !ok {
		return nil
	}
	return agent.clone()
}

// List returns copies of agents matching the filter, sorted by id.
func (r *Registry) List(filter ListFilter) []*Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	results := make([]*Agent, 0, len(r.agents))
	for _, agent := range r.agents {
		if filter.ActiveOnly && agent.Status != StatusActive {
			continue
		}
		if filter.Environment != "" && agent.Environment != filter.Environment {
			continue
		}
		if filter.RiskLevel != "" && agent.RiskLevel != filter.RiskLevel {
			continue
		}
		results = append(results, agent.clone())
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].ID < results[j].ID
	})

	return results
}

// Update applies a field-wise patch and returns the updated agent.
func (r *Registry) Update(id string, patch UpdateParams) (*Agent, error) {
	if patch.RiskLevel != nil && !patch.RiskLevel.Valid() {
		return nil, &ErrInvalidRiskLevel{RiskLevel: *patch.RiskLevel}
	}
	if patch.Environment != nil && !patch.Environment.Valid() {
		return nil, &ErrInvalidEnvironment{Environment: *patch.Environment}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[id]
	if !ok {
		return nil, &ErrAgentNotFound{ID: id}
	}

	if patch.Name != nil {
		agent.Name = *patch.Name
	}
	if patch.Model != nil {
		agent.Model = *patch.Model
	}
	if patch.Environment != nil {
		agent.Environment = *patch.Environment
	}
	if patch.RiskLevel != nil {
		agent.RiskLevel = *patch.RiskLevel
	}
	if patch.Status != nil {
		agent.Status = *patch.Status
	}
	if patch.PolicyIDs != nil {
		agent.PolicyIDs = append([]string(nil), patch.PolicyIDs...)
	}
	if patch.RateLimitPerMinute != nil {
		agent.RateLimitPerMinute = *patch.RateLimitPerMinute
		if *patch.RateLimitPerMinute > 0 {
			r.buckets[id] = newTokenBucket(*patch.RateLimitPerMinute, r.clock)
		} else {
			delete(r.buckets, id)
		}
	}
	if patch.CostCapUSD != nil {
		agent.CostCapUSD = *patch.CostCapUSD
	}
	if patch.Metadata != nil {
		agent.Metadata = make(map[string]string, len(patch.Metadata))
		for k, v := range patch.Metadata {
			agent.Metadata[k] = v
		}
	}

	agent.UpdatedAt = r.clock.Now()

	r.logger.Info("agent updated", "agent_id", id)

	return agent.clone(), nil
}

// Deactivate marks the agent inactive. Inactive agents are retained so
// audit entries keep resolving; they simply stop executing.
func (r *Registry) Deactivate(id string) error {
	return r.setStatus(id, StatusInactive)
}

// Activate marks the agent active again.
func (r *Registry) Activate(id string) error {
	return r.setStatus(id, StatusActive)
}

func (r *Registry) setStatus(id string, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[id]
	if !ok {
		return &ErrAgentNotFound{ID: id}
	}

	agent.Status = status
	agent.UpdatedAt = r.clock.Now()

	r.logger.Info("agent status changed", "agent_id", id, "status", status)
	return nil
}

// Delete removes the agent entirely. This is an admin-only escape hatch;
// normal decommissioning goes through Deactivate so historical audit
// entries keep resolving.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.agents[id]; !ok {
		return &ErrAgentNotFound{ID: id}
	}

	delete(r.agents, id)
	delete(r.buckets, id)

	r.logger.Warn("agent deleted", "agent_id", id)
	return nil
}

// Allow consumes one rate-cap token for the agent. Uncapped agents always
// pass. Returns ErrRateLimited when the cap is exhausted and
// ErrAgentNotFound for unknown agents.
func (r *Registry) Allow(id string) error {
	r.mu.RLock()
	bucket, hasBucket := r.buckets[id]
	_, known := r.agents[id]
	r.mu.RUnlock()

	if !known {
		return &ErrAgentNotFound{ID: id}
	}
	if !hasBucket {
		return nil
	}
	if !bucket.take() {
		return &ErrRateLimited{ID: id}
	}
	return nil
}

// Remaining returns how many requests the agent may still make in the
// current window, or -1 for uncapped agents.
func (r *Registry) Remaining(id string) int {
	r.mu.RLock()
	bucket, ok := r.buckets[id]
	r.mu.RUnlock()

	if !ok {
		return -1
	}
	return bucket.remaining()
}

// Count returns the number of registered agents, regardless of status.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}
