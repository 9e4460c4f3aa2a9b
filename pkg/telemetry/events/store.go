package events

import (
	"sync"
	"time"

	"veritas-hq/warden/pkg/ident"
)

// DefaultQueryLimit bounds queries that do not specify their own limit.
const DefaultQueryLimit = 100

// Event is one observability record.
type Event struct {
	// ID is the event id.
	ID string `json:"id"`

	// Type tags the event (request.completed, approval.requested, ...).
	Type string `json:"type"`

	// Timestamp is when the event was recorded.
	Timestamp time.Time `json:"timestamp"`

	// ExecutionID binds the event to one pipeline run.
	ExecutionID string `json:"execution_id,omitempty"`

	// AgentID is the agent involved, if any.
	AgentID string `json:"agent_id,omitempty"`

	// ActorID is the principal involved, if any.
	ActorID string `json:"actor_id,omitempty"`

	// Data is the free-form event payload.
	Data map[string]interface{} `json:"data,omitempty"`
}

func (e *Event) clone() *Event {
	copied := *e
	if e.Data != nil {
		copied.Data = make(map[string]interface{}, len(e.Data))
		for k, v := range e.Data {
			copied.Data[k] = v
		}
	}
	return &copied
}

// Filter selects events for Query. Zero-valued fields match everything.
type Filter struct {
	// Type restricts to one event type.
	Type string

	// ExecutionID restricts to one pipeline run.
	ExecutionID string

	// AgentID restricts to one agent.
	AgentID string

	// ActorID restricts to one principal.
	ActorID string

	// Since restricts to events at or after this instant.
	Since time.Time

	// Limit caps the result size. Zero means DefaultQueryLimit.
	Limit int
}

// Store is the append-only indexed event log.
type Store struct {
	mu     sync.RWMutex
	events []*Event

	byExecution map[string][]int
	byAgent     map[string][]int
	byActor     map[string][]int
	byType      map[string][]int

	ids   ident.IDSource
	clock ident.Clock

	// maxEvents bounds memory; oldest events fall out of query results
	// once exceeded. Zero means unbounded.
	maxEvents int

	// droppedBelow marks the lowest retained index. Indexes stay stable
	// so the per-key index slices remain valid.
	droppedBelow int
}

// Config contains configuration for the Store.
type Config struct {
	// MaxEvents bounds retained events. Oldest are dropped first.
	// Default: 100000. Zero or negative keeps the default; use
	// Unbounded to disable the cap.
	MaxEvents int
}

// Unbounded disables the retained-event cap.
const Unbounded = -1

// New creates a Store.
func New(cfg Config, ids ident.IDSource, clock ident.Clock) *Store {
	if ids == nil {
		ids = ident.NewUUIDSource()
	}
	if clock == nil {
		clock = ident.NewSystemClock()
	}

	maxEvents := cfg.MaxEvents
	if maxEvents == 0 {
		maxEvents = 100000
	}
	if maxEvents < 0 {
		maxEvents = 0
	}

	return &Store{
		byExecution: make(map[string][]int),
		byAgent:     make(map[string][]int),
		byActor:     make(map[string][]int),
		byType:      make(map[string][]int),
		ids:         ids,
		clock:       clock,
		maxEvents:   maxEvents,
	}
}

// AppendParams carries the inputs to Append.
type AppendParams struct {
	Type        string
	ExecutionID string
	AgentID     string
	ActorID     string
	Data        map[string]interface{}
}

// Append records one event and returns its id. It never fails; an event
// the store cannot keep is simply not retained.
func (s *Store) Append(params AppendParams) string {
	event := &Event{
		ID:          s.ids.NewID(),
		Type:        params.Type,
		Timestamp:   s.clock.Now(),
		ExecutionID: params.ExecutionID,
		AgentID:     params.AgentID,
		ActorID:     params.ActorID,
	}
	if params.Data != nil {
		event.Data = make(map[string]interface{}, len(params.Data))
		for k, v := range params.Data {
			event.Data[k] = v
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	index := len(s.events)
	s.events = append(s.events, event)

	if event.ExecutionID != "" {
		s.byExecution[event.ExecutionID] = append(s.byExecution[event.ExecutionID], index)
	}
	if event.AgentID != "" {
		s.byAgent[event.AgentID] = append(s.byAgent[event.AgentID], index)
	}
	if event.ActorID != "" {
		s.byActor[event.ActorID] = append(s.byActor[event.ActorID], index)
	}
	if event.Type != "" {
		s.byType[event.Type] = append(s.byType[event.Type], index)
	}

	if s.maxEvents > 0 && len(s.events)-s.droppedBelow > s.maxEvents {
		s.drop(len(s.events) - s.maxEvents)
	}

	return event.ID
}

func (s *Store) drop(below int) {
	for i := s.droppedBelow; i < below; i++ {
		s.events[i] = nil
	}
	s.droppedBelow = below
}

// Get returns one event by id, or nil. O(n) scan; the id lookup is not
// on any hot path.
func (s *Store) Get(id string) *Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.events) - 1; i >= s.droppedBelow; i-- {
		if s.events[i] != nil && s.events[i].ID == id {
			return s.events[i].clone()
		}
	}
	return nil
}

// Query returns events matching the filter, newest first, bounded by
// the filter's limit (default 100).
func (s *Store) Query(filter Filter) []*Event {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	indexes := s.candidateIndexes(filter)

	var results []*Event
	for i := len(indexes) - 1; i >= 0 && len(results) < limit; i-- {
		event := s.events[indexes[i]]
		if event == nil {
			continue
		}
		if !matches(event, filter) {
			continue
		}
		results = append(results, event.clone())
	}
	return results
}

// candidateIndexes picks the narrowest index covering the filter, or the
// full log when no indexed field is set. Caller holds the lock.
func (s *Store) candidateIndexes(filter Filter) []int {
	var narrowest []int
	found := false

	consider := func(indexes []int, ok bool) {
		if !ok {
			return
		}
		if !found || len(indexes) < len(narrowest) {
			narrowest = indexes
			found = true
		}
	}

	if filter.ExecutionID != "" {
		consider(s.byExecution[filter.ExecutionID], true)
	}
	if filter.AgentID != "" {
		consider(s.byAgent[filter.AgentID], true)
	}
	if filter.ActorID != "" {
		consider(s.byActor[filter.ActorID], true)
	}
	if filter.Type != "" {
		consider(s.byType[filter.Type], true)
	}

	if found {
		return narrowest
	}

	all := make([]int, 0, len(s.events)-s.droppedBelow)
	for i := s.droppedBelow; i < len(s.events); i++ {
		all = append(all, i)
	}
	return all
}

func matches(event *Event, filter Filter) bool {
	if filter.Type != "" && event.Type != filter.Type {
		return false
	}
	if filter.ExecutionID != "" && event.ExecutionID != filter.ExecutionID {
		return false
	}
	if filter.AgentID != "" && event.AgentID != filter.AgentID {
		return false
	}
	if filter.ActorID != "" && event.ActorID != filter.ActorID {
		return false
	}
	if !filter.Since.IsZero() && event.Timestamp.Before(filter.Since) {
		return false
	}
	return true
}

// Len returns the number of retained events.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events) - s.droppedBelow
}
