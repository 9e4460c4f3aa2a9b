package events

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"veritas-hq/warden/pkg/ident"
)

func newTestStore(cfg Config) (*Store, *ident.FakeClock) {
	clock := ident.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	return New(cfg, ident.NewSequenceSource("ev"), clock), clock
}

func TestStore_AppendAndGet(t *testing.T) {
	s, _ := newTestStore(Config{})

	id := s.Append(AppendParams{
		Type:        "request.completed",
		ExecutionID: "exec-1",
		AgentID:     "support-bot",
		ActorID:     "user-7",
		Data:        map[string]interface{}{"latency_ms": 182},
	})

	event := s.Get(id)
	if event == nil {
		t.Fatal("Get returned nil for appended event")
	}
	if event.Type != "request.completed" || event.ExecutionID != "exec-1" {
		t.Errorf("event = %+v, want appended fields", event)
	}
	if event.Data["latency_ms"] != 182 {
		t.Errorf("data = %v, want latency_ms=182", event.Data)
	}

	if s.Get("no-such-id") != nil {
		t.Error("Get(unknown) != nil")
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}

func TestStore_QueryNewestFirst(t *testing.T) {
	s, clock := newTestStore(Config{})

	for i := 0; i < 5; i++ {
		s.Append(AppendParams{Type: "request.completed", ExecutionID: fmt.Sprintf("exec-%d", i)})
		clock.Advance(time.Second)
	}

	results := s.Query(Filter{Type: "request.completed"})
	if len(results) != 5 {
		t.Fatalf("results = %d, want 5", len(results))
	}
	if results[0].ExecutionID != "exec-4" || results[4].ExecutionID != "exec-0" {
		t.Errorf("order = [%s ... %s], want newest first", results[0].ExecutionID, results[4].ExecutionID)
	}
}

func TestStore_QueryDefaultLimit(t *testing.T) {
	s, _ := newTestStore(Config{})

	for i := 0; i < DefaultQueryLimit+20; i++ {
		s.Append(AppendParams{Type: "request.completed", AgentID: "support-bot"})
	}

	if results := s.Query(Filter{AgentID: "support-bot"}); len(results) != DefaultQueryLimit {
		t.Errorf("results = %d, want default limit %d", len(results), DefaultQueryLimit)
	}
	if results := s.Query(Filter{AgentID: "support-bot", Limit: 7}); len(results) != 7 {
		t.Errorf("limited results = %d, want 7", len(results))
	}
}

func TestStore_QueryFilters(t *testing.T) {
	s, clock := newTestStore(Config{})

	s.Append(AppendParams{Type: "request.completed", ExecutionID: "exec-1", AgentID: "a", ActorID: "alice"})
	clock.Advance(time.Minute)
	cutoff := clock.Now()
	s.Append(AppendParams{Type: "request.blocked", ExecutionID: "exec-2", AgentID: "a", ActorID: "bob"})
	s.Append(AppendParams{Type: "request.completed", ExecutionID: "exec-3", AgentID: "b", ActorID: "alice"})

	tests := []struct {
		name   string
		filter Filter
		want   []string // execution ids, newest first
	}{
		{"by execution", Filter{ExecutionID: "exec-2"}, []string{"exec-2"}},
		{"by agent", Filter{AgentID: "a"}, []string{"exec-2", "exec-1"}},
		{"by actor", Filter{ActorID: "alice"}, []string{"exec-3", "exec-1"}},
		{"by type", Filter{Type: "request.completed"}, []string{"exec-3", "exec-1"}},
		{"agent and type", Filter{AgentID: "a", Type: "request.completed"}, []string{"exec-1"}},
		{"since", Filter{Since: cutoff}, []string{"exec-3", "exec-2"}},
		{"no match", Filter{AgentID: "missing"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := s.Query(tt.filter)
			if len(results) != len(tt.want) {
				t.Fatalf("results = %d, want %d", len(results), len(tt.want))
			}
			for i, want := range tt.want {
				if results[i].ExecutionID != want {
					t.Errorf("results[%d] = %s, want %s", i, results[i].ExecutionID, want)
				}
			}
		})
	}
}

func TestStore_RetentionCap(t *testing.T) {
	s, _ := newTestStore(Config{MaxEvents: 3})

	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, s.Append(AppendParams{Type: "request.completed", AgentID: "a"}))
	}

	if s.Len() != 3 {
		t.Errorf("Len = %d, want 3 after cap", s.Len())
	}
	if s.Get(ids[0]) != nil {
		t.Error("oldest event survived the cap")
	}
	if s.Get(ids[4]) == nil {
		t.Error("newest event missing")
	}

	// Dropped events never surface through indexed queries.
	results := s.Query(Filter{AgentID: "a"})
	if len(results) != 3 {
		t.Errorf("query results = %d, want 3", len(results))
	}
}

func TestStore_AppendIsConcurrencySafe(t *testing.T) {
	s := New(Config{}, nil, nil)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				s.Append(AppendParams{Type: "request.completed", AgentID: fmt.Sprintf("agent-%d", g)})
			}
		}(g)
	}
	wg.Wait()

	if s.Len() != 400 {
		t.Errorf("Len = %d, want 400", s.Len())
	}
}

func TestStore_CloneIsolation(t *testing.T) {
	s, _ := newTestStore(Config{})
	id := s.Append(AppendParams{Type: "request.completed", Data: map[string]interface{}{"k": "v"}})

	got := s.Get(id)
	got.Data["k"] = "mutated"

	if again := s.Get(id); again.Data["k"] != "v" {
		t.Error("caller mutation leaked into the store")
	}
}

func BenchmarkStore_Append(b *testing.B) {
	s := New(Config{}, nil, nil)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Append(AppendParams{Type: "request.completed", ExecutionID: "exec", AgentID: "agent"})
	}
}
