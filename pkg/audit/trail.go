package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"veritas-hq/warden/pkg/ident"
)

// Mirror receives a copy of every appended entry for durable storage.
// Mirror writes are asynchronous and best-effort; the in-memory chain
// remains authoritative for verification.
type Mirror interface {
	Store(ctx context.Context, entry *Entry) error
}

// ErrNoSecret is returned when a Trail is constructed without an HMAC
// secret. The trail refuses to start rather than mint unsigned entries.
var ErrNoSecret = errors.New("audit trail requires a non-empty HMAC secret")

// Config contains configuration for the Trail.
type Config struct {
	// Secret is the HMAC signing secret. Required.
	Secret string

	// Mirror, when set, receives async copies of appended entries.
	Mirror Mirror

	// MirrorBuffer is the async mirror channel size.
	// Default: 1000
	MirrorBuffer int

	// MirrorTimeout bounds each mirror write.
	// Default: 5 seconds
	MirrorTimeout time.Duration
}

// AppendParams carries the inputs to Append.
type AppendParams struct {
	EventType EventType
	RequestID string
	AgentID   string
	ActorID   string
	Details   map[string]string
}

// Trail is the append-only, hash-chained audit log.
type Trail struct {
	mu      sync.Mutex
	entries []*Entry
	secret  []byte

	ids    ident.IDSource
	clock  ident.Clock
	logger *slog.Logger

	mirror        Mirror
	mirrorChan    chan *Entry
	mirrorTimeout time.Duration
	done          chan struct{}
	wg            sync.WaitGroup
}

// New creates a Trail. It fails with ErrNoSecret when cfg.Secret is empty.
func New(cfg Config, ids ident.IDSource, clock ident.Clock) (*Trail, error) {
	if cfg.Secret == "" {
		return nil, ErrNoSecret
	}
	if ids == nil {
		ids = ident.NewUUIDSource()
	}
	if clock == nil {
		clock = ident.NewSystemClock()
	}

	t := &Trail{
		secret: []byte(cfg.Secret),
		ids:    ids,
		clock:  clock,
		logger: slog.Default().With("component", "audit.trail"),
		done:   make(chan struct{}),
	}

	if cfg.Mirror != nil {
		buffer := cfg.MirrorBuffer
		if buffer <= 0 {
			buffer = 1000
		}
		timeout := cfg.MirrorTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}

		t.mirror = cfg.Mirror
		t.mirrorChan = make(chan *Entry, buffer)
		t.mirrorTimeout = timeout

		t.wg.Add(1)
		go t.mirrorWorker()
	}

	return t, nil
}

// Append creates, hashes, signs, and appends one entry, returning a copy.
// The append-and-hash step is the chain's serialization point.
func (t *Trail) Append(params AppendParams) (*Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry := &Entry{
		Sequence:  uint64(len(t.entries)) + 1,
		EventID:   t.ids.NewID(),
		EventType: params.EventType,
		Timestamp: t.clock.Now().UTC(),
		RequestID: params.RequestID,
		AgentID:   params.AgentID,
		ActorID:   params.ActorID,
	}
	if params.Details != nil {
		entry.Details = make(map[string]string, len(params.Details))
		for k, v := range params.Details {
			entry.Details[k] = v
		}
	}

	if len(t.entries) > 0 {
		entry.PreviousHash = t.entries[len(t.entries)-1].Hash
	}

	hash, err := computeHash(entry)
	if err != nil {
		return nil, err
	}
	entry.Hash = hash
	entry.Signature = sign(t.secret, hash)

	t.entries = append(t.entries, entry)

	if t.mirrorChan != nil {
		select {
		case t.mirrorChan <- entry.clone():
		default:
			// Mirror saturated: the chain stays authoritative, so a
			// dropped mirror write costs durability, not correctness.
			t.logger.Warn("audit mirror buffer full, dropping mirror write",
				"sequence", entry.Sequence,
				"event_type", entry.EventType,
			)
		}
	}

	return entry.clone(), nil
}

// Len returns the number of entries on the chain.
func (t *Trail) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// snapshot copies the entry slice under the lock. Entries themselves are
// frozen after append, so sharing the pointers is safe for verification;
// read APIs that hand entries to callers clone them.
func (t *Trail) snapshot() []*Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := make([]*Entry, len(t.entries))
	copy(snap, t.entries)
	return snap
}

// VerifyIntegrity walks the whole chain and reports every broken
// invariant: recomputed-hash mismatches, previous-hash breaks, sequence
// gaps, and signatures that fail under the configured secret.
func (t *Trail) VerifyIntegrity() IntegrityReport {
	return VerifyEntries(t.secret, t.snapshot(), t.clock.Now().UTC())
}

// VerifyEntries checks a chain-ordered entry sequence against a secret
// without a live Trail, for offline verification of mirrored entries.
func VerifyEntries(secret []byte, entries []*Entry, verifiedAt time.Time) IntegrityReport {
	report := IntegrityReport{
		Entries:    len(entries),
		VerifiedAt: verifiedAt,
	}

	for i, entry := range entries {
		wantSeq := uint64(i) + 1
		if entry.Sequence != wantSeq {
			report.Issues = append(report.Issues, Issue{
				Sequence: entry.Sequence,
				Kind:     IssueSequenceMismatch,
				Message:  fmt.Sprintf("entry at index %d has sequence %d, want %d", i, entry.Sequence, wantSeq),
			})
		}

		recomputed, err := computeHash(entry)
		if err != nil || recomputed != entry.Hash {
			report.Issues = append(report.Issues, Issue{
				Sequence: entry.Sequence,
				Kind:     IssueHashMismatch,
				Message:  fmt.Sprintf("entry %d hash does not match its fields", entry.Sequence),
			})
		}

		if i == 0 {
			if entry.PreviousHash != "" {
				report.Issues = append(report.Issues, Issue{
					Sequence: entry.Sequence,
					Kind:     IssueChainBreak,
					Message:  "first entry has a non-empty previous hash",
				})
			}
		} else if entry.PreviousHash != entries[i-1].Hash {
			report.Issues = append(report.Issues, Issue{
				Sequence: entry.Sequence,
				Kind:     IssueChainBreak,
				Message:  fmt.Sprintf("entry %d previous hash does not match entry %d", entry.Sequence, entries[i-1].Sequence),
			})
		}

		if !verifySignature(secret, entry.Hash, entry.Signature) {
			report.Issues = append(report.Issues, Issue{
				Sequence: entry.Sequence,
				Kind:     IssueInvalidSignature,
				Message:  fmt.Sprintf("entry %d signature does not verify", entry.Sequence),
			})
		}
	}

	report.Valid = len(report.Issues) == 0
	return report
}

// VerifyEntry checks one entry in isolation: its hash against its fields
// and its signature against the trail secret. Chain position is not
// checked; use VerifyIntegrity for that.
func (t *Trail) VerifyEntry(entry *Entry) bool {
	recomputed, err := computeHash(entry)
	if err != nil || recomputed != entry.Hash {
		return false
	}
	return verifySignature(t.secret, entry.Hash, entry.Signature)
}

// ChainOfCustody returns copies of every entry bound to the request id,
// in chain order.
func (t *Trail) ChainOfCustody(requestID string) []*Entry {
	return t.Query(QueryFilter{RequestID: requestID})
}

// Query returns copies of entries matching the filter, in chain order,
// bounded by filter.Limit when set.
func (t *Trail) Query(filter QueryFilter) []*Entry {
	entries := t.snapshot()

	var results []*Entry
	for _, entry := range entries {
		if !matches(entry, filter) {
			continue
		}
		results = append(results, entry.clone())
		if filter.Limit > 0 && len(results) >= filter.Limit {
			break
		}
	}
	return results
}

func matches(e *Entry, f QueryFilter) bool {
	if f.EventType != "" && e.EventType != f.EventType {
		return false
	}
	if f.RequestID != "" && e.RequestID != f.RequestID {
		return false
	}
	if f.AgentID != "" && e.AgentID != f.AgentID {
		return false
	}
	if f.ActorID != "" && e.ActorID != f.ActorID {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !e.Timestamp.Before(f.Until) {
		return false
	}
	return true
}

// Close drains the mirror channel and stops the worker.
func (t *Trail) Close() error {
	if t.mirrorChan == nil {
		return nil
	}
	close(t.done)
	t.wg.Wait()
	return nil
}

// mirrorWorker drains the mirror channel in the background.
func (t *Trail) mirrorWorker() {
	defer t.wg.Done()

	for {
		select {
		case entry := <-t.mirrorChan:
			t.writeMirror(entry)

		case <-t.done:
			for {
				select {
				case entry := <-t.mirrorChan:
					t.writeMirror(entry)
				default:
					return
				}
			}
		}
	}
}

func (t *Trail) writeMirror(entry *Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), t.mirrorTimeout)
	defer cancel()

	if err := t.mirror.Store(ctx, entry); err != nil {
		t.logger.Error("failed to mirror audit entry",
			"sequence", entry.Sequence,
			"event_type", entry.EventType,
			"error", err,
		)
	}
}
