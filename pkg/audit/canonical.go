package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// preimage is the canonical shape hashed for each entry: every Entry field
// except Hash and Signature, in fixed declaration order. encoding/json
// emits struct fields in declaration order and map keys sorted, so the
// byte form is deterministic and whitespace-free.
type preimage struct {
	Sequence     uint64            `json:"sequence"`
	EventID      string            `json:"event_id"`
	EventType    EventType         `json:"event_type"`
	Timestamp    string            `json:"timestamp"`
	RequestID    string            `json:"request_id"`
	AgentID      string            `json:"agent_id"`
	ActorID      string            `json:"actor_id"`
	Details      map[string]string `json:"details"`
	PreviousHash string            `json:"previous_hash"`
}

// canonicalBytes serializes the entry's hash preimage. The timestamp is
// rendered in RFC 3339 with nanoseconds in UTC so the byte form does not
// depend on the process time zone.
func canonicalBytes(e *Entry) ([]byte, error) {
	p := preimage{
		Sequence:     e.Sequence,
		EventID:      e.EventID,
		EventType:    e.EventType,
		Timestamp:    e.Timestamp.UTC().Format(time.RFC3339Nano),
		RequestID:    e.RequestID,
		AgentID:      e.AgentID,
		ActorID:      e.ActorID,
		Details:      e.Details,
		PreviousHash: e.PreviousHash,
	}

	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("canonicalize audit entry %d: %w", e.Sequence, err)
	}
	return data, nil
}

// computeHash returns the hex SHA-256 of the entry's canonical form.
func computeHash(e *Entry) (string, error) {
	data, err := canonicalBytes(e)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// sign returns the hex HMAC-SHA-256 of the entry hash under the secret.
func sign(secret []byte, entryHash string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(entryHash))
	return hex.EncodeToString(mac.Sum(nil))
}

// verifySignature checks the signature with a constant-time compare.
func verifySignature(secret []byte, entryHash, signature string) bool {
	want := sign(secret, entryHash)
	return hmac.Equal([]byte(want), []byte(signature))
}
