package auth

import (
	"crypto/subtle"
	"errors"
	"sync"
)

// ErrInvalidToken is returned when a token does not match any configured
// actor.
var ErrInvalidToken = errors.New("invalid token")

// Actor is the identity a token resolves to.
type Actor struct {
	ID    string
	Roles []string
}

// HasRole reports whether the actor carries the given role.
func (a *Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// TokenEntry binds a static token to an actor.
type TokenEntry struct {
	Token string
	Actor Actor
}

// Validator validates bearer tokens against a configured set.
type Validator struct {
	mu      sync.RWMutex
	entries []TokenEntry
}

// NewValidator creates a Validator from the configured entries.
func NewValidator(entries []TokenEntry) *Validator {
	return &Validator{entries: append([]TokenEntry(nil), entries...)}
}

// Validate resolves a token to its actor. Comparison is constant-time
// per entry.
func (v *Validator) Validate(token string) (*Actor, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	for _, entry := range v.entries {
		if subtle.ConstantTimeCompare([]byte(entry.Token), []byte(token)) == 1 {
			actor := entry.Actor
			actor.Roles = append([]string(nil), entry.Actor.Roles...)
			return &actor, nil
		}
	}
	return nil, ErrInvalidToken
}

// Add registers a token at runtime.
func (v *Validator) Add(entry TokenEntry) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.entries = append(v.entries, entry)
}

// Remove deletes a token at runtime.
func (v *Validator) Remove(token string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	kept := v.entries[:0]
	for _, entry := range v.entries {
		if entry.Token != token {
			kept = append(kept, entry)
		}
	}
	v.entries = kept
}
