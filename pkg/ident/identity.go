package ident

import (
	"errors"
	"fmt"
)

// Identity describes who submitted a request and from where. It is built
// once at the ingress boundary by a TokenValidator (or by the caller in
// embedded use) and treated as read-only afterwards.
type Identity struct {
	// ActorID is the unique identifier of the requesting principal.
	ActorID string `json:"actor_id"`

	// ActorRole is the principal's role (e.g., "developer", "approver").
	ActorRole string `json:"actor_role"`

	// Email is the principal's email address, when known.
	Email string `json:"email,omitempty"`

	// SourceIP is the remote address the request arrived from.
	SourceIP string `json:"source_ip,omitempty"`

	// UserAgent is the client's User-Agent string.
	UserAgent string `json:"user_agent,omitempty"`

	// CorrelationID ties this request to an upstream trace, when supplied.
	CorrelationID string `json:"correlation_id,omitempty"`
}

// ErrMissingActor is returned when an identity has no actor id.
var ErrMissingActor = errors.New("identity requires a non-empty actor id")

// NewIdentity validates and constructs an Identity. The actor id is
// required; every other field is optional.
func NewIdentity(actorID, actorRole string) (Identity, error) {
	if actorID == "" {
		return Identity{}, ErrMissingActor
	}
	return Identity{
		ActorID:   actorID,
		ActorRole: actorRole,
	}, nil
}

// String renders the identity for logs without leaking optional contact
// details.
func (id Identity) String() string {
	return fmt.Sprintf("%s (%s)", id.ActorID, id.ActorRole)
}

// TokenValidator establishes identity from a bearer token. Implementations
// live outside the core (OIDC, API keys, mTLS-derived identity); the core
// only depends on this contract.
//
// Validate returns nil when the token is invalid, expired, or unknown.
// Production implementations must verify signature, issuer, audience, and
// expiration before returning an Identity.
type TokenValidator interface {
	Validate(token string) *Identity
}

// StaticValidator is a fixed token→identity table. It backs development
// deployments and tests; it performs no cryptographic verification.
type StaticValidator struct {
	tokens map[string]Identity
}

// NewStaticValidator creates a StaticValidator over a copy of the given
// token table.
func NewStaticValidator(tokens map[string]Identity) *StaticValidator {
	copied := make(map[string]Identity, len(tokens))
	for k, v := range tokens {
		copied[k] = v
	}
	return &StaticValidator{tokens: copied}
}

// Validate looks the token up in the static table.
func (v *StaticValidator) Validate(token string) *Identity {
	id, ok := v.tokens[token]
	if !ok {
		return nil
	}
	return &id
}
