package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

type contextKey struct{}

var actorKey contextKey

// ActorFrom returns the authenticated actor stored on the context, or
// nil when the request was not authenticated.
func ActorFrom(ctx context.Context) *Actor {
	actor, _ := ctx.Value(actorKey).(*Actor)
	return actor
}

// WithActor stores an actor on the context. Exposed for tests and for
// internal callers that bypass HTTP.
func WithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// Middleware authenticates requests with bearer tokens.
type Middleware struct {
	validator *Validator
	logger    *slog.Logger
}

// NewMiddleware creates a Middleware over the given validator.
func NewMiddleware(validator *Validator) *Middleware {
	return &Middleware{
		validator: validator,
		logger:    slog.Default().With("component", "auth"),
	}
}

// Handle wraps next with bearer-token authentication. Requests without a
// valid Authorization header get a 401.
func (m *Middleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearer(r)
		if token == "" {
			m.logger.Warn("missing bearer token",
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path,
			)
			http.Error(w, "missing or invalid bearer token", http.StatusUnauthorized)
			return
		}

		actor, err := m.validator.Validate(token)
		if err != nil {
			m.logger.Warn("rejected bearer token",
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path,
			)
			http.Error(w, "missing or invalid bearer token", http.StatusUnauthorized)
			return
		}

		m.logger.Debug("authenticated",
			"actor_id", actor.ID,
			"path", r.URL.Path,
		)
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

func extractBearer(r *http.Request) string {
	value := r.Header.Get("Authorization")
	if value == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(value, prefix) {
		return ""
	}
	return strings.TrimPrefix(value, prefix)
}
