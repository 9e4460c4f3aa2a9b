// Package auth implements bearer-token authentication middleware.
//
// Tokens are static and configured at startup; each maps to an actor id
// and a role set. The middleware rejects requests without a valid token
// and stores the resolved actor on the request context for handlers to
// read via ActorFrom.
package auth
