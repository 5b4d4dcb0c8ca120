// Package contextkeys holds the typed context keys shared between the HTTP
// router, auth middleware and the multiplexer dispatcher.
package contextkeys

import "context"

// contextKey is a typed key for context values to avoid conflicts
type contextKey string

// UserIDKey carries the authenticated user id (form "provider:localId" or
// "client:<clientId>") set by the auth middleware, consumed by handlers that
// need to know who is calling.
const UserIDKey contextKey = "user-id"

// ScopeKey carries the OAuth scope string bound to the current bearer token,
// if any.
const ScopeKey contextKey = "scope"

// WithUserID returns a copy of ctx carrying userID under UserIDKey.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// UserID extracts the authenticated user id stashed by the auth middleware,
// if any.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(UserIDKey).(string)
	return id, ok
}
