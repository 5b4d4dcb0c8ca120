package httpapi

import (
	"net/http"
	"strings"

	"github.com/kandobyte/mcpbox/pkg/contextkeys"
	"github.com/kandobyte/mcpbox/pkg/crypto"
)

// AuthMode selects how protected routes authenticate callers, per spec §6.
type AuthMode int

const (
	// AuthNone passes every request through unauthenticated.
	AuthNone AuthMode = iota
	// AuthAPIKey compares a configured static key under constant-time
	// equality.
	AuthAPIKey
	// AuthOAuth defers to the embedded authorization server's bearer
	// token validator.
	AuthOAuth
)

// authMiddleware wraps protected routes (spec §4.6: "/status", "/" and
// "/mcp") according to the configured AuthMode.
func (rt *Router) authMiddleware(next http.Handler) http.Handler {
	switch rt.authMode {
	case AuthAPIKey:
		return rt.apiKeyMiddleware(next)
	case AuthOAuth:
		return rt.authServer.RequireAuth(next)
	default:
		return next
	}
}

func (rt *Router) apiKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-API-Key")
		if key == "" {
			key = bearerOrAPIKey(r.Header.Get("Authorization"))
		}
		if key == "" || !crypto.ConstantTimeEqual(key, rt.apiKey) {
			w.Header().Set("WWW-Authenticate", `Bearer resource_metadata="`+rt.issuer+`/.well-known/oauth-protected-resource"`)
			writeJSONError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(contextkeys.WithUserID(r.Context(), "apikey")))
	})
}

// bearerOrAPIKey extracts the credential from an Authorization header of the
// form "Bearer <key>" or "ApiKey <key>" (spec §4.6).
func bearerOrAPIKey(header string) string {
	for _, scheme := range []string{"Bearer ", "ApiKey "} {
		if len(header) > len(scheme) && strings.EqualFold(header[:len(scheme)], scheme) {
			return header[len(scheme):]
		}
	}
	return ""
}
