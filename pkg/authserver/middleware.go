package authserver

import (
	"net/http"
	"regexp"
	"time"

	"github.com/kandobyte/mcpbox/pkg/contextkeys"
	"github.com/kandobyte/mcpbox/pkg/crypto"
)

var bearerPattern = regexp.MustCompile(`(?i)^Bearer\s+(.+)$`)

// Authenticate validates the request's bearer token against the access
// token store, per spec §4.4 "Token validation (middleware hook)". On
// success it returns the userId bound to the token; on failure it has
// already written the 401 response and the caller must not proceed.
func (s *Server) Authenticate(w http.ResponseWriter, r *http.Request) (userID string, ok bool) {
	match := bearerPattern.FindStringSubmatch(r.Header.Get("Authorization"))
	if match == nil {
		s.challengeUnauthorized(w)
		return "", false
	}

	tok, err := s.store.GetAccessToken(r.Context(), crypto.SHA256Hex(match[1]))
	if err != nil || tok.Expired(time.Now()) {
		s.challengeUnauthorized(w)
		return "", false
	}

	return tok.UserID, true
}

func (s *Server) challengeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer resource_metadata="`+s.opts.Issuer+`/.well-known/oauth-protected-resource"`)
	writeOAuthError(w, http.StatusUnauthorized, "unauthorized", "")
}

// RequireAuth wraps next so it only runs once Authenticate has succeeded,
// stashing the authenticated user id in the request context under
// contextkeys.UserIDKey.
func (s *Server) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := s.Authenticate(w, r)
		if !ok {
			return
		}
		ctx := contextkeys.WithUserID(r.Context(), userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
