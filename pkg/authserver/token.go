package authserver

import (
	"context"
	"net/http"
	"time"

	"github.com/kandobyte/mcpbox/pkg/crypto"
	"github.com/kandobyte/mcpbox/pkg/log"
	"github.com/kandobyte/mcpbox/pkg/store"
)

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	// Scope is omitted entirely when empty; spec §4.4's example response
	// instead shows a literal "scope":null. Both are equivalent to a
	// conformant client, so the field is left `omitempty`.
	Scope string `json:"scope,omitempty"`
}

// TokenHandler serves POST /token, dispatching on grant_type per spec §4.4.
func (s *Server) TokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed form body")
			return
		}

		w.Header().Set("Cache-Control", "no-store")

		switch r.PostFormValue("grant_type") {
		case "authorization_code":
			s.grantAuthorizationCode(w, r)
		case "client_credentials":
			s.grantClientCredentials(w, r)
		case "refresh_token":
			s.grantRefreshToken(w, r)
		default:
			writeOAuthError(w, http.StatusBadRequest, "unsupported_grant_type", "")
		}
	}
}

func (s *Server) grantAuthorizationCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	code := r.PostFormValue("code")
	clientID := r.PostFormValue("client_id")
	if code == "" || clientID == "" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "code and client_id are required")
		return
	}

	client, err := s.store.GetClient(ctx, clientID)
	if err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_client", "unknown client_id")
		return
	}
	if client.HasSecret() && !crypto.ConstantTimeEqual(client.ClientSecretHash, crypto.SHA256Hex(r.PostFormValue("client_secret"))) {
		writeOAuthError(w, http.StatusUnauthorized, "invalid_client", "client authentication failed")
		return
	}

	ac, ok := s.codes.take(code)
	if !ok {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "unknown or expired code")
		return
	}
	if time.Now().After(ac.ExpiresAt) {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "code expired")
		return
	}
	if ac.ClientID != clientID {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "client_id mismatch")
		return
	}
	if redirectURI := r.PostFormValue("redirect_uri"); redirectURI != "" && redirectURI != ac.RedirectURI {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "redirect_uri mismatch")
		return
	}

	if ac.CodeChallengeMethod != "S256" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "Only S256 code_challenge_method is supported")
		return
	}

	verifier := r.PostFormValue("code_verifier")
	if ac.CodeChallenge == "" || verifier == "" || !crypto.VerifyPKCE(verifier, ac.CodeChallenge) {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "PKCE verification failed")
		return
	}

	s.mintTokenPair(w, ctx, clientID, ac.Scope, ac.UserID, true)
}

func (s *Server) grantClientCredentials(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clientID := r.PostFormValue("client_id")
	clientSecret := r.PostFormValue("client_secret")
	if clientID == "" || clientSecret == "" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "client_id and client_secret are required")
		return
	}

	client, err := s.store.GetClient(ctx, clientID)
	if err != nil {
		writeOAuthError(w, http.StatusUnauthorized, "invalid_client", "unknown client_id")
		return
	}
	if !client.HasGrant("client_credentials") {
		writeOAuthError(w, http.StatusBadRequest, "unauthorized_client", "client is not authorized for client_credentials")
		return
	}
	if !crypto.ConstantTimeEqual(client.ClientSecretHash, crypto.SHA256Hex(clientSecret)) {
		writeOAuthError(w, http.StatusUnauthorized, "invalid_client", "client authentication failed")
		return
	}

	s.mintTokenPair(w, ctx, clientID, DefaultScope, "client:"+clientID, false)
}

func (s *Server) grantRefreshToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	refreshToken := r.PostFormValue("refresh_token")
	clientID := r.PostFormValue("client_id")
	if refreshToken == "" || clientID == "" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "refresh_token and client_id are required")
		return
	}

	oldHash := crypto.SHA256Hex(refreshToken)
	stored, err := s.store.GetRefreshToken(ctx, oldHash)
	if err != nil || stored.Expired(time.Now()) {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "unknown or expired refresh token")
		return
	}
	if stored.ClientID != clientID {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "client_id mismatch")
		return
	}

	client, err := s.store.GetClient(ctx, clientID)
	if err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_client", "unknown client_id")
		return
	}
	if client.HasSecret() && !crypto.ConstantTimeEqual(client.ClientSecretHash, crypto.SHA256Hex(r.PostFormValue("client_secret"))) {
		writeOAuthError(w, http.StatusUnauthorized, "invalid_client", "client authentication failed")
		return
	}

	accessPlain, refreshPlain, err := s.mintAccessAndRefresh(ctx, clientID, stored.Scope, stored.UserID)
	if err != nil {
		log.Errorf("authserver: minting refreshed token pair: %v", err)
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "")
		return
	}

	newRefresh := store.Token{
		TokenHash: crypto.SHA256Hex(refreshPlain),
		ClientID:  clientID,
		Scope:     stored.Scope,
		UserID:    stored.UserID,
		ExpiresAt: time.Now().Add(RefreshTokenTTL),
	}
	if err := s.store.RotateRefreshToken(ctx, oldHash, newRefresh); err != nil {
		log.Errorf("authserver: rotating refresh token: %v", err)
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  accessPlain,
		RefreshToken: refreshPlain,
		TokenType:    "Bearer",
		ExpiresIn:    int(AccessTokenTTL.Seconds()),
		Scope:        stored.Scope,
	})
}

// mintTokenPair mints an access token and, when withRefresh is true, a
// refresh token, persists both, and writes the token response.
func (s *Server) mintTokenPair(w http.ResponseWriter, ctx context.Context, clientID, scope, userID string, withRefresh bool) {
	accessPlain, err := crypto.RandomHex(32)
	if err != nil {
		log.Errorf("authserver: generating access token: %v", err)
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "")
		return
	}
	now := time.Now()
	if err := s.store.SaveAccessToken(ctx, store.Token{
		TokenHash: crypto.SHA256Hex(accessPlain),
		ClientID:  clientID,
		Scope:     scope,
		UserID:    userID,
		ExpiresAt: now.Add(AccessTokenTTL),
	}); err != nil {
		log.Errorf("authserver: saving access token: %v", err)
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "")
		return
	}

	resp := tokenResponse{
		AccessToken: accessPlain,
		TokenType:   "Bearer",
		ExpiresIn:   int(AccessTokenTTL.Seconds()),
		Scope:       scope,
	}

	if withRefresh {
		refreshPlain, err := crypto.RandomHex(32)
		if err != nil {
			log.Errorf("authserver: generating refresh token: %v", err)
			writeOAuthError(w, http.StatusInternalServerError, "server_error", "")
			return
		}
		if err := s.store.SaveRefreshToken(ctx, store.Token{
			TokenHash: crypto.SHA256Hex(refreshPlain),
			ClientID:  clientID,
			Scope:     scope,
			UserID:    userID,
			ExpiresAt: now.Add(RefreshTokenTTL),
		}); err != nil {
			log.Errorf("authserver: saving refresh token: %v", err)
			writeOAuthError(w, http.StatusInternalServerError, "server_error", "")
			return
		}
		resp.RefreshToken = refreshPlain
	}

	writeJSON(w, http.StatusOK, resp)
}

// mintAccessAndRefresh mints a fresh plaintext access and refresh token pair
// and persists the access token; the caller is responsible for persisting
// the refresh token (so it can be swapped in atomically via
// RotateRefreshToken rather than saved directly).
func (s *Server) mintAccessAndRefresh(ctx context.Context, clientID, scope, userID string) (accessPlain, refreshPlain string, err error) {
	accessPlain, err = crypto.RandomHex(32)
	if err != nil {
		return "", "", err
	}
	refreshPlain, err = crypto.RandomHex(32)
	if err != nil {
		return "", "", err
	}
	if err := s.store.SaveAccessToken(ctx, store.Token{
		TokenHash: crypto.SHA256Hex(accessPlain),
		ClientID:  clientID,
		Scope:     scope,
		UserID:    userID,
		ExpiresAt: time.Now().Add(AccessTokenTTL),
	}); err != nil {
		return "", "", err
	}
	return accessPlain, refreshPlain, nil
}
