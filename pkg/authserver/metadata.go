package authserver

import (
	"encoding/json"
	"net/http"
)

// protectedResourceMetadata is the RFC 9728 document.
type protectedResourceMetadata struct {
	Resource              string   `json:"resource"`
	AuthorizationServers   []string `json:"authorization_servers"`
	ScopesSupported       []string `json:"scopes_supported"`
	BearerMethodsSupported []string `json:"bearer_methods_supported"`
	LogoURI               string   `json:"logo_uri,omitempty"`
}

// authServerMetadata is the RFC 8414 document.
type authServerMetadata struct {
	Issuer                            string   `json:"issuer"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
	ScopesSupported                   []string `json:"scopes_supported"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint,omitempty"`
	ResponseTypesSupported            []string `json:"response_types_supported,omitempty"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported,omitempty"`
	RegistrationEndpoint              string   `json:"registration_endpoint,omitempty"`
}

// ProtectedResourceMetadataHandler serves GET /.well-known/oauth-protected-resource.
func (s *Server) ProtectedResourceMetadataHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, protectedResourceMetadata{
			Resource:               s.opts.Issuer,
			AuthorizationServers:    []string{s.opts.Issuer},
			ScopesSupported:        []string{DefaultScope},
			BearerMethodsSupported: []string{"header"},
		})
	}
}

// AuthServerMetadataHandler serves GET /.well-known/oauth-authorization-server.
func (s *Server) AuthServerMetadataHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meta := authServerMetadata{
			Issuer:                            s.opts.Issuer,
			TokenEndpoint:                     s.opts.Issuer + "/token",
			TokenEndpointAuthMethodsSupported: []string{"none", "client_secret_post"},
			ScopesSupported:                   []string{DefaultScope},
		}

		if s.Enabled() {
			meta.AuthorizationEndpoint = s.opts.Issuer + "/authorize"
			meta.ResponseTypesSupported = []string{"code"}
			meta.CodeChallengeMethodsSupported = []string{"S256"}
			meta.GrantTypesSupported = append(meta.GrantTypesSupported, "authorization_code", "refresh_token")
		}
		if s.opts.DynamicRegistrationEnabled {
			meta.RegistrationEndpoint = s.opts.Issuer + "/register"
		}
		if s.anyClientCredentialsClient() {
			meta.GrantTypesSupported = append(meta.GrantTypesSupported, "client_credentials")
		}

		writeJSON(w, http.StatusOK, meta)
	}
}

func (s *Server) anyClientCredentialsClient() bool {
	// Only the pre-registered set recorded at startup is checked;
	// dynamically registered clients are not considered, whatever
	// grant_types they registered with.
	for _, c := range s.preregistered {
		if c.HasGrant("client_credentials") {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type oauthError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

func writeOAuthError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, oauthError{Error: code, ErrorDescription: description})
}
