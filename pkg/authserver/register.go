package authserver

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/kandobyte/mcpbox/pkg/log"
	"github.com/kandobyte/mcpbox/pkg/store"
)

type registrationRequest struct {
	ClientName              string   `json:"client_name"`
	RedirectURIs            []string `json:"redirect_uris"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
}

type registrationResponse struct {
	ClientID                string   `json:"client_id"`
	ClientName              string   `json:"client_name,omitempty"`
	RedirectURIs            []string `json:"redirect_uris"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
}

// RegisterHandler serves POST /register, the RFC 7591 dynamic client
// registration endpoint, per spec §4.4.
func (s *Server) RegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.opts.DynamicRegistrationEnabled {
			writeOAuthError(w, http.StatusNotFound, "registration_not_supported", "")
			return
		}

		var req registrationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
			return
		}

		if len(req.RedirectURIs) == 0 {
			writeOAuthError(w, http.StatusBadRequest, "invalid_redirect_uri", "redirect_uris is required")
			return
		}
		for _, u := range req.RedirectURIs {
			parsed, err := url.Parse(u)
			if err != nil || !parsed.IsAbs() {
				writeOAuthError(w, http.StatusBadRequest, "invalid_redirect_uri", "redirect_uris entries must be absolute URLs")
				return
			}
		}

		grantTypes := req.GrantTypes
		if len(grantTypes) == 0 {
			grantTypes = []string{"authorization_code"}
		}
		responseTypes := req.ResponseTypes
		if len(responseTypes) == 0 {
			responseTypes = []string{"code"}
		}
		authMethod := req.TokenEndpointAuthMethod
		if authMethod == "" {
			authMethod = "none"
		}

		client := store.Client{
			ClientID:                uuid.NewString(),
			ClientName:              req.ClientName,
			RedirectURIs:            req.RedirectURIs,
			GrantTypes:              grantTypes,
			ResponseTypes:           responseTypes,
			TokenEndpointAuthMethod: authMethod,
			CreatedAt:               time.Now(),
			IsDynamic:               true,
		}

		if err := s.store.SaveClient(r.Context(), client); err != nil {
			log.Errorf("authserver: saving dynamically registered client: %v", err)
			writeOAuthError(w, http.StatusInternalServerError, "server_error", "")
			return
		}

		writeJSON(w, http.StatusCreated, registrationResponse{
			ClientID:                client.ClientID,
			ClientName:              client.ClientName,
			RedirectURIs:            client.RedirectURIs,
			GrantTypes:              client.GrantTypes,
			ResponseTypes:           client.ResponseTypes,
			TokenEndpointAuthMethod: client.TokenEndpointAuthMethod,
		})
	}
}
