package authserver

import (
	"embed"
	"html/template"
	"net/http"
	"net/url"
	"time"

	"github.com/kandobyte/mcpbox/pkg/crypto"
	"github.com/kandobyte/mcpbox/pkg/identity"
	"github.com/kandobyte/mcpbox/pkg/log"
	"github.com/kandobyte/mcpbox/pkg/store"
)

//go:embed templates/login.html.tmpl
var templateFS embed.FS

var loginTemplate = template.Must(template.ParseFS(templateFS, "templates/login.html.tmpl"))

type loginPageIdP struct {
	ID  string
	URL string
}

type loginPageData struct {
	ClientName        string
	SessionID         string
	ActionURL         string
	Error             string
	FormProviders     bool
	RedirectProviders []loginPageIdP
}

// AuthorizeHandler serves GET and POST /authorize, per spec §4.4.
func (s *Server) AuthorizeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			s.authorizeGet(w, r)
		case http.MethodPost:
			s.authorizePost(w, r)
		default:
			w.Header().Set("Allow", "GET, POST")
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}
}

func (s *Server) authorizeGet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if !s.Enabled() {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "Authorization Code flow not available")
		return
	}

	clientID := q.Get("client_id")
	redirectURI := q.Get("redirect_uri")
	responseType := q.Get("response_type")
	challenge := q.Get("code_challenge")
	challengeMethod := q.Get("code_challenge_method")

	if clientID == "" || redirectURI == "" || responseType != "code" || challenge == "" || challengeMethod != "S256" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "missing or invalid required parameter")
		return
	}

	client, err := s.store.GetClient(r.Context(), clientID)
	if err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_client", "unknown client_id")
		return
	}

	if !validRedirectURI(client, redirectURI) {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "Invalid redirect_uri")
		return
	}

	sess := s.sessions.create(&pendingSession{
		ClientID:            clientID,
		ClientName:          client.ClientName,
		RedirectURI:         redirectURI,
		State:               q.Get("state"),
		CodeChallenge:       challenge,
		CodeChallengeMethod: challengeMethod,
		Scope:               q.Get("scope"),
	})

	if idp := q.Get("idp"); idp != "" {
		if rp := s.findRedirectProvider(idp); rp != nil {
			s.redirectToProvider(w, r, sess, rp)
			return
		}
	} else if len(s.opts.RedirectProviders) == 1 && len(s.opts.FormProviders) == 0 {
		s.redirectToProvider(w, r, sess, s.opts.RedirectProviders[0])
		return
	}

	s.renderLogin(w, sess, r.URL.RawQuery, "")
}

func (s *Server) redirectToProvider(w http.ResponseWriter, r *http.Request, sess *pendingSession, rp identity.RedirectProvider) {
	s.sessions.setProvider(sess.SessionID, rp.ID())
	callbackURL := s.opts.Issuer + "/callback/" + rp.ID()
	http.Redirect(w, r, rp.AuthorizationURL(callbackURL, sess.SessionID), http.StatusFound)
}

func (s *Server) renderLogin(w http.ResponseWriter, sess *pendingSession, rawQuery, loginErr string) {
	data := loginPageData{
		ClientName:    sess.ClientName,
		SessionID:     sess.SessionID,
		ActionURL:     "/authorize?" + rawQuery,
		Error:         loginErr,
		FormProviders: len(s.opts.FormProviders) > 0,
	}
	for _, rp := range s.opts.RedirectProviders {
		data.RedirectProviders = append(data.RedirectProviders, loginPageIdP{
			ID:  rp.ID(),
			URL: "/authorize?" + rawQuery + "&idp=" + url.QueryEscape(rp.ID()),
		})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := loginTemplate.Execute(w, data); err != nil {
		log.Errorf("authserver: rendering login page: %v", err)
	}
}

func (s *Server) authorizePost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed form body")
		return
	}

	sessionID := r.PostFormValue("session_id")
	sess, ok := s.sessions.get(sessionID)
	if sessionID == "" || !ok {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "missing or unknown session_id")
		return
	}

	username := r.PostFormValue("username")
	password := r.PostFormValue("password")

	for _, fp := range s.opts.FormProviders {
		if user, ok := fp.Validate(username, password); ok {
			s.sessions.delete(sessionID)
			s.issueAuthCode(w, r, sess, user.ID)
			return
		}
	}

	s.renderLogin(w, sess, r.URL.RawQuery, "Invalid username or password")
}

// CallbackHandler serves GET /callback/<providerId>, per spec §4.4.
func (s *Server) CallbackHandler(providerID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.URL.Query().Get("state")
		sess, ok := s.sessions.get(sessionID)
		if sessionID == "" || !ok {
			writeOAuthError(w, http.StatusBadRequest, "invalid_request", "missing or unknown state")
			return
		}
		if sess.ProviderID != providerID {
			writeOAuthError(w, http.StatusBadRequest, "invalid_request", "provider mismatch")
			return
		}

		rp := s.findRedirectProvider(providerID)
		if rp == nil {
			s.sessions.delete(sessionID)
			writeOAuthError(w, http.StatusForbidden, "access_denied", "unknown identity provider")
			return
		}

		user, ok := rp.HandleCallback(r.URL.Query())
		if !ok {
			s.sessions.delete(sessionID)
			writeOAuthError(w, http.StatusForbidden, "access_denied", "identity provider denied the request")
			return
		}

		s.sessions.delete(sessionID)
		s.issueAuthCode(w, r, sess, user.ID)
	}
}

// issueAuthCode mints the authorization code and redirects the browser back
// to the client's redirect_uri, per spec §4.4 "Authorization-code issuance".
func (s *Server) issueAuthCode(w http.ResponseWriter, r *http.Request, sess *pendingSession, userID string) {
	code, err := crypto.RandomHex(32)
	if err != nil {
		log.Errorf("authserver: generating authorization code: %v", err)
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "")
		return
	}

	s.codes.store(&authCode{
		Code:                code,
		ClientID:            sess.ClientID,
		RedirectURI:         sess.RedirectURI,
		CodeChallenge:       sess.CodeChallenge,
		CodeChallengeMethod: sess.CodeChallengeMethod,
		Scope:               sess.Scope,
		UserID:              userID,
		ExpiresAt:           time.Now().Add(AuthCodeTTL),
	})

	redirectURL, err := url.Parse(sess.RedirectURI)
	if err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "invalid redirect_uri")
		return
	}
	q := redirectURL.Query()
	q.Set("code", code)
	if sess.State != "" {
		q.Set("state", sess.State)
	}
	redirectURL.RawQuery = q.Encode()

	http.Redirect(w, r, redirectURL.String(), http.StatusFound)
}

// validRedirectURI requires byte-for-byte equality with one of the client's
// registered redirect URIs, per spec §4.4 validation step 4.
func validRedirectURI(c store.Client, redirectURI string) bool {
	for _, u := range c.RedirectURIs {
		if u == redirectURI {
			return true
		}
	}
	return false
}
