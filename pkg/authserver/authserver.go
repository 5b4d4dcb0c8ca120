// Package authserver implements the embedded OAuth 2.1 authorization
// server: Authorization Code with mandatory PKCE, Client Credentials and
// Refresh Token grants, pluggable identity providers, and RFC 7591 dynamic
// client registration, per spec §4.4.
package authserver

import (
	"net/http"
	"time"

	"github.com/kandobyte/mcpbox/pkg/identity"
	"github.com/kandobyte/mcpbox/pkg/store"
)

const (
	// AccessTokenTTL is the lifetime of a minted access token (spec §3).
	AccessTokenTTL = time.Hour
	// RefreshTokenTTL is the lifetime of a minted refresh token (spec §3).
	RefreshTokenTTL = 90 * 24 * time.Hour
	// AuthCodeTTL is the maximum lifetime of an authorization code (spec §3).
	AuthCodeTTL = 10 * time.Minute
	// SessionTTL is the lifetime of a pending login session (spec §3).
	SessionTTL = 10 * time.Minute

	// DefaultScope is the only scope this gateway's protected resource
	// supports (spec §4.4 discovery metadata).
	DefaultScope = "mcp:tools"
)

// Options configures a Server.
type Options struct {
	// Issuer is this authorization server's own base URL, used in
	// metadata, callback URLs and the WWW-Authenticate challenge.
	Issuer string

	FormProviders     []identity.FormProvider
	RedirectProviders []identity.RedirectProvider

	DynamicRegistrationEnabled bool

	// PreregisteredClients lists the clients configured at startup, used
	// only to decide whether client_credentials appears in discovery
	// metadata (spec §4.4). The clients themselves are persisted into the
	// Store by the caller before New is invoked.
	PreregisteredClients []store.Client
}

// Server is the embedded OAuth 2.1 authorization server. It holds the two
// transient, process-local caches (pending sessions and authorization
// codes) alongside a handle to the persistent Store for clients and
// tokens.
type Server struct {
	opts          Options
	store         store.Store
	preregistered []store.Client

	sessions *sessionCache
	codes    *codeCache

	httpClient *http.Client
}

// New constructs a Server. Callers are responsible for pre-registering any
// startup-configured clients into store before serving requests.
func New(opts Options, st store.Store) *Server {
	return &Server{
		opts:          opts,
		store:         st,
		preregistered: opts.PreregisteredClients,
		sessions:      newSessionCache(),
		codes:         newCodeCache(),
		httpClient:    http.DefaultClient,
	}
}

// Enabled reports whether any identity provider is configured, i.e.
// whether the Authorization Code flow is available at all (spec §4.4,
// validation step 1).
func (s *Server) Enabled() bool {
	return len(s.opts.FormProviders) > 0 || len(s.opts.RedirectProviders) > 0
}

func (s *Server) findFormProvider(id string) identity.FormProvider {
	for _, p := range s.opts.FormProviders {
		if p.ID() == id {
			return p
		}
	}
	return nil
}

func (s *Server) findRedirectProvider(id string) identity.RedirectProvider {
	for _, p := range s.opts.RedirectProviders {
		if p.ID() == id {
			return p
		}
	}
	return nil
}

// Close releases the server's background resources (the session/code
// cache sweepers).
func (s *Server) Close() {
	s.sessions.stop()
	s.codes.stop()
}
