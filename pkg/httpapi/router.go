// Package httpapi implements the MCP "Streamable HTTP" transport and
// request router: route table, auth middleware selection, JSON-RPC
// envelope validation, and the health/discovery/status surfaces, per spec
// §4.6.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/kandobyte/mcpbox/pkg/authserver"
	"github.com/kandobyte/mcpbox/pkg/multiplexer"
	"github.com/kandobyte/mcpbox/pkg/telemetry"
)

// Router builds the gateway's top-level http.Handler.
type Router struct {
	authMode   AuthMode
	apiKey     string
	issuer     string
	authServer *authserver.Server
	mux        *multiplexer.Multiplexer
	telemetry  *telemetry.Telemetry
}

// Options configures a Router.
type Options struct {
	AuthMode   AuthMode
	APIKey     string
	Issuer     string
	AuthServer *authserver.Server
	Telemetry  *telemetry.Telemetry
}

// NewRouter assembles the full route table described in spec §4.6. Routes
// are registered with the Go 1.22+ method-and-path ServeMux syntax so that
// "/" matches only the exact root, leaving every other unmatched path to
// fall through to the JSON 404 handler.
func NewRouter(mux *multiplexer.Multiplexer, opts Options) http.Handler {
	rt := &Router{
		authMode:   opts.AuthMode,
		apiKey:     opts.APIKey,
		issuer:     opts.Issuer,
		authServer: opts.AuthServer,
		mux:        mux,
		telemetry:  opts.Telemetry,
	}

	m := http.NewServeMux()

	m.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	asset := assetHandler()
	for _, path := range []string{"/logo.png", "/favicon.ico", "/icon.png", "/favicon.png"} {
		m.Handle("GET "+path, asset)
	}

	if rt.authServer != nil {
		m.HandleFunc("GET /.well-known/oauth-protected-resource", rt.authServer.ProtectedResourceMetadataHandler())
		m.HandleFunc("GET /.well-known/oauth-authorization-server", rt.authServer.AuthServerMetadataHandler())
		m.HandleFunc("GET /authorize", rt.authServer.AuthorizeHandler())
		m.HandleFunc("POST /authorize", rt.authServer.AuthorizeHandler())
		m.HandleFunc("POST /token", rt.authServer.TokenHandler())
		m.HandleFunc("POST /register", rt.authServer.RegisterHandler())
		m.HandleFunc("GET /callback/{providerID}", func(w http.ResponseWriter, r *http.Request) {
			rt.authServer.CallbackHandler(r.PathValue("providerID"))(w, r)
		})
	}

	m.Handle("GET /status", rt.authMiddleware(http.HandlerFunc(rt.statusHandler)))
	m.Handle("POST /{$}", rt.originMiddleware(rt.authMiddleware(http.HandlerFunc(rt.jsonRPCHandler))))
	m.Handle("POST /mcp", rt.originMiddleware(rt.authMiddleware(http.HandlerFunc(rt.jsonRPCHandler))))

	m.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusNotFound, "Not found")
	})

	return m
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
