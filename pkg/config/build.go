package config

import (
	"fmt"
	"sort"
	"time"

	"github.com/kandobyte/mcpbox/pkg/crypto"
	"github.com/kandobyte/mcpbox/pkg/httpapi"
	"github.com/kandobyte/mcpbox/pkg/identity"
	"github.com/kandobyte/mcpbox/pkg/log"
	"github.com/kandobyte/mcpbox/pkg/multiplexer"
	"github.com/kandobyte/mcpbox/pkg/store"
)

// LogConfig translates the parsed Log block into a log.Config.
func (c *Config) LogConfig() log.Config {
	redact := true
	if c.Log.RedactSecrets != nil {
		redact = *c.Log.RedactSecrets
	}
	return log.Config{
		Level:         c.Log.Level,
		Format:        c.Log.Format,
		RedactSecrets: redact,
	}
}

// ChildSpecs translates the configured mcpServers map into multiplexer
// Specs, sorted by child name so the order is deterministic.
func (c *Config) ChildSpecs() []multiplexer.Spec {
	specs := make([]multiplexer.Spec, 0, len(c.McpServers))
	for name, s := range c.McpServers {
		specs = append(specs, multiplexer.Spec{
			Name:          name,
			Command:       s.Command,
			Args:          s.Args,
			Env:           s.Env,
			ToolAllowlist: s.Tools,
		})
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// NewStore builds the configured persistence backend.
func (c *Config) NewStore() (store.Store, error) {
	switch c.Storage.Type {
	case "sqlite":
		s, err := store.NewSQL(c.Storage.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		return s, nil
	default:
		return store.NewMemory(), nil
	}
}

// AuthMode reports the configured HTTP auth mode.
func (c *Config) AuthMode() httpapi.AuthMode {
	switch c.Auth.Type {
	case "apikey":
		return httpapi.AuthAPIKey
	case "oauth":
		return httpapi.AuthOAuth
	default:
		return httpapi.AuthNone
	}
}

// Issuer resolves the configured OAuth issuer, defaulting to
// http://localhost:<port> per spec §6.
func (c *Config) Issuer() string {
	if c.Auth.OAuth != nil && c.Auth.OAuth.Issuer != "" {
		return c.Auth.OAuth.Issuer
	}
	return fmt.Sprintf("http://localhost:%d", c.Server.Port)
}

// IdentityProviders instantiates the configured identity providers, split
// by shape, per spec §4.3.
func (c *Config) IdentityProviders() (forms []identity.FormProvider, redirects []identity.RedirectProvider, err error) {
	if c.Auth.OAuth == nil {
		return nil, nil, nil
	}
	for _, idp := range c.Auth.OAuth.IdentityProviders {
		switch idp.Type {
		case "local":
			users := make([]identity.LocalUser, len(idp.Users))
			for i, u := range idp.Users {
				users[i] = identity.LocalUser{Username: u.Username, Password: u.Password}
			}
			forms = append(forms, identity.NewLocal(idp.ID, users))
		case "github":
			redirects = append(redirects, identity.NewGitHub(idp.ID, idp.ClientID, idp.ClientSecret, idp.AllowedOrgs, idp.AllowedUsers))
		default:
			return nil, nil, fmt.Errorf("config: unknown identity provider type %q for %q", idp.Type, idp.ID)
		}
	}
	return forms, redirects, nil
}

// PreregisteredClients converts the configured oauth.clients list into
// store.Client records ready to persist, hashing any configured secret.
func (c *Config) PreregisteredClients() ([]store.Client, error) {
	if c.Auth.OAuth == nil {
		return nil, nil
	}
	out := make([]store.Client, 0, len(c.Auth.OAuth.Clients))
	now := time.Now()
	for _, cc := range c.Auth.OAuth.Clients {
		secretHash := ""
		if cc.ClientSecret != "" {
			secretHash = crypto.SHA256Hex(cc.ClientSecret)
		}
		authMethod := "none"
		if secretHash != "" {
			authMethod = "client_secret_post"
		}
		out = append(out, store.Client{
			ClientID:                cc.ClientID,
			ClientSecretHash:        secretHash,
			ClientName:              cc.ClientName,
			RedirectURIs:            cc.RedirectURIs,
			GrantTypes:              cc.GrantTypes,
			ResponseTypes:           []string{"code"},
			TokenEndpointAuthMethod: authMethod,
			CreatedAt:               now,
			IsDynamic:               false,
		})
	}
	return out, nil
}
