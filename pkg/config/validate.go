package config

import (
	"fmt"
	"regexp"
)

// apiKeyPattern is the format spec §6 requires for auth.apikey.apiKey.
var apiKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{16,128}$`)

// checkCrossField enforces the tagged-union discrimination and cross-field
// rules spec §6 describes that plain struct tags cannot express.
func checkCrossField(cfg *Config) error {
	if len(cfg.McpServers) == 0 {
		return fmt.Errorf("config: mcpServers must configure at least one child")
	}

	switch cfg.Auth.Type {
	case "":
		if cfg.Auth.APIKey != nil || cfg.Auth.OAuth != nil {
			return fmt.Errorf("config: auth.type is absent but an apikey/oauth block was supplied")
		}
	case "apikey":
		if cfg.Auth.APIKey == nil {
			return fmt.Errorf(`config: auth.type is "apikey" but auth.apikey is missing`)
		}
	case "oauth":
		if cfg.Auth.OAuth == nil {
			return fmt.Errorf(`config: auth.type is "oauth" but auth.oauth is missing`)
		}
		if err := checkOAuth(cfg.Auth.OAuth); err != nil {
			return err
		}
	}

	if cfg.Storage.Type == "sqlite" && (cfg.Storage.SQLite == nil || cfg.Storage.SQLite.Path == "") {
		return fmt.Errorf(`config: storage.type is "sqlite" but storage.sqlite.path is missing`)
	}

	for name, server := range cfg.McpServers {
		if server.Command == "" {
			return fmt.Errorf("config: mcpServers.%s is missing a command", name)
		}
	}

	return nil
}

// checkOAuth enforces spec §6's oauth block rule: at least one of issuer,
// identityProviders or clients must be non-empty, and
// dynamicRegistration:true requires at least one identity provider.
func checkOAuth(o *OAuthAuth) error {
	if o.Issuer == "" && len(o.IdentityProviders) == 0 && len(o.Clients) == 0 {
		return fmt.Errorf("config: auth.oauth must set at least one of issuer, identityProviders or clients")
	}
	if o.DynamicRegistration && len(o.IdentityProviders) == 0 {
		return fmt.Errorf("config: auth.oauth.dynamicRegistration requires at least one identity provider")
	}

	seen := make(map[string]bool, len(o.IdentityProviders))
	for _, idp := range o.IdentityProviders {
		if seen[idp.ID] {
			return fmt.Errorf("config: duplicate identity provider id %q", idp.ID)
		}
		seen[idp.ID] = true

		switch idp.Type {
		case "local":
			if len(idp.Users) == 0 {
				return fmt.Errorf("config: identity provider %q (local) must configure at least one user", idp.ID)
			}
		case "github":
			if idp.ClientID == "" || idp.ClientSecret == "" {
				return fmt.Errorf("config: identity provider %q (github) requires clientId and clientSecret", idp.ID)
			}
		}
	}

	for _, c := range o.Clients {
		if c.HasGrant("authorization_code") && len(c.RedirectURIs) == 0 {
			return fmt.Errorf("config: client %q allows authorization_code but has no redirectUris", c.ClientID)
		}
	}

	return nil
}

// HasGrant reports whether grant is among the preregistered client's
// configured grant types.
func (c PreregisteredClient) HasGrant(grant string) bool {
	for _, g := range c.GrantTypes {
		if g == grant {
			return true
		}
	}
	return false
}
