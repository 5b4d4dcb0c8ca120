package main

import (
	"context"
	"fmt"

	"github.com/kandobyte/mcpbox/pkg/authserver"
	"github.com/kandobyte/mcpbox/pkg/config"
	"github.com/kandobyte/mcpbox/pkg/store"
)

// buildAuthServer instantiates the embedded OAuth authorization server from
// the loaded configuration, persisting any preregistered clients before the
// server starts accepting requests (spec §4.4).
func buildAuthServer(ctx context.Context, cfg *config.Config, st store.Store) (*authserver.Server, error) {
	forms, redirects, err := cfg.IdentityProviders()
	if err != nil {
		return nil, err
	}

	clients, err := cfg.PreregisteredClients()
	if err != nil {
		return nil, err
	}
	for _, c := range clients {
		if err := st.SaveClient(ctx, c); err != nil {
			return nil, fmt.Errorf("persisting preregistered client %q: %w", c.ClientID, err)
		}
	}

	return authserver.New(authserver.Options{
		Issuer:                     cfg.Issuer(),
		FormProviders:              forms,
		RedirectProviders:          redirects,
		DynamicRegistrationEnabled: cfg.Auth.OAuth.DynamicRegistration,
		PreregisteredClients:       clients,
	}, st), nil
}
