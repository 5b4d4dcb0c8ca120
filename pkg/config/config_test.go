package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "mcpbox.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMinimalConfig(t *testing.T) {
	path := writeConfig(t, `{
		"storage": {"type": "memory"},
		"mcpServers": {
			"mock": {"command": "mock-server"}
		}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "pretty", cfg.Log.Format)
	assert.True(t, *cfg.Log.RedactSecrets)
	assert.Equal(t, "", cfg.Auth.Type)
	assert.Len(t, cfg.McpServers, 1)
}

func TestLoadRejectsUnknownField(t *testing.T) {
	path := writeConfig(t, `{
		"storage": {"type": "memory"},
		"mcpServers": {"mock": {"command": "mock-server"}},
		"bogus": true
	}`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("MCPBOX_API_KEY", "abcdefghijklmnopqrstuvwx")
	path := writeConfig(t, `{
		"storage": {"type": "memory"},
		"auth": {"type": "apikey", "apikey": {"apiKey": "${MCPBOX_API_KEY}"}},
		"mcpServers": {"mock": {"command": "mock-server"}}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Auth.APIKey)
	assert.Equal(t, "abcdefghijklmnopqrstuvwx", cfg.Auth.APIKey.APIKey)
}

func TestLoadFailsOnUnresolvedEnvVar(t *testing.T) {
	path := writeConfig(t, `{
		"storage": {"type": "memory"},
		"auth": {"type": "apikey", "apikey": {"apiKey": "${MCPBOX_MISSING_VAR}"}},
		"mcpServers": {"mock": {"command": "mock-server"}}
	}`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsBadAPIKeyFormat(t *testing.T) {
	path := writeConfig(t, `{
		"storage": {"type": "memory"},
		"auth": {"type": "apikey", "apikey": {"apiKey": "short"}},
		"mcpServers": {"mock": {"command": "mock-server"}}
	}`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsOAuthWithNoIdentityNoClientsNoIssuer(t *testing.T) {
	path := writeConfig(t, `{
		"storage": {"type": "memory"},
		"auth": {"type": "oauth", "oauth": {}},
		"mcpServers": {"mock": {"command": "mock-server"}}
	}`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsDynamicRegistrationWithoutIdentityProvider(t *testing.T) {
	path := writeConfig(t, `{
		"storage": {"type": "memory"},
		"auth": {"type": "oauth", "oauth": {"issuer": "https://mcpbox.example.com", "dynamicRegistration": true}},
		"mcpServers": {"mock": {"command": "mock-server"}}
	}`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadAcceptsFullOAuthConfig(t *testing.T) {
	path := writeConfig(t, `{
		"storage": {"type": "sqlite", "sqlite": {"path": "mcpbox.db"}},
		"auth": {
			"type": "oauth",
			"oauth": {
				"issuer": "https://mcpbox.example.com",
				"identityProviders": [
					{"id": "local", "type": "local", "users": [{"username": "alice", "password": "hunter22"}]}
				],
				"clients": [
					{"clientId": "cli-tool", "grantTypes": ["client_credentials"]}
				],
				"dynamicRegistration": true
			}
		},
		"mcpServers": {"mock": {"command": "mock-server", "args": ["--stdio"]}}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://mcpbox.example.com", cfg.Issuer())

	forms, redirects, err := cfg.IdentityProviders()
	require.NoError(t, err)
	assert.Len(t, forms, 1)
	assert.Len(t, redirects, 0)

	clients, err := cfg.PreregisteredClients()
	require.NoError(t, err)
	require.Len(t, clients, 1)
	assert.Equal(t, "cli-tool", clients[0].ClientID)
}
