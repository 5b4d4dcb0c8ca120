// Package config loads and validates the gateway's JSON configuration
// file, per spec §6: a single document carrying the HTTP port, logging
// options, the auth tagged union, the storage tagged union and the set of
// managed MCP children. Unknown top-level keys are rejected, "${VAR}"
// placeholders are resolved from the process environment before decoding,
// and struct-tag validation is layered on top of the manual tagged-union
// checks the schema requires.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Config is the top-level configuration document, per spec §6.
type Config struct {
	Server Server            `json:"server"`
	Log    Log               `json:"log"`
	Auth   Auth              `json:"auth"`
	Storage Storage          `json:"storage"`
	McpServers map[string]McpServer `json:"mcpServers"`
}

// Server holds the HTTP listener settings.
type Server struct {
	Port int `json:"port" validate:"min=1,max=65535"`
}

// Log holds the structured-logging settings.
type Log struct {
	Level         string `json:"level" validate:"omitempty,oneof=debug info warn error"`
	Format        string `json:"format" validate:"omitempty,oneof=pretty json"`
	RedactSecrets *bool  `json:"redactSecrets"`
	McpDebug      bool   `json:"mcpDebug"`
}

// Auth is the authentication tagged union, discriminated by Type, per spec
// §6.
type Auth struct {
	Type   string      `json:"type" validate:"omitempty,oneof=apikey oauth"`
	APIKey *APIKeyAuth `json:"apikey,omitempty" validate:"omitempty"`
	OAuth  *OAuthAuth  `json:"oauth,omitempty" validate:"omitempty"`
}

// APIKeyAuth configures static API-key authentication.
type APIKeyAuth struct {
	APIKey string `json:"apiKey" validate:"required,apikeyformat"`
}

// OAuthAuth configures the embedded authorization server.
type OAuthAuth struct {
	Issuer               string             `json:"issuer" validate:"omitempty,url"`
	IdentityProviders    []IdentityProvider `json:"identityProviders,omitempty" validate:"omitempty,dive"`
	Clients              []PreregisteredClient `json:"clients,omitempty" validate:"omitempty,dive"`
	DynamicRegistration  bool               `json:"dynamicRegistration"`
}

// IdentityProvider is the tagged union of form/redirect identity provider
// configuration, per spec §4.3.
type IdentityProvider struct {
	ID   string `json:"id" validate:"required"`
	Type string `json:"type" validate:"required,oneof=local github"`

	// type: local
	Users []LocalUserConfig `json:"users,omitempty" validate:"omitempty,dive"`

	// type: github
	ClientID     string   `json:"clientId,omitempty"`
	ClientSecret string   `json:"clientSecret,omitempty"`
	AllowedOrgs  []string `json:"allowedOrgs,omitempty"`
	AllowedUsers []string `json:"allowedUsers,omitempty"`
}

// LocalUserConfig is one entry of a "local" identity provider's user list.
type LocalUserConfig struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// PreregisteredClient is a client configured at startup, persisted into the
// store before the authorization server starts, per spec §4.4.
type PreregisteredClient struct {
	ClientID     string   `json:"clientId" validate:"required"`
	ClientSecret string   `json:"clientSecret,omitempty"`
	ClientName   string   `json:"clientName,omitempty"`
	RedirectURIs []string `json:"redirectUris,omitempty" validate:"omitempty,dive,url"`
	GrantTypes   []string `json:"grantTypes" validate:"required,dive,oneof=authorization_code client_credentials refresh_token"`
}

// Storage is the persistence tagged union, discriminated by Type, per spec
// §6.
type Storage struct {
	Type   string        `json:"type" validate:"required,oneof=memory sqlite"`
	SQLite *SQLiteStorage `json:"sqlite,omitempty"`
}

// SQLiteStorage configures the embedded sqlite-backed store.
type SQLiteStorage struct {
	Path string `json:"path" validate:"required"`
}

// McpServer is one managed child process entry, per spec §3 "Managed MCP
// child".
type McpServer struct {
	Command       string            `json:"command" validate:"required"`
	Args          []string          `json:"args,omitempty"`
	Env           map[string]string `json:"env,omitempty"`
	Tools         []string          `json:"tools,omitempty"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("apikeyformat", func(fl validator.FieldLevel) bool {
		return apiKeyPattern.MatchString(fl.Field().String())
	})
	return v
}

// Load reads, expands and validates the configuration file at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded, err := expandEnv(raw)
	if err != nil {
		return nil, err
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(expanded))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = envOr("LOG_LEVEL", "info")
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "pretty"
	}
	if cfg.Log.RedactSecrets == nil {
		t := true
		cfg.Log.RedactSecrets = &t
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validating config file: %w", err)
	}
	if err := checkCrossField(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// expandEnv resolves every "${VAR}" placeholder in raw from the process
// environment. An unresolved variable aborts the load, per spec §6.
func expandEnv(raw []byte) ([]byte, error) {
	var missing []string
	expanded := os.Expand(string(raw), func(name string) string {
		v, ok := os.LookupEnv(name)
		if !ok {
			missing = append(missing, name)
			return ""
		}
		return v
	})
	if len(missing) > 0 {
		return nil, fmt.Errorf("config file references undefined environment variable(s): %s", strings.Join(missing, ", "))
	}
	return []byte(expanded), nil
}
