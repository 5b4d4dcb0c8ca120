// Package identity provides the uniform abstraction over form-based
// (username/password) and redirect-based (external OAuth) login, per
// spec §4.3. Per the teacher's dynamic-dictionary-as-tagged-union design
// note (spec §9), this is kept as two distinct interfaces rather than one
// method with optional parameters.
package identity

import "net/url"

// User is an authenticated user record, produced by a provider and
// consumed by the OAuth server. Id is prefixed by the provider's source,
// e.g. "local:alice" or "github:1234".
type User struct {
	ID          string
	DisplayName string
}

// Provider is implemented by both FormProvider and RedirectProvider; it
// exists so callers can hold a heterogeneous list and type-switch on the
// concrete kind.
type Provider interface {
	// ID returns the provider's configuration id, e.g. "local" or "github".
	ID() string
}

// FormProvider authenticates a user from a submitted username and
// password.
type FormProvider interface {
	Provider
	Validate(username, password string) (User, bool)
}

// RedirectProvider authenticates a user by redirecting the browser to an
// external authorization endpoint and handling its callback.
type RedirectProvider interface {
	Provider
	// AuthorizationURL builds the URL to redirect the browser to, given the
	// gateway's own callback URL and an opaque state value (the pending
	// session id).
	AuthorizationURL(callbackURL, state string) string
	// HandleCallback consumes the external provider's redirect query
	// parameters and returns the authenticated user, or false on failure.
	HandleCallback(query url.Values) (User, bool)
}
