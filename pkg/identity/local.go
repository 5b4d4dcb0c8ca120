package identity

import (
	"github.com/kandobyte/mcpbox/pkg/crypto"
)

// LocalUser is one entry in a Local provider's configured user list.
type LocalUser struct {
	Username string
	Password string // plaintext or a bcrypt digest, per spec §4.3
}

// Local is the reference form provider: a fixed list of username/password
// records configured at startup.
type Local struct {
	id    string
	users []LocalUser
}

// NewLocal constructs a Local provider with the given id (usually "local")
// and user list.
func NewLocal(id string, users []LocalUser) *Local {
	return &Local{id: id, users: users}
}

func (l *Local) ID() string { return l.id }

func (l *Local) Validate(username, password string) (User, bool) {
	for _, u := range l.users {
		if u.Username != username {
			continue
		}
		if crypto.VerifyPassword(u.Password, password) {
			return User{ID: "local:" + username, DisplayName: username}, true
		}
		return User{}, false
	}
	return User{}, false
}

var _ FormProvider = (*Local)(nil)
