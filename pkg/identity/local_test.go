package identity_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kandobyte/mcpbox/pkg/crypto"
	"github.com/kandobyte/mcpbox/pkg/identity"
)

func TestLocalValidatePlaintext(t *testing.T) {
	p := identity.NewLocal("local", []identity.LocalUser{{Username: "testuser", Password: "testpass"}})

	user, ok := p.Validate("testuser", "testpass")
	require.True(t, ok)
	assert.Equal(t, "local:testuser", user.ID)

	_, ok = p.Validate("testuser", "wrong")
	assert.False(t, ok)

	_, ok = p.Validate("ghost", "testpass")
	assert.False(t, ok)
}

func TestLocalValidateBcrypt(t *testing.T) {
	hash, err := crypto.HashPassword("hunter2")
	require.NoError(t, err)

	p := identity.NewLocal("local", []identity.LocalUser{{Username: "alice", Password: hash}})

	_, ok := p.Validate("alice", "hunter2")
	assert.True(t, ok)

	_, ok = p.Validate("alice", "wrong")
	assert.False(t, ok)
}
