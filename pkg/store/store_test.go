package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kandobyte/mcpbox/pkg/store"
)

func newStores(t *testing.T) map[string]store.Store {
	t.Helper()
	sqlStore, err := store.NewSQL(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlStore.Close() })

	return map[string]store.Store{
		"memory": store.NewMemory(),
		"sql":    sqlStore,
	}
}

func TestRefreshTokenRotationIsAtomic(t *testing.T) {
	ctx := context.Background()
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			oldToken := store.Token{TokenHash: "old-hash", ClientID: "c1", UserID: "u1", ExpiresAt: time.Now().Add(time.Hour)}
			require.NoError(t, s.SaveRefreshToken(ctx, oldToken))

			_, err := s.GetRefreshToken(ctx, "old-hash")
			require.NoError(t, err, "old hash must be reachable before rotation")

			newToken := store.Token{TokenHash: "new-hash", ClientID: "c1", UserID: "u1", ExpiresAt: time.Now().Add(time.Hour)}
			require.NoError(t, s.RotateRefreshToken(ctx, "old-hash", newToken))

			_, err = s.GetRefreshToken(ctx, "old-hash")
			require.ErrorIs(t, err, store.ErrNotFound, "old hash must be unreachable after rotation")

			got, err := s.GetRefreshToken(ctx, "new-hash")
			require.NoError(t, err, "new hash must be reachable after rotation")
			require.Equal(t, "c1", got.ClientID)
		})
	}
}

func TestAccessTokenExpiry(t *testing.T) {
	ctx := context.Background()
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			tok := store.Token{TokenHash: "h", ClientID: "c1", UserID: "u1", ExpiresAt: time.Now().Add(-time.Second)}
			require.NoError(t, s.SaveAccessToken(ctx, tok))

			_, err := s.GetAccessToken(ctx, "h")
			require.ErrorIs(t, err, store.ErrNotFound)
		})
	}
}

func TestClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			c := store.Client{
				ClientID:   "dyn-1",
				GrantTypes: []string{"authorization_code"},
				IsDynamic:  true,
			}
			require.NoError(t, s.SaveClient(ctx, c))

			got, err := s.GetClient(ctx, "dyn-1")
			require.NoError(t, err)
			require.True(t, got.IsDynamic)

			dynamic, err := s.ListDynamicClients(ctx)
			require.NoError(t, err)
			require.Len(t, dynamic, 1)

			require.NoError(t, s.DeleteClient(ctx, "dyn-1"))
			_, err = s.GetClient(ctx, "dyn-1")
			require.ErrorIs(t, err, store.ErrNotFound)
		})
	}
}
