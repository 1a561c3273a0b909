package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRevocationStore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	store := NewMemoryRevocationStore()
	store.now = func() time.Time { return now }

	revoked, err := store.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked, "expected unknown token to be valid")

	require.NoError(t, store.Revoke(ctx, "jti-1", time.Minute))
	revoked, err = store.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked, "expected revoked token to be reported")

	require.NoError(t, store.Revoke(ctx, "jti-expired", 0))
	revoked, err = store.IsRevoked(ctx, "jti-expired")
	require.NoError(t, err)
	assert.False(t, revoked, "expected non-positive ttl to be ignored")

	now = now.Add(2 * time.Minute)
	revoked, err = store.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked, "expected revocation to lapse with the token")
	assert.NoError(t, store.Close())
}

func TestNewRedisRevocationStore_InvalidURL(t *testing.T) {
	tcases := []struct {
		name string
		url  string
	}{
		{name: "empty", url: ""},
		{name: "wrong scheme", url: "http://localhost:6379"},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewRedisRevocationStore(context.Background(), tc.url)
			assert.Error(t, err)
		})
	}
}

func Test_revokedKey(t *testing.T) {
	assert.Equal(t, "brandchat:revoked:abc", revokedKey("abc"))
}
