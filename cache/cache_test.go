package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/jrsteele09/go-tenant-auth/cache"
	"github.com/stretchr/testify/require"
)

type profile struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

func TestMemoryCacheJSONRoundTripAndExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	c := cache.NewMemoryCache(func() time.Time { return now })
	ctx := context.Background()

	_, ok, err := cache.GetJSON[profile](ctx, c, "p:alice")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, cache.SetJSON(ctx, c, "p:alice", profile{Username: "alice", Roles: []string{"tenant_user"}}, time.Minute))
	got, ok, err := cache.GetJSON[profile](ctx, c, "p:alice")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "alice", got.Username)

	now = now.Add(2 * time.Minute)
	_, ok, err = cache.GetJSON[profile](ctx, c, "p:alice")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryCacheDelete(t *testing.T) {
	c := cache.NewMemoryCache(nil)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Hour))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), time.Hour))
	require.NoError(t, c.Delete(ctx, "a"))

	_, ok, _ := c.Get(ctx, "a")
	require.False(t, ok)
	v, ok, _ := c.Get(ctx, "b")
	require.True(t, ok)
	require.Equal(t, []byte("2"), v)
}
