package lockout_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jrsteele09/go-tenant-auth/lockout"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()

	if os.Getenv("SKIP_INTEGRATION") == "true" {
		t.Skip("SKIP_INTEGRATION=true, skipping Redis integration tests")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("skipping: could not start Redis container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestRedisStore(t *testing.T) {
	store := lockout.NewRedisStore(setupRedis(t))
	ctx := context.Background()

	n, err := store.Incr(ctx, "lockout:fail:t1:alice", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	n, err = store.Incr(ctx, "lockout:fail:t1:alice", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	require.NoError(t, store.SetFlag(ctx, "lockout:lock:t1:alice", time.Minute))
	ok, err := store.Exists(ctx, "lockout:lock:t1:alice")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, store.Delete(ctx, "lockout:lock:t1:alice", "lockout:fail:t1:alice"))
	ok, err = store.Exists(ctx, "lockout:lock:t1:alice")
	require.NoError(t, err)
	require.False(t, ok)
}
