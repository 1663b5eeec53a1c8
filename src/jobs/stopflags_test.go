package jobs

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testRedis connects to a live Redis or skips the test.
func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set, skipping live redis test")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis not reachable at %s: %v", addr, err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestStopFlagsLifecycle(t *testing.T) {
	client := testRedis(t)
	flags := NewStopFlags(client)
	ctx := context.Background()
	jobID := "test-" + uuid.New().String()
	t.Cleanup(func() { client.Del(ctx, stopKey(jobID)) })

	set, err := flags.IsSet(ctx, jobID)
	require.NoError(t, err)
	assert.False(t, set)

	require.NoError(t, flags.Set(ctx, jobID))

	set, err = flags.IsSet(ctx, jobID)
	require.NoError(t, err)
	assert.True(t, set)

	ttl, err := client.TTL(ctx, stopKey(jobID)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, stopFlagTTL)

	require.NoError(t, flags.Clear(ctx, jobID))
	set, err = flags.IsSet(ctx, jobID)
	require.NoError(t, err)
	assert.False(t, set)

	// Clearing an already clear flag is a no-op.
	require.NoError(t, flags.Clear(ctx, jobID))
}
