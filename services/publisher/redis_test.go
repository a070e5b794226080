package publisher

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisPublisher(t *testing.T) {
	ctx := context.Background()
	publisher := NewRedisPublisher("localhost:6379", 0, "stockwatch_test_stream", 100)
	defer publisher.Close()

	// Test if Redis is available
	if err := publisher.Ping(ctx); err != nil {
		t.Skip("Redis is not available, skipping test")
	}

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   0,
	})
	defer client.Close()
	client.Del(ctx, "stockwatch_test_stream")
	defer client.Del(ctx, "stockwatch_test_stream")

	err := publisher.Publish(ctx, KindSnapshot, "run-1", []byte(`{"sku":"A-1"}`))
	assert.NoError(t, err)
	err = publisher.Publish(ctx, KindRunSummary, "run-1", []byte(`{"persisted":1}`))
	assert.NoError(t, err)

	entries, err := client.XRange(ctx, "stockwatch_test_stream", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, KindSnapshot, entries[0].Values["kind"])
	assert.Equal(t, "run-1", entries[0].Values["run_id"])
	assert.Equal(t, `{"sku":"A-1"}`, entries[0].Values["payload"])
	assert.Equal(t, KindRunSummary, entries[1].Values["kind"])
}
