package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) *redis.Client {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestCreateConsumerGroup_Idempotent(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, CreateConsumerGroup(ctx, client, "venue:sensor:stream", "ingest"))
	require.NoError(t, CreateConsumerGroup(ctx, client, "venue:sensor:stream", "ingest"))
}

func TestPublishAndRead(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, CreateConsumerGroup(ctx, client, "s1", "g1"))

	id, err := PublishJSONToStream(ctx, client, "s1", map[string]string{"sensorId": "sensor-1"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msgs, err := ReadFromStream(ctx, client, "s1", "g1", "c1", 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, id, msgs[0].ID)
	assert.JSONEq(t, `{"sensorId":"sensor-1"}`, msgs[0].Values["data"].(string))

	require.NoError(t, AckMessage(ctx, client, "s1", "g1", id))

	pending, err := client.XPending(ctx, "s1", "g1").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending.Count)
}

func TestReadPendingFromStream_RedeliversUnacked(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, CreateConsumerGroup(ctx, client, "s1", "g1"))
	id, err := PublishJSONToStream(ctx, client, "s1", map[string]string{"sensorId": "sensor-1"})
	require.NoError(t, err)

	pending, err := ReadPendingFromStream(ctx, client, "s1", "g1", "c1", 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	msgs, err := ReadFromStream(ctx, client, "s1", "g1", "c1", 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	// 未确认的消息不会再从 ">" 读到，但留在本消费者的 PEL 中
	msgs, err = ReadFromStream(ctx, client, "s1", "g1", "c1", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	pending, err = ReadPendingFromStream(ctx, client, "s1", "g1", "c1", 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, id, pending[0].ID)

	require.NoError(t, AckMessage(ctx, client, "s1", "g1", id))
	pending, err = ReadPendingFromStream(ctx, client, "s1", "g1", "c1", 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
