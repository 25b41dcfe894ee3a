package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTask() Task {
	return Task{
		TrelloEvent: json.RawMessage(`{"action":{"type":"commentCard"}}`),
		UserEmail:   "ann@example.com",
		BoardID:     "b1",
		BoardName:   "Eng",
		EventType:   "Mentioned in a card",
		LabelID:     "lab1",
	}
}

func TestMemoryQueueRoundTrip(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(4, 10, 10*time.Millisecond)

	require.NoError(t, q.Enqueue(ctx, sampleTask()))
	require.NoError(t, q.Enqueue(ctx, sampleTask()))

	msgs, err := q.Read(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, 1, msgs[0].Attempt)
	assert.NotEmpty(t, msgs[0].Task.ID)
	assert.NotEqual(t, msgs[0].ID, msgs[1].ID)
	assert.Equal(t, "ann@example.com", msgs[0].Task.UserEmail)

	empty, err := q.Read(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMemoryQueueRequeueAndDLQ(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(4, 10, 10*time.Millisecond)
	require.NoError(t, q.Enqueue(ctx, sampleTask()))

	msgs, err := q.Read(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Requeue(ctx, msgs[0], "boom"))

	msgs, err = q.Read(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, 2, msgs[0].Attempt)

	require.NoError(t, q.SendDLQ(ctx, msgs[0], "boom"))
	assert.Len(t, q.DeadLetters(), 1)
}

func TestMemoryQueueFull(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(1, 10, time.Millisecond)
	require.NoError(t, q.Enqueue(ctx, sampleTask()))
	assert.ErrorIs(t, q.Enqueue(ctx, sampleTask()), ErrQueueFull)
}

func TestMemoryQueueReadHonoursContext(t *testing.T) {
	q := NewMemoryQueue(1, 10, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Read(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisProducerConsumer(t *testing.T) {
	ctx := context.Background()
	client := newRedis(t)
	cfg := ConsumerConfig{
		Stream:    "events",
		Group:     "workers",
		Consumer:  "w1",
		DLQStream: "events-dlq",
		BatchSize: 10,
		Block:     -1,
	}

	consumer, err := NewRedisConsumer(ctx, client, cfg)
	require.NoError(t, err)
	// Creating the group twice is not an error.
	_, err = NewRedisConsumer(ctx, client, cfg)
	require.NoError(t, err)

	producer := NewRedisProducer(client, cfg.Stream)
	require.NoError(t, producer.Enqueue(ctx, sampleTask()))

	msgs, err := consumer.Read(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	msg := msgs[0]
	assert.Equal(t, 1, msg.Attempt)
	assert.Equal(t, "b1", msg.Task.BoardID)
	assert.JSONEq(t, `{"action":{"type":"commentCard"}}`, string(msg.Task.TrelloEvent))

	require.NoError(t, consumer.Requeue(ctx, msg, "temporary"))
	msgs, err = consumer.Read(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, 2, msgs[0].Attempt)
	assert.Equal(t, msg.Task.ID, msgs[0].Task.ID)

	require.NoError(t, consumer.SendDLQ(ctx, msgs[0], "permanent"))
	dlq, err := client.XRange(ctx, cfg.DLQStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, dlq, 1)
	assert.Equal(t, "permanent", dlq[0].Values["error"])

	pending, err := client.XPending(ctx, cfg.Stream, cfg.Group).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending.Count)
}

func TestParseMessageRejectsGarbage(t *testing.T) {
	_, err := ParseMessage(redis.XMessage{ID: "1-0", Values: map[string]interface{}{}})
	assert.Error(t, err)

	_, err = ParseMessage(redis.XMessage{ID: "1-0", Values: map[string]interface{}{"task": "{"}})
	assert.Error(t, err)

	_, err = ParseMessage(redis.XMessage{ID: "1-0", Values: map[string]interface{}{"task": "{}", "attempt": "x"}})
	assert.Error(t, err)

	msg, err := ParseMessage(redis.XMessage{ID: "1-0", Values: map[string]interface{}{"task": `{"user_email":"a"}`}})
	require.NoError(t, err)
	assert.Equal(t, 1, msg.Attempt)
}
