package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type redisProducer struct {
	client *redis.Client
	stream string
}

func NewRedisProducer(client *redis.Client, stream string) Producer {
	return &redisProducer{client: client, stream: stream}
}

func (p *redisProducer) Enqueue(ctx context.Context, task Task) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}

	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encoding task: %w", err)
	}

	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{"task": string(payload), "attempt": 1},
	}).Err(); err != nil {
		return fmt.Errorf("enqueue task: %w", err)
	}

	zap.L().Debug("Enqueued event task",
		zap.String("taskID", task.ID),
		zap.String("userEmail", task.UserEmail),
		zap.String("eventType", task.EventType))
	return nil
}

// Close is a no-op; the client belongs to the caller.
func (p *redisProducer) Close() error {
	return nil
}
