package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type ConsumerConfig struct {
	Stream    string        // Redis stream name
	Group     string        // Redis consumer group name
	Consumer  string        // Redis consumer name
	DLQStream string        // Dead letter stream for messages out of attempts
	BatchSize int64         // Messages read per call
	Block     time.Duration // How long Read blocks waiting for messages
}

type RedisConsumer struct {
	client *redis.Client
	cfg    ConsumerConfig
}

var _ Consumer = (*RedisConsumer)(nil)

func NewRedisConsumer(ctx context.Context, client *redis.Client, cfg ConsumerConfig) (*RedisConsumer, error) {
	consumer := &RedisConsumer{client: client, cfg: cfg}

	// Start from "0" so messages added before the group existed are still delivered.
	if err := client.XGroupCreateMkStream(ctx, cfg.Stream, cfg.Group, "0").Err(); err != nil &&
		!strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("creating consumer group: %w", err)
	}

	return consumer, nil
}

func (c *RedisConsumer) Read(ctx context.Context) ([]Message, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		Streams:  []string{c.cfg.Stream, ">"},
		Count:    c.cfg.BatchSize,
		Block:    c.cfg.Block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading from stream: %w", err)
	}

	var messages []Message
	for _, stream := range streams {
		for _, raw := range stream.Messages {
			msg, err := ParseMessage(raw)
			if err != nil {
				zap.L().Error("Dropping unparsable message", zap.String("messageID", raw.ID), zap.Error(err))
				_ = c.Ack(ctx, Message{ID: raw.ID})
				continue
			}
			messages = append(messages, msg)
		}
	}

	return messages, nil
}

func (c *RedisConsumer) Ack(ctx context.Context, msg Message) error {
	if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, msg.ID).Err(); err != nil {
		return fmt.Errorf("xack (stream=%s): %w", c.cfg.Stream, err)
	}
	return nil
}

func (c *RedisConsumer) Requeue(ctx context.Context, msg Message, errMsg string) error {
	if err := c.Ack(ctx, msg); err != nil {
		return fmt.Errorf("acking failed message for requeue: %w", err)
	}

	values, err := messageValues(msg, msg.Attempt+1)
	if err != nil {
		return err
	}
	values["last_error"] = errMsg

	if err := c.client.XAdd(ctx, &redis.XAddArgs{Stream: c.cfg.Stream, Values: values}).Err(); err != nil {
		return fmt.Errorf("xadd requeue: %w", err)
	}

	zap.L().Info("Message requeued for retry", zap.String("taskID", msg.Task.ID), zap.Int("nextAttempt", msg.Attempt+1), zap.String("reason", errMsg))
	return nil
}

func (c *RedisConsumer) SendDLQ(ctx context.Context, msg Message, errMsg string) error {
	if err := c.Ack(ctx, msg); err != nil {
		return fmt.Errorf("acking failed message for dlq: %w", err)
	}

	values, err := messageValues(msg, msg.Attempt)
	if err != nil {
		return err
	}
	values["error"] = errMsg

	if err := c.client.XAdd(ctx, &redis.XAddArgs{Stream: c.cfg.DLQStream, Values: values}).Err(); err != nil {
		return fmt.Errorf("xadd dlq (stream=%s): %w", c.cfg.DLQStream, err)
	}

	zap.L().Error("Message sent to DLQ", zap.String("taskID", msg.Task.ID), zap.String("finalError", errMsg))
	return nil
}

func messageValues(msg Message, attempt int) (map[string]any, error) {
	payload, err := json.Marshal(msg.Task)
	if err != nil {
		return nil, fmt.Errorf("encoding task: %w", err)
	}
	return map[string]any{"task": string(payload), "attempt": attempt}, nil
}

func ParseMessage(raw redis.XMessage) (Message, error) {
	payload, ok := raw.Values["task"].(string)
	if !ok || payload == "" {
		return Message{}, errors.New("missing task")
	}

	var task Task
	if err := json.Unmarshal([]byte(payload), &task); err != nil {
		return Message{}, fmt.Errorf("decoding task: %w", err)
	}

	attempt := 1
	if s, ok := raw.Values["attempt"].(string); ok && s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return Message{}, fmt.Errorf("invalid attempt %q: %w", s, err)
		}
		attempt = n
	}

	return Message{ID: raw.ID, Task: task, Attempt: attempt}, nil
}
