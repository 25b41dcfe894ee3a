package queue

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrQueueFull = errors.New("queue is full")

// MemoryQueue is the single-process queue used when no Redis URL is configured. Messages do not
// survive a restart.
type MemoryQueue struct {
	ch        chan Message
	block     time.Duration
	batchSize int
	seq       atomic.Int64

	mu   sync.Mutex
	dead []Message
}

var (
	_ Producer = (*MemoryQueue)(nil)
	_ Consumer = (*MemoryQueue)(nil)
)

func NewMemoryQueue(size int, batchSize int, block time.Duration) *MemoryQueue {
	if size <= 0 {
		size = 256
	}
	if batchSize <= 0 {
		batchSize = 10
	}
	return &MemoryQueue{
		ch:        make(chan Message, size),
		block:     block,
		batchSize: batchSize,
	}
}

func (q *MemoryQueue) push(msg Message) error {
	select {
	case q.ch <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, task Task) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	id := strconv.FormatInt(q.seq.Add(1), 10)
	return q.push(Message{ID: id, Task: task, Attempt: 1})
}

// Read waits up to the block duration for a first message, then drains whatever else is ready.
func (q *MemoryQueue) Read(ctx context.Context) ([]Message, error) {
	timer := time.NewTimer(q.block)
	defer timer.Stop()

	var messages []Message
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, nil
	case msg := <-q.ch:
		messages = append(messages, msg)
	}

	for len(messages) < q.batchSize {
		select {
		case msg := <-q.ch:
			messages = append(messages, msg)
		default:
			return messages, nil
		}
	}
	return messages, nil
}

func (q *MemoryQueue) Ack(context.Context, Message) error {
	return nil
}

func (q *MemoryQueue) Requeue(_ context.Context, msg Message, errMsg string) error {
	msg.Attempt++
	zap.L().Info("Message requeued for retry", zap.String("taskID", msg.Task.ID), zap.Int("nextAttempt", msg.Attempt), zap.String("reason", errMsg))
	return q.push(msg)
}

func (q *MemoryQueue) SendDLQ(_ context.Context, msg Message, errMsg string) error {
	q.mu.Lock()
	q.dead = append(q.dead, msg)
	q.mu.Unlock()

	zap.L().Error("Message dead-lettered", zap.String("taskID", msg.Task.ID), zap.String("finalError", errMsg))
	return nil
}

// DeadLetters returns the messages that ran out of attempts.
func (q *MemoryQueue) DeadLetters() []Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Message(nil), q.dead...)
}

func (q *MemoryQueue) Close() error {
	return nil
}
