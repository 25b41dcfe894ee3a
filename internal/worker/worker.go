package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chxlky/trello-webhook-panel/internal/queue"
	"go.uber.org/zap"
)

type TaskProcessor interface {
	Process(ctx context.Context, task queue.Task) (Outcome, error)
}

type Config struct {
	MaxAttempts int
	// ErrorBackoff is how long the loop pauses after the consumer itself fails.
	ErrorBackoff time.Duration
	// RetryDelay is how long a failed task waits before it is requeued.
	RetryDelay time.Duration
}

type Worker struct {
	consumer  queue.Consumer
	processor TaskProcessor
	cfg       Config

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func New(consumer queue.Consumer, processor TaskProcessor, cfg Config) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = time.Second
	}
	return &Worker{
		consumer:  consumer,
		processor: processor,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

func (w *Worker) Run(ctx context.Context) error {
	defer close(w.stoppedCh)

	zap.L().Info("Worker started", zap.Int("maxAttempts", w.cfg.MaxAttempts))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			zap.L().Info("Worker stopping")
			return nil
		default:
			if err := w.processOneBatch(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				zap.L().Error("Batch processing error", zap.Error(err))
				time.Sleep(w.cfg.ErrorBackoff)
			}
		}
	}
}

func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.stoppedCh
}

func (w *Worker) processOneBatch(ctx context.Context) error {
	messages, err := w.consumer.Read(ctx)
	if err != nil {
		return fmt.Errorf("reading from queue: %w", err)
	}

	for _, msg := range messages {
		w.handle(ctx, msg)
	}
	return nil
}

func (w *Worker) handle(ctx context.Context, msg queue.Message) {
	outcome, err := w.processSafe(ctx, msg)
	if err != nil {
		zap.L().Error("Task processing failed",
			zap.String("messageID", msg.ID),
			zap.String("taskID", msg.Task.ID),
			zap.Int("attempt", msg.Attempt),
			zap.Error(err))
		w.handleFailed(ctx, msg, err)
		return
	}

	if !outcome.Copied {
		zap.L().Debug("Task skipped", zap.String("taskID", msg.Task.ID), zap.String("reason", outcome.Reason))
	}
	if err := w.consumer.Ack(ctx, msg); err != nil {
		zap.L().Error("Failed to ack message", zap.String("messageID", msg.ID), zap.Error(err))
	}
}

func (w *Worker) processSafe(ctx context.Context, msg queue.Message) (outcome Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("Panic recovered in task processing", zap.Any("panic", r), zap.String("messageID", msg.ID))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.processor.Process(ctx, msg.Task)
}

func (w *Worker) handleFailed(ctx context.Context, msg queue.Message, cause error) {
	var err error
	if msg.Attempt >= w.cfg.MaxAttempts {
		err = w.consumer.SendDLQ(ctx, msg, cause.Error())
	} else {
		if w.cfg.RetryDelay > 0 {
			timer := time.NewTimer(w.cfg.RetryDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				zap.L().Warn("Shutting down before requeue", zap.String("messageID", msg.ID))
				return
			case <-timer.C:
			}
		}
		err = w.consumer.Requeue(ctx, msg, cause.Error())
	}
	if err != nil {
		zap.L().Error("Failed to reschedule message", zap.String("messageID", msg.ID), zap.Error(err))
	}
}
