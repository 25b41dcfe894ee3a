package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/chxlky/trello-webhook-panel/api"
	"github.com/chxlky/trello-webhook-panel/database"
	"github.com/chxlky/trello-webhook-panel/integrations"
	"github.com/chxlky/trello-webhook-panel/internal/config"
	"github.com/chxlky/trello-webhook-panel/internal/logging"
	"github.com/chxlky/trello-webhook-panel/internal/queue"
	"github.com/chxlky/trello-webhook-panel/internal/worker"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	logger := logging.Install("debug")
	defer logger.Sync()

	cfg, err := config.Load("")
	if err != nil {
		zap.L().Fatal("Error reading config file", zap.Error(err))
	}
	if err := cfg.Validate(); err != nil {
		zap.L().Fatal("Invalid configuration", zap.Error(err))
	}

	db := database.Init(cfg.Database.Path)
	store := database.NewStore(db)

	trelloFactory := integrations.NewTrelloFactory(cfg.Trello)

	var identity integrations.IdentityVerifier
	if cfg.Google.Enabled() {
		identity = integrations.NewGoogleVerifier(cfg.Google.ClientID)
	} else {
		zap.L().Warn("google.client_id is not set; logins are accepted by email alone")
	}

	ctx, cancelWorkers := context.WithCancel(context.Background())

	var (
		producer    queue.Producer
		consumer    queue.Consumer
		redisClient *redis.Client
	)
	if cfg.Redis.Enabled() {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			zap.L().Fatal("Invalid redis.url", zap.Error(err))
		}
		redisClient = redis.NewClient(opts)

		consumerName := cfg.Redis.Consumer
		if consumerName == "" {
			consumerName = "worker-" + uuid.NewString()[:8]
		}
		producer = queue.NewRedisProducer(redisClient, cfg.Redis.Stream)
		consumer, err = queue.NewRedisConsumer(ctx, redisClient, queue.ConsumerConfig{
			Stream:    cfg.Redis.Stream,
			Group:     cfg.Redis.Group,
			Consumer:  consumerName,
			DLQStream: cfg.Redis.DLQStream,
			BatchSize: cfg.Worker.BatchSize,
			Block:     cfg.Worker.Block,
		})
		if err != nil {
			zap.L().Fatal("Failed to set up Redis consumer", zap.Error(err))
		}
		zap.L().Info("Using Redis event queue", zap.String("stream", cfg.Redis.Stream), zap.String("consumer", consumerName))
	} else {
		mem := queue.NewMemoryQueue(cfg.Worker.BufferSize, int(cfg.Worker.BatchSize), cfg.Worker.Block)
		producer, consumer = mem, mem
		zap.L().Info("Using in-memory event queue", zap.Int("buffer", cfg.Worker.BufferSize))
	}

	var workers sync.WaitGroup
	if cfg.Worker.Enabled {
		w := worker.New(consumer,
			worker.NewCardProcessor(store, trelloFactory, cfg.Trello.EnquiryList),
			worker.Config{MaxAttempts: cfg.Worker.MaxAttempts, RetryDelay: cfg.Worker.RetryDelay})
		workers.Add(1)
		go func() {
			defer workers.Done()
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				zap.L().Error("Worker stopped", zap.Error(err))
			}
		}()
	}

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(&api.Handler{
		Store:    store,
		Trello:   trelloFactory,
		Identity: identity,
		Queue:    producer,
		Redis:    redisClient,
		Config:   cfg,
	}, logger)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	zap.L().Info("Starting server", zap.String("port", cfg.Server.Port), zap.String("callbackURL", cfg.CallbackURL()))
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Fatal("Server error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	var once sync.Once

	cleanup := func(reason string) {
		zap.L().Info("Shutdown initiated", zap.String("reason", reason))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		zap.L().Info("Shutting down HTTP server...")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zap.L().Error("Error shutting down server", zap.Error(err))
		} else {
			zap.L().Info("HTTP server shut down gracefully.")
		}

		cancelWorkers()
		workers.Wait()

		if err := producer.Close(); err != nil {
			zap.L().Error("Error closing event queue", zap.Error(err))
		}
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				zap.L().Error("Error closing Redis client", zap.Error(err))
			}
		}

		if err := store.Close(); err != nil {
			zap.L().Error("Error closing database", zap.Error(err))
		} else {
			zap.L().Info("Database connection closed.")
		}
		close(done)
	}

	go func() {
		sig := <-sigCh
		once.Do(func() {
			cleanup(sig.String())
		})

		// if a second signal is caught, exit immediately
		go func() {
			<-sigCh
			zap.L().Info("Second interrupt signal received. Exiting immediately.")
			os.Exit(1)
		}()
	}()

	<-done
	zap.L().Info("Exiting...")
}
