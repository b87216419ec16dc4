package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/conductorhq/agentorch/internal/config"
	"github.com/conductorhq/agentorch/internal/events"
	"github.com/conductorhq/agentorch/internal/logger"
	"github.com/conductorhq/agentorch/internal/processor"
	"github.com/conductorhq/agentorch/internal/prompts"
	"github.com/conductorhq/agentorch/internal/queue"
	"github.com/conductorhq/agentorch/internal/runner"
	"github.com/conductorhq/agentorch/internal/store"
	"github.com/conductorhq/agentorch/internal/task"
	"github.com/conductorhq/agentorch/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel, os.Getenv("ENV") != "production")
	log := logger.Get()
	log.Info().Msg("starting worker")

	if err := store.Migrate(cfg.Database.URL); err != nil {
		log.Fatal().Err(err).Msg("failed to apply migrations")
	}

	ctx := context.Background()

	pgStore, err := store.NewPostgresStore(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pgStore.Close()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		defer redisClient.Close()
	}
	waker := events.NewWaker(redisClient)

	retryPolicy := &task.RetryPolicy{
		Base:         cfg.Queue.RetryBaseDelay,
		MaxDelay:     cfg.Queue.RetryMaxDelay,
		MaxAttempts:  cfg.Queue.MaxTaskAttempts,
		JitterFactor: cfg.Queue.RetryJitterFactor,
	}
	q := queue.New(pgStore, retryPolicy, waker, cfg.Paths.OutputsPath)

	promptBuilder := prompts.NewBuilder(cfg.Paths.PromptsPath)
	agentRunner := runner.New(promptBuilder, cfg.External, cfg.Paths.SkillsPath)
	resultProcessor := processor.New()

	workerID := cfg.Worker.ID
	var hb *worker.Heartbeat
	if redisClient != nil {
		hb = worker.NewHeartbeat(redisClient, workerID, cfg.Worker.HeartbeatInterval, cfg.Worker.HeartbeatTimeout)
	}
	w := worker.NewWithID(workerID, q, agentRunner, resultProcessor, waker, hb, cfg.Worker.PollInterval)

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go w.Run(runCtx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down worker")
	cancel()
	w.Stop()

	log.Info().Msg("worker stopped")
}
