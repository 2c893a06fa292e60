package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"

	"github.com/lucidchat/ctxengine/internal/config"
	"github.com/lucidchat/ctxengine/internal/database"
	"github.com/lucidchat/ctxengine/internal/memorypressure"
	"github.com/lucidchat/ctxengine/internal/multicache"
	"github.com/lucidchat/ctxengine/internal/queue"
	"github.com/lucidchat/ctxengine/internal/queue/workers"
	"github.com/lucidchat/ctxengine/internal/repo"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	db, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		slog.Error("database unavailable, worker cannot run maintenance jobs", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
		},
	)

	// Context engine maintenance collaborators (C8/C10/C11), mirroring the
	// construction in internal/api.Router.NewRouter minus the HTTP surface.
	memMonitor := memorypressure.New(memorypressure.Config{
		PollInterval: cfg.Memory.PollInterval,
		MaxRSS:       cfg.Memory.LimitBytes,
	})
	ctxCache := multicache.New(multicache.Config{
		L1Capacity:    cfg.Cache.L1Capacity,
		L2Capacity:    cfg.Cache.L2Capacity,
		L3Capacity:    cfg.Cache.L3Capacity,
		DefaultTTL:    cfg.Cache.L2TTL,
		OptimizeEvery: cfg.Cache.OptimizeEvery,
	}, nil)
	memMonitor.RegisterCleanup(ctxCache.Clear)

	convRepo := repo.NewPostgresConversationRepo(db)
	summaryRepo := repo.NewPostgresSummaryRepo(db)

	registry := queue.NewHandlersRegistry()

	cacheOptimizeWorker := workers.NewCacheOptimizeWorker(ctxCache)
	memoryPollWorker := workers.NewMemoryPollWorker(memMonitor)
	summaryInvalidateWorker := workers.NewSummaryInvalidateWorker(convRepo, summaryRepo)

	registry.Register(queue.TypeCacheOptimize, asynq.HandlerFunc(cacheOptimizeWorker.ProcessTask))
	registry.Register(queue.TypeMemoryPoll, asynq.HandlerFunc(memoryPollWorker.ProcessTask))
	registry.Register(queue.TypeSummaryInvalidate, asynq.HandlerFunc(summaryInvalidateWorker.ProcessTask))

	// Periodic scheduler: ticks the context engine's background maintenance
	// (cache rebalancing, memory polling, summary invalidation) onto the
	// same asynq queues the worker already drains.
	scheduler := asynq.NewScheduler(redisOpt, nil)
	if _, err := scheduler.Register("@every 1m", asynq.NewTask(queue.TypeCacheOptimize, nil), asynq.Queue("low")); err != nil {
		slog.Error("failed to register cache optimize schedule", "error", err)
		os.Exit(1)
	}
	if _, err := scheduler.Register("@every 30s", asynq.NewTask(queue.TypeMemoryPoll, nil), asynq.Queue("low")); err != nil {
		slog.Error("failed to register memory poll schedule", "error", err)
		os.Exit(1)
	}
	if _, err := scheduler.Register("@every 5m", asynq.NewTask(queue.TypeSummaryInvalidate, nil), asynq.Queue("default")); err != nil {
		slog.Error("failed to register summary invalidate schedule", "error", err)
		os.Exit(1)
	}

	go func() {
		slog.Info("starting maintenance scheduler")
		if err := scheduler.Run(); err != nil {
			slog.Error("scheduler error", "error", err)
		}
	}()

	slog.Info("starting worker", "concurrency", 10)
	if err := srv.Run(registry.Mux()); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}
}
