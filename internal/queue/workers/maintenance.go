package workers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/lucidchat/ctxengine/internal/memorypressure"
	"github.com/lucidchat/ctxengine/internal/multicache"
	"github.com/lucidchat/ctxengine/internal/repo"
)

// CacheOptimizeWorker runs the multi-tier cache's (C8) periodic
// re-balancing pass on an asynq schedule, generalizing the teacher's
// single-purpose document/embedding workers to a maintenance task with no
// payload of its own.
type CacheOptimizeWorker struct {
	cache *multicache.Cache
}

func NewCacheOptimizeWorker(cache *multicache.Cache) *CacheOptimizeWorker {
	return &CacheOptimizeWorker{cache: cache}
}

func (w *CacheOptimizeWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	report := w.cache.Optimize()
	slog.Info("cache optimize tick", "expired_removed", report.ExpiredRemoved, "rebalanced", report.Rebalanced, "patterns_compacted", report.PatternsCompacted)
	return nil
}

// MemoryPollWorker drives the memory pressure monitor's (C10) poll loop
// from the worker process rather than (or in addition to) the API
// process's own background goroutine, so pressure-triggered cleanups keep
// firing even if the API process is otherwise idle.
type MemoryPollWorker struct {
	monitor *memorypressure.Monitor
}

func NewMemoryPollWorker(monitor *memorypressure.Monitor) *MemoryPollWorker {
	return &MemoryPollWorker{monitor: monitor}
}

func (w *MemoryPollWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	pressure := w.monitor.Pressure(nil)
	slog.Info("memory poll tick", "level", pressure.Level, "heap_percent", pressure.HeapPercent)
	if pressure.Level == memorypressure.LevelCritical || pressure.Level == memorypressure.LevelHigh {
		w.monitor.ForceGC()
	}
	return nil
}

// SummaryInvalidateWorker sweeps conversations whose message count has
// outgrown their latest valid summary and marks those summaries stale, so
// assembly, which reads only valid summaries, stops serving content that
// predates new messages. Nothing here regenerates the summaries.
type SummaryInvalidateWorker struct {
	conversations repo.ConversationRepo
	summaries     repo.SummaryRepo
	batchSize     int
}

func NewSummaryInvalidateWorker(conversations repo.ConversationRepo, summaries repo.SummaryRepo) *SummaryInvalidateWorker {
	return &SummaryInvalidateWorker{conversations: conversations, summaries: summaries, batchSize: 500}
}

func (w *SummaryInvalidateWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	stale, err := w.conversations.FindStaleConversations(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("find stale conversations: %w", err)
	}

	invalidated := 0
	for _, convID := range stale {
		n, err := w.summaries.InvalidateForConversation(ctx, convID)
		if err != nil {
			slog.Warn("summary invalidation failed", "conversation_id", convID, "error", err)
			continue
		}
		invalidated += n
	}

	slog.Info("summary invalidate sweep", "conversations", len(stale), "summaries_invalidated", invalidated)
	return nil
}
