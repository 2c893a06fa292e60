package workers

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucidchat/ctxengine/internal/memorypressure"
	"github.com/lucidchat/ctxengine/internal/models"
	"github.com/lucidchat/ctxengine/internal/multicache"
)

type fakeConversationRepo struct {
	stale []uuid.UUID
	err   error
}

func (f *fakeConversationRepo) FindByID(ctx context.Context, id uuid.UUID) (bool, error) {
	return true, nil
}
func (f *fakeConversationRepo) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	return true, nil
}
func (f *fakeConversationRepo) FindStaleConversations(ctx context.Context, limit int) ([]uuid.UUID, error) {
	return f.stale, f.err
}

type fakeSummaryRepo struct {
	invalidated map[uuid.UUID]int
	calls       []uuid.UUID
}

func (f *fakeSummaryRepo) FindValidByConversation(ctx context.Context, conversationID uuid.UUID, level *models.SummaryLevel) ([]models.Summary, error) {
	return nil, nil
}
func (f *fakeSummaryRepo) InvalidateForConversation(ctx context.Context, conversationID uuid.UUID) (int, error) {
	f.calls = append(f.calls, conversationID)
	return f.invalidated[conversationID], nil
}

func TestCacheOptimizeWorker_RunsOptimizePass(t *testing.T) {
	c := multicache.New(multicache.Config{L1Capacity: 10, L2Capacity: 10, L3Capacity: 10, DefaultTTL: time.Hour, OptimizeEvery: time.Hour}, nil)
	t.Cleanup(c.Stop)

	w := NewCacheOptimizeWorker(c)
	err := w.ProcessTask(context.Background(), asynq.NewTask("cache:optimize", nil))
	require.NoError(t, err)
}

func TestMemoryPollWorker_ReportsPressureWithoutPanicking(t *testing.T) {
	m := memorypressure.New(memorypressure.Config{PollInterval: time.Minute})
	w := NewMemoryPollWorker(m)

	err := w.ProcessTask(context.Background(), asynq.NewTask("memory:poll", nil))
	require.NoError(t, err)
}

func TestSummaryInvalidateWorker_InvalidatesEachStaleConversation(t *testing.T) {
	convA, convB := uuid.New(), uuid.New()
	conversations := &fakeConversationRepo{stale: []uuid.UUID{convA, convB}}
	summaries := &fakeSummaryRepo{invalidated: map[uuid.UUID]int{convA: 2, convB: 1}}

	w := NewSummaryInvalidateWorker(conversations, summaries)
	err := w.ProcessTask(context.Background(), asynq.NewTask("summary:invalidate", nil))

	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{convA, convB}, summaries.calls)
}
