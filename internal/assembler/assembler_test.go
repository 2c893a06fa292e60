package assembler

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucidchat/ctxengine/internal/assembly"
	"github.com/lucidchat/ctxengine/internal/models"
	"github.com/lucidchat/ctxengine/internal/multicache"
	"github.com/lucidchat/ctxengine/internal/relevance"
	"github.com/lucidchat/ctxengine/internal/repo"
	"github.com/lucidchat/ctxengine/internal/tokenbudget"
)

type fakeMessageRepo struct {
	page repo.Page[models.Message]
}

func (f *fakeMessageRepo) FindByConversation(ctx context.Context, opts repo.MessageFindOptions) (repo.Page[models.Message], error) {
	return f.page, nil
}
func (f *fakeMessageRepo) FindWithEmbeddings(ctx context.Context, conversationID uuid.UUID, limit, offset int) (repo.Page[models.Message], error) {
	return repo.Page[models.Message]{}, nil
}
func (f *fakeMessageRepo) Search(ctx context.Context, opts repo.MessageSearchOptions) (repo.Page[repo.SearchResult], error) {
	return repo.Page[repo.SearchResult]{}, nil
}
func (f *fakeMessageRepo) FindChildren(ctx context.Context, parentID uuid.UUID) ([]models.Message, error) {
	return nil, nil
}

type fakeSummaryRepo struct {
	summaries []models.Summary
}

func (f *fakeSummaryRepo) FindValidByConversation(ctx context.Context, conversationID uuid.UUID, level *models.SummaryLevel) ([]models.Summary, error) {
	return f.summaries, nil
}
func (f *fakeSummaryRepo) InvalidateForConversation(ctx context.Context, conversationID uuid.UUID) (int, error) {
	return 0, nil
}

type fakeEmbeddingProvider struct{ available bool }

func (f *fakeEmbeddingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, nil
}
func (f *fakeEmbeddingProvider) Nearest(ctx context.Context, vector []float32, k int, conversationID uuid.UUID) ([]repo.NearestMatch, error) {
	return nil, nil
}
func (f *fakeEmbeddingProvider) IsAvailable(ctx context.Context) bool { return f.available }

type fakeCounter struct{}

func (fakeCounter) CountText(text string) (int, float64) {
	if text == "" {
		return 0, 4.0
	}
	return len(text)/4 + 1, 4.0
}

func newTestAssembler(t *testing.T, messages []models.Message, summaries []models.Summary) *Assembler {
	t.Helper()
	return newTestAssemblerWithCache(t, messages, summaries, nil)
}

func newTestAssemblerWithCache(t *testing.T, messages []models.Message, summaries []models.Summary, cache *multicache.Cache) *Assembler {
	t.Helper()
	optimizer, err := tokenbudget.New(tokenbudget.DefaultConfig(), fakeCounter{})
	require.NoError(t, err)

	return New(Config{
		Messages:   &fakeMessageRepo{page: repo.Page[models.Message]{Items: messages}},
		Summaries:  &fakeSummaryRepo{summaries: summaries},
		Embeddings: &fakeEmbeddingProvider{available: false},
		Cache:      cache,
		Counter:    fakeCounter{},
		Scorer:     relevance.New(relevance.DefaultConfig()),
		Dispatcher: assembly.NewDispatcher(),
		Optimizer:  optimizer,
	})
}

func testMessage(convID uuid.UUID, content string, minutesAgo int) models.Message {
	return models.Message{
		ID:             uuid.New(),
		ConversationID: convID,
		Role:           models.RoleUser,
		Content:        content,
		CreatedAtMS:    time.Now().Add(-time.Duration(minutesAgo) * time.Minute).UnixMilli(),
	}
}

func TestAssemble_RejectsEmptyQuery(t *testing.T) {
	a := newTestAssembler(t, nil, nil)
	_, err := a.Assemble(context.Background(), assembly.Request{Query: "  ", Budget: 1000})
	require.Error(t, err)
}

func TestAssemble_RejectsLowBudget(t *testing.T) {
	a := newTestAssembler(t, nil, nil)
	_, err := a.Assemble(context.Background(), assembly.Request{Query: "hello", Budget: 10})
	require.Error(t, err)
}

func TestAssemble_RejectsUnknownStrategy(t *testing.T) {
	a := newTestAssembler(t, nil, nil)
	_, err := a.Assemble(context.Background(), assembly.Request{Query: "hello", Budget: 1000, Strategy: "bogus"})
	require.Error(t, err)
}

func TestAssemble_EmptyCandidates_ReturnsHeaderOnly(t *testing.T) {
	a := newTestAssembler(t, nil, nil)
	result, err := a.Assemble(context.Background(), assembly.Request{Query: "hello", Budget: 1000})
	require.NoError(t, err)
	assert.Equal(t, "[Query: hello]", result.Text)
	assert.Empty(t, result.IncludedItems)
}

func TestAssemble_IncludesScoredMessages(t *testing.T) {
	convID := uuid.New()
	msgs := []models.Message{
		testMessage(convID, "we discussed the quarterly roadmap and agreed on the milestones for the next two releases", 5),
		testMessage(convID, "unrelated chit chat about lunch plans and which of the nearby cafes has the shortest queue", 10),
	}
	a := newTestAssembler(t, msgs, nil)

	result, err := a.Assemble(context.Background(), assembly.Request{
		Query:          "roadmap",
		ConversationID: convID,
		Budget:         1000,
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.IncludedItems)
	assert.Contains(t, result.Text, "roadmap")
}

func TestAssemble_CachesAndReturnsFromCache(t *testing.T) {
	convID := uuid.New()
	msgs := []models.Message{testMessage(convID, "roadmap planning notes", 1)}
	cache := multicache.New(multicache.Config{L1Capacity: 10, L2Capacity: 10, L3Capacity: 10, DefaultTTL: time.Hour, OptimizeEvery: time.Hour}, nil)
	t.Cleanup(cache.Stop)
	a := newTestAssemblerWithCache(t, msgs, nil, cache)
	req := assembly.Request{Query: "roadmap", ConversationID: convID, Budget: 1000}

	first, err := a.Assemble(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	second, err := a.Assemble(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Text, second.Text)
}

func TestAssemble_LongQuerySmallBudget_NeverExceedsBudget(t *testing.T) {
	a := newTestAssembler(t, nil, nil)
	longQuery := strings.Repeat("x", 2048)

	result, err := a.Assemble(context.Background(), assembly.Request{Query: longQuery, Budget: 100})
	require.NoError(t, err)
	assert.LessOrEqual(t, result.TokenCount, 100)
	assert.Equal(t, "", result.Text)
}

func TestAssemble_TokenBreakdown_ReportsMetadataAndBufferAllocation(t *testing.T) {
	a := newTestAssembler(t, nil, nil)
	result, err := a.Assemble(context.Background(), assembly.Request{Query: "hello", Budget: 1000})
	require.NoError(t, err)
	assert.Equal(t, 50, result.TokenBreakdown.Metadata)
	assert.Equal(t, 50, result.TokenBreakdown.Buffer)
}

func TestFingerprintFor_StableAcrossFocusTopicOrder(t *testing.T) {
	r1 := assembly.Request{Query: "q", Budget: 100, FocusTopics: []string{"a", "b"}}
	r2 := assembly.Request{Query: "q", Budget: 100, FocusTopics: []string{"b", "a"}}
	assert.Equal(t, fingerprintFor(r1), fingerprintFor(r2))
}

func TestFingerprintFor_DiffersOnBudget(t *testing.T) {
	r1 := assembly.Request{Query: "q", Budget: 100}
	r2 := assembly.Request{Query: "q", Budget: 200}
	assert.NotEqual(t, fingerprintFor(r1), fingerprintFor(r2))
}
