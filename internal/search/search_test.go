package search

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucidchat/ctxengine/internal/models"
	"github.com/lucidchat/ctxengine/internal/repo"
)

type fakeMessageRepo struct {
	results []repo.SearchResult
	err     error
}

func (f *fakeMessageRepo) FindByConversation(ctx context.Context, opts repo.MessageFindOptions) (repo.Page[models.Message], error) {
	return repo.Page[models.Message]{}, nil
}
func (f *fakeMessageRepo) FindWithEmbeddings(ctx context.Context, conversationID uuid.UUID, limit, offset int) (repo.Page[models.Message], error) {
	return repo.Page[models.Message]{}, nil
}
func (f *fakeMessageRepo) Search(ctx context.Context, opts repo.MessageSearchOptions) (repo.Page[repo.SearchResult], error) {
	if f.err != nil {
		return repo.Page[repo.SearchResult]{}, f.err
	}
	return repo.Page[repo.SearchResult]{Items: f.results, Total: len(f.results)}, nil
}
func (f *fakeMessageRepo) FindChildren(ctx context.Context, parentID uuid.UUID) ([]models.Message, error) {
	return nil, nil
}

type fakeEmbeddingProvider struct {
	available bool
	matches   []repo.NearestMatch
	err       error
}

func (f *fakeEmbeddingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}
func (f *fakeEmbeddingProvider) Nearest(ctx context.Context, vector []float32, k int, conversationID uuid.UUID) ([]repo.NearestMatch, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.matches, nil
}
func (f *fakeEmbeddingProvider) IsAvailable(ctx context.Context) bool { return f.available }

func msg(content string, minutesAgo int) models.Message {
	return models.Message{
		ID:          uuid.New(),
		Content:     content,
		CreatedAtMS: time.Now().Add(-time.Duration(minutesAgo) * time.Minute).UnixMilli(),
	}
}

func TestEngine_Search_FTSOnly_ReturnsNormalizedResults(t *testing.T) {
	m1, m2 := msg("alpha", 1), msg("beta", 2)
	messages := &fakeMessageRepo{results: []repo.SearchResult{
		{Message: m1, Score: 10, Snippet: "alpha snip"},
		{Message: m2, Score: 5, Snippet: "beta snip"},
	}}
	engine := New(messages, &fakeEmbeddingProvider{}, nil)

	resp, err := engine.Search(context.Background(), Request{Query: "alpha OR beta", Strategy: StrategyFTS, Limit: 10})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, m1.ID, resp.Results[0].Message.ID)
	assert.InDelta(t, 1.0, resp.Results[0].FTS, 0.001)
}

func TestEngine_Search_SemanticUnavailable_DegradesToFTS(t *testing.T) {
	m1 := msg("alpha", 1)
	messages := &fakeMessageRepo{results: []repo.SearchResult{{Message: m1, Score: 1}}}
	embeddings := &fakeEmbeddingProvider{available: false}
	engine := New(messages, embeddings, nil)

	resp, err := engine.Search(context.Background(), Request{Query: "alpha", Strategy: StrategySemantic, Limit: 10})
	require.NoError(t, err)
	assert.True(t, resp.Metrics.Degraded)
	assert.Equal(t, StrategyFTS, resp.Metrics.Strategy)
	require.Len(t, resp.Results, 1)
}

func TestEngine_Search_HybridFusion_CombinesBothSources(t *testing.T) {
	m1 := msg("alpha", 1)
	messages := &fakeMessageRepo{results: []repo.SearchResult{{Message: m1, Score: 1}}}
	embeddings := &fakeEmbeddingProvider{available: true, matches: []repo.NearestMatch{{MessageID: m1.ID, Similarity: 0.9}}}
	engine := New(messages, embeddings, nil)

	resp, err := engine.Search(context.Background(), Request{Query: "alpha", Strategy: StrategyHybrid, Limit: 10})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Greater(t, resp.Results[0].Semantic, 0.0)
	assert.Greater(t, resp.Results[0].FTS, 0.0)
	assert.Contains(t, resp.Results[0].Explanation, "both")
}

func TestEngine_Search_BothSourcesFail_ReturnsSearchUnavailable(t *testing.T) {
	messages := &fakeMessageRepo{err: assert.AnError}
	embeddings := &fakeEmbeddingProvider{available: false}
	engine := New(messages, embeddings, nil)

	_, err := engine.Search(context.Background(), Request{Query: "alpha", Strategy: StrategyHybrid, Limit: 10})
	require.Error(t, err)
}

func TestAnalyze_OperatorsSelectFTS(t *testing.T) {
	a := analyze(`"exact phrase"`)
	assert.Equal(t, StrategyFTS, a.SuggestedStrategy)
	assert.True(t, a.HasOperators)
}

func TestAnalyze_SimpleQuerySelectsSemantic(t *testing.T) {
	a := analyze("hello")
	assert.Equal(t, StrategySemantic, a.SuggestedStrategy)
}

func TestAnalyze_MultiTermQuerySelectsHybrid(t *testing.T) {
	a := analyze("hello there general kenobi")
	assert.Equal(t, StrategyHybrid, a.SuggestedStrategy)
}

func TestFuse_TiesBreakByNewerCreatedAt(t *testing.T) {
	older := msg("a", 10)
	newer := msg("b", 1)
	fts := map[uuid.UUID]repo.SearchResult{
		older.ID: {Message: older, Score: 0.5},
		newer.ID: {Message: newer, Score: 0.5},
	}
	results := fuse(fts, nil, Weights{Semantic: 0.6, FTS: 0.4})
	require.Len(t, results, 2)
	assert.Equal(t, newer.ID, results[0].Message.ID)
}
