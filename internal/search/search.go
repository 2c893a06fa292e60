// Package search implements the hybrid search engine (C9): strategy
// auto-selection, FTS + semantic score fusion, result caching via the
// multi-tier cache (C8), and metrics.
package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/lucidchat/ctxengine/internal/ctxerrors"
	"github.com/lucidchat/ctxengine/internal/models"
	"github.com/lucidchat/ctxengine/internal/multicache"
	"github.com/lucidchat/ctxengine/internal/queryparser"
	"github.com/lucidchat/ctxengine/internal/repo"
)

// Strategy selects which source(s) a search draws on.
type Strategy string

const (
	StrategyAuto     Strategy = "auto"
	StrategyFTS      Strategy = "fts"
	StrategySemantic Strategy = "semantic"
	StrategyHybrid   Strategy = "hybrid"
)

// Weights controls the fusion of semantic and FTS scores.
type Weights struct {
	Semantic float64
	FTS      float64
}

// DefaultWeights mirrors the spec's 0.6/0.4 default.
func DefaultWeights() Weights { return Weights{Semantic: 0.6, FTS: 0.4} }

// Request is one search call's parameters.
type Request struct {
	Query             string
	ConversationID    uuid.UUID
	Limit             int
	Offset            int
	Strategy          Strategy
	Weights           Weights
	SemanticThreshold float64
}

func (r Request) normalized() Request {
	out := r
	if out.Limit <= 0 {
		out.Limit = 20
	}
	if out.Limit > 1000 {
		out.Limit = 1000
	}
	if out.Weights.Semantic == 0 && out.Weights.FTS == 0 {
		out.Weights = DefaultWeights()
	}
	if out.SemanticThreshold == 0 {
		out.SemanticThreshold = 0.7
	}
	if out.Strategy == "" {
		out.Strategy = StrategyAuto
	}
	return out
}

// Result is one fused search hit.
type Result struct {
	Message     models.Message
	Score       float64
	Semantic    float64
	FTS         float64
	Snippet     string
	Explanation string
}

// QueryAnalysis is the strategy auto-selector's reasoning, surfaced in
// metrics.
type QueryAnalysis struct {
	TermCount         int
	HasOperators      bool
	Complexity        string
	SuggestedStrategy Strategy
}

// Timing breaks down where a search call spent its time.
type Timing struct {
	QueryAnalysis  time.Duration
	SemanticSearch time.Duration
	FTSSearch      time.Duration
	ResultMerging  time.Duration
	Formatting     time.Duration
}

// Metrics is returned alongside Response for observability/persistence.
type Metrics struct {
	QueryID       uuid.UUID
	Query         string
	Strategy      Strategy
	ResultCount   int
	TotalTime     time.Duration
	Timing        Timing
	QueryAnalysis QueryAnalysis
	Degraded      bool
	FromCache     bool
}

// Response is the full result of Search.
type Response struct {
	Results []Result
	HasMore bool
	Metrics Metrics
}

// Engine is the hybrid search engine.
type Engine struct {
	messages   repo.MessageRepo
	embeddings repo.EmbeddingProvider
	cache      *multicache.Cache
}

func New(messages repo.MessageRepo, embeddings repo.EmbeddingProvider, cache *multicache.Cache) *Engine {
	return &Engine{messages: messages, embeddings: embeddings, cache: cache}
}

// Search executes one hybrid search call end to end.
func (e *Engine) Search(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	req = req.normalized()

	analysisStart := time.Now()
	analysis := analyze(req.Query)
	analysisTime := time.Since(analysisStart)

	strategy := req.Strategy
	if strategy == StrategyAuto {
		strategy = analysis.SuggestedStrategy
	}

	cacheKey := cacheKeyFor(req, strategy)
	if e.cache != nil {
		if raw, ok := e.cache.Get(ctx, cacheKey); ok {
			var cached Response
			if err := json.Unmarshal(raw, &cached); err == nil {
				cached.Metrics.FromCache = true
				return &cached, nil
			}
		}
	}

	var ftsResults map[uuid.UUID]repo.SearchResult
	var semResults map[uuid.UUID]float64
	var ftsTime, semTime time.Duration
	degraded := false

	if strategy == StrategyFTS || strategy == StrategyHybrid {
		ftsStart := time.Now()
		var err error
		ftsResults, err = e.runFTS(ctx, req)
		ftsTime = time.Since(ftsStart)
		if err != nil {
			if strategy == StrategyFTS {
				return nil, fmt.Errorf("%w: fts search failed", ctxerrors.ErrSearchUnavailable)
			}
		}
	}

	if strategy == StrategySemantic || strategy == StrategyHybrid {
		semStart := time.Now()
		var err error
		semResults, err = e.runSemantic(ctx, req)
		semTime = time.Since(semStart)
		if err != nil {
			if strategy == StrategySemantic {
				degraded = true
				strategy = StrategyFTS
				ftsStart := time.Now()
				ftsResults, err = e.runFTS(ctx, req)
				ftsTime += time.Since(ftsStart)
				if err != nil {
					return nil, fmt.Errorf("%w: semantic and fts both unavailable", ctxerrors.ErrSearchUnavailable)
				}
			} else {
				degraded = true
			}
		}
	}

	if ftsResults == nil && semResults == nil {
		return nil, fmt.Errorf("%w: no search source available", ctxerrors.ErrSearchUnavailable)
	}

	mergeStart := time.Now()
	results := fuse(ftsResults, semResults, req.Weights)
	mergeTime := time.Since(mergeStart)

	formatStart := time.Now()
	hasMore := len(results) > req.Limit
	if hasMore {
		results = results[:req.Limit]
	}
	for i := range results {
		results[i].Explanation = explain(results[i], strategy, req.Weights)
	}
	formatTime := time.Since(formatStart)

	resp := &Response{
		Results: results,
		HasMore: hasMore,
		Metrics: Metrics{
			QueryID:     uuid.New(),
			Query:       req.Query,
			Strategy:    strategy,
			ResultCount: len(results),
			TotalTime:   time.Since(start),
			Timing: Timing{
				QueryAnalysis:  analysisTime,
				SemanticSearch: semTime,
				FTSSearch:      ftsTime,
				ResultMerging:  mergeTime,
				Formatting:     formatTime,
			},
			QueryAnalysis: analysis,
			Degraded:      degraded,
		},
	}

	if e.cache != nil {
		if encoded, err := json.Marshal(resp); err == nil {
			priority := cachePriority(len(resp.Results), resp.Metrics.TotalTime)
			e.cache.Set(ctx, cacheKey, encoded, multicache.SetOptions{Priority: priority})
		}
	}

	return resp, nil
}

func analyze(query string) QueryAnalysis {
	parsed := queryparser.Parse(query, queryparser.MatchFuzzy)
	terms := queryparser.ExtractTerms(query)

	complexity := "simple"
	switch {
	case len(terms) > 3 || parsed.HasOperators:
		complexity = "complex"
	case len(terms) > 2:
		complexity = "moderate"
	}

	suggested := StrategyHybrid
	switch {
	case complexity == "simple" && !parsed.HasOperators:
		suggested = StrategySemantic
	case parsed.HasOperators:
		suggested = StrategyFTS
	}

	return QueryAnalysis{
		TermCount:         len(terms),
		HasOperators:      parsed.HasOperators,
		Complexity:        complexity,
		SuggestedStrategy: suggested,
	}
}

func (e *Engine) runFTS(ctx context.Context, req Request) (map[uuid.UUID]repo.SearchResult, error) {
	page, err := e.messages.Search(ctx, repo.MessageSearchOptions{
		Query:          req.Query,
		ConversationID: req.ConversationID,
		Limit:          req.Limit,
		Offset:         req.Offset,
	})
	if err != nil {
		return nil, err
	}
	return normalizeFTS(page.Items), nil
}

// normalizeFTS min-max normalizes bm25-family scores into [0, 1] over
// the returned page.
func normalizeFTS(items []repo.SearchResult) map[uuid.UUID]repo.SearchResult {
	out := make(map[uuid.UUID]repo.SearchResult, len(items))
	if len(items) == 0 {
		return out
	}
	minScore, maxScore := items[0].Score, items[0].Score
	for _, it := range items {
		if it.Score < minScore {
			minScore = it.Score
		}
		if it.Score > maxScore {
			maxScore = it.Score
		}
	}
	span := maxScore - minScore
	for _, it := range items {
		normalized := it
		if span > 0 {
			normalized.Score = (it.Score - minScore) / span
		} else {
			normalized.Score = 1.0
		}
		out[it.Message.ID] = normalized
	}
	return out
}

func (e *Engine) runSemantic(ctx context.Context, req Request) (map[uuid.UUID]float64, error) {
	if e.embeddings == nil || !e.embeddings.IsAvailable(ctx) {
		return nil, fmt.Errorf("%w", ctxerrors.ErrEmbeddingUnavailable)
	}
	vec, err := e.embeddings.Embed(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ctxerrors.ErrEmbeddingUnavailable, err)
	}

	matches, err := e.embeddings.Nearest(ctx, vec, req.Limit*2, req.ConversationID)
	if err != nil {
		return nil, err
	}

	out := make(map[uuid.UUID]float64, len(matches))
	for _, m := range matches {
		if m.Similarity >= req.SemanticThreshold {
			out[m.MessageID] = m.Similarity
		}
	}
	return out, nil
}

// fuse combines FTS and semantic scores per-candidate: combined =
// w_semantic*sem + w_fts*fts, 0 for any missing component. Ties break by
// newer created_at.
func fuse(fts map[uuid.UUID]repo.SearchResult, sem map[uuid.UUID]float64, weights Weights) []Result {
	seen := map[uuid.UUID]bool{}
	var results []Result

	for id, f := range fts {
		if seen[id] {
			continue
		}
		seen[id] = true
		semScore := sem[id]
		results = append(results, Result{
			Message:  f.Message,
			Score:    weights.Semantic*semScore + weights.FTS*f.Score,
			Semantic: semScore,
			FTS:      f.Score,
			Snippet:  f.Snippet,
		})
	}
	for id, s := range sem {
		if seen[id] {
			continue
		}
		seen[id] = true
		results = append(results, Result{
			Score:    weights.Semantic * s,
			Semantic: s,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Message.CreatedAt().After(results[j].Message.CreatedAt())
	})
	return results
}

func explain(r Result, strategy Strategy, w Weights) string {
	switch {
	case r.Semantic > 0 && r.FTS > 0:
		return fmt.Sprintf("matched by both semantic similarity (%.2f) and keyword search (%.2f), weighted %.0f%%/%.0f%%", r.Semantic, r.FTS, w.Semantic*100, w.FTS*100)
	case r.Semantic > 0:
		return fmt.Sprintf("matched by semantic similarity (%.2f)", r.Semantic)
	case r.FTS > 0:
		return fmt.Sprintf("matched by keyword search (%.2f)", r.FTS)
	default:
		return "matched"
	}
}

// cachePriority mirrors the assembler's cache-priority policy (§4.5):
// high for larger, fast result sets; medium for any results; low
// otherwise.
func cachePriority(resultCount int, elapsed time.Duration) multicache.Priority {
	switch {
	case resultCount > 5 && elapsed < 200*time.Millisecond:
		return multicache.PriorityHigh
	case resultCount > 0:
		return multicache.PriorityMedium
	default:
		return multicache.PriorityLow
	}
}

func cacheKeyFor(req Request, strategy Strategy) string {
	payload, _ := json.Marshal(struct {
		Query     string
		ConvID    uuid.UUID
		Limit     int
		Offset    int
		Strategy  Strategy
		Weights   Weights
		Threshold float64
	}{req.Query, req.ConversationID, req.Limit, req.Offset, strategy, req.Weights, req.SemanticThreshold})
	sum := sha256.Sum256(payload)
	return "search:" + hex.EncodeToString(sum[:])
}
