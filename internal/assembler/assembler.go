// Package assembler implements the context assembler (C5): the single
// entry point that orchestrates candidate retrieval, relevance scoring
// (C3), strategy selection (C4), token budget enforcement (C2), caching
// (C8), and result formatting into one assembled context.
package assembler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lucidchat/ctxengine/internal/assembly"
	"github.com/lucidchat/ctxengine/internal/ctxerrors"
	"github.com/lucidchat/ctxengine/internal/models"
	"github.com/lucidchat/ctxengine/internal/multicache"
	"github.com/lucidchat/ctxengine/internal/relevance"
	"github.com/lucidchat/ctxengine/internal/repo"
	"github.com/lucidchat/ctxengine/internal/tokenbudget"
)

// semanticMergeK is the default number of semantically-similar messages
// merged into the candidate pool when embeddings are enabled (§4.5 step 4).
const semanticMergeK = 50

// messageWindowCap is the default number of most-recent messages fetched
// per conversation; widened when the request's time_window exceeds a week.
const messageWindowCap = 500

// Counter is the minimal token-counting contract the assembler needs.
type Counter interface {
	CountText(text string) (count int, charsPerToken float64)
}

// Embedder computes a query embedding for the semantic merge step.
// Narrowed from embedding.Service so the assembler doesn't depend on it
// directly.
type Embedder interface {
	EmbedSingle(ctx context.Context, text string) ([]float32, error)
}

// IncludedItem describes one item that made it into the final assembly.
type IncludedItem struct {
	Type           models.ItemType
	ID             uuid.UUID
	RelevanceScore float64
	TokenCount     int
	Position       int
}

// TokenBreakdown mirrors the optimizer's five-category split.
type TokenBreakdown struct {
	Query     int
	Summaries int
	Messages  int
	Metadata  int
	Buffer    int
}

// Metrics reports what happened during one assembly.
type Metrics struct {
	ProcessingTimeMs float64
	ItemsEvaluated   int
	ItemsIncluded    int
	AverageRelevance float64
	TokenEfficiency  float64
}

// Result is the full output of Assemble.
type Result struct {
	Text           string
	TokenCount     int
	TokenBreakdown TokenBreakdown
	IncludedItems  []IncludedItem
	Strategy       assembly.StrategyName
	Metrics        Metrics
	FromCache      bool
	Degraded       bool
}

// Assembler ties together the repositories and the scoring/selection/
// budgeting pipeline behind one Assemble call.
type Assembler struct {
	conversations repo.ConversationRepo
	messages      repo.MessageRepo
	summaries     repo.SummaryRepo
	embeddings    repo.EmbeddingProvider
	embedder      Embedder
	cache         *multicache.Cache
	counter       Counter
	scorer        *relevance.Scorer
	dispatcher    *assembly.Dispatcher
	optimizer     *tokenbudget.Optimizer
	cacheTTL      time.Duration
}

// Config bundles the collaborators an Assembler needs.
type Config struct {
	Conversations repo.ConversationRepo
	Messages      repo.MessageRepo
	Summaries     repo.SummaryRepo
	Embeddings    repo.EmbeddingProvider
	Embedder      Embedder
	Cache         *multicache.Cache
	Counter       Counter
	Scorer        *relevance.Scorer
	Dispatcher    *assembly.Dispatcher
	Optimizer     *tokenbudget.Optimizer
	CacheTTL      time.Duration // default 5 min
}

func New(cfg Config) *Assembler {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Assembler{
		conversations: cfg.Conversations,
		messages:      cfg.Messages,
		summaries:     cfg.Summaries,
		embeddings:    cfg.Embeddings,
		embedder:      cfg.Embedder,
		cache:         cfg.Cache,
		counter:       cfg.Counter,
		scorer:        cfg.Scorer,
		dispatcher:    cfg.Dispatcher,
		optimizer:     cfg.Optimizer,
		cacheTTL:      ttl,
	}
}

// Assemble runs the full pipeline described in §4.5.
func (a *Assembler) Assemble(ctx context.Context, req assembly.Request) (*Result, error) {
	start := time.Now()

	if err := validate(req); err != nil {
		return nil, err
	}

	fingerprint := fingerprintFor(req)

	if a.cache != nil {
		if raw, ok := a.cache.Get(ctx, fingerprint); ok {
			var cached Result
			if err := json.Unmarshal(raw, &cached); err == nil {
				cached.FromCache = true
				cached.Metrics.ProcessingTimeMs = float64(time.Since(start).Microseconds()) / 1000.0
				return &cached, nil
			}
		}
	}

	candidates, degraded, err := a.fetchCandidates(ctx, req)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	scored := a.scorer.Score(req.Query, nil, candidates, req.ConversationID, now)

	strategy := a.dispatcher.Resolve(req)
	selected := strategy.Select(scored, req, now)

	result, err := a.buildResult(selected, req, strategy.Name())
	if err != nil {
		return nil, err
	}
	result.Degraded = degraded
	result.Metrics.ItemsEvaluated = len(candidates)
	result.Metrics.ProcessingTimeMs = float64(time.Since(start).Microseconds()) / 1000.0
	if result.Metrics.ItemsIncluded > 0 {
		result.Metrics.TokenEfficiency = float64(result.TokenCount) / float64(req.Budget)
	}

	if a.cache != nil {
		if encoded, err := json.Marshal(result); err == nil {
			priority := cachePriority(result.Metrics.ItemsIncluded, time.Since(start))
			a.cache.Set(ctx, fingerprint, encoded, multicache.SetOptions{TTL: a.cacheTTL, Priority: priority})
		}
	}

	return result, nil
}

func validate(req assembly.Request) error {
	if strings.TrimSpace(req.Query) == "" {
		return fmt.Errorf("%w: query must be non-empty", ctxerrors.ErrInvalidRequest)
	}
	if len(req.Query) > 2048 {
		return fmt.Errorf("%w: query exceeds 2048 characters", ctxerrors.ErrInvalidRequest)
	}
	if req.Budget < 100 {
		return fmt.Errorf("%w: budget must be >= 100", ctxerrors.ErrInvalidRequest)
	}
	if req.Strategy != "" && req.Strategy != assembly.StrategyAuto && !assembly.KnownStrategies[req.Strategy] {
		return fmt.Errorf("%w: unknown strategy %q", ctxerrors.ErrInvalidRequest, req.Strategy)
	}
	return nil
}

// fingerprintFor computes a stable hash over the fields that fully
// determine an assembly's output, per §4.5 step 2.
func fingerprintFor(req assembly.Request) string {
	minRel := -1.0
	if req.MinRelevance != nil {
		minRel = *req.MinRelevance
	}
	topics := append([]string{}, req.FocusTopics...)
	sort.Strings(topics)

	payload, _ := json.Marshal(struct {
		Query          string
		ConversationID uuid.UUID
		Budget         int
		Strategy       assembly.StrategyName
		MinRelevance   float64
		TimeWindow     time.Duration
		FocusTopics    []string
		IncludeRecent  bool
	}{req.Query, req.ConversationID, req.Budget, req.Strategy, minRel, req.TimeWindow, topics, req.IncludeRecent})

	sum := sha256.Sum256(payload)
	return "assemble:" + hex.EncodeToString(sum[:])
}

// fetchCandidates retrieves messages and valid summaries, merging in
// semantically-similar messages when embeddings are enabled and a
// conversation is scoped: the Nearest matches found among the
// conversation's semanticMergeK most recent embedded messages (matches
// outside that page are not merged). degraded reports whether the semantic merge
// was skipped due to an unavailable embedding backend.
func (a *Assembler) fetchCandidates(ctx context.Context, req assembly.Request) ([]relevance.Candidate, bool, error) {
	limit := messageWindowCap
	if req.TimeWindow > 7*24*time.Hour {
		limit = 1000
	}

	msgPage, err := a.messages.FindByConversation(ctx, repo.MessageFindOptions{
		ConversationID: req.ConversationID,
		Limit:          limit,
		Order:          repo.OrderDesc,
	})
	if err != nil {
		return nil, false, err
	}

	byID := make(map[uuid.UUID]relevance.Candidate, len(msgPage.Items))
	for i := range msgPage.Items {
		m := msgPage.Items[i]
		byID[m.ID] = relevance.Candidate{Type: models.ItemMessage, Message: &m, Embedding: m.Embedding}
	}

	degraded := false
	if req.ConversationID != uuid.Nil && a.embeddings != nil && a.embeddings.IsAvailable(ctx) && a.embedder != nil {
		vec, embedErr := a.embedder.EmbedSingle(ctx, req.Query)
		if embedErr != nil {
			degraded = true
		} else {
			matches, nearestErr := a.embeddings.Nearest(ctx, vec, semanticMergeK, req.ConversationID)
			if nearestErr != nil {
				degraded = true
			} else if len(matches) > 0 {
				similar := make(map[uuid.UUID]bool, len(matches))
				for _, match := range matches {
					similar[match.MessageID] = true
				}
				extra, fetchErr := a.messages.FindWithEmbeddings(ctx, req.ConversationID, semanticMergeK, 0)
				if fetchErr != nil {
					degraded = true
				} else {
					for i := range extra.Items {
						m := extra.Items[i]
						if _, exists := byID[m.ID]; !exists && similar[m.ID] {
							byID[m.ID] = relevance.Candidate{Type: models.ItemMessage, Message: &m, Embedding: m.Embedding}
						}
					}
				}
			}
		}
	} else if req.ConversationID != uuid.Nil && a.embeddings != nil && !a.embeddings.IsAvailable(ctx) {
		degraded = true
	}

	var summaries []models.Summary
	if req.ConversationID != uuid.Nil && a.summaries != nil {
		summaries, err = a.summaries.FindValidByConversation(ctx, req.ConversationID, nil)
		if err != nil {
			return nil, degraded, err
		}
	}

	candidates := make([]relevance.Candidate, 0, len(byID)+len(summaries))
	for _, c := range byID {
		candidates = append(candidates, c)
	}
	for i := range summaries {
		s := summaries[i]
		candidates = append(candidates, relevance.Candidate{Type: models.ItemSummary, Summary: &s})
	}

	return candidates, degraded, nil
}

// buildResult runs the token optimizer over the strategy's selection,
// preserving selection order, then formats the assembled text.
func (a *Assembler) buildResult(selected []models.ScoredItem, req assembly.Request, strategyName assembly.StrategyName) (*Result, error) {
	budgets, err := a.optimizer.Allocate(req.Budget)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ctxerrors.ErrInvalidRequest, err)
	}

	// The query header competes for the query category's share like any
	// other item: an adversarial query (near the 2048-char validation
	// ceiling) against a small budget must still be capped/truncated
	// rather than left to blow the overall token-count invariant.
	header := fmt.Sprintf("[Query: %s]", req.Query)
	rawQueryTokens, _ := a.counter.CountText(header)
	queryResult := a.optimizer.OptimizeCategory(tokenbudget.CategoryQuery, []tokenbudget.Item{
		{ID: "query", Content: header, OriginalTokens: rawQueryTokens},
	}, budgets[tokenbudget.CategoryQuery])

	queryHeader := ""
	queryTokens := queryResult.Used
	if len(queryResult.Items) > 0 && queryResult.Items[0].Modification != tokenbudget.ModExcluded {
		queryHeader = queryResult.Items[0].Content
	} else if rawQueryTokens <= queryResult.EffectiveBudget {
		// A header shorter than the per-item minimum is still emitted
		// whole when it fits the query share.
		queryHeader = header
		queryTokens = rawQueryTokens
	}

	summaryItems := make([]tokenbudget.Item, 0)
	messageItems := make([]tokenbudget.Item, 0)
	byIndex := make(map[string]models.ScoredItem, len(selected))

	for i, it := range selected {
		idx := strconv.Itoa(i)
		byIndex[idx] = it
		n, _ := a.counter.CountText(it.Content())
		item := tokenbudget.Item{ID: idx, Content: it.Content(), OriginalTokens: n}
		if it.Type == models.ItemSummary {
			summaryItems = append(summaryItems, item)
		} else {
			messageItems = append(messageItems, item)
		}
	}

	summaryResult := a.optimizer.OptimizeCategory(tokenbudget.CategorySummaries, summaryItems, budgets[tokenbudget.CategorySummaries])
	messageResult := a.optimizer.OptimizeCategory(tokenbudget.CategoryMessages, messageItems, budgets[tokenbudget.CategoryMessages])

	included := make(map[string]tokenbudget.ItemResult, len(summaryResult.Items)+len(messageResult.Items))
	for _, r := range summaryResult.Items {
		if r.Modification != tokenbudget.ModExcluded {
			included[r.ID] = r
		}
	}
	for _, r := range messageResult.Items {
		if r.Modification != tokenbudget.ModExcluded {
			included[r.ID] = r
		}
	}

	var textBlocks []string
	var items []IncludedItem
	var scoreSum float64
	position := 0
	for i := 0; i < len(selected); i++ {
		idx := strconv.Itoa(i)
		r, ok := included[idx]
		if !ok {
			continue
		}
		orig := byIndex[idx]
		textBlocks = append(textBlocks, blockFor(orig, r.Content))
		items = append(items, IncludedItem{
			Type:           orig.Type,
			ID:             orig.ID(),
			RelevanceScore: orig.Score,
			TokenCount:     r.Tokens,
			Position:       position,
		})
		scoreSum += orig.Score
		position++
	}

	text := queryHeader
	if len(textBlocks) > 0 {
		if queryHeader != "" {
			text = queryHeader + "\n\n" + strings.Join(textBlocks, "\n\n")
		} else {
			text = strings.Join(textBlocks, "\n\n")
		}
	}

	avgRelevance := 0.0
	if len(items) > 0 {
		avgRelevance = scoreSum / float64(len(items))
	}

	return &Result{
		Text:       text,
		TokenCount: queryTokens + summaryResult.Used + messageResult.Used,
		TokenBreakdown: TokenBreakdown{
			Query:     queryTokens,
			Summaries: summaryResult.Used,
			Messages:  messageResult.Used,
			Metadata:  budgets[tokenbudget.CategoryMetadata],
			Buffer:    budgets[tokenbudget.CategoryBuffer],
		},
		IncludedItems: items,
		Strategy:      strategyName,
		Metrics: Metrics{
			ItemsIncluded:    len(items),
			AverageRelevance: avgRelevance,
		},
	}, nil
}

func blockFor(it models.ScoredItem, content string) string {
	if it.Type == models.ItemSummary && it.Summary != nil {
		return fmt.Sprintf("[Summary (%s, %d messages)]: %s", it.Summary.Level, it.Summary.SourceMessages, content)
	}
	if it.Message != nil {
		return fmt.Sprintf("[%s, %s]: %s", it.Message.Role, it.Message.CreatedAt().UTC().Format(time.RFC3339), content)
	}
	return content
}

// cachePriority mirrors §4.5 step 9's policy: high for a fast assembly
// with more than 5 items, medium for any items, low otherwise.
func cachePriority(itemCount int, elapsed time.Duration) multicache.Priority {
	switch {
	case itemCount > 5 && elapsed < 200*time.Millisecond:
		return multicache.PriorityHigh
	case itemCount > 0:
		return multicache.PriorityMedium
	default:
		return multicache.PriorityLow
	}
}
