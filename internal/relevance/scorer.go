// Package relevance implements the multi-signal relevance scorer (C3):
// textual match, semantic similarity, recency, type bias, and
// conversation scope, combined into a single score in [0, 1] per
// candidate. A signal that cannot be computed contributes 0 and its
// weight is redistributed across the remaining computable signals.
package relevance

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lucidchat/ctxengine/internal/models"
)

// Config holds the default signal weights and decay parameters. Weights
// must sum to 1.0; callers needing a strategy-specific override should
// build a new Config rather than mutate a shared one.
type Config struct {
	WeightTextual  float64
	WeightSemantic float64
	WeightRecency  float64
	WeightType     float64
	WeightScope    float64

	RecencyHalfLife time.Duration // τ: age at which recency decay reaches 0.5
	LargeConvSize   int           // source-message threshold for the "large conversation" type bonus
}

// DefaultConfig returns the spec's default weights (0.35/0.30/0.15/0.10/0.10).
func DefaultConfig() Config {
	return Config{
		WeightTextual:   0.35,
		WeightSemantic:  0.30,
		WeightRecency:   0.15,
		WeightType:      0.10,
		WeightScope:     0.10,
		RecencyHalfLife: 24 * time.Hour,
		LargeConvSize:   20,
	}
}

// Candidate is one item to be scored: exactly one of Message or Summary
// is set, matching Type.
type Candidate struct {
	Type      models.ItemType
	Message   *models.Message
	Summary   *models.Summary
	Embedding []float32 // absent (nil) when no embedding is available
}

func (c Candidate) conversationID() uuid.UUID {
	if c.Type == models.ItemSummary && c.Summary != nil {
		return c.Summary.ConversationID
	}
	if c.Message != nil {
		return c.Message.ConversationID
	}
	return uuid.Nil
}

func (c Candidate) createdAt() time.Time {
	if c.Type == models.ItemSummary && c.Summary != nil {
		return c.Summary.CreatedAt()
	}
	if c.Message != nil {
		return c.Message.CreatedAt()
	}
	return time.Time{}
}

func (c Candidate) content() string {
	if c.Type == models.ItemSummary && c.Summary != nil {
		return c.Summary.Content
	}
	if c.Message != nil {
		return c.Message.Content
	}
	return ""
}

// Scorer computes relevance scores for a batch of candidates against one
// query, all as of a fixed instant `now` so that scoring stays
// deterministic within a single assembly call.
type Scorer struct {
	cfg Config
}

func New(cfg Config) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score scores every candidate against query/queryEmbedding. conversationID
// is the request's scoping conversation (uuid.Nil when the request is
// unscoped, in which case the scope signal treats every item as in-scope).
func (s *Scorer) Score(
	query string,
	queryEmbedding []float32,
	candidates []Candidate,
	conversationID uuid.UUID,
	now time.Time,
) []models.ScoredItem {
	queryTerms := extractTerms(query)
	queryHasEmbedding := len(queryEmbedding) > 0

	out := make([]models.ScoredItem, 0, len(candidates))
	for _, c := range candidates {
		score := s.scoreOne(query, queryTerms, queryEmbedding, queryHasEmbedding, c, conversationID, now)
		item := models.ScoredItem{
			Type:      c.Type,
			Message:   c.Message,
			Summary:   c.Summary,
			Score:     score,
			CreatedAt: c.createdAt(),
			ConvID:    c.conversationID(),
		}
		out = append(out, item)
	}
	return out
}

type signal struct {
	weight    float64
	value     float64
	available bool
}

func (s *Scorer) scoreOne(
	query string,
	queryTerms []string,
	queryEmbedding []float32,
	queryHasEmbedding bool,
	c Candidate,
	conversationID uuid.UUID,
	now time.Time,
) float64 {
	signals := []signal{
		{weight: s.cfg.WeightTextual, value: textualScore(query, queryTerms, c.content()), available: true},
		{weight: s.cfg.WeightRecency, value: recencyScore(c.createdAt(), now, s.cfg.RecencyHalfLife), available: true},
		{weight: s.cfg.WeightType, value: typeScore(c, s.cfg.LargeConvSize), available: true},
		{weight: s.cfg.WeightScope, value: scopeScore(c.conversationID(), conversationID), available: true},
	}

	if queryHasEmbedding && len(c.Embedding) > 0 {
		signals = append(signals, signal{
			weight:    s.cfg.WeightSemantic,
			value:     cosineSimilarity(queryEmbedding, c.Embedding),
			available: true,
		})
	} else {
		signals = append(signals, signal{weight: s.cfg.WeightSemantic, available: false})
	}

	return combine(signals)
}

// combine applies the redistribution contract: unavailable signals
// contribute 0 and their weight is spread proportionally across the
// signals that were computed, preserving a unit-sum combination.
func combine(signals []signal) float64 {
	var availableWeight float64
	for _, sig := range signals {
		if sig.available {
			availableWeight += sig.weight
		}
	}
	if availableWeight <= 0 {
		return 0
	}

	var total float64
	for _, sig := range signals {
		if !sig.available {
			continue
		}
		normalized := sig.weight / availableWeight
		total += normalized * sig.value
	}
	if total < 0 {
		total = 0
	}
	if total > 1 {
		total = 1
	}
	return total
}

func extractTerms(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, `"'.,!?;:()[]{}`)
		if f != "" {
			terms = append(terms, f)
		}
	}
	return terms
}

func textualScore(query string, queryTerms []string, content string) float64 {
	if len(queryTerms) == 0 || content == "" {
		return 0
	}
	lowerContent := strings.ToLower(content)
	contentWords := strings.Fields(lowerContent)
	wordCount := len(contentWords)
	if wordCount == 0 {
		return 0
	}

	matched := 0
	var totalFreq float64
	for _, term := range queryTerms {
		freq := strings.Count(lowerContent, term)
		if freq > 0 {
			matched++
			totalFreq += float64(freq)
		}
	}
	if matched == 0 {
		return 0
	}

	coverage := float64(matched) / float64(len(queryTerms))
	density := totalFreq / float64(wordCount)
	score := 0.7*coverage + 0.3*math.Min(density*10, 1.0)

	if strings.Contains(lowerContent, strings.ToLower(strings.TrimSpace(query))) {
		score += 0.2
	}

	if score > 1 {
		score = 1
	}
	return score
}

func recencyScore(createdAt, now time.Time, halfLife time.Duration) float64 {
	if createdAt.After(now) {
		return 1.0
	}
	if halfLife <= 0 {
		halfLife = 24 * time.Hour
	}
	age := now.Sub(createdAt)
	k := math.Ln2 // decay reaches 0.5 at age == halfLife
	return math.Exp(-k * float64(age) / float64(halfLife))
}

func typeScore(c Candidate, largeConvSize int) float64 {
	if c.Type != models.ItemSummary || c.Summary == nil {
		return 0
	}
	score := 0.5
	if c.Summary.Level == models.SummaryDetailed && c.Summary.SourceMessages >= largeConvSize {
		score = 1.0
	}
	return score
}

func scopeScore(candidateConv, requestedConv uuid.UUID) float64 {
	if requestedConv == uuid.Nil {
		return 1.0
	}
	if candidateConv == requestedConv {
		return 1.0
	}
	return 0.5
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim < 0 {
		sim = 0
	}
	if sim > 1 {
		sim = 1
	}
	return sim
}
