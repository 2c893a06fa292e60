package assembly

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/lucidchat/ctxengine/internal/models"
)

// EntityStrategy favors items that mention the proper-noun-like entities
// named in the query, ranking by match count then relevance.
type EntityStrategy struct{}

func NewEntityStrategy() *EntityStrategy { return &EntityStrategy{} }

func (s *EntityStrategy) Name() StrategyName { return StrategyEntity }

var capitalizedTokenRe = regexp.MustCompile(`\b[A-Z][a-zA-Z0-9]*(?:\s+[A-Z][a-zA-Z0-9]*)*\b`)

// extractEntities pulls capitalized-token sequences out of the query as a
// cheap entity-name proxy (no NER model available in this stack).
func extractEntities(query string) []string {
	matches := capitalizedTokenRe.FindAllString(query, -1)
	seen := map[string]bool{}
	var out []string
	for _, m := range matches {
		m = strings.TrimSpace(m)
		key := strings.ToLower(m)
		if m == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, m)
	}
	return out
}

func (s *EntityStrategy) Select(items []models.ScoredItem, req Request, now time.Time) []models.ScoredItem {
	filtered := filterThreshold(items, req.minRelevance(0.25))
	entities := extractEntities(req.Query)

	type scored struct {
		item    models.ScoredItem
		matches int
		score   float64
	}
	out := make([]scored, 0, len(filtered))
	for _, it := range filtered {
		matches := entityMatchCount(it.Content(), entities)
		score := it.Score
		if len(entities) > 0 {
			if matches == 0 {
				score *= 0.1
			} else {
				density := float64(matches) / float64(len(entities))
				boost := 0.15 * density
				score += boost
				if score > 1 {
					score = 1
				}
			}
		}
		out = append(out, scored{item: it, matches: matches, score: score})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].matches != out[j].matches {
			return out[i].matches > out[j].matches
		}
		return out[i].score > out[j].score
	})

	maxItems := 15
	if len(out) > maxItems {
		out = out[:maxItems]
	}

	result := make([]models.ScoredItem, len(out))
	for i, o := range out {
		item := o.item
		item.Score = o.score
		result[i] = item
	}
	return result
}

func entityMatchCount(content string, entities []string) int {
	if len(entities) == 0 || content == "" {
		return 0
	}
	lower := strings.ToLower(content)
	count := 0
	for _, e := range entities {
		if strings.Contains(lower, strings.ToLower(e)) {
			count++
		}
	}
	return count
}
