package assembly

import (
	"sort"
	"strings"
	"time"

	"github.com/lucidchat/ctxengine/internal/models"
)

// TopicalStrategy favors thematic breadth: it boosts items touching the
// request's focus topics and caps near-duplicate coverage via diversity
// selection.
type TopicalStrategy struct{}

func NewTopicalStrategy() *TopicalStrategy { return &TopicalStrategy{} }

func (s *TopicalStrategy) Name() StrategyName { return StrategyTopical }

func (s *TopicalStrategy) Select(items []models.ScoredItem, req Request, now time.Time) []models.ScoredItem {
	filtered := filterThreshold(items, req.minRelevance(0.3))

	boosted := make([]models.ScoredItem, len(filtered))
	copy(boosted, filtered)
	for i := range boosted {
		boosted[i].Score = topicalBoost(boosted[i], req.FocusTopics)
	}

	sort.SliceStable(boosted, func(i, j int) bool {
		return boosted[i].Score > boosted[j].Score
	})

	maxItems := 15
	diversified := diversitySelect(boosted, maxItems, 0.4)
	balanced := typeBalance(diversified, boosted, 0.55, maxItems)

	sort.SliceStable(balanced, func(i, j int) bool {
		if balanced[i].Score != balanced[j].Score {
			return balanced[i].Score > balanced[j].Score
		}
		return balanced[i].CreatedAt.After(balanced[j].CreatedAt)
	})
	return balanced
}

func topicalBoost(it models.ScoredItem, focusTopics []string) float64 {
	if len(focusTopics) == 0 {
		return it.Score
	}
	lowerContent := strings.ToLower(it.Content())
	matches := 0
	for _, topic := range focusTopics {
		if topic == "" {
			continue
		}
		if strings.Contains(lowerContent, strings.ToLower(topic)) {
			matches++
		}
	}
	if matches == 0 {
		return it.Score
	}
	boost := 0.1 * float64(matches)
	score := it.Score + boost
	if score > 1 {
		score = 1
	}
	return score
}
