package assembly

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/lucidchat/ctxengine/internal/models"
)

// TemporalStrategy favors recent items within req.TimeWindow (7 days when
// unset), raising its item cap for a window longer than 7 days, a
// conversation scope, or IncludeRecent.
type TemporalStrategy struct{}

func NewTemporalStrategy() *TemporalStrategy { return &TemporalStrategy{} }

func (s *TemporalStrategy) Name() StrategyName { return StrategyTemporal }

func (s *TemporalStrategy) Select(items []models.ScoredItem, req Request, now time.Time) []models.ScoredItem {
	filtered := filterThreshold(items, req.minRelevance(0.2))

	window := req.TimeWindow
	if window <= 0 {
		window = 7 * 24 * time.Hour
	}

	type ordered struct {
		item  models.ScoredItem
		score float64
	}
	orderedItems := make([]ordered, 0, len(filtered))
	for _, it := range filtered {
		orderedItems = append(orderedItems, ordered{item: it, score: temporalCombinedScore(it, now, window)})
	}
	sort.SliceStable(orderedItems, func(i, j int) bool {
		return orderedItems[i].score > orderedItems[j].score
	})

	maxItems := 15
	if window > 7*24*time.Hour {
		maxItems += 10
	}
	if req.ConversationID != uuid.Nil {
		maxItems += 5
	}
	if req.IncludeRecent {
		maxItems += 3
	}

	ranked := make([]models.ScoredItem, 0, len(orderedItems))
	for _, o := range orderedItems {
		ranked = append(ranked, o.item)
	}
	ranked = clampLen(ranked, maxItems)
	ranked = typeBalance(ranked, filtered, 0.3, maxItems)

	final := groupedInterleave(ranked)
	sortByRelevanceDesc(final)
	return final
}

func temporalCombinedScore(it models.ScoredItem, now time.Time, window time.Duration) float64 {
	age := now.Sub(it.CreatedAt)
	var temporalScore float64
	if age <= window {
		temporalScore = math.Exp(-0.5 * float64(age) / float64(window))
	} else {
		excess := age - window
		temporalScore = math.Exp(-2*float64(excess)/float64(window)) * 0.1
	}
	return 0.7*it.Score + 0.3*temporalScore
}

// groupedInterleave groups items by conversation, sorts each group
// newest-first, then interleaves: top summary, top-3 messages, the
// group's remaining summaries, then its remaining messages — groups
// processed in the order their best item first appeared.
func groupedInterleave(items []models.ScoredItem) []models.ScoredItem {
	if len(items) == 0 {
		return items
	}

	var order []uuid.UUID
	seen := map[uuid.UUID]bool{}
	groups := map[uuid.UUID][]models.ScoredItem{}
	for _, it := range items {
		if !seen[it.ConvID] {
			seen[it.ConvID] = true
			order = append(order, it.ConvID)
		}
		groups[it.ConvID] = append(groups[it.ConvID], it)
	}

	var out []models.ScoredItem
	for _, convID := range order {
		group := groups[convID]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].CreatedAt.After(group[j].CreatedAt)
		})

		var summaries, msgs []models.ScoredItem
		for _, it := range group {
			if it.Type == models.ItemSummary {
				summaries = append(summaries, it)
			} else {
				msgs = append(msgs, it)
			}
		}

		if len(summaries) > 0 {
			out = append(out, summaries[0])
			summaries = summaries[1:]
		}
		take := 3
		if take > len(msgs) {
			take = len(msgs)
		}
		out = append(out, msgs[:take]...)
		msgs = msgs[take:]
		out = append(out, summaries...)
		out = append(out, msgs...)
	}
	return out
}
