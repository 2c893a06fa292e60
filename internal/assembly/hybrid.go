package assembly

import (
	"sort"
	"time"

	"github.com/lucidchat/ctxengine/internal/models"
)

// HybridStrategy blends the other three strategies' rankings: 0.5 topical,
// 0.3 temporal, 0.2 entity. An item absent from a sub-strategy's output
// contributes 0 for that component rather than being excluded outright.
type HybridStrategy struct {
	temporal *TemporalStrategy
	topical  *TopicalStrategy
	entity   *EntityStrategy
}

func NewHybridStrategy() *HybridStrategy {
	return &HybridStrategy{
		temporal: NewTemporalStrategy(),
		topical:  NewTopicalStrategy(),
		entity:   NewEntityStrategy(),
	}
}

func (s *HybridStrategy) Name() StrategyName { return StrategyHybrid }

func (s *HybridStrategy) Select(items []models.ScoredItem, req Request, now time.Time) []models.ScoredItem {
	temporalOut := s.temporal.Select(items, req, now)
	topicalOut := s.topical.Select(items, req, now)
	entityOut := s.entity.Select(items, req, now)

	blend := map[string]*models.ScoredItem{}
	order := []string{}

	apply := func(list []models.ScoredItem, weight float64) {
		n := len(list)
		for rank, it := range list {
			key := it.ID().String()
			contribution := weight * rankScore(rank, n)
			if existing, ok := blend[key]; ok {
				existing.Score += contribution
				continue
			}
			cp := it
			cp.Score = contribution
			blend[key] = &cp
			order = append(order, key)
		}
	}

	apply(topicalOut, 0.5)
	apply(temporalOut, 0.3)
	apply(entityOut, 0.2)

	out := make([]models.ScoredItem, 0, len(order))
	for _, key := range order {
		out = append(out, *blend[key])
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	maxItems := 15
	return clampLen(out, maxItems)
}

// rankScore maps a 0-based rank in a list of length n to a [0,1] score,
// the best item scoring 1.0 and decaying linearly to the last.
func rankScore(rank, n int) float64 {
	if n <= 1 {
		return 1.0
	}
	return 1.0 - float64(rank)/float64(n)
}
