package assembly

import (
	"sort"
	"strings"

	"github.com/lucidchat/ctxengine/internal/models"
)

// filterThreshold drops items scoring below min.
func filterThreshold(items []models.ScoredItem, min float64) []models.ScoredItem {
	out := make([]models.ScoredItem, 0, len(items))
	for _, it := range items {
		if it.Score >= min {
			out = append(out, it)
		}
	}
	return out
}

// topTokens returns the top-n most frequent word tokens in content,
// lowercased, used as a cheap near-duplicate fingerprint.
func topTokens(content string, n int) map[string]bool {
	words := strings.Fields(strings.ToLower(content))
	freq := make(map[string]int, len(words))
	for _, w := range words {
		w = strings.Trim(w, `"'.,!?;:()[]{}`)
		if w != "" {
			freq[w]++
		}
	}
	type wc struct {
		word  string
		count int
	}
	ordered := make([]wc, 0, len(freq))
	for w, c := range freq {
		ordered = append(ordered, wc{w, c})
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].count != ordered[j].count {
			return ordered[i].count > ordered[j].count
		}
		return ordered[i].word < ordered[j].word
	})
	if n > len(ordered) {
		n = len(ordered)
	}
	out := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		out[ordered[i].word] = true
	}
	return out
}

// jaccard computes the Jaccard overlap between two token sets.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if b[t] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// diversitySelect greedily admits items in the given (already sorted)
// order up to n, skipping items whose max Jaccard overlap with an
// already-admitted item exceeds (1 - factor). The top item is always
// admitted regardless of overlap.
func diversitySelect(items []models.ScoredItem, n int, factor float64) []models.ScoredItem {
	if n <= 0 || len(items) == 0 {
		return nil
	}
	threshold := 1 - factor
	var admitted []models.ScoredItem
	var admittedTokens []map[string]bool

	for _, it := range items {
		if len(admitted) >= n {
			break
		}
		tokens := topTokens(it.Content(), 20)
		if len(admitted) == 0 {
			admitted = append(admitted, it)
			admittedTokens = append(admittedTokens, tokens)
			continue
		}
		maxOverlap := 0.0
		for _, existing := range admittedTokens {
			if ov := jaccard(tokens, existing); ov > maxOverlap {
				maxOverlap = ov
			}
		}
		if maxOverlap <= threshold {
			admitted = append(admitted, it)
			admittedTokens = append(admittedTokens, tokens)
		}
	}
	return admitted
}

// typeBalance enforces a target summary:message ratio by swapping
// trailing items of the over-represented type for the next-best
// available items of the under-represented type, drawn from `pool`
// (candidates not already selected), while keeping len(selected) <= n.
func typeBalance(selected []models.ScoredItem, pool []models.ScoredItem, ratio float64, n int) []models.ScoredItem {
	if len(selected) == 0 || n <= 0 {
		return selected
	}

	targetSummaries := int(float64(n) * ratio)

	countSummaries := 0
	for _, it := range selected {
		if it.Type == models.ItemSummary {
			countSummaries++
		}
	}
	countMessages := len(selected) - countSummaries

	selectedIDs := make(map[string]bool, len(selected))
	for _, it := range selected {
		selectedIDs[it.ID().String()] = true
	}

	poolByType := map[models.ItemType][]models.ScoredItem{}
	for _, it := range pool {
		if selectedIDs[it.ID().String()] {
			continue
		}
		poolByType[it.Type] = append(poolByType[it.Type], it)
	}

	result := make([]models.ScoredItem, len(selected))
	copy(result, selected)

	swapTrailing := func(fromType, toType models.ItemType) bool {
		candidates := poolByType[toType]
		if len(candidates) == 0 {
			return false
		}
		for i := len(result) - 1; i >= 0; i-- {
			if result[i].Type == fromType {
				result[i] = candidates[0]
				poolByType[toType] = candidates[1:]
				return true
			}
		}
		return false
	}

	for countSummaries < targetSummaries {
		if !swapTrailing(models.ItemMessage, models.ItemSummary) {
			break
		}
		countSummaries++
		countMessages--
	}
	for countMessages < n-targetSummaries && countSummaries > targetSummaries {
		if !swapTrailing(models.ItemSummary, models.ItemMessage) {
			break
		}
		countMessages++
		countSummaries--
	}

	return result
}

func clampLen(items []models.ScoredItem, n int) []models.ScoredItem {
	if n >= 0 && len(items) > n {
		return items[:n]
	}
	return items
}

func sortByRelevanceDesc(items []models.ScoredItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Score > items[j].Score
	})
}
