// Package assembly implements the assembly strategies (C4): selecting and
// ordering scored candidates under a strategy. The context assembler (C5)
// in internal/assembler hands the selection to the token optimizer.
package assembly

import (
	"time"

	"github.com/google/uuid"
)

// StrategyName identifies one of the pluggable selection policies.
type StrategyName string

const (
	StrategyTemporal StrategyName = "temporal"
	StrategyTopical  StrategyName = "topical"
	StrategyEntity   StrategyName = "entity-centric"
	StrategyHybrid   StrategyName = "hybrid"
	StrategyAuto     StrategyName = "auto"
)

// KnownStrategies lists every tag assemble() accepts besides "auto".
var KnownStrategies = map[StrategyName]bool{
	StrategyTemporal: true,
	StrategyTopical:  true,
	StrategyEntity:   true,
	StrategyHybrid:   true,
}

// temporalKeywords is the closed set that forces auto-selection toward
// the temporal strategy.
var temporalKeywords = []string{
	"recent", "latest", "current", "now", "today", "yesterday", "this week",
	"last", "new", "updated", "changed", "just",
}

// Request is the subset of an assembly request the strategies need.
type Request struct {
	Query          string
	ConversationID uuid.UUID
	Budget         int
	Strategy       StrategyName
	MinRelevance   *float64
	TimeWindow     time.Duration
	FocusTopics    []string
	IncludeRecent  bool
}

// minRelevance returns the caller-supplied floor, or def when unset.
func (r Request) minRelevance(def float64) float64 {
	if r.MinRelevance != nil {
		return *r.MinRelevance
	}
	return def
}
