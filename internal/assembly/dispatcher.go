package assembly

import (
	"strings"
	"time"

	"github.com/lucidchat/ctxengine/internal/models"
)

// Strategy is implemented by every selection policy: it narrows, orders,
// and caps a scored candidate set for a single request.
type Strategy interface {
	Name() StrategyName
	Select(items []models.ScoredItem, req Request, now time.Time) []models.ScoredItem
}

// Dispatcher resolves a request's declared (or "auto") strategy to a
// concrete Strategy implementation.
type Dispatcher struct {
	strategies map[StrategyName]Strategy
}

func NewDispatcher() *Dispatcher {
	d := &Dispatcher{strategies: map[StrategyName]Strategy{}}
	for _, s := range []Strategy{
		NewTemporalStrategy(),
		NewTopicalStrategy(),
		NewEntityStrategy(),
		NewHybridStrategy(),
	} {
		d.strategies[s.Name()] = s
	}
	return d
}

// Resolve returns the strategy to run for req, applying the auto-selection
// heuristics from the spec's strategy-selection design note when
// req.Strategy is empty or "auto":
//
//  1. temporal keyword in the query, or include_recent set, or an explicit
//     time_window under 7 days → temporal
//  2. non-empty focus_topics → topical
//  3. query contains a capitalized-token entity sequence → entity-centric
//  4. otherwise → hybrid
func (d *Dispatcher) Resolve(req Request) Strategy {
	name := req.Strategy
	if name != "" && name != StrategyAuto && KnownStrategies[name] {
		return d.strategies[name]
	}
	return d.strategies[d.autoSelect(req)]
}

func (d *Dispatcher) autoSelect(req Request) StrategyName {
	lowerQuery := strings.ToLower(req.Query)

	if req.IncludeRecent {
		return StrategyTemporal
	}
	if req.TimeWindow > 0 && req.TimeWindow < 7*24*time.Hour {
		return StrategyTemporal
	}
	for _, kw := range temporalKeywords {
		if strings.Contains(lowerQuery, kw) {
			return StrategyTemporal
		}
	}

	if len(req.FocusTopics) > 0 {
		return StrategyTopical
	}

	if len(extractEntities(req.Query)) > 0 {
		return StrategyEntity
	}

	return StrategyHybrid
}
