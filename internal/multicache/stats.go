package multicache

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// TierStats is one tier's point-in-time counters.
type TierStats struct {
	Tier     Tier
	Policy   Policy
	Entries  int
	MaxItems int
	Hits     int64
	Misses   int64
}

// Efficiency holds derived, whole-cache quality metrics.
type Efficiency struct {
	MemoryUtilization float64
	AverageEntrySize  float64
	HotDataRatio      float64
}

// Stats is the full report returned by GetStats.
type Stats struct {
	Tiers           map[Tier]TierStats
	TotalHits       int64
	TotalMisses     int64
	HitRate         float64
	Efficiency      Efficiency
	Recommendations []string
}

// GetStats computes per-tier and global counters plus derived efficiency
// metrics and textual recommendations.
func (c *Cache) GetStats() Stats {
	stats := Stats{Tiers: make(map[Tier]TierStats, 3)}
	var totalEntries, totalSize int
	var l1Entries int

	for _, tier := range []Tier{TierL1, TierL2, TierL3} {
		store := c.tiers[tier]
		store.mu.Lock()
		ts := TierStats{
			Tier:     tier,
			Policy:   store.policy,
			Entries:  len(store.entries),
			MaxItems: store.maxItems,
			Hits:     store.hits,
			Misses:   store.misses,
		}
		for _, e := range store.entries {
			totalSize += e.size
		}
		if tier == TierL1 {
			l1Entries = len(store.entries)
		}
		store.mu.Unlock()

		stats.Tiers[tier] = ts
		stats.TotalHits += ts.Hits
		stats.TotalMisses += ts.Misses
		totalEntries += ts.Entries
	}

	total := stats.TotalHits + stats.TotalMisses
	if total > 0 {
		stats.HitRate = float64(stats.TotalHits) / float64(total)
	}
	if totalEntries > 0 {
		stats.Efficiency.AverageEntrySize = float64(totalSize) / float64(totalEntries)
		stats.Efficiency.HotDataRatio = float64(l1Entries) / float64(totalEntries)
	}
	if c.cfg.TotalBudget > 0 {
		stats.Efficiency.MemoryUtilization = float64(totalSize) / float64(c.cfg.TotalBudget)
	}

	stats.Recommendations = recommendations(stats)
	return stats
}

func recommendations(s Stats) []string {
	var out []string
	if s.HitRate < 0.5 && (s.TotalHits+s.TotalMisses) > 0 {
		out = append(out, "hit rate is below 50%; consider widening TTLs or warming more keys")
	}
	if s.Efficiency.HotDataRatio > 0.5 {
		out = append(out, "L1 holds over half of all entries; consider raising L1 capacity or lowering the promotion threshold")
	}
	if s.Efficiency.MemoryUtilization > 0.9 {
		out = append(out, "cache is near its memory budget; adaptive shrink will trigger under pressure")
	}
	if len(out) == 0 {
		out = append(out, "cache is operating within expected bounds")
	}
	return out
}

// OptimizeReport summarizes one Optimize() pass.
type OptimizeReport struct {
	ExpiredRemoved   int
	Rebalanced       int
	PatternsCompacted int
}

// Optimize removes expired entries, rebalances tiers by access pattern
// (promoting frequently-hit L2/L3 keys, same rule Get's considerPromotion
// applies reactively), and compacts stale access-pattern metadata.
func (c *Cache) Optimize() OptimizeReport {
	report := OptimizeReport{}
	now := time.Now()

	for tier, store := range c.tiers {
		store.mu.Lock()
		var expired []string
		for k, e := range store.entries {
			if e.expired(now) {
				expired = append(expired, k)
			}
		}
		for _, k := range expired {
			delete(store.entries, k)
		}
		store.mu.Unlock()
		report.ExpiredRemoved += len(expired)
		for _, k := range expired {
			c.dropAccessPattern(k)
		}

		if tier == TierL1 {
			continue
		}
		store.mu.Lock()
		var candidates []string
		for k, e := range store.entries {
			if e.accessCount > 10 && now.Sub(e.lastAccess) < 60*time.Second {
				candidates = append(candidates, k)
			}
		}
		store.mu.Unlock()
		for _, k := range candidates {
			c.move(tier, TierL1, k)
			report.Rebalanced++
		}
	}

	c.mu.Lock()
	var stale []string
	for k, ap := range c.accessPatterns {
		if now.Sub(ap.lastSeen) > 24*time.Hour {
			stale = append(stale, k)
		}
	}
	for _, k := range stale {
		delete(c.accessPatterns, k)
	}
	c.mu.Unlock()
	report.PatternsCompacted = len(stale)

	return report
}

// adaptiveResize applies §4.8's resize rule: shrink each tier to 0.8x
// under high/critical pressure, grow each tier to 1.2x under low pressure
// while the global hit rate is below 0.8. Growth is not bounded by the
// free heap.
func (c *Cache) adaptiveResize() {
	if c.pressureFn == nil {
		return
	}
	level := c.pressureFn()
	stats := c.GetStats()

	switch level {
	case "high", "critical":
		for _, store := range c.tiers {
			c.resizeTier(store, int(float64(store.maxItems)*0.8))
		}
		c.emit("cache:resized", map[string]any{"action": "shrink", "factor": 0.8})
	case "low":
		if stats.HitRate < 0.8 {
			for _, store := range c.tiers {
				c.resizeTier(store, int(float64(store.maxItems)*1.2))
			}
			c.emit("cache:resized", map[string]any{"action": "grow", "factor": 1.2})
		}
	}
}

func (c *Cache) resizeTier(store *tierStore, newMax int) {
	if newMax < 1 {
		newMax = 1
	}
	store.mu.Lock()
	store.maxItems = newMax
	over := len(store.entries) - newMax
	store.mu.Unlock()
	if over > 0 {
		var tier Tier
		for t, s := range c.tiers {
			if s == store {
				tier = t
			}
		}
		for i := 0; i < over; i++ {
			store.mu.Lock()
			v := store.victim(time.Now())
			store.mu.Unlock()
			if v == "" {
				break
			}
			store.mu.Lock()
			delete(store.entries, v)
			store.mu.Unlock()
			c.dropAccessPattern(v)
			c.emit("cache:evicted", map[string]any{"key": v, "tier": string(tier)})
		}
	}
}

// checkPressure implements the pressure event handler: clear L3 on
// high/critical, and on critical additionally halve L2 by keeping the
// more-recently-accessed half.
func (c *Cache) checkPressure() {
	if c.pressureFn == nil {
		return
	}
	level := c.pressureFn()
	if level != "high" && level != "critical" {
		return
	}

	l3 := c.tiers[TierL3]
	l3.mu.Lock()
	freed := len(l3.entries)
	l3.entries = make(map[string]*entry)
	l3.mu.Unlock()

	if level == "critical" {
		l2 := c.tiers[TierL2]
		l2.mu.Lock()
		type keyed struct {
			key string
			at  time.Time
		}
		all := make([]keyed, 0, len(l2.entries))
		for k, e := range l2.entries {
			all = append(all, keyed{k, e.lastAccess})
		}
		sort.Slice(all, func(i, j int) bool { return all[i].at.After(all[j].at) })
		keep := len(all) / 2
		for i := keep; i < len(all); i++ {
			delete(l2.entries, all[i].key)
			freed++
		}
		l2.mu.Unlock()
	}

	c.emit("cache:pressure_cleanup", map[string]any{"memory_freed": freed, "pressure_level": level})
}

// WarmStrategy describes one cache-warming pass: for each key not
// currently present, Loader is invoked and the result stored with the
// given priority.
type WarmStrategy struct {
	Keys     []string
	Loader   func(ctx context.Context, key string) ([]byte, error)
	Priority Priority
}

// WarmCache runs each strategy's loader over its keys, skipping keys
// already present in any tier.
func (c *Cache) WarmCache(ctx context.Context, strategies []WarmStrategy) error {
	var firstErr error
	for _, strat := range strategies {
		for _, key := range strat.Keys {
			if c.present(key) {
				continue
			}
			val, err := strat.Loader(ctx, key)
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("warm key %q: %w", key, err)
				}
				continue
			}
			c.Set(ctx, key, val, SetOptions{Priority: strat.Priority, Cost: 5})
		}
	}
	c.emit("cache:warmed", map[string]any{"strategies": len(strategies)})
	return firstErr
}

func (c *Cache) present(key string) bool {
	for _, store := range c.tiers {
		store.mu.Lock()
		_, ok := store.entries[key]
		store.mu.Unlock()
		if ok {
			return true
		}
	}
	return false
}
