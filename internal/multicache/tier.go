// Package multicache implements the multi-tier in-memory cache (C8):
// three named tiers (L1 hot/LFU, L2 warm/TLRU, L3 cold/LRU) with
// promotion/demotion, adaptive sizing under memory pressure, and an
// in-process event broadcaster. Grounded on the corpus's CacheManager
// shape (tier maps + access-order bookkeeping + background tickers)
// generalized from a single LRU map to three independently-policied
// tiers plus the spec's promotion/demotion contract.
package multicache

import (
	"encoding/json"
	"sync"
	"time"
)

// Policy is a tier's eviction policy.
type Policy string

const (
	PolicyLFU  Policy = "lfu"
	PolicyTLRU Policy = "tlru"
	PolicyLRU  Policy = "lru"
)

// Tier identifies one of the three cache levels.
type Tier string

const (
	TierL1 Tier = "l1" // hot, LFU
	TierL2 Tier = "l2" // warm, TLRU
	TierL3 Tier = "l3" // cold, LRU
)

// Priority drives a set's initial tier placement.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// entry is one cached value plus the bookkeeping eviction policies need.
type entry struct {
	key         string
	value       []byte
	ttl         time.Duration
	priority    Priority
	cost        int
	size        int
	createdAt   time.Time
	lastAccess  time.Time
	accessCount int64
}

func (e *entry) expired(now time.Time) bool {
	return e.ttl > 0 && now.Sub(e.createdAt) > e.ttl
}

// tierStore holds one tier's entries and its policy + capacity.
type tierStore struct {
	mu       sync.Mutex
	policy   Policy
	maxItems int
	entries  map[string]*entry

	hits   int64
	misses int64
}

func newTierStore(policy Policy, maxItems int) *tierStore {
	return &tierStore{
		policy:   policy,
		maxItems: maxItems,
		entries:  make(map[string]*entry),
	}
}

// victim returns the key that should be evicted first under this tier's
// policy, or "" if the tier is empty.
func (t *tierStore) victim(now time.Time) string {
	var victimKey string
	var victimScore float64
	first := true

	for k, e := range t.entries {
		var score float64
		switch t.policy {
		case PolicyLFU:
			score = float64(e.accessCount)
			if !first && score == victimScore && e.lastAccess.Before(t.entries[victimKey].lastAccess) {
				victimKey = k
				continue
			}
		case PolicyTLRU:
			denom := e.accessCount
			if denom < 1 {
				denom = 1
			}
			score = -(now.Sub(e.lastAccess).Seconds() / float64(denom)) // maximize age/count -> minimize negative
		case PolicyLRU:
			score = float64(e.lastAccess.UnixNano())
		}

		if first || lessPreferred(t.policy, score, victimScore) {
			victimKey = k
			victimScore = score
			first = false
		}
	}
	return victimKey
}

// lessPreferred reports whether candidate score c is a worse (more
// evictable) entry than the current best b, for the tier's policy. LFU
// and LRU want the minimum raw score (access count, last-access time) to
// be the victim; TLRU
// wants the maximum (now-last_access)/access_count which we've already
// negated above so the same "minimum wins" rule applies uniformly.
func lessPreferred(_ Policy, c, b float64) bool {
	return c < b
}

func (t *tierStore) jsonSnapshot() ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	keys := make([]string, 0, len(t.entries))
	for k := range t.entries {
		keys = append(keys, k)
	}
	return json.Marshal(keys)
}
