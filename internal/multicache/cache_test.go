package multicache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCache(t *testing.T) *Cache {
	t.Helper()
	c := New(Config{
		L1Capacity:    2,
		L2Capacity:    2,
		L3Capacity:    2,
		DefaultTTL:    time.Hour,
		OptimizeEvery: time.Hour,
	}, nil)
	t.Cleanup(c.Stop)
	return c
}

func TestCache_SetGet_RoundTrips(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()

	c.Set(ctx, "k1", []byte("v1"), SetOptions{Priority: PriorityMedium})
	val, ok := c.Get(ctx, "k1")
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), val)
}

func TestCache_Get_MissOnUnknownKey(t *testing.T) {
	c := testCache(t)
	_, ok := c.Get(context.Background(), "nope")
	assert.False(t, ok)
}

func TestCache_Set_TierByPriority(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()

	c.Set(ctx, "crit", []byte("v"), SetOptions{Priority: PriorityCritical})
	c.Set(ctx, "low", []byte("v"), SetOptions{Priority: PriorityLow})
	c.Set(ctx, "default", []byte("v"), SetOptions{})

	_, inL1 := c.tiers[TierL1].entries["crit"]
	_, inL3 := c.tiers[TierL3].entries["low"]
	_, inL2 := c.tiers[TierL2].entries["default"]

	assert.True(t, inL1)
	assert.True(t, inL3)
	assert.True(t, inL2)
}

func TestCache_Set_ExclusiveResidence(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v1"), SetOptions{Priority: PriorityLow})
	_, inL3 := c.tiers[TierL3].entries["k"]
	require.True(t, inL3)

	c.Set(ctx, "k", []byte("v2"), SetOptions{Priority: PriorityCritical})
	_, stillInL3 := c.tiers[TierL3].entries["k"]
	_, nowInL1 := c.tiers[TierL1].entries["k"]

	assert.False(t, stillInL3)
	assert.True(t, nowInL1)
}

func TestCache_Get_ExpiredEntryEvictedAsMiss(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"), SetOptions{Priority: PriorityMedium, TTL: time.Millisecond})
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
	_, stillPresent := c.tiers[TierL2].entries["k"]
	assert.False(t, stillPresent)
}

func TestCache_Delete_RemovesFromAllTiers(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"), SetOptions{Priority: PriorityCritical})
	c.Delete(ctx, "k")

	for _, tier := range []Tier{TierL1, TierL2, TierL3} {
		_, ok := c.tiers[tier].entries["k"]
		assert.False(t, ok)
	}
}

func TestCache_Clear_ResetsEverything(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()
	c.Set(ctx, "k", []byte("v"), SetOptions{Priority: PriorityCritical})

	c.Clear()

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
	stats := c.GetStats()
	assert.Equal(t, int64(0), stats.TotalHits)
}

func TestCache_EnsureSpace_EvictsWhenTierFull(t *testing.T) {
	c := testCache(t) // L3 capacity 2
	ctx := context.Background()

	c.Set(ctx, "a", []byte("v"), SetOptions{Priority: PriorityLow})
	c.Set(ctx, "b", []byte("v"), SetOptions{Priority: PriorityLow})
	c.Set(ctx, "c", []byte("v"), SetOptions{Priority: PriorityLow})

	assert.LessOrEqual(t, len(c.tiers[TierL3].entries), 2)
}

func TestCache_Subscribe_ReceivesSetEvent(t *testing.T) {
	c := testCache(t)
	var got []string
	c.Subscribe(func(ev Event) { got = append(got, ev.Name) })

	c.Set(context.Background(), "k", []byte("v"), SetOptions{Priority: PriorityMedium})

	assert.Contains(t, got, "cache:set")
}

func TestCache_WarmCache_SkipsExistingKeys(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()
	c.Set(ctx, "existing", []byte("v"), SetOptions{Priority: PriorityMedium})

	loaded := map[string]bool{}
	err := c.WarmCache(ctx, []WarmStrategy{
		{
			Keys: []string{"existing", "fresh"},
			Loader: func(_ context.Context, key string) ([]byte, error) {
				loaded[key] = true
				return []byte("warmed"), nil
			},
			Priority: PriorityMedium,
		},
	})

	require.NoError(t, err)
	assert.False(t, loaded["existing"])
	assert.True(t, loaded["fresh"])
}

func TestCache_Optimize_RemovesExpiredEntries(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()
	c.Set(ctx, "k", []byte("v"), SetOptions{Priority: PriorityMedium, TTL: time.Millisecond})
	time.Sleep(5 * time.Millisecond)

	report := c.Optimize()
	assert.GreaterOrEqual(t, report.ExpiredRemoved, 1)
}
