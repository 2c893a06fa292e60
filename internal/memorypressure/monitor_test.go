package memorypressure

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMonitor_Pressure_ClassifiesByHeapPercent(t *testing.T) {
	m := New(DefaultConfig())

	low := m.Pressure(&Stats{HeapUsed: 50, HeapTotal: 100})
	assert.Equal(t, LevelLow, low.Level)

	medium := m.Pressure(&Stats{HeapUsed: 75, HeapTotal: 100})
	assert.Equal(t, LevelMedium, medium.Level)

	high := m.Pressure(&Stats{HeapUsed: 90, HeapTotal: 100})
	assert.Equal(t, LevelHigh, high.Level)

	critical := m.Pressure(&Stats{HeapUsed: 96, HeapTotal: 100})
	assert.Equal(t, LevelCritical, critical.Level)
}

func TestMonitor_CurrentStats_ReturnsNonZeroHeap(t *testing.T) {
	m := New(DefaultConfig())
	stats := m.CurrentStats()
	assert.Greater(t, stats.HeapTotal, uint64(0))
}

func TestMonitor_ForceGC_RunsCleanups(t *testing.T) {
	m := New(DefaultConfig())
	called := false
	m.RegisterCleanup(func() { called = true })

	m.ForceGC()
	assert.True(t, called)
}

func TestShouldFire_OnlyOnRisingTransitionToMediumOrHigher(t *testing.T) {
	assert.False(t, shouldFire(LevelLow, LevelLow))
	assert.True(t, shouldFire(LevelLow, LevelMedium))
	assert.True(t, shouldFire(LevelMedium, LevelHigh))
	assert.False(t, shouldFire(LevelHigh, LevelHigh))
	assert.False(t, shouldFire(LevelHigh, LevelMedium))
	assert.False(t, shouldFire(LevelCritical, LevelHigh))
}
