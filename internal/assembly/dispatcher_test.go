package assembly

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/lucidchat/ctxengine/internal/models"
)

func TestDispatcher_Resolve_ExplicitStrategyWins(t *testing.T) {
	d := NewDispatcher()
	s := d.Resolve(Request{Strategy: StrategyEntity, Query: "what changed recently"})
	assert.Equal(t, StrategyEntity, s.Name())
}

func TestDispatcher_AutoSelect_TemporalKeyword(t *testing.T) {
	d := NewDispatcher()
	s := d.Resolve(Request{Query: "what did we discuss yesterday"})
	assert.Equal(t, StrategyTemporal, s.Name())
}

func TestDispatcher_AutoSelect_IncludeRecent(t *testing.T) {
	d := NewDispatcher()
	s := d.Resolve(Request{Query: "summarize the project", IncludeRecent: true})
	assert.Equal(t, StrategyTemporal, s.Name())
}

func TestDispatcher_AutoSelect_ShortTimeWindow(t *testing.T) {
	d := NewDispatcher()
	s := d.Resolve(Request{Query: "summarize the project", TimeWindow: 2 * 24 * time.Hour})
	assert.Equal(t, StrategyTemporal, s.Name())
}

func TestDispatcher_AutoSelect_FocusTopics(t *testing.T) {
	d := NewDispatcher()
	s := d.Resolve(Request{Query: "summarize", FocusTopics: []string{"billing"}})
	assert.Equal(t, StrategyTopical, s.Name())
}

func TestDispatcher_AutoSelect_Entity(t *testing.T) {
	d := NewDispatcher()
	s := d.Resolve(Request{Query: "what did Acme Corp decide about Project Falcon"})
	assert.Equal(t, StrategyEntity, s.Name())
}

func TestDispatcher_AutoSelect_FallsBackToHybrid(t *testing.T) {
	d := NewDispatcher()
	s := d.Resolve(Request{Query: "tell me about the deployment plan"})
	assert.Equal(t, StrategyHybrid, s.Name())
}

func TestDispatcher_Resolve_UnknownStrategyFallsBackToAuto(t *testing.T) {
	d := NewDispatcher()
	s := d.Resolve(Request{Strategy: StrategyName("bogus"), Query: "what happened yesterday"})
	assert.Equal(t, StrategyTemporal, s.Name())
}

func makeMessageItem(convID uuid.UUID, content string, score float64, age time.Duration, now time.Time) models.ScoredItem {
	msg := &models.Message{
		ID:             uuid.New(),
		ConversationID: convID,
		Role:           models.RoleUser,
		Content:        content,
		CreatedAtMS:    now.Add(-age).UnixMilli(),
	}
	return models.ScoredItem{
		Type:      models.ItemMessage,
		Message:   msg,
		Score:     score,
		CreatedAt: msg.CreatedAt(),
		ConvID:    convID,
	}
}

func TestTemporalStrategy_Select_PrefersRecentItems(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	convID := uuid.New()

	recent := makeMessageItem(convID, "we just shipped the release", 0.5, time.Hour, now)
	old := makeMessageItem(convID, "an old unrelated note", 0.5, 20*24*time.Hour, now)

	strat := NewTemporalStrategy()
	out := strat.Select([]models.ScoredItem{old, recent}, Request{}, now)

	if assert.NotEmpty(t, out) {
		assert.Equal(t, recent.Message.ID, out[0].Message.ID)
	}
}

func TestEntityStrategy_Select_PenalizesNoMatch(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	convID := uuid.New()

	matching := makeMessageItem(convID, "Acme Corp signed the contract", 0.6, time.Hour, now)
	unrelated := makeMessageItem(convID, "the weather was nice today", 0.6, time.Hour, now)

	strat := NewEntityStrategy()
	out := strat.Select([]models.ScoredItem{unrelated, matching}, Request{Query: "what did Acme Corp decide"}, now)

	if assert.NotEmpty(t, out) {
		assert.Equal(t, matching.Message.ID, out[0].Message.ID)
	}
}

func TestHybridStrategy_Select_CapsAtMaxItems(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	convID := uuid.New()

	var items []models.ScoredItem
	for i := 0; i < 40; i++ {
		items = append(items, makeMessageItem(convID, "message body text varies here", 0.4, time.Duration(i)*time.Hour, now))
	}

	strat := NewHybridStrategy()
	out := strat.Select(items, Request{Query: "general catch up"}, now)
	assert.LessOrEqual(t, len(out), 15)
}
