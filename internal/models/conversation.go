package models

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is a single turn in a conversation, optionally embedded for
// semantic retrieval and optionally threaded via ParentID.
type Message struct {
	ID             uuid.UUID         `json:"id" db:"id"`
	ConversationID uuid.UUID         `json:"conversation_id" db:"conversation_id"`
	Role           Role              `json:"role" db:"role"`
	Content        string            `json:"content" db:"content"`
	CreatedAtMS    int64             `json:"created_at_ms" db:"created_at_ms"`
	ParentID       *uuid.UUID        `json:"parent_id,omitempty" db:"parent_id"`
	Metadata       map[string]string `json:"metadata,omitempty" db:"metadata"`
	Embedding      []float32         `json:"-" db:"embedding"`
}

// CreatedAt returns the message timestamp as a time.Time.
func (m Message) CreatedAt() time.Time {
	return time.UnixMilli(m.CreatedAtMS)
}

// SummaryLevel is the granularity of a conversation summary.
type SummaryLevel string

const (
	SummaryBrief    SummaryLevel = "brief"
	SummaryStandard SummaryLevel = "standard"
	SummaryDetailed SummaryLevel = "detailed"
)

// Summary is a derived, LLM-generated digest of a run of messages.
// At most one valid summary per (conversation, level) should be surfaced
// to assembly; superseded summaries are retained for audit but excluded.
type Summary struct {
	ID             uuid.UUID    `json:"id" db:"id"`
	ConversationID uuid.UUID    `json:"conversation_id" db:"conversation_id"`
	Level          SummaryLevel `json:"level" db:"level"`
	Content        string       `json:"content" db:"content"`
	TokenCount     int          `json:"token_count" db:"token_count"`
	Provider       string       `json:"provider" db:"provider"`
	Model          string       `json:"model" db:"model"`
	SourceMessages int          `json:"source_messages" db:"source_messages"`
	CreatedAtMS    int64        `json:"created_at_ms" db:"created_at_ms"`
	Valid          bool         `json:"valid" db:"valid"`
}

func (s Summary) CreatedAt() time.Time {
	return time.UnixMilli(s.CreatedAtMS)
}

// ItemType distinguishes the two candidate kinds assembly can draw on.
type ItemType string

const (
	ItemMessage ItemType = "message"
	ItemSummary ItemType = "summary"
)

// ScoredItem wraps a Message or Summary with a relevance score computed
// for one assembly request. Ephemeral — never persisted.
type ScoredItem struct {
	Type       ItemType
	Message    *Message
	Summary    *Summary
	Score      float64
	Tokens     int
	CreatedAt  time.Time
	ConvID     uuid.UUID
}

// ID returns the underlying message or summary identifier.
func (si ScoredItem) ID() uuid.UUID {
	if si.Type == ItemSummary && si.Summary != nil {
		return si.Summary.ID
	}
	if si.Message != nil {
		return si.Message.ID
	}
	return uuid.Nil
}

// Content returns the underlying text content.
func (si ScoredItem) Content() string {
	if si.Type == ItemSummary && si.Summary != nil {
		return si.Summary.Content
	}
	if si.Message != nil {
		return si.Message.Content
	}
	return ""
}
