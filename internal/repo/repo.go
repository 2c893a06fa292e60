// Package repo declares the narrow, read-mostly repository contracts the
// context engine's core depends on (C11). Implementations persist in a
// relational store; the core only ever sees these interfaces.
package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lucidchat/ctxengine/internal/ctxerrors"
	"github.com/lucidchat/ctxengine/internal/models"
)

// Page is a generic pagination envelope returned by list operations.
type Page[T any] struct {
	Items   []T
	Total   int
	HasMore bool
}

// Order controls find_by_conversation's sort direction.
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// ConversationRepo answers existence/identity questions about
// conversations. The engine never mutates conversations itself.
type ConversationRepo interface {
	FindByID(ctx context.Context, id uuid.UUID) (bool, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	// FindStaleConversations returns conversations that have accumulated
	// messages past their latest valid summary's source_messages count,
	// feeding the worker's periodic summary-invalidation sweep.
	FindStaleConversations(ctx context.Context, limit int) ([]uuid.UUID, error)
}

// MessageFindOptions parameterizes MessageRepo.FindByConversation.
type MessageFindOptions struct {
	ConversationID uuid.UUID
	Limit          int
	Offset         int
	Order          Order
}

// MessageSearchOptions parameterizes MessageRepo.Search, C9's FTS path.
type MessageSearchOptions struct {
	Query          string
	ConversationID uuid.UUID // uuid.Nil means unscoped
	Limit          int
	Offset         int
}

// SearchResult is one full-text match, carrying the raw bm25-family score
// the caller normalizes into [0, 1].
type SearchResult struct {
	Message          models.Message
	Score            float64
	Snippet          string
	ConversationName string
}

// MessageRepo is the message-data access surface.
type MessageRepo interface {
	FindByConversation(ctx context.Context, opts MessageFindOptions) (Page[models.Message], error)
	FindWithEmbeddings(ctx context.Context, conversationID uuid.UUID, limit, offset int) (Page[models.Message], error)
	Search(ctx context.Context, opts MessageSearchOptions) (Page[SearchResult], error)
	FindChildren(ctx context.Context, parentID uuid.UUID) ([]models.Message, error)
}

// SummaryRepo is the summary-data access surface.
type SummaryRepo interface {
	FindValidByConversation(ctx context.Context, conversationID uuid.UUID, level *models.SummaryLevel) ([]models.Summary, error)
	InvalidateForConversation(ctx context.Context, conversationID uuid.UUID) (int, error)
}

// CacheRepo is an optional persistence tier for the in-memory multi-tier
// cache (C8); the in-memory cache does not use it today, but the contract
// is reserved so a durable L4 tier can be added without touching C8's
// callers.
type CacheRepo interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// NearestMatch is one result of EmbeddingProvider.Nearest.
type NearestMatch struct {
	MessageID  uuid.UUID
	Similarity float64
}

// EmbeddingProvider computes and queries vector embeddings. is_available
// lets callers degrade gracefully (§4.5, §4.9) instead of failing outright.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Nearest(ctx context.Context, vector []float32, k int, conversationID uuid.UUID) ([]NearestMatch, error)
	IsAvailable(ctx context.Context) bool
}

// Wrap annotates a lower-level storage error as StorageUnavailable while
// preserving the original error in the chain for logging and errors.Is.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ctxerrors.ErrStorageUnavailable, err)
}
