package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// embedder is the subset of embedding.Service this provider needs —
// narrowed so tests can supply a fake without a live LLM gateway.
type embedder interface {
	EmbedSingle(ctx context.Context, text string) ([]float32, error)
}

// PgEmbeddingProvider implements EmbeddingProvider by delegating
// embedding generation to the LLM gateway (embedding.Service) and nearest-
// neighbor search to pgvector's `<=>` cosine distance operator.
type PgEmbeddingProvider struct {
	db       *pgxpool.Pool
	embedder embedder
}

func NewPgEmbeddingProvider(db *pgxpool.Pool, svc embedder) *PgEmbeddingProvider {
	return &PgEmbeddingProvider{db: db, embedder: svc}
}

func (p *PgEmbeddingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := p.embedder.EmbedSingle(ctx, text)
	if err != nil {
		return nil, errors.Join(errors.New("embedding unavailable"), err)
	}
	return vec, nil
}

func (p *PgEmbeddingProvider) Nearest(ctx context.Context, vector []float32, k int, conversationID uuid.UUID) ([]NearestMatch, error) {
	if k <= 0 {
		k = 50
	}
	embeddingVec := pgvector.NewVector(vector)

	var rows interface {
		Next() bool
		Scan(dest ...any) error
		Close()
		Err() error
	}
	var err error
	if conversationID == uuid.Nil {
		rows, err = p.db.Query(ctx,
			`SELECT id, 1 - (embedding <=> $1) AS similarity
			 FROM messages WHERE embedding IS NOT NULL
			 ORDER BY embedding <=> $1
			 LIMIT $2`,
			embeddingVec, k,
		)
	} else {
		rows, err = p.db.Query(ctx,
			`SELECT id, 1 - (embedding <=> $1) AS similarity
			 FROM messages WHERE conversation_id = $2 AND embedding IS NOT NULL
			 ORDER BY embedding <=> $1
			 LIMIT $3`,
			embeddingVec, conversationID, k,
		)
	}
	if err != nil {
		return nil, Wrap(err)
	}
	defer rows.Close()

	var out []NearestMatch
	for rows.Next() {
		var m NearestMatch
		if err := rows.Scan(&m.MessageID, &m.Similarity); err != nil {
			return nil, Wrap(err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, Wrap(err)
	}
	return out, nil
}

// IsAvailable reports whether an embedder is configured at all. It is a
// cheap, no-network check — transient embedding failures surface instead
// as a recoverable error from Embed, not as unavailability here.
func (p *PgEmbeddingProvider) IsAvailable(_ context.Context) bool {
	return p.embedder != nil && p.db != nil
}
