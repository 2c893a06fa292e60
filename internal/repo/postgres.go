package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lucidchat/ctxengine/internal/models"
)

// PostgresConversationRepo backs ConversationRepo with a pgx pool.
type PostgresConversationRepo struct {
	db *pgxpool.Pool
}

func NewPostgresConversationRepo(db *pgxpool.Pool) *PostgresConversationRepo {
	return &PostgresConversationRepo{db: db}
}

func (r *PostgresConversationRepo) FindByID(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.Exists(ctx, id)
}

func (r *PostgresConversationRepo) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM conversations WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, Wrap(err)
	}
	return exists, nil
}

// FindStaleConversations finds conversations whose message count has grown
// past the source_messages recorded by their most recent valid summary (or
// that have messages but no valid summary at all), capped at limit.
func (r *PostgresConversationRepo) FindStaleConversations(ctx context.Context, limit int) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx,
		`SELECT c.id
		 FROM conversations c
		 JOIN (SELECT conversation_id, COUNT(*) AS msg_count FROM messages GROUP BY conversation_id) m
		   ON m.conversation_id = c.id
		 LEFT JOIN LATERAL (
		     SELECT source_messages FROM summaries
		     WHERE conversation_id = c.id AND valid = true
		     ORDER BY created_at_ms DESC LIMIT 1
		 ) s ON true
		 WHERE s.source_messages IS NULL OR m.msg_count > s.source_messages
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, Wrap(err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, Wrap(err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, Wrap(err)
	}
	return out, nil
}

// PostgresMessageRepo backs MessageRepo with a pgx pool, delegating search
// to Postgres' tsvector/ts_rank full-text index.
type PostgresMessageRepo struct {
	db *pgxpool.Pool
}

func NewPostgresMessageRepo(db *pgxpool.Pool) *PostgresMessageRepo {
	return &PostgresMessageRepo{db: db}
}

func (r *PostgresMessageRepo) FindByConversation(ctx context.Context, opts MessageFindOptions) (Page[models.Message], error) {
	if opts.Limit <= 0 {
		opts.Limit = 500
	}
	direction := "DESC"
	if opts.Order == OrderAsc {
		direction = "ASC"
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, conversation_id, role, content, created_at_ms, parent_id, metadata, embedding
		 FROM messages WHERE conversation_id = $1
		 ORDER BY created_at_ms `+direction+`
		 LIMIT $2 OFFSET $3`,
		opts.ConversationID, opts.Limit+1, opts.Offset,
	)
	if err != nil {
		return Page[models.Message]{}, Wrap(err)
	}
	defer rows.Close()

	msgs, err := scanMessages(rows)
	if err != nil {
		return Page[models.Message]{}, Wrap(err)
	}

	hasMore := len(msgs) > opts.Limit
	if hasMore {
		msgs = msgs[:opts.Limit]
	}
	return Page[models.Message]{Items: msgs, Total: len(msgs), HasMore: hasMore}, nil
}

func (r *PostgresMessageRepo) FindWithEmbeddings(ctx context.Context, conversationID uuid.UUID, limit, offset int) (Page[models.Message], error) {
	if limit <= 0 {
		limit = 500
	}

	var rows pgx.Rows
	var err error
	if conversationID == uuid.Nil {
		rows, err = r.db.Query(ctx,
			`SELECT id, conversation_id, role, content, created_at_ms, parent_id, metadata, embedding
			 FROM messages WHERE embedding IS NOT NULL
			 ORDER BY created_at_ms DESC LIMIT $1 OFFSET $2`,
			limit+1, offset,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT id, conversation_id, role, content, created_at_ms, parent_id, metadata, embedding
			 FROM messages WHERE conversation_id = $1 AND embedding IS NOT NULL
			 ORDER BY created_at_ms DESC LIMIT $2 OFFSET $3`,
			conversationID, limit+1, offset,
		)
	}
	if err != nil {
		return Page[models.Message]{}, Wrap(err)
	}
	defer rows.Close()

	msgs, err := scanMessages(rows)
	if err != nil {
		return Page[models.Message]{}, Wrap(err)
	}

	hasMore := len(msgs) > limit
	if hasMore {
		msgs = msgs[:limit]
	}
	return Page[models.Message]{Items: msgs, Total: len(msgs), HasMore: hasMore}, nil
}

func (r *PostgresMessageRepo) Search(ctx context.Context, opts MessageSearchOptions) (Page[SearchResult], error) {
	if opts.Limit <= 0 {
		opts.Limit = 20
	}

	var rows pgx.Rows
	var err error
	if opts.ConversationID == uuid.Nil {
		rows, err = r.db.Query(ctx,
			`SELECT m.id, m.conversation_id, m.role, m.content, m.created_at_ms, m.parent_id, m.metadata,
			        ts_rank(m.tsv, plainto_tsquery('english', $1)) AS score,
			        ts_headline('english', m.content, plainto_tsquery('english', $1)) AS snippet,
			        COALESCE(c.title, '') AS conversation_title
			 FROM messages m
			 LEFT JOIN conversations c ON c.id = m.conversation_id
			 WHERE m.tsv @@ plainto_tsquery('english', $1)
			 ORDER BY score DESC
			 LIMIT $2 OFFSET $3`,
			opts.Query, opts.Limit+1, opts.Offset,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT m.id, m.conversation_id, m.role, m.content, m.created_at_ms, m.parent_id, m.metadata,
			        ts_rank(m.tsv, plainto_tsquery('english', $1)) AS score,
			        ts_headline('english', m.content, plainto_tsquery('english', $1)) AS snippet,
			        COALESCE(c.title, '') AS conversation_title
			 FROM messages m
			 LEFT JOIN conversations c ON c.id = m.conversation_id
			 WHERE m.conversation_id = $2 AND m.tsv @@ plainto_tsquery('english', $1)
			 ORDER BY score DESC
			 LIMIT $3 OFFSET $4`,
			opts.Query, opts.ConversationID, opts.Limit+1, opts.Offset,
		)
	}
	if err != nil {
		return Page[SearchResult]{}, Wrap(err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var msg models.Message
		var res SearchResult
		if err := rows.Scan(
			&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &msg.CreatedAtMS,
			&msg.ParentID, &msg.Metadata, &res.Score, &res.Snippet, &res.ConversationName,
		); err != nil {
			return Page[SearchResult]{}, Wrap(err)
		}
		res.Message = msg
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return Page[SearchResult]{}, Wrap(err)
	}

	hasMore := len(results) > opts.Limit
	if hasMore {
		results = results[:opts.Limit]
	}
	return Page[SearchResult]{Items: results, Total: len(results), HasMore: hasMore}, nil
}

func (r *PostgresMessageRepo) FindChildren(ctx context.Context, parentID uuid.UUID) ([]models.Message, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, conversation_id, role, content, created_at_ms, parent_id, metadata, embedding
		 FROM messages WHERE parent_id = $1 ORDER BY created_at_ms ASC`,
		parentID,
	)
	if err != nil {
		return nil, Wrap(err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func scanMessages(rows pgx.Rows) ([]models.Message, error) {
	var out []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAtMS, &m.ParentID, &m.Metadata, &m.Embedding); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// PostgresSummaryRepo backs SummaryRepo with a pgx pool.
type PostgresSummaryRepo struct {
	db *pgxpool.Pool
}

func NewPostgresSummaryRepo(db *pgxpool.Pool) *PostgresSummaryRepo {
	return &PostgresSummaryRepo{db: db}
}

func (r *PostgresSummaryRepo) FindValidByConversation(ctx context.Context, conversationID uuid.UUID, level *models.SummaryLevel) ([]models.Summary, error) {
	var rows pgx.Rows
	var err error
	if level == nil {
		rows, err = r.db.Query(ctx,
			`SELECT id, conversation_id, level, content, token_count, provider, model, source_messages, created_at_ms, valid
			 FROM summaries WHERE conversation_id = $1 AND valid = true
			 ORDER BY created_at_ms DESC`,
			conversationID,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT id, conversation_id, level, content, token_count, provider, model, source_messages, created_at_ms, valid
			 FROM summaries WHERE conversation_id = $1 AND level = $2 AND valid = true
			 ORDER BY created_at_ms DESC`,
			conversationID, *level,
		)
	}
	if err != nil {
		return nil, Wrap(err)
	}
	defer rows.Close()

	var out []models.Summary
	for rows.Next() {
		var s models.Summary
		if err := rows.Scan(&s.ID, &s.ConversationID, &s.Level, &s.Content, &s.TokenCount, &s.Provider, &s.Model, &s.SourceMessages, &s.CreatedAtMS, &s.Valid); err != nil {
			return nil, Wrap(err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, Wrap(err)
	}
	return out, nil
}

func (r *PostgresSummaryRepo) InvalidateForConversation(ctx context.Context, conversationID uuid.UUID) (int, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE summaries SET valid = false WHERE conversation_id = $1 AND valid = true`,
		conversationID,
	)
	if err != nil {
		return 0, Wrap(err)
	}
	return int(tag.RowsAffected()), nil
}

var errNoRows = pgx.ErrNoRows

// IsNotFound reports whether err is pgx's no-rows sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, errNoRows)
}
