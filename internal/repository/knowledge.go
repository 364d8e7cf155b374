package repository

import (
	"context"
	"errors"
	"time"

	"github.com/frontlinehq/frontline/internal/domain"
	"github.com/frontlinehq/frontline/internal/pagination"
	"github.com/frontlinehq/frontline/internal/service"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

type KnowledgeRepository struct {
	db dbtx
}

func NewKnowledgeRepository(pool *pgxpool.Pool) *KnowledgeRepository {
	return &KnowledgeRepository{db: pool}
}

func NewKnowledgeRepositoryWithTx(tx pgx.Tx) *KnowledgeRepository {
	return &KnowledgeRepository{db: tx}
}

func (r *KnowledgeRepository) Create(ctx context.Context, k *domain.KnowledgeEntry) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO knowledge_entries (id, question, answer, source, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		k.ID, k.Question, k.Answer, k.Source, k.CreatedAt, k.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrDuplicateQuestion
	}
	return err
}

// UpsertByQuestion inserts a new entry or, when the question already exists,
// updates its answer and source in place. The unique constraint on question
// is the arbiter, so concurrent upserts for the same question cannot produce
// duplicate rows.
func (r *KnowledgeRepository) UpsertByQuestion(ctx context.Context, k *domain.KnowledgeEntry) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO knowledge_entries (id, question, answer, source, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (question) DO UPDATE
		 SET answer = EXCLUDED.answer, source = EXCLUDED.source, updated_at = EXCLUDED.updated_at`,
		k.ID, k.Question, k.Answer, k.Source, k.CreatedAt, k.UpdatedAt,
	)
	return err
}

func (r *KnowledgeRepository) GetByID(ctx context.Context, id string) (*domain.KnowledgeEntry, error) {
	var k domain.KnowledgeEntry
	err := r.db.QueryRow(ctx,
		`SELECT id, question, answer, source, created_at, updated_at
		 FROM knowledge_entries WHERE id = $1`,
		id,
	).Scan(&k.ID, &k.Question, &k.Answer, &k.Source, &k.CreatedAt, &k.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrKnowledgeNotFound
		}
		return nil, err
	}
	return &k, nil
}

// ListRecent returns the most recently updated entries, newest first.
// Feeds the knowledge snapshot.
func (r *KnowledgeRepository) ListRecent(ctx context.Context, limit int) ([]*domain.KnowledgeEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx,
		`SELECT id, question, answer, source, created_at, updated_at
		 FROM knowledge_entries ORDER BY updated_at DESC, id DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanKnowledgeRows(rows)
}

// ListAll returns every entry, newest first. Used by the export path.
func (r *KnowledgeRepository) ListAll(ctx context.Context) ([]*domain.KnowledgeEntry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, question, answer, source, created_at, updated_at
		 FROM knowledge_entries ORDER BY updated_at DESC, id DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanKnowledgeRows(rows)
}

func (r *KnowledgeRepository) ListWithCursor(ctx context.Context, cursor *pagination.Cursor, limit int) (*service.KnowledgePageResult, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows pgx.Rows
	var err error

	if cursor != nil {
		rows, err = r.db.Query(ctx,
			`SELECT id, question, answer, source, created_at, updated_at
			 FROM knowledge_entries
			 WHERE (updated_at, id) < ($1, $2)
			 ORDER BY updated_at DESC, id DESC
			 LIMIT $3`,
			cursor.Timestamp, cursor.LastID, limit+1,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT id, question, answer, source, created_at, updated_at
			 FROM knowledge_entries
			 ORDER BY updated_at DESC, id DESC
			 LIMIT $1`,
			limit+1,
		)
	}

	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items, err := scanKnowledgeRows(rows)
	if err != nil {
		return nil, err
	}

	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}

	var nextCursor string
	if hasMore && len(items) > 0 {
		lastItem := items[len(items)-1]
		nextCursor = pagination.EncodeCursor(lastItem.ID, lastItem.UpdatedAt)
	}

	return &service.KnowledgePageResult{
		Items:      items,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// SearchText performs a case-insensitive substring search over questions
// and answers.
func (r *KnowledgeRepository) SearchText(ctx context.Context, query string, limit int) ([]*domain.KnowledgeEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(ctx,
		`SELECT id, question, answer, source, created_at, updated_at
		 FROM knowledge_entries
		 WHERE question ILIKE '%' || $1 || '%' OR answer ILIKE '%' || $1 || '%'
		 ORDER BY updated_at DESC
		 LIMIT $2`,
		query, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanKnowledgeRows(rows)
}

// SearchByEmbedding ranks entries by cosine distance to the query embedding.
func (r *KnowledgeRepository) SearchByEmbedding(ctx context.Context, embedding []float32, limit int) ([]*service.ScoredKnowledgeEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	vec := pgvector.NewVector(embedding)
	rows, err := r.db.Query(ctx,
		`SELECT id, question, answer, source, created_at, updated_at,
		        1.0 / (1.0 + (embedding <=> $1)) AS score
		 FROM knowledge_entries
		 WHERE embedding IS NOT NULL
		 ORDER BY score DESC
		 LIMIT $2`,
		vec, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*service.ScoredKnowledgeEntry
	for rows.Next() {
		var s service.ScoredKnowledgeEntry
		var k domain.KnowledgeEntry
		if err := rows.Scan(&k.ID, &k.Question, &k.Answer, &k.Source, &k.CreatedAt, &k.UpdatedAt, &s.Score); err != nil {
			return nil, err
		}
		s.Entry = &k
		results = append(results, &s)
	}
	return results, rows.Err()
}

func (r *KnowledgeRepository) Update(ctx context.Context, k *domain.KnowledgeEntry) error {
	k.UpdatedAt = time.Now().UTC()
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE knowledge_entries SET question = $1, answer = $2, source = $3, updated_at = $4
		 WHERE id = $5`,
		k.Question, k.Answer, k.Source, k.UpdatedAt, k.ID,
	)
	if isUniqueViolation(err) {
		return domain.ErrDuplicateQuestion
	}
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrKnowledgeNotFound
	}
	return nil
}

func (r *KnowledgeRepository) UpdateEmbedding(ctx context.Context, id string, embedding []float32) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE knowledge_entries SET embedding = $1 WHERE id = $2`,
		pgvector.NewVector(embedding), id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrKnowledgeNotFound
	}
	return nil
}

func (r *KnowledgeRepository) Delete(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx,
		`DELETE FROM knowledge_entries WHERE id = $1`,
		id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrKnowledgeNotFound
	}
	return nil
}

func scanKnowledgeRows(rows pgx.Rows) ([]*domain.KnowledgeEntry, error) {
	var results []*domain.KnowledgeEntry
	for rows.Next() {
		var k domain.KnowledgeEntry
		if err := rows.Scan(&k.ID, &k.Question, &k.Answer, &k.Source, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, err
		}
		results = append(results, &k)
	}
	return results, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
