package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/frontlinehq/frontline/internal/domain"
	"github.com/frontlinehq/frontline/internal/pagination"
	"github.com/frontlinehq/frontline/internal/service"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type EscalationRepository struct {
	db dbtx
}

func NewEscalationRepository(pool *pgxpool.Pool) *EscalationRepository {
	return &EscalationRepository{db: pool}
}

func NewEscalationRepositoryWithTx(tx pgx.Tx) *EscalationRepository {
	return &EscalationRepository{db: tx}
}

func (r *EscalationRepository) Create(ctx context.Context, e *domain.Escalation) error {
	metadataJSON, err := json.Marshal(e.Metadata)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx,
		`INSERT INTO escalations (id, caller_id, caller_phone, question, status, metadata, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, nullableString(e.CallerID), nullableString(e.CallerPhone), e.Question, e.Status, metadataJSON, e.CreatedAt, e.UpdatedAt,
	)
	return err
}

func (r *EscalationRepository) GetByID(ctx context.Context, id string) (*domain.Escalation, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, caller_id, caller_phone, question, status, answer, resolved_by, timeout_at, metadata, created_at, updated_at
		 FROM escalations WHERE id = $1`,
		id,
	)
	e, err := scanEscalationRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEscalationNotFound
		}
		return nil, err
	}
	return e, nil
}

// ListPending returns all PENDING escalations, oldest first.
func (r *EscalationRepository) ListPending(ctx context.Context) ([]*domain.Escalation, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, caller_id, caller_phone, question, status, answer, resolved_by, timeout_at, metadata, created_at, updated_at
		 FROM escalations WHERE status = $1 ORDER BY created_at ASC`,
		domain.EscalationStatusPending,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEscalationRows(rows)
}

// ListPendingByCaller returns the caller's open escalations, oldest first.
// Source of truth behind the in-process pending tracker.
func (r *EscalationRepository) ListPendingByCaller(ctx context.Context, callerID string) ([]*domain.Escalation, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, caller_id, caller_phone, question, status, answer, resolved_by, timeout_at, metadata, created_at, updated_at
		 FROM escalations WHERE status = $1 AND caller_id = $2 ORDER BY created_at ASC`,
		domain.EscalationStatusPending, callerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEscalationRows(rows)
}

// ListByIDsWithStatus returns the subset of the given escalations currently
// in the given status.
func (r *EscalationRepository) ListByIDsWithStatus(ctx context.Context, ids []string, status domain.EscalationStatus) ([]*domain.Escalation, error) {
	if len(ids) == 0 {
		return []*domain.Escalation{}, nil
	}
	rows, err := r.db.Query(ctx,
		`SELECT id, caller_id, caller_phone, question, status, answer, resolved_by, timeout_at, metadata, created_at, updated_at
		 FROM escalations WHERE id = ANY($1) AND status = $2 ORDER BY updated_at ASC`,
		ids, status,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEscalationRows(rows)
}

func (r *EscalationRepository) ListWithCursor(ctx context.Context, filter service.EscalationFilter, cursor *pagination.Cursor, limit int) (*service.EscalationPageResult, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT id, caller_id, caller_phone, question, status, answer, resolved_by, timeout_at, metadata, created_at, updated_at
	          FROM escalations WHERE 1=1`
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.Status != "" {
		query += " AND status = " + arg(filter.Status)
	}
	if filter.CallerID != "" {
		query += " AND caller_id = " + arg(filter.CallerID)
	}
	if cursor != nil {
		query += " AND (created_at, id) < (" + arg(cursor.Timestamp) + ", " + arg(cursor.LastID) + ")"
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT " + arg(limit+1)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items, err := scanEscalationRows(rows)
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
		nextCursor = pagination.EncodeCursor(lastItem.ID, lastItem.CreatedAt)
	}

	return &service.EscalationPageResult{
		Items:      items,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// MarkResolved transitions a PENDING escalation to RESOLVED. The conditional
// update is the single authoritative arbiter of the resolve-vs-timeout race:
// zero rows affected means another writer already reached a terminal state
// (or the row never existed), and the caller gets the matching domain error.
func (r *EscalationRepository) MarkResolved(ctx context.Context, id, answer, resolvedBy string, now time.Time) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE escalations
		 SET status = $1, answer = $2, resolved_by = $3, updated_at = $4
		 WHERE id = $5 AND status = $6`,
		domain.EscalationStatusResolved, answer, resolvedBy, now, id, domain.EscalationStatusPending,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return r.notPendingError(ctx, id)
	}
	return nil
}

// MarkUnresolved transitions a PENDING escalation to UNRESOLVED with
// timeout_at set. Same race semantics as MarkResolved.
func (r *EscalationRepository) MarkUnresolved(ctx context.Context, id string, now time.Time) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE escalations
		 SET status = $1, timeout_at = $2, updated_at = $2
		 WHERE id = $3 AND status = $4`,
		domain.EscalationStatusUnresolved, now, id, domain.EscalationStatusPending,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return r.notPendingError(ctx, id)
	}
	return nil
}

// SweepStale bulk-transitions PENDING escalations created before threshold
// to UNRESOLVED and returns the transitioned rows.
func (r *EscalationRepository) SweepStale(ctx context.Context, threshold, now time.Time) ([]*domain.Escalation, error) {
	rows, err := r.db.Query(ctx,
		`UPDATE escalations
		 SET status = $1, timeout_at = $2, updated_at = $2
		 WHERE status = $3 AND created_at < $4
		 RETURNING id, caller_id, caller_phone, question, status, answer, resolved_by, timeout_at, metadata, created_at, updated_at`,
		domain.EscalationStatusUnresolved, now, domain.EscalationStatusPending, threshold,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEscalationRows(rows)
}

func (r *EscalationRepository) notPendingError(ctx context.Context, id string) error {
	var exists bool
	if err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM escalations WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return domain.ErrEscalationNotFound
	}
	return domain.ErrEscalationNotPending
}

type escalationScanner interface {
	Scan(dest ...any) error
}

func scanEscalationRow(row escalationScanner) (*domain.Escalation, error) {
	var e domain.Escalation
	var callerID, callerPhone, answer, resolvedBy *string
	var metadataJSON []byte
	if err := row.Scan(&e.ID, &callerID, &callerPhone, &e.Question, &e.Status, &answer, &resolvedBy, &e.TimeoutAt, &metadataJSON, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	if callerID != nil {
		e.CallerID = *callerID
	}
	if callerPhone != nil {
		e.CallerPhone = *callerPhone
	}
	if answer != nil {
		e.Answer = *answer
	}
	if resolvedBy != nil {
		e.ResolvedBy = *resolvedBy
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &e.Metadata); err != nil {
			return nil, err
		}
	}
	if e.Metadata == nil {
		e.Metadata = map[string]any{}
	}
	return &e, nil
}

func scanEscalationRows(rows pgx.Rows) ([]*domain.Escalation, error) {
	var results []*domain.Escalation
	for rows.Next() {
		e, err := scanEscalationRow(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	return results, rows.Err()
}
