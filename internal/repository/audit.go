package repository

import (
	"context"
	"encoding/json"

	"github.com/frontlinehq/frontline/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditRepository stores append-only operational history. Rows are written
// on lifecycle transitions and delivery failures; nothing reads them back
// for control flow.
type AuditRepository struct {
	db dbtx
}

func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{db: pool}
}

func NewAuditRepositoryWithTx(tx pgx.Tx) *AuditRepository {
	return &AuditRepository{db: tx}
}

func (r *AuditRepository) Append(ctx context.Context, entry *domain.AuditEntry) error {
	metadataJSON, err := json.Marshal(entry.Metadata)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx,
		`INSERT INTO audit_logs (id, level, event, message, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.Level, entry.Event, entry.Message, metadataJSON, entry.CreatedAt,
	)
	return err
}
