package billing

import (
	"context"
	"database/sql"
	"time"

	"dialer-platform/pkg/utils"
)

// PostgresRepo persists the usage ledger. INSERT-only; the unique call_id
// constraint carries the idempotency guarantee.

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const Schema = `
CREATE TABLE IF NOT EXISTS usage_ledger (
    id         TEXT PRIMARY KEY,
    plan       TEXT NOT NULL,
    record_id  TEXT NOT NULL,
    call_id    TEXT NOT NULL UNIQUE,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_usage_ledger_created ON usage_ledger (created_at);
`

func (r *PostgresRepo) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, Schema)
	return err
}

func (r *PostgresRepo) Append(ctx context.Context, e UsageEntry) (bool, error) {
	if e.CallID == "" {
		return false, ErrInvalidUsage
	}

	inserted := false
	err := utils.WithTx(ctx, r.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO usage_ledger (id, plan, record_id, call_id, created_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (call_id) DO NOTHING`,
			e.ID, string(e.Plan), e.RecordID, e.CallID, e.CreatedAt,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		inserted = n == 1
		return nil
	})
	return inserted, err
}

func (r *PostgresRepo) CountSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM usage_ledger WHERE created_at >= $1`, since).Scan(&n)
	return n, err
}
