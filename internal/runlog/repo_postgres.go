package runlog

import (
	"context"
	"database/sql"
)

// PostgresRepo persists run events. INSERT-only; nothing here updates or
// deletes a row.

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const Schema = `
CREATE TABLE IF NOT EXISTS run_events (
    id          TEXT PRIMARY KEY,
    type        TEXT NOT NULL,
    run_id      TEXT NOT NULL DEFAULT '',
    record_id   TEXT NOT NULL DEFAULT '',
    call_id     TEXT NOT NULL DEFAULT '',
    disposition TEXT NOT NULL DEFAULT '',
    message     TEXT NOT NULL DEFAULT '',
    metadata    TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_run_events_run ON run_events (run_id);
CREATE INDEX IF NOT EXISTS idx_run_events_created ON run_events (created_at);
`

func (r *PostgresRepo) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, Schema)
	return err
}

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO run_events (id, type, run_id, record_id, call_id, disposition, message, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, string(e.Type), e.RunID, e.RecordID, e.CallID, e.Disposition, e.Message, e.Metadata, e.CreatedAt,
	)
	return err
}

func (r *PostgresRepo) ListByRun(ctx context.Context, runID string) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, type, run_id, record_id, call_id, disposition, message, metadata, created_at
		FROM run_events
		WHERE run_id = $1
		ORDER BY created_at, id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var typ string
		if err := rows.Scan(&e.ID, &typ, &e.RunID, &e.RecordID, &e.CallID, &e.Disposition, &e.Message, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Type = EventType(typ)
		out = append(out, e)
	}
	return out, rows.Err()
}
