package records

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PostgresStore is the durable Store implementation.
//
// The conditional updates below are plain UPDATE ... WHERE status guards;
// row-level atomicity in Postgres gives the compare-and-set semantics the
// scheduler and reconciler rely on. No transaction is held across any
// external call.

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

// Schema bootstraps the tables this store needs. Kept idempotent so the
// process can run it at startup.
const Schema = `
CREATE TABLE IF NOT EXISTS candidate_records (
    id                     TEXT PRIMARY KEY,
    first_name             TEXT NOT NULL DEFAULT '',
    last_name              TEXT NOT NULL DEFAULT '',
    phone_e164             TEXT NOT NULL,
    status                 TEXT NOT NULL DEFAULT 'PENDING',
    attempt_count          INT NOT NULL DEFAULT 0,
    last_called_at         TIMESTAMPTZ,
    next_eligible_at       TIMESTAMPTZ,
    provider_call_id       TEXT NOT NULL DEFAULT '',
    short_summary          TEXT NOT NULL DEFAULT '',
    raw_outcome            TEXT NOT NULL DEFAULT '',
    transcript             TEXT NOT NULL DEFAULT '',
    recording_url          TEXT NOT NULL DEFAULT '',
    extracted_location     TEXT NOT NULL DEFAULT '',
    extracted_availability TEXT NOT NULL DEFAULT '',
    created_at             TIMESTAMPTZ NOT NULL,
    updated_at             TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_candidate_records_call_id
    ON candidate_records (provider_call_id) WHERE provider_call_id <> '';
CREATE INDEX IF NOT EXISTS idx_candidate_records_status ON candidate_records (status);
CREATE INDEX IF NOT EXISTS idx_candidate_records_called ON candidate_records (last_called_at);

CREATE TABLE IF NOT EXISTS suppression_entries (
    phone_e164 TEXT PRIMARY KEY,
    reason     TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL
);
`

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, Schema)
	return err
}

const recordColumns = `
id, first_name, last_name, phone_e164, status, attempt_count,
last_called_at, next_eligible_at, provider_call_id,
short_summary, raw_outcome, transcript, recording_url,
extracted_location, extracted_availability, created_at, updated_at`

func scanRecord(row interface{ Scan(dest ...any) error }) (CandidateRecord, error) {
	var rec CandidateRecord
	var status string
	err := row.Scan(
		&rec.ID,
		&rec.FirstName,
		&rec.LastName,
		&rec.PhoneE164,
		&status,
		&rec.AttemptCount,
		&rec.LastCalledAt,
		&rec.NextEligibleAt,
		&rec.ProviderCallID,
		&rec.ShortSummary,
		&rec.RawOutcome,
		&rec.Transcript,
		&rec.RecordingURL,
		&rec.ExtractedLocation,
		&rec.ExtractedAvailability,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	rec.Status = Disposition(status)
	return rec, err
}

func (s *PostgresStore) Get(ctx context.Context, id string) (CandidateRecord, bool, error) {
	const q = `SELECT ` + recordColumns + ` FROM candidate_records WHERE id = $1`
	rec, err := scanRecord(s.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CandidateRecord{}, false, nil
		}
		return CandidateRecord{}, false, err
	}
	return rec, true, nil
}

func (s *PostgresStore) UpsertFromIngestion(ctx context.Context, rec CandidateRecord) (CandidateRecord, error) {
	if rec.ID == "" || rec.PhoneE164 == "" {
		return CandidateRecord{}, ErrInvalidRecord
	}
	now := rec.UpdatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	// Merge semantics: on conflict only phone and name-like fields change.
	// NULLIF keeps an existing name when the new row omits it.
	const q = `
INSERT INTO candidate_records (id, first_name, last_name, phone_e164, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, 'PENDING', $5, $5)
ON CONFLICT (id) DO UPDATE SET
    phone_e164 = EXCLUDED.phone_e164,
    first_name = COALESCE(NULLIF(EXCLUDED.first_name, ''), candidate_records.first_name),
    last_name  = COALESCE(NULLIF(EXCLUDED.last_name, ''), candidate_records.last_name),
    updated_at = EXCLUDED.updated_at
RETURNING ` + recordColumns
	return scanRecord(s.db.QueryRowContext(ctx, q, rec.ID, rec.FirstName, rec.LastName, rec.PhoneE164, now))
}

func (s *PostgresStore) FindEligibleForDispatch(ctx context.Context, now time.Time, limit int) ([]CandidateRecord, error) {
	const q = `
SELECT ` + recordColumns + `
FROM candidate_records r
WHERE r.status = 'PENDING'
  AND (r.next_eligible_at IS NULL OR r.next_eligible_at <= $1)
  AND NOT EXISTS (
      SELECT 1 FROM suppression_entries s WHERE s.phone_e164 = r.phone_e164
  )
ORDER BY COALESCE(r.next_eligible_at, r.created_at) ASC, r.id ASC
LIMIT $2`
	rows, err := s.db.QueryContext(ctx, q, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CandidateRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkDispatched(ctx context.Context, id, providerCallID string, now time.Time) (bool, error) {
	const q = `
UPDATE candidate_records
SET status = 'IN_PROGRESS',
    provider_call_id = $2,
    attempt_count = attempt_count + 1,
    last_called_at = $3,
    next_eligible_at = NULL,
    updated_at = $3
WHERE id = $1 AND status = 'PENDING'`
	res, err := s.db.ExecContext(ctx, q, id, providerCallID, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (s *PostgresStore) MarkPlacementFailed(ctx context.Context, id string, res CompletionResult, now time.Time) (bool, error) {
	const q = `
UPDATE candidate_records
SET status = $2,
    attempt_count = attempt_count + 1,
    last_called_at = $3,
    next_eligible_at = $4,
    short_summary = $5,
    raw_outcome = $6,
    updated_at = $3
WHERE id = $1 AND status = 'PENDING'`
	r, err := s.db.ExecContext(ctx, q, id, string(res.Status), now, res.NextEligibleAt, res.ShortSummary, res.RawOutcome)
	if err != nil {
		return false, err
	}
	n, err := r.RowsAffected()
	return n == 1, err
}

func (s *PostgresStore) FindByProviderCallID(ctx context.Context, callID string) (CandidateRecord, bool, error) {
	if callID == "" {
		return CandidateRecord{}, false, nil
	}
	const q = `SELECT ` + recordColumns + ` FROM candidate_records WHERE provider_call_id = $1`
	rec, err := scanRecord(s.db.QueryRowContext(ctx, q, callID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CandidateRecord{}, false, nil
		}
		return CandidateRecord{}, false, err
	}
	return rec, true, nil
}

func (s *PostgresStore) ApplyCompletion(ctx context.Context, id, callID string, res CompletionResult, now time.Time) (bool, error) {
	// Guarded on both status and call id: a duplicate delivery, or a report
	// for a superseded attempt, matches zero rows and is a no-op.
	const q = `
UPDATE candidate_records
SET status = $3,
    next_eligible_at = $4,
    short_summary = $5,
    raw_outcome = $6,
    transcript = $7,
    recording_url = $8,
    extracted_location = $9,
    extracted_availability = $10,
    updated_at = $11
WHERE id = $1 AND provider_call_id = $2 AND status = 'IN_PROGRESS'`
	r, err := s.db.ExecContext(ctx, q,
		id,
		callID,
		string(res.Status),
		res.NextEligibleAt,
		res.ShortSummary,
		res.RawOutcome,
		res.Transcript,
		res.RecordingURL,
		res.ExtractedLocation,
		res.ExtractedAvailability,
		now,
	)
	if err != nil {
		return false, err
	}
	n, err := r.RowsAffected()
	return n == 1, err
}

func (s *PostgresStore) CountInProgress(ctx context.Context) (int, error) {
	const q = `SELECT COUNT(*) FROM candidate_records WHERE status = 'IN_PROGRESS'`
	var n int
	err := s.db.QueryRowContext(ctx, q).Scan(&n)
	return n, err
}

func (s *PostgresStore) CountDispatchedSince(ctx context.Context, since time.Time) (int, error) {
	const q = `SELECT COUNT(*) FROM candidate_records WHERE last_called_at >= $1`
	var n int
	err := s.db.QueryRowContext(ctx, q, since).Scan(&n)
	return n, err
}

func (s *PostgresStore) CountsByStatus(ctx context.Context) (map[Disposition]int, error) {
	const q = `SELECT status, COUNT(*) FROM candidate_records GROUP BY status`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[Disposition]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[Disposition(status)] = n
	}
	return out, rows.Err()
}

func (s *PostgresStore) NextEligibleAfter(ctx context.Context, now time.Time) (*time.Time, error) {
	const q = `
SELECT MIN(next_eligible_at)
FROM candidate_records
WHERE status = 'PENDING' AND next_eligible_at > $1`
	var next sql.NullTime
	if err := s.db.QueryRowContext(ctx, q, now).Scan(&next); err != nil {
		return nil, err
	}
	if !next.Valid {
		return nil, nil
	}
	t := next.Time
	return &t, nil
}

func (s *PostgresStore) ListAll(ctx context.Context) ([]CandidateRecord, error) {
	const q = `SELECT ` + recordColumns + ` FROM candidate_records ORDER BY created_at ASC, id ASC`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CandidateRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) AddSuppression(ctx context.Context, entry SuppressionEntry) error {
	if entry.PhoneE164 == "" {
		return ErrInvalidRecord
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const q = `
INSERT INTO suppression_entries (phone_e164, reason, created_at)
VALUES ($1, $2, $3)
ON CONFLICT (phone_e164) DO NOTHING`
	_, err := s.db.ExecContext(ctx, q, entry.PhoneE164, entry.Reason, entry.CreatedAt)
	return err
}

func (s *PostgresStore) IsSuppressed(ctx context.Context, phoneE164 string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM suppression_entries WHERE phone_e164 = $1)`
	var ok bool
	err := s.db.QueryRowContext(ctx, q, phoneE164).Scan(&ok)
	return ok, err
}
