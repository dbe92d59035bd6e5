package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/admitkit/deadline-crawler/internal/admissions"
)

// DeadlineStore persists deadline records in Postgres.
type DeadlineStore struct {
	db DB
}

// NewDeadlineStore constructs a DeadlineStore on an existing pool.
func NewDeadlineStore(db DB) (*DeadlineStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	return &DeadlineStore{db: db}, nil
}

// Get returns the record for one (college, round, cycle) key.
func (s *DeadlineStore) Get(
	ctx context.Context,
	collegeID int64,
	round admissions.RoundType,
	cycle admissions.Cycle,
) (admissions.DeadlineRecord, error) {
	query := `
SELECT college_id, round_type, cycle, deadline_date, decision_date, source, admin_confirmed, last_crawled_at
FROM deadlines
WHERE college_id = $1 AND round_type = $2 AND cycle = $3`
	var rec admissions.DeadlineRecord
	err := s.db.QueryRow(ctx, query, collegeID, string(round), string(cycle)).Scan(
		&rec.CollegeID,
		&rec.Round,
		&rec.Cycle,
		&rec.DeadlineDate,
		&rec.DecisionDate,
		&rec.Source,
		&rec.AdminConfirmed,
		&rec.LastCrawledAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return admissions.DeadlineRecord{}, admissions.ErrNotFound
		}
		return admissions.DeadlineRecord{}, fmt.Errorf("get deadline: %w", err)
	}
	return rec, nil
}

// Upsert inserts the record or conditionally updates the existing row in a
// single statement. The WHERE clause on the conflict arm enforces the
// admin-confirmed lock and drops no-op writes; xmax distinguishes a fresh
// insert from an update of an existing row. The conflict arm updates only
// the deadline date, source, and crawl timestamp; a decision date already on
// the row survives crawler rewrites.
func (s *DeadlineStore) Upsert(ctx context.Context, rec admissions.DeadlineRecord) (admissions.UpsertOutcome, error) {
	query := `
INSERT INTO deadlines (
	college_id, round_type, cycle, deadline_date, decision_date, source, admin_confirmed, last_crawled_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8
)
ON CONFLICT (college_id, round_type, cycle) DO UPDATE SET
	deadline_date = EXCLUDED.deadline_date,
	source = EXCLUDED.source,
	last_crawled_at = EXCLUDED.last_crawled_at
WHERE NOT deadlines.admin_confirmed
	AND deadlines.deadline_date IS DISTINCT FROM EXCLUDED.deadline_date
RETURNING (xmax = 0) AS inserted`

	var inserted bool
	err := s.db.QueryRow(ctx, query,
		rec.CollegeID,
		string(rec.Round),
		string(rec.Cycle),
		rec.DeadlineDate,
		rec.DecisionDate,
		string(rec.Source),
		rec.AdminConfirmed,
		rec.LastCrawledAt,
	).Scan(&inserted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Conflict arm rejected the write: admin lock or unchanged date.
			return admissions.OutcomeSkipped, nil
		}
		return "", fmt.Errorf("upsert deadline: %w", err)
	}
	if inserted {
		return admissions.OutcomeInserted, nil
	}
	return admissions.OutcomeUpdated, nil
}

// TouchLastCrawled refreshes only the last-crawled timestamp.
func (s *DeadlineStore) TouchLastCrawled(
	ctx context.Context,
	collegeID int64,
	round admissions.RoundType,
	cycle admissions.Cycle,
	at time.Time,
) error {
	query := `
UPDATE deadlines
SET last_crawled_at = $4
WHERE college_id = $1 AND round_type = $2 AND cycle = $3`
	tag, err := s.db.Exec(ctx, query, collegeID, string(round), string(cycle), at)
	if err != nil {
		return fmt.Errorf("touch last crawled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return admissions.ErrNotFound
	}
	return nil
}

// ListForCycle returns every record for the cycle.
func (s *DeadlineStore) ListForCycle(ctx context.Context, cycle admissions.Cycle) ([]admissions.DeadlineRecord, error) {
	query := `
SELECT college_id, round_type, cycle, deadline_date, decision_date, source, admin_confirmed, last_crawled_at
FROM deadlines
WHERE cycle = $1
ORDER BY college_id, round_type`
	rows, err := s.db.Query(ctx, query, string(cycle))
	if err != nil {
		return nil, fmt.Errorf("list deadlines: %w", err)
	}
	defer rows.Close()

	var out []admissions.DeadlineRecord
	for rows.Next() {
		var rec admissions.DeadlineRecord
		if err := rows.Scan(
			&rec.CollegeID,
			&rec.Round,
			&rec.Cycle,
			&rec.DeadlineDate,
			&rec.DecisionDate,
			&rec.Source,
			&rec.AdminConfirmed,
			&rec.LastCrawledAt,
		); err != nil {
			return nil, fmt.Errorf("scan deadline: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deadlines: %w", err)
	}
	return out, nil
}
