package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/admitkit/deadline-crawler/internal/admissions"
)

const defaultRunListLimit = 50

// RunStore persists CrawlRun lifecycle state in Postgres.
type RunStore struct {
	db DB
}

// NewRunStore constructs a RunStore on an existing pool.
func NewRunStore(db DB) (*RunStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	return &RunStore{db: db}, nil
}

// CreateRun inserts a new RUNNING row.
func (s *RunStore) CreateRun(ctx context.Context, run admissions.CrawlRun) error {
	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	details, err := json.Marshal(run.Details)
	if err != nil {
		return fmt.Errorf("marshal run details: %w", err)
	}
	query := `
INSERT INTO crawl_runs (id, kind, status, started_at, attempted, succeeded, failed, details)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err = s.db.Exec(ctx, query,
		run.ID,
		string(run.Kind),
		string(run.Status),
		run.StartedAt,
		run.Counters.Attempted,
		run.Counters.Succeeded,
		run.Counters.Failed,
		details,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// UpdateRunProgress persists a checkpoint for a run that is still RUNNING.
func (s *RunStore) UpdateRunProgress(
	ctx context.Context,
	runID string,
	counters admissions.RunCounters,
	details admissions.RunDetails,
) error {
	payload, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshal run details: %w", err)
	}
	query := `
UPDATE crawl_runs
SET attempted = $2, succeeded = $3, failed = $4, details = $5
WHERE id = $1 AND status = $6`
	tag, err := s.db.Exec(ctx, query,
		runID, counters.Attempted, counters.Succeeded, counters.Failed, payload,
		string(admissions.RunStatusRunning),
	)
	if err != nil {
		return fmt.Errorf("update run progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return admissions.ErrNotFound
	}
	return nil
}

// FinalizeRun writes the terminal status, end time, and final counters.
func (s *RunStore) FinalizeRun(
	ctx context.Context,
	runID string,
	status admissions.RunStatus,
	finishedAt time.Time,
	counters admissions.RunCounters,
	details admissions.RunDetails,
) error {
	payload, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshal run details: %w", err)
	}
	query := `
UPDATE crawl_runs
SET status = $2, finished_at = $3, attempted = $4, succeeded = $5, failed = $6, details = $7
WHERE id = $1`
	tag, err := s.db.Exec(ctx, query,
		runID, string(status), finishedAt,
		counters.Attempted, counters.Succeeded, counters.Failed, payload,
	)
	if err != nil {
		return fmt.Errorf("finalize run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return admissions.ErrNotFound
	}
	return nil
}

const runColumns = `id, kind, status, started_at, finished_at, attempted, succeeded, failed, details`

// GetRun returns one run by ID.
func (s *RunStore) GetRun(ctx context.Context, runID string) (admissions.CrawlRun, error) {
	query := `SELECT ` + runColumns + ` FROM crawl_runs WHERE id = $1`
	run, err := scanRun(s.db.QueryRow(ctx, query, runID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return admissions.CrawlRun{}, admissions.ErrNotFound
		}
		return admissions.CrawlRun{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *RunStore) ListRuns(ctx context.Context, limit int) ([]admissions.CrawlRun, error) {
	if limit <= 0 {
		limit = defaultRunListLimit
	}
	query := `SELECT ` + runColumns + ` FROM crawl_runs ORDER BY started_at DESC LIMIT $1`
	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []admissions.CrawlRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

// FinalizeStaleRuns force-fails runs with no end time whose start predates
// cutoff, appending note to their error list.
func (s *RunStore) FinalizeStaleRuns(ctx context.Context, cutoff time.Time, note string) (int, error) {
	query := `
UPDATE crawl_runs
SET status = $3,
	finished_at = NOW(),
	details = jsonb_set(
		COALESCE(details, '{}'::jsonb),
		'{errors}',
		COALESCE(details->'errors', '[]'::jsonb) || to_jsonb($2::text)
	)
WHERE status = $4 AND finished_at IS NULL AND started_at < $1`
	tag, err := s.db.Exec(ctx, query,
		cutoff, note,
		string(admissions.RunStatusFailed),
		string(admissions.RunStatusRunning),
	)
	if err != nil {
		return 0, fmt.Errorf("finalize stale runs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanRun(row pgx.Row) (admissions.CrawlRun, error) {
	var (
		run     admissions.CrawlRun
		details []byte
	)
	err := row.Scan(
		&run.ID,
		&run.Kind,
		&run.Status,
		&run.StartedAt,
		&run.FinishedAt,
		&run.Counters.Attempted,
		&run.Counters.Succeeded,
		&run.Counters.Failed,
		&details,
	)
	if err != nil {
		return admissions.CrawlRun{}, err
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &run.Details); err != nil {
			return admissions.CrawlRun{}, fmt.Errorf("unmarshal run details: %w", err)
		}
	}
	return run, nil
}
