package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/admitkit/deadline-crawler/internal/admissions"
)

func TestCreateRunInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRunStore(mock)
	require.NoError(t, err)

	started := time.Unix(1700000000, 0).UTC()
	run := admissions.CrawlRun{
		ID:        "run-1",
		Kind:      admissions.RunKindCrawl,
		Status:    admissions.RunStatusRunning,
		StartedAt: started,
	}

	mock.ExpectExec("INSERT INTO crawl_runs").
		WithArgs("run-1", "crawl", "running", started, 0, 0, 0, []byte(`{}`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.CreateRun(context.Background(), run))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRunProgressRequiresRunningStatus(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRunStore(mock)
	require.NoError(t, err)

	mock.ExpectExec("UPDATE crawl_runs").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = store.UpdateRunProgress(context.Background(), "run-done",
		admissions.RunCounters{Attempted: 10, Succeeded: 9, Failed: 1},
		admissions.RunDetails{},
	)
	require.ErrorIs(t, err, admissions.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRunRoundTripsDetails(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRunStore(mock)
	require.NoError(t, err)

	started := time.Unix(1700000000, 0).UTC()
	finished := started.Add(4 * time.Minute)
	details := []byte(`{"errors":["Colby College: fetch deadline page: status 503"],"summary":"3 attempted, 2 succeeded, 1 failed"}`)

	rows := pgxmock.NewRows([]string{
		"id", "kind", "status", "started_at", "finished_at",
		"attempted", "succeeded", "failed", "details",
	}).AddRow("run-1", "crawl", "completed", started, &finished, 3, 2, 1, details)

	mock.ExpectQuery("SELECT id, kind, status").
		WithArgs("run-1").
		WillReturnRows(rows)

	run, err := store.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	require.Equal(t, admissions.RunKindCrawl, run.Kind)
	require.Equal(t, admissions.RunStatusCompleted, run.Status)
	require.Equal(t, admissions.RunCounters{Attempted: 3, Succeeded: 2, Failed: 1}, run.Counters)
	require.Len(t, run.Details.Errors, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRunNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRunStore(mock)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT id, kind, status").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err = store.GetRun(context.Background(), "missing")
	require.ErrorIs(t, err, admissions.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFinalizeStaleRunsReturnsCount(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRunStore(mock)
	require.NoError(t, err)

	cutoff := time.Unix(1700000000, 0).UTC()
	mock.ExpectExec("UPDATE crawl_runs").
		WithArgs(cutoff, "force-finalized: no end time recorded after 30m0s", "failed", "running").
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	n, err := store.FinalizeStaleRuns(context.Background(), cutoff, "force-finalized: no end time recorded after 30m0s")
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.NoError(t, mock.ExpectationsWereMet())
}
