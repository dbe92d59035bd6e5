package postgres

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int { return &n }

func TestListCollegesScansRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewCollegeStore(mock)
	require.NoError(t, err)

	rows := pgxmock.NewRows([]string{"id", "name", "short_name", "admissions_url", "usnews_rank"}).
		AddRow(int64(1), "Amherst College", "Amherst", "https://amherst.edu/apply", intPtr(18)).
		AddRow(int64(2), "Bates College", "", "https://bates.edu/apply", (*int)(nil))

	mock.ExpectQuery("SELECT id, name, short_name").
		WillReturnRows(rows)

	got, err := store.ListColleges(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "Amherst College", got[0].Name)
	require.Equal(t, 18, *got[0].USNewsRank)
	require.Nil(t, got[1].USNewsRank)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListCollegesMissingDeadlinesFiltersByCycle(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewCollegeStore(mock)
	require.NoError(t, err)

	rows := pgxmock.NewRows([]string{"id", "name", "short_name", "admissions_url", "usnews_rank"}).
		AddRow(int64(2), "Bates College", "", "https://bates.edu/apply", (*int)(nil))

	mock.ExpectQuery("WHERE NOT EXISTS").
		WithArgs("2025-2026").
		WillReturnRows(rows)

	got, err := store.ListCollegesMissingDeadlines(context.Background(), "2025-2026")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, int64(2), got[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
