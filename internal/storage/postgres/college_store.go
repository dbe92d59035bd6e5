package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/admitkit/deadline-crawler/internal/admissions"
)

// CollegeStore reads the reference college list from Postgres.
type CollegeStore struct {
	db DB
}

// NewCollegeStore constructs a CollegeStore on an existing pool.
func NewCollegeStore(db DB) (*CollegeStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	return &CollegeStore{db: db}, nil
}

const collegeColumns = `id, name, short_name, admissions_url, usnews_rank`

// ListColleges returns every college ordered by rank, then name.
func (s *CollegeStore) ListColleges(ctx context.Context) ([]admissions.College, error) {
	query := `
SELECT ` + collegeColumns + `
FROM colleges
ORDER BY usnews_rank NULLS LAST, name`
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list colleges: %w", err)
	}
	defer rows.Close()
	return scanColleges(rows)
}

// ListCollegesMissingDeadlines returns colleges with no deadline record at
// all for the given cycle.
func (s *CollegeStore) ListCollegesMissingDeadlines(ctx context.Context, cycle admissions.Cycle) ([]admissions.College, error) {
	query := `
SELECT ` + collegeColumns + `
FROM colleges c
WHERE NOT EXISTS (
	SELECT 1 FROM deadlines d
	WHERE d.college_id = c.id AND d.cycle = $1
)
ORDER BY usnews_rank NULLS LAST, name`
	rows, err := s.db.Query(ctx, query, string(cycle))
	if err != nil {
		return nil, fmt.Errorf("list colleges missing deadlines: %w", err)
	}
	defer rows.Close()
	return scanColleges(rows)
}

func scanColleges(rows pgx.Rows) ([]admissions.College, error) {
	var out []admissions.College
	for rows.Next() {
		var c admissions.College
		if err := rows.Scan(&c.ID, &c.Name, &c.ShortName, &c.AdmissionsURL, &c.USNewsRank); err != nil {
			return nil, fmt.Errorf("scan college: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate colleges: %w", err)
	}
	return out, nil
}
