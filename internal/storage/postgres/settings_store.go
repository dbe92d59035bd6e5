package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/admitkit/deadline-crawler/internal/admissions"
)

// SettingsStore reads and writes the singleton pipeline settings row.
type SettingsStore struct {
	db DB
}

// NewSettingsStore constructs a SettingsStore on an existing pool.
func NewSettingsStore(db DB) (*SettingsStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	return &SettingsStore{db: db}, nil
}

// ActiveCycle returns the configured ingestion cycle.
func (s *SettingsStore) ActiveCycle(ctx context.Context) (admissions.Cycle, error) {
	var cycle string
	err := s.db.QueryRow(ctx, `SELECT active_cycle FROM pipeline_settings WHERE id = 1`).Scan(&cycle)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", admissions.ErrNotFound
		}
		return "", fmt.Errorf("get active cycle: %w", err)
	}
	if cycle == "" {
		return "", admissions.ErrNotFound
	}
	return admissions.Cycle(cycle), nil
}

// SetActiveCycle writes the configured ingestion cycle.
func (s *SettingsStore) SetActiveCycle(ctx context.Context, cycle admissions.Cycle) error {
	if !cycle.Valid() {
		return fmt.Errorf("malformed cycle %q", cycle)
	}
	query := `
INSERT INTO pipeline_settings (id, active_cycle)
VALUES (1, $1)
ON CONFLICT (id) DO UPDATE SET active_cycle = EXCLUDED.active_cycle`
	if _, err := s.db.Exec(ctx, query, string(cycle)); err != nil {
		return fmt.Errorf("set active cycle: %w", err)
	}
	return nil
}
