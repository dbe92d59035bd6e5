// Package memory provides in-memory store implementations for development and
// testing.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/admitkit/deadline-crawler/internal/admissions"
)

type deadlineKey struct {
	collegeID int64
	round     admissions.RoundType
	cycle     admissions.Cycle
}

// DeadlineStore implements admissions.DeadlineStore in memory.
type DeadlineStore struct {
	mu      sync.RWMutex
	records map[deadlineKey]admissions.DeadlineRecord
}

// NewDeadlineStore constructs a DeadlineStore.
func NewDeadlineStore() *DeadlineStore {
	return &DeadlineStore{records: make(map[deadlineKey]admissions.DeadlineRecord)}
}

// Get fetches the record for one (college, round, cycle) key.
func (s *DeadlineStore) Get(
	_ context.Context,
	collegeID int64,
	round admissions.RoundType,
	cycle admissions.Cycle,
) (admissions.DeadlineRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[deadlineKey{collegeID, round, cycle}]
	if !ok {
		return admissions.DeadlineRecord{}, admissions.ErrNotFound
	}
	return rec, nil
}

// Upsert applies the conditional insert-or-update under one lock, mirroring
// the uniqueness-constraint upsert the Postgres store performs.
func (s *DeadlineStore) Upsert(
	_ context.Context,
	rec admissions.DeadlineRecord,
) (admissions.UpsertOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := deadlineKey{rec.CollegeID, rec.Round, rec.Cycle}
	existing, ok := s.records[key]
	if !ok {
		s.records[key] = rec
		return admissions.OutcomeInserted, nil
	}
	if existing.AdminConfirmed {
		return admissions.OutcomeSkipped, nil
	}
	if datesEqual(existing.DeadlineDate, rec.DeadlineDate) {
		return admissions.OutcomeSkipped, nil
	}
	existing.DeadlineDate = rec.DeadlineDate
	existing.Source = rec.Source
	existing.LastCrawledAt = rec.LastCrawledAt
	s.records[key] = existing
	return admissions.OutcomeUpdated, nil
}

// TouchLastCrawled refreshes only the last-crawled timestamp.
func (s *DeadlineStore) TouchLastCrawled(
	_ context.Context,
	collegeID int64,
	round admissions.RoundType,
	cycle admissions.Cycle,
	at time.Time,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := deadlineKey{collegeID, round, cycle}
	rec, ok := s.records[key]
	if !ok {
		return admissions.ErrNotFound
	}
	rec.LastCrawledAt = &at
	s.records[key] = rec
	return nil
}

// ListForCycle returns all records in a cycle.
func (s *DeadlineStore) ListForCycle(_ context.Context, cycle admissions.Cycle) ([]admissions.DeadlineRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []admissions.DeadlineRecord
	for key, rec := range s.records {
		if key.cycle == cycle {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Put stores a record unconditionally. Test seeding helper.
func (s *DeadlineStore) Put(rec admissions.DeadlineRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[deadlineKey{rec.CollegeID, rec.Round, rec.Cycle}] = rec
}

// Len reports the number of stored records.
func (s *DeadlineStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func datesEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
