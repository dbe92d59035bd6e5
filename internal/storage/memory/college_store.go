package memory

import (
	"context"
	"sync"

	"github.com/admitkit/deadline-crawler/internal/admissions"
)

// CollegeStore implements admissions.CollegeStore over a fixed slice.
type CollegeStore struct {
	mu        sync.RWMutex
	colleges  []admissions.College
	deadlines *DeadlineStore
}

// NewCollegeStore constructs a CollegeStore. The deadline store is consulted
// for the missing-only listing; it may be nil if that mode is unused.
func NewCollegeStore(colleges []admissions.College, deadlines *DeadlineStore) *CollegeStore {
	return &CollegeStore{colleges: colleges, deadlines: deadlines}
}

// ListColleges returns the full reference list.
func (s *CollegeStore) ListColleges(_ context.Context) ([]admissions.College, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]admissions.College, len(s.colleges))
	copy(out, s.colleges)
	return out, nil
}

// ListCollegesMissingDeadlines returns colleges with no deadline record at all
// for the cycle.
func (s *CollegeStore) ListCollegesMissingDeadlines(
	ctx context.Context,
	cycle admissions.Cycle,
) ([]admissions.College, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	have := make(map[int64]struct{})
	if s.deadlines != nil {
		records, err := s.deadlines.ListForCycle(ctx, cycle)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			have[rec.CollegeID] = struct{}{}
		}
	}

	var out []admissions.College
	for _, c := range s.colleges {
		if _, ok := have[c.ID]; !ok {
			out = append(out, c)
		}
	}
	return out, nil
}
