// Package reconcile merges extracted deadline candidates into persisted state.
//
// Every write to a deadline record's date fields goes through this engine —
// both the HTML-crawl path and the PDF-import path. The one hard invariant:
// once an administrator has confirmed a record, ingestion never overwrites
// its deadline or decision dates again.
package reconcile

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/admitkit/deadline-crawler/internal/admissions"
)

// Engine applies the conflict policy for one candidate at a time.
type Engine struct {
	deadlines admissions.DeadlineStore
	clock     admissions.Clock
	logger    *zap.Logger
}

// New builds an Engine.
func New(deadlines admissions.DeadlineStore, clock admissions.Clock, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{deadlines: deadlines, clock: clock, logger: logger}
}

// Reconcile upserts one candidate for a matched college. The read here is
// advisory; the store's Upsert re-applies the admin-confirmed and
// unchanged-date guards atomically, so a concurrent confirmation between read
// and write still cannot be overwritten.
func (e *Engine) Reconcile(
	ctx context.Context,
	cand admissions.ParsedDeadlineCandidate,
	collegeID int64,
	cycle admissions.Cycle,
) (admissions.UpsertOutcome, error) {
	now := e.clock.Now()

	existing, err := e.deadlines.Get(ctx, collegeID, cand.Round, cycle)
	switch {
	case err == nil:
		if existing.AdminConfirmed {
			// Admin lock: refresh the crawl timestamp, leave dates alone.
			if touchErr := e.deadlines.TouchLastCrawled(ctx, collegeID, cand.Round, cycle, now); touchErr != nil {
				return "", fmt.Errorf("touch last crawled: %w", touchErr)
			}
			e.logger.Debug("deadline locked by admin confirmation",
				zap.Int64("college_id", collegeID),
				zap.String("round", string(cand.Round)),
				zap.String("cycle", string(cycle)),
			)
			return admissions.OutcomeLocked, nil
		}
		if existing.DeadlineDate != nil && *existing.DeadlineDate == cand.Date {
			if touchErr := e.deadlines.TouchLastCrawled(ctx, collegeID, cand.Round, cycle, now); touchErr != nil {
				return "", fmt.Errorf("touch last crawled: %w", touchErr)
			}
			return admissions.OutcomeSkipped, nil
		}
	case !errors.Is(err, admissions.ErrNotFound):
		return "", fmt.Errorf("get deadline: %w", err)
	}

	date := cand.Date
	outcome, err := e.deadlines.Upsert(ctx, admissions.DeadlineRecord{
		CollegeID:      collegeID,
		Round:          cand.Round,
		Cycle:          cycle,
		DeadlineDate:   &date,
		Source:         admissions.SourceCrawler,
		AdminConfirmed: false,
		LastCrawledAt:  &now,
	})
	if err != nil {
		return "", fmt.Errorf("upsert deadline: %w", err)
	}

	e.logger.Debug("deadline reconciled",
		zap.Int64("college_id", collegeID),
		zap.String("round", string(cand.Round)),
		zap.String("date", cand.Date),
		zap.String("outcome", string(outcome)),
	)
	return outcome, nil
}
