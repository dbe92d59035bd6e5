package admissions

import (
	"context"
	"net/http"
	"time"
)

// CollegeStore reads the reference college list.
type CollegeStore interface {
	ListColleges(ctx context.Context) ([]College, error)
	// ListCollegesMissingDeadlines returns colleges with no deadline record at
	// all for the given cycle.
	ListCollegesMissingDeadlines(ctx context.Context, cycle Cycle) ([]College, error)
}

// DeadlineStore persists deadline records keyed by (college, round, cycle).
type DeadlineStore interface {
	Get(ctx context.Context, collegeID int64, round RoundType, cycle Cycle) (DeadlineRecord, error)
	// Upsert inserts the record or conditionally updates the existing one as a
	// single atomic operation. Implementations must never overwrite the
	// deadline/decision dates of an admin-confirmed record and must skip
	// no-op writes when the stored deadline already equals the new one.
	Upsert(ctx context.Context, rec DeadlineRecord) (UpsertOutcome, error)
	// TouchLastCrawled refreshes only the last-crawled timestamp.
	TouchLastCrawled(ctx context.Context, collegeID int64, round RoundType, cycle Cycle, at time.Time) error
	ListForCycle(ctx context.Context, cycle Cycle) ([]DeadlineRecord, error)
}

// RunStore persists CrawlRun lifecycle state.
type RunStore interface {
	CreateRun(ctx context.Context, run CrawlRun) error
	// UpdateRunProgress persists counters and details for a run that is still
	// RUNNING; called after every completed batch.
	UpdateRunProgress(ctx context.Context, runID string, counters RunCounters, details RunDetails) error
	FinalizeRun(ctx context.Context, runID string, status RunStatus, finishedAt time.Time, counters RunCounters, details RunDetails) error
	GetRun(ctx context.Context, runID string) (CrawlRun, error)
	ListRuns(ctx context.Context, limit int) ([]CrawlRun, error)
	// FinalizeStaleRuns force-finalizes runs that started before cutoff and
	// never recorded an end time, annotating them with note. Returns the
	// number of runs finalized.
	FinalizeStaleRuns(ctx context.Context, cutoff time.Time, note string) (int, error)
}

// SettingsStore reads and writes the singleton pipeline settings record.
type SettingsStore interface {
	ActiveCycle(ctx context.Context) (Cycle, error)
	SetActiveCycle(ctx context.Context, cycle Cycle) error
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
