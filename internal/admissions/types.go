// Package admissions defines core types shared across the deadline pipeline.
package admissions

import "time"

// RoundType identifies an admissions deadline category.
type RoundType string

// Round values persisted with deadline records.
const (
	RoundED      RoundType = "ED"
	RoundED2     RoundType = "ED2"
	RoundEA      RoundType = "EA"
	RoundREA     RoundType = "REA"
	RoundRD      RoundType = "RD"
	RoundRolling RoundType = "ROLLING"
)

// RoundsByPrecedence lists all rounds in display/default-selection order.
var RoundsByPrecedence = []RoundType{RoundED, RoundED2, RoundREA, RoundEA, RoundRD, RoundRolling}

// Precedence returns the display sort rank of the round; unknown rounds sort last.
func (r RoundType) Precedence() int {
	for i, round := range RoundsByPrecedence {
		if round == r {
			return i
		}
	}
	return len(RoundsByPrecedence)
}

// Valid reports whether r is one of the known round values.
func (r RoundType) Valid() bool {
	return r.Precedence() < len(RoundsByPrecedence)
}

// Source records the provenance of a deadline value.
type Source string

// Provenance values.
const (
	SourceCrawler Source = "CRAWLER"
	SourceAdmin   Source = "ADMIN"
)

// College is one row of the reference college list.
type College struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	ShortName     string `json:"short_name"`
	AdmissionsURL string `json:"admissions_url"`
	USNewsRank    *int   `json:"usnews_rank,omitempty"`
}

// DeadlineRecord is the unit the pipeline produces and reconciles.
// At most one record exists per (college, round, cycle).
type DeadlineRecord struct {
	CollegeID      int64      `json:"college_id"`
	Round          RoundType  `json:"round_type"`
	Cycle          Cycle      `json:"cycle"`
	DeadlineDate   *string    `json:"deadline_date,omitempty"`
	DecisionDate   *string    `json:"decision_date,omitempty"`
	Source         Source     `json:"source"`
	AdminConfirmed bool       `json:"admin_confirmed"`
	LastCrawledAt  *time.Time `json:"last_crawled_at,omitempty"`
}

// ParsedDeadlineCandidate is emitted by the extractors before name matching.
// It is never persisted.
type ParsedDeadlineCandidate struct {
	RawName string
	Round   RoundType
	Date    string
}

// RoundDates holds the dates extracted for one round from an admissions page.
type RoundDates struct {
	DeadlineDate string
	DecisionDate string
}

// UpsertOutcome describes the effect of a reconciliation attempt.
type UpsertOutcome string

// Reconciliation effects.
const (
	OutcomeInserted UpsertOutcome = "inserted"
	OutcomeUpdated  UpsertOutcome = "updated"
	OutcomeSkipped  UpsertOutcome = "skipped"
	// OutcomeLocked means an admin-confirmed record blocked the write; only
	// the crawl timestamp was refreshed.
	OutcomeLocked UpsertOutcome = "locked"
)

// RunKind identifies the mode of an ingestion run.
type RunKind string

// Run kinds.
const (
	RunKindCrawl        RunKind = "crawl"
	RunKindCrawlMissing RunKind = "crawl_missing"
	RunKindPDFImport    RunKind = "pdf_import"
)

// RunStatus is the lifecycle state of a CrawlRun.
type RunStatus string

// Run status values persisted in the run store.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// RunCounters tracks per-run item accounting. Succeeded+Failed == Attempted at
// every persisted checkpoint.
type RunCounters struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// RunDetails carries structured run diagnostics.
type RunDetails struct {
	Errors      []string               `json:"errors,omitempty"`
	RoundsFound map[string][]RoundType `json:"rounds_found,omitempty"`
	Summary     string                 `json:"summary,omitempty"`
}

// CrawlRun is one ingestion pass.
type CrawlRun struct {
	ID         string      `json:"id"`
	Kind       RunKind     `json:"kind"`
	Status     RunStatus   `json:"status"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
	Counters   RunCounters `json:"counters"`
	Details    RunDetails  `json:"details"`
}
