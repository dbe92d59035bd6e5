package admissions

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across stores and the orchestrator.
var (
	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrRunInProgress is returned when a run is requested while another run
	// is still RUNNING. Callers should treat it as a rejection, not queue.
	ErrRunInProgress = errors.New("a crawl run is already in progress")
)

// FetchError reports a failed page or document fetch (non-2xx status, timeout,
// exhausted redirects). It is a per-item failure, never fatal to a run.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// PdfExtractionError reports that no text extraction strategy succeeded on the
// requirements grid PDF. It is fatal to the PDF-import operation only.
type PdfExtractionError struct {
	Err error
}

func (e *PdfExtractionError) Error() string {
	return fmt.Sprintf("pdf text extraction failed: %v", e.Err)
}

func (e *PdfExtractionError) Unwrap() error { return e.Err }
