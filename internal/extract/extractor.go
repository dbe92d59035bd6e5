// Package extract scans admissions pages for round deadlines.
//
// The heuristics are deliberately narrow: a fixed keyword table per round and
// a character window around the first hit, fed to the date parser. Partial
// results are the normal case, not an error.
package extract

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/admitkit/deadline-crawler/internal/admissions"
	"github.com/admitkit/deadline-crawler/internal/archive"
	"github.com/admitkit/deadline-crawler/internal/dateparse"
	"github.com/admitkit/deadline-crawler/internal/hash/sha256"
)

const (
	windowBefore = 100
	windowAfter  = 200
)

// roundKeywords maps each round to its search phrases, most specific first.
// Once a phrase yields a parseable date the remaining phrases for that round
// are not tried.
var roundKeywords = map[admissions.RoundType][]string{
	admissions.RoundED: {
		"early decision i deadline", "early decision deadline",
		"early decision i", "early decision", "ed deadline", "ed i ", "ed1",
	},
	admissions.RoundED2: {
		"early decision ii deadline", "early decision ii",
		"early decision 2", "ed ii", "ed2",
	},
	admissions.RoundREA: {
		"restrictive early action", "single-choice early action",
		"single choice early action",
	},
	admissions.RoundEA: {
		"early action deadline", "early action", "ea deadline",
	},
	admissions.RoundRD: {
		"regular decision deadline", "regular decision",
		"regular deadline", "rd deadline",
	},
	admissions.RoundRolling: {
		"rolling admission", "rolling basis", "rolling",
	},
}

// Extractor fetches an admissions page and pulls per-round deadline dates out
// of its text.
type Extractor struct {
	fetcher admissions.Fetcher
	archive archive.Store // nil disables snapshot archival
	hasher  *sha256.Hasher
	logger  *zap.Logger
}

// New builds an Extractor. Passing a nil archive store disables page
// snapshot archival.
func New(fetcher admissions.Fetcher, snapshots archive.Store, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{fetcher: fetcher, archive: snapshots, hasher: sha256.New(), logger: logger}
}

// Extract fetches url and returns the rounds it could find dates for. Rounds
// with no keyword hit or no parseable nearby date are simply absent. Fetch
// failures surface as *admissions.FetchError.
func (e *Extractor) Extract(
	ctx context.Context,
	url string,
	cycle admissions.Cycle,
	collegeLabel string,
) (map[admissions.RoundType]admissions.RoundDates, error) {
	resp, err := e.fetcher.Fetch(ctx, admissions.FetchRequest{URL: url})
	if err != nil {
		return nil, err
	}
	e.logger.Debug("admissions page fetched",
		zap.String("college", collegeLabel),
		zap.String("url", url),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(resp.Body)),
	)

	if e.archive != nil {
		key := archive.SlugKey(string(cycle), collegeLabel, "html")
		uri, archiveErr := e.archive.Put(ctx, key, "text/html", resp.Body)
		if archiveErr != nil {
			// Archival is best effort; a failed snapshot never fails the crawl.
			e.logger.Warn("page snapshot not archived",
				zap.String("college", collegeLabel),
				zap.Error(archiveErr),
			)
		} else {
			digest, _ := e.hasher.Hash(resp.Body)
			e.logger.Debug("page snapshot archived",
				zap.String("college", collegeLabel),
				zap.String("uri", uri),
				zap.String("sha256", digest),
			)
		}
	}

	text := pageText(resp.Body)
	result := ScanText(text, cycle.StartYear())
	e.logger.Debug("page scan finished",
		zap.String("college", collegeLabel),
		zap.Int("rounds_found", len(result)),
	)
	return result, nil
}

// ScanText runs the keyword/window heuristics over already-fetched page text.
// Kept separate from fetching so the heuristics stay unit-testable against
// literal fixture strings.
func ScanText(text string, cycleStartYear int) map[admissions.RoundType]admissions.RoundDates {
	text = normalize(text)
	result := make(map[admissions.RoundType]admissions.RoundDates)

	for _, round := range admissions.RoundsByPrecedence {
		for _, keyword := range roundKeywords[round] {
			idx := strings.Index(text, keyword)
			if idx < 0 {
				continue
			}
			window := cutWindow(text, idx, idx+len(keyword))
			date, ok := dateparse.Find(window, cycleStartYear)
			if !ok {
				continue
			}
			result[round] = admissions.RoundDates{DeadlineDate: date}
			break
		}
	}
	return result
}

// pageText extracts visible text from an HTML document, falling back to the
// raw body when the markup cannot be parsed at all.
func pageText(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return string(body)
	}
	doc.Find("script, style, noscript").Remove()
	return doc.Text()
}

func normalize(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

// cutWindow slices the surrounding context for a keyword hit, snapping both
// edges outward to UTF-8 boundaries so a multibyte character is never split.
func cutWindow(text string, start, end int) string {
	lo := start - windowBefore
	if lo < 0 {
		lo = 0
	}
	for lo > 0 && !utf8.RuneStart(text[lo]) {
		lo--
	}
	hi := end + windowAfter
	if hi > len(text) {
		hi = len(text)
	}
	for hi < len(text) && !utf8.RuneStart(text[hi]) {
		hi++
	}
	return text[lo:hi]
}
