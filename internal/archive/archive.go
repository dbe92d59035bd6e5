// Package archive stores raw crawl artifacts (fetched HTML, the deadline
// grid PDF) so parsing regressions can be replayed against real inputs.
package archive

import (
	"context"
	"fmt"
	"strings"
	"unicode"
)

// Store persists one artifact per call and returns a stable URI for it.
type Store interface {
	Put(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// GridKey builds the object path for an archived deadline grid PDF.
func GridKey(cycle, runID string) string {
	return fmt.Sprintf("grids/%s/%s.pdf", cycle, runID)
}

// SlugKey builds an object path from a free-form label, keeping only
// characters that are safe in object names.
func SlugKey(cycle, label, ext string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(label) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('-')
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		slug = "unnamed"
	}
	return fmt.Sprintf("pages/%s/%s.%s", cycle, slug, ext)
}
