// Package pdfgrid parses the standardized requirements-grid PDF into deadline
// candidates.
//
// The parser is coupled to the grid's stable tabular layout (name column,
// school-type marker, date columns), not to any general PDF grammar. Text
// extraction and line scanning are separate stages so the scanner can be
// exercised against literal fixture strings.
package pdfgrid

import (
	"go.uber.org/zap"

	"github.com/admitkit/deadline-crawler/internal/admissions"
)

// Parser extracts deadline candidates from requirements-grid PDF bytes.
type Parser struct {
	logger *zap.Logger
}

// NewParser builds a Parser.
func NewParser(logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{logger: logger}
}

// Parse extracts text from the PDF and line-scans it into candidates. Only a
// total text-extraction failure is an error; a grid that scans to zero
// candidates is a valid, if suspicious, result.
func (p *Parser) Parse(data []byte, cycleStartYear int) ([]admissions.ParsedDeadlineCandidate, error) {
	text, err := ExtractText(data)
	if err != nil {
		return nil, err
	}

	candidates := ScanLines(text, cycleStartYear)
	p.logger.Info("requirements grid parsed",
		zap.Int("pdf_bytes", len(data)),
		zap.Int("text_chars", len(text)),
		zap.Int("candidates", len(candidates)),
	)
	return candidates, nil
}
