package pdfgrid

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/admitkit/deadline-crawler/internal/admissions"
)

func TestParseRejectsNonPDF(t *testing.T) {
	t.Parallel()

	p := NewParser(nil)
	_, err := p.Parse([]byte("this is not a pdf document"), 2025)
	require.Error(t, err)

	var extractionErr *admissions.PdfExtractionError
	require.True(t, errors.As(err, &extractionErr))
}

func TestParseEmptyInput(t *testing.T) {
	t.Parallel()

	p := NewParser(nil)
	_, err := p.Parse(nil, 2025)
	require.Error(t, err)
}
