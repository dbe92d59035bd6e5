package pdfgrid

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/admitkit/deadline-crawler/internal/admissions"
)

// PageBreak separates pages in extracted text so the line scanner never
// accidentally merges a name fragment from the bottom of one page with a row
// at the top of the next.
const PageBreak = "\f"

// ExtractText pulls text out of the requirements-grid PDF. The row-aware
// reader is tried first because it preserves the grid's line structure; the
// plain-text reader is the fallback. Only when both strategies come back
// empty does extraction fail, with *admissions.PdfExtractionError.
func ExtractText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", &admissions.PdfExtractionError{Err: fmt.Errorf("open pdf: %w", err)}
	}

	text, rowErr := textByRows(reader)
	if strings.TrimSpace(text) != "" {
		return text, nil
	}

	text, plainErr := plainText(reader)
	if strings.TrimSpace(text) != "" {
		return text, nil
	}

	return "", &admissions.PdfExtractionError{
		Err: fmt.Errorf("row extraction: %v; plain extraction: %v", rowErr, plainErr),
	}
}

// textByRows walks every page and joins row fragments. The pdf library panics
// on some malformed content streams, so the walk is recover-guarded.
func textByRows(reader *pdf.Reader) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("row extraction panic: %v", r)
		}
	}()

	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, rowsErr := page.GetTextByRow()
		if rowsErr != nil {
			err = fmt.Errorf("page %d: %w", i, rowsErr)
			continue
		}
		var lines []string
		for _, row := range rows {
			var parts []string
			for _, word := range row.Content {
				if s := strings.TrimSpace(word.S); s != "" {
					parts = append(parts, s)
				}
			}
			if len(parts) > 0 {
				lines = append(lines, strings.Join(parts, " "))
			}
		}
		pages = append(pages, strings.Join(lines, "\n"))
	}
	return strings.Join(pages, "\n"+PageBreak+"\n"), err
}

func plainText(reader *pdf.Reader) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("plain extraction panic: %v", r)
		}
	}()

	rd, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("plain text: %w", err)
	}
	b, err := io.ReadAll(rd)
	if err != nil {
		return "", fmt.Errorf("read plain text: %w", err)
	}
	return string(b), nil
}
