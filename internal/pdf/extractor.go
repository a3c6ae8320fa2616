package pdf

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"docuchat/backend/internal/pipeline"
)

// Page is one page of extracted text, 1-indexed in document order.
type Page struct {
	Number int
	Text   string
}

// ExtractPages reads the entire content of r and extracts per-page plain text.
// Pages that contain no non-whitespace text are skipped; if every page is
// skipped the document has no OCR layer and ErrEmptyContent is returned.
// Corrupt or unparseable input returns ErrExtraction.
func ExtractPages(r io.Reader) ([]Page, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: reading input: %w", pipeline.ErrExtraction, err)
	}
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty input", pipeline.ErrExtraction)
	}

	reader, err := newReader(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", pipeline.ErrExtraction, err)
	}

	var pages []Page
	total := reader.NumPage()
	for num := 1; num <= total; num++ {
		page := reader.Page(num)
		if page.V.IsNull() {
			continue
		}
		text, err := extractPageText(page)
		if err != nil {
			// A single malformed content stream should not sink the whole
			// document; the page simply contributes no text.
			continue
		}
		text = CleanText(text)
		if strings.TrimSpace(text) == "" {
			continue
		}
		pages = append(pages, Page{Number: num, Text: text})
	}

	if len(pages) == 0 {
		return nil, fmt.Errorf("%w", pipeline.ErrEmptyContent)
	}
	return pages, nil
}

// newReader guards against panics inside the pdf library on malformed files,
// converting them into ordinary errors.
func newReader(b []byte) (reader *pdf.Reader, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()
	return pdf.NewReader(bytes.NewReader(b), int64(len(b)))
}

func extractPageText(page pdf.Page) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed page content: %v", r)
		}
	}()
	return page.GetPlainText(nil)
}

// CleanText normalizes extracted page text: collapses runs of spaces and tabs,
// trims line edges, and drops bare page-number lines.
func CleanText(text string) string {
	lines := strings.Split(text, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			continue
		}
		if len(line) < 4 && isDigits(line) {
			continue
		}
		cleaned = append(cleaned, line)
	}
	return strings.Join(cleaned, "\n")
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
