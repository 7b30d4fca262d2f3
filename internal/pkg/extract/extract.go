// Package extract pulls page-tagged text out of uploaded documents.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kart-io/logger"
	"github.com/ledongthuc/pdf"
)

// ErrNoText is returned when a document yields no extractable text.
var ErrNoText = errors.New("no text extracted from document")

// Page is the text content of a single document page. Number is 1-based
// and preserved from the source document, so pages skipped during
// extraction leave gaps rather than renumbering.
type Page struct {
	Number int
	Text   string
}

// Extractor converts raw document bytes into page-tagged text.
type Extractor interface {
	// ExtractPages extracts per-page text from data. Pages with no
	// parseable text are omitted from the result.
	ExtractPages(ctx context.Context, data []byte) ([]Page, error)
}

// PDFExtractor extracts text from PDF files.
type PDFExtractor struct{}

// NewPDFExtractor creates a PDF extractor.
func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

// ExtractPages parses the PDF and returns the plain text of each page.
func (e *PDFExtractor) ExtractPages(ctx context.Context, data []byte) ([]Page, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pdf: %w", err)
	}

	pageCount := reader.NumPage()
	pages := make([]Page, 0, pageCount)

	for i := 1; i <= pageCount; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// Scanned or malformed pages are skipped, not fatal.
			logger.Warnw("skipping unparseable pdf page", "page", i, "error", err.Error())
			continue
		}

		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		pages = append(pages, Page{Number: i, Text: text})
	}

	if len(pages) == 0 {
		return nil, ErrNoText
	}

	return pages, nil
}

var _ Extractor = (*PDFExtractor)(nil)
