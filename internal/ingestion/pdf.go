// Package ingestion implements the job description ingestion pipeline.
// Uploaded PDFs are parsed page by page, merged into one document per file,
// embedded, and upserted into the vector store. The pipeline is invoked by
// the `screener jd` CLI commands and the document upload API.
package ingestion

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Extractor converts raw PDF bytes into per-page plain text. Implementations
// must be safe for concurrent use.
type Extractor interface {
	// Extract returns the plain text of each page, in page order. Pages with
	// no extractable text come back as empty strings.
	Extract(data []byte) ([]string, error)
}

// PDFExtractor implements Extractor using a pure-Go PDF parser.
type PDFExtractor struct{}

// NewPDFExtractor constructs a PDFExtractor.
func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

// Extract parses the PDF and returns the plain text of each page.
func (e *PDFExtractor) Extract(data []byte) ([]string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("ingestion: parse pdf: %w", err)
	}

	n := reader.NumPage()
	pages := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// A single corrupt page should not sink the whole document.
			pages = append(pages, "")
			continue
		}
		pages = append(pages, strings.TrimSpace(text))
	}
	return pages, nil
}

// ExtractFile reads the file at path and extracts its pages.
func (e *PDFExtractor) ExtractFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ingestion: read %s: %w", path, err)
	}
	return e.Extract(data)
}

// mergePages joins per-page text into one document body, skipping blank pages.
func mergePages(pages []string) string {
	parts := make([]string, 0, len(pages))
	for _, p := range pages {
		if p == "" {
			continue
		}
		parts = append(parts, p)
	}
	return strings.Join(parts, "\n\n")
}
