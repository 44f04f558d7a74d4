// Package extractor reads plain text out of uploaded PDF documents.
package extractor

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"

	"pdfrag/internal/domain"
)

// pageSource is the subset of a parsed PDF the extractor needs.
type pageSource interface {
	NumPage() int
	PageText(n int) (string, error)
}

type pdfSource struct {
	r *pdf.Reader
}

func (s pdfSource) NumPage() int { return s.r.NumPage() }

func (s pdfSource) PageText(n int) (string, error) {
	page := s.r.Page(n)
	if page.V.IsNull() {
		return "", nil
	}
	return page.GetPlainText(nil)
}

func openPDF(content []byte) (pageSource, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, err
	}
	return pdfSource{r: r}, nil
}

// PDFExtractor extracts the text layer of a PDF page by page.
type PDFExtractor struct {
	logger *slog.Logger
	open   func([]byte) (pageSource, error)
}

// New creates a PDF extractor.
func New(logger *slog.Logger) *PDFExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &PDFExtractor{
		logger: logger.With("component", "extractor"),
		open:   openPDF,
	}
}

// Extract returns the concatenated text of every readable page of doc.
// Unreadable documents and pages contribute empty text; failures are logged
// and never returned.
func (e *PDFExtractor) Extract(ctx context.Context, doc domain.Document) string {
	log := e.logger.With("file", doc.Filename)

	src, err := e.openSafe(doc.Content)
	if err != nil {
		log.Error("failed to read document", "error", err)
		return ""
	}

	var b strings.Builder
	pages := src.NumPage()
	for n := 1; n <= pages; n++ {
		if err := ctx.Err(); err != nil {
			log.Warn("extraction cancelled", "page", n, "error", err)
			break
		}
		text, err := pageTextSafe(src, n)
		if err != nil {
			log.Error("failed to extract page", "page", n, "error", err)
			continue
		}
		if strings.TrimSpace(text) == "" {
			log.Warn("no text extracted from page", "page", n)
		}
		b.WriteString(text)
	}

	if strings.TrimSpace(b.String()) == "" {
		log.Error("no text could be extracted", "pages", pages)
		return ""
	}
	log.Debug("document extracted", "pages", pages, "characters", b.Len())
	return b.String()
}

// The PDF parser panics on some malformed inputs.
func (e *PDFExtractor) openSafe(content []byte) (src pageSource, err error) {
	defer func() {
		if r := recover(); r != nil {
			src, err = nil, fmt.Errorf("pdf parser panic: %v", r)
		}
	}()
	if len(content) == 0 {
		return nil, fmt.Errorf("empty document")
	}
	return e.open(content)
}

func pageTextSafe(src pageSource, n int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("pdf parser panic: %v", r)
		}
	}()
	return src.PageText(n)
}
