package extractor

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfrag/internal/domain"
	"pdfrag/internal/extractor/pdftest"
)

type fakePage struct {
	text  string
	err   error
	panic bool
}

type fakeSource struct {
	pages []fakePage
}

func (f *fakeSource) NumPage() int { return len(f.pages) }

func (f *fakeSource) PageText(n int) (string, error) {
	p := f.pages[n-1]
	if p.panic {
		panic("malformed content stream")
	}
	return p.text, p.err
}

func newTestExtractor(src pageSource, openErr error) (*PDFExtractor, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	e := New(logger)
	e.open = func([]byte) (pageSource, error) {
		if openErr != nil {
			return nil, openErr
		}
		return src, nil
	}
	return e, &buf
}

func TestExtract_ConcatenatesPagesInOrder(t *testing.T) {
	src := &fakeSource{pages: []fakePage{{text: "first "}, {text: "second "}, {text: "third"}}}
	e, _ := newTestExtractor(src, nil)

	text := e.Extract(context.Background(), domain.Document{Filename: "a.pdf", Content: []byte("x")})

	assert.Equal(t, "first second third", text)
}

func TestExtract_FailingPagesContributeNothing(t *testing.T) {
	src := &fakeSource{pages: []fakePage{
		{text: "kept one "},
		{err: errors.New("bad font")},
		{panic: true},
		{text: "kept two"},
	}}
	e, logs := newTestExtractor(src, nil)

	text := e.Extract(context.Background(), domain.Document{Filename: "mixed.pdf", Content: []byte("x")})

	assert.Equal(t, "kept one kept two", text)
	assert.Contains(t, logs.String(), "failed to extract page")
	assert.Contains(t, logs.String(), "pdf parser panic")
}

func TestExtract_WhitespacePagesAreKept(t *testing.T) {
	src := &fakeSource{pages: []fakePage{
		{text: "end of page one."},
		{text: "\n\n"},
		{text: "Start of page three"},
	}}
	e, logs := newTestExtractor(src, nil)

	text := e.Extract(context.Background(), domain.Document{Filename: "blank.pdf", Content: []byte("x")})

	assert.Equal(t, "end of page one.\n\nStart of page three", text)
	assert.Contains(t, logs.String(), "no text extracted from page")
}

func TestExtract_UnreadableDocument(t *testing.T) {
	e, logs := newTestExtractor(nil, errors.New("not a PDF"))

	text := e.Extract(context.Background(), domain.Document{Filename: "broken.pdf", Content: []byte("garbage")})

	assert.Empty(t, text)
	assert.Contains(t, logs.String(), "failed to read document")
	assert.Contains(t, logs.String(), "broken.pdf")
}

func TestExtract_OpenPanicIsRecovered(t *testing.T) {
	e, logs := newTestExtractor(nil, nil)
	e.open = func([]byte) (pageSource, error) { panic("index out of range") }

	assert.NotPanics(t, func() {
		assert.Empty(t, e.Extract(context.Background(), domain.Document{Filename: "p.pdf", Content: []byte("x")}))
	})
	assert.Contains(t, logs.String(), "pdf parser panic")
}

func TestExtract_EmptyContent(t *testing.T) {
	e := New(nil)
	assert.Empty(t, e.Extract(context.Background(), domain.Document{Filename: "empty.pdf"}))
}

func TestExtract_NoTextLogsError(t *testing.T) {
	src := &fakeSource{pages: []fakePage{{text: ""}, {text: "\n"}}}
	e, logs := newTestExtractor(src, nil)

	assert.Empty(t, e.Extract(context.Background(), domain.Document{Filename: "scan.pdf", Content: []byte("x")}))
	assert.Contains(t, logs.String(), "no text could be extracted")
}

func TestExtract_GarbageBytes(t *testing.T) {
	e := New(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	text := e.Extract(context.Background(), domain.Document{
		Filename: "corrupt.pdf",
		Content:  []byte("this is definitely not a pdf file"),
	})

	assert.Empty(t, text)
}

func TestExtract_RealPDF(t *testing.T) {
	e := New(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	text := e.Extract(context.Background(), domain.Document{
		Filename: "hello.pdf",
		Content:  pdftest.Minimal("Hello World"),
	})

	require.NotEmpty(t, text)
	assert.Contains(t, text, "Hello")
}

func TestExtract_RealPDFPagesInOrder(t *testing.T) {
	e := New(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	text := e.Extract(context.Background(), domain.Document{
		Filename: "two.pdf",
		Content:  pdftest.Minimal("Alpha page", "Omega page"),
	})

	require.Contains(t, text, "Alpha")
	require.Contains(t, text, "Omega")
	assert.Less(t, strings.Index(text, "Alpha"), strings.Index(text, "Omega"))
}
