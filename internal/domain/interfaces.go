package domain

import (
	"context"
	"path/filepath"
	"strings"
)

// Document is a single uploaded file. It is handed to the extractor and not
// retained once its text has been read.
type Document struct {
	Filename string
	Content  []byte
}

// Extension returns the lower-cased filename extension without the dot.
func (d Document) Extension() string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(d.Filename), "."))
}

// Chunk is a contiguous, possibly overlapping, segment of the ingested text.
// Offset is the position of the first character (rune) within that text.
type Chunk struct {
	Index  int
	Offset int
	Text   string
}

// SearchResult represents a retrieved chunk with its score under the
// index metric (a distance for l2, a similarity for cosine).
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// Extractor reads the text out of a document. Failures are absorbed:
// an unreadable document or page contributes empty text.
type Extractor interface {
	Extract(ctx context.Context, doc Document) string
}

// Chunker splits text into retrievable segments.
type Chunker interface {
	Split(text string) []Chunk
}

// Embedder converts free text into a numeric vector representation.
type Embedder interface {
	Name() string
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator produces a completion for a fully rendered prompt.
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
