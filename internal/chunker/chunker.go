// Package chunker splits extracted text into overlapping, bounded segments.
package chunker

import (
	"fmt"
	"strings"
	"unicode"

	"pdfrag/internal/domain"
)

const (
	// DefaultMaxSize is the default number of characters per chunk.
	DefaultMaxSize = 10000
	// DefaultOverlap is the default number of characters shared by
	// consecutive chunks.
	DefaultOverlap = 1000
)

// separators in order of preference. A cut is placed right after the
// separator so it stays with the preceding chunk.
var separators = [][]rune{
	[]rune("\n\n"),
	[]rune("\n"),
	[]rune(". "),
	[]rune("! "),
	[]rune("? "),
	[]rune(" "),
}

// Chunker cuts text into windows of at most maxSize characters, preferring
// natural boundaries and falling back to a hard cut.
type Chunker struct {
	maxSize int
	overlap int
}

// New creates a chunker. overlap must be smaller than maxSize.
func New(maxSize, overlap int) (*Chunker, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("chunker: max size must be positive, got %d", maxSize)
	}
	if overlap < 0 || overlap >= maxSize {
		return nil, fmt.Errorf("chunker: overlap %d must be in [0, %d)", overlap, maxSize)
	}
	return &Chunker{maxSize: maxSize, overlap: overlap}, nil
}

// MaxSize returns the configured chunk size in characters.
func (c *Chunker) MaxSize() int { return c.maxSize }

// Overlap returns the configured overlap in characters.
func (c *Chunker) Overlap() int { return c.overlap }

// Split returns the chunk sequence for text. Empty text yields no chunks.
func (c *Chunker) Split(text string) []domain.Chunk {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}

	chunks := make([]domain.Chunk, 0, n/(c.maxSize-c.overlap)+1)
	start := 0
	for {
		limit := start + c.maxSize
		if limit >= n {
			return append(chunks, domain.Chunk{
				Index:  len(chunks),
				Offset: start,
				Text:   string(runes[start:n]),
			})
		}
		end := c.cut(runes, start, limit)
		chunks = append(chunks, domain.Chunk{
			Index:  len(chunks),
			Offset: start,
			Text:   string(runes[start:end]),
		})
		start = c.nextStart(runes, start, end)
	}
}

// cut picks the end of the chunk starting at start. The end always lies
// past start+overlap so the next chunk makes progress.
func (c *Chunker) cut(runes []rune, start, limit int) int {
	lo := start + max(c.overlap+1, c.maxSize/2)
	for _, sep := range separators {
		for i := limit - len(sep); i+len(sep) >= lo && i >= start; i-- {
			if hasPrefixAt(runes, i, sep) {
				return i + len(sep)
			}
		}
	}
	return limit
}

// nextStart steps back overlap characters from end, then to the start of
// the word it landed in when that word begins close by.
func (c *Chunker) nextStart(runes []rune, start, end int) int {
	next := end - c.overlap
	if c.overlap == 0 {
		return next
	}
	floor := max(start+1, next-c.overlap/10)
	for i := next; i > floor; i-- {
		if unicode.IsSpace(runes[i-1]) {
			return i
		}
	}
	return next
}

func hasPrefixAt(runes []rune, i int, sep []rune) bool {
	if i+len(sep) > len(runes) {
		return false
	}
	for j, r := range sep {
		if runes[i+j] != r {
			return false
		}
	}
	return true
}

// Reassemble joins chunks back into the text they were cut from, dropping
// the overlapping prefix of every chunk after the first.
func Reassemble(chunks []domain.Chunk) string {
	var b strings.Builder
	covered := 0
	for _, ch := range chunks {
		runes := []rune(ch.Text)
		skip := max(covered-ch.Offset, 0)
		if skip < len(runes) {
			b.WriteString(string(runes[skip:]))
		}
		covered = max(covered, ch.Offset+len(runes))
	}
	return b.String()
}
