package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"pdfrag/internal/domain"
)

// DefaultTopK is the number of chunks retrieved when a query does not ask
// for a specific count.
const DefaultTopK = 4

// DefaultBatchSize is the number of chunks embedded per EmbedBatch call.
const DefaultBatchSize = 32

// Metric selects how query vectors are compared with indexed vectors.
type Metric string

const (
	// L2 ranks by squared euclidean distance, smaller is nearer.
	L2 Metric = "l2"
	// Cosine ranks by cosine similarity, larger is nearer.
	Cosine Metric = "cosine"
)

// ParseMetric maps a config value to a Metric. Empty means L2.
func ParseMetric(s string) (Metric, error) {
	switch Metric(strings.ToLower(strings.TrimSpace(s))) {
	case "", L2:
		return L2, nil
	case Cosine:
		return Cosine, nil
	default:
		return "", fmt.Errorf("unknown metric %q", s)
	}
}

// Index is an immutable set of (chunk, vector) pairs searched by brute force.
type Index struct {
	metric    Metric
	dimension int
	chunks    []domain.Chunk
	vectors   [][]float32
}

// NewIndex validates and assembles an index. Slices are owned by the index
// afterwards.
func NewIndex(metric Metric, chunks []domain.Chunk, vectors [][]float32) (*Index, error) {
	if metric != L2 && metric != Cosine {
		return nil, fmt.Errorf("unknown metric %q", metric)
	}
	if len(chunks) == 0 {
		return nil, errors.New("index needs at least one chunk")
	}
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("chunks and vectors length mismatch: %d != %d", len(chunks), len(vectors))
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, errors.New("vectors must not be empty")
	}
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), dim)
		}
	}
	return &Index{metric: metric, dimension: dim, chunks: chunks, vectors: vectors}, nil
}

func (x *Index) Len() int { return len(x.chunks) }

func (x *Index) Metric() Metric { return x.metric }

func (x *Index) Dimension() int { return x.dimension }

// Chunks returns a copy of the indexed chunks in insertion order.
func (x *Index) Chunks() []domain.Chunk {
	out := make([]domain.Chunk, len(x.chunks))
	copy(out, x.chunks)
	return out
}

// Vector returns the vector stored at position i.
func (x *Index) Vector(i int) []float32 { return x.vectors[i] }

// Search returns the k chunks nearest to query, nearest first. All chunks
// are returned when k exceeds the index size and ties keep insertion order.
func (x *Index) Search(query []float32, k int) ([]domain.SearchResult, error) {
	if len(query) != x.dimension {
		return nil, fmt.Errorf("query dimension %d does not match index dimension %d", len(query), x.dimension)
	}
	if k <= 0 {
		k = DefaultTopK
	}

	scores := make([]float64, len(x.vectors))
	for i, v := range x.vectors {
		switch x.metric {
		case Cosine:
			scores[i] = cosine(v, query)
		default:
			scores[i] = squaredL2(v, query)
		}
	}

	idxs := make([]int, len(scores))
	for i := range idxs {
		idxs[i] = i
	}
	sort.SliceStable(idxs, func(a, b int) bool {
		if x.metric == Cosine {
			return scores[idxs[a]] > scores[idxs[b]]
		}
		return scores[idxs[a]] < scores[idxs[b]]
	})

	if k > len(idxs) {
		k = len(idxs)
	}
	results := make([]domain.SearchResult, 0, k)
	for _, j := range idxs[:k] {
		results = append(results, domain.SearchResult{Chunk: x.chunks[j], Score: scores[j]})
	}
	return results, nil
}

// Build embeds chunks in batches and returns a fresh index. It is all or
// nothing: any embedding failure fails the build.
func Build(ctx context.Context, emb domain.Embedder, chunks []domain.Chunk, metric Metric, batchSize int) (*Index, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: no chunks to index", domain.ErrIndexBuild)
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += batchSize {
		end := min(start+batchSize, len(chunks))
		texts := make([]string, 0, end-start)
		for _, ch := range chunks[start:end] {
			texts = append(texts, ch.Text)
		}
		batch, err := emb.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrIndexBuild, domain.WrapService(emb.Name(), "embed_batch", err))
		}
		if len(batch) != len(texts) {
			return nil, fmt.Errorf("%w: embedder returned %d vectors for %d chunks", domain.ErrIndexBuild, len(batch), len(texts))
		}
		vectors = append(vectors, batch...)
	}

	idx, err := NewIndex(metric, chunks, vectors)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrIndexBuild, err)
	}
	return idx, nil
}

func squaredL2(a, b []float32) float64 {
	sum := 0.0
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
