package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"pdfrag/internal/domain"
	"pdfrag/internal/generation"
	"pdfrag/internal/vectorstore"
)

// Components are the collaborators a Pipeline drives. Summarizer and
// Logger are optional.
type Components struct {
	Extractor  domain.Extractor
	Chunker    domain.Chunker
	Embedder   domain.Embedder
	Generator  domain.Generator
	Store      vectorstore.Store
	Summarizer domain.Summarizer
	Logger     *slog.Logger
}

// Options tune ingestion and retrieval.
type Options struct {
	AllowedExtensions []string
	TopK              int
	Metric            vectorstore.Metric
	EmbedBatchSize    int
	ExtractWorkers    int
	SummarySentences  int
}

// DocumentReport is how much text one accepted document contributed.
type DocumentReport struct {
	Filename   string `json:"filename"`
	Characters int    `json:"characters"`
}

// IngestResult describes a successful ingestion.
type IngestResult struct {
	Documents  []DocumentReport `json:"documents"`
	Skipped    []string         `json:"skipped,omitempty"`
	Characters int              `json:"characters"`
	Chunks     int              `json:"chunks"`
	Summary    string           `json:"summary,omitempty"`
}

// Answer is the generated answer together with the passages it was
// conditioned on, nearest first.
type Answer struct {
	Text    string
	Sources []domain.SearchResult
}

// IndexStatus reports whether a query could be served right now.
type IndexStatus struct {
	Location  string
	Available bool
	Chunks    int
	Metric    vectorstore.Metric
	Error     string
}

// Pipeline runs ingestion and question answering over a single index.
type Pipeline struct {
	extractor  domain.Extractor
	chunker    domain.Chunker
	embedder   domain.Embedder
	generator  domain.Generator
	store      vectorstore.Store
	summarizer domain.Summarizer
	logger     *slog.Logger
	tracer     trace.Tracer
	opts       Options

	// ingestMu serializes index replacement within the process.
	ingestMu sync.Mutex
}

func NewPipeline(c Components, opts Options) (*Pipeline, error) {
	switch {
	case c.Extractor == nil:
		return nil, errors.New("pipeline: extractor is required")
	case c.Chunker == nil:
		return nil, errors.New("pipeline: chunker is required")
	case c.Embedder == nil:
		return nil, errors.New("pipeline: embedder is required")
	case c.Generator == nil:
		return nil, errors.New("pipeline: generator is required")
	case c.Store == nil:
		return nil, errors.New("pipeline: index store is required")
	}

	if len(opts.AllowedExtensions) == 0 {
		opts.AllowedExtensions = []string{"pdf"}
	}
	for i, ext := range opts.AllowedExtensions {
		opts.AllowedExtensions[i] = strings.ToLower(strings.TrimPrefix(ext, "."))
	}
	if opts.TopK <= 0 {
		opts.TopK = vectorstore.DefaultTopK
	}
	if opts.Metric == "" {
		opts.Metric = vectorstore.L2
	}
	if opts.ExtractWorkers <= 0 {
		opts.ExtractWorkers = 4
	}

	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		extractor:  c.Extractor,
		chunker:    c.Chunker,
		embedder:   c.Embedder,
		generator:  c.Generator,
		store:      c.Store,
		summarizer: c.Summarizer,
		logger:     logger.With("component", "pipeline"),
		tracer:     otel.Tracer("pdfrag/service"),
		opts:       opts,
	}, nil
}

// Ingest replaces the index with one built from docs. The persisted index
// is left untouched unless Ingest succeeds.
func (p *Pipeline) Ingest(ctx context.Context, docs []domain.Document) (_ *IngestResult, err error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.ingest", trace.WithAttributes(attribute.Int("documents.received", len(docs))))
	defer func() { endSpan(span, err) }()
	start := time.Now()

	accepted, skipped := p.collect(docs)
	if len(accepted) == 0 {
		return nil, domain.ErrNoFile
	}
	for _, name := range skipped {
		p.logger.Warn("skipping file with disallowed extension", "file", name)
	}

	texts, err := p.extractAll(ctx, accepted)
	if err != nil {
		return nil, err
	}

	result := &IngestResult{Skipped: skipped}
	var raw strings.Builder
	for i, doc := range accepted {
		n := len([]rune(texts[i]))
		result.Documents = append(result.Documents, DocumentReport{Filename: doc.Filename, Characters: n})
		result.Characters += n
		raw.WriteString(texts[i])
	}
	text := raw.String()
	if text == "" {
		p.logger.Warn("no text extracted from uploaded documents", "documents", len(accepted))
		return nil, domain.ErrNoExtractableText
	}

	p.ingestMu.Lock()
	defer p.ingestMu.Unlock()

	chunks := p.chunker.Split(text)
	result.Chunks = len(chunks)
	span.SetAttributes(attribute.Int("chunks", len(chunks)), attribute.Int("characters", result.Characters))

	buildCtx, buildSpan := p.tracer.Start(ctx, "pipeline.build_index")
	idx, err := vectorstore.Build(buildCtx, p.embedder, chunks, p.opts.Metric, p.opts.EmbedBatchSize)
	endSpan(buildSpan, err)
	if err != nil {
		p.logService(err, "index build failed")
		return nil, err
	}

	persistCtx, persistSpan := p.tracer.Start(ctx, "pipeline.persist_index")
	err = p.store.Persist(persistCtx, idx)
	endSpan(persistSpan, err)
	if err != nil {
		p.logger.Error("index persist failed", "location", p.store.Location(), "error", err)
		return nil, err
	}

	if p.summarizer != nil {
		summary, serr := p.summarizer.Summarize(text, p.opts.SummarySentences)
		if serr != nil {
			p.logger.Warn("summary failed", "error", serr)
		}
		result.Summary = summary
	}

	p.logger.Info("ingestion complete",
		"documents", len(accepted),
		"skipped", len(skipped),
		"characters", result.Characters,
		"chunks", result.Chunks,
		"location", p.store.Location(),
		"duration", time.Since(start))
	return result, nil
}

func (p *Pipeline) collect(docs []domain.Document) (accepted []domain.Document, skipped []string) {
	for _, d := range docs {
		if d.Filename == "" && len(d.Content) == 0 {
			continue
		}
		if !slices.Contains(p.opts.AllowedExtensions, d.Extension()) {
			skipped = append(skipped, d.Filename)
			continue
		}
		accepted = append(accepted, d)
	}
	return accepted, skipped
}

// extractAll extracts every document in parallel and returns the texts in
// input order.
func (p *Pipeline) extractAll(ctx context.Context, docs []domain.Document) ([]string, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.extract")
	defer span.End()

	texts := make([]string, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.ExtractWorkers)
	for i, doc := range docs {
		g.Go(func() error {
			texts[i] = p.extractor.Extract(gctx, doc)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return texts, nil
}

// Ask answers question from the persisted index.
func (p *Pipeline) Ask(ctx context.Context, question string) (_ *Answer, err error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.ask")
	defer func() { endSpan(span, err) }()

	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.ErrNoQuestion
	}

	idx, err := p.store.Load(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.logger.Error("failed to load index", "location", p.store.Location(), "error", err)
		return nil, fmt.Errorf("%w: %w", domain.ErrIndexUnavailable, err)
	}

	embedCtx, embedSpan := p.tracer.Start(ctx, "pipeline.embed_question")
	vec, err := p.embedder.Embed(embedCtx, question)
	err = domain.WrapService(p.embedder.Name(), "embed", err)
	endSpan(embedSpan, err)
	if err != nil {
		p.logService(err, "question embedding failed")
		return nil, err
	}

	results, err := idx.Search(vec, p.opts.TopK)
	if err != nil {
		p.logger.Error("index does not match embedder", "embedder", p.embedder.Name(), "error", err)
		return nil, fmt.Errorf("%w: %w", domain.ErrIndexUnavailable, err)
	}
	span.SetAttributes(attribute.Int("results", len(results)))

	prompt := generation.BuildPrompt(question, results)

	genCtx, genSpan := p.tracer.Start(ctx, "pipeline.generate")
	text, err := p.generator.Generate(genCtx, prompt)
	if errors.Is(err, domain.ErrEmptyResponse) {
		err = nil
		text = ""
	}
	err = domain.WrapService(p.generator.Name(), "generate", err)
	endSpan(genSpan, err)
	if err != nil {
		p.logService(err, "generation failed")
		return nil, err
	}

	if strings.TrimSpace(text) == "" {
		p.logger.Warn("generator returned no text")
		text = generation.NoResponse
	}
	return &Answer{Text: text, Sources: results}, nil
}

// IndexStatus loads the index to report whether queries can be served.
func (p *Pipeline) IndexStatus(ctx context.Context) IndexStatus {
	st := IndexStatus{Location: p.store.Location()}
	idx, err := p.store.Load(ctx)
	if err != nil {
		st.Error = err.Error()
		return st
	}
	st.Available = true
	st.Chunks = idx.Len()
	st.Metric = idx.Metric()
	return st
}

func (p *Pipeline) logService(err error, msg string) {
	var se *domain.ServiceError
	if errors.As(err, &se) {
		p.logger.Error(msg, "service", se.Service, "op", se.Op, "error", se.Err)
		return
	}
	p.logger.Error(msg, "error", err)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
