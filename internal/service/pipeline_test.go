package service

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfrag/internal/chunker"
	"pdfrag/internal/domain"
	"pdfrag/internal/embedding/hashing"
	"pdfrag/internal/extractor"
	"pdfrag/internal/extractor/pdftest"
	"pdfrag/internal/generation"
	"pdfrag/internal/summarizer"
	"pdfrag/internal/vectorstore"
	"pdfrag/internal/vectorstore/memory"
	"pdfrag/internal/vectorstore/sqlite"
)

// mapExtractor returns canned text per filename.
type mapExtractor struct {
	texts map[string]string
}

func (m *mapExtractor) Extract(_ context.Context, doc domain.Document) string {
	return m.texts[doc.Filename]
}

type stubGenerator struct {
	mu      sync.Mutex
	prompts []string
	answer  func(prompt string) (string, error)
}

func (g *stubGenerator) Name() string { return "stub-gen" }

func (g *stubGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()
	if g.answer == nil {
		return "stub answer", nil
	}
	return g.answer(prompt)
}

func (g *stubGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

// switchEmbedder delegates to a hashing embedder until err is set.
type switchEmbedder struct {
	*hashing.Embedder
	err error
}

func (s *switchEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.Embedder.Embed(ctx, text)
}

func (s *switchEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.Embedder.EmbedBatch(ctx, texts)
}

type fixture struct {
	pipeline  *Pipeline
	extractor *mapExtractor
	embedder  *switchEmbedder
	generator *stubGenerator
	store     vectorstore.Store
	logs      *bytes.Buffer
}

type fixtureOption func(*Components, *Options)

func withChunker(maxSize, overlap int) fixtureOption {
	return func(c *Components, _ *Options) {
		ch, err := chunker.New(maxSize, overlap)
		if err != nil {
			panic(err)
		}
		c.Chunker = ch
	}
}

func withStore(s vectorstore.Store) fixtureOption {
	return func(c *Components, _ *Options) { c.Store = s }
}

func withExtractor(e domain.Extractor) fixtureOption {
	return func(c *Components, _ *Options) { c.Extractor = e }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	f := &fixture{
		extractor: &mapExtractor{texts: map[string]string{}},
		embedder:  &switchEmbedder{Embedder: hashing.New(256)},
		generator: &stubGenerator{},
		logs:      &bytes.Buffer{},
	}
	ch, err := chunker.New(200, 20)
	require.NoError(t, err)

	c := Components{
		Extractor:  f.extractor,
		Chunker:    ch,
		Embedder:   f.embedder,
		Generator:  f.generator,
		Store:      memory.NewStore("test"),
		Summarizer: summarizer.NewFrequencySummarizer(),
		Logger:     slog.New(slog.NewTextHandler(f.logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
	}
	o := Options{EmbedBatchSize: 3, ExtractWorkers: 2, SummarySentences: 1}
	for _, opt := range opts {
		opt(&c, &o)
	}
	f.store = c.Store

	f.pipeline, err = NewPipeline(c, o)
	require.NoError(t, err)
	return f
}

func (f *fixture) ingest(t *testing.T, texts ...string) (*IngestResult, error) {
	t.Helper()
	docs := make([]domain.Document, len(texts))
	for i, text := range texts {
		name := filepath.Join("doc", string(rune('a'+i))+".pdf")
		f.extractor.texts[name] = text
		docs[i] = domain.Document{Filename: name, Content: []byte("%PDF")}
	}
	return f.pipeline.Ingest(context.Background(), docs)
}

func sqliteStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.NewStore(filepath.Join(t.TempDir(), "faiss_index", "index.db"))
	require.NoError(t, err)
	return s
}

func TestNewPipeline_RequiresComponents(t *testing.T) {
	_, err := NewPipeline(Components{}, Options{})
	assert.Error(t, err)
}

func TestIngest_NoDocuments(t *testing.T) {
	f := newFixture(t)

	_, err := f.pipeline.Ingest(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrNoFile)
}

func TestIngest_DisallowedExtensions(t *testing.T) {
	f := newFixture(t)
	f.extractor.texts["notes.txt"] = "plain text"
	f.extractor.texts["Report.PDF"] = "Quarterly revenue grew."

	_, err := f.pipeline.Ingest(context.Background(), []domain.Document{{Filename: "notes.txt", Content: []byte("x")}})
	assert.ErrorIs(t, err, domain.ErrNoFile)

	res, err := f.pipeline.Ingest(context.Background(), []domain.Document{
		{Filename: "notes.txt", Content: []byte("x")},
		{Filename: "Report.PDF", Content: []byte("x")},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"notes.txt"}, res.Skipped)
	require.Len(t, res.Documents, 1)
	assert.Equal(t, "Report.PDF", res.Documents[0].Filename)
}

func TestIngest_EmptyExtractionLeavesIndexByteIdentical(t *testing.T) {
	store := sqliteStore(t)
	f := newFixture(t, withStore(store))

	_, err := f.ingest(t, "The original document talks about tides and the moon.")
	require.NoError(t, err)
	before, err := os.ReadFile(store.Location())
	require.NoError(t, err)

	_, err = f.ingest(t, "", "")
	assert.ErrorIs(t, err, domain.ErrNoExtractableText)

	_, err = f.pipeline.Ingest(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrNoFile)

	after, err := os.ReadFile(store.Location())
	require.NoError(t, err)
	assert.True(t, bytes.Equal(before, after), "index changed after a rejected ingestion")
}

func TestIngest_EmptyExtractionWithNoPriorIndex(t *testing.T) {
	store := sqliteStore(t)
	f := newFixture(t, withStore(store))

	_, err := f.ingest(t, "")
	assert.ErrorIs(t, err, domain.ErrNoExtractableText)
	assert.NoFileExists(t, store.Location())
}

func TestIngest_ReplacesNotMerges(t *testing.T) {
	store := sqliteStore(t)
	f := newFixture(t, withStore(store))
	first := strings.Repeat("alpha beta gamma. ", 40)
	second := strings.Repeat("delta epsilon zeta. ", 30)

	_, err := f.ingest(t, first)
	require.NoError(t, err)
	res, err := f.ingest(t, second)
	require.NoError(t, err)

	idx, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, res.Chunks, idx.Len())
	for _, ch := range idx.Chunks() {
		assert.NotContains(t, ch.Text, "alpha")
	}
	assert.Equal(t, second, chunker.Reassemble(idx.Chunks()))
}

func TestIngest_RepeatedCharacterDocument(t *testing.T) {
	f := newFixture(t, withChunker(10000, 1000))

	res, err := f.ingest(t, strings.Repeat("A", 25000))
	require.NoError(t, err)

	assert.Equal(t, 3, res.Chunks)
	assert.Equal(t, 25000, res.Characters)

	idx, err := f.store.Load(context.Background())
	require.NoError(t, err)
	lengths := []int{}
	for _, ch := range idx.Chunks() {
		lengths = append(lengths, len(ch.Text))
	}
	assert.Equal(t, []int{10000, 10000, 7000}, lengths)
}

func TestIngest_ConcatenatesInInputOrder(t *testing.T) {
	f := newFixture(t)

	res, err := f.ingest(t, "First part. ", "", "Second part.")
	require.NoError(t, err)

	idx, err := f.store.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, idx.Len())
	assert.Equal(t, "First part. Second part.", idx.Chunks()[0].Text)

	require.Len(t, res.Documents, 3)
	assert.Equal(t, 12, res.Documents[0].Characters)
	assert.Equal(t, 0, res.Documents[1].Characters)
	assert.Equal(t, 24, res.Characters)
	assert.NotEmpty(t, res.Summary)
}

func TestIngest_OneCorruptOneGoodDocument(t *testing.T) {
	var logs bytes.Buffer
	real := extractor.New(slog.New(slog.NewTextHandler(&logs, nil)))
	f := newFixture(t, withExtractor(real))

	res, err := f.pipeline.Ingest(context.Background(), []domain.Document{
		{Filename: "broken.pdf", Content: []byte("not a pdf at all")},
		{Filename: "good.pdf", Content: pdftest.Minimal("Tides follow the moon")},
	})
	require.NoError(t, err)

	require.Len(t, res.Documents, 2)
	assert.Zero(t, res.Documents[0].Characters)
	assert.Positive(t, res.Documents[1].Characters)
	assert.Contains(t, logs.String(), "broken.pdf")

	idx, err := f.store.Load(context.Background())
	require.NoError(t, err)
	assert.Contains(t, chunker.Reassemble(idx.Chunks()), "Tides")
}

func TestIngest_BuildFailureKeepsPriorIndex(t *testing.T) {
	f := newFixture(t)
	_, err := f.ingest(t, "Kept text about glaciers.")
	require.NoError(t, err)

	f.embedder.err = errors.New("quota exceeded")
	_, err = f.ingest(t, "Replacement text about deserts.")
	require.ErrorIs(t, err, domain.ErrIndexBuild)
	var se *domain.ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "hashing", se.Service)

	idx, err := f.store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Kept text about glaciers.", idx.Chunks()[0].Text)
}

func TestIngest_CancelledContext(t *testing.T) {
	f := newFixture(t)
	f.extractor.texts["a.pdf"] = "text"

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.pipeline.Ingest(ctx, []domain.Document{{Filename: "a.pdf", Content: []byte("x")}})
	assert.ErrorIs(t, err, context.Canceled)

	_, err = f.store.Load(context.Background())
	assert.ErrorIs(t, err, domain.ErrIndexNotFound)
}

func TestIngest_ConcurrentIngestionsLeaveOneWholeIndex(t *testing.T) {
	store := sqliteStore(t)
	f := newFixture(t, withStore(store))
	texts := map[string]string{
		"x.pdf": strings.Repeat("xenon xylophone. ", 50),
		"y.pdf": strings.Repeat("yak yodel. ", 60),
	}
	for name, text := range texts {
		f.extractor.texts[name] = text
	}

	var wg sync.WaitGroup
	for name := range texts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.pipeline.Ingest(context.Background(), []domain.Document{{Filename: name, Content: []byte("x")}})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	idx, err := store.Load(context.Background())
	require.NoError(t, err)
	got := chunker.Reassemble(idx.Chunks())
	assert.True(t, got == texts["x.pdf"] || got == texts["y.pdf"], "index mixes two ingestions")
}

func TestAsk_BeforeIngest(t *testing.T) {
	f := newFixture(t, withStore(sqliteStore(t)))

	_, err := f.pipeline.Ask(context.Background(), "What is this about?")
	assert.ErrorIs(t, err, domain.ErrIndexUnavailable)
	assert.ErrorIs(t, err, domain.ErrIndexNotFound)
	assert.Zero(t, f.generator.calls())
}

func TestAsk_CorruptIndex(t *testing.T) {
	store := sqliteStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(store.Location()), 0o755))
	require.NoError(t, os.WriteFile(store.Location(), []byte("garbage garbage garbage garbage"), 0o644))
	f := newFixture(t, withStore(store))

	_, err := f.pipeline.Ask(context.Background(), "anything?")
	assert.ErrorIs(t, err, domain.ErrIndexUnavailable)
	assert.ErrorIs(t, err, domain.ErrIndexCorrupt)
}

func TestAsk_EmptyQuestion(t *testing.T) {
	f := newFixture(t)

	for _, q := range []string{"", "   ", "\n\t"} {
		_, err := f.pipeline.Ask(context.Background(), q)
		assert.ErrorIs(t, err, domain.ErrNoQuestion)
	}
	assert.Zero(t, f.generator.calls())
}

func TestAsk_RefusalWhenContextLacksAnswer(t *testing.T) {
	f := newFixture(t)
	f.generator.answer = func(prompt string) (string, error) {
		passages := prompt[strings.Index(prompt, "Context:"):strings.Index(prompt, "Question:")]
		if strings.Contains(passages, "Paris") {
			return "Paris.", nil
		}
		return generation.RefusalPhrase, nil
	}
	_, err := f.ingest(t, "The sky appears blue because of Rayleigh scattering.")
	require.NoError(t, err)

	answer, err := f.pipeline.Ask(context.Background(), "What is the capital of France?")
	require.NoError(t, err)
	assert.Equal(t, generation.RefusalPhrase, answer.Text)
}

func TestAsk_RetrievesRelevantPassagesInOrder(t *testing.T) {
	f := newFixture(t, withChunker(60, 0))
	text := "Cats are small furry pets that purr.\n\n" +
		"Volcanoes erupt molten lava and ash.\n\n" +
		"The Eiffel tower stands in Paris France.\n\n"
	_, err := f.ingest(t, text)
	require.NoError(t, err)

	answer, err := f.pipeline.Ask(context.Background(), "  Where is the Eiffel tower?  ")
	require.NoError(t, err)

	assert.Equal(t, "stub answer", answer.Text)
	require.NotEmpty(t, answer.Sources)
	assert.Contains(t, answer.Sources[0].Chunk.Text, "Eiffel")

	require.Equal(t, 1, f.generator.calls())
	prompt := f.generator.prompts[0]
	assert.Contains(t, prompt, "Question:\nWhere is the Eiffel tower?\n")
	last := -1
	for _, src := range answer.Sources {
		pos := strings.Index(prompt, src.Chunk.Text)
		require.GreaterOrEqual(t, pos, 0)
		assert.Greater(t, pos, last, "passages out of retrieval order")
		last = pos
	}
}

func TestAsk_EmptyGeneration(t *testing.T) {
	tests := []struct {
		name   string
		answer func(string) (string, error)
	}{
		{"empty response error", func(string) (string, error) { return "", domain.ErrEmptyResponse }},
		{"blank text", func(string) (string, error) { return "  \n", nil }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.generator.answer = tc.answer
			_, err := f.ingest(t, "Some indexed text.")
			require.NoError(t, err)

			answer, err := f.pipeline.Ask(context.Background(), "question?")
			require.NoError(t, err)
			assert.Equal(t, generation.NoResponse, answer.Text)
		})
	}
}

func TestAsk_GeneratorFailure(t *testing.T) {
	f := newFixture(t)
	cause := errors.New("503 service unavailable")
	f.generator.answer = func(string) (string, error) { return "", cause }
	_, err := f.ingest(t, "Some indexed text.")
	require.NoError(t, err)

	_, err = f.pipeline.Ask(context.Background(), "question?")
	require.ErrorIs(t, err, cause)
	var se *domain.ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "stub-gen", se.Service)
	assert.Equal(t, "generate", se.Op)
	assert.Contains(t, f.logs.String(), "generation failed")
}

func TestAsk_EmbedderFailure(t *testing.T) {
	f := newFixture(t)
	_, err := f.ingest(t, "Some indexed text.")
	require.NoError(t, err)

	f.embedder.err = errors.New("connection reset")
	_, err = f.pipeline.Ask(context.Background(), "question?")
	var se *domain.ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "embed", se.Op)
	assert.Zero(t, f.generator.calls())
}

func TestAsk_IndexBuiltWithDifferentEmbedder(t *testing.T) {
	store := memory.NewStore("shared")
	small := newFixture(t, withStore(store))
	_, err := small.ingest(t, "Some indexed text.")
	require.NoError(t, err)

	other := newFixture(t, withStore(store))
	other.embedder.Embedder = hashing.New(32)

	_, err = other.pipeline.Ask(context.Background(), "question?")
	assert.ErrorIs(t, err, domain.ErrIndexUnavailable)
}

func TestIndexStatus(t *testing.T) {
	f := newFixture(t)

	st := f.pipeline.IndexStatus(context.Background())
	assert.False(t, st.Available)
	assert.NotEmpty(t, st.Error)

	res, err := f.ingest(t, strings.Repeat("Index status text. ", 30))
	require.NoError(t, err)

	st = f.pipeline.IndexStatus(context.Background())
	assert.True(t, st.Available)
	assert.Equal(t, res.Chunks, st.Chunks)
	assert.Equal(t, vectorstore.L2, st.Metric)
	assert.Equal(t, "test", st.Location)
}
