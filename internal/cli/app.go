package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"pdfrag/internal/breaker"
	"pdfrag/internal/chunker"
	"pdfrag/internal/config"
	"pdfrag/internal/domain"
	"pdfrag/internal/embedding"
	googleembed "pdfrag/internal/embedding/google"
	"pdfrag/internal/embedding/hashing"
	openaiembed "pdfrag/internal/embedding/openai"
	"pdfrag/internal/extractor"
	"pdfrag/internal/generation"
	anthropicgen "pdfrag/internal/generation/anthropic"
	googlegen "pdfrag/internal/generation/google"
	openaigen "pdfrag/internal/generation/openai"
	"pdfrag/internal/service"
	"pdfrag/internal/summarizer"
	"pdfrag/internal/vectorstore"
	"pdfrag/internal/vectorstore/memory"
	"pdfrag/internal/vectorstore/sqlite"
)

// App is a pipeline assembled from configuration plus whatever must be
// released when the process exits.
type App struct {
	Pipeline *service.Pipeline
	closers  []io.Closer
}

// Close releases provider clients.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewApp wires every component named in cfg.
func NewApp(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	app := &App{}

	emb, err := newEmbedder(ctx, cfg.Embedder, app)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	gen, err := newGenerator(ctx, cfg.Generator, app)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	if cfg.Breaker.Enabled {
		if _, local := emb.(*hashing.Embedder); !local {
			emb = breaker.WrapEmbedder(emb, breakerSettings(cfg.Breaker, "embedder:"+emb.Name()), logger)
		}
		gen = breaker.WrapGenerator(gen, breakerSettings(cfg.Breaker, "generator:"+gen.Name()), logger)
	}

	store, err := newStore(cfg.Index)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	ch, err := chunker.New(cfg.Chunker.MaxSize, cfg.Chunker.Overlap)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	metric, err := vectorstore.ParseMetric(cfg.Index.Metric)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	var sum domain.Summarizer
	if cfg.Summarizer.Type == "frequency" {
		sum = summarizer.NewFrequencySummarizer()
	}

	app.Pipeline, err = service.NewPipeline(service.Components{
		Extractor:  extractor.New(logger),
		Chunker:    ch,
		Embedder:   emb,
		Generator:  gen,
		Store:      store,
		Summarizer: sum,
		Logger:     logger,
	}, service.Options{
		AllowedExtensions: cfg.Upload.AllowedExtensions,
		TopK:              cfg.Retrieval.TopK,
		Metric:            metric,
		EmbedBatchSize:    cfg.Embedder.BatchSize,
		ExtractWorkers:    cfg.Upload.ExtractWorkers,
		SummarySentences:  cfg.Summarizer.MaxSentences,
	})
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	logger.Info("pipeline ready",
		"embedder", cfg.Embedder.Type,
		"embedding_model", cfg.Embedder.Model,
		"generator", cfg.Generator.Type,
		"generation_model", cfg.Generator.Model,
		"index", store.Location())
	return app, nil
}

func newEmbedder(ctx context.Context, cfg config.EmbedderConfig, app *App) (domain.Embedder, error) {
	opts := []embedding.Option{
		embedding.WithAPIKey(cfg.APIKey()),
		embedding.WithModel(cfg.Model),
		embedding.WithBaseURL(cfg.BaseURL),
		embedding.WithDimensions(cfg.Dimensions),
		embedding.WithTimeout(cfg.Timeout()),
	}

	switch cfg.Type {
	case embedding.ProviderGoogle:
		e, err := googleembed.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("google embedder (key from %s): %w", cfg.APIKeyEnv, err)
		}
		app.closers = append(app.closers, e)
		return e, nil
	case embedding.ProviderOpenAI:
		e, err := openaiembed.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("openai embedder (key from %s): %w", cfg.APIKeyEnv, err)
		}
		return e, nil
	case embedding.ProviderHashing:
		return hashing.New(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Type)
	}
}

func newGenerator(ctx context.Context, cfg config.GeneratorConfig, app *App) (domain.Generator, error) {
	opts := []generation.Option{
		generation.WithAPIKey(cfg.APIKey()),
		generation.WithModel(cfg.Model),
		generation.WithBaseURL(cfg.BaseURL),
		generation.WithTemperature(cfg.Temperature),
		generation.WithMaxTokens(cfg.MaxTokens),
		generation.WithTimeout(cfg.Timeout()),
	}

	switch cfg.Type {
	case generation.ProviderGoogle:
		g, err := googlegen.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("google generator (key from %s): %w", cfg.APIKeyEnv, err)
		}
		app.closers = append(app.closers, g)
		return g, nil
	case generation.ProviderOpenAI:
		g, err := openaigen.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("openai generator (key from %s): %w", cfg.APIKeyEnv, err)
		}
		return g, nil
	case generation.ProviderAnthropic:
		g, err := anthropicgen.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("anthropic generator (key from %s): %w", cfg.APIKeyEnv, err)
		}
		return g, nil
	default:
		return nil, fmt.Errorf("unknown generator: %s", cfg.Type)
	}
}

func newStore(cfg config.IndexConfig) (vectorstore.Store, error) {
	switch cfg.Backend {
	case "sqlite":
		s, err := sqlite.NewStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "memory":
		return memory.NewStore(""), nil
	default:
		return nil, fmt.Errorf("unknown index backend: %s", cfg.Backend)
	}
}

func breakerSettings(cfg config.BreakerConfig, name string) breaker.Settings {
	s := breaker.DefaultSettings(name)
	if cfg.MaxRequests > 0 {
		s.MaxRequests = cfg.MaxRequests
	}
	if cfg.IntervalSecs > 0 {
		s.Interval = time.Duration(cfg.IntervalSecs) * time.Second
	}
	if cfg.TimeoutSecs > 0 {
		s.Timeout = time.Duration(cfg.TimeoutSecs) * time.Second
	}
	if cfg.MinRequests > 0 {
		s.MinRequests = cfg.MinRequests
	}
	if cfg.FailureRatio > 0 {
		s.FailureRatio = cfg.FailureRatio
	}
	s.RatePerSecond = cfg.RatePerSecond
	s.Burst = cfg.Burst
	return s
}
